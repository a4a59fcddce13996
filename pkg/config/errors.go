package config

import "github.com/tokmz/posrt/pkg/errors"

// 配置包错误码 3001 起
var (
	// ErrConfigNotFound 配置文件未找到
	ErrConfigNotFound = errors.New(3001, 500, "配置文件未找到", nil)
	// ErrConfigUnmarshal 配置反序列化失败
	ErrConfigUnmarshal = errors.New(3002, 500, "配置解析失败", nil)
	// ErrConfigReadFailed 配置读取失败
	ErrConfigReadFailed = errors.New(3003, 500, "配置读取失败", nil)
	// ErrConfigNotLoaded 未调用 Load
	ErrConfigNotLoaded = errors.New(3004, 500, "配置尚未加载", nil)
)
