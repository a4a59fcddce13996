package ingest

import "github.com/tokmz/posrt/pkg/errors"

// 接入包错误码 3301 起
var (
	// ErrMalformedEvent 消息体无法解析或缺少 type，消息会被丢弃
	ErrMalformedEvent = errors.New(3301, 400, "无效的接入事件", nil)
	// ErrDispatch 广播失败
	ErrDispatch = errors.New(3302, 500, "接入事件分发失败", nil)
	// ErrSourceConfig 数据源配置错误
	ErrSourceConfig = errors.New(3303, 500, "接入数据源配置错误", nil)
)
