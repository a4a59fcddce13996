package realtime

import "errors"

// 错误定义
var (
	// 会话相关错误
	ErrSessionExists      = errors.New("realtime: session id already exists")
	ErrSessionNotFound    = errors.New("realtime: session not found")
	ErrTooManyConnections = errors.New("realtime: too many connections")
	ErrConnectionClosed   = errors.New("realtime: connection closed")
	ErrChannelFull        = errors.New("realtime: send channel full")
	ErrUpgradeRequired    = errors.New("realtime: upgrade required")
	ErrManagerClosed      = errors.New("realtime: manager closed")

	// 消息相关错误
	ErrHandlerNotFound  = errors.New("realtime: handler not found")
	ErrHandlerExists    = errors.New("realtime: handler already exists")
	ErrInvalidMessage   = errors.New("realtime: invalid message format")
	ErrMissingUserID    = errors.New("realtime: userId is required")
	ErrInvalidBroadcast = errors.New("realtime: broadcast type is required")

	// 配置相关错误
	ErrInvalidConfig = errors.New("realtime: invalid config")
)
