package realtime

import (
	"bytes"
	"encoding/json"
)

// 内置消息类型
const (
	TypeConnected   = "connected"
	TypeAuth        = "auth"
	TypeAuthSuccess = "auth_success"
	TypePing        = "ping"
	TypePong        = "pong"
	TypeBroadcast   = "broadcast"
	TypeError       = "error"
)

// Message 入站消息，type 为判别字段
type Message struct {
	// Type 消息类型
	Type string `json:"type"`

	// UserID auth 消息携带的用户 ID
	UserID string `json:"userId,omitempty"`

	// Payload 业务数据
	Payload json.RawMessage `json:"payload,omitempty"`

	// Data 业务数据（旧客户端字段，Payload 为空时使用）
	Data json.RawMessage `json:"data,omitempty"`
}

// ParseMessage 解析入站帧，非 JSON 对象或缺少 type 时返回 ErrInvalidMessage
func ParseMessage(data []byte) (*Message, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, ErrInvalidMessage
	}

	var msg Message
	if err := json.Unmarshal(trimmed, &msg); err != nil {
		return nil, ErrInvalidMessage
	}
	if msg.Type == "" {
		return nil, ErrInvalidMessage
	}
	return &msg, nil
}

// Body 返回消息体，优先 payload
func (m *Message) Body() json.RawMessage {
	if len(m.Payload) > 0 {
		return m.Payload
	}
	return m.Data
}

// AuthUserID 提取 auth 消息中的 userId：顶层字段优先，其次 payload/data 中的 userId
func (m *Message) AuthUserID() (string, bool) {
	if m.UserID != "" {
		return m.UserID, true
	}
	body := m.Body()
	if len(body) == 0 {
		return "", false
	}
	var nested struct {
		UserID string `json:"userId"`
	}
	if err := json.Unmarshal(body, &nested); err != nil || nested.UserID == "" {
		return "", false
	}
	return nested.UserID, true
}

// Frame 出站帧，MessageType 用于审计与追踪
type Frame interface {
	MessageType() string
}

// ConnectedFrame 连接成功帧
type ConnectedFrame struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Timestamp int64  `json:"timestamp"`
}

// AuthSuccessFrame 认证成功帧
type AuthSuccessFrame struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
}

// PongFrame 心跳响应帧
type PongFrame struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

// ErrorFrame 错误帧
type ErrorFrame struct {
	Type        string `json:"type"`
	Error       string `json:"error"`
	MessageType string `json:"messageType,omitempty"`
}

// BroadcastFrame 客户端发起的广播帧
type BroadcastFrame struct {
	Type      string          `json:"type"`
	Sender    string          `json:"sender"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp int64           `json:"timestamp"`
}

// MessageType 实现 Frame
func (f BroadcastFrame) MessageType() string { return f.Type }

// NotificationFrame 管理端或消息队列发起的通知帧
type NotificationFrame struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp int64           `json:"timestamp"`
}

// MessageType 实现 Frame
func (f NotificationFrame) MessageType() string { return f.Type }

// newErrorFrame 创建错误帧
func newErrorFrame(msg, messageType string) ErrorFrame {
	return ErrorFrame{Type: TypeError, Error: msg, MessageType: messageType}
}
