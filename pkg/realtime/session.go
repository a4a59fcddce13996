package realtime

import (
	"encoding/json"
	"sync"
	"time"
)

// Session 一个在线客户端连接及其服务端元数据
type Session struct {
	// ID 服务端生成的会话 ID
	ID string
	// ConnectedAt 建立时间，创建后不可变
	ConnectedAt time.Time

	conn Conn

	mu     sync.RWMutex
	userID *string
}

// newSession 创建会话
func newSession(id string, conn Conn) *Session {
	return &Session{
		ID:          id,
		ConnectedAt: time.Now(),
		conn:        conn,
	}
}

// UserID 获取客户端声明的用户 ID，未认证时返回 false
func (s *Session) UserID() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.userID == nil {
		return "", false
	}
	return *s.userID, true
}

// setUserID 设置用户 ID，允许重复认证覆盖
func (s *Session) setUserID(userID string) {
	s.mu.Lock()
	s.userID = &userID
	s.mu.Unlock()
}

// matches 判断会话是否命中目标用户，nil 目标命中所有会话
func (s *Session) matches(target *string) bool {
	if target == nil {
		return true
	}
	uid, ok := s.UserID()
	return ok && uid == *target
}

// Send 发送字节消息（非阻塞）
func (s *Session) Send(data []byte) error {
	return s.conn.Send(data)
}

// SendJSON 发送 JSON 消息
func (s *Session) SendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.conn.Send(data)
}

// Close 关闭底层连接
func (s *Session) Close() error {
	return s.conn.Close()
}

// RemoteAddr 获取远程地址
func (s *Session) RemoteAddr() string {
	return s.conn.RemoteAddr()
}

// Info 会话快照
func (s *Session) Info() SessionInfo {
	info := SessionInfo{
		ID:          s.ID,
		ConnectedAt: s.ConnectedAt.UnixMilli(),
	}
	if uid, ok := s.UserID(); ok {
		info.UserID = &uid
	}
	return info
}
