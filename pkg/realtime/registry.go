package realtime

import (
	"iter"
	"sync"
)

// Registry 进程内在线会话表，sessionID -> *Session
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	limit    int // 0 表示不限制
}

// NewRegistry 创建注册表
func NewRegistry(limit int) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		limit:    limit,
	}
}

// Add 添加会话，ID 重复时返回 ErrSessionExists
func (r *Registry) Add(sessionID string, session *Session) error {
	return r.admit(sessionID, session, nil)
}

// admit 在锁内检查上限、执行 onAdmit 并注册，onAdmit 失败时不注册
// 广播快照同样需要该锁，因此 onAdmit 中入队的帧先于任何广播
func (r *Registry) admit(sessionID string, session *Session, onAdmit func() error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[sessionID]; exists {
		return ErrSessionExists
	}
	if r.limit > 0 && len(r.sessions) >= r.limit {
		return ErrTooManyConnections
	}
	if onAdmit != nil {
		if err := onAdmit(); err != nil {
			return err
		}
	}
	r.sessions[sessionID] = session
	return nil
}

// Remove 移除会话（幂等），返回本次调用是否真正移除
func (r *Registry) Remove(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[sessionID]; !exists {
		return false
	}
	delete(r.sessions, sessionID)
	return true
}

// Get 获取会话
func (r *Registry) Get(sessionID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sessionID]
	return s, ok
}

// All 返回调用时刻的快照序列，可重复遍历，遍历期间的增删不影响结果
func (r *Registry) All() iter.Seq2[string, *Session] {
	r.mu.RLock()
	ids := make([]string, 0, len(r.sessions))
	snapshot := make([]*Session, 0, len(r.sessions))
	for id, s := range r.sessions {
		ids = append(ids, id)
		snapshot = append(snapshot, s)
	}
	r.mu.RUnlock()

	return func(yield func(string, *Session) bool) {
		for i, s := range snapshot {
			if !yield(ids[i], s) {
				return
			}
		}
	}
}

// Size 当前会话数
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
