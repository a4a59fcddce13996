package realtime

import (
	"cmp"
	"slices"
)

// SessionInfo 会话快照，userId 未认证时为 null
type SessionInfo struct {
	ID          string  `json:"id"`
	UserID      *string `json:"userId"`
	ConnectedAt int64   `json:"connectedAt"`
}

// Status 在线状态快照
type Status struct {
	ActiveSessions int           `json:"activeSessions"`
	Sessions       []SessionInfo `json:"sessions"`
}

// Status 返回只读快照，按建立时间排序
func (m *Manager) Status() Status {
	sessions := make([]SessionInfo, 0, m.registry.Size())
	for _, s := range m.registry.All() {
		sessions = append(sessions, s.Info())
	}

	slices.SortFunc(sessions, func(a, b SessionInfo) int {
		return cmp.Or(cmp.Compare(a.ConnectedAt, b.ConnectedAt), cmp.Compare(a.ID, b.ID))
	})

	return Status{
		ActiveSessions: len(sessions),
		Sessions:       sessions,
	}
}
