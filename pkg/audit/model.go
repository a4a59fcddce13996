package audit

import "time"

// BroadcastRecord 一次广播的审计记录，只用于运维排查，不参与重放
type BroadcastRecord struct {
	ID           uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	MessageType  string    `gorm:"size:64;index" json:"type"`
	Origin       string    `gorm:"size:16" json:"origin"`
	Sender       string    `gorm:"size:64" json:"sender,omitempty"`
	TargetUserID *string   `gorm:"size:128" json:"targetUserId"`
	SentCount    int       `json:"sentCount"`
	Pruned       int       `json:"pruned"`
	DurationMs   int64     `json:"durationMs"`
	CreatedAt    time.Time `gorm:"index" json:"createdAt"`
}

// TableName 表名
func (BroadcastRecord) TableName() string {
	return "broadcast_records"
}
