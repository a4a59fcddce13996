package audit

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/tokmz/posrt/pkg/logger"
	"github.com/tokmz/posrt/pkg/realtime"
)

const (
	defaultRecentLimit = 50
	maxRecentLimit     = 500
	writeTimeout       = 5 * time.Second
)

// Subscriber 事件来源，*realtime.Manager 实现该接口
type Subscriber interface {
	Subscribe(eventType realtime.EventType, handler realtime.EventHandler)
}

// Recorder 将 broadcast.completed 事件写入数据库
type Recorder struct {
	db  *gorm.DB
	log logger.Logger
	now func() time.Time
}

// NewRecorder 创建 Recorder 并迁移审计表
func NewRecorder(db *gorm.DB, log logger.Logger) (*Recorder, error) {
	if log == nil {
		log = logger.NewNop()
	}
	if err := db.AutoMigrate(&BroadcastRecord{}); err != nil {
		return nil, ErrAuditMigrate.WithError(err)
	}
	return &Recorder{
		db:  db,
		log: log.With(zap.String("module", "audit")),
		now: time.Now,
	}, nil
}

// Attach 订阅广播完成事件
func (r *Recorder) Attach(sub Subscriber) {
	sub.Subscribe(realtime.EventBroadcastCompleted, func(e realtime.Event) {
		summary, ok := e.Data.(realtime.BroadcastSummary)
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		if err := r.Record(ctx, summary, e.Time); err != nil {
			r.log.Warn("broadcast audit write failed", zap.String("type", summary.MessageType), zap.Error(err))
		}
	})
}

// Record 写入一条审计记录，at 为零值时取当前时间
func (r *Recorder) Record(ctx context.Context, s realtime.BroadcastSummary, at time.Time) error {
	if at.IsZero() {
		at = r.now()
	}
	rec := &BroadcastRecord{
		MessageType:  s.MessageType,
		Origin:       string(s.Origin),
		Sender:       s.Sender,
		TargetUserID: s.TargetUserID,
		SentCount:    s.SentCount,
		Pruned:       s.Pruned,
		DurationMs:   s.Duration.Milliseconds(),
		CreatedAt:    at,
	}
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return ErrAuditWrite.WithError(err)
	}
	return nil
}

// Recent 按时间倒序返回最近 n 条记录，n 不合法时取默认值
func (r *Recorder) Recent(ctx context.Context, n int) ([]BroadcastRecord, error) {
	if n <= 0 {
		n = defaultRecentLimit
	}
	n = min(n, maxRecentLimit)

	records := make([]BroadcastRecord, 0, n)
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Order("id DESC").
		Limit(n).
		Find(&records).Error
	if err != nil {
		return nil, ErrAuditQuery.WithError(err)
	}
	return records, nil
}

// Purge 删除早于 olderThan 的记录，返回删除条数
func (r *Recorder) Purge(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := r.now().Add(-olderThan)
	res := r.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&BroadcastRecord{})
	if res.Error != nil {
		return 0, ErrAuditWrite.WithError(res.Error)
	}
	return res.RowsAffected, nil
}
