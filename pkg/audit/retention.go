package audit

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// RetentionJob 定期清理过期审计记录，实现 cron.Job
type RetentionJob struct {
	recorder *Recorder
	maxAge   time.Duration
	timeout  time.Duration
}

// NewRetentionJob 创建清理任务
func NewRetentionJob(r *Recorder, maxAge time.Duration) *RetentionJob {
	return &RetentionJob{recorder: r, maxAge: maxAge, timeout: time.Minute}
}

// Run 执行一次清理
func (j *RetentionJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	n, err := j.recorder.Purge(ctx, j.maxAge)
	if err != nil {
		j.recorder.log.Error("audit purge failed", zap.Error(err))
		return
	}
	if n > 0 {
		j.recorder.log.Info("audit purged", zap.Int64("deleted", n), zap.Duration("max_age", j.maxAge))
	}
}

// Schedule 注册到 cron，spec 支持秒级表达式与 "@every 1h"
func (j *RetentionJob) Schedule(c *cron.Cron, spec string) (cron.EntryID, error) {
	return c.AddJob(spec, cron.NewChain(cron.SkipIfStillRunning(cron.DiscardLogger)).Then(j))
}
