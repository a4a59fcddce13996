package audit

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tokmz/posrt/pkg/orm"
	"github.com/tokmz/posrt/pkg/realtime"
)

func newTestRecorder(t *testing.T) *Recorder {
	t.Helper()
	cfg := orm.DefaultConfig()
	cfg.DSN = filepath.Join(t.TempDir(), "audit.db")
	db, err := orm.New(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = orm.Close(db) })

	r, err := NewRecorder(db, nil)
	require.NoError(t, err)
	return r
}

func strPtr(s string) *string { return &s }

// TestRecordAndRecent 测试写入与倒序查询
func TestRecordAndRecent(t *testing.T) {
	ctx := context.Background()
	r := newTestRecorder(t)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	for i, typ := range []string{"order_created", "inventory_low", "order_paid"} {
		require.NoError(t, r.Record(ctx, realtime.BroadcastSummary{
			MessageType:  typ,
			Origin:       realtime.OriginAdmin,
			TargetUserID: strPtr("cashier-7"),
			SentCount:    i + 1,
			Duration:     1500 * time.Microsecond,
		}, base.Add(time.Duration(i)*time.Minute)))
	}

	recs, err := r.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "order_paid", recs[0].MessageType)
	assert.Equal(t, "inventory_low", recs[1].MessageType)
	assert.Equal(t, "admin", recs[0].Origin)
	assert.Equal(t, int64(1), recs[0].DurationMs)
	require.NotNil(t, recs[0].TargetUserID)
	assert.Equal(t, "cashier-7", *recs[0].TargetUserID)

	all, err := r.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

// TestRecordJSON 测试审计记录的 JSON 形态
func TestRecordJSON(t *testing.T) {
	data, err := json.Marshal(BroadcastRecord{ID: 1, MessageType: "order_created", Origin: "ingest", SentCount: 2})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"targetUserId":null`)
	assert.NotContains(t, string(data), `"sender"`)
}

// TestPurge 测试按保留期清理
func TestPurge(t *testing.T) {
	ctx := context.Background()
	r := newTestRecorder(t)
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	require.NoError(t, r.Record(ctx, realtime.BroadcastSummary{MessageType: "old"}, now.Add(-8*24*time.Hour)))
	require.NoError(t, r.Record(ctx, realtime.BroadcastSummary{MessageType: "new"}, now.Add(-time.Hour)))

	n, err := r.Purge(ctx, 7*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	recs, err := r.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "new", recs[0].MessageType)

	// 定时任务同样清理
	require.NoError(t, r.Record(ctx, realtime.BroadcastSummary{MessageType: "stale"}, now.Add(-30*24*time.Hour)))
	NewRetentionJob(r, 7*24*time.Hour).Run()
	var count int64
	require.NoError(t, r.db.Model(&BroadcastRecord{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

// TestAttach 测试订阅广播完成事件
func TestAttach(t *testing.T) {
	r := newTestRecorder(t)

	m, err := realtime.NewManager(realtime.WithAllowAllOrigins())
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })
	r.Attach(m)

	res, err := m.Publish(context.Background(), realtime.BroadcastRequest{
		Type:    "order_created",
		Payload: json.RawMessage(`{"orderId":"A-1001"}`),
	}, realtime.WithOrigin(realtime.OriginIngest))
	require.NoError(t, err)
	assert.Equal(t, 0, res.SentCount)

	assert.Eventually(t, func() bool {
		recs, err := r.Recent(context.Background(), 10)
		return err == nil && len(recs) == 1 && recs[0].Origin == "ingest"
	}, 2*time.Second, 20*time.Millisecond)
}

// TestSchedule 测试注册 cron 任务
func TestSchedule(t *testing.T) {
	r := newTestRecorder(t)
	c := cron.New(cron.WithSeconds())

	id, err := NewRetentionJob(r, time.Hour).Schedule(c, "@every 1h")
	require.NoError(t, err)
	assert.NotZero(t, id)

	_, err = NewRetentionJob(r, time.Hour).Schedule(c, "not a spec")
	assert.Error(t, err)
}

// TestMigrateError 测试迁移失败
func TestMigrateError(t *testing.T) {
	cfg := orm.DefaultConfig()
	cfg.DSN = filepath.Join(t.TempDir(), "closed.db")
	db, err := orm.New(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, orm.Close(db))

	_, err = NewRecorder(db.Session(&gorm.Session{}), nil)
	assert.ErrorIs(t, err, ErrAuditMigrate)
}
