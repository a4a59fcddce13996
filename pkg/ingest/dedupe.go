package ingest

import (
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
)

// DedupeConfig 重复投递过滤，只作用于生产方自带 id 的事件
type DedupeConfig struct {
	// Window 去重窗口，id 至少被记住一个窗口、至多两个窗口
	Window time.Duration `mapstructure:"window"`
	// Capacity 单个窗口预计的事件数
	Capacity uint `mapstructure:"capacity"`
	// FalsePositiveRate 误判率，误判的事件会被当作重复丢弃
	FalsePositiveRate float64 `mapstructure:"false_positive_rate"`
}

func (c *DedupeConfig) setDefaults() {
	if c.Window <= 0 {
		c.Window = 10 * time.Minute
	}
	if c.Capacity == 0 {
		c.Capacity = 100_000
	}
	if c.FalsePositiveRate <= 0 || c.FalsePositiveRate >= 1 {
		c.FalsePositiveRate = 1e-6
	}
}

// Deduper 两代轮换的布隆过滤器
type Deduper struct {
	cfg DedupeConfig
	now func() time.Time

	mu        sync.Mutex
	cur, prev *bloom.BloomFilter
	rotatedAt time.Time
}

// NewDeduper 创建去重器，cfg 为 nil 时使用默认值
func NewDeduper(cfg *DedupeConfig) *Deduper {
	var c DedupeConfig
	if cfg != nil {
		c = *cfg
	}
	c.setDefaults()
	return newDeduper(c, time.Now)
}

func newDeduper(cfg DedupeConfig, now func() time.Time) *Deduper {
	return &Deduper{
		cfg:       cfg,
		now:       now,
		cur:       bloom.NewWithEstimates(cfg.Capacity, cfg.FalsePositiveRate),
		prev:      bloom.NewWithEstimates(cfg.Capacity, cfg.FalsePositiveRate),
		rotatedAt: now(),
	}
}

// Seen 记录 id，返回此前是否出现过
func (d *Deduper) Seen(id string) bool {
	key := []byte(id)

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	switch elapsed := now.Sub(d.rotatedAt); {
	case elapsed >= 2*d.cfg.Window:
		// 空闲超过两个窗口，两代都已过期
		d.prev.ClearAll()
		d.cur.ClearAll()
		d.rotatedAt = now
	case elapsed >= d.cfg.Window:
		d.prev, d.cur = d.cur, d.prev
		d.cur.ClearAll()
		d.rotatedAt = now
	}

	if d.prev.Test(key) {
		d.cur.Add(key)
		return true
	}
	return d.cur.TestAndAdd(key)
}
