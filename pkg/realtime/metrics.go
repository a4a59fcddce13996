package realtime

import "time"

// Metrics 监控接口
type Metrics interface {
	// 连接指标
	IncrementConnections()
	DecrementConnections()
	SetConnectionCount(count int)
	IncrementRejectedConnections()

	// 消息指标
	IncrementMessageCount(msgType string)
	IncrementInvalidMessages()
	IncrementUnknownMessages(msgType string)

	// 广播指标
	RecordBroadcast(sent, pruned int, duration time.Duration)
	IncrementPrunedSessions()
}

// NoopMetrics 空实现（默认）
type NoopMetrics struct{}

func (m *NoopMetrics) IncrementConnections()                   {}
func (m *NoopMetrics) DecrementConnections()                   {}
func (m *NoopMetrics) SetConnectionCount(int)                  {}
func (m *NoopMetrics) IncrementRejectedConnections()           {}
func (m *NoopMetrics) IncrementMessageCount(string)            {}
func (m *NoopMetrics) IncrementInvalidMessages()               {}
func (m *NoopMetrics) IncrementUnknownMessages(string)         {}
func (m *NoopMetrics) RecordBroadcast(int, int, time.Duration) {}
func (m *NoopMetrics) IncrementPrunedSessions()                {}
