package realtime

import (
	"sync"
	"sync/atomic"
	"time"
)

// EventType 事件类型
type EventType string

const (
	// EventSessionConnected 会话建立
	EventSessionConnected EventType = "session.connected"
	// EventSessionAuthenticated 会话完成认证
	EventSessionAuthenticated EventType = "session.authenticated"
	// EventSessionDisconnected 会话断开
	EventSessionDisconnected EventType = "session.disconnected"
	// EventBroadcastCompleted 广播完成，Data 为 BroadcastSummary
	EventBroadcastCompleted EventType = "broadcast.completed"
	// EventMessageInvalid 收到无法解析的帧
	EventMessageInvalid EventType = "message.invalid"
)

// Event 事件
type Event struct {
	Type      EventType
	SessionID string
	UserID    string
	Data      any
	Time      time.Time
}

// EventHandler 事件处理器
type EventHandler func(Event)

// EventBus 异步事件总线
type EventBus struct {
	handlers      map[EventType][]EventHandler
	mu            sync.RWMutex
	workerCh      chan func()
	stopCh        chan struct{}
	wg            sync.WaitGroup
	closed        atomic.Bool
	closeOnce     sync.Once
	droppedEvents atomic.Int64
}

// NewEventBus 创建事件总线
func NewEventBus(workers, queueSize int) *EventBus {
	eb := &EventBus{
		handlers: make(map[EventType][]EventHandler),
		workerCh: make(chan func(), queueSize),
		stopCh:   make(chan struct{}),
	}

	for i := 0; i < workers; i++ {
		eb.wg.Add(1)
		go eb.worker()
	}

	return eb
}

// worker 工作协程
func (eb *EventBus) worker() {
	defer eb.wg.Done()
	for {
		select {
		case task := <-eb.workerCh:
			eb.run(task)
		case <-eb.stopCh:
			// 退出前处理完已入队的事件
			for {
				select {
				case task := <-eb.workerCh:
					eb.run(task)
				default:
					return
				}
			}
		}
	}
}

// run 执行处理器，处理器 panic 不影响 worker
func (eb *EventBus) run(task func()) {
	defer func() {
		_ = recover()
	}()
	task()
}

// Subscribe 订阅事件
func (eb *EventBus) Subscribe(eventType EventType, handler EventHandler) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.handlers[eventType] = append(eb.handlers[eventType], handler)
}

// Publish 发布事件（异步）
func (eb *EventBus) Publish(event Event) {
	if eb.closed.Load() {
		return
	}
	if event.Time.IsZero() {
		event.Time = time.Now()
	}

	eb.mu.RLock()
	handlers := eb.handlers[event.Type]
	eb.mu.RUnlock()

	for _, h := range handlers {
		task := func() { h(event) }

		// 生命周期与广播事件等待片刻，其余事件队列满时直接丢弃
		if event.Type == EventMessageInvalid {
			select {
			case eb.workerCh <- task:
			default:
				eb.droppedEvents.Add(1)
			}
			continue
		}

		select {
		case eb.workerCh <- task:
		case <-time.After(100 * time.Millisecond):
			eb.droppedEvents.Add(1)
		}
	}
}

// Close 关闭事件总线，等待已入队事件处理完毕
func (eb *EventBus) Close() {
	eb.closeOnce.Do(func() {
		eb.closed.Store(true)
		close(eb.stopCh)
		eb.wg.Wait()
	})
}

// DroppedEventCount 获取丢弃的事件数量
func (eb *EventBus) DroppedEventCount() int64 {
	return eb.droppedEvents.Load()
}
