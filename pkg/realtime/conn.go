package realtime

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Conn 会话独占的双向通道
type Conn interface {
	// Send 非阻塞入队，连接已关闭或队列已满时返回错误
	Send(data []byte) error
	// Close 关闭连接，可重复调用
	Close() error
	// RemoteAddr 远程地址
	RemoteAddr() string
}

// wsConn 基于 gorilla/websocket 的 Conn 实现
type wsConn struct {
	conn *websocket.Conn

	// 发送队列，永不关闭，退出由 done 通知
	send chan []byte
	done chan struct{}
	// 底层连接关闭后关闭
	released chan struct{}

	closed    atomic.Bool
	closeOnce sync.Once

	writeWait  time.Duration
	pongWait   time.Duration
	pingPeriod time.Duration
	readLimit  int64
}

// newWSConn 创建连接
func newWSConn(conn *websocket.Conn, config *Config) *wsConn {
	return &wsConn{
		conn:       conn,
		send:       make(chan []byte, config.SendQueueSize),
		done:       make(chan struct{}),
		released:   make(chan struct{}),
		writeWait:  config.WriteWait,
		pongWait:   config.HeartbeatTimeout,
		pingPeriod: config.HeartbeatInterval,
		readLimit:  config.MaxMessageSize,
	}
}

// Send 发送字节消息（非阻塞）
func (c *wsConn) Send(data []byte) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}

	select {
	case <-c.done:
		return ErrConnectionClosed
	case c.send <- data:
		return nil
	default:
		return ErrChannelFull
	}
}

// Close 标记关闭并立即返回，close 帧和底层连接在后台释放
// 慢客户端的写协程可能正阻塞在写超时上，调用方不应为此等待
func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)

		go func() {
			defer close(c.released)
			// WriteControl 可与其他写操作并发调用
			_ = c.conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.writeWait),
			)
			_ = c.conn.Close()
		}()
	})
	return nil
}

// wait 等待底层连接释放
func (c *wsConn) wait() {
	<-c.released
}

// RemoteAddr 获取远程地址
func (c *wsConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// run 在当前 goroutine 读取消息，直到连接关闭
// onFrame 同步调用，保证单连接内消息按到达顺序处理
func (c *wsConn) run(onFrame func([]byte)) {
	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		c.writePump()
	}()

	c.readPump(onFrame)
	_ = c.Close()
	<-writeDone
	c.wait()
}

// readPump 读取消息
func (c *wsConn) readPump(onFrame func([]byte)) {
	c.conn.SetReadLimit(c.readLimit)
	if err := c.conn.SetReadDeadline(time.Now().Add(c.pongWait)); err != nil {
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		// 任意入站数据都视为存活
		_ = c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
		onFrame(data)
	}
}

// writePump 写入消息
func (c *wsConn) writePump() {
	ticker := time.NewTicker(c.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return

		case message := <-c.send:
			if err := c.write(websocket.TextMessage, message); err != nil {
				_ = c.Close()
				return
			}

		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				_ = c.Close()
				return
			}
		}
	}
}

// write 写入一帧
func (c *wsConn) write(messageType int, data []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, data)
}
