package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tokmz/posrt/pkg/logger"
)

// Manager 实时连接核心管理器，持有注册表并处理单连接生命周期
type Manager struct {
	// 核心组件
	registry   *Registry
	router     *MessageRouter
	dispatcher *Dispatcher
	events     *EventBus

	// 配置
	config   *Config
	upgrader *Upgrader

	// 生命周期
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool

	// 监控
	metrics Metrics
	log     logger.Logger
}

// NewManager 创建管理器
func NewManager(opts ...Option) (*Manager, error) {
	config := DefaultConfig()
	for _, opt := range opts {
		opt(config)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	if config.Metrics == nil {
		config.Metrics = &NoopMetrics{}
	}
	if config.Logger == nil {
		config.Logger = logger.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		registry: NewRegistry(config.MaxConnections),
		router:   NewMessageRouter(),
		events:   NewEventBus(config.EventWorkers, config.EventQueueSize),
		config:   config,
		upgrader: NewUpgrader(config.UpgraderConfig, config.HandshakeTimeout),
		ctx:      ctx,
		cancel:   cancel,
		metrics:  config.Metrics,
		log:      config.Logger.With(zap.String("module", "realtime")),
	}
	m.dispatcher = newDispatcher(m.registry, config.BroadcastWorkers, m.prune, m.metrics, m.events, m.log)

	// 内置消息类型
	_ = m.router.Register(TypeAuth, m.handleAuth)
	_ = m.router.Register(TypePing, m.handlePing)
	_ = m.router.Register(TypeBroadcast, m.handleBroadcast)

	return m, nil
}

// HandleUpgrade 处理升级请求，成功后连接在后台运行直到关闭
func (m *Manager) HandleUpgrade(w http.ResponseWriter, r *http.Request) error {
	if !websocket.IsWebSocketUpgrade(r) {
		w.Header().Set("Upgrade", "websocket")
		writeHTTPError(w, http.StatusUpgradeRequired, "Expected Upgrade: websocket")
		return ErrUpgradeRequired
	}

	if m.isClosed() {
		writeHTTPError(w, http.StatusServiceUnavailable, "Server shutting down")
		return ErrManagerClosed
	}

	if m.registry.Size() >= m.config.MaxConnections {
		m.metrics.IncrementRejectedConnections()
		writeHTTPError(w, http.StatusServiceUnavailable, "Too many connections")
		return ErrTooManyConnections
	}

	wsc, err := m.upgrader.Upgrade(w, r)
	if err != nil {
		return err
	}
	conn := newWSConn(wsc, m.config)

	session, err := m.Attach(conn)
	if err != nil {
		_ = conn.Close()
		conn.wait()
		return err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		m.Detach(session)
		conn.wait()
		return ErrManagerClosed
	}
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		conn.run(func(data []byte) {
			m.HandleFrame(m.ctx, session, data)
		})
		m.Detach(session)
	}()

	return nil
}

// Attach 为已建立的连接创建会话：生成 ID、注册并发送 connected 帧
func (m *Manager) Attach(conn Conn) (*Session, error) {
	if m.isClosed() {
		return nil, ErrManagerClosed
	}

	session := newSession(generateSessionID(), conn)

	// 注册成功才发送 connected 帧，且它是会话收到的第一帧
	err := m.registry.admit(session.ID, session, func() error {
		return session.SendJSON(ConnectedFrame{
			Type:      TypeConnected,
			SessionID: session.ID,
			Timestamp: nowMillis(),
		})
	})
	if err != nil {
		if errors.Is(err, ErrTooManyConnections) {
			m.metrics.IncrementRejectedConnections()
		}
		return nil, err
	}

	m.metrics.IncrementConnections()
	m.metrics.SetConnectionCount(m.registry.Size())
	m.log.Info("session connected",
		zap.String("session_id", session.ID),
		zap.String("remote_addr", conn.RemoteAddr()),
	)
	m.events.Publish(Event{Type: EventSessionConnected, SessionID: session.ID})

	return session, nil
}

// Detach 移除并关闭会话（幂等）
func (m *Manager) Detach(s *Session) {
	m.remove(s, "closed", nil)
}

// prune 发送失败时移除会话
func (m *Manager) prune(ctx context.Context, s *Session, cause error) {
	if !m.remove(s, "send_failed", cause) {
		return
	}
	m.metrics.IncrementPrunedSessions()
	m.log.WarnContext(ctx, "pruned session after failed send",
		zap.String("session_id", s.ID),
		zap.Error(cause),
	)
}

// remove 从注册表移除会话并关闭连接，只有真正移除的调用会产生副作用
func (m *Manager) remove(s *Session, reason string, cause error) bool {
	if !m.registry.Remove(s.ID) {
		return false
	}
	_ = s.Close()

	m.metrics.DecrementConnections()
	m.metrics.SetConnectionCount(m.registry.Size())

	uid, _ := s.UserID()
	fields := []zap.Field{
		zap.String("session_id", s.ID),
		zap.String("reason", reason),
	}
	if uid != "" {
		fields = append(fields, zap.String("user_id", uid))
	}
	if cause != nil {
		fields = append(fields, zap.Error(cause))
	}
	m.log.Info("session disconnected", fields...)

	m.events.Publish(Event{
		Type:      EventSessionDisconnected,
		SessionID: s.ID,
		UserID:    uid,
		Data:      reason,
	})
	return true
}

// HandleFrame 处理一帧入站数据，任何错误都只影响当前帧
func (m *Manager) HandleFrame(ctx context.Context, s *Session, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			m.log.ErrorContext(ctx, "panic while handling frame",
				zap.String("session_id", s.ID),
				zap.Any("panic", r),
			)
			_ = m.reply(ctx, s, newErrorFrame("Internal error", ""))
		}
	}()

	if uid, ok := s.UserID(); ok {
		ctx = logger.WithUID(ctx, uid)
	}

	msg, err := ParseMessage(data)
	if err != nil {
		m.metrics.IncrementInvalidMessages()
		m.log.WarnContext(ctx, "invalid message format",
			zap.String("session_id", s.ID),
			zap.Int("size", len(data)),
		)
		m.events.Publish(Event{Type: EventMessageInvalid, SessionID: s.ID, Data: len(data)})
		_ = m.reply(ctx, s, newErrorFrame("Invalid message format", ""))
		return
	}

	m.metrics.IncrementMessageCount(msg.Type)

	err = m.router.Route(ctx, s, msg)
	switch {
	case err == nil:
	case errors.Is(err, ErrHandlerNotFound):
		m.metrics.IncrementUnknownMessages(msg.Type)
		_ = m.reply(ctx, s, newErrorFrame("Unknown message type: "+msg.Type, msg.Type))
	case errors.Is(err, ErrConnectionClosed), errors.Is(err, ErrChannelFull):
		// 回复失败时会话已被移除
	case errors.Is(err, ErrMissingUserID):
		_ = m.reply(ctx, s, newErrorFrame("userId is required", msg.Type))
	case errors.Is(err, ErrInvalidMessage):
		_ = m.reply(ctx, s, newErrorFrame("Invalid message format", msg.Type))
	default:
		m.log.WarnContext(ctx, "message handler failed",
			zap.String("session_id", s.ID),
			zap.String("type", msg.Type),
			zap.Error(err),
		)
		_ = m.reply(ctx, s, newErrorFrame(err.Error(), msg.Type))
	}
}

// reply 仅向当前会话回复，发送失败时移除会话
func (m *Manager) reply(ctx context.Context, s *Session, v any) error {
	if err := s.SendJSON(v); err != nil {
		m.prune(ctx, s, err)
		return err
	}
	return nil
}

// handleAuth 记录客户端声明的 userId，不做凭证校验
func (m *Manager) handleAuth(ctx context.Context, s *Session, msg *Message) error {
	userID, ok := msg.AuthUserID()
	if !ok {
		return ErrMissingUserID
	}
	s.setUserID(userID)

	m.log.InfoContext(logger.WithUID(ctx, userID), "session authenticated", zap.String("session_id", s.ID))
	m.events.Publish(Event{Type: EventSessionAuthenticated, SessionID: s.ID, UserID: userID})

	return m.reply(ctx, s, AuthSuccessFrame{Type: TypeAuthSuccess, SessionID: s.ID})
}

// handlePing 心跳，只回复当前会话
func (m *Manager) handlePing(ctx context.Context, s *Session, _ *Message) error {
	return m.reply(ctx, s, PongFrame{Type: TypePong, Timestamp: nowMillis()})
}

// handleBroadcast 客户端发起的广播，发送者本身也会收到
func (m *Manager) handleBroadcast(ctx context.Context, s *Session, msg *Message) error {
	payload := msg.Body()
	if len(payload) == 0 {
		payload = nil
	}
	_, err := m.dispatcher.Broadcast(ctx, BroadcastFrame{
		Type:      TypeBroadcast,
		Sender:    s.ID,
		Payload:   payload,
		Timestamp: nowMillis(),
	}, nil, WithOrigin(OriginSession), WithSender(s.ID))
	return err
}

// Handle 注册自定义消息类型
func (m *Manager) Handle(msgType string, handler Handler) error {
	return m.router.Register(msgType, handler)
}

// Use 添加消息中间件
func (m *Manager) Use(middleware ...MiddlewareFunc) {
	m.router.Use(middleware...)
}

// Subscribe 订阅系统事件
func (m *Manager) Subscribe(eventType EventType, handler EventHandler) {
	m.events.Subscribe(eventType, handler)
}

// Broadcast 直接广播任意可序列化消息
func (m *Manager) Broadcast(ctx context.Context, msg any, target *string, opts ...BroadcastOption) (int, error) {
	return m.dispatcher.Broadcast(ctx, msg, target, opts...)
}

// BroadcastRequest 管理端广播请求
type BroadcastRequest struct {
	Type         string          `json:"type"`
	Payload      json.RawMessage `json:"payload"`
	TargetUserID *string         `json:"targetUserId,omitempty"`
}

// BroadcastResult 管理端广播结果
type BroadcastResult struct {
	Success   bool `json:"success"`
	SentCount int  `json:"sentCount"`
}

// Publish 管理端广播：附加服务端时间戳后分发
// 空 targetUserId 视为未指定
func (m *Manager) Publish(ctx context.Context, req BroadcastRequest, opts ...BroadcastOption) (*BroadcastResult, error) {
	if req.Type == "" {
		return nil, ErrInvalidBroadcast
	}

	target := req.TargetUserID
	if target != nil && *target == "" {
		target = nil
	}

	sent, err := m.dispatcher.Broadcast(ctx, NotificationFrame{
		Type:      req.Type,
		Payload:   req.Payload,
		Timestamp: nowMillis(),
	}, target, opts...)
	if err != nil {
		return nil, fmt.Errorf("broadcast %q: %w", req.Type, err)
	}

	return &BroadcastResult{Success: true, SentCount: sent}, nil
}

// Session 获取会话
func (m *Manager) Session(sessionID string) (*Session, bool) {
	return m.registry.Get(sessionID)
}

// SessionCount 当前会话数
func (m *Manager) SessionCount() int {
	return m.registry.Size()
}

// CloseSession 管理端断开指定会话
func (m *Manager) CloseSession(sessionID string) error {
	if m.isClosed() {
		return ErrManagerClosed
	}

	s, ok := m.registry.Get(sessionID)
	if !ok {
		return ErrSessionNotFound
	}
	m.remove(s, "closed_by_admin", nil)
	return nil
}

// Shutdown 优雅关闭：关闭所有会话并等待连接协程退出
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	m.cancel()

	for _, s := range m.registry.All() {
		m.remove(s, "shutdown", nil)
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}

	m.events.Close()
	return err
}

// isClosed 是否已关闭
func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
