package realtime

import (
	"context"
	"encoding/json"
	"sync"
)

// Handler 消息处理器
type Handler func(ctx context.Context, s *Session, msg *Message) error

// NextFunc 中间件下一步函数
type NextFunc func() error

// MiddlewareFunc 中间件函数
type MiddlewareFunc func(ctx context.Context, s *Session, msg *Message, next NextFunc) error

// MessageRouter 按 type 分发入站消息
type MessageRouter struct {
	handlers   map[string]Handler
	middleware []MiddlewareFunc
	mu         sync.RWMutex
}

// NewMessageRouter 创建路由器
func NewMessageRouter() *MessageRouter {
	return &MessageRouter{
		handlers: make(map[string]Handler),
	}
}

// Register 注册处理器
func (r *MessageRouter) Register(msgType string, handler Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[msgType]; exists {
		return ErrHandlerExists
	}
	r.handlers[msgType] = handler
	return nil
}

// Use 添加中间件
func (r *MessageRouter) Use(middleware ...MiddlewareFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middleware = append(r.middleware, middleware...)
}

// Route 路由消息，未注册的类型返回 ErrHandlerNotFound 且不经过中间件
func (r *MessageRouter) Route(ctx context.Context, s *Session, msg *Message) error {
	r.mu.RLock()
	handler, exists := r.handlers[msg.Type]
	middleware := r.middleware
	r.mu.RUnlock()

	if !exists {
		return ErrHandlerNotFound
	}
	return buildChain(handler, middleware)(ctx, s, msg)
}

// buildChain 从后向前构建中间件链
func buildChain(handler Handler, middleware []MiddlewareFunc) Handler {
	final := handler
	for i := len(middleware) - 1; i >= 0; i-- {
		mw, next := middleware[i], final
		final = func(ctx context.Context, s *Session, m *Message) error {
			return mw(ctx, s, m, func() error {
				return next(ctx, s, m)
			})
		}
	}
	return final
}

// HandlerFunc 泛型处理器函数，返回值非 nil 时作为回复帧发送给当前会话
type HandlerFunc[Req any] func(ctx context.Context, s *Session, req *Req) (any, error)

// Handle 注册泛型处理器，消息体（payload 或 data）解码为 Req
func Handle[Req any](m *Manager, msgType string, handler HandlerFunc[Req]) error {
	return m.Handle(msgType, func(ctx context.Context, s *Session, msg *Message) error {
		var req Req
		if body := msg.Body(); len(body) > 0 {
			if err := json.Unmarshal(body, &req); err != nil {
				return ErrInvalidMessage
			}
		}

		reply, err := handler(ctx, s, &req)
		if err != nil {
			return err
		}
		if reply == nil {
			return nil
		}
		return m.reply(ctx, s, reply)
	})
}
