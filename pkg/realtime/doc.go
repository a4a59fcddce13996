// Package realtime 实现 POS 终端的实时会话与广播核心。
//
// # 组件
//
//   - Registry：进程内会话表，sessionID -> *Session，All 返回快照序列
//   - Manager：单连接生命周期（升级、connected、auth、ping、broadcast、关闭）
//   - Dispatcher：按 userId 过滤的广播，发送失败的会话会被立即移除
//   - EventBus：异步事件（连接、认证、断开、广播完成、无效消息）
//
// # 基本用法
//
//	manager, err := realtime.NewManager(
//	    realtime.WithMaxConnections(5000),
//	    realtime.WithAllowAllOrigins(),
//	    realtime.WithLogger(log),
//	)
//	if err != nil {
//	    return err
//	}
//
//	r.GET("/realtime/ws", func(c *posrt.Context) {
//	    _ = c.Upgrade(manager.HandleUpgrade)
//	})
//
//	// 订单系统通知某个收银员
//	uid := "cashier-7"
//	result, err := manager.Publish(ctx, realtime.BroadcastRequest{
//	    Type:         "order.created",
//	    Payload:      json.RawMessage(`{"orderId":42}`),
//	    TargetUserID: &uid,
//	})
//
// # 自定义消息
//
//	type StockQuery struct {
//	    SKU string `json:"sku"`
//	}
//
//	realtime.Handle(manager, "stock.query",
//	    func(ctx context.Context, s *realtime.Session, req *StockQuery) (any, error) {
//	        return map[string]any{"type": "stock.result", "sku": req.SKU}, nil
//	    })
//
// # 协议
//
// 入站帧为 JSON 对象 {type, ...}。auth 中的 userId 由客户端声明，不做校验。
// 无法解析的帧回复 {type:"error", error:"Invalid message format"}，
// 未知类型回复 {type:"error", error:"Unknown message type: <t>", messageType:<t>}，
// 两者都不会关闭连接。时间戳均为 Unix 毫秒。
package realtime
