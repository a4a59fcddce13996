package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestServer 启动挂载升级接口的测试服务器
func newTestServer(t *testing.T, opts ...Option) (*Manager, string) {
	t.Helper()
	m := newTestManager(t, opts...)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = m.HandleUpgrade(w, r)
	}))
	t.Cleanup(srv.Close)

	return m, "ws" + strings.TrimPrefix(srv.URL, "http")
}

// dial 建立客户端连接
func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// readFrame 读取一帧 JSON
func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg map[string]any
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

// TestWebSocketScenario 测试完整会话流程
func TestWebSocketScenario(t *testing.T) {
	m, url := newTestServer(t)
	conn := dial(t, url)

	connected := readFrame(t, conn)
	assert.Equal(t, "connected", connected["type"])
	sessionID, _ := connected["sessionId"].(string)
	require.NotEmpty(t, sessionID)
	assert.IsType(t, float64(0), connected["timestamp"])

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "ping"}))
	pong := readFrame(t, conn)
	assert.Equal(t, "pong", pong["type"])
	assert.IsType(t, float64(0), pong["timestamp"])

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "auth", "userId": "bob"}))
	assert.Equal(t, map[string]any{"type": "auth_success", "sessionId": sessionID}, readFrame(t, conn))

	res, err := m.Publish(context.Background(), BroadcastRequest{
		Type:         "notify",
		Payload:      json.RawMessage(`{"msg":"hi"}`),
		TargetUserID: strPtr("bob"),
	})
	require.NoError(t, err)
	assert.Equal(t, &BroadcastResult{Success: true, SentCount: 1}, res)

	notify := readFrame(t, conn)
	assert.Equal(t, "notify", notify["type"])
	assert.Equal(t, map[string]any{"msg": "hi"}, notify["payload"])
	assert.IsType(t, float64(0), notify["timestamp"])

	// 无效帧不会断开连接
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{oops")))
	assert.Equal(t, map[string]any{"type": "error", "error": "Invalid message format"}, readFrame(t, conn))
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "ping"}))
	assert.Equal(t, "pong", readFrame(t, conn)["type"])
}

// TestWebSocketBroadcastToAnonymous 测试两个未认证连接都收到全局广播
func TestWebSocketBroadcastToAnonymous(t *testing.T) {
	m, url := newTestServer(t)
	a := dial(t, url)
	b := dial(t, url)
	readFrame(t, a)
	readFrame(t, b)

	res, err := m.Publish(context.Background(), BroadcastRequest{Type: "menu.updated", Payload: json.RawMessage(`[1,2]`)})
	require.NoError(t, err)
	assert.Equal(t, 2, res.SentCount)

	for _, conn := range []*websocket.Conn{a, b} {
		got := readFrame(t, conn)
		assert.Equal(t, "menu.updated", got["type"])
		assert.Equal(t, []any{float64(1), float64(2)}, got["payload"])
	}
}

// TestWebSocketCloseRemovesSession 测试客户端断开后会话被移除
func TestWebSocketCloseRemovesSession(t *testing.T) {
	m, url := newTestServer(t)
	a := dial(t, url)
	b := dial(t, url)
	readFrame(t, a)
	readFrame(t, b)
	require.Equal(t, 2, m.SessionCount())

	require.NoError(t, a.Close())

	assert.Eventually(t, func() bool {
		return m.Status().ActiveSessions == 1
	}, 2*time.Second, 10*time.Millisecond)
}

// TestWebSocketSlowClientPruned 测试不读取的客户端被移除，且广播不等待其写超时
func TestWebSocketSlowClientPruned(t *testing.T) {
	m, url := newTestServer(t, WithSendQueueSize(2), WithWriteWait(2*time.Second))
	dial(t, url)
	require.Eventually(t, func() bool { return m.SessionCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	payload := json.RawMessage(`"` + strings.Repeat("x", 1<<20) + `"`)
	for i := 0; i < 64 && m.SessionCount() > 0; i++ {
		start := time.Now()
		_, err := m.Publish(context.Background(), BroadcastRequest{Type: "bulk", Payload: payload})
		require.NoError(t, err)
		assert.Less(t, time.Since(start), time.Second, "iteration %d", i)
	}
	assert.Equal(t, 0, m.SessionCount())
}

// TestUpgradeRequired 测试非升级请求返回 426 且不创建会话
func TestUpgradeRequired(t *testing.T) {
	m := newTestManager(t)

	rec := httptest.NewRecorder()
	err := m.HandleUpgrade(rec, httptest.NewRequest(http.MethodGet, "/realtime/ws", nil))

	assert.ErrorIs(t, err, ErrUpgradeRequired)
	assert.Equal(t, http.StatusUpgradeRequired, rec.Code)
	assert.Contains(t, rec.Body.String(), "Expected Upgrade: websocket")
	assert.Equal(t, 0, m.SessionCount())
}

// TestUpgradeTooManyConnections 测试连接数超限返回 503
func TestUpgradeTooManyConnections(t *testing.T) {
	m, url := newTestServer(t, WithMaxConnections(1))
	readFrame(t, dial(t, url))

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, 1, m.SessionCount())
}

// TestUpgradeOriginCheck 测试 Origin 白名单
func TestUpgradeOriginCheck(t *testing.T) {
	m, err := NewManager(WithCheckOriginWhitelist([]string{"https://pos.example.com"}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = m.HandleUpgrade(w, r)
	}))
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://evil.example.com"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://pos.example.com"}})
	require.NoError(t, err)
	resp.Body.Close()
	defer conn.Close()
	assert.Equal(t, "connected", readFrame(t, conn)["type"])
}

// TestUpgradeWithoutOrigin 测试默认配置接受不带 Origin 的终端
func TestUpgradeWithoutOrigin(t *testing.T) {
	m, err := NewManager()
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = m.HandleUpgrade(w, r)
	}))
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	conn := dial(t, url)
	assert.Equal(t, "connected", readFrame(t, conn)["type"])

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://evil.example.com"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

// TestDefaultOriginCheck 测试默认同源策略
func TestDefaultOriginCheck(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://pos.local/realtime/ws", nil)
	assert.True(t, defaultCheckOrigin(req), "空 Origin")

	req.Header.Set("Origin", "http://pos.local")
	assert.True(t, defaultCheckOrigin(req))

	req.Header.Set("Origin", "http://other.local")
	assert.False(t, defaultCheckOrigin(req))
}
