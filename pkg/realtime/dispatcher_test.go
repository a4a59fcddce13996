package realtime

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestBroadcastConcurrentWorkers 测试并发发送时的计数与移除
func TestBroadcastConcurrentWorkers(t *testing.T) {
	m := newTestManager(t, WithBroadcastWorkers(8))

	var failing []*Session
	conns := make(map[string]*fakeConn)
	for i := range 60 {
		s, conn := attach(t, m)
		conns[s.ID] = conn
		if i%5 == 0 {
			conn.failWith(fmt.Errorf("conn %d reset", i))
			failing = append(failing, s)
		}
	}

	sent, err := m.Broadcast(context.Background(), NotificationFrame{Type: "price.changed"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 60-len(failing), sent)
	assert.Equal(t, 60-len(failing), m.SessionCount())

	for _, s := range failing {
		_, ok := m.Session(s.ID)
		assert.False(t, ok)
		assert.True(t, conns[s.ID].isClosed())
	}
}

// TestBroadcastMarshalError 测试无法序列化的消息
func TestBroadcastMarshalError(t *testing.T) {
	m := newTestManager(t)
	_, conn := attach(t, m)

	sent, err := m.Broadcast(context.Background(), map[string]any{"bad": make(chan int)}, nil)
	assert.Error(t, err)
	assert.Equal(t, 0, sent)
	assert.Equal(t, 1, conn.count())
	assert.Equal(t, 1, m.SessionCount())
}

// TestBroadcastAllFail 测试全部失败时仍返回成功结果
func TestBroadcastAllFail(t *testing.T) {
	m := newTestManager(t)
	for range 3 {
		_, conn := attach(t, m)
		conn.failWith(errors.New("closed"))
	}

	res, err := m.Publish(context.Background(), BroadcastRequest{Type: "x"})
	require.NoError(t, err)
	assert.Equal(t, &BroadcastResult{Success: true, SentCount: 0}, res)
	assert.Equal(t, 0, m.SessionCount())
}

// TestSessionMatches 测试目标匹配
func TestSessionMatches(t *testing.T) {
	anon := newSession("a", &fakeConn{})
	bob := newSession("b", &fakeConn{})
	bob.setUserID("bob")

	assert.True(t, anon.matches(nil))
	assert.True(t, bob.matches(nil))
	assert.False(t, anon.matches(strPtr("bob")))
	assert.False(t, anon.matches(strPtr("")))
	assert.True(t, bob.matches(strPtr("bob")))
	assert.False(t, bob.matches(strPtr("Bob")))
}
