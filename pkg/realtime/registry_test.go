package realtime

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRegistryAdd 测试添加与重复 ID
func TestRegistryAdd(t *testing.T) {
	r := NewRegistry(0)
	s := newSession("s1", &fakeConn{})

	require.NoError(t, r.Add("s1", s))
	assert.ErrorIs(t, r.Add("s1", newSession("s1", &fakeConn{})), ErrSessionExists)
	assert.Equal(t, 1, r.Size())

	got, ok := r.Get("s1")
	require.True(t, ok)
	assert.Same(t, s, got)

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

// TestRegistryRemoveIdempotent 测试重复移除
func TestRegistryRemoveIdempotent(t *testing.T) {
	r := NewRegistry(0)
	require.NoError(t, r.Add("s1", newSession("s1", &fakeConn{})))

	assert.True(t, r.Remove("s1"))
	assert.False(t, r.Remove("s1"))
	assert.False(t, r.Remove("never-added"))
	assert.Equal(t, 0, r.Size())
}

// TestRegistryLimit 测试容量限制
func TestRegistryLimit(t *testing.T) {
	r := NewRegistry(2)
	require.NoError(t, r.Add("a", newSession("a", &fakeConn{})))
	require.NoError(t, r.Add("b", newSession("b", &fakeConn{})))
	assert.ErrorIs(t, r.Add("c", newSession("c", &fakeConn{})), ErrTooManyConnections)

	r.Remove("a")
	assert.NoError(t, r.Add("c", newSession("c", &fakeConn{})))
}

// TestRegistryAllIsSnapshot 测试 All 返回快照且可重复遍历
func TestRegistryAllIsSnapshot(t *testing.T) {
	r := NewRegistry(0)
	for i := range 3 {
		id := fmt.Sprintf("s%d", i)
		require.NoError(t, r.Add(id, newSession(id, &fakeConn{})))
	}

	seq := r.All()
	seen := 0
	for id := range seq {
		// 遍历中修改注册表不影响快照
		r.Remove(id)
		require.NoError(t, r.Add("new-"+id, newSession("new-"+id, &fakeConn{})))
		seen++
	}
	assert.Equal(t, 3, seen)

	again := 0
	for range seq {
		again++
	}
	assert.Equal(t, 3, again, "同一快照可重复遍历")
	assert.Equal(t, 3, r.Size())
}

// TestRegistryRandomOps 测试任意增删序列下 ID 唯一且 Size 等于 All 的数量
func TestRegistryRandomOps(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	r := NewRegistry(0)
	model := map[string]bool{}

	for range 2000 {
		id := fmt.Sprintf("s%d", rng.IntN(50))
		if rng.IntN(2) == 0 {
			err := r.Add(id, newSession(id, &fakeConn{}))
			if model[id] {
				assert.ErrorIs(t, err, ErrSessionExists)
			} else {
				assert.NoError(t, err)
				model[id] = true
			}
		} else {
			assert.Equal(t, model[id], r.Remove(id))
			delete(model, id)
		}

		ids := map[string]int{}
		count := 0
		for id, s := range r.All() {
			ids[id]++
			assert.Equal(t, id, s.ID)
			count++
		}
		for id, n := range ids {
			require.Equal(t, 1, n, "duplicate session %s", id)
		}
		require.Equal(t, r.Size(), count)
		require.Equal(t, len(model), count)
	}
}
