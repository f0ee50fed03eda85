package channel

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannel_PutPoll(t *testing.T) {
	c := New[string]()

	ok := c.Put("a")
	require.True(t, ok, "put should succeed")

	v, ok, err := c.Poll()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a", v)
}

func TestChannel_FIFO(t *testing.T) {
	c := New[int]()
	for i := 1; i <= 3; i++ {
		c.Put(i)
	}

	for want := 1; want <= 3; want++ {
		v, ok, err := c.Poll()
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, want, v)
	}
}

func TestChannel_Poll_Empty(t *testing.T) {
	c := New[int]()

	_, ok, err := c.Poll()
	assert.False(t, ok)
	assert.NoError(t, err, "empty open channel is not an error")
}

func TestChannel_Close_Idempotent(t *testing.T) {
	c := New[int]()
	var hooks atomic.Int32
	c.onClose = func() { hooks.Add(1) }

	c.Close()
	c.Close()

	assert.True(t, c.Closed())
	assert.Equal(t, int32(1), hooks.Load())
}

func TestChannel_Close_DrainsThenReportsClosed(t *testing.T) {
	c := New[int]()
	c.Put(1)
	c.Close()

	v, ok, err := c.Poll()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok, err = c.Poll()
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrClosed)
	assert.True(t, IsClosed(err))
}

func TestChannel_Put_AfterClose(t *testing.T) {
	c := New[int]()
	c.Close()

	ok := c.Put(1)
	assert.False(t, ok, "put after close should be dropped")
	assert.Equal(t, 0, c.Len())
}

func TestChannel_Watch_FiresOnPut(t *testing.T) {
	c := New[int]()
	var fired atomic.Int32
	c.Watch(func() { fired.Add(1) })

	assert.Equal(t, int32(0), fired.Load())
	c.Put(1)
	assert.Equal(t, int32(1), fired.Load())

	c.Put(2)
	assert.Equal(t, int32(1), fired.Load(), "watchers are one-shot")
}

func TestChannel_Watch_FiresOnClose(t *testing.T) {
	c := New[int]()
	var fired atomic.Int32
	for i := 0; i < 3; i++ {
		c.Watch(func() { fired.Add(1) })
	}

	c.Close()
	assert.Equal(t, int32(3), fired.Load(), "close wakes every pending watcher")
}

func TestChannel_Watch_ImmediateWhenReady(t *testing.T) {
	c := New[int]()
	c.Put(1)

	fired := false
	c.Watch(func() { fired = true })
	assert.True(t, fired)

	closed := New[int]()
	closed.Close()
	fired = false
	closed.Watch(func() { fired = true })
	assert.True(t, fired)
}

func TestChannel_Watch_Stop(t *testing.T) {
	c := New[int]()
	fired := false
	stop := c.Watch(func() { fired = true })
	stop()

	c.Put(1)
	assert.False(t, fired)
}

func TestChannel_Watch_RegistrationOrder(t *testing.T) {
	c := New[int]()
	var order []int
	for i := 0; i < 5; i++ {
		c.Watch(func() { order = append(order, i) })
	}

	c.Put(1)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestChannel_ConcurrentPut(t *testing.T) {
	c := New[int]()
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				c.Put(i)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 800, c.Len())
}

func TestChannel_PutRacingClose(t *testing.T) {
	c := New[int]()
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			c.Put(i)
		}
	}()
	go func() {
		defer wg.Done()
		c.Close()
	}()
	wg.Wait()

	// Whatever made it in before close is still in order.
	prev := -1
	for {
		v, ok, err := c.Poll()
		if err != nil {
			assert.ErrorIs(t, err, ErrClosed)
			break
		}
		require.True(t, ok)
		assert.Greater(t, v, prev)
		prev = v
	}
}
