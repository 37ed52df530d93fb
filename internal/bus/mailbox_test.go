package bus

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMailbox_FIFO(t *testing.T) {
	mb := New[int](16)

	for i := range 10 {
		require.True(t, mb.Put(i))
	}
	mb.Close()

	var got []int
	for v := range mb.C() {
		got = append(got, v)
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, got)
}

func TestMailbox_OverflowDropsSubscriber(t *testing.T) {
	mb := New[int](2)

	require.True(t, mb.Put(1))
	require.True(t, mb.Put(2))
	assert.False(t, mb.Put(3), "overflow must not block, it drops the subscriber")
	assert.True(t, mb.Closed())

	// Elements accepted before the overflow stay readable: the observed
	// sequence is a prefix of what the publisher produced.
	v, ok := <-mb.C()
	require.True(t, ok)
	assert.Equal(t, 1, v)
	v, ok = <-mb.C()
	require.True(t, ok)
	assert.Equal(t, 2, v)
	_, ok = <-mb.C()
	assert.False(t, ok)
}

func TestMailbox_PutAfterCloseFails(t *testing.T) {
	mb := New[int](4)
	mb.Close()
	assert.False(t, mb.Put(1))
	mb.Close() // idempotent
}

func TestMailbox_ConcurrentPutSingleProducerOrder(t *testing.T) {
	// One producer, one consumer: the consumer must see a
	// prefix-preserving subsequence (here: the exact sequence).
	mb := New[int](1024)
	const n = 1000

	var wg sync.WaitGroup
	wg.Go(func() {
		for i := range n {
			mb.Put(i)
		}
		mb.Close()
	})

	prev := -1
	for v := range mb.C() {
		require.Greater(t, v, prev)
		prev = v
	}
	wg.Wait()
	assert.Equal(t, n-1, prev)
}

func TestMailbox_ConcurrentPutIsSafe(t *testing.T) {
	mb := New[int](8)

	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() {
			for i := range 100 {
				mb.Put(i)
			}
		})
	}
	wg.Go(mb.Close)
	wg.Wait()

	for range mb.C() {
	}
}
