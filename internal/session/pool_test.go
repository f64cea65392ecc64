package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu  sync.Mutex
	ran []string
}

func (r *recorder) task(name string) func() {
	return func() {
		r.mu.Lock()
		r.ran = append(r.ran, name)
		r.mu.Unlock()
	}
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ran...)
}

// blocker occupies a worker until released.
func blocker(started chan<- struct{}, release <-chan struct{}) func() {
	return func() {
		close(started)
		<-release
	}
}

func TestPoolFIFOAndJoinDrains(t *testing.T) {
	p := NewPool(1, 0, DropBlock)
	var r recorder
	for _, n := range []string{"a", "b", "c", "d"} {
		require.True(t, p.Submit(r.task(n)))
	}
	p.Join()

	assert.Equal(t, []string{"a", "b", "c", "d"}, r.names())
	assert.Equal(t, 0, p.Pending())
	assert.False(t, p.Submit(r.task("late")))
}

func TestPoolManyWorkers(t *testing.T) {
	p := NewPool(8, 0, "")
	var mu sync.Mutex
	count := 0
	for i := 0; i < 1000; i++ {
		p.Submit(func() {
			mu.Lock()
			count++
			mu.Unlock()
		})
	}
	p.Join()
	assert.Equal(t, 1000, count)
}

func TestPoolDropHead(t *testing.T) {
	p := NewPool(1, 1, DropHead)
	var r recorder
	started, release := make(chan struct{}), make(chan struct{})

	require.True(t, p.Submit(blocker(started, release)))
	<-started
	require.True(t, p.Submit(r.task("old")))
	require.True(t, p.Submit(r.task("new")))

	close(release)
	p.Join()

	assert.Equal(t, []string{"new"}, r.names())
	assert.Equal(t, uint64(1), p.Dropped())
}

func TestPoolBlockWaitsForRoom(t *testing.T) {
	p := NewPool(1, 1, DropBlock)
	var r recorder
	started, release := make(chan struct{}), make(chan struct{})

	require.True(t, p.Submit(blocker(started, release)))
	<-started
	require.True(t, p.Submit(r.task("queued")))

	submitted := make(chan bool)
	go func() { submitted <- p.Submit(r.task("waiting")) }()

	select {
	case <-submitted:
		t.Fatal("submit returned while the queue was full")
	case <-time.After(30 * time.Millisecond):
	}

	close(release)
	assert.True(t, <-submitted)
	p.Join()
	assert.Equal(t, []string{"queued", "waiting"}, r.names())
	assert.Equal(t, uint64(0), p.Dropped())
}

func TestPoolRecoversPanics(t *testing.T) {
	p := NewPool(1, 0, DropBlock)
	var r recorder
	p.Submit(func() { panic("boom") })
	p.Submit(r.task("after"))
	p.Join()
	assert.Equal(t, []string{"after"}, r.names())
}

func TestParseDropPolicy(t *testing.T) {
	for in, want := range map[string]DropPolicy{"": DropBlock, "block": DropBlock, "head": DropHead} {
		got, err := ParseDropPolicy(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseDropPolicy("tail")
	assert.Error(t, err)
}
