package session

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"firestige.xyz/netanalyzer/internal/metrics"
)

// DropPolicy selects what Submit does when a bounded queue is full.
type DropPolicy string

const (
	// DropBlock makes the submitter wait for room.
	DropBlock DropPolicy = "block"
	// DropHead discards the oldest queued task.
	DropHead DropPolicy = "head"
)

// ParseDropPolicy validates a policy name; empty means block.
func ParseDropPolicy(name string) (DropPolicy, error) {
	switch DropPolicy(name) {
	case "", DropBlock:
		return DropBlock, nil
	case DropHead:
		return DropHead, nil
	default:
		return "", fmt.Errorf("unknown drop policy %q (must be block/head)", name)
	}
}

// Pool runs tasks on a fixed set of workers in FIFO order. With capacity 0
// the queue is unbounded.
type Pool struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond
	queue    []func()
	capacity int
	policy   DropPolicy
	closed   bool

	wg      sync.WaitGroup
	dropped atomic.Uint64
}

// NewPool starts workers goroutines.
func NewPool(workers, capacity int, policy DropPolicy) *Pool {
	if workers < 1 {
		workers = 1
	}
	if policy == "" {
		policy = DropBlock
	}
	p := &Pool{capacity: capacity, policy: policy}
	p.notEmpty = sync.NewCond(&p.mu)
	p.notFull = sync.NewCond(&p.mu)

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker(i)
	}
	return p
}

// Submit queues task. It returns false once the pool is joined.
func (p *Pool) Submit(task func()) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return false
	}
	if p.capacity > 0 {
		switch p.policy {
		case DropHead:
			if len(p.queue) >= p.capacity {
				p.queue[0] = nil
				p.queue = p.queue[1:]
				p.dropped.Add(1)
				metrics.FramesDiscardedTotal.WithLabelValues("queue_full").Inc()
			}
		default:
			for len(p.queue) >= p.capacity && !p.closed {
				p.notFull.Wait()
			}
			if p.closed {
				return false
			}
		}
	}

	p.queue = append(p.queue, task)
	metrics.WorkerQueueDepth.Set(float64(len(p.queue)))
	p.notEmpty.Signal()
	return true
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.notEmpty.Wait()
		}
		if len(p.queue) == 0 {
			p.mu.Unlock()
			return
		}
		task := p.queue[0]
		p.queue[0] = nil
		p.queue = p.queue[1:]
		metrics.WorkerQueueDepth.Set(float64(len(p.queue)))
		p.notFull.Signal()
		p.mu.Unlock()

		p.run(id, task)
	}
}

func (p *Pool) run(id int, task func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("worker task panicked", "worker", id, "panic", r)
		}
	}()
	task()
}

// Join stops accepting tasks and blocks until every queued task has run.
func (p *Pool) Join() {
	p.mu.Lock()
	p.closed = true
	p.notEmpty.Broadcast()
	p.notFull.Broadcast()
	p.mu.Unlock()

	p.wg.Wait()
}

// Pending returns the number of queued tasks.
func (p *Pool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Dropped returns the number of tasks discarded by DropHead.
func (p *Pool) Dropped() uint64 {
	return p.dropped.Load()
}
