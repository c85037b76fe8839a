package worker

import (
	"context"
	"log"
	"sync"
)

// Job is one unit of pipeline work. It runs on a worker goroutine.
type Job func(ctx context.Context)

// Pool is a fixed-size worker pool with a 1-slot input queue (strict back-pressure).
type Pool struct {
	mu     sync.Mutex
	closed bool
	jobs   chan queued
	wg     sync.WaitGroup
}

type queued struct {
	ctx context.Context
	run Job
}

// New creates a worker pool with size workers (at least one). Queue is 1 slot.
func New(size int) *Pool {
	if size <= 0 {
		size = 1
	}
	p := &Pool{jobs: make(chan queued, 1)}
	p.start(size)
	return p
}

func (p *Pool) start(n int) {
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for j := range p.jobs {
				runJob(j)
			}
		}()
	}
}

func runJob(j queued) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("PANIC in worker job: %v", r)
		}
	}()
	if err := j.ctx.Err(); err != nil {
		log.Printf("Worker: skipping job, context done: %v", err)
		return
	}
	j.run(j.ctx)
}

// Submit enqueues a job if the single-slot queue is free. Returns false if
// dropped or if the pool is closed.
func (p *Pool) Submit(ctx context.Context, run Job) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || run == nil {
		return false
	}
	select {
	case p.jobs <- queued{ctx: ctx, run: run}:
		return true
	default:
		return false
	}
}

// Close stops the pool after draining current work.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()
	p.wg.Wait()
}
