package engine

import (
	"errors"
	"sync"
)

// ErrPoolStopped is returned when submitting to a stopped pool
var ErrPoolStopped = errors.New("worker pool stopped")

// WorkerPool manages a pool of workers for batch decision evaluation
type WorkerPool struct {
	workers int
	tasks   chan func()
	started bool
	mu      sync.RWMutex
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = 16
	}

	pool := &WorkerPool{
		workers: workers,
		tasks:   make(chan func(), workers*10),
	}

	pool.start()
	return pool
}

func (p *WorkerPool) start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return
	}

	for i := 0; i < p.workers; i++ {
		go p.worker()
	}
	p.started = true
}

func (p *WorkerPool) worker() {
	for task := range p.tasks {
		task()
	}
}

// Submit queues a task, blocking while the queue is full
func (p *WorkerPool) Submit(task func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.started {
		return ErrPoolStopped
	}
	p.tasks <- task
	return nil
}

// Stop closes the queue; queued tasks still run
func (p *WorkerPool) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}

	close(p.tasks)
	p.started = false
}

// Workers returns the number of workers
func (p *WorkerPool) Workers() int {
	return p.workers
}
