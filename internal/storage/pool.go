package storage

import (
	"runtime"
	"sync"
)

// Pool runs independent jobs on a fixed set of workers. Bulk reference
// ingestion uses it to overlap scan downloads with hashing.
type Pool struct {
	jobs chan func()
	wg   sync.WaitGroup
	once sync.Once
}

func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	p := &Pool{jobs: make(chan func(), workers*2)}
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	for job := range p.jobs {
		job()
		p.wg.Done()
	}
}

// Submit enqueues a job. Submit must not be called after Close.
func (p *Pool) Submit(job func()) {
	p.wg.Add(1)
	p.jobs <- job
}

// Wait blocks until every submitted job has finished.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Close stops the workers once outstanding jobs drain.
func (p *Pool) Close() {
	p.once.Do(func() { close(p.jobs) })
}
