package worker

import (
	"context"
	"log/slog"
	"sync"
)

// Handler processes a single task.
type Handler[T any, R any] func(ctx context.Context, task T) R

// Pool is a generic worker pool: a fixed number of workers pull tasks
// from a shared queue and publish one result per task.
type Pool[T any, R any] struct {
	workerCount int
	poolName    string // For logging
	handler     Handler[T, R]

	jobChan    chan T
	resultChan chan R
}

// NewPool creates a new generic worker pool
func NewPool[T any, R any](workerCount int, poolName string, bufferSize int, handler Handler[T, R]) *Pool[T, R] {
	if workerCount < 1 {
		workerCount = 1
	}
	return &Pool[T, R]{
		workerCount: workerCount,
		poolName:    poolName,
		handler:     handler,
		jobChan:     make(chan T, bufferSize),
		resultChan:  make(chan R, bufferSize),
	}
}

// Start begins the worker pool (call once at startup)
func (p *Pool[T, R]) Start(ctx context.Context) {
	slog.Info("Starting workers", "component", p.poolName, "count", p.workerCount)

	var wg sync.WaitGroup
	for i := 0; i < p.workerCount; i++ {
		wg.Add(1)
		go p.worker(ctx, i, &wg)
	}

	// Wait for all workers to finish when context is done
	go func() {
		wg.Wait()
		close(p.resultChan)
		slog.Info("All workers stopped", "component", p.poolName)
	}()
}

// Submit queues a task. It blocks while the queue is full and gives up when ctx is done.
func (p *Pool[T, R]) Submit(ctx context.Context, task T) bool {
	select {
	case p.jobChan <- task:
		return true
	case <-ctx.Done():
		return false
	}
}

// Results returns the channel for receiving results
func (p *Pool[T, R]) Results() <-chan R {
	return p.resultChan
}

// worker processes jobs continuously
func (p *Pool[T, R]) worker(ctx context.Context, id int, wg *sync.WaitGroup) {
	defer wg.Done()
	slog.Debug("Worker started", "component", p.poolName, "worker", id)

	for {
		select {
		case <-ctx.Done():
			slog.Debug("Worker stopping", "component", p.poolName, "worker", id)
			return

		case task, ok := <-p.jobChan:
			if !ok {
				slog.Debug("Job channel closed", "component", p.poolName, "worker", id)
				return
			}

			result := p.handler(ctx, task)
			select {
			case p.resultChan <- result:
			case <-ctx.Done():
				return
			}
		}
	}
}
