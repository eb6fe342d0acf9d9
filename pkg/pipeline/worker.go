package pipeline

import (
	"context"
	"sync"

	"speech-affect/pkg/models"
)

// task pairs a job with the context of the request that submitted it.
type task struct {
	ctx context.Context
	job *models.Job
}

type WorkerPool struct {
	workers    int
	taskQueue  chan *task
	workerFunc func(context.Context, *task)
	wg         sync.WaitGroup
}

func NewWorkerPool(workers, queueSize int, workerFunc func(context.Context, *task)) *WorkerPool {
	return &WorkerPool{
		workers:    workers,
		taskQueue:  make(chan *task, queueSize),
		workerFunc: workerFunc,
	}
}

func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.workers; i++ {
		wp.wg.Add(1)
		go wp.worker(ctx)
	}
}

// TrySubmit enqueues without blocking and reports whether there was room.
func (wp *WorkerPool) TrySubmit(t *task) bool {
	select {
	case wp.taskQueue <- t:
		return true
	default:
		return false
	}
}

// Wait blocks until every worker has exited. Workers exit when the context
// passed to Start is cancelled.
func (wp *WorkerPool) Wait() {
	wp.wg.Wait()
}

func (wp *WorkerPool) worker(ctx context.Context) {
	defer wp.wg.Done()

	for {
		select {
		case t := <-wp.taskQueue:
			wp.workerFunc(ctx, t)

		case <-ctx.Done():
			return
		}
	}
}
