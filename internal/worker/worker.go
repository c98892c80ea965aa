package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Task is a function that represents a background job
type Task func(ctx context.Context) error

// Submitter accepts best-effort background work.
type Submitter interface {
	Submit(name string, t Task)
}

type WorkerPool struct {
	taskQueue   chan namedTask
	wg          sync.WaitGroup
	isClosing   atomic.Bool // thread-safe value
	taskTimeout time.Duration
	log         *zap.Logger
}

type namedTask struct {
	name string
	run  Task
}

const (
	queueSize          = 1000
	defaultTaskTimeout = 2 * time.Minute
)

func NewWorkerPool(size int, log *zap.Logger) *WorkerPool {
	if log == nil {
		log = zap.NewNop()
	}
	if size < 1 {
		size = 1
	}
	wp := &WorkerPool{
		taskQueue:   make(chan namedTask, queueSize),
		taskTimeout: defaultTaskTimeout,
		log:         log,
	}

	// Start the workers
	for range size {
		wp.wg.Add(1) // add to WaitGroup
		go wp.startWorker()
	}

	return wp
}

func (wp *WorkerPool) startWorker() {
	defer wp.wg.Done() // signal when worker finished
	for task := range wp.taskQueue {
		wp.run(task)
	}
}

func (wp *WorkerPool) run(task namedTask) {
	ctx, cancel := context.WithTimeout(context.Background(), wp.taskTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			wp.log.Error("worker task panicked", zap.String("task", task.name), zap.Any("panic", r))
		}
	}()

	if err := task.run(ctx); err != nil {
		wp.log.Warn("worker task failed", zap.String("task", task.name), zap.Error(err))
	}
}

func (wp *WorkerPool) Submit(name string, t Task) {
	if wp.isClosing.Load() {
		wp.log.Warn("task submitted during shutdown, dropping", zap.String("task", name))
		return
	}
	select {
	case wp.taskQueue <- namedTask{name: name, run: t}: // send task to worker pool
	default:
		wp.log.Warn("task queue full, dropping task", zap.String("task", name))
	}
}

// Shutdown closes the queue and waits for workers to finish
func (wp *WorkerPool) Shutdown() {
	if wp.isClosing.Swap(true) {
		return
	}
	close(wp.taskQueue) // Stop accepting new tasks
	wp.wg.Wait()        // Wait for all active workers to finish tasks
}

// Inline runs tasks synchronously on the caller's goroutine. Used in tests and
// when no pool is configured.
type Inline struct{}

func (Inline) Submit(_ string, t Task) {
	_ = t(context.Background())
}
