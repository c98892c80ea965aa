package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestWorkerPool_RunsSubmittedTasks(t *testing.T) {
	wp := NewWorkerPool(3, zap.NewNop())

	var count atomic.Int32
	for range 10 {
		wp.Submit("count", func(ctx context.Context) error {
			count.Add(1)
			return nil
		})
	}
	wp.Shutdown()

	assert.Equal(t, int32(10), count.Load())
}

func TestWorkerPool_FailingAndPanickingTasksDoNotKillWorkers(t *testing.T) {
	wp := NewWorkerPool(1, zap.NewNop())

	var ran atomic.Bool
	wp.Submit("fails", func(ctx context.Context) error { return errors.New("boom") })
	wp.Submit("panics", func(ctx context.Context) error { panic("bad") })
	wp.Submit("ok", func(ctx context.Context) error {
		ran.Store(true)
		return nil
	})
	wp.Shutdown()

	assert.True(t, ran.Load())
}

func TestWorkerPool_DropsAfterShutdown(t *testing.T) {
	wp := NewWorkerPool(1, nil)
	wp.Shutdown()

	var ran atomic.Bool
	wp.Submit("late", func(ctx context.Context) error {
		ran.Store(true)
		return nil
	})
	// second shutdown is a no-op
	wp.Shutdown()

	assert.False(t, ran.Load())
}

func TestInline_RunsImmediately(t *testing.T) {
	ran := false
	Inline{}.Submit("now", func(ctx context.Context) error {
		ran = true
		return nil
	})
	assert.True(t, ran)
}
