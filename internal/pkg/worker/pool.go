// Package worker provides goroutine pool management.
//
// Fan-out work goes through a Pool with context propagation rather than
// naked goroutines, so concurrency stays bounded by configuration.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"bizcore.io/governance/internal/pkg/logger"
)

// ErrPoolClosed is returned when fanning out on a released pool.
var ErrPoolClosed = errors.New("worker pool is closed")

// Pool wraps ants.Pool with context-aware fan-out.
type Pool struct {
	pool *ants.Pool
	name string
}

// Stats is a point-in-time view of a pool.
type Stats struct {
	Name    string `json:"name"`
	Running int    `json:"running"`
	Free    int    `json:"free"`
	Cap     int    `json:"cap"`
}

// NewPool creates a pool of at most size workers. Submission blocks while
// every worker is busy.
func NewPool(name string, size int) (*Pool, error) {
	panicHandler := func(p any) {
		logger.Error("Worker panic recovered",
			zap.String("pool", name),
			zap.Any("panic", p),
			zap.Stack("stack"),
		)
	}

	p, err := ants.NewPool(size,
		ants.WithPanicHandler(panicHandler),
		ants.WithNonblocking(false),
		ants.WithExpiryDuration(10*time.Second),
	)
	if err != nil {
		return nil, err
	}
	return &Pool{pool: p, name: name}, nil
}

// ForEach runs fn(ctx, i) for every i in [0, n) and waits for all started
// calls to return. A started item always runs fn, so fn must check ctx
// itself. When ctx ends or the pool closes before every item was
// submitted, the remaining items are not run and the error is returned.
func (p *Pool) ForEach(ctx context.Context, n int, fn func(ctx context.Context, i int)) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	for i := 0; i < n; i++ {
		i := i
		if err := ctx.Err(); err != nil {
			return err
		}
		wg.Add(1)
		err := p.pool.Submit(func() {
			defer wg.Done()
			fn(ctx, i)
		})
		if err != nil {
			wg.Done()
			if errors.Is(err, ants.ErrPoolClosed) {
				return ErrPoolClosed
			}
			return err
		}
	}
	return nil
}

// Stats reports current pool usage.
func (p *Pool) Stats() Stats {
	return Stats{
		Name:    p.name,
		Running: p.pool.Running(),
		Free:    p.pool.Free(),
		Cap:     p.pool.Cap(),
	}
}

// Shutdown releases the pool, waiting up to timeout for running tasks.
func (p *Pool) Shutdown(timeout time.Duration) {
	if err := p.pool.ReleaseTimeout(timeout); err != nil {
		logger.Warn("Worker pool shutdown timeout", zap.String("pool", p.name), zap.Error(err))
	}
}
