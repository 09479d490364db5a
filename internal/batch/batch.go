// Package batch runs a per-item transform on a worker pool and delivers the
// results strictly in input order.
package batch

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// TransformFunc produces the result for item i. It runs on a worker
// goroutine and must not touch shared mutable state.
type TransformFunc[T, R any] func(ctx context.Context, i int, item T) (R, error)

// EmitFunc consumes the result for item i. Calls happen on a single
// goroutine, in increasing i.
type EmitFunc[R any] func(i int, result R) error

// WeightFunc estimates the memory held by an item between transform and
// emit, for the in-flight budget.
type WeightFunc[T any] func(item T) int64

// Processor configures how a batch is run. It holds no per-run state and
// may be shared.
type Processor struct {
	workers int // 0 = GOMAXPROCS, <2 = serial
	budget  int64
	logger  *slog.Logger
}

// Option configures a Processor.
type Option func(*Processor)

// WithWorkers sets the number of transform workers.
// Zero uses GOMAXPROCS. Values below 2 run serially on the caller's goroutine.
func WithWorkers(n int) Option {
	return func(p *Processor) {
		p.workers = n
	}
}

// WithBudget bounds the summed weight of items that have been dispatched but
// not yet emitted. A single item heavier than limit is admitted alone.
// A limit of 0 disables the budget.
func WithBudget(limit int64) Option {
	return func(p *Processor) {
		p.budget = limit
	}
}

// WithLogger sets the logger for pipeline diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

// NewProcessor creates a Processor.
func NewProcessor(opts ...Option) *Processor {
	p := &Processor{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// log returns the logger, falling back to a discard logger if nil.
func (p *Processor) log() *slog.Logger {
	if p.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return p.logger
}

func (p *Processor) workerCount(n int) int {
	w := p.workers
	if w == 0 {
		w = runtime.GOMAXPROCS(0)
	}
	if w > n {
		w = n
	}
	return w
}

// Run transforms every item and emits the results in order. weight may be
// nil when the processor has no budget.
//
// The first error from transform or emit cancels the remaining work and is
// returned; no result after the failing item is emitted.
func Run[T, R any](ctx context.Context, p *Processor, items []T, weight WeightFunc[T], transform TransformFunc[T, R], emit EmitFunc[R]) error {
	if len(items) == 0 {
		return ctx.Err()
	}
	workers := p.workerCount(len(items))
	p.log().Debug("batch run", "items", len(items), "workers", workers)
	if workers < 2 {
		return runSerial(ctx, items, transform, emit)
	}
	return runPipelined(ctx, p, items, weight, transform, emit, workers)
}

func runSerial[T, R any](ctx context.Context, items []T, transform TransformFunc[T, R], emit EmitFunc[R]) error {
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		r, err := transform(ctx, i, item)
		if err != nil {
			return err
		}
		if err := emit(i, r); err != nil {
			return err
		}
	}
	return nil
}

type task[T any] struct {
	index  int
	item   T
	weight int64
}

type result[R any] struct {
	index  int
	value  R
	weight int64
}

//nolint:gocognit // producer, workers and ordered collector share one errgroup
func runPipelined[T, R any](ctx context.Context, p *Processor, items []T, weight WeightFunc[T], transform TransformFunc[T, R], emit EmitFunc[R], workers int) error {
	var budget *semaphore.Weighted
	if p.budget > 0 && weight != nil {
		budget = semaphore.NewWeighted(p.budget)
	}
	release := func(w int64) {
		if budget != nil && w > 0 {
			budget.Release(w)
		}
	}

	taskCh := make(chan task[T])
	readyCh := make(chan result[R], workers)
	eg, ctx := errgroup.WithContext(ctx)

	// Producer: budget is acquired in input order, and the collector
	// releases in input order, so the oldest unemitted item always holds
	// its share and the pipeline cannot stall.
	eg.Go(func() error {
		defer close(taskCh)
		for i, item := range items {
			var w int64
			if budget != nil {
				w = min(max(weight(item), 0), p.budget)
				if err := budget.Acquire(ctx, w); err != nil {
					return err
				}
			}
			select {
			case taskCh <- task[T]{index: i, item: item, weight: w}:
			case <-ctx.Done():
				release(w)
				return ctx.Err()
			}
		}
		return nil
	})

	var workerWg sync.WaitGroup
	workerWg.Add(workers)
	for range workers {
		eg.Go(func() error {
			defer workerWg.Done()
			for t := range taskCh {
				if err := ctx.Err(); err != nil {
					return err
				}
				v, err := transform(ctx, t.index, t.item)
				if err != nil {
					return err
				}
				select {
				case readyCh <- result[R]{index: t.index, value: v, weight: t.weight}:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			return nil
		})
	}

	go func() {
		workerWg.Wait()
		close(readyCh)
	}()

	// Collector: emit strictly in index order.
	eg.Go(func() error {
		next := 0
		pending := make(map[int]result[R], workers)
		for next < len(items) {
			select {
			case res, ok := <-readyCh:
				if !ok {
					if err := ctx.Err(); err != nil {
						return err
					}
					return errors.New("batch: pipeline ended unexpectedly")
				}
				pending[res.index] = res
				for {
					res, ok := pending[next]
					if !ok {
						break
					}
					delete(pending, next)
					err := emit(res.index, res.value)
					release(res.weight)
					if err != nil {
						return err
					}
					next++
				}
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	return eg.Wait()
}
