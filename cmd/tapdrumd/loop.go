package main

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// errLoopStopped is returned by Spawn when the loop is not running.
var errLoopStopped = errors.New("event loop is not running")

// EventLoop composes the daemon's tasks:
//   - repeating tasks run on a fixed period (Every)
//   - long-lived services run until shutdown (Go)
//   - one-shot tasks are spawned while running (Spawn), e.g. playback sessions
//
// A service returning an error stops the whole loop.
type EventLoop struct {
	logger *slog.Logger

	tasks []loopTask

	mu      sync.Mutex
	ctx     context.Context // set while running
	stopped bool
	spawned sync.WaitGroup
}

type loopTask struct {
	name   string
	period time.Duration // zero for services
	tick   func(ctx context.Context)
	run    func(ctx context.Context) error
}

func NewEventLoop(logger *slog.Logger) *EventLoop {
	return &EventLoop{logger: logger}
}

// Every registers fn to run once per period. Must be called before Run.
func (l *EventLoop) Every(name string, period time.Duration, fn func(ctx context.Context)) {
	if period <= 0 {
		period = time.Duration(defaultTapPollMS) * time.Millisecond
	}
	l.tasks = append(l.tasks, loopTask{name: name, period: period, tick: fn})
}

// Go registers a long-lived service. Must be called before Run.
func (l *EventLoop) Go(name string, fn func(ctx context.Context) error) {
	l.tasks = append(l.tasks, loopTask{name: name, run: fn})
}

// Spawn starts fn on its own goroutine with the loop context.
// Run waits for spawned tasks before returning.
func (l *EventLoop) Spawn(name string, fn func(ctx context.Context)) error {
	l.mu.Lock()
	if l.ctx == nil || l.stopped {
		l.mu.Unlock()
		return errLoopStopped
	}
	ctx := l.ctx
	l.spawned.Add(1)
	l.mu.Unlock()

	go func() {
		defer l.spawned.Done()
		l.logger.Debug("task spawned", "task", name)
		fn(ctx)
		l.logger.Debug("task finished", "task", name)
	}()
	return nil
}

// Run starts every registered task and blocks until ctx ends or a service fails.
func (l *EventLoop) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	l.mu.Lock()
	l.ctx = gctx
	l.mu.Unlock()

	for _, t := range l.tasks {
		t := t
		if t.run != nil {
			g.Go(func() error {
				err := t.run(gctx)
				if err != nil && gctx.Err() == nil {
					l.logger.Error("service stopped", "task", t.name, "error", err)
				}
				return err
			})
			continue
		}
		g.Go(func() error {
			runEvery(gctx, t.period, t.tick)
			return nil
		})
	}
	l.logger.Info("event loop running", "tasks", len(l.tasks))

	err := g.Wait()

	l.mu.Lock()
	l.stopped = true
	l.mu.Unlock()
	l.spawned.Wait()

	l.logger.Info("event loop stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func runEvery(ctx context.Context, period time.Duration, fn func(ctx context.Context)) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}
