package main

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestEventLoop_RunsTasksUntilCancel(t *testing.T) {
	l := NewEventLoop(testLogger())

	var ticks atomic.Int32
	l.Every("tick", 2*time.Millisecond, func(context.Context) { ticks.Add(1) })

	var serviceStopped atomic.Bool
	l.Go("service", func(ctx context.Context) error {
		<-ctx.Done()
		serviceStopped.Store(true)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	waitUntil(t, time.Second, func() bool { return ticks.Load() >= 3 }, "ticker task did not run")
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil on cancel, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for loop to stop")
	}
	if !serviceStopped.Load() {
		t.Fatalf("expected service to observe cancellation")
	}
}

func TestEventLoop_ServiceErrorStopsLoop(t *testing.T) {
	l := NewEventLoop(testLogger())
	boom := errors.New("listen failed")
	l.Go("bad", func(context.Context) error { return boom })
	l.Every("tick", time.Millisecond, func(context.Context) {})

	done := make(chan error, 1)
	go func() { done <- l.Run(context.Background()) }()

	select {
	case err := <-done:
		if !errors.Is(err, boom) {
			t.Fatalf("expected service error, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for loop to stop")
	}
}

func TestEventLoop_SpawnWaitsAndRejectsWhenStopped(t *testing.T) {
	l := NewEventLoop(testLogger())

	if err := l.Spawn("early", func(context.Context) {}); !errors.Is(err, errLoopStopped) {
		t.Fatalf("expected errLoopStopped before Run, got %v", err)
	}

	started := make(chan struct{})
	l.Go("spawner", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()
	<-started

	var cleanedUp atomic.Bool
	if err := l.Spawn("play", func(ctx context.Context) {
		<-ctx.Done()
		time.Sleep(20 * time.Millisecond)
		cleanedUp.Store(true)
	}); err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for loop to stop")
	}
	if !cleanedUp.Load() {
		t.Fatalf("expected Run to wait for spawned task cleanup")
	}
	if err := l.Spawn("late", func(context.Context) {}); !errors.Is(err, errLoopStopped) {
		t.Fatalf("expected errLoopStopped after Run, got %v", err)
	}
}
