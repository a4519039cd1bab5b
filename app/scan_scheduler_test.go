package app

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"billtrack/service"
)

type countingRunner struct {
	calls atomic.Int32
	err   error
}

func (r *countingRunner) ScanAll(context.Context) (*service.ScanAllReport, error) {
	r.calls.Add(1)
	if r.err != nil {
		return nil, r.err
	}
	return &service.ScanAllReport{Failed: map[string]string{"user-x": "boom"}}, nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestScanSchedulerRunsUntilStopped(t *testing.T) {
	for _, runErr := range []error{nil, errors.New("database down")} {
		runner := &countingRunner{err: runErr}
		s := NewScanScheduler(runner, 10*time.Millisecond, zerolog.New(io.Discard))

		stopped := make(chan struct{})
		go func() {
			s.Start(context.Background())
			close(stopped)
		}()

		// the first scan runs immediately, then once per tick
		waitFor(t, func() bool { return runner.calls.Load() >= 3 })
		s.Stop()
		s.Stop()

		select {
		case <-stopped:
		case <-time.After(2 * time.Second):
			t.Fatal("scheduler did not stop")
		}
	}
}

func TestScanSchedulerStopsWithContext(t *testing.T) {
	runner := &countingRunner{}
	s := NewScanScheduler(runner, time.Hour, zerolog.New(io.Discard))

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(stopped)
	}()

	waitFor(t, func() bool { return runner.calls.Load() == 1 })
	cancel()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler ignored context cancellation")
	}
}

func TestNewScanSchedulerDefaultsInterval(t *testing.T) {
	s := NewScanScheduler(&countingRunner{}, 0, zerolog.New(io.Discard))
	if s.interval != 6*time.Hour {
		t.Errorf("expected default interval, got %s", s.interval)
	}
}
