package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/storefront-sync/pkg/metrics"
)

type fakeLock struct {
	held       bool
	acquires   int
	releases   int
	acquireErr error
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	f.acquires++
	if f.acquireErr != nil {
		return false, f.acquireErr
	}
	if f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.releases++
	f.held = false
	return nil
}

type countingJob struct {
	name string
	err  error
	runs int
}

func (j *countingJob) Name() string { return j.name }

func (j *countingJob) Run(context.Context) error {
	j.runs++
	return j.err
}

func TestRunOnceRunsEveryJobDespiteFailures(t *testing.T) {
	ok := &countingJob{name: "ok"}
	bad := &countingJob{name: "bad", err: errors.New("boom")}
	registry, err := NewRegistry(bad, ok)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	lock := &fakeLock{}
	svc, err := NewService(ServiceParams{
		Logger:   quietLogger(),
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.NewRegistry()),
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	ran, err := svc.RunOnce(context.Background())
	if err != nil || !ran {
		t.Fatalf("run once: ran=%v err=%v", ran, err)
	}
	if ok.runs != 1 || bad.runs != 1 {
		t.Fatalf("expected both jobs to run once, ok=%d bad=%d", ok.runs, bad.runs)
	}
	if lock.releases != 1 || lock.held {
		t.Fatalf("expected lock released, releases=%d held=%v", lock.releases, lock.held)
	}
}

func TestRunOnceSkipsWhenLockHeld(t *testing.T) {
	job := &countingJob{name: "ok"}
	registry, _ := NewRegistry(job)
	svc, err := NewService(ServiceParams{Logger: quietLogger(), Registry: registry, Lock: &fakeLock{held: true}})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	ran, err := svc.RunOnce(context.Background())
	if err != nil || ran {
		t.Fatalf("expected skipped cycle, ran=%v err=%v", ran, err)
	}
	if job.runs != 0 {
		t.Fatalf("job should not run without the lock")
	}
}

func TestRunOnceLockError(t *testing.T) {
	registry, _ := NewRegistry()
	svc, _ := NewService(ServiceParams{Logger: quietLogger(), Registry: registry, Lock: &fakeLock{acquireErr: errors.New("redis down")}})
	if _, err := svc.RunOnce(context.Background()); err == nil {
		t.Fatalf("expected lock error")
	}
}

type signalJob struct {
	ran chan struct{}
}

func (j *signalJob) Name() string { return "signal" }

func (j *signalJob) Run(context.Context) error {
	select {
	case j.ran <- struct{}{}:
	default:
	}
	return nil
}

func TestRunStopsOnCancel(t *testing.T) {
	job := &signalJob{ran: make(chan struct{}, 1)}
	registry, _ := NewRegistry(job)
	svc, _ := NewService(ServiceParams{Logger: quietLogger(), Registry: registry, Lock: &fakeLock{}, Interval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	select {
	case <-job.ran:
	case <-time.After(2 * time.Second):
		t.Fatalf("first cycle did not run")
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
}
