package usecase

import (
	"context"
	"testing"
	"time"

	"PaperTriage/internal/domain"
	"PaperTriage/internal/ports"
)

type manualDriver struct {
	job     func(time.Time)
	stopped bool
}

func (d *manualDriver) Start(_ context.Context, job func(time.Time)) error {
	d.job = job
	return nil
}

func (d *manualDriver) Stop(context.Context) error {
	d.stopped = true
	return nil
}

func TestSchedulerRunsPipelineOnTrigger(t *testing.T) {
	t.Parallel()

	day := time.Date(2025, 11, 8, 6, 0, 0, 0, time.UTC)
	reviewer := newFakeReviewer("claude", scoresFor(1, 0))
	pipeline := NewPipeline(PipelineDeps{
		Source:    staticSource{pubs: []domain.Publication{pubN(1)}},
		Store:     openStore(t),
		Reviewers: []ports.Reviewer{reviewer},
		Settings:  PipelineSettings{Mode: "daily", PromptVersion: "v3", Workers: 1, TopK: 3},
	})

	driver := &manualDriver{}
	sched := NewScheduler(driver, pipeline, nil)
	if err := sched.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if driver.job == nil {
		t.Fatal("job was not registered")
	}

	driver.job(day)
	driver.job(day)
	if got := reviewer.calls.Load(); got != 1 {
		t.Fatalf("repeated trigger for one day must reuse scores, reviewer calls = %d", got)
	}

	if err := sched.Stop(context.Background()); err != nil || !driver.stopped {
		t.Fatalf("Stop: %v stopped=%v", err, driver.stopped)
	}
}

func TestSchedulerWithoutDriver(t *testing.T) {
	t.Parallel()

	sched := NewScheduler(nil, nil, nil)
	if err := sched.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := sched.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
