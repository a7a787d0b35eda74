package scheduler

import (
	"context"
	"testing"
	"time"
)

func TestNewCronSchedulerRejectsBadSpec(t *testing.T) {
	t.Parallel()

	if _, err := NewCronScheduler("not a cron", time.UTC, nil); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestNextUsesLocation(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("UTC+3", 3*60*60)
	s, err := NewCronScheduler("0 6 * * *", loc, nil)
	if err != nil {
		t.Fatalf("NewCronScheduler: %v", err)
	}
	from := time.Date(2025, 11, 8, 0, 0, 0, 0, time.UTC) // 03:00 local
	next := s.Next(from)
	want := time.Date(2025, 11, 8, 6, 0, 0, 0, loc)
	if !next.Equal(want) {
		t.Fatalf("Next() = %s, want %s", next, want)
	}
}

func TestStartStop(t *testing.T) {
	t.Parallel()

	s, err := NewCronScheduler("@every 1h", time.UTC, nil)
	if err != nil {
		t.Fatalf("NewCronScheduler: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := s.Start(ctx, func(time.Time) {}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Start(ctx, func(time.Time) {}); err != nil {
		t.Fatalf("second Start should be a no-op: %v", err)
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	if err := s.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := s.Stop(stopCtx); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}
