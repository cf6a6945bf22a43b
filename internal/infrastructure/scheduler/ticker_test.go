package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestTickerSchedulerRunsImmediatelyAndRepeats(t *testing.T) {
	t.Parallel()

	var runs atomic.Int32
	s := NewTickerScheduler(10 * time.Millisecond)
	if err := s.Start(context.Background(), func(time.Time) { runs.Add(1) }); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	if err := s.Start(context.Background(), func(time.Time) { runs.Add(100) }); err != nil {
		t.Fatalf("second Start error: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for runs.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop error: %v", err)
	}
	got := runs.Load()
	if got < 3 || got >= 100 {
		t.Fatalf("unexpected run count: %d", got)
	}

	time.Sleep(30 * time.Millisecond)
	if runs.Load() != got {
		t.Fatalf("job ran after Stop")
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("second Stop error: %v", err)
	}
}
