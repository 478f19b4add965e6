package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	logx "duckbot/pkg/logx"
)

func TestAddScheduleRejectsBadInput(t *testing.T) {
	s := New(Config{}, logx.Nop())
	noop := func(context.Context) error { return nil }
	if err := s.AddSchedule("", "6h", 0, noop); err == nil {
		t.Fatalf("expected error for empty name")
	}
	if err := s.AddSchedule("x", "bogus", 0, noop); err == nil {
		t.Fatalf("expected error for bad schedule")
	}
	if err := s.AddSchedule("x", "61 * * * *", 0, noop); err == nil {
		t.Fatalf("expected cron validation error")
	}
}

func TestRunNowSkipsWhileRunning(t *testing.T) {
	s := New(Config{}, logx.Nop())
	s.Start(context.Background())
	defer s.Stop(context.Background())

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	var runs atomic.Int32
	err := s.AddSchedule("notify.all", "6h", time.Second, func(ctx context.Context) error {
		runs.Add(1)
		started <- struct{}{}
		<-release
		return nil
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	if err := s.RunNow("notify.all"); err != nil {
		t.Fatalf("first RunNow: %v", err)
	}
	<-started
	if err := s.RunNow("notify.all"); !errors.Is(err, ErrRunning) {
		t.Fatalf("expected ErrRunning, got %v", err)
	}
	close(release)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if infos := s.Schedules(); len(infos) == 1 && !infos[0].Running {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if err := s.RunNow("notify.all"); err != nil {
		t.Fatalf("RunNow after release: %v", err)
	}
	<-started
	if runs.Load() != 2 {
		t.Fatalf("runs=%d, want 2", runs.Load())
	}
}

func TestRunNowUnknown(t *testing.T) {
	s := New(Config{}, logx.Nop())
	if err := s.RunNow("missing"); !errors.Is(err, ErrUnknown) {
		t.Fatalf("expected ErrUnknown, got %v", err)
	}
}

func TestScheduleUpsertAndRemove(t *testing.T) {
	s := New(Config{Timezone: "UTC"}, logx.Nop())
	s.Start(context.Background())
	defer s.Stop(context.Background())

	noop := func(context.Context) error { return nil }
	if err := s.AddSchedule("feed.refresh", "6h", 0, noop); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.AddSchedule("feed.refresh", "0 */2 * * *", 0, noop); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	infos := s.Schedules()
	if len(infos) != 1 || infos[0].Spec != "0 */2 * * *" {
		t.Fatalf("unexpected schedules: %+v", infos)
	}
	if infos[0].Next.IsZero() {
		t.Fatalf("expected next trigger time")
	}
	if !s.Remove("feed.refresh") || s.Remove("feed.refresh") {
		t.Fatalf("remove should succeed exactly once")
	}
}

func TestCronTriggerRunsJobAndRecordsError(t *testing.T) {
	s := New(Config{}, logx.Nop())
	done := make(chan struct{}, 4)
	if err := s.AddSchedule("tick", "@every 1s", time.Second, func(ctx context.Context) error {
		done <- struct{}{}
		return errors.New("upstream down")
	}); err != nil {
		t.Fatalf("add: %v", err)
	}
	s.Start(context.Background())

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatalf("job was not triggered")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)

	infos := s.Schedules()
	if infos[0].LastErr != "upstream down" {
		t.Fatalf("last error not recorded: %+v", infos[0])
	}
}
