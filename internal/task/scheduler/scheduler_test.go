package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	logx "remindbot/pkg/logx"
)

func TestParseHHMM(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in      string
		h, m    int
		wantErr bool
	}{
		{in: "08:00", h: 8, m: 0},
		{in: "7:30", h: 7, m: 30},
		{in: " 23:59 ", h: 23, m: 59},
		{in: "00:00", h: 0, m: 0},
		{in: "24:00", wantErr: true},
		{in: "12:60", wantErr: true},
		{in: "8", wantErr: true},
		{in: "", wantErr: true},
		{in: "ab:cd", wantErr: true},
	}
	for _, tc := range cases {
		h, m, err := ParseHHMM(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("ParseHHMM(%q) expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseHHMM(%q) unexpected error: %v", tc.in, err)
		}
		if h != tc.h || m != tc.m {
			t.Fatalf("ParseHHMM(%q) = %d:%d, want %d:%d", tc.in, h, m, tc.h, tc.m)
		}
	}
}

func TestDailySpec(t *testing.T) {
	t.Parallel()
	got, err := DailySpec("08:05")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "5 8 * * *" {
		t.Fatalf("DailySpec = %q, want %q", got, "5 8 * * *")
	}
}

func TestAddDailyNextUsesLocation(t *testing.T) {
	t.Parallel()
	s := New(Config{Timezone: "UTC"}, logx.Nop())
	if err := s.AddDaily("reminder", "08:00", 0, func(ctx context.Context) error { return nil }); err != nil {
		t.Fatalf("AddDaily: %v", err)
	}

	now := time.Date(2024, 3, 10, 9, 15, 0, 0, time.UTC)
	next, ok := s.Next("reminder", now)
	if !ok {
		t.Fatal("Next: schedule not found")
	}
	want := time.Date(2024, 3, 11, 8, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("Next = %v, want %v", next, want)
	}

	early := time.Date(2024, 3, 10, 7, 59, 0, 0, time.UTC)
	next, _ = s.Next("reminder", early)
	if want := time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC); !next.Equal(want) {
		t.Fatalf("Next(before) = %v, want %v", next, want)
	}
}

func TestAddRejectsInvalid(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop())
	job := func(ctx context.Context) error { return nil }
	if err := s.AddDaily("x", "25:00", 0, job); err == nil {
		t.Fatal("expected error for invalid HH:MM")
	}
	if err := s.AddCron("x", "not a cron", 0, job); err == nil {
		t.Fatal("expected error for invalid cron spec")
	}
	if err := s.AddCron("", "@daily", 0, job); err == nil {
		t.Fatal("expected error for empty name")
	}
	if err := s.AddCron("x", "@daily", 0, nil); err == nil {
		t.Fatal("expected error for nil job")
	}
}

func TestAddReplacesAndRemove(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop())
	job := func(ctx context.Context) error { return nil }
	_ = s.AddDaily("a", "08:00", 0, job)
	_ = s.AddDaily("a", "09:00", 0, job)
	snap := s.Snapshot()
	if len(snap) != 1 || snap[0].Spec != "0 9 * * *" {
		t.Fatalf("snapshot = %+v, want single replaced entry", snap)
	}
	if !s.Remove("a") {
		t.Fatal("Remove(a) = false")
	}
	if s.Remove("a") {
		t.Fatal("second Remove(a) = true")
	}
}

func TestJobRunsAndSurvivesPanic(t *testing.T) {
	s := New(Config{}, logx.Nop())
	var runs atomic.Int32
	err := s.AddCron("tick", "@every 1s", time.Second, func(ctx context.Context) error {
		if runs.Add(1) == 1 {
			panic("first run panics")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("AddCron: %v", err)
	}
	s.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.Stop(ctx)
	})

	deadline := time.Now().Add(5 * time.Second)
	for runs.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if runs.Load() < 2 {
		t.Fatalf("runs = %d, want >= 2", runs.Load())
	}
}

func TestPanickingJobKeepsFiring(t *testing.T) {
	s := New(Config{}, logx.Nop())
	var runs atomic.Int32
	err := s.AddCron("always.panics", "@every 1s", 0, func(ctx context.Context) error {
		runs.Add(1)
		panic("boom")
	})
	if err != nil {
		t.Fatalf("AddCron: %v", err)
	}
	s.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.Stop(ctx)
	})

	deadline := time.Now().Add(5 * time.Second)
	for runs.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if runs.Load() < 3 {
		t.Fatalf("runs = %d, want >= 3: a panic must not block later fires", runs.Load())
	}
}

func TestRunNowRecoversPanic(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop())
	var runs atomic.Int32
	if err := s.AddDaily("daily", "08:00", time.Second, func(ctx context.Context) error {
		runs.Add(1)
		if _, ok := ctx.Deadline(); !ok {
			t.Error("job context has no deadline")
		}
		panic("boom")
	}); err != nil {
		t.Fatalf("AddDaily: %v", err)
	}
	for i := 0; i < 2; i++ {
		if !s.RunNow("daily") {
			t.Fatal("RunNow(daily) = false")
		}
	}
	if runs.Load() != 2 {
		t.Fatalf("runs = %d, want 2", runs.Load())
	}
	if s.RunNow("missing") {
		t.Fatal("RunNow(missing) = true")
	}
}
