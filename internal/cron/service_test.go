package cron

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func newTestService(t *testing.T) (*Service, string) {
	t.Helper()
	dir := t.TempDir()
	return NewService(dir), filepath.Join(dir, "jobs.json")
}

// ─── AddJob ────────────────────────────────────────────────────────────────

func TestAddJobEvery(t *testing.T) {
	s, _ := newTestService(t)
	id, err := s.AddJob("tick", "hello", "every", 5000, "", "", 0, false, "", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id == "" {
		t.Fatal("expected non-empty id")
	}
	jobs := s.AllJobs(false)
	if len(jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(jobs))
	}
	if jobs[0].Schedule.Kind != "every" || jobs[0].Schedule.EveryMs != 5000 {
		t.Errorf("unexpected schedule %+v", jobs[0].Schedule)
	}
	if jobs[0].State.NextRunMs == nil {
		t.Error("expected next_run_ms to be set")
	}
	if jobs[0].DeleteAfterRun {
		t.Error("recurring jobs must not be delete_after_run")
	}
}

func TestAddJobAt(t *testing.T) {
	s, _ := newTestService(t)
	future := time.Now().Add(time.Hour).UnixMilli()
	_, err := s.AddJob("once", "do it", "at", 0, "", "", future, true, "telegram", "123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	jobs := s.AllJobs(false)
	if !jobs[0].DeleteAfterRun {
		t.Error("at jobs must be delete_after_run")
	}
	if jobs[0].State.NextRunMs == nil || *jobs[0].State.NextRunMs != future {
		t.Errorf("unexpected next run %v", jobs[0].State.NextRunMs)
	}
	if jobs[0].Payload.Channel != "telegram" || jobs[0].Payload.To != "123" {
		t.Errorf("unexpected payload %+v", jobs[0].Payload)
	}
}

func TestAddJobCron(t *testing.T) {
	s, _ := newTestService(t)
	if _, err := s.AddJob("daily", "report", "cron", 0, "0 9 * * *", "UTC", 0, true, "", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	jobs := s.AllJobs(false)
	if jobs[0].State.NextRunMs == nil {
		t.Error("cron jobs must get a next run")
	}
}

func TestAddJobBadInput(t *testing.T) {
	s, _ := newTestService(t)
	if _, err := s.AddJob("bad", "m", "weekly", 0, "", "", 0, false, "", ""); err == nil {
		t.Error("expected error for unknown kind")
	}
	if _, err := s.AddJob("bad", "m", "cron", 0, "not a cron", "", 0, false, "", ""); err == nil {
		t.Error("expected error for invalid expression")
	}
	if _, err := s.AddJob("bad", "m", "every", 0, "", "", 0, false, "", ""); err == nil {
		t.Error("expected error for non-positive interval")
	}
}

// ─── List / Remove ─────────────────────────────────────────────────────────

func TestListAfterAddRemoveRoundTrip(t *testing.T) {
	s, _ := newTestService(t)
	before := len(s.ListJobs())

	id, _ := s.AddJob("temp", "m", "every", 1000, "", "", 0, false, "", "")
	if len(s.ListJobs()) != before+1 {
		t.Fatal("job not listed after add")
	}
	if !s.RemoveJob(id) {
		t.Fatal("expected RemoveJob to return true")
	}
	if len(s.ListJobs()) != before {
		t.Error("expected pre-add job set after remove")
	}
}

func TestRemoveJobNotFound(t *testing.T) {
	s, _ := newTestService(t)
	if s.RemoveJob("nonexistent") {
		t.Error("expected false for unknown id")
	}
}

func TestListJobsSkipsDisabled(t *testing.T) {
	s, _ := newTestService(t)
	id, _ := s.AddJob("j", "m", "every", 1000, "", "", 0, false, "", "")
	if _, ok := s.EnableJob(id, false); !ok {
		t.Fatal("enable failed")
	}
	if len(s.ListJobs()) != 0 {
		t.Error("disabled jobs must not be listed")
	}
	if len(s.AllJobs(true)) != 1 {
		t.Error("AllJobs(true) must include disabled jobs")
	}
}

// ─── Persistence ───────────────────────────────────────────────────────────

func TestJobsPersisted(t *testing.T) {
	s, path := newTestService(t)
	id, _ := s.AddJob("persist", "m", "every", 1000, "", "", 0, false, "", "")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("jobs.json missing: %v", err)
	}
	var jobs []Job
	if err := json.Unmarshal(data, &jobs); err != nil {
		t.Fatalf("jobs.json malformed: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != id {
		t.Errorf("unexpected store contents: %+v", jobs)
	}

	// A fresh service over the same store sees the job.
	s2 := NewService(filepath.Dir(path))
	if len(s2.AllJobs(true)) != 1 {
		t.Error("reloaded service lost the job")
	}
}

// ─── Execution ─────────────────────────────────────────────────────────────

func TestOneShotAtJobRunsOnceAndIsRemoved(t *testing.T) {
	s, _ := newTestService(t)

	var fired atomic.Int32
	s.SetHandler(func(_ context.Context, job Job) (string, error) {
		fired.Add(1)
		return "ran: " + job.Payload.Message, nil
	})

	_, err := s.AddJob("soon", "run", "at", 0, "", "", time.Now().Add(50*time.Millisecond).UnixMilli(), false, "", "")
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Start(ctx) }()

	deadline := time.After(3 * time.Second)
	for {
		if fired.Load() > 0 && len(s.AllJobs(true)) == 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("job did not fire and clean up (fired=%d, jobs=%d)", fired.Load(), len(s.AllJobs(true)))
		case <-time.After(20 * time.Millisecond):
		}
	}

	// Give a further tick to rule out double execution.
	time.Sleep(1200 * time.Millisecond)
	if got := fired.Load(); got != 1 {
		t.Errorf("expected exactly one execution, got %d", got)
	}
}

func TestEveryJobRecordsStateAndReschedules(t *testing.T) {
	s, _ := newTestService(t)
	s.SetHandler(func(context.Context, Job) (string, error) { return "", nil })

	id, _ := s.AddJob("fast", "m", "every", 100, "", "", 0, false, "", "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Start(ctx) }()

	deadline := time.After(4 * time.Second)
	for {
		jobs := s.AllJobs(true)
		if len(jobs) == 1 && jobs[0].State.LastRunMs != nil {
			if jobs[0].State.LastStatus != "ok" {
				t.Errorf("unexpected status %q", jobs[0].State.LastStatus)
			}
			if jobs[0].State.NextRunMs == nil {
				t.Error("recurring job must be rescheduled")
			}
			_ = id
			return
		}
		select {
		case <-deadline:
			t.Fatal("job never executed")
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func TestHandlerErrorRecorded(t *testing.T) {
	s, _ := newTestService(t)
	s.SetHandler(func(context.Context, Job) (string, error) {
		return "", context.DeadlineExceeded
	})
	id, _ := s.AddJob("failing", "m", "every", 100, "", "", 0, false, "", "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Start(ctx) }()

	deadline := time.After(4 * time.Second)
	for {
		jobs := s.AllJobs(true)
		if len(jobs) == 1 && jobs[0].State.LastRunMs != nil {
			if jobs[0].State.LastStatus != "error" || jobs[0].State.LastError == "" {
				t.Errorf("error not recorded: %+v", jobs[0].State)
			}
			// Schedule continues despite the failure.
			if jobs[0].State.NextRunMs == nil {
				t.Error("failed job must still be rescheduled")
			}
			_ = id
			return
		}
		select {
		case <-deadline:
			t.Fatal("job never executed")
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func TestComputeNextRun(t *testing.T) {
	now := time.Now().UnixMilli()

	if next := computeNextRun(Schedule{Kind: "every", EveryMs: 60000}, now); next == nil || *next != now+60000 {
		t.Errorf("every: unexpected %v", next)
	}
	if next := computeNextRun(Schedule{Kind: "at", AtMs: now + 5000}, now); next == nil || *next != now+5000 {
		t.Errorf("at: unexpected %v", next)
	}
	if next := computeNextRun(Schedule{Kind: "cron", Expr: "0 9 * * *"}, now); next == nil || *next <= now {
		t.Errorf("cron: unexpected %v", next)
	}
	if next := computeNextRun(Schedule{Kind: "cron", Expr: "garbage"}, now); next != nil {
		t.Errorf("invalid cron must yield nil, got %v", next)
	}
}
