// Package cron manages scheduled agent tasks persisted in jobs.json.
//
// The service runs a one-second tick loop. On each tick, every enabled job
// whose next_run_ms has passed fires: next_run_ms is cleared first to
// prevent re-entry, the handler runs, the outcome is recorded, and either
// the job is removed (one-shot) or its next run is computed. The store is
// rewritten atomically after every mutation.
package cron

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	robfigcron "github.com/robfig/cron/v3"

	"github.com/tinyclaw/tinyclaw/internal/tools"
)

// Schedule is the tagged union of job triggers: one-shot "at", interval
// "every", or a cron expression.
type Schedule struct {
	Kind    string `json:"kind"` // "at" | "every" | "cron"
	AtMs    int64  `json:"at_ms,omitempty"`
	EveryMs int64  `json:"every_ms,omitempty"`
	Expr    string `json:"expr,omitempty"`
	TZ      string `json:"tz,omitempty"`
}

// Payload describes the synthetic agent turn a job triggers.
type Payload struct {
	Kind    string `json:"kind"` // "agent_turn"
	Message string `json:"message"`
	Command string `json:"command,omitempty"`
	Deliver bool   `json:"deliver"`
	Channel string `json:"channel,omitempty"`
	To      string `json:"to,omitempty"`
}

// State tracks a job's execution bookkeeping.
type State struct {
	NextRunMs  *int64 `json:"next_run_ms"`
	LastRunMs  *int64 `json:"last_run_ms"`
	LastStatus string `json:"last_status,omitempty"` // "ok" | "error"
	LastError  string `json:"last_error,omitempty"`
}

// Job is one scheduled task.
type Job struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Enabled        bool     `json:"enabled"`
	Schedule       Schedule `json:"schedule"`
	Payload        Payload  `json:"payload"`
	State          State    `json:"state"`
	CreatedMs      int64    `json:"created_ms"`
	UpdatedMs      int64    `json:"updated_ms"`
	DeleteAfterRun bool     `json:"delete_after_run"`
}

// Handler converts a fired job into agent work and returns the user-facing
// result, if any. The service never invokes the agent directly.
type Handler func(ctx context.Context, job Job) (string, error)

var cronParser = robfigcron.NewParser(
	robfigcron.Minute | robfigcron.Hour | robfigcron.Dom | robfigcron.Month | robfigcron.Dow,
)

// Service manages scheduled jobs.
type Service struct {
	storePath string

	mu      sync.Mutex
	jobs    []Job
	handler Handler
}

// NewService creates a Service whose store lives at <storeDir>/jobs.json.
// Existing jobs are loaded immediately; a missing or corrupt store starts
// empty.
func NewService(storeDir string) *Service {
	s := &Service{storePath: filepath.Join(storeDir, "jobs.json")}
	s.load()
	return s
}

// SetHandler registers the callback executed when a job fires.
// Must be set before Start.
func (s *Service) SetHandler(h Handler) {
	s.mu.Lock()
	s.handler = h
	s.mu.Unlock()
}

// Start runs the tick loop until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	n := len(s.jobs)
	s.mu.Unlock()
	slog.Info("cron: started", "jobs", n)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.checkJobs(ctx)
		case <-ctx.Done():
			slog.Info("cron: stopped")
			return ctx.Err()
		}
	}
}

// AddJob creates a new job and persists it.
// Implements tools.CronService.AddJob. One-shot "at" jobs are removed after
// they run.
func (s *Service) AddJob(
	name, message, kind string,
	everyMs int64, cronExpr, tz string, atMs int64,
	deliver bool, channel, to string,
) (string, error) {
	sched := Schedule{Kind: kind}
	switch kind {
	case "at":
		sched.AtMs = atMs
	case "every":
		if everyMs <= 0 {
			return "", fmt.Errorf("every_ms must be positive")
		}
		sched.EveryMs = everyMs
	case "cron":
		if _, err := cronParser.Parse(cronExpr); err != nil {
			return "", fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
		}
		sched.Expr = cronExpr
		sched.TZ = tz
	default:
		return "", fmt.Errorf("unknown schedule kind %q", kind)
	}

	now := nowMs()
	job := Job{
		ID:       newJobID(),
		Name:     name,
		Enabled:  true,
		Schedule: sched,
		Payload: Payload{
			Kind:    "agent_turn",
			Message: message,
			Deliver: deliver,
			Channel: channel,
			To:      to,
		},
		State:          State{NextRunMs: computeNextRun(sched, now)},
		CreatedMs:      now,
		UpdatedMs:      now,
		DeleteAfterRun: kind == "at",
	}

	s.mu.Lock()
	s.jobs = append(s.jobs, job)
	s.saveLocked()
	s.mu.Unlock()

	slog.Info("cron: added job", "name", name, "id", job.ID, "kind", kind)
	return job.ID, nil
}

// ListJobs returns summaries of all enabled jobs.
// Implements tools.CronService.ListJobs.
func (s *Service) ListJobs() []tools.CronJobSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []tools.CronJobSummary
	for _, j := range s.jobs {
		if j.Enabled {
			out = append(out, tools.CronJobSummary{ID: j.ID, Name: j.Name, Kind: j.Schedule.Kind})
		}
	}
	return out
}

// RemoveJob removes jobs whose id starts with the given prefix.
// Implements tools.CronService.RemoveJob.
func (s *Service) RemoveJob(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := len(s.jobs)
	kept := s.jobs[:0]
	for _, j := range s.jobs {
		if len(id) == 0 || len(j.ID) < len(id) || j.ID[:len(id)] != id {
			kept = append(kept, j)
		}
	}
	s.jobs = kept
	if len(kept) < before {
		s.saveLocked()
		return true
	}
	return false
}

// EnableJob enables or disables a job, recomputing its next run.
func (s *Service) EnableJob(id string, enabled bool) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.jobs {
		if s.jobs[i].ID != id {
			continue
		}
		s.jobs[i].Enabled = enabled
		s.jobs[i].UpdatedMs = nowMs()
		if enabled {
			s.jobs[i].State.NextRunMs = computeNextRun(s.jobs[i].Schedule, nowMs())
		} else {
			s.jobs[i].State.NextRunMs = nil
		}
		s.saveLocked()
		return s.jobs[i], true
	}
	return Job{}, false
}

// AllJobs returns every job, sorted by next run; includeDisabled controls
// whether disabled jobs appear.
func (s *Service) AllJobs(includeDisabled bool) []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Job
	for _, j := range s.jobs {
		if includeDisabled || j.Enabled {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(i, k int) bool {
		a, b := int64(1)<<62, int64(1)<<62
		if out[i].State.NextRunMs != nil {
			a = *out[i].State.NextRunMs
		}
		if out[k].State.NextRunMs != nil {
			b = *out[k].State.NextRunMs
		}
		return a < b
	})
	return out
}

// RunJob fires a job immediately; force ignores the enabled flag.
func (s *Service) RunJob(ctx context.Context, id string, force bool) bool {
	s.mu.Lock()
	var job *Job
	for i := range s.jobs {
		if s.jobs[i].ID == id {
			if !force && !s.jobs[i].Enabled {
				s.mu.Unlock()
				return false
			}
			job = &s.jobs[i]
			break
		}
	}
	if job == nil {
		s.mu.Unlock()
		return false
	}
	copy := *job
	s.mu.Unlock()

	s.executeJob(ctx, copy)
	return true
}

// checkJobs fires every due job on this tick.
func (s *Service) checkJobs(ctx context.Context) {
	now := nowMs()

	s.mu.Lock()
	var due []Job
	for i := range s.jobs {
		j := &s.jobs[i]
		if !j.Enabled || j.State.NextRunMs == nil || *j.State.NextRunMs > now {
			continue
		}
		// Clear before running so a slow handler cannot double-fire.
		j.State.NextRunMs = nil
		due = append(due, *j)
	}
	if len(due) > 0 {
		s.saveLocked()
	}
	s.mu.Unlock()

	for _, job := range due {
		s.executeJob(ctx, job)
	}
}

func (s *Service) executeJob(ctx context.Context, job Job) {
	startMs := nowMs()
	slog.Info("cron: executing job", "name", job.Name, "id", job.ID)

	s.mu.Lock()
	handler := s.handler
	s.mu.Unlock()

	status, lastErr := "ok", ""
	if handler != nil {
		if _, err := handler(ctx, job); err != nil {
			status, lastErr = "error", err.Error()
			slog.Error("cron: job failed", "name", job.Name, "err", err)
		}
	} else {
		status, lastErr = "error", "no handler configured"
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.jobs {
		if s.jobs[i].ID != job.ID {
			continue
		}
		now := nowMs()
		s.jobs[i].State.LastRunMs = &startMs
		s.jobs[i].State.LastStatus = status
		s.jobs[i].State.LastError = lastErr
		s.jobs[i].UpdatedMs = now

		if job.DeleteAfterRun {
			s.jobs = append(s.jobs[:i], s.jobs[i+1:]...)
		} else {
			s.jobs[i].State.NextRunMs = computeNextRun(job.Schedule, now)
		}
		break
	}
	s.saveLocked()
}

// computeNextRun returns the next fire time for a schedule, or nil when the
// schedule cannot fire again.
func computeNextRun(sched Schedule, nowMs int64) *int64 {
	switch sched.Kind {
	case "at":
		if sched.AtMs > 0 {
			v := sched.AtMs
			return &v
		}
	case "every":
		if sched.EveryMs > 0 {
			v := nowMs + sched.EveryMs
			return &v
		}
	case "cron":
		parsed, err := cronParser.Parse(sched.Expr)
		if err != nil {
			slog.Warn("cron: invalid expression", "expr", sched.Expr, "err", err)
			return nil
		}
		loc := time.Local
		if sched.TZ != "" {
			if l, err := time.LoadLocation(sched.TZ); err == nil {
				loc = l
			}
		}
		v := parsed.Next(time.UnixMilli(nowMs).In(loc)).UnixMilli()
		return &v
	}
	return nil
}

// ---------------------------------------------------------------------------
// Persistence
// ---------------------------------------------------------------------------

func (s *Service) load() {
	data, err := os.ReadFile(s.storePath)
	if err != nil {
		return
	}
	var jobs []Job
	if err := json.Unmarshal(data, &jobs); err != nil {
		slog.Warn("cron: failed to load jobs, starting empty", "err", err)
		return
	}
	s.jobs = jobs
}

// saveLocked rewrites the store atomically. Callers hold s.mu.
func (s *Service) saveLocked() {
	if err := os.MkdirAll(filepath.Dir(s.storePath), 0o755); err != nil {
		slog.Warn("cron: mkdir failed", "err", err)
		return
	}
	data, err := json.MarshalIndent(s.jobs, "", "  ")
	if err != nil {
		slog.Warn("cron: marshal failed", "err", err)
		return
	}
	tmp := s.storePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		slog.Warn("cron: write failed", "err", err)
		return
	}
	if err := os.Rename(tmp, s.storePath); err != nil {
		slog.Warn("cron: rename failed", "err", err)
	}
}

func nowMs() int64 { return time.Now().UnixMilli() }

// newJobID returns an 8-byte random hex id.
func newJobID() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
