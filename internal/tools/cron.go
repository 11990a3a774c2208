package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tinyclaw/tinyclaw/internal/schema"
)

// CronJobSummary is a lightweight view of a scheduled job used by the tool.
type CronJobSummary struct {
	ID   string
	Name string
	Kind string // "every", "cron", or "at"
}

// CronService is the interface the cron tool uses to manage scheduled jobs.
// Implemented by cron.Service; defined here to avoid an import cycle.
type CronService interface {
	AddJob(name, message, kind string, everyMs int64, cronExpr, tz string, atMs int64, deliver bool, channel, to string) (string, error)
	ListJobs() []CronJobSummary
	RemoveJob(id string) bool
}

// CronTool lets the agent schedule reminders and recurring tasks.
// Per-turn routing context selects where a job's output is delivered.
type CronTool struct {
	svc     CronService
	channel string
	chatID  string
}

// NewCronTool creates a CronTool backed by svc.
func NewCronTool(svc CronService) *CronTool {
	return &CronTool{svc: svc}
}

// SetContext implements schema.ContextualTool.
func (t *CronTool) SetContext(channel, chatID string) {
	t.channel = channel
	t.chatID = chatID
}

func (t *CronTool) Name() string { return "cron" }
func (t *CronTool) Description() string {
	return "Schedule reminders and recurring tasks. Actions: add, list, remove."
}
func (t *CronTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"action": {
				"type": "string",
				"enum": ["add", "list", "remove"],
				"description": "Action to perform"
			},
			"message": {
				"type": "string",
				"description": "Reminder message (for add)"
			},
			"every_seconds": {
				"type": "integer",
				"description": "Interval in seconds (for recurring tasks)"
			},
			"cron_expr": {
				"type": "string",
				"description": "Cron expression like '0 9 * * *' (for scheduled tasks)"
			},
			"tz": {
				"type": "string",
				"description": "IANA timezone for cron expressions"
			},
			"at": {
				"type": "string",
				"description": "ISO datetime for one-time execution (e.g. '2026-08-01T10:30:00')"
			},
			"job_id": {
				"type": "string",
				"description": "Job ID (for remove)"
			}
		},
		"required": ["action"]
	}`)
}

func (t *CronTool) Execute(_ context.Context, args map[string]any) (schema.ToolResult, error) {
	action, _ := args["action"].(string)
	switch action {
	case "add":
		return t.addJob(args), nil
	case "list":
		return t.listJobs(), nil
	case "remove":
		return t.removeJob(args), nil
	default:
		return schema.ErrorResult(fmt.Sprintf("Unknown action: %s", action)), nil
	}
}

func (t *CronTool) addJob(args map[string]any) schema.ToolResult {
	message, _ := args["message"].(string)
	if message == "" {
		return schema.ErrorResult("Error: message is required for add")
	}
	if t.channel == "" || t.chatID == "" {
		return schema.ErrorResult("Error: no session context (channel/chat_id)")
	}

	var (
		kind          string
		everyMs, atMs int64
		cronExpr, tz  string
	)
	switch {
	case intArg(args, "every_seconds") > 0:
		kind = "every"
		everyMs = intArg(args, "every_seconds") * 1000
	case stringArg(args, "cron_expr") != "":
		kind = "cron"
		cronExpr = stringArg(args, "cron_expr")
		tz = stringArg(args, "tz")
	case stringArg(args, "at") != "":
		at, err := parseLocalTime(stringArg(args, "at"))
		if err != nil {
			return schema.ErrorResult("Error: invalid 'at' datetime: " + err.Error())
		}
		kind = "at"
		atMs = at.UnixMilli()
	default:
		return schema.ErrorResult("Error: one of every_seconds, cron_expr, or at is required")
	}

	name := message
	if len(name) > 40 {
		name = name[:40]
	}
	id, err := t.svc.AddJob(name, message, kind, everyMs, cronExpr, tz, atMs, true, t.channel, t.chatID)
	if err != nil {
		return schema.ErrorResult("Error: " + err.Error())
	}
	return schema.SuccessResult(fmt.Sprintf("Scheduled job %s (%s)", id, kind))
}

func (t *CronTool) listJobs() schema.ToolResult {
	jobs := t.svc.ListJobs()
	if len(jobs) == 0 {
		return schema.SuccessResult("No scheduled jobs.")
	}
	var sb strings.Builder
	for _, j := range jobs {
		fmt.Fprintf(&sb, "- %s [%s] %s\n", j.ID, j.Kind, j.Name)
	}
	return schema.SuccessResult(sb.String())
}

func (t *CronTool) removeJob(args map[string]any) schema.ToolResult {
	id, _ := args["job_id"].(string)
	if id == "" {
		return schema.ErrorResult("Error: job_id is required for remove")
	}
	if !t.svc.RemoveJob(id) {
		return schema.ErrorResult("Error: job not found: " + id)
	}
	return schema.SuccessResult("Removed job " + id)
}

func parseLocalTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04"} {
		if ts, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized datetime %q", s)
}

// intArg reads a numeric argument that may arrive as float64 (JSON) or int.
func intArg(args map[string]any, key string) int64 {
	switch v := args[key].(type) {
	case float64:
		return int64(v)
	case int:
		return int64(v)
	case int64:
		return v
	}
	return 0
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}
