package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/tinyclaw/tinyclaw/internal/schema"
)

// denyPatterns blocks commands that could damage the host.
var denyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\brm\s+-[rf]{1,2}\b`),
	regexp.MustCompile(`(?i)\b(mkfs|diskpart)\b`),
	regexp.MustCompile(`(?i)\bdd\s+if=`),
	regexp.MustCompile(`(?i)>\s*/dev/sd`),
	regexp.MustCompile(`(?i)\b(shutdown|reboot|poweroff)\b`),
	regexp.MustCompile(`:\(\)\s*\{.*\};\s*:`), // fork bomb
}

// ExecTool runs shell commands asynchronously with a timeout so they never
// block peer tasks.
type ExecTool struct {
	timeout             time.Duration
	workspace           string
	restrictToWorkspace bool
}

// NewExecTool creates an ExecTool. timeoutSeconds <= 0 selects 120 s.
func NewExecTool(workspace string, timeoutSeconds int, restrictToWorkspace bool) *ExecTool {
	if timeoutSeconds <= 0 {
		timeoutSeconds = 120
	}
	return &ExecTool{
		timeout:             time.Duration(timeoutSeconds) * time.Second,
		workspace:           workspace,
		restrictToWorkspace: restrictToWorkspace,
	}
}

func (t *ExecTool) Name() string { return "exec" }
func (t *ExecTool) Description() string {
	return "Execute a shell command and return its output. Use with caution."
}
func (t *ExecTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"command": {
				"type": "string",
				"description": "The shell command to execute"
			},
			"working_dir": {
				"type": "string",
				"description": "Optional working directory for the command"
			}
		},
		"required": ["command"]
	}`)
}

func (t *ExecTool) Execute(ctx context.Context, args map[string]any) (schema.ToolResult, error) {
	command, _ := args["command"].(string)
	if command == "" {
		return schema.ErrorResult("Error: command is required"), nil
	}

	cwd := t.workspace
	if wd, ok := args["working_dir"].(string); ok && wd != "" {
		cwd = wd
	}
	if cwd == "" {
		cwd, _ = os.Getwd()
	}

	if guard := t.guard(command); guard != "" {
		return schema.ErrorResult(guard), nil
	}

	cmdCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, "sh", "-c", command)
	cmd.Dir = cwd

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	runErr := cmd.Run()

	if cmdCtx.Err() == context.DeadlineExceeded {
		return schema.ErrorResult(fmt.Sprintf("Error: command timed out after %v", t.timeout)), nil
	}

	var parts []string
	if out := stdout.String(); out != "" {
		parts = append(parts, out)
	}
	if errOut := stderr.String(); strings.TrimSpace(errOut) != "" {
		parts = append(parts, "STDERR:\n"+errOut)
	}
	if runErr != nil && cmd.ProcessState != nil && cmd.ProcessState.ExitCode() != 0 {
		parts = append(parts, fmt.Sprintf("Exit code: %d", cmd.ProcessState.ExitCode()))
	}

	result := strings.Join(parts, "\n")
	if result == "" {
		result = "(no output)"
	}
	const maxLen = 10000
	if len(result) > maxLen {
		result = result[:maxLen] + fmt.Sprintf("\n... (truncated, %d more chars)", len(result)-maxLen)
	}
	if runErr != nil && len(parts) > 0 {
		return schema.ErrorResult(result), nil
	}
	return schema.SuccessResult(result), nil
}

func (t *ExecTool) guard(command string) string {
	lower := strings.ToLower(strings.TrimSpace(command))
	for _, p := range denyPatterns {
		if p.MatchString(lower) {
			return "Error: command blocked by safety guard (dangerous pattern detected)"
		}
	}
	if t.restrictToWorkspace {
		if strings.Contains(command, "../") || strings.Contains(command, `..\`) {
			return "Error: command blocked by safety guard (path traversal detected)"
		}
	}
	return ""
}
