package agent

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tinyclaw/tinyclaw/internal/schema"
	"github.com/tinyclaw/tinyclaw/internal/tools"
)

func writeWorkspaceFile(t *testing.T, workspace, name, content string) {
	t.Helper()
	path := filepath.Join(workspace, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestSystemPromptSectionOrder(t *testing.T) {
	ws := t.TempDir()
	writeWorkspaceFile(t, ws, "IDENTITY.md", "I am the identity.")
	writeWorkspaceFile(t, ws, "SOUL.md", "I am the soul.")
	writeWorkspaceFile(t, ws, "skills/alpha/SKILL.md", "alpha skill")
	writeWorkspaceFile(t, ws, "skills/beta/SKILL.md", "beta skill")
	writeWorkspaceFile(t, ws, "memory/MEMORY.md", "remember this")

	registry := tools.NewRegistry()
	registry.Register(tools.EchoTool{})

	prompt := NewContextBuilder(ws, registry).BuildSystemPrompt()

	order := []string{
		"I am the identity.",
		"I am the soul.",
		"## alpha",
		"## beta",
		"# Available Tools",
		"echo",
		"# Memory",
		"remember this",
	}
	last := -1
	for _, want := range order {
		idx := strings.Index(prompt, want)
		if idx < 0 {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
		if idx < last {
			t.Errorf("%q appears out of order", want)
		}
		last = idx
	}
}

func TestSystemPromptSkipsEmptyBootstrap(t *testing.T) {
	ws := t.TempDir()
	writeWorkspaceFile(t, ws, "IDENTITY.md", "   \n")
	writeWorkspaceFile(t, ws, "USER.md", "the user")

	prompt := NewContextBuilder(ws, nil).BuildSystemPrompt()
	if !strings.Contains(prompt, "the user") {
		t.Errorf("non-empty bootstrap file missing: %q", prompt)
	}
	if strings.Contains(prompt, "IDENTITY") {
		t.Errorf("empty file should contribute nothing: %q", prompt)
	}
}

func TestBuildMessagesShape(t *testing.T) {
	ws := t.TempDir()
	writeWorkspaceFile(t, ws, "AGENT.md", "agent doc")
	cb := NewContextBuilder(ws, nil)

	history := []schema.Message{
		schema.NewUserMessage("earlier"),
		schema.NewAssistantMessage("reply", nil),
	}
	msgs := cb.BuildMessages(history, "we talked before", "now")

	if len(msgs) != 5 {
		t.Fatalf("expected 5 messages, got %d", len(msgs))
	}
	if msgs[0].Role != "system" {
		t.Errorf("first message must be the system prompt")
	}
	if msgs[1].Role != "system" || !strings.HasPrefix(msgs[1].Content, "Summary of earlier conversation:") {
		t.Errorf("second message must be the summary: %+v", msgs[1])
	}
	if msgs[2].Content != "earlier" || msgs[3].Content != "reply" {
		t.Errorf("history must follow: %+v", msgs[2:4])
	}
	if msgs[4].Role != "user" || msgs[4].Content != "now" {
		t.Errorf("current message must be last: %+v", msgs[4])
	}
}

func TestBuildMessagesNoSummary(t *testing.T) {
	cb := NewContextBuilder(t.TempDir(), nil)
	msgs := cb.BuildMessages(nil, "", "hi")
	for _, m := range msgs {
		if strings.HasPrefix(m.Content, "Summary of earlier conversation:") {
			t.Error("no summary message expected")
		}
	}
}

func TestBuildDeterministic(t *testing.T) {
	ws := t.TempDir()
	writeWorkspaceFile(t, ws, "IDENTITY.md", "fixed")
	writeWorkspaceFile(t, ws, "skills/a/SKILL.md", "skill a")
	cb := NewContextBuilder(ws, nil)

	first := cb.BuildSystemPrompt()
	for i := 0; i < 5; i++ {
		if got := cb.BuildSystemPrompt(); got != first {
			t.Fatal("system prompt must be deterministic")
		}
	}
}
