package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/tinyclaw/tinyclaw/internal/schema"
)

// stubTool records its context/callback injections.
type stubTool struct {
	name    string
	result  schema.ToolResult
	err     error
	panics  bool
	channel string
	chatID  string
	cb      schema.AsyncCallback
}

func (s *stubTool) Name() string                { return s.name }
func (s *stubTool) Description() string         { return "stub" }
func (s *stubTool) Parameters() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }
func (s *stubTool) SetContext(channel, chatID string) {
	s.channel, s.chatID = channel, chatID
}
func (s *stubTool) SetCallback(cb schema.AsyncCallback) { s.cb = cb }
func (s *stubTool) Execute(context.Context, map[string]any) (schema.ToolResult, error) {
	if s.panics {
		panic("stub exploded")
	}
	return s.result, s.err
}

func TestExecuteUnknownTool(t *testing.T) {
	r := NewRegistry()
	res := r.Execute(context.Background(), "nope", nil, "", "", nil)
	if !res.IsError {
		t.Error("expected error result for unknown tool")
	}
}

func TestExecuteInjectsContext(t *testing.T) {
	stub := &stubTool{name: "ctx", result: schema.SuccessResult("ok")}
	r := NewRegistry()
	r.Register(stub)

	r.Execute(context.Background(), "ctx", nil, "tg", "chat-7", nil)
	if stub.channel != "tg" || stub.chatID != "chat-7" {
		t.Errorf("context not injected: %q %q", stub.channel, stub.chatID)
	}
}

func TestExecuteAttachesCallback(t *testing.T) {
	stub := &stubTool{name: "async", result: schema.AsyncResult("later")}
	r := NewRegistry()
	r.Register(stub)

	called := false
	r.Execute(context.Background(), "async", nil, "", "", func(schema.ToolResult) { called = true })
	if stub.cb == nil {
		t.Fatal("callback not attached")
	}
	stub.cb(schema.ToolResult{})
	if !called {
		t.Error("attached callback is not the provided one")
	}
}

func TestExecuteConvertsErrors(t *testing.T) {
	stub := &stubTool{name: "bad", err: fmt.Errorf("kaput")}
	r := NewRegistry()
	r.Register(stub)

	res := r.Execute(context.Background(), "bad", nil, "", "", nil)
	if !res.IsError {
		t.Error("tool errors must become error results")
	}
}

func TestExecuteRecoversPanics(t *testing.T) {
	stub := &stubTool{name: "boom", panics: true}
	r := NewRegistry()
	r.Register(stub)

	res := r.Execute(context.Background(), "boom", nil, "", "", nil)
	if !res.IsError {
		t.Error("panics must become error results")
	}
}

func TestDefinitionsOrder(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubTool{name: "b"})
	r.Register(&stubTool{name: "a"})

	defs := r.Definitions()
	if len(defs) != 2 {
		t.Fatalf("expected 2 definitions, got %d", len(defs))
	}
	if defs[0].Function.Name != "b" || defs[1].Function.Name != "a" {
		t.Errorf("definitions must follow registration order: %+v", defs)
	}
	if defs[0].Type != "function" {
		t.Errorf("definition type must be function, got %q", defs[0].Type)
	}
}

func TestEchoTool(t *testing.T) {
	res, err := EchoTool{}.Execute(context.Background(), map[string]any{"text": "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ForLLM != "hi" {
		t.Errorf("expected hi, got %q", res.ForLLM)
	}
}
