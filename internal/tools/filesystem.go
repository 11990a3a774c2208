package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tinyclaw/tinyclaw/internal/schema"
)

// resolvePath resolves path against workspace (when relative) and enforces
// the allowed-directory restriction when allowedDir is non-empty.
func resolvePath(path, workspace, allowedDir string) (string, error) {
	p := path
	if !filepath.IsAbs(p) && workspace != "" {
		p = filepath.Join(workspace, p)
	}
	resolved, err := filepath.EvalSymlinks(p)
	if err != nil {
		// Path may not exist yet (for writes).
		resolved = filepath.Clean(p)
	}
	if allowedDir != "" {
		allowed := filepath.Clean(allowedDir)
		if resolved != allowed && !strings.HasPrefix(resolved, allowed+string(filepath.Separator)) {
			return "", fmt.Errorf("path %s is outside allowed directory %s", path, allowedDir)
		}
	}
	return resolved, nil
}

// ReadFileTool reads a file and returns its contents.
type ReadFileTool struct {
	workspace  string
	allowedDir string
}

func NewReadFileTool(workspace, allowedDir string) *ReadFileTool {
	return &ReadFileTool{workspace: workspace, allowedDir: allowedDir}
}

func (t *ReadFileTool) Name() string        { return "read_file" }
func (t *ReadFileTool) Description() string { return "Read the contents of a file at the given path." }
func (t *ReadFileTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {
				"type": "string",
				"description": "The file path to read"
			}
		},
		"required": ["path"]
	}`)
}

func (t *ReadFileTool) Execute(_ context.Context, args map[string]any) (schema.ToolResult, error) {
	path, _ := args["path"].(string)
	if path == "" {
		return schema.ErrorResult("Error: path is required"), nil
	}
	fp, err := resolvePath(path, t.workspace, t.allowedDir)
	if err != nil {
		return schema.ErrorResult("Error: " + err.Error()), nil
	}
	info, err := os.Stat(fp)
	if err != nil {
		return schema.ErrorResult("Error: file not found: " + path), nil
	}
	if !info.Mode().IsRegular() {
		return schema.ErrorResult("Error: not a file: " + path), nil
	}
	data, err := os.ReadFile(fp)
	if err != nil {
		return schema.ErrorResult("Error reading file: " + err.Error()), nil
	}
	return schema.SuccessResult(string(data)), nil
}

// WriteFileTool writes content to a file, creating parent directories.
type WriteFileTool struct {
	workspace  string
	allowedDir string
}

func NewWriteFileTool(workspace, allowedDir string) *WriteFileTool {
	return &WriteFileTool{workspace: workspace, allowedDir: allowedDir}
}

func (t *WriteFileTool) Name() string { return "write_file" }
func (t *WriteFileTool) Description() string {
	return "Write content to a file at the given path. Creates parent directories if needed."
}
func (t *WriteFileTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {
				"type": "string",
				"description": "The file path to write to"
			},
			"content": {
				"type": "string",
				"description": "The content to write"
			}
		},
		"required": ["path", "content"]
	}`)
}

func (t *WriteFileTool) Execute(_ context.Context, args map[string]any) (schema.ToolResult, error) {
	path, _ := args["path"].(string)
	content, _ := args["content"].(string)
	if path == "" {
		return schema.ErrorResult("Error: path is required"), nil
	}
	fp, err := resolvePath(path, t.workspace, t.allowedDir)
	if err != nil {
		return schema.ErrorResult("Error: " + err.Error()), nil
	}
	if err := os.MkdirAll(filepath.Dir(fp), 0o755); err != nil {
		return schema.ErrorResult("Error creating directories: " + err.Error()), nil
	}
	if err := os.WriteFile(fp, []byte(content), 0o644); err != nil {
		return schema.ErrorResult("Error writing file: " + err.Error()), nil
	}
	return schema.SuccessResult(fmt.Sprintf("Wrote %d bytes to %s", len(content), fp)), nil
}

// EditFileTool replaces old_text with new_text in a file.
type EditFileTool struct {
	workspace  string
	allowedDir string
}

func NewEditFileTool(workspace, allowedDir string) *EditFileTool {
	return &EditFileTool{workspace: workspace, allowedDir: allowedDir}
}

func (t *EditFileTool) Name() string { return "edit_file" }
func (t *EditFileTool) Description() string {
	return "Edit a file by replacing old_text with new_text. The old_text must exist exactly in the file."
}
func (t *EditFileTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {
				"type": "string",
				"description": "The file path to edit"
			},
			"old_text": {
				"type": "string",
				"description": "The exact text to find and replace"
			},
			"new_text": {
				"type": "string",
				"description": "The text to replace with"
			}
		},
		"required": ["path", "old_text", "new_text"]
	}`)
}

func (t *EditFileTool) Execute(_ context.Context, args map[string]any) (schema.ToolResult, error) {
	path, _ := args["path"].(string)
	oldText, _ := args["old_text"].(string)
	newText, _ := args["new_text"].(string)
	if path == "" || oldText == "" {
		return schema.ErrorResult("Error: path and old_text are required"), nil
	}
	fp, err := resolvePath(path, t.workspace, t.allowedDir)
	if err != nil {
		return schema.ErrorResult("Error: " + err.Error()), nil
	}
	data, err := os.ReadFile(fp)
	if err != nil {
		return schema.ErrorResult("Error: file not found: " + path), nil
	}
	content := string(data)

	switch count := strings.Count(content, oldText); {
	case count == 0:
		return schema.ErrorResult("Error: old_text not found in " + path), nil
	case count > 1:
		return schema.ErrorResult(fmt.Sprintf(
			"Error: old_text appears %d times in %s; provide more context to make it unique", count, path)), nil
	}

	updated := strings.Replace(content, oldText, newText, 1)
	if err := os.WriteFile(fp, []byte(updated), 0o644); err != nil {
		return schema.ErrorResult("Error writing file: " + err.Error()), nil
	}
	return schema.SuccessResult("Edited " + fp), nil
}

// ListDirTool lists a directory's entries.
type ListDirTool struct {
	workspace  string
	allowedDir string
}

func NewListDirTool(workspace, allowedDir string) *ListDirTool {
	return &ListDirTool{workspace: workspace, allowedDir: allowedDir}
}

func (t *ListDirTool) Name() string        { return "list_dir" }
func (t *ListDirTool) Description() string { return "List the entries of a directory." }
func (t *ListDirTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {
				"type": "string",
				"description": "The directory path to list (defaults to the workspace)"
			}
		}
	}`)
}

func (t *ListDirTool) Execute(_ context.Context, args map[string]any) (schema.ToolResult, error) {
	path, _ := args["path"].(string)
	if path == "" {
		path = "."
	}
	fp, err := resolvePath(path, t.workspace, t.allowedDir)
	if err != nil {
		return schema.ErrorResult("Error: " + err.Error()), nil
	}
	entries, err := os.ReadDir(fp)
	if err != nil {
		return schema.ErrorResult("Error reading directory: " + err.Error()), nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) == 0 {
		return schema.SuccessResult("(empty directory)"), nil
	}
	return schema.SuccessResult(strings.Join(names, "\n")), nil
}
