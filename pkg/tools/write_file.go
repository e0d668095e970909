package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// WriteFileTool writes (or appends to) a file inside the workspace.
type WriteFileTool struct {
	root *Root
}

func NewWriteFileTool(root *Root) *WriteFileTool {
	return &WriteFileTool{root: root}
}

func (t *WriteFileTool) Name() string { return ToolWriteFile }

func (t *WriteFileTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolWriteFile,
		Description: "Write text to a file in the repository, replacing its content. Parent directories are created.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"file_path": {Type: "string", Description: "Path of the file to write"},
				"text":      {Type: "string", Description: "Full file content to write"},
				"append":    {Type: "boolean", Description: "Append instead of overwriting"},
			},
			Required: []string{"file_path", "text"},
		},
	}
}

func (t *WriteFileTool) Exec(_ context.Context, args map[string]any) (any, error) {
	path, ok := stringArg(args, "file_path")
	if !ok || path == "" {
		return nil, fmt.Errorf("file_path is required and must be a string")
	}
	text, ok := stringArg(args, "text")
	if !ok {
		return nil, fmt.Errorf("text is required and must be a string")
	}
	full, err := t.root.Resolve(path)
	if err != nil {
		return nil, err
	}
	if full == t.root.Dir() {
		return nil, fmt.Errorf("file_path must name a file, not the repository root")
	}

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return map[string]any{"success": false, "error": fmt.Sprintf("cannot create directory: %v", err)}, nil
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if boolArg(args, "append") {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	f, err := os.OpenFile(full, flags, 0o644)
	if err != nil {
		return map[string]any{"success": false, "error": fmt.Sprintf("cannot open %s: %v", path, err)}, nil
	}
	n, werr := f.WriteString(text)
	cerr := f.Close()
	if werr != nil || cerr != nil {
		return map[string]any{"success": false, "error": fmt.Sprintf("cannot write %s: %v", path, firstErr(werr, cerr))}, nil
	}
	return map[string]any{
		"success":       true,
		"file_path":     t.root.Rel(full),
		"bytes_written": n,
	}, nil
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
