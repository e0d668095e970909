package tools

import (
	"context"
	"fmt"
	"io"
	"os"
)

const defaultMaxReadBytes = 1 << 20

// ReadFileTool reads a file inside the workspace.
type ReadFileTool struct {
	root         *Root
	maxSizeBytes int64
}

// NewReadFileTool creates a read_file tool; maxSizeBytes <= 0 means 1MB.
func NewReadFileTool(root *Root, maxSizeBytes int64) *ReadFileTool {
	if maxSizeBytes <= 0 {
		maxSizeBytes = defaultMaxReadBytes
	}
	return &ReadFileTool{root: root, maxSizeBytes: maxSizeBytes}
}

func (t *ReadFileTool) Name() string { return ToolReadFile }

func (t *ReadFileTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolReadFile,
		Description: "Read a file from the repository. Paths are relative to the repository root.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"file_path": {Type: "string", Description: "Path of the file to read"},
			},
			Required: []string{"file_path"},
		},
	}
}

func (t *ReadFileTool) Exec(_ context.Context, args map[string]any) (any, error) {
	path, ok := stringArg(args, "file_path")
	if !ok || path == "" {
		return nil, fmt.Errorf("file_path is required and must be a string")
	}
	full, err := t.root.Resolve(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(full)
	if err != nil {
		return map[string]any{"success": false, "error": fmt.Sprintf("cannot read %s: %v", path, err)}, nil
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, t.maxSizeBytes+1))
	if err != nil {
		return map[string]any{"success": false, "error": fmt.Sprintf("cannot read %s: %v", path, err)}, nil
	}
	truncated := int64(len(data)) > t.maxSizeBytes
	if truncated {
		data = data[:t.maxSizeBytes]
	}
	return map[string]any{
		"success":   true,
		"file_path": t.root.Rel(full),
		"content":   string(data),
		"truncated": truncated,
	}, nil
}
