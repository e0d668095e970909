package tools

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

const defaultMaxListResults = 1000

var errStopWalk = errors.New("stop walk")

// ListDirectoryTool lists entries of a workspace directory, optionally
// filtered recursively by a doublestar glob.
type ListDirectoryTool struct {
	root       *Root
	maxResults int
}

func NewListDirectoryTool(root *Root, maxResults int) *ListDirectoryTool {
	if maxResults <= 0 {
		maxResults = defaultMaxListResults
	}
	return &ListDirectoryTool{root: root, maxResults: maxResults}
}

func (t *ListDirectoryTool) Name() string { return ToolListDirectory }

func (t *ListDirectoryTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolListDirectory,
		Description: "List files and directories in a repository directory. With pattern, list matching files recursively (e.g. '**/*.py').",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"dir_path": {Type: "string", Description: "Directory to list, relative to the repository root. Defaults to '.'"},
				"pattern":  {Type: "string", Description: "Optional glob pattern evaluated under dir_path"},
			},
		},
	}
}

func (t *ListDirectoryTool) Exec(ctx context.Context, args map[string]any) (any, error) {
	dir, _ := stringArg(args, "dir_path")
	full, err := t.root.Resolve(dir)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(full)
	if err != nil {
		return map[string]any{"success": false, "error": fmt.Sprintf("cannot list %s: %v", dir, err)}, nil
	}
	if !info.IsDir() {
		return map[string]any{"success": false, "error": fmt.Sprintf("%s is not a directory", dir)}, nil
	}

	pattern, _ := stringArg(args, "pattern")
	var entries []string
	truncated := false
	if pattern == "" {
		des, err := os.ReadDir(full)
		if err != nil {
			return map[string]any{"success": false, "error": fmt.Sprintf("cannot list %s: %v", dir, err)}, nil
		}
		for _, de := range des {
			name := de.Name()
			if de.IsDir() {
				name += "/"
			}
			entries = append(entries, name)
		}
	} else {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid glob pattern %q", pattern)
		}
		fsys := os.DirFS(full)
		err := doublestar.GlobWalk(fsys, pattern, func(p string, d fs.DirEntry) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if inGitDir(p) {
				return nil
			}
			if len(entries) >= t.maxResults {
				truncated = true
				return errStopWalk
			}
			if d.IsDir() {
				p += "/"
			}
			entries = append(entries, p)
			return nil
		})
		if err != nil && !errors.Is(err, errStopWalk) {
			return map[string]any{"success": false, "error": fmt.Sprintf("cannot glob %s: %v", pattern, err)}, nil
		}
	}

	sort.Strings(entries)
	if len(entries) > t.maxResults {
		entries = entries[:t.maxResults]
		truncated = true
	}
	return map[string]any{
		"success":   true,
		"dir_path":  t.root.Rel(full),
		"entries":   entries,
		"count":     len(entries),
		"truncated": truncated,
	}, nil
}

func inGitDir(p string) bool {
	return p == ".git" || strings.HasPrefix(p, ".git/") || strings.Contains(p, "/.git/") || strings.HasSuffix(p, "/.git")
}
