package tools

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRoot(t *testing.T) *Root {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "pkg", "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("hello"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pkg", "a.py"), []byte("print(1)\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pkg", "sub", "b.py"), []byte("print(2)\n"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".git", "HEAD"), []byte("ref"), 0o644))
	root, err := NewRoot(dir)
	require.NoError(t, err)
	return root
}

func TestRootResolve(t *testing.T) {
	root := newTestRoot(t)

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"relative", "pkg/a.py", false},
		{"dot", ".", false},
		{"empty is root", "", false},
		{"new file", "new/dir/c.py", false},
		{"inner dotdot", "pkg/../README.md", false},
		{"escape", "../outside.txt", true},
		{"deep escape", "pkg/../../outside.txt", true},
		{"absolute outside", "/etc/passwd", true},
		{"absolute inside", filepath.Join(root.Dir(), "README.md"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := root.Resolve(tt.path)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrOutsideRoot)
				return
			}
			require.NoError(t, err)
			assert.True(t, root.contains(got))
		})
	}
}

func TestRootRejectsSymlinkEscape(t *testing.T) {
	root := newTestRoot(t)
	outside := t.TempDir()
	require.NoError(t, os.Symlink(outside, filepath.Join(root.Dir(), "link")))

	_, err := root.Resolve("link/secret.txt")
	assert.ErrorIs(t, err, ErrOutsideRoot)
}

func TestReadFile(t *testing.T) {
	root := newTestRoot(t)
	tool := NewReadFileTool(root, 0)

	out, err := tool.Exec(context.Background(), map[string]any{"file_path": "pkg/a.py"})
	require.NoError(t, err)
	res := out.(map[string]any)
	assert.Equal(t, true, res["success"])
	assert.Equal(t, "print(1)\n", res["content"])
	assert.Equal(t, "pkg/a.py", res["file_path"])

	out, err = tool.Exec(context.Background(), map[string]any{"file_path": "missing.py"})
	require.NoError(t, err)
	assert.Equal(t, false, out.(map[string]any)["success"])

	_, err = tool.Exec(context.Background(), map[string]any{"file_path": "../../etc/passwd"})
	assert.ErrorIs(t, err, ErrOutsideRoot)

	_, err = tool.Exec(context.Background(), map[string]any{})
	assert.Error(t, err)
}

func TestReadFileTruncates(t *testing.T) {
	root := newTestRoot(t)
	tool := NewReadFileTool(root, 3)

	out, err := tool.Exec(context.Background(), map[string]any{"file_path": "README.md"})
	require.NoError(t, err)
	res := out.(map[string]any)
	assert.Equal(t, "hel", res["content"])
	assert.Equal(t, true, res["truncated"])
}

func TestWriteFile(t *testing.T) {
	root := newTestRoot(t)
	tool := NewWriteFileTool(root)
	ctx := context.Background()

	out, err := tool.Exec(ctx, map[string]any{"file_path": "greeting/hello.py", "text": "print('hi')\n"})
	require.NoError(t, err)
	assert.Equal(t, true, out.(map[string]any)["success"])

	data, err := os.ReadFile(filepath.Join(root.Dir(), "greeting", "hello.py"))
	require.NoError(t, err)
	assert.Equal(t, "print('hi')\n", string(data))

	_, err = tool.Exec(ctx, map[string]any{"file_path": "greeting/hello.py", "text": "print('again')\n", "append": true})
	require.NoError(t, err)
	data, err = os.ReadFile(filepath.Join(root.Dir(), "greeting", "hello.py"))
	require.NoError(t, err)
	assert.Equal(t, "print('hi')\nprint('again')\n", string(data))

	_, err = tool.Exec(ctx, map[string]any{"file_path": "../escape.py", "text": "x"})
	assert.ErrorIs(t, err, ErrOutsideRoot)

	_, err = tool.Exec(ctx, map[string]any{"file_path": "x.py", "content": "wrong key"})
	assert.Error(t, err)
}

func TestListDirectory(t *testing.T) {
	root := newTestRoot(t)
	tool := NewListDirectoryTool(root, 0)
	ctx := context.Background()

	out, err := tool.Exec(ctx, map[string]any{})
	require.NoError(t, err)
	res := out.(map[string]any)
	assert.Equal(t, []string{".git/", "README.md", "pkg/"}, res["entries"])

	out, err = tool.Exec(ctx, map[string]any{"dir_path": "pkg", "pattern": "**/*.py"})
	require.NoError(t, err)
	res = out.(map[string]any)
	assert.Equal(t, []string{"a.py", "sub/b.py"}, res["entries"])

	out, err = tool.Exec(ctx, map[string]any{"pattern": "**"})
	require.NoError(t, err)
	assert.NotContains(t, out.(map[string]any)["entries"], ".git/HEAD")

	_, err = tool.Exec(ctx, map[string]any{"dir_path": ".."})
	assert.ErrorIs(t, err, ErrOutsideRoot)
}

func TestListDirectoryLimit(t *testing.T) {
	root := newTestRoot(t)
	tool := NewListDirectoryTool(root, 1)

	out, err := tool.Exec(context.Background(), map[string]any{"pattern": "**/*.py"})
	require.NoError(t, err)
	res := out.(map[string]any)
	assert.Len(t, res["entries"], 1)
	assert.Equal(t, true, res["truncated"])
}

func TestWorkspaceRegistry(t *testing.T) {
	reg, err := NewWorkspaceTools(newTestRoot(t))
	require.NoError(t, err)

	defs := reg.List()
	require.Len(t, defs, 3)
	assert.Equal(t, ToolListDirectory, defs[0].Name)
	assert.Equal(t, ToolReadFile, defs[1].Name)
	assert.Equal(t, ToolWriteFile, defs[2].Name)
	assert.Equal(t, []string{"file_path", "text"}, defs[2].InputSchema.Required)

	_, err = reg.Get("rm_rf")
	assert.Error(t, err)
}
