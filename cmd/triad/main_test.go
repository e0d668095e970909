package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triad/pkg/config"
	"triad/pkg/version"
)

func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd(&app{})
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml")}, args...))
	err := root.ExecuteContext(t.Context())
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := runCLI(t, "", "version")
	require.NoError(t, err)
	assert.Equal(t, version.String()+"\n", out)
}

func TestReadTask(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "issue.md")
	require.NoError(t, os.WriteFile(path, []byte("Fix the parser\n"), 0o600))

	tests := []struct {
		name    string
		arg     string
		want    string
		wantErr string
	}{
		{name: "inline", arg: "add a flag", want: "add a flag"},
		{name: "from file", arg: "@" + path, want: "Fix the parser\n"},
		{name: "missing file", arg: "@" + filepath.Join(dir, "nope.md"), wantErr: "failed to read task file"},
		{name: "blank", arg: "   ", wantErr: "task is empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readTask(tt.arg)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSolveRequiresTask(t *testing.T) {
	_, err := runCLI(t, "", "solve", "--dir", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "task")
}

func TestSecretsSetAndList(t *testing.T) {
	projectDir := t.TempDir()
	t.Setenv(passwordEnv, "correct horse")
	t.Cleanup(func() { config.SetDecryptedSecrets(nil) })

	out, err := runCLI(t, "sk-test-123\n", "--projectdir", projectDir, "secrets", "set", "OPENAI_API_KEY")
	require.NoError(t, err)
	assert.Contains(t, out, "Saved OPENAI_API_KEY")
	assert.True(t, config.SecretsFileExists(projectDir))

	secrets, err := config.DecryptSecretsFile(projectDir, "correct horse")
	require.NoError(t, err)
	assert.Equal(t, "sk-test-123", secrets["OPENAI_API_KEY"])

	config.SetDecryptedSecrets(nil)
	out, err = runCLI(t, "", "--projectdir", projectDir, "secrets", "list")
	require.NoError(t, err)
	assert.Equal(t, "OPENAI_API_KEY\n", out)
}

func TestSecretsWrongPassword(t *testing.T) {
	projectDir := t.TempDir()
	require.NoError(t, config.EncryptSecretsFile(projectDir, "right", map[string]string{"X": "y"}))
	t.Setenv(passwordEnv, "wrong")

	_, err := runCLI(t, "", "--projectdir", projectDir, "secrets", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decrypt secrets")
}

func TestSecretsSetRejectsEmptyValue(t *testing.T) {
	t.Setenv(passwordEnv, "pw")
	_, err := runCLI(t, "  \n", "--projectdir", t.TempDir(), "secrets", "set", "OPENAI_API_KEY")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty value")
}

func TestDBPathDefaultsBesideLogs(t *testing.T) {
	a := &app{cfg: config.Default()}
	assert.Equal(t, filepath.Join(config.DefaultLogsDir, "triad.db"), a.dbPath())

	a.cfg.Paths.DBPath = "/tmp/x.db"
	assert.Equal(t, "/tmp/x.db", a.dbPath())
}
