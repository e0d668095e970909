package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecretsRoundTripThroughFile(t *testing.T) {
	dir := t.TempDir()
	secrets := map[string]string{"OPENAI_API_KEY": "sk-test"}

	require.NoError(t, EncryptSecretsFile(dir, "hunter2", secrets))
	assert.True(t, SecretsFileExists(dir))

	info, err := os.Stat(SecretsFilePath(dir))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	got, err := DecryptSecretsFile(dir, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, secrets, got)

	_, err = DecryptSecretsFile(dir, "wrong")
	assert.Error(t, err)
}

func TestGetSecretPrecedence(t *testing.T) {
	t.Cleanup(func() { SetDecryptedSecrets(nil) })
	t.Setenv("TRIAD_TEST_SECRET", "from-env")

	v, err := GetSecret("TRIAD_TEST_SECRET")
	require.NoError(t, err)
	assert.Equal(t, "from-env", v)

	SetSecret("TRIAD_TEST_SECRET", "from-file")
	v, err = GetSecret("TRIAD_TEST_SECRET")
	require.NoError(t, err)
	assert.Equal(t, "from-file", v)
	assert.Equal(t, []string{"TRIAD_TEST_SECRET"}, SecretNames())

	_, err = GetSecret("TRIAD_SECRET_THAT_DOES_NOT_EXIST")
	assert.Error(t, err)
}

func TestAPIKeyEnv(t *testing.T) {
	assert.Equal(t, "OPENAI_API_KEY", APIKeyEnv(ProviderOpenAI))
	assert.Equal(t, "ANTHROPIC_API_KEY", APIKeyEnv(ProviderAnthropic))
	assert.Equal(t, "GEMINI_API_KEY", APIKeyEnv(ProviderGoogle))
	assert.Empty(t, APIKeyEnv(ProviderOllama))
}
