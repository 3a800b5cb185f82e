package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unsetenv clears keys for the duration of the test.
func unsetenv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func TestLoadEnvFileParsesAndRespectsExistingValues(t *testing.T) {
	envPath := filepath.Join(t.TempDir(), "env")
	content := `
# comment
export FOO=bar
QUOTED="hello world"
SINGLE='x y'
INVALID_LINE
=novalue
`
	require.NoError(t, os.WriteFile(envPath, []byte(content), 0o600))

	t.Setenv("FOO", "existing")
	unsetenv(t, "QUOTED", "SINGLE")

	require.NoError(t, loadEnvFile(envPath))

	assert.Equal(t, "existing", os.Getenv("FOO"))
	assert.Equal(t, "hello world", os.Getenv("QUOTED"))
	assert.Equal(t, "x y", os.Getenv("SINGLE"))
}

func TestLoadEnvFileMissing(t *testing.T) {
	assert.Error(t, loadEnvFile(filepath.Join(t.TempDir(), "nope")))
}

func TestLoadEnvFileCandidatesFromExplicitPath(t *testing.T) {
	envPath := filepath.Join(t.TempDir(), "expensecat.env")
	require.NoError(t, os.WriteFile(envPath, []byte("EXPLICIT_KEY=42\n"), 0o600))

	t.Setenv("HOME", t.TempDir())
	t.Setenv("EXPENSECAT_ENV_FILE", envPath)
	unsetenv(t, "EXPLICIT_KEY")

	LoadEnvFileCandidates()

	assert.Equal(t, "42", os.Getenv("EXPLICIT_KEY"))
}

func TestLoadEnvFileCandidatesExplicitWinsOverHomeFile(t *testing.T) {
	home := t.TempDir()
	homeEnv := filepath.Join(home, ".config", ConfigDir, "env")
	require.NoError(t, os.MkdirAll(filepath.Dir(homeEnv), 0o700))
	require.NoError(t, os.WriteFile(homeEnv, []byte("SHARED_KEY=home\nHOME_ONLY=yes\n"), 0o600))

	explicit := filepath.Join(t.TempDir(), "env")
	require.NoError(t, os.WriteFile(explicit, []byte("SHARED_KEY=explicit\n"), 0o600))

	t.Setenv("HOME", home)
	t.Setenv("EXPENSECAT_ENV_FILE", explicit)
	unsetenv(t, "SHARED_KEY", "HOME_ONLY")

	LoadEnvFileCandidates()

	assert.Equal(t, "explicit", os.Getenv("SHARED_KEY"))
	assert.Equal(t, "yes", os.Getenv("HOME_ONLY"))
}

func TestEnvFileCandidatesDeduplicates(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("EXPENSECAT_ENV_FILE", filepath.Join(home, ".config", ConfigDir, "env"))

	got := envFileCandidates()
	require.Len(t, got, 2)
	assert.Equal(t, filepath.Join(home, ".config", ConfigDir, "env"), got[0])
	assert.True(t, filepath.IsAbs(got[1]))
	assert.Equal(t, ".env", filepath.Base(got[1]))
}
