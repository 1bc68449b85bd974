package external

import (
	"io"
	"os"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("skipping on Windows")
	}
}

func TestCommand_Run(t *testing.T) {
	skipOnWindows(t)
	cmd := Command{Binary: "sh", Logger: zap.NewNop()}

	out, err := cmd.Run(t.Context(), "", "-c", "printf '%s' 'raw output data'")
	require.NoError(t, err)
	assert.Equal(t, "raw output data", string(out))
}

func TestCommand_WorkingDirectory(t *testing.T) {
	skipOnWindows(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(dir+"/test.txt", []byte("x"), 0o644))

	out, err := Command{Binary: "sh"}.Run(t.Context(), dir, "-c", "test -f test.txt && printf yes")
	require.NoError(t, err)
	assert.Equal(t, "yes", string(out))
}

func TestCommand_NonZeroExit(t *testing.T) {
	skipOnWindows(t)
	_, err := Command{Binary: "sh"}.Run(t.Context(), "", "-c", "echo 'error message' >&2; exit 1")
	require.Error(t, err)
	assert.ErrorContains(t, err, "command failed")
	assert.ErrorContains(t, err, "error message")
}

func TestCommand_Timeout(t *testing.T) {
	skipOnWindows(t)
	_, err := Command{Binary: "sh", Timeout: 100 * time.Millisecond}.Run(t.Context(), "", "-c", "sleep 10")
	require.Error(t, err)
	assert.ErrorContains(t, err, "timed out")
}

func TestCommand_NotFound(t *testing.T) {
	_, err := Command{Binary: "nonexistent-command-xyz"}.Run(t.Context(), "")
	require.Error(t, err)
	assert.ErrorContains(t, err, "command failed")
}

func TestCommand_OnlySafeEnvironment(t *testing.T) {
	skipOnWindows(t)
	t.Setenv("SECRET_VAR", "topsecret")

	out, err := Command{Binary: "sh"}.Run(t.Context(), "", "-c", `printf '%s|%s' "$SECRET_VAR" "$(test -n "$PATH" && echo path)"`)
	require.NoError(t, err)
	assert.Equal(t, "|path", string(out))
}

func TestCommand_Stream(t *testing.T) {
	skipOnWindows(t)

	rc, err := Command{Binary: "sh"}.Stream(t.Context(), "-c", "printf streamed")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "streamed", string(data))

	rc, err = Command{Binary: "sh"}.Stream(t.Context(), "-c", "echo broken >&2; exit 2")
	require.NoError(t, err)
	_, err = io.ReadAll(rc)
	require.NoError(t, err)
	err = rc.Close()
	require.Error(t, err)
	assert.ErrorContains(t, err, "broken")
}

func TestRedact(t *testing.T) {
	assert.Equal(t,
		[]string{"x", "-p***", "-p", "--", "file"},
		redact([]string{"x", "-psecret", "-p", "--", "file"}))
}
