package pidfile

import (
	"os"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRunning_TrueForOwnProcess(t *testing.T) {
	assert.True(t, IsRunning(os.Getpid()))
}

func TestIsRunning_FalseForImplausiblyHighPID(t *testing.T) {
	assert.False(t, IsRunning(1<<30))
}

func TestRead_ParsesTrimmedContent(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/bal.pid"
	require.NoError(t, os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644))

	pid, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestRead_RejectsCorruptContent(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/bal.pid"
	require.NoError(t, os.WriteFile(path, []byte("not-a-pid"), 0o644))

	_, err := Read(path)
	assert.Error(t, err)
}
