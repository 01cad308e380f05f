//go:build linux

package ipc

import (
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSignalFlags_TakeChild(t *testing.T) {
	f := NewSignalFlags()
	defer f.Stop()

	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGCHLD))
	require.Eventually(t, f.TakeChild, time.Second, time.Millisecond)
	require.False(t, f.TakeChild())
}

func TestSignalFlags_TakeShutdown(t *testing.T) {
	f := NewSignalFlags()
	defer f.Stop()

	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGHUP))
	require.Eventually(t, f.TakeShutdown, time.Second, time.Millisecond)
	require.False(t, f.TakeShutdown())
}
