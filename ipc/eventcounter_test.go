//go:build linux

package ipc

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestEventCounter_SignalRead(t *testing.T) {
	e, err := NewEventCounter(0, false)
	require.NoError(t, err)
	defer e.Close()

	require.NoError(t, e.Signal(3))
	v, err := e.Read()
	require.NoError(t, err)
	require.Equal(t, uint64(3), v)

	_, err = e.Read()
	require.ErrorIs(t, err, unix.EAGAIN)
}

func TestEventCounter_Semaphore(t *testing.T) {
	e, err := NewEventCounter(0, true)
	require.NoError(t, err)
	defer e.Close()

	require.NoError(t, e.Signal(3))

	for i := 0; i < 3; i++ {
		v, err := e.Read()
		require.NoError(t, err)
		require.Equal(t, uint64(1), v)
	}
	_, err = e.Read()
	require.ErrorIs(t, err, unix.EAGAIN)
}

func TestEventCounter_Fd(t *testing.T) {
	e, err := NewEventCounter(0, false)
	require.NoError(t, err)
	defer e.Close()
	require.Positive(t, e.Fd())
}
