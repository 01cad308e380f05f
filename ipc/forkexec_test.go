//go:build linux

package ipc

import (
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestForkExec(t *testing.T) {
	spec := ChildSpec{
		Path:  "/bin/true",
		Argv:  []string{"true"},
		Env:   []string{},
		Files: StdFiles(),
		Pgid:  0,
	}

	pid, err := ForkExec(spec)
	require.NoError(t, err)
	require.Positive(t, pid)

	var ws syscall.WaitStatus
	_, err = syscall.Wait4(pid, &ws, 0, nil)
	require.NoError(t, err)
	require.True(t, ws.Exited())
	require.Zero(t, ws.ExitStatus())
}

func TestForkExec_JoinsGroup(t *testing.T) {
	first := ChildSpec{Path: "/bin/sleep", Argv: []string{"sleep", "0.2"}, Env: []string{}, Files: StdFiles()}
	pid1, err := ForkExec(first)
	require.NoError(t, err)

	pgid, err := syscall.Getpgid(pid1)
	require.NoError(t, err)

	second := ChildSpec{Path: "/bin/sleep", Argv: []string{"sleep", "0.2"}, Env: []string{}, Files: StdFiles(), Pgid: pgid}
	pid2, err := ForkExec(second)
	require.NoError(t, err)

	pgid2, err := syscall.Getpgid(pid2)
	require.NoError(t, err)
	require.Equal(t, pgid, pgid2)

	var ws syscall.WaitStatus
	syscall.Wait4(pid1, &ws, 0, nil)
	syscall.Wait4(pid2, &ws, 0, nil)
}
