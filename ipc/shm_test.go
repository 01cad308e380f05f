//go:build linux

package ipc

import (
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSharedRegion_RoundTrip(t *testing.T) {
	name := fmt.Sprintf("metcore-test-%d", os.Getpid())
	owner, err := NewSharedRegion(name, 4096, true)
	require.NoError(t, err)
	defer func() {
		owner.Close()
		Unlink(name)
	}()

	copy(owner.Bytes(), []byte("hello"))

	joiner, err := NewSharedRegion(name, 4096, false)
	require.NoError(t, err)
	defer joiner.Close()

	require.Equal(t, "hello", string(joiner.Bytes()[:5]))
	require.Equal(t, name, owner.Name())
}

func TestUnlink_NotFound(t *testing.T) {
	err := Unlink("metcore-test-does-not-exist")
	require.Error(t, err)
}
