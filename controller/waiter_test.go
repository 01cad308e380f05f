//go:build linux

package controller

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jsdpag/metcore/codec"
	"github.com/jsdpag/metcore/ipc"
)

func TestWaiter_BroadcastReady(t *testing.T) {
	bcast, err := ipc.NewPipe()
	require.NoError(t, err)
	defer bcast.Close()

	w, err := NewWaiter(bcast.Read, nil)
	require.NoError(t, err)
	defer w.Close()

	_, err = writeAll(bcast.Write, []byte("x"))
	require.NoError(t, err)

	res, err := w.Wait(time.Second)
	require.NoError(t, err)
	require.True(t, res.BroadcastReady)
	require.WithinDuration(t, time.Now(), res.Time, time.Second)
}

func TestWaiter_Timeout(t *testing.T) {
	bcast, err := ipc.NewPipe()
	require.NoError(t, err)
	defer bcast.Close()

	w, err := NewWaiter(bcast.Read, nil)
	require.NoError(t, err)
	defer w.Close()

	res, err := w.Wait(20 * time.Millisecond)
	require.NoError(t, err)
	require.False(t, res.BroadcastReady)
}

func TestWaiter_SlotActionable(t *testing.T) {
	bcast, err := ipc.NewPipe()
	require.NoError(t, err)
	defer bcast.Close()

	writer, readers := newTestSlot(t, 1)

	w, err := NewWaiter(bcast.Read, []*Slot{writer, readers[0]})
	require.NoError(t, err)
	defer w.Close()

	_, err = writer.Write([]codec.Array{codec.NewLogical([]int{1}, []byte{1})}, false)
	require.NoError(t, err)

	res, err := w.Wait(time.Second)
	require.NoError(t, err)
	require.Contains(t, res.ReadableSlots, "eye")
}
