//go:build linux

package controller

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jsdpag/metcore/codec"
	"github.com/jsdpag/metcore/ipc"
	"github.com/jsdpag/metcore/pkg"
)

func newTestSlot(t *testing.T, numReaders int) (*Slot, []*Slot) {
	t.Helper()

	name := fmt.Sprintf("metcore-ctrl-test-%d-%s", os.Getpid(), strings.ReplaceAll(t.Name(), "/", "-"))
	region, err := ipc.NewSharedRegion(name, 4096, true)
	require.NoError(t, err)
	t.Cleanup(func() {
		region.Close()
		ipc.Unlink(name)
	})

	readersCounter, err := ipc.NewEventCounter(0, false)
	require.NoError(t, err)
	t.Cleanup(func() { readersCounter.Close() })

	writerCounters := make([]*ipc.EventCounter, numReaders)
	readerSlots := make([]*Slot, numReaders)
	for i := range writerCounters {
		wc, err := ipc.NewEventCounter(0, true)
		require.NoError(t, err)
		t.Cleanup(func() { wc.Close() })
		writerCounters[i] = wc
		readerSlots[i] = NewReaderSlot("eye", region, readersCounter, wc)
	}

	writer := NewWriterSlot("eye", region, readersCounter, writerCounters)
	return writer, readerSlots
}

func TestSlot_WriteReadRoundTrip(t *testing.T) {
	writer, readers := newTestSlot(t, 2)

	first := bytes.Repeat([]byte{0xAA}, 8*4)
	arrays := []codec.Array{
		codec.Numeric(codec.Float64, []int{2, 2}, first),
	}

	wrote, err := writer.Write(arrays, false)
	require.NoError(t, err)
	require.True(t, wrote)

	var firstRead []codec.Array
	for _, r := range readers {
		got, err := r.Read(false)
		require.NoError(t, err)
		require.Len(t, got, 1)
		require.Equal(t, codec.Float64, got[0].Class)
		require.Equal(t, []int{2, 2}, got[0].Dims)
		require.Equal(t, first, got[0].Real)
		firstRead = got
	}

	// Write again only after both readers have acked, with a distinct
	// payload. The first Read's decoded bytes must not alias the shared
	// region: they must still read back as the first payload, not be
	// silently overwritten by this second publish.
	second := bytes.Repeat([]byte{0xBB}, 8*4)
	wrote, err = writer.Write([]codec.Array{codec.Numeric(codec.Float64, []int{2, 2}, second)}, false)
	require.NoError(t, err)
	require.True(t, wrote)

	require.Equal(t, first, firstRead[0].Real, "Read's decoded bytes must be a copy, not an alias of the shared region")

	for _, r := range readers {
		got, err := r.Read(false)
		require.NoError(t, err)
		require.Len(t, got, 1)
		require.Equal(t, second, got[0].Real)
	}
}

func TestSlot_WriteNonBlockingNotYetDrained(t *testing.T) {
	writer, readers := newTestSlot(t, 1)
	arrays := []codec.Array{codec.NewLogical([]int{1}, []byte{1})}

	wrote, err := writer.Write(arrays, false)
	require.NoError(t, err)
	require.True(t, wrote)

	// Second write before the sole reader acks: not yet drained.
	wrote, err = writer.Write(arrays, false)
	require.NoError(t, err)
	require.False(t, wrote)

	got, err := readers[0].Read(false)
	require.NoError(t, err)
	require.Len(t, got, 1)

	wrote, err = writer.Write(arrays, false)
	require.NoError(t, err)
	require.True(t, wrote)
}

func TestSlot_ReadNoNewData(t *testing.T) {
	_, readers := newTestSlot(t, 1)
	got, err := readers[0].Read(false)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestSlot_BlockingRejectedOnReadWrite(t *testing.T) {
	writer, _ := newTestSlot(t, 1)
	rw := NewReadWriteSlot("eye", writer.region, writer.readersCounter, writer.writerCounters, writer.writerCounters[0])

	_, err := rw.Write(nil, true)
	require.Error(t, err)
	require.Equal(t, pkg.INTRN, pkg.KindOf(err))

	_, err = rw.Read(true)
	require.Error(t, err)
	require.Equal(t, pkg.INTRN, pkg.KindOf(err))
}
