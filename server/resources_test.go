//go:build linux

package server

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jsdpag/metcore/controller"
)

func TestCreateResources(t *testing.T) {
	cfg := &Config{
		ReaderCounts: [3]int{1, 0, 0},
		Children: []ChildConfig{
			{ID: 1, Function: "writer", Roles: map[SlotName]controller.Role{SlotStim: controller.RoleWrite}},
			{ID: 2, Function: "reader", Roles: map[SlotName]controller.Role{SlotStim: controller.RoleRead}},
		},
		SlotCapacity: 0,
		RuntimeExec:  "metctrl",
	}
	require.NoError(t, cfg.Validate())

	res, err := createResources(cfg)
	require.NoError(t, err)
	defer res.Close()

	require.Len(t, res.pipes, 2)
	require.Contains(t, res.slots, SlotStim)
	require.NotContains(t, res.slots, SlotEye)
	require.NotContains(t, res.slots, SlotNsp)

	stim := res.slots[SlotStim]
	require.Len(t, stim.WriterCounters, 1)
	require.Equal(t, []uint8{2}, stim.readerIDs)

	res.unlinkSlots()
}

func TestBuildHandoff(t *testing.T) {
	cfg := &Config{
		ReaderCounts: [3]int{1, 0, 0},
		Children: []ChildConfig{
			{ID: 1, Function: "writer", Args: []string{"a"}, RuntimeArgs: []string{"-x"}, Roles: map[SlotName]controller.Role{SlotStim: controller.RoleWrite}},
			{ID: 2, Function: "reader", Roles: map[SlotName]controller.Role{SlotStim: controller.RoleRead}},
		},
	}
	res, err := createResources(cfg)
	require.NoError(t, err)
	defer res.Close()
	defer res.unlinkSlots()

	h := buildHandoff(cfg, res, cfg.Children[0], 4)
	require.Contains(t, h.Env, "MET_ID=1")
	require.Contains(t, h.Env, "MET_FUNCTION=writer")
	require.Contains(t, h.Env, "MET_SLOT_STIM_ROLE=write")
	require.NotEmpty(t, h.Files)

	h2 := buildHandoff(cfg, res, cfg.Children[1], 4)
	require.Contains(t, h2.Env, "MET_SLOT_STIM_ROLE=read")
}
