package server

import (
	"fmt"

	"github.com/jsdpag/metcore/controller"
	"github.com/jsdpag/metcore/ipc"
)

// childPipes is one controller's pipe pair, from the server's point of
// view: it reads Request and writes Broadcast (§3).
type childPipes struct {
	Request   ipc.Pipe
	Broadcast ipc.Pipe
}

// slotResources is one shared-memory slot's full kernel-backed resource
// set (§4.6 step 2): the mapped region, its readers' counter, and one
// writer-event-counter per declared reader, in the order those readers
// appear in cfg.Children.
type slotResources struct {
	Region         *ipc.SharedRegion
	ReadersCounter *ipc.EventCounter
	WriterCounters []*ipc.EventCounter // len == number of readers of this slot
	readerIDs      []uint8             // controller id owning WriterCounters[i]
}

// resources is the full kernel-backed resource set the lifecycle manager
// owns until fork, and partially hands off to children (§4.6 step 2-3).
type resources struct {
	pipes map[uint8]childPipes
	slots map[SlotName]*slotResources
}

// createResources builds every pipe pair and shared-memory slot cfg's
// validated launch configuration calls for (§4.6 step 2). Slots with zero
// declared readers are not created at all.
func createResources(cfg *Config) (*resources, error) {
	r := &resources{
		pipes: make(map[uint8]childPipes, len(cfg.Children)),
		slots: make(map[SlotName]*slotResources),
	}

	for _, c := range cfg.Children {
		req, err := ipc.NewPipe()
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("server: create request pipe for controller %d: %w", c.ID, err)
		}
		bcast, err := ipc.NewPipe()
		if err != nil {
			req.Close()
			r.Close()
			return nil, fmt.Errorf("server: create broadcast pipe for controller %d: %w", c.ID, err)
		}
		r.pipes[c.ID] = childPipes{Request: req, Broadcast: bcast}
	}

	for i, slot := range Slots {
		readerIDs := readersOf(cfg, slot)
		if cfg.ReaderCounts[i] == 0 {
			continue
		}

		region, err := ipc.NewSharedRegion(shmName(slot), cfg.Capacity(), true)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("server: create shared region %s: %w", slot, err)
		}

		readersCounter, err := ipc.NewEventCounter(0, false)
		if err != nil {
			region.Close()
			r.Close()
			return nil, fmt.Errorf("server: create readers counter for %s: %w", slot, err)
		}

		writerCounters := make([]*ipc.EventCounter, len(readerIDs))
		for i := range readerIDs {
			wc, err := ipc.NewEventCounter(0, true)
			if err != nil {
				readersCounter.Close()
				region.Close()
				r.Close()
				return nil, fmt.Errorf("server: create writer counter %d for %s: %w", i, slot, err)
			}
			writerCounters[i] = wc
		}

		r.slots[slot] = &slotResources{
			Region:         region,
			ReadersCounter: readersCounter,
			WriterCounters: writerCounters,
			readerIDs:      readerIDs,
		}
	}

	return r, nil
}

// readersOf returns, in cfg.Children order, the ids of every controller
// configured to read slot.
func readersOf(cfg *Config, slot SlotName) []uint8 {
	var ids []uint8
	for _, c := range cfg.Children {
		if role, ok := c.Roles[slot]; ok && role.CanRead() {
			ids = append(ids, c.ID)
		}
	}
	return ids
}

// Close releases every created resource. It is always safe to call on a
// partially built resources value (each field may contain fewer entries
// than a complete launch would create).
func (r *resources) Close() {
	for _, p := range r.pipes {
		p.Request.Close()
		p.Broadcast.Close()
	}
	for _, s := range r.slots {
		s.ReadersCounter.Close()
		for _, wc := range s.WriterCounters {
			wc.Close()
		}
		s.Region.Close()
	}
}

// unlinkSlots removes every slot's shm filesystem name (§4.6 step 5). The
// mappings remain valid in every process that already opened them.
func (r *resources) unlinkSlots() {
	for name := range r.slots {
		ipc.Unlink(shmName(name))
	}
}

func shmName(slot SlotName) string {
	return fmt.Sprintf("metcore-%s", slot)
}

// slotRoleFor reports controller c's Role on slot, or controller.RoleClosed
// if c does not touch it.
func slotRoleFor(c ChildConfig, slot SlotName) controller.Role {
	if role, ok := c.Roles[slot]; ok {
		return role
	}
	return controller.RoleClosed
}
