package controller

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/jsdpag/metcore/ipc"
)

// Bootstrap env var names (§3's fd-handoff-at-fork contract; mirrors the
// lifecycle manager's server.buildHandoff encoding).
const (
	envID        = "MET_ID"
	envAwmsig    = "MET_AWMSIG"
	envRequestFd = "MET_REQUEST_FD"
	envBcastFd   = "MET_BROADCAST_FD"
	envFunction  = "MET_FUNCTION"
	envArgs      = "MET_ARGS"
	envRuntime   = "MET_RUNTIME_ARGS"
)

// Identity is a bootstrapped controller's launch identity: its dense id,
// the embedding-runtime flags and controller function/args the server
// parsed from its command-line option pair (§6), opaque to the core.
type Identity struct {
	ID          uint8
	Function    string
	Args        []string
	RuntimeArgs []string
}

// Bootstrap reconstructs this process's Endpoint, Identity, and Slot set
// from the environment the lifecycle manager populated at fork (§3, §4.6
// step 3). It is the child side of server.buildHandoff's contract.
func Bootstrap() (*Endpoint, Identity, []*Slot, error) {
	id, err := envUint8(envID)
	if err != nil {
		return nil, Identity{}, nil, err
	}
	awmsig, err := envInt(envAwmsig)
	if err != nil {
		return nil, Identity{}, nil, err
	}
	reqFd, err := envInt(envRequestFd)
	if err != nil {
		return nil, Identity{}, nil, err
	}
	bcastFd, err := envInt(envBcastFd)
	if err != nil {
		return nil, Identity{}, nil, err
	}

	ident := Identity{
		ID:          id,
		Function:    os.Getenv(envFunction),
		Args:        fields(os.Getenv(envArgs)),
		RuntimeArgs: fields(os.Getenv(envRuntime)),
	}

	ep := NewEndpoint(id, reqFd, bcastFd, awmsig)

	var slots []*Slot
	for _, name := range []string{"stim", "eye", "nsp"} {
		slot := SlotName(name)
		roleStr, ok := os.LookupEnv(slotEnvName(slot, "ROLE"))
		if !ok {
			continue
		}

		regionFd, err := envInt(slotEnvName(slot, "REGION_FD"))
		if err != nil {
			return nil, Identity{}, nil, err
		}
		capacity, err := envInt(slotEnvName(slot, "CAPACITY"))
		if err != nil {
			return nil, Identity{}, nil, err
		}
		readersFd, err := envInt(slotEnvName(slot, "READERS_FD"))
		if err != nil {
			return nil, Identity{}, nil, err
		}

		region, err := ipc.OpenSharedRegionFd(regionFd, capacity)
		if err != nil {
			return nil, Identity{}, nil, err
		}
		readersCounter := ipc.OpenEventCounterFd(readersFd)

		var s *Slot
		switch roleStr {
		case "write":
			wcs, err := openWriterCounters(slot)
			if err != nil {
				return nil, Identity{}, nil, err
			}
			s = NewWriterSlot(name, region, readersCounter, wcs)
		case "read":
			myFd, err := envInt(slotEnvName(slot, "MY_WRITER_FD"))
			if err != nil {
				return nil, Identity{}, nil, err
			}
			s = NewReaderSlot(name, region, readersCounter, ipc.OpenEventCounterFd(myFd))
		case "readwrite":
			wcs, err := openWriterCounters(slot)
			if err != nil {
				return nil, Identity{}, nil, err
			}
			myFd, err := envInt(slotEnvName(slot, "MY_WRITER_FD"))
			if err != nil {
				return nil, Identity{}, nil, err
			}
			s = NewReadWriteSlot(name, region, readersCounter, wcs, ipc.OpenEventCounterFd(myFd))
		default:
			return nil, Identity{}, nil, fmt.Errorf("controller: unknown slot role %q for %s", roleStr, slot)
		}
		slots = append(slots, s)
	}

	return ep, ident, slots, nil
}

// SlotName is re-exported so bootstrap callers need not import the server
// package, which in turn would import controller (a cycle); the two name
// sets must be kept in sync by construction (§6's three fixed slots).
type SlotName = string

func slotEnvName(slot SlotName, suffix string) string {
	return fmt.Sprintf("MET_SLOT_%s_%s", strings.ToUpper(string(slot)), suffix)
}

func openWriterCounters(slot SlotName) ([]*ipc.EventCounter, error) {
	raw := os.Getenv(slotEnvName(slot, "WRITER_FDS"))
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	wcs := make([]*ipc.EventCounter, len(parts))
	for i, p := range parts {
		fd, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("controller: parse writer fd %q for %s: %w", p, slot, err)
		}
		wcs[i] = ipc.OpenEventCounterFd(fd)
	}
	return wcs, nil
}

func envInt(name string) (int, error) {
	v, ok := os.LookupEnv(name)
	if !ok {
		return 0, fmt.Errorf("controller: missing environment variable %s", name)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("controller: parse %s=%q: %w", name, v, err)
	}
	return n, nil
}

func envUint8(name string) (uint8, error) {
	n, err := envInt(name)
	if err != nil {
		return 0, err
	}
	return uint8(n), nil
}

func fields(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Fields(s)
}
