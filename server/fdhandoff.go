package server

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jsdpag/metcore/controller"
	"github.com/jsdpag/metcore/ipc"
)

// Descriptor handoff ABI (§3's "file descriptors pass across exec only for
// children that declared the matching access mode"): the lifecycle manager
// passes each child exactly the fds its own configuration requires, as
// consecutive entries after stdio in syscall.ProcAttr.Files, and announces
// their meaning to the child process via environment variables. This
// env-var announcement is this implementation's choice for a handoff
// protocol the spec leaves to "the embedding language/runtime" (§1,
// out of scope) — any child binary honoring it can bootstrap its
// controller.Endpoint/Waiter/Slot set from os.Environ() alone.
const (
	envID        = "MET_ID"
	envAwmsig    = "MET_AWMSIG"
	envRequestFd = "MET_REQUEST_FD"
	envBcastFd   = "MET_BROADCAST_FD"
	envFunction  = "MET_FUNCTION"
	envArgs      = "MET_ARGS"
	envRuntime   = "MET_RUNTIME_ARGS"
)

// slotEnv returns the per-slot environment variable name prefix, e.g.
// MET_SLOT_EYE_ROLE, MET_SLOT_EYE_REGION_FD.
func slotEnv(slot SlotName, suffix string) string {
	return fmt.Sprintf("MET_SLOT_%s_%s", strings.ToUpper(string(slot)), suffix)
}

// childHandoff is the Files slice and environment this child receives at
// fork, built by buildHandoff.
type childHandoff struct {
	Files []uintptr
	Env   []string
}

// buildHandoff assembles the fd list and environment for controller c,
// passing only the request write end, the broadcast read end, and — per
// slot — exactly the region/counter descriptors its declared role demands
// (§3, §4.6 step 3).
func buildHandoff(cfg *Config, res *resources, c ChildConfig, awmsig int) childHandoff {
	files := append([]uintptr{}, ipc.StdFiles()...)
	env := []string{
		fmt.Sprintf("%s=%d", envID, c.ID),
		fmt.Sprintf("%s=%d", envAwmsig, awmsig),
		fmt.Sprintf("%s=%s", envFunction, c.Function),
		fmt.Sprintf("%s=%s", envArgs, strings.Join(c.Args, " ")),
		fmt.Sprintf("%s=%s", envRuntime, strings.Join(c.RuntimeArgs, " ")),
	}

	pipes := res.pipes[c.ID]
	files = append(files, uintptr(pipes.Request.Write))
	env = append(env, fmt.Sprintf("%s=%d", envRequestFd, len(files)-1))
	files = append(files, uintptr(pipes.Broadcast.Read))
	env = append(env, fmt.Sprintf("%s=%d", envBcastFd, len(files)-1))

	for _, slot := range Slots {
		role := slotRoleFor(c, slot)
		if role == controller.RoleClosed {
			continue
		}
		sr := res.slots[slot]

		env = append(env, fmt.Sprintf("%s=%s", slotEnv(slot, "ROLE"), roleName(role)))

		files = append(files, uintptr(sr.Region.Fd()))
		env = append(env, fmt.Sprintf("%s=%d", slotEnv(slot, "REGION_FD"), len(files)-1))
		env = append(env, fmt.Sprintf("%s=%d", slotEnv(slot, "CAPACITY"), cfg.Capacity()))

		files = append(files, uintptr(sr.ReadersCounter.Fd()))
		env = append(env, fmt.Sprintf("%s=%d", slotEnv(slot, "READERS_FD"), len(files)-1))

		if role.CanWrite() {
			var fds []string
			for _, wc := range sr.WriterCounters {
				files = append(files, uintptr(wc.Fd()))
				fds = append(fds, strconv.Itoa(len(files)-1))
			}
			env = append(env, fmt.Sprintf("%s=%s", slotEnv(slot, "WRITER_FDS"), strings.Join(fds, ",")))
		}
		if role.CanRead() {
			idx := readerIndex(sr.readerIDs, c.ID)
			files = append(files, uintptr(sr.WriterCounters[idx].Fd()))
			env = append(env, fmt.Sprintf("%s=%d", slotEnv(slot, "MY_WRITER_FD"), len(files)-1))
		}
	}

	return childHandoff{Files: files, Env: env}
}

func readerIndex(readerIDs []uint8, id uint8) int {
	for i, rid := range readerIDs {
		if rid == id {
			return i
		}
	}
	return -1
}

func roleName(r controller.Role) string {
	switch r {
	case controller.RoleRead:
		return "read"
	case controller.RoleWrite:
		return "write"
	case controller.RoleReadWrite:
		return "readwrite"
	default:
		return "closed"
	}
}
