// Package server implements the lifecycle manager (§4.6): launch
// configuration validation, resource creation, fork-exec of the bounded
// controller set, the initial-readiness barrier, and the bounded shutdown
// sequence that hands off to the router (§4.1) for the run itself.
package server

import (
	"fmt"
	"strings"

	"github.com/c2h5oh/datasize"

	"github.com/jsdpag/metcore/controller"
	"github.com/jsdpag/metcore/signal"
)

// SlotName is one of the protocol's three fixed shared-memory slots (§3).
type SlotName string

const (
	SlotStim SlotName = "stim"
	SlotEye  SlotName = "eye"
	SlotNsp  SlotName = "nsp"
)

// Slots lists the fixed slot order the command line's three reader-count
// positionals are keyed to (§6): R_S, R_E, R_N.
var Slots = [3]SlotName{SlotStim, SlotEye, SlotNsp}

// DefaultSlotCapacity is the per-slot shared-memory byte capacity used when
// a launch does not override it. The source's three slots are sized per
// installation (stimulus parameters, eye samples, NSP spike/LFP blocks);
// lacking a persisted default in the distillation, 4 MiB comfortably holds
// the nested-array payloads §4.5's test scenarios exercise and is cheap to
// raise via --slot-capacity.
const DefaultSlotCapacity = 4 * datasize.MB

var slotFlagTokens = map[string]struct {
	slot  SlotName
	write bool
}{
	"-rstim": {SlotStim, false},
	"-reye":  {SlotEye, false},
	"-rnsp":  {SlotNsp, false},
	"-wstim": {SlotStim, true},
	"-weye":  {SlotEye, true},
	"-wnsp":  {SlotNsp, true},
}

// ChildConfig is one child controller's launch configuration, parsed from
// its OPTS_RUNTIME and OPTS_CONTROLLER argument pair (§6).
type ChildConfig struct {
	// ID is this child's dense controller id, assigned in command-line
	// order starting at 1 (§3).
	ID uint8

	// RuntimeArgs are the embedding-runtime flags passed through unchanged
	// (opaque to the core — out of scope per §1).
	RuntimeArgs []string

	// Function is the first, non-option controller token: the controller
	// function name, opaque to the core.
	Function string

	// Args are every remaining controller token that is not a slot-role
	// option (-rstim, -weye, ...), passed through unchanged.
	Args []string

	// Roles maps each slot this child touches to its access mode.
	Roles map[SlotName]controller.Role
}

// Config is the server's fully validated launch configuration (§4.6 step
// 1).
type Config struct {
	// ReaderCounts holds the declared number of readers for each of the
	// three fixed slots, in Slots order (the command line's R_S R_E R_N).
	ReaderCounts [3]int

	Children []ChildConfig

	// SlotCapacity overrides DefaultSlotCapacity for every slot's backing
	// shared-memory region.
	SlotCapacity datasize.ByteSize

	// TrialIndexPath is the text file holding the current trial index
	// (§6's persisted state).
	TrialIndexPath string

	// RuntimeExec is the embedding-runtime executable every controller is
	// exec'd as (§1's "embedding language/runtime... out of scope"; the
	// core only needs its path to fork/exec each child). OPTS_RUNTIME
	// becomes this executable's own flags; the controller function name
	// and OPTS_CONTROLLER's passthrough args follow it (§6).
	RuntimeExec string
}

// ParseChildOptions splits a controller's space-separated OPTS_CONTROLLER
// string into its function name, roles, and passthrough args (§6). Token
// repetition within one controller's option set is a launch error.
func ParseChildOptions(optstr string) (function string, args []string, roles map[SlotName]controller.Role, err error) {
	tokens := strings.Fields(optstr)
	if len(tokens) == 0 {
		return "", nil, nil, fmt.Errorf("server: controller option string is empty, no function name")
	}

	seen := make(map[string]bool, len(tokens))
	roleFlags := make(map[SlotName]struct{ read, write bool })

	for i, tok := range tokens {
		if i == 0 {
			if strings.HasPrefix(tok, "-") {
				return "", nil, nil, fmt.Errorf("server: first controller token %q must be a function name, not an option", tok)
			}
			function = tok
			continue
		}

		if seen[tok] {
			return "", nil, nil, fmt.Errorf("server: controller option %q repeated", tok)
		}
		seen[tok] = true

		if sf, ok := slotFlagTokens[tok]; ok {
			rf := roleFlags[sf.slot]
			if sf.write {
				rf.write = true
			} else {
				rf.read = true
			}
			roleFlags[sf.slot] = rf
			continue
		}

		args = append(args, tok)
	}

	roles = make(map[SlotName]controller.Role, len(roleFlags))
	for slot, rf := range roleFlags {
		switch {
		case rf.read && rf.write:
			roles[slot] = controller.RoleReadWrite
		case rf.write:
			roles[slot] = controller.RoleWrite
		case rf.read:
			roles[slot] = controller.RoleRead
		}
	}
	return function, args, roles, nil
}

// Validate checks cfg against §4.6 step 1's launch-configuration rules:
// reader counts in range, exactly one writer per nonzero-reader slot, and
// no writer without a reader of the same slot.
func (cfg *Config) Validate() error {
	n := len(cfg.Children)
	if n == 0 || n > signal.MaxControllers {
		return fmt.Errorf("server: controller count must be 1..=%d, got %d", signal.MaxControllers, n)
	}
	if cfg.RuntimeExec == "" {
		return fmt.Errorf("server: RuntimeExec must name the embedding-runtime executable to fork/exec")
	}

	for i, rc := range cfg.ReaderCounts {
		if rc < 0 || rc > n {
			return fmt.Errorf("server: %s reader count %d out of 0..=%d range", Slots[i], rc, n)
		}
	}

	writers := make(map[SlotName]uint8)
	readers := make(map[SlotName]int)
	for _, c := range cfg.Children {
		for slot, role := range c.Roles {
			if role.CanRead() {
				readers[slot]++
			}
			if role.CanWrite() {
				if existing, ok := writers[slot]; ok {
					return fmt.Errorf("server: slot %s has more than one writer (controllers %d and %d)", slot, existing, c.ID)
				}
				writers[slot] = c.ID
			}
		}
	}

	for i, slot := range Slots {
		declared := cfg.ReaderCounts[i]
		if declared != readers[slot] {
			return fmt.Errorf("server: slot %s declared %d readers but %d controllers read it", slot, declared, readers[slot])
		}
		if declared > 0 {
			if _, ok := writers[slot]; !ok {
				return fmt.Errorf("server: slot %s has %d readers but no writer", slot, declared)
			}
		}
	}
	for slot, writer := range writers {
		if readers[slot] == 0 {
			return fmt.Errorf("server: slot %s has writer (controller %d) but no readers", slot, writer)
		}
	}

	return nil
}

// Capacity returns the configured per-slot byte capacity, or
// DefaultSlotCapacity if unset.
func (cfg *Config) Capacity() int {
	if cfg.SlotCapacity == 0 {
		return int(DefaultSlotCapacity.Bytes())
	}
	return int(cfg.SlotCapacity.Bytes())
}
