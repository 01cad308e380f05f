package server

import (
	"syscall"
	"time"
)

// reapGrace is the 20 s grace period the shutdown sequence allows
// children to exit on their own, applied twice (before and after closing
// their pipe ends); killReapGrace is the 1 s grace period after the final
// kill(pgrp, KILL) (§4.6 step 7, §6).
const (
	reapGrace      = 20 * time.Second
	killReapGrace  = 1 * time.Second
	reapPollPeriod = 50 * time.Millisecond
)

// reapAll waits up to timeout for every pid in pids to exit (via
// non-blocking WNOHANG polling, since the children are not necessarily
// direct wait4 targets of a signal-driven reaper). It returns the pids
// still outstanding when timeout elapses.
func reapAll(pids []int, timeout time.Duration) (remaining []int) {
	deadline := time.Now().Add(timeout)
	outstanding := make(map[int]bool, len(pids))
	for _, pid := range pids {
		outstanding[pid] = true
	}

	for len(outstanding) > 0 && time.Now().Before(deadline) {
		for pid := range outstanding {
			var ws syscall.WaitStatus
			wpid, err := syscall.Wait4(pid, &ws, syscall.WNOHANG, nil)
			if err != nil || wpid == pid {
				delete(outstanding, pid)
			}
		}
		if len(outstanding) > 0 {
			time.Sleep(reapPollPeriod)
		}
	}

	for pid := range outstanding {
		remaining = append(remaining, pid)
	}
	return remaining
}
