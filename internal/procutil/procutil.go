// Package procutil probes and stops daemon processes by pid.
package procutil

import (
	"errors"
	"fmt"
	"time"
)

const pollInterval = 50 * time.Millisecond

// ErrStillRunning is returned when a process outlives the stop timeout.
var ErrStillRunning = errors.New("procutil: process still running")

// WaitTerminated asks pid to terminate and polls until it has exited or
// timeout elapses.
func WaitTerminated(pid int, timeout time.Duration) error {
	if pid <= 0 {
		return fmt.Errorf("procutil: invalid pid %d", pid)
	}
	if err := TerminateByPID(pid); err != nil {
		return fmt.Errorf("procutil: signal %d: %w", pid, err)
	}

	deadline := time.Now().Add(timeout)
	for IsProcessAlive(pid) {
		if time.Now().After(deadline) {
			return ErrStillRunning
		}
		time.Sleep(pollInterval)
	}
	return nil
}
