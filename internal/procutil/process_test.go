package procutil

import (
	"os"
	"os/exec"
	"runtime"
	"testing"
	"time"
)

func TestIsProcessAlive(t *testing.T) {
	if !IsProcessAlive(os.Getpid()) {
		t.Fatal("own process should be alive")
	}
	if IsProcessAlive(1<<30 - 1) {
		t.Fatal("pid beyond pid_max should not be alive")
	}
	if IsProcessAlive(0) || IsProcessAlive(-4) {
		t.Fatal("non-positive pids are never alive")
	}
}

func TestWaitTerminated(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sleep(1)")
	}
	cmd := exec.Command("sleep", "300")
	if err := cmd.Start(); err != nil {
		t.Fatalf("start subprocess: %v", err)
	}
	// Reap concurrently; an unreaped zombie still answers signal 0.
	go cmd.Wait()

	if err := WaitTerminated(cmd.Process.Pid, 5*time.Second); err != nil {
		t.Fatalf("WaitTerminated: %v", err)
	}
	if IsProcessAlive(cmd.Process.Pid) {
		t.Fatal("process should be gone")
	}
}

func TestWaitTerminatedRejectsInvalidPID(t *testing.T) {
	if err := WaitTerminated(0, time.Second); err == nil {
		t.Fatal("expected error for pid 0")
	}
}
