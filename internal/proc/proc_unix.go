//go:build !windows

package proc

import (
	"bytes"
	"errors"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"syscall"

	"golang.org/x/sys/unix"
)

// belowNormalNice is the nice value given to engine processes so a searching
// engine does not starve the host.
const belowNormalNice = 10

// ConfigureCmd places the child in a new process group so that the engine
// and anything it spawns can be signalled together.
func ConfigureCmd(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// LowerPriority lowers the scheduling priority of pid below normal.
func LowerPriority(pid int) error {
	return unix.Setpriority(unix.PRIO_PROCESS, pid, belowNormalNice)
}

// Alive probes whether pid (started at start) is still running.
// The check is best-effort: a zombie counts as dead on Linux.
func Alive(pid int, start int64) bool {
	if pid <= 0 {
		return false
	}
	if runtime.GOOS == "linux" && isZombieLinux(pid) {
		return false
	}
	if err := unix.Kill(pid, 0); err != nil && !errors.Is(err, unix.EPERM) {
		return false
	}
	return sameProcess(pid, start)
}

// KillGroup sends SIGKILL to the process group led by pid. A process that
// is already gone, or whose PID now belongs to another process, is not an
// error.
func KillGroup(pid int, start int64) error {
	if pid <= 0 {
		return nil
	}
	if !sameProcess(pid, start) {
		return nil
	}
	err := unix.Kill(-pid, unix.SIGKILL)
	if errors.Is(err, unix.ESRCH) {
		// Group leader may have exited already; fall back to the pid itself.
		err = unix.Kill(pid, unix.SIGKILL)
		if errors.Is(err, unix.ESRCH) {
			return nil
		}
	}
	return err
}

// isZombieLinux returns true if /proc/<pid>/status reports a zombie state (Z).
func isZombieLinux(pid int) bool {
	b, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/status")
	if err != nil {
		return false
	}
	return bytes.Contains(b, []byte("State:\tZ"))
}
