//go:build windows

package termination

import (
	"os"
	"syscall"
)

// Processes are not forked on Windows.
const checkFork = false

// Go delivers Ctrl-C and Ctrl-Break as SIGINT and console close or logoff
// as SIGTERM.
var fatalSignals = [...]os.Signal{
	syscall.SIGABRT,
	syscall.SIGFPE,
	syscall.SIGINT,
	syscall.SIGTERM,
}

var _ [len(fatalSignals) - 2]struct{}

func nonFatal(os.Signal) bool { return false }

func ignoreUserSignals() {}

func resetUserSignals() {}
