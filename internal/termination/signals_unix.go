//go:build !windows

package termination

import (
	"os"
	"os/signal"
	"syscall"
)

const checkFork = true

var fatalSignals = [...]os.Signal{
	syscall.SIGABRT,
	syscall.SIGFPE,
	syscall.SIGHUP,
	syscall.SIGINT,
	syscall.SIGPIPE,
	syscall.SIGSEGV,
	syscall.SIGTERM,
}

// The startup warning talks about "one or more" handlers.
var _ [len(fatalSignals) - 2]struct{}

// nonFatal reports signals that are logged but do not terminate. A broken
// pipe to an engine already fails the write that caused it.
func nonFatal(s os.Signal) bool { return s == syscall.SIGPIPE }

func ignoreUserSignals() { signal.Ignore(syscall.SIGUSR1, syscall.SIGUSR2) }

func resetUserSignals() { signal.Reset(syscall.SIGUSR1, syscall.SIGUSR2) }
