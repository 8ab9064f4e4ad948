// Package proc holds the operating system primitives used to supervise chess
// engine processes: process group placement, liveness probing, start time
// lookup and forced group termination.
//
// A process is identified by its PID together with its start time (Unix
// seconds). The start time guards against PID reuse: a probe or kill aimed
// at a PID whose start time no longer matches is treated as a process that
// has already gone away.
package proc

// StartTime returns the start time of pid as Unix seconds, or 0 when it is
// unavailable.
func StartTime(pid int) int64 {
	if pid <= 0 {
		return 0
	}
	return procStartUnix(pid)
}

// sameProcess reports whether pid still refers to the process that was
// started at start. An unknown start time on either side is accepted.
func sameProcess(pid int, start int64) bool {
	if start <= 0 {
		return true
	}
	cur := StartTime(pid)
	return cur == 0 || cur == start
}
