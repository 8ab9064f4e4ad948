package engine

import (
	"errors"
	"strconv"

	"github.com/loykin/gambit/internal/cecp"
)

// fakeDriver records commands and replays queued engine output.
type fakeDriver struct {
	pid        int
	open       bool
	alive      bool
	openErr    error
	closeErr   error
	processErr error
	failOn     map[string]error
	sent       []string
	queue      []cecp.Parsed
	closes     int
	onClose    func()
}

func newFakeDriver(pid int) *fakeDriver {
	return &fakeDriver{pid: pid, alive: true, failOn: map[string]error{}}
}

func (f *fakeDriver) Open(string, string) error {
	if f.openErr != nil {
		return f.openErr
	}
	f.open = true
	f.alive = true
	return nil
}

func (f *fakeDriver) Close() error {
	f.closes++
	if f.onClose != nil && f.open {
		f.onClose()
	}
	f.open = false
	return f.closeErr
}

func (f *fakeDriver) PID() int {
	if !f.open {
		return 0
	}
	return f.pid
}

func (f *fakeDriver) StartTime() int64     { return 1000 }
func (f *fakeDriver) IsProcessAlive() bool { return f.alive }

func (f *fakeDriver) cmd(name, text string) error {
	if !f.open {
		return errors.New("fake: not open")
	}
	if err := f.failOn[name]; err != nil {
		return err
	}
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeDriver) SendRaw(s string) error { return f.cmd("raw", s) }
func (f *fakeDriver) NewGame() error         { return f.cmd("new", "new") }
func (f *fakeDriver) Force() error           { return f.cmd("force", "force") }
func (f *fakeDriver) Go() error              { return f.cmd("go", "go") }
func (f *fakeDriver) MoveNow() error         { return f.cmd("movenow", "?") }
func (f *fakeDriver) Remove() error          { return f.cmd("remove", "remove") }
func (f *fakeDriver) Undo() error            { return f.cmd("undo", "undo") }
func (f *fakeDriver) UserMove(m string) error {
	return f.cmd("usermove", m)
}

func (f *fakeDriver) SetPonder(on bool) error {
	if on {
		return f.cmd("ponder", "hard")
	}
	return f.cmd("ponder", "easy")
}

func (f *fakeDriver) SetSearchDepth(n int) error {
	return f.cmd("sd", "sd "+strconv.Itoa(n))
}

func (f *fakeDriver) SetSearchTime(n int) error {
	return f.cmd("st", "st "+strconv.Itoa(n))
}

func (f *fakeDriver) Process(cb cecp.Callback) error {
	if f.processErr != nil {
		return f.processErr
	}
	if len(f.queue) == 0 {
		return cecp.ErrNoData
	}
	p := f.queue[0]
	f.queue = f.queue[1:]
	if !cb(p) {
		return cecp.ErrCallback
	}
	return nil
}

// recorder is an Observer that counts notifications.
type recorder struct {
	started, stopped, probes int
	failures                 []string
	commands                 []string
	events                   []Event
}

func (r *recorder) Started(Status)                     { r.started++ }
func (r *recorder) Stopped(Status, error)              { r.stopped++ }
func (r *recorder) Failed(_ Status, reason string, _ error) {
	r.failures = append(r.failures, reason)
}
func (r *recorder) CommandSent(_ Status, c string) { r.commands = append(r.commands, c) }
func (r *recorder) EventReceived(_ Status, ev Event) {
	r.events = append(r.events, ev)
}
func (r *recorder) Probed(Status, bool) { r.probes++ }
