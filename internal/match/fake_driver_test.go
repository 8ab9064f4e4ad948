package match

import (
	"errors"
	"strings"

	"github.com/loykin/gambit/internal/cecp"
)

// scriptDriver answers go and usermove with the next line of its script.
// A line starting with "result " is reported as a game result together
// with the move before it.
type scriptDriver struct {
	pid     int
	open    bool
	script  []string
	queue   []cecp.Parsed
	sent    []string
	failOn  string
	closes  int
	goCount int
}

func newScriptDriver(pid int, script ...string) *scriptDriver {
	return &scriptDriver{pid: pid, script: script}
}

func (d *scriptDriver) Open(string, string) error {
	d.open = true
	return nil
}

func (d *scriptDriver) Close() error {
	d.open = false
	d.closes++
	return nil
}

func (d *scriptDriver) PID() int {
	if !d.open {
		return 0
	}
	return d.pid
}

func (d *scriptDriver) StartTime() int64     { return 1 }
func (d *scriptDriver) IsProcessAlive() bool { return d.open }

func (d *scriptDriver) record(cmd string) error {
	if !d.open {
		return errors.New("script: not open")
	}
	if d.failOn != "" && strings.HasPrefix(cmd, d.failOn) {
		return errors.New("script: broken pipe")
	}
	d.sent = append(d.sent, cmd)
	return nil
}

func (d *scriptDriver) reply() {
	for len(d.script) > 0 {
		line := d.script[0]
		d.script = d.script[1:]
		if strings.HasPrefix(line, "result ") {
			if p, ok := cecp.ParseLine(strings.TrimPrefix(line, "result ")); ok {
				d.queue = append(d.queue, p)
			}
			continue
		}
		d.queue = append(d.queue, cecp.Parsed{Type: cecp.DataMove, Move: line})
		// A result right after a move is announced together with it.
		if len(d.script) == 0 || !strings.HasPrefix(d.script[0], "result ") {
			return
		}
	}
}

func (d *scriptDriver) SendRaw(s string) error { return d.record(s) }
func (d *scriptDriver) NewGame() error         { return d.record("new") }
func (d *scriptDriver) Force() error           { return d.record("force") }
func (d *scriptDriver) MoveNow() error         { return d.record("?") }
func (d *scriptDriver) Remove() error          { return d.record("remove") }
func (d *scriptDriver) Undo() error            { return d.record("undo") }
func (d *scriptDriver) SetPonder(bool) error   { return d.record("ponder") }

func (d *scriptDriver) SetSearchDepth(int) error { return d.record("sd") }
func (d *scriptDriver) SetSearchTime(int) error  { return d.record("st") }

func (d *scriptDriver) Go() error {
	if err := d.record("go"); err != nil {
		return err
	}
	d.goCount++
	d.reply()
	return nil
}

func (d *scriptDriver) UserMove(m string) error {
	if err := d.record("usermove " + m); err != nil {
		return err
	}
	d.reply()
	return nil
}

func (d *scriptDriver) Process(cb cecp.Callback) error {
	if !d.open {
		return cecp.ErrNotOpen
	}
	if len(d.queue) == 0 {
		return cecp.ErrNoData
	}
	p := d.queue[0]
	d.queue = d.queue[1:]
	if !cb(p) {
		return cecp.ErrCallback
	}
	return nil
}
