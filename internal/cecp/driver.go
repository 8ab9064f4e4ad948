// Package cecp drives a chess engine that speaks the Chess Engine
// Communication Protocol (xboard/winboard) over its standard input and output.
//
// A Driver owns one child process. Commands are written synchronously;
// incoming lines are collected by a reader goroutine and handed out one at a
// time by Process, which never blocks.
package cecp

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/loykin/gambit/internal/proc"
)

// Callback receives parsed engine output from Process. Returning false makes
// Process fail with ErrCallback.
type Callback func(Parsed) bool

const (
	DefaultDiscardWindow = 10 * time.Millisecond
	DefaultDiscardRounds = 10
	DefaultQuitTimeout   = 100 * time.Millisecond

	// reapTimeout bounds the wait for the child to be reaped after a kill.
	reapTimeout = 200 * time.Millisecond
	// lineQueue is the number of complete lines buffered between the reader
	// goroutine and Process.
	lineQueue = 32
)

type readResult struct {
	line      string
	discarded bool
	err       error
}

// Driver is a CECP session with one engine process. A Driver can be opened
// again after it has been closed. It is not safe for concurrent use.
type Driver struct {
	log           *slog.Logger
	stderr        io.Writer
	command       func(path string) *exec.Cmd
	discardWindow time.Duration
	discardRounds int
	quitTimeout   time.Duration

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *os.File
	lines  chan readResult
	stop   chan struct{}
	done   chan struct{} // closed once the child has been reaped
	pid    int
	start  int64
}

type Option func(*Driver)

// WithLogger sets the logger used for protocol traces and warnings.
func WithLogger(l *slog.Logger) Option {
	return func(d *Driver) {
		if l != nil {
			d.log = l
		}
	}
}

// WithStderr redirects the engine's standard error. By default it is discarded.
func WithStderr(w io.Writer) Option { return func(d *Driver) { d.stderr = w } }

// WithCommand overrides how the engine command is built from its path.
func WithCommand(f func(path string) *exec.Cmd) Option {
	return func(d *Driver) {
		if f != nil {
			d.command = f
		}
	}
}

// WithDiscardWindow sets the idle window used while discarding startup
// output, and how many consecutive idle windows end the discard.
func WithDiscardWindow(window time.Duration, rounds int) Option {
	return func(d *Driver) {
		if window > 0 {
			d.discardWindow = window
		}
		if rounds > 0 {
			d.discardRounds = rounds
		}
	}
}

// WithQuitTimeout sets how long Close waits for the engine to honour "quit"
// before killing it.
func WithQuitTimeout(t time.Duration) Option {
	return func(d *Driver) {
		if t > 0 {
			d.quitTimeout = t
		}
	}
}

func New(opts ...Option) *Driver {
	d := &Driver{
		log: slog.Default(),
		command: func(path string) *exec.Cmd {
			// #nosec G204 -- the engine path is operator configuration
			return exec.Command(path)
		},
		discardWindow: DefaultDiscardWindow,
		discardRounds: DefaultDiscardRounds,
		quitTimeout:   DefaultQuitTimeout,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Open spawns the engine at path with working directory dir and puts it in
// xboard mode. On failure nothing is left running.
func (d *Driver) Open(dir, path string) (err error) {
	if d.cmd != nil {
		return ErrAlreadyOpen
	}
	cmd := d.command(path)
	if dir != "" {
		cmd.Dir = dir
	}
	proc.ConfigureCmd(cmd)
	cmd.Stderr = d.stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	// Own the read end so cmd.Wait cannot close it under the reader.
	rd, wr, err := os.Pipe()
	if err != nil {
		_ = stdin.Close()
		return fmt.Errorf("stdout pipe: %w", err)
	}
	cmd.Stdout = wr

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		_ = rd.Close()
		_ = wr.Close()
		return fmt.Errorf("spawn %s: %w", path, err)
	}
	_ = wr.Close()

	d.cmd = cmd
	d.stdin = stdin
	d.stdout = rd
	d.pid = cmd.Process.Pid
	d.start = proc.StartTime(d.pid)
	d.lines = make(chan readResult, lineQueue)
	d.stop = make(chan struct{})
	d.done = make(chan struct{})

	if perr := proc.LowerPriority(d.pid); perr != nil {
		d.log.Debug("could not lower engine priority", slog.Int("pid", d.pid), slog.Any("error", perr))
	}

	go readLoop(rd, d.lines, d.stop)
	go func(done chan struct{}) {
		_ = cmd.Wait()
		close(done)
	}(d.done)

	defer func() {
		if err != nil {
			_ = d.Close()
		}
	}()

	// Some engines print a banner or a prompt without a trailing newline.
	// Drop everything first so the replies to "xboard" start on a fresh line.
	if err := d.waitAndDiscard(); err != nil {
		return err
	}
	return d.write("xboard\n")
}

// Close asks the engine to quit, and kills its process group if it has not
// exited within the quit timeout. Closing a closed Driver is a no-op.
func (d *Driver) Close() error {
	if d.cmd == nil {
		return nil
	}
	_ = d.write("quit\n")
	_ = d.stdin.Close()

	var err error
	select {
	case <-d.done:
	case <-time.After(d.quitTimeout):
		if kerr := proc.KillGroup(d.pid, d.start); kerr != nil {
			err = fmt.Errorf("kill engine process %d: %w", d.pid, kerr)
			break
		}
		select {
		case <-d.done:
		case <-time.After(reapTimeout):
			err = fmt.Errorf("engine process %d was not reaped after kill", d.pid)
		}
	}

	close(d.stop)
	_ = d.stdout.Close()
	d.cmd = nil
	d.stdin = nil
	d.stdout = nil
	d.lines = nil
	d.pid = 0
	d.start = 0
	return err
}

// PID returns the engine's process ID, or 0 when no session is open.
func (d *Driver) PID() int { return d.pid }

// StartTime returns the engine's start time in Unix seconds, or 0.
func (d *Driver) StartTime() int64 { return d.start }

// IsProcessAlive reports whether the engine process still runs. It is a
// heuristic: after the child has been reaped its PID could be reused, which
// the start time comparison in proc.Alive mostly catches.
func (d *Driver) IsProcessAlive() bool {
	if d.cmd == nil {
		return false
	}
	select {
	case <-d.done:
		return false
	default:
	}
	return proc.Alive(d.pid, d.start)
}

// Process hands at most one line of engine output to cb.
//
// It returns nil when a line was consumed, even one that was not recognized.
// ErrNoData means nothing is pending. ErrPipeClosed means the engine closed
// its output and everything it sent has been processed.
func (d *Driver) Process(cb Callback) error {
	if d.lines == nil {
		return ErrNotOpen
	}
	select {
	case r, ok := <-d.lines:
		if !ok {
			return ErrPipeClosed
		}
		if r.err != nil {
			return &IOError{Err: r.err}
		}
		if r.discarded {
			d.log.Warn("engine sent an oversized line; discarded", slog.Int("pid", d.pid), slog.Int("limit", MaxLineLen))
			return ErrDiscarded
		}
		d.log.Debug("engine output", slog.Int("pid", d.pid), slog.String("line", r.line))
		p, ok := ParseLine(r.line)
		if !ok {
			d.log.Debug("unrecognized engine output", slog.Int("pid", d.pid), slog.String("line", r.line))
			return nil
		}
		if !cb(p) {
			return ErrCallback
		}
		return nil
	default:
		return ErrNoData
	}
}

// SendRaw writes s to the engine unchanged.
func (d *Driver) SendRaw(s string) error { return d.write(s) }

// NewGame starts a new game with random move selection enabled.
func (d *Driver) NewGame() error {
	// Replies to earlier commands must not be mistaken for the new game's.
	if err := d.waitAndDiscard(); err != nil {
		return err
	}
	return d.write("new\nrandom\n")
}

func (d *Driver) Force() error   { return d.write("force\n") }
func (d *Driver) Go() error      { return d.write("go\n") }
func (d *Driver) MoveNow() error { return d.write("?\n") }
func (d *Driver) Remove() error  { return d.write("remove\n") }
func (d *Driver) Undo() error    { return d.write("undo\n") }

// SetPonder sends "hard" (pondering on) or "easy" (pondering off).
func (d *Driver) SetPonder(on bool) error {
	if on {
		return d.write("hard\n")
	}
	return d.write("easy\n")
}

// SetSearchDepth sends "sd". Zero means unlimited; not every engine reads
// "sd 0" that way, so 100 is sent instead. A larger value could make some
// engines allocate memory proportional to the depth.
func (d *Driver) SetSearchDepth(depth int) error {
	if depth == 0 {
		depth = 100
	}
	return d.writeInt("sd", depth)
}

// SetSearchTime sends "st" with the time per move in seconds.
func (d *Driver) SetSearchTime(seconds int) error { return d.writeInt("st", seconds) }

func (d *Driver) Ping(n int) error { return d.writeInt("ping", n) }

// UserMove sends the opponent's move.
func (d *Driver) UserMove(move string) error {
	if move == "" {
		return ErrEmpty
	}
	return d.write(move + "\n")
}

func (d *Driver) writeInt(cmd string, n int) error {
	return d.write(cmd + " " + strconv.Itoa(n) + "\n")
}

func (d *Driver) write(s string) error {
	if d.stdin == nil {
		return ErrNotOpen
	}
	if s == "" {
		return ErrEmpty
	}
	d.log.Debug("sending to engine", slog.Int("pid", d.pid), slog.String("data", s))
	_, err := io.WriteString(d.stdin, s)
	return err
}

// waitAndDiscard drops engine output until it has been quiet for
// discardRounds consecutive windows. Waiting a fixed time would slow down
// every start for engines that are quick to settle.
func (d *Driver) waitAndDiscard() error {
	if d.lines == nil {
		return ErrNotOpen
	}
	t := time.NewTimer(d.discardWindow)
	defer t.Stop()
	for idle := 0; idle < d.discardRounds; {
		select {
		case r, ok := <-d.lines:
			if !ok {
				return ErrPipeClosed
			}
			if r.err != nil {
				return &IOError{Err: r.err}
			}
			idle = 0
		case <-t.C:
			idle++
		}
		if !t.Stop() {
			select {
			case <-t.C:
			default:
			}
		}
		t.Reset(d.discardWindow)
	}
	return nil
}

// readLoop splits r into lines until EOF or until stop is closed. out is
// closed when the loop ends.
func readLoop(r io.Reader, out chan<- readResult, stop <-chan struct{}) {
	defer close(out)
	send := func(res readResult) bool {
		select {
		case out <- res:
			return true
		case <-stop:
			return false
		}
	}
	br := bufio.NewReaderSize(r, MaxLineLen)
	for {
		line, err := br.ReadSlice('\n')
		if errors.Is(err, bufio.ErrBufferFull) {
			for errors.Is(err, bufio.ErrBufferFull) {
				_, err = br.ReadSlice('\n')
			}
			if !send(readResult{discarded: true}) {
				return
			}
			if err == nil {
				continue
			}
		}
		if err != nil {
			// A trailing partial line without newline is dropped.
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				send(readResult{err: err})
			}
			return
		}
		if !send(readResult{line: string(line)}) {
			return
		}
	}
}
