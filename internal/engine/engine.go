// Package engine supervises chess engine processes.
//
// An Engine translates game intents into protocol commands, polls its driver
// for moves and results, and tears itself down on the first failure. Every
// Engine registers with a Manager, which can destroy all of them at once.
//
// Engines are not safe for concurrent use. The host calls Poll and the
// command methods of one engine from one goroutine.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/loykin/gambit/internal/cecp"
)

const (
	// CheckupInterval is how often Poll probes whether the engine process
	// is still alive.
	CheckupInterval = 2 * time.Second

	// DefaultSearchTime is the search time per move in seconds.
	DefaultSearchTime = 15

	// SearchTimeUnlimited is reserved. Unlimited search time is not
	// supported and SetSearchTime rejects it.
	SearchTimeUnlimited = 21600
)

// Engine is one chess engine process and its game state.
type Engine struct {
	id        string
	name      string
	mgr       *Manager
	drv       Driver
	listener  Listener
	observers []Observer
	log       *slog.Logger
	now       func() time.Time

	workDir string
	path    string

	side         Side
	initialized  bool
	thinking     bool
	forceMode    bool
	goOnNextMove bool

	ponder     bool
	depth      int
	searchTime int

	lastCheckup time.Time
	startedAt   time.Time
}

type Option func(*Engine)

func WithName(name string) Option { return func(e *Engine) { e.name = name } }

// WithWorkDir sets the working directory of the engine process.
func WithWorkDir(dir string) Option { return func(e *Engine) { e.workDir = nativePath(dir) } }

// WithPath sets the engine executable.
func WithPath(path string) Option { return func(e *Engine) { e.path = nativePath(path) } }

func WithPondering(on bool) Option { return func(e *Engine) { e.ponder = on } }

func WithSearchDepth(depth int) Option { return func(e *Engine) { e.SetSearchDepth(depth) } }

func WithSearchTime(seconds int) Option { return func(e *Engine) { e.SetSearchTime(seconds) } }

// WithClock replaces time.Now for the liveness probe.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithObserver adds an observer. It may be given more than once.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		if o != nil {
			e.observers = append(e.observers, o)
		}
	}
}

// New creates a detached engine and registers it with mgr. Nothing is
// spawned until Start.
func New(mgr *Manager, drv Driver, l Listener, opts ...Option) *Engine {
	if mgr == nil || drv == nil {
		panic("engine: New requires a manager and a driver")
	}
	e := &Engine{
		id:         uuid.NewString(),
		mgr:        mgr,
		drv:        drv,
		listener:   l,
		log:        slog.Default(),
		now:        time.Now,
		searchTime: DefaultSearchTime,
	}
	for _, o := range opts {
		o(e)
	}
	if e.name == "" {
		e.name = filepath.Base(e.path)
	}
	e.log = e.log.With(slog.String("engine", e.name), slog.String("engine_id", e.id))
	mgr.register(e)
	return e
}

func (e *Engine) ID() string          { return e.id }
func (e *Engine) Name() string        { return e.name }
func (e *Engine) Side() Side          { return e.side }
func (e *Engine) IsThinking() bool    { return e.thinking }
func (e *Engine) IsInitialized() bool { return e.initialized }
func (e *Engine) InForceMode() bool   { return e.forceMode }

// GoPending reports whether a "go" will follow the next user move.
func (e *Engine) GoPending() bool { return e.goOnNextMove }

// PID returns the engine process ID, or 0 when no session is open.
func (e *Engine) PID() int {
	if !e.initialized {
		return 0
	}
	return e.drv.PID()
}

func (e *Engine) Snapshot() Status {
	return Status{
		ID:          e.id,
		Name:        e.name,
		WorkDir:     e.workDir,
		Path:        e.path,
		Side:        e.side,
		PID:         e.PID(),
		Initialized: e.initialized,
		Thinking:    e.thinking,
		ForceMode:   e.forceMode,
		GoPending:   e.goOnNextMove,
		StartedAt:   e.startedAt,
	}
}

// SetPondering changes the pondering flag. ApplyPondering sends it.
func (e *Engine) SetPondering(on bool) { e.ponder = on }

// SetSearchDepth changes the search depth; 0 means unlimited.
// ApplySearchDepth sends it.
func (e *Engine) SetSearchDepth(depth int) {
	if depth < 0 {
		panic(fmt.Sprintf("engine: negative search depth %d", depth))
	}
	e.depth = depth
}

// SetSearchTime changes the search time per move in seconds.
// ApplySearchTime sends it.
func (e *Engine) SetSearchTime(seconds int) {
	if seconds < 0 {
		panic(fmt.Sprintf("engine: negative search time %d", seconds))
	}
	if seconds == SearchTimeUnlimited {
		panic("engine: unlimited search time is not supported")
	}
	e.searchTime = seconds
}

// Start spawns the engine, configures it and assigns side. A running session
// is shut down first.
func (e *Engine) Start(side Side) error {
	if e.path == "" {
		panic("engine: Start called without an executable path")
	}
	if err := e.Shutdown(); err != nil {
		return err
	}

	e.forceMode = false
	e.goOnNextMove = false
	e.thinking = false
	e.side = SideNone
	e.lastCheckup = e.now()

	if err := e.drv.Open(e.workDir, e.path); err != nil {
		_ = e.drv.Close()
		ee := newEngineError("failed to start engine (workingDirectory=%s, path=%s): %v", e.workDir, e.path, err)
		e.notifyFailed("spawn", ee)
		return ee
	}
	// From here on a failure must leave a torn down engine behind.
	e.initialized = true
	e.startedAt = e.now()
	e.mgr.track(e.id, e.drv.PID(), e.drv.StartTime())

	steps := []struct {
		name string
		run  func() error
	}{
		{"new", e.drv.NewGame},
		{"ponder", func() error { return e.drv.SetPonder(e.ponder) }},
		{"sd", func() error { return e.drv.SetSearchDepth(e.depth) }},
		{"st", func() error { return e.drv.SetSearchTime(e.searchTime) }},
	}
	for _, s := range steps {
		if err := e.send(s.name, s.run); err != nil {
			return err
		}
	}

	e.side = side
	e.log.Info("engine started", slog.Int("pid", e.drv.PID()), slog.String("side", side.String()))
	st := e.Snapshot()
	for _, o := range e.observers {
		o.Started(st)
	}
	return nil
}

// Reset is Start under the name hosts use when a new game begins.
func (e *Engine) Reset(side Side) error { return e.Start(side) }

// Poll handles at most one line of engine output. It reports whether data
// was processed. Any error is an *EngineError and the engine is shut down.
func (e *Engine) Poll() (bool, error) {
	if !e.initialized {
		return false, nil
	}

	now := e.now()
	if elapsed := now.Sub(e.lastCheckup); elapsed >= CheckupInterval || elapsed < 0 {
		e.lastCheckup = now
		alive := e.drv.IsProcessAlive()
		st := e.Snapshot()
		for _, o := range e.observers {
			o.Probed(st, alive)
		}
		if !alive {
			return false, e.fail("dead", newEngineError("engine process %d is no longer alive", e.drv.PID()))
		}
	}

	err := e.drv.Process(e.handle)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, cecp.ErrNoData):
		return false, nil
	case errors.Is(err, cecp.ErrCallback):
		return false, e.fail("callback", newEngineError("engine callback returned an error"))
	case errors.Is(err, cecp.ErrPipeClosed):
		return false, e.fail("exited", newEngineError("engine exited unexpectedly (pid=%d)", e.drv.PID()))
	default:
		return false, e.fail("protocol", newEngineError("engine process error: %v", err))
	}
}

// Force puts the engine in force mode: it follows moves without thinking.
func (e *Engine) Force() error {
	if !e.initialized {
		return nil
	}
	if err := e.send("force", e.drv.Force); err != nil {
		return err
	}
	e.side = SideNone
	e.forceMode = true
	return nil
}

// Go makes the engine leave force mode and move for the side on turn.
func (e *Engine) Go() error {
	if !e.initialized {
		return nil
	}
	if err := e.send("go", e.drv.Go); err != nil {
		return err
	}
	e.forceMode = false
	e.thinking = true
	return nil
}

// MoveNow asks the engine to move immediately.
func (e *Engine) MoveNow() error {
	if !e.initialized {
		return nil
	}
	return e.send("movenow", e.drv.MoveNow)
}

// ApplyPondering sends the pondering flag.
func (e *Engine) ApplyPondering() error {
	if !e.initialized {
		return nil
	}
	return e.send("ponder", func() error { return e.drv.SetPonder(e.ponder) })
}

// Remove takes back the last two plies.
func (e *Engine) Remove() error {
	if !e.initialized {
		return nil
	}
	return e.send("remove", e.drv.Remove)
}

func (e *Engine) ApplySearchDepth() error {
	if !e.initialized {
		return nil
	}
	return e.send("sd", func() error { return e.drv.SetSearchDepth(e.depth) })
}

func (e *Engine) ApplySearchTime() error {
	if !e.initialized {
		return nil
	}
	return e.send("st", func() error { return e.drv.SetSearchTime(e.searchTime) })
}

// Undo takes back one ply.
func (e *Engine) Undo() error {
	if !e.initialized {
		return nil
	}
	return e.send("undo", e.drv.Undo)
}

// UserMove forwards the opponent's move. A go deferred by Play is sent
// right after it.
func (e *Engine) UserMove(move string) error {
	if !e.initialized {
		return nil
	}
	if err := e.send("usermove", func() error { return e.drv.UserMove(move) }); err != nil {
		return err
	}
	if e.goOnNextMove {
		if err := e.Go(); err != nil {
			return err
		}
		e.goOnNextMove = false
	}
	e.thinking = true
	return nil
}

// Result tells the engine how the game ended.
func (e *Engine) Result(t ResultType) error {
	rt, ok := resultTexts[t]
	if !ok {
		panic(fmt.Sprintf("engine: unknown result type %d", int(t)))
	}
	if !e.initialized {
		return nil
	}
	line := fmt.Sprintf("result %s {%s}\n", rt.notation, rt.comment)
	return e.send("result", func() error { return e.drv.SendRaw(line) })
}

// Play assigns playAs to the engine. If it is on turn it starts thinking.
// Otherwise, in force mode, it will start thinking after the next user move.
// The legacy "white"/"black" commands are never sent; engines reset their
// move history on them.
func (e *Engine) Play(playAs, turn Side) error {
	if !e.initialized {
		return nil
	}
	e.side = playAs
	if turn == playAs {
		return e.Go()
	}
	if e.forceMode {
		e.goOnNextMove = true
	}
	return nil
}

// Shutdown closes the session. The engine counts as dead even if closing
// fails. Shutting down a stopped engine is a no-op.
func (e *Engine) Shutdown() error {
	if !e.initialized {
		return nil
	}
	e.initialized = false
	pid := e.drv.PID()
	e.mgr.untrack(e.id)

	var err error
	if cerr := e.drv.Close(); cerr != nil {
		err = newEngineError("failed to close engine session (pid=%d): %v", pid, cerr)
	}
	e.thinking = false
	e.log.Info("engine stopped", slog.Int("pid", pid))

	st := e.Snapshot()
	for _, o := range e.observers {
		o.Stopped(st, err)
	}
	return err
}

// Destroy shuts the engine down and removes it from its manager. The
// engine must not be used afterwards.
func (e *Engine) Destroy() {
	defer e.mgr.deregister(e)
	if err := e.Shutdown(); err != nil {
		e.log.Warn("shutdown during destroy failed", slog.Any("error", err))
	}
}

// send runs a driver command. On failure the engine is shut down and an
// EngineError naming the command is returned.
func (e *Engine) send(name string, run func() error) error {
	if err := run(); err != nil {
		return e.fail("command", newEngineError("engine command %q failed: %v", name, err))
	}
	st := e.Snapshot()
	for _, o := range e.observers {
		o.CommandSent(st, name)
	}
	return nil
}

func (e *Engine) fail(reason string, ee *EngineError) error {
	e.log.Error("engine failed", slog.String("reason", reason), slog.String("error", ee.Msg))
	if err := e.Shutdown(); err != nil {
		e.log.Warn("shutdown after failure", slog.Any("error", err))
	}
	e.notifyFailed(reason, ee)
	return ee
}

func (e *Engine) notifyFailed(reason string, err error) {
	st := e.Snapshot()
	for _, o := range e.observers {
		o.Failed(st, reason, err)
	}
}

// handle is the driver callback.
func (e *Engine) handle(p cecp.Parsed) bool {
	var ev Event
	switch p.Type {
	case cecp.DataMove:
		e.thinking = false
		ev = Event{Type: EventMove, Move: p.Move}
	case cecp.DataResult:
		e.thinking = false
		ev = Event{Type: EventResult, Result: resultKind(p.Result.Kind), Comment: p.Result.Comment}
	case cecp.DataPong:
		panic("engine: unexpected pong, no ping was sent")
	default:
		panic(fmt.Sprintf("engine: unexpected engine data %v", p.Type))
	}
	st := e.Snapshot()
	for _, o := range e.observers {
		o.EventReceived(st, ev)
	}
	if e.listener != nil {
		e.listener(ev)
	}
	return true
}

func resultKind(k cecp.ResultKind) ResultKind {
	switch k {
	case cecp.ResultDraw:
		return ResultDraw
	case cecp.ResultResignation:
		return ResultResignation
	case cecp.ResultWhite:
		return ResultWhiteWins
	case cecp.ResultBlack:
		return ResultBlackWins
	default:
		panic(fmt.Sprintf("engine: unknown result kind %v", k))
	}
}

func nativePath(p string) string {
	if p == "" {
		return ""
	}
	return filepath.Clean(filepath.FromSlash(p))
}
