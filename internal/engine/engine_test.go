package engine

import (
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/loykin/gambit/internal/cecp"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

type harness struct {
	mgr    *Manager
	drv    *fakeDriver
	clock  *fakeClock
	events []Event
	obs    *recorder
	eng    *Engine
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		mgr:   NewManager(),
		drv:   newFakeDriver(4242),
		clock: &fakeClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)},
		obs:   &recorder{},
	}
	base := []Option{
		WithName("fake"),
		WithPath("/opt/engines/fake"),
		WithClock(h.clock.now),
		WithObserver(h.obs),
	}
	h.eng = New(h.mgr, h.drv, func(ev Event) { h.events = append(h.events, ev) }, append(base, opts...)...)
	return h
}

func (h *harness) start(t *testing.T, side Side) {
	t.Helper()
	if err := h.eng.Start(side); err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.drv.sent = nil
}

func mustPanic(t *testing.T, name string, f func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Fatalf("%s: expected panic", name)
		}
	}()
	f()
}

func TestEngine_ExampleScenario(t *testing.T) {
	h := newHarness(t, WithPondering(false), WithSearchDepth(4), WithSearchTime(15))
	if err := h.eng.Start(SideWhite); err != nil {
		t.Fatalf("Start: %v", err)
	}
	want := []string{"new", "easy", "sd 4", "st 15"}
	if !reflect.DeepEqual(h.drv.sent, want) {
		t.Fatalf("startup commands = %v, want %v", h.drv.sent, want)
	}
	if h.eng.Side() != SideWhite || !h.eng.IsInitialized() {
		t.Fatalf("after Start: side=%v initialized=%v", h.eng.Side(), h.eng.IsInitialized())
	}

	if err := h.eng.Go(); err != nil {
		t.Fatalf("Go: %v", err)
	}
	if !h.eng.IsThinking() || h.eng.InForceMode() {
		t.Fatalf("after Go: thinking=%v force=%v", h.eng.IsThinking(), h.eng.InForceMode())
	}

	h.drv.queue = append(h.drv.queue, cecp.Parsed{Type: cecp.DataMove, Move: "e2e4"})
	got, err := h.eng.Poll()
	if err != nil || !got {
		t.Fatalf("Poll = %v, %v; want true, nil", got, err)
	}
	if h.eng.IsThinking() {
		t.Fatalf("thinking should be cleared by a move")
	}
	if len(h.events) != 1 || h.events[0] != (Event{Type: EventMove, Move: "e2e4"}) {
		t.Fatalf("events = %+v", h.events)
	}

	got, err = h.eng.Poll()
	if err != nil || got {
		t.Fatalf("Poll with no data = %v, %v; want false, nil", got, err)
	}
}

func TestEngine_DefaultSearchTime(t *testing.T) {
	h := newHarness(t)
	if err := h.eng.Start(SideBlack); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if h.drv.sent[3] != "st 15" || h.drv.sent[2] != "sd 0" {
		t.Fatalf("unexpected startup commands %v", h.drv.sent)
	}
}

func TestEngine_StartRequiresPath(t *testing.T) {
	mgr := NewManager()
	e := New(mgr, newFakeDriver(1), nil)
	mustPanic(t, "Start without path", func() { _ = e.Start(SideWhite) })
}

func TestEngine_StartOpenFailure(t *testing.T) {
	h := newHarness(t, WithWorkDir("/tmp/work"))
	h.drv.openErr = errors.New("exec format error")
	err := h.eng.Start(SideWhite)
	if !IsEngineError(err) {
		t.Fatalf("expected EngineError, got %v", err)
	}
	for _, want := range []string{"workingDirectory=" + filepath.FromSlash("/tmp/work"), "path=" + filepath.FromSlash("/opt/engines/fake"), "exec format error"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not mention %q", err, want)
		}
	}
	if h.eng.IsInitialized() || h.mgr.Tracked() != 0 {
		t.Fatalf("failed start left state behind")
	}
	if len(h.obs.failures) != 1 || h.obs.failures[0] != "spawn" {
		t.Fatalf("failures = %v", h.obs.failures)
	}
}

func TestEngine_StartConfigFailureTearsDown(t *testing.T) {
	for _, step := range []string{"new", "ponder", "sd", "st"} {
		t.Run(step, func(t *testing.T) {
			h := newHarness(t)
			h.drv.failOn[step] = errors.New("broken pipe")
			err := h.eng.Start(SideWhite)
			if !IsEngineError(err) || !strings.Contains(err.Error(), step) {
				t.Fatalf("got %v, want EngineError naming %q", err, step)
			}
			if h.eng.IsInitialized() || h.drv.open || h.mgr.Tracked() != 0 {
				t.Fatalf("engine not torn down")
			}
			if h.eng.Side() != SideNone {
				t.Fatalf("side assigned despite failure")
			}
		})
	}
}

func TestEngine_RestartShutsDownPreviousSession(t *testing.T) {
	h := newHarness(t)
	h.start(t, SideWhite)
	if err := h.eng.Force(); err != nil {
		t.Fatalf("Force: %v", err)
	}
	if err := h.eng.Reset(SideBlack); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if h.drv.closes != 1 {
		t.Fatalf("closes = %d, want 1", h.drv.closes)
	}
	if h.eng.InForceMode() || h.eng.GoPending() || h.eng.Side() != SideBlack {
		t.Fatalf("flags not reset by Reset")
	}
}

func TestEngine_PollNotInitialized(t *testing.T) {
	h := newHarness(t)
	h.drv.processErr = errors.New("must not be called")
	got, err := h.eng.Poll()
	if got || err != nil {
		t.Fatalf("Poll = %v, %v", got, err)
	}
}

func TestEngine_LivenessProbe(t *testing.T) {
	h := newHarness(t)
	h.start(t, SideWhite)
	h.drv.alive = false

	h.clock.advance(CheckupInterval - time.Millisecond)
	if got, err := h.eng.Poll(); got || err != nil {
		t.Fatalf("probe ran early: %v, %v", got, err)
	}
	if h.obs.probes != 0 {
		t.Fatalf("probes = %d before interval", h.obs.probes)
	}

	h.clock.advance(time.Millisecond)
	_, err := h.eng.Poll()
	if !IsEngineError(err) || !strings.Contains(err.Error(), "no longer alive") {
		t.Fatalf("got %v, want liveness EngineError", err)
	}
	if h.eng.IsInitialized() || h.eng.PID() != 0 {
		t.Fatalf("dead engine still initialized")
	}

	// Commands on a dead engine are dropped.
	if err := h.eng.Go(); err != nil {
		t.Fatalf("Go on dead engine: %v", err)
	}
	if err := h.eng.UserMove("e2e4"); err != nil {
		t.Fatalf("UserMove on dead engine: %v", err)
	}
	if len(h.drv.sent) != 0 || h.eng.IsThinking() {
		t.Fatalf("dead engine sent %v", h.drv.sent)
	}
}

func TestEngine_LivenessProbeClockBackwards(t *testing.T) {
	h := newHarness(t)
	h.start(t, SideWhite)
	h.clock.advance(-time.Second)
	if _, err := h.eng.Poll(); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if h.obs.probes != 1 {
		t.Fatalf("probes = %d, want 1 after clock moved backwards", h.obs.probes)
	}
	// The probe timestamp was reset to the new time.
	if _, err := h.eng.Poll(); err != nil || h.obs.probes != 1 {
		t.Fatalf("unexpected second probe: probes=%d err=%v", h.obs.probes, err)
	}
}

func TestEngine_PollErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"callback", cecp.ErrCallback, "callback"},
		{"pipe closed", cecp.ErrPipeClosed, "exited unexpectedly"},
		{"discarded", cecp.ErrDiscarded, "process error"},
		{"io", &cecp.IOError{Err: errors.New("read failed")}, "read failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.start(t, SideWhite)
			h.drv.processErr = tt.err
			got, err := h.eng.Poll()
			if got || !IsEngineError(err) {
				t.Fatalf("Poll = %v, %v; want EngineError", got, err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error %q does not contain %q", err, tt.want)
			}
			if h.eng.IsInitialized() || h.drv.open {
				t.Fatalf("engine not torn down")
			}
		})
	}
}

func TestEngine_ResultEvents(t *testing.T) {
	tests := []struct {
		in   cecp.ResultKind
		want ResultKind
	}{
		{cecp.ResultDraw, ResultDraw},
		{cecp.ResultResignation, ResultResignation},
		{cecp.ResultWhite, ResultWhiteWins},
		{cecp.ResultBlack, ResultBlackWins},
	}
	for _, tt := range tests {
		h := newHarness(t)
		h.start(t, SideWhite)
		if err := h.eng.Go(); err != nil {
			t.Fatalf("Go: %v", err)
		}
		h.drv.queue = append(h.drv.queue, cecp.Parsed{Type: cecp.DataResult, Result: cecp.Result{Kind: tt.in, Comment: "c"}})
		if _, err := h.eng.Poll(); err != nil {
			t.Fatalf("Poll: %v", err)
		}
		want := Event{Type: EventResult, Result: tt.want, Comment: "c"}
		if len(h.events) != 1 || h.events[0] != want {
			t.Fatalf("events = %+v, want %+v", h.events, want)
		}
		if h.eng.IsThinking() {
			t.Fatalf("thinking not cleared by result")
		}
	}
}

func TestEngine_PongPanics(t *testing.T) {
	h := newHarness(t)
	h.start(t, SideWhite)
	h.drv.queue = append(h.drv.queue, cecp.Parsed{Type: cecp.DataPong, Pong: 1})
	mustPanic(t, "pong", func() { _, _ = h.eng.Poll() })
}

func TestEngine_PlayOnTurn(t *testing.T) {
	h := newHarness(t)
	h.start(t, SideNone)
	if err := h.eng.Play(SideWhite, SideWhite); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if !h.eng.IsThinking() || h.eng.Side() != SideWhite {
		t.Fatalf("Play on turn: thinking=%v side=%v", h.eng.IsThinking(), h.eng.Side())
	}
	if !reflect.DeepEqual(h.drv.sent, []string{"go"}) {
		t.Fatalf("sent %v", h.drv.sent)
	}
}

func TestEngine_PlayDeferredGo(t *testing.T) {
	h := newHarness(t)
	h.start(t, SideWhite)
	if err := h.eng.Force(); err != nil {
		t.Fatalf("Force: %v", err)
	}
	if h.eng.Side() != SideNone || !h.eng.InForceMode() {
		t.Fatalf("Force: side=%v force=%v", h.eng.Side(), h.eng.InForceMode())
	}
	if err := h.eng.Play(SideBlack, SideWhite); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if !h.eng.GoPending() || h.eng.IsThinking() {
		t.Fatalf("Play off turn: pending=%v thinking=%v", h.eng.GoPending(), h.eng.IsThinking())
	}
	if err := h.eng.UserMove("e2e4"); err != nil {
		t.Fatalf("UserMove: %v", err)
	}
	want := []string{"force", "e2e4", "go"}
	if !reflect.DeepEqual(h.drv.sent, want) {
		t.Fatalf("sent %v, want %v", h.drv.sent, want)
	}
	if h.eng.GoPending() || !h.eng.IsThinking() || h.eng.InForceMode() {
		t.Fatalf("after UserMove: pending=%v thinking=%v force=%v", h.eng.GoPending(), h.eng.IsThinking(), h.eng.InForceMode())
	}
}

func TestEngine_PlayOffTurnOutsideForceMode(t *testing.T) {
	h := newHarness(t)
	h.start(t, SideWhite)
	if err := h.eng.Play(SideBlack, SideWhite); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if h.eng.GoPending() || len(h.drv.sent) != 0 {
		t.Fatalf("unexpected deferred go or commands: %v", h.drv.sent)
	}
	if err := h.eng.UserMove("e2e4"); err != nil {
		t.Fatalf("UserMove: %v", err)
	}
	if !reflect.DeepEqual(h.drv.sent, []string{"e2e4"}) || !h.eng.IsThinking() {
		t.Fatalf("sent %v thinking=%v", h.drv.sent, h.eng.IsThinking())
	}
}

func TestEngine_Commands(t *testing.T) {
	h := newHarness(t, WithPondering(true), WithSearchDepth(6), WithSearchTime(3))
	h.start(t, SideWhite)
	steps := []struct {
		run  func() error
		want string
	}{
		{h.eng.MoveNow, "?"},
		{h.eng.ApplyPondering, "hard"},
		{h.eng.Remove, "remove"},
		{h.eng.ApplySearchDepth, "sd 6"},
		{h.eng.ApplySearchTime, "st 3"},
		{h.eng.Undo, "undo"},
	}
	for _, s := range steps {
		h.drv.sent = nil
		if err := s.run(); err != nil {
			t.Fatalf("%s: %v", s.want, err)
		}
		if len(h.drv.sent) != 1 || h.drv.sent[0] != s.want {
			t.Fatalf("sent %v, want %q", h.drv.sent, s.want)
		}
	}
	h.eng.SetPondering(false)
	h.eng.SetSearchDepth(0)
	h.eng.SetSearchTime(30)
	h.drv.sent = nil
	for _, f := range []func() error{h.eng.ApplyPondering, h.eng.ApplySearchDepth, h.eng.ApplySearchTime} {
		if err := f(); err != nil {
			t.Fatalf("apply: %v", err)
		}
	}
	if !reflect.DeepEqual(h.drv.sent, []string{"easy", "sd 0", "st 30"}) {
		t.Fatalf("sent %v", h.drv.sent)
	}
}

func TestEngine_CommandFailure(t *testing.T) {
	h := newHarness(t)
	h.start(t, SideWhite)
	h.drv.failOn["undo"] = errors.New("write: broken pipe")
	err := h.eng.Undo()
	if !IsEngineError(err) || !strings.Contains(err.Error(), "undo") {
		t.Fatalf("got %v", err)
	}
	if h.eng.IsInitialized() {
		t.Fatalf("engine still initialized after failure")
	}
	if err := h.eng.Undo(); err != nil {
		t.Fatalf("second Undo should be a no-op: %v", err)
	}
}

func TestEngine_Result(t *testing.T) {
	tests := []struct {
		rt   ResultType
		want string
	}{
		{DrawByStalemate, "result 1/2-1/2 {draw by stalemate}\n"},
		{DrawByInsufficientMaterial, "result 1/2-1/2 {draw by insufficient material}\n"},
		{CheckmateByWhite, "result 1-0 {white mates}\n"},
		{CheckmateByBlack, "result 0-1 {black mates}\n"},
		{ResignationByWhite, "result 0-1 {white resigns}\n"},
		{ResignationByBlack, "result 1-0 {black resigns}\n"},
	}
	h := newHarness(t)
	h.start(t, SideWhite)
	for _, tt := range tests {
		h.drv.sent = nil
		if err := h.eng.Result(tt.rt); err != nil {
			t.Fatalf("Result(%d): %v", tt.rt, err)
		}
		if len(h.drv.sent) != 1 || h.drv.sent[0] != tt.want {
			t.Fatalf("Result(%d) sent %q, want %q", tt.rt, h.drv.sent, tt.want)
		}
	}

	h.drv.sent = nil
	mustPanic(t, "unknown result", func() { _ = h.eng.Result(ResultType(99)) })
	if len(h.drv.sent) != 0 {
		t.Fatalf("unknown result sent %v", h.drv.sent)
	}
}

func TestEngine_Shutdown(t *testing.T) {
	h := newHarness(t)
	h.start(t, SideWhite)
	if h.mgr.Tracked() != 1 {
		t.Fatalf("kill list should hold the running engine")
	}
	if err := h.eng.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := h.eng.Shutdown(); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
	if h.drv.closes != 1 || h.mgr.Tracked() != 0 {
		t.Fatalf("closes=%d tracked=%d", h.drv.closes, h.mgr.Tracked())
	}
	if h.obs.started != 1 || h.obs.stopped != 1 {
		t.Fatalf("observer saw started=%d stopped=%d", h.obs.started, h.obs.stopped)
	}
}

func TestEngine_ShutdownCloseFailure(t *testing.T) {
	h := newHarness(t)
	h.start(t, SideWhite)
	h.drv.closeErr = errors.New("kill failed")
	err := h.eng.Shutdown()
	if !IsEngineError(err) {
		t.Fatalf("got %v, want EngineError", err)
	}
	if h.eng.IsInitialized() {
		t.Fatalf("engine must count as dead after a failed close")
	}
	if err := h.eng.Force(); err != nil {
		t.Fatalf("Force after failed close: %v", err)
	}
}

func TestEngine_SetterPanics(t *testing.T) {
	h := newHarness(t)
	mustPanic(t, "negative depth", func() { h.eng.SetSearchDepth(-1) })
	mustPanic(t, "negative time", func() { h.eng.SetSearchTime(-1) })
	mustPanic(t, "unlimited time", func() { h.eng.SetSearchTime(SearchTimeUnlimited) })
}

func TestEngine_NativePaths(t *testing.T) {
	h := newHarness(t, WithWorkDir("engines//gnuchess/"), WithPath("engines/gnuchess/./gnuchess"))
	st := h.eng.Snapshot()
	if st.WorkDir != filepath.Join("engines", "gnuchess") || st.Path != filepath.Join("engines", "gnuchess", "gnuchess") {
		t.Fatalf("paths not normalized: %q %q", st.WorkDir, st.Path)
	}
}

func TestEngine_DefaultName(t *testing.T) {
	mgr := NewManager()
	e := New(mgr, newFakeDriver(1), nil, WithPath("/usr/games/crafty"))
	if e.Name() != "crafty" {
		t.Fatalf("name = %q", e.Name())
	}
	if e.ID() == "" {
		t.Fatalf("engine has no id")
	}
}

func TestEngine_Snapshot(t *testing.T) {
	h := newHarness(t)
	h.start(t, SideBlack)
	st := h.eng.Snapshot()
	if st.PID != 4242 || !st.Initialized || st.Side != SideBlack || st.Name != "fake" {
		t.Fatalf("snapshot = %+v", st)
	}
	if st.StartedAt.IsZero() {
		t.Fatalf("StartedAt not set")
	}
	if len(h.obs.commands) != 4 {
		t.Fatalf("observer commands = %v", h.obs.commands)
	}
}
