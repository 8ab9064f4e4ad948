// Package match plays two engines against each other. It is the host side
// scheduler: engines are polled on a ticker and each move is relayed to the
// opponent.
package match

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/loykin/gambit/internal/engine"
)

const (
	DefaultPollInterval = 20 * time.Millisecond
	DefaultMaxPlies     = 300
)

// Seat describes one player: the driver it talks through and the engine
// options (name, path, search limits, observers).
type Seat struct {
	Driver  engine.Driver
	Options []engine.Option
}

type Config struct {
	PollInterval time.Duration
	// MaxPlies ends the game as adjudicated once reached. Zero means no limit.
	MaxPlies int
}

// Outcome is how a game ended.
type Outcome struct {
	Moves []string `json:"moves"`
	// Reporter is the engine that announced the result, SideNone when the
	// game was adjudicated.
	Reporter engine.Side       `json:"reporter"`
	Kind     engine.ResultKind `json:"-"`
	Winner   engine.Side       `json:"winner"`
	Comment  string            `json:"comment,omitempty"`
	// Adjudicated is set when the ply limit ended the game.
	Adjudicated bool `json:"adjudicated,omitempty"`
}

func (o Outcome) Plies() int { return len(o.Moves) }

type pending struct {
	side engine.Side
	ev   engine.Event
}

// Runner owns two engines for the duration of a game.
type Runner struct {
	cfg     Config
	log     *slog.Logger
	engines map[engine.Side]*engine.Engine
	queue   []pending

	mu       sync.Mutex
	statuses []engine.Status
}

type Option func(*Runner)

func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.log = l
		}
	}
}

// New creates the white and black engines in mgr. They stay registered
// until Close.
func New(mgr *engine.Manager, white, black Seat, cfg Config, opts ...Option) *Runner {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	r := &Runner{cfg: cfg, log: slog.Default(), engines: make(map[engine.Side]*engine.Engine, 2)}
	for _, o := range opts {
		o(r)
	}
	seats := []struct {
		side engine.Side
		seat Seat
	}{{engine.SideWhite, white}, {engine.SideBlack, black}}
	for _, s := range seats {
		eopts := append([]engine.Option{engine.WithLogger(r.log)}, s.seat.Options...)
		r.engines[s.side] = engine.New(mgr, s.seat.Driver, r.listener(s.side), eopts...)
	}
	r.snapshot()
	return r
}

func (r *Runner) listener(side engine.Side) engine.Listener {
	return func(ev engine.Event) {
		r.queue = append(r.queue, pending{side: side, ev: ev})
	}
}

// Engine returns the engine playing side.
func (r *Runner) Engine(side engine.Side) *engine.Engine { return r.engines[side] }

// Statuses returns the status of both engines as of the last tick. It is
// safe to call from other goroutines.
func (r *Runner) Statuses() []engine.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]engine.Status, len(r.statuses))
	copy(out, r.statuses)
	return out
}

// PIDs maps engine names to their process IDs for running engines. It is
// safe to call from other goroutines.
func (r *Runner) PIDs() map[string]int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int32, len(r.statuses))
	for _, st := range r.statuses {
		if st.Initialized && st.PID > 0 {
			out[st.Name] = int32(st.PID)
		}
	}
	return out
}

func (r *Runner) snapshot() {
	sts := []engine.Status{r.engines[engine.SideWhite].Snapshot(), r.engines[engine.SideBlack].Snapshot()}
	r.mu.Lock()
	r.statuses = sts
	r.mu.Unlock()
}

// Play starts both engines and runs one game until an engine reports a
// result, the ply limit is reached, ctx is cancelled, or an engine fails.
// Engines are shut down on return.
func (r *Runner) Play(ctx context.Context) (Outcome, error) {
	var out Outcome
	defer func() {
		for _, side := range []engine.Side{engine.SideWhite, engine.SideBlack} {
			if err := r.engines[side].Shutdown(); err != nil {
				r.log.Warn("engine shutdown failed", slog.String("side", side.String()), slog.Any("error", err))
			}
		}
		r.snapshot()
	}()

	for _, side := range []engine.Side{engine.SideWhite, engine.SideBlack} {
		if err := r.engines[side].Start(side); err != nil {
			return out, fmt.Errorf("start %s: %w", side, err)
		}
	}
	if err := r.engines[engine.SideWhite].Play(engine.SideWhite, engine.SideWhite); err != nil {
		return out, fmt.Errorf("white: %w", err)
	}
	r.snapshot()

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return out, ctx.Err()
		case <-ticker.C:
		}
		done, err := r.tick(&out)
		r.snapshot()
		if err != nil || done {
			return out, err
		}
	}
}

// tick drains pending output of both engines and applies the events.
func (r *Runner) tick(out *Outcome) (bool, error) {
	for _, side := range []engine.Side{engine.SideWhite, engine.SideBlack} {
		for {
			more, err := r.engines[side].Poll()
			if err != nil {
				return false, fmt.Errorf("%s: %w", side, err)
			}
			if !more {
				break
			}
		}
	}

	for len(r.queue) > 0 {
		p := r.queue[0]
		r.queue = r.queue[1:]
		switch p.ev.Type {
		case engine.EventMove:
			out.Moves = append(out.Moves, p.ev.Move)
			r.log.Info("move", slog.Int("ply", len(out.Moves)), slog.String("side", p.side.String()), slog.String("move", p.ev.Move))
			if r.cfg.MaxPlies > 0 && len(out.Moves) >= r.cfg.MaxPlies {
				out.Adjudicated = true
				r.queue = nil
				return true, nil
			}
			if err := r.engines[p.side.Opponent()].UserMove(p.ev.Move); err != nil {
				return false, fmt.Errorf("%s: %w", p.side.Opponent(), err)
			}
		case engine.EventResult:
			out.Reporter = p.side
			out.Kind = p.ev.Result
			out.Comment = p.ev.Comment
			out.Winner = winner(p.side, p.ev.Result)
			r.queue = nil
			r.log.Info("game over", slog.String("reporter", p.side.String()), slog.String("result", p.ev.Result.String()), slog.String("comment", p.ev.Comment))
			if t, ok := resultType(p.side, p.ev); ok {
				if err := r.engines[p.side.Opponent()].Result(t); err != nil {
					return true, fmt.Errorf("%s: %w", p.side.Opponent(), err)
				}
			}
			return true, nil
		}
	}
	return false, nil
}

// Close destroys both engines.
func (r *Runner) Close() {
	for _, side := range []engine.Side{engine.SideWhite, engine.SideBlack} {
		r.engines[side].Destroy()
	}
	r.snapshot()
}

func winner(reporter engine.Side, k engine.ResultKind) engine.Side {
	switch k {
	case engine.ResultWhiteWins:
		return engine.SideWhite
	case engine.ResultBlackWins:
		return engine.SideBlack
	case engine.ResultResignation:
		return reporter.Opponent()
	default:
		return engine.SideNone
	}
}

// resultType translates a result announced by reporter into the result sent
// to its opponent.
func resultType(reporter engine.Side, ev engine.Event) (engine.ResultType, bool) {
	switch ev.Result {
	case engine.ResultWhiteWins:
		return engine.CheckmateByWhite, true
	case engine.ResultBlackWins:
		return engine.CheckmateByBlack, true
	case engine.ResultResignation:
		if reporter == engine.SideWhite {
			return engine.ResignationByWhite, true
		}
		return engine.ResignationByBlack, true
	case engine.ResultDraw:
		if strings.Contains(strings.ToLower(ev.Comment), "material") {
			return engine.DrawByInsufficientMaterial, true
		}
		return engine.DrawByStalemate, true
	default:
		return 0, false
	}
}
