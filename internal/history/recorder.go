package history

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/loykin/gambit/internal/engine"
)

const (
	defaultQueue       = 256
	defaultSendTimeout = 5 * time.Second
)

// Recorder is an engine.Observer that forwards events to sinks. Engines
// call observers synchronously, so sending happens on a background
// goroutine; events are dropped when the queue is full.
type Recorder struct {
	sinks []Sink
	log   *slog.Logger
	now   func() time.Time
	queue chan Event
	wg    sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

var _ engine.Observer = (*Recorder)(nil)

// NewRecorder starts a recorder that sends to sinks. Close flushes it.
func NewRecorder(log *slog.Logger, sinks ...Sink) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	r := &Recorder{
		sinks: append([]Sink(nil), sinks...),
		log:   log,
		now:   time.Now,
		queue: make(chan Event, defaultQueue),
	}
	r.wg.Add(1)
	go r.run()
	return r
}

func (r *Recorder) run() {
	defer r.wg.Done()
	for e := range r.queue {
		for _, s := range r.sinks {
			ctx, cancel := context.WithTimeout(context.Background(), defaultSendTimeout)
			if err := s.Send(ctx, e); err != nil {
				r.log.Warn("history sink failed", slog.String("event", string(e.Type)), slog.Any("error", err))
			}
			cancel()
		}
	}
}

// Close drains the queue and closes sinks that implement io.Closer. Events
// arriving afterwards are dropped.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	r.wg.Wait()
	var first error
	for _, s := range r.sinks {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}

func (r *Recorder) emit(t EventType, st engine.Status, fill func(*Record)) {
	rec := Record{EngineID: st.ID, Name: st.Name, PID: st.PID, Side: st.Side.String()}
	if fill != nil {
		fill(&rec)
	}
	e := Event{Type: t, OccurredAt: r.now().UTC(), Record: rec}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	select {
	case r.queue <- e:
	default:
		r.log.Warn("history queue full; event dropped", slog.String("event", string(t)), slog.String("engine", st.Name))
	}
}

func (r *Recorder) Started(st engine.Status) { r.emit(EventStart, st, nil) }

func (r *Recorder) Stopped(st engine.Status, err error) {
	r.emit(EventStop, st, func(rec *Record) {
		if err != nil {
			rec.Error = err.Error()
		}
	})
}

func (r *Recorder) Failed(st engine.Status, reason string, err error) {
	r.emit(EventFail, st, func(rec *Record) {
		rec.Reason = reason
		if err != nil {
			rec.Error = err.Error()
		}
	})
}

func (r *Recorder) EventReceived(st engine.Status, ev engine.Event) {
	switch ev.Type {
	case engine.EventMove:
		r.emit(EventMove, st, func(rec *Record) { rec.Move = ev.Move })
	case engine.EventResult:
		r.emit(EventResult, st, func(rec *Record) {
			rec.Result = ev.Result.String()
			rec.Comment = ev.Comment
		})
	}
}

// CommandSent and Probed are too chatty for history.
func (r *Recorder) CommandSent(engine.Status, string) {}
func (r *Recorder) Probed(engine.Status, bool)        {}
