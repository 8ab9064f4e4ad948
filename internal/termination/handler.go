// Package termination kills engine processes when the host dies abnormally.
//
// Install must be called once, before the first engine is started. On a
// fatal signal, or on a panic that reaches a deferred Recover in main, the
// handler kills every tracked engine process group, shuts the engines down
// as far as it can and exits with status 255.
package termination

import (
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"sync"
)

const exitCode = 255

// Target is what the handler escalates to. *engine.Manager implements it.
type Target interface {
	// KillAll kills engine processes without touching engine state.
	KillAll() int
	// Shutdown destroys every engine.
	Shutdown()
}

type Options struct {
	// IgnoreUserSignals ignores SIGUSR1 and SIGUSR2 so they do not terminate
	// the process. It has no effect on Windows.
	IgnoreUserSignals bool
	Logger            *slog.Logger
	// Exit replaces os.Exit.
	Exit func(code int)
}

type Handler struct {
	target Target
	pid    int
	log    *slog.Logger
	exit   func(int)
	getpid func() int

	sigs chan os.Signal
	done chan struct{}
	once sync.Once
}

var (
	mu        sync.Mutex
	installed *Handler
)

// Install installs the process wide handler. It panics when called twice.
func Install(t Target, opts Options) *Handler {
	if t == nil {
		panic("termination: Install requires a target")
	}
	mu.Lock()
	defer mu.Unlock()
	if installed != nil {
		panic("termination: handler already installed")
	}

	h := &Handler{
		target: t,
		pid:    os.Getpid(),
		log:    opts.Logger,
		exit:   opts.Exit,
		getpid: os.Getpid,
		sigs:   make(chan os.Signal, 1),
		done:   make(chan struct{}),
	}
	if h.log == nil {
		h.log = slog.Default()
	}
	if h.exit == nil {
		h.exit = os.Exit
	}

	for _, s := range fatalSignals {
		if signal.Ignored(s) {
			h.log.Warn("One or more signal handlers may not be effective. Engine processes might survive an abnormal termination.",
				slog.String("signal", s.String()))
			break
		}
	}
	if opts.IgnoreUserSignals {
		ignoreUserSignals()
	}
	signal.Notify(h.sigs, fatalSignals[:]...)
	go h.loop()

	installed = h
	return h
}

// Uninstall stops signal delivery and forgets the installed handler. A later
// Install succeeds again.
func Uninstall() {
	mu.Lock()
	h := installed
	installed = nil
	mu.Unlock()
	if h == nil {
		return
	}
	signal.Stop(h.sigs)
	resetUserSignals()
	h.once.Do(func() { close(h.done) })
}

// Recover turns a panic of the calling goroutine into an abnormal
// termination. Use it as `defer termination.Recover()` at the top of main.
// Without an installed handler the panic continues.
func Recover() {
	r := recover()
	if r == nil {
		return
	}
	mu.Lock()
	h := installed
	mu.Unlock()
	if h == nil {
		panic(r)
	}
	h.log.Error("unrecovered panic", slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
	h.handle(nil)
}

func (h *Handler) loop() {
	for {
		select {
		case s := <-h.sigs:
			if nonFatal(s) {
				h.log.Warn("ignoring signal", slog.String("signal", s.String()))
				continue
			}
			h.handle(s)
		case <-h.done:
			return
		}
	}
}

// handle kills the engines and exits. sig is nil for a panic.
func (h *Handler) handle(sig os.Signal) {
	pid := h.getpid()
	attrs := []any{slog.Int("pid", pid)}
	if sig != nil {
		attrs = append(attrs, slog.String("signal", sig.String()))
	}
	h.log.Error("abnormal termination handler called", attrs...)

	// A forked child inherits the handler but owns none of the engines.
	if !checkFork || pid == h.pid {
		n := h.target.KillAll()
		h.log.Info("killed engine process groups", slog.Int("count", n))
		h.shutdown()
	}
	h.exit(exitCode)
}

func (h *Handler) shutdown() {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("engine shutdown panicked", slog.Any("panic", r))
		}
	}()
	h.target.Shutdown()
}
