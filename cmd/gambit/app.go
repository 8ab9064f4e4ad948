package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/gambit/internal/cecp"
	"github.com/loykin/gambit/internal/config"
	"github.com/loykin/gambit/internal/engine"
	"github.com/loykin/gambit/internal/history"
	"github.com/loykin/gambit/internal/history/factory"
	"github.com/loykin/gambit/internal/logger"
	"github.com/loykin/gambit/internal/match"
	"github.com/loykin/gambit/internal/metrics"
)

// app holds what every command sets up from the configuration.
type app struct {
	cfg       *config.FileConfig
	log       *slog.Logger
	appDir    string
	observers []engine.Observer
	closers   []io.Closer
}

func newApp(flags *GlobalFlags) (*app, error) {
	var (
		cfg *config.FileConfig
		err error
	)
	if flags.ConfigPath != "" {
		cfg, err = config.Load(flags.ConfigPath)
	} else {
		cfg, err = config.Default()
	}
	if err != nil {
		return nil, err
	}
	if flags.LogLevel != "" {
		cfg.Log.Level = flags.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log, logCloser, err := logger.New(cfg.Log)
	if err != nil {
		return nil, engine.NewGeneralError("set up logging: %v", err)
	}
	a := &app{cfg: cfg, log: log, appDir: flags.AppDir}
	a.closers = append(a.closers, logCloser)
	if a.appDir == "" {
		a.appDir = executableDir()
	}
	if cfg.Log.File.Dir != "" {
		if err := os.MkdirAll(cfg.Log.File.Dir, 0o750); err != nil {
			a.Close()
			return nil, engine.NewGeneralError("create log directory %s: %v", cfg.Log.File.Dir, err)
		}
	}

	if cfg.Metrics.Enabled {
		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			a.Close()
			return nil, engine.NewGeneralError("register metrics: %v", err)
		}
		a.observers = append(a.observers, metrics.Observer{})
	}
	if cfg.History.DSN != "" {
		sink, err := factory.NewSinkFromDSN(cfg.History.DSN)
		if err != nil {
			a.Close()
			return nil, engine.NewGeneralError("open history sink: %v", err)
		}
		rec := history.NewRecorder(log, sink)
		a.observers = append(a.observers, rec)
		// Closed before the log file so late records can still be logged.
		a.closers = append([]io.Closer{rec}, a.closers...)
	}
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.log.Warn("close failed", slog.Any("error", err))
		}
	}
	a.closers = nil
}

// engineConfig resolves spec as a configured engine name, a bundled engine
// name or an executable path.
func (a *app) engineConfig(spec string, bundled bool) (config.EngineConfig, error) {
	if spec == "" {
		return config.EngineConfig{}, engine.NewGeneralError("engine name or path required")
	}
	if ec, ok := a.cfg.Engine(spec); ok {
		return ec, nil
	}
	ec := config.EngineConfig{Name: filepath.Base(spec), Path: spec, Bundled: bundled}
	if bundled {
		ec.Name, ec.Path = spec, ""
	}
	if err := ec.Validate(); err != nil {
		return config.EngineConfig{}, engine.NewGeneralError("%v", err)
	}
	return ec, nil
}

// seat builds the driver and engine options for ec.
func (a *app) seat(ec config.EngineConfig) match.Seat {
	log := a.log.With(slog.String("engine", ec.Name))
	dopts := []cecp.Option{cecp.WithLogger(log)}
	if w := a.cfg.Log.File.EngineWriter(ec.Name); w != nil {
		dopts = append(dopts, cecp.WithStderr(w))
		a.closers = append(a.closers, w)
	}
	opts := append(ec.Options(a.appDir), engine.WithLogger(a.log))
	for _, o := range a.observers {
		opts = append(opts, engine.WithObserver(o))
	}
	return match.Seat{Driver: cecp.New(dopts...), Options: opts}
}

func (a *app) newManager() *engine.Manager {
	mopts := []engine.ManagerOption{engine.WithManagerLogger(a.log)}
	if a.cfg.Metrics.Enabled {
		mopts = append(mopts, engine.WithCountHook(metrics.SetRegistered))
	}
	return engine.NewManager(mopts...)
}

func executableDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Dir(exe)
}

func describe(o match.Outcome) string {
	if o.Adjudicated {
		return fmt.Sprintf("adjudicated as unfinished after %d plies", o.Plies())
	}
	winner := "nobody"
	if o.Winner != engine.SideNone {
		winner = o.Winner.String()
	}
	return fmt.Sprintf("%s after %d plies, reported by %s {%s}, winner: %s", o.Kind, o.Plies(), o.Reporter, o.Comment, winner)
}
