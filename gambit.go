package gambit

import (
	"github.com/loykin/gambit/internal/cecp"
	"github.com/loykin/gambit/internal/engine"
	"github.com/loykin/gambit/internal/termination"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Engine = engine.Engine

type Manager = engine.Manager

type Option = engine.Option

type Side = engine.Side

type Event = engine.Event

type Listener = engine.Listener

type ResultType = engine.ResultType

type Status = engine.Status

type Observer = engine.Observer

type GeneralError = engine.GeneralError

type EngineError = engine.EngineError

const (
	SideNone  = engine.SideNone
	SideWhite = engine.SideWhite
	SideBlack = engine.SideBlack
)

const (
	EventMove   = engine.EventMove
	EventResult = engine.EventResult
)

const (
	DrawByStalemate            = engine.DrawByStalemate
	DrawByInsufficientMaterial = engine.DrawByInsufficientMaterial
	CheckmateByWhite           = engine.CheckmateByWhite
	CheckmateByBlack           = engine.CheckmateByBlack
	ResignationByWhite         = engine.ResignationByWhite
	ResignationByBlack         = engine.ResignationByBlack
)

var (
	WithName        = engine.WithName
	WithWorkDir     = engine.WithWorkDir
	WithPath        = engine.WithPath
	WithPondering   = engine.WithPondering
	WithSearchDepth = engine.WithSearchDepth
	WithSearchTime  = engine.WithSearchTime
	WithLogger      = engine.WithLogger
	WithObserver    = engine.WithObserver
)

func NewManager() *Manager { return engine.NewManager() }

// NewEngine creates an engine that talks xboard to a child process and
// registers it with mgr. l may be nil.
func NewEngine(mgr *Manager, l Listener, opts ...Option) *Engine {
	return engine.New(mgr, cecp.New(), l, opts...)
}

// InstallTerminationHandler makes fatal signals destroy every engine of mgr
// before the process exits. It may be called once per process.
func InstallTerminationHandler(mgr *Manager) { termination.Install(mgr, termination.Options{}) }

func IsEngineError(err error) bool { return engine.IsEngineError(err) }

func IsGeneralError(err error) bool { return engine.IsGeneralError(err) }
