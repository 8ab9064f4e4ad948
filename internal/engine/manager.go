package engine

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/loykin/gambit/internal/proc"
)

type killEntry struct {
	pid   int
	start int64
}

// Manager is the registry of live engines. Engines add themselves in New
// and remove themselves in Destroy.
//
// Besides the engines the Manager keeps a kill list of the process groups
// they have spawned. KillAll works from that list alone, so it can run on a
// signal goroutine while the host is in the middle of an engine call.
type Manager struct {
	mu      sync.Mutex
	order   []*Engine
	byID    map[string]*Engine
	kill    map[string]killEntry
	killer  func(pid int, start int64) error
	onCount func(n int)
	log     *slog.Logger
}

type ManagerOption func(*Manager)

func WithManagerLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// WithKiller replaces proc.KillGroup as the emergency kill function.
func WithKiller(f func(pid int, start int64) error) ManagerOption {
	return func(m *Manager) {
		if f != nil {
			m.killer = f
		}
	}
}

// WithCountHook is called with the number of registered engines whenever it
// changes. The manager lock is held during the call.
func WithCountHook(f func(n int)) ManagerOption {
	return func(m *Manager) { m.onCount = f }
}

func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		byID:   make(map[string]*Engine),
		kill:   make(map[string]killEntry),
		killer: proc.KillGroup,
		log:    slog.Default(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *Manager) register(e *Engine) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[e.id]; ok {
		return
	}
	m.byID[e.id] = e
	m.order = append(m.order, e)
	m.countChanged()
}

func (m *Manager) deregister(e *Engine) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.kill, e.id)
	if _, ok := m.byID[e.id]; !ok {
		return
	}
	delete(m.byID, e.id)
	for i, x := range m.order {
		if x == e {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.countChanged()
}

func (m *Manager) countChanged() {
	if m.onCount != nil {
		m.onCount(len(m.order))
	}
}

func (m *Manager) track(id string, pid int, start int64) {
	if pid <= 0 {
		return
	}
	m.mu.Lock()
	m.kill[id] = killEntry{pid: pid, start: start}
	m.mu.Unlock()
}

func (m *Manager) untrack(id string) {
	m.mu.Lock()
	delete(m.kill, id)
	m.mu.Unlock()
}

// Shutdown destroys every registered engine, most recent first. The
// registry is empty afterwards. It is a no-op on an empty registry.
func (m *Manager) Shutdown() {
	for {
		m.mu.Lock()
		if len(m.order) == 0 {
			m.mu.Unlock()
			return
		}
		e := m.order[len(m.order)-1]
		m.mu.Unlock()

		e.Destroy()

		if m.Get(e.id) != nil {
			panic(fmt.Sprintf("engine: %s (%s) still registered after Destroy", e.name, e.id))
		}
	}
}

// KillAll kills every tracked engine process group without touching the
// engines themselves. It returns how many groups were killed.
func (m *Manager) KillAll() int {
	m.mu.Lock()
	targets := make([]killEntry, 0, len(m.kill))
	for _, k := range m.kill {
		targets = append(targets, k)
	}
	m.mu.Unlock()

	n := 0
	for _, k := range targets {
		if err := m.killer(k.pid, k.start); err != nil {
			m.log.Error("emergency kill failed", slog.Int("pid", k.pid), slog.Any("error", err))
			continue
		}
		n++
	}
	return n
}

// Tracked returns the number of engine processes on the kill list.
func (m *Manager) Tracked() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.kill)
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.order)
}

// Engines returns the registered engines in registration order.
func (m *Manager) Engines() []*Engine {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Engine(nil), m.order...)
}

// Get returns the engine with the given ID, or nil.
func (m *Manager) Get(id string) *Engine {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byID[id]
}

// Statuses snapshots every registered engine. Engines are not locked, so
// call it from the goroutine that drives them.
func (m *Manager) Statuses() []Status {
	engines := m.Engines()
	out := make([]Status, 0, len(engines))
	for _, e := range engines {
		out = append(out, e.Snapshot())
	}
	return out
}
