package metrics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// Usage is one resource sample of an engine process.
type Usage struct {
	PID        int32
	CPUPercent float64
	MemoryRSS  uint64
}

// Sampler periodically reads CPU and memory usage of engine processes and
// publishes them as gauges.
type Sampler struct {
	interval time.Duration
	source   func() map[string]int32 // engine name -> pid

	mu    sync.Mutex
	procs map[string]*process.Process
	last  map[string]Usage

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewSampler creates a sampler. source is called on every tick and must be
// safe to call from the sampler goroutine.
func NewSampler(interval time.Duration, source func() map[string]int32) *Sampler {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Sampler{
		interval: interval,
		source:   source,
		procs:    make(map[string]*process.Process),
		last:     make(map[string]Usage),
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic collection.
func (s *Sampler) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-ticker.C:
				s.Collect()
			}
		}
	}()
}

// Stop stops the collection and waits for the goroutine.
func (s *Sampler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

// Collect samples every engine once.
func (s *Sampler) Collect() {
	pids := s.source()
	s.mu.Lock()
	defer s.mu.Unlock()

	for name, pid := range pids {
		if pid <= 0 {
			continue
		}
		p := s.procs[name]
		if p == nil || p.Pid != pid {
			np, err := process.NewProcess(pid)
			if err != nil {
				slog.Debug("engine process not found for sampling", "name", name, "pid", pid, "error", err)
				continue
			}
			p = np
			s.procs[name] = p
		}
		// Percent(0) compares against the previous call on the same handle.
		cpu, err := p.Percent(0)
		if err != nil {
			cpu = 0
		}
		mem, err := p.MemoryInfo()
		if err != nil {
			slog.Debug("failed to read engine memory", "name", name, "pid", pid, "error", err)
			continue
		}
		u := Usage{PID: pid, CPUPercent: cpu, MemoryRSS: mem.RSS}
		s.last[name] = u
		SetResourceUsage(name, u.CPUPercent, u.MemoryRSS)
	}

	for name := range s.procs {
		if _, ok := pids[name]; !ok {
			delete(s.procs, name)
			delete(s.last, name)
			DeleteResourceUsage(name)
		}
	}
}

// Last returns the latest sample of an engine.
func (s *Sampler) Last(name string) (Usage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.last[name]
	return u, ok
}
