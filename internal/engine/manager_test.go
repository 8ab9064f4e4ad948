package engine

import (
	"errors"
	"reflect"
	"sync"
	"testing"
)

func TestManager_ShutdownEmptiesRegistry(t *testing.T) {
	for _, n := range []int{0, 1, 5} {
		mgr := NewManager()
		for i := 0; i < n; i++ {
			e := New(mgr, newFakeDriver(100+i), nil, WithPath("/bin/engine"))
			if i%2 == 0 {
				if err := e.Start(SideWhite); err != nil {
					t.Fatalf("Start: %v", err)
				}
			}
		}
		if mgr.Len() != n {
			t.Fatalf("Len = %d, want %d", mgr.Len(), n)
		}
		mgr.Shutdown()
		if mgr.Len() != 0 || mgr.Tracked() != 0 {
			t.Fatalf("n=%d: registry not empty after Shutdown (len=%d tracked=%d)", n, mgr.Len(), mgr.Tracked())
		}
		mgr.Shutdown()
	}
}

func TestManager_ShutdownMostRecentFirst(t *testing.T) {
	mgr := NewManager()
	var order []string
	for _, name := range []string{"a", "b", "c"} {
		drv := newFakeDriver(1)
		name := name
		drv.onClose = func() { order = append(order, name) }
		e := New(mgr, drv, nil, WithName(name), WithPath("/bin/"+name))
		if err := e.Start(SideWhite); err != nil {
			t.Fatalf("Start: %v", err)
		}
	}
	mgr.Shutdown()
	if !reflect.DeepEqual(order, []string{"c", "b", "a"}) {
		t.Fatalf("destroy order = %v", order)
	}
}

func TestManager_DestroyDeregistersOnCloseFailure(t *testing.T) {
	mgr := NewManager()
	drv := newFakeDriver(7)
	e := New(mgr, drv, nil, WithPath("/bin/engine"))
	if err := e.Start(SideWhite); err != nil {
		t.Fatalf("Start: %v", err)
	}
	drv.closeErr = errors.New("close failed")
	e.Destroy()
	if mgr.Get(e.ID()) != nil || mgr.Len() != 0 {
		t.Fatalf("engine still registered after Destroy")
	}
	e.Destroy()
}

func TestManager_KillAll(t *testing.T) {
	var mu sync.Mutex
	killed := map[int]int64{}
	mgr := NewManager(WithKiller(func(pid int, start int64) error {
		mu.Lock()
		defer mu.Unlock()
		if pid == 13 {
			return errors.New("permission denied")
		}
		killed[pid] = start
		return nil
	}))
	for _, pid := range []int{11, 12, 13} {
		e := New(mgr, newFakeDriver(pid), nil, WithPath("/bin/engine"))
		if err := e.Start(SideWhite); err != nil {
			t.Fatalf("Start: %v", err)
		}
	}
	New(mgr, newFakeDriver(14), nil, WithPath("/bin/idle"))

	if n := mgr.KillAll(); n != 2 {
		t.Fatalf("KillAll = %d, want 2", n)
	}
	if !reflect.DeepEqual(killed, map[int]int64{11: 1000, 12: 1000}) {
		t.Fatalf("killed = %v", killed)
	}
	// Engines are untouched by the emergency path.
	if mgr.Len() != 4 || mgr.Tracked() != 3 {
		t.Fatalf("len=%d tracked=%d", mgr.Len(), mgr.Tracked())
	}
}

func TestManager_Lookup(t *testing.T) {
	var counts []int
	mgr := NewManager(WithCountHook(func(n int) { counts = append(counts, n) }))
	a := New(mgr, newFakeDriver(1), nil, WithName("a"), WithPath("/bin/a"))
	b := New(mgr, newFakeDriver(2), nil, WithName("b"), WithPath("/bin/b"))

	if mgr.Get(a.ID()) != a || mgr.Get("missing") != nil {
		t.Fatalf("Get returned the wrong engine")
	}
	if got := mgr.Engines(); len(got) != 2 || got[0] != a || got[1] != b {
		t.Fatalf("Engines = %v", got)
	}
	st := mgr.Statuses()
	if len(st) != 2 || st[0].Name != "a" || st[1].Name != "b" {
		t.Fatalf("Statuses = %+v", st)
	}

	mgr.register(a)
	a.Destroy()
	a.Destroy()
	if !reflect.DeepEqual(counts, []int{1, 2, 1}) {
		t.Fatalf("count hook saw %v", counts)
	}
}
