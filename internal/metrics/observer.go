package metrics

import "github.com/loykin/gambit/internal/engine"

// Observer records engine activity in the package collectors.
type Observer struct{}

var _ engine.Observer = Observer{}

func (Observer) Started(st engine.Status) { IncStart(st.Name) }

func (Observer) Stopped(st engine.Status, _ error) {
	IncStop(st.Name)
	DeleteResourceUsage(st.Name)
}

func (Observer) Failed(st engine.Status, reason string, _ error) { IncFailure(st.Name, reason) }

func (Observer) CommandSent(st engine.Status, command string) { IncCommand(st.Name, command) }

func (Observer) EventReceived(st engine.Status, ev engine.Event) {
	switch ev.Type {
	case engine.EventMove:
		IncMove(st.Name)
	case engine.EventResult:
		IncResult(st.Name, ev.Result.String())
	}
}

func (Observer) Probed(st engine.Status, alive bool) { IncProbe(st.Name, alive) }
