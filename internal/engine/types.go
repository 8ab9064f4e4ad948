package engine

import (
	"fmt"
	"time"

	"github.com/loykin/gambit/internal/cecp"
)

// Driver is the protocol session an Engine drives. *cecp.Driver is the
// production implementation.
type Driver interface {
	Open(workDir, path string) error
	Close() error
	PID() int
	StartTime() int64
	IsProcessAlive() bool

	SendRaw(s string) error
	NewGame() error
	Force() error
	Go() error
	MoveNow() error
	SetPonder(on bool) error
	Remove() error
	SetSearchDepth(depth int) error
	SetSearchTime(seconds int) error
	Undo() error
	UserMove(move string) error

	Process(cb cecp.Callback) error
}

var _ Driver = (*cecp.Driver)(nil)

// Side is the color an engine plays.
type Side int

const (
	SideNone Side = iota
	SideWhite
	SideBlack
)

func (s Side) String() string {
	switch s {
	case SideNone:
		return "none"
	case SideWhite:
		return "white"
	case SideBlack:
		return "black"
	default:
		return fmt.Sprintf("side(%d)", int(s))
	}
}

func (s Side) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Side) UnmarshalText(b []byte) error {
	switch string(b) {
	case "none", "":
		*s = SideNone
	case "white":
		*s = SideWhite
	case "black":
		*s = SideBlack
	default:
		return fmt.Errorf("unknown side %q", b)
	}
	return nil
}

// Opponent returns the other color. SideNone has no opponent.
func (s Side) Opponent() Side {
	switch s {
	case SideWhite:
		return SideBlack
	case SideBlack:
		return SideWhite
	default:
		return SideNone
	}
}

// EventType tells Move events from Result events.
type EventType int

const (
	EventMove EventType = iota + 1
	EventResult
)

func (t EventType) String() string {
	switch t {
	case EventMove:
		return "move"
	case EventResult:
		return "result"
	default:
		return fmt.Sprintf("event(%d)", int(t))
	}
}

// ResultKind is how the engine reported the end of the game.
type ResultKind int

const (
	ResultDraw ResultKind = iota + 1
	ResultResignation
	ResultWhiteWins
	ResultBlackWins
)

func (k ResultKind) String() string {
	switch k {
	case ResultDraw:
		return "draw"
	case ResultResignation:
		return "resignation"
	case ResultWhiteWins:
		return "white_wins"
	case ResultBlackWins:
		return "black_wins"
	default:
		return fmt.Sprintf("result(%d)", int(k))
	}
}

// Event is delivered to the Listener while the engine is polled.
type Event struct {
	Type    EventType
	Move    string     // EventMove
	Result  ResultKind // EventResult
	Comment string     // EventResult
}

// Listener receives the events of one engine. It is called synchronously
// from Poll.
type Listener func(Event)

// ResultType is a game outcome the host reports to an engine.
type ResultType int

const (
	DrawByStalemate ResultType = iota + 1
	DrawByInsufficientMaterial
	CheckmateByWhite
	CheckmateByBlack
	ResignationByWhite
	ResignationByBlack
)

type resultText struct {
	notation string
	comment  string
}

var resultTexts = map[ResultType]resultText{
	DrawByStalemate:            {"1/2-1/2", "draw by stalemate"},
	DrawByInsufficientMaterial: {"1/2-1/2", "draw by insufficient material"},
	CheckmateByWhite:           {"1-0", "white mates"},
	CheckmateByBlack:           {"0-1", "black mates"},
	ResignationByWhite:         {"0-1", "white resigns"},
	ResignationByBlack:         {"1-0", "black resigns"},
}

// Status is a point in time view of an engine.
type Status struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	WorkDir     string    `json:"workdir,omitempty"`
	Path        string    `json:"path"`
	Side        Side      `json:"side"`
	PID         int       `json:"pid,omitempty"`
	Initialized bool      `json:"initialized"`
	Thinking    bool      `json:"thinking"`
	ForceMode   bool      `json:"force_mode"`
	GoPending   bool      `json:"go_pending"`
	StartedAt   time.Time `json:"started_at,omitzero"`
}

// Observer is notified about engine lifecycle and traffic. Metrics and
// history recording hook in here. Implementations must not call back into
// the engine.
type Observer interface {
	Started(s Status)
	Stopped(s Status, err error)
	Failed(s Status, reason string, err error)
	CommandSent(s Status, command string)
	EventReceived(s Status, ev Event)
	Probed(s Status, alive bool)
}
