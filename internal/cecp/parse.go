package cecp

import (
	"strconv"
	"strings"
)

const (
	// MaxLineLen is the longest line, newline included, the driver accepts
	// from an engine.
	MaxLineLen = 511
	// MaxMoveLen is the longest move token that is recognized.
	MaxMoveLen = 7
	// MaxCommentLen bounds result comments; longer comments are truncated.
	MaxCommentLen = 511
)

// DataType tells what kind of data a parsed line carried.
type DataType int

const (
	DataMove DataType = iota + 1
	DataPong
	DataResult
)

func (t DataType) String() string {
	switch t {
	case DataMove:
		return "move"
	case DataPong:
		return "pong"
	case DataResult:
		return "result"
	default:
		return "unknown(" + strconv.Itoa(int(t)) + ")"
	}
}

// ResultKind classifies a game result reported by the engine.
type ResultKind int

const (
	ResultDraw ResultKind = iota + 1
	ResultResignation
	ResultWhite
	ResultBlack
)

func (k ResultKind) String() string {
	switch k {
	case ResultDraw:
		return "draw"
	case ResultResignation:
		return "resignation"
	case ResultWhite:
		return "white"
	case ResultBlack:
		return "black"
	default:
		return "unknown(" + strconv.Itoa(int(k)) + ")"
	}
}

// Result is a game result together with the engine's comment.
type Result struct {
	Kind    ResultKind
	Comment string
}

// Parsed is one recognized line from the engine.
type Parsed struct {
	Type   DataType
	Move   string // DataMove
	Pong   int    // DataPong
	Result Result // DataResult
}

// ParseLine recognizes a single line of engine output. The trailing newline
// is optional. It returns false for anything it does not understand.
//
// Recognized forms:
//
//	move e2e4
//	12. ... e7e5        (GNU Chess)
//	pong 3
//	resign
//	1-0 {White mates}   (also 0-1 and 1/2-1/2)
func ParseLine(line string) (Parsed, bool) {
	s := strings.TrimRight(line, "\r\n")
	if mv, ok := parseGNUChessMove(s); ok {
		return Parsed{Type: DataMove, Move: mv}, true
	}
	if rest, ok := strings.CutPrefix(s, "move "); ok {
		if mv, ok := parseMove(rest); ok {
			return Parsed{Type: DataMove, Move: mv}, true
		}
		return Parsed{}, false
	}
	if rest, ok := strings.CutPrefix(s, "pong "); ok {
		n, _ := strconv.Atoi(strings.TrimSpace(rest))
		return Parsed{Type: DataPong, Pong: n}, true
	}
	if s == "resign" {
		return Parsed{Type: DataResult, Result: Result{Kind: ResultResignation}}, true
	}
	if r, ok := parseResult(s); ok {
		return Parsed{Type: DataResult, Result: r}, true
	}
	return Parsed{}, false
}

// parseGNUChessMove matches `<digits>[.] ... <move>`.
func parseGNUChessMove(s string) (string, bool) {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 {
		return "", false
	}
	if i < len(s) && s[i] == '.' {
		i++
	}
	rest, ok := strings.CutPrefix(s[i:], " ... ")
	if !ok {
		return "", false
	}
	return parseMove(rest)
}

// parseMove takes the move token up to the first whitespace. Engines may
// append whitespace but never prepend it.
func parseMove(s string) (string, bool) {
	if end := strings.IndexAny(s, " \t\r\n"); end >= 0 {
		s = s[:end]
	}
	if s == "" || len(s) > MaxMoveLen {
		return "", false
	}
	return s, true
}

func parseResult(s string) (Result, bool) {
	var (
		r    Result
		rest string
		ok   bool
	)
	switch {
	case strings.HasPrefix(s, "1/2-1/2 "):
		r.Kind, rest, ok = ResultDraw, s[len("1/2-1/2 "):], true
	case strings.HasPrefix(s, "1-0 "):
		r.Kind, rest, ok = ResultWhite, s[len("1-0 "):], true
	case strings.HasPrefix(s, "0-1 "):
		r.Kind, rest, ok = ResultBlack, s[len("0-1 "):], true
	}
	if !ok {
		return Result{}, false
	}
	rest, ok = strings.CutPrefix(rest, "{")
	if !ok {
		return Result{}, false
	}
	end := strings.IndexByte(rest, '}')
	if end < 0 {
		return Result{}, false
	}
	comment := rest[:end]
	// Which side resigned is for the caller to work out; it knows the game state.
	if strings.Contains(comment, "resign") {
		r.Kind = ResultResignation
	}
	if len(comment) > MaxCommentLen {
		comment = comment[:MaxCommentLen]
	}
	r.Comment = comment
	return r, true
}
