package engine

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestSideText(t *testing.T) {
	for _, s := range []Side{SideNone, SideWhite, SideBlack} {
		b, err := s.MarshalText()
		if err != nil {
			t.Fatalf("marshal %v: %v", s, err)
		}
		var got Side
		if err := got.UnmarshalText(b); err != nil || got != s {
			t.Fatalf("round trip %q: got %v, %v", b, got, err)
		}
	}
	var s Side
	if err := s.UnmarshalText([]byte("red")); err == nil {
		t.Fatalf("expected error for unknown side")
	}
	if SideWhite.Opponent() != SideBlack || SideBlack.Opponent() != SideWhite || SideNone.Opponent() != SideNone {
		t.Fatalf("unexpected opponents")
	}
}

func TestStatusJSON(t *testing.T) {
	b, err := json.Marshal(Status{ID: "x", Name: "fruit", Side: SideBlack})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	out := string(b)
	if !strings.Contains(out, `"side":"black"`) || strings.Contains(out, "started_at") || strings.Contains(out, `"pid"`) {
		t.Fatalf("unexpected json %s", out)
	}
}

func TestKindStrings(t *testing.T) {
	cases := map[string]string{
		EventMove.String():         "move",
		EventResult.String():       "result",
		ResultDraw.String():        "draw",
		ResultResignation.String(): "resignation",
		ResultWhiteWins.String():   "white_wins",
		ResultBlackWins.String():   "black_wins",
		EventType(9).String():      "event(9)",
		Side(7).String():           "side(7)",
	}
	for got, want := range cases {
		if got != want {
			t.Fatalf("got %q, want %q", got, want)
		}
	}
}
