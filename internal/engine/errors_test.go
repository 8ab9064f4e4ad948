package engine

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorCategories(t *testing.T) {
	ge := NewGeneralError("cannot create %s", "/var/lib/gambit")
	ee := newEngineError("engine %s died", "crafty")

	if ge.Error() != "cannot create /var/lib/gambit" || ee.Error() != "engine crafty died" {
		t.Fatalf("unexpected messages %q %q", ge, ee)
	}
	if IsEngineError(ge) {
		t.Fatalf("general error classified as engine error")
	}
	if !IsGeneralError(ge) || !IsGeneralError(ee) || !IsEngineError(ee) {
		t.Fatalf("category helpers disagree")
	}

	wrapped := fmt.Errorf("match: %w", ee)
	if !IsEngineError(wrapped) || !IsGeneralError(wrapped) {
		t.Fatalf("wrapped engine error lost its category")
	}
	var g *GeneralError
	if !errors.As(wrapped, &g) || g.Msg != "engine crafty died" {
		t.Fatalf("errors.As to GeneralError failed: %v", g)
	}
	if IsGeneralError(errors.New("plain")) || IsEngineError(nil) {
		t.Fatalf("plain errors must not match")
	}
}

func TestErrorTruncation(t *testing.T) {
	e := NewGeneralError("%s", strings.Repeat("a", 2*MaxErrorLen))
	if len(e.Msg) != MaxErrorLen {
		t.Fatalf("len = %d, want %d", len(e.Msg), MaxErrorLen)
	}
	// Multi-byte runes are not split.
	e = NewGeneralError("%s", strings.Repeat("é", MaxErrorLen))
	if len(e.Msg) > MaxErrorLen || !strings.HasSuffix(e.Msg, "é") {
		t.Fatalf("bad rune truncation: len=%d", len(e.Msg))
	}
}
