package keys

import (
	"testing"

	"github.com/gdamore/tcell/v2"
)

func TestPageBindingShadowsGlobal(t *testing.T) {
	r := NewRegistry()
	var got string
	r.AddGlobal(&Action{Key: tcell.KeyRune, Rune: 'r', Description: "Refresh", Handler: func() { got = "global" }})
	r.AddPage("thread", &Action{Key: tcell.KeyRune, Rune: 'r', Description: "Retry", Handler: func() { got = "page" }})

	ev := tcell.NewEventKey(tcell.KeyRune, 'r', tcell.ModNone)
	if !r.HandleEvent("thread", ev) || got != "page" {
		t.Fatalf("thread: got %q, want page", got)
	}
	if !r.HandleEvent("channels", ev) || got != "global" {
		t.Fatalf("channels: got %q, want global", got)
	}
}

func TestHandleEventNoMatch(t *testing.T) {
	r := NewRegistry()
	r.AddGlobal(&Action{Key: tcell.KeyCtrlR, Handler: func() { t.Fatal("unexpected handler") }})

	if r.HandleEvent("channels", tcell.NewEventKey(tcell.KeyRune, 'x', tcell.ModNone)) {
		t.Fatal("expected no match")
	}
}

func TestHintsOrderAndVisibility(t *testing.T) {
	r := NewRegistry()
	r.AddGlobal(&Action{Key: tcell.KeyRune, Rune: 'q', Description: "Quit"})
	r.AddPage("channels", &Action{Key: tcell.KeyEnter, Label: "Enter", Description: "Open"})
	r.AddPage("channels", &Action{Key: tcell.KeyRune, Rune: 'x', Description: "Secret", Hidden: true})
	r.AddPage("channels", &Action{Key: tcell.KeyRune, Rune: 'm', Description: "Members"})

	hints := r.Hints("channels")
	want := []string{"Enter", "m", "q"}
	if len(hints) != len(want) {
		t.Fatalf("got %d hints, want %d: %+v", len(hints), len(want), hints)
	}
	for i, h := range hints {
		if h.Key != want[i] {
			t.Errorf("hint %d: got %q, want %q", i, h.Key, want[i])
		}
	}
}
