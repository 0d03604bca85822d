package ui

import (
	"errors"
	"testing"
	"time"

	"github.com/rivo/tview"
)

func TestPagesStack(t *testing.T) {
	p := NewPages()
	for _, name := range []string{"channels", "thread", "details"} {
		p.AddPage(name, tview.NewBox(), true, false)
	}
	var changes [][]string
	p.SetOnChange(func(stack []string) { changes = append(changes, stack) })

	p.Reset("channels")
	p.Push("thread")
	p.Push("thread")
	p.Push("details")

	if got := p.Stack(); len(got) != 3 || got[2] != "details" {
		t.Fatalf("stack: got %v", got)
	}
	if len(changes) != 3 {
		t.Errorf("duplicate push should not notify: got %d changes", len(changes))
	}

	if !p.PopTo("channels") || p.Current() != "channels" {
		t.Fatalf("PopTo: current %q", p.Current())
	}
	if p.Pop() != "" {
		t.Error("root page must not be popped")
	}
	if p.PopTo("missing") {
		t.Error("PopTo of an absent page should fail")
	}
}

func TestPromptHistory(t *testing.T) {
	p := NewPrompt(DefaultTheme())
	var submitted []string
	p.SetOnSubmit(func(_ PromptMode, text string) { submitted = append(submitted, text) })

	p.Activate(PromptCommand)
	p.remember("poll")
	p.remember("poll")
	p.remember("search deploy")
	p.Activate(PromptCommand)

	p.walk(-1)
	if got := p.GetText(); got != "search deploy" {
		t.Fatalf("first step back: got %q", got)
	}
	p.walk(-1)
	if got := p.GetText(); got != "poll" {
		t.Fatalf("second step back: got %q", got)
	}
	p.walk(-1)
	if got := p.GetText(); got != "poll" {
		t.Errorf("walking past the oldest entry should stay put: got %q", got)
	}
	p.walk(1)
	p.walk(1)
	if got := p.GetText(); got != "" {
		t.Errorf("walking past the newest entry should clear: got %q", got)
	}
}

func TestFlashModelExpires(t *testing.T) {
	f := NewFlashModel()
	if f.Current() != nil {
		t.Fatal("fresh model should be empty")
	}

	f.Err(errors.New("boom"))
	msg := f.Current()
	if msg == nil || msg.Text != "boom" || msg.Level != FlashErr {
		t.Fatalf("got %+v", msg)
	}
	select {
	case got := <-f.Watch():
		if got.Text != "boom" {
			t.Errorf("watch: got %q", got.Text)
		}
	default:
		t.Error("watch channel should carry the message")
	}

	f.set("short", FlashInfo, -time.Second)
	if f.Current() != nil {
		t.Error("expired message should not be returned")
	}
	f.Err(nil)
	if f.Current() != nil {
		t.Error("nil error should be ignored")
	}
}

func TestStatusColor(t *testing.T) {
	th := DefaultTheme()
	if th.StatusColor("READY") != th.ReadyColor {
		t.Error("READY")
	}
	if th.StatusColor("DEGRADED") != th.DegradedColor {
		t.Error("DEGRADED")
	}
	if th.StatusColor("ERROR") != th.FailedColor {
		t.Error("ERROR")
	}
	if th.StatusColor("whatever") != th.FgColor {
		t.Error("unknown status")
	}
}
