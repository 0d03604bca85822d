package views

import (
	"strings"
	"testing"

	"github.com/matheus3301/admiral/internal/rpc"
	"github.com/matheus3301/admiral/internal/tui/ui"
)

func sampleChannels() []rpc.Channel {
	return []rpc.Channel{
		{ID: "c1", Name: "general", Type: "public", UnreadCount: 3, LastMessagePreview: "deploy done"},
		{ID: "c2", Name: "random", Type: "public", LastMessagePreview: "lunch?"},
		{ID: "c3", Name: "Ana", Type: "dm", LastMessagePreview: "see you"},
	}
}

func TestChannelListRendersUnreadAndActive(t *testing.T) {
	cl := NewChannelList(ui.DefaultTheme())
	cl.Update(sampleChannels(), "c2")

	if got := cl.GetCell(1, 0).Text; !strings.Contains(got, "#general (3)") {
		t.Errorf("unread badge missing: %q", got)
	}
	if got := cl.GetCell(2, 0).Text; !strings.Contains(got, "● #random") {
		t.Errorf("active marker missing: %q", got)
	}
	if got := cl.GetCell(3, 0).Text; strings.Contains(got, "#") {
		t.Errorf("direct channel should not carry '#': %q", got)
	}
	if got := cl.ChannelByIndex(3); got != "c3" {
		t.Errorf("ChannelByIndex(3): got %q", got)
	}
}

func TestChannelListFilter(t *testing.T) {
	cl := NewChannelList(ui.DefaultTheme())
	cl.Update(sampleChannels(), "")

	cl.SetFilter("LUNCH")
	if got := cl.ChannelByIndex(1); got != "c2" {
		t.Fatalf("filtered first: got %q, want c2", got)
	}
	if got := cl.ChannelByIndex(2); got != "" {
		t.Errorf("expected a single match, got %q", got)
	}
	if got := cl.SelectedChannel(); got != "c2" {
		t.Errorf("selection: got %q", got)
	}

	cl.ClearFilter()
	if got := cl.ChannelByIndex(3); got != "c3" {
		t.Errorf("after clear: got %q", got)
	}
}

func TestChannelListKeepsSelectionAcrossUpdates(t *testing.T) {
	cl := NewChannelList(ui.DefaultTheme())
	cl.Update(sampleChannels(), "")
	cl.Select(3, 0)

	reordered := sampleChannels()
	reordered[0], reordered[2] = reordered[2], reordered[0]
	cl.Update(reordered, "")

	if got := cl.SelectedChannel(); got != "c3" {
		t.Errorf("selection moved: got %q, want c3", got)
	}
}

func TestMessageThreadMarksStatus(t *testing.T) {
	mt := NewMessageThread(ui.DefaultTheme())
	mt.SetSelf("u1")
	mt.SetChannel("c1", "general")
	mt.Update([]rpc.Message{
		{ID: "srv-1", SenderID: "u2", SenderName: "Ana", Body: "hello [red]there", Status: "sent"},
		{ID: "tmp-1", SenderID: "u1", Body: "on my way", Status: "pending"},
		{ID: "tmp-2", SenderID: "u1", Body: "lost", Status: "failed"},
	})

	text := mt.Text()
	for _, want := range []string{"Ana", "hello", "You", "sending…", "not sent, press r to retry"} {
		if !strings.Contains(text, want) {
			t.Errorf("rendered thread missing %q:\n%s", want, text)
		}
	}
	if mt.FailedCount() != 1 {
		t.Errorf("failed count: got %d", mt.FailedCount())
	}
	if mt.Name() != "general" {
		t.Errorf("name: got %q", mt.Name())
	}
}

func TestMessageThreadWarning(t *testing.T) {
	mt := NewMessageThread(ui.DefaultTheme())
	mt.SetWarning("network unreachable")
	mt.Update(nil)

	text := mt.Text()
	if !strings.Contains(text, "network unreachable") || !strings.Contains(text, "No messages yet.") {
		t.Errorf("unexpected render:\n%s", text)
	}
}

func TestMembersViewSkipsSelf(t *testing.T) {
	mv := NewMembersView(ui.DefaultTheme())
	mv.Update([]rpc.Member{{ID: "u1", Name: "Me"}, {ID: "u2", Name: "Ana"}}, "u1")

	if got := mv.SelectedMember(); got != "u2" {
		t.Errorf("selected: got %q, want u2", got)
	}
	if mv.GetRowCount() != 2 {
		t.Errorf("rows: got %d, want header + 1", mv.GetRowCount())
	}
}

func TestHighlightSnippet(t *testing.T) {
	got := highlight("all <<aboard>> now", ui.DefaultTheme())
	if strings.Contains(got, "<<") || !strings.Contains(got, "aboard[-:-:-]") {
		t.Errorf("got %q", got)
	}
}

func TestClean(t *testing.T) {
	tests := map[string]string{
		"plain":             "plain",
		"a\x1b[31mb":        "a[31mb",
		"👍🏻":                "👍",
		"\u202Eevil":        "evil",
		"[yellow]x":         "[yellow[]x",
		"line1\nline2\tend": "line1\nline2\tend",
	}
	for in, want := range tests {
		if got := clean(in); got != want {
			t.Errorf("clean(%q): got %q, want %q", in, got, want)
		}
	}
	if got := singleLine("a\n b  c"); got != "a b c" {
		t.Errorf("singleLine: got %q", got)
	}
}
