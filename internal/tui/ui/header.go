package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/rivo/tview"
)

// SessionData is the daemon state shown in the header.
type SessionData struct {
	Session  string
	Member   string
	Status   string
	Polling  bool
	Channels int64
	Messages int64
	Unread   int
	Pending  int64
	Uptime   time.Duration
}

// Header is the top area: session info, key hints and the logo.
type Header struct {
	*tview.Flex
	theme *Theme
	info  *tview.TextView
	menu  *tview.TextView
	logo  *tview.TextView
}

// NewHeader creates the header.
func NewHeader(theme *Theme) *Header {
	newText := func() *tview.TextView {
		tv := tview.NewTextView().SetDynamicColors(true)
		tv.SetBackgroundColor(theme.BgColor)
		return tv
	}
	h := &Header{theme: theme, info: newText(), menu: newText(), logo: newText()}
	h.info.SetBorderPadding(0, 0, 1, 1)
	h.menu.SetBorderPadding(0, 0, 2, 0)
	h.logo.SetBorderPadding(1, 0, 1, 0)

	h.Flex = tview.NewFlex().
		AddItem(h.info, 0, 2, false).
		AddItem(h.menu, 0, 3, false).
		AddItem(h.logo, 18, 0, false)
	h.renderLogo()
	return h
}

// SetSession renders the session block.
func (h *Header) SetSession(d *SessionData) {
	h.info.Clear()
	if d == nil {
		return
	}
	fg := Tag(h.theme.FgColor)
	ct := Tag(h.theme.CounterColor)
	st := Tag(h.theme.StatusColor(d.Status))

	member := d.Member
	if member == "" {
		member = "-"
	}
	polling := "on"
	if !d.Polling {
		polling = "off"
	}

	_, _ = fmt.Fprintf(h.info,
		"[%s::b]Session:[-:-:-]  [%s]%s[-]\n"+
			"[%s::b]Member:[-:-:-]   [%s]%s[-]\n"+
			"[%s::b]Status:[-:-:-]   [%s::b]%s[-:-:-] [%s](poll %s)[-]\n"+
			"[%s::b]Channels:[-:-:-] [%s]%d[-] [%s](%d unread)[-]\n"+
			"[%s::b]Msgs:[-:-:-]     [%s]%d[-] [%s](%d queued)[-]\n"+
			"[%s::b]Uptime:[-:-:-]   [%s]%s[-]",
		fg, ct, d.Session,
		fg, ct, tview.Escape(member),
		fg, st, d.Status, fg, polling,
		fg, ct, d.Channels, fg, d.Unread,
		fg, ct, d.Messages, fg, d.Pending,
		fg, ct, formatDuration(d.Uptime),
	)
}

// SetHints renders key hints, one per line.
func (h *Header) SetHints(hints []MenuHint) {
	h.menu.Clear()
	keyColor := Tag(h.theme.MenuKeyColor)
	numColor := Tag(h.theme.NumericKeyColor)
	var b strings.Builder
	for _, hint := range hints {
		kc := keyColor
		if hint.Numeric {
			kc = numColor
		}
		fmt.Fprintf(&b, "[%s::b]<%s>[-:-:-] %s\n", kc, hint.Key, hint.Description)
	}
	_, _ = fmt.Fprint(h.menu, b.String())
}

func (h *Header) renderLogo() {
	tc := Tag(h.theme.TitleColor)
	_, _ = fmt.Fprintf(h.logo,
		"[%s::b] ▄▀█ █▀▄ █▀▄▀█[-:-:-]\n"+
			"[%s::b] █▀█ █▄▀ █ ▀ █[-:-:-]\n"+
			"[%s]admiral chat[-]",
		tc, tc, Tag(h.theme.FgColor))
}

// Crumbs is the breadcrumb bar showing the page stack.
type Crumbs struct {
	*tview.TextView
	theme *Theme
}

// NewCrumbs creates a breadcrumb bar.
func NewCrumbs(theme *Theme) *Crumbs {
	tv := tview.NewTextView().SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)
	return &Crumbs{TextView: tv, theme: theme}
}

// Update renders the trail; the last entry is the active page.
func (c *Crumbs) Update(stack []string) {
	c.Clear()
	parts := make([]string, 0, len(stack))
	for i, name := range stack {
		fg, bg, attr := c.theme.CrumbInactiveFg, c.theme.CrumbInactiveBg, ""
		if i == len(stack)-1 {
			fg, bg, attr = c.theme.CrumbActiveFg, c.theme.CrumbActiveBg, "b"
		}
		parts = append(parts, fmt.Sprintf("[%s:%s:%s] %s [-:-:-]", Tag(fg), Tag(bg), attr, tview.Escape(name)))
	}
	_, _ = fmt.Fprint(c, strings.Join(parts, " "))
}

func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
