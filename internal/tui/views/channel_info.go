package views

import (
	"fmt"
	"strings"

	"github.com/matheus3301/admiral/internal/rpc"
	"github.com/matheus3301/admiral/internal/tui/ui"
	"github.com/rivo/tview"
)

// ChannelInfo shows the details of one channel.
type ChannelInfo struct {
	*tview.TextView
	theme *ui.Theme
}

// NewChannelInfo creates the details page.
func NewChannelInfo(theme *ui.Theme) *ChannelInfo {
	tv := tview.NewTextView().SetDynamicColors(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Channel Details ")
	tv.SetTitleColor(theme.TitleColor)
	return &ChannelInfo{TextView: tv, theme: theme}
}

// Name implements ui.Component.
func (ci *ChannelInfo) Name() string { return "Details" }

// Hints implements ui.Component.
func (ci *ChannelInfo) Hints() []ui.MenuHint { return nil }

// FocusTarget implements ui.Component.
func (ci *ChannelInfo) FocusTarget() tview.Primitive { return ci.TextView }

// Update renders c. members resolves participant ids to names when known.
func (ci *ChannelInfo) Update(c rpc.Channel, members []rpc.Member) {
	ci.Clear()

	names := make(map[string]string, len(members))
	for _, m := range members {
		names[m.ID] = m.Name
	}
	participants := make([]string, 0, len(c.Participants))
	for _, id := range c.Participants {
		if n := names[id]; n != "" {
			participants = append(participants, n)
			continue
		}
		participants = append(participants, id)
	}

	kind := map[string]string{"public": "Public channel", "private": "Private channel", "dm": "Direct message"}[c.Type]
	if kind == "" {
		kind = c.Type
	}
	lastActive := formatTimestamp(c.LastMessageAt)
	if lastActive == "" {
		lastActive = "-"
	}

	fg := ui.Tag(ci.theme.FgColor)
	ct := ui.Tag(ci.theme.CounterColor)
	rows := [][2]string{
		{"Name", c.Name},
		{"ID", c.ID},
		{"Slug", c.Slug},
		{"Type", kind},
		{"Description", c.Description},
		{"Members", strings.Join(participants, ", ")},
		{"Unread", fmt.Sprint(c.UnreadCount)},
		{"Last Active", lastActive},
		{"Last Message", c.LastMessagePreview},
	}
	var b strings.Builder
	b.WriteString("\n")
	for _, r := range rows {
		if r[1] == "" {
			continue
		}
		fmt.Fprintf(&b, " [%s::b]%-13s[-:-:-] [%s]%s[-]\n", fg, r[0]+":", ct, singleLine(r[1]))
	}
	_, _ = fmt.Fprint(ci, b.String())
	ci.SetTitle(fmt.Sprintf(" %s ", tview.Escape(c.Name)))
}
