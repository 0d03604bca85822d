package views

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/admiral/internal/rpc"
	"github.com/matheus3301/admiral/internal/tui/ui"
	"github.com/rivo/tview"
)

// ChannelList is the root page: every cached channel with unread counts.
type ChannelList struct {
	*tview.Table
	theme    *ui.Theme
	channels []rpc.Channel
	visible  []rpc.Channel
	activeID string
	filter   string
}

// NewChannelList creates the channel table.
func NewChannelList(theme *ui.Theme) *ChannelList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false).
		SetFixed(1, 0)
	table.SetBorder(true)
	table.SetBorderColor(theme.BorderColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))
	table.SetTitleColor(theme.TitleColor)

	cl := &ChannelList{Table: table, theme: theme}
	cl.render()
	return cl
}

// Name implements ui.Component.
func (cl *ChannelList) Name() string { return "Channels" }

// Hints implements ui.Component.
func (cl *ChannelList) Hints() []ui.MenuHint {
	return []ui.MenuHint{{Key: "1-9", Description: "Jump", Numeric: true}}
}

// FocusTarget implements ui.Component.
func (cl *ChannelList) FocusTarget() tview.Primitive { return cl.Table }

// Update replaces the channel list and keeps the cursor on the same channel.
func (cl *ChannelList) Update(channels []rpc.Channel, activeID string) {
	selected := cl.SelectedChannel()
	cl.channels = channels
	cl.activeID = activeID
	cl.render()
	cl.selectID(selected)
}

// SetFilter keeps only channels whose name or preview contains filter.
func (cl *ChannelList) SetFilter(filter string) {
	cl.filter = filter
	cl.render()
	cl.Select(1, 0)
}

// ClearFilter removes the filter.
func (cl *ChannelList) ClearFilter() {
	cl.SetFilter("")
}

// Filter returns the active filter.
func (cl *ChannelList) Filter() string { return cl.filter }

func (cl *ChannelList) matches(c rpc.Channel) bool {
	if cl.filter == "" {
		return true
	}
	f := strings.ToLower(cl.filter)
	return strings.Contains(strings.ToLower(c.Name), f) ||
		strings.Contains(strings.ToLower(c.LastMessagePreview), f)
}

func (cl *ChannelList) render() {
	cl.Clear()

	headers := []struct {
		text string
		exp  int
	}{
		{" NAME", 1},
		{" LAST MESSAGE", 2},
		{" TIME", 0},
		{" TYPE", 0},
	}
	for col, h := range headers {
		cl.SetCell(0, col, tview.NewTableCell(h.text).
			SetSelectable(false).
			SetTextColor(cl.theme.TableHeaderFg).
			SetBackgroundColor(cl.theme.TableHeaderBg).
			SetAttributes(tcell.AttrBold).
			SetExpansion(h.exp))
	}

	cl.visible = cl.visible[:0]
	for _, c := range cl.channels {
		if !cl.matches(c) {
			continue
		}
		cl.visible = append(cl.visible, c)
		row := len(cl.visible)

		name := singleLine(c.Name)
		if c.Type != "dm" {
			name = "#" + name
		}
		if c.ID == cl.activeID {
			name = "● " + name
		}
		color := cl.theme.FgColor
		attr := tcell.AttrNone
		if c.UnreadCount > 0 {
			name = fmt.Sprintf("%s (%d)", name, c.UnreadCount)
			color = cl.theme.UnreadColor
			attr = tcell.AttrBold
		}

		cl.SetCell(row, 0, tview.NewTableCell(" "+name).SetExpansion(1).SetTextColor(color).SetAttributes(attr))
		cl.SetCell(row, 1, tview.NewTableCell(" "+singleLine(c.LastMessagePreview)).SetExpansion(2).SetTextColor(cl.theme.FgColor))
		cl.SetCell(row, 2, tview.NewTableCell(formatTimestamp(c.LastMessageAt)).SetTextColor(cl.theme.FgColor).SetAlign(tview.AlignRight))
		cl.SetCell(row, 3, tview.NewTableCell(" "+strings.ToUpper(c.Type)).SetTextColor(cl.theme.FgColor).SetAlign(tview.AlignRight))
	}

	if cl.filter != "" {
		cl.SetTitle(fmt.Sprintf(" Channels (%d/%d) filter: %s ", len(cl.visible), len(cl.channels), tview.Escape(cl.filter)))
	} else {
		cl.SetTitle(fmt.Sprintf(" Channels (%d) ", len(cl.channels)))
	}
}

func (cl *ChannelList) selectID(id string) {
	for i, c := range cl.visible {
		if c.ID == id {
			cl.Select(i+1, 0)
			return
		}
	}
}

// SelectedChannel returns the id under the cursor, or "".
func (cl *ChannelList) SelectedChannel() string {
	row, _ := cl.GetSelection()
	return cl.ChannelByIndex(row)
}

// ChannelByIndex returns the id of the nth visible channel, 1-based.
func (cl *ChannelList) ChannelByIndex(n int) string {
	if n < 1 || n > len(cl.visible) {
		return ""
	}
	return cl.visible[n-1].ID
}
