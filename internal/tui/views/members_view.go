package views

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/admiral/internal/rpc"
	"github.com/matheus3301/admiral/internal/tui/ui"
	"github.com/rivo/tview"
)

// MembersView lists workspace members; Enter opens a direct channel.
type MembersView struct {
	*tview.Table
	theme   *ui.Theme
	members []rpc.Member
}

// NewMembersView creates the member table.
func NewMembersView(theme *ui.Theme) *MembersView {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetFixed(1, 0)
	table.SetBorder(true)
	table.SetBorderColor(theme.BorderColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))
	table.SetTitle(" Members ")
	table.SetTitleColor(theme.TitleColor)
	return &MembersView{Table: table, theme: theme}
}

// Name implements ui.Component.
func (mv *MembersView) Name() string { return "Members" }

// Hints implements ui.Component.
func (mv *MembersView) Hints() []ui.MenuHint { return nil }

// FocusTarget implements ui.Component.
func (mv *MembersView) FocusTarget() tview.Primitive { return mv.Table }

// Update renders members, leaving out selfID.
func (mv *MembersView) Update(members []rpc.Member, selfID string) {
	mv.members = mv.members[:0]
	for _, m := range members {
		if m.ID != selfID {
			mv.members = append(mv.members, m)
		}
	}
	mv.Clear()
	for col, h := range []string{" NAME", " EMAIL", " ID"} {
		mv.SetCell(0, col, tview.NewTableCell(h).
			SetSelectable(false).
			SetTextColor(mv.theme.TableHeaderFg).
			SetAttributes(tcell.AttrBold).
			SetExpansion(1))
	}
	for i, m := range mv.members {
		name := m.Name
		if strings.TrimSpace(name) == "" {
			name = m.ID
		}
		mv.SetCell(i+1, 0, tview.NewTableCell(" "+singleLine(name)).SetTextColor(mv.theme.FgColor).SetExpansion(1))
		mv.SetCell(i+1, 1, tview.NewTableCell(" "+singleLine(m.Email)).SetTextColor(mv.theme.FgColor).SetExpansion(1))
		mv.SetCell(i+1, 2, tview.NewTableCell(" "+singleLine(m.ID)).SetTextColor(mv.theme.FgColor).SetExpansion(1))
	}
	mv.SetTitle(fmt.Sprintf(" Members (%d) ", len(mv.members)))
	mv.Select(1, 0)
}

// SelectedMember returns the id under the cursor, or "".
func (mv *MembersView) SelectedMember() string {
	row, _ := mv.GetSelection()
	if row < 1 || row > len(mv.members) {
		return ""
	}
	return mv.members[row-1].ID
}
