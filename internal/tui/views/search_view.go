package views

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/admiral/internal/rpc"
	"github.com/matheus3301/admiral/internal/tui/ui"
	"github.com/rivo/tview"
)

// SearchView runs full-text queries over the local cache.
type SearchView struct {
	*tview.Flex
	theme   *ui.Theme
	input   *tview.InputField
	results *tview.Table
	data    []rpc.SearchResult
	names   func(channelID string) string
	onQuery func(query string)
}

// NewSearchView creates the search page. names resolves channel ids for
// display and may be nil.
func NewSearchView(theme *ui.Theme, names func(channelID string) string) *SearchView {
	input := tview.NewInputField().
		SetLabel(" Search: ").
		SetFieldWidth(0)
	input.SetBackgroundColor(theme.BgColor)
	input.SetFieldBackgroundColor(theme.BgColor)
	input.SetFieldTextColor(theme.FgColor)
	input.SetLabelColor(theme.MenuKeyColor)

	results := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false).
		SetFixed(1, 0)
	results.SetBorder(true)
	results.SetBorderColor(theme.BorderColor)
	results.SetBackgroundColor(theme.BgColor)
	results.SetTitle(" Results ")
	results.SetTitleColor(theme.TitleColor)
	results.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))

	sv := &SearchView{
		Flex: tview.NewFlex().
			SetDirection(tview.FlexRow).
			AddItem(input, 1, 0, true).
			AddItem(results, 0, 1, false),
		theme:   theme,
		input:   input,
		results: results,
		names:   names,
	}
	input.SetDoneFunc(func(key tcell.Key) {
		query := strings.TrimSpace(input.GetText())
		if key == tcell.KeyEnter && query != "" && sv.onQuery != nil {
			sv.onQuery(query)
		}
	})
	return sv
}

// Name implements ui.Component.
func (sv *SearchView) Name() string { return "Search" }

// Hints implements ui.Component.
func (sv *SearchView) Hints() []ui.MenuHint { return nil }

// FocusTarget implements ui.Component.
func (sv *SearchView) FocusTarget() tview.Primitive { return sv.input }

// SetOnQuery sets the callback for a submitted query.
func (sv *SearchView) SetOnQuery(fn func(query string)) {
	sv.onQuery = fn
}

// Submit fills the input with q and runs it.
func (sv *SearchView) Submit(q string) {
	sv.input.SetText(q)
	if sv.onQuery != nil {
		sv.onQuery(q)
	}
}

// Update renders results; snippet matches are highlighted.
func (sv *SearchView) Update(results []rpc.SearchResult) {
	sv.data = results
	sv.results.Clear()

	for col, h := range []string{" CHANNEL", " FROM", " SNIPPET", " TIME"} {
		sv.results.SetCell(0, col, tview.NewTableCell(h).
			SetSelectable(false).
			SetTextColor(sv.theme.TableHeaderFg).
			SetBackgroundColor(sv.theme.TableHeaderBg).
			SetAttributes(tcell.AttrBold))
	}

	for i, r := range results {
		row := i + 1
		channel := r.Message.ChannelID
		if sv.names != nil {
			if n := sv.names(channel); n != "" {
				channel = n
			}
		}
		from := r.Message.SenderName
		if from == "" {
			from = r.Message.SenderID
		}
		sv.results.SetCell(row, 0, tview.NewTableCell(" "+singleLine(channel)).SetMaxWidth(20).SetTextColor(sv.theme.FgColor))
		sv.results.SetCell(row, 1, tview.NewTableCell(" "+singleLine(from)).SetMaxWidth(16).SetTextColor(sv.theme.FgColor))
		sv.results.SetCell(row, 2, tview.NewTableCell(" "+highlight(r.Snippet, sv.theme)).SetExpansion(1).SetTextColor(sv.theme.FgColor))
		sv.results.SetCell(row, 3, tview.NewTableCell(" "+formatTimestamp(r.Message.CreatedAt)).SetMaxWidth(12).SetTextColor(sv.theme.FgColor))
	}
	sv.results.SetTitle(fmt.Sprintf(" Results (%d) ", len(results)))
}

// highlight turns the <<match>> markers of a snippet into color tags.
func highlight(snippet string, theme *ui.Theme) string {
	s := singleLine(snippet)
	s = strings.ReplaceAll(s, "<<", fmt.Sprintf("[%s::b]", ui.Tag(theme.CounterColor)))
	return strings.ReplaceAll(s, ">>", "[-:-:-]")
}

// SelectedResult returns the channel and message id under the cursor.
func (sv *SearchView) SelectedResult() (channelID, messageID string) {
	row, _ := sv.results.GetSelection()
	if row < 1 || row > len(sv.data) {
		return "", ""
	}
	m := sv.data[row-1].Message
	return m.ChannelID, m.ID
}

// Input returns the query field.
func (sv *SearchView) Input() *tview.InputField {
	return sv.input
}

// Results returns the result table.
func (sv *SearchView) Results() *tview.Table {
	return sv.results
}
