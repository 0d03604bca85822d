package views

import (
	"fmt"
	"strings"

	"github.com/matheus3301/admiral/internal/tui/ui"
	"github.com/rivo/tview"
)

// HelpView lists keys and commands.
type HelpView struct {
	*tview.TextView
	theme *ui.Theme
}

// NewHelpView creates the help page.
func NewHelpView(theme *ui.Theme) *HelpView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Help ")
	tv.SetTitleColor(theme.TitleColor)

	hv := &HelpView{TextView: tv, theme: theme}
	hv.render()
	return hv
}

// Name implements ui.Component.
func (hv *HelpView) Name() string { return "Help" }

// Hints implements ui.Component.
func (hv *HelpView) Hints() []ui.MenuHint { return nil }

// FocusTarget implements ui.Component.
func (hv *HelpView) FocusTarget() tview.Primitive { return hv.TextView }

type helpSection struct {
	title string
	rows  [][2]string
}

var helpSections = []helpSection{
	{"Global", [][2]string{
		{":", "Command mode"},
		{"/", "Filter channels"},
		{"?", "This help"},
		{"Esc", "Back"},
		{"q", "Quit"},
		{"Ctrl-R", "Poll now"},
	}},
	{"Channels", [][2]string{
		{"Enter", "Open channel"},
		{"1-9", "Open the nth channel"},
		{"m", "Members (Enter starts a direct message)"},
		{"s", "Search"},
	}},
	{"Thread", [][2]string{
		{"i", "Focus composer, Enter sends"},
		{"r", "Retry the last failed message"},
		{"o", "Load older messages"},
		{"d", "Channel details"},
	}},
	{"Commands", [][2]string{
		{":channel <name>", "Open a channel by name or id"},
		{":dm <member>", "Direct message a member"},
		{":search <query>", "Search cached messages"},
		{":read", "Mark the open channel read"},
		{":poll", "Poll now"},
		{":polling on|off", "Toggle background polling"},
		{":refresh", "Reload channels from the server"},
		{":quit", "Quit"},
	}},
}

func (hv *HelpView) render() {
	kc := ui.Tag(hv.theme.MenuKeyColor)
	var b strings.Builder
	for _, s := range helpSections {
		fmt.Fprintf(&b, "\n  [::b]%s[-:-:-]\n\n", s.title)
		for _, r := range s.rows {
			fmt.Fprintf(&b, "  [%s]%-18s[-:-:-] %s\n", kc, tview.Escape(r[0]), r[1])
		}
	}
	_, _ = fmt.Fprint(hv, b.String())
}
