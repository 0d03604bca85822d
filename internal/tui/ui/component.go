package ui

import "github.com/rivo/tview"

// MenuHint describes a keyboard shortcut for display in the header menu.
type MenuHint struct {
	Key         string
	Description string
	Numeric     bool // 1-9 jumps, drawn in a different color
}

// Component is implemented by every page.
type Component interface {
	tview.Primitive
	Name() string
	Hints() []MenuHint
	// FocusTarget is the child that receives focus when the page is shown.
	FocusTarget() tview.Primitive
}
