// Package keys maps key events to TUI actions per page.
package keys

import (
	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/admiral/internal/tui/ui"
)

// Action is a single key binding.
type Action struct {
	Key         tcell.Key
	Rune        rune
	Label       string // key as shown in hints, e.g. "Enter"
	Description string
	Handler     func()
	Hidden      bool
}

// Matches reports whether ev triggers the action.
func (a *Action) Matches(ev *tcell.EventKey) bool {
	if a.Key != tcell.KeyRune {
		return ev.Key() == a.Key
	}
	return ev.Key() == tcell.KeyRune && ev.Rune() == a.Rune
}

func (a *Action) hint() ui.MenuHint {
	label := a.Label
	if label == "" {
		label = string(a.Rune)
	}
	return ui.MenuHint{Key: label, Description: a.Description}
}

// Registry holds global and per-page bindings in registration order.
type Registry struct {
	global []*Action
	pages  map[string][]*Action
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{pages: make(map[string][]*Action)}
}

// AddGlobal registers a binding active on every page.
func (r *Registry) AddGlobal(a *Action) {
	r.global = append(r.global, a)
}

// AddPage registers a binding active only on page.
func (r *Registry) AddPage(page string, a *Action) {
	r.pages[page] = append(r.pages[page], a)
}

// Hints lists the visible bindings of page followed by the global ones.
func (r *Registry) Hints(page string) []ui.MenuHint {
	var hints []ui.MenuHint
	for _, a := range r.pages[page] {
		if !a.Hidden {
			hints = append(hints, a.hint())
		}
	}
	for _, a := range r.global {
		if !a.Hidden {
			hints = append(hints, a.hint())
		}
	}
	return hints
}

// HandleEvent runs the first binding matching ev, page bindings first. It
// reports whether one ran.
func (r *Registry) HandleEvent(page string, ev *tcell.EventKey) bool {
	for _, a := range r.pages[page] {
		if a.Matches(ev) {
			a.Handler()
			return true
		}
	}
	for _, a := range r.global {
		if a.Matches(ev) {
			a.Handler()
			return true
		}
	}
	return false
}
