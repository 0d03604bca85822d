package ui

import "github.com/rivo/tview"

// Pages is a stack of named pages on top of tview.Pages. Only the top of the
// stack is visible.
type Pages struct {
	*tview.Pages
	stack    []string
	onChange func(stack []string)
}

// NewPages creates an empty page stack.
func NewPages() *Pages {
	return &Pages{Pages: tview.NewPages()}
}

// SetOnChange registers a callback fired after every stack change.
func (p *Pages) SetOnChange(fn func(stack []string)) {
	p.onChange = fn
}

// Push shows name on top of the stack. Pushing the current top is a no-op.
func (p *Pages) Push(name string) {
	if p.Current() == name {
		return
	}
	if len(p.stack) > 0 {
		p.HidePage(p.Current())
	}
	p.stack = append(p.stack, name)
	p.show(name)
	p.notify()
}

// Pop removes the top page and returns its name. The root page is never
// popped; Pop returns "" when only the root remains.
func (p *Pages) Pop() string {
	if len(p.stack) <= 1 {
		return ""
	}
	top := p.Current()
	p.HidePage(top)
	p.stack = p.stack[:len(p.stack)-1]
	p.show(p.Current())
	p.notify()
	return top
}

// PopTo pops until name is on top. It reports false, leaving the stack
// untouched, when name is not on the stack.
func (p *Pages) PopTo(name string) bool {
	idx := -1
	for i, n := range p.stack {
		if n == name {
			idx = i
		}
	}
	if idx < 0 {
		return false
	}
	for _, n := range p.stack[idx+1:] {
		p.HidePage(n)
	}
	p.stack = p.stack[:idx+1]
	p.show(name)
	p.notify()
	return true
}

// Current returns the top page name.
func (p *Pages) Current() string {
	if len(p.stack) == 0 {
		return ""
	}
	return p.stack[len(p.stack)-1]
}

// Stack returns a copy of the stack, root first.
func (p *Pages) Stack() []string {
	s := make([]string, len(p.stack))
	copy(s, p.stack)
	return s
}

// Reset clears the stack and shows only name.
func (p *Pages) Reset(name string) {
	for _, n := range p.stack {
		p.HidePage(n)
	}
	p.stack = []string{name}
	p.show(name)
	p.notify()
}

func (p *Pages) show(name string) {
	p.ShowPage(name)
	p.SendToFront(name)
}

func (p *Pages) notify() {
	if p.onChange != nil {
		p.onChange(p.Stack())
	}
}
