package ui

import (
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// PromptMode selects what a submitted prompt means.
type PromptMode int

const (
	PromptCommand PromptMode = iota
	PromptFilter
)

const maxPromptHistory = 50

// Prompt is the command/filter input bar. Command mode keeps a history that
// Up and Down walk through.
type Prompt struct {
	*tview.InputField
	theme    *Theme
	mode     PromptMode
	history  []string
	cursor   int
	onSubmit func(mode PromptMode, text string)
	onCancel func()
}

// NewPrompt creates a prompt bar.
func NewPrompt(theme *Theme) *Prompt {
	input := tview.NewInputField()
	input.SetBorder(true)
	input.SetBorderColor(theme.PromptBorderColor)
	input.SetBackgroundColor(theme.BgColor)
	input.SetFieldBackgroundColor(theme.BgColor)
	input.SetFieldTextColor(theme.FgColor)
	input.SetLabelColor(theme.MenuKeyColor)

	p := &Prompt{InputField: input, theme: theme}

	input.SetDoneFunc(func(key tcell.Key) {
		switch key {
		case tcell.KeyEnter:
			text := p.GetText()
			if text != "" && p.mode == PromptCommand {
				p.remember(text)
			}
			if text != "" && p.onSubmit != nil {
				p.onSubmit(p.mode, text)
			}
			p.SetText("")
		case tcell.KeyEscape:
			p.SetText("")
			if p.onCancel != nil {
				p.onCancel()
			}
		}
	})
	input.SetInputCapture(func(ev *tcell.EventKey) *tcell.EventKey {
		if p.mode != PromptCommand {
			return ev
		}
		switch ev.Key() {
		case tcell.KeyUp:
			p.walk(-1)
			return nil
		case tcell.KeyDown:
			p.walk(1)
			return nil
		}
		return ev
	})

	return p
}

// SetOnSubmit sets the callback for a non-empty submission.
func (p *Prompt) SetOnSubmit(fn func(mode PromptMode, text string)) {
	p.onSubmit = fn
}

// SetOnCancel sets the callback for Esc.
func (p *Prompt) SetOnCancel(fn func()) {
	p.onCancel = fn
}

// Activate clears the prompt and switches it to mode.
func (p *Prompt) Activate(mode PromptMode) {
	p.mode = mode
	p.cursor = len(p.history)
	p.SetText("")
	switch mode {
	case PromptCommand:
		p.SetLabel(":")
		p.SetTitle(" Command ")
	case PromptFilter:
		p.SetLabel("/")
		p.SetTitle(" Filter ")
	}
}

// Mode returns the current mode.
func (p *Prompt) Mode() PromptMode {
	return p.mode
}

func (p *Prompt) remember(text string) {
	if n := len(p.history); n > 0 && p.history[n-1] == text {
		return
	}
	p.history = append(p.history, text)
	if len(p.history) > maxPromptHistory {
		p.history = p.history[len(p.history)-maxPromptHistory:]
	}
}

func (p *Prompt) walk(step int) {
	next := p.cursor + step
	if next < 0 || next > len(p.history) {
		return
	}
	p.cursor = next
	if next == len(p.history) {
		p.SetText("")
		return
	}
	p.SetText(p.history[next])
}
