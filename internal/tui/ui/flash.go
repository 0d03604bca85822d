package ui

import (
	"fmt"
	"sync"
	"time"

	"github.com/rivo/tview"
)

// FlashLevel is the severity of a flash message.
type FlashLevel int

const (
	FlashInfo FlashLevel = iota
	FlashWarn
	FlashErr
)

// FlashMessage is a transient notification.
type FlashMessage struct {
	Text    string
	Level   FlashLevel
	Expires time.Time
}

// FlashModel holds the current notification. It is safe for concurrent use;
// background loaders write to it while the draw loop reads.
type FlashModel struct {
	mu      sync.RWMutex
	current FlashMessage
	watchCh chan FlashMessage
}

// NewFlashModel creates an empty flash model.
func NewFlashModel() *FlashModel {
	return &FlashModel{watchCh: make(chan FlashMessage, 8)}
}

// Info shows msg for five seconds.
func (f *FlashModel) Info(msg string) {
	f.set(msg, FlashInfo, 5*time.Second)
}

// Warn shows msg for eight seconds.
func (f *FlashModel) Warn(msg string) {
	f.set(msg, FlashWarn, 8*time.Second)
}

// Err shows err for ten seconds. A nil error is ignored.
func (f *FlashModel) Err(err error) {
	if err == nil {
		return
	}
	f.set(err.Error(), FlashErr, 10*time.Second)
}

// Errf formats and shows an error message.
func (f *FlashModel) Errf(format string, args ...any) {
	f.set(fmt.Sprintf(format, args...), FlashErr, 10*time.Second)
}

func (f *FlashModel) set(msg string, level FlashLevel, d time.Duration) {
	fm := FlashMessage{Text: msg, Level: level, Expires: time.Now().Add(d)}
	f.mu.Lock()
	f.current = fm
	f.mu.Unlock()
	select {
	case f.watchCh <- fm:
	default:
	}
}

// Current returns the live message, or nil once it has expired.
func (f *FlashModel) Current() *FlashMessage {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.current.Text == "" || time.Now().After(f.current.Expires) {
		return nil
	}
	m := f.current
	return &m
}

// Watch delivers every message as it is set.
func (f *FlashModel) Watch() <-chan FlashMessage {
	return f.watchCh
}

// FlashBar draws the current flash message.
type FlashBar struct {
	*tview.TextView
	theme *Theme
}

// NewFlashBar creates a flash bar.
func NewFlashBar(theme *Theme) *FlashBar {
	tv := tview.NewTextView().SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)
	return &FlashBar{TextView: tv, theme: theme}
}

// Update renders msg, or clears the bar when msg is nil.
func (fb *FlashBar) Update(msg *FlashMessage) {
	fb.Clear()
	if msg == nil {
		return
	}
	color := fb.theme.FlashInfoColor
	switch msg.Level {
	case FlashWarn:
		color = fb.theme.FlashWarnColor
	case FlashErr:
		color = fb.theme.FlashErrColor
	}
	_, _ = fmt.Fprintf(fb, " [%s]%s[-]", Tag(color), tview.Escape(msg.Text))
}
