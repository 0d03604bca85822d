package ui

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
)

// Theme holds the colors of the TUI.
type Theme struct {
	BgColor           tcell.Color
	FgColor           tcell.Color
	BorderColor       tcell.Color
	BorderFocusColor  tcell.Color
	TableHeaderFg     tcell.Color
	TableHeaderBg     tcell.Color
	TableCursorFg     tcell.Color
	TableCursorBg     tcell.Color
	CrumbActiveFg     tcell.Color
	CrumbActiveBg     tcell.Color
	CrumbInactiveFg   tcell.Color
	CrumbInactiveBg   tcell.Color
	MenuKeyColor      tcell.Color
	NumericKeyColor   tcell.Color
	TitleColor        tcell.Color
	CounterColor      tcell.Color
	UnreadColor       tcell.Color
	OwnMessageColor   tcell.Color
	PendingColor      tcell.Color
	FailedColor       tcell.Color
	ReadyColor        tcell.Color
	DegradedColor     tcell.Color
	PausedColor       tcell.Color
	FlashInfoColor    tcell.Color
	FlashWarnColor    tcell.Color
	FlashErrColor     tcell.Color
	PromptBorderColor tcell.Color
}

// DefaultTheme returns a dark theme in the k9s palette.
func DefaultTheme() *Theme {
	return &Theme{
		BgColor:           tcell.ColorBlack,
		FgColor:           tcell.ColorCadetBlue,
		BorderColor:       tcell.ColorDodgerBlue,
		BorderFocusColor:  tcell.ColorLightSkyBlue,
		TableHeaderFg:     tcell.ColorWhite,
		TableHeaderBg:     tcell.ColorBlack,
		TableCursorFg:     tcell.ColorBlack,
		TableCursorBg:     tcell.ColorAqua,
		CrumbActiveFg:     tcell.ColorBlack,
		CrumbActiveBg:     tcell.ColorOrange,
		CrumbInactiveFg:   tcell.ColorBlack,
		CrumbInactiveBg:   tcell.ColorAqua,
		MenuKeyColor:      tcell.ColorDodgerBlue,
		NumericKeyColor:   tcell.ColorFuchsia,
		TitleColor:        tcell.ColorFuchsia,
		CounterColor:      tcell.ColorPapayaWhip,
		UnreadColor:       tcell.ColorWhite,
		OwnMessageColor:   tcell.ColorLightSkyBlue,
		PendingColor:      tcell.ColorGray,
		FailedColor:       tcell.ColorOrangeRed,
		ReadyColor:        tcell.ColorLimeGreen,
		DegradedColor:     tcell.ColorOrange,
		PausedColor:       tcell.ColorGray,
		FlashInfoColor:    tcell.ColorNavajoWhite,
		FlashWarnColor:    tcell.ColorOrange,
		FlashErrColor:     tcell.ColorOrangeRed,
		PromptBorderColor: tcell.ColorDodgerBlue,
	}
}

// StatusColor picks the color a session status is drawn in.
func (t *Theme) StatusColor(status string) tcell.Color {
	switch status {
	case "READY":
		return t.ReadyColor
	case "DEGRADED", "SYNCING", "BOOTING":
		return t.DegradedColor
	case "ERROR", "STOPPED":
		return t.FailedColor
	case "PAUSED":
		return t.PausedColor
	default:
		return t.FgColor
	}
}

// Tag returns a tview color tag name for c.
func Tag(c tcell.Color) string {
	for name, val := range tcell.ColorNames {
		if val == c {
			return name
		}
	}
	return fmt.Sprintf("#%06x", c.Hex())
}
