package views

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/rivo/tview"
)

// clean prepares server-provided text for a tview cell: it drops codepoints
// tcell renders badly, collapses control characters and escapes color tags.
func clean(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		i += size
		switch {
		case r == '\n' || r == '\t':
			b.WriteRune(r)
		case unicode.IsControl(r), dropRune(r):
		default:
			b.WriteRune(r)
		}
	}
	return tview.Escape(b.String())
}

// singleLine is clean with line breaks folded into spaces.
func singleLine(s string) string {
	return strings.Join(strings.Fields(clean(s)), " ")
}

func dropRune(r rune) bool {
	switch {
	case r >= 0x1F3FB && r <= 0x1F3FF: // skin tone modifiers
		return true
	case r == 0x200D: // zero width joiner
		return true
	case r >= 0xFE00 && r <= 0xFE0F: // variation selectors
		return true
	case r >= 0xE0100 && r <= 0xE01EF:
		return true
	case r >= 0x202A && r <= 0x202E, r >= 0x2066 && r <= 0x2069: // bidi overrides
		return true
	default:
		return false
	}
}

func formatTimestamp(ms int64) string {
	if ms == 0 {
		return ""
	}
	t := time.UnixMilli(ms)
	now := time.Now()
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	return t.Format("01/02")
}
