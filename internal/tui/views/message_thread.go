package views

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/admiral/internal/rpc"
	"github.com/matheus3301/admiral/internal/tui/ui"
	"github.com/rivo/tview"
)

// MessageThread shows the active channel's history above a composer.
type MessageThread struct {
	*tview.Flex
	theme       *ui.Theme
	messages    *tview.TextView
	composer    *tview.InputField
	channelID   string
	channelName string
	selfID      string
	warning     string
	failed      int
	onSend      func(text string)
}

// NewMessageThread creates the thread page.
func NewMessageThread(theme *ui.Theme) *MessageThread {
	messages := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	messages.SetBorder(true)
	messages.SetBorderColor(theme.BorderColor)
	messages.SetBackgroundColor(theme.BgColor)
	messages.SetTextColor(theme.FgColor)
	messages.SetTitle(" Messages ")
	messages.SetTitleColor(theme.TitleColor)

	composer := tview.NewInputField().
		SetLabel(" > ").
		SetFieldWidth(0)
	composer.SetBorder(true)
	composer.SetBorderColor(theme.BorderColor)
	composer.SetBackgroundColor(theme.BgColor)
	composer.SetFieldBackgroundColor(theme.BgColor)
	composer.SetFieldTextColor(theme.FgColor)
	composer.SetLabelColor(theme.MenuKeyColor)
	composer.SetTitle(" Compose (i to focus) ")
	composer.SetTitleColor(theme.TitleColor)

	mt := &MessageThread{
		Flex: tview.NewFlex().
			SetDirection(tview.FlexRow).
			AddItem(messages, 0, 1, true).
			AddItem(composer, 3, 0, false),
		theme:    theme,
		messages: messages,
		composer: composer,
	}

	composer.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter || mt.onSend == nil {
			return
		}
		text := strings.TrimSpace(composer.GetText())
		if text == "" {
			return
		}
		mt.onSend(text)
		composer.SetText("")
	})

	return mt
}

// Name implements ui.Component.
func (mt *MessageThread) Name() string {
	if mt.channelName != "" {
		return mt.channelName
	}
	return "Messages"
}

// Hints implements ui.Component.
func (mt *MessageThread) Hints() []ui.MenuHint { return nil }

// FocusTarget implements ui.Component.
func (mt *MessageThread) FocusTarget() tview.Primitive { return mt.messages }

// SetSelf sets the member id whose messages render as "You".
func (mt *MessageThread) SetSelf(memberID string) {
	mt.selfID = memberID
}

// SetChannel points the thread at a channel.
func (mt *MessageThread) SetChannel(id, name string) {
	mt.channelID = id
	mt.channelName = name
	mt.messages.SetTitle(fmt.Sprintf(" %s ", tview.Escape(name)))
}

// ChannelID returns the channel shown.
func (mt *MessageThread) ChannelID() string {
	return mt.channelID
}

// SetWarning shows a banner above the history, e.g. when only the cache could
// be read. An empty warning hides it.
func (mt *MessageThread) SetWarning(w string) {
	mt.warning = w
}

// SetOnSend sets the callback for a submitted composer line.
func (mt *MessageThread) SetOnSend(fn func(text string)) {
	mt.onSend = fn
}

// FailedCount reports how many messages in the last update failed to send.
func (mt *MessageThread) FailedCount() int {
	return mt.failed
}

// Update redraws the history. msgs are in ascending order.
func (mt *MessageThread) Update(msgs []rpc.Message) {
	mt.messages.Clear()
	mt.failed = 0

	var b strings.Builder
	if mt.warning != "" {
		fmt.Fprintf(&b, "[%s]! %s (showing cached history)[-]\n\n", ui.Tag(mt.theme.FlashWarnColor), clean(mt.warning))
	}
	if len(msgs) == 0 {
		fmt.Fprintf(&b, "[::d]No messages yet.[-:-:-]\n")
	}
	for _, m := range msgs {
		mt.writeMessage(&b, m)
	}
	_, _ = fmt.Fprint(mt.messages, b.String())
	mt.messages.ScrollToEnd()
}

func (mt *MessageThread) writeMessage(b *strings.Builder, m rpc.Message) {
	sender := m.SenderName
	if sender == "" {
		sender = m.SenderID
	}
	senderColor := mt.theme.CounterColor
	if m.SenderID != "" && m.SenderID == mt.selfID {
		sender = "You"
		senderColor = mt.theme.OwnMessageColor
	}

	if m.Kind == "system" {
		fmt.Fprintf(b, "[::d]-- %s --[-:-:-]\n\n", clean(m.Body))
		return
	}

	mark := ""
	switch m.Status {
	case "pending":
		mark = fmt.Sprintf(" [%s]sending…[-]", ui.Tag(mt.theme.PendingColor))
	case "failed":
		mt.failed++
		mark = fmt.Sprintf(" [%s::b]✗ not sent, press r to retry[-:-:-]", ui.Tag(mt.theme.FailedColor))
	}

	fmt.Fprintf(b, "[%s::b]%s[-:-:-] [::d]%s[-:-:-]%s\n%s\n\n",
		ui.Tag(senderColor), clean(sender), formatTimestamp(m.CreatedAt), mark, clean(m.Body))
}

// Text returns the rendered history without color tags.
func (mt *MessageThread) Text() string {
	return mt.messages.GetText(true)
}

// Messages returns the history view.
func (mt *MessageThread) Messages() *tview.TextView {
	return mt.messages
}

// Composer returns the input line.
func (mt *MessageThread) Composer() *tview.InputField {
	return mt.composer
}
