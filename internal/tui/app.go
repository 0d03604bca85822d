// Package tui is the terminal client of a session daemon.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/admiral/internal/rpc"
	"github.com/matheus3301/admiral/internal/tui/keys"
	"github.com/matheus3301/admiral/internal/tui/model"
	"github.com/matheus3301/admiral/internal/tui/ui"
	"github.com/matheus3301/admiral/internal/tui/views"
	"github.com/rivo/tview"
)

// Page names.
const (
	pageChannels = "channels"
	pageThread   = "thread"
	pageDetails  = "details"
	pageMembers  = "members"
	pageSearch   = "search"
	pageHelp     = "help"
)

const (
	callTimeout     = 15 * time.Second
	watchRetryDelay = 2 * time.Second
	headerHeight    = 6
	promptHeight    = 3
)

// App is the TUI shell.
type App struct {
	app      *tview.Application
	theme    *ui.Theme
	vm       *model.ViewModel
	session  string
	registry *keys.Registry
	flash    *ui.FlashModel

	layout   *tview.Flex
	header   *ui.Header
	crumbs   *ui.Crumbs
	flashBar *ui.FlashBar
	prompt   *ui.Prompt
	pages    *ui.Pages
	comps    map[string]ui.Component

	channels *views.ChannelList
	thread   *views.MessageThread
	details  *views.ChannelInfo
	members  *views.MembersView
	search   *views.SearchView
	help     *views.HelpView

	ctx    context.Context
	cancel context.CancelFunc
}

// NewApp builds the TUI over a daemon client.
func NewApp(c *rpc.Client, sessionName string) *App {
	return newApp(model.Bind(c), sessionName)
}

func newApp(backend model.Backend, sessionName string) *App {
	ctx, cancel := context.WithCancel(context.Background())
	theme := ui.DefaultTheme()
	vm := model.New(backend)

	a := &App{
		app:      tview.NewApplication(),
		theme:    theme,
		vm:       vm,
		session:  sessionName,
		registry: keys.NewRegistry(),
		flash:    ui.NewFlashModel(),
		header:   ui.NewHeader(theme),
		crumbs:   ui.NewCrumbs(theme),
		flashBar: ui.NewFlashBar(theme),
		prompt:   ui.NewPrompt(theme),
		pages:    ui.NewPages(),
		channels: views.NewChannelList(theme),
		thread:   views.NewMessageThread(theme),
		details:  views.NewChannelInfo(theme),
		members:  views.NewMembersView(theme),
		help:     views.NewHelpView(theme),
		ctx:      ctx,
		cancel:   cancel,
	}
	a.search = views.NewSearchView(theme, func(id string) string {
		if c, ok := vm.Channel(id); ok {
			return c.Name
		}
		return ""
	})

	a.setupPages()
	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()
	return a
}

func (a *App) setupPages() {
	a.comps = map[string]ui.Component{
		pageChannels: a.channels,
		pageThread:   a.thread,
		pageDetails:  a.details,
		pageMembers:  a.members,
		pageSearch:   a.search,
		pageHelp:     a.help,
	}
	for name, c := range a.comps {
		a.pages.AddPage(name, c, true, false)
	}
	a.pages.SetOnChange(func(stack []string) {
		names := make([]string, 0, len(stack))
		for _, n := range stack {
			names = append(names, a.comps[n].Name())
		}
		a.crumbs.Update(names)
		current := stack[len(stack)-1]
		a.header.SetHints(append(a.comps[current].Hints(), a.registry.Hints(current)...))
		a.app.SetFocus(a.comps[current].FocusTarget())
	})
}

func (a *App) setupBindings() {
	key := func(r rune, desc string, fn func()) *keys.Action {
		return &keys.Action{Key: tcell.KeyRune, Rune: r, Description: desc, Handler: fn}
	}

	a.registry.AddGlobal(key(':', "Command", func() { a.showPrompt(ui.PromptCommand) }))
	a.registry.AddGlobal(key('?', "Help", func() { a.pages.Push(pageHelp) }))
	a.registry.AddGlobal(&keys.Action{Key: tcell.KeyCtrlR, Label: "Ctrl-R", Description: "Poll now", Handler: a.pollNow})
	a.registry.AddGlobal(key('q', "Quit", a.Stop))

	a.registry.AddPage(pageChannels, &keys.Action{Key: tcell.KeyEnter, Label: "Enter", Description: "Open", Handler: func() {
		a.openChannel(a.channels.SelectedChannel())
	}})
	a.registry.AddPage(pageChannels, key('/', "Filter", func() { a.showPrompt(ui.PromptFilter) }))
	a.registry.AddPage(pageChannels, key('m', "Members", a.showMembers))
	a.registry.AddPage(pageChannels, key('s', "Search", func() { a.pages.Push(pageSearch) }))

	a.registry.AddPage(pageThread, key('i', "Compose", func() { a.app.SetFocus(a.thread.Composer()) }))
	a.registry.AddPage(pageThread, key('r', "Retry failed", a.retryFailed))
	a.registry.AddPage(pageThread, key('o', "Older", a.loadOlder))
	a.registry.AddPage(pageThread, key('d', "Details", a.showDetails))

	a.registry.AddPage(pageMembers, &keys.Action{Key: tcell.KeyEnter, Label: "Enter", Description: "Message", Handler: func() {
		a.startDirect(a.members.SelectedMember())
	}})
	a.registry.AddPage(pageSearch, &keys.Action{Key: tcell.KeyEnter, Label: "Enter", Description: "Open", Handler: func() {
		channelID, _ := a.search.SelectedResult()
		a.openChannel(channelID)
	}})
}

func (a *App) setupCallbacks() {
	a.thread.SetOnSend(func(text string) {
		a.async(func(ctx context.Context) error {
			return a.vm.Send(ctx, text)
		}, nil)
	})

	a.search.SetOnQuery(func(query string) {
		var results []rpc.SearchResult
		a.async(func(ctx context.Context) error {
			var err error
			results, err = a.vm.Search(ctx, query)
			return err
		}, func() {
			a.search.Update(results)
			if len(results) == 0 {
				a.flash.Info(fmt.Sprintf("No messages match %q", query))
				return
			}
			a.app.SetFocus(a.search.Results())
		})
	})

	a.prompt.SetOnSubmit(func(mode ui.PromptMode, text string) {
		a.hidePrompt()
		switch mode {
		case ui.PromptFilter:
			a.pages.PopTo(pageChannels)
			a.channels.SetFilter(text)
		case ui.PromptCommand:
			cmd, err := ParseCommand(text)
			if err != nil {
				a.flash.Err(err)
				return
			}
			a.runCommand(cmd)
		}
	})
	a.prompt.SetOnCancel(a.hidePrompt)
}

func (a *App) setupLayout() {
	a.layout = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.header, headerHeight, 0, false).
		AddItem(a.prompt, 0, 0, false).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.crumbs, 1, 0, false).
		AddItem(a.flashBar, 1, 0, false)
	a.app.SetRoot(a.layout, true)

	a.app.SetInputCapture(func(ev *tcell.EventKey) *tcell.EventKey {
		current := a.pages.Current()
		focused := a.app.GetFocus()

		if _, ok := focused.(*tview.InputField); ok {
			if ev.Key() == tcell.KeyEscape && focused == a.thread.Composer() {
				a.app.SetFocus(a.thread.Messages())
				return nil
			}
			return ev
		}

		if ev.Key() == tcell.KeyEscape {
			a.back()
			return nil
		}

		if current == pageChannels && ev.Key() == tcell.KeyRune && ev.Rune() >= '1' && ev.Rune() <= '9' {
			a.openChannel(a.channels.ChannelByIndex(int(ev.Rune() - '0')))
			return nil
		}

		if a.registry.HandleEvent(current, ev) {
			return nil
		}
		return ev
	})
}

func (a *App) back() {
	switch {
	case a.pages.Current() == pageChannels && a.channels.Filter() != "":
		a.channels.ClearFilter()
	case a.pages.Current() == pageSearch && a.app.GetFocus() == a.search.Results():
		a.app.SetFocus(a.search.Input())
	default:
		a.pages.Pop()
	}
}

func (a *App) showPrompt(mode ui.PromptMode) {
	a.prompt.Activate(mode)
	a.layout.ResizeItem(a.prompt, promptHeight, 0)
	a.app.SetFocus(a.prompt)
}

func (a *App) hidePrompt() {
	a.layout.ResizeItem(a.prompt, 0, 0)
	a.app.SetFocus(a.comps[a.pages.Current()].FocusTarget())
}

func (a *App) runCommand(cmd Command) {
	switch cmd.Name {
	case "quit":
		a.Stop()
	case "help":
		a.pages.Push(pageHelp)
	case "channel":
		id := findChannel(a.vm.Channels(), cmd.Args)
		if id == "" {
			a.flash.Errf("No channel matches %q", cmd.Args)
			return
		}
		a.openChannel(id)
	case "dm":
		a.directByName(cmd.Args)
	case "search":
		a.pages.Push(pageSearch)
		if cmd.Args != "" {
			a.search.Submit(cmd.Args)
		}
	case "read":
		a.async(a.vm.MarkRead, func() { a.flash.Info("Marked read") })
	case "poll":
		a.pollNow()
	case "polling":
		enabled := cmd.Args == "on"
		a.async(func(ctx context.Context) error {
			return a.vm.SetPolling(ctx, enabled)
		}, func() { a.flash.Info("Polling " + cmd.Args) })
	case "refresh":
		a.async(func(ctx context.Context) error {
			return a.vm.LoadChannels(ctx, true)
		}, func() { a.flash.Info("Channels refreshed") })
	case "members":
		a.showMembers()
	case "older":
		a.loadOlder()
	case "retry":
		a.retryFailed()
	}
}

// findChannel resolves a channel by id, then by exact name or slug, then by
// name prefix. A leading '#' is ignored.
func findChannel(channels []rpc.Channel, query string) string {
	q := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(query), "#"))
	if q == "" {
		return ""
	}
	for _, c := range channels {
		if c.ID == query {
			return c.ID
		}
	}
	for _, c := range channels {
		if strings.ToLower(c.Name) == q || strings.ToLower(c.Slug) == q {
			return c.ID
		}
	}
	for _, c := range channels {
		if strings.HasPrefix(strings.ToLower(c.Name), q) {
			return c.ID
		}
	}
	return ""
}

func (a *App) openChannel(id string) {
	if id == "" {
		return
	}
	var warning string
	a.async(func(ctx context.Context) error {
		var err error
		warning, err = a.vm.Open(ctx, id)
		return err
	}, func() {
		name := id
		if c, ok := a.vm.Channel(id); ok {
			name = c.Name
		}
		a.thread.SetChannel(id, name)
		a.thread.SetWarning(warning)
		a.thread.Update(a.vm.Messages())
		a.pages.PopTo(pageChannels)
		a.pages.Push(pageThread)
		if warning != "" {
			a.flash.Warn("Offline: " + warning)
		}
	})
}

func (a *App) showDetails() {
	c, ok := a.vm.Channel(a.thread.ChannelID())
	if !ok {
		return
	}
	a.details.Update(c, a.vm.Members())
	a.pages.Push(pageDetails)
}

func (a *App) showMembers() {
	a.async(func(ctx context.Context) error {
		return a.vm.LoadMembers(ctx, false)
	}, func() {
		a.members.Update(a.vm.Members(), a.selfID())
		a.pages.Push(pageMembers)
	})
}

func (a *App) directByName(query string) {
	q := strings.ToLower(strings.TrimPrefix(query, "@"))
	a.async(func(ctx context.Context) error {
		return a.vm.LoadMembers(ctx, false)
	}, func() {
		for _, m := range a.vm.Members() {
			if m.ID == query || strings.ToLower(m.Name) == q || strings.ToLower(m.Email) == q {
				a.startDirect(m.ID)
				return
			}
		}
		a.flash.Errf("No member matches %q", query)
	})
}

func (a *App) startDirect(memberID string) {
	if memberID == "" {
		return
	}
	var ch rpc.Channel
	a.async(func(ctx context.Context) error {
		var err error
		ch, err = a.vm.StartDirect(ctx, memberID)
		return err
	}, func() {
		a.thread.SetChannel(ch.ID, ch.Name)
		a.thread.SetWarning("")
		a.thread.Update(a.vm.Messages())
		a.channels.Update(a.vm.Channels(), a.vm.ActiveChannelID())
		a.pages.PopTo(pageChannels)
		a.pages.Push(pageThread)
	})
}

func (a *App) retryFailed() {
	var retried bool
	a.async(func(ctx context.Context) error {
		var err error
		retried, err = a.vm.RetryLastFailed(ctx)
		return err
	}, func() {
		if !retried {
			a.flash.Info("Nothing to retry")
			return
		}
		a.flash.Info("Retrying…")
	})
}

func (a *App) loadOlder() {
	var n int
	a.async(func(ctx context.Context) error {
		var err error
		n, err = a.vm.LoadOlder(ctx)
		return err
	}, func() {
		if n == 0 {
			a.flash.Info("No older messages")
			return
		}
		a.thread.Update(a.vm.Messages())
		a.thread.Messages().ScrollToBeginning()
	})
}

func (a *App) pollNow() {
	a.async(a.vm.PollNow, func() { a.flash.Info("Polled") })
}

// async runs call off the draw loop; then runs on the draw loop after success.
// Failures go to the flash bar.
func (a *App) async(call func(ctx context.Context) error, then func()) {
	go func() {
		ctx, cancel := context.WithTimeout(a.ctx, callTimeout)
		defer cancel()
		if err := call(ctx); err != nil {
			if !errors.Is(err, context.Canceled) {
				a.flash.Err(err)
			}
			return
		}
		if then != nil {
			a.app.QueueUpdateDraw(then)
		}
	}()
}

func (a *App) selfID() string {
	if st := a.vm.Status(); st != nil {
		return st.MemberID
	}
	return ""
}

func (a *App) renderStatus() {
	st := a.vm.Status()
	if st == nil {
		return
	}
	a.thread.SetSelf(st.MemberID)
	member := st.MemberName
	if member == "" {
		member = st.MemberID
	}
	a.header.SetSession(&ui.SessionData{
		Session:  a.session,
		Member:   member,
		Status:   st.Status,
		Polling:  st.Polling,
		Channels: st.ChannelCount,
		Messages: st.MessageCount,
		Unread:   st.UnreadTotal,
		Pending:  st.PendingOps,
		Uptime:   time.Duration(st.UptimeMs) * time.Millisecond,
	})
}

func (a *App) render(c model.Change) {
	if c.Status {
		a.renderStatus()
	}
	if c.Channels {
		a.channels.Update(a.vm.Channels(), a.vm.ActiveChannelID())
	}
	if c.Messages && a.thread.ChannelID() == a.vm.ActiveChannelID() {
		a.thread.SetWarning(a.vm.ChannelError())
		a.thread.Update(a.vm.Messages())
	}
}

func (a *App) pump() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-a.ctx.Done():
			return
		case c := <-a.vm.Changes():
			a.app.QueueUpdateDraw(func() { a.render(c) })
		case <-a.flash.Watch():
			a.app.QueueUpdateDraw(func() { a.flashBar.Update(a.flash.Current()) })
		case <-ticker.C:
			a.app.QueueUpdateDraw(func() { a.flashBar.Update(a.flash.Current()) })
		}
	}
}

func (a *App) load() {
	ctx, cancel := context.WithTimeout(a.ctx, callTimeout)
	defer cancel()
	if err := a.vm.LoadStatus(ctx); err != nil {
		a.flash.Err(fmt.Errorf("daemon status: %w", err))
	}
	if err := a.vm.LoadChannels(ctx, false); err != nil {
		a.flash.Err(fmt.Errorf("channels: %w", err))
	}
	if err := a.vm.LoadMembers(ctx, false); err != nil {
		a.flash.Warn("Members unavailable: " + err.Error())
	}
}

// Run starts the TUI and blocks until it exits.
func (a *App) Run() error {
	a.renderStatus()
	a.header.SetSession(&ui.SessionData{Session: a.session, Status: "CONNECTING"})
	a.pages.Reset(pageChannels)

	go a.pump()
	go a.load()
	go a.vm.Watch(a.ctx, watchRetryDelay, func(err error) {
		a.flash.Warn("Lost event stream: " + err.Error())
	})

	defer a.cancel()
	return a.app.Run()
}

// Stop shuts the TUI down.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}
