// Package chatview is the terminal chat view: a scrollable message list
// over a chat room, lazily extended with older history when the user
// scrolls to the top, and an input line that sends through the channel.
package chatview

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"engineerhub/cmd/hub/ui"
	"engineerhub/internal/api"
	"engineerhub/internal/chat"
	"engineerhub/internal/debounce"
	"engineerhub/internal/logging"
	"engineerhub/internal/paging"
	"engineerhub/internal/query"
	"engineerhub/internal/visibility"
)

const (
	// DefaultTypingIdle is how long after the last keystroke typing_stop is sent.
	DefaultTypingIdle = 2 * time.Second

	// prefetchLines starts loading older history before the top is reached.
	prefetchLines = 2

	headerHeight = 2
	footerHeight = 3
)

// Deps are the live objects the view renders and drives.
type Deps struct {
	Room    *chat.Room
	Channel *chat.Channel // nil renders as offline
	History *paging.Session[api.ChatMessage]

	// Optional
	Queries       *query.Client
	Conversations *query.Query[paging.Page[api.Conversation]]

	Styles     ui.Styles
	TypingIdle time.Duration
}

// changedMsg tells the model that one of its sources has new state.
type changedMsg struct{}

// Model is the bubbletea model of the chat view.
type Model struct {
	deps    Deps
	ctx     context.Context
	changes chan struct{}

	viewport viewport.Model
	input    textinput.Model
	layout   *scrollLayout
	sentinel *visibility.Observer
	typing   *debounce.Func[struct{}]

	ready  bool
	width  int
	height int

	room    chat.RoomState
	history paging.State[api.ChatMessage]
	conn    chat.ReadyState
	oldest  string // identity of the first rendered message
	lines   int
	err     error
}

// New creates the view. ctx bounds history fetches.
func New(ctx context.Context, deps Deps) Model {
	input := textinput.New()
	input.Placeholder = "Write a message"
	input.Prompt = deps.Styles.Prompt.Render("> ")
	input.CharLimit = 2000
	input.Focus()

	idle := deps.TypingIdle
	if idle <= 0 {
		idle = DefaultTypingIdle
	}
	room := deps.Room

	m := Model{
		deps:    deps,
		ctx:     ctx,
		changes: make(chan struct{}, 1),
		input:   input,
		layout:  &scrollLayout{},
		conn:    chat.Disconnected,
	}
	m.typing = debounce.NewFunc(idle, func(struct{}) {
		if err := room.SetTyping(false); err != nil {
			logging.Get(logging.CategoryUI).Debug("typing_stop not sent: %v", err)
		}
	})
	m.sentinel = visibility.New(m.layout, visibility.Options{
		RootMargin: visibility.Margin{Top: prefetchLines},
		Enabled:    true,
	}, paging.OnVisible(ctx, deps.History))
	m.refresh()
	return m
}

// Watch subscribes the view to its sources and returns the remover. Older
// history pages are merged into the room as they arrive.
func (m Model) Watch() func() {
	poke := func() {
		select {
		case m.changes <- struct{}{}:
		default:
		}
	}

	stops := []func(){
		m.deps.Room.Subscribe(func(chat.RoomState) { poke() }),
		m.deps.History.Subscribe(func(st paging.State[api.ChatMessage]) {
			if len(st.Items) > 0 {
				m.deps.Room.Prepend(st.Items)
			}
			poke()
		}),
	}
	if m.deps.Channel != nil {
		stops = append(stops, m.deps.Channel.WatchState(func(chat.ReadyState) { poke() }))
	}
	if m.deps.Conversations != nil {
		stops = append(stops, m.deps.Conversations.Subscribe(func(query.State[paging.Page[api.Conversation]]) { poke() }))
	}

	return func() {
		for _, stop := range stops {
			stop()
		}
	}
}

// Stop releases the view's timers and observer.
func (m Model) Stop() {
	m.typing.Stop()
	m.sentinel.Disconnect()
}

func waitForChange(ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		<-ch
		return changedMsg{}
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitForChange(m.changes))
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		vpHeight := max(msg.Height-headerHeight-footerHeight, 1)
		if !m.ready {
			m.viewport = viewport.New(msg.Width, vpHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = vpHeight
		}
		m.input.Width = max(msg.Width-4, 1)
		m.render(true)

	case changedMsg:
		m.refresh()
		m.render(false)
		cmds = append(cmds, waitForChange(m.changes))

	case tea.FocusMsg:
		if m.deps.Queries != nil {
			m.deps.Queries.Focus()
		}
		m.markRead()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit

		case tea.KeyEnter:
			m.send()
			return m, nil

		case tea.KeyUp, tea.KeyDown, tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			m.observe()
			return m, cmd
		}

		before := m.input.Value()
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		if m.input.Value() != before && m.input.Value() != "" {
			m.startTyping()
		}
		return m, cmd

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		m.observe()
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m *Model) refresh() {
	m.room = m.deps.Room.State()
	m.history = m.deps.History.State()
	if m.deps.Channel != nil {
		m.conn = m.deps.Channel.ReadyState()
	}
	if m.history.Status == paging.Loaded && !m.history.HasNext {
		m.sentinel.SetEnabled(false)
	}
}

func (m *Model) send() {
	text := m.input.Value()
	if strings.TrimSpace(text) == "" {
		return
	}
	if _, err := m.deps.Room.Send(text); err != nil {
		m.err = err
		return
	}
	m.err = nil
	m.typing.Cancel()
	m.input.Reset()
}

func (m *Model) startTyping() {
	if err := m.deps.Room.SetTyping(true); err != nil {
		logging.Get(logging.CategoryUI).Debug("typing_start not sent: %v", err)
		return
	}
	m.typing.Call(struct{}{})
}

func (m *Model) markRead() {
	if err := m.deps.Room.MarkRead(); err != nil {
		logging.Get(logging.CategoryUI).Debug("read receipt not sent: %v", err)
	}
}

// render rebuilds the message list. New messages at the bottom keep the
// view pinned when it was already at the bottom; older messages merged at
// the top keep the visible lines in place.
func (m *Model) render(resized bool) {
	if !m.ready {
		return
	}
	follow := resized || m.viewport.AtBottom()
	content := m.renderMessages()
	lines := strings.Count(content, "\n") + 1

	oldest := ""
	if len(m.room.Messages) > 0 {
		oldest = messageKey(m.room.Messages[0])
	}
	grewAtTop := oldest != m.oldest && m.oldest != "" && lines > m.lines
	offset := m.viewport.YOffset

	m.viewport.SetContent(content)
	switch {
	case grewAtTop:
		m.viewport.SetYOffset(offset + lines - m.lines)
	case follow:
		m.viewport.GotoBottom()
	}
	m.oldest, m.lines = oldest, lines
	m.observe()
}

// observe feeds the current scroll position to the history sentinel.
func (m *Model) observe() {
	if !m.ready {
		return
	}
	m.layout.set(m.viewport.Width, m.viewport.Height, m.viewport.YOffset)
	m.sentinel.Notify()
}

func messageKey(msg api.ChatMessage) string {
	if msg.ID != 0 {
		return fmt.Sprintf("id:%d", msg.ID)
	}
	return "client:" + msg.ClientID
}
