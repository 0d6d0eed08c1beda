package chatview

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"engineerhub/internal/api"
	"engineerhub/internal/chat"
	"engineerhub/internal/paging"
)

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "connecting…"
	}
	s := m.deps.Styles

	var footer []string
	switch {
	case m.err != nil:
		footer = append(footer, s.Error.Render(m.err.Error()))
	case len(m.room.Typing) > 0:
		footer = append(footer, s.Muted.Render(typingLine(m.room.Typing)))
	default:
		footer = append(footer, "")
	}
	footer = append(footer, m.input.View())

	return lipgloss.JoinVertical(lipgloss.Left,
		s.Header.Width(m.width).Render(m.header()),
		m.viewport.View(),
		strings.Join(footer, "\n"),
		s.Footer.Render("enter send · ↑/↓ scroll · esc quit"),
	)
}

func (m Model) header() string {
	s := m.deps.Styles
	title := fmt.Sprintf("Conversation %d", m.deps.Room.Conversation())
	if c, ok := m.conversation(); ok {
		title = conversationTitle(c, m.deps.Room)
	}

	status := m.conn.String()
	if m.deps.Channel != nil {
		if n := m.deps.Channel.ReconnectCount(); n > 0 {
			status = fmt.Sprintf("%s (%d reconnects)", status, n)
		}
	}
	statusStyle := s.Muted
	switch m.conn {
	case chat.Connected:
		statusStyle = s.Tag
	case chat.Reconnecting:
		statusStyle = s.Warning
	case chat.Errored:
		statusStyle = s.Error
	}

	parts := []string{s.Title.Render(title), statusStyle.Render(status)}
	if len(m.room.Online) > 0 {
		parts = append(parts, s.Muted.Render("online: "+strings.Join(m.room.Online, ", ")))
	}
	return strings.Join(parts, "  ")
}

func (m Model) conversation() (api.Conversation, bool) {
	if m.deps.Conversations == nil {
		return api.Conversation{}, false
	}
	st := m.deps.Conversations.State()
	if !st.HasData {
		return api.Conversation{}, false
	}
	for _, c := range st.Data.Results {
		if c.ID == m.deps.Room.Conversation() {
			return c, true
		}
	}
	return api.Conversation{}, false
}

func conversationTitle(c api.Conversation, room *chat.Room) string {
	names := make([]string, 0, len(c.Participants))
	for _, u := range c.Participants {
		if u.Username == room.Self() {
			continue
		}
		names = append(names, u.DisplayName())
	}
	if len(names) == 0 {
		return fmt.Sprintf("Conversation %d", c.ID)
	}
	return strings.Join(names, ", ")
}

func (m Model) renderMessages() string {
	s := m.deps.Styles
	var b strings.Builder

	switch {
	case m.history.IsLoading:
		b.WriteString(s.Muted.Render("loading earlier messages…"))
	case m.history.Err != nil:
		b.WriteString(s.Error.Render("history unavailable: " + m.history.Err.Error()))
	case m.history.Status == paging.Loaded && !m.history.HasNext:
		b.WriteString(s.Muted.Render("beginning of conversation"))
	default:
		b.WriteString(s.Muted.Render("↑ scroll for earlier messages"))
	}

	self := m.deps.Room.Self()
	for _, msg := range m.room.Messages {
		b.WriteString("\n")
		b.WriteString(s.Muted.Render(msg.CreatedAt.Local().Format("15:04")))
		b.WriteString(" ")
		if msg.Sender == self {
			b.WriteString(s.OwnSender.Render(msg.Sender))
		} else {
			b.WriteString(s.OtherSender.Render(msg.Sender))
		}
		b.WriteString(": ")

		switch {
		case msg.ID == 0:
			b.WriteString(s.Pending.Render(msg.Content + " (sending)"))
		case msg.Sender == self && msg.IsRead:
			b.WriteString(s.Body.Render(msg.Content) + s.Muted.Render(" ✓✓"))
		default:
			b.WriteString(s.Body.Render(msg.Content))
		}
	}
	return b.String()
}

func typingLine(names []string) string {
	switch len(names) {
	case 1:
		return names[0] + " is typing…"
	case 2:
		return names[0] + " and " + names[1] + " are typing…"
	default:
		return fmt.Sprintf("%d people are typing…", len(names))
	}
}
