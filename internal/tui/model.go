// Package tui is the terminal chat screen: conversation sidebar with unread
// badges, message pane, typing indicator and composer.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ijarahub/ijara-messaging/internal/messaging"
	"github.com/ijarahub/ijara-messaging/internal/model"
	"github.com/ijarahub/ijara-messaging/internal/realtime"
)

// Client is the part of messaging.Client the screen drives.
type Client interface {
	Me() model.User
	Conversations() []model.Conversation
	ActiveConversationID() string
	Messages() []messaging.Entry
	TypingUsers() []string
	Unread(conversationID string) int
	ConnectionState() realtime.ConnState
	Composer() string
	SetComposer(text string)
	Submit(ctx context.Context) error
	OnLocalTyping(ctx context.Context)
	SelectConversation(ctx context.Context, id string) (model.Conversation, error)
	Events() <-chan messaging.Event
}

type pane int

const (
	paneSidebar pane = iota
	paneComposer
)

const sidebarWidth = 30

type eventMsg messaging.Event

type eventsClosedMsg struct{}

type opDoneMsg struct {
	op  string
	err error
}

// Model is the bubbletea model of the chat screen.
type Model struct {
	ctx    context.Context
	client Client

	cursor   int
	focus    pane
	input    textinput.Model
	viewport viewport.Model
	width    int
	height   int
	notice   string
}

// New builds the screen over a started client.
func New(ctx context.Context, client Client) Model {
	input := textinput.New()
	input.Placeholder = "Type a message..."
	input.CharLimit = 2000
	input.Width = 50

	return Model{
		ctx:      ctx,
		client:   client,
		input:    input,
		viewport: viewport.New(80, 20),
		focus:    paneSidebar,
	}
}

func waitForEvent(events <-chan messaging.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg(ev)
	}
}

func (m Model) selectCmd(id string) tea.Cmd {
	return func() tea.Msg {
		_, err := m.client.SelectConversation(m.ctx, id)
		return opDoneMsg{op: "open", err: err}
	}
}

func (m Model) typingCmd() tea.Cmd {
	return func() tea.Msg {
		m.client.OnLocalTyping(m.ctx)
		return nil
	}
}

func (m Model) submitCmd() tea.Cmd {
	return func() tea.Msg {
		return opDoneMsg{op: "send", err: m.client.Submit(m.ctx)}
	}
}

// Init starts listening for client events.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitForEvent(m.client.Events()))
}

// Update handles keys, window resizes and client events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "tab":
			m = m.toggleFocus()
			return m, nil
		}
		if m.focus == paneSidebar {
			return m.updateSidebar(msg)
		}
		return m.updateComposer(msg)

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.viewport.Width = max(msg.Width-sidebarWidth-8, 20)
		m.viewport.Height = max(msg.Height-9, 5)
		m.input.Width = m.viewport.Width - 4
		m.refreshViewport()

	case eventMsg:
		m = m.applyEvent(messaging.Event(msg))
		cmds = append(cmds, waitForEvent(m.client.Events()))

	case eventsClosedMsg:
		return m, tea.Quit

	case opDoneMsg:
		if msg.err != nil && !errors.Is(msg.err, messaging.ErrEmptyMessage) {
			m.notice = fmt.Sprintf("%s: %v", msg.op, msg.err)
		}
		if msg.op == "open" && msg.err == nil {
			m.focus = paneComposer
			m.input.Focus()
		}
		m.input.SetValue(m.client.Composer())
		m.refreshViewport()
	}

	return m, tea.Batch(cmds...)
}

func (m Model) toggleFocus() Model {
	if m.focus == paneSidebar && m.client.ActiveConversationID() != "" {
		m.focus = paneComposer
		m.input.Focus()
		return m
	}
	m.focus = paneSidebar
	m.input.Blur()
	return m
}

func (m Model) updateSidebar(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	convs := m.client.Conversations()
	switch msg.String() {
	case "q", "esc":
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(convs)-1 {
			m.cursor++
		}
	case "enter":
		if m.cursor < len(convs) {
			return m, m.selectCmd(convs[m.cursor].ID)
		}
	}
	return m, nil
}

func (m Model) updateComposer(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.focus = paneSidebar
		m.input.Blur()
		return m, nil
	case tea.KeyEnter:
		m.client.SetComposer(m.input.Value())
		return m, m.submitCmd()
	}

	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if after := m.input.Value(); after != before {
		m.client.SetComposer(after)
		cmd = tea.Batch(cmd, m.typingCmd())
	}
	return m, cmd
}

func (m Model) applyEvent(ev messaging.Event) Model {
	switch ev.Kind {
	case messaging.EventConversationsUpdated:
		if n := len(m.client.Conversations()); m.cursor >= n {
			m.cursor = max(n-1, 0)
		}
	case messaging.EventActiveChanged:
		for i, c := range m.client.Conversations() {
			if c.ID == ev.ConversationID {
				m.cursor = i
			}
		}
		m.notice = ""
	case messaging.EventSendFailed:
		m.input.SetValue(m.client.Composer())
		m.notice = "not sent: " + ev.Err.Error()
	case messaging.EventNotice:
		if ev.Err != nil {
			m.notice = ev.Err.Error()
		}
	}
	m.refreshViewport()
	return m
}

func (m *Model) refreshViewport() {
	m.viewport.SetContent(m.renderMessages())
	m.viewport.GotoBottom()
}

func (m Model) renderMessages() string {
	me := m.client.Me().ID
	var b strings.Builder
	for _, e := range m.client.Messages() {
		style := otherMessageStyle
		if e.Message.Sender.ID == me {
			style = ownMessageStyle
		}
		status := ""
		if e.Ref.Pending() {
			status = mutedStyle.Render(" (sending)")
		}
		fmt.Fprintf(&b, "%s %s: %s%s\n",
			mutedStyle.Render(formatRelativeTime(e.Message.CreatedAt, time.Now())),
			style.Render(e.Message.Sender.DisplayName()),
			e.Message.Content,
			status,
		)
	}
	return b.String()
}

// View renders the screen.
func (m Model) View() string {
	return lipgloss.JoinHorizontal(lipgloss.Top, m.sidebarView(), m.chatView())
}

func (m Model) sidebarView() string {
	me := m.client.Me().ID
	active := m.client.ActiveConversationID()

	var b strings.Builder
	b.WriteString(titleStyle.Render("Messages") + "\n\n")
	convs := m.client.Conversations()
	if len(convs) == 0 {
		b.WriteString(mutedStyle.Render("No conversations yet"))
	}
	for i, c := range convs {
		other, _ := c.Other(me)
		name := other.DisplayName()
		if c.ID == active {
			name = "● " + name
		}
		style := unselectedItemStyle
		if i == m.cursor && m.focus == paneSidebar {
			style = selectedItemStyle
		}
		line := style.Render(name)
		if n := m.client.Unread(c.ID); n > 0 {
			line += " " + badgeStyle.Render(fmt.Sprint(n))
		}
		b.WriteString(line + "\n")
		if c.LastMessage != nil {
			b.WriteString(mutedStyle.Render("  "+truncate(c.LastMessage.Content, sidebarWidth-6)) + "\n")
		}
	}

	style := sidebarStyle.Width(sidebarWidth)
	if m.focus == paneSidebar {
		style = style.BorderForeground(activeBorder)
	}
	return style.Render(b.String())
}

func (m Model) chatView() string {
	var header string
	if id := m.client.ActiveConversationID(); id != "" {
		for _, c := range m.client.Conversations() {
			if c.ID == id {
				other, _ := c.Other(m.client.Me().ID)
				header = other.DisplayName()
			}
		}
	} else {
		header = "Select a conversation"
	}
	header = headerStyle.Render(header + "  " + mutedStyle.Render(m.client.ConnectionState().String()))

	typing := ""
	if n := len(m.client.TypingUsers()); n > 0 {
		typing = mutedStyle.Render("typing...")
	}
	notice := ""
	if m.notice != "" {
		notice = errorStyle.Render(m.notice)
	}

	style := chatWindowStyle
	if m.focus == paneComposer {
		style = style.BorderForeground(activeBorder)
	}
	return style.Render(lipgloss.JoinVertical(lipgloss.Left,
		header,
		m.viewport.View(),
		typing,
		m.input.View(),
		notice,
	))
}

func formatRelativeTime(t, now time.Time) string {
	diff := now.Sub(t)
	switch {
	case diff < time.Minute:
		return "now"
	case diff < time.Hour:
		return fmt.Sprintf("%dm", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh", int(diff.Hours()))
	case diff < 48*time.Hour:
		return "Yesterday " + t.Format("15:04")
	default:
		return t.Format("Jan 2 15:04")
	}
}

func truncate(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	if width <= 1 {
		return string(r[:width])
	}
	return string(r[:width-1]) + "…"
}
