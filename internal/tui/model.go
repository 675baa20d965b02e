// Package tui renders one chat room in the terminal on top of a session.
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

	"github.com/eldtechnologies/roomchat/internal/session"
	"github.com/eldtechnologies/roomchat/internal/timeline"
)

const submitTimeout = 30 * time.Second

// Room is the part of a session the view drives.
type Room interface {
	View() session.View
	Changes() <-chan struct{}
	Submit(ctx context.Context, body string) error
	Retry() bool
	Reconnect() bool
	Leave()
	User() string
}

type changedMsg struct{}

type submittedMsg struct {
	err error
}

// Model is the bubbletea model for the chat screen.
type Model struct {
	room     Room
	name     string
	input    textinput.Model
	viewport viewport.Model
	snapshot session.View
	notice   string
	width    int
	height   int
	ready    bool
}

// New builds a model for room; name is shown in the header.
func New(room Room, name string) *Model {
	input := textinput.New()
	input.Placeholder = "Type a message"
	input.Prompt = "> "
	input.CharLimit = 4096
	input.PromptStyle = promptStyle
	input.Focus()

	return &Model{
		room:     room,
		name:     name,
		input:    input,
		viewport: viewport.New(0, 0),
		snapshot: room.View(),
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.waitForChange())
}

func (m *Model) waitForChange() tea.Cmd {
	changes := m.room.Changes()
	return func() tea.Msg {
		<-changes
		return changedMsg{}
	}
}

func (m *Model) submit(body string) tea.Cmd {
	room := m.room
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
		defer cancel()
		return submittedMsg{err: room.Submit(ctx, body)}
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resize()
		m.ready = true
		m.refresh()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.room.Leave()
			return m, tea.Quit
		case tea.KeyCtrlR:
			switch {
			case m.room.Retry():
				m.notice = "Reloading history..."
			case m.room.Reconnect():
				m.notice = "Reconnecting..."
			default:
				m.notice = ""
			}
			return m, nil
		case tea.KeyEnter:
			body := strings.TrimSpace(m.input.Value())
			if body == "" {
				return m, nil
			}
			m.input.Reset()
			m.notice = ""
			return m, m.submit(body)
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case changedMsg:
		m.snapshot = m.room.View()
		m.refresh()
		cmds = append(cmds, m.waitForChange())

	case submittedMsg:
		if msg.err != nil && !errors.Is(msg.err, session.ErrDurableWrite) {
			// Durable write failures already show in the session status.
			m.notice = msg.err.Error()
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m *Model) resize() {
	m.input.Width = max(m.width-4, 10)
	m.viewport.Width = m.width
	// header, status line, input
	m.viewport.Height = max(m.height-3, 1)
}

func (m *Model) refresh() {
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(renderMessages(m.snapshot.Messages, m.room.User(), m.width))
	if atBottom || !m.ready {
		m.viewport.GotoBottom()
	}
}

func (m *Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.header(),
		m.viewport.View(),
		m.statusLine(),
		m.input.View(),
	)
}

func (m *Model) header() string {
	conn := connectionStyle(m.snapshot.Connection).Render(m.snapshot.Connection.String())
	title := headerStyle.Render(fmt.Sprintf("#%s", m.name))
	user := metaStyle.Render("as " + m.room.User())
	return lipgloss.JoinHorizontal(lipgloss.Top, title, " ", user, " ", conn)
}

func (m *Model) statusLine() string {
	status := m.snapshot.Status
	switch {
	case status.Text != "":
		return statusStyle(status.Level).Render(status.Text)
	case m.notice != "":
		return metaStyle.Render(m.notice)
	case m.snapshot.State == timeline.StateEmpty:
		return metaStyle.Render("ctrl+r to reload")
	}
	return metaStyle.Render(fmt.Sprintf("%d messages", len(m.snapshot.Messages)))
}

// renderMessages formats the timeline, one line per message.
func renderMessages(msgs []timeline.Message, self string, width int) string {
	if len(msgs) == 0 {
		return metaStyle.Render("No messages yet.")
	}
	var b strings.Builder
	for i, msg := range msgs {
		if i > 0 {
			b.WriteByte('\n')
		}
		stamp := metaStyle.Render(msg.CreatedAt.Local().Format("15:04:05"))
		author := authorStyle(msg.Author == self).Render(msg.Author)
		body := msg.Body
		if msg.IsPlaceholder() {
			body = pendingStyle.Render(body)
		}
		line := fmt.Sprintf("%s %s: %s", stamp, author, body)
		if width > 0 {
			line = lipgloss.NewStyle().Width(width).Render(line)
		}
		b.WriteString(line)
	}
	return b.String()
}
