package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/eldtechnologies/roomchat/internal/session"
	"github.com/eldtechnologies/roomchat/internal/transport"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	metaStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	promptStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	pendingStyle = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("7"))
	selfStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	otherStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
)

func authorStyle(self bool) lipgloss.Style {
	if self {
		return selfStyle
	}
	return otherStyle
}

func statusStyle(level session.Level) lipgloss.Style {
	switch level {
	case session.LevelError:
		return errorStyle
	case session.LevelWarn:
		return warnStyle
	}
	return metaStyle
}

func connectionStyle(state transport.State) lipgloss.Style {
	switch state {
	case transport.StateOpen:
		return promptStyle
	case transport.StateError:
		return errorStyle
	}
	return metaStyle
}
