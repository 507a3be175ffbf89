package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/ernie/hostlog/internal/domain"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("255")).
			Background(lipgloss.Color("24"))
	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255")).
			Background(lipgloss.Color("240"))
	dividerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	lineNoStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	faintStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	onlineStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	offlineStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

// eventColors tints live lines by category; anything missing is plain
var eventColors = map[string]lipgloss.Color{
	domain.EventKill:           "203",
	domain.EventSay:            "45",
	domain.EventSayTeam:        "45",
	domain.EventTell:           "45",
	domain.EventSayRcon:        "213",
	domain.EventFlagCapture:    "214",
	domain.EventFlagTaken:      "214",
	domain.EventFlagReturn:     "214",
	domain.EventFlagDrop:       "214",
	domain.EventObeliskDestroy: "214",
	domain.EventSkullScore:     "214",
	domain.EventMatchStart:     "82",
	domain.EventMatchEnd:       "82",
	domain.EventAward:          "220",
	domain.EventPlayerJoin:     "249",
	domain.EventPlayerLeave:    "249",
}

func eventStyle(eventType string) lipgloss.Style {
	if c, ok := eventColors[eventType]; ok {
		return lipgloss.NewStyle().Foreground(c)
	}
	return faintStyle
}
