package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mbeoliero/nexo-chat/internal/entity"
	"github.com/mbeoliero/nexo-chat/internal/service"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			Padding(0, 1)

	nameStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	ownStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("42"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	idStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Italic(true)

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("42"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	errStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	onlineStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)
)

// renderConversation formats one line of the conversation list
func renderConversation(c *entity.Conversation, presence *service.PresenceService, now time.Time) string {
	var flags []string
	if c.IsPinned {
		flags = append(flags, "pinned")
	}
	if c.IsMuted(now) {
		flags = append(flags, "muted")
	}
	if c.IsArchived {
		flags = append(flags, "archived")
	}

	marker := " "
	if c.IsUnread {
		marker = warnStyle.Render("●")
	}

	line := fmt.Sprintf("%s %s", marker, nameStyle.Render(c.Name))
	if !c.IsGroup && c.OtherUserId != "" && presence != nil && presence.IsUserOnline(c.OtherUserId) {
		line += " " + onlineStyle.Render("online")
	}
	if len(flags) > 0 {
		line += " " + dimStyle.Render("["+strings.Join(flags, ", ")+"]")
	}
	line += "  " + idStyle.Render(c.Id)

	if c.LastMessage != "" {
		preview := c.LastMessage
		if len(preview) > 60 {
			preview = preview[:57] + "..."
		}
		line += "\n    " + preview
	}
	if c.LastMessageTimestamp > 0 {
		line += "  " + dimStyle.Render(time.UnixMilli(c.LastMessageTimestamp).Local().Format("Jan 2 15:04"))
	}
	return line
}

// renderMessage formats one transcript line
func renderMessage(m *entity.Message) string {
	sender := nameStyle.Render(m.Sender)
	if m.IsOwn {
		sender = ownStyle.Render(m.Sender)
	}

	body := m.Content
	if m.FileUrl != "" {
		body = strings.TrimSpace(body + " " + idStyle.Render("<"+m.Type+": "+m.FileUrl+">"))
	}

	state := ""
	switch {
	case m.Failed:
		state = " " + errStyle.Render("(failed, /retry "+m.ClientId+")")
	case m.Pending:
		state = " " + dimStyle.Render("(sending)")
	}
	return fmt.Sprintf("%s %s: %s%s", dimStyle.Render(m.Timestamp), sender, body, state)
}
