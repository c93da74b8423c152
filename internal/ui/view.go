package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"ZyroChat/internal/persona"
	"ZyroChat/internal/session"
)

// View implements tea.Model
func (m Model) View() string {
	var b strings.Builder

	header := lipgloss.JoinVertical(lipgloss.Center,
		titleStyle.Render(persona.Name),
		taglineStyle.Render(persona.Tagline),
	)
	b.WriteString(headerStyle.Width(m.width).Render(header))
	b.WriteString("\n")

	b.WriteString(m.viewport.View())
	b.WriteString("\n")

	if status := m.renderStatus(); status != "" {
		b.WriteString(status)
		b.WriteString("\n")
	}

	style := inputStyle
	if !m.inputEnabled() {
		style = disabledInputStyle
	}
	b.WriteString(style.Width(max(10, m.width-2)).Render(m.input.View()))
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("enter send • pgup/pgdown scroll • esc quit"))

	return b.String()
}

// renderStatus shows the thinking indicator or the error banner
func (m Model) renderStatus() string {
	if m.bot.Loading() {
		return m.spinner.View() + thinkingStyle.Render("Zyro is thinking")
	}
	if e := m.bot.Err(); e != "" {
		return errorStyle.Width(max(10, m.width-2)).Render(e)
	}
	return ""
}

func (m Model) statusHeight() int {
	status := m.renderStatus()
	if status == "" {
		return 0
	}
	return lipgloss.Height(status)
}

func (m Model) renderMessages() string {
	msgs := m.bot.Messages()
	parts := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		parts = append(parts, m.renderMessage(msg))
	}
	return strings.Join(parts, "\n\n")
}

func (m Model) renderMessage(msg session.Message) string {
	if msg.Role == session.RoleUser {
		width := min(lipgloss.Width(msg.Content)+2, max(20, m.width*3/4))
		bubble := userBubbleStyle.Width(width).Render(msg.Content)
		block := lipgloss.JoinVertical(lipgloss.Right, userLabelStyle.Render("You"), bubble)
		return lipgloss.PlaceHorizontal(m.width, lipgloss.Right, block)
	}

	label := assistantLabelStyle.Render("Zyro")
	if msg.Content == "" {
		return label
	}
	return label + "\n" + m.renderMarkdown(msg.Content)
}

// renderMarkdown falls back to the raw text when glamour is unavailable
func (m Model) renderMarkdown(content string) string {
	if m.renderer == nil {
		return content
	}
	rendered, err := m.renderer.Render(content)
	if err != nil {
		return content
	}
	return strings.Trim(rendered, "\n")
}
