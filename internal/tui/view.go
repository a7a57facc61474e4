package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"chattour/internal/conversation"
	"chattour/internal/session"
)

func (m Model) View() string {
	switch m.state.Phase {
	case session.Authenticated:
		return m.chatView()
	case session.Loading:
		return m.loadingView()
	default:
		return m.loginView()
	}
}

func (m Model) loadingView() string {
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center,
		m.spinner.View()+" Signing in…")
}

func (m Model) loginView() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("chattour"))
	b.WriteString("\n\n")
	b.WriteString(m.username.View())
	b.WriteString("\n")
	b.WriteString(m.password.View())
	b.WriteString("\n\n")
	if m.loggingIn {
		b.WriteString(m.spinner.View() + " Logging in…")
	} else {
		b.WriteString(buttonStyle.Render("[ Login ]"))
	}
	b.WriteString("\n\n" + hintStyle.Render("tab: switch field · enter: login · ctrl+c: quit"))

	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, formStyle.Render(b.String()))
}

func (m Model) chatView() string {
	var header string
	if m.opts.Session != nil {
		header = buttonStyle.Render("Logout " + m.opts.Author)
	} else {
		header = titleStyle.Render(m.opts.Author)
	}
	header = headerStyle.Width(m.width).Align(lipgloss.Right).Render(header)

	status := hintStyle.Render("enter: send · ctrl+c: quit")
	if m.opts.Session != nil {
		status = hintStyle.Render("enter: send · ctrl+o: logout · ctrl+c: quit")
	}
	if m.sending {
		status = m.spinner.View() + " sending…"
	}
	if m.notSent {
		status = errorStyle.Render("Message not sent. Press enter to retry.")
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		m.viewport.View(),
		m.input.View(),
		status,
	)
}

// renderMessages lays out each message as its body over a faint author line.
func renderMessages(msgs []conversation.Message, width int) string {
	if len(msgs) == 0 {
		return hintStyle.Render("No messages yet.")
	}
	style := bodyStyle
	if width > 0 {
		style = style.Width(width)
	}
	blocks := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		blocks = append(blocks, style.Render(msg.Body)+"\n"+authorStyle.Render(msg.Author))
	}
	return strings.Join(blocks, "\n\n")
}
