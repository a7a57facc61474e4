// Package tui renders the chat in a terminal. It reads controller state
// through subscriptions and forwards key presses back as controller actions.
package tui

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"chattour/internal/conversation"
	"chattour/internal/reactive"
	"chattour/internal/session"
)

// Session is what the screen needs from the session controller.
type Session interface {
	CurrentPhase() session.State
	OnPhaseChanged(fn func(session.State)) (cancel func())
	Login() *reactive.Task
	Logout() *reactive.Task
}

// Conversation is what the screen needs from a conversation controller.
type Conversation interface {
	CurrentMessages() []conversation.Message
	OnMessagesChanged(fn func([]conversation.Message)) (cancel func())
	OnDraftChanged(fn func(string)) (cancel func())
	OnSendingChanged(fn func(bool)) (cancel func())
	SetDraft(text string)
	Submit() *reactive.Task
	Close()
}

type Options struct {
	// Session drives the login flow. Nil runs without login as Author.
	Session Session
	// Credentials receives the username and password typed on the login form.
	Credentials func(username, password string)
	// NewConversation opens the conversation for an identity label.
	NewConversation func(author string) Conversation
	Author          string
	Username        string
	Logger          zerolog.Logger
}

type (
	phaseMsg    struct{ state session.State }
	messagesMsg struct {
		conv Conversation
		msgs []conversation.Message
	}
	draftMsg struct {
		conv Conversation
		text string
	}
	sendingMsg struct {
		conv    Conversation
		sending bool
	}
	submitDoneMsg struct {
		body string
		err  error
	}
	loginDoneMsg  struct{ err error }
	logoutDoneMsg struct{ err error }
)

const (
	fieldUsername = iota
	fieldPassword
)

// Model is the root bubbletea model.
type Model struct {
	opts Options
	log  zerolog.Logger
	bus  *bus

	state session.State
	conv  Conversation
	subs  *watcher

	messages  []conversation.Message
	sending   bool
	submitted string
	loggingIn bool
	notSent   bool

	spinner  spinner.Model
	username textinput.Model
	password textinput.Model
	field    int
	viewport viewport.Model
	input    textinput.Model

	width  int
	height int
}

func New(opts Options) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = spinStyle

	user := textinput.New()
	user.Placeholder = "username"
	user.Prompt = "User: "
	user.SetValue(opts.Username)
	user.Focus()

	pass := textinput.New()
	pass.Placeholder = "password"
	pass.Prompt = "Pass: "
	pass.EchoMode = textinput.EchoPassword
	pass.EchoCharacter = '•'

	in := textinput.New()
	in.Placeholder = "Type a message"
	in.Prompt = "> "
	in.CharLimit = 0
	in.Width = 60
	in.Focus()

	logger := opts.Logger
	m := Model{
		opts:     opts,
		log:      logger.With().Str("component", "tui").Logger(),
		bus:      newBus(),
		spinner:  s,
		username: user,
		password: pass,
		viewport: viewport.New(80, 20),
		input:    in,
		width:    80,
		height:   24,
	}

	if opts.Session != nil {
		m.state = opts.Session.CurrentPhase()
	} else {
		m.state = session.State{Phase: session.Authenticated, Identity: session.Identity{Name: opts.Author}}
	}
	if id, ok := m.state.AuthenticatedAs(); ok {
		m.openConversation(id.Name)
	}
	return m
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.bus.listen(), m.spinner.Tick, textinput.Blink}
	if m.opts.Session != nil {
		cmds = append(cmds, m.watchSession())
	}
	if m.conv != nil {
		cmds = append(cmds, m.watchConversation())
	}
	return tea.Batch(cmds...)
}

// Close releases subscriptions and the open conversation. Call it once the
// program has exited.
func (m Model) Close() {
	m.bus.close()
	if m.subs != nil {
		m.subs.stop()
	}
	if m.conv != nil {
		m.conv.Close()
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resize()
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		switch m.state.Phase {
		case session.Authenticated:
			return m.updateChat(msg)
		case session.Unauthenticated:
			return m.updateLogin(msg)
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case phaseMsg:
		cmd := m.applyPhase(msg.state)
		return m, tea.Batch(cmd, m.bus.listen())

	case messagesMsg:
		if msg.conv == m.conv {
			m.messages = msg.msgs
			m.viewport.SetContent(renderMessages(m.messages, m.viewport.Width))
			m.viewport.GotoBottom()
		}
		return m, m.bus.listen()

	case draftMsg:
		// The controller only ever clears the draft itself; other changes
		// originate from this input.
		if msg.conv == m.conv && msg.text == "" && m.submitted != "" && m.input.Value() == m.submitted {
			m.input.Reset()
			m.submitted = ""
		}
		return m, m.bus.listen()

	case sendingMsg:
		if msg.conv == m.conv {
			m.sending = msg.sending
		}
		return m, m.bus.listen()

	case submitDoneMsg:
		// The draft is kept on failure; only flag it.
		m.notSent = msg.err != nil
		if msg.err != nil {
			m.log.Warn().Err(msg.err).Msg("send failed")
		}
		return m, nil

	case loginDoneMsg:
		// Failures show up as the next phase, never as text.
		m.loggingIn = false
		if msg.err != nil {
			m.log.Debug().Err(msg.err).Msg("login failed")
		}
		return m, nil

	case logoutDoneMsg:
		if msg.err != nil {
			m.log.Debug().Err(msg.err).Msg("logout failed")
		}
		return m, nil
	}
	return m, nil
}

func (m Model) updateLogin(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "tab", "shift+tab", "up", "down":
		m.field = (m.field + 1) % 2
		if m.field == fieldUsername {
			m.password.Blur()
			return m, m.username.Focus()
		}
		m.username.Blur()
		return m, m.password.Focus()

	case "enter":
		if m.loggingIn {
			return m, nil
		}
		username := strings.TrimSpace(m.username.Value())
		if username == "" || m.password.Value() == "" {
			m.field = fieldUsername
			if username != "" {
				m.field = fieldPassword
				m.username.Blur()
				return m, m.password.Focus()
			}
			return m, nil
		}
		if m.opts.Credentials != nil {
			m.opts.Credentials(username, m.password.Value())
		}
		m.loggingIn = true
		return m, m.login()
	}

	var cmd tea.Cmd
	if m.field == fieldUsername {
		m.username, cmd = m.username.Update(msg)
	} else {
		m.password, cmd = m.password.Update(msg)
	}
	return m, cmd
}

func (m Model) updateChat(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+o":
		if m.opts.Session == nil {
			return m, nil
		}
		return m, m.logout()

	case "enter":
		if m.conv == nil {
			return m, nil
		}
		body := m.input.Value()
		if strings.TrimSpace(body) == "" {
			return m, nil
		}
		m.submitted = body
		m.notSent = false
		return m, m.submit(m.conv, body)

	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if after := m.input.Value(); after != before && m.conv != nil {
		m.conv.SetDraft(after)
	}
	return m, cmd
}

// applyPhase switches screens and opens or closes the conversation to match
// the session.
func (m *Model) applyPhase(s session.State) tea.Cmd {
	m.state = s
	id, ok := s.AuthenticatedAs()
	if !ok {
		m.closeConversation()
		if s.Phase == session.Unauthenticated {
			m.password.Reset()
		}
		return nil
	}
	if m.conv != nil && m.opts.Author == id.Name {
		return nil
	}
	m.closeConversation()
	m.openConversation(id.Name)
	m.password.Reset()
	return m.watchConversation()
}

func (m *Model) openConversation(author string) {
	if m.opts.NewConversation == nil {
		return
	}
	m.opts.Author = author
	m.conv = m.opts.NewConversation(author)
	m.subs = &watcher{}
	m.messages = m.conv.CurrentMessages()
	m.viewport.SetContent(renderMessages(m.messages, m.viewport.Width))
	m.viewport.GotoBottom()
	m.input.Reset()
	m.submitted = ""
	m.sending = false
}

func (m *Model) closeConversation() {
	if m.conv == nil {
		return
	}
	m.subs.stop()
	conv := m.conv
	go conv.Close()
	m.conv = nil
	m.subs = nil
	m.messages = nil
}

func (m *Model) resize() {
	m.input.Width = max(m.width-4, 10)
	m.viewport.Width = m.width
	// header (2 lines) + input + status
	m.viewport.Height = max(m.height-4, 3)
	m.viewport.SetContent(renderMessages(m.messages, m.viewport.Width))
	m.viewport.GotoBottom()
}

// watchSession subscribes to the session from a command goroutine, so the
// replay of the current state never runs inside Update.
func (m Model) watchSession() tea.Cmd {
	s, b := m.opts.Session, m.bus
	return func() tea.Msg {
		// Lives for the whole program, dropped in Close via bus.done.
		cancel := s.OnPhaseChanged(func(st session.State) { b.emit(phaseMsg{state: st}) })
		go func() {
			<-b.done
			cancel()
		}()
		return nil
	}
}

func (m Model) watchConversation() tea.Cmd {
	conv, b, w := m.conv, m.bus, m.subs
	return func() tea.Msg {
		w.add(conv.OnMessagesChanged(func(msgs []conversation.Message) {
			b.emit(messagesMsg{conv: conv, msgs: msgs})
		}))
		w.add(conv.OnDraftChanged(func(text string) {
			b.emit(draftMsg{conv: conv, text: text})
		}))
		w.add(conv.OnSendingChanged(func(sending bool) {
			b.emit(sendingMsg{conv: conv, sending: sending})
		}))
		return nil
	}
}

func (m Model) submit(conv Conversation, body string) tea.Cmd {
	return func() tea.Msg {
		err := conv.Submit().Wait(context.Background())
		return submitDoneMsg{body: body, err: err}
	}
}

func (m Model) login() tea.Cmd {
	s := m.opts.Session
	return func() tea.Msg {
		return loginDoneMsg{err: s.Login().Wait(context.Background())}
	}
}

func (m Model) logout() tea.Cmd {
	s := m.opts.Session
	return func() tea.Msg {
		return logoutDoneMsg{err: s.Logout().Wait(context.Background())}
	}
}
