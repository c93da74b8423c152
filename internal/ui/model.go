// Package ui is the full-screen terminal chat built on Bubble Tea.
package ui

import (
	"context"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"ZyroChat/internal/chatbot"
	"ZyroChat/internal/persona"
)

const (
	defaultWidth  = 80
	defaultHeight = 24

	// header (2 lines + border) and footer (input box + help line)
	headerHeight = 3
	footerHeight = 4
)

// Model is the Bubble Tea model wrapping a ChatBot
type Model struct {
	ctx      context.Context
	bot      *chatbot.ChatBot
	pump     *pump
	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model
	renderer *glamour.TermRenderer

	width  int
	height int
}

// New creates the UI for bot. ctx is handed to every stream the UI opens.
func New(ctx context.Context, bot *chatbot.ChatBot) Model {
	ti := textinput.New()
	ti.Placeholder = persona.Placeholder
	ti.CharLimit = 4000
	ti.Prompt = "> "

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = thinkingStyle

	m := Model{
		ctx:      ctx,
		bot:      bot,
		viewport: viewport.New(defaultWidth, defaultHeight-headerHeight-footerHeight-1),
		input:    ti,
		spinner:  sp,
	}
	m.resize(defaultWidth, defaultHeight)
	m.syncInput()
	return m
}

// Init implements tea.Model
func (m Model) Init() tea.Cmd {
	if !m.bot.HasSession() {
		return nil
	}
	return textinput.Blink
}

// Update implements tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case fragmentMsg:
		m.bot.OnChunk(msg.Fragment)
		m.refresh()
		if m.pump == nil {
			return m, nil
		}
		return m, m.pump.cmd()

	case streamErrMsg:
		m.bot.OnStreamError(msg.Err)
		m.finishStream()
		return m, textinput.Blink

	case streamDoneMsg:
		m.bot.OnStreamComplete()
		m.finishStream()
		return m, textinput.Blink

	case spinner.TickMsg:
		if !m.bot.Loading() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	if m.inputEnabled() {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		return m, tea.Quit

	case "enter":
		return m.submit()

	case "pgup", "pgdown", "ctrl+u", "ctrl+d":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	if !m.inputEnabled() {
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	stream, ok := m.bot.Submit(m.ctx, m.input.Value())
	if !ok {
		return m, nil
	}

	m.input.Reset()
	m.pump = newPump(stream)
	m.syncInput()
	m.refresh()
	return m, tea.Batch(m.pump.cmd(), m.spinner.Tick)
}

func (m *Model) finishStream() {
	m.pump = nil
	m.syncInput()
	m.refresh()
}

func (m Model) inputEnabled() bool {
	return m.bot.HasSession() && !m.bot.Loading()
}

// syncInput focuses the input only when a message could be sent
func (m *Model) syncInput() {
	if m.inputEnabled() {
		m.input.Focus()
		return
	}
	m.input.Blur()
}

func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height

	m.viewport.Width = width
	m.viewport.Height = max(1, height-headerHeight-footerHeight-m.statusHeight())
	m.input.Width = max(10, width-8)

	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(max(20, width-6)),
	)
	if err != nil {
		// messages fall back to plain text
		renderer = nil
	}
	m.renderer = renderer
	m.refresh()
}

// refresh re-renders the conversation and keeps the newest message in view
func (m *Model) refresh() {
	m.viewport.Height = max(1, m.height-headerHeight-footerHeight-m.statusHeight())
	m.viewport.SetContent(m.renderMessages())
	m.viewport.GotoBottom()
}
