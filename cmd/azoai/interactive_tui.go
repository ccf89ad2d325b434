package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/ucalyptus/azure-oai-agent-sdk-go/internal/logging"
	"github.com/ucalyptus/azure-oai-agent-sdk-go/internal/session"
	"github.com/ucalyptus/azure-oai-agent-sdk-go/messages"
)

// tuiMessage is a rendered chat entry in the interactive UI.
type tuiMessage struct {
	// Role labels the message origin (user, assistant, system, tool).
	Role string
	// Content is the message text displayed in the chat viewport.
	Content string
}

// streamDeltaMsg carries streamed text chunks into the TUI event loop.
type streamDeltaMsg struct {
	// Text is the assistant delta text chunk.
	Text string
}

// toolCallMsg reports a tool-use block streamed by the model.
type toolCallMsg struct {
	// Name is the requested tool.
	Name string
	// Input is the display summary of the parsed tool input.
	Input string
}

// streamDoneMsg signals a completed streaming turn.
type streamDoneMsg struct{}

// streamErrorMsg reports an error that ended the streaming turn.
type streamErrorMsg struct {
	// Err is the underlying streaming error.
	Err error
}

// tuiModel drives the interactive terminal UI.
type tuiModel struct {
	// opts holds CLI options for persistence decisions.
	opts *options
	// bridge executes prompt turns.
	bridge *bridge
	// store persists conversation transcripts.
	store *session.Store
	// conversationID keys the transcript being written.
	conversationID string
	// model is the display label for the configured model.
	model string
	// chatMessages holds display-friendly message entries.
	chatMessages []tuiMessage
	// inputHistory stores prior user inputs for recall.
	inputHistory []string
	// historyIndex tracks the active position in inputHistory.
	historyIndex int
	// historyDraft preserves the in-progress input when browsing history.
	historyDraft string
	// chatView renders the conversation history.
	chatView viewport.Model
	// input collects user input for new turns.
	input textarea.Model
	// markdownRenderer formats completed assistant replies when available.
	markdownRenderer *glamour.TermRenderer
	// statusText is the bottom status line.
	statusText string
	// chatAutoScroll keeps the chat viewport pinned to the bottom.
	chatAutoScroll bool
	// width tracks the terminal width.
	width int
	// height tracks the terminal height.
	height int
	// chatFocused reports whether scrolling keys act on the chat pane.
	chatFocused bool
	// running indicates an in-flight request.
	running bool
	// streamBuffer accumulates streamed assistant text.
	streamBuffer strings.Builder
	// streamCh delivers stream messages into the update loop.
	streamCh chan tea.Msg
	// cancel cancels the current request when present.
	cancel context.CancelFunc
	// quitting indicates a user-requested exit.
	quitting bool
}

// runInteractiveTUI starts the full-screen terminal UI.
func runInteractiveTUI(opts *options, b *bridge, store *session.Store, conversationID string, replay []messages.Message) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) || !term.IsTerminal(int(os.Stdout.Fd())) {
		return errors.New("interactive UI requires a TTY")
	}
	modelState := newTUIModel(opts, b, store, conversationID, replay)
	program := tea.NewProgram(modelState, tea.WithAltScreen())
	_, err := program.Run()
	return err
}

// newTUIModel constructs the initial TUI model state.
func newTUIModel(opts *options, b *bridge, store *session.Store, conversationID string, replay []messages.Message) *tuiModel {
	input := textarea.New()
	input.Placeholder = "Type a message..."
	input.Focus()
	input.CharLimit = 0
	input.Prompt = "> "
	input.SetHeight(3)
	input.SetWidth(20)

	chatView := viewport.New(20, 10)

	var renderer *glamour.TermRenderer
	if glam, err := glamour.NewTermRenderer(glamour.WithAutoStyle()); err == nil {
		renderer = glam
	}

	modelState := &tuiModel{
		opts:             opts,
		bridge:           b,
		store:            store,
		conversationID:   conversationID,
		model:            b.displayModel(),
		chatView:         chatView,
		input:            input,
		markdownRenderer: renderer,
		statusText:       "Enter: send | Alt+Enter: newline | Ctrl+P/N: history | Tab: scroll chat | Ctrl+C: cancel/quit",
		chatAutoScroll:   true,
	}
	modelState.historyIndex = len(modelState.inputHistory)
	modelState.bootstrapHistory(replay)
	return modelState
}

// Init starts the blinking cursor for the input field.
func (m *tuiModel) Init() tea.Cmd {
	return textarea.Blink
}

// Update handles UI events and streaming updates.
func (m *tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		m.applyWindowSize(typed)
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(typed)
	case streamDeltaMsg:
		m.streamBuffer.WriteString(typed.Text)
		m.refreshChat()
		return m, m.listenStream()
	case toolCallMsg:
		m.appendToolCall(typed)
		return m, m.listenStream()
	case streamDoneMsg:
		m.finishTurn()
		return m, nil
	case streamErrorMsg:
		m.finishError(typed.Err)
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the full UI layout.
func (m *tuiModel) View() string {
	if m.quitting {
		return ""
	}
	if m.width == 0 {
		return "Initializing..."
	}
	header := m.renderHeader()
	body := m.renderPane("Conversation", m.chatView.View(), m.chatView.Width+2)
	input := m.renderInput()
	status := m.renderStatus()
	return lipgloss.JoinVertical(lipgloss.Left, header, body, input, status)
}

// handleKey routes keyboard input and command submission.
func (m *tuiModel) handleKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.String() {
	case "ctrl+c":
		if m.running {
			m.cancelTurn("Cancelled.")
			return m, nil
		}
		m.quitting = true
		return m, tea.Quit
	case "ctrl+q":
		m.quitting = true
		return m, tea.Quit
	case "tab":
		m.toggleFocus()
		return m, nil
	case "esc":
		m.focusInput()
		return m, nil
	case "pgup":
		m.scrollChat(-10)
		return m, nil
	case "pgdown":
		m.scrollChat(10)
		return m, nil
	case "home":
		if m.chatFocused {
			m.chatView.GotoTop()
			m.chatAutoScroll = false
			return m, nil
		}
	case "end":
		if m.chatFocused {
			m.chatView.GotoBottom()
			m.chatAutoScroll = true
			return m, nil
		}
	case "ctrl+p":
		if !m.chatFocused {
			m.cycleInputHistory(-1)
			return m, nil
		}
	case "ctrl+n":
		if !m.chatFocused {
			m.cycleInputHistory(1)
			return m, nil
		}
	}

	if key.Type == tea.KeyEnter {
		if key.Alt {
			m.input.InsertString("\n")
			return m, nil
		}
		return m.submitInput()
	}

	if m.chatFocused {
		switch key.String() {
		case "up":
			m.scrollChat(-1)
			return m, nil
		case "down":
			m.scrollChat(1)
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(key)
	return m, cmd
}

// submitInput sends the current input as a new user prompt.
func (m *tuiModel) submitInput() (tea.Model, tea.Cmd) {
	if m.running {
		m.statusText = "Wait for the current response or cancel with Ctrl+C."
		return m, nil
	}
	value := strings.TrimSpace(m.input.Value())
	if value == "" {
		return m, nil
	}
	m.input.SetValue("")
	m.statusText = ""
	m.appendInputHistory(value)

	if result, handled := parseSlashCommand(value); handled {
		switch {
		case result.Quit:
			m.quitting = true
			return m, tea.Quit
		case result.Clear:
			m.chatMessages = nil
			m.conversationID = messages.NewUUID()
			m.refreshChat()
			m.statusText = "Started a new conversation."
		default:
			m.appendMessage("system", result.Message)
			m.refreshChat()
		}
		return m, nil
	}

	m.appendMessage("user", value)
	m.refreshChat()

	m.running = true
	m.streamBuffer.Reset()
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.statusText = "Thinking..."
	m.streamCh = make(chan tea.Msg, 128)

	cmd := m.startStream(ctx, value)
	return m, tea.Batch(cmd, m.listenStream())
}

// appendInputHistory records an input line for history navigation.
func (m *tuiModel) appendInputHistory(value string) {
	if value == "" {
		return
	}
	m.inputHistory = append(m.inputHistory, value)
	if len(m.inputHistory) > 200 {
		m.inputHistory = m.inputHistory[len(m.inputHistory)-200:]
	}
	m.historyIndex = len(m.inputHistory)
	m.historyDraft = ""
}

// cycleInputHistory moves the input buffer through stored history entries.
func (m *tuiModel) cycleInputHistory(delta int) {
	if len(m.inputHistory) == 0 {
		return
	}
	if m.historyIndex == len(m.inputHistory) {
		m.historyDraft = m.input.Value()
	}
	next := m.historyIndex + delta
	if next < 0 {
		next = 0
	}
	if next > len(m.inputHistory) {
		next = len(m.inputHistory)
	}
	m.historyIndex = next
	if m.historyIndex == len(m.inputHistory) {
		m.input.SetValue(m.historyDraft)
		return
	}
	m.input.SetValue(m.inputHistory[m.historyIndex])
}

// startStream launches the turn and feeds updates into the stream channel.
func (m *tuiModel) startStream(ctx context.Context, prompt string) tea.Cmd {
	b := m.bridge
	store := m.store
	opts := m.opts
	conversationID := m.conversationID
	streamCh := m.streamCh

	return func() tea.Msg {
		err := b.runTurn(ctx, prompt, func(message messages.Message) error {
			persistMessage(store, opts, conversationID, message)
			assistant, ok := message.(*messages.Assistant)
			if !ok {
				return nil
			}
			for _, block := range assistant.Message.Content {
				var update tea.Msg
				switch block.Type {
				case messages.BlockText:
					if block.Text == "" {
						continue
					}
					update = streamDeltaMsg{Text: block.Text}
				case messages.BlockToolUse:
					update = toolCallMsg{Name: block.Name, Input: summarizeToolInput(block.Input, 160)}
				default:
					continue
				}
				select {
				case <-ctx.Done():
					return ctx.Err()
				case streamCh <- update:
				}
			}
			return nil
		})
		if err != nil {
			streamCh <- streamErrorMsg{Err: err}
			close(streamCh)
			return nil
		}
		saveLast(store, opts, conversationID)
		streamCh <- streamDoneMsg{}
		close(streamCh)
		return nil
	}
}

// listenStream waits for the next streaming message.
func (m *tuiModel) listenStream() tea.Cmd {
	if m.streamCh == nil {
		return nil
	}
	streamCh := m.streamCh
	return func() tea.Msg {
		msg, ok := <-streamCh
		if !ok {
			return nil
		}
		return msg
	}
}

// finishTurn promotes the streamed buffer into a completed chat entry.
func (m *tuiModel) finishTurn() {
	m.running = false
	m.statusText = ""
	m.cancel = nil
	if m.streamBuffer.Len() > 0 {
		m.appendMessage("assistant", m.streamBuffer.String())
	}
	m.streamBuffer.Reset()
	m.refreshChat()
}

// finishError handles errors from the streaming turn.
func (m *tuiModel) finishError(err error) {
	m.running = false
	m.statusText = formatInteractiveError(err)
	m.cancel = nil
	m.streamBuffer.Reset()
	m.refreshChat()
	logging.Debug("cli", "turn failed: %v", err)
}

// cancelTurn cancels an in-flight request and updates status.
func (m *tuiModel) cancelTurn(reason string) {
	if m.cancel != nil {
		m.cancel()
	}
	m.statusText = reason
}

// appendMessage adds a new chat message to the display list.
func (m *tuiModel) appendMessage(role string, content string) {
	m.chatMessages = append(m.chatMessages, tuiMessage{Role: role, Content: content})
}

// appendToolCall records a streamed tool request in the chat.
func (m *tuiModel) appendToolCall(call toolCallMsg) {
	content := fmt.Sprintf("requested %s", call.Name)
	if call.Input != "" {
		content = fmt.Sprintf("%s %s", content, call.Input)
	}
	m.appendMessage("tool", content)
	m.refreshChat()
}

// refreshChat rebuilds the chat viewport content.
func (m *tuiModel) refreshChat() {
	var builder strings.Builder
	for _, msg := range m.chatMessages {
		builder.WriteString(m.renderMessage(msg, false))
		builder.WriteString("\n\n")
	}
	if m.running {
		streamText := m.streamBuffer.String()
		if streamText != "" {
			builder.WriteString(m.renderMessage(tuiMessage{Role: "assistant", Content: streamText}, true))
			builder.WriteString("\n\n")
		}
	}
	m.chatView.SetContent(builder.String())
	if m.chatAutoScroll {
		m.chatView.GotoBottom()
	}
}

// bootstrapHistory seeds the chat view with a replayed transcript, one entry
// per completed reply.
func (m *tuiModel) bootstrapHistory(replay []messages.Message) {
	var builder strings.Builder
	for _, message := range replay {
		switch typed := message.(type) {
		case *messages.Assistant:
			builder.WriteString(messages.ExtractText(typed))
		case *messages.Result:
			if builder.Len() > 0 {
				m.appendMessage("assistant", builder.String())
				builder.Reset()
			}
		}
	}
	if builder.Len() > 0 {
		m.appendMessage("assistant", builder.String())
	}
	m.refreshChat()
}

// applyWindowSize recalculates the layout for a new window size.
func (m *tuiModel) applyWindowSize(msg tea.WindowSizeMsg) {
	m.width = msg.Width
	m.height = msg.Height

	headerHeight := 1
	statusHeight := 1
	inputHeight := m.input.Height()
	bodyHeight := m.height - headerHeight - statusHeight - inputHeight
	if bodyHeight < 4 {
		bodyHeight = 4
	}

	m.chatView.Width = m.width - 4
	m.chatView.Height = bodyHeight - 2
	m.input.SetWidth(m.width - 2)

	m.refreshChat()
}

// toggleFocus switches scrolling keys between the input and the chat pane.
func (m *tuiModel) toggleFocus() {
	if m.chatFocused {
		m.focusInput()
		return
	}
	m.chatFocused = true
	m.input.Blur()
}

// focusInput returns key handling to the input box.
func (m *tuiModel) focusInput() {
	m.chatFocused = false
	m.input.Focus()
}

// scrollChat scrolls the chat pane and disables auto-scroll.
func (m *tuiModel) scrollChat(delta int) {
	m.chatAutoScroll = false
	if delta > 0 {
		m.chatView.LineDown(delta)
	} else {
		m.chatView.LineUp(-delta)
	}
}

// renderHeader builds the top status line.
func (m *tuiModel) renderHeader() string {
	style := lipgloss.NewStyle().Bold(true)
	header := fmt.Sprintf("azoai | session %s | model %s", m.conversationID, m.model)
	if m.running {
		header = header + " | running"
	}
	return style.Render(padRight(header, m.width))
}

// renderInput returns the input box rendering.
func (m *tuiModel) renderInput() string {
	style := lipgloss.NewStyle().Border(m.border()).Padding(0, 1)
	return style.Render(m.input.View())
}

// renderStatus returns the bottom status line.
func (m *tuiModel) renderStatus() string {
	style := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	text := m.statusText
	if text == "" {
		text = "Ready"
	}
	if m.chatFocused {
		text = text + " | focus:chat"
	}
	return style.Render(padRight(text, m.width))
}

// renderPane formats a bordered pane with a title.
func (m *tuiModel) renderPane(title string, content string, width int) string {
	style := lipgloss.NewStyle().Border(m.border()).Padding(0, 1)
	header := fmt.Sprintf("[%s]", title)
	pane := lipgloss.JoinVertical(lipgloss.Left, header, content)
	return style.Width(width).Render(pane)
}

// renderMessage formats a chat message for display.
func (m *tuiModel) renderMessage(message tuiMessage, streaming bool) string {
	label := strings.ToUpper(message.Role)
	content := message.Content
	style := lipgloss.NewStyle()
	switch message.Role {
	case "user":
		style = style.Foreground(lipgloss.Color("39")).Bold(true)
		label = "YOU"
	case "assistant":
		style = style.Foreground(lipgloss.Color("10")).Bold(true)
		label = "ASSISTANT"
	case "tool":
		style = style.Foreground(lipgloss.Color("13"))
		label = "TOOL"
	case "system":
		style = style.Foreground(lipgloss.Color("3"))
		label = "SYSTEM"
	}
	if !streaming && message.Role == "assistant" {
		content = m.renderMarkdown(content)
	}
	return fmt.Sprintf("%s\n%s", style.Render(label+":"), content)
}

// renderMarkdown converts markdown into terminal-friendly output when possible.
func (m *tuiModel) renderMarkdown(content string) string {
	if m.markdownRenderer == nil {
		return content
	}
	rendered, err := m.markdownRenderer.Render(content)
	if err != nil {
		return content
	}
	return rendered
}

// border defines a simple ASCII border to avoid Unicode dependencies.
func (m *tuiModel) border() lipgloss.Border {
	return lipgloss.Border{
		Top:         "-",
		Bottom:      "-",
		Left:        "|",
		Right:       "|",
		TopLeft:     "+",
		TopRight:    "+",
		BottomLeft:  "+",
		BottomRight: "+",
	}
}

// padRight pads a string with spaces to the target width.
func padRight(value string, width int) string {
	runes := []rune(value)
	if len(runes) >= width {
		return value
	}
	return value + strings.Repeat(" ", width-len(runes))
}
