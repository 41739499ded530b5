// ABOUTME: Terminal chat client for parley-gateway
// ABOUTME: Bubbletea UI with live agent suggestions, chaining, and feedback keys

package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// clientConfig is the optional TOML config at ~/.config/parley/tui.toml.
type clientConfig struct {
	ServerURL string `toml:"server_url"`
	Token     string `toml:"token"`
}

// loadConfig reads the TOML config file if present.
func loadConfig() clientConfig {
	cfg := clientConfig{ServerURL: "http://localhost:8080"}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return cfg
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	path := filepath.Join(configDir, "parley", "tui.toml")
	if _, err := toml.DecodeFile(path, &cfg); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "warning: bad config %s: %v\n", path, err)
	}
	return cfg
}

// getToken returns the auth token from PARLEY_TOKEN or the config file.
func getToken(cfg clientConfig) string {
	if token := os.Getenv("PARLEY_TOKEN"); token != "" {
		return token
	}
	return cfg.Token
}

var (
	userStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	botStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	chainStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("13")).Italic(true)
	suggestStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	noticeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

type chatLine struct {
	sender    string
	text      string
	messageID string
	chainNote string
	rated     bool
}

type model struct {
	client *apiClient

	agentID   string
	agentName string
	sessionID string

	viewport viewport.Model
	input    textinput.Model
	spin     spinner.Model

	lines       []chatLine
	suggestions []suggestionView
	notice      string
	waiting     bool
	ready       bool
}

// Messages delivered by commands.
type sessionOpenedMsg struct {
	sessionID string
	agentName string
	greeting  string
}
type replyMsg struct {
	line chatLine
}
type suggestionsMsg struct {
	forInput    string
	suggestions []suggestionView
}
type noticeMsg struct{ text string }
type errMsg struct{ err error }

func newModel(client *apiClient, agentID string) model {
	input := textinput.New()
	input.Placeholder = "Type your message..."
	input.Focus()

	spin := spinner.New()
	spin.Spinner = spinner.Dot

	return model{
		client:  client,
		agentID: agentID,
		input:   input,
		spin:    spin,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.openSession(), m.spin.Tick)
}

func (m model) openSession() tea.Cmd {
	return func() tea.Msg {
		resp, err := m.client.openSession(m.agentID)
		if err != nil {
			return errMsg{err}
		}
		return sessionOpenedMsg{
			sessionID: resp.SessionID,
			agentName: resp.Agent.Name,
			greeting:  resp.Greeting,
		}
	}
}

func (m model) sendCmd(text string) tea.Cmd {
	return func() tea.Msg {
		entry, err := m.client.send(m.sessionID, text)
		if err != nil {
			return errMsg{err}
		}
		line := chatLine{sender: entry.Sender, text: entry.Text, messageID: entry.ID}
		if entry.ChainMeta != nil {
			line.chainNote = fmt.Sprintf("Combined using %s + %s",
				entry.ChainMeta.Primary, entry.ChainMeta.Secondary)
		}
		return replyMsg{line}
	}
}

func (m model) suggestCmd(input string) tea.Cmd {
	return func() tea.Msg {
		suggestions, err := m.client.suggest(m.sessionID, input)
		if err != nil {
			// Suggestions are best-effort; never surface transport errors
			return suggestionsMsg{forInput: input}
		}
		return suggestionsMsg{forInput: input, suggestions: suggestions}
	}
}

func (m model) feedbackCmd(messageID string, satisfied bool) tea.Cmd {
	return func() tea.Msg {
		if err := m.client.submitFeedback(m.sessionID, messageID, satisfied); err != nil {
			return noticeMsg{"could not record feedback"}
		}
		return noticeMsg{"Thanks for your feedback!"}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-6)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - 6
		}
		m.viewport.SetContent(m.renderLines())

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			return m.handleSubmit()
		case tea.KeyCtrlU:
			return m.rateLast(true)
		case tea.KeyCtrlD:
			return m.rateLast(false)
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
		// Recompute suggestions on every input change; the handler
		// replaces the previous list wholesale.
		if m.sessionID != "" {
			cmds = append(cmds, m.suggestCmd(m.input.Value()))
		}

	case sessionOpenedMsg:
		m.sessionID = msg.sessionID
		m.agentName = msg.agentName
		m.lines = append(m.lines, chatLine{sender: "bot", text: msg.greeting})
		m.refresh()

	case replyMsg:
		m.waiting = false
		m.lines = append(m.lines, msg.line)
		m.refresh()

	case suggestionsMsg:
		// Stale results for an older input are dropped
		if msg.forInput == m.input.Value() {
			m.suggestions = msg.suggestions
		}

	case noticeMsg:
		m.notice = msg.text
		m.refresh()

	case errMsg:
		m.waiting = false
		m.notice = msg.err.Error()
		m.refresh()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// handleSubmit sends the input, or runs a /chain command.
func (m model) handleSubmit() (tea.Model, tea.Cmd) {
	text := m.input.Value()
	trimmed := strings.TrimSpace(text)

	if after, ok := strings.CutPrefix(trimmed, "/chain "); ok {
		secondary := strings.TrimSpace(after)
		m.input.Reset()
		return m, func() tea.Msg {
			if err := m.client.enableChain(m.sessionID, secondary); err != nil {
				return noticeMsg{"could not enable chaining"}
			}
			return noticeMsg{"Chaining with " + secondary}
		}
	}
	if trimmed == "/nochain" {
		m.input.Reset()
		return m, func() tea.Msg {
			if err := m.client.disableChain(m.sessionID); err != nil {
				return noticeMsg{"could not disable chaining"}
			}
			return noticeMsg{"Chaining disabled"}
		}
	}

	if trimmed == "" || m.sessionID == "" || m.waiting {
		return m, nil
	}

	m.lines = append(m.lines, chatLine{sender: "user", text: text})
	m.input.Reset()
	m.suggestions = nil
	m.waiting = true
	m.notice = ""
	m.refresh()
	return m, m.sendCmd(text)
}

// rateLast submits feedback for the most recent ratable bot reply.
func (m model) rateLast(satisfied bool) (tea.Model, tea.Cmd) {
	for i := len(m.lines) - 1; i >= 0; i-- {
		line := &m.lines[i]
		if line.sender == "bot" && line.messageID != "" && !line.rated {
			line.rated = true
			return m, m.feedbackCmd(line.messageID, satisfied)
		}
	}
	return m, nil
}

func (m *model) refresh() {
	if m.ready {
		m.viewport.SetContent(m.renderLines())
		m.viewport.GotoBottom()
	}
}

func (m model) renderLines() string {
	var b strings.Builder
	for _, line := range m.lines {
		if line.sender == "user" {
			b.WriteString(userStyle.Render("you: ") + line.text + "\n")
		} else {
			b.WriteString(botStyle.Render(m.agentName+": ") + line.text + "\n")
		}
		if line.chainNote != "" {
			b.WriteString(chainStyle.Render("  "+line.chainNote) + "\n")
		}
		if line.rated {
			b.WriteString(helpStyle.Render("  rated") + "\n")
		}
	}
	return b.String()
}

func (m model) View() string {
	if m.sessionID == "" {
		return fmt.Sprintf("\n  %s connecting...\n", m.spin.View())
	}

	var b strings.Builder
	b.WriteString(m.viewport.View() + "\n")

	for _, s := range m.suggestions {
		b.WriteString(suggestStyle.Render(
			fmt.Sprintf("  → try %s (%s)", s.Label, s.Reason)) + "\n")
	}
	if m.notice != "" {
		b.WriteString(noticeStyle.Render("  "+m.notice) + "\n")
	}
	if m.waiting {
		b.WriteString(fmt.Sprintf("  %s thinking...\n", m.spin.View()))
	}

	b.WriteString(m.input.View() + "\n")
	b.WriteString(helpStyle.Render("  enter send · /chain <agent> · ctrl+u/ctrl+d rate · esc quit"))
	return b.String()
}

func main() {
	agentID := flag.String("agent", "", "agent ID to chat with")
	serverURL := flag.String("server", "", "gateway URL (overrides config)")
	flag.Parse()

	if *agentID == "" {
		fmt.Fprintln(os.Stderr, "Usage: parley-tui -agent <agent-id>")
		os.Exit(1)
	}

	cfg := loadConfig()
	if *serverURL != "" {
		cfg.ServerURL = *serverURL
	}

	client := newAPIClient(cfg.ServerURL, getToken(cfg))
	p := tea.NewProgram(newModel(client, *agentID), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
