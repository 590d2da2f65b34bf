// Package tui is the interactive chat front end.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/felixgeelhaar/recall/internal/memory"
)

// TUI forwards runtime updates into a running program.
type TUI struct {
	program *tea.Program
}

func NewTUI(p *tea.Program) *TUI {
	return &TUI{program: p}
}

func (t *TUI) UpdateStatus(status string) {
	t.program.Send(StatusMsg(status))
}

func (t *TUI) UpdateRound(n int) {
	t.program.Send(RoundNumMsg(n))
}

func (t *TUI) Log(msg string) {
	t.program.Send(LogMsg(msg))
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#04B575"))

	userStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#5FAFFF"))

	agentStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF87D7"))

	thoughtStyle = lipgloss.NewStyle().
			Italic(true).
			Foreground(lipgloss.Color("#888888"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000"))
)

// ChatFunc runs one round for a message typed by the user.
type ChatFunc func(message string) (*memory.Round, error)

type (
	LogMsg      string
	StatusMsg   string
	RoundNumMsg int
)

// ReplyMsg carries the outcome of a round.
type ReplyMsg struct {
	Round *memory.Round
	Err   error
}

type Model struct {
	Title    string
	Speaker  string
	Status   string
	Round    int
	Lines    []string
	Viewport viewport.Model
	Input    textinput.Model
	Spinner  spinner.Model
	Busy     bool
	Quitting bool
	Ready    bool
	Width    int
	Height   int

	chat ChatFunc
}

func NewModel(title, speaker string, chat ChatFunc) Model {
	in := textinput.New()
	in.Placeholder = "Say something..."
	in.Prompt = speaker + "> "
	in.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		Title:   title,
		Speaker: speaker,
		Status:  "Ready",
		Input:   in,
		Spinner: sp,
		chat:    chat,
	}
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) send(message string) tea.Cmd {
	chat := m.chat
	return func() tea.Msg {
		round, err := chat(message)
		return ReplyMsg{Round: round, Err: err}
	}
}

func (m *Model) appendLines(lines ...string) {
	m.Lines = append(m.Lines, lines...)
	m.Viewport.SetContent(strings.Join(m.Lines, "\n"))
	m.Viewport.GotoBottom()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.Quitting = true
			return m, tea.Quit
		case tea.KeyEnter:
			text := strings.TrimSpace(m.Input.Value())
			if text == "" || m.Busy {
				return m, nil
			}
			m.Input.SetValue("")
			m.Busy = true
			m.Status = "Thinking..."
			m.appendLines(userStyle.Render(m.Speaker+":") + " " + text)
			return m, tea.Batch(m.send(text), m.Spinner.Tick)
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		if !m.Ready {
			m.Viewport = viewport.New(msg.Width, msg.Height-4)
			m.Viewport.SetContent(strings.Join(m.Lines, "\n"))
			m.Ready = true
		} else {
			m.Viewport.Width = msg.Width
			m.Viewport.Height = msg.Height - 4
		}
		m.Input.Width = msg.Width - len(m.Input.Prompt) - 2

	case ReplyMsg:
		m.Busy = false
		if msg.Err != nil {
			m.Status = "Round failed"
			m.appendLines(errorStyle.Render("error: " + msg.Err.Error()))
			break
		}
		m.appendLines(renderReply(msg.Round)...)

	case LogMsg:
		m.appendLines(infoStyle.Render("· " + string(msg)))

	case StatusMsg:
		m.Status = string(msg)

	case RoundNumMsg:
		m.Round = int(msg)

	case spinner.TickMsg:
		if !m.Busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.Spinner, cmd = m.Spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.Input, cmd = m.Input.Update(msg)
	cmds = append(cmds, cmd)
	m.Viewport, cmd = m.Viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func renderReply(r *memory.Round) []string {
	if r == nil || r.Reply == nil {
		return nil
	}
	if r.GenerationFailed {
		return []string{errorStyle.Render("(no reply, the round was stored empty)")}
	}
	name := r.Reply.MyNameIs
	if name == "" {
		name = "agent"
	}
	lines := []string{agentStyle.Render(fmt.Sprintf("%s %s:", name, r.Reply.Emotion)) + " " + r.Reply.Answer}
	if r.Reply.Thought != "" {
		lines = append(lines, thoughtStyle.Render("  ("+r.Reply.Thought+")"))
	}
	return lines
}

func (m Model) View() string {
	if !m.Ready {
		return "\n  Initializing..."
	}

	header := titleStyle.Render(" " + m.Title + " ")
	status := m.Status
	if m.Busy {
		status = m.Spinner.View() + " " + status
	}
	bar := fmt.Sprintf("%s%s Round: %d ", header, infoStyle.Render(" Status: "+status+" "), m.Round)

	view := fmt.Sprintf("%s\n%s\n%s", bar, m.Viewport.View(), m.Input.View())
	if m.Quitting {
		return view + "\n  Bye.\n"
	}
	return view
}
