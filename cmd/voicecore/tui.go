package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	agent "github.com/TreasureProject/voicecore/core"
	"github.com/TreasureProject/voicecore/core/eventbus"
	"github.com/TreasureProject/voicecore/core/events"
	"github.com/TreasureProject/voicecore/core/vad"
)

const (
	statusPollInterval   = 500 * time.Millisecond
	maxConversationLines = 50
)

// dashboard bridges the running agent into a bubbletea program: agent
// callbacks and bus events become tea messages.
type dashboard struct {
	mu      sync.Mutex
	program *tea.Program

	thresholds vad.Thresholds
}

func newDashboard(thresholds vad.Thresholds) *dashboard {
	return &dashboard{thresholds: thresholds}
}

func (d *dashboard) send(msg tea.Msg) {
	d.mu.Lock()
	program := d.program
	d.mu.Unlock()
	if program != nil {
		program.Send(msg)
	}
}

// agentOptions wires the turn callbacks into the dashboard.
func (d *dashboard) agentOptions() []agent.Option {
	return []agent.Option{
		agent.WithTranscriptCallback(func(transcript string) {
			d.send(transcriptMsg{text: transcript})
		}),
		agent.WithResponseCallback(func(response string) {
			d.send(responseMsg{text: response})
		}),
		agent.WithTurnFailedCallback(func(turn agent.Turn, err error) {
			d.send(turnFailedMsg{err: err})
		}),
	}
}

// run drives the program and the agent together and returns once both have
// stopped. The agent's error wins over UI teardown errors.
func (d *dashboard) run(ctx context.Context, a *agent.Agent) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	program := tea.NewProgram(newDashboardModel(), tea.WithAltScreen(), tea.WithContext(ctx))
	d.mu.Lock()
	d.program = program
	d.mu.Unlock()

	go d.watchLevels(ctx, a.Bus())
	go d.pollStatus(ctx, a)

	agentErr := make(chan error, 1)
	go func() { agentErr <- a.Run(ctx) }()

	_, uiErr := program.Run()
	cancel()

	if err := <-agentErr; err != nil {
		return err
	}
	if uiErr != nil && !errors.Is(uiErr, tea.ErrProgramKilled) {
		return uiErr
	}
	return nil
}

// watchLevels reclassifies raw capture frames to drive the input meter. The
// detector does the authoritative classification; this one only feeds the
// display.
func (d *dashboard) watchLevels(ctx context.Context, bus *eventbus.Bus) {
	sub := bus.Subscribe(events.KindAudioFrameCaptured,
		eventbus.WithSubscriberName("dashboard"),
		eventbus.WithQueueCapacity(64),
	)
	defer sub.Close()

	for {
		event, err := sub.Receive(ctx)
		if err != nil {
			return
		}
		captured, ok := event.(events.AudioFrameCaptured)
		if !ok {
			continue
		}
		classification := vad.Classify(captured.Frame.Samples(), d.thresholds)
		d.send(levelMsg{energy: classification.Energy, speech: classification.Speech})
	}
}

func (d *dashboard) pollStatus(ctx context.Context, a *agent.Agent) {
	ticker := time.NewTicker(statusPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.send(statusMsg{phase: a.Phase(), modules: a.Status()})
		}
	}
}

type transcriptMsg struct{ text string }
type responseMsg struct{ text string }
type turnFailedMsg struct{ err error }
type levelMsg struct {
	energy float64
	speech bool
}
type statusMsg struct {
	phase   agent.TurnPhase
	modules []agent.ModuleStatus
}

type conversationLine struct {
	role string
	text string
}

type dashboardModel struct {
	width  int
	height int

	phase   agent.TurnPhase
	modules []agent.ModuleStatus
	lines   []conversationLine
	lastErr error

	level  float64
	speech bool

	meter progress.Model
	spin  spinner.Model
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	userStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	replyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("114"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)

	stateStyles = map[agent.ModuleState]lipgloss.Style{
		agent.ModuleRunning:  lipgloss.NewStyle().Foreground(lipgloss.Color("114")),
		agent.ModuleFailed:   lipgloss.NewStyle().Foreground(lipgloss.Color("203")),
		agent.ModuleStopping: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
	}
)

func newDashboardModel() dashboardModel {
	spin := spinner.New()
	spin.Spinner = spinner.MiniDot

	return dashboardModel{
		phase: agent.PhaseListening,
		meter: progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
		spin:  spin,
	}
}

func (m dashboardModel) Init() tea.Cmd {
	return m.spin.Tick
}

func (m dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.meter.Width = min(msg.Width-20, 40)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case statusMsg:
		m.phase = msg.phase
		m.modules = msg.modules

	case levelMsg:
		m.level = msg.energy
		m.speech = msg.speech

	case transcriptMsg:
		m.appendLine(conversationLine{role: "you", text: msg.text})

	case responseMsg:
		m.appendLine(conversationLine{role: "agent", text: msg.text})

	case turnFailedMsg:
		m.lastErr = msg.err
	}

	return m, nil
}

func (m *dashboardModel) appendLine(line conversationLine) {
	m.lines = append(m.lines, line)
	if len(m.lines) > maxConversationLines {
		m.lines = m.lines[len(m.lines)-maxConversationLines:]
	}
}

func (m dashboardModel) View() string {
	if m.width == 0 {
		return "starting..."
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("voicecore"))
	b.WriteString("  ")
	b.WriteString(labelStyle.Render(string(m.phase)))
	if m.phase != agent.PhaseListening {
		b.WriteString(" " + m.spin.View())
	}
	b.WriteString("\n\n")

	// The meter saturates well below full scale so quiet speech still moves it.
	b.WriteString(labelStyle.Render("input "))
	b.WriteString(m.meter.ViewAs(min(m.level*5, 1)))
	if m.speech {
		b.WriteString(userStyle.Render("  speech"))
	}
	b.WriteString("\n\n")

	for _, module := range m.modules {
		style, ok := stateStyles[module.State]
		if !ok {
			style = labelStyle
		}
		b.WriteString(fmt.Sprintf("%-16s %s", module.Name, style.Render(string(module.State))))
		if module.Restarts > 0 {
			b.WriteString(labelStyle.Render(fmt.Sprintf("  restarts=%d", module.Restarts)))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.conversationView())

	if m.lastErr != nil {
		b.WriteString("\n" + errStyle.Render("last turn failed: "+m.lastErr.Error()))
	}

	b.WriteString("\n" + labelStyle.Render("q to quit"))
	return b.String()
}

func (m dashboardModel) conversationView() string {
	width := max(m.width-6, 20)

	var lines []string
	for _, line := range m.lines {
		style := userStyle
		if line.role == "agent" {
			style = replyStyle
		}
		lines = append(lines,
			style.Render(line.role+": ")+wordwrap.String(line.text, width-len(line.role)-2))
	}
	if len(lines) == 0 {
		lines = []string{labelStyle.Render("say something...")}
	}

	return boxStyle.Width(width).Render(strings.Join(lines, "\n"))
}
