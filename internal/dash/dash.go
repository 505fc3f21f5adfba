// Package dash is a terminal dashboard: live stats on top, a command line
// at the bottom that takes the same grammar as the repl.
package dash

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/johnelliott/walkpad/internal/command"
	"github.com/johnelliott/walkpad/pkg/walkingpad"
)

const (
	maxLogEntries = 8
	// speed step for pgup/pgdown
	speedStep = 5
)

// Pad takes requests
type Pad interface {
	Submit(ctx context.Context, req walkingpad.Request) error
}

// Options wires the dashboard to a session
type Options struct {
	Pad       Pad
	Responses <-chan walkingpad.Response
	// Runs delivers finished runs, may be nil
	Runs <-chan walkingpad.RunRecord
	// History fetches stored runs for the history command, may be nil
	History      func(ctx context.Context) ([]walkingpad.RunRecord, error)
	PollInterval time.Duration
	Title        string
}

// Model is the bubbletea model
type Model struct {
	opts  Options
	ctx   context.Context
	input textinput.Model

	state     walkingpad.LiveState
	haveState bool
	settings  *walkingpad.Settings
	runs      []walkingpad.RunRecord
	log       []logEntry

	linkLost bool
	quitting bool
	width    int
}

type logEntry struct {
	at  time.Time
	msg string
	err bool
}

type responseMsg struct{ r walkingpad.Response }
type runMsg struct{ r walkingpad.RunRecord }
type linkLostMsg struct{}
type pollMsg time.Time
type resultMsg struct {
	what string
	err  error
}
type historyMsg struct {
	runs []walkingpad.RunRecord
	err  error
}

// New builds the model. ctx bounds every request it submits.
func New(ctx context.Context, opts Options) Model {
	ti := textinput.New()
	ti.Placeholder = "start, stop, set speed 3.5, help"
	ti.Prompt = "> "
	ti.CharLimit = 64
	ti.Width = 50
	ti.Focus()
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	return Model{opts: opts, ctx: ctx, input: ti, width: 80}
}

// Run shows the dashboard until the user quits
func Run(ctx context.Context, opts Options) error {
	p := tea.NewProgram(New(ctx, opts), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		textinput.Blink,
		listen(m.opts.Responses),
		m.submit("get settings", walkingpad.QuerySettings()),
		m.poll(),
	}
	if m.opts.Runs != nil {
		cmds = append(cmds, listenRuns(m.opts.Runs))
	}
	return tea.Batch(cmds...)
}

func listen(ch <-chan walkingpad.Response) tea.Cmd {
	return func() tea.Msg {
		r, ok := <-ch
		if !ok {
			return linkLostMsg{}
		}
		return responseMsg{r}
	}
}

func listenRuns(ch <-chan walkingpad.RunRecord) tea.Cmd {
	return func() tea.Msg {
		r, ok := <-ch
		if !ok {
			return nil
		}
		return runMsg{r}
	}
}

func (m Model) poll() tea.Cmd {
	return tea.Tick(m.opts.PollInterval, func(t time.Time) tea.Msg { return pollMsg(t) })
}

func (m Model) submit(what string, req walkingpad.Request) tea.Cmd {
	pad, ctx := m.opts.Pad, m.ctx
	return func() tea.Msg {
		return resultMsg{what: what, err: pad.Submit(ctx, req)}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case responseMsg:
		switch r := msg.r.(type) {
		case walkingpad.LiveState:
			m.state, m.haveState = r, true
		case walkingpad.Settings:
			m.settings = &r
		}
		return m, listen(m.opts.Responses)

	case runMsg:
		m.runs = append(m.runs, msg.r)
		m.addLog(fmt.Sprintf("Run finished: %dm in %s", msg.r.DistanceMeters, msg.r.Duration), false)
		return m, listenRuns(m.opts.Runs)

	case linkLostMsg:
		m.linkLost = true
		m.addLog("Link to the pad lost", true)

	case pollMsg:
		if m.linkLost {
			return m, nil
		}
		return m, tea.Batch(m.submit("", walkingpad.QueryState()), m.poll())

	case resultMsg:
		if msg.err != nil {
			m.addLog(fmt.Sprintf("%s: %v", msg.what, msg.err), true)
		} else if msg.what != "" {
			m.addLog(msg.what, false)
		}

	case historyMsg:
		m.runs = append(m.runs, msg.runs...)
		if msg.err != nil {
			m.addLog(fmt.Sprintf("history: %v", msg.err), true)
		} else {
			m.addLog(fmt.Sprintf("Fetched %d stored runs", len(msg.runs)), false)
		}
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		m.quitting = true
		return m, tea.Quit

	case "enter":
		line := m.input.Value()
		m.input.SetValue("")
		if strings.TrimSpace(line) == "" {
			return m, nil
		}
		return m.execute(line)

	case "pgup":
		return m, m.submit("faster", walkingpad.SetSpeed(m.state.Speed.AddHm(speedStep)))

	case "pgdown":
		return m, m.submit("slower", walkingpad.SetSpeed(m.state.Speed.SubHm(speedStep)))
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) execute(line string) (tea.Model, tea.Cmd) {
	c, err := command.Parse(line)
	if err != nil {
		m.addLog(err.Error(), true)
		return m, nil
	}
	switch c.Action {
	case command.Quit:
		m.quitting = true
		return m, tea.Quit
	case command.Help:
		for _, l := range strings.Split(command.Usage, "\n") {
			m.addLog(l, false)
		}
		return m, nil
	case command.History:
		if m.opts.History == nil {
			m.addLog("history is not available here", true)
			return m, nil
		}
		fetch, ctx := m.opts.History, m.ctx
		return m, func() tea.Msg {
			runs, err := fetch(ctx)
			return historyMsg{runs: runs, err: err}
		}
	}
	return m, m.submit(line, c.Request)
}

func (m *Model) addLog(msg string, isErr bool) {
	m.log = append(m.log, logEntry{at: time.Now(), msg: msg, err: isErr})
	if len(m.log) > maxLogEntries {
		m.log = m.log[len(m.log)-maxLogEntries:]
	}
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")).
			Bold(true)
	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))
	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)
	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))
	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
)

func (m Model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}
	var s strings.Builder

	title := m.opts.Title
	if title == "" {
		title = "WALKPAD"
	}
	s.WriteString(titleStyle.Render(title))
	s.WriteString(" ")
	status := "connected"
	if m.linkLost {
		status = warningStyle.Render("LINK LOST")
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("| %s | Enter=run PgUp/PgDn=speed Esc=quit", status)))
	s.WriteString("\n\n")

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, m.renderState(), " ", m.renderSettings()))
	s.WriteString("\n")
	s.WriteString(m.renderLog())
	s.WriteString("\n")
	s.WriteString(m.input.View())
	s.WriteString("\n")
	return s.String()
}

func field(label, value string) string {
	return fmt.Sprintf("%s %s\n", labelStyle.Render(label), valueStyle.Render(value))
}

func (m Model) renderState() string {
	var s strings.Builder
	if m.haveState {
		st := m.state
		s.WriteString(field("Belt:    ", st.MotorState.String()))
		s.WriteString(field("Speed:   ", st.Speed.String()))
		s.WriteString(field("Mode:    ", st.Mode.String()))
		s.WriteString(field("Time:    ", st.RunTime.String()))
		s.WriteString(field("Distance:", fmt.Sprintf("%d m", st.DistanceMeters)))
		s.WriteString(field("Steps:   ", fmt.Sprintf("%d", st.Steps)))
	} else {
		s.WriteString("Waiting for the pad...\n")
	}
	var total uint32
	for _, r := range m.runs {
		total += r.DistanceMeters
	}
	s.WriteString(field("Runs:    ", fmt.Sprintf("%d, %d m", len(m.runs), total)))
	return boxStyle.Render(strings.TrimSuffix(s.String(), "\n"))
}

func (m Model) renderSettings() string {
	if m.settings == nil {
		return ""
	}
	st := m.settings
	var s strings.Builder
	s.WriteString(field("Max speed:  ", st.MaxSpeed.String()))
	s.WriteString(field("Start speed:", st.StartSpeed.String()))
	s.WriteString(field("Start mode: ", st.StartMode.String()))
	s.WriteString(field("Sensitivity:", st.Sensitivity.String()))
	s.WriteString(field("Display:    ", st.Display.String()))
	s.WriteString(field("Units:      ", st.Units.String()))
	s.WriteString(field("Locked:     ", fmt.Sprintf("%t", st.Locked)))
	return boxStyle.Render(strings.TrimSuffix(s.String(), "\n"))
}

func (m Model) renderLog() string {
	var s strings.Builder
	for _, e := range m.log {
		line := fmt.Sprintf("%s %s", e.at.Format("15:04:05"), e.msg)
		if e.err {
			line = errorStyle.Render(line)
		}
		s.WriteString(line)
		s.WriteString("\n")
	}
	return s.String()
}
