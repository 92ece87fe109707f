package progress

import (
	"fmt"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#2563EB")).
			Padding(0, 1)

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#9CA3AF"))
)

const barWidth = 40

// advanceMsg and doneMsg cross from the walker's goroutine into the
// bubbletea program via tea.Program.Send, mirroring the teacher's
// logChan-to-Program.Send pattern.
type advanceMsg struct {
	processed int
	current   string
}

type doneMsg struct{}

type model struct {
	total     int
	processed int
	current   string
	finished  bool
	bar       progress.Model
}

func newModel(total int) model {
	return model{total: total, bar: progress.New(progress.WithDefaultGradient(), progress.WithWidth(barWidth))}
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case advanceMsg:
		m.processed += msg.processed
		m.current = msg.current
		return m, nil
	case doneMsg:
		m.finished = true
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	case progress.FrameMsg:
		updated, cmd := m.bar.Update(msg)
		m.bar = updated.(progress.Model)
		return m, cmd
	}
	return m, nil
}

func (m model) View() string {
	header := headerStyle.Render(" adbpush ")

	frac := 0.0
	if m.total > 0 {
		frac = float64(m.processed) / float64(m.total)
	}
	if frac > 1 {
		frac = 1
	}

	status := fmt.Sprintf("%s  %d/%d  %s", m.bar.ViewAs(frac), m.processed, m.total, m.current)
	footer := footerStyle.Render("ctrl+c to cancel")
	if m.finished {
		footer = footerStyle.Render("done")
	}

	return lipgloss.JoinVertical(lipgloss.Left, header, status, footer)
}

// TUISink renders a bubbletea progress bar for an in-flight push. Start
// must be called before any Advance/Done event; Run blocks until Done is
// observed or the user cancels.
type TUISink struct {
	program *tea.Program
}

// NewTUISink constructs a sink whose Run method drives the terminal UI.
func NewTUISink() *TUISink {
	return &TUISink{}
}

func (t *TUISink) Start(total int) {
	t.program = tea.NewProgram(newModel(total))
}

func (t *TUISink) Advance(n int, current string) {
	if t.program != nil {
		t.program.Send(advanceMsg{processed: n, current: current})
	}
}

func (t *TUISink) Done() {
	if t.program != nil {
		t.program.Send(doneMsg{})
	}
}

// Run starts the bubbletea event loop. Call it from the main goroutine
// after launching the walker's Push on a worker goroutine (spec §5's
// scheduling model: USB I/O never blocks the UI).
func (t *TUISink) Run() error {
	if t.program == nil {
		return nil
	}
	_, err := t.program.Run()
	return err
}
