package ui

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// TUIRenderer shows live ingest progress with bubbletea.
type TUIRenderer struct {
	mu      sync.Mutex
	cfg     Config
	program *tea.Program
	model   *ingestModel
	tracker *ProgressTracker
	started bool
	done    chan struct{}
}

// NewTUIRenderer creates a TUI renderer. Errors when the output is not
// a terminal.
func NewTUIRenderer(cfg Config) (*TUIRenderer, error) {
	if !IsTTY(cfg.Output) {
		return nil, fmt.Errorf("output is not a TTY")
	}

	tracker := NewProgressTracker()
	model := newIngestModel(tracker)
	if cfg.NoColor || DetectNoColor() {
		model.styles = NoColorStyles()
	}

	return &TUIRenderer{
		cfg:     cfg,
		tracker: tracker,
		model:   model,
		done:    make(chan struct{}),
	}, nil
}

func (r *TUIRenderer) Start(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil
	}

	var opts []tea.ProgramOption
	if f, ok := r.cfg.Output.(*os.File); ok {
		opts = append(opts, tea.WithOutput(f))
	}

	r.program = tea.NewProgram(r.model, opts...)
	r.started = true

	go func() {
		defer close(r.done)
		_, _ = r.program.Run()
	}()
	return nil
}

func (r *TUIRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if event.Stage != r.tracker.Stats().Stage {
		r.tracker.SetStage(event.Stage, event.Total)
	}
	r.tracker.Update(event.Current, event.Message)

	if r.program != nil {
		r.program.Send(progressUpdateMsg(event))
	}
}

func (r *TUIRenderer) AddError(event ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tracker.AddError(event)
	if r.program != nil {
		r.program.Send(errorMsg(event))
	}
}

func (r *TUIRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tracker.SetStage(StageComplete, 0)
	if r.program != nil {
		r.program.Send(completeMsg(stats))
	}
}

func (r *TUIRenderer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.program != nil {
		r.program.Quit()
		select {
		case <-r.done:
		case <-time.After(2 * time.Second):
			// Unresponsive TUI must not hang shutdown.
		}
	}
	return nil
}

// bubbletea messages
type progressUpdateMsg ProgressEvent
type errorMsg ErrorEvent
type completeMsg CompletionStats
type tickMsg time.Time

var ingestStages = []Stage{StageLoading, StageEmbedding, StageIndexing}

// ingestModel is the bubbletea model for ingest progress.
type ingestModel struct {
	tracker     *ProgressTracker
	width       int
	quitting    bool
	complete    bool
	stats       CompletionStats
	lastErr     string
	spinner     spinner.Model
	progressBar progress.Model
	styles      Styles
}

func newIngestModel(tracker *ProgressTracker) *ingestModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorTeal))

	p := progress.New(
		progress.WithSolidFill(ColorTeal),
		progress.WithWidth(50),
		progress.WithoutPercentage(),
	)

	return &ingestModel{
		tracker:     tracker,
		spinner:     s,
		progressBar: p,
		styles:      DefaultStyles(),
		width:       80,
	}
}

func (m *ingestModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickCmd())
}

func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *ingestModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		if msg.Width < 60 {
			m.progressBar.Width = msg.Width - 10
		}

	case tickMsg:
		return m, tickCmd()

	case progressUpdateMsg:
		return m, nil

	case errorMsg:
		if msg.Err != nil {
			m.lastErr = msg.Err.Error()
		}
		return m, nil

	case completeMsg:
		m.complete = true
		m.stats = CompletionStats(msg)
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *ingestModel) View() string {
	if m.quitting {
		return ""
	}
	if m.complete {
		return m.completeView()
	}

	stats := m.tracker.Stats()
	var b strings.Builder

	b.WriteString(m.styles.Header.Render("loreleaf ingest"))
	b.WriteString("\n\n")

	for _, stage := range ingestStages {
		switch {
		case stage == stats.Stage:
			b.WriteString(m.spinner.View())
			b.WriteString(m.styles.Active.Render(stage.String()))
		case stage < stats.Stage:
			b.WriteString("  " + m.styles.Success.Render(stage.String()))
		default:
			b.WriteString("  " + m.styles.Dim.Render(stage.String()))
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if stats.Total > 0 {
		b.WriteString(m.progressBar.ViewAs(stats.Progress))
		b.WriteString(fmt.Sprintf(" %d/%d", stats.Current, stats.Total))
		if stats.ETA > 0 {
			b.WriteString(m.styles.Label.Render(
				fmt.Sprintf("  eta %s", stats.ETA.Round(time.Second))))
		}
		b.WriteString("\n")
	}
	if stats.Message != "" {
		b.WriteString(m.styles.Label.Render(stats.Message))
		b.WriteString("\n")
	}
	if m.lastErr != "" {
		b.WriteString(m.styles.Warning.Render("last error: " + m.lastErr))
		b.WriteString("\n")
	}
	if stats.ErrorCount > 0 || stats.WarnCount > 0 {
		b.WriteString(m.styles.Dim.Render(
			fmt.Sprintf("%d errors, %d warnings", stats.ErrorCount, stats.WarnCount)))
		b.WriteString("\n")
	}

	return m.styles.Panel.Render(b.String()) + "\n"
}

func (m *ingestModel) completeView() string {
	line := fmt.Sprintf("Complete: %d passages (%d embedded) in %s",
		m.stats.Passages, m.stats.Embedded, m.stats.Duration.Round(100*time.Millisecond))
	if m.stats.Rejected > 0 {
		line += fmt.Sprintf(", %d rejected", m.stats.Rejected)
	}
	return m.styles.Success.Render(line) + "\n"
}
