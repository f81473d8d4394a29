package cli

import (
	"context"
	"fmt"
	"strings"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"
	"github.com/raphaelgruber/csbot-go/internal/models"
	"github.com/raphaelgruber/csbot-go/internal/service"
)

// Theme holds the color scheme for CLI output.
type Theme struct {
	Status     lipgloss.Color
	Success    lipgloss.Color
	Error      lipgloss.Color
	Hint       lipgloss.Color
	ProgressBg lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	Status:     lipgloss.Color("#5FAFD7"), // light blue
	Success:    lipgloss.Color("#00D787"), // green
	Error:      lipgloss.Color("#FF005F"), // red
	Hint:       lipgloss.Color("#6C6C6C"), // dim gray
	ProgressBg: lipgloss.Color("#3A3A3A"), // dark gray
}

func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) completedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// ingestProgressMsg reports how many FAQ inputs have been handled.
type ingestProgressMsg struct {
	done  int
	total int
}

// ingestDoneMsg carries the outcome of the ingestion run.
type ingestDoneMsg struct {
	result *service.IngestResult
	err    error
}

// ingestModel is the bubbletea model for FAQ ingestion progress.
type ingestModel struct {
	cancel   context.CancelFunc
	progress progress.Model
	theme    Theme
	done     int
	total    int
	result   *service.IngestResult
	finished bool
	quitting bool
	err      error
}

func newIngestModel(total int, cancel context.CancelFunc) ingestModel {
	prog := progress.New(
		progress.WithDefaultBlend(),
		progress.WithWidth(40),
	)
	return ingestModel{
		cancel:   cancel,
		progress: prog,
		theme:    defaultTheme,
		total:    total,
	}
}

func (m ingestModel) Init() tea.Cmd {
	return m.progress.Init()
}

func (m ingestModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			// Stop the run; the final ingestDoneMsg still arrives.
			m.quitting = true
			m.cancel()
			return m, nil
		}

	case ingestProgressMsg:
		m.done = msg.done
		m.total = msg.total
		return m, nil

	case ingestDoneMsg:
		m.result = msg.result
		m.err = msg.err
		m.finished = true
		return m, tea.Quit

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m ingestModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

func (m ingestModel) renderContent() string {
	if m.finished {
		return renderIngestResult(m.theme, m.result, m.err, m.quitting)
	}

	var pct float64
	if m.total > 0 {
		pct = float64(m.done) / float64(m.total)
	}

	status := m.theme.statusStyle().Render("[embedding]")
	if m.quitting {
		status = m.theme.statusStyle().Render("[stopping]")
	}
	counts := fmt.Sprintf("%d/%d FAQs", m.done, m.total)
	hint := m.theme.hintStyle().Render("Press q to stop")

	return fmt.Sprintf("%s %s %s\n%s\n", status, m.progress.ViewAs(pct), counts, hint)
}

// renderIngestResult formats the end of an ingestion run for both the
// interactive and the plain output.
func renderIngestResult(theme Theme, r *service.IngestResult, err error, stopped bool) string {
	var sb strings.Builder
	switch {
	case stopped:
		sb.WriteString(theme.hintStyle().Render("Stopped.") + "\n")
	case err != nil:
		sb.WriteString(theme.errorStyle().Render(fmt.Sprintf("✗ Ingestion failed: %s", err)) + "\n")
	default:
		sb.WriteString(theme.completedStyle().Render("✓ Completed") + "\n")
	}
	if r == nil {
		return sb.String()
	}

	fmt.Fprintf(&sb, "\n  FAQs stored:   %d\n", r.Stored)
	fmt.Fprintf(&sb, "  FAQs skipped:  %d\n", r.Skipped)
	if len(r.Errors) > 0 {
		sb.WriteString(theme.errorStyle().Render(fmt.Sprintf("\nWarnings (%d):", len(r.Errors))) + "\n")
		for _, e := range r.Errors {
			fmt.Fprintf(&sb, "  • %s\n", e)
		}
	}
	return sb.String()
}

// runIngestProgress ingests inputs while showing an interactive progress bar.
// Pressing q or Ctrl+C cancels the remaining batches; entries already
// stored are kept.
func runIngestProgress(ctx context.Context, svc *service.FAQService, inputs []models.FAQInput) (*service.IngestResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(newIngestModel(len(inputs), cancel))

	go func() {
		result, err := svc.Ingest(ctx, inputs, func(done, total int) {
			p.Send(ingestProgressMsg{done: done, total: total})
		})
		p.Send(ingestDoneMsg{result: result, err: err})
	}()

	finalModel, err := p.Run()
	if err != nil {
		return nil, fmt.Errorf("progress UI error: %w", err)
	}

	m, ok := finalModel.(ingestModel)
	if !ok {
		return nil, nil
	}
	if m.quitting {
		return m.result, nil
	}
	return m.result, m.err
}
