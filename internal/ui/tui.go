package ui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// TUIRenderer draws progress with bubbletea.
type TUIRenderer struct {
	mu      sync.Mutex
	cfg     Config
	tracker *Tracker
	model   *passModel
	program *tea.Program
	done    chan struct{}
}

// NewTUIRenderer creates a TUI renderer. The output must be a terminal.
func NewTUIRenderer(cfg Config) (*TUIRenderer, error) {
	if !IsTTY(cfg.Output) {
		return nil, errors.New("output is not a terminal")
	}
	tracker := NewTracker()
	return &TUIRenderer{
		cfg:     cfg,
		tracker: tracker,
		model:   newPassModel(tracker, cfg.Root, StylesFor(cfg.NoColor || DetectNoColor())),
		done:    make(chan struct{}),
	}, nil
}

// Start implements Renderer.
func (r *TUIRenderer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.program != nil {
		return nil
	}

	opts := []tea.ProgramOption{tea.WithContext(ctx), tea.WithInput(nil)}
	if f, ok := r.cfg.Output.(*os.File); ok {
		opts = append(opts, tea.WithOutput(f))
	}
	r.program = tea.NewProgram(r.model, opts...)
	go func() {
		defer close(r.done)
		_, _ = r.program.Run()
	}()
	return nil
}

// UpdateProgress implements Renderer.
func (r *TUIRenderer) UpdateProgress(event ProgressEvent) {
	r.tracker.Apply(event)
	r.send(refreshMsg{})
}

// AddError implements Renderer.
func (r *TUIRenderer) AddError(event ErrorEvent) {
	r.tracker.AddError(event)
	r.send(refreshMsg{})
}

// Complete implements Renderer.
func (r *TUIRenderer) Complete(stats CompletionStats) {
	r.tracker.Apply(ProgressEvent{Stage: StageComplete})
	r.send(completeMsg(stats))
}

// Stop implements Renderer. It waits briefly for the final frame.
func (r *TUIRenderer) Stop() error {
	r.mu.Lock()
	p := r.program
	r.mu.Unlock()
	if p == nil {
		return nil
	}
	p.Quit()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
	}
	return nil
}

func (r *TUIRenderer) send(msg tea.Msg) {
	r.mu.Lock()
	p := r.program
	r.mu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

type refreshMsg struct{}
type completeMsg CompletionStats

// passModel is the bubbletea model of one indexing pass.
type passModel struct {
	tracker  *Tracker
	root     string
	styles   Styles
	spinner  spinner.Model
	bar      progress.Model
	width    int
	complete bool
	stats    CompletionStats
}

func newPassModel(tracker *Tracker, root string, styles Styles) *passModel {
	s := spinner.New()
	s.Spinner = spinner.MiniDot
	s.Style = styles.Active
	return &passModel{
		tracker: tracker,
		root:    root,
		styles:  styles,
		spinner: s,
		bar:     progress.New(progress.WithSolidFill(ColorAccent), progress.WithoutPercentage(), progress.WithWidth(40)),
		width:   80,
	}
}

// Init implements tea.Model.
func (m *passModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update implements tea.Model.
func (m *passModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = max(20, msg.Width-24)
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

// View implements tea.Model.
func (m *passModel) View() string {
	if m.complete {
		return m.summary()
	}
	snap := m.tracker.Snapshot()

	lines := []string{m.stages(snap.Stage)}
	if snap.Total > 0 {
		lines = append(lines,
			fmt.Sprintf("%s %3.0f%%", m.bar.ViewAs(snap.Fraction), snap.Fraction*100),
			m.styles.Label.Render(m.rateLine(snap)))
	} else {
		lines = append(lines, m.spinner.View()+" "+m.styles.Label.Render(snap.Stage.String()+"..."))
	}
	if snap.File != "" {
		lines = append(lines, m.styles.Pending.Render(shorten(snap.File, max(20, m.width-6))))
	}
	if snap.Warnings > 0 {
		lines = append(lines, m.styles.Warning.Render(fmt.Sprintf("%d warnings", snap.Warnings)))
	}
	if snap.Errors > 0 {
		lines = append(lines, m.styles.Error.Render(fmt.Sprintf("%d errors", snap.Errors)))
	}

	title := "amankb"
	if m.root != "" {
		title += " " + m.root
	}
	return m.styles.Title.Render(title) + "\n" + m.styles.Panel.Render(strings.Join(lines, "\n")) + "\n"
}

func (m *passModel) stages(current Stage) string {
	parts := make([]string, 0, 4)
	for _, st := range []Stage{StageScanning, StageChunking, StageEmbedding, StageIndexing} {
		switch {
		case st < current:
			parts = append(parts, m.styles.Done.Render("● "+st.Tag()))
		case st == current:
			parts = append(parts, m.styles.Active.Render(m.spinner.View()+" "+st.Tag()))
		default:
			parts = append(parts, m.styles.Pending.Render("○ "+st.Tag()))
		}
	}
	return strings.Join(parts, m.styles.Pending.Render(" > "))
}

func (m *passModel) rateLine(s Snapshot) string {
	line := fmt.Sprintf("%d / %d", s.Current, s.Total)
	if s.Rate > 0 {
		line += fmt.Sprintf("  %.0f/s", s.Rate)
	}
	if s.ETA > 0 {
		line += "  eta " + s.ETA.Round(time.Second).String()
	}
	return line
}

func (m *passModel) summary() string {
	lines := []string{
		m.styles.Done.Render("Indexing complete"),
		fmt.Sprintf("%s %d", m.styles.Label.Render("files: "), m.stats.Files),
		fmt.Sprintf("%s %d", m.styles.Label.Render("chunks:"), m.stats.Chunks),
		fmt.Sprintf("%s %s", m.styles.Label.Render("time:  "), m.stats.Duration.Round(100*time.Millisecond)),
	}
	if m.stats.Embedder.Model != "" {
		lines = append(lines, fmt.Sprintf("%s %s", m.styles.Label.Render("model: "), m.stats.Embedder.Model))
	}
	return m.styles.Panel.Render(strings.Join(lines, "\n")) + "\n"
}

// shorten keeps the tail of path within n runes.
func shorten(path string, n int) string {
	r := []rune(path)
	if len(r) <= n {
		return path
	}
	if n <= 3 {
		return "..."
	}
	return "..." + string(r[len(r)-n+3:])
}

var _ Renderer = (*TUIRenderer)(nil)
