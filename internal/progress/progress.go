// Package progress adapts convert.Observer to the terminal: a
// bubbletea progress bar in verbose mode, a styled one-line phase
// printer otherwise.
//
// Grounded on the teacher's internal/scraper/progress.go bubbletea
// model, scaled down from tracking many concurrent lookups to this
// CLI's one-job-at-a-time shape.
package progress

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/sargunv/cci2cia/internal/format"
)

// Update carries one step of a conversion's progress across the
// channel a Model listens on.
type Update struct {
	Phase    string
	Bytes    int64
	Total    int64
	Done     bool
	Err      error
}

// Plain is a non-interactive Observer: each phase change prints a
// styled one-line status, matching the original converter's plain
// progress narration. Use it when stdout isn't a terminal or verbose
// mode wasn't requested.
type Plain struct {
	Label string
}

func (p Plain) OnPhase(name string) {
	fmt.Fprintf(os.Stdout, "  %s %s\n", format.LabelStyle.Render(p.Label+":"), format.HeaderStyle.Render(name))
}

func (p Plain) OnBytes(int64) {}

// Bubbles drives a bubbletea progress bar over a channel of Updates,
// for --verbose runs against a real terminal. total is the byte count
// of the job being tracked (used for percentage only; exact size need
// not be known in advance beyond what the caller already computed).
type Bubbles struct {
	Label string
	Total int64

	updates chan Update
	done    chan struct{}
}

// NewBubbles starts the bubbletea program in the background and
// returns an Observer that feeds it. Call Close once the job (success
// or failure) is finished.
func NewBubbles(label string, total int64) *Bubbles {
	b := &Bubbles{
		Label:   label,
		Total:   total,
		updates: make(chan Update, 64),
		done:    make(chan struct{}),
	}
	go b.run()
	return b
}

func (b *Bubbles) OnPhase(name string) {
	b.updates <- Update{Phase: name, Total: b.Total}
}

func (b *Bubbles) OnBytes(delta int64) {
	b.updates <- Update{Bytes: delta, Total: b.Total}
}

// Close signals completion and waits for the bubbletea program to
// print its final frame and exit.
func (b *Bubbles) Close() {
	b.updates <- Update{Done: true}
	<-b.done
}

func (b *Bubbles) run() {
	defer close(b.done)
	m := newModel(b.Label, b.Total, b.updates)
	p := tea.NewProgram(m)
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "progress display error: %v\n", err)
	}
}

type model struct {
	label     string
	total     int64
	written   int64
	phase     string
	startTime time.Time
	bar       progress.Model
	updates   <-chan Update
}

func newModel(label string, total int64, updates <-chan Update) model {
	return model{
		label:     label,
		total:     total,
		startTime: time.Now(),
		bar:       progress.New(progress.WithDefaultGradient()),
		updates:   updates,
	}
}

func (m model) Init() tea.Cmd {
	return waitForUpdate(m.updates)
}

type quitMsg struct{}

func waitForUpdate(ch <-chan Update) tea.Cmd {
	return func() tea.Msg {
		u, ok := <-ch
		if !ok || u.Done {
			return quitMsg{}
		}
		return u
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case progress.FrameMsg:
		bar, cmd := m.bar.Update(msg)
		m.bar = bar.(progress.Model)
		return m, cmd

	case Update:
		if msg.Phase != "" {
			m.phase = msg.Phase
		}
		m.written += msg.Bytes
		return m, tea.Batch(waitForUpdate(m.updates))

	case quitMsg:
		return m, tea.Quit
	}
	return m, nil
}

func (m model) View() string {
	pct := 0.0
	if m.total > 0 {
		pct = float64(m.written) / float64(m.total)
	}
	elapsed := time.Since(m.startTime).Round(time.Second)
	return fmt.Sprintf(" %s %s\n %s  %s\n",
		format.LabelStyle.Render(m.label+":"), format.HeaderStyle.Render(m.phase),
		m.bar.ViewAs(pct), format.DimStyle.Render(elapsed.String()))
}
