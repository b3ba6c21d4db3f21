// cmd/catalogctl/view.go - live progress bar for long-running commands.

package main

import (
	"context"
	"fmt"
	"strings"
	"sync"

	bprogress "github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	detailStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

const maxBarWidth = 60

// reporter is handed to the work function. Calls may come from any goroutine.
type reporter struct {
	progress func(ratio float64, label string)
	detail   func(string)
}

type progressMsg struct {
	ratio float64
	label string
}

type detailMsg string

type doneMsg struct{ err error }

type progressModel struct {
	title  string
	bar    bprogress.Model
	ratio  float64
	label  string
	detail string
	done   bool
	err    error
	cancel context.CancelFunc
}

func newProgressModel(title string, cancel context.CancelFunc) progressModel {
	return progressModel{
		title:  title,
		bar:    bprogress.New(bprogress.WithDefaultGradient(), bprogress.WithWidth(maxBarWidth)),
		label:  "Preparing…",
		cancel: cancel,
	}
}

func (m progressModel) Init() tea.Cmd { return nil }

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			// the work function returns once it notices; doneMsg then quits
			m.cancel()
			m.label = "Cancelling…"
		}
	case tea.WindowSizeMsg:
		m.bar.Width = msg.Width - 4
		if m.bar.Width > maxBarWidth {
			m.bar.Width = maxBarWidth
		}
	case progressMsg:
		m.ratio = msg.ratio
		if msg.label != m.label {
			m.detail = ""
		}
		m.label = msg.label
	case detailMsg:
		m.detail = string(msg)
	case doneMsg:
		m.done = true
		m.err = msg.err
		if msg.err == nil {
			m.ratio = 1
		}
		return m, tea.Quit
	}
	return m, nil
}

func (m progressModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n")
	b.WriteString(m.bar.ViewAs(m.ratio))
	b.WriteString("\n")
	b.WriteString(labelStyle.Render(m.label))
	if m.detail != "" {
		b.WriteString(" ")
		b.WriteString(detailStyle.Render(m.detail))
	}
	b.WriteString("\n")
	if m.done {
		if m.err != nil {
			b.WriteString(errorStyle.Render("Failed: " + m.err.Error()))
		} else {
			b.WriteString(okStyle.Render("Done"))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// runWithProgress runs work while showing its progress. With plain set the
// progress is printed as lines.
func runWithProgress(ctx context.Context, title string, plain bool, work func(ctx context.Context, r reporter) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if plain {
		return work(ctx, plainReporter(title))
	}

	p := tea.NewProgram(newProgressModel(title, cancel))
	var (
		workErr error
		wg      sync.WaitGroup
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		workErr = work(ctx, reporter{
			progress: func(ratio float64, label string) { p.Send(progressMsg{ratio, label}) },
			detail:   func(s string) { p.Send(detailMsg(s)) },
		})
		p.Send(doneMsg{workErr})
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		wg.Wait()
		return fmt.Errorf("progress view: %w", err)
	}
	wg.Wait()
	return workErr
}

func plainReporter(title string) reporter {
	fmt.Println(titleStyle.Render(title))
	var (
		mu   sync.Mutex
		last string
	)
	return reporter{
		progress: func(ratio float64, label string) {
			mu.Lock()
			defer mu.Unlock()
			if label == last {
				return
			}
			last = label
			fmt.Printf("[%3d%%] %s\n", int(ratio*100+0.5), label)
		},
		detail: func(string) {},
	}
}
