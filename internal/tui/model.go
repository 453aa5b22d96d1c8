// Package tui is an interactive console for asking questions of a scope.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/NimbleMarkets/ntcharts/sparkline"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/fyrsmithlabs/hierctx/internal/hierarchy"
	"github.com/fyrsmithlabs/hierctx/internal/retrieval"
)

const (
	sparklineWidth  = 30
	sparklineHeight = 1
	historySize     = 30
	requestTimeout  = 2 * time.Minute

	// header, sparkline, input and footer lines
	chromeHeight = 6
)

// Asker answers questions for a scope.
type Asker interface {
	RetrieveK(ctx context.Context, scope hierarchy.Scope, question string, k int) (*retrieval.OrderedContext, error)
	Chat(ctx context.Context, req retrieval.ChatRequest) (*retrieval.ChatResponse, error)
}

// Options configures the console.
type Options struct {
	Scope hierarchy.Scope

	// K is the number of chunks per level. Zero uses the service default.
	K int

	// Chat answers with the language model. Without it the console shows
	// the retrieved context only.
	Chat bool
}

// Model is the bubbletea model of the console.
type Model struct {
	asker Asker
	opts  Options
	ctx   context.Context

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model

	transcript strings.Builder
	history    []retrieval.Turn
	latencies  []float64
	busy       bool
	err        error
	ready      bool
	quitting   bool
}

type answerMsg struct {
	question string
	context  *retrieval.OrderedContext
	answer   string
	history  []retrieval.Turn
	elapsed  time.Duration
}

type errMsg struct{ err error }

// NewModel creates the console model.
func NewModel(ctx context.Context, asker Asker, opts Options) *Model {
	ti := textinput.New()
	ti.Placeholder = "Ask a question"
	ti.Prompt = "› "
	ti.CharLimit = 2000
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = sparklineStyle

	return &Model{
		asker:    asker,
		opts:     opts,
		ctx:      ctx,
		input:    ti,
		viewport: viewport.New(80, 20),
		spinner:  sp,
	}
}

// Run starts the console and blocks until the user quits.
func Run(ctx context.Context, asker Asker, opts Options) error {
	if err := opts.Scope.Validate(); err != nil {
		return err
	}
	_, err := tea.NewProgram(NewModel(ctx, asker, opts), tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-chromeHeight, 3)
		m.input.Width = max(msg.Width-4, 10)
		m.ready = true
		m.viewport.SetContent(m.transcript.String())

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.quitting = true
			return m, tea.Quit
		case tea.KeyCtrlL:
			m.transcript.Reset()
			m.history = nil
			m.err = nil
			m.viewport.SetContent("")
			return m, nil
		case tea.KeyEnter:
			question := strings.TrimSpace(m.input.Value())
			if question == "" || m.busy {
				return m, nil
			}
			m.input.SetValue("")
			m.busy = true
			m.err = nil
			return m, tea.Batch(m.ask(question), m.spinner.Tick)
		}

	case answerMsg:
		m.busy = false
		m.history = msg.history
		m.latencies = appendToHistory(m.latencies, float64(msg.elapsed.Milliseconds()))
		m.appendExchange(msg)
		return m, nil

	case errMsg:
		m.busy = false
		m.err = msg.err
		return m, nil

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// ask runs one question against the service.
func (m *Model) ask(question string) tea.Cmd {
	history := m.history
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(m.ctx, requestTimeout)
		defer cancel()

		start := time.Now()
		if !m.opts.Chat {
			oc, err := m.asker.RetrieveK(ctx, m.opts.Scope, question, m.opts.K)
			if err != nil {
				return errMsg{err}
			}
			return answerMsg{question: question, context: oc, history: history, elapsed: time.Since(start)}
		}

		resp, err := m.asker.Chat(ctx, retrieval.ChatRequest{
			Scope:    m.opts.Scope,
			Question: question,
			History:  history,
		})
		if err != nil {
			return errMsg{err}
		}
		return answerMsg{
			question: question,
			context:  resp.Context,
			answer:   resp.Answer,
			history:  resp.History,
			elapsed:  time.Since(start),
		}
	}
}

func (m *Model) appendExchange(msg answerMsg) {
	if m.transcript.Len() > 0 {
		m.transcript.WriteString("\n")
	}
	m.transcript.WriteString(questionStyle.Render("Q: "+msg.question) + "  " + dimStyle.Render(FormatLatency(msg.elapsed)) + "\n")
	if m.opts.Chat {
		m.transcript.WriteString(msg.answer + "\n")
		if !msg.context.Empty() {
			m.transcript.WriteString(dimStyle.Render(fmt.Sprintf("(%d chunks from %d levels)", msg.context.Len(), len(msg.context.Sections))) + "\n")
		}
	} else {
		m.transcript.WriteString(RenderContext(msg.context))
	}
	m.viewport.SetContent(m.transcript.String())
	m.viewport.GotoBottom()
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	mode := "context"
	if m.opts.Chat {
		mode = "chat"
	}
	b.WriteString(headerStyle.Render(" hierctx ") + "  " +
		labelStyle.Render(m.opts.Scope.HierarchyKey()) + "  " +
		dimStyle.Render(mode) + "\n")

	b.WriteString(m.viewport.View() + "\n")

	b.WriteString(labelStyle.Render("latency ") + createSparkline(m.latencies))
	if n := len(m.latencies); n > 0 {
		b.WriteString(" " + dimStyle.Render(FormatLatency(time.Duration(m.latencies[n-1])*time.Millisecond)))
	}
	b.WriteString("\n")

	switch {
	case m.busy:
		b.WriteString(m.spinner.View() + " " + dimStyle.Render("searching...") + "\n")
	case m.err != nil:
		b.WriteString(errorStyle.Render("error: "+m.err.Error()) + "\n")
	default:
		b.WriteString("\n")
	}

	b.WriteString(m.input.View() + "\n")
	b.WriteString(footerStyle.Render("[enter] ask  [ctrl+l] clear  [esc] quit"))
	return b.String()
}

// appendToHistory appends a value to history, maintaining max size
func appendToHistory(history []float64, value float64) []float64 {
	history = append(history, value)
	if len(history) > historySize {
		history = history[1:]
	}
	return history
}

func createSparkline(data []float64) string {
	if len(data) == 0 {
		return dimStyle.Render(fmt.Sprintf("%-*s", sparklineWidth, "no data"))
	}
	spark := sparkline.New(sparklineWidth, sparklineHeight)
	spark.PushAll(data)
	spark.Draw()
	return sparklineStyle.Render(spark.View())
}
