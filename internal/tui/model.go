package tui

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/nats-io/nats.go"

	"github.com/inkvox/inkvox/internal/bus"
	"github.com/inkvox/inkvox/internal/config"
	"github.com/inkvox/inkvox/internal/controller"
	"github.com/inkvox/inkvox/internal/protocol"
)

const maxLogLines = 200

// Model drives the narration front-end. All controller calls happen inside
// tea.Cmd closures; bus notifications arrive as messages.
type Model struct {
	cfg     config.Config
	session *controller.Session
	engine  string

	width  int
	height int
	ready  bool

	pathInput textinput.Model
	bar       progress.Model
	spin      spinner.Model
	vp        viewport.Model

	state      string
	chunkDone  int
	chunkCount int
	position   time.Duration
	total      time.Duration
	lastErr    string
	logLines   []string
}

func NewModel(cfg config.Config, sess *controller.Session, engineName string) Model {
	ti := textinput.New()
	ti.Placeholder = "path to a .pdf, .txt or .md document"
	ti.CharLimit = 512
	ti.Width = 60

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(colorAccent)

	return Model{
		cfg:       cfg,
		session:   sess,
		engine:    engineName,
		pathInput: ti,
		bar:       progress.New(progress.WithDefaultGradient()),
		spin:      sp,
		state:     string(sess.State()),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, tea.EnterAltScreen)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		headerHeight := 6
		footerHeight := 3
		vpHeight := msg.Height - headerHeight - footerHeight
		if vpHeight < 3 {
			vpHeight = 3
		}
		if !m.ready {
			m.vp = viewport.New(msg.Width-4, vpHeight)
			m.ready = true
		} else {
			m.vp.Width = msg.Width - 4
			m.vp.Height = vpHeight
		}
		m.bar.Width = msg.Width - 10
		m.refreshLog()

	case spinner.TickMsg:
		if m.state == string(controller.StateConverting) {
			m.spin, cmd = m.spin.Update(msg)
			cmds = append(cmds, cmd)
		}

	case stateChangedMsg:
		m.state = msg.To
		if msg.To == string(controller.StateConverting) {
			cmds = append(cmds, m.spin.Tick)
		}
		line := fmt.Sprintf("state %s -> %s", msg.From, msg.To)
		if msg.Error != "" {
			m.lastErr = msg.Error
			line += ": " + msg.Error
		}
		if msg.To == string(controller.StateIdle) || msg.To == string(controller.StateConverting) {
			m.chunkDone = 0
			m.chunkCount = 0
			m.position = 0
			m.total = 0
		}
		m.appendLog(line)

	case extractProgressMsg:
		if msg.Skipped {
			m.appendLog(fmt.Sprintf("page %d skipped", msg.Page))
		} else {
			m.appendLog(fmt.Sprintf("page %d extracted (%d chars)", msg.Page, msg.Chars))
		}

	case chunkProgressMsg:
		m.chunkDone = msg.ChunkIndex + 1
		m.chunkCount = msg.ChunkCount
		line := fmt.Sprintf("chunk %d/%d synthesized (%s)", m.chunkDone, m.chunkCount, msg.Duration.Round(time.Millisecond))
		if msg.Retries > 0 {
			line += fmt.Sprintf(" after %d retries", msg.Retries)
		}
		m.appendLog(line)

	case playbackStatusMsg:
		m.position = msg.Position
		m.total = msg.Total

	case opResultMsg:
		if msg.err != nil {
			m.lastErr = msg.err.Error()
			m.appendLog(fmt.Sprintf("%s: %s", msg.op, msg.err))
		}
	}

	m.vp, cmd = m.vp.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.pathInput.Focused() {
		switch msg.Type {
		case tea.KeyEnter:
			path := strings.TrimSpace(m.pathInput.Value())
			m.pathInput.Blur()
			if path == "" {
				return m, nil
			}
			return m, m.call("convert", func() error { return m.session.Convert(path) })
		case tea.KeyEsc:
			m.pathInput.Blur()
			return m, nil
		case tea.KeyCtrlC:
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.pathInput, cmd = m.pathInput.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit

	case "o":
		m.pathInput.Focus()
		return m, textinput.Blink

	case " ":
		switch controller.State(m.state) {
		case controller.StateReady, controller.StateStopped:
			return m, m.call("play", m.session.Play)
		case controller.StatePlaying:
			return m, m.call("pause", m.session.Pause)
		case controller.StatePaused:
			return m, m.call("resume", m.session.Resume)
		}
		return m, nil

	case "s":
		return m, m.call("stop", m.session.Stop)

	case "e":
		out := m.exportPath()
		if out == "" {
			return m, nil
		}
		return m, m.call("export", func() error { return m.session.Export(out) })

	case "c":
		return m, m.call("cancel", m.session.Cancel)

	case "a":
		return m, m.call("acknowledge", m.session.Acknowledge)
	}

	return m, nil
}

// call wraps a controller operation in a command so key handling never blocks.
func (m Model) call(op string, fn func() error) tea.Cmd {
	return func() tea.Msg {
		return opResultMsg{op: op, err: fn()}
	}
}

func (m Model) exportPath() string {
	src := m.session.SourcePath()
	if src == "" {
		return ""
	}
	return strings.TrimSuffix(src, filepath.Ext(src)) + "." + m.cfg.Export.Format
}

func (m *Model) appendLog(line string) {
	stamped := time.Now().Format("15:04:05") + " " + line
	m.logLines = append(m.logLines, stamped)
	if len(m.logLines) > maxLogLines {
		m.logLines = m.logLines[len(m.logLines)-maxLogLines:]
	}
	m.refreshLog()
}

func (m *Model) refreshLog() {
	m.vp.SetContent(strings.Join(m.logLines, "\n"))
	m.vp.GotoBottom()
}

func (m Model) View() string {
	if !m.ready {
		return "starting..."
	}

	var b strings.Builder

	title := titleStyle.Render("inkvox")
	engine := labelStyle.Render("engine: " + m.engine)
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Center, title, "   ", renderState(m.state), "   ", engine))
	b.WriteString("\n\n")

	if m.pathInput.Focused() {
		b.WriteString(m.pathInput.View())
	} else if src := m.session.SourcePath(); src != "" {
		b.WriteString(labelStyle.Render("document: ") + src)
	} else {
		b.WriteString(labelStyle.Render("press o to open a document"))
	}
	b.WriteString("\n\n")

	b.WriteString(m.renderProgress())
	b.WriteString("\n")

	b.WriteString(logPanelStyle.Width(m.width - 2).Render(m.vp.View()))
	b.WriteString("\n")

	if m.lastErr != "" {
		b.WriteString(errorStyle.Render("error: "+m.lastErr) + "\n")
	}
	b.WriteString(helpStyle.Render("o open  enter convert  space play/pause  s stop  e export  c cancel  a clear error  q quit"))

	return b.String()
}

func (m Model) renderProgress() string {
	switch controller.State(m.state) {
	case controller.StateConverting:
		if m.chunkCount == 0 {
			return m.spin.View() + " extracting text..."
		}
		pct := float64(m.chunkDone) / float64(m.chunkCount)
		return fmt.Sprintf("%s %d/%d  %s", m.spin.View(), m.chunkDone, m.chunkCount, m.bar.ViewAs(pct))
	case controller.StatePlaying, controller.StatePaused:
		if m.total <= 0 {
			return ""
		}
		pct := float64(m.position) / float64(m.total)
		return fmt.Sprintf("%s / %s  %s",
			m.position.Round(time.Second), m.total.Round(time.Second), m.bar.ViewAs(pct))
	}
	return ""
}

// Run starts the front-end and forwards bus notifications into it. It blocks
// until the user quits.
func Run(cfg config.Config, sess *controller.Session, busClient *bus.Client, engineName string) error {
	p := tea.NewProgram(NewModel(cfg, sess, engineName), tea.WithAltScreen())

	var subs []*nats.Subscription
	if busClient != nil {
		forward := func(subject string, decode func([]byte) (tea.Msg, error)) error {
			sub, err := busClient.Conn().Subscribe(subject, func(msg *nats.Msg) {
				m, err := decode(msg.Data)
				if err != nil {
					return
				}
				p.Send(m)
			})
			if err != nil {
				return err
			}
			subs = append(subs, sub)
			return nil
		}

		decoders := map[string]func([]byte) (tea.Msg, error){
			protocol.SubjectStateChanged: func(data []byte) (tea.Msg, error) {
				var v protocol.StateChange
				err := json.Unmarshal(data, &v)
				return stateChangedMsg(v), err
			},
			protocol.SubjectChunkProgress: func(data []byte) (tea.Msg, error) {
				var v protocol.ChunkProgress
				err := json.Unmarshal(data, &v)
				return chunkProgressMsg(v), err
			},
			protocol.SubjectExtractProgress: func(data []byte) (tea.Msg, error) {
				var v protocol.ExtractProgress
				err := json.Unmarshal(data, &v)
				return extractProgressMsg(v), err
			},
			protocol.SubjectPlaybackStatus: func(data []byte) (tea.Msg, error) {
				var v protocol.PlaybackStatus
				err := json.Unmarshal(data, &v)
				return playbackStatusMsg(v), err
			},
		}
		for subject, decode := range decoders {
			if err := forward(subject, decode); err != nil {
				return fmt.Errorf("subscribe %s: %w", subject, err)
			}
		}
	}
	defer func() {
		for _, sub := range subs {
			_ = sub.Drain()
		}
	}()

	_, err := p.Run()
	return err
}
