package tui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/ssdpscan/internal/discovery"
	"github.com/muurk/ssdpscan/internal/transport"
)

const tickInterval = 250 * time.Millisecond

// Controller is the part of discovery.Client the watch screen drives.
type Controller interface {
	StartListeningFor(timeout time.Duration)
	StopListening()
}

// Messages delivered to the model
type (
	stopMsg     struct{}
	tickMsg     time.Time
	responseMsg struct{ response *discovery.Response }
	eventMsg    struct{ event discovery.Event }
)

// responseItem wraps a Response for use with bubbles/list
type responseItem struct {
	response *discovery.Response
}

// FilterValue implements list.Item
func (i responseItem) FilterValue() string {
	return i.response.Target + " " + i.response.Location + " " + i.response.USN
}

// Title returns the search target or notification type
func (i responseItem) Title() string {
	if i.response.Target == "" {
		return i.response.StartLine
	}
	return i.response.Target
}

// Description returns where the responder lives and what it runs
func (i responseItem) Description() string {
	parts := []string{i.response.Kind.String()}
	if i.response.Location != "" {
		parts = append(parts, i.response.Location)
	}
	if i.response.Server != "" {
		parts = append(parts, i.response.Server)
	}
	return strings.Join(parts, " • ")
}

// WatchModel is the interactive discovery screen. Every scan is a forced
// restart of the client's session with the configured timeout. The screen
// is reset when the new session's started event arrives, and events from
// any other session are ignored.
type WatchModel struct {
	controller Controller
	collector  *discovery.Collector
	timeout    time.Duration
	group      string
	sessionID  string

	Listening  bool
	Stopping   bool
	SearchSent bool
	State      transport.State
	Err        error
	ScanStart  time.Time
	Now        time.Time

	Width    int
	Height   int
	List     list.Model
	Spinner  spinner.Model
	Progress progress.Model
	Help     help.Model
	Keys     watchKeyMap
}

// NewWatchModel creates the watch screen. collector must be reset by whoever
// forwards client events, before the EventStarted of each session is sent.
func NewWatchModel(controller Controller, collector *discovery.Collector, timeout time.Duration, group string) WatchModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	bar := progress.New(progress.WithDefaultGradient())
	bar.Width = 40

	delegate := list.NewDefaultDelegate()
	responses := list.New([]list.Item{}, delegate, 0, 0)
	responses.Title = "Responders"
	responses.SetShowStatusBar(true)
	responses.SetFilteringEnabled(false)
	responses.SetShowHelp(false)
	responses.Styles.Title = TitleStyle

	return WatchModel{
		controller: controller,
		collector:  collector,
		timeout:    timeout,
		group:      group,
		List:       responses,
		Spinner:    s,
		Progress:   bar,
		Help:       help.New(),
		Keys:       newWatchKeyMap(),
	}
}

// Init starts the first scan
func (m WatchModel) Init() tea.Cmd {
	return tea.Batch(
		m.startScan(),
		m.Spinner.Tick,
		tick(),
	)
}

func (m WatchModel) startScan() tea.Cmd {
	controller, timeout := m.controller, m.timeout
	return func() tea.Msg {
		controller.StartListeningFor(timeout)
		return nil
	}
}

func (m WatchModel) stopScan() tea.Cmd {
	controller := m.controller
	return func() tea.Msg {
		controller.StopListening()
		return stopMsg{}
	}
}

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update handles messages and updates the model
func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.updateKeys(msg)

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.List.SetSize(max(msg.Width-6, 20), max(msg.Height-12, 5))
		return m, nil

	case stopMsg:
		m.Stopping = true
		return m, nil

	case responseMsg:
		cmd = m.List.InsertItem(len(m.List.Items()), responseItem{response: msg.response})
		return m, cmd

	case eventMsg:
		m.applyEvent(msg.event)
		return m, nil

	case tickMsg:
		m.Now = time.Time(msg)
		return m, tick()

	case spinner.TickMsg:
		m.Spinner, cmd = m.Spinner.Update(msg)
		return m, cmd
	}

	m.List, cmd = m.List.Update(msg)
	return m, cmd
}

func (m *WatchModel) applyEvent(ev discovery.Event) {
	switch ev.Kind {
	case discovery.EventStateChanged, discovery.EventSearchSent,
		discovery.EventSendFailed, discovery.EventStopped:
		if ev.SessionID != m.sessionID {
			return
		}
	}

	switch ev.Kind {
	case discovery.EventStarted:
		m.sessionID = ev.SessionID
		m.List.SetItems([]list.Item{})
		m.Listening = true
		m.Stopping = false
		m.SearchSent = false
		m.State = transport.StateSetup
		m.Err = nil
		m.ScanStart = ev.Time
		if m.ScanStart.IsZero() {
			m.ScanStart = time.Now()
		}
		m.Now = m.ScanStart
	case discovery.EventStateChanged:
		m.State = ev.State
		if ev.State == transport.StateFailed || ev.State == transport.StateWaiting {
			m.Err = ev.Err
		} else if ev.State == transport.StateReady {
			m.Err = nil
		}
	case discovery.EventSearchSent:
		m.SearchSent = true
	case discovery.EventSendFailed:
		m.Err = ev.Err
	case discovery.EventJoinFailed:
		m.Listening = false
		m.Err = ev.Err
	case discovery.EventRejected:
		m.Err = ev.Err
	case discovery.EventStopped:
		m.Listening = false
		m.Stopping = false
	}
}

func (m WatchModel) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.Keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.Keys.Rescan):
		return m, m.startScan()

	case key.Matches(msg, m.Keys.Stop):
		if !m.Listening {
			return m, nil
		}
		return m, m.stopScan()
	}

	var cmd tea.Cmd
	m.List, cmd = m.List.Update(msg)
	return m, cmd
}

// View renders the watch screen
func (m WatchModel) View() string {
	width := m.Width
	if width == 0 {
		width = MinTerminalWidth
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		"",
		m.renderStatus(),
		"",
		m.renderResponses(),
	)

	return renderContainer(buildHeaderContent(m.group), content, m.Help.View(m.Keys), width, m.Height)
}

func (m WatchModel) renderStatus() string {
	var lines []string

	switch {
	case m.Listening:
		elapsed := m.Now.Sub(m.ScanStart)
		if elapsed < 0 {
			elapsed = 0
		}
		percent := 1.0
		if m.timeout > 0 {
			percent = min(float64(elapsed)/float64(m.timeout), 1.0)
		}

		status := fmt.Sprintf("%s Listening (%s)", m.Spinner.View(), m.State)
		if m.Stopping {
			status = fmt.Sprintf("%s Stopping", m.Spinner.View())
		} else if m.SearchSent {
			status += ", M-SEARCH sent"
		}
		lines = append(lines,
			StatusStyle.Render(status),
			StatusStyle.Render(m.Progress.ViewAs(percent)),
			StatusStyle.Render(SubtitleStyle.Render(fmt.Sprintf("Elapsed: %ds of %ds",
				int(elapsed.Seconds()), int(m.timeout.Seconds())))),
		)
	default:
		lines = append(lines, StatusStyle.Render(fmt.Sprintf("Stopped. %d responders, %d unreadable messages",
			m.collector.Len(), m.collector.Invalid())))
	}

	if m.Err != nil {
		lines = append(lines, ErrorStyle.Render(fmt.Sprintf("Error: %v", m.Err)))
	}

	return strings.Join(lines, "\n")
}

func (m WatchModel) renderResponses() string {
	if len(m.List.Items()) == 0 {
		if m.Listening {
			return SubtitleStyle.Render("  Waiting for responses...")
		}
		return WarningStyle.Render("⚠ No responders found (press r to rescan)")
	}
	return m.List.View()
}

// relay forwards client callbacks to a running program.
type relay struct {
	mu      sync.Mutex
	program *tea.Program
}

func (r *relay) set(p *tea.Program) {
	r.mu.Lock()
	r.program = p
	r.mu.Unlock()
}

func (r *relay) send(msg tea.Msg) {
	r.mu.Lock()
	p := r.program
	r.mu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

// forwardEvent returns the client event handler for the watch screen. It
// runs on the client's queue, in order with message dispatch, so the
// collector is emptied between the last datagram of one session and the
// first of the next.
func forwardEvent(collector *discovery.Collector, send func(tea.Msg)) func(discovery.Event) {
	return func(ev discovery.Event) {
		if ev.Kind == discovery.EventStarted {
			collector.Reset()
		}
		send(eventMsg{event: ev})
	}
}

// WatchConfig configures RunWatch.
type WatchConfig struct {
	Timeout       time.Duration
	Message       string // empty means discovery.DefaultSearchMessage
	Group         string // shown in the header
	ClientOptions []discovery.Option
}

// RunWatch runs the watch screen until the user quits.
func RunWatch(cfg WatchConfig) error {
	r := &relay{}

	collector := discovery.NewCollector(func(resp *discovery.Response) {
		r.send(responseMsg{response: resp})
	})

	opts := append(append([]discovery.Option(nil), cfg.ClientOptions...),
		discovery.WithEventHandler(forwardEvent(collector, r.send)),
	)
	client := discovery.NewClient(opts...)
	defer func() {
		client.Close()
		<-client.Done()
	}()

	if cfg.Message != "" {
		client.SetSearchMessage(cfg.Message)
	}
	client.SetMessageHandler(collector.Handle)

	p := tea.NewProgram(NewWatchModel(client, collector, cfg.Timeout, cfg.Group), tea.WithAltScreen())
	r.set(p)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("watch screen failed: %w", err)
	}
	return nil
}
