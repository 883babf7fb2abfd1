// Package tui provides a Bubble Tea terminal user interface for
// soundcloud-offline: log in, browse liked tracks and download them.
package tui

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"github.com/handiism/soundcloud-offline/internal/api"
	"github.com/handiism/soundcloud-offline/internal/app"
	"github.com/handiism/soundcloud-offline/internal/auth"
	"github.com/handiism/soundcloud-offline/internal/common"
	"github.com/handiism/soundcloud-offline/internal/download"
	"github.com/handiism/soundcloud-offline/internal/logging"
	"github.com/handiism/soundcloud-offline/internal/model"
)

// State represents the current UI state.
type State int

const (
	StateLoading State = iota
	StateLogin
	StateBrowse
	StateError
)

// LogEntry represents a log message in the UI.
type LogEntry struct {
	Message string
	Level   download.Level
}

const maxLogs = 8

// Model is the Bubble Tea model for the TUI.
type Model struct {
	state     State
	textInput textinput.Model
	spinner   spinner.Model
	progress  progress.Model
	app       *app.App
	logs      []LogEntry
	err       error

	authURL  string
	page     api.Page[*model.Track]
	selected int
	loading  bool
	verbose  bool

	ctx    context.Context
	cancel context.CancelFunc

	events      <-chan download.Event
	unsubscribe func()

	width  int
	height int
}

// NewModel creates a new TUI model on top of a.
func NewModel(a *app.App) Model {
	ti := textinput.New()
	ti.Placeholder = "authorization code"
	ti.CharLimit = 500
	ti.Width = 60

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5500"))

	prog := progress.New(progress.WithDefaultGradient())
	prog.Width = 50

	ctx, cancel := context.WithCancel(logging.WithContext(context.Background(), a.Logger.With("component", "tui")))
	events, unsubscribe := a.Downloads.Subscribe()

	return Model{
		state:       StateLoading,
		textInput:   ti,
		spinner:     sp,
		progress:    prog,
		app:         a,
		ctx:         ctx,
		cancel:      cancel,
		events:      events,
		unsubscribe: unsubscribe,
	}
}

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.initialize(), m.waitForEvent(), m.tickProgress())
}

// Message types
type (
	// initDoneMsg is sent once reconciliation and the login check finish.
	initDoneMsg struct {
		authState auth.State
		page      api.Page[*model.Track]
		warn      error
		err       error
	}

	// loginDoneMsg is sent when the authorization code was exchanged.
	loginDoneMsg struct {
		page api.Page[*model.Track]
		err  error
	}

	// pageMsg carries the next page of likes.
	pageMsg struct {
		page api.Page[*model.Track]
		err  error
	}

	// eventMsg forwards one download manager event.
	eventMsg struct {
		event download.Event
	}

	// actionDoneMsg reports the outcome of a user action on a track.
	actionDoneMsg struct {
		message string
		err     error
	}

	// tickMsg is for periodic progress updates.
	tickMsg struct{}
)

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.progress.Width = min(max(msg.Width-20, 20), 80)
		return m, nil

	case tea.KeyMsg:
		model, cmd, handled := m.handleKey(msg)
		if handled {
			return model, cmd
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case initDoneMsg:
		if msg.warn != nil {
			m.addLog(LogEntry{Message: msg.warn.Error(), Level: download.LevelWarning})
		}
		switch {
		case msg.err != nil:
			m.state, m.err = StateError, msg.err
		case msg.authState == auth.StateUnauthenticated:
			m.enterLogin()
		default:
			m.state = StateBrowse
			m.page = msg.page
		}

	case loginDoneMsg:
		m.loading = false
		if msg.err != nil {
			m.addLog(LogEntry{Message: "Login failed: " + msg.err.Error(), Level: download.LevelError})
			break
		}
		m.textInput.Blur()
		m.state = StateBrowse
		m.page = msg.page
		m.addLog(LogEntry{Message: "Logged in", Level: download.LevelSuccess})

	case pageMsg:
		m.loading = false
		if msg.err != nil {
			m.addLog(LogEntry{Message: "Loading tracks failed: " + msg.err.Error(), Level: download.LevelError})
			if errors.Is(msg.err, common.ErrAuthRequired) {
				m.enterLogin()
			}
			break
		}
		m.page = m.page.Merge(msg.page)

	case eventMsg:
		m.addEvent(msg.event)
		cmds = append(cmds, m.waitForEvent())

	case actionDoneMsg:
		if msg.err != nil {
			m.addLog(LogEntry{Message: msg.err.Error(), Level: download.LevelError})
			if errors.Is(msg.err, common.ErrAuthRequired) {
				m.enterLogin()
			}
		} else if msg.message != "" {
			m.addLog(LogEntry{Message: msg.message, Level: download.LevelInfo})
		}

	case tickMsg:
		if track := m.current(); track != nil {
			if p, ok := m.app.Downloads.Progress(track.ID); ok {
				cmds = append(cmds, m.progress.SetPercent(p))
			}
		}
		cmds = append(cmds, m.tickProgress())

	case progress.FrameMsg:
		progressModel, cmd := m.progress.Update(msg)
		m.progress = progressModel.(progress.Model)
		cmds = append(cmds, cmd)
	}

	if m.state == StateLogin {
		var cmd tea.Cmd
		m.textInput, cmd = m.textInput.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd, bool) {
	switch msg.String() {
	case "ctrl+c":
		m.shutdown()
		return m, tea.Quit, true
	}

	switch m.state {
	case StateLogin:
		switch msg.String() {
		case "esc":
			m.shutdown()
			return m, tea.Quit, true
		case "enter":
			if code := m.textInput.Value(); code != "" && !m.loading {
				m.loading = true
				return m, m.login(code), true
			}
		}

	case StateBrowse:
		switch msg.String() {
		case "q", "esc":
			m.shutdown()
			return m, tea.Quit, true
		case "up", "k":
			m.selected--
		case "down", "j":
			m.selected++
			if m.selected >= len(m.page.Items) && m.page.HasNextPage() && !m.loading {
				m.loading = true
				m.selected = m.selectedIndex()
				return m, m.nextPage(), true
			}
		case "enter", "d":
			if track := m.current(); track != nil {
				return m, m.startDownload(track), true
			}
		case "a":
			return m, m.downloadAll(), true
		case "c":
			if track := m.current(); track != nil {
				return m, m.cancelDownload(track.ID), true
			}
		case "x":
			if track := m.current(); track != nil {
				return m, m.removeArtifact(track.ID), true
			}
		case "n":
			if m.page.HasNextPage() && !m.loading {
				m.loading = true
				return m, m.nextPage(), true
			}
		case "v":
			m.verbose = !m.verbose
		case "L":
			return m, m.logout(), true
		}
		m.selected = m.selectedIndex()
		return m, nil, true

	case StateError:
		switch msg.String() {
		case "q", "esc":
			m.shutdown()
			return m, tea.Quit, true
		}
	}
	return m, nil, false
}

// selectedIndex clamps the selection to the tracks currently loaded.
func (m Model) selectedIndex() int {
	if len(m.page.Items) == 0 {
		return 0
	}
	return min(max(m.selected, 0), len(m.page.Items)-1)
}

func (m Model) current() *model.Track {
	if len(m.page.Items) == 0 {
		return nil
	}
	return m.page.Items[m.selectedIndex()]
}

func (m *Model) enterLogin() {
	m.state = StateLogin
	m.textInput.SetValue("")
	m.textInput.Focus()
	if u, err := m.app.Auth.AuthorizationURL(uuid.NewString()); err == nil {
		m.authURL = u
	}
}

func (m *Model) addEvent(ev download.Event) {
	if ev.Message == "" {
		return
	}
	if ev.Level == download.LevelVerbose && !m.verbose {
		return
	}
	m.addLog(LogEntry{Message: ev.Message, Level: ev.Level})
}

func (m *Model) addLog(entry LogEntry) {
	m.logs = append(m.logs, entry)
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
}

func (m *Model) shutdown() {
	m.cancel()
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

// tickProgress returns a command to tick progress updates.
func (m Model) tickProgress() tea.Cmd {
	return tea.Tick(200*time.Millisecond, func(_ time.Time) tea.Msg {
		return tickMsg{}
	})
}

func (m Model) waitForEvent() tea.Cmd {
	events := m.events
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return nil
		}
		return eventMsg{event: ev}
	}
}

// initialize reconciles the local library and checks the login state.
func (m Model) initialize() tea.Cmd {
	a, ctx := m.app, m.ctx
	return func() tea.Msg {
		msg := initDoneMsg{}
		if err := a.Downloads.Reconcile(ctx); err != nil {
			msg.warn = fmt.Errorf("library repaired: %w", err)
		}

		state, err := a.Auth.State(ctx)
		if err != nil {
			msg.err = err
			return msg
		}
		msg.authState = state
		if state == auth.StateUnauthenticated {
			return msg
		}

		page, err := a.SoundCloud.Likes(ctx)
		if errors.Is(err, common.ErrAuthRequired) {
			msg.authState = auth.StateUnauthenticated
			return msg
		}
		msg.page, msg.err = page, err
		return msg
	}
}

func (m Model) login(code string) tea.Cmd {
	a, ctx := m.app, m.ctx
	return func() tea.Msg {
		if _, err := a.Auth.Login(ctx, code); err != nil {
			return loginDoneMsg{err: err}
		}
		page, err := a.SoundCloud.Likes(ctx)
		return loginDoneMsg{page: page, err: err}
	}
}

func (m Model) logout() tea.Cmd {
	a, ctx := m.app, m.ctx
	return func() tea.Msg {
		if err := a.Auth.Logout(ctx); err != nil {
			return actionDoneMsg{err: err}
		}
		return initDoneMsg{authState: auth.StateUnauthenticated}
	}
}

func (m Model) nextPage() tea.Cmd {
	a, ctx, page := m.app, m.ctx, m.page
	return func() tea.Msg {
		next, err := a.SoundCloud.NextTracks(ctx, page)
		return pageMsg{page: next, err: err}
	}
}

func (m Model) startDownload(track *model.Track) tea.Cmd {
	a, ctx := m.app, m.ctx
	return func() tea.Msg {
		err := a.Downloads.Start(ctx, track)
		switch {
		case errors.Is(err, common.ErrAlreadyDownloaded):
			return actionDoneMsg{message: "Already downloaded: " + track.Title}
		case errors.Is(err, common.ErrInProgress):
			return actionDoneMsg{message: "Already downloading: " + track.Title}
		case errors.Is(err, common.ErrCanceled), errors.Is(err, context.Canceled):
			return actionDoneMsg{}
		}
		// Success and failures also arrive as manager events.
		if errors.Is(err, common.ErrAuthRequired) {
			return actionDoneMsg{err: err}
		}
		return actionDoneMsg{}
	}
}

func (m Model) downloadAll() tea.Cmd {
	a, ctx, tracks := m.app, m.ctx, m.page.Items
	return func() tea.Msg {
		res, err := a.DownloadTracks(ctx, tracks, 3)
		if err != nil && !errors.Is(err, context.Canceled) {
			return actionDoneMsg{err: err}
		}
		return actionDoneMsg{message: fmt.Sprintf("Batch finished: %d downloaded, %d skipped, %d failed",
			res.Downloaded, res.Skipped, res.Failed)}
	}
}

func (m Model) cancelDownload(trackID int64) tea.Cmd {
	a := m.app
	return func() tea.Msg {
		if err := a.Downloads.Cancel(trackID); err != nil {
			return actionDoneMsg{err: err}
		}
		return actionDoneMsg{}
	}
}

func (m Model) removeArtifact(trackID int64) tea.Cmd {
	a, ctx := m.app, m.ctx
	return func() tea.Msg {
		return actionDoneMsg{err: a.Downloads.RemoveArtifact(ctx, trackID)}
	}
}

// Run starts the TUI application on a.
func Run(a *app.App) error {
	m := NewModel(a)
	defer m.shutdown()

	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
