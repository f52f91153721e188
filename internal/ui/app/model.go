package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	journeydto "pathwise/internal/modules/journey/dto"
	predictiondto "pathwise/internal/modules/prediction/dto"
	sessiondto "pathwise/internal/modules/session/dto"
	apperrors "pathwise/internal/platform/errors"
	"pathwise/internal/ui/adaptive"
	"pathwise/internal/ui/components"
	"pathwise/internal/ui/theme"
	explorerview "pathwise/internal/ui/views/explorer"
	suggestionsview "pathwise/internal/ui/views/suggestions"
	timelineview "pathwise/internal/ui/views/timeline"
)

// ─── ports ───────────────────────────────────────────────────────────────────

type trackerPort interface {
	Track(ctx context.Context, input journeydto.TrackInput) (journeydto.TrackOutput, error)
}

type predictionPort interface {
	Predict(ctx context.Context, sessionID string) (predictiondto.PredictionOutput, error)
	Cancel(ctx context.Context, sessionID string) error
}

type sessionPort interface {
	Start(ctx context.Context, label, goal string) (sessiondto.StartOutput, error)
	End(ctx context.Context, sessionID, outcome string) (sessiondto.EndOutput, error)
	GetActive(ctx context.Context) (sessiondto.ActiveSessionOutput, error)
}

// ─── tab index ───────────────────────────────────────────────────────────────

type tabID int

const (
	tabExplore tabID = iota
	tabSuggestions
	tabTimeline
	tabCount
)

var tabLabels = [tabCount]string{
	"Explore", "Suggestions", "Timeline",
}

// ─── async messages ───────────────────────────────────────────────────────────

type stateChangedMsg struct{}

type activeLoadedMsg struct {
	active sessiondto.ActiveSessionOutput
	err    error
}

type sessionStartedMsg struct {
	active sessiondto.ActiveSessionOutput
	err    error
}

type sessionEndedMsg struct {
	out sessiondto.EndOutput
	err error
}

type trackedMsg struct {
	out journeydto.TrackOutput
	err error
}

type predictedMsg struct {
	out predictiondto.PredictionOutput
	err error
}

type canceledMsg struct{ err error }

// ─── key bindings ─────────────────────────────────────────────────────────────

type keyMap struct {
	Tab     key.Binding
	Help    key.Binding
	Palette key.Binding
	Quit    key.Binding
	Enter   key.Binding
	Entity  key.Binding
	Predict key.Binding
	Cancel  key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Tab:     key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "next tab")),
		Help:    key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Palette: key.NewBinding(key.WithKeys(":"), key.WithHelp(":", "palette")),
		Quit:    key.NewBinding(key.WithKeys("ctrl+c", "q"), key.WithHelp("q", "quit")),
		Enter:   key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "track / accept")),
		Entity:  key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "edit entity")),
		Predict: key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "predict now")),
		Cancel:  key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "cancel pending")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Tab, k.Help, k.Palette, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Tab, k.Enter, k.Entity},
		{k.Predict, k.Cancel},
		{k.Help, k.Palette, k.Quit},
	}
}

// ─── model ───────────────────────────────────────────────────────────────────

// Model is the root Bubble Tea model. It owns tab routing, the session, the
// help overlay and the command palette. Suggestions arrive through the
// adaptive state, never by polling.
type Model struct {
	tracker    trackerPort
	prediction predictionPort
	session    sessionPort
	state      *adaptive.State

	sessionID string

	exploreView     explorerview.Model
	suggestionsView suggestionsview.Model
	timelineView    timelineview.Model

	activeTab     tabID
	keys          keyMap
	help          help.Model
	showHelp      bool
	palette       components.Palette
	activeSession sessiondto.ActiveSessionOutput
	hasActive     bool
	status        string
	width         int
	height        int
}

// NewModel wires the ports. sessionID is used until an active session is
// found or started.
func NewModel(sessionID string, tracker trackerPort, prediction predictionPort, session sessionPort, state *adaptive.State) Model {
	return Model{
		tracker:         tracker,
		prediction:      prediction,
		session:         session,
		state:           state,
		sessionID:       sessionID,
		exploreView:     explorerview.New(),
		suggestionsView: suggestionsview.New(),
		timelineView:    timelineview.New(),
		activeTab:       tabExplore,
		keys:            defaultKeys(),
		help:            help.New(),
		palette:         components.NewPalette(),
		status:          "ready",
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.suggestionsView.Init(),
		m.loadActiveCmd(),
		m.waitForChangeCmd(),
	)
}

// ─── update ───────────────────────────────────────────────────────────────────

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	if m.palette.Visible() {
		var cmd tea.Cmd
		m.palette, cmd = m.palette.Update(msg)
		return m, cmd
	}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.palette.SetWidth(min(m.width-4, 80))
		m.help.Width = m.width
		m.propagateSize()

	case stateChangedMsg:
		m.applySnapshot()
		return m, m.waitForChangeCmd()

	case activeLoadedMsg:
		if msg.err != nil {
			if !errors.Is(msg.err, apperrors.ErrNoActiveSession) {
				m.status = "active session check: " + msg.err.Error()
			}
			m.hasActive = false
		} else {
			m.setActive(msg.active)
			m.status = "session recovered: " + sessionLabel(msg.active)
		}

	case sessionStartedMsg:
		if msg.err != nil {
			m.status = "session start failed: " + msg.err.Error()
		} else {
			m.setActive(msg.active)
			m.status = "session started: " + sessionLabel(msg.active)
		}

	case sessionEndedMsg:
		if msg.err != nil {
			m.status = "session end failed: " + msg.err.Error()
		} else {
			m.hasActive = false
			m.activeSession = sessiondto.ActiveSessionOutput{}
			m.status = fmt.Sprintf("session ended: %d actions, %d journeys, %d min", msg.out.ActionCount, msg.out.JourneyCount, msg.out.DurationMin)
		}

	case trackedMsg:
		if msg.err != nil {
			m.status = "track failed: " + msg.err.Error()
		} else {
			m.status = fmt.Sprintf("tracked %s/%s", msg.out.Action.FeatureArea, msg.out.Action.ActionType)
			if msg.out.NewJourney {
				m.status += " · new " + msg.out.Journey.Type + " journey"
			}
		}

	case predictedMsg:
		switch {
		case msg.err != nil:
			m.status = "predict failed: " + msg.err.Error()
		case msg.out.UsedFallback:
			m.status = fmt.Sprintf("round %d from rules (%s)", msg.out.Round, msg.out.FallbackReason)
			m.activeTab = tabSuggestions
		default:
			m.status = fmt.Sprintf("round %d from %s", msg.out.Round, msg.out.Source)
			m.activeTab = tabSuggestions
		}

	case canceledMsg:
		if msg.err != nil {
			m.status = "cancel failed: " + msg.err.Error()
		} else {
			m.status = "pending prediction canceled"
		}

	case explorerview.TrackMsg:
		return m, m.trackCmd(journeydto.TrackInput{
			SessionID:       m.sessionID,
			FeatureArea:     msg.Area,
			ActionType:      msg.Action,
			SourceComponent: "tui-explorer",
			Payload:         msg.Payload,
		})

	case suggestionsview.AcceptMsg:
		m.status = "accepted " + msg.Affordance.Label
		return m, m.trackCmd(msg.Affordance.TrackInput(m.sessionID))

	case components.PaletteSubmitMsg:
		return m.executePalette(msg.Input)

	case components.PaletteCancelMsg:
		m.status = "ready"

	case tea.KeyMsg:
		if m.showHelp {
			if msg.String() == "?" || msg.String() == "esc" {
				m.showHelp = false
			}
			return m, nil
		}

		if m.subViewFiltering() {
			break
		}

		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "tab":
			m.activeTab = (m.activeTab + 1) % tabCount
			return m, nil
		case "shift+tab":
			m.activeTab = (m.activeTab + tabCount - 1) % tabCount
			return m, nil
		case "?":
			m.showHelp = !m.showHelp
			return m, nil
		case ":":
			return m, m.palette.Open()
		case "p":
			return m, m.predictCmd()
		case "x":
			return m, m.cancelCmd()
		}
	}

	var tabCmd tea.Cmd
	switch m.activeTab {
	case tabExplore:
		m.exploreView, tabCmd = m.exploreView.Update(msg)
	case tabSuggestions:
		m.suggestionsView, tabCmd = m.suggestionsView.Update(msg)
	case tabTimeline:
		m.timelineView, tabCmd = m.timelineView.Update(msg)
	}
	cmds = append(cmds, tabCmd)
	// The spinner keeps ticking while another tab is active.
	if tick, ok := msg.(spinner.TickMsg); ok && m.activeTab != tabSuggestions {
		var cmd tea.Cmd
		m.suggestionsView, cmd = m.suggestionsView.Update(tick)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// ─── view ────────────────────────────────────────────────────────────────────

func (m Model) View() string {
	tabBar := m.renderTabBar()
	statusBar := m.renderStatusBar()
	contentH := m.height - lipgloss.Height(tabBar) - lipgloss.Height(statusBar)
	if contentH < 1 {
		contentH = 1
	}

	var content string
	switch {
	case m.showHelp:
		content = lipgloss.NewStyle().Width(m.width).Height(contentH).
			Render(m.help.View(m.keys))
	case m.palette.Visible():
		content = lipgloss.Place(m.width, contentH,
			lipgloss.Center, lipgloss.Center, m.palette.View())
	default:
		content = m.activeView()
	}

	return lipgloss.JoinVertical(lipgloss.Left, tabBar, content, statusBar)
}

func (m Model) activeView() string {
	switch m.activeTab {
	case tabExplore:
		return m.exploreView.View()
	case tabSuggestions:
		return m.suggestionsView.View()
	case tabTimeline:
		return m.timelineView.View()
	}
	return ""
}

func (m Model) renderTabBar() string {
	parts := make([]string, tabCount)
	for i := tabID(0); i < tabCount; i++ {
		if i == m.activeTab {
			parts[i] = theme.TabActive.Render(tabLabels[i])
		} else {
			parts[i] = theme.Tab.Render(tabLabels[i])
		}
	}
	bar := "pathwise  " + strings.Join(parts, theme.Muted.Render("│"))
	return lipgloss.NewStyle().Background(theme.Mantle).Width(m.width).Render(bar) + "\n"
}

func (m Model) renderStatusBar() string {
	left := m.status
	switch {
	case m.hasActive:
		left = theme.Hot.Render("● "+sessionLabel(m.activeSession)) + "  " + left
	case m.sessionID != "":
		left = theme.Muted.Render("○ "+m.sessionID) + "  " + left
	}
	right := theme.Muted.Render("?:help  tab:switch  p:predict  :::palette  q:quit")
	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	bar := left + strings.Repeat(" ", gap) + right
	return "\n" + lipgloss.NewStyle().Background(theme.Mantle).Width(m.width).Render(bar)
}

// ─── palette execution ────────────────────────────────────────────────────────

func (m Model) executePalette(input string) (tea.Model, tea.Cmd) {
	if strings.TrimSpace(input) == "" {
		return m, nil
	}
	parts := strings.Fields(input)

	switch parts[0] {
	case "track":
		if len(parts) < 3 {
			m.status = "usage: track <area> <action> [type:id]"
			return m, nil
		}
		var payload journeydto.Payload
		if len(parts) >= 4 {
			payload = explorerview.ParseEntity(strings.Join(parts[3:], " "))
		}
		return m, m.trackCmd(journeydto.TrackInput{
			SessionID:       m.sessionID,
			FeatureArea:     parts[1],
			ActionType:      parts[2],
			SourceComponent: "tui-palette",
			Payload:         payload,
		})

	case "predict":
		return m, m.predictCmd()

	case "cancel":
		return m, m.cancelCmd()

	case "session:start":
		label := strings.TrimSpace(strings.TrimPrefix(input, parts[0]))
		return m, m.startSessionCmd(label)

	case "session:end":
		outcome := ""
		if len(parts) >= 2 {
			outcome = parts[1]
		}
		return m, m.endSessionCmd(outcome)

	case "tab:explore":
		m.activeTab = tabExplore
	case "tab:suggestions":
		m.activeTab = tabSuggestions
	case "tab:timeline":
		m.activeTab = tabTimeline

	default:
		m.status = "unknown command: " + parts[0]
	}
	return m, nil
}

// ─── helpers ─────────────────────────────────────────────────────────────────

func (m Model) subViewFiltering() bool {
	if m.activeTab == tabExplore {
		return m.exploreView.Filtering()
	}
	return false
}

func (m *Model) setActive(active sessiondto.ActiveSessionOutput) {
	m.hasActive = true
	m.activeSession = active
	m.sessionID = active.SessionID
}

func (m *Model) applySnapshot() {
	if m.state == nil {
		return
	}
	snap := m.state.Snapshot()
	if m.sessionID == "" {
		m.sessionID = snap.SessionID
	}
	m.suggestionsView.SetSnapshot(snap)
	m.timelineView.SetSnapshot(snap)
}

func (m *Model) propagateSize() {
	sz := tea.WindowSizeMsg{Width: m.width, Height: m.height - 3}
	m.exploreView, _ = m.exploreView.Update(sz)
	m.suggestionsView, _ = m.suggestionsView.Update(sz)
	m.timelineView, _ = m.timelineView.Update(sz)
}

func sessionLabel(active sessiondto.ActiveSessionOutput) string {
	if active.Label != "" {
		return active.Label
	}
	return active.SessionID
}

// ─── async commands ───────────────────────────────────────────────────────────

func (m Model) waitForChangeCmd() tea.Cmd {
	if m.state == nil {
		return nil
	}
	changes := m.state.Changes()
	return func() tea.Msg {
		<-changes
		return stateChangedMsg{}
	}
}

func (m Model) loadActiveCmd() tea.Cmd {
	return func() tea.Msg {
		if m.session == nil {
			return activeLoadedMsg{err: apperrors.ErrNoActiveSession}
		}
		active, err := m.session.GetActive(context.Background())
		return activeLoadedMsg{active: active, err: err}
	}
}

func (m Model) startSessionCmd(label string) tea.Cmd {
	return func() tea.Msg {
		if m.session == nil {
			return sessionStartedMsg{err: fmt.Errorf("session adapter not configured")}
		}
		out, err := m.session.Start(context.Background(), label, "")
		if err != nil {
			return sessionStartedMsg{err: err}
		}
		return sessionStartedMsg{active: sessiondto.ActiveSessionOutput{
			SessionID: out.SessionID,
			Label:     label,
			StartedAt: out.StartedAt,
		}}
	}
}

func (m Model) endSessionCmd(outcome string) tea.Cmd {
	sessionID := m.activeSession.SessionID
	return func() tea.Msg {
		if m.session == nil {
			return sessionEndedMsg{err: fmt.Errorf("session adapter not configured")}
		}
		out, err := m.session.End(context.Background(), sessionID, outcome)
		return sessionEndedMsg{out: out, err: err}
	}
}

func (m Model) trackCmd(input journeydto.TrackInput) tea.Cmd {
	return func() tea.Msg {
		if input.SessionID == "" {
			return trackedMsg{err: fmt.Errorf("no session: start one with session:start")}
		}
		out, err := m.tracker.Track(context.Background(), input)
		return trackedMsg{out: out, err: err}
	}
}

func (m Model) predictCmd() tea.Cmd {
	sessionID := m.sessionID
	return func() tea.Msg {
		if sessionID == "" {
			return predictedMsg{err: fmt.Errorf("no session: start one with session:start")}
		}
		out, err := m.prediction.Predict(context.Background(), sessionID)
		return predictedMsg{out: out, err: err}
	}
}

func (m Model) cancelCmd() tea.Cmd {
	sessionID := m.sessionID
	return func() tea.Msg {
		if sessionID == "" {
			return canceledMsg{}
		}
		return canceledMsg{err: m.prediction.Cancel(context.Background(), sessionID)}
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
