package suggestions

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"pathwise/internal/ui/adaptive"
	"pathwise/internal/ui/theme"
)

// AcceptMsg carries the affordance the user picked.
type AcceptMsg struct {
	Affordance adaptive.Affordance
}

type affordanceItem struct {
	a adaptive.Affordance
}

func (i affordanceItem) Title() string { return i.a.Label }
func (i affordanceItem) Description() string {
	if i.a.Target == "" {
		return fmt.Sprintf("%s · %s", i.a.Kind, i.a.Hint)
	}
	return fmt.Sprintf("%s · %s → %s", i.a.Kind, i.a.Hint, i.a.Target)
}
func (i affordanceItem) FilterValue() string { return i.a.Label }

type Model struct {
	list    list.Model
	detail  viewport.Model
	spinner spinner.Model
	snap    adaptive.Snapshot
	width   int
	height  int
}

func New() Model {
	delegate := list.NewDefaultDelegate()
	delegate.Styles.SelectedTitle = delegate.Styles.SelectedTitle.Foreground(theme.Peach).BorderForeground(theme.Peach)

	l := list.New(nil, delegate, 0, 0)
	l.Title = "Suggestions"
	l.Styles.Title = theme.Title
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)

	sp := spinner.New()
	sp.Spinner = spinner.MiniDot
	sp.Style = theme.Hot

	return Model{list: l, detail: viewport.New(0, 0), spinner: sp}
}

func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// SetSnapshot replaces the rendered state.
func (m *Model) SetSnapshot(snap adaptive.Snapshot) {
	m.snap = snap
	var items []list.Item
	if snap.HasPrediction {
		for _, a := range adaptive.Affordances(snap.Prediction.Intent) {
			items = append(items, affordanceItem{a: a})
		}
	}
	m.list.SetItems(items)
	m.detail.SetContent(renderDetail(snap))
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		left := msg.Width / 2
		m.list.SetSize(left, msg.Height)
		m.detail.Width = msg.Width - left - 2
		m.detail.Height = msg.Height
		m.detail.SetContent(renderDetail(m.snap))
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.KeyMsg:
		switch msg.String() {
		case "enter":
			item, ok := m.list.SelectedItem().(affordanceItem)
			if !ok {
				return m, nil
			}
			return m, func() tea.Msg { return AcceptMsg{Affordance: item.a} }
		case "pgdown", "pgup":
			var cmd tea.Cmd
			m.detail, cmd = m.detail.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	header := theme.Muted.Render("no prediction yet")
	if m.snap.Pending {
		header = m.spinner.View() + " " + theme.Muted.Render("predicting")
	} else if m.snap.HasPrediction {
		header = renderMeta(m.snap)
	}
	body := lipgloss.JoinHorizontal(lipgloss.Top, m.list.View(), "  ", m.detail.View())
	return lipgloss.JoinVertical(lipgloss.Left, header, body)
}

func renderMeta(snap adaptive.Snapshot) string {
	p := snap.Prediction
	parts := []string{
		fmt.Sprintf("round %d", p.Round),
		fmt.Sprintf("confidence %.2f", p.Intent.Confidence),
		string(p.Source),
	}
	if p.Model != "" {
		parts = append(parts, p.Model)
	}
	line := theme.Title.Render(strings.Join(parts, " · "))
	if p.UsedFallback {
		line += " " + theme.Warn.Render("fallback: "+string(p.FallbackReason))
	}
	return line
}

func renderDetail(snap adaptive.Snapshot) string {
	var b strings.Builder
	if snap.HasFailure && (!snap.HasPrediction || snap.Failure.Round >= snap.Prediction.Round) {
		b.WriteString(theme.Error.Render("last round failed: "+snap.Failure.Reason) + "\n\n")
	}
	if !snap.HasPrediction {
		b.WriteString(theme.Muted.Render("Track a few actions to get suggestions."))
		return b.String()
	}
	intent := snap.Prediction.Intent
	b.WriteString(theme.Title.Render("Next steps") + "\n")
	if len(intent.PredictedActions) == 0 {
		b.WriteString(theme.Muted.Render("  none") + "\n")
	}
	for i, a := range intent.PredictedActions {
		fmt.Fprintf(&b, "%d. %s %s\n", i+1, a.ActionType, theme.Muted.Render(fmt.Sprintf("(%.0f%%)", a.Probability*100)))
		if a.Target != "" {
			fmt.Fprintf(&b, "   target: %s\n", a.Target)
		}
		if a.Rationale != "" {
			fmt.Fprintf(&b, "   %s\n", theme.Muted.Render(a.Rationale))
		}
	}
	if len(intent.PreloadContent) > 0 {
		b.WriteString("\n" + theme.Title.Render("Preload") + "\n")
		for _, p := range intent.PreloadContent {
			fmt.Fprintf(&b, "- %s:%s [%s]\n", p.EntityType, p.EntityID, p.Priority)
		}
	}
	return b.String()
}
