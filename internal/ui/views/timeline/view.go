package timeline

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"pathwise/internal/ui/adaptive"
	"pathwise/internal/ui/theme"
)

// Model shows the open journey and the recent actions, newest first.
type Model struct {
	viewport viewport.Model
	snap     adaptive.Snapshot
}

func New() Model {
	return Model{viewport: viewport.New(0, 0)}
}

func (m *Model) SetSnapshot(snap adaptive.Snapshot) {
	m.snap = snap
	m.viewport.SetContent(Render(snap))
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if size, ok := msg.(tea.WindowSizeMsg); ok {
		m.viewport.Width = size.Width
		m.viewport.Height = size.Height
		m.viewport.SetContent(Render(m.snap))
		return m, nil
	}
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	return m.viewport.View()
}

func Render(snap adaptive.Snapshot) string {
	var b strings.Builder
	b.WriteString(theme.Title.Render("Journey") + "\n")
	j := snap.Journey
	if j.ID == "" {
		b.WriteString(theme.Muted.Render("no journey yet") + "\n")
	} else {
		fmt.Fprintf(&b, "%s · %s · %s · %d actions\n", j.Type, j.DominantArea, j.Outcome, len(j.ActionIDs))
		fmt.Fprintf(&b, "%s\n", theme.Muted.Render("started "+j.StartedAt.Format("15:04:05")))
	}
	b.WriteString("\n" + theme.Title.Render("Recent actions") + "\n")
	if len(snap.Recent) == 0 {
		b.WriteString(theme.Muted.Render("nothing tracked") + "\n")
		return b.String()
	}
	for i := len(snap.Recent) - 1; i >= 0; i-- {
		a := snap.Recent[i]
		line := fmt.Sprintf("%s  [%s] %s", a.Timestamp.Format("15:04:05"), a.FeatureArea, a.ActionType)
		if target := target(a.Payload.EntityType, a.Payload.EntityID, a.Payload.EntityName); target != "" {
			line += " " + theme.Muted.Render(target)
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}

func target(kind, id, name string) string {
	switch {
	case name != "" && kind != "":
		return kind + ":" + name
	case id != "" && kind != "":
		return kind + ":" + id
	case id != "":
		return id
	}
	return name
}
