package explorer

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	journeydomain "pathwise/internal/modules/journey/domain"
	journeydto "pathwise/internal/modules/journey/dto"
	"pathwise/internal/ui/theme"
)

// TrackMsg asks the app to record the selected action.
type TrackMsg struct {
	Area    string
	Action  string
	Payload journeydto.Payload
}

type actionItem struct {
	area   journeydomain.FeatureArea
	action journeydomain.ActionType
}

func (i actionItem) Title() string       { return string(i.action) }
func (i actionItem) Description() string { return string(i.area) }
func (i actionItem) FilterValue() string { return string(i.area) + " " + string(i.action) }

// Model lists every valid area/action pair. Enter records the selection with
// the entity typed in the input below the list, written as type:id.
type Model struct {
	list   list.Model
	entity textinput.Model
	typing bool
	width  int
	height int
}

func New() Model {
	var items []list.Item
	for _, area := range journeydomain.FeatureAreas() {
		for _, action := range area.Actions() {
			items = append(items, actionItem{area: area, action: action})
		}
	}
	delegate := list.NewDefaultDelegate()
	delegate.Styles.SelectedTitle = delegate.Styles.SelectedTitle.Foreground(theme.Lavender).BorderForeground(theme.Lavender)
	delegate.Styles.SelectedDesc = delegate.Styles.SelectedDesc.Foreground(theme.Sapphire).BorderForeground(theme.Lavender)

	l := list.New(items, delegate, 0, 0)
	l.Title = "Explore"
	l.Styles.Title = theme.Title
	l.SetFilteringEnabled(true)
	l.SetShowHelp(false)

	ti := textinput.New()
	ti.Placeholder = "entity as type:id (e to edit)"
	ti.CharLimit = 128

	return Model{list: l, entity: ti}
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetSize(msg.Width, msg.Height-3)
		return m, nil
	case tea.KeyMsg:
		if m.typing {
			switch msg.String() {
			case "enter", "esc":
				m.typing = false
				m.entity.Blur()
				return m, nil
			}
			var cmd tea.Cmd
			m.entity, cmd = m.entity.Update(msg)
			return m, cmd
		}
		if !m.Filtering() {
			switch msg.String() {
			case "e":
				m.typing = true
				return m, m.entity.Focus()
			case "enter":
				item, ok := m.list.SelectedItem().(actionItem)
				if !ok {
					return m, nil
				}
				payload := ParseEntity(m.entity.Value())
				return m, func() tea.Msg {
					return TrackMsg{Area: string(item.area), Action: string(item.action), Payload: payload}
				}
			}
		}
	}
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	entity := theme.Muted.Render("entity: ") + m.entity.View()
	return lipgloss.JoinVertical(lipgloss.Left, m.list.View(), "", entity)
}

// Filtering reports whether the list filter or the entity input owns the keyboard.
func (m Model) Filtering() bool {
	return m.typing || m.list.FilterState() == list.Filtering
}

// ParseEntity reads "type:id" or a bare id. Structure entities also fill
// StructureIDs so anatomy selections resolve.
func ParseEntity(raw string) journeydto.Payload {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return journeydto.Payload{}
	}
	kind, id, found := strings.Cut(raw, ":")
	if !found {
		return journeydto.Payload{EntityID: raw}
	}
	kind, id = strings.TrimSpace(kind), strings.TrimSpace(id)
	payload := journeydto.Payload{EntityType: kind, EntityID: id}
	if kind == "structure" && id != "" {
		payload.StructureIDs = []string{id}
	}
	return payload
}

// Describe renders a payload the way ParseEntity reads it.
func Describe(p journeydto.Payload) string {
	switch {
	case p.EntityType != "" && p.EntityID != "":
		return fmt.Sprintf("%s:%s", p.EntityType, p.EntityID)
	case p.EntityID != "":
		return p.EntityID
	case len(p.StructureIDs) > 0:
		return "structure:" + p.StructureIDs[0]
	case p.SearchQuery != "":
		return fmt.Sprintf("%q", p.SearchQuery)
	}
	return ""
}
