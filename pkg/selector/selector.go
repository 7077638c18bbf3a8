package selector

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/dikkadev/fmu/pkg/updater"
)

type UpdateItem struct {
	update   updater.Update
	selected bool
}

func (i UpdateItem) Title() string {
	marker := "[ ]"
	if i.selected {
		marker = "[x]"
	}
	return fmt.Sprintf("%s %s  %s → %s", marker, i.update.ModName, i.update.OldVersion, i.update.NewVersion)
}

func (i UpdateItem) Description() string {
	return fmt.Sprintf("pack: %s | file: %s", i.update.PackName, i.update.FileName)
}

func (i UpdateItem) FilterValue() string {
	return i.update.ModName
}

type model struct {
	list      list.Model
	confirmed bool
	quitting  bool
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		// Don't intercept keys while the user is typing a filter
		if m.list.FilterState() == list.Filtering {
			break
		}

		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case " ":
			if item, ok := m.list.SelectedItem().(UpdateItem); ok {
				item.selected = !item.selected
				return m, m.list.SetItem(m.list.Index(), item)
			}
		case "enter":
			m.confirmed = true
			return m, tea.Quit
		case "ctrl+n":
			m.list.CursorDown()
		case "ctrl+p":
			m.list.CursorUp()
		case "pgdown", "ctrl+d":
			m.list.NextPage()
		case "pgup", "ctrl+u":
			m.list.PrevPage()
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m model) View() string {
	if m.quitting || m.confirmed {
		return ""
	}

	help := "\nNavigate: ↑/↓ • Toggle: Space • Filter: / • Apply: Enter • Abort: Esc/q\n"
	return m.list.View() + help
}

// SelectUpdates presents an interactive UI for narrowing the update plan.
// All updates start selected; the returned slice preserves plan order.
// Aborting the picker is an error, confirming with nothing selected returns
// an empty slice.
func SelectUpdates(updates []updater.Update) ([]updater.Update, error) {
	items := make([]list.Item, len(updates))
	for i, up := range updates {
		items[i] = UpdateItem{update: up, selected: true}
	}

	width := 80
	height := min(20, len(items)+5) // 5 lines for header, help, etc.
	l := list.New(items, list.NewDefaultDelegate(), width, height)
	l.Title = fmt.Sprintf("Select updates to apply (%d planned)", len(updates))
	l.SetShowHelp(true)
	l.SetFilteringEnabled(true)
	l.SetShowStatusBar(true)
	l.SetShowTitle(true)
	l.KeyMap.Quit.SetEnabled(true)
	l.KeyMap.ForceQuit.SetEnabled(true)
	l.SetShowFilter(true)

	prog := tea.NewProgram(model{list: l})
	finalModel, err := prog.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to run UI: %w", err)
	}

	m, ok := finalModel.(model)
	if !ok || !m.confirmed {
		return nil, fmt.Errorf("selection aborted")
	}

	return selectedUpdates(m.list.Items()), nil
}

// selectedUpdates collects the still-selected updates in list order
func selectedUpdates(items []list.Item) []updater.Update {
	var kept []updater.Update
	for _, item := range items {
		if ui, ok := item.(UpdateItem); ok && ui.selected {
			kept = append(kept, ui.update)
		}
	}
	return kept
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
