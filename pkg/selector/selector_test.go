package selector

import (
	"strings"
	"testing"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/dikkadev/fmu/pkg/updater"
)

func testUpdates() []updater.Update {
	return []updater.Update{
		{PackName: "Default", ModName: "bigger-cars", OldVersion: "1.2.0", NewVersion: "1.3.0", FileName: "bigger-cars_1.3.0.zip"},
		{PackName: "Side", ModName: "other-mod", OldVersion: "0.1.0", NewVersion: "0.2.0", FileName: "other-mod_0.2.0.zip"},
	}
}

func testModel(updates []updater.Update) model {
	items := make([]list.Item, len(updates))
	for i, up := range updates {
		items[i] = UpdateItem{update: up, selected: true}
	}
	return model{list: list.New(items, list.NewDefaultDelegate(), 80, 20)}
}

func keyMsg(key string) tea.KeyMsg {
	switch key {
	case " ":
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	default:
		return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
	}
}

func TestUpdateItemRendering(t *testing.T) {
	up := testUpdates()[0]

	item := UpdateItem{update: up, selected: true}
	if got := item.Title(); !strings.Contains(got, "[x]") || !strings.Contains(got, "bigger-cars") {
		t.Errorf("Unexpected title for selected item: %s", got)
	}
	if got := item.Title(); !strings.Contains(got, "1.2.0") || !strings.Contains(got, "1.3.0") {
		t.Errorf("Title missing version transition: %s", got)
	}

	item.selected = false
	if got := item.Title(); !strings.Contains(got, "[ ]") {
		t.Errorf("Unexpected title for deselected item: %s", got)
	}

	if got := item.Description(); !strings.Contains(got, "Default") || !strings.Contains(got, "bigger-cars_1.3.0.zip") {
		t.Errorf("Description missing pack or file: %s", got)
	}
	if got := item.FilterValue(); got != "bigger-cars" {
		t.Errorf("Got filter value %s, want bigger-cars", got)
	}
}

func TestSpaceTogglesSelection(t *testing.T) {
	m := testModel(testUpdates())

	next, _ := m.Update(keyMsg(" "))
	m = next.(model)

	kept := selectedUpdates(m.list.Items())
	if len(kept) != 1 {
		t.Fatalf("Got %d selected after toggle, want 1", len(kept))
	}
	if kept[0].ModName != "other-mod" {
		t.Errorf("Wrong item deselected, kept: %s", kept[0].ModName)
	}

	// Toggling again restores the selection
	next, _ = m.Update(keyMsg(" "))
	m = next.(model)
	if got := selectedUpdates(m.list.Items()); len(got) != 2 {
		t.Errorf("Got %d selected after second toggle, want 2", len(got))
	}
}

func TestEnterConfirms(t *testing.T) {
	m := testModel(testUpdates())

	next, cmd := m.Update(keyMsg("enter"))
	m = next.(model)

	if !m.confirmed {
		t.Error("Enter did not confirm the selection")
	}
	if cmd == nil {
		t.Error("Enter did not quit the program")
	}
}

func TestEscAborts(t *testing.T) {
	m := testModel(testUpdates())

	next, cmd := m.Update(keyMsg("esc"))
	m = next.(model)

	if m.confirmed {
		t.Error("Esc confirmed instead of aborting")
	}
	if !m.quitting {
		t.Error("Esc did not mark the model as quitting")
	}
	if cmd == nil {
		t.Error("Esc did not quit the program")
	}
}

func TestSelectedUpdatesPreservesOrder(t *testing.T) {
	updates := []updater.Update{
		{ModName: "c"}, {ModName: "a"}, {ModName: "b"},
	}
	items := make([]list.Item, len(updates))
	for i, up := range updates {
		items[i] = UpdateItem{update: up, selected: true}
	}

	kept := selectedUpdates(items)
	if len(kept) != 3 {
		t.Fatalf("Got %d updates, want 3", len(kept))
	}
	for i, want := range []string{"c", "a", "b"} {
		if kept[i].ModName != want {
			t.Errorf("Position %d: got %s, want %s", i, kept[i].ModName, want)
		}
	}
}
