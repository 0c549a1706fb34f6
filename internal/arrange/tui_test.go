package arrange

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"

	"go.abhg.dev/opvc/internal/ids"
)

func stubView(c ids.CommitId) string { return c.String() }

func TestModel_CommitKeyAccepts(t *testing.T) {
	s := NewState([]ids.CommitId{ids.CommitId("a")}, nil, nil)
	m := NewModel(s, stubView)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("c")})
	assert.True(t, m.Committed())
	assert.False(t, m.Cancelled())
	assert.NotNil(t, cmd, "committing must quit the program")
}

func TestModel_CancelKeyAborts(t *testing.T) {
	s := NewState([]ids.CommitId{ids.CommitId("a")}, nil, nil)
	m := NewModel(s, stubView)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	assert.True(t, m.Cancelled())
	assert.False(t, m.Committed())
	assert.NotNil(t, cmd)
}

func TestModel_NavigationMovesCursorWithinBounds(t *testing.T) {
	a, b := ids.CommitId("a"), ids.CommitId("b")
	s := NewState(
		[]ids.CommitId{a, b},
		map[string][]ids.CommitId{b.String(): {a}, a.String(): nil},
		nil,
	)
	m := NewModel(s, stubView)
	assert.Equal(t, 0, m.cursor)

	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("j")})
	assert.Equal(t, 1, m.cursor)

	// Already at the bottom; moving down again must not overflow.
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("j")})
	assert.Equal(t, 1, m.cursor)

	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("k")})
	assert.Equal(t, 0, m.cursor)

	// Already at the top; moving up again must not underflow.
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("k")})
	assert.Equal(t, 0, m.cursor)
}

func TestModel_ViewRendersEveryCommit(t *testing.T) {
	a, b := ids.CommitId("a"), ids.CommitId("b")
	s := NewState(
		[]ids.CommitId{a, b},
		map[string][]ids.CommitId{b.String(): {a}, a.String(): nil},
		nil,
	)
	m := NewModel(s, stubView)

	view := m.View()
	assert.Contains(t, view, a.String())
	assert.Contains(t, view, b.String())
}
