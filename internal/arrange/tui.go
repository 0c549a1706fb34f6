package arrange

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"go.abhg.dev/opvc/internal/arrange/fliptree"
	"go.abhg.dev/opvc/internal/ids"
)

// KeyMap defines the key bindings for the arrange TUI.
type KeyMap struct {
	Up     key.Binding
	Down   key.Binding
	Commit key.Binding
	Cancel key.Binding
}

// DefaultKeyMap is the default key map for the arrange TUI.
var DefaultKeyMap = KeyMap{
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("up/k", "move cursor up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("down/j", "move cursor down"),
	),
	Commit: key.NewBinding(
		key.WithKeys("c"),
		key.WithHelp("c", "commit arrangement"),
	),
	Cancel: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "cancel"),
	),
}

// Style configures the visual appearance of the arrange TUI.
type Style struct {
	Title  lipgloss.Style
	Cursor lipgloss.Style
	Help   lipgloss.Style
}

// DefaultStyle is the default style for the arrange TUI.
var DefaultStyle = Style{
	Title:  fliptree.Renderer.NewStyle().Bold(true),
	Cursor: fliptree.Renderer.NewStyle().Foreground(lipgloss.Color("3")).Bold(true),
	Help:   fliptree.Renderer.NewStyle().Faint(true),
}

// CommitView renders a single commit's summary line in the tree.
type CommitView func(ids.CommitId) string

// Model is the bubbletea model driving the arrange TUI: it renders the
// current arrangement as a fliptree and lets the user commit it ('c')
// or cancel ('q'/ctrl+c) without committing any edits at all.
//
// Model has no key that edits a commit's parents: it only renders the
// current arrangement, moves the cursor, and handles the commit/cancel
// decision. Parent edits are made on the underlying [State] through
// [State.SetParents].
type Model struct {
	KeyMap KeyMap
	Style  Style

	state *State
	view  CommitView

	cursor    int
	committed bool
	cancelled bool
}

var _ tea.Model = (*Model)(nil)

// NewModel builds an arrange TUI model over state, rendering each
// commit's line via view.
func NewModel(state *State, view CommitView) *Model {
	return &Model{
		KeyMap: DefaultKeyMap,
		Style:  DefaultStyle,
		state:  state,
		view:   view,
	}
}

// Committed reports whether the user accepted the current arrangement.
func (m *Model) Committed() bool { return m.committed }

// Cancelled reports whether the user cancelled without committing.
func (m *Model) Cancelled() bool { return m.cancelled }

// Init implements [tea.Model].
func (m *Model) Init() tea.Cmd { return nil }

// Update implements [tea.Model].
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	order := m.state.CurrentOrder()

	switch {
	case key.Matches(keyMsg, m.KeyMap.Commit):
		m.committed = true
		return m, tea.Quit
	case key.Matches(keyMsg, m.KeyMap.Cancel):
		m.cancelled = true
		return m, tea.Quit
	case key.Matches(keyMsg, m.KeyMap.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(keyMsg, m.KeyMap.Down):
		if m.cursor < len(order)-1 {
			m.cursor++
		}
	}

	return m, nil
}

// View implements [tea.Model].
func (m *Model) View() string {
	order := m.state.CurrentOrder()

	// The fliptree graph is keyed by rendered id text; map each key
	// back to the id it names.
	byKey := make(map[string]ids.CommitId, len(order))
	for _, c := range m.state.Commits() {
		byKey[c.String()] = c
	}

	// fliptree draws each root below its children, so the roots are
	// the bottoms of the arrangement: commits with no in-set parent.
	var roots []ids.CommitId
	for _, c := range order {
		if len(m.state.inSetParents(c)) == 0 {
			roots = append(roots, c)
		}
	}

	offsets := make(map[string]int, len(order))
	var body strings.Builder
	_ = fliptree.Write(&body, fliptree.Graph{
		Roots: stringIDs(roots),
		View: func(node string) string {
			return m.view(byKey[node])
		},
		Edges: func(node string) []string {
			return stringIDs(inSetChildren(m.state, byKey[node]))
		},
	}, fliptree.Options{Offsets: offsets})

	var s strings.Builder
	s.WriteString(m.Style.Title.Render("arrange"))
	s.WriteString("\n")
	s.WriteString(markCursor(body.String(), order, m.cursor, offsets, m.Style.Cursor))
	s.WriteString("\n")
	s.WriteString(m.Style.Help.Render(
		fmt.Sprintf("%s / %s / %s / %s",
			m.KeyMap.Up.Help().Key, m.KeyMap.Down.Help().Key,
			m.KeyMap.Commit.Help().Desc, m.KeyMap.Cancel.Help().Desc)))
	return s.String()
}

// inSetChildren returns c's in-set children: the commits whose
// in-set parent list contains c, in current_order.
func inSetChildren(s *State, c ids.CommitId) []ids.CommitId {
	var out []ids.CommitId
	for _, other := range s.CurrentOrder() {
		for _, p := range s.inSetParents(other) {
			if p.Equal(c) {
				out = append(out, other)
				break
			}
		}
	}
	return out
}

func stringIDs(commits []ids.CommitId) []string {
	out := make([]string, len(commits))
	for i, c := range commits {
		out[i] = c.String()
	}
	return out
}

// markCursor highlights the line at offsets[order[cursor]] with style.
func markCursor(rendered string, order []ids.CommitId, cursor int, offsets map[string]int, style lipgloss.Style) string {
	if cursor < 0 || cursor >= len(order) {
		return rendered
	}

	target, ok := offsets[order[cursor].String()]
	if !ok {
		return rendered
	}

	lines := strings.Split(rendered, "\n")
	if target >= len(lines) {
		return rendered
	}
	lines[target] = style.Render(lines[target])
	return strings.Join(lines, "\n")
}

// RunOptions configures [Run].
type RunOptions struct {
	// Input is the input source. Defaults to os.Stdin.
	Input io.Reader

	// Output is the destination to write to. Defaults to os.Stderr.
	Output io.Writer
}

// Run presents the arrangement in model and blocks until the user
// commits or cancels it.
func Run(model *Model, opts *RunOptions) error {
	var teaOpts []tea.ProgramOption
	teaOpts = append(teaOpts, tea.WithAltScreen())
	if opts != nil {
		if opts.Input != nil {
			teaOpts = append(teaOpts, tea.WithInput(opts.Input))
		}
		if opts.Output != nil {
			teaOpts = append(teaOpts, tea.WithOutput(opts.Output))
		}
	}

	prog := tea.NewProgram(model, teaOpts...)
	_, err := prog.Run()
	return err
}
