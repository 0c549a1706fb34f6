// Package fliptree renders a tree of nodes as text in reverse:
// children first, then parent — the layout the arrange TUI uses to
// draw a run of commits top-to-bottom with their descendants above
// them.
//
// For example: given main -> {c1 -> c1.1, c2 -> c2.1}, with main's
// edges in that order, the tree would look like this:
//
//	  ┏━□ c1.1
//	┏━┻□ c1
//	┃ ┏━□ c2.1
//	┣━┻□ c2
//	main
package fliptree

import (
	"bufio"
	"io"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// DefaultNodeMarker is the marker rendered next to each node.
var DefaultNodeMarker = lipgloss.NewStyle().SetString("□")

// Graph defines a directed graph of commits to render.
type Graph struct {
	// Roots are the nodes at which to start rendering. Each root is
	// rendered as a separate tree.
	Roots []string

	// View returns the text for a node. The value may be multiline
	// and carry its own styling.
	View func(string) string

	// Edges returns the nodes directly reachable from node — here,
	// node's in-set children in the arrange state.
	Edges func(node string) []string
}

// Options configure the rendering of the tree.
type Options struct {
	Style *Style

	// Offsets, if non-nil, is filled with each node's 0-indexed line
	// number in the rendered output, so the caller can translate a
	// cursor row back to a commit.
	Offsets map[string]int
}

// Style configures the visual appearance of the tree.
type Style struct {
	// Joint styles the connecting lines between nodes.
	Joint lipgloss.Style

	// NodeMarker returns the marker style for a given node. Defaults
	// to [DefaultNodeMarker] for every node.
	NodeMarker func(string) lipgloss.Style
}

// DefaultStyle returns the default rendering style, using the
// package's stderr-targeted [Renderer] so color follows whatever
// terminal capability lipgloss detected for the arrange TUI.
func DefaultStyle() *Style {
	return &Style{
		Joint: Renderer.NewStyle().Faint(true),
		NodeMarker: func(string) lipgloss.Style {
			return DefaultNodeMarker
		},
	}
}

// Write renders the tree of nodes in g to w.
func Write(w io.Writer, g Graph, opts Options) error {
	if opts.Style == nil {
		opts.Style = DefaultStyle()
	}

	setOffset := func(string, int) {}
	if opts.Offsets != nil {
		setOffset = func(node string, line int) {
			opts.Offsets[node] = line
		}
	}

	tw := treeWriter{
		w:         bufio.NewWriter(w),
		g:         g,
		style:     opts.Style,
		setOffset: setOffset,
	}
	for _, root := range g.Roots {
		if err := tw.writeTree(root, nil, nil); err != nil {
			return err
		}
	}
	return tw.w.Flush()
}

type treeWriter struct {
	w *bufio.Writer
	g Graph

	lineNum   int
	style     *Style
	setOffset func(string, int)
}

const (
	_vertical      boxRune = '┃'
	_horizontal    boxRune = '━'
	_horizontalUp  boxRune = '┻'
	_verticalRight boxRune = '┣'
	_downRight     boxRune = '┏'
)

type boxRune rune

func (b boxRune) String() string { return string(b) }

// writeTree renders the subtree rooted at node.
//
// path is the sequence of child indices from the root to node; values
// holds the node name at each step of path, used for cycle detection.
func (tw *treeWriter) writeTree(node string, path []int, values []string) error {
	for i, seen := range values {
		if seen == node {
			cyclePath := append(slices.Clone(path), i)
			return &CycleError{Path: cyclePath}
		}
	}

	var hasChildren bool
	for i, child := range tw.g.Edges(node) {
		hasChildren = true
		if err := tw.writeTree(child, append(path, i), append(values, node)); err != nil {
			return err
		}
	}

	titlePrefix := tw.style.NodeMarker(node).String() + " "
	if hasChildren {
		titlePrefix = tw.style.Joint.Render(string(_horizontalUp)) + titlePrefix
	}
	bodyPrefix := strings.Repeat(" ", lipgloss.Width(titlePrefix))

	lastJoint := string(_downRight) + string(_horizontal)
	if len(path) > 0 && path[len(path)-1] > 0 {
		lastJoint = string(_verticalRight) + string(_horizontal)
	}

	lines := strings.Split(tw.g.View(node), "\n")
	for idx, line := range lines {
		if idx == 0 {
			tw.pipes(path, lastJoint, titlePrefix)
			tw.setOffset(node, tw.lineNum)
		} else {
			tw.pipes(path, string(_vertical)+" ", bodyPrefix)
		}

		_, _ = tw.w.WriteString(line)
		_, _ = tw.w.WriteString("\n")
		tw.lineNum++
	}

	return nil
}

func (tw *treeWriter) pipes(path []int, joint string, marker string) {
	if len(path) == 0 {
		return
	}

	style := tw.style.Joint
	for _, pos := range path[:len(path)-1] {
		if pos > 0 {
			_, _ = tw.w.WriteString(style.Render(string(_vertical) + " "))
		} else {
			_, _ = tw.w.WriteString("  ")
		}
	}

	_, _ = tw.w.WriteString(style.Render(joint) + marker)
}

// CycleError reports a cycle found while rendering. The arrange state
// machine guarantees this never happens in practice (see
// [go.abhg.dev/opvc/internal/arrange].State), so encountering one here
// indicates a bug in that guarantee rather than user error.
type CycleError struct {
	// Path is the sequence of child indices from the root to the node
	// that closed the cycle.
	Path []int
}

func (e *CycleError) Error() string { return "cycle detected" }
