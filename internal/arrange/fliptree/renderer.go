package fliptree

import (
	"os"

	"github.com/charmbracelet/lipgloss"
)

// Renderer is a lipgloss renderer targeting stderr, matching where
// the arrange TUI's alt-screen program writes.
var Renderer = lipgloss.NewRenderer(os.Stderr)
