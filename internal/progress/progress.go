// Package progress implements a rate-limited, terminal-width-aware
// status line for long-running operations: repeated updates overwrite
// one line, capped at 30 updates a second, and the line is erased when
// the operation finishes.
package progress

import (
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/term"
)

// updateInterval caps how often the status line redraws.
const updateInterval = time.Second / 30

// defaultQuietDelay is how long a fresh Reporter stays silent: an
// operation that finishes quickly never flashes a status line at all.
const defaultQuietDelay = 250 * time.Millisecond

// clearLine erases the current terminal line and returns the cursor
// to column zero.
const clearLine = "\r\x1b[K"

// Options adjusts a Reporter, mostly so tests can pin time and width.
type Options struct {
	// QuietDelay is how long Display calls are suppressed after New.
	// Zero means the default; negative means no quiet period.
	QuietDelay time.Duration

	// Width returns the terminal width in cells. Nil queries the
	// writer's file descriptor, lazily, on first display.
	Width func() int

	// Now is the clock. Nil means time.Now.
	Now func() time.Time
}

// Reporter writes a single overwritten status line to a terminal.
// It is not safe for concurrent use; one goroutine owns the line.
type Reporter struct {
	w     io.Writer
	now   func() time.Time
	width func() int

	next      time.Time
	displayed bool
	cells     int
}

// New returns a Reporter writing to w. Nothing is written until the
// quiet delay elapses and Display is called again.
func New(w io.Writer, opts Options) *Reporter {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	width := opts.Width
	if width == nil {
		width = func() int { return fdWidth(w) }
	}
	quiet := opts.QuietDelay
	if quiet == 0 {
		quiet = defaultQuietDelay
	}
	if quiet < 0 {
		quiet = 0
	}

	return &Reporter{
		w:     w,
		now:   now,
		width: width,
		next:  now().Add(quiet),
	}
}

// Display updates the status line with text, unless the next display
// time hasn't arrived yet, in which case the call is dropped. text
// that doesn't fit the terminal is truncated from the left with a
// leading ellipsis, keeping the most specific (rightmost) part
// visible.
func (r *Reporter) Display(text string) {
	now := r.now()
	if now.Before(r.next) {
		return
	}
	r.next = now.Add(updateInterval)

	if r.cells == 0 {
		r.cells = r.width()
		if r.cells <= 0 {
			r.cells = 80
		}
	}

	fmt.Fprint(r.w, clearLine+truncateLeft(text, r.cells))
	r.displayed = true
}

// Close erases the status line, if one was ever displayed. It is safe
// to call on a Reporter that never displayed anything.
func (r *Reporter) Close() {
	if r.displayed {
		fmt.Fprint(r.w, clearLine)
		r.displayed = false
	}
}

// truncateLeft fits text into width cells, dropping leading runes and
// marking the cut with an ellipsis.
func truncateLeft(text string, width int) string {
	runes := []rune(text)
	if len(runes) <= width {
		return text
	}
	if width <= 1 {
		return "…"
	}
	return "…" + string(runes[len(runes)-(width-1):])
}

// fdWidth queries the terminal width of w, or returns 0 if w is not a
// terminal.
func fdWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok {
		return 0
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 0
	}
	return width
}
