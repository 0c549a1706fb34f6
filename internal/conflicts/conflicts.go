// Package conflicts materializes conflicted file contents into
// marker-delimited text for the working copy, and parses such text
// back into the conflict it came from.
//
// The marker length adapts per file: the shortest length of at least
// seven that no side's own content could be mistaken for. The chosen
// length is recorded in the working-copy state alongside the file, so
// a later snapshot parses the file with the same length it was
// written with and recovers the identical conflict shape.
package conflicts

import (
	"bytes"
	"fmt"
	"strings"

	"go.abhg.dev/opvc/internal/merge"
)

// MinMarkerLen is the shortest marker ever written, matching Git's
// fixed seven-character markers.
const MinMarkerLen = 7

// Style selects the textual representation of a conflict.
type Style int

const (
	// StyleSnapshot writes every side of the conflict in sequence,
	// positive sides introduced by '+' markers and negative sides by
	// '-' markers. Any arity round-trips exactly.
	StyleSnapshot Style = iota

	// StyleGit writes the familiar <<<<<<< / ||||||| / ======= /
	// >>>>>>> layout. Only three-sided conflicts fit it; higher
	// arities fall back to StyleSnapshot.
	StyleGit
)

// ParseStyle decodes a ui.conflict-marker-style setting.
func ParseStyle(s string) (Style, error) {
	switch s {
	case "snapshot", "":
		return StyleSnapshot, nil
	case "git":
		return StyleGit, nil
	default:
		return 0, fmt.Errorf("unknown conflict marker style %q", s)
	}
}

// markerRunes are the characters a conflict marker line is built
// from. A content line opening with a long enough run of any of them
// forces a longer marker.
const markerRunes = "<>=+-|%"

// MarkerLen picks the marker length for a conflict: the shortest
// length >= MinMarkerLen such that no line in any side opens with
// that many (or more) repeats of a marker character.
func MarkerLen(m merge.Merge[[]byte]) int {
	longest := 0
	for _, side := range m.Values() {
		for line := range bytes.Lines(side) {
			if n := markerRun(line); n > longest {
				longest = n
			}
		}
	}
	if longest < MinMarkerLen {
		return MinMarkerLen
	}
	return longest + 1
}

// markerRun returns the length of the marker-like run opening line:
// the count of leading repeats of a single marker character, provided
// the run ends the line or is followed by a space (the shape a real
// marker has). Anything else returns 0.
func markerRun(line []byte) int {
	line = bytes.TrimRight(line, "\n")
	if len(line) == 0 || !strings.ContainsRune(markerRunes, rune(line[0])) {
		return 0
	}
	c := line[0]
	n := 0
	for n < len(line) && line[n] == c {
		n++
	}
	if n < len(line) && line[n] != ' ' {
		return 0
	}
	return n
}

// marker builds one marker line: length repeats of c, an optional
// label, and a newline.
func marker(c byte, length int, label string) []byte {
	var b bytes.Buffer
	b.Write(bytes.Repeat([]byte{c}, length))
	if label != "" {
		b.WriteByte(' ')
		b.WriteString(label)
	}
	b.WriteByte('\n')
	return b.Bytes()
}

// ensureTrailingNewline makes content safe to follow with a marker
// line. Empty content stays empty.
func ensureTrailingNewline(content []byte) []byte {
	if len(content) == 0 || content[len(content)-1] == '\n' {
		return content
	}
	out := make([]byte, 0, len(content)+1)
	out = append(out, content...)
	return append(out, '\n')
}

// Materialize renders a conflicted file as marker-delimited text,
// returning the text and the marker length it chose. Labels, if
// non-nil, must have one entry per side in (add0, rem0, add1, rem1,
// ...) order and are attached to the marker lines for diagnostics.
//
// A resolved input comes back verbatim with marker length 0: there is
// nothing to mark.
func Materialize(m merge.Merge[[]byte], style Style, labels []string) ([]byte, int) {
	if v, ok := m.Resolve(); ok {
		return v, 0
	}

	length := MarkerLen(m)
	if style == StyleGit && m.NumSides() == 3 {
		return materializeGit(m, length, labels), length
	}
	return materializeSnapshot(m, length, labels), length
}

// materializeSnapshot writes sides in interleaved order: positive
// side, then the negative side diffed away under it, and so on,
// ending on the final positive side.
func materializeSnapshot(m merge.Merge[[]byte], length int, labels []string) []byte {
	adds, removes := m.Added(), m.Removed()

	var b bytes.Buffer
	b.Write(marker('<', length, "conflict"))
	for i, add := range adds {
		b.Write(marker('+', length, sideLabel(labels, 2*i)))
		b.Write(ensureTrailingNewline(add))
		if i < len(removes) {
			b.Write(marker('-', length, sideLabel(labels, 2*i+1)))
			b.Write(ensureTrailingNewline(removes[i]))
		}
	}
	b.Write(marker('>', length, "conflict ends"))
	return b.Bytes()
}

// materializeGit writes a three-sided conflict in Git's merge-marker
// layout: first positive side, the negative (base) side, then the
// second positive side.
func materializeGit(m merge.Merge[[]byte], length int, labels []string) []byte {
	adds, removes := m.Added(), m.Removed()

	var b bytes.Buffer
	b.Write(marker('<', length, sideLabel(labels, 0)))
	b.Write(ensureTrailingNewline(adds[0]))
	b.Write(marker('|', length, sideLabel(labels, 1)))
	b.Write(ensureTrailingNewline(removes[0]))
	b.Write(marker('=', length, ""))
	b.Write(ensureTrailingNewline(adds[1]))
	b.Write(marker('>', length, sideLabel(labels, 2)))
	return b.Bytes()
}

func sideLabel(labels []string, i int) string {
	if i < len(labels) {
		return labels[i]
	}
	return ""
}
