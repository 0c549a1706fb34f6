package conflicts

import (
	"bytes"
	"fmt"

	"go.abhg.dev/opvc/internal/merge"
)

// Parse recovers the conflict a file was materialized from, given the
// style and marker length recorded for it in the working-copy state.
// A marker length of zero means the file was written resolved, and
// the whole content comes back as a single side.
func Parse(text []byte, style Style, markerLen int) (merge.Merge[[]byte], error) {
	if markerLen == 0 {
		return merge.Resolved(text), nil
	}

	switch style {
	case StyleGit:
		if m, err := parseGit(text, markerLen); err == nil {
			return m, nil
		}
		// Not in git layout: higher-arity conflicts fall back to the
		// snapshot layout at materialize time, so try that next.
		return parseSnapshot(text, markerLen)
	case StyleSnapshot:
		return parseSnapshot(text, markerLen)
	default:
		return merge.Merge[[]byte]{}, fmt.Errorf("unknown conflict marker style %d", style)
	}
}

// section is one marker-delimited span of the file.
type section struct {
	kind    byte // the marker character that opened it
	content []byte
}

// splitSections cuts text at every marker line of exactly markerLen
// repeats, returning one section per marker in order. Content before
// the first marker is rejected: a materialized conflict always opens
// with one.
func splitSections(text []byte, markerLen int) ([]section, error) {
	var sections []section
	for line := range bytes.Lines(text) {
		run := markerRun(line)
		if run == markerLen {
			sections = append(sections, section{kind: line[0]})
			continue
		}
		if len(sections) == 0 {
			return nil, fmt.Errorf("content before first conflict marker")
		}
		last := &sections[len(sections)-1]
		last.content = append(last.content, line...)
	}
	return sections, nil
}

// parseSnapshot reads the interleaved layout written by
// materializeSnapshot: '<', then alternating '+' and '-' sections,
// then '>'.
func parseSnapshot(text []byte, markerLen int) (merge.Merge[[]byte], error) {
	sections, err := splitSections(text, markerLen)
	if err != nil {
		return merge.Merge[[]byte]{}, err
	}
	if len(sections) < 2 || sections[0].kind != '<' || sections[len(sections)-1].kind != '>' {
		return merge.Merge[[]byte]{}, fmt.Errorf("malformed conflict: missing enclosing markers")
	}
	if len(sections[0].content) > 0 {
		return merge.Merge[[]byte]{}, fmt.Errorf("malformed conflict: content before first side")
	}

	var adds, removes [][]byte
	wantAdd := true
	for _, sec := range sections[1 : len(sections)-1] {
		switch {
		case sec.kind == '+' && wantAdd:
			adds = append(adds, sec.content)
			wantAdd = false
		case sec.kind == '-' && !wantAdd:
			removes = append(removes, sec.content)
			wantAdd = true
		default:
			return merge.Merge[[]byte]{}, fmt.Errorf("malformed conflict: unexpected %q section", sec.kind)
		}
	}
	if len(adds) != len(removes)+1 {
		return merge.Merge[[]byte]{}, fmt.Errorf("malformed conflict: %d positive sides for %d negative", len(adds), len(removes))
	}
	return merge.New(adds, removes), nil
}

// parseGit reads the three-sided layout written by materializeGit.
func parseGit(text []byte, markerLen int) (merge.Merge[[]byte], error) {
	sections, err := splitSections(text, markerLen)
	if err != nil {
		return merge.Merge[[]byte]{}, err
	}
	if len(sections) != 4 {
		return merge.Merge[[]byte]{}, fmt.Errorf("malformed conflict: want 4 marker sections, got %d", len(sections))
	}
	for i, want := range []byte{'<', '|', '=', '>'} {
		if sections[i].kind != want {
			return merge.Merge[[]byte]{}, fmt.Errorf("malformed conflict: want %q marker, got %q", want, sections[i].kind)
		}
	}
	if len(sections[3].content) > 0 {
		return merge.Merge[[]byte]{}, fmt.Errorf("malformed conflict: content after closing marker")
	}

	return merge.New(
		[][]byte{sections[0].content, sections[2].content},
		[][]byte{sections[1].content},
	), nil
}
