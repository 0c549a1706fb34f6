package progress

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeClock advances only when told to, so tests control exactly
// which Display calls land inside the rate limit.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestReporter(buf *strings.Builder, width int) (*Reporter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	r := New(buf, Options{
		QuietDelay: -1,
		Width:      func() int { return width },
		Now:        clock.now,
	})
	return r, clock
}

func TestDisplay_WritesStatusLine(t *testing.T) {
	var buf strings.Builder
	r, _ := newTestReporter(&buf, 80)

	r.Display("working")
	assert.Equal(t, clearLine+"working", buf.String())
}

func TestDisplay_DropsCallsInsideRateLimit(t *testing.T) {
	var buf strings.Builder
	r, clock := newTestReporter(&buf, 80)

	r.Display("one")
	r.Display("two") // same instant: dropped
	clock.advance(updateInterval / 2)
	r.Display("three") // still too soon: dropped
	clock.advance(updateInterval)
	r.Display("four")

	assert.Equal(t, clearLine+"one"+clearLine+"four", buf.String())
}

func TestDisplay_QuietDelaySuppressesEarlyUpdates(t *testing.T) {
	var buf strings.Builder
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	r := New(&buf, Options{
		QuietDelay: time.Second,
		Width:      func() int { return 80 },
		Now:        clock.now,
	})

	r.Display("too early")
	assert.Empty(t, buf.String())

	clock.advance(2 * time.Second)
	r.Display("now")
	assert.Equal(t, clearLine+"now", buf.String())
}

func TestDisplay_TruncatesFromTheLeft(t *testing.T) {
	var buf strings.Builder
	r, _ := newTestReporter(&buf, 10)

	r.Display("copying path/to/some/file")
	assert.Equal(t, clearLine+"…some/file", buf.String())
}

func TestClose_ErasesDisplayedLine(t *testing.T) {
	var buf strings.Builder
	r, _ := newTestReporter(&buf, 80)

	r.Display("working")
	r.Close()
	assert.Equal(t, clearLine+"working"+clearLine, buf.String())
}

func TestClose_NoOpIfNothingDisplayed(t *testing.T) {
	var buf strings.Builder
	r, _ := newTestReporter(&buf, 80)

	r.Close()
	assert.Empty(t, buf.String())
}

func TestTruncateLeft(t *testing.T) {
	tests := []struct {
		give  string
		width int
		want  string
	}{
		{give: "short", width: 10, want: "short"},
		{give: "exactly ten", width: 11, want: "exactly ten"},
		{give: "abcdef", width: 4, want: "…def"},
		{give: "abcdef", width: 1, want: "…"},
	}

	for _, tt := range tests {
		t.Run(tt.give, func(t *testing.T) {
			assert.Equal(t, tt.want, truncateLeft(tt.give, tt.width))
		})
	}
}
