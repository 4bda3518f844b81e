// Package transcript maintains the rolling text of a live session.
package transcript

import (
	"strings"
	"sync"

	"scribe.fm/stt"
)

// Assembler accumulates accepted segments into a continuous transcript.
// The rolling window bounds what the live view renders; the full history
// is retained separately so the final artifacts cover the whole session.
// Render is a pure function of the held segments, so rendering twice
// without an Add in between yields identical output.
type Assembler struct {
	mu            sync.Mutex
	segments      []stt.TranscriptSegment
	history       []stt.TranscriptSegment
	windowSeconds float64
	paragraphGap  float64
}

// NewAssembler builds an assembler. windowSeconds bounds how far back
// segments are retained (0 keeps everything); paragraphGap is the
// silence, in seconds, that starts a new paragraph.
func NewAssembler(windowSeconds, paragraphGap float64) *Assembler {
	if paragraphGap <= 0 {
		paragraphGap = 2.0
	}
	return &Assembler{
		windowSeconds: windowSeconds,
		paragraphGap:  paragraphGap,
	}
}

// Add appends a segment and evicts segments that have fallen out of the
// rolling window, measured from the newest segment's end time.
func (a *Assembler) Add(seg stt.TranscriptSegment) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.windowSeconds > 0 {
		for len(a.segments) > 0 && seg.End-a.segments[0].End > a.windowSeconds {
			a.segments = a.segments[1:]
		}
	}
	a.segments = append(a.segments, seg)
	stt.SortSegments(a.segments)

	a.history = append(a.history, seg)
	stt.SortSegments(a.history)
}

// Segments returns a copy of the windowed segments in start order.
func (a *Assembler) Segments() []stt.TranscriptSegment {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]stt.TranscriptSegment(nil), a.segments...)
}

// History returns every segment ever added, in start order, regardless
// of the rolling window.
func (a *Assembler) History() []stt.TranscriptSegment {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]stt.TranscriptSegment(nil), a.history...)
}

// Len reports how many segments are currently held.
func (a *Assembler) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.segments)
}

// Render joins the windowed segments into display text. A gap longer
// than the paragraph threshold becomes a blank line; otherwise segments
// are separated by a single space, except directly after terminal
// punctuation where the next segment follows with no separator.
func (a *Assembler) Render() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return render(a.segments, a.paragraphGap)
}

// RenderFull renders the complete history with the same joining rules.
func (a *Assembler) RenderFull() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return render(a.history, a.paragraphGap)
}

// Recent returns the text of segments whose end falls within the given
// number of seconds before the newest segment, joined with single
// spaces.
func (a *Assembler) Recent(seconds float64) string {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.segments) == 0 {
		return ""
	}
	newest := a.segments[len(a.segments)-1].End

	var parts []string
	for _, seg := range a.segments {
		if newest-seg.End <= seconds {
			parts = append(parts, strings.TrimSpace(seg.Text))
		}
	}
	return strings.Join(parts, " ")
}

func render(segments []stt.TranscriptSegment, paragraphGap float64) string {
	var b strings.Builder
	lastEnd := 0.0

	for i, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		if i > 0 {
			if seg.Start-lastEnd > paragraphGap {
				b.WriteString("\n\n")
			} else if !endsSentence(b.String()) {
				b.WriteString(" ")
			}
		}
		b.WriteString(text)
		lastEnd = seg.End
	}
	return b.String()
}

func endsSentence(s string) bool {
	if s == "" {
		return true
	}
	switch s[len(s)-1] {
	case '.', '!', '?', '\n':
		return true
	}
	return false
}
