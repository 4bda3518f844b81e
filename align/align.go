// Package align maps summary text back to transcript timestamps using
// order-preserving fuzzy matching.
package align

import (
	"regexp"
	"strings"

	"github.com/charmbracelet/log"
	"scribe.fm/stt"
)

// Chapter is a unit of derived text (a summary section, a topic note)
// that wants a position on the transcript timeline. Start is only
// meaningful when Aligned is true.
type Chapter struct {
	Title   string  `json:"title"`
	Summary string  `json:"summary,omitempty"`
	Start   float64 `json:"start"`
	Aligned bool    `json:"aligned"`
}

// Config tunes the matcher.
type Config struct {
	// ConfidenceThreshold scales how much of the search cue must match
	// before an alignment is accepted.
	ConfidenceThreshold float64
	// CueChars caps the normalized search cue length.
	CueChars int
}

// \w would only cover ASCII here; accented and non-Latin transcripts
// need the Unicode classes.
var (
	nonWordRe = regexp.MustCompile(`[^\p{L}\p{N}_\s]`)
	spacesRe  = regexp.MustCompile(`\s+`)
)

// Normalize lowercases, strips punctuation, and collapses whitespace so
// recognition artifacts do not break substring matching.
func Normalize(text string) string {
	text = strings.ToLower(text)
	text = nonWordRe.ReplaceAllString(text, " ")
	text = spacesRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// corpus is the normalized transcript with a per-character map back to
// the segment each character came from.
type corpus struct {
	text          string
	charToSegment []int
}

func buildCorpus(segments []stt.TranscriptSegment) corpus {
	var parts []string
	var charMap []int

	for i, seg := range segments {
		normalized := Normalize(seg.Text)
		if normalized == "" {
			continue
		}
		// +1 covers the joining space after this segment's text.
		for j := 0; j < len(normalized)+1; j++ {
			charMap = append(charMap, i)
		}
		parts = append(parts, normalized)
	}
	return corpus{text: strings.Join(parts, " "), charToSegment: charMap}
}

// Chapters aligns each chapter to a transcript start time. Matching is
// monotonic: each chapter searches only forward of the previous match,
// so a phrase repeated later in the session cannot pull a chapter
// backwards. A chapter whose best match is too short stays unaligned
// rather than guessing.
func Chapters(chapters []Chapter, segments []stt.TranscriptSegment, cfg Config, logger *log.Logger) []Chapter {
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = 0.6
	}
	if cfg.CueChars <= 0 {
		cfg.CueChars = 180
	}

	out := append([]Chapter(nil), chapters...)
	if len(segments) == 0 || len(chapters) == 0 {
		return out
	}

	c := buildCorpus(segments)
	if c.text == "" {
		return out
	}

	lastPosition := 0
	for i := range out {
		source := out[i].Summary
		if source == "" {
			source = out[i].Title
		}
		cue := Normalize(source)
		if runes := []rune(cue); len(runes) > cfg.CueChars {
			cue = string(runes[:cfg.CueChars])
		}
		if cue == "" {
			continue
		}

		pos, size := longestMatch(c.text[lastPosition:], cue)

		minSize := float64(len(cue)) * cfg.ConfidenceThreshold
		if minSize > 30 {
			minSize = 30
		}
		if float64(size) < minSize {
			logger.Warn("low confidence match, leaving chapter unaligned",
				"title", out[i].Title)
			continue
		}

		absolute := lastPosition + pos
		if absolute >= len(c.charToSegment) {
			continue
		}
		segIdx := c.charToSegment[absolute]
		out[i].Start = segments[segIdx].Start
		out[i].Aligned = true
		lastPosition = absolute
	}

	return EnsureMonotonic(out)
}

// EnsureMonotonic bumps any aligned chapter that lands before its
// predecessor to one second after it. Recognition noise occasionally
// matches a later chapter to earlier text even with the forward-only
// search window.
func EnsureMonotonic(chapters []Chapter) []Chapter {
	out := append([]Chapter(nil), chapters...)
	last := 0.0
	for i := range out {
		if !out[i].Aligned {
			continue
		}
		if out[i].Start < last {
			out[i].Start = last + 1.0
		}
		last = out[i].Start
	}
	return out
}

// longestMatch finds the longest common substring of a and b, returning
// its position in a and its length. Ties resolve to the earliest
// position in a.
func longestMatch(a, b string) (pos, size int) {
	if a == "" || b == "" {
		return 0, 0
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)

	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				cur[j] = prev[j-1] + 1
				if cur[j] > size {
					size = cur[j]
					pos = i - cur[j]
				}
			} else {
				cur[j] = 0
			}
		}
		prev, cur = cur, prev
	}
	return pos, size
}
