// Package speaker turns word streams and diarization intervals into
// speaker-attributed turns.
package speaker

import (
	"fmt"
	"strings"

	"scribe.fm/stt"
)

const defaultSpeaker = "speaker_1"

// Turn is a contiguous run of words from one speaker.
type Turn struct {
	Speaker string
	Start   float64
	End     float64
	Text    string
}

func (t Turn) duration() float64 { return t.End - t.Start }

// SegmenterConfig tunes turn boundaries.
type SegmenterConfig struct {
	// MaxWordGap splits a turn when the silence between consecutive
	// words from the same speaker exceeds it, in seconds.
	MaxWordGap float64
	// MinMergeMillis folds a turn shorter than this into the previous
	// turn when both have the same speaker.
	MinMergeMillis int
}

// Segment groups timestamped words into speaker turns. Word speaker
// labels are taken from the recognizer's speaker ID when present, the
// channel index otherwise, and a single default speaker as the last
// resort. A new turn opens on a speaker change or on a pause longer
// than MaxWordGap; a second pass merges sub-threshold slivers into
// their predecessor.
func Segment(words []stt.Word, cfg SegmenterConfig) []Turn {
	if cfg.MaxWordGap <= 0 {
		cfg.MaxWordGap = 0.75
	}
	if cfg.MinMergeMillis <= 0 {
		cfg.MinMergeMillis = 300
	}

	stt.SortWords(words)

	var turns []Turn
	var texts []string

	flush := func() {
		if len(turns) == 0 {
			return
		}
		turns[len(turns)-1].Text = strings.Join(texts, " ")
		texts = texts[:0]
	}

	for _, w := range words {
		label := wordSpeaker(w)

		if len(turns) > 0 {
			cur := &turns[len(turns)-1]
			if cur.Speaker == label && w.Start-cur.End <= cfg.MaxWordGap {
				cur.End = w.End
				texts = append(texts, w.Text)
				continue
			}
		}

		flush()
		turns = append(turns, Turn{Speaker: label, Start: w.Start, End: w.End})
		texts = append(texts, w.Text)
	}
	flush()

	return mergeSlivers(turns, float64(cfg.MinMergeMillis)/1000)
}

// mergeSlivers folds turns shorter than minSeconds into the previous
// turn of the same speaker. Slivers come from breath sounds and clipped
// word tails that the recognizer stamps as separate words.
func mergeSlivers(turns []Turn, minSeconds float64) []Turn {
	if len(turns) < 2 {
		return turns
	}
	merged := turns[:1]
	for _, t := range turns[1:] {
		prev := &merged[len(merged)-1]
		if t.duration() < minSeconds && t.Speaker == prev.Speaker {
			prev.End = t.End
			prev.Text = strings.TrimSpace(prev.Text + " " + t.Text)
			continue
		}
		merged = append(merged, t)
	}
	return merged
}

func wordSpeaker(w stt.Word) string {
	if w.SpeakerID != "" {
		return w.SpeakerID
	}
	if w.ChannelIndex >= 0 {
		return fmt.Sprintf("channel_%d", w.ChannelIndex)
	}
	return defaultSpeaker
}
