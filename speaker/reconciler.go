package speaker

import (
	"fmt"

	"scribe.fm/diarize"
	"scribe.fm/stt"
)

// UnknownSpeaker labels segments whose midpoint falls outside every
// diarization interval.
const UnknownSpeaker = "Unknown"

// Reconcile attributes each transcript segment to a speaker by looking
// up the segment's temporal midpoint in the diarization intervals. When
// intervals overlap, the earliest-starting interval containing the
// midpoint wins; the midpoint rule keeps attribution stable when
// recognition and diarization disagree slightly about boundaries.
// Segments are returned in start order with Speaker filled in.
func Reconcile(segments []stt.TranscriptSegment, intervals []diarize.Interval) []stt.TranscriptSegment {
	diarize.SortIntervals(intervals)

	out := make([]stt.TranscriptSegment, len(segments))
	copy(out, segments)
	stt.SortSegments(out)

	for i := range out {
		mid := (out[i].Start + out[i].End) / 2
		out[i].Speaker = speakerAt(mid, intervals)
	}
	return out
}

func speakerAt(t float64, intervals []diarize.Interval) string {
	for _, iv := range intervals {
		if t >= iv.Start && t <= iv.End {
			return fmt.Sprintf("Speaker %s", iv.Speaker)
		}
	}
	return UnknownSpeaker
}

// FromTurns converts speaker turns into transcript segments, carrying
// the turn's speaker label through unchanged.
func FromTurns(turns []Turn, confidence float64) []stt.TranscriptSegment {
	segments := make([]stt.TranscriptSegment, 0, len(turns))
	for _, t := range turns {
		segments = append(segments, stt.TranscriptSegment{
			Text:       t.Text,
			Start:      t.Start,
			End:        t.End,
			Confidence: confidence,
			Speaker:    t.Speaker,
		})
	}
	return segments
}
