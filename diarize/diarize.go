// Package diarize answers "who spoke when" for a recorded audio file,
// independently of what was said.
package diarize

import (
	"context"
	"sort"
)

// Interval is one span of speech attributed to a single speaker.
// Intervals from one diarization run are non-overlapping in the normal
// case, but overlap is not rejected; consumers resolve it.
type Interval struct {
	Speaker string  `json:"speaker"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
}

// Diarizer produces speaker intervals for an audio file.
type Diarizer interface {
	Name() string
	Available() bool
	Diarize(ctx context.Context, audioPath string) ([]Interval, error)
}

// SortIntervals orders intervals by start time, stably.
func SortIntervals(intervals []Interval) {
	sort.SliceStable(intervals, func(i, j int) bool {
		return intervals[i].Start < intervals[j].Start
	})
}
