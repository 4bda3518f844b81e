package stt

import (
	"context"
	"errors"
	"sort"

	"scribe.fm/pcm"
)

// Error taxonomy. Per-chunk failures never unwind the pipeline; only
// ErrSourceUnavailable and ErrAllProvidersExhausted reach the caller.
var (
	ErrSourceUnavailable      = errors.New("audio source unavailable")
	ErrRecognitionFailed      = errors.New("recognition failed")
	ErrDiarizationUnavailable = errors.New("diarization unavailable")
	ErrAllProvidersExhausted  = errors.New("all providers exhausted")
)

// Word is a single recognized token with timing. SpeakerID is set only
// by diarizing providers; ChannelIndex (-1 when absent) identifies the
// speaker on multi-channel audio.
type Word struct {
	Text         string  `json:"text"`
	Start        float64 `json:"start"`
	End          float64 `json:"end"`
	SpeakerID    string  `json:"speaker_id,omitempty"`
	ChannelIndex int     `json:"channel_index"`
	Kind         string  `json:"kind"`
}

// TranscriptSegment is the atomic unit flowing through the live
// pipeline. Start <= End always holds.
type TranscriptSegment struct {
	Text       string  `json:"text"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Confidence float64 `json:"confidence"`
	Speaker    string  `json:"speaker,omitempty"`
}

// Result is a recognition pass over one chunk or one file.
type Result struct {
	Text       string              `json:"text"`
	Language   string              `json:"language,omitempty"`
	Segments   []TranscriptSegment `json:"segments"`
	Words      []Word              `json:"words,omitempty"`
	Diarized   bool                `json:"diarized"`
	Provider   string              `json:"provider,omitempty"`
	Confidence float64             `json:"confidence"`
}

// Recognizer turns one audio chunk into text. Implementations block for
// the duration of the call; the worker treats it as atomic per chunk.
type Recognizer interface {
	Recognize(ctx context.Context, chunk pcm.Chunk) (Result, error)
}

// Provider transcribes a whole audio file. Availability is checked once
// when a fallback chain is built, not per request.
type Provider interface {
	Name() string
	Available() bool
	Transcribe(ctx context.Context, audioPath string) (Result, error)
}

// SortSegments orders segments by start time. Required before assembly
// whenever more than one recognition worker produced them, and before
// handing segments to the speaker segmenter or the aligner.
func SortSegments(segments []TranscriptSegment) {
	sort.SliceStable(segments, func(i, j int) bool {
		return segments[i].Start < segments[j].Start
	})
}

// SortWords orders words by start time.
func SortWords(words []Word) {
	sort.SliceStable(words, func(i, j int) bool {
		return words[i].Start < words[j].Start
	})
}
