package speaker

import (
	"testing"

	"scribe.fm/diarize"
	"scribe.fm/stt"
)

func word(text string, start, end float64, speaker string) stt.Word {
	return stt.Word{Text: text, Start: start, End: end, SpeakerID: speaker, ChannelIndex: -1}
}

func TestSegmentSplitsOnSpeakerChange(t *testing.T) {
	words := []stt.Word{
		word("Hello", 0.0, 0.5, "speaker_1"),
		word("world", 0.6, 1.0, "speaker_1"),
		word("Hi", 1.2, 1.4, "speaker_2"),
	}

	turns := Segment(words, SegmenterConfig{})
	if len(turns) != 2 {
		t.Fatalf("got %d turns, want 2", len(turns))
	}
	if turns[0].Text != "Hello world" || turns[0].Speaker != "speaker_1" {
		t.Errorf("first turn: %+v", turns[0])
	}
	if turns[0].Start != 0.0 || turns[0].End != 1.0 {
		t.Errorf("first turn span: %v-%v", turns[0].Start, turns[0].End)
	}
	if turns[1].Text != "Hi" || turns[1].Speaker != "speaker_2" {
		t.Errorf("second turn: %+v", turns[1])
	}
}

func TestSegmentSplitsOnLongGap(t *testing.T) {
	words := []stt.Word{
		word("before", 0.0, 0.4, "speaker_1"),
		word("after", 1.4, 1.8, "speaker_1"), // 1.0s gap > 0.75s
	}

	turns := Segment(words, SegmenterConfig{MaxWordGap: 0.75})
	if len(turns) != 2 {
		t.Fatalf("same speaker split on gap: got %d turns, want 2", len(turns))
	}
}

func TestSegmentSpeakerPriority(t *testing.T) {
	words := []stt.Word{
		{Text: "labeled", Start: 0, End: 0.4, SpeakerID: "speaker_7", ChannelIndex: 2},
		{Text: "channeled", Start: 2, End: 2.4, ChannelIndex: 2},
		{Text: "bare", Start: 4, End: 4.4, ChannelIndex: -1},
	}

	turns := Segment(words, SegmenterConfig{})
	if len(turns) != 3 {
		t.Fatalf("got %d turns", len(turns))
	}
	for i, want := range []string{"speaker_7", "channel_2", "speaker_1"} {
		if turns[i].Speaker != want {
			t.Errorf("turn %d speaker = %q, want %q", i, turns[i].Speaker, want)
		}
	}
}

func TestSegmentMergesShortTurns(t *testing.T) {
	// Two slivers of 100ms and 150ms right after a normal turn.
	words := []stt.Word{
		word("a", 0.0, 0.1, "speaker_1"),
		word("full", 0.1, 0.5, "speaker_1"),
		word("turn", 0.5, 1.0, "speaker_1"),
		word("uh", 2.0, 2.1, "speaker_1"),
		word("hm", 3.0, 3.15, "speaker_1"),
	}

	turns := Segment(words, SegmenterConfig{MaxWordGap: 0.75, MinMergeMillis: 300})
	if len(turns) != 1 {
		t.Fatalf("slivers not merged, got %d turns: %+v", len(turns), turns)
	}
	if turns[0].End != 3.15 {
		t.Errorf("merged end = %v, want 3.15", turns[0].End)
	}
	if turns[0].Text != "a full turn uh hm" {
		t.Errorf("merged text = %q", turns[0].Text)
	}
}

func TestSegmentDoesNotMergeAcrossSpeakers(t *testing.T) {
	words := []stt.Word{
		word("hello", 0.0, 0.8, "speaker_1"),
		word("hm", 1.0, 1.1, "speaker_2"), // short but different speaker
	}

	turns := Segment(words, SegmenterConfig{})
	if len(turns) != 2 {
		t.Fatalf("short turn merged across speakers, got %d turns", len(turns))
	}
}

func TestSegmentSortsUnorderedWords(t *testing.T) {
	words := []stt.Word{
		word("world", 0.6, 1.0, "speaker_1"),
		word("hello", 0.0, 0.5, "speaker_1"),
	}

	turns := Segment(words, SegmenterConfig{})
	if len(turns) != 1 || turns[0].Text != "hello world" {
		t.Errorf("turns = %+v", turns)
	}
}

func TestReconcileByMidpoint(t *testing.T) {
	segments := []stt.TranscriptSegment{
		{Text: "within", Start: 10, End: 12}, // midpoint 11
		{Text: "outside", Start: 20, End: 22},
	}
	intervals := []diarize.Interval{
		{Speaker: "A", Start: 9, End: 13},
	}

	got := Reconcile(segments, intervals)
	if got[0].Speaker != "Speaker A" {
		t.Errorf("first segment speaker = %q, want %q", got[0].Speaker, "Speaker A")
	}
	if got[1].Speaker != UnknownSpeaker {
		t.Errorf("uncovered segment speaker = %q, want %q", got[1].Speaker, UnknownSpeaker)
	}
}

func TestReconcileOverlapFirstIntervalWins(t *testing.T) {
	segments := []stt.TranscriptSegment{{Text: "contested", Start: 4, End: 6}} // midpoint 5
	intervals := []diarize.Interval{
		{Speaker: "B", Start: 4.5, End: 8},
		{Speaker: "A", Start: 0, End: 6},
	}

	got := Reconcile(segments, intervals)
	if got[0].Speaker != "Speaker A" {
		t.Errorf("speaker = %q, want earliest-starting interval (Speaker A)", got[0].Speaker)
	}
}

func TestReconcileDoesNotMutateInput(t *testing.T) {
	segments := []stt.TranscriptSegment{{Text: "x", Start: 1, End: 2}}
	Reconcile(segments, []diarize.Interval{{Speaker: "A", Start: 0, End: 3}})
	if segments[0].Speaker != "" {
		t.Error("input slice mutated")
	}
}

func TestFromTurns(t *testing.T) {
	turns := []Turn{{Speaker: "speaker_2", Start: 1, End: 2, Text: "hello"}}
	segs := FromTurns(turns, 0.9)
	if len(segs) != 1 || segs[0].Speaker != "speaker_2" || segs[0].Confidence != 0.9 {
		t.Errorf("segments = %+v", segs)
	}
}
