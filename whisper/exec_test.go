package whisper

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	"scribe.fm/pcm"
	"scribe.fm/stt"
)

// fakeWhisper writes a shell script that prints a canned JSON result,
// standing in for the real binary.
func fakeWhisper(t *testing.T, output string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "whisper-fake")
	script := "#!/bin/sh\ncat <<'EOF'\n" + output + "\nEOF\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestTranscribeParsesOutput(t *testing.T) {
	bin := fakeWhisper(t, `{
		"text": "hello there",
		"language": "en",
		"confidence": 0.9,
		"segments": [
			{"text": "hello", "start": 0.0, "end": 1.0},
			{"text": "there", "start": 1.0, "end": 2.0}
		]
	}`)

	e, err := NewExec(bin, "base", "en", log.New(io.Discard))
	if err != nil {
		t.Fatal(err)
	}

	result, err := e.Transcribe(context.Background(), "meeting.wav")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if result.Text != "hello there" || result.Language != "en" {
		t.Errorf("result = %+v", result)
	}
	if len(result.Segments) != 2 || result.Segments[1].Start != 1.0 {
		t.Errorf("segments = %+v", result.Segments)
	}
	if result.Segments[0].Confidence != 0.9 {
		t.Errorf("confidence = %v", result.Segments[0].Confidence)
	}
}

func TestRecognizeShiftsTimestamps(t *testing.T) {
	bin := fakeWhisper(t, `{
		"text": "later words",
		"segments": [{"text": "later words", "start": 0.5, "end": 2.5}]
	}`)

	e, err := NewExec(bin, "", "", log.New(io.Discard))
	if err != nil {
		t.Fatal(err)
	}

	chunk := pcm.Chunk{Samples: make([]int16, 1600), SampleRate: 16000, Start: 30.0}
	result, err := e.Recognize(context.Background(), chunk)
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if len(result.Segments) != 1 {
		t.Fatalf("segments = %+v", result.Segments)
	}
	if result.Segments[0].Start != 30.5 || result.Segments[0].End != 32.5 {
		t.Errorf("shifted segment = %+v", result.Segments[0])
	}
}

func TestTranscribeBadOutputIsRecognitionFailure(t *testing.T) {
	bin := fakeWhisper(t, "not json at all")

	e, err := NewExec(bin, "", "", log.New(io.Discard))
	if err != nil {
		t.Fatal(err)
	}

	_, err = e.Transcribe(context.Background(), "meeting.wav")
	if !errors.Is(err, stt.ErrRecognitionFailed) {
		t.Errorf("err = %v", err)
	}
}

func TestNewExecRejectsBadCommand(t *testing.T) {
	if _, err := NewExec("", "", "", log.New(io.Discard)); err == nil {
		t.Error("empty command accepted")
	}
	if _, err := NewExec(`whisper "unterminated`, "", "", log.New(io.Discard)); err == nil {
		t.Error("unterminated quote accepted")
	}
}

func TestAvailability(t *testing.T) {
	e, err := NewExec("/does/not/exist/whisper", "", "", log.New(io.Discard))
	if err != nil {
		t.Fatal(err)
	}
	if e.Available() {
		t.Error("missing binary reported available")
	}
	if e.Name() != "whisper" {
		t.Errorf("name = %q", e.Name())
	}
}
