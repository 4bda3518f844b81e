// Package whisper runs a local whisper binary as both a chunk
// recognizer for live audio and a file provider for the fallback chain.
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/mattn/go-shellwords"
	"scribe.fm/pcm"
	"scribe.fm/stt"
)

// Exec shells out to a whisper-compatible command that accepts a WAV
// file and prints a JSON result on stdout. The mutex serializes runs;
// local models thrash when invoked concurrently.
type Exec struct {
	cmd       []string
	modelPath string
	language  string
	logger    *log.Logger
	mu        sync.Mutex
}

type execOutput struct {
	Text       string  `json:"text"`
	Language   string  `json:"language"`
	Confidence float64 `json:"confidence"`
	Segments   []struct {
		Text  string  `json:"text"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
	} `json:"segments"`
}

// NewExec parses the configured command line. modelPath and language
// are appended as flags when non-empty.
func NewExec(command, modelPath, language string, logger *log.Logger) (*Exec, error) {
	args, err := shellwords.NewParser().Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse whisper command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("whisper command is empty")
	}
	return &Exec{
		cmd:       args,
		modelPath: modelPath,
		language:  language,
		logger:    logger,
	}, nil
}

// Name implements stt.Provider.
func (e *Exec) Name() string { return "whisper" }

// Available reports whether the binary resolves on PATH.
func (e *Exec) Available() bool {
	_, err := exec.LookPath(e.cmd[0])
	return err == nil
}

// Transcribe implements stt.Provider for recorded files.
func (e *Exec) Transcribe(ctx context.Context, audioPath string) (stt.Result, error) {
	return e.run(ctx, audioPath, 0)
}

// Recognize implements stt.Recognizer for live chunks: the chunk is
// written to a temporary WAV, transcribed, and timestamps are shifted
// onto the session timeline.
func (e *Exec) Recognize(ctx context.Context, chunk pcm.Chunk) (stt.Result, error) {
	path, err := pcm.TempWAV(chunk)
	if err != nil {
		return stt.Result{}, err
	}
	defer os.Remove(path)

	return e.run(ctx, path, chunk.Start)
}

func (e *Exec) run(ctx context.Context, audioPath string, offset float64) (stt.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	args := append([]string{}, e.cmd[1:]...)
	args = append(args, "--audio", audioPath, "--output-json")
	if e.modelPath != "" {
		args = append(args, "--model", e.modelPath)
	}
	if e.language != "" {
		args = append(args, "--language", e.language)
	}

	command := exec.CommandContext(ctx, e.cmd[0], args...)
	var stdout, stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return stt.Result{}, fmt.Errorf("%w: whisper command: %v: %s",
			stt.ErrRecognitionFailed, err, stderr.String())
	}

	var out execOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return stt.Result{}, fmt.Errorf("%w: decode whisper output: %v",
			stt.ErrRecognitionFailed, err)
	}

	result := stt.Result{
		Text:       out.Text,
		Language:   out.Language,
		Confidence: out.Confidence,
	}
	for _, seg := range out.Segments {
		result.Segments = append(result.Segments, stt.TranscriptSegment{
			Text:       seg.Text,
			Start:      seg.Start + offset,
			End:        seg.End + offset,
			Confidence: out.Confidence,
		})
	}
	return result, nil
}
