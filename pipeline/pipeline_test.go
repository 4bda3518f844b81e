package pipeline

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"scribe.fm/config"
	"scribe.fm/diarize"
	"scribe.fm/pcm"
	"scribe.fm/session"
	"scribe.fm/stt"
)

type fakeChain struct {
	result stt.Result
	err    error
}

func (f *fakeChain) Transcribe(ctx context.Context, audioPath string) (stt.Result, error) {
	return f.result, f.err
}

type fakeDiarizer struct {
	intervals []diarize.Interval
	err       error
	available bool
}

func (f *fakeDiarizer) Name() string    { return "fake" }
func (f *fakeDiarizer) Available() bool { return f.available }

func (f *fakeDiarizer) Diarize(ctx context.Context, audioPath string) ([]diarize.Interval, error) {
	return f.intervals, f.err
}

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		SampleRate:          16000,
		LiveChunkSeconds:    3.0,
		MinChunkSeconds:     0.5,
		ChunkQueueSize:      4,
		ResultQueueSize:     8,
		MinSegmentChars:     3,
		SilenceEnergy:       1e-6,
		DedupWindow:         3,
		ParagraphGapSeconds: 2.0,
		LiveWindowSeconds:   300,
		MaxWordGapSeconds:   0.75,
		MinMergeMillis:      300,
		StopTimeout:         time.Second,
		SessionDir:          t.TempDir(),
		Language:            "en",
	}
}

func testPipeline(t *testing.T, chain FileTranscriber, d diarize.Diarizer) *Pipeline {
	t.Helper()
	logger := log.New(io.Discard)
	cfg := testConfig(t)
	return &Pipeline{
		Config:   cfg,
		Logger:   logger,
		Store:    session.NewStore(cfg.SessionDir, logger),
		Chain:    chain,
		Diarizer: d,
	}
}

func TestBuildDedupesRepeatedProviders(t *testing.T) {
	cfg := testConfig(t)
	cfg.ProviderOrder = []string{"whisper+diarize", "whisper"}
	cfg.WhisperCommand = "/bin/sh"

	p, err := Build(cfg, log.New(io.Discard))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	chain, ok := p.Chain.(*stt.Chain)
	if !ok {
		t.Fatalf("chain type = %T", p.Chain)
	}
	if names := chain.Providers(); len(names) != 1 || names[0] != "whisper" {
		t.Errorf("providers = %v, want one whisper entry", names)
	}
}

func TestTranscribeFileWithIntegratedDiarization(t *testing.T) {
	chain := &fakeChain{result: stt.Result{
		Provider: "scribe",
		Language: "en",
		Diarized: true,
		Words: []stt.Word{
			{Text: "hello", Start: 0, End: 0.4, SpeakerID: "speaker_1", ChannelIndex: -1},
			{Text: "there", Start: 0.5, End: 0.9, SpeakerID: "speaker_1", ChannelIndex: -1},
			{Text: "hi", Start: 1.2, End: 1.4, SpeakerID: "speaker_2", ChannelIndex: -1},
		},
	}}

	p := testPipeline(t, chain, &fakeDiarizer{})
	sess, err := p.TranscribeFile(context.Background(), "meeting.wav")
	if err != nil {
		t.Fatalf("TranscribeFile: %v", err)
	}

	segments, err := sess.Segments()
	if err != nil {
		t.Fatal(err)
	}
	if len(segments) != 2 {
		t.Fatalf("got %d segments, want 2 turns", len(segments))
	}
	if segments[0].Speaker != "speaker_1" || segments[1].Speaker != "speaker_2" {
		t.Errorf("speakers: %q, %q", segments[0].Speaker, segments[1].Speaker)
	}
	if segments[0].Text != "hello there" {
		t.Errorf("first turn text = %q", segments[0].Text)
	}
	if !sess.Meta.Diarized || sess.Meta.Provider != "scribe" {
		t.Errorf("metadata: %+v", sess.Meta)
	}
}

func TestTranscribeFileWithSeparateDiarization(t *testing.T) {
	chain := &fakeChain{result: stt.Result{
		Provider: "whisper",
		Segments: []stt.TranscriptSegment{
			{Text: "first part", Start: 10, End: 12},
			{Text: "second part", Start: 20, End: 22},
		},
	}}
	d := &fakeDiarizer{
		available: true,
		intervals: []diarize.Interval{
			{Speaker: "A", Start: 9, End: 13},
			{Speaker: "B", Start: 19, End: 23},
		},
	}

	p := testPipeline(t, chain, d)
	sess, err := p.TranscribeFile(context.Background(), "meeting.wav")
	if err != nil {
		t.Fatalf("TranscribeFile: %v", err)
	}

	segments, _ := sess.Segments()
	if segments[0].Speaker != "Speaker A" || segments[1].Speaker != "Speaker B" {
		t.Errorf("speakers: %q, %q", segments[0].Speaker, segments[1].Speaker)
	}
	if !sess.Meta.Diarized {
		t.Error("metadata not marked diarized")
	}
}

func TestTranscribeFileDiarizerFailureIsNonFatal(t *testing.T) {
	chain := &fakeChain{result: stt.Result{
		Provider: "whisper",
		Segments: []stt.TranscriptSegment{{Text: "some speech", Start: 0, End: 2}},
	}}
	d := &fakeDiarizer{available: true, err: stt.ErrDiarizationUnavailable}

	p := testPipeline(t, chain, d)
	sess, err := p.TranscribeFile(context.Background(), "meeting.wav")
	if err != nil {
		t.Fatalf("diarizer failure surfaced as fatal: %v", err)
	}
	if sess.Meta.Diarized {
		t.Error("metadata claims diarization that never happened")
	}

	segments, _ := sess.Segments()
	if len(segments) != 1 || segments[0].Speaker != "" {
		t.Errorf("segments = %+v", segments)
	}
}

func TestTranscribeFileChainFailureRecordsError(t *testing.T) {
	chain := &fakeChain{err: stt.ErrAllProvidersExhausted}

	p := testPipeline(t, chain, &fakeDiarizer{})
	sess, err := p.TranscribeFile(context.Background(), "meeting.wav")
	if !errors.Is(err, stt.ErrAllProvidersExhausted) {
		t.Fatalf("error = %v", err)
	}
	if sess == nil {
		t.Fatal("session not returned on failure")
	}

	opened, openErr := p.Store.Open(sess.Meta.ID)
	if openErr != nil {
		t.Fatal(openErr)
	}
	if !strings.Contains(opened.Meta.Error, "exhausted") {
		t.Errorf("recorded error = %q", opened.Meta.Error)
	}
}

func TestTranscribeFileTextOnlyResult(t *testing.T) {
	chain := &fakeChain{result: stt.Result{Provider: "whisper", Text: "just plain text"}}

	p := testPipeline(t, chain, &fakeDiarizer{})
	sess, err := p.TranscribeFile(context.Background(), "note.wav")
	if err != nil {
		t.Fatalf("TranscribeFile: %v", err)
	}
	segments, _ := sess.Segments()
	if len(segments) != 1 || segments[0].Text != "just plain text" {
		t.Errorf("segments = %+v", segments)
	}
}

type fakeSource struct {
	chunks  chan pcm.Chunk
	stopped sync.Once
	stops   chan struct{}
}

func newFakeSource() *fakeSource {
	return &fakeSource{chunks: make(chan pcm.Chunk, 8), stops: make(chan struct{})}
}

func (f *fakeSource) Chunks() <-chan pcm.Chunk { return f.chunks }
func (f *fakeSource) Err() error               { return nil }

func (f *fakeSource) Stop() error {
	f.stopped.Do(func() {
		close(f.stops)
		close(f.chunks)
	})
	return nil
}

func TestForwardDeliversUntilSourceCloses(t *testing.T) {
	p := testPipeline(t, &fakeChain{}, &fakeDiarizer{})

	rec := &blockedRecognizer{}
	worker := stt.NewWorker(rec, stt.WorkerConfig{ChunkQueueSize: 8}, p.Logger, nil)

	src := newFakeSource()
	src.chunks <- pcm.Chunk{Samples: make([]int16, 100), SampleRate: 16000}
	src.chunks <- pcm.Chunk{Samples: make([]int16, 100), SampleRate: 16000}
	close(src.chunks)

	done := make(chan struct{})
	go func() {
		p.forward(context.Background(), src, worker)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("forward did not return after source closed")
	}
}

func TestForwardStopsSourceOnCancel(t *testing.T) {
	p := testPipeline(t, &fakeChain{}, &fakeDiarizer{})
	worker := stt.NewWorker(&blockedRecognizer{}, stt.WorkerConfig{ChunkQueueSize: 8}, p.Logger, nil)

	src := newFakeSource()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		p.forward(ctx, src, worker)
		close(done)
	}()

	cancel()
	select {
	case <-src.stops:
	case <-time.After(time.Second):
		t.Fatal("cancel did not stop the source")
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("forward did not return after stop")
	}
}

type blockedRecognizer struct{}

func (b *blockedRecognizer) Recognize(ctx context.Context, chunk pcm.Chunk) (stt.Result, error) {
	<-ctx.Done()
	return stt.Result{}, ctx.Err()
}
