// Package pipeline wires audio sources, recognition, speaker
// attribution, and persistence into the two top-level flows: live
// transcription of a stream and batch transcription of a file.
package pipeline

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"scribe.fm/config"
	"scribe.fm/diarize"
	"scribe.fm/scribe"
	"scribe.fm/session"
	"scribe.fm/snd"
	"scribe.fm/speaker"
	"scribe.fm/stt"
	"scribe.fm/transcript"
	"scribe.fm/whisper"
)

// FileTranscriber is what the file flow needs from the provider chain.
type FileTranscriber interface {
	Transcribe(ctx context.Context, audioPath string) (stt.Result, error)
}

// Pipeline holds the assembled components. Fields are exported so the
// flows can be exercised with fakes.
type Pipeline struct {
	Config     *config.Config
	Logger     *log.Logger
	Store      *session.Store
	Recognizer stt.Recognizer
	Chain      FileTranscriber
	Diarizer   diarize.Diarizer
}

// Build wires a pipeline from configuration: the provider fallback
// chain in configured order, a local recognizer for live audio, the
// standalone diarizer, and the session store.
func Build(cfg *config.Config, logger *log.Logger) (*Pipeline, error) {
	exec, err := whisper.NewExec(cfg.WhisperCommand, cfg.WhisperModel, cfg.Language, logger)
	if err != nil {
		return nil, err
	}

	// "whisper+diarize" and "whisper" resolve to the same local
	// recognizer; the tiers differ only in the separate diarization pass,
	// so a repeated provider would just retry an identical failed run.
	var providers []stt.Provider
	seen := make(map[string]bool)
	for _, name := range cfg.ProviderOrder {
		var p stt.Provider
		switch name {
		case "scribe":
			p = scribe.NewClient(cfg.ScribeAPIKey, cfg.ScribeBaseURL, cfg.MaxRetries, true, logger)
		case "whisper", "whisper+diarize":
			p = exec
		default:
			return nil, fmt.Errorf("unknown provider %q in provider order", name)
		}
		if seen[p.Name()] {
			continue
		}
		seen[p.Name()] = true
		providers = append(providers, p)
	}

	chain, err := stt.NewChain(logger, providers...)
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		Config:     cfg,
		Logger:     logger,
		Store:      session.NewStore(cfg.SessionDir, logger),
		Recognizer: exec,
		Chain:      chain,
		Diarizer:   diarize.NewHTTPClient(cfg.DiarizeAPIKey, cfg.DiarizeBaseURL, cfg.MaxRetries, logger),
	}, nil
}

// TranscribeFile runs the batch flow: recognition through the provider
// chain, then speaker attribution from word labels when the winning
// provider diarized, or from a separate diarization pass when it did
// not. Diarization failure downgrades attribution instead of failing
// the session.
func (p *Pipeline) TranscribeFile(ctx context.Context, audioPath string) (*session.Session, error) {
	sess, err := p.Store.Create(audioPath)
	if err != nil {
		return nil, err
	}

	result, err := p.Chain.Transcribe(ctx, audioPath)
	if err != nil {
		if saveErr := sess.Finish("", "", false, err); saveErr != nil {
			p.Logger.Error("recording failed session", "error", saveErr)
		}
		return sess, err
	}

	segments, diarized := p.attribute(ctx, audioPath, result)
	stt.SortSegments(segments)

	text := renderText(segments, p.Config.ParagraphGapSeconds)
	if err := sess.SaveArtifacts(segments, text); err != nil {
		return sess, err
	}
	if err := sess.Finish(result.Provider, result.Language, diarized, nil); err != nil {
		return sess, err
	}

	p.Logger.Info("file transcribed",
		"input", audioPath, "provider", result.Provider,
		"segments", len(segments), "diarized", diarized)
	return sess, nil
}

// attribute picks the best available speaker attribution for a result.
func (p *Pipeline) attribute(ctx context.Context, audioPath string, result stt.Result) ([]stt.TranscriptSegment, bool) {
	if result.Diarized && len(result.Words) > 0 {
		turns := speaker.Segment(result.Words, speaker.SegmenterConfig{
			MaxWordGap:     p.Config.MaxWordGapSeconds,
			MinMergeMillis: p.Config.MinMergeMillis,
		})
		return speaker.FromTurns(turns, result.Confidence), true
	}

	segments := result.Segments
	if len(segments) == 0 {
		segments = fallbackSegments(result)
	}

	if p.Diarizer == nil || !p.Diarizer.Available() {
		return segments, false
	}
	intervals, err := p.Diarizer.Diarize(ctx, audioPath)
	if err != nil {
		p.Logger.Warn("diarization unavailable, keeping unattributed transcript", "error", err)
		return segments, false
	}
	return speaker.Reconcile(segments, intervals), true
}

// fallbackSegments wraps a words-or-text-only result in segments so the
// rest of the flow has something to attribute.
func fallbackSegments(result stt.Result) []stt.TranscriptSegment {
	if len(result.Words) > 0 {
		turns := speaker.Segment(result.Words, speaker.SegmenterConfig{})
		return speaker.FromTurns(turns, result.Confidence)
	}
	if result.Text == "" {
		return nil
	}
	return []stt.TranscriptSegment{{Text: result.Text, Confidence: result.Confidence}}
}

func renderText(segments []stt.TranscriptSegment, paragraphGap float64) string {
	a := transcript.NewAssembler(0, paragraphGap)
	for _, seg := range segments {
		a.Add(seg)
	}
	return a.Render()
}

// RunLive runs the streaming flow: decode the input with ffmpeg, feed
// chunks to the recognition worker without ever blocking on it, and
// assemble accepted segments into a rolling transcript. The session's
// artifacts are written when the stream ends, including on error, so a
// dying source still leaves the transcript so far on disk.
func (p *Pipeline) RunLive(ctx context.Context, input string) (*session.Session, error) {
	sess, err := p.Store.Create(input)
	if err != nil {
		return nil, err
	}

	assembler := transcript.NewAssembler(p.Config.LiveWindowSeconds, p.Config.ParagraphGapSeconds)
	worker := stt.NewWorker(p.Recognizer, stt.WorkerConfig{
		ChunkQueueSize:  p.Config.ChunkQueueSize,
		ResultQueueSize: p.Config.ResultQueueSize,
		MinSegmentChars: p.Config.MinSegmentChars,
		SilenceEnergy:   p.Config.SilenceEnergy,
		DedupWindow:     p.Config.DedupWindow,
	}, p.Logger, assembler.Add)

	source := snd.NewFFmpegSource(input, p.Config.SampleRate,
		p.Config.LiveChunkSeconds, p.Config.MinChunkSeconds,
		p.Config.StopTimeout, p.Logger)
	if err := source.Start(); err != nil {
		finishErr := sess.Finish("", "", false, err)
		if finishErr != nil {
			p.Logger.Error("recording failed session", "error", finishErr)
		}
		return sess, err
	}

	worker.Start(ctx)
	p.forward(ctx, source, worker)
	worker.Stop()

	runErr := source.Err()
	segments := assembler.History()
	if err := sess.SaveArtifacts(segments, assembler.RenderFull()); err != nil {
		return sess, err
	}
	if err := sess.Finish("live", p.Config.Language, false, runErr); err != nil {
		return sess, err
	}

	stats := worker.Stats()
	p.Logger.Info("live session ended",
		"input", input, "segments", len(segments),
		"processed", stats.Processed, "dropped", stats.Dropped,
		"failed", stats.Failed, "rtf", stats.RTF)
	return sess, runErr
}

// forward moves chunks from the source to the worker until the source
// closes or the context is cancelled. Cancellation stops the source and
// keeps draining so the source goroutine can exit.
func (p *Pipeline) forward(ctx context.Context, source snd.Source, worker *stt.Worker) {
	done := ctx.Done()
	for {
		select {
		case <-done:
			source.Stop()
			done = nil
		case chunk, ok := <-source.Chunks():
			if !ok {
				return
			}
			worker.Enqueue(chunk)
		}
	}
}
