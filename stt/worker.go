package stt

import (
	"context"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"scribe.fm/pcm"
)

var fillerTokens = map[string]bool{
	"um": true, "uh": true, "ah": true, "hmm": true,
}

// WorkerConfig tunes the recognition worker's queues and filters.
type WorkerConfig struct {
	ChunkQueueSize  int
	ResultQueueSize int
	MinSegmentChars int
	SilenceEnergy   float64
	DedupWindow     int
}

// WorkerStats is a snapshot of the worker's counters.
type WorkerStats struct {
	Processed uint64
	Dropped   uint64
	Failed    uint64
	Filtered  uint64
	RTF       float64
}

// Worker pulls chunks from a bounded queue, runs recognition on its own
// goroutine, and emits filtered TranscriptSegments. Enqueue never blocks:
// when the chunk queue is full the incoming chunk is dropped, and when
// the result queue is full the oldest unread result is evicted. Live
// transcription favors freshness over completeness.
type Worker struct {
	recognizer Recognizer
	cfg        WorkerConfig
	logger     *log.Logger
	callback   func(TranscriptSegment)

	chunks  chan pcm.Chunk
	results chan TranscriptSegment

	recent []string

	processed atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64
	filtered  atomic.Uint64
	audioSecs atomic.Uint64 // float64 bits, single writer
	wallSecs  atomic.Uint64

	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewWorker builds a worker around the given recognizer. The callback,
// if non-nil, is invoked from the worker goroutine for every accepted
// segment (in addition to the result queue).
func NewWorker(recognizer Recognizer, cfg WorkerConfig, logger *log.Logger, callback func(TranscriptSegment)) *Worker {
	if cfg.ChunkQueueSize <= 0 {
		cfg.ChunkQueueSize = 16
	}
	if cfg.ResultQueueSize <= 0 {
		cfg.ResultQueueSize = 32
	}
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = 3
	}
	return &Worker{
		recognizer: recognizer,
		cfg:        cfg,
		logger:     logger,
		callback:   callback,
		chunks:     make(chan pcm.Chunk, cfg.ChunkQueueSize),
		results:    make(chan TranscriptSegment, cfg.ResultQueueSize),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start launches the worker goroutine.
func (w *Worker) Start(ctx context.Context) {
	go w.loop(ctx)
}

// Stop prevents further dequeues and waits for any in-flight recognition
// call to finish before returning.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.quit) })
	<-w.done
}

// Enqueue offers a chunk to the worker. Returns false when the queue is
// full and the chunk was dropped; it never blocks the producer.
func (w *Worker) Enqueue(chunk pcm.Chunk) bool {
	select {
	case w.chunks <- chunk:
		return true
	default:
		n := w.dropped.Add(1)
		w.logger.Warn("chunk queue full, dropping chunk",
			"start", chunk.Start, "dropped_total", n)
		return false
	}
}

// TryResult returns the next unread segment without blocking.
func (w *Worker) TryResult() (TranscriptSegment, bool) {
	select {
	case seg := <-w.results:
		return seg, true
	default:
		return TranscriptSegment{}, false
	}
}

// Stats snapshots the worker's counters. RTF is the running ratio of
// audio seconds to wall-clock recognition seconds.
func (w *Worker) Stats() WorkerStats {
	stats := WorkerStats{
		Processed: w.processed.Load(),
		Dropped:   w.dropped.Load(),
		Failed:    w.failed.Load(),
		Filtered:  w.filtered.Load(),
	}
	wall := math.Float64frombits(w.wallSecs.Load())
	if wall > 0 {
		stats.RTF = math.Float64frombits(w.audioSecs.Load()) / wall
	}
	return stats
}

func (w *Worker) loop(ctx context.Context) {
	defer close(w.done)

	for {
		select {
		case <-w.quit:
			return
		case chunk := <-w.chunks:
			w.process(ctx, chunk)
		}
	}
}

func (w *Worker) process(ctx context.Context, chunk pcm.Chunk) {
	if chunk.Duration() < 0.5 || chunk.Energy() < w.cfg.SilenceEnergy {
		w.filtered.Add(1)
		return
	}

	started := time.Now()
	result, err := w.recognizer.Recognize(ctx, chunk)
	elapsed := time.Since(started).Seconds()

	// One failed chunk never stops the loop.
	if err != nil {
		w.failed.Add(1)
		w.logger.Warn("recognition failed, skipping chunk",
			"start", chunk.Start, "error", err)
		return
	}
	w.processed.Add(1)
	w.trackSpeed(chunk.Duration(), elapsed)

	text := strings.TrimSpace(result.Text)
	if !w.accept(text) {
		w.filtered.Add(1)
		return
	}
	w.remember(text)

	seg := TranscriptSegment{
		Text:       text,
		Start:      chunk.Start,
		End:        chunk.Start + chunk.Duration(),
		Confidence: result.Confidence,
	}
	if seg.Confidence == 0 {
		seg.Confidence = 0.8
	}

	w.emit(seg)
	if w.callback != nil {
		w.callback(seg)
	}
}

func (w *Worker) accept(text string) bool {
	if len(text) < w.cfg.MinSegmentChars {
		return false
	}
	lower := strings.ToLower(text)
	if fillerTokens[lower] {
		return false
	}
	for _, prev := range w.recent {
		if prev == lower {
			return false
		}
	}
	return true
}

func (w *Worker) remember(text string) {
	w.recent = append(w.recent, strings.ToLower(strings.TrimSpace(text)))
	if len(w.recent) > w.cfg.DedupWindow {
		w.recent = w.recent[1:]
	}
}

func (w *Worker) emit(seg TranscriptSegment) {
	select {
	case w.results <- seg:
		return
	default:
	}
	// Full: evict the oldest unread result. The worker is the only
	// sender, so this cannot race with another producer.
	select {
	case <-w.results:
	default:
	}
	select {
	case w.results <- seg:
	default:
	}
}

func (w *Worker) trackSpeed(audioSeconds, wallSeconds float64) {
	audio := math.Float64frombits(w.audioSecs.Load()) + audioSeconds
	wall := math.Float64frombits(w.wallSecs.Load()) + wallSeconds
	w.audioSecs.Store(math.Float64bits(audio))
	w.wallSecs.Store(math.Float64bits(wall))

	if wallSeconds > 0 {
		rtf := audioSeconds / wallSeconds
		if rtf < 1.0 {
			w.logger.Warn("recognition slower than real-time", "rtf", rtf)
		}
	}
}
