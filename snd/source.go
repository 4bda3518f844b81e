package snd

import (
	"bytes"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"scribe.fm/pcm"
	"scribe.fm/stt"
)

var terminateSignal = syscall.SIGTERM

// Source emits audio chunks until the stream ends or Stop is called.
type Source interface {
	Chunks() <-chan pcm.Chunk
	Stop() error
	Err() error
}

// FFmpegSource decodes a media locator (file path or stream URL) to
// 16-bit mono PCM through an ffmpeg child process and frames the output
// into fixed-duration chunks. The decode loop runs in its own goroutine;
// the chunk channel closes on EOF, decode failure, or Stop.
type FFmpegSource struct {
	input        string
	sampleRate   int
	chunkSeconds float64
	minSeconds   float64
	stopTimeout  time.Duration
	logger       *log.Logger

	chunks  chan pcm.Chunk
	chunker *pcm.Chunker
	cmd     *exec.Cmd
	stdout  io.ReadCloser
	stderr  bytes.Buffer

	stopOnce sync.Once
	stopped  chan struct{}
	done     chan struct{}

	mu  sync.Mutex
	err error
}

// NewFFmpegSource builds a source for the given locator. Chunks are
// chunkSeconds long; a final tail shorter than minSeconds is dropped.
func NewFFmpegSource(input string, sampleRate int, chunkSeconds, minSeconds float64, stopTimeout time.Duration, logger *log.Logger) *FFmpegSource {
	return &FFmpegSource{
		input:        input,
		sampleRate:   sampleRate,
		chunkSeconds: chunkSeconds,
		minSeconds:   minSeconds,
		stopTimeout:  stopTimeout,
		logger:       logger,
		chunks:       make(chan pcm.Chunk, 4),
		chunker:      pcm.NewChunker(sampleRate, chunkSeconds),
		stopped:      make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Start launches the decode process and the decode goroutine. A process
// that cannot be started surfaces as ErrSourceUnavailable.
func (s *FFmpegSource) Start() error {
	s.cmd = exec.Command("ffmpeg",
		"-i", s.input,
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ar", fmt.Sprint(s.sampleRate),
		"-ac", "1",
		"-fflags", "nobuffer",
		"-flags", "low_delay",
		"pipe:1",
	)
	s.cmd.Stderr = &s.stderr

	stdout, err := s.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("%w: stdout pipe: %v", stt.ErrSourceUnavailable, err)
	}
	s.stdout = stdout

	if err := s.cmd.Start(); err != nil {
		return fmt.Errorf("%w: start ffmpeg: %v", stt.ErrSourceUnavailable, err)
	}

	go s.run()
	return nil
}

// Chunks returns the chunk channel. It closes when the stream ends.
func (s *FFmpegSource) Chunks() <-chan pcm.Chunk {
	return s.chunks
}

// Err reports the terminal decode error, if any, once Chunks is closed.
func (s *FFmpegSource) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Stop terminates the decode process (SIGTERM, then SIGKILL after the
// stop timeout) and joins the decode goroutine before returning. Safe to
// call from any goroutine, any number of times, including before Start.
func (s *FFmpegSource) Stop() error {
	if s.cmd == nil {
		// Start never ran, so there is no process to reap and no decode
		// goroutine to join.
		return nil
	}
	s.stopOnce.Do(func() {
		close(s.stopped)
		if s.cmd != nil && s.cmd.Process != nil {
			_ = s.cmd.Process.Signal(terminateSignal)
			select {
			case <-s.done:
			case <-time.After(s.stopTimeout):
				s.logger.Warn("decode process did not exit, killing", "input", s.input)
				_ = s.cmd.Process.Kill()
				<-s.done
			}
		}
	})
	<-s.done
	return s.Err()
}

func (s *FFmpegSource) run() {
	defer close(s.done)
	defer close(s.chunks)

	emitted := 0
	buf := make([]byte, 4096)

	for {
		select {
		case <-s.stopped:
			s.reap()
			return
		default:
		}

		n, err := s.stdout.Read(buf)
		if n > 0 {
			for _, chunk := range s.chunker.Feed(buf[:n]) {
				if !s.deliver(chunk) {
					s.reap()
					return
				}
				emitted++
			}
		}
		if err != nil || n == 0 {
			// EOF, decode failure, or a dead pipe: flush the tail and
			// signal end-of-stream instead of hanging.
			if tail, ok := s.chunker.Flush(s.minSeconds); ok {
				if s.deliver(tail) {
					emitted++
				}
			}
			s.reap()
			if emitted == 0 {
				s.setErr(fmt.Errorf("%w: ffmpeg produced no audio: %s",
					stt.ErrSourceUnavailable, lastLine(s.stderr.Bytes())))
			} else if err != nil && err != io.EOF {
				s.setErr(fmt.Errorf("decode stream: %w", err))
			}
			return
		}
	}
}

// deliver sends a chunk unless the source is stopping. The channel is
// drained by a forwarder that never blocks, so this send cannot stall
// the decode loop for long.
func (s *FFmpegSource) deliver(chunk pcm.Chunk) bool {
	select {
	case s.chunks <- chunk:
		return true
	case <-s.stopped:
		return false
	}
}

func (s *FFmpegSource) reap() {
	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
		_ = s.cmd.Wait()
	}
}

func (s *FFmpegSource) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func lastLine(out []byte) string {
	lines := bytes.Split(bytes.TrimSpace(out), []byte("\n"))
	if len(lines) == 0 {
		return ""
	}
	return string(lines[len(lines)-1])
}
