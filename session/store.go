// Package session persists the artifacts of one transcription run: the
// segment data, the rendered text, and caption files, under a directory
// keyed by session ID.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"scribe.fm/captions"
	"scribe.fm/stt"
)

const (
	metaFile     = "session.json"
	segmentsFile = "transcript.json"
	textFile     = "transcript.txt"
	srtFile      = "captions.srt"
	vttFile      = "captions.vtt"
)

// Metadata describes one session.
type Metadata struct {
	ID        string    `json:"id"`
	Input     string    `json:"input"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at,omitempty"`
	Provider  string    `json:"provider,omitempty"`
	Language  string    `json:"language,omitempty"`
	Diarized  bool      `json:"diarized"`
	Error     string    `json:"error,omitempty"`
}

// Store manages session directories under one base directory.
type Store struct {
	baseDir string
	logger  *log.Logger
}

func NewStore(baseDir string, logger *log.Logger) *Store {
	return &Store{baseDir: baseDir, logger: logger}
}

// Create allocates a new session directory and writes its initial
// metadata.
func (st *Store) Create(input string) (*Session, error) {
	meta := Metadata{
		ID:        uuid.NewString(),
		Input:     input,
		StartedAt: time.Now().UTC(),
	}
	dir := filepath.Join(st.baseDir, meta.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}

	s := &Session{Meta: meta, dir: dir, logger: st.logger}
	if err := s.saveMeta(); err != nil {
		return nil, err
	}
	st.logger.Info("session created", "id", meta.ID, "dir", dir)
	return s, nil
}

// Open loads an existing session by ID.
func (st *Store) Open(id string) (*Session, error) {
	dir := filepath.Join(st.baseDir, id)
	data, err := os.ReadFile(filepath.Join(dir, metaFile))
	if err != nil {
		return nil, fmt.Errorf("open session %s: %w", id, err)
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &Session{Meta: meta, dir: dir, logger: st.logger}, nil
}

// List returns metadata for every session, newest first.
func (st *Store) List() ([]Metadata, error) {
	entries, err := os.ReadDir(st.baseDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var sessions []Metadata
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		s, err := st.Open(entry.Name())
		if err != nil {
			st.logger.Warn("skipping unreadable session", "id", entry.Name(), "error", err)
			continue
		}
		sessions = append(sessions, s.Meta)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].StartedAt.After(sessions[j].StartedAt)
	})
	return sessions, nil
}

// Session is one run's artifact directory.
type Session struct {
	Meta   Metadata
	dir    string
	logger *log.Logger
}

func (s *Session) Dir() string { return s.dir }

// SaveArtifacts writes the segment data, the rendered transcript text,
// and both caption formats. It can be called repeatedly; each call
// replaces the previous artifacts, so a session interrupted later still
// has the last complete snapshot on disk.
func (s *Session) SaveArtifacts(segments []stt.TranscriptSegment, text string) error {
	data, err := json.MarshalIndent(segments, "", "  ")
	if err != nil {
		return fmt.Errorf("encode segments: %w", err)
	}
	writes := map[string][]byte{
		segmentsFile: data,
		textFile:     []byte(text),
		srtFile:      []byte(captions.RenderSRT(segments)),
		vttFile:      []byte(captions.RenderVTT(segments)),
	}
	for name, content := range writes {
		if err := os.WriteFile(filepath.Join(s.dir, name), content, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	return nil
}

// Segments reads the stored segment data back. Sessions written by
// other tools may carry only caption files, so a missing transcript.json
// falls back to parsing captions.vtt, then captions.srt.
func (s *Session) Segments() ([]stt.TranscriptSegment, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, segmentsFile))
	if os.IsNotExist(err) {
		return s.segmentsFromCaptions()
	}
	if err != nil {
		return nil, err
	}
	var segments []stt.TranscriptSegment
	if err := json.Unmarshal(data, &segments); err != nil {
		return nil, fmt.Errorf("decode segments: %w", err)
	}
	return segments, nil
}

func (s *Session) segmentsFromCaptions() ([]stt.TranscriptSegment, error) {
	if data, err := os.ReadFile(filepath.Join(s.dir, vttFile)); err == nil {
		return captions.ParseVTT(string(data)), nil
	}
	data, err := os.ReadFile(filepath.Join(s.dir, srtFile))
	if err != nil {
		return nil, fmt.Errorf("session has no segment data: %w", err)
	}
	return captions.ParseSRT(string(data)), nil
}

// Finish stamps the end time and outcome. A non-nil err is recorded in
// the metadata so a crashed session is distinguishable from a clean one.
func (s *Session) Finish(provider, language string, diarized bool, runErr error) error {
	s.Meta.EndedAt = time.Now().UTC()
	s.Meta.Provider = provider
	s.Meta.Language = language
	s.Meta.Diarized = diarized
	if runErr != nil {
		s.Meta.Error = runErr.Error()
	}
	return s.saveMeta()
}

func (s *Session) saveMeta() error {
	data, err := json.MarshalIndent(s.Meta, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(s.dir, metaFile), data, 0o644); err != nil {
		return fmt.Errorf("write session metadata: %w", err)
	}
	return nil
}
