package pcm

import (
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WriteWAV encodes the chunk as a 16-bit mono WAV file. File-based
// recognizers take a path, not raw samples, so chunks pass through a
// temp WAV on their way to recognition.
func WriteWAV(file *os.File, c Chunk) error {
	buffer := &audio.IntBuffer{
		Format: &audio.Format{NumChannels: 1, SampleRate: c.SampleRate},
		Data:   make([]int, len(c.Samples)),
	}
	for i, s := range c.Samples {
		buffer.Data[i] = int(s)
	}

	enc := wav.NewEncoder(file, c.SampleRate, 16, 1, 1)
	if err := enc.Write(buffer); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}

// TempWAV writes the chunk to a temp file and returns its path. The
// caller removes the file when done.
func TempWAV(c Chunk) (string, error) {
	file, err := os.CreateTemp("", "scribe_chunk_*.wav")
	if err != nil {
		return "", fmt.Errorf("temp file: %w", err)
	}
	defer file.Close()

	if err := WriteWAV(file, c); err != nil {
		os.Remove(file.Name())
		return "", err
	}
	return file.Name(), nil
}
