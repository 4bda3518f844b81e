package pcm

// Chunk is a fixed-duration slice of mono PCM samples. Start is the
// stream-relative offset in seconds, computed from the chunk index so it
// stays monotonic even when wall-clock time drifts.
type Chunk struct {
	Samples    []int16
	SampleRate int
	Start      float64
}

// Duration returns the chunk length in seconds.
func (c Chunk) Duration() float64 {
	if c.SampleRate == 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.SampleRate)
}

// Energy returns the mean squared sample amplitude, normalized to [0, 1].
// Used as a cheap silence gate before recognition.
func (c Chunk) Energy() float64 {
	if len(c.Samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range c.Samples {
		f := float64(s) / 32768.0
		sum += f * f
	}
	return sum / float64(len(c.Samples))
}

// Bytes encodes the samples back to little-endian s16le, the wire
// format the realtime recognition socket expects.
func (c Chunk) Bytes() []byte {
	out := make([]byte, len(c.Samples)*2)
	for i, s := range c.Samples {
		out[i*2] = byte(uint16(s))
		out[i*2+1] = byte(uint16(s) >> 8)
	}
	return out
}

// Chunker frames a continuous little-endian s16le byte stream into
// fixed-duration chunks. Bytes are buffered across Feed calls until a
// full chunk is available.
type Chunker struct {
	sampleRate int
	chunkSize  int
	index      int
	duration   float64
	buf        []byte
}

// NewChunker returns a Chunker producing chunks of chunkSeconds duration
// at the given sample rate.
func NewChunker(sampleRate int, chunkSeconds float64) *Chunker {
	return &Chunker{
		sampleRate: sampleRate,
		chunkSize:  int(float64(sampleRate)*chunkSeconds) * 2,
		duration:   chunkSeconds,
	}
}

// Feed appends raw bytes and returns all complete chunks now available.
func (k *Chunker) Feed(data []byte) []Chunk {
	k.buf = append(k.buf, data...)

	var chunks []Chunk
	for len(k.buf) >= k.chunkSize {
		frame := k.buf[:k.chunkSize]
		k.buf = append([]byte(nil), k.buf[k.chunkSize:]...)
		chunks = append(chunks, k.makeChunk(frame))
	}
	return chunks
}

// Flush returns the final partial chunk if it is at least minSeconds
// long. Shorter tails carry too little speech to recognize and are
// dropped.
func (k *Chunker) Flush(minSeconds float64) (Chunk, bool) {
	defer func() { k.buf = nil }()

	samples := len(k.buf) / 2
	if float64(samples) < float64(k.sampleRate)*minSeconds {
		return Chunk{}, false
	}
	return k.makeChunk(k.buf[:samples*2]), true
}

func (k *Chunker) makeChunk(frame []byte) Chunk {
	samples := make([]int16, len(frame)/2)
	for i := range samples {
		samples[i] = int16(uint16(frame[i*2]) | uint16(frame[i*2+1])<<8)
	}
	chunk := Chunk{
		Samples:    samples,
		SampleRate: k.sampleRate,
		Start:      float64(k.index) * k.duration,
	}
	k.index++
	return chunk
}
