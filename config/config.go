package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every tunable of the transcription pipeline. Values come
// from defaults, an optional config file, and SCRIBE_* environment
// variables, in increasing priority.
type Config struct {
	SampleRate int

	LiveChunkSeconds float64
	MinChunkSeconds  float64

	ChunkQueueSize  int
	ResultQueueSize int

	MinSegmentChars int
	SilenceEnergy   float64
	DedupWindow     int

	ParagraphGapSeconds float64
	LiveWindowSeconds   float64

	MaxWordGapSeconds float64
	MinMergeMillis    int

	MaxRetries     int
	StopTimeout    time.Duration
	ProviderOrder  []string
	ScribeAPIKey   string
	ScribeBaseURL  string
	DiarizeAPIKey  string
	DiarizeBaseURL string
	WhisperCommand string
	WhisperModel   string
	Language       string

	AlignConfidence float64
	AlignCueChars   int

	SessionDir string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("sample_rate", 16000)
	v.SetDefault("live_chunk_seconds", 3.0)
	v.SetDefault("min_chunk_seconds", 0.5)
	v.SetDefault("chunk_queue_size", 16)
	v.SetDefault("result_queue_size", 32)
	v.SetDefault("min_segment_chars", 3)
	v.SetDefault("silence_energy", 1e-6)
	v.SetDefault("dedup_window", 3)
	v.SetDefault("paragraph_gap_seconds", 2.0)
	v.SetDefault("live_window_seconds", 300.0)
	v.SetDefault("max_word_gap_seconds", 0.75)
	v.SetDefault("min_merge_millis", 300)
	v.SetDefault("max_retries", 3)
	v.SetDefault("stop_timeout", 3*time.Second)
	v.SetDefault("provider_order", []string{"scribe", "whisper+diarize", "whisper"})
	v.SetDefault("scribe_base_url", "https://api.scribe.fm")
	v.SetDefault("diarize_base_url", "http://localhost:9090")
	v.SetDefault("whisper_command", "whisper-cli")
	v.SetDefault("whisper_model", "base")
	v.SetDefault("language", "en")
	v.SetDefault("align_confidence", 0.6)
	v.SetDefault("align_cue_chars", 180)
	v.SetDefault("session_dir", "sessions")
}

// Load reads configuration from an optional file path plus the
// environment. An empty path skips the file entirely.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("scribe")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	return &Config{
		SampleRate:          v.GetInt("sample_rate"),
		LiveChunkSeconds:    v.GetFloat64("live_chunk_seconds"),
		MinChunkSeconds:     v.GetFloat64("min_chunk_seconds"),
		ChunkQueueSize:      v.GetInt("chunk_queue_size"),
		ResultQueueSize:     v.GetInt("result_queue_size"),
		MinSegmentChars:     v.GetInt("min_segment_chars"),
		SilenceEnergy:       v.GetFloat64("silence_energy"),
		DedupWindow:         v.GetInt("dedup_window"),
		ParagraphGapSeconds: v.GetFloat64("paragraph_gap_seconds"),
		LiveWindowSeconds:   v.GetFloat64("live_window_seconds"),
		MaxWordGapSeconds:   v.GetFloat64("max_word_gap_seconds"),
		MinMergeMillis:      v.GetInt("min_merge_millis"),
		MaxRetries:          v.GetInt("max_retries"),
		StopTimeout:         v.GetDuration("stop_timeout"),
		ProviderOrder:       v.GetStringSlice("provider_order"),
		ScribeAPIKey:        v.GetString("scribe_api_key"),
		ScribeBaseURL:       v.GetString("scribe_base_url"),
		DiarizeAPIKey:       v.GetString("diarize_api_key"),
		DiarizeBaseURL:      v.GetString("diarize_base_url"),
		WhisperCommand:      v.GetString("whisper_command"),
		WhisperModel:        v.GetString("whisper_model"),
		Language:            v.GetString("language"),
		AlignConfidence:     v.GetFloat64("align_confidence"),
		AlignCueChars:       v.GetInt("align_cue_chars"),
		SessionDir:          v.GetString("session_dir"),
	}, nil
}
