package scribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"scribe.fm/stt"
)

const (
	defaultBaseURL = "https://api.scribe.fm"
	requestTimeout = 5 * time.Minute
)

// Client talks to the Scribe speech-to-text service: a single-shot
// recognition endpoint that can return word-level speaker IDs
// (integrated diarization) and per-channel transcripts for multi-channel
// audio.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	maxRetries int
	diarize    bool
	logger     *log.Logger

	retryDelay func(attempt int) time.Duration
}

// NewClient builds a client. diarize controls whether the service runs
// its integrated speaker diarization pass.
func NewClient(apiKey, baseURL string, maxRetries int, diarize bool, logger *log.Logger) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Client{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: requestTimeout},
		maxRetries: maxRetries,
		diarize:    diarize,
		logger:     logger,
		retryDelay: retryDelay,
	}
}

// Name implements stt.Provider.
func (c *Client) Name() string {
	if c.diarize {
		return "scribe"
	}
	return "scribe-plain"
}

// Available implements stt.Provider. The service needs an API key; the
// check happens once, when the fallback chain is built.
func (c *Client) Available() bool {
	return c.apiKey != ""
}

// Transcribe uploads the audio file and returns the parsed result,
// including words with speaker IDs when diarization is on.
func (c *Client) Transcribe(ctx context.Context, audioPath string) (stt.Result, error) {
	audio, err := os.ReadFile(audioPath)
	if err != nil {
		return stt.Result{}, fmt.Errorf("read audio: %w", err)
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return stt.Result{}, err
	}
	if _, err := part.Write(audio); err != nil {
		return stt.Result{}, err
	}

	fields := map[string]string{
		"model_id":               "scribe_v1",
		"timestamps_granularity": "word",
		"diarize":                fmt.Sprint(c.diarize),
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return stt.Result{}, err
		}
	}
	if err := writer.Close(); err != nil {
		return stt.Result{}, err
	}

	resp, err := c.postWithRetry(ctx,
		fmt.Sprintf("%s/v1/speech-to-text", c.baseURL),
		writer.FormDataContentType(), body.Bytes())
	if err != nil {
		return stt.Result{}, fmt.Errorf("%w: %v", stt.ErrRecognitionFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnprocessableEntity {
		var detail struct {
			Detail string `json:"detail"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&detail)
		return stt.Result{}, fmt.Errorf("%w: validation error (422): %s",
			stt.ErrRecognitionFailed, detail.Detail)
	}
	if resp.StatusCode != http.StatusOK {
		preview, _ := io.ReadAll(io.LimitReader(resp.Body, 1000))
		return stt.Result{}, fmt.Errorf("%w: unexpected status %d: %s",
			stt.ErrRecognitionFailed, resp.StatusCode, preview)
	}

	var parsed response
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return stt.Result{}, fmt.Errorf("%w: decode response: %v", stt.ErrRecognitionFailed, err)
	}
	return resultFromResponse(parsed, c.diarize)
}

// postWithRetry retries transient failures (429 and 5xx, plus transport
// errors) with exponential backoff and jitter before giving up.
func (c *Client) postWithRetry(ctx context.Context, url, contentType string, body []byte) (*http.Response, error) {
	var resp *http.Response
	var err error

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			wait := c.retryDelay(attempt - 1)
			c.logger.Warn("retrying scribe request", "attempt", attempt, "wait", wait)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}

		var req *http.Request
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))

		resp, err = c.httpClient.Do(req)
		if err != nil {
			continue
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			resp.Body.Close()
			err = fmt.Errorf("status %d", resp.StatusCode)
			continue
		}
		return resp, nil
	}

	return nil, fmt.Errorf("after %d attempts: %w", c.maxRetries, err)
}

// retryDelay is 2^attempt seconds plus 0.2-0.5s of jitter.
func retryDelay(attempt int) time.Duration {
	secs := math.Pow(2, float64(attempt)) + 0.2 + rand.Float64()*0.3
	return time.Duration(secs * float64(time.Second))
}
