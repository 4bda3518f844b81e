package diarize

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

// HTTPClient calls a standalone diarization service over HTTP. It exists
// for the fallback path where recognition succeeded without integrated
// speaker labels and attribution has to come from a second pass.
type HTTPClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	maxRetries int
	logger     *log.Logger

	retryDelay func(attempt int) time.Duration
}

// NewHTTPClient builds a diarization client for the given service URL.
func NewHTTPClient(apiKey, baseURL string, maxRetries int, logger *log.Logger) *HTTPClient {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &HTTPClient{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		maxRetries: maxRetries,
		logger:     logger,
		retryDelay: func(attempt int) time.Duration {
			secs := math.Pow(2, float64(attempt)) + 0.2 + rand.Float64()*0.3
			return time.Duration(secs * float64(time.Second))
		},
	}
}

func (c *HTTPClient) Name() string { return "diarize-http" }

func (c *HTTPClient) Available() bool {
	return c.apiKey != "" && c.baseURL != ""
}

// Diarize uploads the audio and returns speaker intervals sorted by
// start time. Transient failures (429, 5xx, transport errors) are
// retried with exponential backoff before the error surfaces as
// stt.ErrDiarizationUnavailable.
func (c *HTTPClient) Diarize(ctx context.Context, audioPath string) ([]Interval, error) {
	audio, err := os.ReadFile(audioPath)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(audio); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	resp, err := c.postWithRetry(ctx, c.baseURL+"/v1/diarize",
		writer.FormDataContentType(), body.Bytes())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", stt.ErrDiarizationUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		preview, _ := io.ReadAll(io.LimitReader(resp.Body, 1000))
		return nil, fmt.Errorf("%w: unexpected status %d: %s",
			stt.ErrDiarizationUnavailable, resp.StatusCode, preview)
	}

	var parsed struct {
		Segments []Interval `json:"segments"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", stt.ErrDiarizationUnavailable, err)
	}

	SortIntervals(parsed.Segments)
	return parsed.Segments, nil
}

func (c *HTTPClient) postWithRetry(ctx context.Context, url, contentType string, body []byte) (*http.Response, error) {
	var resp *http.Response
	var err error

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			wait := c.retryDelay(attempt - 1)
			c.logger.Warn("retrying diarization request", "attempt", attempt, "wait", wait)
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
