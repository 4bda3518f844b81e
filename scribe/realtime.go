package scribe

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"scribe.fm/stt"
)

const (
	defaultRealtimeURL = "wss://rt.scribe.fm/v1"
	pingInterval       = 30 * time.Second
	pongTimeout        = 60 * time.Second
)

type realtimeAudioFormat struct {
	Type       string `json:"type"`
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sample_rate"`
}

type startRecognitionMessage struct {
	Message     string              `json:"message"`
	AudioFormat realtimeAudioFormat `json:"audio_format"`
	Language    string              `json:"language,omitempty"`
	Diarize     bool                `json:"diarize"`
}

type endOfStreamMessage struct {
	Message   string `json:"message"`
	LastSeqNo int    `json:"last_seq_no"`
}

type realtimeTranscriptMessage struct {
	Message string `json:"message"`
	Results []struct {
		Content    string  `json:"content"`
		StartTime  float64 `json:"start_time"`
		EndTime    float64 `json:"end_time"`
		Confidence float64 `json:"confidence"`
		SpeakerID  string  `json:"speaker_id"`
	} `json:"results"`
}

// RealtimeSession is one websocket recognition stream: raw s16le audio
// goes up, finalized transcript segments come back down.
type RealtimeSession struct {
	conn *websocket.Conn
}

// StartRealtime opens a websocket session and sends the StartRecognition
// handshake. The session stays alive with periodic pings until ctx is
// cancelled or Close is called.
func (c *Client) StartRealtime(ctx context.Context, sampleRate int, language string) (*RealtimeSession, error) {
	header := http.Header{}
	header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, defaultRealtimeURL, header)
	if err != nil {
		return nil, fmt.Errorf("%w: dial realtime: %v", stt.ErrSourceUnavailable, err)
	}

	session := &RealtimeSession{conn: conn}
	go session.keepAlive(ctx)

	start := startRecognitionMessage{
		Message: "StartRecognition",
		AudioFormat: realtimeAudioFormat{
			Type:       "raw",
			Encoding:   "pcm_s16le",
			SampleRate: sampleRate,
		},
		Language: language,
		Diarize:  c.diarize,
	}
	if err := conn.WriteJSON(start); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send StartRecognition: %w", err)
	}
	return session, nil
}

func (s *RealtimeSession) keepAlive(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(pongTimeout)
			if err := s.conn.WriteControl(websocket.PingMessage, []byte{}, deadline); err != nil {
				return
			}
		}
	}
}

// SendAudio ships one binary frame of raw s16le samples.
func (s *RealtimeSession) SendAudio(data []byte) error {
	if err := s.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return fmt.Errorf("send audio frame: %w", err)
	}
	return nil
}

// EndStream tells the service no more audio is coming. lastSeqNo is the
// count of audio frames sent.
func (s *RealtimeSession) EndStream(lastSeqNo int) error {
	return s.conn.WriteJSON(endOfStreamMessage{
		Message:   "EndOfStream",
		LastSeqNo: lastSeqNo,
	})
}

// Receive reads transcript messages until the socket closes. Only
// finalized segments ("AddTranscript") are forwarded; partials are
// dropped so downstream consumers never see text that can be retracted.
func (s *RealtimeSession) Receive(ctx context.Context) (<-chan stt.TranscriptSegment, <-chan error) {
	segments := make(chan stt.TranscriptSegment)
	errs := make(chan error, 1)

	go func() {
		defer close(segments)
		defer close(errs)

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			var msg realtimeTranscriptMessage
			if err := s.conn.ReadJSON(&msg); err != nil {
				if websocket.IsUnexpectedCloseError(err,
					websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					errs <- fmt.Errorf("realtime socket closed: %w", err)
				}
				return
			}
			if msg.Message != "AddTranscript" {
				continue
			}

			for _, r := range msg.Results {
				if r.Content == "" {
					continue
				}
				seg := stt.TranscriptSegment{
					Text:       r.Content,
					Start:      r.StartTime,
					End:        r.EndTime,
					Confidence: r.Confidence,
					Speaker:    r.SpeakerID,
				}
				select {
				case segments <- seg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return segments, errs
}

// Close sends a normal close frame and tears down the connection.
func (s *RealtimeSession) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = s.conn.WriteMessage(websocket.CloseMessage, msg)
	return s.conn.Close()
}
