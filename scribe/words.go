package scribe

import (
	"fmt"
	"strings"

	"scribe.fm/stt"
)

// response is the recognition endpoint's JSON body. Single-channel audio
// fills text/words at the top level; multi-channel audio nests one
// transcript per channel instead.
type response struct {
	LanguageCode string       `json:"language_code"`
	Text         string       `json:"text"`
	Words        []word       `json:"words"`
	Transcripts  []transcript `json:"transcripts"`
}

type transcript struct {
	ChannelIndex int    `json:"channel_index"`
	Text         string `json:"text"`
	Words        []word `json:"words"`
}

type word struct {
	Text      string  `json:"text"`
	Start     float64 `json:"start"`
	End       float64 `json:"end"`
	Type      string  `json:"type"`
	SpeakerID string  `json:"speaker_id"`
}

// defaultConfidence matches the live path's stand-in for recognizers
// that report no per-result score.
const defaultConfidence = 0.8

func resultFromResponse(resp response, diarized bool) (stt.Result, error) {
	result := stt.Result{
		Language:   resp.LanguageCode,
		Diarized:   diarized,
		Confidence: defaultConfidence,
	}

	if len(resp.Transcripts) > 0 {
		var texts []string
		for _, tr := range resp.Transcripts {
			if t := strings.TrimSpace(tr.Text); t != "" {
				texts = append(texts, t)
			}
			result.Words = append(result.Words, convertWords(tr.Words, tr.ChannelIndex)...)
		}
		result.Text = strings.Join(texts, " ")
	} else {
		result.Text = strings.TrimSpace(resp.Text)
		result.Words = convertWords(resp.Words, -1)
	}

	if result.Text == "" && len(result.Words) == 0 {
		return stt.Result{}, fmt.Errorf("%w: response carried no transcript", stt.ErrRecognitionFailed)
	}

	// Channels are decoded in order, but words within one channel can
	// interleave with another's; keep the global timeline sorted.
	stt.SortWords(result.Words)
	return result, nil
}

// convertWords keeps spoken words and drops spacing/audio-event tokens.
// channel is -1 for single-channel responses.
func convertWords(words []word, channel int) []stt.Word {
	out := make([]stt.Word, 0, len(words))
	for _, w := range words {
		if w.Type != "" && w.Type != "word" {
			continue
		}
		text := strings.TrimSpace(w.Text)
		if text == "" {
			continue
		}
		out = append(out, stt.Word{
			Text:         text,
			Start:        w.Start,
			End:          w.End,
			SpeakerID:    w.SpeakerID,
			ChannelIndex: channel,
			Kind:         "word",
		})
	}
	return out
}
