// Package captions renders speaker-attributed segments as SRT and
// WebVTT subtitle files and parses those formats back into segments.
package captions

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"scribe.fm/stt"
)

const defaultSpeaker = "speaker_1"

// RenderSRT writes segments in SubRip format: a 1-based cue index, a
// comma-millisecond timestamp line, and the text. Speaker labels are
// prefixed in brackets unless the segment carries the default
// single-speaker label, so solo recordings stay clean.
func RenderSRT(segments []stt.TranscriptSegment) string {
	if len(segments) == 0 {
		return ""
	}

	var lines []string
	for i, seg := range segments {
		lines = append(lines, strconv.Itoa(i+1))
		lines = append(lines, fmt.Sprintf("%s --> %s",
			srtTime(seg.Start), srtTime(seg.End)))

		text := strings.TrimSpace(seg.Text)
		if seg.Speaker != "" && seg.Speaker != defaultSpeaker {
			text = fmt.Sprintf("[%s] %s", seg.Speaker, text)
		}
		lines = append(lines, text, "")
	}
	return strings.Join(lines, "\n")
}

// RenderVTT writes segments in WebVTT format with voice tags for
// speaker attribution.
func RenderVTT(segments []stt.TranscriptSegment) string {
	if len(segments) == 0 {
		return "WEBVTT\n\n"
	}

	lines := []string{"WEBVTT", ""}
	for _, seg := range segments {
		lines = append(lines, fmt.Sprintf("%s --> %s",
			vttTime(seg.Start), vttTime(seg.End)))

		text := strings.TrimSpace(seg.Text)
		if seg.Speaker != "" && seg.Speaker != defaultSpeaker {
			text = fmt.Sprintf("<v %s>%s</v>", seg.Speaker, text)
		}
		lines = append(lines, text, "")
	}
	return strings.Join(lines, "\n")
}

func srtTime(seconds float64) string {
	h, m, s, ms := splitTime(seconds)
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

func vttTime(seconds float64) string {
	h, m, s, ms := splitTime(seconds)
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
}

func splitTime(seconds float64) (h, m, s, ms int) {
	totalMs := int(math.Round(seconds * 1000))
	ms = totalMs % 1000
	total := totalMs / 1000
	h = total / 3600
	m = (total % 3600) / 60
	s = total % 60
	return
}

var (
	srtStampRe = regexp.MustCompile(`(\d{2}):(\d{2}):(\d{2}),(\d{3})\s*-->\s*(\d{2}):(\d{2}):(\d{2}),(\d{3})`)
	vttStampRe = regexp.MustCompile(`(\d{2}):(\d{2}):(\d{2})\.(\d{3})\s*-->\s*(\d{2}):(\d{2}):(\d{2})\.(\d{3})`)
	voiceTagRe = regexp.MustCompile(`^<v ([^>]+)>(.*)$`)
	srtLabelRe = regexp.MustCompile(`^\[([^\]]+)\]\s*(.*)$`)
)

// ParseSRT reads SubRip text back into segments. Speaker labels in
// leading brackets are restored to the Speaker field.
func ParseSRT(content string) []stt.TranscriptSegment {
	var segments []stt.TranscriptSegment

	for _, block := range splitBlocks(content) {
		lines := strings.Split(strings.TrimSpace(block), "\n")
		if len(lines) < 3 {
			continue
		}
		start, end, ok := parseStamp(srtStampRe, lines[1])
		if !ok {
			continue
		}

		seg := stt.TranscriptSegment{
			Start: start,
			End:   end,
			Text:  strings.Join(lines[2:], " "),
		}
		if m := srtLabelRe.FindStringSubmatch(seg.Text); m != nil {
			seg.Speaker = m[1]
			seg.Text = m[2]
		}
		segments = append(segments, seg)
	}
	return segments
}

// ParseVTT reads WebVTT text back into segments, restoring voice tags
// to the Speaker field.
func ParseVTT(content string) []stt.TranscriptSegment {
	var segments []stt.TranscriptSegment

	for _, block := range splitBlocks(content) {
		lines := strings.Split(strings.TrimSpace(block), "\n")

		var start, end float64
		var found bool
		var textLines []string
		for _, line := range lines {
			if line == "WEBVTT" {
				continue
			}
			if s, e, ok := parseStamp(vttStampRe, line); ok {
				start, end, found = s, e, true
				continue
			}
			if found {
				textLines = append(textLines, line)
			}
		}
		if !found || len(textLines) == 0 {
			continue
		}

		seg := stt.TranscriptSegment{
			Start: start,
			End:   end,
			Text:  strings.Join(textLines, " "),
		}
		if m := voiceTagRe.FindStringSubmatch(seg.Text); m != nil {
			seg.Speaker = m[1]
			seg.Text = strings.TrimSuffix(m[2], "</v>")
		}
		segments = append(segments, seg)
	}
	return segments
}

func splitBlocks(content string) []string {
	normalized := strings.ReplaceAll(content, "\r\n", "\n")
	return regexp.MustCompile(`\n\s*\n`).Split(strings.TrimSpace(normalized), -1)
}

func parseStamp(re *regexp.Regexp, line string) (start, end float64, ok bool) {
	m := re.FindStringSubmatch(line)
	if m == nil {
		return 0, 0, false
	}
	n := make([]int, 8)
	for i := 0; i < 8; i++ {
		n[i], _ = strconv.Atoi(m[i+1])
	}
	start = float64(n[0]*3600+n[1]*60+n[2]) + float64(n[3])/1000
	end = float64(n[4]*3600+n[5]*60+n[6]) + float64(n[7])/1000
	return start, end, true
}
