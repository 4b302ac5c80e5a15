package transcribe

import (
	"fmt"
	"strings"
)

// SubtitleFormat selects the rendered cue syntax.
type SubtitleFormat string

const (
	SubtitleNone SubtitleFormat = ""
	SubtitleSRT  SubtitleFormat = "srt"
	SubtitleVTT  SubtitleFormat = "vtt"
)

// FormatSRT renders 1-indexed SRT cue blocks. When withSpeakers is set, each
// line is prefixed with the segment's speaker label.
func FormatSRT(segments []Segment, withSpeakers bool) string {
	blocks := make([]string, 0, len(segments))
	for i, seg := range segments {
		blocks = append(blocks, fmt.Sprintf("%d\n%s --> %s\n%s",
			i+1,
			formatTimestamp(seg.StartMS, ","),
			formatTimestamp(seg.EndMS, ","),
			cueText(seg, withSpeakers)))
	}
	return strings.Join(blocks, "\n\n")
}

// FormatVTT renders WebVTT cue blocks with the required file header.
func FormatVTT(segments []Segment, withSpeakers bool) string {
	blocks := make([]string, 0, len(segments)+1)
	blocks = append(blocks, "WEBVTT")
	for i, seg := range segments {
		blocks = append(blocks, fmt.Sprintf("%d\n%s --> %s\n%s",
			i+1,
			formatTimestamp(seg.StartMS, "."),
			formatTimestamp(seg.EndMS, "."),
			cueText(seg, withSpeakers)))
	}
	return strings.Join(blocks, "\n\n")
}

func cueText(seg Segment, withSpeakers bool) string {
	if withSpeakers && seg.SpeakerLabel != "" {
		return seg.SpeakerLabel + ": " + seg.Text
	}
	return seg.Text
}

// formatTimestamp renders HH:MM:SS plus milliseconds behind the given
// separator ("," for SRT, "." for VTT).
func formatTimestamp(ms int64, sep string) string {
	if ms < 0 {
		ms = 0
	}
	hours := ms / 3600000
	minutes := (ms % 3600000) / 60000
	seconds := (ms % 60000) / 1000
	millis := ms % 1000
	return fmt.Sprintf("%02d:%02d:%02d%s%03d", hours, minutes, seconds, sep, millis)
}
