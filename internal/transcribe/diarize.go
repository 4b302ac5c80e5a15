package transcribe

import "fmt"

// MapSpeakers assigns sequential display labels ("Speaker 1", "Speaker 2",
// ...) to raw speaker ids in strict first-appearance order across the
// already-offset segment list, accumulating per-speaker statistics in the
// same pass. Segments without a speaker id are left unlabeled.
func MapSpeakers(segments []Segment) ([]Segment, []SpeakerStats) {
	labels := make(map[string]string)
	index := make(map[string]int)
	var stats []SpeakerStats

	out := make([]Segment, len(segments))
	for i, seg := range segments {
		if seg.SpeakerID != "" {
			label, ok := labels[seg.SpeakerID]
			if !ok {
				label = fmt.Sprintf("Speaker %d", len(labels)+1)
				labels[seg.SpeakerID] = label
				index[seg.SpeakerID] = len(stats)
				stats = append(stats, SpeakerStats{ID: seg.SpeakerID, Label: label})
			}
			seg.SpeakerLabel = label
			s := &stats[index[seg.SpeakerID]]
			s.SegmentCount++
			s.TotalSpeechMS += seg.EndMS - seg.StartMS
		}
		out[i] = seg
	}
	return out, stats
}
