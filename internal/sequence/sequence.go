package sequence

import "github.com/OCAP2/framereplay/pkg/core"

// Frames partitions records, which must already be sorted by timestamp, into
// one frame per run of equal timestamps. Frames reference the input slice.
func Frames(records []core.Record) []core.Frame {
	if len(records) == 0 {
		return nil
	}

	var frames []core.Frame
	start := 0
	for i := 1; i <= len(records); i++ {
		if i < len(records) && records[i].Timestamp.Equal(records[start].Timestamp) {
			continue
		}
		frames = append(frames, core.Frame{
			Timestamp: records[start].Timestamp,
			Records:   records[start:i:i],
			Position:  len(frames) + 1,
		})
		start = i
	}

	for i := range frames {
		frames[i].Total = len(frames)
	}
	return frames
}
