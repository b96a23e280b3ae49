package v1

import (
	"sort"

	"github.com/OCAP2/framereplay/pkg/streaming"
)

// ReplayData contains all the data needed to build an export
type ReplayData struct {
	Start  streaming.StartPlaybackPayload
	End    streaming.EndPlaybackPayload
	Frames []streaming.FramePayload
	Tag    string
}

// Build creates an Export from the replay data
func Build(data *ReplayData) Export {
	export := Export{
		Version:   FormatVersion,
		SessionID: data.Start.SessionID,
		Source:    data.Start.Source,
		StartedAt: data.Start.StartedAt,
		Status:    data.End.Status,
		Delay:     data.Start.Delay.Seconds(),
		Records:   data.Start.Records,
		Dropped:   data.Start.Dropped,
		Tags:      data.Tag,
		View: View{
			Latitude:  data.Start.View.Latitude,
			Longitude: data.Start.View.Longitude,
			Zoom:      data.Start.View.Zoom,
			Pitch:     data.Start.View.Pitch,
		},
		Legend: make([]Legend, 0),
		Frames: make([]Frame, 0, len(data.Frames)),
	}

	legend := make(map[string]*Legend)
	for _, f := range data.Frames {
		if export.View.MapStyle == "" {
			export.View.MapStyle = f.MapStyle
		}

		frame := Frame{
			Position:  f.Position,
			Timestamp: f.Timestamp,
			Date:      f.Status.Date,
			Time:      f.Status.Time,
			Points:    make([][]any, 0, len(f.Layer.Points)),
		}
		for _, p := range f.Layer.Points {
			frame.Points = append(frame.Points, []any{
				p.ID,
				p.Indicator,
				[]float64{p.Position[0], p.Position[1]},
				[]uint8{p.FillColor[0], p.FillColor[1], p.FillColor[2], p.FillColor[3]},
			})

			l, ok := legend[p.Indicator]
			if !ok {
				l = &Legend{Indicator: p.Indicator, Color: p.FillColor}
				legend[p.Indicator] = l
			}
			l.Count++
		}
		export.Frames = append(export.Frames, frame)
	}

	for _, l := range legend {
		export.Legend = append(export.Legend, *l)
	}
	sort.Slice(export.Legend, func(i, j int) bool {
		if export.Legend[i].Count != export.Legend[j].Count {
			return export.Legend[i].Count > export.Legend[j].Count
		}
		return export.Legend[i].Indicator < export.Legend[j].Indicator
	})

	return export
}
