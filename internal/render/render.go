package render

import (
	"github.com/OCAP2/framereplay/internal/config"
	"github.com/OCAP2/framereplay/pkg/core"
	"github.com/OCAP2/framereplay/pkg/streaming"
)

const (
	LayerType   = "ScatterplotLayer"
	TooltipHTML = "<b>ID:</b> {id}<br/><b>Estado:</b> {indicator}"

	DateLayout = "2006-01-02"
	TimeLayout = "15:04:05"

	DefaultMapStyle = "mapbox://styles/mapbox/dark-v10"
)

// Options controls the scatterplot layer and the base map.
type Options struct {
	SessionID       string
	Radius          float64
	RadiusMinPixels float64
	RadiusMaxPixels float64
	Opacity         float64
	MapStyle        string
	MapToken        string
}

func DefaultOptions() Options {
	return Options{
		Radius:          100,
		RadiusMinPixels: 5,
		RadiusMaxPixels: 50,
		Opacity:         0.8,
		MapStyle:        DefaultMapStyle,
	}
}

// OptionsFrom converts the render section of the configuration.
func OptionsFrom(rc config.RenderConfig) Options {
	return Options{
		Radius:          rc.Radius,
		RadiusMinPixels: rc.RadiusMinPixels,
		RadiusMaxPixels: rc.RadiusMaxPixels,
		Opacity:         rc.Opacity,
		MapStyle:        rc.MapStyle,
		MapToken:        rc.MapToken,
	}
}

// Builder turns frames into self-contained payloads. Every payload carries
// the full point set of its frame and the shared view.
type Builder struct {
	opts Options
	view core.ViewState
}

func NewBuilder(opts Options, view core.ViewState) *Builder {
	return &Builder{opts: opts, view: view}
}

// View returns the camera shared by all payloads.
func (b *Builder) View() core.ViewState {
	return b.view
}

func (b *Builder) Build(f core.Frame) streaming.FramePayload {
	points := make([]streaming.Point, len(f.Records))
	for i, r := range f.Records {
		points[i] = streaming.Point{
			ID:        r.ID,
			Indicator: r.Indicator,
			Position:  [2]float64{r.Longitude, r.Latitude},
			FillColor: r.Color,
		}
	}

	return streaming.FramePayload{
		SessionID: b.opts.SessionID,
		Timestamp: f.Timestamp,
		Position:  f.Position,
		Total:     f.Total,
		Progress:  f.Progress(),
		Status: streaming.Status{
			Date: f.Timestamp.Format(DateLayout),
			Time: f.Timestamp.Format(TimeLayout),
		},
		View:     b.view,
		MapStyle: b.opts.MapStyle,
		MapToken: b.opts.MapToken,
		Layer: streaming.Layer{
			Type:            LayerType,
			Points:          points,
			Radius:          b.opts.Radius,
			RadiusMinPixels: b.opts.RadiusMinPixels,
			RadiusMaxPixels: b.opts.RadiusMaxPixels,
			Opacity:         b.opts.Opacity,
			Stroked:         true,
			Filled:          true,
			Pickable:        true,
		},
		Tooltip: streaming.Tooltip{
			HTML: TooltipHTML,
			Style: map[string]string{
				"backgroundColor": "black",
				"color":           "white",
			},
		},
	}
}
