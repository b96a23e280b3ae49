package colorize

import (
	"strings"

	"github.com/OCAP2/framereplay/pkg/core"
)

// Indicator values with a dedicated color.
const (
	Red     = "red"
	Green   = "green"
	RedWine = "red_wine"
)

var (
	RedRGBA     = core.RGBA{255, 0, 0, 200}
	GreenRGBA   = core.RGBA{0, 255, 0, 200}
	RedWineRGBA = core.RGBA{114, 47, 55, 200}
	DefaultRGBA = core.RGBA{128, 128, 128, 140}
)

// Palette maps indicator values to colors with a fallback.
type Palette struct {
	colors   map[string]core.RGBA
	fallback core.RGBA
}

// Standard is the fixed four-entry palette.
var Standard = Palette{
	colors: map[string]core.RGBA{
		Red:     RedRGBA,
		Green:   GreenRGBA,
		RedWine: RedWineRGBA,
	},
	fallback: DefaultRGBA,
}

// Lookup returns the color for indicator after trimming surrounding
// whitespace. ok is false when the fallback was used.
func (p Palette) Lookup(indicator string) (c core.RGBA, ok bool) {
	c, ok = p.colors[strings.TrimSpace(indicator)]
	if !ok {
		return p.fallback, false
	}
	return c, true
}

func (p Palette) Default() core.RGBA {
	return p.fallback
}

// Names returns the indicators with a dedicated color in display order.
func (p Palette) Names() []string {
	return []string{Red, Green, RedWine}
}

// Color resolves indicator against the standard palette. It never fails.
func Color(indicator string) core.RGBA {
	c, _ := Standard.Lookup(indicator)
	return c
}

// Apply returns a copy of records with Color set. The input is not modified.
func Apply(records []core.Record) []core.Record {
	if records == nil {
		return nil
	}
	out := make([]core.Record, len(records))
	for i, r := range records {
		r.Color = Color(r.Indicator)
		out[i] = r
	}
	return out
}
