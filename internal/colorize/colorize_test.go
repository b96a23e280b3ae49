package colorize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCAP2/framereplay/pkg/core"
)

func TestColor_Palette(t *testing.T) {
	tests := []struct {
		in   string
		want core.RGBA
	}{
		{"red", core.RGBA{255, 0, 0, 200}},
		{"green", core.RGBA{0, 255, 0, 200}},
		{"red_wine", core.RGBA{114, 47, 55, 200}},
		{"blue", core.RGBA{128, 128, 128, 140}},
		{"", core.RGBA{128, 128, 128, 140}},
		{"RED", core.RGBA{128, 128, 128, 140}},
		{"red wine", core.RGBA{128, 128, 128, 140}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Color(tt.in), "indicator %q", tt.in)
	}
}

func TestColor_TrimInvariant(t *testing.T) {
	for _, s := range []string{"red", "green", "red_wine", "blue", ""} {
		for _, padded := range []string{" " + s, s + "  ", "\t" + s + "\n", "  " + s + " "} {
			assert.Equal(t, Color(s), Color(padded), "indicator %q", padded)
		}
	}
}

func TestColor_Total(t *testing.T) {
	allowed := map[core.RGBA]bool{RedRGBA: true, GreenRGBA: true, RedWineRGBA: true, DefaultRGBA: true}
	for _, s := range []string{"\x00", "ñandú", "red_wine_", "🟥", "green ", "null", "NaN"} {
		assert.True(t, allowed[Color(s)], "indicator %q", s)
	}
}

func TestPalette_Lookup(t *testing.T) {
	c, ok := Standard.Lookup(" green ")
	assert.True(t, ok)
	assert.Equal(t, GreenRGBA, c)

	c, ok = Standard.Lookup("purple")
	assert.False(t, ok)
	assert.Equal(t, Standard.Default(), c)
	assert.Equal(t, []string{"red", "green", "red_wine"}, Standard.Names())
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	in := []core.Record{
		{ID: "1", Timestamp: ts, Indicator: "red"},
		{ID: "2", Timestamp: ts, Indicator: "blue"},
		{ID: "3", Timestamp: ts, Indicator: "green"},
	}

	out := Apply(in)
	require.Len(t, out, 3)
	assert.Equal(t, []core.RGBA{RedRGBA, DefaultRGBA, GreenRGBA},
		[]core.RGBA{out[0].Color, out[1].Color, out[2].Color})

	for _, r := range in {
		assert.Equal(t, core.RGBA{}, r.Color)
	}
	assert.Equal(t, Apply(in), out, "apply is deterministic")
	assert.Nil(t, Apply(nil))
}
