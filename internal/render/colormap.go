package render

import (
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

// Scheme names a color ramp for power visualization.
type Scheme string

const (
	SchemeDefault   Scheme = "default"   // black-blue-cyan-yellow-red, enhanced low end
	SchemeHot       Scheme = "hot"       // black-red-yellow-white
	SchemeViridis   Scheme = "viridis"   // perceptually uniform green-yellow
	SchemePlasma    Scheme = "plasma"    // purple-orange-yellow
	SchemeMagma     Scheme = "magma"     // black-purple-peach
	SchemeGrayscale Scheme = "grayscale" // black-white

	lutSize = 256
)

// Schemes returns all schemes in cycling order.
func Schemes() []Scheme {
	return []Scheme{SchemeDefault, SchemeHot, SchemeViridis, SchemePlasma, SchemeMagma, SchemeGrayscale}
}

// NextScheme returns the scheme following s in cycling order.
func NextScheme(s Scheme) Scheme {
	all := Schemes()
	for i, cur := range all {
		if cur == s {
			return all[(i+1)%len(all)]
		}
	}
	return all[0]
}

// ColorMapper maps power values to pixels through a pre-computed lookup
// table. Values outside the configured bounds clamp to the table edges;
// switching schemes only rebuilds the table, stored rows are untouched.
type ColorMapper struct {
	lut           [lutSize]color.RGBA
	scheme        Scheme
	ramp          func(float64) color.RGBA
	min           float64
	powerPerIndex float64
}

// NewColorMapper creates a mapper for the scheme over [min, max] dB.
func NewColorMapper(scheme Scheme, min, max float64) *ColorMapper {
	cm := &ColorMapper{}
	cm.SetScheme(scheme)
	cm.SetBounds(min, max)
	return cm
}

// Scheme returns the active scheme.
func (cm *ColorMapper) Scheme() Scheme { return cm.scheme }

// SetScheme switches the active ramp and rebuilds the table.
func (cm *ColorMapper) SetScheme(scheme Scheme) {
	cm.scheme = scheme
	cm.ramp = schemeRamp(scheme)
	cm.rebuild()
}

// SetBounds updates the power range mapped onto the table.
func (cm *ColorMapper) SetBounds(min, max float64) {
	if max <= min {
		max = min + 1
	}
	cm.min = min
	cm.powerPerIndex = (max - min) / float64(lutSize-1)
	cm.rebuild()
}

func (cm *ColorMapper) rebuild() {
	if cm.ramp == nil {
		return
	}
	for i := 0; i < lutSize; i++ {
		cm.lut[i] = cm.ramp(float64(i) / float64(lutSize-1))
	}
}

// Color maps a power value in dB to a pixel, clamping out-of-range
// values to the ends of the ramp.
func (cm *ColorMapper) Color(power float64) color.RGBA {
	idx := int((power - cm.min) / cm.powerPerIndex)
	if idx < 0 {
		idx = 0
	} else if idx >= lutSize {
		idx = lutSize - 1
	}
	return cm.lut[idx]
}

// MinColor returns the pixel for the bottom of the range.
func (cm *ColorMapper) MinColor() color.RGBA { return cm.lut[0] }

func schemeRamp(scheme Scheme) func(float64) color.RGBA {
	switch scheme {
	case SchemeHot:
		return gradientRamp("#000000", "#ff0000", "#ffff00", "#ffffff")

	case SchemeViridis:
		return gradientRamp("#440154", "#3b528b", "#21918c", "#5ec962", "#fde725")

	case SchemePlasma:
		return gradientRamp("#0d0887", "#7e03a8", "#cc4778", "#f89540", "#f0f921")

	case SchemeMagma:
		return gradientRamp("#000004", "#3b0f70", "#8c2981", "#de4968", "#fe9f6d", "#fcfdbf")

	case SchemeGrayscale:
		return func(t float64) color.RGBA {
			v := uint8(math.Pow(t, 0.7) * 255)
			return color.RGBA{R: v, G: v, B: v, A: 0xff}
		}

	default: // SchemeDefault: staged HSV with enhanced low-power contrast
		return func(t float64) color.RGBA {
			t = math.Max(0, math.Min(1, t))
			enhanced := math.Pow(t, 0.7)

			var c colorful.Color
			switch {
			case t < 0.25:
				c = colorful.Hsv(240, 1.0, enhanced*4)
			case t < 0.5:
				c = colorful.Hsv(240-((t-0.25)*240), 1.0, math.Min(1.0, enhanced*1.5))
			case t < 0.75:
				c = colorful.Hsv(180-((t-0.5)*4*120), 1.0, math.Min(1.0, enhanced*1.5))
			default:
				c = colorful.Hsv(60-((t-0.75)*4*60), 1.0, 1.0)
			}
			return toRGBA(c)
		}
	}
}

// gradientRamp interpolates between keypoint colors in Luv space, which
// avoids the muddy midpoints straight RGB blending produces.
func gradientRamp(stops ...string) func(float64) color.RGBA {
	colors := make([]colorful.Color, len(stops))
	for i, hex := range stops {
		c, err := colorful.Hex(hex)
		if err != nil {
			c = colorful.Color{}
		}
		colors[i] = c
	}

	return func(t float64) color.RGBA {
		t = math.Max(0, math.Min(1, t))
		pos := t * float64(len(colors)-1)
		i := int(pos)
		if i >= len(colors)-1 {
			return toRGBA(colors[len(colors)-1])
		}
		return toRGBA(colors[i].BlendLuv(colors[i+1], pos-float64(i)).Clamped())
	}
}

func toRGBA(c colorful.Color) color.RGBA {
	r, g, b := c.Clamped().RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 0xff}
}
