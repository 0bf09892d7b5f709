package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"

	"github.com/sdrtools/heatwave/internal/spectrum"
)

const (
	topMargin    = 30 // information area
	bottomMargin = 30 // frequency axis
	leftMargin   = 0

	pixelsPerLabel = 150
	tickSmall      = 2
	tickLarge      = 5

	lineHeight = 15
	textPad    = 5
)

var (
	cursorColor     = color.RGBA{G: 0xff, A: 0xff}
	cursorEdgeColor = color.RGBA{G: 0x80, A: 0xff}
	markerColor     = color.RGBA{R: 0xff, G: 0x40, B: 0x40, A: 0xff}
	annotationColor = color.RGBA{R: 0xff, G: 0xff, A: 0xff}
	axisColor       = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	boxColor        = color.RGBA{A: 0xff}
)

// AnnotationView is an annotation plus its age in rows, which places it
// vertically on the scrolling display.
type AnnotationView struct {
	spectrum.Annotation
	Age int64
}

// Frame is everything the compositor needs for one render pass. The
// pipeline assembles it from a config snapshot at the cycle boundary,
// so nothing here mutates mid-render.
type Frame struct {
	Rows        [][]float64 // power rows, oldest first
	FreqStart   float64     // Hz
	FreqEnd     float64     // Hz
	Bounds      PowerBounds
	Cursor      float64 // Hz
	CursorPower float64 // dB under the cursor in the newest row
	Markers     [5]*spectrum.Marker
	Annotations []AnnotationView
	Status      []string
	Message     string
	Now         time.Time
}

// WithFontPath points the compositor at a truetype font on disk.
func WithFontPath(path string) func(*Compositor) {
	return func(c *Compositor) { c.fontPath = path }
}

// Compositor draws the waterfall and its overlays into a pixel surface
// sized to the display. The newest row sits at the bottom edge of the
// plot area and history scrolls upward.
type Compositor struct {
	width, height int
	fontPath      string

	face    font.Face
	img     *image.RGBA
	scratch []float64
}

// NewCompositor creates a compositor for a width x height surface.
func NewCompositor(width, height int, options ...func(*Compositor)) (*Compositor, error) {
	if width <= 0 || height <= topMargin+bottomMargin {
		return nil, fmt.Errorf("surface %dx%d too small", width, height)
	}

	c := &Compositor{width: width, height: height}
	for _, option := range options {
		option(c)
	}

	// Fallback face is still usable, so the error is advisory only.
	c.face, _ = newFace(c.fontPath)
	c.img = image.NewRGBA(image.Rect(0, 0, width, height))
	c.scratch = make([]float64, c.PlotWidth())
	return c, nil
}

// PlotWidth returns the width of the waterfall plot area in pixels.
func (c *Compositor) PlotWidth() int { return c.width - leftMargin }

// PlotHeight returns the height of the waterfall plot area in rows.
func (c *Compositor) PlotHeight() int { return c.height - topMargin - bottomMargin }

// Render composes the frame into the reused backing image. The result
// is valid until the next Render call.
func (c *Compositor) Render(f *Frame, mapper *ColorMapper) *image.RGBA {
	draw.Draw(c.img, c.img.Bounds(), image.Black, image.Point{}, draw.Src)

	mapper.SetBounds(f.Bounds.Min, f.Bounds.Max)

	c.drawRows(f, mapper)
	c.drawFrequencyAxis(f)
	c.drawMarkers(f)
	c.drawCursor(f)
	c.drawAnnotations(f)
	c.drawStatus(f)
	c.drawMessage(f)

	return c.img
}

func (c *Compositor) drawRows(f *Frame, mapper *ColorMapper) {
	plotW, plotH := c.PlotWidth(), c.PlotHeight()
	plotBottom := topMargin + plotH

	for i := len(f.Rows) - 1; i >= 0; i-- {
		y := plotBottom - 1 - (len(f.Rows) - 1 - i)
		if y < topMargin {
			break
		}
		row := resample(f.Rows[i], c.scratch[:plotW])
		for x, p := range row {
			c.img.SetRGBA(leftMargin+x, y, mapper.Color(p))
		}
	}
}

func (c *Compositor) drawFrequencyAxis(f *Frame) {
	span := f.FreqEnd - f.FreqStart
	if span <= 0 {
		return
	}
	plotW := c.PlotWidth()
	axisY := topMargin + c.PlotHeight()

	step := niceFrequencyStep(span, plotW)
	small := step / 5

	for freq := f.FreqStart; freq <= f.FreqEnd; freq += small {
		x := c.freqToX(f, freq)
		if x < 0 || x >= plotW {
			continue
		}
		c.vline(leftMargin+x, axisY, axisY+tickSmall, axisColor)
	}
	for freq := f.FreqStart; freq <= f.FreqEnd; freq += step {
		x := c.freqToX(f, freq)
		if x < 0 || x >= plotW {
			continue
		}
		c.vline(leftMargin+x, axisY, axisY+tickLarge, axisColor)
		label := humanHz(freq)
		w := font.MeasureString(c.face, label).Ceil()
		c.drawString(leftMargin+x-w/2, axisY+tickLarge+12, label, axisColor)
	}
}

func (c *Compositor) drawMarkers(f *Frame) {
	axisY := topMargin + c.PlotHeight()
	for slot, m := range f.Markers {
		if m == nil {
			continue
		}
		x := c.freqToX(f, m.Frequency)
		if x < 0 || x >= c.PlotWidth() {
			continue
		}
		c.vline(leftMargin+x, topMargin, topMargin+8, markerColor)
		c.vline(leftMargin+x, axisY-8, axisY, markerColor)
		c.drawString(leftMargin+x+2, topMargin+12, fmt.Sprintf("M%d", slot+1), markerColor)
	}
}

func (c *Compositor) drawCursor(f *Frame) {
	x := c.freqToX(f, f.Cursor)
	plotW := c.PlotWidth()
	if x < 0 || x >= plotW {
		return
	}
	plotBottom := topMargin + c.PlotHeight()

	c.vline(leftMargin+x, topMargin, plotBottom, cursorColor)
	if x > 0 {
		c.vline(leftMargin+x-1, topMargin, plotBottom, cursorEdgeColor)
	}
	if x < plotW-1 {
		c.vline(leftMargin+x+1, topMargin, plotBottom, cursorEdgeColor)
	}

	lines := []string{
		fmt.Sprintf("Frequency: %s", humanHz(f.Cursor)),
		fmt.Sprintf("Signal: %.1f dB", f.CursorPower),
		fmt.Sprintf("Time: %s", f.Now.Format("15:04:05")),
		fmt.Sprintf("Range: %s - %s", humanHz(f.FreqStart), humanHz(f.FreqEnd)),
	}
	c.drawTextBox(textPad, textPad, lines, axisColor)
}

func (c *Compositor) drawAnnotations(f *Frame) {
	plotBottom := topMargin + c.PlotHeight()
	for _, a := range f.Annotations {
		y := plotBottom - 1 - int(a.Age)
		if y < topMargin || y >= plotBottom {
			continue
		}
		// dashed line across the full plot width
		for x := 0; x < c.PlotWidth(); x += 8 {
			end := x + 4
			if end > c.PlotWidth() {
				end = c.PlotWidth()
			}
			c.hline(leftMargin+x, leftMargin+end, y, annotationColor)
		}
		label := fmt.Sprintf("%s (%s | %s)", a.Note, humanHz(a.Frequency), a.Timestamp.Format("15:04:05"))
		c.drawTextBox(10, y-lineHeight, []string{label}, annotationColor)
	}
}

func (c *Compositor) drawStatus(f *Frame) {
	if len(f.Status) == 0 {
		return
	}
	var maxW int
	for _, s := range f.Status {
		if w := font.MeasureString(c.face, s).Ceil(); w > maxW {
			maxW = w
		}
	}
	x := c.width - maxW - textPad*2
	c.drawTextBox(x, textPad, f.Status, axisColor)
}

func (c *Compositor) drawMessage(f *Frame) {
	if f.Message == "" {
		return
	}
	w := font.MeasureString(c.face, f.Message).Ceil()
	x := (c.width - w) / 2
	y := c.height / 2
	c.drawTextBox(x, y, []string{f.Message}, axisColor)
}

// drawTextBox renders lines of text over a solid box so overlays stay
// readable on top of the waterfall.
func (c *Compositor) drawTextBox(x, y int, lines []string, col color.Color) {
	var maxW int
	for _, s := range lines {
		if w := font.MeasureString(c.face, s).Ceil(); w > maxW {
			maxW = w
		}
	}
	box := image.Rect(x-2, y, x+maxW+2, y+len(lines)*lineHeight+2)
	draw.Draw(c.img, box.Intersect(c.img.Bounds()), image.NewUniform(boxColor), image.Point{}, draw.Src)

	for i, s := range lines {
		c.drawString(x, y+(i+1)*lineHeight-3, s, col)
	}
}

func (c *Compositor) drawString(x, y int, s string, col color.Color) {
	d := font.Drawer{
		Dst:  c.img,
		Src:  image.NewUniform(col),
		Face: c.face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

func (c *Compositor) freqToX(f *Frame, freq float64) int {
	span := f.FreqEnd - f.FreqStart
	if span <= 0 {
		return -1
	}
	return int((freq - f.FreqStart) / span * float64(c.PlotWidth()))
}

func (c *Compositor) vline(x, y0, y1 int, col color.RGBA) {
	for y := y0; y < y1; y++ {
		if x >= 0 && x < c.width && y >= 0 && y < c.height {
			c.img.SetRGBA(x, y, col)
		}
	}
}

func (c *Compositor) hline(x0, x1, y int, col color.RGBA) {
	for x := x0; x < x1; x++ {
		if x >= 0 && x < c.width && y >= 0 && y < c.height {
			c.img.SetRGBA(x, y, col)
		}
	}
}

// resample stretches or squeezes a row of bin powers onto dst pixels
// using linear interpolation. When sizes match, values pass through.
func resample(src []float64, dst []float64) []float64 {
	if len(src) == 0 {
		for i := range dst {
			dst[i] = 0
		}
		return dst
	}
	if len(src) == len(dst) {
		copy(dst, src)
		return dst
	}
	if len(dst) == 1 {
		dst[0] = src[0]
		return dst
	}
	scale := float64(len(src)-1) / float64(len(dst)-1)
	for i := range dst {
		pos := float64(i) * scale
		j := int(pos)
		if j >= len(src)-1 {
			dst[i] = src[len(src)-1]
			continue
		}
		frac := pos - float64(j)
		dst[i] = src[j]*(1-frac) + src[j+1]*frac
	}
	return dst
}

// niceFrequencyStep picks a standard tick spacing that yields roughly
// one label per pixelsPerLabel of plot width.
func niceFrequencyStep(span float64, width int) float64 {
	steps := []float64{
		1, 10, 100,
		1_000, 10_000, 100_000,
		1_000_000, 10_000_000, 100_000_000,
		1_000_000_000,
	}

	target := span / (float64(width) / pixelsPerLabel)
	for _, step := range steps {
		if step >= target {
			if span/step >= 2 {
				return step
			}
			break
		}
	}
	return span / 2
}

func humanHz(hz float64) string {
	v, suffix := humanize.ComputeSI(hz)
	return fmt.Sprintf("%0.3f %sHz", v, suffix)
}
