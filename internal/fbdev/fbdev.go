// Package fbdev writes composed frames to a Linux framebuffer device.
package fbdev

import (
	"errors"
	"fmt"
	"image"
)

// ColorMode selects the on-wire pixel format.
type ColorMode int

const (
	ColorMode16 ColorMode = 16 // RGB565
	ColorMode32 ColorMode = 32 // XRGB8888, BGRA byte order
)

// ErrSurfaceMismatch is returned when the surface dimensions or color
// mode disagree with the opened framebuffer. This is fatal to the
// process; the pipeline never retries it.
var ErrSurfaceMismatch = errors.New("surface does not match framebuffer mode")

// Sink receives fully composed frames.
type Sink interface {
	Write(img *image.RGBA, mode ColorMode) error
	Size() (width, height int)
	Close() error
}

// MemorySink captures frames in memory. It backs tests and dry runs
// without a framebuffer device.
type MemorySink struct {
	W, H   int
	Frames int
	Last   []byte
	Mode   ColorMode
}

func NewMemorySink(width, height int) *MemorySink {
	return &MemorySink{W: width, H: height}
}

func (m *MemorySink) Size() (int, int) { return m.W, m.H }

func (m *MemorySink) Write(img *image.RGBA, mode ColorMode) error {
	b := img.Bounds()
	if b.Dx() != m.W || b.Dy() != m.H {
		return fmt.Errorf("%w: surface %dx%d, sink %dx%d", ErrSurfaceMismatch, b.Dx(), b.Dy(), m.W, m.H)
	}
	switch mode {
	case ColorMode16:
		m.Last = make([]byte, m.W*m.H*2)
		packRGB565(img, m.Last)
	case ColorMode32:
		m.Last = make([]byte, m.W*m.H*4)
		packXRGB(img, m.Last)
	default:
		return fmt.Errorf("%w: unsupported color mode %d", ErrSurfaceMismatch, mode)
	}
	m.Mode = mode
	m.Frames++
	return nil
}

func (m *MemorySink) Close() error { return nil }
