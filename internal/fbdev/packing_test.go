package fbdev

import (
	"encoding/binary"
	"image"
	"image/color"
	"testing"
)

func solidImage(c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestPackRGB565(t *testing.T) {
	testCases := []struct {
		name string
		in   color.RGBA
		want uint16
	}{
		{"black", color.RGBA{A: 0xff}, 0x0000},
		{"white", color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}, 0xffff},
		{"red", color.RGBA{R: 0xff, A: 0xff}, 0xf800},
		{"green", color.RGBA{G: 0xff, A: 0xff}, 0x07e0},
		{"blue", color.RGBA{B: 0xff, A: 0xff}, 0x001f},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			dst := make([]byte, 2*2*2)
			packRGB565(solidImage(tc.in), dst)

			for px := 0; px < 4; px++ {
				got := binary.LittleEndian.Uint16(dst[px*2:])
				if got != tc.want {
					t.Errorf("Pixel %d: expected %04x, got %04x", px, tc.want, got)
				}
			}
		})
	}
}

func TestPackXRGB(t *testing.T) {
	// Byte order on the wire is B, G, R, X
	dst := make([]byte, 2*2*4)
	packXRGB(solidImage(color.RGBA{R: 0x11, G: 0x22, B: 0x33, A: 0xff}), dst)

	for px := 0; px < 4; px++ {
		b := dst[px*4:]
		if b[0] != 0x33 || b[1] != 0x22 || b[2] != 0x11 || b[3] != 0xff {
			t.Errorf("Pixel %d: expected 33 22 11 ff, got %02x %02x %02x %02x", px, b[0], b[1], b[2], b[3])
		}
	}
}

func TestMemorySink_SurfaceValidation(t *testing.T) {
	sink := NewMemorySink(4, 4)

	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	if err := sink.Write(img, ColorMode16); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if sink.Frames != 1 {
		t.Errorf("Expected 1 frame, got %d", sink.Frames)
	}
	if len(sink.Last) != 4*4*2 {
		t.Errorf("Expected %d bytes at 16 bpp, got %d", 4*4*2, len(sink.Last))
	}

	if err := sink.Write(img, ColorMode32); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if len(sink.Last) != 4*4*4 {
		t.Errorf("Expected %d bytes at 32 bpp, got %d", 4*4*4, len(sink.Last))
	}

	// Mismatched dimensions and unknown modes are surface errors
	wrong := image.NewRGBA(image.Rect(0, 0, 8, 8))
	if err := sink.Write(wrong, ColorMode16); err == nil {
		t.Error("Expected error for mismatched surface size")
	}
	if err := sink.Write(img, ColorMode(24)); err == nil {
		t.Error("Expected error for unsupported color mode")
	}
}
