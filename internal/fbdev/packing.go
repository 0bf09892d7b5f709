package fbdev

import (
	"encoding/binary"
	"image"
)

// packRGB565 converts an RGBA image into little-endian RGB565, the
// common 16-bpp framebuffer layout.
func packRGB565(img *image.RGBA, dst []byte) {
	b := img.Bounds()
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		off := img.PixOffset(b.Min.X, y)
		for x := b.Min.X; x < b.Max.X; x++ {
			r := uint16(img.Pix[off]) >> 3
			g := uint16(img.Pix[off+1]) >> 2
			bl := uint16(img.Pix[off+2]) >> 3
			binary.LittleEndian.PutUint16(dst[i:], r<<11|g<<5|bl)
			off += 4
			i += 2
		}
	}
}

// packXRGB converts an RGBA image into 32-bpp XRGB8888 (BGRA byte
// order, alpha forced opaque).
func packXRGB(img *image.RGBA, dst []byte) {
	b := img.Bounds()
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		off := img.PixOffset(b.Min.X, y)
		for x := b.Min.X; x < b.Max.X; x++ {
			dst[i] = img.Pix[off+2]   // B
			dst[i+1] = img.Pix[off+1] // G
			dst[i+2] = img.Pix[off]   // R
			dst[i+3] = 0xff
			off += 4
			i += 4
		}
	}
}
