//go:build !linux

package fbdev

import (
	"errors"
	"image"
)

// Device is only available on Linux; other platforms get a stub so the
// rest of the tree still builds for tests.
type Device struct{}

func Open(path string) (*Device, error) {
	return nil, errors.New("framebuffer output requires linux")
}

func (d *Device) Size() (int, int)  { return 0, 0 }
func (d *Device) BitsPerPixel() int { return 0 }

func (d *Device) Write(img *image.RGBA, mode ColorMode) error {
	return errors.New("framebuffer output requires linux")
}

func (d *Device) Close() error { return nil }
