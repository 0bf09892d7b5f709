package fbdev

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

const (
	defaultDevice = "/dev/fb0"
	sysfsRoot     = "/sys/class/graphics"
)

// Device is a memory-mapped framebuffer. Geometry and depth come from
// sysfs at open time; writes that disagree with them are rejected with
// ErrSurfaceMismatch.
type Device struct {
	f    *os.File
	data []byte

	width  int
	height int
	bpp    int
}

// Open maps the framebuffer device, defaulting to /dev/fb0.
func Open(path string) (*Device, error) {
	if path == "" {
		path = defaultDevice
	}
	name := filepath.Base(path)

	width, height, err := readVirtualSize(name)
	if err != nil {
		return nil, err
	}
	bpp, err := readBitsPerPixel(name)
	if err != nil {
		return nil, err
	}
	if bpp != 16 && bpp != 32 {
		return nil, fmt.Errorf("%w: %d bpp framebuffer is not supported", ErrSurfaceMismatch, bpp)
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}

	size := width * height * bpp / 8
	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("mapping %s: %w", path, err)
	}

	return &Device{f: f, data: data, width: width, height: height, bpp: bpp}, nil
}

// Size returns the framebuffer dimensions in pixels.
func (d *Device) Size() (int, int) { return d.width, d.height }

// BitsPerPixel returns the device depth.
func (d *Device) BitsPerPixel() int { return d.bpp }

// Write packs the surface into the device pixel format and copies it to
// the mapped memory in one pass.
func (d *Device) Write(img *image.RGBA, mode ColorMode) error {
	b := img.Bounds()
	if b.Dx() != d.width || b.Dy() != d.height {
		return fmt.Errorf("%w: surface %dx%d, framebuffer %dx%d",
			ErrSurfaceMismatch, b.Dx(), b.Dy(), d.width, d.height)
	}
	if int(mode) != d.bpp {
		return fmt.Errorf("%w: color mode %d on a %d bpp framebuffer", ErrSurfaceMismatch, mode, d.bpp)
	}

	switch mode {
	case ColorMode16:
		packRGB565(img, d.data)
	case ColorMode32:
		packXRGB(img, d.data)
	}
	return nil
}

// Close unmaps and closes the device.
func (d *Device) Close() error {
	var errs []error
	if d.data != nil {
		if err := unix.Munmap(d.data); err != nil {
			errs = append(errs, err)
		}
		d.data = nil
	}
	if d.f != nil {
		if err := d.f.Close(); err != nil {
			errs = append(errs, err)
		}
		d.f = nil
	}
	if len(errs) > 0 {
		return fmt.Errorf("closing framebuffer: %v", errs)
	}
	return nil
}

func readVirtualSize(name string) (int, int, error) {
	raw, err := os.ReadFile(filepath.Join(sysfsRoot, name, "virtual_size"))
	if err != nil {
		return 0, 0, fmt.Errorf("reading framebuffer geometry: %w", err)
	}
	parts := strings.Split(strings.TrimSpace(string(raw)), ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("unexpected virtual_size %q", raw)
	}
	width, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("parsing framebuffer width: %w", err)
	}
	height, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("parsing framebuffer height: %w", err)
	}
	return width, height, nil
}

func readBitsPerPixel(name string) (int, error) {
	raw, err := os.ReadFile(filepath.Join(sysfsRoot, name, "bits_per_pixel"))
	if err != nil {
		return 0, fmt.Errorf("reading framebuffer depth: %w", err)
	}
	bpp, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return 0, fmt.Errorf("parsing framebuffer depth: %w", err)
	}
	return bpp, nil
}
