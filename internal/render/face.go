package render

import (
	"fmt"
	"os"

	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
)

const (
	defaultFontPath = "/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf"
	fontSize        = 12.0
	fontDPI         = 72.0
)

// newFace loads a truetype face from disk, falling back to the built-in
// bitmap face when the font file is missing. The fallback keeps the
// overlay usable on minimal systems without font packages.
func newFace(path string) (font.Face, error) {
	if path == "" {
		path = defaultFontPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return basicfont.Face7x13, fmt.Errorf("reading font %s: %w", path, err)
	}

	parsed, err := freetype.ParseFont(data)
	if err != nil {
		return basicfont.Face7x13, fmt.Errorf("parsing font %s: %w", path, err)
	}

	return truetype.NewFace(parsed, &truetype.Options{
		Size:    fontSize,
		DPI:     fontDPI,
		Hinting: font.HintingFull,
	}), nil
}
