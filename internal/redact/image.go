package redact

import (
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"os"
	"strconv"
	"strings"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/colornames"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"

	"github.com/adverant/nexus/redaction-worker/internal/geometry"
	"github.com/adverant/nexus/redaction-worker/internal/pii"
)

// Area is one filled rectangle on a page image
type Area struct {
	EntityType string       `json:"entity_type"`
	Box        geometry.Box `json:"bbox"`
}

// ParseColor resolves an SVG color name ("black", "darkred") or a
// #rrggbb hex value
func ParseColor(name string) (color.Color, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return colornames.Black, nil
	}
	if c, ok := colornames.Map[name]; ok {
		return c, nil
	}
	if strings.HasPrefix(name, "#") && len(name) == 7 {
		if v, err := strconv.ParseUint(name[1:], 16, 32); err == nil {
			return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, nil
		}
	}
	return nil, fmt.Errorf("unknown redaction color %q", name)
}

// ImageRedactor fills entity boxes on page rasters
type ImageRedactor struct {
	padding int
	fill    color.Color
}

// NewImageRedactor creates an image redactor
func NewImageRedactor(padding int, fill color.Color) *ImageRedactor {
	if fill == nil {
		fill = colornames.Black
	}
	return &ImageRedactor{padding: padding, fill: fill}
}

// RedactImage draws an opaque box over every entity that has geometry and
// writes the result to dstPath as PNG. The returned areas are exactly the
// rectangles drawn; a box that clamps to nothing is neither drawn nor
// returned. No areas are returned unless the output was written.
func (r *ImageRedactor) RedactImage(srcPath, dstPath string, entities []pii.Entity) ([]Area, error) {
	src, err := decodeFile(srcPath)
	if err != nil {
		return nil, err
	}

	bounds := src.Bounds()
	canvas := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(canvas, canvas.Bounds(), src, bounds.Min, draw.Src)

	fill := image.NewUniform(r.fill)
	areas := make([]Area, 0, len(entities))
	for _, e := range entities {
		if e.Box == nil {
			continue
		}
		box := e.Box.Pad(r.padding).Clamp(bounds.Dx(), bounds.Dy())
		if box.IsEmpty() {
			continue
		}
		rect := image.Rect(box.X, box.Y, box.Right(), box.Bottom())
		draw.Draw(canvas, rect, fill, image.Point{}, draw.Src)
		areas = append(areas, Area{EntityType: e.Type, Box: box})
	}

	if err := encodePNG(dstPath, canvas); err != nil {
		return nil, err
	}
	return areas, nil
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

func encodePNG(path string, img image.Image) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(path)
		}
	}()

	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return nil
}
