/**
 * Tesseract recognizer
 *
 * Word-level recognition through gosseract (cgo: needs libtesseract and
 * leptonica), kept out of package ocr so the pipeline builds without them.
 * A fresh client is created per page so pages can be recognized concurrently.
 */

package tesseract

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/adverant/nexus/redaction-worker/internal/geometry"
	"github.com/adverant/nexus/redaction-worker/internal/ocr"
)

// Config holds Tesseract configuration
type Config struct {
	Languages []string
}

// Recognizer implements ocr.TextRecognizer with gosseract
type Recognizer struct {
	languages []string
}

// NewRecognizer creates a new Tesseract recognizer
func NewRecognizer(cfg *Config) *Recognizer {
	langs := []string{"eng"}
	if cfg != nil && len(cfg.Languages) > 0 {
		langs = cfg.Languages
	}
	return &Recognizer{languages: langs}
}

// Recognize runs Tesseract on the image at imagePath
func (t *Recognizer) Recognize(ctx context.Context, imagePath string) (string, []ocr.Word, error) {
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(t.languages...); err != nil {
		return "", nil, fmt.Errorf("failed to set language: %w", err)
	}

	if err := client.SetImage(imagePath); err != nil {
		return "", nil, fmt.Errorf("failed to set image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return "", nil, fmt.Errorf("tesseract OCR failed: %w", err)
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return "", nil, fmt.Errorf("tesseract word boxes failed: %w", err)
	}

	words := make([]ocr.Word, 0, len(boxes))
	for _, b := range boxes {
		token := strings.TrimSpace(b.Word)
		if token == "" {
			continue
		}
		words = append(words, ocr.Word{
			Text:       token,
			Box:        geometry.FromCorners(b.Box.Min.X, b.Box.Min.Y, b.Box.Max.X, b.Box.Max.Y),
			Confidence: b.Confidence / 100.0,
		})
	}

	return text, words, nil
}
