package ocr

import "context"

// TextRecognizer extracts text and positioned words from one page image.
// The Tesseract implementation lives in package ocr/tesseract.
type TextRecognizer interface {
	Recognize(ctx context.Context, imagePath string) (string, []Word, error)
}
