/**
 * OCR Types - page-level recognition results
 *
 * Words carry their pixel box on the normalized page raster. Word order
 * follows the recognizer's text order, which is not reading order.
 */

package ocr

import (
	"github.com/adverant/nexus/redaction-worker/internal/geometry"
)

// Status tags every page-level result
type Status string

const (
	StatusSuccess Status = "success"
	StatusWarning Status = "warning"
	StatusError   Status = "error"
)

// Word is one recognized token
type Word struct {
	Text       string       `json:"text"`
	Box        geometry.Box `json:"box"`
	Confidence float64      `json:"confidence"`
}

// PageResult is the recognizer output for a single page
type PageResult struct {
	PageNum int    `json:"page_num"`
	Status  Status `json:"status"`
	Text    string `json:"text"`
	Words   []Word `json:"words"`
	Message string `json:"message,omitempty"`
}

// Result is the recognizer output for a whole document, one entry per page
// in page order
type Result struct {
	Status  Status       `json:"status"`
	Message string       `json:"message,omitempty"`
	Pages   []PageResult `json:"pages"`
}

// Page returns the result for a page number, or nil
func (r *Result) Page(num int) *PageResult {
	if r == nil {
		return nil
	}
	for i := range r.Pages {
		if r.Pages[i].PageNum == num {
			return &r.Pages[i]
		}
	}
	return nil
}

// WordCount returns the total number of words across successful pages
func (r *Result) WordCount() int {
	n := 0
	for _, p := range r.Pages {
		if p.Status == StatusSuccess {
			n += len(p.Words)
		}
	}
	return n
}
