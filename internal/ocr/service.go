package ocr

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/adverant/nexus/redaction-worker/internal/logging"
	"github.com/adverant/nexus/redaction-worker/internal/preprocess"
)

// Service runs a TextRecognizer over every page of a document
type Service struct {
	recognizer  TextRecognizer
	concurrency int
	logger      *logging.Logger
}

// NewService creates an OCR service. concurrency bounds parallel pages.
func NewService(recognizer TextRecognizer, concurrency int) *Service {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Service{
		recognizer:  recognizer,
		concurrency: concurrency,
		logger:      logging.NewLogger("ocr"),
	}
}

// RecognizeDocument recognizes every page. A failing page becomes an error
// entry and never affects its siblings.
func (s *Service) RecognizeDocument(ctx context.Context, pages []preprocess.Page) *Result {
	result := &Result{Status: StatusSuccess, Pages: make([]PageResult, len(pages))}
	if len(pages) == 0 {
		result.Status = StatusError
		result.Message = "no pages to recognize"
		return result
	}

	sem := make(chan struct{}, s.concurrency)
	var wg sync.WaitGroup
	for i, page := range pages {
		wg.Add(1)
		go func(i int, page preprocess.Page) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			result.Pages[i] = s.recognizePage(ctx, page)
		}(i, page)
	}
	wg.Wait()

	failed := 0
	for _, p := range result.Pages {
		if p.Status == StatusError {
			failed++
		}
	}
	if failed == len(result.Pages) {
		result.Status = StatusError
		result.Message = "recognition failed on every page"
	}

	s.logger.Info("Recognition complete", "pages", len(pages), "failed", failed, "words", result.WordCount())
	return result
}

func (s *Service) recognizePage(ctx context.Context, page preprocess.Page) (res PageResult) {
	res.PageNum = page.Num
	defer func() {
		if r := recover(); r != nil {
			res = PageResult{PageNum: page.Num, Status: StatusError, Message: fmt.Sprintf("recognizer panic: %v", r)}
		}
	}()

	text, words, err := s.recognizer.Recognize(ctx, page.Path)
	if err != nil {
		s.logger.Warn("Page recognition failed", "page", page.Num, "error", err)
		return PageResult{PageNum: page.Num, Status: StatusError, Message: err.Error()}
	}

	if strings.TrimSpace(text) == "" {
		return PageResult{PageNum: page.Num, Status: StatusWarning, Words: words, Message: "no text recognized"}
	}

	return PageResult{PageNum: page.Num, Status: StatusSuccess, Text: text, Words: words}
}
