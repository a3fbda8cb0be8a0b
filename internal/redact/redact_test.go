package redact

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adverant/nexus/redaction-worker/internal/errors"
	"github.com/adverant/nexus/redaction-worker/internal/geometry"
	"github.com/adverant/nexus/redaction-worker/internal/ocr"
	"github.com/adverant/nexus/redaction-worker/internal/pii"
	"github.com/adverant/nexus/redaction-worker/internal/preprocess"
)

func writePage(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func readImage(t *testing.T, path string) image.Image {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	return img
}

func isColor(img image.Image, x, y int, want color.Color) bool {
	r1, g1, b1, _ := img.At(x, y).RGBA()
	r2, g2, b2, _ := want.RGBA()
	return r1 == r2 && g1 == g2 && b1 == b2
}

func boxed(e pii.Entity, b geometry.Box) pii.Entity {
	e.Box = &b
	return e
}

func TestRedactTextSplice(t *testing.T) {
	out, err := RedactText("SSN 123-45-6789 end", []pii.Entity{pii.NewEntity("SSN", "123-45-6789", 4, 15, 1)})
	require.NoError(t, err)
	assert.Equal(t, "SSN [REDACTED_SSN] end", out)
}

func TestRedactTextParenthesizedPhone(t *testing.T) {
	text := "Call (555) 123-4567 now"
	entities, err := pii.NewRegexRecognizer(nil).Detect(context.Background(), text)
	require.NoError(t, err)

	out, err := RedactText(text, entities)
	require.NoError(t, err)
	assert.Equal(t, "Call [REDACTED_PHONE_NUMBER] now", out)
}

func TestRedactTextMultipleEntitiesKeepOffsets(t *testing.T) {
	text := "call 555-1234 or mail a@b.io now"
	out, err := RedactText(text, []pii.Entity{
		pii.NewEntity("PHONE", "555-1234", 5, 13, 1),
		pii.NewEntity("EMAIL", "a@b.io", 22, 28, 1),
	})
	require.NoError(t, err)
	assert.Equal(t, "call [REDACTED_PHONE] or mail [REDACTED_EMAIL] now", out)
}

func TestRedactTextSkipsEntitiesWithoutSpan(t *testing.T) {
	text := "Name: John Smith"
	out, err := RedactText(text, []pii.Entity{{Type: "PERSON", Text: "John Smith"}})
	require.NoError(t, err)
	assert.Equal(t, text, out)

	start := 6
	out, err = RedactText(text, []pii.Entity{{Type: "PERSON", Start: &start}, pii.NewEntity("PERSON", "John Smith", 6, 16, 1)})
	require.NoError(t, err)
	assert.Equal(t, "Name: [REDACTED_PERSON]", out)
}

func TestRedactTextFailsClosed(t *testing.T) {
	text := "short text"
	for _, e := range []pii.Entity{
		pii.NewEntity("X", "", 4, 99, 1),
		pii.NewEntity("X", "", -1, 3, 1),
		pii.NewEntity("X", "", 5, 2, 1),
	} {
		out, err := RedactText(text, []pii.Entity{pii.NewEntity("OK", "short", 0, 5, 1), e})
		assert.Error(t, err)
		assert.Equal(t, text, out)
	}
}

func TestRedactTextMergesOverlaps(t *testing.T) {
	text := "card 4111-1111-1111-1111 ok"
	out, err := RedactText(text, []pii.Entity{
		pii.NewEntity("PHONE_NUMBER", "1111-1111", 10, 19, 1),
		pii.NewEntity("CREDIT_CARD", "4111-1111-1111-1111", 5, 24, 1),
	})
	require.NoError(t, err)
	assert.Equal(t, "card [REDACTED_CREDIT_CARD] ok", out)
}

func TestRedactTextRuneOffsets(t *testing.T) {
	out, err := RedactText("Zoë 555-1234", []pii.Entity{pii.NewEntity("PHONE", "555-1234", 4, 12, 1)})
	require.NoError(t, err)
	assert.Equal(t, "Zoë [REDACTED_PHONE]", out)
}

func TestParseColor(t *testing.T) {
	c, err := ParseColor("Black")
	require.NoError(t, err)
	assert.True(t, isColor(image.NewUniform(c), 0, 0, color.Black))

	c, err = ParseColor("#ff0000")
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{R: 255, A: 255}, c)

	_, err = ParseColor("not-a-color")
	assert.Error(t, err)
}

func TestRedactImageRecordsDrawnAreas(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "page.png")
	dst := filepath.Join(dir, "out.png")
	writePage(t, src, 100, 100)

	entities := []pii.Entity{
		boxed(pii.NewEntity("US_SSN", "x", 0, 1, 1), geometry.Box{X: 10, Y: 10, Width: 20, Height: 10}),
		pii.NewEntity("EMAIL_ADDRESS", "y", 2, 3, 1),
		boxed(pii.NewEntity("DATE", "z", 4, 5, 1), geometry.Box{X: 95, Y: 90, Width: 20, Height: 20}),
		boxed(pii.NewEntity("IP_ADDRESS", "w", 6, 7, 1), geometry.Box{X: 300, Y: 300, Width: 5, Height: 5}),
	}

	areas, err := NewImageRedactor(5, color.Black).RedactImage(src, dst, entities)
	require.NoError(t, err)

	require.Len(t, areas, 2)
	assert.Equal(t, Area{EntityType: "US_SSN", Box: geometry.Box{X: 5, Y: 5, Width: 30, Height: 20}}, areas[0])
	assert.Equal(t, Area{EntityType: "DATE", Box: geometry.Box{X: 90, Y: 85, Width: 10, Height: 15}}, areas[1])

	img := readImage(t, dst)
	assert.True(t, isColor(img, 5, 5, color.Black))
	assert.True(t, isColor(img, 34, 24, color.Black))
	assert.True(t, isColor(img, 4, 4, color.White))
	assert.True(t, isColor(img, 35, 25, color.White))
	assert.True(t, isColor(img, 99, 99, color.Black))
}

func TestRedactImageMissingSource(t *testing.T) {
	dir := t.TempDir()
	_, err := NewImageRedactor(5, nil).RedactImage(filepath.Join(dir, "nope.png"), filepath.Join(dir, "out.png"), nil)
	assert.Error(t, err)
	_, statErr := os.Stat(filepath.Join(dir, "out.png"))
	assert.True(t, os.IsNotExist(statErr))
}

// fixture builds a three page document where every page carries one SSN
func fixture(t *testing.T, dir string) ([]preprocess.Page, *ocr.Result, *pii.Result) {
	t.Helper()
	var pages []preprocess.Page
	ocrResult := &ocr.Result{Status: ocr.StatusSuccess}
	var piiPages []pii.PageResult
	for n := 1; n <= 3; n++ {
		path := filepath.Join(dir, "src", fmt.Sprintf("page_%d.png", n))
		writePage(t, path, 200, 100)
		pages = append(pages, preprocess.Page{Num: n, Path: path, Width: 200, Height: 100})

		text := "SSN 123-45-6789"
		ocrResult.Pages = append(ocrResult.Pages, ocr.PageResult{PageNum: n, Status: ocr.StatusSuccess, Text: text})
		piiPages = append(piiPages, pii.PageResult{PageNum: n, Status: ocr.StatusSuccess, Entities: []pii.Entity{
			boxed(pii.NewEntity("US_SSN", "123-45-6789", 4, 15, 1), geometry.Box{X: 50, Y: 40, Width: 80, Height: 12}),
		}})
	}
	return pages, ocrResult, &pii.Result{Status: ocr.StatusSuccess, Pages: piiPages, Summary: pii.Summarize(piiPages)}
}

func newEngine(t *testing.T, dir string) *Engine {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src"), 0o755))
	e, err := NewEngine(Options{Padding: 5, Color: "black", OutputDir: filepath.Join(dir, "out"), Concurrency: 3})
	require.NoError(t, err)
	return e
}

func TestEnginePageIndependence(t *testing.T) {
	dir := t.TempDir()
	engine := newEngine(t, dir)
	pages, ocrResult, piiResult := fixture(t, dir)
	require.NoError(t, os.Remove(pages[1].Path))

	report, err := engine.Redact(context.Background(), "doc-1", pages, ocrResult, piiResult, "")
	require.NoError(t, err)
	require.NoError(t, report.Validate())

	require.Len(t, report.Pages, 3)
	for _, i := range []int{0, 2} {
		p := report.Pages[i]
		assert.Equal(t, ocr.StatusSuccess, p.Status)
		assert.Equal(t, 1, p.RedactionCount)
		require.NotNil(t, p.RedactedText)
		assert.Equal(t, "SSN [REDACTED_US_SSN]", *p.RedactedText)
		assert.FileExists(t, p.RedactedImagePath)
	}

	failed := report.Pages[1]
	assert.Equal(t, ocr.StatusError, failed.Status)
	assert.Contains(t, failed.Message, string(errors.ErrorIOFailure))
	assert.Empty(t, failed.RedactedAreas)

	assert.Equal(t, 2, report.Summary.TotalRedactions)
	assert.Equal(t, 3, report.Summary.TotalPages)
	assert.Equal(t, 3, report.Summary.EntityCount)
	assert.Equal(t, pii.SensitivityMedium, report.Summary.Sensitivity)
	assert.Equal(t, []string{"US_SSN"}, report.Summary.EntityTypes)
}

func TestEngineUpstreamStatuses(t *testing.T) {
	dir := t.TempDir()
	engine := newEngine(t, dir)
	pages, ocrResult, piiResult := fixture(t, dir)
	piiResult.Pages[0] = pii.PageResult{PageNum: 1, Status: ocr.StatusError, Message: "model unavailable"}
	piiResult.Pages[1] = pii.PageResult{PageNum: 2, Status: ocr.StatusWarning, Message: "no text on page"}
	piiResult.Pages[2].Entities = append(piiResult.Pages[2].Entities, pii.NewEntity("X", "", 90, 120, 1))

	report, err := engine.Redact(context.Background(), "doc-2", pages, ocrResult, piiResult, "")
	require.NoError(t, err)
	require.NoError(t, report.Validate())

	assert.Equal(t, ocr.StatusError, report.Pages[0].Status)
	assert.Contains(t, report.Pages[0].Message, "model unavailable")

	assert.Equal(t, ocr.StatusWarning, report.Pages[1].Status)
	assert.Equal(t, pages[1].Path, report.Pages[1].RedactedImagePath)
	assert.Zero(t, report.Pages[1].RedactionCount)

	third := report.Pages[2]
	assert.Equal(t, ocr.StatusWarning, third.Status, "bad span fails the text channel only")
	assert.Nil(t, third.RedactedText)
	assert.Equal(t, 1, third.RedactionCount)
	assert.Equal(t, 1, report.Summary.TotalRedactions)
}

func TestEngineColors(t *testing.T) {
	_, err := NewEngine(Options{Color: "plaid"})
	assert.Error(t, err)

	dir := t.TempDir()
	engine := newEngine(t, dir)
	pages, ocrResult, piiResult := fixture(t, dir)

	_, err = engine.Redact(context.Background(), "doc-c", pages, ocrResult, piiResult, "plaid")
	assert.Error(t, err)

	report, err := engine.Redact(context.Background(), "doc-c", pages, ocrResult, piiResult, "red")
	require.NoError(t, err)
	assert.Equal(t, "red", report.Color)
	img := readImage(t, report.Pages[0].RedactedImagePath)
	assert.True(t, isColor(img, 60, 45, color.RGBA{R: 255, A: 255}))
}

func TestReportRoundTripAndAssembly(t *testing.T) {
	dir := t.TempDir()
	engine := newEngine(t, dir)
	pages, ocrResult, piiResult := fixture(t, dir)

	report, err := engine.Redact(context.Background(), "doc-3", pages, ocrResult, piiResult, "")
	require.NoError(t, err)

	path := filepath.Join(engine.DocumentDir("doc-3"), "redaction_report.json")
	require.NoError(t, WriteReport(report, path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var generic map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &generic))
	summary := generic["summary"].(map[string]interface{})
	assert.EqualValues(t, 3, summary["total_redactions"])
	assert.Equal(t, "medium", summary["sensitivity"])
	firstPage := generic["pages"].([]interface{})[0].(map[string]interface{})
	assert.Contains(t, firstPage, "redacted_areas")
	assert.Contains(t, firstPage, "redactions")

	loaded, err := ReadReport(path)
	require.NoError(t, err)
	require.NoError(t, loaded.Validate())

	pdfPath := filepath.Join(dir, "redacted.pdf")
	res, err := NewPDFAssembler().Assemble(context.Background(), report, pdfPath)
	require.NoError(t, err)
	assert.Equal(t, 3, res.TotalPages)
	assert.Equal(t, 3, res.PagesWithRedactions)
	assert.Equal(t, 3, res.TotalRedactions)
	assert.FileExists(t, pdfPath)
}

func TestAssemblyWithoutPagesFails(t *testing.T) {
	report := NewReport("doc-4", "black", []RedactedPage{errorPage(1, "gone")}, pii.Summarize(nil))

	_, err := NewPDFAssembler().Assemble(context.Background(), report, filepath.Join(t.TempDir(), "x.pdf"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrorAssemblyFailure))
}

func TestValidateCatchesMismatch(t *testing.T) {
	report := NewReport("doc-5", "black", []RedactedPage{{PageNum: 1, RedactionCount: 2, RedactedAreas: []Area{{EntityType: "X"}}}}, pii.Summarize(nil))
	assert.Error(t, report.Validate())
}

func TestFitRect(t *testing.T) {
	x, y, w, h := fitRect(200, 100, 400, 400)
	assert.Equal(t, []float64{0, 100, 400, 200}, []float64{x, y, w, h})
}
