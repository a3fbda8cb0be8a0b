/**
 * Page preprocessing
 *
 * Turns an uploaded document into one normalized grayscale PNG per page:
 * - PDFs are rasterized with pdftoppm at the configured DPI
 * - PNG, JPEG, GIF, TIFF, BMP and WebP images are decoded directly
 * - every page is rescaled to a fixed width (aspect preserved)
 *
 * All pixel coordinates produced downstream refer to these rasters.
 */

package preprocess

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/google/uuid"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/adverant/nexus/redaction-worker/internal/errors"
	"github.com/adverant/nexus/redaction-worker/internal/logging"
)

// Page is one rasterized page ready for recognition and redaction
type Page struct {
	Num    int    `json:"page_num"`
	Path   string `json:"path"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Result lists the prepared pages of a document in page order
type Result struct {
	DocumentID string `json:"document_id"`
	MimeType   string `json:"mime_type"`
	Dir        string `json:"dir"`
	Pages      []Page `json:"pages"`
}

// Config holds preprocessing configuration
type Config struct {
	TempDir        string
	NormalizeWidth int // 0 keeps the source width
	DPI            int
	PdftoppmPath   string
}

// Preprocessor rasterizes and normalizes documents
type Preprocessor struct {
	cfg    Config
	logger *logging.Logger
}

// NewPreprocessor creates a new preprocessor
func NewPreprocessor(cfg Config) *Preprocessor {
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	if cfg.PdftoppmPath == "" {
		cfg.PdftoppmPath = "pdftoppm"
	}
	return &Preprocessor{cfg: cfg, logger: logging.NewLogger("preprocess")}
}

// Prepare converts the file at path into normalized page images
func (p *Preprocessor) Prepare(ctx context.Context, documentID, path string) (*Result, error) {
	head, err := readHead(path, 64)
	if err != nil {
		return nil, errors.NewIOFailureError(documentID, 0, path, err)
	}

	mimeType := DetectMimeType(head)
	dir := filepath.Join(p.cfg.TempDir, "pages", uuid.New().String()[:8])
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.NewIOFailureError(documentID, 0, dir, err)
	}

	p.logger.Info("Preparing document", "document", documentID, "mime", mimeType, "dir", dir)

	var sources []string
	switch mimeType {
	case "application/pdf":
		sources, err = p.rasterizePDF(ctx, path, dir)
		if err != nil {
			return nil, errors.NewIOFailureError(documentID, 0, path, err)
		}
	case "image/png", "image/jpeg", "image/gif", "image/tiff", "image/bmp", "image/webp":
		sources = []string{path}
	default:
		return nil, errors.NewUnsupportedFormatError(documentID, mimeType)
	}

	result := &Result{DocumentID: documentID, MimeType: mimeType, Dir: dir}
	for i, src := range sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		num := i + 1
		out := filepath.Join(dir, fmt.Sprintf("page_%d.png", num))
		w, h, err := p.normalizeFile(src, out)
		if err != nil {
			return nil, errors.NewIOFailureError(documentID, num, src, err)
		}
		result.Pages = append(result.Pages, Page{Num: num, Path: out, Width: w, Height: h})
	}

	p.logger.Info("Document prepared", "document", documentID, "pages", len(result.Pages))
	return result, nil
}

// rasterizePDF runs pdftoppm and returns the page PNGs in page order
func (p *Preprocessor) rasterizePDF(ctx context.Context, path, dir string) ([]string, error) {
	prefix := filepath.Join(dir, "raw")
	cmd := exec.CommandContext(ctx, p.cfg.PdftoppmPath,
		"-r", strconv.Itoa(p.cfg.DPI), "-png", path, prefix)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("pdftoppm failed: %w: %s", err, stderr.String())
	}

	matches, err := filepath.Glob(prefix + "-*.png")
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("pdftoppm produced no pages")
	}
	sortByPageSuffix(matches)
	return matches, nil
}

var pageSuffix = regexp.MustCompile(`-(\d+)\.png$`)

// sortByPageSuffix orders raw-1.png, raw-2.png, ..., raw-10.png numerically
func sortByPageSuffix(paths []string) {
	num := func(s string) int {
		m := pageSuffix.FindStringSubmatch(s)
		if m == nil {
			return 0
		}
		n, _ := strconv.Atoi(m[1])
		return n
	}
	sort.SliceStable(paths, func(i, j int) bool { return num(paths[i]) < num(paths[j]) })
}

func (p *Preprocessor) normalizeFile(src, dst string) (int, int, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, 0, err
	}
	defer in.Close()

	img, _, err := image.Decode(in)
	if err != nil {
		return 0, 0, fmt.Errorf("decode %s: %w", filepath.Base(src), err)
	}

	gray := Normalize(img, p.cfg.NormalizeWidth)

	out, err := os.Create(dst)
	if err != nil {
		return 0, 0, err
	}
	defer out.Close()

	if err := png.Encode(out, gray); err != nil {
		return 0, 0, fmt.Errorf("encode %s: %w", filepath.Base(dst), err)
	}
	b := gray.Bounds()
	return b.Dx(), b.Dy(), nil
}

// Normalize returns a grayscale copy of img scaled to width pixels wide.
// width <= 0 keeps the source size.
func Normalize(img image.Image, width int) *image.Gray {
	sb := img.Bounds()
	w, h := sb.Dx(), sb.Dy()
	if width > 0 && w > 0 && width != w {
		h = int(float64(h)*float64(width)/float64(w) + 0.5)
		if h < 1 {
			h = 1
		}
		w = width
	}

	dst := image.NewGray(image.Rect(0, 0, w, h))
	if w == sb.Dx() && h == sb.Dy() {
		draw.Draw(dst, dst.Bounds(), img, sb.Min, draw.Src)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, sb, draw.Src, nil)
	}
	return dst
}

func readHead(path string, n int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, n)
	read, err := f.Read(buf)
	if err != nil && read == 0 {
		return nil, err
	}
	return buf[:read], nil
}

// DetectMimeType detects the MIME type from magic bytes
func DetectMimeType(data []byte) string {
	if len(data) < 4 {
		return ""
	}

	switch {
	case bytes.HasPrefix(data, []byte("%PDF")):
		return "application/pdf"
	case len(data) >= 8 && bytes.HasPrefix(data, []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}):
		return "image/png"
	case bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}):
		return "image/jpeg"
	case bytes.HasPrefix(data, []byte("GIF87a")), bytes.HasPrefix(data, []byte("GIF89a")):
		return "image/gif"
	case len(data) > 12 && bytes.HasPrefix(data, []byte("RIFF")) && string(data[8:12]) == "WEBP":
		return "image/webp"
	case bytes.HasPrefix(data, []byte{0x49, 0x49, 0x2A, 0x00}), bytes.HasPrefix(data, []byte{0x4D, 0x4D, 0x00, 0x2A}):
		return "image/tiff"
	case bytes.HasPrefix(data, []byte("BM")):
		return "image/bmp"
	}
	return ""
}
