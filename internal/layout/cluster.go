package layout

import (
	"math"
	"sort"
	"strings"

	"github.com/adverant/nexus/redaction-worker/internal/geometry"
	"github.com/adverant/nexus/redaction-worker/internal/ocr"
)

// BlockType classifies a text block
type BlockType string

const (
	BlockHeading   BlockType = "heading"
	BlockParagraph BlockType = "paragraph"
)

// headingEpsilon keeps a block at exactly ratio*mean from being promoted
// by float rounding.
const headingEpsilon = 1e-9

// Line is a run of words sharing a vertical-center bucket, left to right
type Line struct {
	Key   int
	Words []ocr.Word
}

// Text joins the line's words with single spaces
func (l Line) Text() string {
	parts := make([]string, len(l.Words))
	for i, w := range l.Words {
		parts[i] = w.Text
	}
	return strings.Join(parts, " ")
}

// Box is the union of the line's word boxes
func (l Line) Box() geometry.Box {
	b, _ := geometry.UnionAll(wordBoxes(l.Words)...)
	return b
}

// Block is a vertically contiguous group of lines
type Block struct {
	Type      BlockType    `json:"type"`
	Text      string       `json:"text"`
	Box       geometry.Box `json:"bbox"`
	LineCount int          `json:"line_count"`
	WordCount int          `json:"word_count"`
	Lines     []Line       `json:"-"`
}

// Words returns the block's words in reading order
func (b Block) Words() []ocr.Word {
	out := make([]ocr.Word, 0, b.WordCount)
	for _, l := range b.Lines {
		out = append(out, l.Words...)
	}
	return out
}

// bucketKey maps a vertical center onto a multiple of tolerance pixels
func bucketKey(vc float64, tolerance int) int {
	return int(math.Round(vc/float64(tolerance))) * tolerance
}

// GroupRows buckets words by vertical center. Rows come back top to bottom
// and each row's words left to right.
func GroupRows(words []ocr.Word, tolerance int) []Line {
	if tolerance < 1 {
		tolerance = 1
	}

	byKey := make(map[int][]ocr.Word)
	for _, w := range words {
		k := bucketKey(w.Box.VerticalCenter(), tolerance)
		byKey[k] = append(byKey[k], w)
	}

	keys := make([]int, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	lines := make([]Line, 0, len(keys))
	for _, k := range keys {
		row := byKey[k]
		sort.SliceStable(row, func(i, j int) bool { return row[i].Box.X < row[j].Box.X })
		lines = append(lines, Line{Key: k, Words: row})
	}
	return lines
}

// Clusterer groups words into lines and lines into blocks
type Clusterer struct {
	lineTolerance int
	gapThreshold  int
	headingRatio  float64
}

// NewClusterer creates a clusterer from layout options
func NewClusterer(opts Options) *Clusterer {
	return &Clusterer{
		lineTolerance: opts.LineTolerance,
		gapThreshold:  opts.GapThreshold,
		headingRatio:  opts.HeadingRatio,
	}
}

// Lines buckets a page's words into lines
func (c *Clusterer) Lines(words []ocr.Word) []Line {
	return GroupRows(words, c.lineTolerance)
}

// Blocks clusters a page's words into blocks in reading order.
// A page without words yields no blocks.
func (c *Clusterer) Blocks(words []ocr.Word) []Block {
	if len(words) == 0 {
		return nil
	}

	pageMean := meanHeight(words)
	lines := c.Lines(words)

	var blocks []Block
	var current []Line
	for i, line := range lines {
		if i > 0 && line.Key-lines[i-1].Key >= c.gapThreshold {
			blocks = append(blocks, c.closeBlock(current, pageMean))
			current = nil
		}
		current = append(current, line)
	}
	blocks = append(blocks, c.closeBlock(current, pageMean))
	return blocks
}

func (c *Clusterer) closeBlock(lines []Line, pageMean float64) Block {
	var words []ocr.Word
	texts := make([]string, len(lines))
	for i, l := range lines {
		words = append(words, l.Words...)
		texts[i] = l.Text()
	}
	box, _ := geometry.UnionAll(wordBoxes(words)...)

	kind := BlockParagraph
	if len(lines) == 1 && meanHeight(words) > pageMean*c.headingRatio+headingEpsilon {
		kind = BlockHeading
	}

	return Block{
		Type:      kind,
		Text:      strings.Join(texts, " "),
		Box:       box,
		LineCount: len(lines),
		WordCount: len(words),
		Lines:     lines,
	}
}

func meanHeight(words []ocr.Word) float64 {
	if len(words) == 0 {
		return 0
	}
	sum := 0
	for _, w := range words {
		sum += w.Box.Height
	}
	return float64(sum) / float64(len(words))
}

func wordBoxes(words []ocr.Word) []geometry.Box {
	boxes := make([]geometry.Box, len(words))
	for i, w := range words {
		boxes[i] = w.Box
	}
	return boxes
}
