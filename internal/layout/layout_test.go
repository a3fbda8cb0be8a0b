package layout

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adverant/nexus/redaction-worker/internal/geometry"
	"github.com/adverant/nexus/redaction-worker/internal/ocr"
)

func word(text string, x, y, w, h int) ocr.Word {
	return ocr.Word{Text: text, Box: geometry.Box{X: x, Y: y, Width: w, Height: h}, Confidence: 0.9}
}

// bodyLine places words of the given heights side by side at y=400
func bodyLine(heights ...int) []ocr.Word {
	words := make([]ocr.Word, len(heights))
	for i, h := range heights {
		words[i] = word("body", 100+i*60, 400, 50, h)
	}
	return words
}

func TestBlocksEmptyPage(t *testing.T) {
	assert.Empty(t, NewClusterer(DefaultOptions()).Blocks(nil))
}

func TestBlocksSingleWordIsParagraph(t *testing.T) {
	blocks := NewClusterer(DefaultOptions()).Blocks([]ocr.Word{word("Alone", 10, 10, 40, 30)})

	require.Len(t, blocks, 1)
	assert.Equal(t, BlockParagraph, blocks[0].Type)
	assert.Equal(t, 1, blocks[0].LineCount)
	assert.Equal(t, "Alone", blocks[0].Text)
}

func TestHeadingRatioIsStrict(t *testing.T) {
	c := NewClusterer(DefaultOptions())

	// page mean is 100 in both cases
	exact := append([]ocr.Word{word("Title", 100, 100, 200, 120)}, bodyLine(98, 98, 98, 98, 98, 98, 98, 98, 96)...)
	blocks := c.Blocks(exact)
	require.Len(t, blocks, 2)
	assert.Equal(t, "Title", blocks[0].Text)
	assert.Equal(t, BlockParagraph, blocks[0].Type, "exactly 1.2x the page mean is not a heading")

	above := append([]ocr.Word{word("Title", 100, 100, 200, 121)}, bodyLine(98, 98, 98, 98, 98, 98, 97, 97, 97)...)
	blocks = c.Blocks(above)
	require.Len(t, blocks, 2)
	assert.Equal(t, BlockHeading, blocks[0].Type)
	assert.Equal(t, BlockParagraph, blocks[1].Type)
}

func TestMultiLineBlockNeverHeading(t *testing.T) {
	words := []ocr.Word{
		word("Big", 10, 100, 50, 60),
		word("Bigger", 10, 110, 50, 60),
		word("small", 10, 600, 30, 5),
		word("tiny", 60, 600, 30, 5),
	}
	blocks := NewClusterer(DefaultOptions()).Blocks(words)

	require.Len(t, blocks, 2)
	assert.Equal(t, 2, blocks[0].LineCount)
	assert.Equal(t, BlockParagraph, blocks[0].Type)
}

func TestBlocksSplitOnGap(t *testing.T) {
	words := []ocr.Word{
		word("world", 80, 100, 50, 20),
		word("hello", 10, 100, 50, 20),
		word("second", 10, 110, 60, 20),
		word("far", 10, 200, 30, 20),
	}
	blocks := NewClusterer(DefaultOptions()).Blocks(words)

	require.Len(t, blocks, 2)
	assert.Equal(t, "hello world second", blocks[0].Text)
	assert.Equal(t, geometry.Box{X: 10, Y: 100, Width: 120, Height: 30}, blocks[0].Box)
	assert.Equal(t, 3, blocks[0].WordCount)
	assert.Equal(t, "far", blocks[1].Text)
}

func TestReclusteringBlockIsIdempotent(t *testing.T) {
	c := NewClusterer(DefaultOptions())
	words := []ocr.Word{
		word("a", 10, 100, 20, 20), word("b", 40, 101, 20, 20),
		word("c", 10, 112, 20, 20), word("d", 10, 300, 20, 20),
	}

	for _, b := range c.Blocks(words) {
		again := c.Blocks(b.Words())
		require.Len(t, again, 1)
		assert.Equal(t, b.Box, again[0].Box)
		assert.Equal(t, b.Text, again[0].Text)
		assert.Equal(t, b.LineCount, again[0].LineCount)
	}
}

func TestFormFieldLabelWithColon(t *testing.T) {
	words := []ocr.Word{
		word("Smith", 150, 50, 50, 20),
		word("Name:", 10, 50, 60, 20),
		word("John", 80, 52, 50, 20),
	}
	fields := NewFormFieldDetector(DefaultOptions()).Detect(words)

	require.Len(t, fields, 1)
	assert.Equal(t, "Name", fields[0].Label)
	assert.Equal(t, "John Smith", fields[0].Value)
	assert.Equal(t, geometry.Box{X: 10, Y: 50, Width: 190, Height: 22}, fields[0].Box)
}

func TestFormFieldEdgeCases(t *testing.T) {
	d := NewFormFieldDetector(DefaultOptions())

	assert.Empty(t, d.Detect([]ocr.Word{word("Address:", 10, 10, 80, 20)}), "label without value")

	vocab := d.Detect([]ocr.Word{word("EMAIL", 10, 10, 60, 20), word("a@b.io", 80, 10, 60, 20)})
	require.Len(t, vocab, 1)
	assert.Equal(t, "EMAIL", vocab[0].Label)

	two := d.Detect([]ocr.Word{
		word("Name:", 10, 10, 50, 20), word("Ann", 70, 10, 40, 20),
		word("Phone:", 120, 10, 60, 20), word("555", 190, 10, 40, 20),
	})
	require.Len(t, two, 2)
	assert.Equal(t, "Ann Phone: 555", two[0].Value)
	assert.Equal(t, "Phone", two[1].Label)
	assert.Equal(t, "555", two[1].Value)
}

// gridRows lays out n rows of three words with slight horizontal jitter
func gridRows(n int) []ocr.Word {
	var words []ocr.Word
	for r := 0; r < n; r++ {
		y := 100 + r*40
		jitter := (r % 2) * 8
		words = append(words,
			word("a", 50+jitter, y, 40, 20),
			word("b", 250-jitter, y, 40, 20),
			word("c", 450+jitter, y, 40, 20),
		)
	}
	return words
}

func TestTableSeed(t *testing.T) {
	tables := NewTableDetector(DefaultOptions()).Detect(gridRows(3))

	require.Len(t, tables, 1)
	tbl := tables[0]
	assert.GreaterOrEqual(t, tbl.Rows, 3)
	assert.Equal(t, 3, tbl.Cols)
	assert.Len(t, tbl.Cells, 9)
	assert.Equal(t, Cell{Row: 1, Col: 2, Text: "c", Box: geometry.Box{X: 458, Y: 140, Width: 40, Height: 20}}, tbl.Cells[5])
	assert.Equal(t, geometry.Box{X: 50, Y: 100, Width: 448, Height: 100}, tbl.Box)
}

func TestTableRejections(t *testing.T) {
	d := NewTableDetector(DefaultOptions())

	misaligned := gridRows(3)
	misaligned[3].Box.X += 60
	assert.Empty(t, d.Detect(misaligned))

	uneven := append(gridRows(2), word("solo", 50, 180, 40, 20))
	assert.Empty(t, d.Detect(uneven))

	narrow := []ocr.Word{
		word("x", 50, 100, 20, 20),
		word("x", 50, 140, 20, 20), word("y", 250, 140, 20, 20),
		word("x", 50, 180, 20, 20), word("y", 250, 180, 20, 20),
	}
	assert.Empty(t, d.Detect(narrow), "shortest seed row needs two words")
}

func TestTableExtensionKeepsDuplicatesUnlessDeduped(t *testing.T) {
	tables := NewTableDetector(DefaultOptions()).Detect(gridRows(5))
	require.Len(t, tables, 3)
	for _, tbl := range tables {
		assert.Equal(t, 5, tbl.Rows)
		assert.Len(t, tbl.Cells, 15)
	}

	opts := DefaultOptions()
	opts.DedupeTables = true
	assert.Len(t, NewTableDetector(opts).Detect(gridRows(5)), 1)
}

func TestAnalyzeLayout(t *testing.T) {
	res := &ocr.Result{Status: ocr.StatusSuccess, Pages: []ocr.PageResult{
		{PageNum: 1, Status: ocr.StatusSuccess, Words: append(gridRows(3), word("Name:", 10, 600, 50, 20), word("Jo", 70, 600, 30, 20))},
		{PageNum: 2, Status: ocr.StatusError, Message: "engine crashed"},
		{PageNum: 3, Status: ocr.StatusWarning},
	}}

	out := NewLayoutAnalyzer(DefaultOptions()).AnalyzeLayout(context.Background(), res)

	require.Len(t, out.Pages, 3)
	assert.Equal(t, ocr.StatusSuccess, out.Status)
	assert.Equal(t, ocr.StatusSuccess, out.Pages[0].Status)
	assert.Equal(t, ocr.StatusError, out.Pages[1].Status)
	assert.Equal(t, "engine crashed", out.Pages[1].Message)
	assert.Equal(t, ocr.StatusWarning, out.Pages[2].Status)
	assert.Equal(t, 1, out.Summary.Tables)
	assert.Equal(t, 1, out.Summary.FormFields)
	assert.Equal(t, len(out.Pages[0].TextBlocks), out.Summary.TextBlocks)
}
