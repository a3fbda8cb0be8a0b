package layout

import (
	"github.com/adverant/nexus/redaction-worker/internal/geometry"
	"github.com/adverant/nexus/redaction-worker/internal/ocr"
)

// Cell is one word placed in a table grid
type Cell struct {
	Row  int          `json:"row"`
	Col  int          `json:"col"`
	Text string       `json:"text"`
	Box  geometry.Box `json:"bbox"`
}

// Table is a run of column-aligned rows
type Table struct {
	Box   geometry.Box `json:"bbox"`
	Rows  int          `json:"rows"`
	Cols  int          `json:"cols"`
	Cells []Cell       `json:"cells"`
}

// minSeedRows is the number of consecutive rows needed to seed a table
const minSeedRows = 3

// TableDetector finds column-aligned row runs
type TableDetector struct {
	rowTolerance    int
	columnTolerance int
	dedupe          bool
}

// NewTableDetector creates a table detector from layout options
func NewTableDetector(opts Options) *TableDetector {
	return &TableDetector{
		rowTolerance:    opts.TableRowTolerance,
		columnTolerance: opts.ColumnTolerance,
		dedupe:          opts.DedupeTables,
	}
}

// Detect returns one table per aligned seed. Nearby seeds can produce
// overlapping tables; they are kept unless containment dedupe is enabled.
func (d *TableDetector) Detect(words []ocr.Word) []Table {
	rows := GroupRows(words, d.rowTolerance)

	var tables []Table
	for i := 0; i+minSeedRows <= len(rows); i++ {
		seed := rows[i : i+minSeedRows]
		if !seedCounts(seed) || !d.aligned(seed) {
			continue
		}

		first, last := i, i+minSeedRows-1
		for first > 0 && countsClose(rows[first-1], rows[i]) {
			first--
		}
		for last+1 < len(rows) && countsClose(rows[last+1], rows[i+minSeedRows-1]) {
			last++
		}

		table := buildTable(rows[first : last+1])
		if d.dedupe && containedInAny(tables, table.Box) {
			continue
		}
		tables = append(tables, table)
	}
	return tables
}

// seedCounts requires every pair of seed rows to differ by at most one
// word and the shortest row to hold at least two.
func seedCounts(seed []Line) bool {
	shortest := len(seed[0].Words)
	for a := range seed {
		n := len(seed[a].Words)
		if n < shortest {
			shortest = n
		}
		for b := a + 1; b < len(seed); b++ {
			if !countsClose(seed[a], seed[b]) {
				return false
			}
		}
	}
	return shortest >= 2
}

func countsClose(a, b Line) bool {
	diff := len(a.Words) - len(b.Words)
	return diff >= -1 && diff <= 1
}

// aligned checks the left edges of every column index present in all rows
func (d *TableDetector) aligned(seed []Line) bool {
	shared := len(seed[0].Words)
	for _, row := range seed[1:] {
		shared = min(shared, len(row.Words))
	}

	for col := 0; col < shared; col++ {
		lo, hi := seed[0].Words[col].Box.X, seed[0].Words[col].Box.X
		for _, row := range seed[1:] {
			x := row.Words[col].Box.X
			lo, hi = min(lo, x), max(hi, x)
		}
		if hi-lo > d.columnTolerance {
			return false
		}
	}
	return true
}

func buildTable(rows []Line) Table {
	t := Table{Rows: len(rows)}
	var boxes []geometry.Box
	for r, row := range rows {
		t.Cols = max(t.Cols, len(row.Words))
		for c, w := range row.Words {
			t.Cells = append(t.Cells, Cell{Row: r, Col: c, Text: w.Text, Box: w.Box})
			boxes = append(boxes, w.Box)
		}
	}
	t.Box, _ = geometry.UnionAll(boxes...)
	return t
}

func containedInAny(tables []Table, box geometry.Box) bool {
	for _, t := range tables {
		if t.Box.Contains(box) {
			return true
		}
	}
	return false
}
