// Package geometry holds the axis-aligned box used for every word, line,
// field, table and redaction rectangle. Coordinates are pixels of one page's
// raster with the origin at the top-left corner.
package geometry

// Box is an axis-aligned rectangle. Width and Height are never negative.
type Box struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// NewBox builds a box, clamping negative sizes to zero.
func NewBox(x, y, w, h int) Box {
	if w < 0 {
		w = 0
	}
	if h < 0 {
		h = 0
	}
	return Box{X: x, Y: y, Width: w, Height: h}
}

// FromCorners builds the box spanning (x0,y0) to (x1,y1).
func FromCorners(x0, y0, x1, y1 int) Box {
	return NewBox(x0, y0, x1-x0, y1-y0)
}

// Right is the exclusive right edge.
func (b Box) Right() int { return b.X + b.Width }

// Bottom is the exclusive bottom edge.
func (b Box) Bottom() int { return b.Y + b.Height }

// IsEmpty reports whether the box covers no pixels.
func (b Box) IsEmpty() bool { return b.Width == 0 || b.Height == 0 }

// VerticalCenter returns y + height/2 without integer truncation.
func (b Box) VerticalCenter() float64 {
	return float64(b.Y) + float64(b.Height)/2
}

// Union returns the minimal box covering both b and o.
func (b Box) Union(o Box) Box {
	return FromCorners(
		min(b.X, o.X),
		min(b.Y, o.Y),
		max(b.Right(), o.Right()),
		max(b.Bottom(), o.Bottom()),
	)
}

// UnionAll returns the minimal box covering every input, and false when
// there are none.
func UnionAll(boxes ...Box) (Box, bool) {
	if len(boxes) == 0 {
		return Box{}, false
	}
	u := boxes[0]
	for _, b := range boxes[1:] {
		u = u.Union(b)
	}
	return u, true
}

// Overlaps reports whether the interiors of b and o intersect.
func (b Box) Overlaps(o Box) bool {
	return b.X < o.Right() && o.X < b.Right() && b.Y < o.Bottom() && o.Y < b.Bottom()
}

// Intersect returns the shared region, empty when the boxes do not overlap.
func (b Box) Intersect(o Box) Box {
	if !b.Overlaps(o) {
		return Box{}
	}
	return FromCorners(
		max(b.X, o.X),
		max(b.Y, o.Y),
		min(b.Right(), o.Right()),
		min(b.Bottom(), o.Bottom()),
	)
}

// Contains reports whether o lies entirely inside b.
func (b Box) Contains(o Box) bool {
	return o.X >= b.X && o.Y >= b.Y && o.Right() <= b.Right() && o.Bottom() <= b.Bottom()
}

// Pad grows the box by p on every side. Negative p shrinks it, never past zero size.
func (b Box) Pad(p int) Box {
	return NewBox(b.X-p, b.Y-p, b.Width+2*p, b.Height+2*p)
}

// Clamp restricts the box to the image rectangle [0,w) x [0,h).
func (b Box) Clamp(w, h int) Box {
	x0 := clampInt(b.X, 0, w)
	y0 := clampInt(b.Y, 0, h)
	x1 := clampInt(b.Right(), 0, w)
	y1 := clampInt(b.Bottom(), 0, h)
	return FromCorners(x0, y0, x1, y1)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
