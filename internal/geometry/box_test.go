package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnion(t *testing.T) {
	got := Box{0, 0, 10, 10}.Union(Box{5, 5, 10, 10})
	assert.Equal(t, Box{0, 0, 15, 15}, got)

	disjoint := Box{100, 20, 5, 5}.Union(Box{0, 0, 10, 10})
	assert.Equal(t, Box{0, 0, 105, 25}, disjoint)
}

func TestUnionAll(t *testing.T) {
	_, ok := UnionAll()
	assert.False(t, ok)

	u, ok := UnionAll(Box{10, 10, 5, 5}, Box{0, 30, 2, 2}, Box{12, 0, 1, 1})
	assert.True(t, ok)
	assert.Equal(t, Box{0, 0, 15, 32}, u)
}

func TestOverlapsAndContains(t *testing.T) {
	a := Box{0, 0, 10, 10}

	assert.True(t, a.Overlaps(Box{9, 9, 5, 5}))
	assert.False(t, a.Overlaps(Box{10, 0, 5, 5}), "touching edges do not overlap")
	assert.True(t, a.Contains(Box{2, 2, 8, 8}))
	assert.False(t, a.Contains(Box{2, 2, 9, 8}))
	assert.Equal(t, Box{5, 5, 5, 5}, a.Intersect(Box{5, 5, 10, 10}))
	assert.True(t, a.Intersect(Box{20, 20, 1, 1}).IsEmpty())
}

func TestPadAndClamp(t *testing.T) {
	padded := Box{2, 3, 10, 10}.Pad(5)
	assert.Equal(t, Box{-3, -2, 20, 20}, padded)
	assert.Equal(t, Box{0, 0, 17, 18}, padded.Clamp(100, 100))
	assert.Equal(t, Box{0, 0, 12, 12}, padded.Clamp(12, 12))

	outside := Box{200, 200, 10, 10}.Clamp(100, 100)
	assert.True(t, outside.IsEmpty())

	assert.Equal(t, Box{5, 5, 0, 0}, Box{0, 0, 4, 4}.Pad(-5), "shrinking never goes below zero size")
}

func TestNewBoxClampsNegativeSize(t *testing.T) {
	assert.Equal(t, Box{1, 1, 0, 0}, NewBox(1, 1, -4, -2))
	assert.Equal(t, 12.5, Box{0, 10, 3, 5}.VerticalCenter())
}
