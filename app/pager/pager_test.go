package pager

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVisible(t *testing.T) {
	tbl := []struct {
		total, first, height int
		start, end           int
	}{
		{0, 0, 10, 0, 0},
		{5, 0, 10, 0, 5},
		{20, 0, 10, 0, 10},
		{20, 5, 10, 5, 15},
		{20, 15, 10, 15, 20},
		{20, 19, 10, 19, 20},
		{20, 25, 10, 20, 20},
		{20, -3, 10, 0, 10},
		{20, 0, 0, 0, 0},
	}
	for _, tt := range tbl {
		start, end := Visible(tt.total, tt.first, tt.height)
		assert.Equal(t, tt.start, start, "%+v", tt)
		assert.Equal(t, tt.end, end, "%+v", tt)
	}
}

func TestScrollDown(t *testing.T) {
	assert.Equal(t, 1, ScrollDown(0, 5))
	assert.Equal(t, 4, ScrollDown(3, 5))
	assert.Equal(t, 4, ScrollDown(4, 5), "no-op at the last row")
	assert.Equal(t, 0, ScrollDown(0, 0), "no-op on empty list")
	assert.Equal(t, 0, ScrollDown(0, 1))
}

func TestScrollUp(t *testing.T) {
	assert.Equal(t, 0, ScrollUp(0), "no-op at the first row")
	assert.Equal(t, 2, ScrollUp(3))
}

func TestScrollRoundTrip(t *testing.T) {
	first := 0
	for range 100 {
		first = ScrollDown(first, 7)
	}
	assert.Equal(t, 6, first)
	for range 100 {
		first = ScrollUp(first)
	}
	assert.Equal(t, 0, first)
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0, Clamp(0, 0))
	assert.Equal(t, 0, Clamp(3, 0))
	assert.Equal(t, 2, Clamp(3, 3))
	assert.Equal(t, 1, Clamp(1, 3))
	assert.Equal(t, 0, Clamp(-1, 3))
}
