// Package pager computes the visible window of a list rendered in a fixed-height viewport.
// All functions are pure.
package pager

// Visible returns [start, end) range of rows shown for the given scroll offset and viewport height,
// clipped to [0, total)
func Visible(total, first, height int) (start, end int) {
	if total <= 0 || height <= 0 {
		return 0, 0
	}
	start = max(first, 0)
	if start > total {
		start = total
	}
	end = min(start+height, total)
	return start, end
}

// ScrollDown moves the offset one row down, unless already at the last row. No wraparound.
func ScrollDown(first, total int) int {
	if first < total-1 {
		return first + 1
	}
	return first
}

// ScrollUp moves the offset one row up, stops at 0
func ScrollUp(first int) int {
	if first > 0 {
		return first - 1
	}
	return first
}

// Clamp keeps the offset in [0, max(0, total-1)], used after the list shrinks
func Clamp(first, total int) int {
	if first >= total {
		first = total - 1
	}
	return max(first, 0)
}
