package buffer

// DirtyRange is the smallest byte interval [start, end) covering every
// write since the last reset. The zero value is empty.
type DirtyRange struct {
	start, end int
	set        bool
}

// Touch extends the range to cover [start, end). Empty intervals are ignored.
func (r *DirtyRange) Touch(start, end int) {
	if end <= start {
		return
	}
	if !r.set {
		r.start, r.end, r.set = start, end, true
		return
	}
	r.start = min(r.start, start)
	r.end = max(r.end, end)
}

// Empty reports whether nothing was touched since the last reset.
func (r DirtyRange) Empty() bool {
	return !r.set
}

// Span returns the tracked interval. It is (0, 0) when empty.
func (r DirtyRange) Span() (start, end int) {
	return r.start, r.end
}

// Len returns the number of bytes covered.
func (r DirtyRange) Len() int {
	return r.end - r.start
}

// Reset empties the range.
func (r *DirtyRange) Reset() {
	*r = DirtyRange{}
}
