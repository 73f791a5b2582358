package intersect

import "math"

// Set is the collection of Results for one tile request, split into batches
// so each batch can be filled by its own task. The Set covers the rectangular
// super-region spanned by the requested tile coordinates; only the requested
// cells within it are active.
//
// The Set itself does not compute intersections — that depends on the figure
// data format, so the plotter enqueues one compute task per Result.
type Set struct {
	tileCnt            int
	rowStart, colStart int
	nrows, ncols       int

	tileMap []int32 // (row, col) -> dense buffer id, -1 when inactive
	isPrio  []bool

	Results []*Result
}

// NewSet builds a Set for the given priority and regular tile coordinates
// (flat (row, col) pairs; the two lists must not overlap) over atom ids
// [start, end) in stripes of batchSize.
func NewSet(prioCoords, regCoords []int, start, end, batchSize int64) *Set {
	if len(prioCoords)%2 != 0 || len(regCoords)%2 != 0 {
		panic("intersect: odd coordinate list")
	}
	if len(prioCoords)+len(regCoords) == 0 {
		panic("intersect: no tiles requested")
	}
	if start > end || batchSize <= 0 {
		panic("intersect: bad batch geometry")
	}

	rowMin, rowMax := math.MaxInt, math.MinInt
	colMin, colMax := math.MaxInt, math.MinInt
	span := func(coords []int) {
		for i := 0; i < len(coords); i += 2 {
			rowMin = min(rowMin, coords[i])
			rowMax = max(rowMax, coords[i])
			colMin = min(colMin, coords[i+1])
			colMax = max(colMax, coords[i+1])
		}
	}
	span(prioCoords)
	span(regCoords)

	s := &Set{
		tileCnt:  (len(prioCoords) + len(regCoords)) / 2,
		rowStart: rowMin,
		colStart: colMin,
		nrows:    rowMax - rowMin + 1,
		ncols:    colMax - colMin + 1,
	}

	areaSize := s.nrows * s.ncols
	s.tileMap = make([]int32, areaSize)
	s.isPrio = make([]bool, areaSize)
	for i := range s.tileMap {
		s.tileMap[i] = -1
	}

	mark := func(coords []int, prio bool) {
		for i := 0; i < len(coords); i += 2 {
			idx := (coords[i]-s.rowStart)*s.ncols + (coords[i+1] - s.colStart)
			if s.tileMap[idx] != -1 {
				panic("intersect: duplicate tile coordinate")
			}
			s.tileMap[idx] = 0
			s.isPrio[idx] = prio
		}
	}
	mark(prioCoords, true)
	mark(regCoords, false)

	// Assign dense buffer ids in scan order.
	c := int32(0)
	for i := range s.tileMap {
		if s.tileMap[i] == 0 {
			s.tileMap[i] = c
			c++
		}
	}
	if int(c) != s.tileCnt {
		panic("intersect: tile count mismatch")
	}

	for start < end {
		sz := min(end-start, batchSize)
		s.Results = append(s.Results, NewResult(s.tileCnt, start, start+sz))
		start += sz
	}
	return s
}

// RowStart returns the first row of the super-region.
func (s *Set) RowStart() int { return s.rowStart }

// ColStart returns the first column of the super-region.
func (s *Set) ColStart() int { return s.colStart }

// NRows returns the number of rows in the super-region.
func (s *Set) NRows() int { return s.nrows }

// NCols returns the number of columns in the super-region.
func (s *Set) NCols() int { return s.ncols }

// BufID maps a tile coordinate to its dense buffer id, or -1 when the cell
// is outside the super-region or inactive.
func (s *Set) BufID(row, col int) int {
	if row >= s.rowStart && row < s.rowStart+s.nrows &&
		col >= s.colStart && col < s.colStart+s.ncols {
		return int(s.tileMap[(row-s.rowStart)*s.ncols+(col-s.colStart)])
	}
	return -1
}

// IsPriority reports whether (row, col) is an active priority cell.
func (s *Set) IsPriority(row, col int) bool {
	if row >= s.rowStart && row < s.rowStart+s.nrows &&
		col >= s.colStart && col < s.colStart+s.ncols {
		return s.isPrio[(row-s.rowStart)*s.ncols+(col-s.colStart)]
	}
	return false
}

// SetIterator merges the per-batch iterators for one buffer. Batches are
// disjoint and ordered, and within a batch ids are appended low to high, so
// the merged stream is strictly increasing.
type SetIterator struct {
	bufID int
	set   *Set
	irIdx int
	inner Iterator
}

// Iter returns the combined iterator for a buffer. All Results must be
// finished.
func (s *Set) Iter(bufID int) *SetIterator {
	it := &SetIterator{bufID: bufID, set: s}
	for idx := range s.Results {
		inner := s.Results[idx].Iter(bufID)
		if inner.HasNext() {
			it.irIdx = idx
			it.inner = inner
			break
		}
	}
	return it
}

// HasNext reports whether another id is available.
func (it *SetIterator) HasNext() bool { return it.inner.HasNext() }

// Peek returns the next id without consuming it.
func (it *SetIterator) Peek() int64 { return it.inner.Peek() }

// Next consumes and returns the next id, crossing into the next non-empty
// batch when the current one runs out.
func (it *SetIterator) Next() int64 {
	retval := it.inner.Next()
	if !it.inner.HasNext() {
		for it.irIdx++; it.irIdx < len(it.set.Results); it.irIdx++ {
			it.inner = it.set.Results[it.irIdx].Iter(it.bufID)
			if it.inner.HasNext() {
				break
			}
		}
	}
	return retval
}
