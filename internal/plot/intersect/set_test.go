package intersect

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSetGeometryAndBufIDs(t *testing.T) {
	prio := []int{2, 3, 2, 4}
	reg := []int{5, 3}
	s := NewSet(prio, reg, 0, 1000, 1000)

	if s.RowStart() != 2 || s.ColStart() != 3 || s.NRows() != 4 || s.NCols() != 2 {
		t.Fatalf("super-region = (%d, %d) %dx%d, want (2, 3) 4x2",
			s.RowStart(), s.ColStart(), s.NRows(), s.NCols())
	}

	// Dense ids in scan order over active cells only.
	if got := s.BufID(2, 3); got != 0 {
		t.Fatalf("BufID(2, 3) = %d, want 0", got)
	}
	if got := s.BufID(2, 4); got != 1 {
		t.Fatalf("BufID(2, 4) = %d, want 1", got)
	}
	if got := s.BufID(5, 3); got != 2 {
		t.Fatalf("BufID(5, 3) = %d, want 2", got)
	}
	// Inactive cell inside the super-region.
	if got := s.BufID(3, 3); got != -1 {
		t.Fatalf("BufID(3, 3) = %d, want -1", got)
	}
	// Outside the super-region.
	if got := s.BufID(0, 0); got != -1 {
		t.Fatalf("BufID(0, 0) = %d, want -1", got)
	}

	if !s.IsPriority(2, 3) || !s.IsPriority(2, 4) {
		t.Fatal("priority cells not marked")
	}
	if s.IsPriority(5, 3) || s.IsPriority(3, 3) || s.IsPriority(0, 0) {
		t.Fatal("non-priority cell marked as priority")
	}
}

func TestSetBatchSplit(t *testing.T) {
	s := NewSet([]int{0, 0}, nil, 0, 250000, 100000)
	if len(s.Results) != 3 {
		t.Fatalf("batches = %d, want 3", len(s.Results))
	}
	bounds := [][2]int64{{0, 100000}, {100000, 200000}, {200000, 250000}}
	for i, r := range s.Results {
		if r.StartID != bounds[i][0] || r.EndID != bounds[i][1] {
			t.Fatalf("batch %d = [%d, %d), want %v", i, r.StartID, r.EndID, bounds[i])
		}
	}
}

func TestSetIteratorStrictlyIncreasingAcrossBatches(t *testing.T) {
	s := NewSet([]int{0, 0, 0, 1}, nil, 0, 300, 100)

	// Batches cover the id space in order; the caller appends low-to-high
	// within each batch. Leave some batches empty for some buffers.
	for _, d := range []int64{3, 50, 99} {
		s.Results[0].Append(0, d)
	}
	for _, d := range []int64{120, 120, 121} {
		s.Results[1].Append(0, d)
	}
	for _, d := range []int64{250} {
		s.Results[2].Append(0, d)
	}
	for _, d := range []int64{210, 299} {
		s.Results[2].Append(1, d)
	}
	for _, r := range s.Results {
		r.Finish()
	}

	var got0 []int64
	for it := s.Iter(0); it.HasNext(); {
		got0 = append(got0, it.Next())
	}
	want0 := []int64{3, 50, 99, 120, 121, 250}
	if diff := cmp.Diff(want0, got0); diff != "" {
		t.Fatalf("buffer 0 (-want +got):\n%s", diff)
	}

	var got1 []int64
	for it := s.Iter(1); it.HasNext(); {
		got1 = append(got1, it.Next())
	}
	want1 := []int64{210, 299}
	if diff := cmp.Diff(want1, got1); diff != "" {
		t.Fatalf("buffer 1 (-want +got):\n%s", diff)
	}

	prev := int64(-1)
	for it := s.Iter(0); it.HasNext(); {
		v := it.Next()
		if v <= prev {
			t.Fatalf("not strictly increasing: %d after %d", v, prev)
		}
		prev = v
	}
}

func TestSetEmptyBufferIterator(t *testing.T) {
	s := NewSet([]int{1, 1}, nil, 0, 100, 100)
	s.Results[0].Finish()
	if it := s.Iter(0); it.HasNext() {
		t.Fatal("iterator over empty buffer reports data")
	}
}
