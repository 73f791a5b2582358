package figdata

import (
	"errors"
	"math"
	"testing"
)

func TestNewArrayRejectsBadRank(t *testing.T) {
	spec := Float64s1D([]float64{1, 2, 3})
	spec.Rank = 3
	if _, err := newArray("X", spec, kindGeneric); !errors.Is(err, ErrBadShape) {
		t.Fatalf("err = %v, want ErrBadShape", err)
	}
}

func TestNewArrayRejectsBadType(t *testing.T) {
	spec := Float64s1D([]float64{1})
	spec.Type = ElemType(99)
	if _, err := newArray("X", spec, kindGeneric); !errors.Is(err, ErrBadType) {
		t.Fatalf("err = %v, want ErrBadType", err)
	}
}

func TestNewArrayIntegerKindRejectsFloats(t *testing.T) {
	spec := Float64s1D([]float64{0, 2})
	if _, err := newArray("start_idxs", spec, kindInteger); !errors.Is(err, ErrBadType) {
		t.Fatalf("err = %v, want ErrBadType", err)
	}
}

func TestNewArrayColorKindRejectsInts(t *testing.T) {
	spec := Int64s1D([]int64{255})
	if _, err := newArray("colors", spec, kindColor); !errors.Is(err, ErrBadType) {
		t.Fatalf("err = %v, want ErrBadType", err)
	}
	// u8 is allowed.
	if _, err := newArray("colors", Bytes2D([][]byte{{1, 2, 3}}), kindColor); err != nil {
		t.Fatalf("u8 colors rejected: %v", err)
	}
}

func TestNewArrayRejectsHugeStride(t *testing.T) {
	spec := Float64s1D([]float64{1, 2})
	spec.Strides[0] = math.MaxInt32 + 1
	if _, err := newArray("X", spec, kindGeneric); !errors.Is(err, ErrBadStride) {
		t.Fatalf("err = %v, want ErrBadStride", err)
	}
}

func TestArrayRankNormalization(t *testing.T) {
	// Lower-rank buffers fill the trailing axes: a 1-D array of n elements
	// becomes shape (1, n).
	a, err := newArray("X", Float64s1D([]float64{1, 2, 3}), kindGeneric)
	if err != nil {
		t.Fatal(err)
	}
	if a.shape[0] != 1 || a.shape[1] != 3 {
		t.Fatalf("shape = %v, want [1 3]", a.shape)
	}
	if a.value(a.offset(0, 2)) != 3 {
		t.Fatalf("value(0, 2) = %f", a.value(a.offset(0, 2)))
	}
}

func TestArrayStridedAccess(t *testing.T) {
	a, err := newArray("X", Float64s2D([][]float64{{1, 2, 3}, {4, 5, 6}}), kindGeneric)
	if err != nil {
		t.Fatal(err)
	}
	if got := a.value(a.offset(1, 2)); got != 6 {
		t.Fatalf("value(1, 2) = %f, want 6", got)
	}
	if got := a.transformed(a.offset(0, 1), 10, 1); got != 21 {
		t.Fatalf("transformed = %f, want 21", got)
	}
}

func TestColorByteClampsFloats(t *testing.T) {
	a, err := newArray("colors", Float64s2D([][]float64{{-0.5, 0.5, 2.0}}), kindColor)
	if err != nil {
		t.Fatal(err)
	}
	off := a.offset(0, 0)
	if got := a.colorByte(off); got != 0 {
		t.Fatalf("clamped low = %d, want 0", got)
	}
	if got := a.colorByte(off + a.strides[1]); got != 128 {
		t.Fatalf("mid = %d, want 128", got)
	}
	if got := a.colorByte(off + 2*a.strides[1]); got != 255 {
		t.Fatalf("clamped high = %d, want 255", got)
	}
}

func TestARGBFromBytes(t *testing.T) {
	a, err := newArray("colors", Bytes2D([][]byte{{10, 20, 30}, {255, 0, 0}}), kindColor)
	if err != nil {
		t.Fatal(err)
	}
	if got := a.argb(0); got != 0xff0a141e {
		t.Fatalf("argb(0) = %08x", got)
	}
	if got := a.argb(1); got != 0xffff0000 {
		t.Fatalf("argb(1) = %08x", got)
	}
}

func TestMinmaxSkipsNaN(t *testing.T) {
	nan := math.NaN()
	a, err := newArray("X", Float64s2D([][]float64{{nan, 3, -2, nan, 7}}), kindGeneric)
	if err != nil {
		t.Fatal(err)
	}
	lo, hi := a.minmax()
	if lo != -2 || hi != 7 {
		t.Fatalf("minmax = (%f, %f), want (-2, 7)", lo, hi)
	}
}

func TestRange2DMerge(t *testing.T) {
	r := NewRange2D()
	r.Merge(Range2D{XMin: 1, YMin: 2, XMax: 3, YMax: 4})
	r.Merge(Range2D{XMin: -1, YMin: 5, XMax: 2, YMax: 9})
	if r.XMin != -1 || r.YMin != 2 || r.XMax != 3 || r.YMax != 9 {
		t.Fatalf("merged = %+v", r)
	}
}
