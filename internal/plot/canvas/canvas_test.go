package canvas

import (
	"math"
	"testing"
)

func almostEqual(a, b, tol float64) bool { return math.Abs(a-b) <= tol }

func TestPixelTransformEndpoints(t *testing.T) {
	c := &Config{ID: 0, W: 256, H: 256, X0: -1, Y0: -2, X1: 3, Y1: 2}
	tr := c.PixelTransform()

	// x = x0 lands on the center of the leftmost pixel, x1 on the rightmost.
	px0 := float64(tr.XScale)*(-1) + float64(tr.XBias)
	px1 := float64(tr.XScale)*3 + float64(tr.XBias)
	if !almostEqual(px0, 0, 1e-3) || !almostEqual(px1, 255, 1e-3) {
		t.Fatalf("x endpoints -> %f, %f; want 0, 255", px0, px1)
	}

	// y = y0 lands on the bottom row, y1 on the top.
	py0 := float64(tr.YScale)*(-2) + float64(tr.YBias)
	py1 := float64(tr.YScale)*2 + float64(tr.YBias)
	if !almostEqual(py0, 255, 1e-3) || !almostEqual(py1, 0, 1e-3) {
		t.Fatalf("y endpoints -> %f, %f; want 255, 0", py0, py1)
	}
}

func TestTileTransformMatchesPixelTransform(t *testing.T) {
	c := &Config{ID: 0, W: 512, H: 512, X0: 0, Y0: 0, X1: 10, Y1: 10, ZoomLevel: 2}
	pt := c.PixelTransform()
	tt := c.TileTransform()

	// tx = (px - 127.5) / 256 must hold for arbitrary data values.
	for _, x := range []float64{0, 1.7, 5, 9.99} {
		px := float64(pt.XScale)*x + float64(pt.XBias)
		tx := float64(tt.XScale)*x + float64(tt.XBias)
		want := (px - 127.5) / 256
		if !almostEqual(tx, want, 1e-3) {
			t.Fatalf("x=%f: tile coord %f, want %f", x, tx, want)
		}
	}
}

func TestDataCoordRoundTrip(t *testing.T) {
	c := &Config{ID: 1, W: 300, H: 200, X0: -5, Y0: 0, X1: 5, Y1: 8, ZoomLevel: 3}
	tr := c.PixelTransform()

	for _, pt := range []Point{{-2, 1}, {0, 4}, {4.5, 7.5}} {
		px := float64(tr.XScale)*pt.X + float64(tr.XBias)
		py := float64(tr.YScale)*pt.Y + float64(tr.YBias)
		back := c.DataCoord(px, py)
		if !almostEqual(back.X, pt.X, 1e-4) || !almostEqual(back.Y, pt.Y, 1e-4) {
			t.Fatalf("round trip %v -> (%f, %f)", pt, back.X, back.Y)
		}
	}
}

func TestZoomKeepsMidpoint(t *testing.T) {
	c := &Config{ID: 0, W: 256, H: 256, X0: 0, Y0: 0, X1: 4, Y1: 4}
	mid := c.DataCoord(127.5, 127.5)
	c.ZoomLevel = 5
	midZoomed := c.DataCoord(127.5, 127.5)
	if !almostEqual(mid.X, midZoomed.X, 1e-9) || !almostEqual(mid.Y, midZoomed.Y, 1e-9) {
		t.Fatalf("midpoint moved under zoom: %v vs %v", mid, midZoomed)
	}
}

func TestTileKeyString(t *testing.T) {
	k := TileKey{SMVersion: 4, ConfigID: 1, ZoomLevel: 2, Row: 3, Col: 5, ItemID: -1}
	if got := k.String(); got != "[4]1:2:3:5" {
		t.Fatalf("String() = %q", got)
	}
	k.ItemID = 9
	if got := k.String(); got != "[4]1:2:3:5:9" {
		t.Fatalf("String() = %q", got)
	}
}

func TestSelectionMapVersionProtocol(t *testing.T) {
	sm := NewSelectionMap(4)
	for i, v := range sm.M {
		if !v {
			t.Fatalf("item %d not enabled initially", i)
		}
	}
	if sm.Version() != 0 {
		t.Fatalf("initial version = %d", sm.Version())
	}

	sm.StartUpdate()
	if sm.Version()%2 != 1 {
		t.Fatalf("version during update = %d, want odd", sm.Version())
	}
	sm.M[2] = false
	sm.EndUpdate(2)
	if sm.Version() != 2 {
		t.Fatalf("version after update = %d, want 2", sm.Version())
	}
}

func TestRequestHighlight(t *testing.T) {
	r := Request{ItemID: -1}
	if r.IsHighlight() {
		t.Fatal("item -1 must not be a highlight")
	}
	r.ItemID = 0
	if !r.IsHighlight() {
		t.Fatal("item 0 must be a highlight")
	}
}
