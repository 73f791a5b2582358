package render

import (
	"encoding/binary"
	"testing"
)

// unfilter reverses the PNG row filtering (None for row 0, Up for the rest)
// and returns raw row-major channel bytes.
func unfilter(t *testing.T, rows []byte, channels int) []byte {
	t.Helper()
	rowBytes := TileSize * channels
	if len(rows) != (rowBytes+1)*TileSize {
		t.Fatalf("rows length = %d, want %d", len(rows), (rowBytes+1)*TileSize)
	}
	out := make([]byte, rowBytes*TileSize)
	for row := 0; row < TileSize; row++ {
		src := rows[row*(rowBytes+1):]
		filter := src[0]
		wantFilter := byte(2)
		if row == 0 {
			wantFilter = 0
		}
		if filter != wantFilter {
			t.Fatalf("row %d filter = %d, want %d", row, filter, wantFilter)
		}
		dst := out[row*rowBytes : (row+1)*rowBytes]
		copy(dst, src[1:1+rowBytes])
		if row > 0 {
			prev := out[(row-1)*rowBytes : row*rowBytes]
			for i := range dst {
				dst[i] += prev[i]
			}
		}
	}
	return out
}

func TestRGBMergeFullStrength(t *testing.T) {
	tile := NewRGBBuffer(0xffffff)
	g := &GrayscaleBuffer{}
	g.DrawLine(10, 100, 50, 100, 2)

	tile.Merge(g, 3, 0xffff0000) // opaque red

	// Fully covered pixels take the color exactly.
	if got := tile.Pixel(20, 100); got != 0xff0000 {
		t.Fatalf("covered pixel = %06x, want ff0000", got)
	}
	// Untouched pixels keep the background.
	if got := tile.Pixel(20, 50); got != 0xffffff {
		t.Fatalf("background pixel = %06x, want ffffff", got)
	}

	// Merge clears the grayscale scratch.
	if len(g.DirtyBlocks()) != 0 {
		t.Fatal("merge left the dirty list populated")
	}
	if g.Pixel(20, 100) != 0 {
		t.Fatal("merge left ink in the grayscale buffer")
	}
}

func TestRGBMergeHovermap(t *testing.T) {
	tile := NewRGBBuffer(0xffffff)
	g := &GrayscaleBuffer{}
	g.DrawLine(10, 100, 50, 100, 2)

	// Snapshot which pixels carry ink before Merge consumes the scratch.
	var inked [TileSize][TileSize]bool
	for y := 0; y < TileSize; y++ {
		for x := 0; x < TileSize; x++ {
			inked[y][x] = g.Pixel(x, y) != 0
		}
	}

	tile.Merge(g, 7, 0xff00ff00)

	for y := 0; y < TileSize; y++ {
		for x := 0; x < TileSize; x++ {
			want := int32(-1)
			if inked[y][x] {
				want = 7
			}
			if got := tile.HoverItem(x, y); got != want {
				t.Fatalf("hovermap (%d, %d) = %d, want %d", x, y, got, want)
			}
		}
	}
}

func TestRGBMergeLaterItemWins(t *testing.T) {
	tile := NewRGBBuffer(0xffffff)
	g := &GrayscaleBuffer{}

	g.DrawLine(0, 128, 255, 128, 4)
	tile.Merge(g, 0, 0xffff0000) // red

	g.DrawLine(0, 128, 255, 128, 4)
	tile.Merge(g, 1, 0xff0000ff) // blue on top

	if got := tile.Pixel(100, 128); got != 0x0000ff {
		t.Fatalf("pixel = %06x, want 0000ff (blue painted last)", got)
	}
	if got := tile.HoverItem(100, 128); got != 1 {
		t.Fatalf("hovermap = %d, want 1", got)
	}
}

func TestRGBPNGRoundTrip(t *testing.T) {
	tile := NewRGBBuffer(0xffffff)
	g := &GrayscaleBuffer{}
	g.DrawLine(5, 5, 200, 240, 3)
	g.DrawCircle(64, 64, 7)
	tile.Merge(g, 0, 0xff336699)

	raw := unfilter(t, tile.PNGRows(), 3)
	for y := 0; y < TileSize; y++ {
		for x := 0; x < TileSize; x++ {
			off := (y*TileSize + x) * 3
			got := uint32(raw[off])<<16 | uint32(raw[off+1])<<8 | uint32(raw[off+2])
			if want := tile.Pixel(x, y); got != want {
				t.Fatalf("pixel (%d, %d): png %06x, buffer %06x", x, y, got, want)
			}
		}
	}
}

func TestRGBHovermapData(t *testing.T) {
	tile := NewRGBBuffer(0xffffff)
	g := &GrayscaleBuffer{}
	g.DrawCircle(100, 30, 5)
	tile.Merge(g, 42, 0xff112233)

	data := tile.HovermapData()
	if len(data) != TileSize*TileSize*4 {
		t.Fatalf("hovermap length = %d", len(data))
	}
	for y := 0; y < TileSize; y++ {
		for x := 0; x < TileSize; x++ {
			v := int32(binary.LittleEndian.Uint32(data[(y*TileSize+x)*4:]))
			if want := tile.HoverItem(x, y); v != want {
				t.Fatalf("hovermap (%d, %d) = %d, want %d", x, y, v, want)
			}
		}
	}
}

func TestRGBWMergeAndConvert(t *testing.T) {
	tile := NewRGBWBuffer()
	g := &GrayscaleBuffer{}
	g.DrawLine(10, 100, 50, 100, 2)
	tile.Merge(g, 0, 0xffc08040)

	// Full-coverage pixel: channels reach the target, W saturates.
	if got := tile.Pixel(20, 100); got != 0xffc08040 {
		t.Fatalf("pixel = %08x, want ffc08040", got)
	}
	// Untouched: transparent black.
	if got := tile.Pixel(20, 50); got != 0 {
		t.Fatalf("untouched pixel = %08x, want 0", got)
	}

	raw := unfilter(t, tile.PNGRows(), 4)
	// Covered pixel converts to RGBA with full alpha.
	off := (100*TileSize + 20) * 4
	if raw[off] != 0xc0 || raw[off+1] != 0x80 || raw[off+2] != 0x40 || raw[off+3] != 0xff {
		t.Fatalf("converted pixel = %v, want c0 80 40 ff", raw[off:off+4])
	}
	// Untouched pixel emits (0, 0, 0, 0).
	off = (50*TileSize + 20) * 4
	for i := 0; i < 4; i++ {
		if raw[off+i] != 0 {
			t.Fatalf("transparent pixel byte %d = %d, want 0", i, raw[off+i])
		}
	}
}

func TestRGBWPartialCoverageAlpha(t *testing.T) {
	tile := NewRGBWBuffer()
	g := &GrayscaleBuffer{}
	g.DrawLine(10, 100, 50, 100, 2)
	tile.Merge(g, 0, 0xffffffff)

	// The half-covered edge row carries partial W.
	w := tile.Pixel(20, 99) >> 24
	if w == 0 || w == 255 {
		t.Fatalf("edge alpha = %d, want partial", w)
	}

	raw := unfilter(t, tile.PNGRows(), 4)
	off := (99*TileSize + 20) * 4
	if got := raw[off+3]; uint32(got) != w {
		t.Fatalf("emitted alpha = %d, want %d", got, w)
	}
	// Unpremultiplied white stays white wherever any ink landed.
	if raw[off] != 255 {
		t.Fatalf("unpremultiplied red = %d, want 255", raw[off])
	}
}
