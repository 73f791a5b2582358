package render

import (
	"encoding/binary"
	"math"
)

// ColoredBuffer accumulates grayscale ink into a finished tile.
type ColoredBuffer interface {
	// Merge composites the dirty blocks of gray with the given color
	// (0xAARRGGBB) into the tile, then clears gray. itemID updates the
	// hovermap on affected pixels where the buffer keeps one.
	Merge(gray *GrayscaleBuffer, itemID int, argb uint32)

	// PNGRows returns the tile shaped as PNG scanlines: one filter byte per
	// row (0 "none" for row 0, 2 "up" for the rest) followed by the
	// per-channel byte difference from the previous row. Compressing the
	// result with zlib yields a PNG IDAT chunk; compression is the host's
	// job.
	PNGRows() []byte

	// HovermapData returns the per-pixel item ids as 256*256 little-endian
	// int32 values in row-major order. Only the RGB variant supports it.
	HovermapData() []byte

	// Pixel returns the value at (x, y) for tests and debugging.
	Pixel(x, y int) uint32
}

// scaledAlpha converts an 8-bit alpha into the 16.16 fixed-point factor used
// by Merge:
//
//	newChannel = old + sign(d) * ((|d| * gray * scaledAlpha) >> 16)
//
// The shift truncates; ceil compensates so that alpha = gray = 255 lands
// exactly on the target channel value.
func scaledAlpha(argb uint32) uint32 {
	alpha := (argb >> 24) & 0xff
	return uint32(math.Ceil(float64(alpha) * (65536.0 / 255.0 / 255.0)))
}

// mergeStep computes the signed channel adjustment for one pixel.
func mergeStep(old, target uint8, gray uint8, sa uint32) int {
	d := int(target) - int(old)
	ad := d
	if ad < 0 {
		ad = -ad
	}
	step := int((uint32(ad) * uint32(gray) * sa) >> 16)
	if d < 0 {
		return -step
	}
	return step
}

// RGBBuffer is the regular tile: planar 4x4 blocks of R, G, B over a solid
// background, plus a parallel hovermap holding the item id of the last merge
// that touched each pixel (-1 when untouched).
type RGBBuffer struct {
	// Block #0: (0..3, 0..3) R; #1: same pixels G; #2: same pixels B;
	// #3: (4..7, 0..3) R; ...
	buf      [BlkCnt * 3 * 16]byte
	hovermap [BlkCnt * 16]int32
}

// NewRGBBuffer creates a tile filled with the given background color
// (0x??RRGGBB) and an all -1 hovermap.
func NewRGBBuffer(color uint32) *RGBBuffer {
	t := &RGBBuffer{}
	r := byte(color >> 16)
	g := byte(color >> 8)
	b := byte(color)
	for i := 0; i < BlkCnt; i++ {
		base := i * 48
		for j := 0; j < 16; j++ {
			t.buf[base+j] = r
			t.buf[base+16+j] = g
			t.buf[base+32+j] = b
		}
	}
	for i := range t.hovermap {
		t.hovermap[i] = -1
	}
	return t
}

func (t *RGBBuffer) Merge(gray *GrayscaleBuffer, itemID int, argb uint32) {
	sa := scaledAlpha(argb)
	cr := uint8(argb >> 16)
	cg := uint8(argb >> 8)
	cb := uint8(argb)

	for i := 0; i < gray.blkCnt; i++ {
		offset := int(gray.blklist[i])
		gblk := gray.buf[offset*16 : offset*16+16]
		base := offset * 48
		hbase := offset * 16

		for j := 0; j < 16; j++ {
			gr := gblk[j]
			if gr == 0 {
				continue
			}
			t.hovermap[hbase+j] = int32(itemID)
			t.buf[base+j] = uint8(int(t.buf[base+j]) + mergeStep(t.buf[base+j], cr, gr, sa))
			t.buf[base+16+j] = uint8(int(t.buf[base+16+j]) + mergeStep(t.buf[base+16+j], cg, gr, sa))
			t.buf[base+32+j] = uint8(int(t.buf[base+32+j]) + mergeStep(t.buf[base+32+j], cb, gr, sa))
		}
		clear(gblk)
	}
	gray.blkCnt = 0
}

func (t *RGBBuffer) PNGRows() []byte {
	out := make([]byte, (TileSize*3+1)*TileSize)

	// Two ping-pong line buffers of three single-channel lines each.
	var lineBuf [6 * TileSize]byte
	dest := 0
	for row := 0; row < TileSize; row++ {
		if row == 0 {
			out[dest] = 0
		} else {
			out[dest] = 2
		}
		dest++

		thisLine := lineBuf[(row%2)*3*TileSize : (row%2)*3*TileSize+3*TileSize]
		prevLine := lineBuf[((row+1)%2)*3*TileSize : ((row+1)%2)*3*TileSize+3*TileSize]

		// Re-arrange the row from planar blocks into three channel lines.
		src := (row/4)*64*48 + (row%4)*4
		for i := 0; i < TileSize/4; i++ {
			copy(thisLine[i*4:i*4+4], t.buf[src:src+4])
			copy(thisLine[TileSize+i*4:TileSize+i*4+4], t.buf[src+16:src+20])
			copy(thisLine[2*TileSize+i*4:2*TileSize+i*4+4], t.buf[src+32:src+36])
			src += 48
		}

		// Emit the per-channel difference from the previous row.
		for i := 0; i < TileSize; i++ {
			out[dest] = thisLine[i] - prevLine[i]
			out[dest+1] = thisLine[TileSize+i] - prevLine[TileSize+i]
			out[dest+2] = thisLine[2*TileSize+i] - prevLine[2*TileSize+i]
			dest += 3
		}
	}
	return out
}

func (t *RGBBuffer) HovermapData() []byte {
	out := make([]byte, TileSize*TileSize*4)
	dest := 0
	for y := 0; y < TileSize; y++ {
		base := (y/4)*64*16 + (y%4)*4
		for xblk := 0; xblk < 64; xblk++ {
			src := base + xblk*16
			for j := 0; j < 4; j++ {
				binary.LittleEndian.PutUint32(out[dest:], uint32(t.hovermap[src+j]))
				dest += 4
			}
		}
	}
	return out
}

// Pixel returns 0x00RRGGBB at (x, y).
func (t *RGBBuffer) Pixel(x, y int) uint32 {
	idx1 := (y/4)*64 + x/4
	idx2 := (y%4)*4 + x%4
	r := uint32(t.buf[idx1*48+idx2])
	g := uint32(t.buf[idx1*48+16+idx2])
	b := uint32(t.buf[idx1*48+32+idx2])
	return r<<16 | g<<8 | b
}

// HoverItem returns the hovermap entry at (x, y).
func (t *RGBBuffer) HoverItem(x, y int) int32 {
	idx1 := (y/4)*64 + x/4
	idx2 := (y%4)*4 + x%4
	return t.hovermap[idx1*16+idx2]
}

// RGBWBuffer is the highlight tile. True alpha compositing is expensive, so
// intermediate state is kept in a non-transparent four-plane form: starting
// from black, each merge adds R, G, B like RGBBuffer does and advances a
// pseudo-channel W as if its target were always 255. At emission time
// (r, g, b, w) converts to RGBA as R = r*255/w, A = w (w = 0 emits
// transparent black). The construction guarantees r <= w, so the conversion
// cannot overflow. Low w costs color depth, but nobody can see color fidelity
// at alpha 3 anyway. No hovermap.
type RGBWBuffer struct {
	// Block #0: (0..3, 0..3) R; #1 G; #2 B; #3 W; #4: (4..7, 0..3) R; ...
	buf [BlkCnt * 4 * 16]byte
}

// NewRGBWBuffer creates an all-transparent highlight tile.
func NewRGBWBuffer() *RGBWBuffer { return &RGBWBuffer{} }

// Merge is the RGB merge plus the always-increasing W plane. itemID is
// unused: highlight tiles have no hovermap.
func (t *RGBWBuffer) Merge(gray *GrayscaleBuffer, itemID int, argb uint32) {
	sa := scaledAlpha(argb)
	cr := uint8(argb >> 16)
	cg := uint8(argb >> 8)
	cb := uint8(argb)

	for i := 0; i < gray.blkCnt; i++ {
		offset := int(gray.blklist[i])
		gblk := gray.buf[offset*16 : offset*16+16]
		base := offset * 64

		for j := 0; j < 16; j++ {
			gr := gblk[j]
			if gr == 0 {
				continue
			}
			t.buf[base+j] = uint8(int(t.buf[base+j]) + mergeStep(t.buf[base+j], cr, gr, sa))
			t.buf[base+16+j] = uint8(int(t.buf[base+16+j]) + mergeStep(t.buf[base+16+j], cg, gr, sa))
			t.buf[base+32+j] = uint8(int(t.buf[base+32+j]) + mergeStep(t.buf[base+32+j], cb, gr, sa))
			t.buf[base+48+j] = uint8(int(t.buf[base+48+j]) + mergeStep(t.buf[base+48+j], 0xff, gr, sa))
		}
		clear(gblk)
	}
	gray.blkCnt = 0
}

func (t *RGBWBuffer) PNGRows() []byte {
	out := make([]byte, (TileSize*4+1)*TileSize)

	var lineBuf [8 * TileSize]byte
	dest := 0
	for row := 0; row < TileSize; row++ {
		if row == 0 {
			out[dest] = 0
		} else {
			out[dest] = 2
		}
		dest++

		thisLine := lineBuf[(row%2)*4*TileSize : (row%2)*4*TileSize+4*TileSize]
		prevLine := lineBuf[((row+1)%2)*4*TileSize : ((row+1)%2)*4*TileSize+4*TileSize]

		// Re-arrange the row from planar blocks into four channel lines.
		src := (row/4)*64*64 + (row%4)*4
		for i := 0; i < TileSize/4; i++ {
			copy(thisLine[i*4:i*4+4], t.buf[src:src+4])
			copy(thisLine[TileSize+i*4:TileSize+i*4+4], t.buf[src+16:src+20])
			copy(thisLine[2*TileSize+i*4:2*TileSize+i*4+4], t.buf[src+32:src+36])
			copy(thisLine[3*TileSize+i*4:3*TileSize+i*4+4], t.buf[src+48:src+52])
			src += 64
		}

		// Convert RGBW to RGBA in place; the fourth line is already A (= w).
		for i := 0; i < TileSize; i++ {
			w := uint32(thisLine[3*TileSize+i])
			if w == 0 {
				thisLine[i] = 0
				thisLine[TileSize+i] = 0
				thisLine[2*TileSize+i] = 0
				continue
			}
			thisLine[i] = unpremul(thisLine[i], w)
			thisLine[TileSize+i] = unpremul(thisLine[TileSize+i], w)
			thisLine[2*TileSize+i] = unpremul(thisLine[2*TileSize+i], w)
		}

		for i := 0; i < TileSize; i++ {
			out[dest] = thisLine[i] - prevLine[i]
			out[dest+1] = thisLine[TileSize+i] - prevLine[TileSize+i]
			out[dest+2] = thisLine[2*TileSize+i] - prevLine[2*TileSize+i]
			out[dest+3] = thisLine[3*TileSize+i] - prevLine[3*TileSize+i]
			dest += 4
		}
	}
	return out
}

// unpremul maps one RGBW channel to its RGBA value. Merge keeps every
// channel at or below w, so the clamp only guards the byte conversion.
func unpremul(c uint8, w uint32) uint8 {
	v := uint32(c) * 255 / w
	if v > 255 {
		v = 255
	}
	return uint8(v)
}

func (t *RGBWBuffer) HovermapData() []byte {
	panic("render: RGBWBuffer has no hovermap")
}

// Pixel returns 0xWWRRGGBB (pre-conversion planes) at (x, y).
func (t *RGBWBuffer) Pixel(x, y int) uint32 {
	idx1 := (y/4)*64 + x/4
	idx2 := (y%4)*4 + x%4
	r := uint32(t.buf[idx1*64+idx2])
	g := uint32(t.buf[idx1*64+16+idx2])
	b := uint32(t.buf[idx1*64+32+idx2])
	w := uint32(t.buf[idx1*64+48+idx2])
	return w<<24 | r<<16 | g<<8 | b
}
