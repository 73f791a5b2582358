// Package render implements the pixel kernels of the tile pipeline: an
// anti-aliased grayscale scratch buffer, the colored tile accumulators that
// grayscale ink is merged into, and the integer-grid line visitor used by the
// intersection phase.
//
// The buffers store pixels as 4x4 blocks laid out row-major in block order.
// The algorithms were written for 8-wide SIMD; this implementation is the
// scalar rendition of the same arithmetic (identical coverage ramps, rounding
// and traversal), so results match across widths up to float rounding.
package render

import "math"

const (
	// TileSize is the width and height of one tile in pixels.
	TileSize = 256

	// BlkCnt is the number of 4x4 blocks in a tile.
	BlkCnt = (TileSize * TileSize) / 16
)

// GrayscaleBuffer is a 256x256 grayscale scratch holding one item's ink for
// one tile. It keeps a list of blocks touched since the last reset so that
// merging and clearing cost ink, not area.
type GrayscaleBuffer struct {
	buf [BlkCnt * 16]byte

	// Blocks changed so far. A block is appended only when it first turns
	// nonzero, so at most BlkCnt entries are used; the last two are spare.
	blklist [BlkCnt + 2]uint16
	blkCnt  int
}

// Reset zeroes only the dirty blocks and clears the dirty list.
func (g *GrayscaleBuffer) Reset() {
	for i := 0; i < g.blkCnt; i++ {
		off := int(g.blklist[i]) * 16
		clear(g.buf[off : off+16])
	}
	g.blkCnt = 0
}

// Pixel returns the value at (x, y). Intended for tests and debugging.
func (g *GrayscaleBuffer) Pixel(x, y int) uint8 {
	idx1 := (y/4)*64 + x/4
	idx2 := (y%4)*4 + x%4
	return g.buf[idx1*16+idx2]
}

// DirtyBlocks returns the current dirty-block index list.
func (g *GrayscaleBuffer) DirtyBlocks() []uint16 {
	return g.blklist[:g.blkCnt]
}

// storeBlk max-merges a 4x4 block into buf[offset] and records the offset in
// the dirty list if the block transitions from zero to nonzero.
func (g *GrayscaleBuffer) storeBlk(offset int, blk *[16]byte) {
	dst := g.buf[offset*16 : offset*16+16 : offset*16+16]
	var origNZ, blkNZ byte
	for j := 0; j < 16; j++ {
		o := dst[j]
		b := blk[j]
		origNZ |= o
		blkNZ |= b
		if b > o {
			dst[j] = b
		}
	}
	if origNZ == 0 && blkNZ != 0 {
		g.blklist[g.blkCnt] = uint16(offset)
		g.blkCnt++
	}
}

// roundi rounds to the nearest integer, ties to even, matching the default
// float-to-int conversion mode the original vector code relied on.
func roundi(v float32) int {
	return int(math.RoundToEven(float64(v)))
}

// coverage computes the 8 pixel values of one column against a boundary line
// at relative height yrel: a pixel entirely above the line is 0xff, entirely
// below is 0x00, and the crossed pixel gets the linear-in-y fraction of its
// area above the line. Pixel k spans [k, k+1] (the caller pre-shifts by 0.5).
func coverage(yrel float32) [8]uint8 {
	yfloor := float32(math.Floor(float64(yrel)))
	yint := roundi(yfloor)
	frac := roundi((yrel - yfloor) * 255)

	var out [8]uint8
	for k := 0; k < 8; k++ {
		switch {
		case k < yint:
			out[k] = 0
		case k == yint:
			out[k] = uint8(255 - frac)
		default:
			out[k] = 0xff
		}
	}
	return out
}

// Shuffle-map from (x0, x1, y0, y1, flipped x0, x1, y0, y1) to uv-space
// coordinates (u0, u1, v0, v1) such that the slope lands in [0, 1]. Indexed
// by coordType (bit 2: steep slope, bit 1: y0 > y1, bit 0: x0 > x1).
var coordShuffle = [8][4]int{
	{0, 1, 2, 3},
	{1, 0, 4 + 3, 4 + 2},
	{0, 1, 4 + 2, 4 + 3},
	{1, 0, 3, 2},
	{2, 3, 0, 1},
	{2, 3, 4 + 0, 4 + 1},
	{3, 2, 4 + 1, 4 + 0},
	{3, 2, 1, 0},
}

// DrawLine paints a fat line from (x0, y0) to (x1, y1). The cross-section is
// the band between two parallel edges offset width/2 on either side of the
// center line; the short edges at the ends are left to the caller's endpoint
// markers. Compositing uses max, so overlapping strokes never darken.
//
// The caller must keep width below TileSize.
func (g *GrayscaleBuffer) DrawLine(x0, y0, x1, y1, width float32) {
	dx := x1 - x0
	dy := y1 - y0

	// Permute/flip the coordinates so that the slope is in [0, 1].
	coords0 := [8]float32{
		x0, x1, y0, y1,
		255 - x0, 255 - x1, 255 - y0, 255 - y1,
	}
	coordType := 0
	if abs32(dy) > abs32(dx) {
		coordType += 4
	}
	if y0 > y1 {
		coordType += 2
	}
	if x0 > x1 {
		coordType += 1
	}
	sel := &coordShuffle[coordType]
	u0 := coords0[sel[0]]
	u1 := coords0[sel[1]]
	v0 := coords0[sel[2]]
	v1 := coords0[sel[3]]
	du := u1 - u0
	dv := v1 - v0

	//  0: no transformation          (u = x, v = y)
	//  1: flip y                     (u = x, v = 255 - y)
	//  2: transpose                  (u = y, v = x)
	//  3: flip x, and then transpose (u = y, v = 255 - x)
	shuffleType := (coordType >> 1) ^ (coordType & 0x01)

	len2 := du*du + dv*dv
	if !(len2 > 0) {
		return // zero-length or NaN
	}
	if width < 1e-6 {
		width = 1e-6
	}
	invlen := 1 / float32(math.Sqrt(float64(len2)))

	// Half-width lateral displacement of the line in u/v directions.
	//
	// Lower edge:  from (u0 + wu, v0 - wv) to (u1 + wu, v1 - wv)
	// Higher edge: from (u0 - wu, v0 + wv) to (u1 - wu, v1 + wv)
	wu := dv * (invlen * width / 2)
	wv := du * (invlen * width / 2)

	// Bounding box: only pixels inside it are touched. (The ends get
	// overpainted by markers of the same size as the line width, so the
	// short edges need no exact handling.)
	umin := roundi(u0 - wu)
	umax := roundi(u1 + wu)
	vmin := roundi(v0 - wv)
	vmax := roundi(v1 + wv)

	// Slope and v-intercepts of the lower/higher edges, shifted by 0.5 so
	// that the edge "goes through" pixel (0, k) iff its value is in [k, k+1].
	slope := dv / du
	vL0 := (v0 - wv) - slope*(u0+wu) + 0.5
	vH0 := (v0 + wv) - slope*(u0-wu) + 0.5

	// Find the first 8x8 block to process.
	var ublk, vblk int
	if umin >= 0 && vmin >= 0 {
		ublk = umin / 8
		vblk = vmin / 8
	} else if vH0 >= 0 {
		// The higher edge passes above (0, 0): start at (0, vL0).
		ublk = 0
		vblk = int(math.Floor(float64(vL0))) / 8
		if vblk < 0 {
			vblk = 0
		}
	} else {
		// The higher edge passes below (0, 0): find the u where it enters
		// the bottom pixel row (v = -0.5). If that is right of the drawing
		// area there is nothing to draw.
		if slope*(256+1-(u0-wu)) < -0.5-(v0+wv) {
			return
		}
		uH := (u0 - wu) + (-0.5-(v0+wv))/slope
		ublk = roundi(uH) / 8
		if ublk < 0 {
			ublk = 0
		}
		vblk = 0
	}

	if ublk >= TileSize/8 || vblk >= TileSize/8 {
		return
	}

	// Guard against extreme coordinates overflowing the int conversion.
	if vL0 > 256+1 {
		return
	}
	if vH0 > 256+1 {
		vH0 = 256 + 1
	}

	downCnt := 0

	for {
		// Edge heights of each of the 8 columns, relative to the block
		// origin (ublk*8, vblk*8).
		base := float32(ublk*8)*slope - float32(vblk*8)
		var colorL, colorH [8][8]uint8 // [u][v]
		for i := 0; i < 8; i++ {
			d := float32(i)*slope + base
			colorL[i] = coverage(vL0 + d)
			colorH[i] = coverage(vH0 + d)
		}

		// The pixel value is the area between the two edges, clipped to the
		// allowed u/v ranges.
		var colors [8][8]uint8
		for i := 0; i < 8; i++ {
			u := ublk*8 + i
			if u < umin || u > umax {
				continue
			}
			for k := 0; k < 8; k++ {
				v := vblk*8 + k
				if v < vmin || v > vmax {
					continue
				}
				colors[i][k] = colorL[i][k] - colorH[i][k]
			}
		}

		g.storeUVBlock(&colors, ublk, vblk, shuffleType)

		// Steering checks use the top-right uv pixel before clipping:
		// if the lower edge passes below it, the block to the right still
		// needs work; if the higher edge passes above it, move up first.
		checkRight := colorL[7][7] != 0
		up := colorH[7][7] != 0xff && vblk < TileSize/8-1

		// When both hold, remember how far up we went so the column to the
		// right restarts at the correct block.
		if checkRight && up {
			downCnt++
		}

		if up {
			vblk++
		} else {
			ublk++
			vblk -= downCnt
			downCnt = 0
		}

		if ublk >= TileSize/8 || ublk*8 > umax {
			return
		}
	}
}

// storeUVBlock writes an 8x8 uv-space color block into the four destination
// 4x4 blocks, undoing the coordinate shuffle.
func (g *GrayscaleBuffer) storeUVBlock(colors *[8][8]uint8, ublk, vblk, shuffleType int) {
	var blk [16]byte
	for a := 0; a < 2; a++ {
		for b := 0; b < 2; b++ {
			ublk2 := ublk*2 + a
			vblk2 := vblk*2 + b

			var blkIdx int
			switch shuffleType {
			case 0:
				blkIdx = vblk2*64 + ublk2
			case 1:
				blkIdx = (63-vblk2)*64 + ublk2
			case 2:
				blkIdx = ublk2*64 + vblk2
			default:
				blkIdx = ublk2*64 + (63 - vblk2)
			}

			for uu := 0; uu < 4; uu++ {
				for vv := 0; vv < 4; vv++ {
					c := colors[a*4+uu][b*4+vv]
					var pos int
					switch shuffleType {
					case 0:
						pos = vv*4 + uu
					case 1:
						pos = (3-vv)*4 + uu
					case 2:
						pos = uu*4 + vv
					default:
						pos = uu*4 + (3 - vv)
					}
					blk[pos] = c
				}
			}
			g.storeBlk(blkIdx, &blk)
		}
	}
}

// DrawCircle paints a filled anti-aliased circle centered at (x0, y0). Pixel
// values follow the linear approximation
//
//	color = clamp(((r*r + r) - D*D) * 255/(2r), 0, 255)
//
// where D is the distance from the pixel to the center. Brute force over the
// bounding box; fine for the marker sizes this is used for.
func (g *GrayscaleBuffer) DrawCircle(x0, y0, radius float32) {
	if !(radius > 0) || isNaN32(x0) || isNaN32(y0) {
		return
	}

	a := -255.0 / 2.0 / radius
	b := 255.0 / 2.0 * (radius + 1)

	xblk0 := int(math.Floor(float64(x0+0.5-radius) / 4))
	xblk1 := int(math.Floor(float64(x0+0.5+radius) / 4))
	yblk0 := int(math.Floor(float64(y0+0.5-radius) / 4))
	yblk1 := int(math.Floor(float64(y0+0.5+radius) / 4))
	if xblk0 < 0 {
		xblk0 = 0
	}
	if xblk1 > 63 {
		xblk1 = 63
	}
	if yblk0 < 0 {
		yblk0 = 0
	}
	if yblk1 > 63 {
		yblk1 = 63
	}

	var blk [16]byte
	for yblk := yblk0; yblk <= yblk1; yblk++ {
		for xblk := xblk0; xblk <= xblk1; xblk++ {
			for dy := 0; dy < 4; dy++ {
				yd := float32(yblk*4+dy) - y0
				for dx := 0; dx < 4; dx++ {
					xd := float32(xblk*4+dx) - x0
					c := roundi((xd*xd+yd*yd)*a + b)
					if c < 0 {
						c = 0
					} else if c > 255 {
						c = 255
					}
					blk[dy*4+dx] = uint8(c)
				}
			}
			g.storeBlk(yblk*64+xblk, &blk)
		}
	}
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

func isNaN32(v float32) bool { return v != v }
