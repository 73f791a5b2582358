package render

import "math"

// LineVisitor walks the integer grid cells covered by a fat line segment,
// reporting each visited cell exactly once through a callback. It runs the
// same geometric construction as GrayscaleBuffer.DrawLine but on a grid of
// configurable bounds (the tile grid, in tile units): cells are centered at
// integer coordinates, so the cell at the origin spans [-0.5, 0.5] on both
// axes. What happens when a segment passes exactly through a corner or stops
// exactly on an edge is not guaranteed either way.
type LineVisitor struct {
	xmin, ymin, xmax, ymax int
	fn                     func(x, y int)
}

// NewLineVisitor creates a visitor over the inclusive cell range
// [xmin, xmax] x [ymin, ymax].
func NewLineVisitor(xmin, ymin, xmax, ymax int, fn func(x, y int)) *LineVisitor {
	return &LineVisitor{xmin: xmin, ymin: ymin, xmax: xmax, ymax: ymax, fn: fn}
}

// Visit reports every cell touched by the fat segment from (x0, y0) to
// (x1, y1) with the given width. Degenerate segments (zero length, NaN) are
// skipped silently.
func (lv *LineVisitor) Visit(x0, y0, x1, y1, width float32) {
	if isNaN32(x0) || isNaN32(y0) || isNaN32(x1) || isNaN32(y1) {
		return
	}

	dx := x1 - x0
	dy := y1 - y0

	// Shift by (xmin, ymin) so that the boundary starts at the origin; a
	// flipped coordinate shifts by (xmax, ymax) instead for the same reason.
	xmin := float32(lv.xmin)
	ymin := float32(lv.ymin)
	xmax := float32(lv.xmax)
	ymax := float32(lv.ymax)
	coords0 := [8]float32{
		x0 - xmin, x1 - xmin, y0 - ymin, y1 - ymin,
		xmax - x0, xmax - x1, ymax - y0, ymax - y1,
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

	//  0: no transformation          (u = x - xmin, v = y - ymin)
	//  1: flip y                     (u = x - xmin, v = ymax - y)
	//  2: transpose                  (u = y - ymin, v = x - xmin)
	//  3: flip x, and then transpose (u = y - ymin, v = xmax - x)
	shuffleType := (coordType >> 1) ^ (coordType & 0x01)

	var areaWidth, areaHeight int
	if shuffleType >= 2 {
		areaWidth = lv.ymax - lv.ymin + 1
		areaHeight = lv.xmax - lv.xmin + 1
	} else {
		areaWidth = lv.xmax - lv.xmin + 1
		areaHeight = lv.ymax - lv.ymin + 1
	}

	length := float32(math.Sqrt(float64(dx*dx + dy*dy)))
	if length == 0 {
		return
	}
	invlen := 1 / length
	wu := dv * (invlen * width / 2)
	wv := du * (invlen * width / 2)

	umin := u0 - wu
	vmin := v0 - wv

	slope := dv / du

	// vL0: where the lower edge intersects the left side of the leftmost
	//      cell (u = -0.5).
	// vH0: where the higher edge intersects the *right* side of the leftmost
	//      cell (u = +0.5).
	vL0 := (v0 - wv) + slope*(-0.5-(u0+wu))
	vH0 := (v0 + wv) + slope*(0.5-(u0-wu))

	// Find the first column to visit.
	var u int
	if umin > -0.5 && vmin > -0.5 {
		u = roundi(umin)
	} else if vH0 > -0.5 {
		// The higher edge passes at or above cell (0, 0).
		u = 0
	} else {
		// The higher edge passes below (0, 0): find the u where it enters
		// the bottom cell row (v = -0.5), checking first whether that is
		// beyond the right boundary.
		if slope*(float32(areaWidth)+1-(u0-wu)) < -0.5-(v0+wv) {
			return
		}
		uH := (u0 - wu) + (-0.5-(v0+wv))/(slope+1e-8)
		u = roundi(uH)
	}
	// Columns left of the fat segment's bounding box cannot touch it.
	if lo := roundi(umin); u < lo {
		u = lo
	}

	umaxInt := roundi(u1 + wu)
	if umaxInt > areaWidth-1 {
		umaxInt = areaWidth - 1
	}
	vminInt := roundi(v0 - wv)
	if vminInt < 0 {
		vminInt = 0
	}
	vmaxInt := roundi(v1 + wv)
	if vmaxInt > areaHeight-1 {
		vmaxInt = areaHeight - 1
	}

	for ; u <= umaxInt; u++ {
		vL := roundi(vL0 + slope*float32(u))
		if vL < vminInt {
			vL = vminInt
		}
		vH := roundi(vH0 + slope*float32(u))
		if vH > vmaxInt {
			vH = vmaxInt
		}
		if vL > vH {
			return // only happens past the top boundary
		}

		for v := vL; v <= vH; v++ {
			switch shuffleType {
			case 0:
				lv.fn(u+lv.xmin, v+lv.ymin)
			case 1:
				lv.fn(u+lv.xmin, lv.ymax-v)
			case 2:
				lv.fn(v+lv.xmin, u+lv.ymin)
			default:
				lv.fn(lv.xmax-v, u+lv.ymin)
			}
		}
	}
}
