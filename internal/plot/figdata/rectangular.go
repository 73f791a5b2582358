package figdata

import (
	"fmt"

	"github.com/banshee-data/tileplot/internal/plot/canvas"
	"github.com/banshee-data/tileplot/internal/plot/intersect"
	"github.com/banshee-data/tileplot/internal/plot/render"
)

// Rectangular is figure data where every item has the same number of points:
// X and Y are (itemCnt, ptsCnt) arrays and atom-to-item decoding is a single
// integer division by 2*ptsCnt.
//
// Joints need care: two segments meeting at a point naively leave a chipped
// corner, and the cheapest fix is to draw a circle of the line's width on
// every data point. So markers are always drawn, even when the host did not
// ask for any; atom numbering reserves the higher ids for them so they paint
// over the segments.
type Rectangular struct {
	figureBase

	x, y, colors array
	ptsCnt       int
}

// NewRectangular validates the host buffers and builds the figure data.
// startItemID and startAtom are the batch's dense id bases, assigned by the
// plot.
func NewRectangular(startItemID int, startAtom int64,
	X, Y, colors ArraySpec, itemCnt, ptsCnt int,
	markerSize, lineWidth, hlLineWidth float32) (*Rectangular, error) {

	xa, err := newArray("X", X, kindGeneric)
	if err != nil {
		return nil, err
	}
	ya, err := newArray("Y", Y, kindGeneric)
	if err != nil {
		return nil, err
	}
	ca, err := newArray("colors", colors, kindColor)
	if err != nil {
		return nil, err
	}
	if itemCnt < 0 || ptsCnt < 1 {
		return nil, fmt.Errorf("%w: %d items x %d points", ErrBadShape, itemCnt, ptsCnt)
	}

	return &Rectangular{
		figureBase: figureBase{
			startItemID: startItemID,
			itemCnt:     itemCnt,
			startAtom:   startAtom,
			atomCnt:     int64(itemCnt) * int64(ptsCnt) * 2,
			markerSize:  markerSize,
			lineWidth:   lineWidth,
			hlLineWidth: hlLineWidth,
		},
		x:      xa,
		y:      ya,
		colors: ca,
		ptsCnt: ptsCnt,
	}, nil
}

func (f *Rectangular) Range() Range2D {
	var r Range2D
	r.XMin, r.XMax = f.x.minmax()
	r.YMin, r.YMax = f.y.minmax()
	return r
}

func (f *Rectangular) AtomIdxs(itemID int) (int64, int64) {
	relID := itemID - f.startItemID
	start := f.startAtom + int64(relID)*int64(f.ptsCnt)*2
	return start, start + int64(f.ptsCnt)*2
}

func (f *Rectangular) ComputeIntersection(req canvas.Request, sm *canvas.SelectionMap,
	irs *intersect.Set, result *intersect.Result) {

	tr := req.Canvas.TileTransform()
	tw, markerRadius := f.checkTileUnits(&req)

	batchStart := max64(f.startAtom, result.StartID)
	batchEnd := min64(f.startAtom+f.atomCnt, result.EndID)
	if batchStart >= batchEnd {
		return
	}

	perItem := 2 * f.ptsCnt
	relItemID := int((batchStart - f.startAtom) / int64(perItem))
	ptIdx := int((batchStart - f.startAtom) % int64(perItem))
	atomIdx := batchStart

	doVisit := func(x, y int) {
		if bufID := irs.BufID(y, x); bufID != -1 {
			result.Append(bufID, atomIdx)
		}
	}
	visitor := render.NewLineVisitor(
		irs.ColStart(), irs.RowStart(),
		irs.ColStart()+irs.NCols()-1, irs.RowStart()+irs.NRows()-1,
		doVisit)

	for {
		// Skip to the first selected item. (Highlight requests name their
		// item explicitly, so they never filter.)
		if !req.IsHighlight() {
			for !sm.M[f.startItemID+relItemID] {
				relItemID++
				atomIdx += int64(perItem - ptIdx)
				ptIdx = 0
				if atomIdx >= batchEnd {
					return
				}
			}
		}

		// Segment atoms: 0 <= ptIdx < ptsCnt-1.
		var xOff, yOff int
		var tx0, ty0 float32
		if ptIdx < f.ptsCnt-1 {
			xOff = f.x.offset(relItemID, ptIdx)
			yOff = f.y.offset(relItemID, ptIdx)
			tx0 = f.x.transformed(xOff, tr.XScale, tr.XBias)
			ty0 = f.y.transformed(yOff, tr.YScale, tr.YBias)
		}
		for ptIdx < f.ptsCnt-1 {
			xNext := xOff + f.x.strides[1]
			yNext := yOff + f.y.strides[1]
			tx1 := f.x.transformed(xNext, tr.XScale, tr.XBias)
			ty1 := f.y.transformed(yNext, tr.YScale, tr.YBias)

			visitor.Visit(tx0, ty0, tx1, ty1, tw)

			xOff, yOff = xNext, yNext
			tx0, ty0 = tx1, ty1

			atomIdx++
			if atomIdx >= batchEnd {
				return
			}
			ptIdx++
		}

		// Atom ptsCnt-1 is unused padding.
		if ptIdx == f.ptsCnt-1 {
			atomIdx++
			if atomIdx >= batchEnd {
				return
			}
			ptIdx++
		}

		// Marker atoms: ptsCnt <= ptIdx < 2*ptsCnt. A marker's bounding box
		// touches up to four cells.
		xOff = f.x.offset(relItemID, ptIdx-f.ptsCnt)
		yOff = f.y.offset(relItemID, ptIdx-f.ptsCnt)
		for ptIdx < perItem {
			tx := f.x.transformed(xOff, tr.XScale, tr.XBias)
			ty := f.y.transformed(yOff, tr.YScale, tr.YBias)

			txi0 := roundi(tx - markerRadius)
			txi1 := roundi(tx + markerRadius)
			tyi0 := roundi(ty - markerRadius)
			tyi1 := roundi(ty + markerRadius)
			doVisit(txi0, tyi0)
			doVisit(txi0, tyi1)
			doVisit(txi1, tyi0)
			doVisit(txi1, tyi1)

			atomIdx++
			if atomIdx >= batchEnd {
				return
			}
			ptIdx++
			xOff += f.x.strides[1]
			yOff += f.y.strides[1]
		}

		relItemID++
		ptIdx = 0
	}
}

func (f *Rectangular) Paint(tile render.ColoredBuffer, req canvas.Request,
	it *intersect.SetIterator, row, col int) {

	if !it.HasNext() {
		return
	}

	lineWidth := f.strokeWidth(&req)

	tr := req.Canvas.PixelTransform()
	tr.XBias -= float32(col * render.TileSize)
	tr.YBias -= float32(row * render.TileSize)

	gray := &render.GrayscaleBuffer{}

	// Atoms of one item share a grayscale scratch; merge on item change so
	// each item composites as a unit.
	prevID := -1
	perItem := 2 * f.ptsCnt
	end := f.startAtom + f.atomCnt

	for it.HasNext() && it.Peek() < end {
		atomIdx := it.Next()

		relItemID := int((atomIdx - f.startAtom) / int64(perItem))
		ptIdx := int((atomIdx - f.startAtom) % int64(perItem))

		if prevID != -1 && prevID != relItemID {
			tile.Merge(gray, f.startItemID+prevID, f.colors.argb(prevID))
		}
		prevID = relItemID

		if ptIdx < f.ptsCnt-1 {
			// Segment.
			xOff := f.x.offset(relItemID, ptIdx)
			yOff := f.y.offset(relItemID, ptIdx)
			x0 := f.x.transformed(xOff, tr.XScale, tr.XBias)
			y0 := f.y.transformed(yOff, tr.YScale, tr.YBias)
			x1 := f.x.transformed(xOff+f.x.strides[1], tr.XScale, tr.XBias)
			y1 := f.y.transformed(yOff+f.y.strides[1], tr.YScale, tr.YBias)
			gray.DrawLine(x0, y0, x1, y1, lineWidth)
		} else if ptIdx >= f.ptsCnt {
			// Marker.
			xOff := f.x.offset(relItemID, ptIdx-f.ptsCnt)
			yOff := f.y.offset(relItemID, ptIdx-f.ptsCnt)
			x0 := f.x.transformed(xOff, tr.XScale, tr.XBias)
			y0 := f.y.transformed(yOff, tr.YScale, tr.YBias)
			gray.DrawCircle(x0, y0, f.markerSize*0.5)
		}
	}

	if prevID != -1 {
		tile.Merge(gray, f.startItemID+prevID, f.colors.argb(prevID))
	}
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
