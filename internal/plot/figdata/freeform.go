package figdata

import (
	"fmt"
	"math"

	"github.com/banshee-data/tileplot/internal/plot/canvas"
	"github.com/banshee-data/tileplot/internal/plot/intersect"
	"github.com/banshee-data/tileplot/internal/plot/render"
)

// Freeform is figure data where items have varying point counts: X and Y are
// flat (totalPts,) arrays and a (itemCnt,) start-index array marks where each
// item's points begin.
type Freeform struct {
	figureBase

	x, y, startIdxs, colors array
	totalPts                int64
}

// NewFreeform validates the host buffers and builds the figure data. The
// start indices must be non-decreasing and within [0, totalPts); they are
// checked here so the render phases can index without re-validating.
func NewFreeform(startItemID int, startAtom int64,
	X, Y, startIdxs, colors ArraySpec, itemCnt int, totalPts int64,
	markerSize, lineWidth, hlLineWidth float32) (*Freeform, error) {

	xa, err := newArray("X", X, kindGeneric)
	if err != nil {
		return nil, err
	}
	ya, err := newArray("Y", Y, kindGeneric)
	if err != nil {
		return nil, err
	}
	sa, err := newArray("start_idxs", startIdxs, kindInteger)
	if err != nil {
		return nil, err
	}
	ca, err := newArray("colors", colors, kindColor)
	if err != nil {
		return nil, err
	}
	if itemCnt < 0 || totalPts < 0 {
		return nil, fmt.Errorf("%w: %d items, %d points", ErrBadShape, itemCnt, totalPts)
	}

	f := &Freeform{
		figureBase: figureBase{
			startItemID: startItemID,
			itemCnt:     itemCnt,
			startAtom:   startAtom,
			atomCnt:     totalPts * 2,
			markerSize:  markerSize,
			lineWidth:   lineWidth,
			hlLineWidth: hlLineWidth,
		},
		x:         xa,
		y:         ya,
		startIdxs: sa,
		colors:    ca,
		totalPts:  totalPts,
	}

	prev := int64(0)
	for i := 0; i < itemCnt; i++ {
		v, err := sa.intval(0, i, totalPts)
		if err != nil {
			return nil, err
		}
		if i == 0 && v != 0 {
			return nil, fmt.Errorf("start_idxs: %w: first index must be 0, got %d",
				ErrBadValue, v)
		}
		if v < prev {
			return nil, fmt.Errorf("start_idxs: %w: %d after %d", ErrBadValue, v, prev)
		}
		if cnt := f.nextStart(i) - v; cnt < 0 || cnt > math.MaxInt32 {
			return nil, fmt.Errorf("start_idxs: %w: item #%d has %d points",
				ErrBadValue, i, cnt)
		}
		prev = v
	}
	return f, nil
}

// startIdx returns the first point index of an item (relative id).
func (f *Freeform) startIdx(relItemID int) int64 {
	return f.startIdxs.rawInt(f.startIdxs.offset(0, relItemID))
}

// nextStart returns the point index just past an item's points.
func (f *Freeform) nextStart(relItemID int) int64 {
	if relItemID < f.itemCnt-1 {
		return f.startIdx(relItemID + 1)
	}
	return f.totalPts
}

// ptsCnt returns the number of points in an item.
func (f *Freeform) ptsCnt(relItemID int) int {
	return int(f.nextStart(relItemID) - f.startIdx(relItemID))
}

func (f *Freeform) Range() Range2D {
	var r Range2D
	r.XMin, r.XMax = f.x.minmax()
	r.YMin, r.YMax = f.y.minmax()
	return r
}

func (f *Freeform) AtomIdxs(itemID int) (int64, int64) {
	relID := itemID - f.startItemID
	start := f.startAtom + 2*f.startIdx(relID)
	return start, start + 2*int64(f.ptsCnt(relID))
}

// locate finds the item containing the given atom, returning its relative id
// plus the item's start index, point count, and the atom's position within
// the item.
//
// Items are scanned linearly; counts are small enough that a binary search
// has never shown up in profiles.
func (f *Freeform) locate(atomIdx int64) (relItemID int, startIdx int64, ptIdx, ptsCnt int) {
	for relItemID = 0; relItemID < f.itemCnt; relItemID++ {
		startIdx = f.startIdx(relItemID)
		pt := (atomIdx - f.startAtom) - 2*startIdx
		ptsCnt = f.ptsCnt(relItemID)
		if pt < 0 {
			panic("figdata: atom before item start")
		}
		if pt < 2*int64(ptsCnt) {
			return relItemID, startIdx, int(pt), ptsCnt
		}
	}
	panic("figdata: atom beyond the last item")
}

func (f *Freeform) ComputeIntersection(req canvas.Request, sm *canvas.SelectionMap,
	irs *intersect.Set, result *intersect.Result) {

	tr := req.Canvas.TileTransform()
	tw, markerRadius := f.checkTileUnits(&req)

	batchStart := max64(f.startAtom, result.StartID)
	batchEnd := min64(f.startAtom+f.atomCnt, result.EndID)
	if batchStart >= batchEnd {
		return
	}

	relItemID, startIdx, ptIdx, ptsCnt := f.locate(batchStart)
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
		// Skip to the first selected item; highlight requests never filter.
		if !req.IsHighlight() {
			for !sm.M[f.startItemID+relItemID] {
				relItemID++
				if relItemID >= f.itemCnt {
					return
				}
				startIdx = f.startIdx(relItemID)
				ptIdx = 0
				ptsCnt = f.ptsCnt(relItemID)
				atomIdx = f.startAtom + 2*startIdx
				if atomIdx >= batchEnd {
					return
				}
			}
		}

		// Segment atoms: 0 <= ptIdx < ptsCnt-1.
		var xOff, yOff int
		var tx0, ty0 float32
		if ptIdx < ptsCnt-1 {
			xOff = f.x.offset(0, int(startIdx)+ptIdx)
			yOff = f.y.offset(0, int(startIdx)+ptIdx)
			tx0 = f.x.transformed(xOff, tr.XScale, tr.XBias)
			ty0 = f.y.transformed(yOff, tr.YScale, tr.YBias)
		}
		for ptIdx < ptsCnt-1 {
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
		if ptIdx == ptsCnt-1 {
			atomIdx++
			if atomIdx >= batchEnd {
				return
			}
			ptIdx++
		}

		// Marker atoms: ptsCnt <= ptIdx < 2*ptsCnt.
		xOff = f.x.offset(0, int(startIdx)+ptIdx-ptsCnt)
		yOff = f.y.offset(0, int(startIdx)+ptIdx-ptsCnt)
		for ptIdx < 2*ptsCnt {
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
		startIdx = f.startIdx(relItemID)
		ptIdx = 0
		ptsCnt = f.ptsCnt(relItemID)
	}
}

func (f *Freeform) Paint(tile render.ColoredBuffer, req canvas.Request,
	it *intersect.SetIterator, row, col int) {

	if !it.HasNext() {
		return
	}

	lineWidth := f.strokeWidth(&req)

	tr := req.Canvas.PixelTransform()
	tr.XBias -= float32(col * render.TileSize)
	tr.YBias -= float32(row * render.TileSize)

	gray := &render.GrayscaleBuffer{}
	prevID := -1
	end := f.startAtom + f.atomCnt

	relItemID, startIdx, _, ptsCnt := f.locate(it.Peek())

	for it.HasNext() && it.Peek() < end {
		atomIdx := it.Next()

		// Keep the item bookkeeping in sync with the atom id.
		ptIdx := int((atomIdx - f.startAtom) - 2*startIdx)
		for ptIdx >= 2*ptsCnt {
			relItemID++
			if relItemID >= f.itemCnt {
				panic("figdata: atom beyond the last item")
			}
			startIdx = f.startIdx(relItemID)
			ptsCnt = f.ptsCnt(relItemID)
			ptIdx = int((atomIdx - f.startAtom) - 2*startIdx)
		}

		if prevID != -1 && prevID != relItemID {
			tile.Merge(gray, f.startItemID+prevID, f.colors.argb(prevID))
		}
		prevID = relItemID

		if ptIdx < ptsCnt-1 {
			// Segment.
			xOff := f.x.offset(0, int(startIdx)+ptIdx)
			yOff := f.y.offset(0, int(startIdx)+ptIdx)
			x0 := f.x.transformed(xOff, tr.XScale, tr.XBias)
			y0 := f.y.transformed(yOff, tr.YScale, tr.YBias)
			x1 := f.x.transformed(xOff+f.x.strides[1], tr.XScale, tr.XBias)
			y1 := f.y.transformed(yOff+f.y.strides[1], tr.YScale, tr.YBias)
			gray.DrawLine(x0, y0, x1, y1, lineWidth)
		} else if ptIdx >= ptsCnt {
			// Marker.
			xOff := f.x.offset(0, int(startIdx)+ptIdx-ptsCnt)
			yOff := f.y.offset(0, int(startIdx)+ptIdx-ptsCnt)
			x0 := f.x.transformed(xOff, tr.XScale, tr.XBias)
			y0 := f.y.transformed(yOff, tr.YScale, tr.YBias)
			gray.DrawCircle(x0, y0, f.markerSize*0.5)
		}
	}

	if prevID != -1 {
		tile.Merge(gray, f.startItemID+prevID, f.colors.argb(prevID))
	}
}
