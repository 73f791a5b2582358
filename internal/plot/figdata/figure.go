package figdata

import (
	"math"

	"github.com/banshee-data/tileplot/internal/plot/canvas"
	"github.com/banshee-data/tileplot/internal/plot/intersect"
	"github.com/banshee-data/tileplot/internal/plot/render"
)

// Range2D is a data-space bounding box. A fresh value is all-NaN; Merge
// treats NaN as "no data yet".
type Range2D struct {
	XMin, YMin, XMax, YMax float64
}

// NewRange2D returns an empty (all-NaN) range.
func NewRange2D() Range2D {
	nan := math.NaN()
	return Range2D{XMin: nan, YMin: nan, XMax: nan, YMax: nan}
}

// Merge widens r to include b, preferring non-NaN values on either side.
func (r *Range2D) Merge(b Range2D) {
	r.XMin = fmin(r.XMin, b.XMin)
	r.YMin = fmin(r.YMin, b.YMin)
	r.XMax = fmax(r.XMax, b.XMax)
	r.YMax = fmax(r.YMax, b.YMax)
}

// fmin picks the smaller value, choosing the non-NaN one when only one side
// is NaN (unlike math.Min, which propagates NaN).
func fmin(a, b float64) float64 {
	if math.IsNaN(a) {
		return b
	}
	if math.IsNaN(b) || a < b {
		return a
	}
	return b
}

func fmax(a, b float64) float64 {
	if math.IsNaN(a) {
		return b
	}
	if math.IsNaN(b) || a > b {
		return a
	}
	return b
}

// FigureData is one batch of items added by a single host call. The plot
// owns a list of them, appended in order with no gaps in item or atom ids.
//
// Atom numbering within an item of N points: atoms 0..N-2 are the segments
// (point k to point k+1), atom N-1 is unused padding so that indexing stays
// branch-free, and atoms N..2N-1 are the point markers. Markers get the
// higher ids so they paint over the segments.
type FigureData interface {
	// StartItemID is the first item id of this batch; items are dense.
	StartItemID() int
	// ItemCnt is the number of items in this batch.
	ItemCnt() int
	// StartAtomIdx is the first global atom id of this batch.
	StartAtomIdx() int64
	// AtomCnt is the number of atom ids this batch claims.
	AtomCnt() int64

	// Range returns the data-space extent of this batch.
	Range() Range2D

	// AtomIdxs returns the [start, end) atom id range of one item.
	// itemID must be within this batch.
	AtomIdxs(itemID int) (int64, int64)

	// ComputeIntersection appends, for every atom in result's batch range
	// that belongs to this figure data, the atom id to each active cell of
	// irs that the atom's geometry covers. Atoms outside the super-region
	// are ignored; disabled items are skipped unless the request is a
	// highlight. Runs on worker threads; must be thread-safe.
	ComputeIntersection(req canvas.Request, sm *canvas.SelectionMap,
		irs *intersect.Set, result *intersect.Result)

	// Paint consumes iterator ids belonging to this figure data and draws
	// them onto tile for tile (row, col), which may already hold the ink of
	// preceding figure datas. Runs on worker threads; must be thread-safe.
	Paint(tile render.ColoredBuffer, req canvas.Request,
		it *intersect.SetIterator, row, col int)
}

// figureBase carries the identity and stroke parameters shared by both
// variants.
type figureBase struct {
	startItemID int
	itemCnt     int
	startAtom   int64
	atomCnt     int64

	markerSize  float32
	lineWidth   float32
	hlLineWidth float32
}

func (f *figureBase) StartItemID() int    { return f.startItemID }
func (f *figureBase) ItemCnt() int        { return f.itemCnt }
func (f *figureBase) StartAtomIdx() int64 { return f.startAtom }
func (f *figureBase) AtomCnt() int64      { return f.atomCnt }

func (f *figureBase) strokeWidth(req *canvas.Request) float32 {
	if req.IsHighlight() {
		return f.hlLineWidth
	}
	return f.lineWidth
}

// checkTileUnits asserts the rasterizer preconditions: strokes and markers
// must stay smaller than a tile.
func (f *figureBase) checkTileUnits(req *canvas.Request) (tw, markerRadius float32) {
	tw = f.strokeWidth(req) / render.TileSize
	markerRadius = f.markerSize / (2 * render.TileSize)
	if tw >= 1.0 {
		panic("figdata: line width must be smaller than a tile")
	}
	if markerRadius >= 1.0 {
		panic("figdata: marker must be smaller than a tile")
	}
	return tw, markerRadius
}

func roundi(v float32) int {
	return int(math.RoundToEven(float64(v)))
}
