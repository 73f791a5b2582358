// Package plot orchestrates the tile pipeline: it ingests figure data,
// manages canvas configurations and the selection map, deduplicates tile
// requests against the in-flight registry, builds the task graph for each
// request, and hands finished tiles to the host.
package plot

import (
	"errors"
	"fmt"
	"sync"

	"github.com/banshee-data/tileplot/internal/monitoring"
	"github.com/banshee-data/tileplot/internal/plot/canvas"
	"github.com/banshee-data/tileplot/internal/plot/figdata"
	"github.com/banshee-data/tileplot/internal/plot/intersect"
	"github.com/banshee-data/tileplot/internal/plot/render"
	"github.com/banshee-data/tileplot/internal/sched"
)

const debugPlot = false

// TileAckExpire is how long a sent tile waits for a front-end ack before the
// plotter forgets it, in microseconds.
const TileAckExpire = 5_000_000

// ErrSealed is returned when figure data arrives after the selection map was
// initialized.
var ErrSealed = errors.New("figure data cannot be added after drawing started")

// TileRecord describes one completed tile for an optional Recorder.
type TileRecord struct {
	Key           canvas.TileKey
	Seq           int
	PaintMicros   int64
	EncodeMicros  int64
	TileBytes     int
	HovermapBytes int
}

// Recorder receives a TileRecord after each paint completion. Implementations
// must be safe for concurrent use; the plotter calls them from worker
// threads.
type Recorder interface {
	RecordTile(TileRecord)
}

// taskCtxt gathers the data belonging to one tile request. The intersection
// tasks are retained here so duplicate requests can expedite them; the
// cleanup task drops the whole context when the last paint finishes.
type taskCtxt struct {
	intersectionTasks []*sched.Task
	irs               *intersect.Set
}

// inflightTileInfo tracks one requested tile. While intersections are being
// computed, ctxt is set; once the paint task exists, tileTask is. After the
// tile is sent the (completed) paint task stays behind so late expedites find
// a harmless target, and the sent tables carry the entry until ack or expiry.
//
// Requests are served LIFO, so a duplicate request (before the response went
// out) moves the old sequence number to the orphan list and takes over the
// entry: the old number is acknowledged immediately and the front end's count
// of outstanding requests stays flat.
type inflightTileInfo struct {
	ctxt     *taskCtxt
	tileTask *sched.Task
	seqNo    int
}

type seqStamp struct {
	seq  int
	sent int64 // µs
}

// Plotter is the host-facing entry point of the compute core.
type Plotter struct {
	tm *sched.Manager

	mu sync.Mutex

	data []figdata.FigureData

	// While ingesting: the next item id and atom id to assign. After the
	// selection map seals the plot, the totals.
	nextItemID  int
	nextAtomIdx int64

	errMsg string

	// Data extent; fixed once computed.
	dataRange figdata.Range2D

	// Which items are enabled. Initialized by InitSelectionMap; from then
	// on no more figure data is accepted.
	sm *canvas.SelectionMap

	configs map[int]*canvas.Config

	// Tiles being computed or awaiting ack, by key.
	inflight map[canvas.TileKey]*inflightTileInfo

	// Tiles sent to the front end, by sequence number, plus a FIFO of send
	// times so stale entries can be expired.
	sent     map[int]canvas.TileKey
	sentList []seqStamp

	// Sequence numbers superseded by duplicate requests; drained onto the
	// next outgoing tile message.
	orphaned []int

	recorder Recorder
}

// NewPlotter creates a Plotter running its tasks on tm.
func NewPlotter(tm *sched.Manager) *Plotter {
	return &Plotter{
		tm:        tm,
		dataRange: figdata.NewRange2D(),
		configs:   map[int]*canvas.Config{},
		inflight:  map[canvas.TileKey]*inflightTileInfo{},
		sent:      map[int]canvas.TileKey{},
	}
}

// SetRecorder installs an optional render-event recorder.
func (p *Plotter) SetRecorder(r Recorder) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recorder = r
}

func (p *Plotter) sealed() bool { return p.sm != nil }

// AddRectangularLineData ingests items sharing one point count. X and Y have
// shape (itemCnt, ptsCnt); colors has one RGB row per item.
func (p *Plotter) AddRectangularLineData(X, Y, colors figdata.ArraySpec,
	itemCnt, ptsCnt int, markerSize, lineWidth, hlLineWidth float32) error {

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sealed() {
		return ErrSealed
	}

	fd, err := figdata.NewRectangular(p.nextItemID, p.nextAtomIdx,
		X, Y, colors, itemCnt, ptsCnt, markerSize, lineWidth, hlLineWidth)
	if err != nil {
		return err
	}
	p.register(fd)
	return nil
}

// AddFreeformLineData ingests items with varying point counts: X and Y are
// flat (totalPts,) arrays indexed by the per-item start indices.
func (p *Plotter) AddFreeformLineData(X, Y, startIdxs, colors figdata.ArraySpec,
	itemCnt int, totalPts int64, markerSize, lineWidth, hlLineWidth float32) error {

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sealed() {
		return ErrSealed
	}

	fd, err := figdata.NewFreeform(p.nextItemID, p.nextAtomIdx,
		X, Y, startIdxs, colors, itemCnt, totalPts, markerSize, lineWidth, hlLineWidth)
	if err != nil {
		return err
	}
	p.register(fd)
	return nil
}

// register must be called with the lock held.
func (p *Plotter) register(fd figdata.FigureData) {
	p.nextItemID += fd.ItemCnt()
	p.nextAtomIdx += fd.AtomCnt()
	p.dataRange.Merge(fd.Range())
	p.data = append(p.data, fd)
}

// InitSelectionMap creates the selection map (all items enabled) and returns
// its entries for the host to edit under StartSelectionUpdate /
// EndSelectionUpdate. Ingestion is sealed from here on.
func (p *Plotter) InitSelectionMap() []bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sealed() {
		panic("plot: selection map initialized twice")
	}
	p.sm = canvas.NewSelectionMap(p.nextItemID)
	return p.sm.M
}

// SMVersion returns the current selection-map version.
func (p *Plotter) SMVersion() int { return p.sm.Version() }

// StartSelectionUpdate brackets the beginning of a host-side selection edit.
func (p *Plotter) StartSelectionUpdate() { p.sm.StartUpdate() }

// EndSelectionUpdate publishes the new (even) version after a host-side edit.
func (p *Plotter) EndSelectionUpdate(newVersion int) { p.sm.EndUpdate(newVersion) }

// GetCanvasConfig returns a copy of a registered config; unknown ids yield a
// zero config with ID -1.
func (p *Plotter) GetCanvasConfig(configID int) canvas.Config {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.configs[configID]; ok {
		return *c
	}
	return canvas.Config{ID: -1}
}

// initialRange pads a data range by 5% on each side (or by 1.0 when the
// range is a single point).
func initialRange(lo, hi float64) (float64, float64) {
	margin := (hi - lo) * 0.05
	if hi == lo {
		margin = 1.0
	}
	return lo - margin, hi + margin
}

// CreateCanvasConfig registers canvas config newID of the given pixel size,
// publishes it to the front end, and enqueues tile tasks for every tile
// covering it.
//
// With old == nil the data range (plus margin) becomes the new coordinates.
// Otherwise the new coordinates come from mapping a pixel rectangle through
// old: the given (px0, py0)-(px1, py1) when isZoom is set, or the currently
// visible viewport for a plain pan.
func (p *Plotter) CreateCanvasConfig(newID, width, height int,
	old *canvas.Config, isZoom bool, px0, py0, px1, py1 float64) {

	p.mu.Lock()
	defer p.mu.Unlock()

	if width < 1 || height < 1 {
		panic("plot: canvas must be at least 1x1")
	}

	var x0, y0, x1, y1 float64
	if old == nil {
		x0, x1 = initialRange(p.dataRange.XMin, p.dataRange.XMax)
		y0, y1 = initialRange(p.dataRange.YMin, p.dataRange.YMax)
	} else {
		if !isZoom {
			px0 = float64(-old.XOffset)
			py0 = float64(old.H-1) - float64(old.YOffset)
			px1 = float64(old.W-1) - float64(old.XOffset)
			py1 = float64(-old.YOffset)
		}
		pt0 := old.DataCoord(px0, py0)
		pt1 := old.DataCoord(px1, py1)
		x0 = fmin(pt0.X, pt1.X)
		y0 = fmin(pt0.Y, pt1.Y)
		x1 = fmax(pt0.X, pt1.X)
		y1 = fmax(pt0.Y, pt1.Y)
	}

	// The host re-packages this as `canvas_config` and adds the axis data.
	p.tm.SendMsg([]string{
		"msg=CanvasConfigSubMessage",
		numField("config_id", newID),
		numField("w", width),
		numField("h", height),
		doubleField("x0", x0),
		doubleField("y0", y0),
		doubleField("x1", x1),
		doubleField("y1", y1),
		numField("zoom_level", 0),
		numField("x_offset", 0),
		numField("y_offset", 0),
	}, nil, nil)

	cfg := &canvas.Config{ID: newID, W: width, H: height, X0: x0, Y0: y0, X1: x1, Y1: y1}
	p.configs[newID] = cfg

	// A new config regenerates every tile in range.
	nrows := (height + render.TileSize - 1) / render.TileSize
	ncols := (width + render.TileSize - 1) / render.TileSize
	tileCoords := make([]int, 0, nrows*ncols*3)
	for row := 0; row < nrows; row++ {
		for col := 0; col < ncols; col++ {
			tileCoords = append(tileCoords, row, col, -1) // no sequence number
		}
	}

	p.launchTasks(canvas.Request{SMVersion: p.sm.Version(), Canvas: *cfg, ItemID: -1},
		tileCoords, nil)
}

// TileReqHandler services one front-end tile request for the given canvas.
// itemID is -1 for regular tiles, else the item of a highlight tile. Each
// coordinate list holds (row, col, seq) triples; prioCoords are urgent,
// regCoords can wait.
func (p *Plotter) TileReqHandler(cfg *canvas.Config, itemID int,
	prioCoords, regCoords []int) {

	if debugPlot {
		monitoring.Logf("tile request: config=%d zoom=%d item=%d",
			cfg.ID, cfg.ZoomLevel, itemID)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.launchTasks(canvas.Request{SMVersion: p.sm.Version(), Canvas: *cfg, ItemID: itemID},
		prioCoords, regCoords)
}

// launchTasks deduplicates the coordinates and enqueues the task graph for
// what is left:
//
//  1. one intersection task per atom batch, recording which atoms touch
//     which tile;
//  2. a launcher task, dependent on all of them, which enqueues
//  3. one paint task per active tile, each feeding
//  4. a cleanup task that drops the shared context.
//
// Must be called with the lock held.
func (p *Plotter) launchTasks(req canvas.Request, prioCoords, regCoords []int) {
	ctxt := &taskCtxt{}
	prio := p.dedupInflightReqs(req, ctxt, prioCoords)
	reg := p.dedupInflightReqs(req, ctxt, regCoords)

	if len(prio) == 0 && len(reg) == 0 {
		if debugPlot {
			monitoring.Logf("no tiles left after deduplication")
		}
		return
	}

	var startIdx, endIdx int64
	if req.ItemID == -1 {
		startIdx, endIdx = 0, p.nextAtomIdx
	} else {
		startIdx, endIdx = p.atomIdxs(req.ItemID)
	}

	batchSize := (endIdx - startIdx) / int64(p.tm.Nthreads)
	if batchSize < 5000 {
		batchSize = 5000
	} else if batchSize > 100000 {
		batchSize = 100000
	}

	ctxt.irs = intersect.NewSet(prio, reg, startIdx, endIdx, batchSize)

	launcher := p.tm.NewTask(func() { p.tileLauncherTask(req, ctxt) }, sched.FIFO, nil)

	for _, result := range ctxt.irs.Results {
		result := result
		t := p.tm.NewTask(func() { p.computeIntersectionTask(req, ctxt.irs, result) },
			sched.LIFO, launcher)
		ctxt.intersectionTasks = append(ctxt.intersectionTasks, t)
		p.tm.EnqueueRetained(t)
	}
	p.tm.Enqueue(launcher)
}

// dedupInflightReqs filters (row, col, seq) triples against the in-flight
// registry, registering fresh ones under ctxt and returning their (row, col)
// pairs. Duplicates of tiles still being computed hand their old sequence
// number to the orphan list, take over the entry, and expedite the queued
// work; duplicates of already-sent tiles orphan the new number immediately.
//
// Must be called with the lock held.
func (p *Plotter) dedupInflightReqs(req canvas.Request, ctxt *taskCtxt, coords []int) []int {
	if len(coords)%3 != 0 {
		panic("plot: coordinate list must be (row, col, seq) triples")
	}

	retval := make([]int, 0, len(coords)/3*2)
	for i := 0; i < len(coords); i += 3 {
		row, col, seq := coords[i], coords[i+1], coords[i+2]
		key := canvas.TileKey{
			SMVersion: req.SMVersion,
			ConfigID:  req.Canvas.ID,
			ZoomLevel: req.Canvas.ZoomLevel,
			Row:       row,
			Col:       col,
			ItemID:    req.ItemID,
		}

		info, ok := p.inflight[key]
		if !ok {
			p.inflight[key] = &inflightTileInfo{ctxt: ctxt, seqNo: seq}
			retval = append(retval, row, col)
			continue
		}

		prevSeq := info.seqNo
		if _, wasSent := p.sent[prevSeq]; wasSent {
			// Already sent: the new request is answered by the in-flight
			// response, so its sequence number is orphaned right away.
			if debugPlot {
				monitoring.Logf("dedup: tile %v already sent (seq #%d)", key, prevSeq)
			}
			p.orphaned = append(p.orphaned, seq)
			continue
		}

		// Still being computed: the newer request takes over.
		p.orphaned = append(p.orphaned, prevSeq)
		info.seqNo = seq

		if info.ctxt != nil {
			for _, t := range info.ctxt.intersectionTasks {
				p.tm.Expedite(t)
			}
		} else {
			if info.tileTask == nil {
				panic("plot: inflight entry with neither context nor paint task")
			}
			p.tm.Expedite(info.tileTask)
		}
	}
	return retval
}

// computeIntersectionTask fills one batch of the intersection result set.
// Runs on worker threads; data and sm are sealed before any task exists, so
// no lock is needed.
func (p *Plotter) computeIntersectionTask(req canvas.Request,
	irs *intersect.Set, result *intersect.Result) {

	for _, fd := range p.data {
		fdStart := fd.StartAtomIdx()
		fdEnd := fdStart + fd.AtomCnt()
		if result.StartID < fdEnd && result.EndID > fdStart {
			fd.ComputeIntersection(req, p.sm, irs, result)
		}
	}
	result.Finish()
}

// tileLauncherTask runs once all intersection tasks finished: it enqueues
// one paint task per active tile, all feeding a cleanup task that owns the
// request context.
func (p *Plotter) tileLauncherTask(req canvas.Request, ctxt *taskCtxt) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// The intersection tasks are done; drop them.
	for _, t := range ctxt.intersectionTasks {
		t.Relinquish()
	}
	ctxt.intersectionTasks = nil

	irs := ctxt.irs
	cleanup := p.tm.NewTask(func() {
		if debugPlot {
			monitoring.Logf("cleanup task dropping request context")
		}
		ctxt.irs = nil
	}, sched.FIFO, nil)

	for row := irs.RowStart(); row < irs.RowStart()+irs.NRows(); row++ {
		for col := irs.ColStart(); col < irs.ColStart()+irs.NCols(); col++ {
			if irs.BufID(row, col) == -1 {
				continue
			}
			class := sched.LIFOLow
			if irs.IsPriority(row, col) {
				class = sched.LIFO
			}

			key := canvas.TileKey{
				SMVersion: req.SMVersion,
				ConfigID:  req.Canvas.ID,
				ZoomLevel: req.Canvas.ZoomLevel,
				Row:       row,
				Col:       col,
				ItemID:    req.ItemID,
			}
			info, ok := p.inflight[key]
			if !ok || info.ctxt != ctxt || info.tileTask != nil {
				panic(fmt.Sprintf("plot: inflight entry for %v out of sync", key))
			}

			row, col := row, col
			t := p.tm.NewTask(func() { p.drawTileTask(req, irs, row, col) },
				class, cleanup)
			info.ctxt = nil
			info.tileTask = t
			p.tm.EnqueueRetained(t)
		}
	}

	p.tm.Enqueue(cleanup)
}

// drawTileTask paints one tile, encodes it, and hands it to the host with
// every sequence number it answers. A superseded task still completes: the
// output is cheap and the front end accepts it.
func (p *Plotter) drawTileTask(req canvas.Request, irs *intersect.Set, row, col int) {
	clock := p.tm.Clock()
	paintStart := clock.Micros()

	bufID := irs.BufID(row, col)
	it := irs.Iter(bufID)

	var tile render.ColoredBuffer
	if req.IsHighlight() {
		tile = render.NewRGBWBuffer()
	} else {
		tile = render.NewRGBBuffer(0xffffff)
	}

	for _, fd := range p.data {
		if !it.HasNext() {
			break
		}
		if it.Peek() < fd.StartAtomIdx()+fd.AtomCnt() {
			fd.Paint(tile, req, it, row, col)
		}
	}

	encodeStart := clock.Micros()
	pngData := &sched.MessageData{
		Name: fmt.Sprintf("tile-r%d-c%d", row, col),
		Data: tile.PNGRows(),
	}
	var hovermapData *sched.MessageData
	if !req.IsHighlight() {
		hovermapData = &sched.MessageData{
			Name: fmt.Sprintf("hovermap-r%d-c%d", row, col),
			Data: tile.HovermapData(),
		}
	}
	encodeEnd := clock.Micros()

	key := canvas.TileKey{
		SMVersion: req.SMVersion,
		ConfigID:  req.Canvas.ID,
		ZoomLevel: req.Canvas.ZoomLevel,
		Row:       row,
		Col:       col,
		ItemID:    req.ItemID,
	}

	var seqs []int
	p.mu.Lock()
	seqs, p.orphaned = p.orphaned, nil

	info, ok := p.inflight[key]
	if !ok {
		panic(fmt.Sprintf("plot: painting unknown tile %v", key))
	}
	// The completed task stays on the entry so a late expedite from a
	// duplicate request finds something to (silently) bump; the seq tables
	// mark the tile as sent.
	seqs = append(seqs, info.seqNo)
	p.sent[info.seqNo] = key
	p.sentList = append(p.sentList, seqStamp{seq: info.seqNo, sent: clock.Micros()})
	recorder := p.recorder
	p.mu.Unlock()

	// A selection edit racing this tile makes the reported version
	// transient (odd); the front end re-requests once the real version
	// lands.
	smVersion := p.sm.Version()
	if smVersion != req.SMVersion {
		smVersion = req.SMVersion | 0x01
	}

	dict := []string{
		"msg=tile",
		"seqs=" + joinSeqs(seqs),
		numField("sm_version", smVersion),
		numField("config_id", req.Canvas.ID),
		numField("zoom_level", req.Canvas.ZoomLevel),
		numField("row", row),
		numField("col", col),
	}
	if req.IsHighlight() {
		dict = append(dict, numField("item_id", req.ItemID))
	}

	p.tm.SendMsg(dict, pngData, hovermapData)

	if recorder != nil {
		rec := TileRecord{
			Key:          key,
			Seq:          seqs[len(seqs)-1],
			PaintMicros:  encodeStart - paintStart,
			EncodeMicros: encodeEnd - encodeStart,
			TileBytes:    len(pngData.Data),
		}
		if hovermapData != nil {
			rec.HovermapBytes = len(hovermapData.Data)
		}
		recorder.RecordTile(rec)
	}
}

// AcknowledgeSeqs drops the given confirmed sequence numbers from the sent
// and in-flight tables, then expires entries older than TileAckExpire that
// were never acked.
func (p *Plotter) AcknowledgeSeqs(seqs []int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, seq := range seqs {
		key, ok := p.sent[seq]
		if !ok {
			monitoring.Logf("ack for tile #%d we no longer know - already forgotten?", seq)
			continue
		}
		p.dropSent(seq, key)
	}

	now := p.tm.Clock().Micros()
	for len(p.sentList) > 0 {
		head := p.sentList[0]
		key, ok := p.sent[head.seq]
		if !ok {
			// Already acknowledged.
			p.sentList = p.sentList[1:]
			continue
		}
		if now-head.sent < TileAckExpire {
			break
		}
		if debugPlot {
			monitoring.Logf("forgetting tile #%d %v - age %d us", head.seq, key, now-head.sent)
		}
		p.dropSent(head.seq, key)
		p.sentList = p.sentList[1:]
	}
}

// dropSent removes one sent tile from both tables. Must be called with the
// lock held.
func (p *Plotter) dropSent(seq int, key canvas.TileKey) {
	info, ok := p.inflight[key]
	if !ok || info.ctxt != nil || info.seqNo != seq {
		panic(fmt.Sprintf("plot: sent tables out of sync for %v", key))
	}
	delete(p.inflight, key)
	delete(p.sent, seq)
}

// atomIdxs returns the atom range of one item. Must be called with the lock
// held (or after sealing).
func (p *Plotter) atomIdxs(itemID int) (int64, int64) {
	for _, fd := range p.data {
		if itemID < fd.StartItemID()+fd.ItemCnt() {
			return fd.AtomIdxs(itemID)
		}
	}
	panic(fmt.Sprintf("plot: invalid item id %d", itemID))
}

func (p *Plotter) setError(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if msg == "" {
		msg = "unknown error"
	}
	p.errMsg = msg
}

// CheckError returns the last recorded internal error, or "" when healthy.
func (p *Plotter) CheckError() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.errMsg
}

func fmin(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func fmax(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
