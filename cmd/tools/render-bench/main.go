// Package main provides a synthetic workload driver for the tile pipeline.
// It generates sine-wave line data, renders every tile of a canvas through
// the full scheduler path, reports paint/encode latency statistics, and can
// persist the run to a render log database and write the finished tiles as
// PNG files (applying the zlib step that is otherwise the host's job).
package main

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"flag"
	"fmt"
	"hash/crc32"
	"log"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/tileplot/internal/plot"
	"github.com/banshee-data/tileplot/internal/plot/figdata"
	"github.com/banshee-data/tileplot/internal/plot/render"
	"github.com/banshee-data/tileplot/internal/renderlog"
	"github.com/banshee-data/tileplot/internal/sched"
	"github.com/banshee-data/tileplot/internal/timeutil"
)

type config struct {
	Threads int
	Items   int
	Points  int
	Width   int
	Height  int
	DBPath  string
	OutDir  string
}

func parseFlags() config {
	var cfg config
	flag.IntVar(&cfg.Threads, "threads", 4, "worker threads")
	flag.IntVar(&cfg.Items, "items", 200, "number of line items")
	flag.IntVar(&cfg.Points, "points", 2000, "points per item")
	flag.IntVar(&cfg.Width, "width", 1024, "canvas width in pixels")
	flag.IntVar(&cfg.Height, "height", 768, "canvas height in pixels")
	flag.StringVar(&cfg.DBPath, "db", "", "render log database (optional)")
	flag.StringVar(&cfg.OutDir, "out", "", "directory for PNG tiles (optional)")
	flag.Parse()
	return cfg
}

// tileSink collects outgoing messages from the worker pool.
type tileSink struct {
	mu    sync.Mutex
	tiles []tileMsg
	done  chan struct{}
	want  int
}

type tileMsg struct {
	row, col int
	rows     []byte // PNG-filtered bytes
}

func (s *tileSink) callback(dict []string, d1, d2 *sched.MessageData) bool {
	kind := ""
	fields := map[string]string{}
	for _, kv := range dict {
		k, v, _ := strings.Cut(kv, "=")
		k = strings.TrimPrefix(k, "#")
		fields[k] = v
		if k == "msg" {
			kind = v
		}
	}
	if kind != "tile" {
		return true
	}

	var row, col int
	fmt.Sscanf(fields["row"], "%d", &row)
	fmt.Sscanf(fields["col"], "%d", &col)

	s.mu.Lock()
	s.tiles = append(s.tiles, tileMsg{row: row, col: col, rows: d1.Data})
	n := len(s.tiles)
	s.mu.Unlock()
	if n == s.want {
		close(s.done)
	}
	return true
}

// statRecorder keeps latency samples in memory and forwards to an optional
// persistent store.
type statRecorder struct {
	mu       sync.Mutex
	paintUs  []float64
	encodeUs []float64
	next     plot.Recorder
}

func (r *statRecorder) RecordTile(rec plot.TileRecord) {
	r.mu.Lock()
	r.paintUs = append(r.paintUs, float64(rec.PaintMicros))
	r.encodeUs = append(r.encodeUs, float64(rec.EncodeMicros))
	r.mu.Unlock()
	if r.next != nil {
		r.next.RecordTile(rec)
	}
}

func main() {
	cfg := parseFlags()

	rec := &statRecorder{}
	if cfg.DBPath != "" {
		store, err := renderlog.Open(cfg.DBPath)
		if err != nil {
			log.Fatalf("open render log: %v", err)
		}
		defer store.Close()
		rec.next = store
		log.Printf("recording run %s to %s", store.RunID(), cfg.DBPath)
	}

	nrows := (cfg.Height + render.TileSize - 1) / render.TileSize
	ncols := (cfg.Width + render.TileSize - 1) / render.TileSize
	sink := &tileSink{done: make(chan struct{}), want: nrows * ncols}

	tm := sched.New(cfg.Threads, sink.callback, timeutil.RealClock{}, 0, nil)
	p := plot.NewPlotter(tm)
	p.SetRecorder(rec)

	if err := p.AddRectangularLineData(
		sineWaveX(cfg.Items, cfg.Points), sineWaveY(cfg.Items, cfg.Points),
		itemColors(cfg.Items),
		cfg.Items, cfg.Points, 3, 2, 4); err != nil {
		log.Fatalf("ingest: %v", err)
	}
	p.InitSelectionMap()
	tm.Start()
	defer tm.Shutdown()

	start := time.Now()
	p.CreateCanvasConfig(0, cfg.Width, cfg.Height, nil, false, 0, 0, 0, 0)

	select {
	case <-sink.done:
	case <-time.After(5 * time.Minute):
		log.Fatalf("timed out: %d/%d tiles", len(sink.tiles), sink.want)
	}
	elapsed := time.Since(start)

	log.Printf("%d tiles (%dx%d) in %v with %d threads",
		sink.want, nrows, ncols, elapsed, cfg.Threads)
	report("paint", rec.paintUs)
	report("encode", rec.encodeUs)

	if cfg.OutDir != "" {
		if err := writeTiles(cfg.OutDir, sink.tiles); err != nil {
			log.Fatalf("write tiles: %v", err)
		}
		log.Printf("wrote %d PNGs to %s", len(sink.tiles), cfg.OutDir)
	}
}

func report(name string, samples []float64) {
	if len(samples) == 0 {
		return
	}
	sorted := append([]float64(nil), samples...)
	stat.SortWeighted(sorted, nil)
	log.Printf("%s: mean %.0f us, p50 %.0f us, p99 %.0f us",
		name,
		stat.Mean(sorted, nil),
		stat.Quantile(0.5, stat.Empirical, sorted, nil),
		stat.Quantile(0.99, stat.Empirical, sorted, nil))
}

func sineWaveX(items, points int) figdata.ArraySpec {
	rows := make([][]float64, items)
	for i := range rows {
		row := make([]float64, points)
		for j := range row {
			row[j] = float64(j) / float64(points-1)
		}
		rows[i] = row
	}
	return figdata.Float64s2D(rows)
}

func sineWaveY(items, points int) figdata.ArraySpec {
	rows := make([][]float64, items)
	for i := range rows {
		row := make([]float64, points)
		freq := 1 + float64(i%7)
		phase := float64(i) * 0.37
		amp := 0.2 + 0.8*float64(i%5)/4
		for j := range row {
			x := float64(j) / float64(points-1)
			row[j] = amp * math.Sin(2*math.Pi*freq*x+phase)
		}
		rows[i] = row
	}
	return figdata.Float64s2D(rows)
}

func itemColors(items int) figdata.ArraySpec {
	rows := make([][]byte, items)
	for i := range rows {
		rows[i] = []byte{
			byte(37 * i % 256),
			byte(97 * i % 256),
			byte(151 * i % 256),
		}
	}
	return figdata.Bytes2D(rows)
}

func writeTiles(dir string, tiles []tileMsg) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for _, tl := range tiles {
		path := filepath.Join(dir, fmt.Sprintf("tile-r%d-c%d.png", tl.row, tl.col))
		if err := writePNG(path, tl.rows, 3); err != nil {
			return err
		}
	}
	return nil
}

// writePNG wraps already-filtered scanline bytes into a complete PNG file:
// the zlib/chunk framing the host normally applies.
func writePNG(path string, filtered []byte, channels int) error {
	var colorType byte = 2 // truecolor
	if channels == 4 {
		colorType = 6 // truecolor + alpha
	}

	var buf bytes.Buffer
	buf.Write([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'})

	var ihdr [13]byte
	binary.BigEndian.PutUint32(ihdr[0:], render.TileSize)
	binary.BigEndian.PutUint32(ihdr[4:], render.TileSize)
	ihdr[8] = 8 // bit depth
	ihdr[9] = colorType
	writeChunk(&buf, "IHDR", ihdr[:])

	var idat bytes.Buffer
	zw := zlib.NewWriter(&idat)
	if _, err := zw.Write(filtered); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}
	writeChunk(&buf, "IDAT", idat.Bytes())
	writeChunk(&buf, "IEND", nil)

	return os.WriteFile(path, buf.Bytes(), 0o644)
}

func writeChunk(buf *bytes.Buffer, typ string, data []byte) {
	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(len(data)))
	buf.Write(length[:])
	buf.WriteString(typ)
	buf.Write(data)

	crc := crc32.NewIEEE()
	crc.Write([]byte(typ))
	crc.Write(data)
	var sum [4]byte
	binary.BigEndian.PutUint32(sum[:], crc.Sum32())
	buf.Write(sum[:])
}
