package render

import (
	"fmt"
	"math"
	"math/rand"
	"testing"
)

type cell struct{ x, y int }

func collectVisits(xmin, ymin, xmax, ymax int, x0, y0, x1, y1, w float32) map[cell]int {
	visited := map[cell]int{}
	lv := NewLineVisitor(xmin, ymin, xmax, ymax, func(x, y int) {
		visited[cell{x, y}]++
	})
	lv.Visit(x0, y0, x1, y1, w)
	return visited
}

func TestVisitorSkipsDegenerates(t *testing.T) {
	nan := float32(math.NaN())
	if got := collectVisits(0, 0, 30, 30, 5, 5, 5, 5, 2); len(got) != 0 {
		t.Fatalf("zero-length segment visited %d cells", len(got))
	}
	if got := collectVisits(0, 0, 30, 30, nan, 5, 10, 5, 2); len(got) != 0 {
		t.Fatalf("NaN segment visited %d cells", len(got))
	}
}

func TestVisitorNoDuplicates(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 200; trial++ {
		x0 := rng.Float32()*40 - 5
		y0 := rng.Float32()*40 - 5
		x1 := rng.Float32()*40 - 5
		y1 := rng.Float32()*40 - 5
		w := rng.Float32()*3 + 0.1

		for c, n := range collectVisits(0, 0, 29, 29, x0, y0, x1, y1, w) {
			if n > 1 {
				t.Fatalf("trial %d: cell %v visited %d times", trial, c, n)
			}
		}
	}
}

func TestVisitorCompleteAndSound(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	for trial := 0; trial < 200; trial++ {
		x0 := float64(rng.Float32()*50 - 10)
		y0 := float64(rng.Float32()*50 - 10)
		x1 := float64(rng.Float32()*50 - 10)
		y1 := float64(rng.Float32()*50 - 10)
		w := float64(rng.Float32()*4 + 0.2)
		if x0 == x1 && y0 == y1 {
			continue
		}

		visited := collectVisits(0, 0, 29, 29,
			float32(x0), float32(y0), float32(x1), float32(y1), float32(w))

		desc := fmt.Sprintf("segment (%.3f,%.3f)-(%.3f,%.3f) w=%.3f", x0, y0, x1, y1, w)
		for y := 0; y <= 29; y++ {
			for x := 0; x <= 29; x++ {
				d := distToSegment(float64(x), float64(y), x0, y0, x1, y1)
				dEnd := math.Min(math.Hypot(float64(x)-x0, float64(y)-y0),
					math.Hypot(float64(x)-x1, float64(y)-y1))
				_, got := visited[cell{x, y}]

				// Completeness: a center strictly inside the fat segment
				// must be reported; the construction is allowed a cell of
				// slack at either end.
				if d < w/2-1.0 && dEnd > 2.0 && !got {
					t.Fatalf("trial %d: cell (%d, %d) inside (dist %.3f) but not visited; %s",
						trial, x, y, d, desc)
				}
				// Soundness: a reported cell must be near the fat segment
				// (tolerance one cell across the 1x1 cell square).
				if got && d > w/2+1.8 {
					t.Fatalf("trial %d: cell (%d, %d) visited but distance %.3f; %s",
						trial, x, y, d, desc)
				}
			}
		}
	}
}

func TestVisitorHonorsBounds(t *testing.T) {
	visited := collectVisits(10, 10, 19, 19, -5, 15, 40, 15, 2)
	if len(visited) == 0 {
		t.Fatal("no cells visited")
	}
	for c := range visited {
		if c.x < 10 || c.x > 19 || c.y < 10 || c.y > 19 {
			t.Fatalf("cell %v outside bounds", c)
		}
	}
	// A horizontal fat line of width 2 through y=15 covers rows 14-16 on
	// every column.
	for x := 10; x <= 19; x++ {
		for y := 14; y <= 16; y++ {
			if _, ok := visited[cell{x, y}]; !ok {
				t.Fatalf("cell (%d, %d) missing", x, y)
			}
		}
	}
}

func TestVisitorOffsetGrid(t *testing.T) {
	// Bounds away from the origin: a diagonal through the region.
	visited := collectVisits(100, 200, 129, 229, 100, 200, 129, 229, 1)
	if len(visited) == 0 {
		t.Fatal("no cells visited")
	}
	for i := 1; i < 29; i++ {
		if _, ok := visited[cell{100 + i, 200 + i}]; !ok {
			t.Fatalf("diagonal cell (%d, %d) missing", 100+i, 200+i)
		}
	}
}
