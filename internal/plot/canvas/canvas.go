// Package canvas holds the coordinate types shared between the figure data
// and the plotter: canvas configurations with their data-to-pixel transforms,
// tile keys, and the selection map.
package canvas

import (
	"fmt"
	"math"

	"github.com/banshee-data/tileplot/internal/plot/render"
)

// ZoomFactor is the geometric zoom per step; must match the front end.
const ZoomFactor = 1.5

// Config is a particular configuration of a canvas: its pixel size and data
// coordinates.
//
// The corner coordinates alone are not enough: panning away and back should
// land on the exact same coordinates so tiles can be reused. So the config
// stays fixed and the front end tracks zoom level and pixel offsets on top of
// it; as long as the user sticks to the standard zoom/pan controls they stay
// inside the same Config.
//
// Given data coordinate x, the pixel coordinate is
//
//	px = (w-1) * (Z * (x - (x0+x1)/2) / (x1-x0) + 1/2)
//
// with Z = ZoomFactor^zoomLevel, so x = x0 maps to the center of the leftmost
// pixel and x = x1 to the center of the rightmost one at zoom 0. The y axis
// is the same but inverted: y = y0 lands on the bottom pixel row.
type Config struct {
	// ID starts at zero for the initial configuration; tiles carry it to say
	// which coordinate system they belong to.
	ID   int
	W, H int // canvas size in pixels

	X0, Y0, X1, Y1 float64

	// Current front-end view state. Not conceptually part of the config
	// (changing them does not change the ID) but needed together with it
	// all the time.
	ZoomLevel        int
	XOffset, YOffset int // panning offsets, in pixels
}

// Point is a position in data space.
type Point struct{ X, Y float64 }

// DataCoord maps a pixel position back to data space.
func (c *Config) DataCoord(px, py float64) Point {
	invZoom := math.Pow(ZoomFactor, float64(-c.ZoomLevel))
	return Point{
		X: (c.X0+c.X1)*0.5 + (c.X1-c.X0)*invZoom*(px/float64(c.W-1)-0.5),
		Y: (c.Y0+c.Y1)*0.5 + (c.Y0-c.Y1)*invZoom*(py/float64(c.H-1)-0.5),
	}
}

// Transform maps data coordinates to pixel (or tile) coordinates as
// x -> XScale*x + XBias.
type Transform struct {
	XScale, XBias float32
	YScale, YBias float32
}

// PixelTransform returns the data-to-pixel transform.
func (c *Config) PixelTransform() Transform {
	zoom := math.Pow(ZoomFactor, float64(c.ZoomLevel))
	xscale := zoom * float64(c.W-1) / (c.X1 - c.X0)
	yscale := zoom * float64(c.H-1) / (c.Y0 - c.Y1)
	return Transform{
		XScale: float32(xscale),
		XBias:  float32(-xscale*(c.X0+c.X1)/2 + float64(c.W)*0.5 - 0.5),
		YScale: float32(yscale),
		YBias:  float32(-yscale*(c.Y0+c.Y1)/2 + float64(c.H)*0.5 - 0.5),
	}
}

// TileTransform returns the data-to-tile-coordinate transform. A tile is
// render.TileSize pixels on a side and the middle of a tile has integer
// coordinates: tile (0, 0) spans pixel [-0.5, 255.5] on both axes, so
//
//	tx = (px - (TS-1)/2) / TS.
func (c *Config) TileTransform() Transform {
	const ts = render.TileSize
	zoom := math.Pow(ZoomFactor, float64(c.ZoomLevel))
	xscale := (zoom / ts) * float64(c.W-1) / (c.X1 - c.X0)
	yscale := (zoom / ts) * float64(c.H-1) / (c.Y0 - c.Y1)
	return Transform{
		XScale: float32(xscale),
		XBias:  float32(-xscale*(c.X0+c.X1)*0.5 + float64(c.W)/(2.0*ts) - 0.5),
		YScale: float32(yscale),
		YBias:  float32(-yscale*(c.Y0+c.Y1)*0.5 + float64(c.H)/(2.0*ts) - 0.5),
	}
}

// TileKey identifies one tile.
type TileKey struct {
	// SMVersion is the selection-map version when construction of the tile
	// started.
	SMVersion int

	ConfigID  int
	ZoomLevel int

	// Position: pixel offset = (col*TileSize, row*TileSize).
	Row, Col int

	// ItemID is -1 for a regular tile, else the item of a highlight tile.
	ItemID int
}

func (k TileKey) String() string {
	if k.ItemID == -1 {
		return fmt.Sprintf("[%d]%d:%d:%d:%d",
			k.SMVersion, k.ConfigID, k.ZoomLevel, k.Row, k.Col)
	}
	return fmt.Sprintf("[%d]%d:%d:%d:%d:%d",
		k.SMVersion, k.ConfigID, k.ZoomLevel, k.Row, k.Col, k.ItemID)
}

// Request carries the shared context of all tasks spawned for one tile
// request. It is passed by value, so it must stay small.
type Request struct {
	SMVersion int
	Canvas    Config
	ItemID    int // -1 to draw all items
}

// IsHighlight reports whether this request renders a single-item highlight
// tile.
func (r *Request) IsHighlight() bool { return r.ItemID != -1 }
