package tiling

import (
	"encoding/json"
	"fmt"
	"image"
)

// Box is a half-open rectangle [X0,X1) x [Y0,Y1) in level-0 pixel
// coordinates.
type Box struct {
	X0 int `json:"x0"`
	Y0 int `json:"y0"`
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
}

// Rect converts the box to an image.Rectangle.
func (b Box) Rect() image.Rectangle {
	return image.Rect(b.X0, b.Y0, b.X1, b.Y1)
}

// Width returns the box width in pixels.
func (b Box) Width() int { return b.X1 - b.X0 }

// Height returns the box height in pixels.
func (b Box) Height() int { return b.Y1 - b.Y0 }

// Patch is one grid cell: a bounding box plus its row/column address.
type Patch struct {
	Box Box
	Row int
	Col int
}

// Grid partitions a 2-D pixel extent into a gapless row-major grid of
// fixed-width boxes. The final row and column may be clipped to the extent.
type Grid struct {
	width      int
	height     int
	patchWidth int
	overlap    int
	rows       int
	cols       int
	patches    []Patch
}

// Build constructs the grid for an extent of width x height pixels.
// Non-positive dimensions, a non-positive patch width, a negative overlap or
// an overlap that consumes the whole patch are caller errors.
func Build(width, height, patchWidth, overlap int) (*Grid, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("extent %dx%d is empty", width, height)
	}
	if patchWidth <= 0 {
		return nil, fmt.Errorf("patch width must be positive, got %d", patchWidth)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("overlap must be non-negative, got %d", overlap)
	}
	if overlap >= patchWidth {
		return nil, fmt.Errorf("overlap %d leaves no patch step (patch width %d)", overlap, patchWidth)
	}

	step := patchWidth - overlap
	rows := ceilDiv(height-overlap, step)
	cols := ceilDiv(width-overlap, step)
	if rows < 1 {
		rows = 1
	}
	if cols < 1 {
		cols = 1
	}

	patches := make([]Patch, 0, rows*cols)
	for row := 0; row < rows; row++ {
		y0 := row * step
		y1 := min(y0+patchWidth, height)
		for col := 0; col < cols; col++ {
			x0 := col * step
			x1 := min(x0+patchWidth, width)
			patches = append(patches, Patch{
				Box: Box{X0: x0, Y0: y0, X1: x1, Y1: y1},
				Row: row,
				Col: col,
			})
		}
	}

	return &Grid{
		width:      width,
		height:     height,
		patchWidth: patchWidth,
		overlap:    overlap,
		rows:       rows,
		cols:       cols,
		patches:    patches,
	}, nil
}

// Shape returns the grid dimensions as (rows, cols).
func (g *Grid) Shape() (rows, cols int) {
	return g.rows, g.cols
}

// Len returns the number of patches (rows * cols).
func (g *Grid) Len() int {
	return len(g.patches)
}

// PatchWidth returns the nominal patch width in pixels.
func (g *Grid) PatchWidth() int { return g.patchWidth }

// Overlap returns the overlap between neighbouring patches in pixels.
func (g *Grid) Overlap() int { return g.overlap }

// Patches returns all patches in row-major order.
func (g *Grid) Patches() []Patch {
	return g.patches
}

// Bboxes returns every patch bounding box in grid order.
func (g *Grid) Bboxes() []Box {
	boxes := make([]Box, len(g.patches))
	for i, p := range g.patches {
		boxes[i] = p.Box
	}
	return boxes
}

// Ilocs returns the (col, row) address of every patch in grid order, used
// to scatter per-patch results into an output canvas.
func (g *Grid) Ilocs() [][2]int {
	locs := make([][2]int, len(g.patches))
	for i, p := range g.patches {
		locs[i] = [2]int{p.Col, p.Row}
	}
	return locs
}

// geoJSONFeature is one patch box as a GeoJSON polygon feature.
type geoJSONFeature struct {
	Type       string         `json:"type"`
	Geometry   geoJSONPolygon `json:"geometry"`
	Properties map[string]int `json:"properties"`
}

type geoJSONPolygon struct {
	Type        string         `json:"type"`
	Coordinates [][][2]float64 `json:"coordinates"`
}

type geoJSONCollection struct {
	Type     string           `json:"type"`
	Features []geoJSONFeature `json:"features"`
}

// MarshalGeoJSON serializes all patch boxes as a GeoJSON FeatureCollection.
// Each feature carries its grid address in the row/col properties.
func (g *Grid) MarshalGeoJSON() ([]byte, error) {
	fc := geoJSONCollection{
		Type:     "FeatureCollection",
		Features: make([]geoJSONFeature, 0, len(g.patches)),
	}
	for _, p := range g.patches {
		x0, y0 := float64(p.Box.X0), float64(p.Box.Y0)
		x1, y1 := float64(p.Box.X1), float64(p.Box.Y1)
		fc.Features = append(fc.Features, geoJSONFeature{
			Type: "Feature",
			Geometry: geoJSONPolygon{
				Type: "Polygon",
				Coordinates: [][][2]float64{
					{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}, {x0, y0}},
				},
			},
			Properties: map[string]int{"row": p.Row, "col": p.Col},
		})
	}
	return json.Marshal(fc)
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
