package pyramid

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// Metadata carries the optional slide properties used to resolve a target
// magnification. A zero value means the property is absent.
type Metadata struct {
	// ObjectivePower is the native objective power of the scan (e.g. 40).
	ObjectivePower float64 `json:"objective_power,omitempty"`
	// MPPX is the microns-per-pixel along x at level 0.
	MPPX float64 `json:"microns_per_pixel_x,omitempty"`
}

// Pyramid is a read-only multi-resolution raster. Level 0 is the base
// resolution; every further level is a coarser version of it.
type Pyramid struct {
	levels      []*image.NRGBA
	downsamples []float64
	meta        Metadata
	cs          string
}

// DefaultCoordinateSystem is used when no intrinsic coordinate system is set.
const DefaultCoordinateSystem = "global"

// New builds a pyramid from level rasters ordered from finest to coarsest.
// The downsample factor of each level is derived from its width relative to
// level 0 and must be non-decreasing.
func New(levels []image.Image, meta Metadata) (*Pyramid, error) {
	if len(levels) == 0 {
		return nil, fmt.Errorf("pyramid needs at least one level")
	}
	base := levels[0].Bounds()
	if base.Dx() <= 0 || base.Dy() <= 0 {
		return nil, fmt.Errorf("level 0 has empty bounds %v", base)
	}

	nrgba := make([]*image.NRGBA, len(levels))
	downsamples := make([]float64, len(levels))
	for i, lvl := range levels {
		b := lvl.Bounds()
		if b.Dx() <= 0 || b.Dy() <= 0 {
			return nil, fmt.Errorf("level %d has empty bounds %v", i, b)
		}
		nrgba[i] = imaging.Clone(lvl)
		downsamples[i] = float64(base.Dx()) / float64(b.Dx())
		if i > 0 && downsamples[i] < downsamples[i-1] {
			return nil, fmt.Errorf(
				"level %d downsample %.3f is finer than level %d (%.3f)",
				i, downsamples[i], i-1, downsamples[i-1],
			)
		}
	}

	return &Pyramid{
		levels:      nrgba,
		downsamples: downsamples,
		meta:        meta,
		cs:          DefaultCoordinateSystem,
	}, nil
}

// SetCoordinateSystem overrides the intrinsic coordinate-system identifier.
func (p *Pyramid) SetCoordinateSystem(cs string) {
	p.cs = cs
}

// CoordinateSystem returns the intrinsic coordinate-system identifier.
func (p *Pyramid) CoordinateSystem() string {
	return p.cs
}

// Levels returns the number of pyramid levels.
func (p *Pyramid) Levels() int {
	return len(p.levels)
}

// LevelDownsamples returns the scale factor of every level relative to
// level 0. The first entry is always 1.
func (p *Pyramid) LevelDownsamples() []float64 {
	out := make([]float64, len(p.downsamples))
	copy(out, p.downsamples)
	return out
}

// Metadata returns the slide metadata.
func (p *Pyramid) Metadata() Metadata {
	return p.meta
}

// Bounds returns the level-0 extent in pixels.
func (p *Pyramid) Bounds() (width, height int) {
	b := p.levels[0].Bounds()
	return b.Dx(), b.Dy()
}

// ReadRegion extracts the sub-region covering rect (given in level-0
// coordinates) from the requested level. The rectangle is clipped to the
// image extent, so a box partially outside the image returns the available
// pixels rather than failing; callers pad if they need a fixed size.
func (p *Pyramid) ReadRegion(rect image.Rectangle, level int) (*image.NRGBA, error) {
	if level < 0 || level >= len(p.levels) {
		return nil, fmt.Errorf("level %d out of range [0,%d)", level, len(p.levels))
	}
	ds := p.downsamples[level]
	lvlRect := image.Rect(
		int(float64(rect.Min.X)/ds),
		int(float64(rect.Min.Y)/ds),
		int(float64(rect.Max.X)/ds),
		int(float64(rect.Max.Y)/ds),
	)
	lvlRect = lvlRect.Intersect(p.levels[level].Bounds())
	if lvlRect.Empty() {
		return nil, fmt.Errorf("region %v is outside the level %d extent", rect, level)
	}
	return imaging.Crop(p.levels[level], lvlRect), nil
}
