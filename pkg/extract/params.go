package extract

import (
	"errors"
	"log/slog"
	"math"

	"github.com/slidekit/patchembed/pkg/pyramid"
)

// ErrUnresolvedMagnification is returned when a target magnification was
// requested but the slide metadata carries neither an objective power nor a
// microns-per-pixel value. This is terminal for the whole run, not a
// per-patch condition.
var ErrUnresolvedMagnification = errors.New("cannot resolve magnification: metadata has no objective power or mpp-x")

// levelEpsilon absorbs floating-point noise in stored downsample factors.
const levelEpsilon = 0.01

// referenceObjectives are the objective powers a microns-per-pixel value is
// matched against (10/power approximates the mpp of that objective).
var referenceObjectives = []float64{80, 40, 20, 10, 5}

// LevelUnset marks the Level option as not provided.
const LevelUnset = -1

// Params is the extraction geometry derived once per run.
type Params struct {
	// Level is the pyramid level patches are read from.
	Level int
	// ResizeFactor corrects the residual scale mismatch after picking the
	// nearest coarser level. 1 means no resampling.
	ResizeFactor float64
	// PatchWidth is the patch width in level-0 pixels. When a magnification
	// is requested this is the logical patch width scaled by the downsample.
	PatchWidth int
	// Downsample is the ratio between level-0 resolution and the target
	// magnification. 1 when no magnification was requested.
	Downsample float64
}

// Selector resolves a target magnification or an explicit level into
// concrete extraction parameters.
type Selector struct {
	Logger *slog.Logger
}

// Select derives the extraction parameters for a run.
//
// level is a pyramid level or LevelUnset; magnification is an
// objective-equivalent target or 0 when unset. When both are unset the
// selector falls back to level 0 and logs a warning. When a magnification
// cannot be resolved from the metadata, ErrUnresolvedMagnification is
// returned and the caller must abort the run.
func (s Selector) Select(meta pyramid.Metadata, levelDownsamples []float64, patchWidth, level int, magnification float64) (Params, error) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if level == LevelUnset && magnification == 0 {
		logger.Warn("both level and magnification are unset, using level=0 by default")
		level = 0
	}

	if magnification == 0 {
		return Params{Level: level, ResizeFactor: 1, PatchWidth: patchWidth, Downsample: 1}, nil
	}

	var downsample float64
	switch {
	case meta.ObjectivePower > 0:
		downsample = meta.ObjectivePower / magnification
	case meta.MPPX > 0:
		downsample = matchObjective(meta.MPPX) / magnification
	default:
		return Params{}, ErrUnresolvedMagnification
	}

	best := bestLevelForDownsample(levelDownsamples, downsample)
	return Params{
		Level:        best,
		ResizeFactor: levelDownsamples[best] / downsample,
		PatchWidth:   int(math.Round(float64(patchWidth) * downsample)),
		Downsample:   downsample,
	}, nil
}

// matchObjective derives a reference objective power from a
// microns-per-pixel value by nearest match.
func matchObjective(mppx float64) float64 {
	best := referenceObjectives[0]
	bestDist := math.Abs(10/best - mppx)
	for _, obj := range referenceObjectives[1:] {
		if d := math.Abs(10/obj - mppx); d < bestDist {
			best, bestDist = obj, d
		}
	}
	return best
}

// bestLevelForDownsample returns the largest level whose downsample factor
// does not exceed the target. Targets at or below native resolution always
// map to level 0.
func bestLevelForDownsample(levelDownsamples []float64, downsample float64) int {
	if downsample <= 1.0 {
		return 0
	}
	for level, ds := range levelDownsamples {
		if ds > downsample+levelEpsilon {
			return level - 1
		}
	}
	return len(levelDownsamples) - 1
}
