package rep

import (
	"fmt"
	"math"
	"math/rand"

	domain "github.com/poppingtonic/eirli/internal/domain/rep"
)

// Augmenter applies stochastic image transforms to a batch of (context,
// target) frames. Implementations return new slices; inputs are never
// mutated. Every transform draws its parameters independently per sample so
// the loss cannot exploit batch-shared augmentation as a shortcut.
type Augmenter interface {
	Augment(rng *rand.Rand, contexts, targets [][]float64, shape domain.FrameShape) ([][]float64, [][]float64)
}

// NoAugmentation passes copies of both batches through unchanged.
type NoAugmentation struct{}

// Augment implements Augmenter.
func (NoAugmentation) Augment(_ *rand.Rand, contexts, targets [][]float64, _ domain.FrameShape) ([][]float64, [][]float64) {
	return copyFrames(contexts), copyFrames(targets)
}

// AugmentContextOnly transforms the context batch and copies targets through.
type AugmentContextOnly struct{}

// Augment implements Augmenter.
func (AugmentContextOnly) Augment(rng *rand.Rand, contexts, targets [][]float64, shape domain.FrameShape) ([][]float64, [][]float64) {
	return augmentBatch(rng, contexts, shape), copyFrames(targets)
}

// AugmentContextAndTarget transforms both batches, independently.
type AugmentContextAndTarget struct{}

// Augment implements Augmenter.
func (AugmentContextAndTarget) Augment(rng *rand.Rand, contexts, targets [][]float64, shape domain.FrameShape) ([][]float64, [][]float64) {
	return augmentBatch(rng, contexts, shape), augmentBatch(rng, targets, shape)
}

// NewAugmenter builds the configured augmenter.
func NewAugmenter(kind domain.AugmenterKind) (Augmenter, error) {
	switch kind {
	case domain.AugmentNone:
		return NoAugmentation{}, nil
	case domain.AugmentContextOnly:
		return AugmentContextOnly{}, nil
	case domain.AugmentContextAndTarget:
		return AugmentContextAndTarget{}, nil
	default:
		return nil, fmt.Errorf("unknown augmenter %q", kind)
	}
}

func copyFrames(frames [][]float64) [][]float64 {
	out := make([][]float64, len(frames))
	for i, f := range frames {
		out[i] = append([]float64(nil), f...)
	}
	return out
}

func augmentBatch(rng *rand.Rand, frames [][]float64, shape domain.FrameShape) [][]float64 {
	out := make([][]float64, len(frames))
	for i, f := range frames {
		out[i] = augmentFrame(rng, f, shape)
	}
	return out
}

// augmentFrame applies each transform with independent probability. The
// frame is copied first; transforms work in place on the copy.
func augmentFrame(rng *rand.Rand, frame []float64, shape domain.FrameShape) []float64 {
	f := append([]float64(nil), frame...)
	if rng.Float64() < 0.5 {
		translate(rng, f, shape)
	}
	if rng.Float64() < 0.5 {
		flipHorizontal(f, shape)
	}
	if rng.Float64() < 0.3 {
		rotate(rng, f, shape)
	}
	if rng.Float64() < 0.3 {
		colorJitter(rng, f, shape)
	}
	if rng.Float64() < 0.3 {
		gaussianBlur(f, shape)
	}
	if rng.Float64() < 0.3 {
		gaussianNoise(rng, f)
	}
	if rng.Float64() < 0.2 {
		randomErase(rng, f, shape)
	}
	return f
}

// translate shifts the frame by up to 1/8 of its size in each axis,
// zero-filling the exposed border.
func translate(rng *rand.Rand, f []float64, shape domain.FrameShape) {
	maxShift := shape.H / 8
	if maxShift < 1 {
		maxShift = 1
	}
	dy := rng.Intn(2*maxShift+1) - maxShift
	dx := rng.Intn(2*maxShift+1) - maxShift
	src := append([]float64(nil), f...)
	for c := 0; c < shape.C; c++ {
		base := c * shape.H * shape.W
		for y := 0; y < shape.H; y++ {
			for x := 0; x < shape.W; x++ {
				sy, sx := y-dy, x-dx
				if sy >= 0 && sy < shape.H && sx >= 0 && sx < shape.W {
					f[base+y*shape.W+x] = src[base+sy*shape.W+sx]
				} else {
					f[base+y*shape.W+x] = 0
				}
			}
		}
	}
}

func flipHorizontal(f []float64, shape domain.FrameShape) {
	for c := 0; c < shape.C; c++ {
		base := c * shape.H * shape.W
		for y := 0; y < shape.H; y++ {
			row := f[base+y*shape.W : base+(y+1)*shape.W]
			for x, xr := 0, shape.W-1; x < xr; x, xr = x+1, xr-1 {
				row[x], row[xr] = row[xr], row[x]
			}
		}
	}
}

// rotate turns the frame by up to 15 degrees about its center,
// nearest-neighbor sampled, zero-filling pixels that fall outside.
func rotate(rng *rand.Rand, f []float64, shape domain.FrameShape) {
	angle := (rng.Float64()*2 - 1) * math.Pi / 12
	sin, cos := math.Sin(angle), math.Cos(angle)
	cy, cx := float64(shape.H-1)/2, float64(shape.W-1)/2
	src := append([]float64(nil), f...)
	for c := 0; c < shape.C; c++ {
		base := c * shape.H * shape.W
		for y := 0; y < shape.H; y++ {
			for x := 0; x < shape.W; x++ {
				dy, dx := float64(y)-cy, float64(x)-cx
				sy := int(math.Round(cy + cos*dy - sin*dx))
				sx := int(math.Round(cx + sin*dy + cos*dx))
				if sy >= 0 && sy < shape.H && sx >= 0 && sx < shape.W {
					f[base+y*shape.W+x] = src[base+sy*shape.W+sx]
				} else {
					f[base+y*shape.W+x] = 0
				}
			}
		}
	}
}

// colorJitter rescales and offsets each channel independently.
func colorJitter(rng *rand.Rand, f []float64, shape domain.FrameShape) {
	plane := shape.H * shape.W
	for c := 0; c < shape.C; c++ {
		gain := 1 + (rng.Float64()-0.5)*0.4
		offset := (rng.Float64() - 0.5) * 0.2 * MaxPixelValue
		for i := c * plane; i < (c+1)*plane; i++ {
			f[i] = clampPixel(f[i]*gain + offset)
		}
	}
}

// gaussianBlur applies a 3x3 binomial kernel per channel.
func gaussianBlur(f []float64, shape domain.FrameShape) {
	kernel := [3][3]float64{{1, 2, 1}, {2, 4, 2}, {1, 2, 1}}
	src := append([]float64(nil), f...)
	plane := shape.H * shape.W
	for c := 0; c < shape.C; c++ {
		base := c * plane
		for y := 0; y < shape.H; y++ {
			for x := 0; x < shape.W; x++ {
				var sum, weight float64
				for ky := -1; ky <= 1; ky++ {
					for kx := -1; kx <= 1; kx++ {
						sy, sx := y+ky, x+kx
						if sy < 0 || sy >= shape.H || sx < 0 || sx >= shape.W {
							continue
						}
						w := kernel[ky+1][kx+1]
						sum += w * src[base+sy*shape.W+sx]
						weight += w
					}
				}
				f[base+y*shape.W+x] = sum / weight
			}
		}
	}
}

func gaussianNoise(rng *rand.Rand, f []float64) {
	const stddev = 0.02 * MaxPixelValue
	for i := range f {
		f[i] = clampPixel(f[i] + rng.NormFloat64()*stddev)
	}
}

// randomErase zeroes a random rectangle covering up to a quarter of the frame.
func randomErase(rng *rand.Rand, f []float64, shape domain.FrameShape) {
	eh := 1 + rng.Intn(maxInt(1, shape.H/2))
	ew := 1 + rng.Intn(maxInt(1, shape.W/2))
	y0 := rng.Intn(maxInt(1, shape.H-eh+1))
	x0 := rng.Intn(maxInt(1, shape.W-ew+1))
	for c := 0; c < shape.C; c++ {
		base := c * shape.H * shape.W
		for y := y0; y < y0+eh; y++ {
			for x := x0; x < x0+ew; x++ {
				f[base+y*shape.W+x] = 0
			}
		}
	}
}

func clampPixel(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > MaxPixelValue {
		return MaxPixelValue
	}
	return v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
