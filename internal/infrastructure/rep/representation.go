// Package rep provides the representation-learning component families:
// pair constructors, augmenters, encoders, decoders, batch extenders and
// loss calculators, plus the checkpoint writer.
package rep

import (
	"github.com/poppingtonic/eirli/internal/infrastructure/tensor"
)

// MaxPixelValue is the divisor applied to raw observations before they enter
// a convolution stack.
const MaxPixelValue = 255.0

// Representation is a probabilistic latent: a location and a per-dimension
// scale, one row per sample. Deterministic encoders produce unit scale;
// ground-truth pixel "representations" produce zero scale. Produced fresh
// per forward pass and never mutated.
type Representation struct {
	Loc   *tensor.Mat
	Scale *tensor.Mat
}

// UnitScale returns a constant all-ones scale matrix.
func UnitScale(rows, cols int) *tensor.Mat {
	m := tensor.NewMat(rows, cols)
	for i := range m.Data {
		m.Data[i] = 1
	}
	return m
}

// ZeroScale returns a constant all-zeros scale matrix.
func ZeroScale(rows, cols int) *tensor.Mat {
	return tensor.NewMat(rows, cols)
}

// TrajInfo carries the trajectory and timestep identifiers aligned with the
// rows of a batch.
type TrajInfo struct {
	TrajIDs   []int
	Timesteps []int
}
