// Package nn provides the network layers, optimizer and learning-rate
// schedule used by the representation-learning encoders and decoders.
package nn

import (
	"math"
	"math/rand"

	"github.com/poppingtonic/eirli/internal/infrastructure/tensor"
)

// Linear is a fully connected layer y = x*W + b.
type Linear struct {
	In  int
	Out int
	W   *tensor.Mat // In x Out
	B   *tensor.Mat // 1 x Out
}

// NewLinear creates a dense layer with He-scaled uniform initialization.
func NewLinear(in, out int, rng *rand.Rand) *Linear {
	scale := math.Sqrt(2.0 / float64(in))
	return &Linear{
		In:  in,
		Out: out,
		W:   tensor.NewRandMat(in, out, rng, scale),
		B:   tensor.NewMat(1, out),
	}
}

// Forward applies the layer to a batch of row vectors.
func (l *Linear) Forward(g *tensor.Graph, x *tensor.Mat) *tensor.Mat {
	return g.AddBias(g.MatMul(x, l.W), l.B)
}

// Params returns the trainable parameters.
func (l *Linear) Params() []*tensor.Mat {
	return []*tensor.Mat{l.W, l.B}
}

// MLP is a stack of Linear layers with ReLU between them (none after the
// final layer). It is the shape every projection head in the decoder family
// takes.
type MLP struct {
	Layers []*Linear
}

// NewMLP builds an MLP from the given layer widths, e.g. dims = [in, hidden, out].
func NewMLP(dims []int, rng *rand.Rand) *MLP {
	if len(dims) < 2 {
		panic("nn: MLP needs at least input and output dims")
	}
	m := &MLP{}
	for i := 0; i+1 < len(dims); i++ {
		m.Layers = append(m.Layers, NewLinear(dims[i], dims[i+1], rng))
	}
	return m
}

// Forward applies the stack.
func (m *MLP) Forward(g *tensor.Graph, x *tensor.Mat) *tensor.Mat {
	h := x
	for i, layer := range m.Layers {
		h = layer.Forward(g, h)
		if i+1 < len(m.Layers) {
			h = g.Relu(h)
		}
	}
	return h
}

// Params returns all trainable parameters in layer order.
func (m *MLP) Params() []*tensor.Mat {
	var params []*tensor.Mat
	for _, l := range m.Layers {
		params = append(params, l.Params()...)
	}
	return params
}
