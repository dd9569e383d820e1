package nn

import (
	"math"
	"math/rand"

	"github.com/poppingtonic/eirli/internal/infrastructure/tensor"
)

// gruCell holds the gate weights for one GRU layer.
type gruCell struct {
	wz, uz, bz *tensor.Mat
	wr, ur, br *tensor.Mat
	wh, uh, bh *tensor.Mat
}

func newGRUCell(in, hidden int, rng *rand.Rand) *gruCell {
	inScale := math.Sqrt(2.0 / float64(in))
	hScale := math.Sqrt(2.0 / float64(hidden))
	return &gruCell{
		wz: tensor.NewRandMat(in, hidden, rng, inScale),
		uz: tensor.NewRandMat(hidden, hidden, rng, hScale),
		bz: tensor.NewMat(1, hidden),
		wr: tensor.NewRandMat(in, hidden, rng, inScale),
		ur: tensor.NewRandMat(hidden, hidden, rng, hScale),
		br: tensor.NewMat(1, hidden),
		wh: tensor.NewRandMat(in, hidden, rng, inScale),
		uh: tensor.NewRandMat(hidden, hidden, rng, hScale),
		bh: tensor.NewMat(1, hidden),
	}
}

// step advances the cell one timestep for a batch of rows.
func (c *gruCell) step(g *tensor.Graph, x, h *tensor.Mat) *tensor.Mat {
	z := g.Sigmoid(g.AddBias(g.Add(g.MatMul(x, c.wz), g.MatMul(h, c.uz)), c.bz))
	r := g.Sigmoid(g.AddBias(g.Add(g.MatMul(x, c.wr), g.MatMul(h, c.ur)), c.br))
	cand := g.Tanh(g.AddBias(g.Add(g.MatMul(x, c.wh), g.MatMul(g.Hadamard(r, h), c.uh)), c.bh))
	return g.Add(g.Hadamard(g.OneMinus(z), h), g.Hadamard(z, cand))
}

func (c *gruCell) params() []*tensor.Mat {
	return []*tensor.Mat{c.wz, c.uz, c.bz, c.wr, c.ur, c.br, c.wh, c.uh, c.bh}
}

// GRU is a multi-layer gated recurrent unit operating batch-first: the
// caller supplies one matrix per timestep, each holding one row per sequence.
type GRU struct {
	In     int
	Hidden int
	cells  []*gruCell
}

// NewGRU creates a stacked GRU with the given number of layers.
func NewGRU(in, hidden, layers int, rng *rand.Rand) *GRU {
	if layers < 1 {
		panic("nn: GRU needs at least one layer")
	}
	g := &GRU{In: in, Hidden: hidden}
	for i := 0; i < layers; i++ {
		layerIn := in
		if i > 0 {
			layerIn = hidden
		}
		g.cells = append(g.cells, newGRUCell(layerIn, hidden, rng))
	}
	return g
}

// Forward consumes the timestep matrices in order and returns the last
// layer's hidden state at every timestep. All timestep matrices must share
// the same row count (padded sequences).
func (u *GRU) Forward(g *tensor.Graph, steps []*tensor.Mat) []*tensor.Mat {
	if len(steps) == 0 {
		return nil
	}
	batch := steps[0].Rows
	hidden := make([]*tensor.Mat, len(u.cells))
	for i := range hidden {
		hidden[i] = tensor.NewMat(batch, u.Hidden)
	}
	outputs := make([]*tensor.Mat, 0, len(steps))
	for _, x := range steps {
		h := x
		for li, cell := range u.cells {
			hidden[li] = cell.step(g, h, hidden[li])
			h = hidden[li]
		}
		outputs = append(outputs, h)
	}
	return outputs
}

// Params returns all gate parameters across layers.
func (u *GRU) Params() []*tensor.Mat {
	var params []*tensor.Mat
	for _, c := range u.cells {
		params = append(params, c.params()...)
	}
	return params
}
