package rep

import (
	"fmt"
	"math/rand"

	domain "github.com/poppingtonic/eirli/internal/domain/rep"
	"github.com/poppingtonic/eirli/internal/infrastructure/nn"
	"github.com/poppingtonic/eirli/internal/infrastructure/tensor"
)

// RecurrentEncoder encodes each frame with a per-frame CNN, rebuilds the
// per-trajectory sequences of the batch, zero-pads every sequence to the
// batch size, aggregates each sequence with a multi-layer GRU, and
// un-pads the hidden outputs back into a flat batch aligned with the
// original sample order.
//
// Preconditions, both fatal: every trajectory's rows must arrive sorted by
// timestep, and the mean trajectory length in the batch must reach
// MinTrajSize. Targets bypass aggregation and use only the frame encoder.
type RecurrentEncoder struct {
	frameEncoder *CNNEncoder
	aggregator   *nn.GRU
	minTrajSize  int
}

// NewRecurrentEncoder builds the per-frame encoder and the sequence
// aggregator.
func NewRecurrentEncoder(shape domain.FrameShape, repDim, singleFrameDim, layers, minTrajSize int, arch domain.Architecture, learnScale bool, rng *rand.Rand) (*RecurrentEncoder, error) {
	if minTrajSize <= 0 {
		return nil, fmt.Errorf("minimum trajectory size must be positive, got %d", minTrajSize)
	}
	frame, err := NewCNNEncoder(shape, singleFrameDim, arch, learnScale, rng)
	if err != nil {
		return nil, err
	}
	return &RecurrentEncoder{
		frameEncoder: frame,
		aggregator:   nn.NewGRU(singleFrameDim, repDim, layers, rng),
		minTrajSize:  minTrajSize,
	}, nil
}

// trajGroup is one trajectory's contiguous row span within a batch.
type trajGroup struct {
	id   int
	rows []int
}

// groupTrajectories splits batch rows by trajectory id, preserving order of
// first appearance, and enforces the sorted-timestep precondition.
func groupTrajectories(info TrajInfo, batchRows int) ([]trajGroup, error) {
	if len(info.TrajIDs) != batchRows || len(info.Timesteps) != batchRows {
		return nil, fmt.Errorf("trajectory info covers %d rows, batch has %d", len(info.TrajIDs), batchRows)
	}
	var groups []trajGroup
	index := map[int]int{}
	for row, id := range info.TrajIDs {
		gi, ok := index[id]
		if !ok {
			gi = len(groups)
			index[id] = gi
			groups = append(groups, trajGroup{id: id})
		}
		g := &groups[gi]
		if n := len(g.rows); n > 0 {
			prev := g.rows[n-1]
			if info.Timesteps[row] < info.Timesteps[prev] {
				return nil, fmt.Errorf("trajectory %d timesteps are not sorted: %d after %d; batches must be sorted by trajectory and timestep",
					id, info.Timesteps[row], info.Timesteps[prev])
			}
		}
		g.rows = append(g.rows, row)
	}
	return groups, nil
}

// EncodeContext implements the padded, masked sequence aggregation.
func (e *RecurrentEncoder) EncodeContext(g *tensor.Graph, x *tensor.Mat, info TrajInfo) (Representation, error) {
	z := e.frameEncoder.forward(g, x).Loc
	groups, err := groupTrajectories(info, z.Rows)
	if err != nil {
		return Representation{}, err
	}

	total := 0
	for _, grp := range groups {
		total += len(grp.rows)
	}
	if mean := float64(total) / float64(len(groups)); mean < float64(e.minTrajSize) {
		return Representation{}, fmt.Errorf("batch mean trajectory length %.2f is below the minimum %d", mean, e.minTrajSize)
	}

	// One matrix per timestep, one row per trajectory; sequences shorter
	// than the batch size are zero-padded.
	batchSize := z.Rows
	zeroRow := tensor.NewMat(1, z.Cols)
	steps := make([]*tensor.Mat, batchSize)
	for t := 0; t < batchSize; t++ {
		parts := make([]*tensor.Mat, len(groups))
		for gi, grp := range groups {
			if t < len(grp.rows) {
				parts[gi] = g.GatherRows(z, grp.rows[t:t+1])
			} else {
				parts[gi] = zeroRow
			}
		}
		steps[t] = g.ConcatRows(parts...)
	}

	hiddens := e.aggregator.Forward(g, steps)
	stacked := g.ConcatRows(hiddens...) // row t*len(groups)+gi = trajectory gi at step t

	// Un-pad: original batch row -> (group, position within group).
	picks := make([]int, batchSize)
	for gi, grp := range groups {
		for pos, row := range grp.rows {
			picks[row] = pos*len(groups) + gi
		}
	}
	out := g.GatherRows(stacked, picks)
	return Representation{Loc: out, Scale: UnitScale(out.Rows, out.Cols)}, nil
}

// EncodeTarget uses only the per-frame encoder; targets are single frames,
// not sequences.
func (e *RecurrentEncoder) EncodeTarget(g *tensor.Graph, x *tensor.Mat, _ TrajInfo) (Representation, error) {
	return e.frameEncoder.forward(g, x), nil
}

// EncodeExtraContext passes extra context through unchanged.
func (e *RecurrentEncoder) EncodeExtraContext(_ *tensor.Graph, x *tensor.Mat, _ TrajInfo) (*tensor.Mat, error) {
	return x, nil
}

// Params returns frame-encoder and aggregator parameters.
func (e *RecurrentEncoder) Params() []*tensor.Mat {
	return append(e.frameEncoder.Params(), e.aggregator.Params()...)
}

// SetTraining switches the encoder between train and eval mode.
func (e *RecurrentEncoder) SetTraining(training bool) { e.frameEncoder.SetTraining(training) }
