package rep

import (
	"fmt"
	"math/rand"

	domain "github.com/poppingtonic/eirli/internal/domain/rep"
	"github.com/poppingtonic/eirli/internal/infrastructure/tensor"
)

// MomentumEncoder owns a gradient-trained query encoder and a structurally
// identical key encoder whose parameters are a standing exponential moving
// average of the query's. The key network is never touched by the optimizer:
// Params returns only query parameters, and key parameters are mutated
// solely by the EMA rule, exactly once per target-encoding call.
type MomentumEncoder struct {
	query          *CNNEncoder
	key            *CNNEncoder
	momentumWeight float64
}

// NewMomentumEncoder clones the query architecture into the key network and
// copies the initial parameter values, then hands key ownership to the EMA
// update.
func NewMomentumEncoder(shape domain.FrameShape, repDim int, arch domain.Architecture, learnScale bool, momentumWeight float64, rng *rand.Rand) (*MomentumEncoder, error) {
	if momentumWeight < 0 || momentumWeight >= 1 {
		return nil, fmt.Errorf("momentum weight must be in [0,1), got %v", momentumWeight)
	}
	query, err := NewCNNEncoder(shape, repDim, arch, learnScale, rng)
	if err != nil {
		return nil, err
	}
	key, err := NewCNNEncoder(shape, repDim, arch, learnScale, rng)
	if err != nil {
		return nil, err
	}
	qp, kp := query.Params(), key.Params()
	for i := range qp {
		copy(kp[i].Data, qp[i].Data)
	}
	return &MomentumEncoder{query: query, key: key, momentumWeight: momentumWeight}, nil
}

// EncodeContext always routes through the query encoder.
func (e *MomentumEncoder) EncodeContext(g *tensor.Graph, x *tensor.Mat, info TrajInfo) (Representation, error) {
	return e.query.EncodeContext(g, x, info)
}

// EncodeTarget applies one EMA update to the key network, then encodes the
// target with the updated key under a no-gradient graph.
func (e *MomentumEncoder) EncodeTarget(_ *tensor.Graph, x *tensor.Mat, info TrajInfo) (Representation, error) {
	e.momentumUpdateKey()
	noGrad := tensor.NewGraph(false)
	return e.key.EncodeTarget(noGrad, x, info)
}

// momentumUpdateKey applies key <- m*key + (1-m)*query for every parameter
// pair, in lockstep.
func (e *MomentumEncoder) momentumUpdateKey() {
	qp, kp := e.query.Params(), e.key.Params()
	for i := range qp {
		q, k := qp[i].Data, kp[i].Data
		for j := range k {
			k[j] = k[j]*e.momentumWeight + q[j]*(1-e.momentumWeight)
		}
	}
}

// EncodeExtraContext passes extra context through unchanged.
func (e *MomentumEncoder) EncodeExtraContext(_ *tensor.Graph, x *tensor.Mat, _ TrajInfo) (*tensor.Mat, error) {
	return x, nil
}

// Params returns only the query encoder's parameters for optimization.
func (e *MomentumEncoder) Params() []*tensor.Mat { return e.query.Params() }

// SetTraining switches both networks between train and eval mode.
func (e *MomentumEncoder) SetTraining(training bool) {
	e.query.SetTraining(training)
	e.key.SetTraining(training)
}
