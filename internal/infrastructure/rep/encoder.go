package rep

import (
	"fmt"
	"math/rand"

	domain "github.com/poppingtonic/eirli/internal/domain/rep"
	"github.com/poppingtonic/eirli/internal/infrastructure/nn"
	"github.com/poppingtonic/eirli/internal/infrastructure/tensor"
)

// Encoder maps observation batches to probabilistic representations.
// EncodeExtraContext is the identity unless a variant overrides it.
type Encoder interface {
	EncodeContext(g *tensor.Graph, x *tensor.Mat, info TrajInfo) (Representation, error)
	EncodeTarget(g *tensor.Graph, x *tensor.Mat, info TrajInfo) (Representation, error)
	EncodeExtraContext(g *tensor.Graph, x *tensor.Mat, info TrajInfo) (*tensor.Mat, error)
	Params() []*tensor.Mat
	SetTraining(training bool)
}

// CNNEncoder is the convolutional frame encoder: conv stack, dense stack,
// mean head, and an optional learned scale head (exp-activated). Without a
// scale head the representation has fixed unit scale.
type CNNEncoder struct {
	shape     domain.FrameShape
	repDim    int
	convs     []*nn.Conv2D
	dense     []*nn.Linear
	meanHead  *nn.Linear
	scaleHead *nn.Linear // nil for deterministic encoders
	training  bool
}

// NewCNNEncoder builds the encoder and verifies the architecture fits the
// observation shape; a kernel larger than its input plane is a
// configuration error.
func NewCNNEncoder(shape domain.FrameShape, repDim int, arch domain.Architecture, learnScale bool, rng *rand.Rand) (*CNNEncoder, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	if repDim <= 0 {
		return nil, fmt.Errorf("representation dim must be positive, got %d", repDim)
	}
	e := &CNNEncoder{shape: shape, repDim: repDim, training: true}

	inC, h, w := shape.C, shape.H, shape.W
	for i, spec := range arch.Conv {
		conv := nn.NewConv2D(inC, spec.OutChannels, spec.Kernel, spec.Stride, rng)
		var err error
		if h, err = conv.OutSize(h); err != nil {
			return nil, fmt.Errorf("conv layer %d: %w", i, err)
		}
		if w, err = conv.OutSize(w); err != nil {
			return nil, fmt.Errorf("conv layer %d: %w", i, err)
		}
		e.convs = append(e.convs, conv)
		inC = spec.OutChannels
	}
	flat := inC * h * w
	in := flat
	for _, width := range arch.Dense {
		e.dense = append(e.dense, nn.NewLinear(in, width, rng))
		in = width
	}
	e.meanHead = nn.NewLinear(in, repDim, rng)
	if learnScale {
		e.scaleHead = nn.NewLinear(in, repDim, rng)
	}
	return e, nil
}

// forward runs the full stack on a batch of flattened CHW frames.
func (e *CNNEncoder) forward(g *tensor.Graph, x *tensor.Mat) Representation {
	h := g.Scale(x, 1/MaxPixelValue)
	height, width := e.shape.H, e.shape.W
	for _, conv := range e.convs {
		h, height, width = conv.Forward(g, h, height, width)
		h = g.Relu(h)
	}
	for _, dense := range e.dense {
		h = g.Relu(dense.Forward(g, h))
	}
	mean := e.meanHead.Forward(g, h)
	if e.scaleHead == nil {
		return Representation{Loc: mean, Scale: UnitScale(mean.Rows, mean.Cols)}
	}
	if !e.training {
		// Eval mode collapses the distribution so any sample is the mean.
		return Representation{Loc: mean, Scale: ZeroScale(mean.Rows, mean.Cols)}
	}
	return Representation{Loc: mean, Scale: g.Exp(e.scaleHead.Forward(g, h))}
}

// EncodeContext implements Encoder.
func (e *CNNEncoder) EncodeContext(g *tensor.Graph, x *tensor.Mat, _ TrajInfo) (Representation, error) {
	return e.forward(g, x), nil
}

// EncodeTarget implements Encoder.
func (e *CNNEncoder) EncodeTarget(g *tensor.Graph, x *tensor.Mat, _ TrajInfo) (Representation, error) {
	return e.forward(g, x), nil
}

// EncodeExtraContext passes extra context through unchanged.
func (e *CNNEncoder) EncodeExtraContext(_ *tensor.Graph, x *tensor.Mat, _ TrajInfo) (*tensor.Mat, error) {
	return x, nil
}

// Params returns all trainable parameters.
func (e *CNNEncoder) Params() []*tensor.Mat {
	var params []*tensor.Mat
	for _, c := range e.convs {
		params = append(params, c.Params()...)
	}
	for _, d := range e.dense {
		params = append(params, d.Params()...)
	}
	params = append(params, e.meanHead.Params()...)
	if e.scaleHead != nil {
		params = append(params, e.scaleHead.Params()...)
	}
	return params
}

// SetTraining switches the encoder between train and eval mode.
func (e *CNNEncoder) SetTraining(training bool) { e.training = training }

// RepresentationDim returns the output dimensionality.
func (e *CNNEncoder) RepresentationDim() int { return e.repDim }

// DynamicsEncoder encodes contexts with the CNN but returns the raw pixel
// target itself as a zero-scale ground-truth "representation", for
// objectives that predict future pixels directly.
type DynamicsEncoder struct {
	*CNNEncoder
}

// NewDynamicsEncoder wraps a CNN encoder with the ground-truth target rule.
func NewDynamicsEncoder(inner *CNNEncoder) *DynamicsEncoder {
	return &DynamicsEncoder{CNNEncoder: inner}
}

// EncodeTarget returns the raw target pixels with zero scale. This is
// intentional, not an error: the target is ground truth, not a learned
// encoding.
func (e *DynamicsEncoder) EncodeTarget(_ *tensor.Graph, x *tensor.Mat, _ TrajInfo) (Representation, error) {
	return Representation{Loc: x.Clone(), Scale: ZeroScale(x.Rows, x.Cols)}, nil
}

// InverseDynamicsEncoder encodes both halves of a temporally offset pair with
// the shared CNN; the connecting action rides through as extra context for
// the decoder stage.
type InverseDynamicsEncoder struct {
	*CNNEncoder
}

// NewInverseDynamicsEncoder wraps a CNN encoder.
func NewInverseDynamicsEncoder(inner *CNNEncoder) *InverseDynamicsEncoder {
	return &InverseDynamicsEncoder{CNNEncoder: inner}
}
