package rep

import (
	"fmt"
	"math/rand"

	"github.com/poppingtonic/eirli/internal/infrastructure/nn"
	"github.com/poppingtonic/eirli/internal/infrastructure/tensor"
)

// Decoder maps representations into the space the loss is computed in.
// ExtraContext is nil unless the pair constructor surfaced side information.
type Decoder interface {
	DecodeContext(g *tensor.Graph, r Representation, info TrajInfo, extra *tensor.Mat) (*tensor.Mat, error)
	DecodeTarget(g *tensor.Graph, r Representation, info TrajInfo, extra *tensor.Mat) (*tensor.Mat, error)
	Params() []*tensor.Mat
	SetTraining(training bool)
}

// NoOpDecoder passes the representation mean through unchanged.
type NoOpDecoder struct{}

// DecodeContext implements Decoder.
func (NoOpDecoder) DecodeContext(_ *tensor.Graph, r Representation, _ TrajInfo, _ *tensor.Mat) (*tensor.Mat, error) {
	return r.Loc, nil
}

// DecodeTarget implements Decoder.
func (NoOpDecoder) DecodeTarget(_ *tensor.Graph, r Representation, _ TrajInfo, _ *tensor.Mat) (*tensor.Mat, error) {
	return r.Loc, nil
}

// Params implements Decoder.
func (NoOpDecoder) Params() []*tensor.Mat { return nil }

// SetTraining implements Decoder.
func (NoOpDecoder) SetTraining(bool) {}

// ProjectionHead projects context and target through one shared MLP.
type ProjectionHead struct {
	net *nn.MLP
}

// NewProjectionHead builds a two-layer head from representation space to
// projection space.
func NewProjectionHead(repDim, projDim int, rng *rand.Rand) *ProjectionHead {
	return &ProjectionHead{net: nn.NewMLP([]int{repDim, repDim, projDim}, rng)}
}

// DecodeContext implements Decoder.
func (p *ProjectionHead) DecodeContext(g *tensor.Graph, r Representation, _ TrajInfo, _ *tensor.Mat) (*tensor.Mat, error) {
	return p.net.Forward(g, r.Loc), nil
}

// DecodeTarget implements Decoder.
func (p *ProjectionHead) DecodeTarget(g *tensor.Graph, r Representation, _ TrajInfo, _ *tensor.Mat) (*tensor.Mat, error) {
	return p.net.Forward(g, r.Loc), nil
}

// Params implements Decoder.
func (p *ProjectionHead) Params() []*tensor.Mat { return p.net.Params() }

// SetTraining implements Decoder.
func (p *ProjectionHead) SetTraining(bool) {}

// TargetProjection projects only the target; the context mean passes
// through unchanged. Requires the projection dimension to equal the
// representation dimension, checked at construction.
type TargetProjection struct {
	net *nn.MLP
}

// NewTargetProjection builds the asymmetric target-only head.
func NewTargetProjection(repDim, projDim int, rng *rand.Rand) (*TargetProjection, error) {
	if projDim != repDim {
		return nil, fmt.Errorf("target projection passes contexts through unprojected, projection dim %d must equal representation dim %d", projDim, repDim)
	}
	return &TargetProjection{net: nn.NewMLP([]int{repDim, repDim, projDim}, rng)}, nil
}

// DecodeContext implements Decoder.
func (p *TargetProjection) DecodeContext(_ *tensor.Graph, r Representation, _ TrajInfo, _ *tensor.Mat) (*tensor.Mat, error) {
	return r.Loc, nil
}

// DecodeTarget implements Decoder.
func (p *TargetProjection) DecodeTarget(g *tensor.Graph, r Representation, _ TrajInfo, _ *tensor.Mat) (*tensor.Mat, error) {
	return p.net.Forward(g, r.Loc), nil
}

// Params implements Decoder.
func (p *TargetProjection) Params() []*tensor.Mat { return p.net.Params() }

// SetTraining implements Decoder.
func (p *TargetProjection) SetTraining(bool) {}

// MomentumProjectionHead mirrors the momentum encoder protocol at the
// decoder stage: contexts go through a gradient-trained query head, targets
// through an EMA key head updated exactly once per DecodeTarget call.
type MomentumProjectionHead struct {
	query          *nn.MLP
	key            *nn.MLP
	momentumWeight float64
}

// NewMomentumProjectionHead clones the query head into the key head.
func NewMomentumProjectionHead(repDim, projDim int, momentumWeight float64, rng *rand.Rand) (*MomentumProjectionHead, error) {
	if momentumWeight < 0 || momentumWeight >= 1 {
		return nil, fmt.Errorf("momentum weight must be in [0,1), got %v", momentumWeight)
	}
	query := nn.NewMLP([]int{repDim, repDim, projDim}, rng)
	key := nn.NewMLP([]int{repDim, repDim, projDim}, rng)
	qp, kp := query.Params(), key.Params()
	for i := range qp {
		copy(kp[i].Data, qp[i].Data)
	}
	return &MomentumProjectionHead{query: query, key: key, momentumWeight: momentumWeight}, nil
}

// DecodeContext implements Decoder.
func (p *MomentumProjectionHead) DecodeContext(g *tensor.Graph, r Representation, _ TrajInfo, _ *tensor.Mat) (*tensor.Mat, error) {
	return p.query.Forward(g, r.Loc), nil
}

// DecodeTarget applies the EMA update and projects through the key head
// with no gradient.
func (p *MomentumProjectionHead) DecodeTarget(_ *tensor.Graph, r Representation, _ TrajInfo, _ *tensor.Mat) (*tensor.Mat, error) {
	p.momentumUpdateKey()
	noGrad := tensor.NewGraph(false)
	return p.key.Forward(noGrad, r.Loc), nil
}

func (p *MomentumProjectionHead) momentumUpdateKey() {
	qp, kp := p.query.Params(), p.key.Params()
	for i := range qp {
		q, k := qp[i].Data, kp[i].Data
		for j := range k {
			k[j] = k[j]*p.momentumWeight + q[j]*(1-p.momentumWeight)
		}
	}
}

// Params returns only the query head's parameters.
func (p *MomentumProjectionHead) Params() []*tensor.Mat { return p.query.Params() }

// SetTraining implements Decoder.
func (p *MomentumProjectionHead) SetTraining(bool) {}

// BYOLProjectionHead adds a predictor on top of the query projection, so the
// context side regresses the momentum target projection.
type BYOLProjectionHead struct {
	*MomentumProjectionHead
	predictor *nn.MLP
}

// NewBYOLProjectionHead builds the momentum pair plus the context predictor.
func NewBYOLProjectionHead(repDim, projDim int, momentumWeight float64, rng *rand.Rand) (*BYOLProjectionHead, error) {
	inner, err := NewMomentumProjectionHead(repDim, projDim, momentumWeight, rng)
	if err != nil {
		return nil, err
	}
	return &BYOLProjectionHead{
		MomentumProjectionHead: inner,
		predictor:              nn.NewMLP([]int{projDim, projDim, projDim}, rng),
	}, nil
}

// DecodeContext projects and then predicts.
func (p *BYOLProjectionHead) DecodeContext(g *tensor.Graph, r Representation, info TrajInfo, extra *tensor.Mat) (*tensor.Mat, error) {
	proj, err := p.MomentumProjectionHead.DecodeContext(g, r, info, extra)
	if err != nil {
		return nil, err
	}
	return p.predictor.Forward(g, proj), nil
}

// Params returns the query head and predictor parameters.
func (p *BYOLProjectionHead) Params() []*tensor.Mat {
	return append(p.MomentumProjectionHead.Params(), p.predictor.Params()...)
}

// PixelDecoder regresses raw future pixels: the context representation is
// concatenated with an action embedding and projected up to one flattened
// frame, while targets (already raw pixels from the dynamics encoder) pass
// through untouched.
type PixelDecoder struct {
	actionEmbed *nn.Linear
	net         *nn.MLP
}

// NewPixelDecoder builds the action embedding and the up-projection to
// pixelDim, the flattened frame size.
func NewPixelDecoder(repDim, actionDim, embedDim, pixelDim int, rng *rand.Rand) (*PixelDecoder, error) {
	if actionDim <= 0 {
		return nil, fmt.Errorf("pixel decoder requires a positive action dim, got %d", actionDim)
	}
	if embedDim <= 0 {
		return nil, fmt.Errorf("action embedding dim must be positive, got %d", embedDim)
	}
	if pixelDim <= 0 {
		return nil, fmt.Errorf("pixel dim must be positive, got %d", pixelDim)
	}
	return &PixelDecoder{
		actionEmbed: nn.NewLinear(actionDim, embedDim, rng),
		net:         nn.NewMLP([]int{repDim + embedDim, repDim, pixelDim}, rng),
	}, nil
}

// DecodeContext implements Decoder.
func (d *PixelDecoder) DecodeContext(g *tensor.Graph, r Representation, _ TrajInfo, extra *tensor.Mat) (*tensor.Mat, error) {
	if extra == nil {
		return nil, fmt.Errorf("pixel decoder requires the action as extra context, none was provided")
	}
	emb := d.actionEmbed.Forward(g, extra)
	return d.net.Forward(g, g.ConcatCols(r.Loc, emb)), nil
}

// DecodeTarget implements Decoder.
func (d *PixelDecoder) DecodeTarget(_ *tensor.Graph, r Representation, _ TrajInfo, _ *tensor.Mat) (*tensor.Mat, error) {
	return r.Loc, nil
}

// Params implements Decoder.
func (d *PixelDecoder) Params() []*tensor.Mat {
	return append(d.actionEmbed.Params(), d.net.Params()...)
}

// SetTraining implements Decoder.
func (d *PixelDecoder) SetTraining(bool) {}

// ActionPredictionDecoder turns the pipeline into action regression: the
// context representation is projected down to action space, and the true
// action carried in the extra context becomes the regression target.
type ActionPredictionDecoder struct {
	net *nn.MLP
}

// NewActionPredictionDecoder builds the action predictor head.
func NewActionPredictionDecoder(repDim, actionDim int, rng *rand.Rand) (*ActionPredictionDecoder, error) {
	if actionDim <= 0 {
		return nil, fmt.Errorf("action prediction requires a positive action dim, got %d", actionDim)
	}
	return &ActionPredictionDecoder{net: nn.NewMLP([]int{repDim, repDim, actionDim}, rng)}, nil
}

// DecodeContext implements Decoder.
func (d *ActionPredictionDecoder) DecodeContext(g *tensor.Graph, r Representation, _ TrajInfo, extra *tensor.Mat) (*tensor.Mat, error) {
	if extra == nil {
		return nil, fmt.Errorf("action prediction requires the action as extra context, none was provided")
	}
	return d.net.Forward(g, r.Loc), nil
}

// DecodeTarget returns the true actions; the target representation only
// anchors the batch shape.
func (d *ActionPredictionDecoder) DecodeTarget(_ *tensor.Graph, r Representation, _ TrajInfo, extra *tensor.Mat) (*tensor.Mat, error) {
	if extra == nil {
		return nil, fmt.Errorf("action prediction requires the action as extra context, none was provided")
	}
	if extra.Rows != r.Loc.Rows {
		return nil, fmt.Errorf("extra context has %d rows, target batch has %d", extra.Rows, r.Loc.Rows)
	}
	return extra.Clone(), nil
}

// Params implements Decoder.
func (d *ActionPredictionDecoder) Params() []*tensor.Mat { return d.net.Params() }

// SetTraining implements Decoder.
func (d *ActionPredictionDecoder) SetTraining(bool) {}

// ActionConditionedDecoder concatenates an embedding of the action in the
// extra context onto the context representation before projecting. Targets
// go through a separate plain head. Missing extra context is a fatal call
// error: the decoder cannot condition on nothing.
type ActionConditionedDecoder struct {
	actionEmbed *nn.Linear
	contextNet  *nn.MLP
	targetNet   *nn.MLP
}

// NewActionConditionedDecoder builds the action embedding and both heads.
func NewActionConditionedDecoder(repDim, projDim, actionDim, embedDim int, rng *rand.Rand) (*ActionConditionedDecoder, error) {
	if actionDim <= 0 {
		return nil, fmt.Errorf("action-conditioned decoder requires a positive action dim, got %d", actionDim)
	}
	if embedDim <= 0 {
		return nil, fmt.Errorf("action embedding dim must be positive, got %d", embedDim)
	}
	return &ActionConditionedDecoder{
		actionEmbed: nn.NewLinear(actionDim, embedDim, rng),
		contextNet:  nn.NewMLP([]int{repDim + embedDim, repDim, projDim}, rng),
		targetNet:   nn.NewMLP([]int{repDim, projDim}, rng),
	}, nil
}

// DecodeContext implements Decoder.
func (d *ActionConditionedDecoder) DecodeContext(g *tensor.Graph, r Representation, _ TrajInfo, extra *tensor.Mat) (*tensor.Mat, error) {
	if extra == nil {
		return nil, fmt.Errorf("action-conditioned decoder requires extra context, none was provided")
	}
	emb := d.actionEmbed.Forward(g, extra)
	return d.contextNet.Forward(g, g.ConcatCols(r.Loc, emb)), nil
}

// DecodeTarget implements Decoder.
func (d *ActionConditionedDecoder) DecodeTarget(g *tensor.Graph, r Representation, _ TrajInfo, _ *tensor.Mat) (*tensor.Mat, error) {
	return d.targetNet.Forward(g, r.Loc), nil
}

// Params implements Decoder.
func (d *ActionConditionedDecoder) Params() []*tensor.Mat {
	params := d.actionEmbed.Params()
	params = append(params, d.contextNet.Params()...)
	return append(params, d.targetNet.Params()...)
}

// SetTraining implements Decoder.
func (d *ActionConditionedDecoder) SetTraining(bool) {}
