package rep

import (
	"fmt"
	"math/rand"

	domain "github.com/poppingtonic/eirli/internal/domain/rep"
)

// NewEncoder builds the encoder variant named by the config. Unknown kinds
// are configuration errors.
func NewEncoder(cfg domain.LearnerConfig, shape domain.FrameShape, rng *rand.Rand) (Encoder, error) {
	switch cfg.Encoder {
	case domain.EncoderDeterministic:
		return NewCNNEncoder(shape, cfg.RepresentationDim, cfg.Architecture, false, rng)
	case domain.EncoderStochastic:
		return NewCNNEncoder(shape, cfg.RepresentationDim, cfg.Architecture, true, rng)
	case domain.EncoderMomentum:
		return NewMomentumEncoder(shape, cfg.RepresentationDim, cfg.Architecture, cfg.LearnScale, cfg.MomentumWeight, rng)
	case domain.EncoderRecurrent:
		return NewRecurrentEncoder(shape, cfg.RepresentationDim, cfg.EffectiveSingleFrameDim(),
			cfg.RecurrentLayers, cfg.MinTrajSize, cfg.Architecture, cfg.LearnScale, rng)
	case domain.EncoderDynamics:
		inner, err := NewCNNEncoder(shape, cfg.RepresentationDim, cfg.Architecture, cfg.LearnScale, rng)
		if err != nil {
			return nil, err
		}
		return NewDynamicsEncoder(inner), nil
	case domain.EncoderInverseDynamics:
		inner, err := NewCNNEncoder(shape, cfg.RepresentationDim, cfg.Architecture, cfg.LearnScale, rng)
		if err != nil {
			return nil, err
		}
		return NewInverseDynamicsEncoder(inner), nil
	default:
		return nil, fmt.Errorf("unknown encoder kind %q", cfg.Encoder)
	}
}

// NewDecoder builds the decoder variant named by the config. The frame
// shape sizes the pixel decoder's output.
func NewDecoder(cfg domain.LearnerConfig, shape domain.FrameShape, rng *rand.Rand) (Decoder, error) {
	repDim := cfg.RepresentationDim
	projDim := cfg.EffectiveProjectionDim()
	switch cfg.Decoder {
	case domain.DecoderNone:
		return NoOpDecoder{}, nil
	case domain.DecoderProjection:
		return NewProjectionHead(repDim, projDim, rng), nil
	case domain.DecoderTargetProjection:
		return NewTargetProjection(repDim, projDim, rng)
	case domain.DecoderMomentumProjection:
		return NewMomentumProjectionHead(repDim, projDim, cfg.MomentumWeight, rng)
	case domain.DecoderBYOLProjection:
		return NewBYOLProjectionHead(repDim, projDim, cfg.MomentumWeight, rng)
	case domain.DecoderActionConditioned:
		return NewActionConditionedDecoder(repDim, projDim, cfg.ActionDim, cfg.ActionEmbeddingDim, rng)
	case domain.DecoderPixel:
		return NewPixelDecoder(repDim, cfg.ActionDim, cfg.ActionEmbeddingDim, shape.Size(), rng)
	case domain.DecoderActionPrediction:
		return NewActionPredictionDecoder(repDim, cfg.ActionDim, rng)
	default:
		return nil, fmt.Errorf("unknown decoder kind %q", cfg.Decoder)
	}
}

// NewLossCalculator builds the loss variant named by the config.
func NewLossCalculator(cfg domain.LearnerConfig, rng *rand.Rand) (LossCalculator, error) {
	switch cfg.Loss {
	case domain.LossSymmetricContrastive:
		return NewSymmetricContrastiveLoss(cfg.Temperature)
	case domain.LossBatchAsymmetric, domain.LossQueueAsymmetric:
		// The queue variant differs only in the batch extender feeding it.
		return NewAsymmetricContrastiveLoss(cfg.Temperature)
	case domain.LossMSE:
		return MSELoss{}, nil
	case domain.LossCEB:
		return NewCEBLoss(cfg.CEBBeta, rng)
	default:
		return nil, fmt.Errorf("unknown loss kind %q", cfg.Loss)
	}
}

// NewBatchExtender builds the extender variant named by the config.
func NewBatchExtender(cfg domain.LearnerConfig) (BatchExtender, error) {
	switch cfg.BatchExtender {
	case domain.ExtenderIdentity:
		return IdentityBatchExtender{}, nil
	case domain.ExtenderQueue:
		return NewQueueBatchExtender(cfg.QueueCapacity, cfg.EffectiveProjectionDim())
	default:
		return nil, fmt.Errorf("unknown batch extender kind %q", cfg.BatchExtender)
	}
}
