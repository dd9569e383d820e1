package rep

import (
	"fmt"
	"sort"
)

// Preset is an algorithm definition: a base configuration plus the set of
// fields the algorithm hardcodes. Overriding a controlled field is a
// configuration error, surfaced by Apply.
type Preset struct {
	Name       string
	Config     LearnerConfig
	controlled map[string]bool
}

// Overrides carries the user-tunable settings applied on top of a preset.
// Pointer fields distinguish "unset" from a deliberate zero value.
type Overrides struct {
	RepresentationDim *int
	ProjectionDim     *int
	BatchSize         *int
	Shuffle           *bool
	SaveInterval      *int
	MomentumWeight    *float64
	QueueCapacity     *int
	TemporalOffset    *int
	MinTrajSize       *int
	Temperature       *float64
	CEBBeta           *float64
	LearningRate      *float64
	ActionDim         *int
	Architecture      *Architecture
	Scheduler         *SchedulerConfig
	MaxTrainSteps     *int
	CheckpointRoot    *string
}

// componentFields are hardcoded by every preset: the component graph is what
// defines the algorithm.
var componentFields = []string{"encoder", "decoder", "loss", "augmenter", "pairConstructor", "batchExtender"}

func newPreset(name string, config LearnerConfig, extraControlled ...string) Preset {
	controlled := make(map[string]bool, len(componentFields)+len(extraControlled))
	for _, f := range componentFields {
		controlled[f] = true
	}
	for _, f := range extraControlled {
		controlled[f] = true
	}
	return Preset{Name: name, Config: config, controlled: controlled}
}

// Controls reports whether the preset hardcodes the named field.
func (p Preset) Controls(field string) bool { return p.controlled[field] }

// ControlledFields lists the hardcoded fields in sorted order.
func (p Preset) ControlledFields() []string {
	fields := make([]string, 0, len(p.controlled))
	for f := range p.controlled {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

// Apply merges user overrides into the preset configuration, rejecting any
// override of a field the preset controls with a conflicting value.
func (p Preset) Apply(o Overrides) (LearnerConfig, error) {
	cfg := p.Config
	if o.Shuffle != nil {
		if p.Controls("shuffle") && *o.Shuffle != cfg.Shuffle {
			return cfg, fmt.Errorf("preset %s hardcodes shuffle=%v, cannot override to %v", p.Name, cfg.Shuffle, *o.Shuffle)
		}
		cfg.Shuffle = *o.Shuffle
	}
	if o.QueueCapacity != nil {
		if p.Controls("batchExtender") && cfg.BatchExtender == ExtenderIdentity {
			return cfg, fmt.Errorf("preset %s uses no negative queue, cannot set queue capacity", p.Name)
		}
		cfg.QueueCapacity = *o.QueueCapacity
	}
	if o.RepresentationDim != nil {
		cfg.RepresentationDim = *o.RepresentationDim
	}
	if o.ProjectionDim != nil {
		cfg.ProjectionDim = *o.ProjectionDim
	}
	if o.BatchSize != nil {
		cfg.BatchSize = *o.BatchSize
	}
	if o.SaveInterval != nil {
		cfg.SaveInterval = *o.SaveInterval
	}
	if o.MomentumWeight != nil {
		cfg.MomentumWeight = *o.MomentumWeight
	}
	if o.TemporalOffset != nil {
		if p.Controls("pairConstructor") && cfg.PairConstructor == PairIdentity {
			return cfg, fmt.Errorf("preset %s pairs frames with themselves, temporal offset has no effect", p.Name)
		}
		cfg.TemporalOffset = *o.TemporalOffset
	}
	if o.MinTrajSize != nil {
		cfg.MinTrajSize = *o.MinTrajSize
	}
	if o.Temperature != nil {
		cfg.Temperature = *o.Temperature
	}
	if o.CEBBeta != nil {
		cfg.CEBBeta = *o.CEBBeta
	}
	if o.LearningRate != nil {
		cfg.Optimizer.LearningRate = *o.LearningRate
	}
	if o.ActionDim != nil {
		cfg.ActionDim = *o.ActionDim
	}
	if o.Architecture != nil {
		cfg.Architecture = *o.Architecture
	}
	if o.Scheduler != nil {
		cfg.Scheduler = o.Scheduler
	}
	if o.MaxTrainSteps != nil {
		cfg.MaxTrainSteps = *o.MaxTrainSteps
	}
	if o.CheckpointRoot != nil {
		cfg.CheckpointRoot = *o.CheckpointRoot
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("preset %s: %w", p.Name, err)
	}
	return cfg, nil
}

// SimCLR pushes together representations of two differently augmented views
// of the same frame with a symmetric contrastive loss.
func SimCLR() Preset {
	cfg := DefaultLearnerConfig()
	cfg.Encoder = EncoderDeterministic
	cfg.Decoder = DecoderProjection
	cfg.Loss = LossSymmetricContrastive
	cfg.Augmenter = AugmentContextAndTarget
	cfg.PairConstructor = PairIdentity
	return newPreset("SimCLR", cfg)
}

// TemporalCPC contrasts a frame against the frame a fixed offset later in
// the same trajectory.
func TemporalCPC() Preset {
	cfg := DefaultLearnerConfig()
	cfg.Encoder = EncoderDeterministic
	cfg.Decoder = DecoderNone
	cfg.Loss = LossBatchAsymmetric
	cfg.PairConstructor = PairTemporalOffset
	return newPreset("TemporalCPC", cfg)
}

// RecurrentCPC aggregates each trajectory's frames with a recurrent encoder
// before contrasting against future frames. Batches must arrive sorted by
// trajectory and timestep, so shuffling is hardcoded off.
func RecurrentCPC() Preset {
	cfg := DefaultLearnerConfig()
	cfg.Encoder = EncoderRecurrent
	cfg.Decoder = DecoderNone
	cfg.Loss = LossBatchAsymmetric
	cfg.PairConstructor = PairTemporalOffset
	cfg.Shuffle = false
	return newPreset("RecurrentCPC", cfg, "shuffle")
}

// MoCo trains a momentum dual encoder against a queue of cached negatives.
func MoCo() Preset {
	cfg := DefaultLearnerConfig()
	cfg.Encoder = EncoderMomentum
	cfg.Decoder = DecoderNone
	cfg.Loss = LossQueueAsymmetric
	cfg.Augmenter = AugmentContextAndTarget
	cfg.PairConstructor = PairTemporalOffset
	cfg.BatchExtender = ExtenderQueue
	cfg.Temperature = 0.07
	return newPreset("MoCo", cfg)
}

// MoCoWithProjection is MoCo with a momentum projection head between the
// representation and the loss.
func MoCoWithProjection() Preset {
	p := MoCo()
	p.Name = "MoCoWithProjection"
	p.Config.Decoder = DecoderMomentumProjection
	return p
}

// BYOL regresses a prediction of the momentum target projection with no
// negatives at all; the momentum path carries an implied stop-gradient.
func BYOL() Preset {
	cfg := DefaultLearnerConfig()
	cfg.Encoder = EncoderMomentum
	cfg.Decoder = DecoderBYOLProjection
	cfg.Loss = LossMSE
	cfg.Augmenter = AugmentContextAndTarget
	cfg.PairConstructor = PairIdentity
	return newPreset("BYOL", cfg)
}

// CEB trains a conditional entropy bottleneck with a learned-variance
// stochastic encoder.
func CEB() Preset {
	cfg := DefaultLearnerConfig()
	cfg.Encoder = EncoderStochastic
	cfg.Decoder = DecoderNone
	cfg.Loss = LossCEB
	cfg.Augmenter = AugmentNone
	cfg.PairConstructor = PairTemporalOffset
	cfg.LearnScale = true
	return newPreset("CEB", cfg, "learnScale")
}

// FixedVarianceCEB is CEB with unit variance instead of a learned scale.
func FixedVarianceCEB() Preset {
	cfg := DefaultLearnerConfig()
	cfg.Encoder = EncoderDeterministic
	cfg.Decoder = DecoderNone
	cfg.Loss = LossCEB
	cfg.Augmenter = AugmentContextAndTarget
	cfg.PairConstructor = PairTemporalOffset
	return newPreset("FixedVarianceCEB", cfg)
}

// FixedVarianceTargetProjectedCEB additionally projects the target before
// the bottleneck terms are computed.
func FixedVarianceTargetProjectedCEB() Preset {
	p := FixedVarianceCEB()
	p.Name = "FixedVarianceTargetProjectedCEB"
	p.Config.Decoder = DecoderTargetProjection
	return p
}

// ActionConditionedTemporalCPC conditions the context projection on an
// embedding of the actions taken between context and target, so the learned
// representation need not marginalize over the acting policy.
func ActionConditionedTemporalCPC() Preset {
	cfg := DefaultLearnerConfig()
	cfg.Encoder = EncoderDeterministic
	cfg.Decoder = DecoderActionConditioned
	cfg.Loss = LossBatchAsymmetric
	cfg.PairConstructor = PairDynamics
	cfg.PreprocessExtraContext = false
	return newPreset("ActionConditionedTemporalCPC", cfg, "preprocessExtraContext")
}

// DynamicsPrediction regresses raw future pixels conditioned on the action.
func DynamicsPrediction() Preset {
	cfg := DefaultLearnerConfig()
	cfg.Encoder = EncoderDynamics
	cfg.Decoder = DecoderPixel
	cfg.Loss = LossMSE
	cfg.Augmenter = AugmentNone
	cfg.PairConstructor = PairDynamics
	return newPreset("DynamicsPrediction", cfg)
}

// InverseDynamicsPrediction pairs temporally offset frames and regresses the
// connecting action from the context representation.
func InverseDynamicsPrediction() Preset {
	cfg := DefaultLearnerConfig()
	cfg.Encoder = EncoderInverseDynamics
	cfg.Decoder = DecoderActionPrediction
	cfg.Loss = LossMSE
	cfg.Augmenter = AugmentNone
	cfg.PairConstructor = PairInverseDynamics
	return newPreset("InverseDynamicsPrediction", cfg)
}

// Presets returns every registered algorithm preset by name.
func Presets() map[string]func() Preset {
	return map[string]func() Preset{
		"simclr":                              SimCLR,
		"temporal_cpc":                        TemporalCPC,
		"recurrent_cpc":                       RecurrentCPC,
		"moco":                                MoCo,
		"moco_projection":                     MoCoWithProjection,
		"byol":                                BYOL,
		"ceb":                                 CEB,
		"fixed_variance_ceb":                  FixedVarianceCEB,
		"fixed_variance_target_projected_ceb": FixedVarianceTargetProjectedCEB,
		"action_conditioned_temporal_cpc":     ActionConditionedTemporalCPC,
		"dynamics":                            DynamicsPrediction,
		"inverse_dynamics":                    InverseDynamicsPrediction,
	}
}
