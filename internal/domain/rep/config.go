package rep

import "fmt"

// EncoderKind selects the encoder variant.
type EncoderKind string

const (
	EncoderDeterministic   EncoderKind = "deterministic"
	EncoderStochastic      EncoderKind = "stochastic"
	EncoderMomentum        EncoderKind = "momentum"
	EncoderRecurrent       EncoderKind = "recurrent"
	EncoderDynamics        EncoderKind = "dynamics"
	EncoderInverseDynamics EncoderKind = "inverse_dynamics"
)

// DecoderKind selects the decoder / projection variant.
type DecoderKind string

const (
	DecoderNone               DecoderKind = "none"
	DecoderProjection         DecoderKind = "projection"
	DecoderTargetProjection   DecoderKind = "target_projection"
	DecoderMomentumProjection DecoderKind = "momentum_projection"
	DecoderBYOLProjection     DecoderKind = "byol_projection"
	DecoderActionConditioned  DecoderKind = "action_conditioned"
	DecoderPixel              DecoderKind = "pixel"
	DecoderActionPrediction   DecoderKind = "action_prediction"
)

// LossKind selects the loss calculator.
type LossKind string

const (
	LossSymmetricContrastive LossKind = "symmetric_contrastive"
	LossBatchAsymmetric      LossKind = "batch_asymmetric_contrastive"
	LossQueueAsymmetric      LossKind = "queue_asymmetric_contrastive"
	LossMSE                  LossKind = "mse"
	LossCEB                  LossKind = "ceb"
)

// AugmenterKind selects the augmentation strategy.
type AugmenterKind string

const (
	AugmentNone             AugmenterKind = "none"
	AugmentContextOnly      AugmenterKind = "context_only"
	AugmentContextAndTarget AugmenterKind = "context_and_target"
)

// PairKind selects the pair constructor.
type PairKind string

const (
	PairIdentity        PairKind = "identity"
	PairTemporalOffset  PairKind = "temporal_offset"
	PairDynamics        PairKind = "dynamics"
	PairInverseDynamics PairKind = "inverse_dynamics"
)

// ExtenderKind selects the batch extender.
type ExtenderKind string

const (
	ExtenderIdentity ExtenderKind = "identity"
	ExtenderQueue    ExtenderKind = "queue"
)

// ConvLayerSpec describes one convolution layer of the frame encoder.
type ConvLayerSpec struct {
	OutChannels int `json:"outChannels"`
	Kernel      int `json:"kernel"`
	Stride      int `json:"stride"`
}

// Architecture describes the CNN encoder stack: convolutions followed by
// hidden dense widths. The mean (and optional scale) head is appended on top.
type Architecture struct {
	Conv  []ConvLayerSpec `json:"conv"`
	Dense []int           `json:"dense"`
}

// DefaultArchitecture returns the stack used for 84x84 control benchmarks.
func DefaultArchitecture() Architecture {
	return Architecture{
		Conv: []ConvLayerSpec{
			{OutChannels: 32, Kernel: 8, Stride: 4},
			{OutChannels: 64, Kernel: 4, Stride: 2},
			{OutChannels: 64, Kernel: 3, Stride: 1},
		},
	}
}

// OptimizerConfig holds the Adam hyperparameters.
type OptimizerConfig struct {
	LearningRate float64 `json:"learningRate"`
	Beta1        float64 `json:"beta1"`
	Beta2        float64 `json:"beta2"`
	Epsilon      float64 `json:"epsilon"`
	WeightDecay  float64 `json:"weightDecay"`
}

// DefaultOptimizerConfig returns standard Adam settings.
func DefaultOptimizerConfig() OptimizerConfig {
	return OptimizerConfig{
		LearningRate: 1e-3,
		Beta1:        0.9,
		Beta2:        0.999,
		Epsilon:      1e-8,
	}
}

// SchedulerConfig enables the warmup-plus-cosine learning-rate schedule.
// Nil disables scheduling (constant learning rate).
type SchedulerConfig struct {
	WarmupEpochs int     `json:"warmupEpochs"`
	TotalEpochs  int     `json:"totalEpochs"`
	MinLR        float64 `json:"minLR"`
}

// LearnerConfig is the full construction surface of the representation
// learner: component selection plus per-component settings.
type LearnerConfig struct {
	Encoder         EncoderKind   `json:"encoder"`
	Decoder         DecoderKind   `json:"decoder"`
	Loss            LossKind      `json:"loss"`
	Augmenter       AugmenterKind `json:"augmenter"`
	PairConstructor PairKind      `json:"pairConstructor"`
	BatchExtender   ExtenderKind  `json:"batchExtender"`

	RepresentationDim int  `json:"representationDim"`
	ProjectionDim     int  `json:"projectionDim"` // 0 means same as RepresentationDim
	BatchSize         int  `json:"batchSize"`
	Shuffle           bool `json:"shuffle"`
	SaveInterval      int  `json:"saveInterval"`

	Architecture Architecture `json:"architecture"`
	LearnScale   bool         `json:"learnScale"`

	// Momentum / queue settings (momentum encoder, momentum decoders, queue extender).
	MomentumWeight float64 `json:"momentumWeight"`
	QueueCapacity  int     `json:"queueCapacity"`

	// Pair constructor settings.
	TemporalOffset int `json:"temporalOffset"`

	// Recurrent encoder settings.
	RecurrentLayers int `json:"recurrentLayers"`
	SingleFrameDim  int `json:"singleFrameDim"` // 0 means same as RepresentationDim
	MinTrajSize     int `json:"minTrajSize"`

	// Action-conditioned decoder settings.
	ActionDim          int `json:"actionDim"`
	ActionEmbeddingDim int `json:"actionEmbeddingDim"`

	// Loss settings.
	Temperature float64 `json:"temperature"`
	CEBBeta     float64 `json:"cebBeta"`

	Optimizer OptimizerConfig  `json:"optimizer"`
	Scheduler *SchedulerConfig `json:"scheduler,omitempty"`

	// PreprocessExtraContext rescales frame-valued extra context the same
	// way observations are rescaled. Action vectors are passed through.
	PreprocessExtraContext bool `json:"preprocessExtraContext"`

	// MaxTrainSteps caps the number of batches per epoch; 0 means no cap.
	// Used by smoke tests.
	MaxTrainSteps int `json:"maxTrainSteps"`

	CheckpointRoot string `json:"checkpointRoot"`
}

// DefaultLearnerConfig returns the baseline settings shared by all presets.
func DefaultLearnerConfig() LearnerConfig {
	return LearnerConfig{
		Encoder:                EncoderDeterministic,
		Decoder:                DecoderNone,
		Loss:                   LossBatchAsymmetric,
		Augmenter:              AugmentContextOnly,
		PairConstructor:        PairTemporalOffset,
		BatchExtender:          ExtenderIdentity,
		RepresentationDim:      512,
		BatchSize:              256,
		Shuffle:                true,
		SaveInterval:           1,
		Architecture:           DefaultArchitecture(),
		MomentumWeight:         0.999,
		QueueCapacity:          8192,
		TemporalOffset:         1,
		RecurrentLayers:        2,
		MinTrajSize:            5,
		ActionEmbeddingDim:     16,
		Temperature:            0.1,
		CEBBeta:                0.1,
		Optimizer:              DefaultOptimizerConfig(),
		PreprocessExtraContext: true,
	}
}

// EffectiveProjectionDim returns the projection dimension, defaulting to the
// representation dimension when unset.
func (c *LearnerConfig) EffectiveProjectionDim() int {
	if c.ProjectionDim > 0 {
		return c.ProjectionDim
	}
	return c.RepresentationDim
}

// EffectiveSingleFrameDim returns the per-frame dimension of the recurrent
// encoder, defaulting to the representation dimension when unset.
func (c *LearnerConfig) EffectiveSingleFrameDim() int {
	if c.SingleFrameDim > 0 {
		return c.SingleFrameDim
	}
	return c.RepresentationDim
}

// Validate checks for configuration errors that must fail at construction.
func (c *LearnerConfig) Validate() error {
	if c.RepresentationDim <= 0 {
		return fmt.Errorf("representation dim must be positive, got %d", c.RepresentationDim)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", c.BatchSize)
	}
	if c.SaveInterval <= 0 {
		return fmt.Errorf("save interval must be positive, got %d", c.SaveInterval)
	}
	if c.MomentumWeight < 0 || c.MomentumWeight >= 1 {
		return fmt.Errorf("momentum weight must be in [0,1), got %v", c.MomentumWeight)
	}
	if c.BatchExtender == ExtenderQueue && c.QueueCapacity <= 0 {
		return fmt.Errorf("queue extender requires a positive queue capacity, got %d", c.QueueCapacity)
	}
	if c.PairConstructor != PairIdentity && c.TemporalOffset <= 0 {
		return fmt.Errorf("temporal offset must be positive, got %d", c.TemporalOffset)
	}
	if c.Encoder == EncoderRecurrent && c.RecurrentLayers <= 0 {
		return fmt.Errorf("recurrent encoder requires at least one layer, got %d", c.RecurrentLayers)
	}
	switch c.Decoder {
	case DecoderActionConditioned, DecoderPixel, DecoderActionPrediction:
		if c.ActionDim <= 0 {
			return fmt.Errorf("decoder %q requires a positive action dim", c.Decoder)
		}
	}
	if c.Temperature <= 0 {
		return fmt.Errorf("temperature must be positive, got %v", c.Temperature)
	}
	if len(c.Architecture.Conv) == 0 {
		return fmt.Errorf("encoder architecture has no convolution layers")
	}
	return nil
}
