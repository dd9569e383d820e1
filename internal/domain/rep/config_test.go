package rep

import "testing"

func TestLearnerConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *LearnerConfig)
		wantErr bool
	}{
		{"defaults", func(c *LearnerConfig) {}, false},
		{"zero rep dim", func(c *LearnerConfig) { c.RepresentationDim = 0 }, true},
		{"zero batch", func(c *LearnerConfig) { c.BatchSize = 0 }, true},
		{"zero save interval", func(c *LearnerConfig) { c.SaveInterval = 0 }, true},
		{"momentum one", func(c *LearnerConfig) { c.MomentumWeight = 1 }, true},
		{"momentum negative", func(c *LearnerConfig) { c.MomentumWeight = -0.1 }, true},
		{"queue without capacity", func(c *LearnerConfig) {
			c.BatchExtender = ExtenderQueue
			c.QueueCapacity = 0
		}, true},
		{"zero temporal offset", func(c *LearnerConfig) { c.TemporalOffset = 0 }, true},
		{"identity pairs ignore offset", func(c *LearnerConfig) {
			c.PairConstructor = PairIdentity
			c.TemporalOffset = 0
		}, false},
		{"recurrent without layers", func(c *LearnerConfig) {
			c.Encoder = EncoderRecurrent
			c.RecurrentLayers = 0
		}, true},
		{"action decoder without action dim", func(c *LearnerConfig) { c.Decoder = DecoderActionConditioned }, true},
		{"pixel decoder without action dim", func(c *LearnerConfig) { c.Decoder = DecoderPixel }, true},
		{"action prediction with action dim", func(c *LearnerConfig) {
			c.Decoder = DecoderActionPrediction
			c.ActionDim = 4
		}, false},
		{"zero temperature", func(c *LearnerConfig) { c.Temperature = 0 }, true},
		{"no conv layers", func(c *LearnerConfig) { c.Architecture.Conv = nil }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultLearnerConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEffectiveDims(t *testing.T) {
	cfg := DefaultLearnerConfig()
	cfg.RepresentationDim = 128

	if got := cfg.EffectiveProjectionDim(); got != 128 {
		t.Errorf("unset projection dim = %d, want 128", got)
	}
	cfg.ProjectionDim = 64
	if got := cfg.EffectiveProjectionDim(); got != 64 {
		t.Errorf("projection dim = %d, want 64", got)
	}

	if got := cfg.EffectiveSingleFrameDim(); got != 128 {
		t.Errorf("unset single frame dim = %d, want 128", got)
	}
	cfg.SingleFrameDim = 32
	if got := cfg.EffectiveSingleFrameDim(); got != 32 {
		t.Errorf("single frame dim = %d, want 32", got)
	}
}
