package nn

import "math"

// LinearWarmupCosine ramps the learning rate linearly over the warmup epochs
// and then follows a half-cosine decay down to MinLR at TotalEpochs. Stepped
// once per epoch.
type LinearWarmupCosine struct {
	BaseLR       float64
	MinLR        float64
	WarmupEpochs int
	TotalEpochs  int

	epoch int
}

// NewLinearWarmupCosine creates a scheduler starting at epoch zero.
func NewLinearWarmupCosine(baseLR, minLR float64, warmupEpochs, totalEpochs int) *LinearWarmupCosine {
	return &LinearWarmupCosine{
		BaseLR:       baseLR,
		MinLR:        minLR,
		WarmupEpochs: warmupEpochs,
		TotalEpochs:  totalEpochs,
	}
}

// LR returns the learning rate for the current epoch.
func (s *LinearWarmupCosine) LR() float64 {
	if s.WarmupEpochs > 0 && s.epoch < s.WarmupEpochs {
		return s.BaseLR * float64(s.epoch+1) / float64(s.WarmupEpochs)
	}
	span := s.TotalEpochs - s.WarmupEpochs
	if span <= 0 {
		return s.BaseLR
	}
	progress := float64(s.epoch-s.WarmupEpochs) / float64(span)
	if progress > 1 {
		progress = 1
	}
	return s.MinLR + (s.BaseLR-s.MinLR)*(1+math.Cos(math.Pi*progress))/2
}

// Step advances the scheduler by one epoch.
func (s *LinearWarmupCosine) Step() { s.epoch++ }
