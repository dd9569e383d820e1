package rep

import (
	"fmt"

	domain "github.com/poppingtonic/eirli/internal/domain/rep"
)

// PairConstructor turns a raw trajectory dataset into (context, target,
// extra-context) training samples.
type PairConstructor interface {
	Construct(ds *domain.TrajectoryDataset) (*domain.PairDataset, error)
}

// IdentityPairConstructor pairs every frame with itself. Used by methods
// whose positives are two augmentations of the same frame.
type IdentityPairConstructor struct{}

// Construct implements PairConstructor.
func (IdentityPairConstructor) Construct(ds *domain.TrajectoryDataset) (*domain.PairDataset, error) {
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	out := &domain.PairDataset{Shape: ds.Shape, ActionDim: ds.ActionDim}
	for _, traj := range ds.Trajectories {
		for i, frame := range traj.Frames {
			out.Samples = append(out.Samples, domain.PairSample{
				Context:  frame,
				Target:   frame,
				TrajID:   traj.ID,
				Timestep: traj.Timesteps[i],
			})
		}
	}
	return out, nil
}

// TemporalOffsetPairConstructor pairs each frame with the frame Offset steps
// later in the same trajectory. Samples near the trajectory end with no valid
// target are dropped. The dynamics and inverse-dynamics modes additionally
// surface the action taken at the context frame as extra context.
type TemporalOffsetPairConstructor struct {
	Offset int
	Mode   domain.PairKind
}

// NewTemporalOffsetPairConstructor validates and builds the constructor.
func NewTemporalOffsetPairConstructor(offset int, mode domain.PairKind) (*TemporalOffsetPairConstructor, error) {
	if offset <= 0 {
		return nil, fmt.Errorf("temporal offset must be positive, got %d", offset)
	}
	switch mode {
	case domain.PairTemporalOffset, domain.PairDynamics, domain.PairInverseDynamics:
	default:
		return nil, fmt.Errorf("unknown temporal pair mode %q", mode)
	}
	return &TemporalOffsetPairConstructor{Offset: offset, Mode: mode}, nil
}

// Construct implements PairConstructor.
func (p *TemporalOffsetPairConstructor) Construct(ds *domain.TrajectoryDataset) (*domain.PairDataset, error) {
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	withActions := p.Mode == domain.PairDynamics || p.Mode == domain.PairInverseDynamics
	out := &domain.PairDataset{Shape: ds.Shape, ActionDim: ds.ActionDim}
	for _, traj := range ds.Trajectories {
		if withActions && len(traj.Actions) < traj.Len() {
			return nil, fmt.Errorf("trajectory %d has %d actions for %d frames, %s pairing needs one per frame",
				traj.ID, len(traj.Actions), traj.Len(), p.Mode)
		}
		for i := 0; i+p.Offset < traj.Len(); i++ {
			sample := domain.PairSample{
				Context:  traj.Frames[i],
				Target:   traj.Frames[i+p.Offset],
				TrajID:   traj.ID,
				Timestep: traj.Timesteps[i],
			}
			if withActions {
				sample.ExtraContext = traj.Actions[i]
			}
			out.Samples = append(out.Samples, sample)
		}
	}
	if out.Len() == 0 {
		return nil, fmt.Errorf("temporal offset %d exceeds every trajectory length, no pairs produced", p.Offset)
	}
	return out, nil
}

// NewPairConstructor builds the configured pair constructor.
func NewPairConstructor(cfg domain.LearnerConfig) (PairConstructor, error) {
	switch cfg.PairConstructor {
	case domain.PairIdentity:
		return IdentityPairConstructor{}, nil
	case domain.PairTemporalOffset, domain.PairDynamics, domain.PairInverseDynamics:
		return NewTemporalOffsetPairConstructor(cfg.TemporalOffset, cfg.PairConstructor)
	default:
		return nil, fmt.Errorf("unknown pair constructor %q", cfg.PairConstructor)
	}
}
