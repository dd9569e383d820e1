// Package rep provides the domain types for self-supervised representation
// learning on sequential decision-making data: trajectories, training pairs,
// and the configuration surface of the learner.
package rep

import "fmt"

// FrameShape describes the channel-first layout of a single observation.
type FrameShape struct {
	C int `json:"c"`
	H int `json:"h"`
	W int `json:"w"`
}

// Size returns the flattened element count of one frame.
func (s FrameShape) Size() int { return s.C * s.H * s.W }

// Validate rejects degenerate shapes and channels-last layouts. The channel
// axis must be the smallest axis; anything else indicates the frames were
// flattened in HWC order.
func (s FrameShape) Validate() error {
	if s.C <= 0 || s.H <= 0 || s.W <= 0 {
		return fmt.Errorf("invalid frame shape %dx%dx%d", s.C, s.H, s.W)
	}
	if s.C >= s.H || s.C >= s.W {
		return fmt.Errorf("frame shape %dx%dx%d does not look channel-first: channel axis must be smallest", s.C, s.H, s.W)
	}
	return nil
}

// Trajectory is the ordered frame sequence of one episode. Immutable once
// loaded.
type Trajectory struct {
	ID        int
	Frames    [][]float64 // one flattened CHW frame per step
	Actions   [][]float64 // action taken after each frame; may be nil
	Timesteps []int       // per-frame timestep index
	Dones     []bool      // termination flags
}

// Len returns the number of frames.
func (t *Trajectory) Len() int { return len(t.Frames) }

// TrajectoryDataset is a loaded collection of trajectories sharing one
// observation shape and action dimensionality.
type TrajectoryDataset struct {
	Shape        FrameShape
	ActionDim    int
	Trajectories []Trajectory
}

// Validate checks the dataset invariants the training engine relies on.
func (d *TrajectoryDataset) Validate() error {
	if err := d.Shape.Validate(); err != nil {
		return err
	}
	if len(d.Trajectories) == 0 {
		return fmt.Errorf("dataset contains no trajectories")
	}
	size := d.Shape.Size()
	for _, traj := range d.Trajectories {
		if traj.Len() == 0 {
			return fmt.Errorf("trajectory %d is empty", traj.ID)
		}
		for i, f := range traj.Frames {
			if len(f) != size {
				return fmt.Errorf("trajectory %d frame %d has %d elements, want %d", traj.ID, i, len(f), size)
			}
		}
		if len(traj.Timesteps) != traj.Len() {
			return fmt.Errorf("trajectory %d has %d timesteps for %d frames", traj.ID, len(traj.Timesteps), traj.Len())
		}
	}
	return nil
}

// PairSample is one (context, target, extra-context) training tuple.
// ExtraContext is nil when the pair mode surfaces no side information.
type PairSample struct {
	Context      []float64
	Target       []float64
	ExtraContext []float64
	TrajID       int
	Timestep     int
}

// PairDataset is the output of a pair constructor.
type PairDataset struct {
	Shape     FrameShape
	ActionDim int
	Samples   []PairSample
}

// Len returns the number of samples.
func (d *PairDataset) Len() int { return len(d.Samples) }

// Batch is the per-step training input handed to the engine by the data
// loader. An empty extra-context collection is normalized to nil.
type Batch struct {
	Contexts      [][]float64
	Targets       [][]float64
	ExtraContexts [][]float64
	TrajIDs       []int
	Timesteps     []int
}

// Size returns the number of samples in the batch.
func (b *Batch) Size() int { return len(b.Contexts) }
