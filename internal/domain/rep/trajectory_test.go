package rep

import "testing"

func TestFrameShapeValidate(t *testing.T) {
	tests := []struct {
		name    string
		shape   FrameShape
		wantErr bool
	}{
		{"rgb 84x84", FrameShape{C: 3, H: 84, W: 84}, false},
		{"grayscale stack", FrameShape{C: 4, H: 84, W: 84}, false},
		{"zero channel", FrameShape{C: 0, H: 84, W: 84}, true},
		{"negative height", FrameShape{C: 3, H: -1, W: 84}, true},
		{"channels last", FrameShape{C: 84, H: 84, W: 3}, true},
		{"channel equals height", FrameShape{C: 8, H: 8, W: 8}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.shape.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFrameShapeSize(t *testing.T) {
	s := FrameShape{C: 3, H: 84, W: 84}
	if got := s.Size(); got != 21168 {
		t.Errorf("Size() = %d, want 21168", got)
	}
}

func makeTrajectory(id, frames, size int) Trajectory {
	traj := Trajectory{ID: id}
	for i := 0; i < frames; i++ {
		traj.Frames = append(traj.Frames, make([]float64, size))
		traj.Timesteps = append(traj.Timesteps, i)
		traj.Dones = append(traj.Dones, i == frames-1)
	}
	return traj
}

func TestTrajectoryDatasetValidate(t *testing.T) {
	shape := FrameShape{C: 1, H: 4, W: 4}

	t.Run("valid", func(t *testing.T) {
		ds := &TrajectoryDataset{
			Shape:        shape,
			Trajectories: []Trajectory{makeTrajectory(0, 3, shape.Size())},
		}
		if err := ds.Validate(); err != nil {
			t.Errorf("Validate() = %v", err)
		}
	})

	t.Run("empty dataset", func(t *testing.T) {
		ds := &TrajectoryDataset{Shape: shape}
		if err := ds.Validate(); err == nil {
			t.Error("expected error for empty dataset")
		}
	})

	t.Run("wrong frame size", func(t *testing.T) {
		traj := makeTrajectory(0, 2, shape.Size())
		traj.Frames[1] = make([]float64, 3)
		ds := &TrajectoryDataset{Shape: shape, Trajectories: []Trajectory{traj}}
		if err := ds.Validate(); err == nil {
			t.Error("expected error for wrong frame size")
		}
	})

	t.Run("missing timesteps", func(t *testing.T) {
		traj := makeTrajectory(0, 2, shape.Size())
		traj.Timesteps = traj.Timesteps[:1]
		ds := &TrajectoryDataset{Shape: shape, Trajectories: []Trajectory{traj}}
		if err := ds.Validate(); err == nil {
			t.Error("expected error for missing timesteps")
		}
	})
}
