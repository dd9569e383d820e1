package storage

import (
	"strings"
	"testing"

	domain "github.com/poppingtonic/eirli/internal/domain/rep"
)

func newTestStore(t *testing.T) *DatasetStore {
	t.Helper()
	store, err := NewDatasetStore(DefaultDatasetStoreConfig())
	if err != nil {
		t.Fatalf("NewDatasetStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleDataset(lengths []int, actionDim int) *domain.TrajectoryDataset {
	shape := domain.FrameShape{C: 1, H: 4, W: 4}
	ds := &domain.TrajectoryDataset{Shape: shape, ActionDim: actionDim}
	for id, n := range lengths {
		traj := domain.Trajectory{ID: id}
		for i := 0; i < n; i++ {
			frame := make([]float64, shape.Size())
			for j := range frame {
				frame[j] = float64(id*1000+i*16+j) * 0.25
			}
			traj.Frames = append(traj.Frames, frame)
			traj.Timesteps = append(traj.Timesteps, i)
			traj.Dones = append(traj.Dones, i == n-1)
			if actionDim > 0 {
				action := make([]float64, actionDim)
				for j := range action {
					action[j] = float64(i) - float64(j)*0.5
				}
				traj.Actions = append(traj.Actions, action)
			}
		}
		ds.Trajectories = append(ds.Trajectories, traj)
	}
	return ds
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ds := sampleDataset([]int{3, 5}, 2)

	id, err := store.SaveDataset("cartpole", ds)
	if err != nil {
		t.Fatalf("SaveDataset: %v", err)
	}
	if id == "" {
		t.Fatal("SaveDataset returned an empty id")
	}

	got, err := store.LoadDataset("cartpole")
	if err != nil {
		t.Fatalf("LoadDataset: %v", err)
	}
	if got.Shape != ds.Shape {
		t.Errorf("shape = %+v, want %+v", got.Shape, ds.Shape)
	}
	if got.ActionDim != 2 {
		t.Errorf("action dim = %d, want 2", got.ActionDim)
	}
	if len(got.Trajectories) != 2 {
		t.Fatalf("got %d trajectories, want 2", len(got.Trajectories))
	}
	for ti, want := range ds.Trajectories {
		traj := got.Trajectories[ti]
		if traj.Len() != want.Len() {
			t.Fatalf("trajectory %d has %d frames, want %d", ti, traj.Len(), want.Len())
		}
		for i := range want.Frames {
			for j := range want.Frames[i] {
				if traj.Frames[i][j] != want.Frames[i][j] {
					t.Fatalf("trajectory %d frame %d[%d] = %v, want %v", ti, i, j, traj.Frames[i][j], want.Frames[i][j])
				}
			}
			for j := range want.Actions[i] {
				if traj.Actions[i][j] != want.Actions[i][j] {
					t.Fatalf("trajectory %d action %d[%d] = %v, want %v", ti, i, j, traj.Actions[i][j], want.Actions[i][j])
				}
			}
			if traj.Timesteps[i] != want.Timesteps[i] {
				t.Fatalf("trajectory %d timestep %d = %d, want %d", ti, i, traj.Timesteps[i], want.Timesteps[i])
			}
			if traj.Dones[i] != want.Dones[i] {
				t.Fatalf("trajectory %d done %d = %v, want %v", ti, i, traj.Dones[i], want.Dones[i])
			}
		}
	}
	if err := got.Validate(); err != nil {
		t.Errorf("loaded dataset fails validation: %v", err)
	}
}

func TestSaveLoadWithoutActions(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.SaveDataset("no_actions", sampleDataset([]int{4}, 0)); err != nil {
		t.Fatalf("SaveDataset: %v", err)
	}
	got, err := store.LoadDataset("no_actions")
	if err != nil {
		t.Fatalf("LoadDataset: %v", err)
	}
	if got.Trajectories[0].Actions != nil {
		t.Error("actionless dataset came back with actions")
	}
}

func TestDuplicateNameRejected(t *testing.T) {
	store := newTestStore(t)
	ds := sampleDataset([]int{2}, 0)
	if _, err := store.SaveDataset("dup", ds); err != nil {
		t.Fatalf("SaveDataset: %v", err)
	}
	if _, err := store.SaveDataset("dup", ds); err == nil {
		t.Error("expected error saving under a taken name")
	}
}

func TestInvalidDatasetRejected(t *testing.T) {
	store := newTestStore(t)
	bad := &domain.TrajectoryDataset{Shape: domain.FrameShape{C: 1, H: 4, W: 4}}
	if _, err := store.SaveDataset("empty", bad); err == nil {
		t.Error("expected error storing an empty dataset")
	}
}

func TestLoadMissingDataset(t *testing.T) {
	store := newTestStore(t)
	_, err := store.LoadDataset("nope")
	if err == nil {
		t.Fatal("expected error for a missing dataset")
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("error %q does not say not found", err)
	}
}

func TestListDatasets(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.SaveDataset("first", sampleDataset([]int{3}, 0)); err != nil {
		t.Fatalf("SaveDataset: %v", err)
	}
	if _, err := store.SaveDataset("second", sampleDataset([]int{2, 2}, 1)); err != nil {
		t.Fatalf("SaveDataset: %v", err)
	}

	infos, err := store.ListDatasets()
	if err != nil {
		t.Fatalf("ListDatasets: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("got %d catalog rows, want 2", len(infos))
	}
	byName := map[string]DatasetInfo{}
	for _, info := range infos {
		byName[info.Name] = info
	}
	first, ok := byName["first"]
	if !ok {
		t.Fatal("dataset first missing from catalog")
	}
	if first.Trajectories != 1 || first.Frames != 3 {
		t.Errorf("first has %d trajectories / %d frames, want 1/3", first.Trajectories, first.Frames)
	}
	second := byName["second"]
	if second.Trajectories != 2 || second.Frames != 4 {
		t.Errorf("second has %d trajectories / %d frames, want 2/4", second.Trajectories, second.Frames)
	}
	if second.ActionDim != 1 {
		t.Errorf("second action dim = %d, want 1", second.ActionDim)
	}
}

func TestDeleteDataset(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.SaveDataset("gone", sampleDataset([]int{3}, 0)); err != nil {
		t.Fatalf("SaveDataset: %v", err)
	}
	if err := store.DeleteDataset("gone"); err != nil {
		t.Fatalf("DeleteDataset: %v", err)
	}
	if _, err := store.LoadDataset("gone"); err == nil {
		t.Error("dataset still loadable after delete")
	}
	// The name is free again.
	if _, err := store.SaveDataset("gone", sampleDataset([]int{1}, 0)); err != nil {
		t.Errorf("name not reusable after delete: %v", err)
	}
	if err := store.DeleteDataset("never"); err == nil {
		t.Error("expected error deleting a missing dataset")
	}
}

func TestUnknownDriverRejected(t *testing.T) {
	if _, err := NewDatasetStore(DatasetStoreConfig{Driver: "oracle"}); err == nil {
		t.Error("expected error for unknown driver")
	}
}
