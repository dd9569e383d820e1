package rep

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/poppingtonic/eirli/internal/infrastructure/tensor"
)

// Module kinds used for checkpoint directory names.
const (
	CheckpointEncoder = "representation_encoder"
	CheckpointDecoder = "loss_decoder"
)

// Checkpoint is the on-disk snapshot of one module's parameters after a
// given number of epochs.
type Checkpoint struct {
	RunID      string      `json:"runId"`
	Kind       string      `json:"kind"`
	Epoch      int         `json:"epoch"`
	SavedAt    time.Time   `json:"savedAt"`
	Params     []ParamBlob `json:"params"`
	ParamCount int         `json:"paramCount"`
}

// ParamBlob is one parameter matrix in row-major order.
type ParamBlob struct {
	Rows int       `json:"rows"`
	Cols int       `json:"cols"`
	Data []float64 `json:"data"`
}

// Checkpointer writes per-module snapshots under a fixed root, one
// subdirectory per module kind. Each learner run gets its own id so
// snapshots from different runs are distinguishable.
type Checkpointer struct {
	root  string
	runID string
}

// NewCheckpointer creates the root directory if needed.
func NewCheckpointer(root string) (*Checkpointer, error) {
	if root == "" {
		return nil, fmt.Errorf("checkpoint root must not be empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint root: %w", err)
	}
	return &Checkpointer{root: root, runID: uuid.NewString()}, nil
}

// RunID returns the run identifier stamped into every snapshot.
func (c *Checkpointer) RunID() string { return c.runID }

// Path returns the file a snapshot of the given kind and epoch lands in.
func (c *Checkpointer) Path(kind string, epoch int) string {
	return filepath.Join(c.root, kind, fmt.Sprintf("%d_epochs.json", epoch))
}

// Save serializes the parameter list. A snapshot includes all weights the
// loss gradient flows through, so momentum key networks (never optimized)
// are not part of it.
func (c *Checkpointer) Save(kind string, epoch int, params []*tensor.Mat) (string, error) {
	ckpt := Checkpoint{
		RunID:      c.runID,
		Kind:       kind,
		Epoch:      epoch,
		SavedAt:    time.Now().UTC(),
		ParamCount: len(params),
	}
	for _, p := range params {
		ckpt.Params = append(ckpt.Params, ParamBlob{
			Rows: p.Rows,
			Cols: p.Cols,
			Data: append([]float64(nil), p.Data...),
		})
	}
	path := c.Path(kind, epoch)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create checkpoint dir: %w", err)
	}
	data, err := json.Marshal(ckpt)
	if err != nil {
		return "", fmt.Errorf("encode checkpoint: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write checkpoint: %w", err)
	}
	return path, nil
}

// LoadCheckpoint reads a snapshot file.
func LoadCheckpoint(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	var ckpt Checkpoint
	if err := json.Unmarshal(data, &ckpt); err != nil {
		return nil, fmt.Errorf("decode checkpoint %s: %w", path, err)
	}
	return &ckpt, nil
}

// Restore copies a snapshot's values into an existing parameter list. Shapes
// must match pairwise; a mismatch means the snapshot belongs to a different
// architecture.
func (ckpt *Checkpoint) Restore(params []*tensor.Mat) error {
	if len(ckpt.Params) != len(params) {
		return fmt.Errorf("checkpoint has %d parameter blocks, module has %d", len(ckpt.Params), len(params))
	}
	for i, blob := range ckpt.Params {
		p := params[i]
		if blob.Rows != p.Rows || blob.Cols != p.Cols {
			return fmt.Errorf("parameter %d shape mismatch: checkpoint %dx%d, module %dx%d",
				i, blob.Rows, blob.Cols, p.Rows, p.Cols)
		}
		copy(p.Data, blob.Data)
	}
	return nil
}

// LatestCheckpoint returns the highest-epoch snapshot path under
// root/kind, or an error when none exist.
func LatestCheckpoint(root, kind string) (string, int, error) {
	dir := filepath.Join(root, kind)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", 0, fmt.Errorf("read checkpoint dir: %w", err)
	}
	best := -1
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, "_epochs.json") {
			continue
		}
		epoch, err := strconv.Atoi(strings.TrimSuffix(name, "_epochs.json"))
		if err != nil {
			continue
		}
		if epoch > best {
			best = epoch
		}
	}
	if best < 0 {
		return "", 0, fmt.Errorf("no checkpoints under %s", dir)
	}
	return filepath.Join(dir, fmt.Sprintf("%d_epochs.json", best)), best, nil
}
