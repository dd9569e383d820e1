// Package storage provides SQL-backed persistence for trajectory datasets.
package storage

import (
	"bytes"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"  // PostgreSQL driver
	_ "modernc.org/sqlite" // SQLite driver

	domain "github.com/poppingtonic/eirli/internal/domain/rep"
)

// Driver names accepted by the store config.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DatasetStoreConfig configures the dataset store.
type DatasetStoreConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string `json:"driver"`

	// DSN is the SQLite path (":memory:" for in-memory) or the PostgreSQL
	// connection string.
	DSN string `json:"dsn"`
}

// DefaultDatasetStoreConfig returns an in-memory SQLite store.
func DefaultDatasetStoreConfig() DatasetStoreConfig {
	return DatasetStoreConfig{Driver: DriverSQLite, DSN: ":memory:"}
}

// DatasetInfo is one row of the dataset catalog.
type DatasetInfo struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Shape        domain.FrameShape `json:"shape"`
	ActionDim    int               `json:"actionDim"`
	Trajectories int               `json:"trajectories"`
	Frames       int               `json:"frames"`
	CreatedAt    time.Time         `json:"createdAt"`
}

// DatasetStore persists trajectory datasets in SQLite or PostgreSQL. Frame,
// action and timestep arrays are packed into per-trajectory binary blobs so
// a trajectory loads with a single row scan.
type DatasetStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	config DatasetStoreConfig
}

// NewDatasetStore opens the database and initializes the schema.
func NewDatasetStore(config DatasetStoreConfig) (*DatasetStore, error) {
	switch config.Driver {
	case DriverSQLite, DriverPostgres:
	case "":
		config.Driver = DriverSQLite
	default:
		return nil, fmt.Errorf("unknown dataset store driver %q", config.Driver)
	}
	if config.DSN == "" {
		config.DSN = ":memory:"
	}

	db, err := sql.Open(config.Driver, config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &DatasetStore{db: db, config: config}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// Close closes the underlying database.
func (s *DatasetStore) Close() error { return s.db.Close() }

func (s *DatasetStore) initSchema() error {
	blob := "BLOB"
	if s.config.Driver == DriverPostgres {
		blob = "BYTEA"
	}
	schema := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS datasets (
			dataset_id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			channels INTEGER NOT NULL,
			height INTEGER NOT NULL,
			width INTEGER NOT NULL,
			action_dim INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS trajectories (
			trajectory_id TEXT PRIMARY KEY,
			dataset_id TEXT NOT NULL REFERENCES datasets(dataset_id) ON DELETE CASCADE,
			traj_index INTEGER NOT NULL,
			frame_count INTEGER NOT NULL,
			frames %s NOT NULL,
			actions %s,
			timesteps %s NOT NULL,
			dones %s NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_trajectories_dataset ON trajectories(dataset_id, traj_index);
	`, blob, blob, blob, blob)
	_, err := s.db.Exec(schema)
	return err
}

// bind rewrites ? placeholders into $n markers for the postgres driver.
func (s *DatasetStore) bind(query string) string {
	if s.config.Driver != DriverPostgres {
		return query
	}
	out := make([]byte, 0, len(query)+8)
	arg := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			arg++
			out = append(out, []byte(fmt.Sprintf("$%d", arg))...)
			continue
		}
		out = append(out, query[i])
	}
	return string(out)
}

// SaveDataset stores a whole dataset under the given name. The name must be
// unused.
func (s *DatasetStore) SaveDataset(name string, ds *domain.TrajectoryDataset) (string, error) {
	if err := ds.Validate(); err != nil {
		return "", fmt.Errorf("dataset is not storable: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	datasetID := uuid.NewString()
	_, err = tx.Exec(s.bind(`
		INSERT INTO datasets (dataset_id, name, channels, height, width, action_dim, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`), datasetID, name, ds.Shape.C, ds.Shape.H, ds.Shape.W, ds.ActionDim, time.Now().Unix())
	if err != nil {
		return "", fmt.Errorf("failed to insert dataset: %w", err)
	}

	for i, traj := range ds.Trajectories {
		var actions []byte
		if traj.Actions != nil {
			actions = encodeMatrix(traj.Actions)
		}
		_, err = tx.Exec(s.bind(`
			INSERT INTO trajectories (trajectory_id, dataset_id, traj_index, frame_count, frames, actions, timesteps, dones)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`), uuid.NewString(), datasetID, i, traj.Len(),
			encodeMatrix(traj.Frames), actions, encodeInts(traj.Timesteps), encodeBools(traj.Dones))
		if err != nil {
			return "", fmt.Errorf("failed to insert trajectory %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit dataset: %w", err)
	}
	return datasetID, nil
}

// LoadDataset reads a dataset back by name.
func (s *DatasetStore) LoadDataset(name string) (*domain.TrajectoryDataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var datasetID string
	ds := &domain.TrajectoryDataset{}
	err := s.db.QueryRow(s.bind(`
		SELECT dataset_id, channels, height, width, action_dim
		FROM datasets WHERE name = ?
	`), name).Scan(&datasetID, &ds.Shape.C, &ds.Shape.H, &ds.Shape.W, &ds.ActionDim)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("dataset %q not found", name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load dataset: %w", err)
	}

	rows, err := s.db.Query(s.bind(`
		SELECT traj_index, frame_count, frames, actions, timesteps, dones
		FROM trajectories WHERE dataset_id = ? ORDER BY traj_index
	`), datasetID)
	if err != nil {
		return nil, fmt.Errorf("failed to load trajectories: %w", err)
	}
	defer rows.Close()

	frameSize := ds.Shape.Size()
	for rows.Next() {
		var (
			index, count               int
			frames, actions, ts, dones []byte
		)
		if err := rows.Scan(&index, &count, &frames, &actions, &ts, &dones); err != nil {
			return nil, fmt.Errorf("failed to scan trajectory: %w", err)
		}
		traj := domain.Trajectory{ID: index}
		if traj.Frames, err = decodeMatrix(frames, count, frameSize); err != nil {
			return nil, fmt.Errorf("trajectory %d frames: %w", index, err)
		}
		if actions != nil && ds.ActionDim > 0 {
			if traj.Actions, err = decodeMatrix(actions, count, ds.ActionDim); err != nil {
				return nil, fmt.Errorf("trajectory %d actions: %w", index, err)
			}
		}
		if traj.Timesteps, err = decodeInts(ts, count); err != nil {
			return nil, fmt.Errorf("trajectory %d timesteps: %w", index, err)
		}
		if traj.Dones, err = decodeBools(dones, count); err != nil {
			return nil, fmt.Errorf("trajectory %d dones: %w", index, err)
		}
		ds.Trajectories = append(ds.Trajectories, traj)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate trajectories: %w", err)
	}
	return ds, nil
}

// ListDatasets returns the catalog, newest first.
func (s *DatasetStore) ListDatasets() ([]DatasetInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT d.dataset_id, d.name, d.channels, d.height, d.width, d.action_dim, d.created_at,
		       COUNT(t.trajectory_id), COALESCE(SUM(t.frame_count), 0)
		FROM datasets d
		LEFT JOIN trajectories t ON t.dataset_id = d.dataset_id
		GROUP BY d.dataset_id, d.name, d.channels, d.height, d.width, d.action_dim, d.created_at
		ORDER BY d.created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list datasets: %w", err)
	}
	defer rows.Close()

	var infos []DatasetInfo
	for rows.Next() {
		var info DatasetInfo
		var created int64
		if err := rows.Scan(&info.ID, &info.Name, &info.Shape.C, &info.Shape.H, &info.Shape.W,
			&info.ActionDim, &created, &info.Trajectories, &info.Frames); err != nil {
			return nil, fmt.Errorf("failed to scan dataset row: %w", err)
		}
		info.CreatedAt = time.Unix(created, 0).UTC()
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// DeleteDataset removes a dataset and its trajectories.
func (s *DatasetStore) DeleteDataset(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var datasetID string
	err := s.db.QueryRow(s.bind(`SELECT dataset_id FROM datasets WHERE name = ?`), name).Scan(&datasetID)
	if err == sql.ErrNoRows {
		return fmt.Errorf("dataset %q not found", name)
	}
	if err != nil {
		return fmt.Errorf("failed to resolve dataset: %w", err)
	}
	// SQLite needs the child rows removed explicitly unless foreign keys
	// are enabled on the connection.
	if _, err := s.db.Exec(s.bind(`DELETE FROM trajectories WHERE dataset_id = ?`), datasetID); err != nil {
		return fmt.Errorf("failed to delete trajectories: %w", err)
	}
	if _, err := s.db.Exec(s.bind(`DELETE FROM datasets WHERE dataset_id = ?`), datasetID); err != nil {
		return fmt.Errorf("failed to delete dataset: %w", err)
	}
	return nil
}

// encodeMatrix packs rows of float64 into a little-endian blob.
func encodeMatrix(rows [][]float64) []byte {
	var n int
	for _, r := range rows {
		n += len(r)
	}
	buf := make([]byte, 0, n*8)
	var scratch [8]byte
	for _, r := range rows {
		for _, v := range r {
			binary.LittleEndian.PutUint64(scratch[:], math.Float64bits(v))
			buf = append(buf, scratch[:]...)
		}
	}
	return buf
}

func decodeMatrix(blob []byte, rows, cols int) ([][]float64, error) {
	if len(blob) != rows*cols*8 {
		return nil, fmt.Errorf("blob has %d bytes, want %d (%dx%d float64)", len(blob), rows*cols*8, rows, cols)
	}
	out := make([][]float64, rows)
	off := 0
	for r := range out {
		row := make([]float64, cols)
		for c := range row {
			row[c] = math.Float64frombits(binary.LittleEndian.Uint64(blob[off:]))
			off += 8
		}
		out[r] = row
	}
	return out, nil
}

func encodeInts(vals []int) []byte {
	buf := new(bytes.Buffer)
	for _, v := range vals {
		binary.Write(buf, binary.LittleEndian, int64(v))
	}
	return buf.Bytes()
}

func decodeInts(blob []byte, n int) ([]int, error) {
	if len(blob) != n*8 {
		return nil, fmt.Errorf("blob has %d bytes, want %d (%d int64)", len(blob), n*8, n)
	}
	out := make([]int, n)
	for i := range out {
		out[i] = int(int64(binary.LittleEndian.Uint64(blob[i*8:])))
	}
	return out, nil
}

func encodeBools(vals []bool) []byte {
	out := make([]byte, len(vals))
	for i, v := range vals {
		if v {
			out[i] = 1
		}
	}
	return out
}

func decodeBools(blob []byte, n int) ([]bool, error) {
	if len(blob) != n {
		return nil, fmt.Errorf("blob has %d bytes, want %d bools", len(blob), n)
	}
	out := make([]bool, n)
	for i, b := range blob {
		out[i] = b != 0
	}
	return out, nil
}
