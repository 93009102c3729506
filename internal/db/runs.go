package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bits-and-blooms/bitset"
	"github.com/google/uuid"
)

// ErrRunNotFound is returned by RunStore lookups for an unknown run id.
var ErrRunNotFound = errors.New("run not found")

// Run is the persisted summary of one verification run.
type Run struct {
	RunID         string          `json:"run_id"`
	ModelName     string          `json:"model_name"`
	Dims          int             `json:"dims"`
	Divisions     int             `json:"divisions"`
	Misses        int             `json:"misses"`
	Window        int             `json:"window"`
	OneStepEdges  int             `json:"one_step_edges"`
	KStepEdges    int             `json:"k_step_edges"`
	StartSize     int             `json:"start_size"`
	EndSize       int             `json:"end_size"`
	InvariantSize int             `json:"invariant_size"`
	InitialVolume float64         `json:"initial_volume"`
	CoveredVolume float64         `json:"covered_volume"`
	Verdict       string          `json:"verdict"`
	DurationMs    int64           `json:"duration_ms"`
	SettingsJSON  json.RawMessage `json:"settings_json,omitempty"`
	CreatedAt     int64           `json:"created_at"`
}

// Region names used in verification_cells.
const (
	RegionStart     = "start"
	RegionInvariant = "invariant"
)

// RunStore provides persistence for verification runs and their cell sets.
type RunStore struct {
	db *sql.DB
}

// NewRunStore creates a new RunStore.
func NewRunStore(db *sql.DB) *RunStore {
	return &RunStore{db: db}
}

const runColumns = `
	run_id, model_name, dims, divisions, misses, window_size,
	one_step_edges, k_step_edges, start_size, end_size, invariant_size,
	initial_volume, covered_volume, verdict, duration_ms, settings_json, created_at`

// Insert persists a run together with its start region and invariant in a
// single transaction. If RunID is empty, a UUID is generated.
func (s *RunStore) Insert(run *Run, start, invariant *bitset.BitSet) error {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	if run.CreatedAt == 0 {
		run.CreatedAt = time.Now().UnixNano()
	}
	var settings interface{}
	if len(run.SettingsJSON) > 0 {
		settings = string(run.SettingsJSON)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin run insert: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`INSERT INTO verification_runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.ModelName, run.Dims, run.Divisions, run.Misses, run.Window,
		run.OneStepEdges, run.KStepEdges, run.StartSize, run.EndSize, run.InvariantSize,
		run.InitialVolume, run.CoveredVolume, run.Verdict, run.DurationMs, settings, run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO verification_cells (run_id, cell_id, region) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare cell insert: %w", err)
	}
	defer stmt.Close()
	for _, set := range []struct {
		region string
		cells  *bitset.BitSet
	}{{RegionStart, start}, {RegionInvariant, invariant}} {
		if set.cells == nil {
			continue
		}
		for id, ok := set.cells.NextSet(0); ok; id, ok = set.cells.NextSet(id + 1) {
			if _, err := stmt.Exec(run.RunID, int64(id), set.region); err != nil {
				return fmt.Errorf("insert %s cell %d: %w", set.region, id, err)
			}
		}
	}
	return tx.Commit()
}

// Get returns a single run by id.
func (s *RunStore) Get(runID string) (*Run, error) {
	row := s.db.QueryRow(`SELECT `+runColumns+` FROM verification_runs WHERE run_id = ?`, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return r, err
}

// List returns the most recent runs first. limit <= 0 returns all runs.
func (s *RunStore) List(limit int) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM verification_runs ORDER BY created_at DESC`
	var args []interface{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Cells returns the ids stored for one region of a run, in ascending order.
func (s *RunStore) Cells(runID, region string) ([]int, error) {
	if region != RegionStart && region != RegionInvariant {
		return nil, fmt.Errorf("unknown region %q", region)
	}
	rows, err := s.db.Query(`SELECT cell_id FROM verification_cells
		WHERE run_id = ? AND region = ? ORDER BY cell_id`, runID, region)
	if err != nil {
		return nil, fmt.Errorf("query cells: %w", err)
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan cell: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (*Run, error) {
	var r Run
	var settings sql.NullString
	err := row.Scan(
		&r.RunID, &r.ModelName, &r.Dims, &r.Divisions, &r.Misses, &r.Window,
		&r.OneStepEdges, &r.KStepEdges, &r.StartSize, &r.EndSize, &r.InvariantSize,
		&r.InitialVolume, &r.CoveredVolume, &r.Verdict, &r.DurationMs, &settings, &r.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}
	if settings.Valid {
		r.SettingsJSON = json.RawMessage(settings.String)
	}
	return &r, nil
}
