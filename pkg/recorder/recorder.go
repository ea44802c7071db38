// Package recorder persists control cycles and task status snapshots in SQLite
package recorder

import (
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/wholebody/wbc/pkg/types"
	"gonum.org/v1/gonum/floats"
	_ "modernc.org/sqlite"
)

// ErrRunNotFound is returned when recording into a run that was never started
var ErrRunNotFound = errors.New("run not found")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id      TEXT PRIMARY KEY,
	scene       TEXT NOT NULL,
	scene_type  TEXT NOT NULL,
	started_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS cycles (
	cycle_id     TEXT PRIMARY KEY,
	run_id       TEXT NOT NULL,
	seq          INTEGER NOT NULL,
	solved       INTEGER NOT NULL,
	error        TEXT,
	duration_us  INTEGER NOT NULL,
	solution     BLOB,
	created_at   TEXT NOT NULL,
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);

CREATE TABLE IF NOT EXISTS task_status (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	cycle_id       TEXT NOT NULL,
	name           TEXT NOT NULL,
	priority       INTEGER NOT NULL,
	activation     REAL NOT NULL,
	y_ref          BLOB,
	y_solution     BLOB,
	residual_norm  REAL,
	FOREIGN KEY (cycle_id) REFERENCES cycles(cycle_id)
);

CREATE INDEX IF NOT EXISTS idx_cycles_run ON cycles(run_id, seq);
CREATE INDEX IF NOT EXISTS idx_task_status_cycle ON task_status(cycle_id);
`

// Recorder writes cycle records to a SQLite database
type Recorder struct {
	db *sql.DB
}

// Cycle is the outcome of one update/solve cycle
type Cycle struct {
	Seq      int
	Duration time.Duration
	Err      error
	Solution []float64
	Status   types.TasksStatus
}

// CycleRecord is a stored cycle
type CycleRecord struct {
	CycleID   string
	RunID     string
	Seq       int
	Solved    bool
	Error     string
	Duration  time.Duration
	Solution  []float64
	CreatedAt time.Time
}

// TaskRecord is a stored task status snapshot
type TaskRecord struct {
	Name         string
	Priority     int
	Activation   float64
	YRef         []float64
	YSolution    []float64
	ResidualNorm float64
}

// Open opens or creates the database at path
func Open(path string) (*Recorder, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Recorder{db: db}, nil
}

// Close closes the underlying database connection
func (r *Recorder) Close() error {
	return r.db.Close()
}

// StartRun registers a run and returns its id
func (r *Recorder) StartRun(scene string, sceneType types.SceneType) (string, error) {
	id := uuid.New().String()
	_, err := r.db.Exec(
		`INSERT INTO runs (run_id, scene, scene_type, started_at) VALUES (?, ?, ?, ?)`,
		id, scene, string(sceneType), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

// RecordCycle stores a cycle and its task status in one transaction and returns the cycle id
func (r *Recorder) RecordCycle(runID string, c Cycle) (string, error) {
	var exists int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM runs WHERE run_id = ?`, runID).Scan(&exists); err != nil {
		return "", fmt.Errorf("lookup run: %w", err)
	}
	if exists == 0 {
		return "", fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	id := uuid.New().String()
	solved := 1
	var errText sql.NullString
	if c.Err != nil {
		solved = 0
		errText = sql.NullString{String: c.Err.Error(), Valid: true}
	}

	tx, err := r.db.Begin()
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO cycles (cycle_id, run_id, seq, solved, error, duration_us, solution, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, runID, c.Seq, solved, errText, c.Duration.Microseconds(),
		encodeVector(c.Solution), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", fmt.Errorf("insert cycle: %w", err)
	}

	for i, st := range c.Status.Elements {
		_, err = tx.Exec(
			`INSERT INTO task_status (cycle_id, name, priority, activation, y_ref, y_solution, residual_norm)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, c.Status.Names[i], st.Config.Priority, st.Activation,
			encodeVector(st.YRef), encodeVector(st.YSolution), floats.Norm(st.Residual, 2),
		)
		if err != nil {
			return "", fmt.Errorf("insert task status: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return id, nil
}

// Cycles returns the cycles of a run in sequence order
func (r *Recorder) Cycles(runID string) ([]CycleRecord, error) {
	rows, err := r.db.Query(
		`SELECT cycle_id, run_id, seq, solved, error, duration_us, solution, created_at
		 FROM cycles WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("query cycles: %w", err)
	}
	defer rows.Close()

	var out []CycleRecord
	for rows.Next() {
		var (
			rec      CycleRecord
			errText  sql.NullString
			duration int64
			solution []byte
			created  string
		)
		if err := rows.Scan(&rec.CycleID, &rec.RunID, &rec.Seq, &rec.Solved, &errText, &duration, &solution, &created); err != nil {
			return nil, fmt.Errorf("scan cycle: %w", err)
		}
		rec.Error = errText.String
		rec.Duration = time.Duration(duration) * time.Microsecond
		rec.Solution = decodeVector(solution)
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// TaskStatus returns the task snapshots stored with a cycle, in constraint order
func (r *Recorder) TaskStatus(cycleID string) ([]TaskRecord, error) {
	rows, err := r.db.Query(
		`SELECT name, priority, activation, y_ref, y_solution, residual_norm
		 FROM task_status WHERE cycle_id = ? ORDER BY id`, cycleID)
	if err != nil {
		return nil, fmt.Errorf("query task status: %w", err)
	}
	defer rows.Close()

	var out []TaskRecord
	for rows.Next() {
		var (
			rec       TaskRecord
			yRef, ySo []byte
			residual  sql.NullFloat64
		)
		if err := rows.Scan(&rec.Name, &rec.Priority, &rec.Activation, &yRef, &ySo, &residual); err != nil {
			return nil, fmt.Errorf("scan task status: %w", err)
		}
		rec.YRef = decodeVector(yRef)
		rec.YSolution = decodeVector(ySo)
		rec.ResidualNorm = residual.Float64
		out = append(out, rec)
	}
	return out, rows.Err()
}

// FailureCount returns the number of failed cycles of a run
func (r *Recorder) FailureCount(runID string) (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM cycles WHERE run_id = ? AND solved = 0`, runID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count failures: %w", err)
	}
	return n, nil
}

func encodeVector(v []float64) []byte {
	buf := make([]byte, len(v)*8)
	for i, f := range v {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float64 {
	v := make([]float64, len(b)/8)
	for i := range v {
		v[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[i*8:]))
	}
	return v
}
