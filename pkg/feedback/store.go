// Package feedback persists estimation feedback in SQLite: observed
// versus estimated costs per plan, and model weight snapshots so
// adaptive models can warm-start across runs.
package feedback

import (
	"database/sql"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"querycost/pkg/cost"
	"querycost/pkg/logging"
	"querycost/pkg/plan"
	"querycost/pkg/qerr"
	"querycost/pkg/types"
)

// Observation is one recorded estimated-versus-actual pair.
type Observation struct {
	ID         int64
	Model      string
	Collection string
	PlanDigest string
	Estimated  float64
	Actual     float64
	RelError   float64
	At         time.Time
}

// Store is a SQLite-backed feedback log. Safe for concurrent use.
type Store struct {
	db  *sql.DB
	mu  sync.Mutex
	log *slog.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS observations (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	model       TEXT    NOT NULL,
	collection  TEXT    NOT NULL,
	plan_digest TEXT    NOT NULL,
	estimated   REAL    NOT NULL,
	actual      REAL    NOT NULL,
	rel_error   REAL    NOT NULL,
	created_at  INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS model_weights (
	model      TEXT NOT NULL,
	operation  TEXT NOT NULL,
	weight     REAL NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (model, operation)
);`

// Open opens or creates the store at the given filesystem path.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, qerr.Validation("STORE_PATH_EMPTY", "feedback store path must not be empty", "")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, qerr.Wrap(err, "STORE_OPEN_FAILED", "open", "feedback")
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, qerr.Wrap(err, "STORE_INIT_FAILED", "open", "feedback")
	}

	log := logging.WithComponent("feedback")
	if _, err := db.Exec(`PRAGMA journal_mode = WAL; PRAGMA synchronous = NORMAL;`); err != nil {
		log.Warn("failed to set pragmas", "error", err)
	}

	return &Store{db: db, log: log}, nil
}

// Record stores one observation for a plan estimated by the named
// model. The plan digest ties repeated observations of the same plan
// shape together.
func (s *Store) Record(model string, p *plan.Node, est *cost.Estimate, actual *cost.ActualMetrics) error {
	if p == nil || est == nil || actual == nil {
		return qerr.Validation("OBSERVATION_INCOMPLETE", "plan, estimate and actual metrics are all required", "")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		`INSERT INTO observations (model, collection, plan_digest, estimated, actual, rel_error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		model,
		p.Collection,
		p.Digest(),
		est.TotalCost,
		actual.TotalCost,
		cost.RelativeError(actual.TotalCost, est.TotalCost),
		time.Now().Unix(),
	)
	if err != nil {
		return qerr.Wrap(err, "OBSERVATION_WRITE_FAILED", "record", "feedback")
	}
	return nil
}

// Recent returns the newest observations, newest first. A limit <= 0
// returns everything.
func (s *Store) Recent(limit int) ([]Observation, error) {
	q := `SELECT id, model, collection, plan_digest, estimated, actual, rel_error, created_at
	      FROM observations ORDER BY id DESC`
	args := []any{}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, qerr.Wrap(err, "OBSERVATION_READ_FAILED", "recent", "feedback")
	}
	defer rows.Close()

	var out []Observation
	for rows.Next() {
		var o Observation
		var createdAt int64
		if err := rows.Scan(&o.ID, &o.Model, &o.Collection, &o.PlanDigest, &o.Estimated, &o.Actual, &o.RelError, &createdAt); err != nil {
			return nil, qerr.Wrap(err, "OBSERVATION_READ_FAILED", "recent", "feedback")
		}
		o.At = time.Unix(createdAt, 0)
		out = append(out, o)
	}
	return out, rows.Err()
}

// Prune drops all but the newest keep observations.
func (s *Store) Prune(keep int) error {
	if keep < 0 {
		keep = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		`DELETE FROM observations WHERE id NOT IN
		 (SELECT id FROM observations ORDER BY id DESC LIMIT ?)`, keep)
	if err != nil {
		return qerr.Wrap(err, "OBSERVATION_PRUNE_FAILED", "prune", "feedback")
	}
	return nil
}

// SaveWeights snapshots a model's weight table, replacing any previous
// snapshot for the same model.
func (s *Store) SaveWeights(model string, weights map[types.Operation]float64) error {
	if model == "" {
		return qerr.Validation("MODEL_NAME_EMPTY", "model name must not be empty", "")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return qerr.Wrap(err, "WEIGHTS_WRITE_FAILED", "save_weights", "feedback")
	}

	stmt, err := tx.Prepare(
		`INSERT OR REPLACE INTO model_weights (model, operation, weight, updated_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return qerr.Wrap(err, "WEIGHTS_WRITE_FAILED", "save_weights", "feedback")
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for op, w := range weights {
		if _, err := stmt.Exec(model, string(op), w, now); err != nil {
			tx.Rollback()
			return qerr.Wrap(err, "WEIGHTS_WRITE_FAILED", "save_weights", "feedback")
		}
	}
	if err := tx.Commit(); err != nil {
		return qerr.Wrap(err, "WEIGHTS_WRITE_FAILED", "save_weights", "feedback")
	}

	s.log.Debug("weights saved", "model", model, "operations", len(weights))
	return nil
}

// LoadWeights returns the stored weight snapshot for a model. Unknown
// operation names are skipped; a model with no snapshot yields an empty
// map.
func (s *Store) LoadWeights(model string) (map[types.Operation]float64, error) {
	rows, err := s.db.Query(`SELECT operation, weight FROM model_weights WHERE model = ?`, model)
	if err != nil {
		return nil, qerr.Wrap(err, "WEIGHTS_READ_FAILED", "load_weights", "feedback")
	}
	defer rows.Close()

	out := make(map[types.Operation]float64)
	for rows.Next() {
		var name string
		var w float64
		if err := rows.Scan(&name, &w); err != nil {
			return nil, qerr.Wrap(err, "WEIGHTS_READ_FAILED", "load_weights", "feedback")
		}
		op, ok := types.ParseOperation(name)
		if !ok {
			s.log.Warn("skipping unknown operation in stored weights", "operation", name)
			continue
		}
		out[op] = w
	}
	return out, rows.Err()
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
