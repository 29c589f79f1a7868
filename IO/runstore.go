package IO

import (
	"database/sql"
	"time"

	_ "modernc.org/sqlite"
)

// RunStore records training runs, per-epoch metrics, and served predictions in
// a local SQLite database.
type RunStore struct {
	db *sql.DB
}

const runSchema = `
CREATE TABLE IF NOT EXISTS runs (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	kind       TEXT NOT NULL,
	config     TEXT NOT NULL,
	started_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS epochs (
	run_id   INTEGER NOT NULL REFERENCES runs(id),
	epoch    INTEGER NOT NULL,
	loss     REAL NOT NULL,
	accuracy REAL NOT NULL,
	PRIMARY KEY (run_id, epoch)
);
CREATE TABLE IF NOT EXISTS predictions (
	run_id     INTEGER NOT NULL REFERENCES runs(id),
	smiles     TEXT NOT NULL,
	label      TEXT NOT NULL,
	confidence REAL NOT NULL,
	created_at TEXT NOT NULL
);
`

func OpenRunStore(path string) (*RunStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(runSchema); err != nil {
		db.Close()
		return nil, err
	}
	return &RunStore{db: db}, nil
}

func (s *RunStore) Close() error {
	return s.db.Close()
}

// CreateRun registers a run and returns its id. kind is "train" or "finetune".
func (s *RunStore) CreateRun(kind, configJSON string) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO runs (kind, config, started_at) VALUES (?, ?, ?)`,
		kind, configJSON, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *RunStore) LogEpoch(runID int64, epoch int, loss, accuracy float64) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO epochs (run_id, epoch, loss, accuracy) VALUES (?, ?, ?, ?)`,
		runID, epoch, loss, accuracy,
	)
	return err
}

func (s *RunStore) LogPrediction(runID int64, smiles, label string, confidence float64) error {
	_, err := s.db.Exec(
		`INSERT INTO predictions (run_id, smiles, label, confidence, created_at) VALUES (?, ?, ?, ?, ?)`,
		runID, smiles, label, confidence, time.Now().UTC().Format(time.RFC3339),
	)
	return err
}
