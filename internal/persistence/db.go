// Package persistence provides SQLite-based storage for the chronicle
// archive and the engine checkpoint used to resume after restart.
package persistence

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/amphoreus/internal/engine"
	"github.com/talgya/amphoreus/internal/world"
)

// DB wraps a SQLite connection.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS chronicles (
		generation INTEGER PRIMARY KEY,
		final_cycle_count INTEGER NOT NULL,
		final_entropy REAL NOT NULL,
		reset_trigger TEXT NOT NULL,
		archived_at TEXT NOT NULL,
		survivors_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS entities (
		id TEXT PRIMARY KEY,
		class INTEGER NOT NULL,
		path INTEGER NOT NULL,
		power REAL NOT NULL,
		corruption REAL NOT NULL,
		trauma REAL NOT NULL,
		retained_cycles INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS entropy_samples (
		idx INTEGER PRIMARY KEY,
		sample REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS world_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := db.conn.Exec(schema)
	return err
}

type chronicleRow struct {
	Generation      uint64  `db:"generation"`
	FinalCycleCount uint64  `db:"final_cycle_count"`
	FinalEntropy    float64 `db:"final_entropy"`
	ResetTrigger    string  `db:"reset_trigger"`
	ArchivedAt      string  `db:"archived_at"`
	SurvivorsJSON   string  `db:"survivors_json"`
}

// AppendChronicle archives one completed generation. Records are
// append-only: re-inserting a generation is an error.
func (db *DB) AppendChronicle(c engine.Chronicle) error {
	survivorsJSON, err := json.Marshal(c.Survivors)
	if err != nil {
		return fmt.Errorf("marshal survivors: %w", err)
	}

	_, err = db.conn.Exec(`INSERT INTO chronicles
		(generation, final_cycle_count, final_entropy, reset_trigger, archived_at, survivors_json)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.Generation, c.FinalCycleCount, c.FinalEntropy, c.Trigger,
		c.ArchivedAt.UTC().Format(time.RFC3339Nano), string(survivorsJSON),
	)
	if err != nil {
		return fmt.Errorf("insert chronicle %d: %w", c.Generation, err)
	}
	return nil
}

// Chronicles returns the most recent limit records, oldest first.
func (db *DB) Chronicles(limit int) ([]engine.Chronicle, error) {
	var rows []chronicleRow
	err := db.conn.Select(&rows, `SELECT * FROM (
			SELECT generation, final_cycle_count, final_entropy, reset_trigger, archived_at, survivors_json
			FROM chronicles ORDER BY generation DESC LIMIT ?
		) ORDER BY generation ASC`, limit)
	if err != nil {
		return nil, err
	}

	out := make([]engine.Chronicle, 0, len(rows))
	for _, row := range rows {
		archivedAt, err := time.Parse(time.RFC3339Nano, row.ArchivedAt)
		if err != nil {
			return nil, fmt.Errorf("chronicle %d timestamp: %w", row.Generation, err)
		}
		var survivors []world.Entity
		if err := json.Unmarshal([]byte(row.SurvivorsJSON), &survivors); err != nil {
			return nil, fmt.Errorf("chronicle %d survivors: %w", row.Generation, err)
		}
		out = append(out, engine.Chronicle{
			Generation:      row.Generation,
			FinalCycleCount: row.FinalCycleCount,
			FinalEntropy:    row.FinalEntropy,
			Trigger:         row.ResetTrigger,
			ArchivedAt:      archivedAt,
			Survivors:       survivors,
		})
	}
	return out, nil
}

// SaveCheckpoint writes the full resumable engine state (full replace).
func (db *DB) SaveCheckpoint(cp engine.Checkpoint, seed int64) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM entities"); err != nil {
		return err
	}

	stmt, err := tx.Preparex(`INSERT INTO entities
		(id, class, path, power, corruption, trauma, retained_cycles)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range cp.World.Roster {
		_, err := stmt.Exec(e.ID.String(), e.Class, e.Path, e.Power, e.Corruption, e.Trauma, e.RetainedCycles)
		if err != nil {
			return fmt.Errorf("insert entity %s: %w", e.ID, err)
		}
	}

	if _, err := tx.Exec("DELETE FROM entropy_samples"); err != nil {
		return err
	}
	for i, sample := range cp.Samples {
		if _, err := tx.Exec("INSERT INTO entropy_samples (idx, sample) VALUES (?, ?)", i, sample); err != nil {
			return fmt.Errorf("insert sample %d: %w", i, err)
		}
	}

	memoryJSON, err := json.Marshal(cp.World.Memory)
	if err != nil {
		return fmt.Errorf("marshal memory: %w", err)
	}

	meta := map[string]string{
		"generation":          strconv.FormatUint(cp.Generation, 10),
		"cycle_count":         strconv.FormatUint(cp.World.CycleCount, 10),
		"destruction_entropy": strconv.FormatFloat(cp.World.DestructionEntropy, 'g', -1, 64),
		"flamebearer":         cp.World.Flamebearer.String(),
		"memory_json":         string(memoryJSON),
		"seed":                strconv.FormatInt(seed, 10),
		"saved_at":            time.Now().UTC().Format(time.RFC3339Nano),
	}
	for key, value := range meta {
		if _, err := tx.Exec("INSERT OR REPLACE INTO world_meta (key, value) VALUES (?, ?)", key, value); err != nil {
			return fmt.Errorf("save meta %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	slog.Info("checkpoint saved",
		"generation", cp.Generation,
		"cycle", cp.World.CycleCount,
		"entities", len(cp.World.Roster),
		"samples", len(cp.Samples),
	)
	return nil
}

// HasCheckpoint reports whether a resumable state exists.
func (db *DB) HasCheckpoint() bool {
	var count int
	if err := db.conn.Get(&count, "SELECT COUNT(*) FROM world_meta WHERE key = 'generation'"); err != nil {
		return false
	}
	return count > 0
}

// SavedSeed returns the seed the checkpoint was produced with.
func (db *DB) SavedSeed() (int64, error) {
	value, err := db.getMeta("seed")
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(value, 10, 64)
}

// LoadCheckpoint reads the saved engine state back.
func (db *DB) LoadCheckpoint() (engine.Checkpoint, error) {
	var cp engine.Checkpoint

	generation, err := db.getMetaUint("generation")
	if err != nil {
		return cp, err
	}
	cycleCount, err := db.getMetaUint("cycle_count")
	if err != nil {
		return cp, err
	}
	entropyStr, err := db.getMeta("destruction_entropy")
	if err != nil {
		return cp, err
	}
	entropy, err := strconv.ParseFloat(entropyStr, 64)
	if err != nil {
		return cp, fmt.Errorf("parse destruction_entropy: %w", err)
	}
	flamebearerStr, err := db.getMeta("flamebearer")
	if err != nil {
		return cp, err
	}
	flamebearer, err := uuid.Parse(flamebearerStr)
	if err != nil {
		return cp, fmt.Errorf("parse flamebearer id: %w", err)
	}
	memoryJSON, err := db.getMeta("memory_json")
	if err != nil {
		return cp, err
	}
	var memory world.MemoryLog
	if err := json.Unmarshal([]byte(memoryJSON), &memory); err != nil {
		return cp, fmt.Errorf("parse memory: %w", err)
	}

	type entityRow struct {
		ID             string  `db:"id"`
		Class          uint8   `db:"class"`
		Path           uint8   `db:"path"`
		Power          float64 `db:"power"`
		Corruption     float64 `db:"corruption"`
		Trauma         float64 `db:"trauma"`
		RetainedCycles uint64  `db:"retained_cycles"`
	}
	var rows []entityRow
	if err := db.conn.Select(&rows, "SELECT id, class, path, power, corruption, trauma, retained_cycles FROM entities ORDER BY rowid"); err != nil {
		return cp, err
	}
	roster := make([]world.Entity, 0, len(rows))
	for _, row := range rows {
		id, err := uuid.Parse(row.ID)
		if err != nil {
			return cp, fmt.Errorf("parse entity id %q: %w", row.ID, err)
		}
		roster = append(roster, world.Entity{
			ID:             id,
			Class:          world.EntityClass(row.Class),
			Path:           world.Path(row.Path),
			Power:          row.Power,
			Corruption:     row.Corruption,
			Trauma:         row.Trauma,
			RetainedCycles: row.RetainedCycles,
		})
	}

	var samples []float64
	if err := db.conn.Select(&samples, "SELECT sample FROM entropy_samples ORDER BY idx ASC"); err != nil {
		return cp, err
	}

	cp.Generation = generation
	cp.World = world.RestoreData{
		CycleCount:         cycleCount,
		DestructionEntropy: entropy,
		Memory:             memory,
		Flamebearer:        flamebearer,
		Roster:             roster,
	}
	cp.Samples = samples
	return cp, nil
}

func (db *DB) getMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM world_meta WHERE key = ?", key)
	if err != nil {
		return "", fmt.Errorf("meta %s: %w", key, err)
	}
	return value, nil
}

func (db *DB) getMetaUint(key string) (uint64, error) {
	value, err := db.getMeta(key)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse meta %s: %w", key, err)
	}
	return n, nil
}
