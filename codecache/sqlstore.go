package codecache

import (
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// ErrArtifactNotFound indicates the requested artifact doesn't exist.
var ErrArtifactNotFound = errors.New("codecache: artifact not found")

// SQLStore persists artifacts in a SQLite database so a restarted
// runtime can skip recompiling functions whose bytecode and assumptions
// are unchanged.
type SQLStore struct {
	db *sql.DB
}

// OpenSQLStore opens (creating if needed) the artifact database at path.
func OpenSQLStore(path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS artifacts (
		hash BLOB PRIMARY KEY,
		payload BLOB NOT NULL,
		created_at INTEGER NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	return &SQLStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Put persists an artifact, replacing any previous artifact with the
// same bytecode hash.
func (s *SQLStore) Put(a *Artifact) error {
	payload, err := MarshalArtifact(a)
	if err != nil {
		return fmt.Errorf("marshaling artifact: %w", err)
	}
	_, err = s.db.Exec(
		"INSERT OR REPLACE INTO artifacts (hash, payload, created_at) VALUES (?, ?, ?)",
		a.BytecodeHash[:], payload, a.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("saving artifact: %w", err)
	}
	return nil
}

// Get loads the artifact for the given bytecode hash.
func (s *SQLStore) Get(h [32]byte) (*Artifact, error) {
	var payload []byte
	err := s.db.QueryRow("SELECT payload FROM artifacts WHERE hash = ?", h[:]).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrArtifactNotFound
		}
		return nil, fmt.Errorf("querying artifact: %w", err)
	}
	return UnmarshalArtifact(payload)
}

// Invalidate deletes every persisted artifact whose compilation depends
// on the given assumption digest and returns how many were deleted. The
// digest lives inside the CBOR payload, so this scans the table.
func (s *SQLStore) Invalidate(digest [32]byte) (int, error) {
	rows, err := s.db.Query("SELECT hash, payload FROM artifacts")
	if err != nil {
		return 0, fmt.Errorf("scanning artifacts: %w", err)
	}
	var stale [][]byte
	for rows.Next() {
		var hash, payload []byte
		if err := rows.Scan(&hash, &payload); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scanning artifact row: %w", err)
		}
		a, err := UnmarshalArtifact(payload)
		if err != nil {
			rows.Close()
			return 0, err
		}
		if a.DependencyDigest == digest {
			stale = append(stale, hash)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("scanning artifacts: %w", err)
	}
	rows.Close()

	for _, hash := range stale {
		if _, err := s.db.Exec("DELETE FROM artifacts WHERE hash = ?", hash); err != nil {
			return 0, fmt.Errorf("deleting artifact: %w", err)
		}
	}
	return len(stale), nil
}
