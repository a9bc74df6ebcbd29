// Package store persists program images in SQLite.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/chazu/noodle/pkg/bytecode"
)

// ErrProgramNotFound indicates the requested program doesn't exist
var ErrProgramNotFound = errors.New("program not found")

// MemoryPath opens a private in-memory store.
const MemoryPath = ":memory:"

// Record describes a stored program without its image.
type Record struct {
	Name         string
	Revision     string // Changes on every Put
	Entry        string
	Functions    int
	Instructions int
	Size         int // Image bytes
	Updated      time.Time
}

// Store handles SQLite storage for program images
type Store struct {
	db   *sql.DB
	path string
	log  commonlog.Logger
	mu   sync.Mutex
}

// Open opens or creates the store at path, creating parent directories.
func Open(path string) (*Store, error) {
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// A single connection keeps :memory: databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS programs (
		name         TEXT PRIMARY KEY,
		revision     TEXT NOT NULL,
		entry        TEXT NOT NULL,
		functions    INTEGER NOT NULL,
		instructions INTEGER NOT NULL,
		image        BLOB NOT NULL,
		updated_at   INTEGER NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	s := &Store{db: db, path: path, log: commonlog.GetLogger("noodle.store")}
	s.log.Debugf("opened %s", path)
	return s, nil
}

// Path returns the database path the store was opened with.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Put stores p under name, replacing any earlier program of that name.
func (s *Store) Put(name string, p *bytecode.Program) (Record, error) {
	if name == "" {
		return Record{}, fmt.Errorf("program name must not be empty")
	}
	image, err := bytecode.MarshalImage(p)
	if err != nil {
		return Record{}, fmt.Errorf("encoding program %s: %w", name, err)
	}

	rec := Record{
		Name:         name,
		Revision:     uuid.New().String(),
		Entry:        p.Entry,
		Functions:    len(p.Functions),
		Instructions: p.InstructionCount(),
		Size:         len(image),
		Updated:      time.Now().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO programs
		(name, revision, entry, functions, instructions, image, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.Name, rec.Revision, rec.Entry, rec.Functions, rec.Instructions, image, rec.Updated.UnixNano(),
	)
	if err != nil {
		return Record{}, fmt.Errorf("saving program: %w", err)
	}

	s.log.Infof("stored %s revision %s (%d bytes)", name, rec.Revision, rec.Size)
	return rec, nil
}

// Get loads the named program.
func (s *Store) Get(name string) (*bytecode.Program, Record, error) {
	var image []byte
	var updated int64
	rec := Record{Name: name}

	err := s.db.QueryRow(
		"SELECT revision, entry, functions, instructions, image, updated_at FROM programs WHERE name = ?",
		name,
	).Scan(&rec.Revision, &rec.Entry, &rec.Functions, &rec.Instructions, &image, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, Record{}, fmt.Errorf("%w: %s", ErrProgramNotFound, name)
		}
		return nil, Record{}, fmt.Errorf("querying program: %w", err)
	}
	rec.Size = len(image)
	rec.Updated = time.Unix(0, updated).UTC()

	p, err := bytecode.UnmarshalImage(image)
	if err != nil {
		return nil, Record{}, fmt.Errorf("decoding program %s: %w", name, err)
	}
	return p, rec, nil
}

// List returns all stored programs ordered by name.
func (s *Store) List() ([]Record, error) {
	rows, err := s.db.Query(
		"SELECT name, revision, entry, functions, instructions, length(image), updated_at FROM programs ORDER BY name",
	)
	if err != nil {
		return nil, fmt.Errorf("listing programs: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var updated int64
		if err := rows.Scan(&rec.Name, &rec.Revision, &rec.Entry, &rec.Functions, &rec.Instructions, &rec.Size, &updated); err != nil {
			return nil, fmt.Errorf("scanning program: %w", err)
		}
		rec.Updated = time.Unix(0, updated).UTC()
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Delete removes the named program.
func (s *Store) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec("DELETE FROM programs WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("deleting program: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting program: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrProgramNotFound, name)
	}

	s.log.Infof("deleted %s", name)
	return nil
}
