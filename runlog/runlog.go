// Package runlog keeps the history of program runs in a sqlite database.
package runlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"go.creack.net/threebit/vm"
)

var logger = commonlog.GetLogger("threebit.runlog")

// ErrRunNotFound is returned when no run matches the requested id.
var ErrRunNotFound = errors.New("run not found")

var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	digest     TEXT NOT NULL,
	name       TEXT NOT NULL,
	reg_a      TEXT NOT NULL,
	reg_b      TEXT NOT NULL,
	reg_c      TEXT NOT NULL,
	output     TEXT NOT NULL,
	status     TEXT NOT NULL,
	steps      INTEGER NOT NULL,
	error      TEXT NOT NULL,
	created_at INTEGER NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS runs_digest ON runs (digest, created_at)`,
}

// Run is a recorded execution.
type Run struct {
	ID        string
	Digest    string // Hex SHA-256 of the program code.
	Name      string
	Registers vm.Registers // Initial values.
	Output    []uint8
	Status    vm.Status
	Steps     int
	Error     string
	CreatedAt time.Time
}

// Log is the run history store.
type Log struct {
	db *sql.DB
}

// Open opens or creates the database at path.
func Open(ctx context.Context, path string) (*Log, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// Single writer.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close() // Best effort.
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close() // Best effort.
			return nil, fmt.Errorf("creating schema: %w", err)
		}
	}
	logger.Debugf("opened run log %s", path)
	return &Log{db: db}, nil
}

// Close closes the database.
func (l *Log) Close() error {
	return l.db.Close()
}

// Record stores the run, assigning its id and timestamp when unset.
func (l *Log) Record(ctx context.Context, r *Run) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO runs (id, digest, name, reg_a, reg_b, reg_c, output, status, steps, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Digest, r.Name,
		formatUint(r.Registers.A), formatUint(r.Registers.B), formatUint(r.Registers.C),
		formatOutput(r.Output), r.Status.String(), r.Steps, r.Error, r.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("saving run: %w", err)
	}
	logger.Debugf("recorded run %s of %s", r.ID, r.Name)
	return nil
}

// NewRun describes the final state of m.
func NewRun(name, digest string, m *vm.Machine) *Run {
	r := &Run{
		Digest:    digest,
		Name:      name,
		Registers: m.Config.Registers,
		Output:    append([]uint8(nil), m.Output...),
		Status:    m.Status,
		Steps:     m.Steps,
	}
	if m.Err != nil {
		r.Error = m.Err.Error()
	}
	return r
}

const selectRun = `SELECT id, digest, name, reg_a, reg_b, reg_c, output, status, steps, error, created_at FROM runs`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	var (
		r             Run
		a, b, c, out  string
		status        string
		createdAtNano int64
	)
	if err := s.Scan(&r.ID, &r.Digest, &r.Name, &a, &b, &c, &out, &status, &r.Steps, &r.Error, &createdAtNano); err != nil {
		return nil, err
	}
	var err error
	if r.Registers.A, err = strconv.ParseUint(a, 10, 64); err != nil {
		return nil, fmt.Errorf("invalid register a %q: %w", a, err)
	}
	if r.Registers.B, err = strconv.ParseUint(b, 10, 64); err != nil {
		return nil, fmt.Errorf("invalid register b %q: %w", b, err)
	}
	if r.Registers.C, err = strconv.ParseUint(c, 10, 64); err != nil {
		return nil, fmt.Errorf("invalid register c %q: %w", c, err)
	}
	if r.Output, err = parseOutput(out); err != nil {
		return nil, err
	}
	if r.Status, err = vm.ParseStatus(status); err != nil {
		return nil, err
	}
	r.CreatedAt = time.Unix(0, createdAtNano)
	return &r, nil
}

// Get returns the run with the given id.
func (l *Log) Get(ctx context.Context, id string) (*Run, error) {
	r, err := scanRun(l.db.QueryRowContext(ctx, selectRun+" WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("querying run: %w", err)
	}
	return r, nil
}

// ByDigest returns the runs of a program, oldest first.
func (l *Log) ByDigest(ctx context.Context, digest string) ([]*Run, error) {
	rows, err := l.db.QueryContext(ctx, selectRun+" WHERE digest = ? ORDER BY created_at, id", digest)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer func() { _ = rows.Close() }() // Best effort.

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("reading run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}
	return runs, nil
}

// sqlite integers are signed.
func formatUint(v uint64) string { return strconv.FormatUint(v, 10) }

func formatOutput(out []uint8) string {
	parts := make([]string, 0, len(out))
	for _, v := range out {
		parts = append(parts, strconv.Itoa(int(v)))
	}
	return strings.Join(parts, ",")
}

func parseOutput(s string) ([]uint8, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]uint8, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseUint(p, 10, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid output value %q: %w", p, err)
		}
		out = append(out, uint8(v))
	}
	return out, nil
}
