// Package store persists matrix product states, operators and run records in sqlite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fumin/mpopt/mps"
	"github.com/fumin/mpopt/tensor"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

const (
	tableChains = "chains"
	tableSites  = "sites"
	tableRuns   = "runs"

	kindMPS = "mps"
	kindMPO = "mpo"

	timeout = 3 * time.Second
)

// ErrNotFound is returned when no chain has the requested name.
var ErrNotFound = errors.New("not found")

// Store is a sqlite database of chains and runs.
type Store struct {
	Path string

	db *sql.DB
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	// sqlite allows a single writer.
	db.SetMaxOpenConns(1)
	if err := prepareDB(db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, fmt.Sprintf("db %s", path))
	}
	return &Store{Path: path, db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func prepareDB(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (name TEXT PRIMARY KEY, kind TEXT, length INTEGER, phys TEXT) STRICT`, tableChains),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (chain TEXT, idx INTEGER, shape TEXT, data BLOB, PRIMARY KEY (chain, idx)) STRICT`, tableSites),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (id TEXT PRIMARY KEY, model TEXT, energy REAL, converged INTEGER, sweeps INTEGER, created INTEGER) STRICT`, tableRuns),
	}
	for _, sqlStr := range stmts {
		if _, err := db.ExecContext(ctx, sqlStr); err != nil {
			return errors.Wrap(err, sqlStr)
		}
	}
	return nil
}

// SaveMPS stores m under name, replacing any chain of the same name.
func (s *Store) SaveMPS(ctx context.Context, name string, m *mps.MPS) error {
	sites := make([]*tensor.Dense, 0, m.Len())
	for i := range m.Len() {
		sites = append(sites, m.Site(i))
	}
	return s.saveChain(ctx, name, kindMPS, m.PhysicalDims(), sites)
}

// SaveMPO stores o under name, replacing any chain of the same name.
func (s *Store) SaveMPO(ctx context.Context, name string, o *mps.MPO) error {
	sites := make([]*tensor.Dense, 0, o.Len())
	for i := range o.Len() {
		sites = append(sites, o.Site(i))
	}
	return s.saveChain(ctx, name, kindMPO, o.PhysicalDims(), sites)
}

// LoadMPS returns the MPS stored under name.
// The canonical form is not persisted, the returned MPS has form mps.FormNone.
func (s *Store) LoadMPS(ctx context.Context, name string) (*mps.MPS, error) {
	sites, err := s.loadChain(ctx, name, kindMPS, []string{mps.LegLeft, mps.LegPhys, mps.LegRight})
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	m, err := mps.New(sites)
	if err != nil {
		return nil, errors.Wrap(err, name)
	}
	return m, nil
}

// LoadMPO returns the MPO stored under name.
func (s *Store) LoadMPO(ctx context.Context, name string) (*mps.MPO, error) {
	sites, err := s.loadChain(ctx, name, kindMPO, []string{mps.LegLeft, mps.LegIn, mps.LegOut, mps.LegRight})
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	o, err := mps.NewMPO(sites)
	if err != nil {
		return nil, errors.Wrap(err, name)
	}
	return o, nil
}

func (s *Store) saveChain(ctx context.Context, name, kind string, phys []int, sites []*tensor.Dense) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "")
	}
	defer tx.Rollback()

	sqlStr := fmt.Sprintf(`DELETE FROM %s WHERE chain=?`, tableSites)
	if _, err := tx.ExecContext(ctx, sqlStr, name); err != nil {
		return errors.Wrap(err, sqlStr)
	}
	sqlStr = fmt.Sprintf(`INSERT OR REPLACE INTO %s (name, kind, length, phys) VALUES (?, ?, ?, ?)`, tableChains)
	if _, err := tx.ExecContext(ctx, sqlStr, name, kind, len(sites), formatInts(phys)); err != nil {
		return errors.Wrap(err, sqlStr)
	}
	sqlStr = fmt.Sprintf(`INSERT INTO %s (chain, idx, shape, data) VALUES (?, ?, ?, ?)`, tableSites)
	for i, site := range sites {
		// Sites are stored as their (left, rest) matricization.
		data, err := site.Matrix(1).MarshalBinary()
		if err != nil {
			return errors.Wrap(err, fmt.Sprintf("site %d", i))
		}
		if _, err := tx.ExecContext(ctx, sqlStr, name, i, formatInts(site.Shape()), data); err != nil {
			return errors.Wrap(err, fmt.Sprintf("%s site %d", sqlStr, i))
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

func (s *Store) loadChain(ctx context.Context, name, kind string, legNames []string) ([]*tensor.Dense, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var storedKind string
	var length int
	sqlStr := fmt.Sprintf(`SELECT kind, length FROM %s WHERE name=?`, tableChains)
	err := s.db.QueryRowContext(ctx, sqlStr, name).Scan(&storedKind, &length)
	switch {
	case err == sql.ErrNoRows:
		return nil, errors.Wrapf(ErrNotFound, "%s %q", kind, name)
	case err != nil:
		return nil, errors.Wrap(err, sqlStr)
	}
	if storedKind != kind {
		return nil, errors.Wrapf(ErrNotFound, "%q is a %s, expected %s", name, storedKind, kind)
	}

	sqlStr = fmt.Sprintf(`SELECT idx, shape, data FROM %s WHERE chain=? ORDER BY idx`, tableSites)
	rows, err := s.db.QueryContext(ctx, sqlStr, name)
	if err != nil {
		return nil, errors.Wrap(err, sqlStr)
	}
	defer rows.Close()

	sites := make([]*tensor.Dense, 0, length)
	for rows.Next() {
		var idx int
		var shapeStr string
		var data []byte
		if err := rows.Scan(&idx, &shapeStr, &data); err != nil {
			return nil, errors.Wrap(err, "")
		}
		if idx != len(sites) {
			return nil, errors.Wrapf(mps.ErrShape, "%q missing site %d", name, len(sites))
		}
		site, err := decodeSite(shapeStr, data, legNames)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("%q site %d", name, idx))
		}
		sites = append(sites, site)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "")
	}
	if len(sites) != length {
		return nil, errors.Wrapf(mps.ErrShape, "%q has %d sites, expected %d", name, len(sites), length)
	}
	return sites, nil
}

func decodeSite(shapeStr string, data []byte, legNames []string) (*tensor.Dense, error) {
	shape, err := parseInts(shapeStr)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	if len(shape) != len(legNames) {
		return nil, errors.Wrapf(mps.ErrShape, "shape %v for legs %v", shape, legNames)
	}
	var m mat.Dense
	if err := m.UnmarshalBinary(data); err != nil {
		return nil, errors.Wrap(err, "")
	}
	legs := make([]tensor.Leg, 0, len(shape))
	for i, d := range shape {
		legs = append(legs, tensor.Leg{Name: legNames[i], Dim: d})
	}
	site, err := tensor.FromMatrix(&m, legs...)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	return site, nil
}

// Run is the record of an optimization.
type Run struct {
	ID        uuid.UUID
	Model     string
	Energy    float64
	Converged bool
	Sweeps    int
	Created   time.Time
}

// SaveRun stores r, assigning an ID and a creation time when they are zero, and returns the stored record.
func (s *Store) SaveRun(ctx context.Context, r Run) (Run, error) {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.Created.IsZero() {
		r.Created = time.Now()
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	sqlStr := fmt.Sprintf(`INSERT OR REPLACE INTO %s (id, model, energy, converged, sweeps, created) VALUES (?, ?, ?, ?, ?, ?)`, tableRuns)
	converged := 0
	if r.Converged {
		converged = 1
	}
	args := []any{r.ID.String(), r.Model, r.Energy, converged, r.Sweeps, r.Created.UnixNano()}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return Run{}, errors.Wrap(err, fmt.Sprintf("%s %#v", sqlStr, args))
	}
	return r, nil
}

// Runs returns the runs of a model in the order of creation, or all runs if model is empty.
func (s *Store) Runs(ctx context.Context, model string) ([]Run, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	sqlStr := fmt.Sprintf(`SELECT id, model, energy, converged, sweeps, created FROM %s WHERE ?='' OR model=? ORDER BY created, id`, tableRuns)
	rows, err := s.db.QueryContext(ctx, sqlStr, model, model)
	if err != nil {
		return nil, errors.Wrap(err, sqlStr)
	}
	defer rows.Close()

	runs := make([]Run, 0)
	for rows.Next() {
		var r Run
		var id string
		var converged int
		var created int64
		if err := rows.Scan(&id, &r.Model, &r.Energy, &converged, &r.Sweeps, &created); err != nil {
			return nil, errors.Wrap(err, "")
		}
		if r.ID, err = uuid.Parse(id); err != nil {
			return nil, errors.Wrap(err, id)
		}
		r.Converged = converged != 0
		r.Created = time.Unix(0, created)
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "")
	}
	return runs, nil
}

func formatInts(xs []int) string {
	ss := make([]string, 0, len(xs))
	for _, x := range xs {
		ss = append(ss, strconv.Itoa(x))
	}
	return strings.Join(ss, ",")
}

func parseInts(s string) ([]int, error) {
	fields := strings.Split(s, ",")
	xs := make([]int, 0, len(fields))
	for _, f := range fields {
		x, err := strconv.Atoi(f)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("%q", s))
		}
		xs = append(xs, x)
	}
	return xs, nil
}
