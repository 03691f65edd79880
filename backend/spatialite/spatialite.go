/*
Copyright (C) 2026 the vecfilter authors.
This file is part of vecfilter.

vecfilter is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

vecfilter is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with vecfilter.  If not, see <http://www.gnu.org/licenses/>.
*/

// Package spatialite implements the §4.4b Spatialite/GeoPackage backend:
// temp tables with an R-tree spatial index for prepared source
// geometries, and subset-string filters over the host's own table.
//
// The mod_spatialite extension-loading approach (sql.Register over a
// sqlite3.SQLiteDriver with Extensions set) and the use of sqlx for
// scanning are sourced from the gokoala GeoPackage reader in the example
// pack; the teacher itself has no sqlite dependency at all.
package spatialite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"

	"github.com/spatialmodel/vecfilter"
	"github.com/spatialmodel/vecfilter/backend"
	"github.com/spatialmodel/vecfilter/expr"
	"github.com/spatialmodel/vecfilter/predicate"
)

const driverName = "vecfilter_spatialite"

var registerOnce sync.Once

// register installs the spatialite-loading sqlite3 driver exactly once
// per process; sql.Register panics if called twice with the same name.
func register() {
	registerOnce.Do(func() {
		driver := &sqlite3.SQLiteDriver{
			Extensions: []string{
				path.Join(os.Getenv("SPATIALITE_LIBRARY_PATH"), "mod_spatialite"),
			},
		}
		sql.Register(driverName, driver)
	})
}

// Port is the backend.Port implementation for Spatialite/GeoPackage.
type Port struct {
	db *sqlx.DB
}

// Open opens (or reuses) a connection to the spatialite/GeoPackage file
// at path, loading mod_spatialite once per connection as required by
// §4.4b. check_same_thread is not a concept on the Go driver side; the
// single *sql.DB connection pool serializes access the same way the
// teacher's single-threaded-but-reusable Python/SQLite connections do.
func Open(path string) (*Port, error) {
	register()
	db, err := sqlx.Connect(driverName, path)
	if err != nil {
		return nil, &vecfilter.FilterError{Kind: vecfilter.BackendUnavailable, Backend: vecfilter.BackendSpatialite, Message: "could not open spatialite database", Cause: err}
	}
	if _, err := db.Exec("SELECT InitSpatialMetaData(1)"); err != nil {
		// Already initialized is the common case; only treat as fatal if
		// the connection itself is unusable (caught below via Ping).
	}
	if err := db.Ping(); err != nil {
		return nil, &vecfilter.FilterError{Kind: vecfilter.BackendUnavailable, Backend: vecfilter.BackendSpatialite, Message: "spatialite connection unhealthy", Cause: err}
	}
	return &Port{db: db}, nil
}

func (p *Port) Kind() vecfilter.BackendKind { return vecfilter.BackendSpatialite }

func (p *Port) Capabilities() backend.CapabilitySet { return backend.SpatialiteCapabilities() }

func (p *Port) OpenSession(ctx context.Context, layer vecfilter.LayerDescriptor) (backend.Session, error) {
	return &session{db: p.db, id: newTableSuffix()}, nil
}

var tableCounter struct {
	sync.Mutex
	n int
}

func newTableSuffix() string {
	tableCounter.Lock()
	defer tableCounter.Unlock()
	tableCounter.n++
	return fmt.Sprintf("%d", tableCounter.n)
}

type sourceHandle struct {
	tableName string
	srid      int
}

func (sourceHandle) isSourceHandle() {}

type session struct {
	db        *sqlx.DB
	id        string
	mu        sync.Mutex
	tempTables []string
}

func (s *session) PrepareSource(ctx context.Context, srcWKT string, srid int) (backend.SourceHandle, error) {
	tableName := fmt.Sprintf("fm_src_%s", s.id)

	createSQL := fmt.Sprintf("CREATE TEMP TABLE %s (geom BLOB)", quoteIdent(tableName))
	if _, err := s.db.ExecContext(ctx, createSQL); err != nil {
		return nil, queryFailed(err)
	}
	s.track(tableName)

	insertSQL := fmt.Sprintf("INSERT INTO %s (geom) VALUES (GeomFromText(?, ?))", quoteIdent(tableName))
	if _, err := s.db.ExecContext(ctx, insertSQL, srcWKT, srid); err != nil {
		return nil, queryFailed(err)
	}

	rtreeSQL := fmt.Sprintf("SELECT CreateSpatialIndex('%s', 'geom')", tableName)
	if _, err := s.db.ExecContext(ctx, rtreeSQL); err != nil {
		return nil, queryFailed(err)
	}
	// CreateSpatialIndex builds its R*Tree as the virtual table
	// idx_<table>_<column>; dropping that virtual table also drops its
	// _node/_parent/_rowid shadow tables, so tracking this one name is
	// enough to release the whole index alongside the source table.
	s.track(rtreeIndexTable(tableName, "geom"))

	return sourceHandle{tableName: tableName, srid: srid}, nil
}

// ApplyFilter builds a subset string over the host's own table, exactly
// as §4.4b describes: no rewrite of the underlying data, just a WHERE
// clause the host applies via its own subset-string mechanism. When the
// previous subset is "invalid to combine" it is replaced instead of
// combined, regardless of the requested CombineOperator.
func (s *session) ApplyFilter(ctx context.Context, f backend.FilterSpec) (vecfilter.FilterOutcome, error) {
	src, ok := f.Source.(sourceHandle)
	if !ok {
		return vecfilter.FilterOutcome{}, &vecfilter.FilterError{Kind: vecfilter.BackendQueryFailed, Backend: vecfilter.BackendSpatialite, Message: "source handle did not originate from this backend"}
	}

	targetGeom := fmt.Sprintf("%s.%s", quoteIdent(string(f.Target.Ref)), quoteIdent(f.Target.GeometryColumn))
	if f.UseTargetCentroid {
		targetGeom = fmt.Sprintf("PointOnSurface(%s)", targetGeom)
	}
	srcGeomBase := fmt.Sprintf("(SELECT geom FROM %s LIMIT 1)", quoteIdent(src.tableName))
	if f.UseSourceCentroid {
		srcGeomBase = fmt.Sprintf("PointOnSurface(%s)", srcGeomBase)
	}
	srcGeomBuffered := srcGeomBase
	if f.BufferValue != 0 {
		srcGeomBuffered = fmt.Sprintf("ST_Buffer(%s, %g)", srcGeomBase, f.BufferValue)
	}

	var predClauses []string
	for _, pr := range f.Predicates {
		tmpl, err := predicate.TemplateFor(pr, vecfilter.BackendSpatialite)
		if err != nil {
			return vecfilter.FilterOutcome{}, err
		}
		if pr == vecfilter.DWithin {
			predClauses = append(predClauses, tmpl.Render(targetGeom, srcGeomBase, fmt.Sprintf("%g", f.BufferValue)))
			continue
		}
		predClauses = append(predClauses, tmpl.Render(targetGeom, srcGeomBuffered))
	}
	predExpr := strings.Join(predClauses, " OR ")

	mbrPrefilter := fmt.Sprintf(
		"%s IN (SELECT rowid FROM SpatialIndex WHERE f_table_name = %s AND search_frame = %s)",
		f.Target.PrimaryKey, sqlQuote(string(f.Target.Ref)), srcGeomBuffered,
	)

	clauses := []string{mbrPrefilter, "(" + predExpr + ")"}
	if f.AttributeExpr != "" {
		frag, err := expr.Translate(f.AttributeExpr, vecfilter.BackendSpatialite)
		if err != nil {
			return vecfilter.FilterOutcome{}, err
		}
		clauses = append(clauses, frag.SQL)
	}
	newWhere := strings.Join(clauses, " AND ")

	finalWhere := newWhere
	if f.Previous != nil && f.Previous.SubsetExpr != "" && !invalidToCombine(f.Previous.SubsetExpr) {
		switch f.Combine {
		case vecfilter.CombineAND:
			finalWhere = fmt.Sprintf("(%s) AND (%s)", f.Previous.SubsetExpr, newWhere)
		case vecfilter.CombineOR:
			finalWhere = fmt.Sprintf("(%s) OR (%s)", f.Previous.SubsetExpr, newWhere)
		case vecfilter.CombineNOTAND:
			finalWhere = fmt.Sprintf("(%s) AND NOT (%s)", f.Previous.SubsetExpr, newWhere)
		}
	}

	var count int64
	countSQL := fmt.Sprintf("SELECT count(*) FROM %s WHERE %s", quoteIdent(string(f.Target.Ref)), finalWhere)
	if err := s.db.GetContext(ctx, &count, countSQL); err != nil {
		return vecfilter.FilterOutcome{}, queryFailed(err)
	}

	state := vecfilter.FilterState{
		LayerRef:     f.Target.Ref,
		Backend:      vecfilter.BackendSpatialite,
		Kind:         vecfilter.KindSubsetString,
		SubsetExpr:   finalWhere,
		FeatureCount: uint64(count),
	}
	return vecfilter.FilterOutcome{
		PerLayer: []vecfilter.LayerOutcome{{LayerRef: f.Target.Ref, Backend: vecfilter.BackendSpatialite, RowsMatched: uint64(count), State: state}},
	}, nil
}

// invalidToCombine implements the shared rule referenced in §4.4b: a
// subset string containing EXISTS, a spatial-predicate function call, a
// backend alias prefix, or that looks like a bare PK-only IN-list from a
// prior multi-step OGR fallback, cannot be safely wrapped in another
// AND/OR and must be replaced outright.
func invalidToCombine(subset string) bool {
	upper := strings.ToUpper(subset)
	if strings.Contains(upper, "EXISTS") {
		return true
	}
	for _, tok := range []string{"INTERSECTS(", "CONTAINS(", "WITHIN(", "TOUCHES(", "CROSSES(", "OVERLAPS(", "DISJOINT(", "EQUALS(", "COVERS(", "COVEREDBY(", "PTDISTWITHIN("} {
		if strings.Contains(upper, tok) {
			return true
		}
	}
	if strings.Contains(subset, "fm_src_") {
		return true
	}
	if isPKOnlyList(subset) {
		return true
	}
	return false
}

// isPKOnlyList reports whether subset looks like the degenerate
// "{pk} IN (1, 2, 3)" shape the OGR backend emits, which carries no
// spatial semantics to recombine against.
func isPKOnlyList(subset string) bool {
	trimmed := strings.TrimSpace(subset)
	upper := strings.ToUpper(trimmed)
	if !strings.Contains(upper, " IN (") || !strings.HasSuffix(trimmed, ")") {
		return false
	}
	return !strings.ContainsAny(trimmed, "<>") && strings.Count(trimmed, "AND") == 0 && strings.Count(trimmed, "OR") == 0
}

func (s *session) CountFeatures(ctx context.Context, outcome vecfilter.FilterOutcome) (int, error) {
	total := 0
	for _, lo := range outcome.PerLayer {
		total += int(lo.State.FeatureCount)
	}
	return total, nil
}

func (s *session) Reset(ctx context.Context) error { return nil }

// Cleanup drops this session's temp tables and their R*Tree spatial
// index virtual tables (tracked alongside the base table at creation,
// per §4.4b's "releases the spatialite extension handle" cleanup
// requirement). Spatialite temp tables are connection-scoped already,
// but dropping them explicitly, newest first, avoids relying on
// connection teardown timing; drop errors are ignored, matching the teacher's
// "never rely on implicit teardown" cleanup posture elsewhere in the
// backend contract.
func (s *session) Cleanup(ctx context.Context) {
	s.mu.Lock()
	tables := s.tempTables
	s.tempTables = nil
	s.mu.Unlock()

	for i := len(tables) - 1; i >= 0; i-- {
		_, _ = s.db.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", quoteIdent(tables[i])))
	}
}

// rtreeIndexTable returns the virtual table name SpatiaLite's
// CreateSpatialIndex(table, column) registers its R*Tree index under.
func rtreeIndexTable(table, column string) string {
	return fmt.Sprintf("idx_%s_%s", table, column)
}

func (s *session) track(table string) {
	s.mu.Lock()
	s.tempTables = append(s.tempTables, table)
	s.mu.Unlock()
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func sqlQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func queryFailed(err error) error {
	return &vecfilter.FilterError{Kind: vecfilter.BackendQueryFailed, Backend: vecfilter.BackendSpatialite, Message: err.Error(), Cause: err}
}
