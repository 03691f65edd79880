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

// Package postgres implements the §4.4a PostgreSQL/PostGIS backend:
// session-scoped materialised views for prepared source geometries,
// GIST indexing, and WHERE-clause composition for apply_filter.
//
// Connection management follows the teacher's internal/postgis test
// helper (pgx/v4 + cenkalti/backoff/v4 for transient dial retries); the
// materialised-view lifecycle and query composition are new, since the
// teacher has no equivalent of a reusable spatial subset.
package postgres

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/spatialmodel/vecfilter"
	"github.com/spatialmodel/vecfilter/backend"
	"github.com/spatialmodel/vecfilter/expr"
	"github.com/spatialmodel/vecfilter/predicate"
)

// Port is the backend.Port implementation for PostgreSQL/PostGIS.
type Port struct {
	pool *pgxpool.Pool
	log  *logrus.Entry
}

// Dial connects to dsn with exponential-backoff retry, matching the
// teacher's postgis test fixture's connection loop.
func Dial(ctx context.Context, dsn string, log *logrus.Entry) (*Port, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	var pool *pgxpool.Pool
	err := backoff.Retry(func() error {
		p, err := pgxpool.Connect(ctx, dsn)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}, backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5))
	if err != nil {
		return nil, &vecfilter.FilterError{Kind: vecfilter.BackendUnavailable, Backend: vecfilter.BackendPostgreSQL, Message: "could not connect to PostgreSQL", Cause: err}
	}
	return &Port{pool: pool, log: log}, nil
}

func (p *Port) Kind() vecfilter.BackendKind { return vecfilter.BackendPostgreSQL }

func (p *Port) Capabilities() backend.CapabilitySet { return backend.PostgresCapabilities() }

func (p *Port) OpenSession(ctx context.Context, layer vecfilter.LayerDescriptor) (backend.Session, error) {
	return &session{pool: p.pool, log: p.log.WithField("layer", layer.Ref), sessionID: newSessionID()}, nil
}

var sessionCounter struct {
	sync.Mutex
	n int
}

// newSessionID produces a short, process-unique, SQL-identifier-safe
// suffix for materialised view names. It is deliberately not a uuid:
// the view name must stay under Postgres's 63-byte identifier limit
// once the fingerprint suffix is appended.
func newSessionID() string {
	sessionCounter.Lock()
	defer sessionCounter.Unlock()
	sessionCounter.n++
	return fmt.Sprintf("s%d", sessionCounter.n)
}

type sourceHandle struct {
	viewName string
	srid     int
}

func (sourceHandle) isSourceHandle() {}

type artifact struct {
	kind string // "materialized_view"
	name string
}

type session struct {
	pool      *pgxpool.Pool
	log       *logrus.Entry
	sessionID string

	mu        sync.Mutex
	artifacts []artifact
}

func (s *session) PrepareSource(ctx context.Context, srcWKT string, srid int) (backend.SourceHandle, error) {
	viewName := fmt.Sprintf("fm_src_%s_%s", s.sessionID, shortFingerprint(srcWKT, srid))

	exists, err := s.viewExists(ctx, viewName)
	if err != nil {
		return nil, queryFailed(err)
	}

	if exists {
		if _, err := s.pool.Exec(ctx, fmt.Sprintf("REFRESH MATERIALIZED VIEW %s", quoteIdent(viewName))); err != nil {
			return nil, queryFailed(err)
		}
		return sourceHandle{viewName: viewName, srid: srid}, nil
	}

	createSQL := fmt.Sprintf(
		"CREATE MATERIALIZED VIEW %s AS SELECT ST_GeomFromText($1, $2) AS geom",
		quoteIdent(viewName),
	)
	if _, err := s.pool.Exec(ctx, createSQL, srcWKT, srid); err != nil {
		return nil, queryFailed(err)
	}
	s.track(artifact{kind: "materialized_view", name: viewName})

	idxName := viewName + "_gix"
	idxSQL := fmt.Sprintf("CREATE INDEX %s ON %s USING GIST (geom)", quoteIdent(idxName), quoteIdent(viewName))
	if _, err := s.pool.Exec(ctx, idxSQL); err != nil {
		return nil, queryFailed(err)
	}

	return sourceHandle{viewName: viewName, srid: srid}, nil
}

func (s *session) viewExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM pg_matviews WHERE matviewname = $1)", name).Scan(&exists)
	return exists, err
}

// ApplyFilter composes WHERE <expr_translated> AND <bbox-prefilter> AND
// (<predicate1> OR <predicate2> ...), combining with previous per
// §4.4a's REPLACE/AND/OR/NOT_AND rules, and returns the resulting
// subset string together with its feature count.
func (s *session) ApplyFilter(ctx context.Context, f backend.FilterSpec) (vecfilter.FilterOutcome, error) {
	src, ok := f.Source.(sourceHandle)
	if !ok {
		return vecfilter.FilterOutcome{}, &vecfilter.FilterError{Kind: vecfilter.BackendQueryFailed, Backend: vecfilter.BackendPostgreSQL, Message: "source handle did not originate from this backend"}
	}

	newWhere, err := buildFilterWhere(f)
	if err != nil {
		return vecfilter.FilterOutcome{}, err
	}

	finalWhere := combineWhere(f.Previous, f.Combine, newWhere)

	countSQL := fmt.Sprintf(
		"SELECT count(*) FROM %s t, %s src WHERE %s",
		quoteIdent(string(f.Target.Ref)), quoteIdent(src.viewName), finalWhere,
	)
	var count int64
	if err := s.pool.QueryRow(ctx, countSQL).Scan(&count); err != nil {
		return vecfilter.FilterOutcome{}, queryFailed(err)
	}

	state := vecfilter.FilterState{
		LayerRef:     f.Target.Ref,
		Backend:      vecfilter.BackendPostgreSQL,
		Kind:         vecfilter.KindMaterializedView,
		SubsetExpr:   finalWhere,
		FeatureCount: uint64(count),
	}

	return vecfilter.FilterOutcome{
		PerLayer: []vecfilter.LayerOutcome{
			{
				LayerRef:    f.Target.Ref,
				Backend:     vecfilter.BackendPostgreSQL,
				RowsMatched: uint64(count),
				State:       state,
			},
		},
	}, nil
}

// buildFilterWhere renders the predicate/bbox/attribute clauses of a
// FilterSpec against the "t"/"src" aliases the count query in
// ApplyFilter joins on (FROM <target> t, <source view> src). Every
// geometry expression is aliased at the point it is built rather than
// rewritten afterward, so a target-aliased "t.geom" can never be
// confused with the source view's own "src.geom".
func buildFilterWhere(f backend.FilterSpec) (string, error) {
	targetGeom := "t.geom"
	if f.UseTargetCentroid {
		targetGeom = "ST_PointOnSurface(t.geom)"
	}
	srcGeomBase := "src.geom"
	if f.UseSourceCentroid {
		srcGeomBase = "ST_PointOnSurface(src.geom)"
	}
	// dwithin carries its own distance argument rather than pre-buffering
	// the source, so it is rendered against the unbuffered geometry; every
	// other predicate sees the buffered form.
	srcGeomBuffered := srcGeomBase
	if f.BufferValue != 0 {
		endcap := bufferEndcapStyle(f.BufferEndcap)
		srcGeomBuffered = fmt.Sprintf("ST_Buffer(%s, %g, %s)", srcGeomBase, f.BufferValue, endcap)
	}

	var predClauses []string
	for _, pr := range f.Predicates {
		tmpl, err := predicate.TemplateFor(pr, vecfilter.BackendPostgreSQL)
		if err != nil {
			return "", err
		}
		if pr == vecfilter.DWithin {
			dist := fmt.Sprintf("%g", f.BufferValue)
			predClauses = append(predClauses, tmpl.Render(targetGeom, srcGeomBase, dist))
			continue
		}
		predClauses = append(predClauses, tmpl.Render(targetGeom, srcGeomBuffered))
	}
	predExpr := strings.Join(predClauses, " OR ")

	bboxPrefilter := fmt.Sprintf("%s && ST_Envelope(%s)", targetGeom, srcGeomBuffered)

	clauses := []string{bboxPrefilter, "(" + predExpr + ")"}
	if f.AttributeExpr != "" {
		frag, err := expr.Translate(f.AttributeExpr, vecfilter.BackendPostgreSQL)
		if err != nil {
			return "", err
		}
		clauses = append(clauses, frag.SQL)
	}
	return strings.Join(clauses, " AND "), nil
}

func combineWhere(previous *vecfilter.FilterState, op vecfilter.CombineOperator, newWhere string) string {
	if previous == nil || previous.SubsetExpr == "" || op == vecfilter.CombineREPLACE {
		return newWhere
	}
	switch op {
	case vecfilter.CombineAND:
		return fmt.Sprintf("(%s) AND (%s)", previous.SubsetExpr, newWhere)
	case vecfilter.CombineOR:
		return fmt.Sprintf("(%s) OR (%s)", previous.SubsetExpr, newWhere)
	case vecfilter.CombineNOTAND:
		return fmt.Sprintf("(%s) AND NOT (%s)", previous.SubsetExpr, newWhere)
	default:
		return newWhere
	}
}

func bufferEndcapStyle(e vecfilter.BufferEndcap) string {
	switch e {
	case vecfilter.EndcapFlat:
		return "'endcap=flat'"
	case vecfilter.EndcapSquare:
		return "'endcap=square'"
	default:
		return "'endcap=round'"
	}
}

func (s *session) CountFeatures(ctx context.Context, outcome vecfilter.FilterOutcome) (int, error) {
	total := 0
	for _, lo := range outcome.PerLayer {
		total += int(lo.State.FeatureCount)
	}
	return total, nil
}

func (s *session) Reset(ctx context.Context) error {
	return nil
}

// Cleanup drops this session's materialised views in LIFO order,
// logging and continuing past any single failure rather than aborting,
// per §4.4a.
func (s *session) Cleanup(ctx context.Context) {
	s.mu.Lock()
	artifacts := s.artifacts
	s.artifacts = nil
	s.mu.Unlock()

	for i := len(artifacts) - 1; i >= 0; i-- {
		a := artifacts[i]
		sql := fmt.Sprintf("DROP MATERIALIZED VIEW IF EXISTS %s", quoteIdent(a.name))
		if _, err := s.pool.Exec(ctx, sql); err != nil {
			s.log.WithError(err).Warnf("failed to drop materialized view %s during cleanup", a.name)
		}
	}
}

func (s *session) track(a artifact) {
	s.mu.Lock()
	s.artifacts = append(s.artifacts, a)
	s.mu.Unlock()
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// shortFingerprint derives the view-name suffix from the source WKT and
// SRID; it does not need to be cryptographically strong, only stable
// and short enough to keep the view name under Postgres's identifier
// limit.
func shortFingerprint(wkt string, srid int) string {
	var h uint32 = 2166136261
	for i := 0; i < len(wkt); i++ {
		h ^= uint32(wkt[i])
		h *= 16777619
	}
	return fmt.Sprintf("%x_%d", h, srid)
}

func queryFailed(err error) error {
	if err == pgx.ErrNoRows {
		return &vecfilter.FilterError{Kind: vecfilter.BackendQueryFailed, Backend: vecfilter.BackendPostgreSQL, Message: "no rows", Cause: err}
	}
	return &vecfilter.FilterError{Kind: vecfilter.BackendQueryFailed, Backend: vecfilter.BackendPostgreSQL, Message: err.Error(), Cause: err}
}
