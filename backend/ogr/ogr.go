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

// Package ogr implements the §4.4c in-memory backend: no side SQL, just
// in-process feature iteration over geometries loaded via
// github.com/ctessum/geom's shapefile decoder (ShapefileSource), with a
// bounding-box pre-filter grounded on the same Bounds().Overlaps check
// the teacher's atmospheric grid regridder uses before doing exact
// polygon overlap math (emissions/aep/grid.go).
package ogr

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/ctessum/geom"

	"github.com/spatialmodel/vecfilter"
	"github.com/spatialmodel/vecfilter/backend"
	"github.com/spatialmodel/vecfilter/expr"
	"github.com/spatialmodel/vecfilter/geomutil"
	"github.com/spatialmodel/vecfilter/predicate"
)

// LargeLayerThreshold is the feature count above which ApplyFilter
// reports progress during a scan, per §4.4c.
var LargeLayerThreshold = 100_000

// DefaultProgressInterval is the fallback reporting cadence when a Port
// is constructed without an explicit interval (New(source, 0)).
const DefaultProgressInterval = 5_000

// ProgressFunc receives (features scanned, total) during a large-layer
// scan; nil disables reporting.
type ProgressFunc func(scanned, total int)

// FeatureSource is the minimal feature-access contract ApplyFilter needs
// from the host: iterate every feature's primary key, geometry, and
// attributes for one layer. The host.Host interface's IterFeatures
// satisfies the shape this is adapted from; this narrower interface
// keeps the ogr package independent of the root package's Host type so
// it can be tested with an in-memory fixture.
type FeatureSource interface {
	Iterate(ctx context.Context, layer vecfilter.LayerRef, fn func(fid int64, g geom.Geom, attrs map[string]interface{}) error) error
}

// Port is the backend.Port implementation for the in-memory OGR
// backend.
type Port struct {
	source           FeatureSource
	progressInterval int
}

// New builds a Port backed by source, reporting scan progress every
// progressEveryN features (the engine's execution.progress_every_n_features
// option, per §6). progressEveryN of 0 falls back to
// DefaultProgressInterval.
func New(source FeatureSource, progressEveryN uint) *Port {
	interval := int(progressEveryN)
	if interval <= 0 {
		interval = DefaultProgressInterval
	}
	return &Port{source: source, progressInterval: interval}
}

func (p *Port) Kind() vecfilter.BackendKind { return vecfilter.BackendOGR }

func (p *Port) Capabilities() backend.CapabilitySet { return backend.OGRCapabilities() }

func (p *Port) OpenSession(ctx context.Context, layer vecfilter.LayerDescriptor) (backend.Session, error) {
	return &session{source: p.source, progressInterval: p.progressInterval}, nil
}

type sourceHandle struct {
	geom geom.Geom
	srid int
}

func (sourceHandle) isSourceHandle() {}

type session struct {
	source           FeatureSource
	progressInterval int
	mu               sync.Mutex
	progress         ProgressFunc
}

// SetProgress installs a progress callback for subsequent ApplyFilter
// calls on this session.
func (s *session) SetProgress(fn ProgressFunc) {
	s.mu.Lock()
	s.progress = fn
	s.mu.Unlock()
}

// PrepareSource parses srcWKT back into a geometry the in-process
// predicate evaluators can operate on directly — the OGR backend has no
// query planner to hand a WKT string to, so it needs the structured
// geometry, not the text.
func (s *session) PrepareSource(ctx context.Context, srcWKT string, srid int) (backend.SourceHandle, error) {
	g, err := parseWKT(srcWKT)
	if err != nil {
		return nil, &vecfilter.FilterError{Kind: vecfilter.GeometryInvalid, Backend: vecfilter.BackendOGR, Message: err.Error(), Cause: err}
	}
	return sourceHandle{geom: g, srid: srid}, nil
}

// ApplyFilter streams target features through a bounding-box pre-filter
// (each feature's bounds are tested once against the source envelope;
// no spatial index is built), evaluates the requested predicate(s)
// in-process, and returns an explicit FID set. When the buffered source
// geometry is Empty, the result is the universally-false subset per
// §4.4c's negative-buffer rule.
func (s *session) ApplyFilter(ctx context.Context, f backend.FilterSpec) (vecfilter.FilterOutcome, error) {
	src, ok := f.Source.(sourceHandle)
	if !ok {
		return vecfilter.FilterOutcome{}, &vecfilter.FilterError{Kind: vecfilter.BackendQueryFailed, Backend: vecfilter.BackendOGR, Message: "source handle did not originate from this backend"}
	}

	srcGeom := src.geom
	if f.UseSourceCentroid {
		if pg, ok := srcGeom.(geom.Polygonal); ok {
			srcGeom = geomutil.Centroid(pg, true)
		}
	}
	if f.BufferValue != 0 {
		buffered := geomutil.Buffer(srcGeom, f.BufferValue)
		if geomutil.IsEmpty(buffered) {
			return emptyOutcome(f.Target.Ref), nil
		}
		srcGeom = buffered
	}
	srcBounds := srcGeom.Bounds()

	var evalr *expr.Evaluator
	if f.AttributeExpr != "" {
		e, err := expr.NewEvaluator(f.AttributeExpr)
		if err != nil {
			return vecfilter.FilterOutcome{}, err
		}
		evalr = e
	}

	for _, pr := range f.Predicates {
		if !predicate.Supported(pr, vecfilter.BackendOGR) {
			return vecfilter.FilterOutcome{}, &vecfilter.FilterError{Kind: vecfilter.PredicateNotSupported, Backend: vecfilter.BackendOGR, Message: fmt.Sprintf("predicate %q has no in-process decomposition on the OGR backend", pr)}
		}
	}

	matched := vecfilter.NewFIDSet()
	scanned := 0
	total := int(f.Target.FeatureCountHint)

	// The bbox pre-filter is only sound for predicates that are monotonic
	// in "do the envelopes overlap" -- a feature whose bounds never touch
	// the source's cannot intersect/contain/be-within/overlap it, so
	// skipping it ahead of the exact test is safe. disjoint is the
	// opposite: it is true precisely when two geometries do NOT
	// intersect, so a feature the bbox test would discard is exactly the
	// kind of feature disjoint is supposed to match. Any request that
	// includes disjoint disables the pre-filter so every feature gets the
	// exact test.
	skipBBoxPrefilter := requestsDisjoint(f.Predicates)

	err := s.source.Iterate(ctx, f.Target.Ref, func(fid int64, g geom.Geom, attrs map[string]interface{}) error {
		scanned++
		s.reportProgress(scanned, total)

		if g == nil {
			return nil
		}
		if !skipBBoxPrefilter && !g.Bounds().Overlaps(srcBounds) {
			return nil
		}
		targetGeom := g
		if f.UseTargetCentroid {
			if pg, ok := g.(geom.Polygonal); ok {
				targetGeom = geomutil.Centroid(pg, true)
			}
		}
		if !matchesAny(targetGeom, srcGeom, f.Predicates) {
			return nil
		}
		if evalr != nil {
			ok, err := evalr.Eval(attrs)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
		}
		matched.Add(fid)
		return nil
	})
	if err != nil {
		return vecfilter.FilterOutcome{}, &vecfilter.FilterError{Kind: vecfilter.BackendQueryFailed, Backend: vecfilter.BackendOGR, Message: err.Error(), Cause: err}
	}

	combined := combineFIDSets(f.Previous, f.Combine, matched)
	subset := SubsetString(f.Target.PrimaryKey, combined)

	state := vecfilter.FilterState{
		LayerRef:     f.Target.Ref,
		Backend:      vecfilter.BackendOGR,
		Kind:         vecfilter.KindFIDSet,
		SubsetExpr:   subset,
		FIDs:         combined,
		FeatureCount: uint64(combined.Len()),
	}
	return vecfilter.FilterOutcome{
		PerLayer: []vecfilter.LayerOutcome{{LayerRef: f.Target.Ref, Backend: vecfilter.BackendOGR, RowsMatched: uint64(combined.Len()), State: state}},
	}, nil
}

func (s *session) reportProgress(scanned, total int) {
	if total < LargeLayerThreshold {
		return
	}
	interval := s.progressInterval
	if interval <= 0 {
		interval = DefaultProgressInterval
	}
	if scanned%interval != 0 {
		return
	}
	s.mu.Lock()
	fn := s.progress
	s.mu.Unlock()
	if fn != nil {
		fn(scanned, total)
	}
}

func emptyOutcome(ref vecfilter.LayerRef) vecfilter.FilterOutcome {
	state := vecfilter.FilterState{LayerRef: ref, Backend: vecfilter.BackendOGR, Kind: vecfilter.KindFIDSet, SubsetExpr: "0 = 1", FIDs: vecfilter.NewFIDSet()}
	return vecfilter.FilterOutcome{PerLayer: []vecfilter.LayerOutcome{{LayerRef: ref, Backend: vecfilter.BackendOGR, State: state}}}
}

func combineFIDSets(previous *vecfilter.FilterState, combineOp vecfilter.CombineOperator, next *vecfilter.FIDSet) *vecfilter.FIDSet {
	if previous == nil || previous.FIDs == nil || combineOp == vecfilter.CombineREPLACE {
		return next
	}
	switch combineOp {
	case vecfilter.CombineAND:
		return previous.FIDs.And(next)
	case vecfilter.CombineOR:
		return previous.FIDs.Or(next)
	case vecfilter.CombineNOTAND:
		return previous.FIDs.NotAnd(next)
	default:
		return next
	}
}

// SubsetString renders the degenerate "{pk} IN (...)" shape of §4.4c,
// or the universally-false "0 = 1" when the set is empty — never
// "fid = -1", which some OGR drivers reject. Exported so the
// orchestrator can render the same shape when it resolves a cached fid
// set without calling back into ApplyFilter.
func SubsetString(pk string, fids *vecfilter.FIDSet) string {
	if fids.Len() == 0 {
		return "0 = 1"
	}
	parts := make([]string, fids.Len())
	for i, f := range fids.Slice() {
		parts[i] = strconv.FormatInt(f, 10)
	}
	return fmt.Sprintf("%s IN (%s)", pk, strings.Join(parts, ", "))
}

// requestsDisjoint reports whether preds includes disjoint, the one
// canonical predicate the bbox pre-filter in ApplyFilter cannot be
// safely applied ahead of.
func requestsDisjoint(preds []vecfilter.Predicate) bool {
	for _, p := range preds {
		if p == vecfilter.Disjoint {
			return true
		}
	}
	return false
}

func matchesAny(target, source geom.Geom, preds []vecfilter.Predicate) bool {
	for _, p := range preds {
		if matches(target, source, p) {
			return true
		}
	}
	return false
}

// matches evaluates one canonical predicate between a target and source
// geometry using the geom.Polygonal boolean operations (Intersection,
// Difference) the same way geomutil.go composes buffers, plus the
// Point/LineString Within methods for the non-polygonal operand. DWithin
// reduces to Intersects because the caller has already grown source by
// the requested distance (see ApplyFilter).
func matches(target, source geom.Geom, p vecfilter.Predicate) bool {
	switch p {
	case vecfilter.Intersects, vecfilter.DWithin:
		return intersectsGeom(target, source)
	case vecfilter.Contains:
		return containsGeom(target, source)
	case vecfilter.Within:
		return containsGeom(source, target)
	case vecfilter.Overlaps:
		return intersectsGeom(target, source) && !containsGeom(target, source) && !containsGeom(source, target)
	case vecfilter.Disjoint:
		return !intersectsGeom(target, source)
	case vecfilter.Equals:
		return containsGeom(target, source) && containsGeom(source, target)
	default:
		return false
	}
}

// containsGeom reports whether outer contains inner. When inner is
// polygonal this is an exact area-difference test (inner minus outer
// leaves no area); otherwise it falls back to the ray-casting Within
// status the geom package derives for points and lines.
func containsGeom(outer, inner geom.Geom) bool {
	outerPoly, ok := outer.(geom.Polygonal)
	if !ok {
		return boundsEqual(outer, inner)
	}
	if innerPoly, ok := inner.(geom.Polygonal); ok {
		return innerPoly.Difference(outerPoly).Area() == 0
	}
	ws, ok := withinStatus(inner, outerPoly)
	return ok && ws != geom.Outside
}

// intersectsGeom reports whether a and b share any point. Polygon-polygon
// pairs use the intersection area; a polygonal operand paired with a
// point or line uses Within; two non-polygonal operands fall back to a
// bounds comparison, which is exact for the Point-vs-Point case this
// backend's PrepareSource can actually produce.
func intersectsGeom(a, b geom.Geom) bool {
	aPoly, aOK := a.(geom.Polygonal)
	bPoly, bOK := b.(geom.Polygonal)
	switch {
	case aOK && bOK:
		return aPoly.Intersection(bPoly).Area() > 0
	case aOK:
		ws, ok := withinStatus(b, aPoly)
		return ok && ws != geom.Outside
	case bOK:
		ws, ok := withinStatus(a, bPoly)
		return ok && ws != geom.Outside
	default:
		return a.Bounds().Overlaps(b.Bounds())
	}
}

// withinStatus dispatches to the concrete Within method geom exposes per
// non-polygonal geometry kind. ok is false for a geometry kind this
// backend doesn't evaluate against a polygon (e.g. another Polygonal,
// which containsGeom/intersectsGeom handle separately).
func withinStatus(g geom.Geom, poly geom.Polygonal) (geom.WithinStatus, bool) {
	switch t := g.(type) {
	case geom.Point:
		return t.Within(poly), true
	case geom.MultiPoint:
		return t.Within(poly), true
	case geom.LineString:
		return t.Within(poly), true
	case geom.MultiLineString:
		return t.Within(poly), true
	default:
		return geom.Outside, false
	}
}

// boundsEqual is the equality fallback for two non-polygonal operands
// (points or lines); it compares their bounding boxes only.
func boundsEqual(a, b geom.Geom) bool {
	ab, bb := a.Bounds(), b.Bounds()
	if ab == nil || bb == nil {
		return false
	}
	return ab.Min.X == bb.Min.X && ab.Min.Y == bb.Min.Y && ab.Max.X == bb.Max.X && ab.Max.Y == bb.Max.Y
}

// parseWKT reads back the handful of geometry kinds
// geomutil.CanonicalWKT can produce (POINT, MULTIPOINT, LINESTRING,
// POLYGON, MULTIPOLYGON, GEOMETRYCOLLECTION). The in-process backend
// has no query planner to hand WKT to, so PrepareSource must turn it
// back into a structured geom.Geom itself; this is the mirror image of
// wkt.go's encoder, built against the same token grammar rather than a
// general-purpose WKT library (none of which the pack carries for this
// geometry type).
func parseWKT(s string) (geom.Geom, error) {
	p := &wktParser{s: s}
	p.skipSpace()
	g, err := p.parseGeometry()
	if err != nil {
		return nil, err
	}
	return g, nil
}

type wktParser struct {
	s   string
	pos int
}

func (p *wktParser) skipSpace() {
	for p.pos < len(p.s) && (p.s[p.pos] == ' ' || p.s[p.pos] == '\t' || p.s[p.pos] == '\n') {
		p.pos++
	}
}

func (p *wktParser) consumeTag() string {
	start := p.pos
	for p.pos < len(p.s) && p.s[p.pos] != ' ' && p.s[p.pos] != '(' {
		p.pos++
	}
	tag := strings.ToUpper(p.s[start:p.pos])
	p.skipSpace()
	return tag
}

func (p *wktParser) expect(c byte) error {
	p.skipSpace()
	if p.pos >= len(p.s) || p.s[p.pos] != c {
		return fmt.Errorf("ogr: malformed WKT, expected %q at position %d in %q", c, p.pos, p.s)
	}
	p.pos++
	p.skipSpace()
	return nil
}

func (p *wktParser) peek() byte {
	p.skipSpace()
	if p.pos >= len(p.s) {
		return 0
	}
	return p.s[p.pos]
}

func (p *wktParser) parseGeometry() (geom.Geom, error) {
	tag := p.consumeTag()
	if strings.HasPrefix(strings.ToUpper(p.s[p.pos:]), "EMPTY") {
		p.pos += len("EMPTY")
		return geomutilEmpty(), nil
	}
	switch tag {
	case "POINT":
		pt, err := p.parseCoord()
		return pt, err
	case "MULTIPOINT":
		pts, err := p.parseCoordList()
		return geom.MultiPoint(pts), err
	case "LINESTRING":
		pts, err := p.parseCoordList()
		return geom.LineString(pts), err
	case "MULTILINESTRING":
		return p.parseMultiLineString()
	case "POLYGON":
		return p.parsePolygon()
	case "MULTIPOLYGON":
		return p.parseMultiPolygon()
	case "GEOMETRYCOLLECTION":
		return p.parseGeometryCollection()
	default:
		return nil, fmt.Errorf("ogr: unsupported WKT geometry type %q", tag)
	}
}

func (p *wktParser) parseCoord() (geom.Point, error) {
	hadParen := p.peek() == '('
	if hadParen {
		if err := p.expect('('); err != nil {
			return geom.Point{}, err
		}
	}
	start := p.pos
	for p.pos < len(p.s) && p.s[p.pos] != ',' && p.s[p.pos] != ')' {
		p.pos++
	}
	fields := strings.Fields(p.s[start:p.pos])
	if len(fields) != 2 {
		return geom.Point{}, fmt.Errorf("ogr: malformed coordinate in %q", p.s)
	}
	x, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return geom.Point{}, err
	}
	y, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return geom.Point{}, err
	}
	if hadParen {
		if err := p.expect(')'); err != nil {
			return geom.Point{}, err
		}
	}
	return geom.Point{X: x, Y: y}, nil
}

func (p *wktParser) parseCoordList() ([]geom.Point, error) {
	if err := p.expect('('); err != nil {
		return nil, err
	}
	var pts []geom.Point
	for {
		pt, err := p.parseCoord()
		if err != nil {
			return nil, err
		}
		pts = append(pts, pt)
		if p.peek() == ',' {
			p.pos++
			p.skipSpace()
			continue
		}
		break
	}
	if err := p.expect(')'); err != nil {
		return nil, err
	}
	return pts, nil
}

func (p *wktParser) parseRingList() ([][]geom.Point, error) {
	if err := p.expect('('); err != nil {
		return nil, err
	}
	var rings [][]geom.Point
	for {
		ring, err := p.parseCoordList()
		if err != nil {
			return nil, err
		}
		rings = append(rings, ring)
		if p.peek() == ',' {
			p.pos++
			p.skipSpace()
			continue
		}
		break
	}
	if err := p.expect(')'); err != nil {
		return nil, err
	}
	return rings, nil
}

func (p *wktParser) parsePolygon() (geom.Polygon, error) {
	rings, err := p.parseRingList()
	return geom.Polygon(rings), err
}

func (p *wktParser) parseMultiLineString() (geom.MultiLineString, error) {
	rings, err := p.parseRingList()
	if err != nil {
		return nil, err
	}
	out := make(geom.MultiLineString, len(rings))
	for i, r := range rings {
		out[i] = geom.LineString(r)
	}
	return out, nil
}

func (p *wktParser) parseMultiPolygon() (geom.MultiPolygon, error) {
	if err := p.expect('('); err != nil {
		return nil, err
	}
	var polys geom.MultiPolygon
	for {
		rings, err := p.parseRingList()
		if err != nil {
			return nil, err
		}
		polys = append(polys, geom.Polygon(rings))
		if p.peek() == ',' {
			p.pos++
			p.skipSpace()
			continue
		}
		break
	}
	if err := p.expect(')'); err != nil {
		return nil, err
	}
	return polys, nil
}

func (p *wktParser) parseGeometryCollection() (geom.GeometryCollection, error) {
	if err := p.expect('('); err != nil {
		return nil, err
	}
	var gc geom.GeometryCollection
	for {
		sub, err := p.parseGeometry()
		if err != nil {
			return nil, err
		}
		gc = append(gc, sub)
		if p.peek() == ',' {
			p.pos++
			p.skipSpace()
			continue
		}
		break
	}
	if err := p.expect(')'); err != nil {
		return nil, err
	}
	return gc, nil
}

func geomutilEmpty() geom.Geom {
	return geom.GeometryCollection{}
}

func (s *session) CountFeatures(ctx context.Context, outcome vecfilter.FilterOutcome) (int, error) {
	total := 0
	for _, lo := range outcome.PerLayer {
		total += int(lo.State.FeatureCount)
	}
	return total, nil
}

func (s *session) Reset(ctx context.Context) error { return nil }

func (s *session) Cleanup(ctx context.Context) {}
