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

// Package vecfilter holds the shared domain types for the spatial
// vector-data filtering engine: layer references, filter requests,
// filter states, and errors. The engine's top-level context (Core)
// lives in package orchestrator.
package vecfilter

import "time"

// BackendKind identifies which backend implementation owns a layer.
type BackendKind int

const (
	// BackendUnknown is the zero value and is never a valid selection.
	BackendUnknown BackendKind = iota
	BackendPostgreSQL
	BackendSpatialite
	BackendOGR
)

func (k BackendKind) String() string {
	switch k {
	case BackendPostgreSQL:
		return "postgresql"
	case BackendSpatialite:
		return "spatialite"
	case BackendOGR:
		return "ogr"
	default:
		return "unknown"
	}
}

// Predicate is a canonical binary spatial predicate name.
type Predicate string

const (
	Intersects Predicate = "intersects"
	Contains   Predicate = "contains"
	Within     Predicate = "within"
	Touches    Predicate = "touches"
	Crosses    Predicate = "crosses"
	Overlaps   Predicate = "overlaps"
	Disjoint   Predicate = "disjoint"
	Equals     Predicate = "equals"
	Covers     Predicate = "covers"
	CoveredBy  Predicate = "covered_by"
	DWithin    Predicate = "dwithin"
)

// CombineOperator controls how a new spatial-match result is combined with
// a previous filter state.
type CombineOperator int

const (
	CombineAND CombineOperator = iota
	CombineOR
	CombineNOTAND
	CombineREPLACE
)

// CRSPolicy controls whether geometry is reprojected before use.
type CRSPolicy int

const (
	CRSAuto CRSPolicy = iota
	CRSForceMetric
	CRSAsIs
)

// CentroidMode selects the interior-point strategy used by geomutil.Centroid.
type CentroidMode int

const (
	CentroidPointOnSurface CentroidMode = iota
	CentroidGeometric
	CentroidAuto
)

// BufferEndcap selects the style used when dilating/eroding a geometry.
type BufferEndcap int

const (
	EndcapRound BufferEndcap = iota
	EndcapFlat
	EndcapSquare
)

// LayerRef is a stable, opaque identifier for a vector dataset borrowed
// from the host application. The core must treat it as possibly invalid on
// every use (see §3 of SPEC_FULL.md) and revalidate via Host.GetLayer.
type LayerRef string

// LayerDescriptor is the resolved, filterable description of a layer.
// All three of GeometryColumn, SRID, and PrimaryKey must be non-zero for a
// layer to participate in filtering, or LayerNotFilterable is returned.
type LayerDescriptor struct {
	Ref             LayerRef
	Kind            BackendKind
	ProviderURI     string
	GeometryColumn  string
	SRID            int
	GeometryType    string
	PrimaryKey      string
	FeatureCountHint uint64
}

// Filterable reports whether d has every field required to participate in
// a filter request.
func (d *LayerDescriptor) Filterable() bool {
	return d != nil && d.GeometryColumn != "" && d.SRID != 0 && d.PrimaryKey != ""
}

// FilterRequest is an immutable description of one filter operation.
type FilterRequest struct {
	SourceLayerRef      LayerRef
	SourceExpression    string
	TargetLayerRefs     []LayerRef
	Predicates          []Predicate
	BufferValue         float64
	UseSourceCentroid   bool
	UseTargetCentroid   bool
	CombineOperator     CombineOperator
	PreviousFilterState map[LayerRef]FilterState
	CRSPolicy           CRSPolicy
}

// FilterKind describes the shape of a filter's payload.
type FilterKind int

const (
	KindSubsetString FilterKind = iota
	KindMaterializedView
	KindFIDSet
)

// FIDSet is an ordered, deduplicated set of primary-key values.
type FIDSet struct {
	ordered []int64
	index   map[int64]struct{}
}

// NewFIDSet builds a FIDSet from fids, deduplicating and preserving the
// order of first occurrence.
func NewFIDSet(fids ...int64) *FIDSet {
	s := &FIDSet{index: make(map[int64]struct{}, len(fids))}
	for _, f := range fids {
		s.Add(f)
	}
	return s
}

// Add inserts fid if not already present.
func (s *FIDSet) Add(fid int64) {
	if _, ok := s.index[fid]; ok {
		return
	}
	s.index[fid] = struct{}{}
	s.ordered = append(s.ordered, fid)
}

// Contains reports whether fid is a member of s.
func (s *FIDSet) Contains(fid int64) bool {
	if s == nil {
		return false
	}
	_, ok := s.index[fid]
	return ok
}

// Len returns the number of members in s.
func (s *FIDSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.ordered)
}

// Slice returns the members of s in insertion order. The caller must not
// mutate the returned slice.
func (s *FIDSet) Slice() []int64 {
	if s == nil {
		return nil
	}
	return s.ordered
}

// Clone returns a deep copy of s.
func (s *FIDSet) Clone() *FIDSet {
	if s == nil {
		return NewFIDSet()
	}
	return NewFIDSet(s.ordered...)
}

// And returns the intersection of a and b, preserving a's ordering.
func (a *FIDSet) And(b *FIDSet) *FIDSet {
	out := NewFIDSet()
	for _, f := range a.Slice() {
		if b.Contains(f) {
			out.Add(f)
		}
	}
	return out
}

// Or returns the union of a and b, with a's members first.
func (a *FIDSet) Or(b *FIDSet) *FIDSet {
	out := NewFIDSet(a.Slice()...)
	for _, f := range b.Slice() {
		out.Add(f)
	}
	return out
}

// NotAnd returns a set-difference a \ b.
func (a *FIDSet) NotAnd(b *FIDSet) *FIDSet {
	out := NewFIDSet()
	for _, f := range a.Slice() {
		if !b.Contains(f) {
			out.Add(f)
		}
	}
	return out
}

// Equal reports whether a and b contain the same members, ignoring order.
func (a *FIDSet) Equal(b *FIDSet) bool {
	if a.Len() != b.Len() {
		return false
	}
	for _, f := range a.Slice() {
		if !b.Contains(f) {
			return false
		}
	}
	return true
}

// FilterState is the immutable, backend-native filter that results from
// applying a request to one layer.
type FilterState struct {
	LayerRef    LayerRef
	Backend     BackendKind
	Kind        FilterKind
	SubsetExpr  string  // valid when Kind == KindSubsetString or KindMaterializedView
	FIDs        *FIDSet // valid when Kind == KindFIDSet
	FeatureCount uint64
	Timestamp   time.Time
	Description string
}

// GlobalFilterState is an atomic snapshot of filters across every
// participating layer after a multi-layer request.
type GlobalFilterState struct {
	States    map[LayerRef]FilterState
	Timestamp time.Time
}

// Clone returns a deep-enough copy of g suitable for pushing to history
// (the FilterState values themselves are immutable once constructed).
func (g GlobalFilterState) Clone() GlobalFilterState {
	out := GlobalFilterState{States: make(map[LayerRef]FilterState, len(g.States)), Timestamp: g.Timestamp}
	for k, v := range g.States {
		out.States[k] = v
	}
	return out
}

// FilterFingerprint is a deterministic hash over the normalized inputs of
// one source-geometry-to-target-layer filter (see §4.6).
type FilterFingerprint string

// FilterOutcome summarizes the result of one orchestrator run, per layer.
type FilterOutcome struct {
	PerLayer []LayerOutcome
}

// LayerOutcome describes the result of filtering one target layer.
type LayerOutcome struct {
	LayerRef     LayerRef
	Backend      BackendKind
	RowsMatched  uint64
	CacheHit     bool
	WallClock    time.Duration
	State        FilterState
}
