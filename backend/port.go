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

// Package backend declares §4.5's Port interface — the seam between the
// orchestrator's backend-agnostic algorithm and the three concrete
// implementations in backend/postgres, backend/spatialite and
// backend/ogr — along with the capability negotiation and selection
// rules of §4.8/§4.9.
package backend

import (
	"context"

	"github.com/spatialmodel/vecfilter"
)

// Session is an open working context against one backend. The
// orchestrator keeps one Session per backend kind and reuses it for
// every request until the engine is reset or shut down.
// Its Cleanup must be safe to call more than once.
type Session interface {
	// PrepareSource materializes srcWKT (already reprojected/buffered by
	// the caller) as a queryable source geometry scoped to this session,
	// returning an opaque handle the session can reuse across targets.
	PrepareSource(ctx context.Context, srcWKT string, srid int) (SourceHandle, error)

	// ApplyFilter evaluates predicate against target, combining with
	// prior on the given operator, and returns the resulting FID set
	// and/or a subset-string/materialized-view description depending on
	// what the backend natively produces.
	ApplyFilter(ctx context.Context, req FilterSpec) (vecfilter.FilterOutcome, error)

	// CountFeatures reports the feature count a FilterOutcome would
	// resolve to, without necessarily materializing anything new.
	CountFeatures(ctx context.Context, outcome vecfilter.FilterOutcome) (int, error)

	// Reset drops any intermediate objects (materialized views, temp
	// tables, scratch R-trees) the session created, leaving the
	// underlying layer data untouched. Called between unrelated filter
	// operations on the same session.
	Reset(ctx context.Context) error

	// Cleanup releases the session and everything it owns. LIFO order
	// relative to other open sessions is the caller's responsibility
	// (the orchestrator enforces it); Cleanup itself only tears down
	// this session's own state and continues past partial cleanup errors
	// rather than failing, per §4.9.
	Cleanup(ctx context.Context)
}

// SourceHandle is an opaque reference to a prepared source geometry
// within one Session; only the Session that created it can use it.
type SourceHandle interface{ isSourceHandle() }

// FilterSpec is everything one ApplyFilter call needs: the prepared
// source, the target layer, the predicate set, and the combine
// semantics the orchestrator has already resolved against
// PreviousFilterState.
type FilterSpec struct {
	Source            SourceHandle
	Target            vecfilter.LayerDescriptor
	Predicates        []vecfilter.Predicate
	BufferValue       float64
	BufferEndcap      vecfilter.BufferEndcap
	UseSourceCentroid bool
	UseTargetCentroid bool
	AttributeExpr     string // optional, empty if none
	Combine           vecfilter.CombineOperator
	Previous          *vecfilter.FilterState
}

// Port is the factory surface: it opens Sessions and reports the static
// capabilities of one backend kind, independent of any particular layer.
type Port interface {
	Kind() vecfilter.BackendKind
	Capabilities() CapabilitySet
	OpenSession(ctx context.Context, layer vecfilter.LayerDescriptor) (Session, error)
}
