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

package backend

import (
	"github.com/spatialmodel/vecfilter"
	"github.com/spatialmodel/vecfilter/predicate"
)

// CapabilitySet describes what one backend kind can do without
// reference to any specific layer: which predicates it supports
// natively, whether it can combine filters by reference (subset
// strings/materialized views) or must always fall back to explicit FID
// sets, and whether it supports attribute-expression translation at all
// (per §4.8).
type CapabilitySet struct {
	Kind                vecfilter.BackendKind
	NativePredicates    map[vecfilter.Predicate]bool
	SupportsSubsetExpr  bool // can express a filter as a reusable WHERE/subset string
	SupportsExplicitFID bool // can always fall back to an explicit FID list
	SupportsExpression  bool // attribute-expression translation via package expr
	SupportsDWithin     bool
}

// Supports reports whether p is natively supported by this capability
// set. The orchestrator does not decompose unsupported predicates: it
// tries the next candidate backend, and fails with PredicateNotSupported
// when no candidate supports every requested predicate.
func (c CapabilitySet) Supports(p vecfilter.Predicate) bool {
	return c.NativePredicates[p]
}

// capsFor builds a CapabilitySet from the predicate registry so the
// three backend packages don't each redeclare the same table.
func capsFor(kind vecfilter.BackendKind, supportsSubsetExpr, supportsExpression bool) CapabilitySet {
	native := map[vecfilter.Predicate]bool{}
	for _, p := range predicate.All() {
		native[p] = predicate.Supported(p, kind)
	}
	return CapabilitySet{
		Kind:                kind,
		NativePredicates:    native,
		SupportsSubsetExpr:  supportsSubsetExpr,
		SupportsExplicitFID: true,
		SupportsExpression:  supportsExpression,
		SupportsDWithin:     native[vecfilter.DWithin],
	}
}

// PostgresCapabilities is the capability set for the PostGIS backend.
func PostgresCapabilities() CapabilitySet {
	return capsFor(vecfilter.BackendPostgreSQL, true, true)
}

// SpatialiteCapabilities is the capability set for the Spatialite
// backend.
func SpatialiteCapabilities() CapabilitySet {
	return capsFor(vecfilter.BackendSpatialite, true, true)
}

// OGRCapabilities is the capability set for the in-memory OGR backend.
// It cannot express a reusable subset string the way the SQL backends
// do (there is no query planner to hand one to) so SupportsSubsetExpr
// is true only in the degenerate "{pk} IN (...)" / "0 = 1" sense §4.7
// describes; orchestrator treats that the same as a real subset string.
func OGRCapabilities() CapabilitySet {
	return capsFor(vecfilter.BackendOGR, true, true)
}
