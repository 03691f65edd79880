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

// Package predicate is the static registry of §4.2: canonical predicate
// names mapped to backend-specific SQL templates, plus the reverse mapping
// from the host application's integer predicate codes.
//
// This is plain data and plain functions — no third-party library models
// "a fixed lookup table" any better than a Go map literal (see DESIGN.md).
package predicate

import (
	"fmt"

	"github.com/spatialmodel/vecfilter"
)

// Template is a SQL fragment with up to three holes: {a} is the target
// geometry expression, {b} is the source geometry expression, and {d}
// (only present on DWithin's template) is the distance literal. The
// template always yields a boolean.
type Template string

// Render substitutes the geometry expressions, and optionally a
// distance literal, into t. distance is ignored by templates with no
// {d} hole.
func (t Template) Render(targetExpr, sourceExpr string, distance ...string) string {
	dist := ""
	if len(distance) > 0 {
		dist = distance[0]
	}
	out := make([]byte, 0, len(t)+len(targetExpr)+len(sourceExpr))
	s := string(t)
	for i := 0; i < len(s); i++ {
		if s[i] == '{' {
			if hasPrefixAt(s, i, "{a}") {
				out = append(out, targetExpr...)
				i += 2
				continue
			}
			if hasPrefixAt(s, i, "{b}") {
				out = append(out, sourceExpr...)
				i += 2
				continue
			}
			if hasPrefixAt(s, i, "{d}") {
				out = append(out, dist...)
				i += 2
				continue
			}
		}
		out = append(out, s[i])
	}
	return string(out)
}

func hasPrefixAt(s string, i int, prefix string) bool {
	return i+len(prefix) <= len(s) && s[i:i+len(prefix)] == prefix
}

// entry holds the per-backend templates and native-support flags for one
// canonical predicate.
type entry struct {
	templates map[vecfilter.BackendKind]Template
	native    map[vecfilter.BackendKind]bool
}

var registry = map[vecfilter.Predicate]entry{
	vecfilter.Intersects: {
		templates: map[vecfilter.BackendKind]Template{
			vecfilter.BackendPostgreSQL: "ST_Intersects({a}, {b})",
			vecfilter.BackendSpatialite: "Intersects({a}, {b})",
			vecfilter.BackendOGR:        "intersects",
		},
		native: map[vecfilter.BackendKind]bool{vecfilter.BackendPostgreSQL: true, vecfilter.BackendSpatialite: true, vecfilter.BackendOGR: true},
	},
	vecfilter.Contains: {
		templates: map[vecfilter.BackendKind]Template{
			vecfilter.BackendPostgreSQL: "ST_Contains({a}, {b})",
			vecfilter.BackendSpatialite: "Contains({a}, {b})",
			vecfilter.BackendOGR:        "contains",
		},
		native: map[vecfilter.BackendKind]bool{vecfilter.BackendPostgreSQL: true, vecfilter.BackendSpatialite: true, vecfilter.BackendOGR: true},
	},
	vecfilter.Within: {
		templates: map[vecfilter.BackendKind]Template{
			vecfilter.BackendPostgreSQL: "ST_Within({a}, {b})",
			vecfilter.BackendSpatialite: "Within({a}, {b})",
			vecfilter.BackendOGR:        "within",
		},
		native: map[vecfilter.BackendKind]bool{vecfilter.BackendPostgreSQL: true, vecfilter.BackendSpatialite: true, vecfilter.BackendOGR: true},
	},
	vecfilter.Touches: {
		templates: map[vecfilter.BackendKind]Template{
			vecfilter.BackendPostgreSQL: "ST_Touches({a}, {b})",
			vecfilter.BackendSpatialite: "Touches({a}, {b})",
		},
		native: map[vecfilter.BackendKind]bool{vecfilter.BackendPostgreSQL: true, vecfilter.BackendSpatialite: true, vecfilter.BackendOGR: false},
	},
	vecfilter.Crosses: {
		templates: map[vecfilter.BackendKind]Template{
			vecfilter.BackendPostgreSQL: "ST_Crosses({a}, {b})",
			vecfilter.BackendSpatialite: "Crosses({a}, {b})",
		},
		native: map[vecfilter.BackendKind]bool{vecfilter.BackendPostgreSQL: true, vecfilter.BackendSpatialite: true, vecfilter.BackendOGR: false},
	},
	vecfilter.Overlaps: {
		templates: map[vecfilter.BackendKind]Template{
			vecfilter.BackendPostgreSQL: "ST_Overlaps({a}, {b})",
			vecfilter.BackendSpatialite: "Overlaps({a}, {b})",
			vecfilter.BackendOGR:        "overlaps",
		},
		native: map[vecfilter.BackendKind]bool{vecfilter.BackendPostgreSQL: true, vecfilter.BackendSpatialite: true, vecfilter.BackendOGR: true},
	},
	vecfilter.Disjoint: {
		templates: map[vecfilter.BackendKind]Template{
			vecfilter.BackendPostgreSQL: "ST_Disjoint({a}, {b})",
			vecfilter.BackendSpatialite: "Disjoint({a}, {b})",
			vecfilter.BackendOGR:        "disjoint",
		},
		native: map[vecfilter.BackendKind]bool{vecfilter.BackendPostgreSQL: true, vecfilter.BackendSpatialite: true, vecfilter.BackendOGR: true},
	},
	vecfilter.Equals: {
		templates: map[vecfilter.BackendKind]Template{
			vecfilter.BackendPostgreSQL: "ST_Equals({a}, {b})",
			vecfilter.BackendSpatialite: "Equals({a}, {b})",
			vecfilter.BackendOGR:        "equals",
		},
		native: map[vecfilter.BackendKind]bool{vecfilter.BackendPostgreSQL: true, vecfilter.BackendSpatialite: true, vecfilter.BackendOGR: true},
	},
	vecfilter.Covers: {
		templates: map[vecfilter.BackendKind]Template{
			vecfilter.BackendPostgreSQL: "ST_Covers({a}, {b})",
			vecfilter.BackendSpatialite: "Covers({a}, {b})",
		},
		native: map[vecfilter.BackendKind]bool{vecfilter.BackendPostgreSQL: true, vecfilter.BackendSpatialite: true, vecfilter.BackendOGR: false},
	},
	vecfilter.CoveredBy: {
		templates: map[vecfilter.BackendKind]Template{
			vecfilter.BackendPostgreSQL: "ST_CoveredBy({a}, {b})",
			vecfilter.BackendSpatialite: "CoveredBy({a}, {b})",
		},
		native: map[vecfilter.BackendKind]bool{vecfilter.BackendPostgreSQL: true, vecfilter.BackendSpatialite: true, vecfilter.BackendOGR: false},
	},
	vecfilter.DWithin: {
		templates: map[vecfilter.BackendKind]Template{
			vecfilter.BackendPostgreSQL: "ST_DWithin({a}, {b}, {d})",
			vecfilter.BackendSpatialite: "PtDistWithin({a}, {b}, {d})",
			vecfilter.BackendOGR:        "dwithin",
		},
		native: map[vecfilter.BackendKind]bool{vecfilter.BackendPostgreSQL: true, vecfilter.BackendSpatialite: true, vecfilter.BackendOGR: true},
	},
}

// Supported reports whether backend has a native template for p.
func Supported(p vecfilter.Predicate, backend vecfilter.BackendKind) bool {
	e, ok := registry[p]
	if !ok {
		return false
	}
	return e.native[backend]
}

// TemplateFor returns the SQL template for p on backend, and
// PredicateNotSupported if either the predicate or the backend/predicate
// combination is unknown.
func TemplateFor(p vecfilter.Predicate, backend vecfilter.BackendKind) (Template, error) {
	e, ok := registry[p]
	if !ok {
		return "", &vecfilter.FilterError{Kind: vecfilter.PredicateNotSupported, Backend: backend, Message: fmt.Sprintf("unknown predicate %q", p)}
	}
	t, ok := e.templates[backend]
	if !ok || !e.native[backend] {
		return "", &vecfilter.FilterError{Kind: vecfilter.PredicateNotSupported, Backend: backend, Message: fmt.Sprintf("predicate %q not supported on backend %s", p, backend)}
	}
	return t, nil
}

// FromHostCode maps an integer predicate code from §6 to its Predicate.
// It delegates to vecfilter.PredicateFromHostCode, whose table in
// vecfilter's host.go is the single authoritative literal.
func FromHostCode(code int) (vecfilter.Predicate, bool) {
	return vecfilter.PredicateFromHostCode(code)
}

// All returns every canonical predicate name known to the registry.
func All() []vecfilter.Predicate {
	out := make([]vecfilter.Predicate, 0, len(registry))
	for p := range registry {
		out = append(out, p)
	}
	return out
}
