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

package postgres

import (
	"strings"
	"testing"

	"github.com/spatialmodel/vecfilter"
	"github.com/spatialmodel/vecfilter/backend"
)

func TestCombineWhereReplaceIgnoresPrevious(t *testing.T) {
	prev := &vecfilter.FilterState{SubsetExpr: "a = 1"}
	got := combineWhere(prev, vecfilter.CombineREPLACE, "b = 2")
	if got != "b = 2" {
		t.Errorf("combineWhere(REPLACE) = %q, want %q", got, "b = 2")
	}
}

func TestCombineWhereNilPreviousReplaces(t *testing.T) {
	got := combineWhere(nil, vecfilter.CombineAND, "b = 2")
	if got != "b = 2" {
		t.Errorf("combineWhere(nil previous) = %q, want the new clause unchanged", got)
	}
}

func TestCombineWhereOperators(t *testing.T) {
	prev := &vecfilter.FilterState{SubsetExpr: "a = 1"}
	cases := []struct {
		op   vecfilter.CombineOperator
		want string
	}{
		{vecfilter.CombineAND, "(a = 1) AND (b = 2)"},
		{vecfilter.CombineOR, "(a = 1) OR (b = 2)"},
		{vecfilter.CombineNOTAND, "(a = 1) AND NOT (b = 2)"},
	}
	for _, c := range cases {
		if got := combineWhere(prev, c.op, "b = 2"); got != c.want {
			t.Errorf("combineWhere(op=%v) = %q, want %q", c.op, got, c.want)
		}
	}
}

func TestBufferEndcapStyle(t *testing.T) {
	cases := map[vecfilter.BufferEndcap]string{
		vecfilter.EndcapRound:  "'endcap=round'",
		vecfilter.EndcapFlat:   "'endcap=flat'",
		vecfilter.EndcapSquare: "'endcap=square'",
	}
	for e, want := range cases {
		if got := bufferEndcapStyle(e); got != want {
			t.Errorf("bufferEndcapStyle(%v) = %q, want %q", e, got, want)
		}
	}
}

func TestQuoteIdentEscapesDoubleQuotes(t *testing.T) {
	if got := quoteIdent(`fm_src_1`); got != `"fm_src_1"` {
		t.Errorf("quoteIdent = %q, want %q", got, `"fm_src_1"`)
	}
	if got := quoteIdent(`weird"name`); got != `"weird""name"` {
		t.Errorf("quoteIdent did not escape embedded double quote: %q", got)
	}
}

func TestShortFingerprintIsStableAndVariesWithInput(t *testing.T) {
	a := shortFingerprint("POINT(1 2)", 4326)
	b := shortFingerprint("POINT(1 2)", 4326)
	if a != b {
		t.Errorf("shortFingerprint must be deterministic, got %q then %q", a, b)
	}
	c := shortFingerprint("POINT(3 4)", 4326)
	if a == c {
		t.Error("shortFingerprint should differ for different WKT input")
	}
	d := shortFingerprint("POINT(1 2)", 3857)
	if a == d {
		t.Error("shortFingerprint should differ for different SRID")
	}
}

func TestBuildFilterWhereAliasesTargetAndSourceSeparately(t *testing.T) {
	where, err := buildFilterWhere(backend.FilterSpec{
		Predicates: []vecfilter.Predicate{vecfilter.Intersects},
	})
	if err != nil {
		t.Fatalf("buildFilterWhere: %v", err)
	}
	if !strings.Contains(where, "t.geom") {
		t.Errorf("buildFilterWhere output %q should reference the target alias t.geom", where)
	}
	if !strings.Contains(where, "src.geom") {
		t.Errorf("buildFilterWhere output %q should reference the source alias src.geom", where)
	}
	if strings.Contains(where, "src.t.geom") {
		t.Errorf("buildFilterWhere output %q must never rewrite src.geom into src.t.geom", where)
	}
}

func TestBuildFilterWhereCentroidsRetainSeparateAliases(t *testing.T) {
	where, err := buildFilterWhere(backend.FilterSpec{
		Predicates:        []vecfilter.Predicate{vecfilter.Intersects},
		UseSourceCentroid: true,
		UseTargetCentroid: true,
		BufferValue:       10,
	})
	if err != nil {
		t.Fatalf("buildFilterWhere: %v", err)
	}
	if !strings.Contains(where, "ST_PointOnSurface(t.geom)") {
		t.Errorf("buildFilterWhere output %q should centroid the target via t.geom", where)
	}
	if !strings.Contains(where, "ST_PointOnSurface(src.geom)") {
		t.Errorf("buildFilterWhere output %q should centroid the source via src.geom", where)
	}
	if strings.Contains(where, "src.t.geom") || strings.Contains(where, "t.src.geom") {
		t.Errorf("buildFilterWhere output %q crossed the target/source aliases", where)
	}
}
