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

package spatialite

import "testing"

func TestInvalidToCombineDetectsExistsClause(t *testing.T) {
	if !invalidToCombine("EXISTS (SELECT 1 FROM foo)") {
		t.Error("an EXISTS clause must be flagged invalid to combine")
	}
}

func TestInvalidToCombineDetectsSpatialPredicateCalls(t *testing.T) {
	cases := []string{
		"Intersects(geom, x)",
		"CONTAINS(geom, x)",
		"PtDistWithin(geom, x, 10)",
	}
	for _, c := range cases {
		if !invalidToCombine(c) {
			t.Errorf("invalidToCombine(%q) = false, want true", c)
		}
	}
}

func TestInvalidToCombineDetectsMaterializedViewAlias(t *testing.T) {
	if !invalidToCombine("fid IN (SELECT fid FROM fm_src_3)") {
		t.Error("a subset referencing fm_src_* must be flagged invalid to combine")
	}
}

func TestInvalidToCombineDetectsPKOnlyList(t *testing.T) {
	if !invalidToCombine("fid IN (1, 2, 3)") {
		t.Error("a bare PK IN-list from an OGR fallback must be flagged invalid to combine")
	}
}

func TestInvalidToCombineAllowsOrdinarySpatialWhere(t *testing.T) {
	if invalidToCombine(`"cities"."fid" IN (SELECT rowid FROM SpatialIndex WHERE f_table_name = 'cities') AND population > 10`) {
		t.Error("an ordinary spatial+attribute WHERE clause should be safe to combine")
	}
}

func TestIsPKOnlyListRejectsClausesWithBooleanConnectives(t *testing.T) {
	if isPKOnlyList("fid IN (1, 2) AND population > 10") {
		t.Error("a clause with an AND should not be treated as a bare PK-only list")
	}
}

func TestIsPKOnlyListAcceptsBareList(t *testing.T) {
	if !isPKOnlyList("fid IN (1, 2, 3)") {
		t.Error("a bare 'fid IN (...)' with no boolean connectives or comparisons should be PK-only")
	}
}

func TestRtreeIndexTableNamesTheSpatialiteShadowVirtualTable(t *testing.T) {
	if got, want := rtreeIndexTable("fm_src_3", "geom"), "idx_fm_src_3_geom"; got != want {
		t.Errorf("rtreeIndexTable() = %q, want %q", got, want)
	}
}

func TestCleanupDropsRtreeIndexBeforeItsBaseTable(t *testing.T) {
	s := &session{}
	s.track("fm_src_1")
	s.track(rtreeIndexTable("fm_src_1", "geom"))

	if got, want := len(s.tempTables), 2; got != want {
		t.Fatalf("tracked %d tables, want %d", got, want)
	}
	// Cleanup drops in LIFO order, so the R*Tree index (tracked second,
	// right after PrepareSource creates it) is dropped before the base
	// temp table it indexes.
	if s.tempTables[len(s.tempTables)-1] != "idx_fm_src_1_geom" {
		t.Error("expected the rtree index table to be the last tracked (first dropped) entry")
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

func TestSQLQuoteEscapesSingleQuotes(t *testing.T) {
	if got := sqlQuote("O'Brien"); got != "'O''Brien'" {
		t.Errorf("sqlQuote = %q, want %q", got, "'O''Brien'")
	}
}
