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

package expr

import (
	"strings"
	"testing"

	"github.com/spatialmodel/vecfilter"
)

func TestSanitizeRejectsStatementStacking(t *testing.T) {
	cases := []string{
		"population > 10; DROP TABLE layers",
		"population > 10 -- comment",
		"population > 10 /* comment */",
		"population > 10 OR 1=1; UPDATE layers SET x=1",
	}
	for _, c := range cases {
		if err := Sanitize(c); err == nil {
			t.Errorf("Sanitize(%q) = nil, want UnsafeExpression", c)
		} else if kind, ok := vecfilter.KindOf(err); !ok || kind != vecfilter.UnsafeExpression {
			t.Errorf("Sanitize(%q) kind = %v, want UnsafeExpression", c, err)
		}
	}
}

func TestSanitizeRejectsDMLKeywordsAsWords(t *testing.T) {
	if err := Sanitize("DELETE = 1"); err == nil {
		t.Fatal("expected UnsafeExpression for a bare DELETE keyword")
	}
	// But a column merely containing the substring should pass -- the
	// keyword scan matches whole words only.
	if err := Sanitize("deleted_flag = 1"); err != nil {
		t.Fatalf("Sanitize(%q) should not reject a column name containing a keyword substring: %v", "deleted_flag = 1", err)
	}
}

func TestSanitizeAcceptsOrdinaryExpression(t *testing.T) {
	if err := Sanitize("population >= 20 AND population < 40"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestTranslatePostgres(t *testing.T) {
	frag, err := Translate("population >= 20 AND population < 40", vecfilter.BackendPostgreSQL)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if !strings.Contains(frag.SQL, `"population"`) {
		t.Errorf("expected quoted identifier in %q", frag.SQL)
	}
	if len(frag.Params) != 2 {
		t.Errorf("expected 2 bound params, got %d (%v)", len(frag.Params), frag.Params)
	}
	if !strings.Contains(frag.SQL, "$1") || !strings.Contains(frag.SQL, "$2") {
		t.Errorf("expected $1/$2 placeholders in %q", frag.SQL)
	}
}

func TestTranslateOGRInlinesLiterals(t *testing.T) {
	frag, err := Translate("name = 'Paris'", vecfilter.BackendOGR)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if len(frag.Params) != 0 {
		t.Errorf("OGR fragments must inline literals, got params %v", frag.Params)
	}
	if !strings.Contains(frag.SQL, "'Paris'") {
		t.Errorf("expected inlined literal in %q", frag.SQL)
	}
}

func TestTranslateEscapesQuotesOnInline(t *testing.T) {
	frag, err := Translate("name = 'O''Brien'", vecfilter.BackendOGR)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if !strings.Contains(frag.SQL, "'O''Brien'") {
		t.Errorf("expected escaped literal, got %q", frag.SQL)
	}
}

func TestTranslateCaseInsensitiveLike(t *testing.T) {
	pgFrag, err := Translate("name ILIKE '%paris%'", vecfilter.BackendPostgreSQL)
	if err != nil {
		t.Fatalf("Translate postgres: %v", err)
	}
	if !strings.Contains(pgFrag.SQL, "ILIKE") {
		t.Errorf("expected ILIKE on postgres, got %q", pgFrag.SQL)
	}

	sqliteFrag, err := Translate("name ILIKE '%paris%'", vecfilter.BackendSpatialite)
	if err != nil {
		t.Fatalf("Translate spatialite: %v", err)
	}
	if !strings.Contains(sqliteFrag.SQL, "COLLATE NOCASE") {
		t.Errorf("expected COLLATE NOCASE on spatialite, got %q", sqliteFrag.SQL)
	}
}

func TestTranslateUnknownFunctionNotTranslatable(t *testing.T) {
	_, err := Translate("SOME_UDF(population) > 1", vecfilter.BackendPostgreSQL)
	if err == nil {
		t.Fatal("expected ExpressionNotTranslatable for an unknown function")
	}
	if kind, ok := vecfilter.KindOf(err); !ok || kind != vecfilter.ExpressionNotTranslatable {
		t.Fatalf("expected ExpressionNotTranslatable, got %v", err)
	}
}

func TestTranslateInAndBetween(t *testing.T) {
	frag, err := Translate("kind IN ('a','b') AND population BETWEEN 1 AND 10", vecfilter.BackendPostgreSQL)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if !strings.Contains(frag.SQL, "IN") || !strings.Contains(frag.SQL, "BETWEEN") {
		t.Errorf("expected IN/BETWEEN in %q", frag.SQL)
	}
}

func TestEvaluatorBasicComparison(t *testing.T) {
	ev, err := NewEvaluator("population >= 20 AND population < 40")
	if err != nil {
		t.Fatalf("NewEvaluator: %v", err)
	}
	cases := []struct {
		pop  float64
		want bool
	}{
		{10, false},
		{20, true},
		{35, true},
		{40, false},
	}
	for _, c := range cases {
		ok, err := ev.Eval(map[string]interface{}{"population": c.pop})
		if err != nil {
			t.Fatalf("Eval(%v): %v", c.pop, err)
		}
		if ok != c.want {
			t.Errorf("Eval(population=%v) = %v, want %v", c.pop, ok, c.want)
		}
	}
}

func TestEvaluatorLikeIsCaseSensitive(t *testing.T) {
	ev, err := NewEvaluator("name LIKE '%par%'")
	if err != nil {
		t.Fatalf("NewEvaluator: %v", err)
	}
	ok, err := ev.Eval(map[string]interface{}{"name": "Paris"})
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if ok {
		t.Errorf("LIKE is case-sensitive: 'Paris' has no lowercase 'par' substring, expected no match")
	}
}

func TestEvaluatorILike(t *testing.T) {
	ev, err := NewEvaluator("name ILIKE '%par%'")
	if err != nil {
		t.Fatalf("NewEvaluator: %v", err)
	}
	ok, err := ev.Eval(map[string]interface{}{"name": "Paris"})
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if !ok {
		t.Errorf("expected case-insensitive match of 'Paris' against %%par%%")
	}
}

func TestEvaluatorVars(t *testing.T) {
	ev, err := NewEvaluator("population >= 20 AND kind = 'city'")
	if err != nil {
		t.Fatalf("NewEvaluator: %v", err)
	}
	vars := ev.Vars()
	found := map[string]bool{}
	for _, v := range vars {
		found[v] = true
	}
	if !found["population"] || !found["kind"] {
		t.Errorf("expected vars to include population and kind, got %v", vars)
	}
}

func TestParseIsNullAndCase(t *testing.T) {
	_, err := Parse("CASE WHEN population IS NULL THEN 0 ELSE population END > 5")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
}
