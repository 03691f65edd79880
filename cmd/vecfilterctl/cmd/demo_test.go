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

package cmd

import (
	"testing"

	"github.com/spatialmodel/vecfilter"
)

func TestParsePredicatesAcceptsCanonicalNames(t *testing.T) {
	got, err := parsePredicates([]string{"Intersects", " within ", "dwithin"})
	if err != nil {
		t.Fatalf("parsePredicates: %v", err)
	}
	want := []vecfilter.Predicate{vecfilter.Intersects, vecfilter.Within, vecfilter.DWithin}
	if len(got) != len(want) {
		t.Fatalf("parsePredicates = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("parsePredicates[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestParsePredicatesRejectsUnknownName(t *testing.T) {
	if _, err := parsePredicates([]string{"nearby"}); err == nil {
		t.Fatal("expected an error for an unrecognized predicate name")
	}
}

func TestParseCombineDefaultsToReplace(t *testing.T) {
	got, err := parseCombine("")
	if err != nil {
		t.Fatalf("parseCombine: %v", err)
	}
	if got != vecfilter.CombineREPLACE {
		t.Errorf("parseCombine(\"\") = %v, want CombineREPLACE", got)
	}
}

func TestParseCombineAcceptsAllOperators(t *testing.T) {
	cases := map[string]vecfilter.CombineOperator{
		"and":     vecfilter.CombineAND,
		"OR":      vecfilter.CombineOR,
		"not_and": vecfilter.CombineNOTAND,
		"notand":  vecfilter.CombineNOTAND,
		"replace": vecfilter.CombineREPLACE,
	}
	for in, want := range cases {
		got, err := parseCombine(in)
		if err != nil {
			t.Fatalf("parseCombine(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("parseCombine(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestParseCombineRejectsUnknownOperator(t *testing.T) {
	if _, err := parseCombine("xor"); err == nil {
		t.Fatal("expected an error for an unrecognized combine operator")
	}
}
