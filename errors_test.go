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

package vecfilter

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOfUnwrapsWrappedFilterError(t *testing.T) {
	base := NewFilterError(GeometryInvalid, "zones", BackendOGR, "bad ring", nil)
	wrapped := fmt.Errorf("while preparing source: %w", base)

	have, ok := KindOf(wrapped)
	if !ok {
		t.Fatal("have ok=false, want true for a wrapped *FilterError")
	}
	if have != GeometryInvalid {
		t.Errorf("have kind %s, want %s", have, GeometryInvalid)
	}
}

func TestKindOfPlainError(t *testing.T) {
	if _, ok := KindOf(errors.New("boom")); ok {
		t.Error("have ok=true for a plain error, want false")
	}
}

func TestFilterErrorMessageIncludesLayer(t *testing.T) {
	err := NewFilterError(LayerNotFilterable, "parcels", BackendPostgreSQL, "missing primary key", nil)
	want := "filter failed for layer parcels: LayerNotFilterable: missing primary key"
	if have := err.Error(); have != want {
		t.Errorf("have %q, want %q", have, want)
	}
}

func TestFilterErrorMessageWithoutLayer(t *testing.T) {
	err := NewFilterError(BackendUnavailable, "", BackendSpatialite, "no connection", nil)
	want := "filter failed: BackendUnavailable: no connection"
	if have := err.Error(); have != want {
		t.Errorf("have %q, want %q", have, want)
	}
}

func TestRetryable(t *testing.T) {
	cases := []struct {
		kind ErrorKind
		want bool
	}{
		{BackendQueryFailed, true},
		{CapabilityMismatch, true},
		{ExpressionNotTranslatable, true},
		{CacheInconsistency, true},
		{LayerNotFilterable, false},
		{GeometryInvalid, false},
		{Cancelled, false},
	}
	for _, c := range cases {
		if have := Retryable(c.kind); have != c.want {
			t.Errorf("Retryable(%s) = %v, want %v", c.kind, have, c.want)
		}
	}
}
