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

package geomutil

import (
	"testing"

	"github.com/ctessum/geom"
)

func TestCanonicalWKTPoint(t *testing.T) {
	got := CanonicalWKT(geom.Point{X: 1, Y: 2}, false)
	want := "POINT (1.000000 2.000000)"
	if got != want {
		t.Errorf("CanonicalWKT(point, metric) = %q, want %q", got, want)
	}
}

func TestCanonicalWKTUsesSevenDecimalsForGeographic(t *testing.T) {
	got := CanonicalWKT(geom.Point{X: 1, Y: 2}, true)
	want := "POINT (1.0000000 2.0000000)"
	if got != want {
		t.Errorf("CanonicalWKT(point, geographic) = %q, want %q", got, want)
	}
}

func TestCanonicalWKTPolygon(t *testing.T) {
	p := geom.Polygon{{
		{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}, {X: 0, Y: 0},
	}}
	got := CanonicalWKT(p, false)
	want := "POLYGON ((0.000000 0.000000, 1.000000 0.000000, 1.000000 1.000000, 0.000000 1.000000, 0.000000 0.000000))"
	if got != want {
		t.Errorf("CanonicalWKT(polygon) = %q, want %q", got, want)
	}
}

func TestCanonicalWKTMultiPoint(t *testing.T) {
	mp := geom.MultiPoint{{X: 0, Y: 0}, {X: 1, Y: 1}}
	got := CanonicalWKT(mp, false)
	want := "MULTIPOINT (0.000000 0.000000, 1.000000 1.000000)"
	if got != want {
		t.Errorf("CanonicalWKT(multipoint) = %q, want %q", got, want)
	}
}

func TestCanonicalWKTIsStableAcrossCalls(t *testing.T) {
	p := geom.Point{X: 12.3456789, Y: -9.87654321}
	a := CanonicalWKT(p, false)
	b := CanonicalWKT(p, false)
	if a != b {
		t.Fatalf("CanonicalWKT should be a pure function of its inputs, got %q and %q", a, b)
	}
}
