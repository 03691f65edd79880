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

func square(x0, y0, side float64) geom.Polygon {
	return geom.Polygon{{
		{X: x0, Y: y0},
		{X: x0 + side, Y: y0},
		{X: x0 + side, Y: y0 + side},
		{X: x0, Y: y0 + side},
		{X: x0, Y: y0},
	}}
}

func TestIsEmpty(t *testing.T) {
	cases := []struct {
		name string
		g    geom.Geom
		want bool
	}{
		{"nil", nil, true},
		{"empty polygon sentinel", Empty, true},
		{"real square", square(0, 0, 10), false},
		{"empty multipolygon", geom.MultiPolygon{}, true},
		{"point never empty", geom.Point{X: 1, Y: 1}, false},
	}
	for _, c := range cases {
		if have := IsEmpty(c.g); have != c.want {
			t.Errorf("%s: have %v, want %v", c.name, have, c.want)
		}
	}
}

func TestDetectCRS(t *testing.T) {
	cases := []struct {
		srid int
		want bool
	}{
		{4326, true},
		{4269, true},
		{3857, false},
		{2163, false},
	}
	for _, c := range cases {
		info := DetectCRS(c.srid)
		if have, want := info.IsGeographic, c.want; have != want {
			t.Errorf("DetectCRS(%d).IsGeographic = %v, want %v", c.srid, have, want)
		}
		if have, want := info.SRID, c.srid; have != want {
			t.Errorf("DetectCRS(%d).SRID = %d, want %d", c.srid, have, want)
		}
	}
}

func TestEnsureMetricNoopOnPlanarCRS(t *testing.T) {
	g := square(0, 0, 10)
	out, srid, err := EnsureMetric(g, 3857, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if srid != 3857 {
		t.Errorf("have target SRID %d, want 3857", srid)
	}
	if out.Bounds().Max.X != g.Bounds().Max.X {
		t.Error("planar geometry should pass through unchanged")
	}
}

func TestEnsureMetricAsIsSkipsReprojection(t *testing.T) {
	g := square(0, 0, 10)
	out, srid, err := EnsureMetric(g, 4326, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if srid != 4326 {
		t.Errorf("have target SRID %d, want 4326 (as-is policy)", srid)
	}
	if out.Bounds().Max.X != g.Bounds().Max.X {
		t.Error("as-is policy should pass the geometry through unchanged")
	}
}

func TestRepairValidPolygonPassesThrough(t *testing.T) {
	g := square(0, 0, 10)
	have := Repair(g)
	if IsEmpty(have) {
		t.Fatal("a valid square should never repair to Empty")
	}
}

func TestRepairNilYieldsEmpty(t *testing.T) {
	if have := Repair(nil); !IsEmpty(have) {
		t.Errorf("Repair(nil) = %v, want Empty", have)
	}
}

func TestBufferZeroIsIdentity(t *testing.T) {
	g := square(0, 0, 10)
	if have := Buffer(g, 0); have.Bounds().Max.X != g.Bounds().Max.X {
		t.Error("Buffer(g, 0) should return g unchanged")
	}
}

func TestBufferDilationGrowsBounds(t *testing.T) {
	g := square(0, 0, 10)
	out := Buffer(g, 2)
	b := out.Bounds()
	if b.Min.X > -1 || b.Max.X < 11 {
		t.Errorf("buffered bounds %+v did not grow past the original square", b)
	}
}

func TestBufferErosionBeyondExtentYieldsEmpty(t *testing.T) {
	g := square(0, 0, 10)
	out := Buffer(g, -100)
	if !IsEmpty(out) {
		t.Error("eroding a square past its own half-width should yield Empty")
	}
}

func TestCentroidOfSquareIsCenter(t *testing.T) {
	g := square(0, 0, 10)
	c := Centroid(g, true)
	if c.X != 5 || c.Y != 5 {
		t.Errorf("have centroid %+v, want (5, 5)", c)
	}
}

func TestSimplifyBeforeBufferNoopWhenBufferZero(t *testing.T) {
	g := square(0, 0, 10)
	out := SimplifyBeforeBuffer(g, 0)
	if out.Bounds().Max.X != g.Bounds().Max.X {
		t.Error("SimplifyBeforeBuffer with a zero buffer distance must be a no-op")
	}
}
