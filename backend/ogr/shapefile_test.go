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

package ogr

import (
	"context"
	"testing"

	"github.com/ctessum/geom"

	"github.com/spatialmodel/vecfilter"
)

func TestShapefileSourceUnknownLayer(t *testing.T) {
	src := NewShapefileSource(map[vecfilter.LayerRef]string{
		"parcels": "/nonexistent/parcels.shp",
	})

	err := src.Iterate(context.Background(), "roads", func(fid int64, g geom.Geom, attrs map[string]interface{}) error {
		t.Fatal("fn should not be called for an unregistered layer")
		return nil
	})
	if err == nil {
		t.Fatal("want error for unregistered layer, have nil")
	}
}

func TestShapefileSourceRegisterLayer(t *testing.T) {
	src := NewShapefileSource(nil)
	src.RegisterLayer("parcels", "/tmp/does-not-exist")

	err := src.Iterate(context.Background(), "parcels", func(fid int64, g geom.Geom, attrs map[string]interface{}) error {
		return nil
	})
	if err == nil {
		t.Fatal("want error opening a nonexistent shapefile, have nil")
	}
}

func TestTrimFieldName(t *testing.T) {
	cases := []struct {
		name [11]byte
		want string
	}{
		{name: [11]byte{'N', 'A', 'M', 'E'}, want: "NAME"},
		{name: [11]byte{'F', 'I', 'D', 0, 0, 0, 0, 0, 0, 0, 0}, want: "FID"},
		{name: [11]byte{' ', 'A', 'R', 'E', 'A', ' '}, want: "AREA"},
	}
	for _, c := range cases {
		have := trimFieldName(c.name)
		if have != c.want {
			t.Errorf("trimFieldName(%v) = %q, want %q", c.name, have, c.want)
		}
	}
}
