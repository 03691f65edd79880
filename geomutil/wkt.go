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
	"fmt"
	"strconv"
	"strings"

	"github.com/ctessum/geom"
)

// CanonicalWKT encodes g as Well-Known Text with truncated coordinate
// precision for stable fingerprinting: 6 decimals for metric CRSes, 7 for
// geographic ones (§4.1). The encoder direction (geometry -> text) is the
// inverse of the parsing approach in a typical WKT reader; the coordinate
// formatting rules below follow that same token grammar.
func CanonicalWKT(g geom.Geom, isGeographic bool) string {
	prec := 6
	if isGeographic {
		prec = 7
	}
	var b strings.Builder
	encode(&b, g, prec)
	return b.String()
}

func encode(b *strings.Builder, g geom.Geom, prec int) {
	switch t := g.(type) {
	case geom.Point:
		b.WriteString("POINT (")
		writeCoord(b, t, prec)
		b.WriteString(")")
	case geom.MultiPoint:
		b.WriteString("MULTIPOINT (")
		for i, p := range t {
			if i > 0 {
				b.WriteString(", ")
			}
			writeCoord(b, p, prec)
		}
		b.WriteString(")")
	case geom.LineString:
		b.WriteString("LINESTRING ")
		writeRing(b, t, prec)
	case geom.MultiLineString:
		b.WriteString("MULTILINESTRING (")
		for i, l := range t {
			if i > 0 {
				b.WriteString(", ")
			}
			writeRing(b, l, prec)
		}
		b.WriteString(")")
	case geom.Polygon:
		b.WriteString("POLYGON ")
		writePolygon(b, t, prec)
	case geom.MultiPolygon:
		b.WriteString("MULTIPOLYGON (")
		for i, p := range t {
			if i > 0 {
				b.WriteString(", ")
			}
			writePolygon(b, p, prec)
		}
		b.WriteString(")")
	case geom.GeometryCollection:
		b.WriteString("GEOMETRYCOLLECTION (")
		for i, sub := range t {
			if i > 0 {
				b.WriteString(", ")
			}
			encode(b, sub, prec)
		}
		b.WriteString(")")
	default:
		b.WriteString("GEOMETRYCOLLECTION EMPTY")
	}
}

func writeCoord(b *strings.Builder, p geom.Point, prec int) {
	fmt.Fprintf(b, "%s %s", trim(p.X, prec), trim(p.Y, prec))
}

func writeRing(b *strings.Builder, pts []geom.Point, prec int) {
	b.WriteString("(")
	for i, p := range pts {
		if i > 0 {
			b.WriteString(", ")
		}
		writeCoord(b, p, prec)
	}
	b.WriteString(")")
}

func writePolygon(b *strings.Builder, p geom.Polygon, prec int) {
	b.WriteString("(")
	for i, ring := range p {
		if i > 0 {
			b.WriteString(", ")
		}
		writeRing(b, ring, prec)
	}
	b.WriteString(")")
}

// trim formats v rounded to prec decimal places (strconv.FormatFloat,
// which does not vary with platform float formatting).
func trim(v float64, prec int) string {
	return strconv.FormatFloat(v, 'f', prec, 64)
}
