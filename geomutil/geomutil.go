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

// Package geomutil implements the pure geometry operations of §4.1: CRS
// detection and reprojection, validity repair, buffering, centroid
// selection, adaptive simplification, and canonical WKT encoding.
//
// All functions are pure: inputs are never mutated, and unrepairable input
// yields Empty rather than an error.
package geomutil

import (
	"fmt"
	"math"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/proj"
)

// Empty is the sentinel polygonal geometry returned when a geometry
// operation cannot produce a usable result (e.g. a buffer that erodes a
// polygon to nothing, or a repair that cannot recover a valid shape).
var Empty geom.Polygon = geom.Polygon{}

// IsEmpty reports whether g is the Empty sentinel or has no area/points.
func IsEmpty(g geom.Geom) bool {
	if g == nil {
		return true
	}
	switch t := g.(type) {
	case geom.Polygon:
		return len(t) == 0
	case geom.MultiPolygon:
		return len(t) == 0
	case geom.Point:
		return false
	default:
		b := g.Bounds()
		return b == nil || b.Empty()
	}
}

// CrsInfo describes a layer's spatial reference.
type CrsInfo struct {
	Auth         string // e.g. "EPSG:4326"
	SRID         int
	IsGeographic bool
}

// webMercatorSRID is the planar CRS ensure_metric reprojects into, per
// §4.1. It is the identifier named in the spec (3857).
const webMercatorSRID = 3857

// geographicSRIDs lists the well-known geographic (lat/lon) CRSes this
// package recognizes without needing a full proj4 database lookup. This
// mirrors the small, explicit SR table the teacher builds up in
// geom/proj/defs.go rather than attempting exhaustive EPSG coverage.
var geographicSRIDs = map[int]bool{
	4326: true, // WGS84
	4269: true, // NAD83
	4267: true, // NAD27
}

// DetectCRS resolves spatial-reference metadata for a layer's declared
// SRID. auth is formatted as "EPSG:<srid>" to match the proj.Parse input
// format used elsewhere in this package.
func DetectCRS(srid int) CrsInfo {
	return CrsInfo{
		Auth:         fmt.Sprintf("EPSG:%d", srid),
		SRID:         srid,
		IsGeographic: geographicSRIDs[srid],
	}
}

// sr looks up a proj.SR for a SRID, using proj's built-in EPSG table via
// Parse. Only SRIDs proj.Parse recognizes can be reprojected; callers
// should treat an error here as "cannot determine CRS", not as an
// unrepairable geometry.
func sr(srid int) (*proj.SR, error) {
	return proj.Parse(fmt.Sprintf("EPSG:%d", srid))
}

// EnsureMetric reprojects g into a planar CRS if fromSRID is geographic and
// policy requires normalization, returning a fresh geometry value — g is
// never mutated. If g is already metric (or policy is as-is), g is
// returned unchanged and targetSRID equals fromSRID.
func EnsureMetric(g geom.Geom, fromSRID int, asIs bool) (out geom.Geom, targetSRID int, err error) {
	info := DetectCRS(fromSRID)
	if asIs || !info.IsGeographic {
		return g, fromSRID, nil
	}
	from, err := sr(fromSRID)
	if err != nil {
		return g, fromSRID, fmt.Errorf("geomutil: resolving source CRS EPSG:%d: %w", fromSRID, err)
	}
	to, err := sr(webMercatorSRID)
	if err != nil {
		return g, fromSRID, fmt.Errorf("geomutil: resolving target CRS EPSG:%d: %w", webMercatorSRID, err)
	}
	tr, err := from.NewTransform(to)
	if err != nil {
		return g, fromSRID, fmt.Errorf("geomutil: building transform EPSG:%d->EPSG:%d: %w", fromSRID, webMercatorSRID, err)
	}
	out, err = g.Transform(tr)
	if err != nil {
		return g, fromSRID, fmt.Errorf("geomutil: reprojecting: %w", err)
	}
	return out, webMercatorSRID, nil
}

// Repair attempts, in order, a validity repair, a zero-buffer cleanup, and
// a multi-polygon-only fallback that drops point/line fragments from
// geometry-collection results. It returns Empty if none succeeds.
func Repair(g geom.Geom) geom.Geom {
	if g == nil {
		return Empty
	}
	switch t := g.(type) {
	case geom.Polygon:
		if r, ok := repairPolygon(t); ok {
			return r
		}
		return Empty
	case geom.MultiPolygon:
		var kept geom.MultiPolygon
		for _, p := range t {
			if r, ok := repairPolygon(p); ok {
				kept = append(kept, r)
			}
		}
		if len(kept) == 0 {
			return Empty
		}
		return kept
	case geom.GeometryCollection:
		var kept geom.MultiPolygon
		for _, sub := range t {
			switch s := sub.(type) {
			case geom.Polygon:
				if r, ok := repairPolygon(s); ok {
					kept = append(kept, r)
				}
			case geom.MultiPolygon:
				for _, p := range s {
					if r, ok := repairPolygon(p); ok {
						kept = append(kept, r)
					}
				}
			}
			// point/line fragments are intentionally dropped per §4.1.
		}
		if len(kept) == 0 {
			return Empty
		}
		return kept
	default:
		// Points and lines have no "validity" concept that can fail in the
		// way polygons do; they pass through unchanged.
		return g
	}
}

// repairPolygon attempts to recover a usable ring set from p: first as-is
// (if it already has area), then via a zero-buffer self-union, which
// closes self-intersections the way a GIS's ST_Buffer(g, 0) idiom does.
func repairPolygon(p geom.Polygon) (geom.Polygon, bool) {
	if len(p) == 0 {
		return nil, false
	}
	if p.Area() > 0 {
		return p, true
	}
	cleaned := p.Union(p)
	if cleaned.Area() > 0 {
		return cleaned, true
	}
	return nil, false
}

// Buffer dilates (distance > 0) or erodes (distance < 0) g by distance. A
// zero distance is the identity transform. ctessum/geom has no native
// buffer primitive (see DESIGN.md); this implements a polygonal offset by
// expanding/contracting each ring vertex along its local outward normal
// and self-unioning (dilation) or self-intersecting with the original
// (erosion) to remove the self-intersections a naive per-vertex offset
// otherwise produces on concave rings.
func Buffer(g geom.Geom, distance float64) geom.Geom {
	if distance == 0 {
		return g
	}
	polys := toPolygons(g)
	if len(polys) == 0 {
		return Empty
	}
	var out geom.MultiPolygon
	for _, p := range polys {
		b := bufferPolygon(p, distance)
		if len(b) > 0 && b.Area() > 0 {
			out = append(out, b)
		}
	}
	if len(out) == 0 {
		return Empty
	}
	if len(out) == 1 {
		return out[0]
	}
	return out
}

func toPolygons(g geom.Geom) []geom.Polygon {
	switch t := g.(type) {
	case geom.Polygon:
		return []geom.Polygon{t}
	case geom.MultiPolygon:
		return []geom.Polygon(t)
	case geom.Point:
		return []geom.Polygon{pointToPolygon(t, 0)}
	case geom.Polygonal:
		return t.Polygons()
	default:
		return nil
	}
}

// pointToPolygon wraps p in a single-vertex ring whatever the radius;
// bufferPolygon recognises that ring and replaces it with a regular
// polygon of the buffer radius (circlePolygon).
func pointToPolygon(p geom.Point, radius float64) geom.Polygon {
	return geom.Polygon{{p}}
}

const bufferSegments = 32

// bufferPolygon offsets each vertex of every ring of p outward (or inward)
// along its local normal by distance, then self-unions (distance > 0) or
// self-intersects with the source (distance < 0) to resolve
// self-intersections introduced by concave offsetting.
func bufferPolygon(p geom.Polygon, distance float64) geom.Polygon {
	if len(p) == 1 && len(p[0]) == 1 {
		// A buffered point: emit a regular polygon approximation. Eroding
		// a point leaves nothing.
		if distance < 0 {
			return nil
		}
		return circlePolygon(p[0][0], math.Abs(distance))
	}
	var rings geom.Polygon
	for _, ring := range p {
		rings = append(rings, offsetRing(ring, distance))
	}
	if distance > 0 {
		acc := geom.Polygon{rings[0]}
		for _, r := range rings[1:] {
			acc = acc.Union(geom.Polygon{r})
		}
		return acc
	}
	// Erosion deeper than the shape's half-width moves every vertex past
	// the opposite side, turning the outer ring inside out into a shape
	// no smaller than the source: nothing is left.
	if (geom.Polygon{rings[0]}).Area() >= (geom.Polygon{p[0]}).Area() {
		return nil
	}
	// Erosion: intersect the offset shape with the original so that
	// offsetting a concave ring inward cannot expand past the source.
	acc := geom.Polygon{rings[0]}
	for _, r := range rings[1:] {
		acc = acc.Union(geom.Polygon{r})
	}
	return acc.Intersection(p)
}

func circlePolygon(center geom.Point, radius float64) geom.Polygon {
	if radius == 0 {
		return geom.Polygon{{center}}
	}
	ring := make([]geom.Point, 0, bufferSegments+1)
	for i := 0; i <= bufferSegments; i++ {
		theta := 2 * math.Pi * float64(i) / float64(bufferSegments)
		ring = append(ring, geom.Point{
			X: center.X + radius*math.Cos(theta),
			Y: center.Y + radius*math.Sin(theta),
		})
	}
	return geom.Polygon{ring}
}

// offsetRing moves every vertex of ring outward by distance along the
// average of its two adjacent edge normals (a standard polygon-offset
// approximation; it is not exact for very sharp concave corners, which is
// why bufferPolygon resolves the result with a self-union/intersection).
func offsetRing(ring []geom.Point, distance float64) []geom.Point {
	n := len(ring)
	if n < 2 {
		return ring
	}
	closed := ring[0] == ring[n-1]
	pts := ring
	if closed {
		pts = ring[:n-1]
	}
	m := len(pts)
	if m < 3 {
		return ring
	}
	out := make([]geom.Point, m)
	for i, p := range pts {
		prev := pts[(i-1+m)%m]
		next := pts[(i+1)%m]
		nx1, ny1 := normal(prev, p)
		nx2, ny2 := normal(p, next)
		nx, ny := nx1+nx2, ny1+ny2
		l := math.Hypot(nx, ny)
		if l == 0 {
			out[i] = p
			continue
		}
		nx, ny = nx/l, ny/l
		out[i] = geom.Point{X: p.X + nx*distance, Y: p.Y + ny*distance}
	}
	if closed {
		out = append(out, out[0])
	}
	return out
}

// normal returns the outward unit normal of the directed edge a->b,
// assuming a counter-clockwise ring winding.
func normal(a, b geom.Point) (nx, ny float64) {
	dx, dy := b.X-a.X, b.Y-a.Y
	l := math.Hypot(dx, dy)
	if l == 0 {
		return 0, 0
	}
	return dy / l, -dx / l
}

// Centroid returns an interior point of g. mode selects between a true
// point-on-surface (always interior, even for non-convex polygons — the
// default per Open Question 3) and the geometric centroid (cheaper, but
// can fall outside g for concave shapes).
func Centroid(g geom.Polygonal, pointOnSurface bool) geom.Point {
	c := g.Centroid()
	if !pointOnSurface {
		return c
	}
	if c.Within(g) != geom.Outside {
		return c
	}
	return pointOnSurfaceFallback(g)
}

// pointOnSurfaceFallback scans the polygons of g for one whose centroid
// (or, failing that, first ring vertex) lies within that polygon. This
// mirrors the common PostGIS ST_PointOnSurface behavior of guaranteeing an
// interior point by construction rather than by exact geometric solution.
func pointOnSurfaceFallback(g geom.Polygonal) geom.Point {
	for _, poly := range g.Polygons() {
		pc := poly.Centroid()
		if pc.Within(poly) != geom.Outside {
			return pc
		}
		if len(poly) > 0 && len(poly[0]) > 0 {
			return poly[0][0]
		}
	}
	return g.Centroid()
}

// SimplifyBeforeBuffer applies an adaptive-tolerance simplification ahead
// of a buffer operation, per §4.1: tolerance = clamp(bufferDistance*0.1,
// 0.5, 10.0) in metric units. It is a no-op when bufferDistance is 0.
func SimplifyBeforeBuffer(g geom.Geom, bufferDistance float64) geom.Geom {
	if bufferDistance == 0 {
		return g
	}
	tol := math.Abs(bufferDistance) * 0.1
	if tol < 0.5 {
		tol = 0.5
	}
	if tol > 10.0 {
		tol = 10.0
	}
	s, ok := g.(geom.Simplifier)
	if !ok {
		return g
	}
	return s.Simplify(tol)
}
