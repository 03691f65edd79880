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
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ctessum/geom"
	shpenc "github.com/ctessum/geom/encoding/shp"

	"github.com/spatialmodel/vecfilter"
)

// ShapefileSource is a FeatureSource backed by real .shp files on disk,
// read through geom/encoding/shp's Decoder, which is itself a thin
// wrapper around jonas-p/go-shp. It gives the in-memory OGR backend a
// second, file-based feature source alongside a host's own in-process
// layers, for the case where a target or source layer is a shapefile
// rather than something the host application already has loaded.
//
// Geometry is decoded with whatever ring winding jonas-p/go-shp
// produces after geom/encoding/shp's OGC-orientation fixup; attribute
// values come back as strings, matching DBF's own untyped storage, and
// are handed to the predicate/expr evaluators as such.
type ShapefileSource struct {
	mu    sync.Mutex
	paths map[vecfilter.LayerRef]string
}

// NewShapefileSource builds a source over the given layer-to-path
// mapping. Paths may omit the ".shp" suffix; Decoder trims it anyway.
func NewShapefileSource(paths map[vecfilter.LayerRef]string) *ShapefileSource {
	cp := make(map[vecfilter.LayerRef]string, len(paths))
	for k, v := range paths {
		cp[k] = v
	}
	return &ShapefileSource{paths: cp}
}

// RegisterLayer adds or replaces the file path backing ref.
func (s *ShapefileSource) RegisterLayer(ref vecfilter.LayerRef, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paths[ref] = path
}

// Iterate opens ref's shapefile fresh and streams every row to fn,
// stopping at the first error or context cancellation. The file is
// opened and closed within a single call rather than held open across
// the session's lifetime, since ApplyFilter scans a target layer
// exactly once per filter request.
func (s *ShapefileSource) Iterate(ctx context.Context, ref vecfilter.LayerRef, fn func(fid int64, g geom.Geom, attrs map[string]interface{}) error) error {
	s.mu.Lock()
	path, ok := s.paths[ref]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("ogr: no shapefile registered for layer %q", ref)
	}

	dec, err := shpenc.NewDecoder(path)
	if err != nil {
		return fmt.Errorf("ogr: opening shapefile for layer %q: %w", ref, err)
	}
	defer dec.Close()

	names := fieldNamesOf(dec)

	var fid int64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		g, fields, more := dec.DecodeRowFields(names...)
		if !more {
			break
		}
		if dec.Error() != nil {
			return fmt.Errorf("ogr: reading shapefile row for layer %q: %w", ref, dec.Error())
		}
		attrs := make(map[string]interface{}, len(fields))
		for k, v := range fields {
			attrs[k] = v
		}
		if err := fn(fid, g, attrs); err != nil {
			return err
		}
		fid++
	}
	return nil
}

// fieldNamesOf recovers the DBF field names of an open decoder, the
// same trimming geom/encoding/shp's own unexported helper applies, so
// that DecodeRowFields can be asked for every attribute column without
// the caller having to know the schema up front.
func fieldNamesOf(dec *shpenc.Decoder) []string {
	fields := dec.Fields()
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		names = append(names, trimFieldName(f.Name))
	}
	return names
}

func trimFieldName(name [11]byte) string {
	b := bytes.Trim(name[:], "\x00")
	if n := bytes.IndexByte(b, 0); n != -1 {
		b = b[:n]
	}
	return strings.TrimSpace(string(b))
}
