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

import "context"

// Feature is one record streamed from the host during IterFeatures.
type Feature struct {
	FID      int64
	Geometry interface{} // a github.com/ctessum/geom geom.Geom value
	Attrs    map[string]interface{}
}

// BBox is an axis-aligned bounding box in the layer's native CRS.
type BBox struct {
	MinX, MinY, MaxX, MaxY float64
}

// LayerHandle is an opaque, host-owned reference to an open layer.
type LayerHandle interface{}

// MessageLevel mirrors the host's report_message severities.
type MessageLevel int

const (
	MessageInfo MessageLevel = iota
	MessageWarning
	MessageError
)

// Host is the single boundary the core depends on. The core never imports
// a concrete host implementation (SPEC_FULL.md §6); production hosts
// (a GIS application) and test fixtures both satisfy this interface.
type Host interface {
	GetLayer(ref LayerRef) (LayerHandle, *LayerDescriptor, bool)
	IterFeatures(ctx context.Context, handle LayerHandle, attributeWhere string, bbox *BBox) (<-chan Feature, <-chan error)
	ApplySubsetString(handle LayerHandle, subsetString string) error
	SetSelectedFIDs(handle LayerHandle, fids *FIDSet)
	OnLayerRemoved(cb func(ref LayerRef))
	OnLayerEdited(cb func(ref LayerRef))
	ReportMessage(level MessageLevel, text string)
	ReportProgress(task string, percent int, text string)
}

// hostPredicateCodes is the host integer predicate code table from §6.
var hostPredicateCodes = map[int]Predicate{
	0: Intersects,
	1: Contains,
	2: Disjoint,
	3: Equals,
	4: Touches,
	5: Overlaps,
	6: Within,
	7: Crosses,
}

// PredicateFromHostCode maps a host application's integer predicate code
// to the canonical predicate name, per the table in §6.
func PredicateFromHostCode(code int) (Predicate, bool) {
	p, ok := hostPredicateCodes[code]
	return p, ok
}
