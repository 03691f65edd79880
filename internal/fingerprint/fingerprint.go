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

// Package fingerprint implements §4.6: a stable cache key built from the
// canonical inputs to a filter request, so that two requests which would
// produce the same result set hash identically regardless of argument
// ordering or float formatting noise.
package fingerprint

import (
	"encoding/gob"
	"fmt"
	"hash/fnv"
	"sort"

	"github.com/davecgh/go-spew/spew"

	"github.com/spatialmodel/vecfilter"
)

// Key is the canonical fingerprint of one (source geometry, predicates,
// buffer, target layer) combination, as described in §4.6.
type Key string

// input mirrors the fields §3/§4.6 lists as fingerprint inputs: canonical
// source WKT, buffer value, sorted predicates, target layer key, and the
// centroid flags. CombineOperator and PreviousFilterState are
// deliberately absent — two requests against the same source and target
// that differ only in how the new match is combined with a prior
// selection must still hash identically, so the result cache can serve
// the same raw spatial match to an AND, an OR, and a REPLACE alike.
// Field order here does not matter for the hash (gob encodes by field,
// not by map iteration) but the predicate slice is sorted by the caller
// first so that {intersects, within} and {within, intersects} hash
// identically.
type input struct {
	SourceWKT         string
	Predicates        []string
	BufferValue       float64
	UseSourceCentroid bool
	UseTargetCentroid bool
	TargetLayerRef    string
}

// Compute builds the fingerprint for one target layer of a filter
// request. sourceWKT must already be in CanonicalWKT form (geomutil
// handles precision truncation); predicates need not be pre-sorted.
func Compute(sourceWKT string, predicates []vecfilter.Predicate, bufferValue float64, useSourceCentroid, useTargetCentroid bool, targetLayerRef vecfilter.LayerRef) Key {
	sorted := make([]string, len(predicates))
	for i, p := range predicates {
		sorted[i] = string(p)
	}
	sort.Strings(sorted)

	in := input{
		SourceWKT:         sourceWKT,
		Predicates:        sorted,
		BufferValue:       roundTo4(bufferValue),
		UseSourceCentroid: useSourceCentroid,
		UseTargetCentroid: useTargetCentroid,
		TargetLayerRef:    string(targetLayerRef),
	}
	return Key(hashObject(in))
}

// roundTo4 rounds v to 4 decimal places, per §4.6's "buffer value rounded
// to 4 decimals" rule, so that 500.00001 and 500.00002 — noise from two
// independently-computed but logically equal buffer distances — hash the
// same.
func roundTo4(v float64) float64 {
	const scale = 1e4
	return float64(int64(v*scale+sign(v)*0.5)) / scale
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}

// hashObject is the teacher's internal/hash.Hash helper, adapted: gob
// first, falling back to a spew dump for values gob can't encode (e.g.
// a type with no exported fields).
func hashObject(object interface{}) string {
	h := fnv.New128a()

	e := gob.NewEncoder(h)
	if err := e.Encode(object); err == nil {
		bKey := h.Sum([]byte{})
		return fmt.Sprintf("%x", bKey[0:h.Size()])
	}

	printer := spew.ConfigState{
		Indent:                  " ",
		SortKeys:                true,
		DisableMethods:          true,
		SpewKeys:                true,
		DisablePointerAddresses: true,
		DisableCapacities:       true,
	}
	printer.Fprintf(h, "%#v", object)
	bKey := h.Sum([]byte{})
	return fmt.Sprintf("%x", bKey[0:h.Size()])
}
