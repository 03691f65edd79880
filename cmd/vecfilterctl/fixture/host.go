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

// Package fixture is a minimal in-memory vecfilter.Host implementation
// used by cmd/vecfilterctl to exercise the engine without a real GIS
// application attached. It also satisfies backend/ogr's narrower
// FeatureSource interface, so the CLI can drive the OGR backend
// directly against the same in-memory layers.
package fixture

import (
	"context"
	"fmt"
	"sync"

	"github.com/ctessum/geom"
	"github.com/sirupsen/logrus"

	"github.com/spatialmodel/vecfilter"
)

// Feature is one record in a fixture layer.
type Feature struct {
	FID   int64
	Geom  geom.Geom
	Attrs map[string]interface{}
}

type layer struct {
	desc     vecfilter.LayerDescriptor
	features []Feature
}

// Host is a process-local vecfilter.Host over a fixed set of named
// layers, grounded on the teacher's own pattern of a small in-memory
// test double standing in for a real application boundary (e.g.
// inmap/cmd's test fixtures build a *VarGridData by hand rather than
// reading a real grid file).
type Host struct {
	log *logrus.Entry

	mu          sync.Mutex
	layers      map[vecfilter.LayerRef]*layer
	subsets     map[vecfilter.LayerRef]string
	selectedIDs map[vecfilter.LayerRef]*vecfilter.FIDSet
	onRemoved   []func(vecfilter.LayerRef)
	onEdited    []func(vecfilter.LayerRef)
}

// New builds an empty fixture Host.
func New(log *logrus.Entry) *Host {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Host{
		log:         log,
		layers:      make(map[vecfilter.LayerRef]*layer),
		subsets:     make(map[vecfilter.LayerRef]string),
		selectedIDs: make(map[vecfilter.LayerRef]*vecfilter.FIDSet),
	}
}

// AddLayer registers a layer with the given descriptor and features.
func (h *Host) AddLayer(desc vecfilter.LayerDescriptor, features []Feature) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.layers[desc.Ref] = &layer{desc: desc, features: features}
}

func (h *Host) GetLayer(ref vecfilter.LayerRef) (vecfilter.LayerHandle, *vecfilter.LayerDescriptor, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.layers[ref]
	if !ok {
		return nil, nil, false
	}
	desc := l.desc
	return ref, &desc, true
}

// IterFeatures streams every feature of handle's layer. attributeWhere
// and bbox are accepted but unused by this fixture — it always
// delivers every feature. The orchestrator evaluates the source
// expression in process only when Translate returns
// ExpressionNotTranslatable; a translated expression handed to this
// fixture does not narrow the features delivered.
func (h *Host) IterFeatures(ctx context.Context, handle vecfilter.LayerHandle, attributeWhere string, bbox *vecfilter.BBox) (<-chan vecfilter.Feature, <-chan error) {
	out := make(chan vecfilter.Feature)
	errc := make(chan error, 1)

	ref, ok := handle.(vecfilter.LayerRef)
	if !ok {
		close(out)
		errc <- fmt.Errorf("fixture: handle %v is not a layer reference", handle)
		close(errc)
		return out, errc
	}

	h.mu.Lock()
	l, ok := h.layers[ref]
	h.mu.Unlock()
	if !ok {
		close(out)
		errc <- fmt.Errorf("fixture: unknown layer %q", ref)
		close(errc)
		return out, errc
	}

	go func() {
		defer close(out)
		defer close(errc)
		for _, f := range l.features {
			select {
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			case out <- vecfilter.Feature{FID: f.FID, Geometry: f.Geom, Attrs: f.Attrs}:
			}
		}
	}()
	return out, errc
}

// Iterate implements backend/ogr.FeatureSource directly over the same
// in-memory layers IterFeatures serves.
func (h *Host) Iterate(ctx context.Context, layerRef vecfilter.LayerRef, fn func(fid int64, g geom.Geom, attrs map[string]interface{}) error) error {
	h.mu.Lock()
	l, ok := h.layers[layerRef]
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("fixture: unknown layer %q", layerRef)
	}
	for _, f := range l.features {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(f.FID, f.Geom, f.Attrs); err != nil {
			return err
		}
	}
	return nil
}

func (h *Host) ApplySubsetString(handle vecfilter.LayerHandle, subsetString string) error {
	ref, ok := handle.(vecfilter.LayerRef)
	if !ok {
		return fmt.Errorf("fixture: handle %v is not a layer reference", handle)
	}
	h.mu.Lock()
	h.subsets[ref] = subsetString
	delete(h.selectedIDs, ref)
	h.mu.Unlock()
	h.log.WithField("layer", ref).Infof("subset string applied: %s", subsetString)
	return nil
}

func (h *Host) SetSelectedFIDs(handle vecfilter.LayerHandle, fids *vecfilter.FIDSet) {
	ref, ok := handle.(vecfilter.LayerRef)
	if !ok {
		return
	}
	h.mu.Lock()
	h.selectedIDs[ref] = fids
	delete(h.subsets, ref)
	h.mu.Unlock()
	h.log.WithField("layer", ref).Infof("selected %d feature(s)", fids.Len())
}

// LastSubsetString reports the last subset string applied to ref, if
// any — used by the CLI to print a human-readable result.
func (h *Host) LastSubsetString(ref vecfilter.LayerRef) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.subsets[ref]
	return s, ok
}

// LastSelectedFIDs reports the last explicit fid set applied to ref, if
// any.
func (h *Host) LastSelectedFIDs(ref vecfilter.LayerRef) (*vecfilter.FIDSet, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	f, ok := h.selectedIDs[ref]
	return f, ok
}

func (h *Host) OnLayerRemoved(cb func(ref vecfilter.LayerRef)) {
	h.mu.Lock()
	h.onRemoved = append(h.onRemoved, cb)
	h.mu.Unlock()
}

func (h *Host) OnLayerEdited(cb func(ref vecfilter.LayerRef)) {
	h.mu.Lock()
	h.onEdited = append(h.onEdited, cb)
	h.mu.Unlock()
}

// RemoveLayer drops ref and fires every registered OnLayerRemoved
// callback, simulating a host-side layer deletion.
func (h *Host) RemoveLayer(ref vecfilter.LayerRef) {
	h.mu.Lock()
	delete(h.layers, ref)
	cbs := append([]func(vecfilter.LayerRef){}, h.onRemoved...)
	h.mu.Unlock()
	for _, cb := range cbs {
		cb(ref)
	}
}

// EditLayer replaces ref's features and fires every registered
// OnLayerEdited callback, simulating an out-of-band host edit that
// must invalidate any cached filter result for ref.
func (h *Host) EditLayer(ref vecfilter.LayerRef, features []Feature) {
	h.mu.Lock()
	if l, ok := h.layers[ref]; ok {
		l.features = features
	}
	cbs := append([]func(vecfilter.LayerRef){}, h.onEdited...)
	h.mu.Unlock()
	for _, cb := range cbs {
		cb(ref)
	}
}

func (h *Host) ReportMessage(level vecfilter.MessageLevel, text string) {
	switch level {
	case vecfilter.MessageError:
		h.log.Error(text)
	case vecfilter.MessageWarning:
		h.log.Warn(text)
	default:
		h.log.Info(text)
	}
}

func (h *Host) ReportProgress(task string, percent int, text string) {
	h.log.WithField("task", task).Debugf("%d%% %s", percent, text)
}
