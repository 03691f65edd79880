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

// Package history implements §4.7: a per-layer undo/redo stack plus a
// global stack capturing the combined outcome of multi-layer requests.
// Plain Go slices model the stacks — nothing in the example pack offers
// a bounded-stack structure that does more than a slice with a cap
// check, so this is intentionally plain (see DESIGN.md).
package history

import (
	"github.com/spatialmodel/vecfilter"
)

// stack is a capped LIFO of T with a parallel, cleared-on-push redo
// buffer. It is not safe for concurrent use; Store serializes access.
type stack[T any] struct {
	cap  int
	undo []T
	redo []T
}

func newStack[T any](capacity int) *stack[T] {
	return &stack[T]{cap: capacity}
}

func (s *stack[T]) push(v T) {
	s.undo = append(s.undo, v)
	if s.cap > 0 && len(s.undo) > s.cap {
		s.undo = s.undo[len(s.undo)-s.cap:]
	}
	s.redo = nil // redo-clear-on-push, §4.7 invariant
}

func (s *stack[T]) top() (T, bool) {
	var zero T
	if len(s.undo) == 0 {
		return zero, false
	}
	return s.undo[len(s.undo)-1], true
}

func (s *stack[T]) undoTop() (T, bool) {
	var zero T
	if len(s.undo) == 0 {
		return zero, false
	}
	v := s.undo[len(s.undo)-1]
	s.undo = s.undo[:len(s.undo)-1]
	s.redo = append(s.redo, v)
	return v, true
}

func (s *stack[T]) redoTop() (T, bool) {
	var zero T
	if len(s.redo) == 0 {
		return zero, false
	}
	v := s.redo[len(s.redo)-1]
	s.redo = s.redo[:len(s.redo)-1]
	s.undo = append(s.undo, v)
	return v, true
}

// Store holds the per-layer and global history stacks for one session.
type Store struct {
	capacity int
	perLayer map[vecfilter.LayerRef]*stack[vecfilter.FilterState]
	global   *stack[vecfilter.GlobalFilterState]
}

// New builds a Store with the given per-stack capacity (config key
// history.capacity, default 100).
func New(capacity int) *Store {
	return &Store{
		capacity: capacity,
		perLayer: make(map[vecfilter.LayerRef]*stack[vecfilter.FilterState]),
		global:   newStack[vecfilter.GlobalFilterState](capacity),
	}
}

func (s *Store) layerStack(ref vecfilter.LayerRef) *stack[vecfilter.FilterState] {
	st, ok := s.perLayer[ref]
	if !ok {
		st = newStack[vecfilter.FilterState](s.capacity)
		s.perLayer[ref] = st
	}
	return st
}

// sameEntry reports whether two FilterStates would be a duplicate
// adjacent push: same layer and same rendered payload (subset
// expression, or FID membership for fid-set states).
func sameEntry(a, b vecfilter.FilterState) bool {
	if a.LayerRef != b.LayerRef || a.Kind != b.Kind {
		return false
	}
	if a.Kind == vecfilter.KindFIDSet {
		return a.FIDs.Equal(b.FIDs)
	}
	return a.SubsetExpr == b.SubsetExpr
}

// PushSourceOnly pushes state to its own layer's stack only, used when a
// request affected only the source layer (§4.7: "no targets with a
// resulting filter").
func (s *Store) PushSourceOnly(state vecfilter.FilterState) {
	st := s.layerStack(state.LayerRef)
	if top, ok := st.top(); ok && sameEntry(top, state) {
		return
	}
	st.push(state)
}

// PushRequest pushes one GlobalFilterState to the global stack and the
// source layer's state to its per-layer stack, per §4.7's normal push
// policy for a request with at least one affected target.
func (s *Store) PushRequest(sourceRef vecfilter.LayerRef, global vecfilter.GlobalFilterState) {
	if top, ok := s.global.top(); !ok || !sameGlobal(top, global) {
		s.global.push(global)
	}
	if srcState, ok := global.States[sourceRef]; ok {
		st := s.layerStack(sourceRef)
		if top, ok := st.top(); !ok || !sameEntry(top, srcState) {
			st.push(srcState)
		}
	}
}

func sameGlobal(a, b vecfilter.GlobalFilterState) bool {
	if len(a.States) != len(b.States) {
		return false
	}
	for ref, as := range a.States {
		bs, ok := b.States[ref]
		if !ok || !sameEntry(as, bs) {
			return false
		}
	}
	return true
}

// UndoTarget describes what to undo/redo and how to apply it back to
// the host: either every layer in a GlobalFilterState, or a single
// layer's FilterState.
type UndoTarget struct {
	Global     *vecfilter.GlobalFilterState
	Layer      *vecfilter.FilterState
}

// Undo implements §4.7's context-detection rule: if any of
// currentlyFiltered's layers currently carries a filter and the top of
// the global stack references it, undo the whole global entry;
// otherwise undo only currentLayer's own stack.
func (s *Store) Undo(currentLayer vecfilter.LayerRef, currentlyFiltered map[vecfilter.LayerRef]bool) (UndoTarget, bool) {
	if top, ok := s.global.top(); ok {
		for ref := range top.States {
			if currentlyFiltered[ref] {
				g, _ := s.global.undoTop()
				return UndoTarget{Global: &g}, true
			}
		}
	}
	st := s.layerStack(currentLayer)
	if v, ok := st.undoTop(); ok {
		return UndoTarget{Layer: &v}, true
	}
	return UndoTarget{}, false
}

// Redo is the undo-symmetric operation.
func (s *Store) Redo(currentLayer vecfilter.LayerRef, currentlyFiltered map[vecfilter.LayerRef]bool) (UndoTarget, bool) {
	if len(s.global.redo) > 0 {
		top := s.global.redo[len(s.global.redo)-1]
		for ref := range top.States {
			if currentlyFiltered[ref] {
				g, _ := s.global.redoTop()
				return UndoTarget{Global: &g}, true
			}
		}
	}
	st := s.layerStack(currentLayer)
	if v, ok := st.redoTop(); ok {
		return UndoTarget{Layer: &v}, true
	}
	return UndoTarget{}, false
}

// ClearLayer drops ref's per-layer stack, used on layer removal.
func (s *Store) ClearLayer(ref vecfilter.LayerRef) {
	delete(s.perLayer, ref)
}
