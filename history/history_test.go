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

package history

import (
	"testing"

	"github.com/spatialmodel/vecfilter"
)

func state(layer vecfilter.LayerRef, expr string) vecfilter.FilterState {
	return vecfilter.FilterState{LayerRef: layer, Kind: vecfilter.KindSubsetString, SubsetExpr: expr}
}

func TestPushSourceOnlyDoesNotTouchGlobal(t *testing.T) {
	s := New(100)
	s.PushSourceOnly(state("L", "a > 1"))
	if _, ok := s.Undo("L", nil); !ok {
		t.Fatal("expected an undo target after PushSourceOnly")
	}
	if _, ok := s.Undo("L", nil); ok {
		t.Fatal("expected stack to be empty after a single undo")
	}
}

func TestPushRequestPushesBothStacks(t *testing.T) {
	s := New(100)
	g := vecfilter.GlobalFilterState{States: map[vecfilter.LayerRef]vecfilter.FilterState{
		"SRC": state("SRC", "src expr"),
		"T1":  state("T1", "t1 expr"),
	}}
	s.PushRequest("SRC", g)

	target, ok := s.Undo("T1", map[vecfilter.LayerRef]bool{"T1": true})
	if !ok {
		t.Fatal("expected undo target")
	}
	if target.Global == nil {
		t.Fatal("expected a global undo target since T1 is currently filtered and referenced by the top global state")
	}
}

func TestUndoContextDetectionFallsBackToPerLayer(t *testing.T) {
	s := New(100)
	g := vecfilter.GlobalFilterState{States: map[vecfilter.LayerRef]vecfilter.FilterState{
		"T1": state("T1", "t1 expr"),
	}}
	s.PushRequest("SRC", g)
	s.PushSourceOnly(state("SRC", "src expr 2"))

	// SRC's own per-layer stack has two entries; T1 is not "currently
	// filtered" so undo must fall back to SRC's own stack rather than the
	// global one.
	target, ok := s.Undo("SRC", map[vecfilter.LayerRef]bool{})
	if !ok {
		t.Fatal("expected undo target")
	}
	if target.Global != nil {
		t.Fatal("expected a per-layer undo target, not global, when no referenced layer is currently filtered")
	}
	if target.Layer == nil || target.Layer.SubsetExpr != "src expr 2" {
		t.Fatalf("expected to undo the most recent SRC push, got %+v", target.Layer)
	}
}

func TestRedoIsClearedOnNewPush(t *testing.T) {
	s := New(100)
	s.PushSourceOnly(state("L", "a"))
	s.PushSourceOnly(state("L", "b"))

	if _, ok := s.Undo("L", nil); !ok {
		t.Fatal("expected undo to succeed")
	}
	// Now redo is available (restores "b"); a fresh push must clear it.
	s.PushSourceOnly(state("L", "c"))
	if _, ok := s.Redo("L", nil); ok {
		t.Fatal("expected redo to be cleared by the intervening push")
	}
}

func TestUndoRedoRoundTrip(t *testing.T) {
	s := New(100)
	exprs := []string{"a", "b", "c"}
	for _, e := range exprs {
		s.PushSourceOnly(state("L", e))
	}

	var undone []string
	for i := 0; i < len(exprs); i++ {
		target, ok := s.Undo("L", nil)
		if !ok {
			t.Fatalf("undo %d: expected ok", i)
		}
		undone = append(undone, target.Layer.SubsetExpr)
	}
	want := []string{"c", "b", "a"}
	for i := range want {
		if undone[i] != want[i] {
			t.Errorf("undo order[%d] = %q, want %q", i, undone[i], want[i])
		}
	}

	var redone []string
	for i := 0; i < len(exprs); i++ {
		target, ok := s.Redo("L", nil)
		if !ok {
			t.Fatalf("redo %d: expected ok", i)
		}
		redone = append(redone, target.Layer.SubsetExpr)
	}
	want2 := []string{"a", "b", "c"}
	for i := range want2 {
		if redone[i] != want2[i] {
			t.Errorf("redo order[%d] = %q, want %q", i, redone[i], want2[i])
		}
	}
}

func TestDuplicateAdjacentPushSuppressed(t *testing.T) {
	s := New(100)
	s.PushSourceOnly(state("L", "a"))
	s.PushSourceOnly(state("L", "a"))
	s.PushSourceOnly(state("L", "a"))

	count := 0
	for {
		if _, ok := s.Undo("L", nil); !ok {
			break
		}
		count++
	}
	if count != 1 {
		t.Errorf("expected exactly one entry after three identical pushes, got %d", count)
	}
}

func TestHistoryCapacityBound(t *testing.T) {
	s := New(3)
	for i := 0; i < 10; i++ {
		s.PushSourceOnly(vecfilter.FilterState{LayerRef: "L", Kind: vecfilter.KindSubsetString, SubsetExpr: string(rune('a' + i))})
	}
	count := 0
	for {
		if _, ok := s.Undo("L", nil); !ok {
			break
		}
		count++
	}
	if count > 3 {
		t.Errorf("expected at most 3 entries retained, got %d", count)
	}
}

func TestClearLayerDropsPerLayerStack(t *testing.T) {
	s := New(100)
	s.PushSourceOnly(state("L", "a"))
	s.ClearLayer("L")
	if _, ok := s.Undo("L", nil); ok {
		t.Fatal("expected no undo target after ClearLayer")
	}
}
