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

import "testing"

func TestFIDSetAddDedup(t *testing.T) {
	s := NewFIDSet(1, 2, 2, 3, 1)
	if have, want := s.Len(), 3; have != want {
		t.Errorf("have %d members, want %d", have, want)
	}
	if have, want := s.Slice(), []int64{1, 2, 3}; !int64SliceEqual(have, want) {
		t.Errorf("have %v, want %v", have, want)
	}
}

func TestFIDSetAnd(t *testing.T) {
	a := NewFIDSet(1, 2, 3)
	b := NewFIDSet(2, 3, 4)
	have := a.And(b)
	want := NewFIDSet(2, 3)
	if !have.Equal(want) {
		t.Errorf("have %v, want %v", have.Slice(), want.Slice())
	}
}

func TestFIDSetOrPreservesAOrdering(t *testing.T) {
	a := NewFIDSet(3, 1)
	b := NewFIDSet(1, 2)
	have := a.Or(b)
	want := []int64{3, 1, 2}
	if !int64SliceEqual(have.Slice(), want) {
		t.Errorf("have %v, want %v", have.Slice(), want)
	}
}

func TestFIDSetNotAnd(t *testing.T) {
	a := NewFIDSet(1, 2, 3)
	b := NewFIDSet(2)
	have := a.NotAnd(b)
	want := NewFIDSet(1, 3)
	if !have.Equal(want) {
		t.Errorf("have %v, want %v", have.Slice(), want.Slice())
	}
}

func TestFIDSetEqualIgnoresOrder(t *testing.T) {
	a := NewFIDSet(1, 2, 3)
	b := NewFIDSet(3, 2, 1)
	if !a.Equal(b) {
		t.Error("have not equal, want equal (order should not matter)")
	}
}

func TestFIDSetNilReceiverIsEmpty(t *testing.T) {
	var s *FIDSet
	if have := s.Len(); have != 0 {
		t.Errorf("have Len() %d on nil *FIDSet, want 0", have)
	}
	if s.Contains(1) {
		t.Error("have Contains(1) true on nil *FIDSet, want false")
	}
	if have := s.Slice(); have != nil {
		t.Errorf("have Slice() %v on nil *FIDSet, want nil", have)
	}
}

func TestFIDSetClone(t *testing.T) {
	a := NewFIDSet(1, 2)
	b := a.Clone()
	b.Add(3)
	if a.Contains(3) {
		t.Error("mutating the clone mutated the original")
	}
	if !b.Contains(3) {
		t.Error("clone did not pick up the new member")
	}
}

func int64SliceEqual(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
