// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package array

import "testing"

func TestStatsGetSet(t *testing.T) {
	s := NewStats()
	if _, ok := s.Get(Min); ok {
		t.Fatal("expected no Min entry on a fresh Stats")
	}
	s.Set(Min, 5)
	v, ok := s.Get(Min)
	if !ok || v.(int) != 5 {
		t.Fatalf("Get(Min) = (%v, %v), want (5, true)", v, ok)
	}
}

func TestStatsSetIsAppendOnly(t *testing.T) {
	s := NewStats()
	s.Set(Max, 10)
	s.Set(Max, 99) // second Set must not overwrite
	v, _ := s.Get(Max)
	if v.(int) != 10 {
		t.Fatalf("Get(Max) = %v, want 10 (first write wins)", v)
	}
}

func TestStatsNilReceiver(t *testing.T) {
	var s *Stats
	if _, ok := s.Get(Min); ok {
		t.Fatal("Get on a nil *Stats should report absent, not panic")
	}
}

func TestStatsClone(t *testing.T) {
	s := NewStats()
	s.Set(IsSorted, true)
	clone := s.Clone()
	clone.Set(IsConstant, false)
	if _, ok := s.Get(IsConstant); ok {
		t.Fatal("mutating a clone should not affect the original")
	}
	v, ok := clone.Get(IsSorted)
	if !ok || v.(bool) != true {
		t.Fatal("clone should carry over existing entries")
	}
}

func TestStatsCloneOfNil(t *testing.T) {
	var s *Stats
	clone := s.Clone()
	if clone == nil {
		t.Fatal("Clone of a nil *Stats should return a usable empty Stats")
	}
}
