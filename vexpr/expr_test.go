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

package vexpr

import (
	"reflect"
	"testing"

	"github.com/doki23/vortex/scalar"
)

func TestFieldsCollectsColumnsFromBothSides(t *testing.T) {
	e := Binary{
		Op:   And,
		Left: Binary{Op: Eq, Left: Column{Name: "a"}, Right: Literal{Value: scalar.I64(1)}},
		Right: Binary{Op: Gt, Left: Column{Name: "b"}, Right: Literal{Value: scalar.I64(2)}},
	}
	got := Fields(e)
	want := map[string]bool{"a": true, "b": true}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Fields() = %v, want %v", got, want)
	}
}

func TestProjectLiteralAlwaysKept(t *testing.T) {
	lit := Literal{Value: scalar.I64(5)}
	if Project(lit, map[string]bool{}) == nil {
		t.Error("a literal must always survive projection")
	}
}

func TestProjectColumnKeepsOnlyWhenProjected(t *testing.T) {
	col := Column{Name: "a"}
	if Project(col, map[string]bool{"b": true, "c": true}) != nil {
		t.Error("column a should be pruned when a multi-field projection omits it")
	}
	if Project(col, map[string]bool{"a": true, "b": true}) == nil {
		t.Error("column a should survive when projection names a")
	}
}

func TestProjectColumnIsIdentityForSingleFieldProjection(t *testing.T) {
	col := Column{Name: "a"}
	got := Project(col, map[string]bool{"b": true})
	if got == nil {
		t.Fatal("a column must survive a single-field projection naming a different field, since that field is the entire row")
	}
	if got != col {
		t.Errorf("Project() = %v, want unchanged column %v", got, col)
	}
}

func TestProjectSelectIntersectsFields(t *testing.T) {
	sel := Select{Fields: []string{"a", "b", "c"}}
	got := Project(sel, map[string]bool{"a": true, "c": true})
	want := Select{Fields: []string{"a", "c"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Project() = %v, want %v", got, want)
	}
}

func TestProjectSelectPrunesWhenNothingSurvives(t *testing.T) {
	sel := Select{Fields: []string{"a", "b"}}
	if Project(sel, map[string]bool{"z": true}) != nil {
		t.Error("a select with no surviving fields must prune to nil")
	}
}

func TestProjectAndNarrowsToSurvivingSide(t *testing.T) {
	left := Binary{Op: Eq, Left: Column{Name: "a"}, Right: Literal{Value: scalar.I64(1)}}
	right := Binary{Op: Eq, Left: Column{Name: "z"}, Right: Literal{Value: scalar.I64(2)}}
	e := Binary{Op: And, Left: left, Right: right}
	projection := map[string]bool{"a": true, "b": true}
	got := Project(e, projection)
	gotBinary, ok := got.(Binary)
	if !ok || gotBinary.Op != Eq {
		t.Fatalf("Project(AND) should narrow to the surviving left branch, got %#v", got)
	}
}

func TestProjectAndPrunesWhenNeitherSideSurvives(t *testing.T) {
	left := Binary{Op: Eq, Left: Column{Name: "x"}, Right: Literal{Value: scalar.I64(1)}}
	right := Binary{Op: Eq, Left: Column{Name: "y"}, Right: Literal{Value: scalar.I64(2)}}
	e := Binary{Op: And, Left: left, Right: right}
	projection := map[string]bool{"a": true, "b": true}
	if Project(e, projection) != nil {
		t.Error("AND of two non-projecting branches must prune to nil")
	}
}

func TestProjectNonAndRequiresBothSidesToProject(t *testing.T) {
	e := Binary{Op: Or, Left: Column{Name: "a"}, Right: Column{Name: "z"}}
	projection := map[string]bool{"a": true, "b": true}
	if Project(e, projection) != nil {
		t.Error("OR should prune entirely when only one side fully projects")
	}
	projection2 := map[string]bool{"a": true, "z": true}
	if Project(e, projection2) == nil {
		t.Error("OR should survive unchanged when both sides fully project")
	}
}
