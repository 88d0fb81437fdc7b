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

package vfile

import (
	"github.com/doki23/vortex/array"
	"github.com/doki23/vortex/scalar"
	"github.com/doki23/vortex/vexpr"
	"github.com/doki23/vortex/vxerr"
)

// cmpToVexprOp translates an array.CompareOp threshold filter into the
// equivalent vexpr.Op, so the one comparison ReadAllFiltered exposes
// publicly is expressed as a vexpr.Binary and can be pruned with
// vexpr.Project like any other filter expression.
func cmpToVexprOp(cmp array.CompareOp) (vexpr.Op, error) {
	switch cmp {
	case array.Eq:
		return vexpr.Eq, nil
	case array.NotEq:
		return vexpr.Ne, nil
	case array.Lt:
		return vexpr.Lt, nil
	case array.LtEq:
		return vexpr.Le, nil
	case array.Gt:
		return vexpr.Gt, nil
	case array.GtEq:
		return vexpr.Ge, nil
	default:
		return 0, vxerr.E(vxerr.InvalidArgument, "row mask: unsupported compare op %v", cmp)
	}
}

// evalScalar resolves e to a scalar at row i, looking up Column nodes in
// cols (the set of fields the row-mask stage decoded for this split).
// Every Column reaching here must have a decoded entry in cols -- callers
// only ever evaluate the vexpr.Project-pruned fragment of a filter
// expression, never the whole tree blind.
func evalScalar(e vexpr.Expr, cols map[string]array.Array, i int) (scalar.Scalar, error) {
	switch v := e.(type) {
	case vexpr.Literal:
		return v.Value, nil
	case vexpr.Column:
		arr, ok := cols[v.Name]
		if !ok {
			return scalar.Scalar{}, vxerr.E(vxerr.InvalidArgument, "row mask: column %q was not decoded for this split", v.Name)
		}
		sa, ok := arr.(array.ScalarAtter)
		if !ok {
			canon, err := arr.IntoCanonical()
			if err != nil {
				return scalar.Scalar{}, err
			}
			sa, ok = canon.(array.ScalarAtter)
			if !ok {
				return scalar.Scalar{}, vxerr.E(vxerr.Unsupported, "row mask: column %q has no scalar_at", v.Name)
			}
		}
		return sa.ScalarAt(i)
	default:
		return scalar.Scalar{}, vxerr.E(vxerr.Unsupported, "row mask: expression node is not scalar-valued")
	}
}

func compareScalarsVexpr(op vexpr.Op, a, b scalar.Scalar) bool {
	af, aok := a.AsF64()
	bf, bok := b.AsF64()
	if !aok || !bok {
		return false
	}
	switch op {
	case vexpr.Eq:
		return af == bf
	case vexpr.Ne:
		return af != bf
	case vexpr.Lt:
		return af < bf
	case vexpr.Le:
		return af <= bf
	case vexpr.Gt:
		return af > bf
	case vexpr.Ge:
		return af >= bf
	default:
		return false
	}
}

// evalBool evaluates the boolean value of e (a comparison or an And/Or
// combinator of comparisons) at row i, against already-decoded columns.
// A null operand (either side of a comparison, from either Column or a
// not-valid Literal) makes the comparison false, matching the row-mask
// semantics the stream's filter kernels already use elsewhere.
func evalBool(e vexpr.Expr, cols map[string]array.Array, i int) (bool, error) {
	b, ok := e.(vexpr.Binary)
	if !ok {
		return false, vxerr.E(vxerr.Unsupported, "row mask: filter root must be a comparison or boolean combinator")
	}
	switch b.Op {
	case vexpr.And:
		l, err := evalBool(b.Left, cols, i)
		if err != nil {
			return false, err
		}
		if !l {
			return false, nil
		}
		return evalBool(b.Right, cols, i)
	case vexpr.Or:
		l, err := evalBool(b.Left, cols, i)
		if err != nil {
			return false, err
		}
		if l {
			return true, nil
		}
		return evalBool(b.Right, cols, i)
	default:
		lv, err := evalScalar(b.Left, cols, i)
		if err != nil {
			return false, err
		}
		if !lv.Valid {
			return false, nil
		}
		rv, err := evalScalar(b.Right, cols, i)
		if err != nil {
			return false, err
		}
		if !rv.Valid {
			return false, nil
		}
		return compareScalarsVexpr(b.Op, lv, rv), nil
	}
}
