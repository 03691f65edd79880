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

package expr

import (
	"fmt"
	"strings"

	"github.com/Knetic/govaluate"

	"github.com/spatialmodel/vecfilter"
)

// Evaluator evaluates one parsed expression against an in-process
// feature's attribute map. The OGR backend uses this instead of
// Translate/Fragment: it has no SQL engine to hand a WHERE clause to, so
// the expression is evaluated feature-by-feature during iteration.
type Evaluator struct {
	expr *govaluate.EvaluableExpression
	vars []string
}

var evalFuncs = map[string]govaluate.ExpressionFunction{
	"UPPER": func(args ...interface{}) (interface{}, error) {
		return strings.ToUpper(asString(args[0])), nil
	},
	"LOWER": func(args ...interface{}) (interface{}, error) {
		return strings.ToLower(asString(args[0])), nil
	},
	"TRIM": func(args ...interface{}) (interface{}, error) {
		return strings.TrimSpace(asString(args[0])), nil
	},
	"LENGTH": func(args ...interface{}) (interface{}, error) {
		return float64(len(asString(args[0]))), nil
	},
	"ABS": func(args ...interface{}) (interface{}, error) {
		f, ok := args[0].(float64)
		if !ok {
			return nil, fmt.Errorf("ABS expects a numeric argument")
		}
		if f < 0 {
			return -f, nil
		}
		return f, nil
	},
	"COALESCE": func(args ...interface{}) (interface{}, error) {
		for _, a := range args {
			if a != nil {
				return a, nil
			}
		}
		return nil, nil
	},
}

// NewEvaluator sanitizes and compiles src into a reusable Evaluator.
func NewEvaluator(src string) (*Evaluator, error) {
	if err := Sanitize(src); err != nil {
		return nil, err
	}
	n, err := Parse(src)
	if err != nil {
		return nil, &vecfilter.FilterError{Kind: vecfilter.ExpressionNotTranslatable, Backend: vecfilter.BackendOGR, Message: err.Error(), Cause: err}
	}
	govalSrc := toGovaluate(n)
	ge, err := govaluate.NewEvaluableExpressionWithFunctions(govalSrc, evalFuncs)
	if err != nil {
		return nil, &vecfilter.FilterError{Kind: vecfilter.ExpressionNotTranslatable, Backend: vecfilter.BackendOGR, Message: err.Error(), Cause: err}
	}
	return &Evaluator{expr: ge, vars: Vars(n)}, nil
}

// Vars returns the attribute column names the compiled expression reads.
func (e *Evaluator) Vars() []string { return e.vars }

// Eval evaluates the expression against one feature's attributes and
// reports whether the feature passes the filter.
func (e *Evaluator) Eval(attrs map[string]interface{}) (bool, error) {
	params := make(map[string]interface{}, len(e.vars))
	for _, v := range e.vars {
		params[v] = attrs[v]
	}
	result, err := e.expr.Evaluate(params)
	if err != nil {
		return false, &vecfilter.FilterError{Kind: vecfilter.ExpressionNotTranslatable, Backend: vecfilter.BackendOGR, Message: err.Error(), Cause: err}
	}
	b, ok := result.(bool)
	if !ok {
		return false, &vecfilter.FilterError{Kind: vecfilter.ExpressionNotTranslatable, Backend: vecfilter.BackendOGR, Message: "expression did not evaluate to a boolean"}
	}
	return b, nil
}

func asString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// toGovaluate renders the AST back into govaluate's own expression
// syntax, which is close to but not identical to SQL: string equality
// uses "==", ILIKE/LIKE have no equivalent so are rewritten into
// "=~" regex matches or "==" (case-folded through UPPER() for ILIKE
// only), and IN/BETWEEN expand into
// their boolean-connective equivalents since govaluate has neither.
func toGovaluate(n Node) string {
	switch t := n.(type) {
	case Column:
		return "[" + t.Name + "]"
	case Literal:
		return literalLiteral(t.Value)
	case Unary:
		switch t.Op {
		case "NOT":
			return "(!" + toGovaluate(t.X) + ")"
		case "-":
			return "(-" + toGovaluate(t.X) + ")"
		}
	case Binary:
		op := t.Op
		switch op {
		case "AND":
			op = "&&"
		case "OR":
			op = "||"
		case "=":
			op = "=="
		case "!=":
			op = "!="
		}
		return "(" + toGovaluate(t.L) + " " + op + " " + toGovaluate(t.R) + ")"
	case InList:
		parts := make([]string, len(t.List))
		for i, it := range t.List {
			parts[i] = "(" + toGovaluate(t.X) + " == " + toGovaluate(it) + ")"
		}
		joined := "(" + strings.Join(parts, " || ") + ")"
		if t.Not {
			return "(!" + joined + ")"
		}
		return joined
	case Between:
		x := toGovaluate(t.X)
		expr := "((" + x + " >= " + toGovaluate(t.Lo) + ") && (" + x + " <= " + toGovaluate(t.Hi) + "))"
		if t.Not {
			return "(!" + expr + ")"
		}
		return expr
	case Like:
		return likeToGovaluate(t)
	case IsNull:
		expr := "(" + toGovaluate(t.X) + " == nil)"
		if t.Not {
			return "(!" + expr + ")"
		}
		return expr
	case CaseExpr:
		return caseToGovaluate(t)
	case Call:
		args := make([]string, len(t.Args))
		for i, a := range t.Args {
			args[i] = toGovaluate(a)
		}
		return t.Name + "(" + strings.Join(args, ", ") + ")"
	}
	return "false"
}

func literalLiteral(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return "nil"
	case string:
		return "'" + strings.ReplaceAll(t, "'", "\\'") + "'"
	case bool:
		if t {
			return "true"
		}
		return "false"
	case float64:
		return fmt.Sprintf("%g", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// likeToGovaluate translates a SQL LIKE pattern ('%' / '_' wildcards)
// into a govaluate "=~" regex match (contains, prefix or suffix) or an
// "==" comparison, folding case
// through UPPER() on both sides when the match is case-insensitive —
// this is the eval-path counterpart of emit.go's COLLATE NOCASE/ILIKE
// handling for the SQL backends.
func likeToGovaluate(t Like) string {
	lit, isLit := t.Pattern.(Literal)
	if !isLit {
		return "false"
	}
	pat, _ := lit.Value.(string)
	x := toGovaluate(t.X)
	if t.CaseInsensitive {
		x = "UPPER(" + x + ")"
		pat = strings.ToUpper(pat)
	}
	var call string
	switch {
	case strings.HasPrefix(pat, "%") && strings.HasSuffix(pat, "%") && len(pat) >= 2:
		call = fmt.Sprintf("(%s =~ %q)", x, strings.Trim(pat, "%"))
	case strings.HasSuffix(pat, "%"):
		call = fmt.Sprintf("(%s =~ '^%s')", x, strings.TrimSuffix(pat, "%"))
	case strings.HasPrefix(pat, "%"):
		call = fmt.Sprintf("(%s =~ '%s$')", x, strings.TrimPrefix(pat, "%"))
	default:
		call = fmt.Sprintf("(%s == %q)", x, pat)
	}
	if t.Not {
		return "(!" + call + ")"
	}
	return call
}

func caseToGovaluate(t CaseExpr) string {
	if len(t.Whens) == 0 {
		if t.Else != nil {
			return toGovaluate(t.Else)
		}
		return "nil"
	}
	w := t.Whens[0]
	rest := CaseExpr{Whens: t.Whens[1:], Else: t.Else}
	return "(" + toGovaluate(w.When) + " ? " + toGovaluate(w.Then) + " : " + caseToGovaluate(rest) + ")"
}
