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
	"strconv"
	"strings"

	"github.com/spatialmodel/vecfilter"
)

// Fragment is an emitted WHERE-clause fragment together with the
// positional parameters it references (empty for OGR, which inlines
// literals since go-shp/geojson readers have no prepared-statement
// concept to bind against).
type Fragment struct {
	SQL    string
	Params []interface{}
}

var forbidden = []string{";", "--", "/*", "*/"}

var unsafeKeywords = []string{
	"UPDATE", "INSERT", "DELETE", "DROP", "ALTER", "TRUNCATE", "GRANT", "CREATE",
}

// Sanitize rejects expressions containing statement-stacking or comment
// tokens, or DML/DDL keywords, before Parse ever sees them. This is the
// UnsafeExpression gate of §4.3 / §7: the parser's grammar has no
// production for any of these, but an attacker does not need the parser
// to accept a payload if the raw string reaches the database unescaped.
func Sanitize(src string) error {
	for _, tok := range forbidden {
		if strings.Contains(src, tok) {
			return &vecfilter.FilterError{Kind: vecfilter.UnsafeExpression, Message: fmt.Sprintf("expression contains forbidden token %q", tok)}
		}
	}
	upper := strings.ToUpper(src)
	for _, kw := range unsafeKeywords {
		if containsWord(upper, kw) {
			return &vecfilter.FilterError{Kind: vecfilter.UnsafeExpression, Message: fmt.Sprintf("expression contains forbidden keyword %q", kw)}
		}
	}
	return nil
}

func containsWord(s, word string) bool {
	idx := 0
	for {
		i := strings.Index(s[idx:], word)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(word)
		beforeOK := start == 0 || !isWordByte(s[start-1])
		afterOK := end == len(s) || !isWordByte(s[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordByte(b byte) bool {
	return b == '_' || (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z') || (b >= '0' && b <= '9')
}

// Translate sanitizes and parses src, then emits a backend-specific
// Fragment. It is the single entry point backend implementations call;
// they never see the AST directly.
func Translate(src string, backend vecfilter.BackendKind) (Fragment, error) {
	if err := Sanitize(src); err != nil {
		return Fragment{}, err
	}
	n, err := Parse(src)
	if err != nil {
		return Fragment{}, &vecfilter.FilterError{Kind: vecfilter.ExpressionNotTranslatable, Backend: backend, Message: err.Error(), Cause: err}
	}
	e := &emitter{backend: backend}
	sql, err := e.emit(n)
	if err != nil {
		return Fragment{}, &vecfilter.FilterError{Kind: vecfilter.ExpressionNotTranslatable, Backend: backend, Message: err.Error(), Cause: err}
	}
	return Fragment{SQL: sql, Params: e.params}, nil
}

type emitter struct {
	backend vecfilter.BackendKind
	params  []interface{}
}

func (e *emitter) quoteIdent(name string) string {
	switch e.backend {
	case vecfilter.BackendPostgreSQL, vecfilter.BackendSpatialite:
		return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
	default:
		return name
	}
}

func (e *emitter) bindLiteral(v interface{}) string {
	switch e.backend {
	case vecfilter.BackendPostgreSQL:
		e.params = append(e.params, v)
		return fmt.Sprintf("$%d", len(e.params))
	case vecfilter.BackendSpatialite:
		e.params = append(e.params, v)
		return "?"
	default: // OGR: no prepared-statement layer, inline with escaping
		return inlineLiteral(v)
	}
}

func inlineLiteral(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return "NULL"
	case string:
		return "'" + strings.ReplaceAll(t, "'", "''") + "'"
	case bool:
		if t {
			return "1"
		}
		return "0"
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func (e *emitter) emit(n Node) (string, error) {
	switch t := n.(type) {
	case Column:
		return e.quoteIdent(t.Name), nil
	case Literal:
		return e.bindLiteral(t.Value), nil
	case Unary:
		x, err := e.emit(t.X)
		if err != nil {
			return "", err
		}
		switch t.Op {
		case "NOT":
			return fmt.Sprintf("NOT (%s)", x), nil
		case "-":
			return fmt.Sprintf("(-%s)", x), nil
		}
		return "", fmt.Errorf("expr: unsupported unary operator %q", t.Op)
	case Binary:
		l, err := e.emit(t.L)
		if err != nil {
			return "", err
		}
		r, err := e.emit(t.R)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(%s %s %s)", l, t.Op, r), nil
	case InList:
		x, err := e.emit(t.X)
		if err != nil {
			return "", err
		}
		parts := make([]string, len(t.List))
		for i, it := range t.List {
			v, err := e.emit(it)
			if err != nil {
				return "", err
			}
			parts[i] = v
		}
		op := "IN"
		if t.Not {
			op = "NOT IN"
		}
		return fmt.Sprintf("(%s %s (%s))", x, op, strings.Join(parts, ", ")), nil
	case Between:
		x, err := e.emit(t.X)
		if err != nil {
			return "", err
		}
		lo, err := e.emit(t.Lo)
		if err != nil {
			return "", err
		}
		hi, err := e.emit(t.Hi)
		if err != nil {
			return "", err
		}
		op := "BETWEEN"
		if t.Not {
			op = "NOT BETWEEN"
		}
		return fmt.Sprintf("(%s %s %s AND %s)", x, op, lo, hi), nil
	case Like:
		return e.emitLike(t)
	case IsNull:
		x, err := e.emit(t.X)
		if err != nil {
			return "", err
		}
		if t.Not {
			return fmt.Sprintf("(%s IS NOT NULL)", x), nil
		}
		return fmt.Sprintf("(%s IS NULL)", x), nil
	case CaseExpr:
		return e.emitCase(t)
	case Call:
		return e.emitCall(t)
	}
	return "", fmt.Errorf("expr: unsupported node type %T", n)
}

// emitLike renders LIKE/ILIKE per-backend: Postgres has native ILIKE,
// Spatialite has no ILIKE so case-insensitive matching goes through
// LIKE ... COLLATE NOCASE, and OGR's in-process evaluator upper-cases
// both sides instead of relying on SQL semantics at all (handled in
// eval.go, not here — this emitter only serves SQL backends; any other
// backend gets ExpressionNotTranslatable).
func (e *emitter) emitLike(t Like) (string, error) {
	x, err := e.emit(t.X)
	if err != nil {
		return "", err
	}
	pat, err := e.emit(t.Pattern)
	if err != nil {
		return "", err
	}
	op := "LIKE"
	if t.Not {
		op = "NOT LIKE"
	}
	switch e.backend {
	case vecfilter.BackendPostgreSQL:
		if t.CaseInsensitive {
			op = "I" + op
			if t.Not {
				op = "NOT ILIKE"
			}
		}
		return fmt.Sprintf("(%s %s %s)", x, op, pat), nil
	case vecfilter.BackendSpatialite:
		if t.CaseInsensitive {
			return fmt.Sprintf("(%s %s %s COLLATE NOCASE)", x, op, pat), nil
		}
		return fmt.Sprintf("(%s %s %s)", x, op, pat), nil
	default:
		return "", &vecfilter.FilterError{Kind: vecfilter.ExpressionNotTranslatable, Backend: e.backend, Message: "LIKE requires a SQL backend"}
	}
}

func (e *emitter) emitCase(t CaseExpr) (string, error) {
	var b strings.Builder
	b.WriteString("(CASE")
	for _, w := range t.Whens {
		cond, err := e.emit(w.When)
		if err != nil {
			return "", err
		}
		then, err := e.emit(w.Then)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, " WHEN %s THEN %s", cond, then)
	}
	if t.Else != nil {
		els, err := e.emit(t.Else)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, " ELSE %s", els)
	}
	b.WriteString(" END)")
	return b.String(), nil
}

// allowedFuncs is deliberately small: the host expression language is a
// filter predicate, not a general computation language, and §4.3 scopes
// function calls to the handful every backend can express identically.
var allowedFuncs = map[string]bool{
	"UPPER": true, "LOWER": true, "TRIM": true, "LENGTH": true, "ABS": true,
	"ROUND": true, "COALESCE": true,
}

func (e *emitter) emitCall(t Call) (string, error) {
	if !allowedFuncs[t.Name] {
		return "", &vecfilter.FilterError{Kind: vecfilter.ExpressionNotTranslatable, Backend: e.backend, Message: fmt.Sprintf("function %q is not in the allowed set", t.Name)}
	}
	args := make([]string, len(t.Args))
	for i, a := range t.Args {
		v, err := e.emit(a)
		if err != nil {
			return "", err
		}
		args[i] = v
	}
	name := t.Name
	if name == "LENGTH" && e.backend == vecfilter.BackendSpatialite {
		name = "LENGTH" // sqlite LENGTH() matches; kept explicit for readers
	}
	return fmt.Sprintf("%s(%s)", name, strings.Join(args, ", ")), nil
}
