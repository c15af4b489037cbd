// Package filter compiles tag and metadata constraints into a boolean
// expression over the flattened fields of stored entities. The same
// expression renders as text, translates to SQL and evaluates in memory.
package filter

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	kberrors "github.com/Aman-CERP/amankb/internal/errors"
)

// Flattened entity fields.
const (
	FieldTags     = "tags_str"
	FieldType     = "type_field"
	FieldStrategy = "strategy"
	FieldSharpe   = "sharpe"
	FieldCAGR     = "cagr"
	FieldDrawdown = "drawdown"
	FieldPath     = "path"
	FieldFilename = "filename"
)

// fieldKinds lists filterable fields and whether they are numeric.
var fieldKinds = map[string]bool{
	FieldType:     false,
	FieldStrategy: false,
	FieldPath:     false,
	FieldFilename: false,
	FieldSharpe:   true,
	FieldCAGR:     true,
	FieldDrawdown: true,
}

// aliases map user-facing keys to stored field names.
var aliases = map[string]string{
	"type": FieldType,
}

// Op is a comparison operator.
type Op string

const (
	OpEq Op = "=="
	OpNe Op = "!="
	OpGt Op = ">"
	OpLt Op = "<"
	OpGe Op = ">="
	OpLe Op = "<="
)

// rawOps are accepted as prefixes of raw comparison strings, longest first.
var rawOps = []Op{OpGe, OpLe, OpNe, OpGt, OpLt}

// Value is a literal: a number or a string.
type Value struct {
	Num   float64
	Str   string
	IsNum bool
}

// Number returns a numeric literal.
func Number(f float64) Value { return Value{Num: f, IsNum: true} }

// String returns a string literal.
func String(s string) Value { return Value{Str: s} }

func (v Value) render() string {
	if v.IsNum {
		return strconv.FormatFloat(v.Num, 'g', -1, 64)
	}
	return strconv.Quote(v.Str)
}

func (v Value) arg() any {
	if v.IsNum {
		return v.Num
	}
	return v.Str
}

// Expr is a filter expression node.
type Expr interface {
	// String renders the expression in the canonical boolean syntax.
	String() string
	// SQL renders a parameterized SQLite condition.
	SQL() (string, []any)
	// Match evaluates the expression against a record of field values.
	Match(rec map[string]any) bool
}

// Compare is `field op literal`.
type Compare struct {
	Field string
	Op    Op
	Value Value
}

func (c Compare) String() string {
	return fmt.Sprintf("%s %s %s", c.Field, c.Op, c.Value.render())
}

func (c Compare) SQL() (string, []any) {
	op := string(c.Op)
	if c.Op == OpEq {
		op = "="
	}
	return fmt.Sprintf("%s %s ?", c.Field, op), []any{c.Value.arg()}
}

func (c Compare) Match(rec map[string]any) bool {
	got, ok := rec[c.Field]
	if !ok || got == nil {
		return false
	}
	if c.Value.IsNum {
		f, ok := asFloat(got)
		if !ok {
			return false
		}
		return compareOrdered(f, c.Value.Num, c.Op)
	}
	s, ok := got.(string)
	if !ok {
		return false
	}
	return compareOrdered(s, c.Value.Str, c.Op)
}

// Contains is `field like "%substr%"`.
type Contains struct {
	Field  string
	Substr string
}

func (c Contains) String() string {
	return fmt.Sprintf("%s like %s", c.Field, strconv.Quote("%"+c.Substr+"%"))
}

// SQL uses instr rather than LIKE, which is case-insensitive in SQLite.
func (c Contains) SQL() (string, []any) {
	return fmt.Sprintf("instr(%s, ?) > 0", c.Field), []any{c.Substr}
}

func (c Contains) Match(rec map[string]any) bool {
	s, ok := rec[c.Field].(string)
	return ok && strings.Contains(s, c.Substr)
}

// And is the conjunction of its terms.
type And []Expr

func (a And) String() string {
	parts := make([]string, len(a))
	for i, e := range a {
		parts[i] = e.String()
	}
	return strings.Join(parts, " and ")
}

func (a And) SQL() (string, []any) {
	parts := make([]string, len(a))
	var args []any
	for i, e := range a {
		clause, eargs := e.SQL()
		parts[i] = "(" + clause + ")"
		args = append(args, eargs...)
	}
	return strings.Join(parts, " AND "), args
}

func (a And) Match(rec map[string]any) bool {
	for _, e := range a {
		if !e.Match(rec) {
			return false
		}
	}
	return true
}

// Build compiles required tags and metadata constraints into one
// expression. Each tag must appear in the serialized tag list. Metadata
// values are either a raw comparison string such as "> 1.5" or a value
// compared for equality; a whole comparison may also be given as the key
// with a nil value ("sharpe > 1.5": nil). A nil expression means no
// filter.
func Build(tags []string, meta map[string]any) (Expr, error) {
	var terms And

	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if !strings.HasPrefix(tag, "#") {
			tag = "#" + tag
		}
		if strings.ContainsAny(tag, "\"%\\ \t\n") {
			return nil, kberrors.MalformedFilter(fmt.Sprintf("invalid tag %q", tag))
		}
		terms = append(terms, Contains{Field: FieldTags, Substr: tag})
	}

	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		cmp, err := buildCompare(key, meta[key])
		if err != nil {
			return nil, err
		}
		terms = append(terms, cmp)
	}

	switch len(terms) {
	case 0:
		return nil, nil
	case 1:
		return terms[0], nil
	default:
		return terms, nil
	}
}

func buildCompare(key string, raw any) (Compare, error) {
	if raw == nil {
		field, rest, ok := splitExpression(key)
		if !ok {
			return Compare{}, kberrors.MalformedFilter(fmt.Sprintf("filter %q has no value", key))
		}
		key, raw = field, rest
	}
	field := strings.TrimSpace(key)
	if alias, ok := aliases[field]; ok {
		field = alias
	}
	numeric, known := fieldKinds[field]
	if !known {
		return Compare{}, kberrors.MalformedFilter(fmt.Sprintf("unknown filter field %q", key))
	}

	op := OpEq
	var lit Value
	switch v := raw.(type) {
	case string:
		text := strings.TrimSpace(v)
		for _, candidate := range rawOps {
			if strings.HasPrefix(text, string(candidate)) {
				op = candidate
				text = strings.TrimSpace(strings.TrimPrefix(text, string(candidate)))
				if text == "" {
					return Compare{}, kberrors.MalformedFilter(fmt.Sprintf("missing value for %s %s", field, op))
				}
				break
			}
		}
		parsed, err := parseLiteral(text, numeric)
		if err != nil {
			return Compare{}, kberrors.MalformedFilter(fmt.Sprintf("%s: %v", field, err))
		}
		lit = parsed
	case float64:
		lit = Number(v)
	case float32:
		lit = Number(float64(v))
	case int:
		lit = Number(float64(v))
	case int64:
		lit = Number(float64(v))
	default:
		return Compare{}, kberrors.MalformedFilter(fmt.Sprintf("unsupported value type %T for %s", raw, field))
	}

	if numeric && !lit.IsNum {
		return Compare{}, kberrors.MalformedFilter(fmt.Sprintf("%s expects a number", field))
	}
	if !numeric && lit.IsNum {
		lit = String(strconv.FormatFloat(lit.Num, 'g', -1, 64))
	}
	return Compare{Field: field, Op: op, Value: lit}, nil
}

// splitExpression splits "field op literal" at the first operator.
func splitExpression(expr string) (field, rest string, ok bool) {
	for i := range expr {
		for _, op := range rawOps {
			if strings.HasPrefix(expr[i:], string(op)) {
				return expr[:i], expr[i:], i > 0
			}
		}
	}
	return "", "", false
}

// parseLiteral reads a literal from a raw comparison. Quoted text is a
// string; on numeric fields bare text must parse as a number.
func parseLiteral(text string, numeric bool) (Value, error) {
	if len(text) >= 2 && (text[0] == '"' || text[0] == '\'') && text[len(text)-1] == text[0] {
		return String(text[1 : len(text)-1]), nil
	}
	if numeric {
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return Value{}, fmt.Errorf("invalid number %q", text)
		}
		return Number(f), nil
	}
	return String(text), nil
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case *float64:
		if n == nil {
			return 0, false
		}
		return *n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func compareOrdered[T float64 | string](a, b T, op Op) bool {
	switch op {
	case OpEq:
		return a == b
	case OpNe:
		return a != b
	case OpGt:
		return a > b
	case OpLt:
		return a < b
	case OpGe:
		return a >= b
	case OpLe:
		return a <= b
	}
	return false
}
