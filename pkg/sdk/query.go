package sdk

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Operator string

const (
	OpEq     Operator = "eq"
	OpNe     Operator = "ne"
	OpGt     Operator = "gt"
	OpGte    Operator = "gte"
	OpLt     Operator = "lt"
	OpLte    Operator = "lte"
	OpIn     Operator = "in"
	OpNin    Operator = "nin"
	OpRegex  Operator = "regex"
	OpExists Operator = "exists"
)

// suffix operators accepted by ParseFilter in addition to the Operator names
const (
	suffixContains   = "contains"
	suffixIContains  = "icontains"
	suffixStartsWith = "startswith"
)

// Expr is one comparison: Field Op Value. Options only applies to regex.
type Expr struct {
	Field   string
	Op      Operator
	Value   any
	Options string
}

type filterGroup struct {
	op      string
	filters []Filter
}

// Filter is an immutable conjunction of expressions and $or/$nor groups.
// The zero value matches every document.
type Filter struct {
	exprs  []Expr
	groups []filterGroup
}

type FieldRef struct {
	field string
}

func Where(field string) FieldRef {
	return FieldRef{field: field}
}

func (r FieldRef) expr(op Operator, v any) Filter {
	return Filter{exprs: []Expr{{Field: r.field, Op: op, Value: v}}}
}

func (r FieldRef) Eq(v any) Filter  { return r.expr(OpEq, v) }
func (r FieldRef) Ne(v any) Filter  { return r.expr(OpNe, v) }
func (r FieldRef) Gt(v any) Filter  { return r.expr(OpGt, v) }
func (r FieldRef) Gte(v any) Filter { return r.expr(OpGte, v) }
func (r FieldRef) Lt(v any) Filter  { return r.expr(OpLt, v) }
func (r FieldRef) Lte(v any) Filter { return r.expr(OpLte, v) }

func (r FieldRef) In(values ...any) Filter  { return r.expr(OpIn, values) }
func (r FieldRef) Nin(values ...any) Filter { return r.expr(OpNin, values) }

func (r FieldRef) Exists(exists bool) Filter { return r.expr(OpExists, exists) }

// Regex matches the field against pattern; options are the store's regex flags, e.g. "i".
func (r FieldRef) Regex(pattern string, options string) Filter {
	return Filter{exprs: []Expr{{Field: r.field, Op: OpRegex, Value: pattern, Options: options}}}
}

// All matches every document.
func All() Filter {
	return Filter{}
}

// ByID matches the _id field. Hex strings are compared as ObjectIDs.
func ByID(id any) Filter {
	return Where("_id").Eq(id)
}

func And(filters ...Filter) Filter {
	var out Filter
	for _, f := range filters {
		out.exprs = append(out.exprs, f.exprs...)
		out.groups = append(out.groups, f.groups...)
	}
	return out
}

func Or(filters ...Filter) Filter {
	return Filter{groups: []filterGroup{{op: "$or", filters: append([]Filter(nil), filters...)}}}
}

func Nor(filters ...Filter) Filter {
	return Filter{groups: []filterGroup{{op: "$nor", filters: append([]Filter(nil), filters...)}}}
}

func (f Filter) And(others ...Filter) Filter {
	return And(append([]Filter{f}, others...)...)
}

func (f Filter) IsEmpty() bool {
	return len(f.exprs) == 0 && len(f.groups) == 0
}

// Exprs returns the top-level expressions.
func (f Filter) Exprs() []Expr {
	return append([]Expr(nil), f.exprs...)
}

// BSON renders the filter in the store's syntax without shape-aware conversions.
func (f Filter) BSON() bson.D {
	return f.render(nil)
}

func (f Filter) String() string {
	return fmt.Sprintf("%v", f.BSON())
}

// render translates the filter. _id and objectId/date-time fields of the shape get
// their values converted to native types when possible.
func (f Filter) render(shape *Shape) bson.D {
	var parts []bson.D
	var order []string
	byField := map[string][]Expr{}
	for _, e := range f.exprs {
		if _, seen := byField[e.Field]; !seen {
			order = append(order, e.Field)
		}
		byField[e.Field] = append(byField[e.Field], e)
	}

	conflict := false
	out := bson.D{}
	for _, field := range order {
		exprs := byField[field]
		if len(exprs) == 1 && exprs[0].Op == OpEq {
			out = append(out, bson.E{Key: field, Value: convertValue(shape, field, exprs[0].Value)})
			parts = append(parts, bson.D{{Key: field, Value: convertValue(shape, field, exprs[0].Value)}})
			continue
		}
		ops := bson.D{}
		seenOps := map[Operator]bool{}
		for _, e := range exprs {
			if seenOps[e.Op] {
				conflict = true
			}
			seenOps[e.Op] = true
			ops = append(ops, renderOp(shape, e)...)
		}
		out = append(out, bson.E{Key: field, Value: ops})
		for _, e := range exprs {
			parts = append(parts, bson.D{{Key: field, Value: renderOp(shape, e)}})
		}
	}

	seenGroups := map[string]bool{}
	for _, g := range f.groups {
		if seenGroups[g.op] {
			conflict = true
		}
		seenGroups[g.op] = true
		group := bson.D{{Key: g.op, Value: renderAll(shape, g.filters)}}
		out = append(out, group...)
		parts = append(parts, group)
	}

	if !conflict {
		return out
	}
	// the same operator twice on one key cannot live in one document
	all := bson.A{}
	for _, p := range parts {
		all = append(all, p)
	}
	return bson.D{{Key: "$and", Value: all}}
}

func renderAll(shape *Shape, filters []Filter) bson.A {
	out := bson.A{}
	for _, f := range filters {
		out = append(out, f.render(shape))
	}
	return out
}

func renderOp(shape *Shape, e Expr) bson.D {
	switch e.Op {
	case OpRegex:
		pattern, _ := e.Value.(string)
		return bson.D{{Key: "$regex", Value: primitive.Regex{Pattern: pattern, Options: e.Options}}}
	case OpExists:
		return bson.D{{Key: "$exists", Value: e.Value}}
	case OpIn, OpNin:
		values, _ := sliceOf(e.Value)
		converted := bson.A{}
		for _, v := range values {
			converted = append(converted, convertValue(shape, e.Field, v))
		}
		return bson.D{{Key: "$" + string(e.Op), Value: converted}}
	default:
		return bson.D{{Key: "$" + string(e.Op), Value: convertValue(shape, e.Field, e.Value)}}
	}
}

func convertValue(shape *Shape, field string, v any) any {
	if field == "_id" {
		return toStorageID(v)
	}
	if shape == nil {
		return v
	}
	target, ok := shape.resolvePath(field)
	if !ok {
		return v
	}
	switch target.typ.Name {
	case TypeObjectID, TypeDateTime:
		scratch := &violations{}
		if coerced, ok := coerceValue(field, target.typ, v, scratch); ok {
			return coerced
		}
	}
	return v
}

// ParseFilter reads a map specification. Keys are field names, optionally suffixed
// with "__" and an operator (name__regex, price__gt, tags__in, title__icontains).
// "$or", "$and" and "$nor" take lists of such maps.
func ParseFilter(spec map[string]any) (Filter, error) {
	vs := &violations{shape: "filter"}
	f := parseFilter("", spec, vs)
	if err := vs.err(); err != nil {
		return Filter{}, err
	}
	return f, nil
}

func parseFilter(prefix string, spec map[string]any, vs *violations) Filter {
	keys := make([]string, 0, len(spec))
	for k := range spec {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []Filter
	for _, key := range keys {
		value := spec[key]
		switch key {
		case "$or", "$and", "$nor":
			items, ok := sliceOf(value)
			if !ok {
				vs.add(joinPath(prefix, key), "must be a list of filters")
				continue
			}
			var nested []Filter
			for i, item := range items {
				m, ok := documentOf(item)
				if !ok {
					vs.add(fmt.Sprintf("%s.%d", joinPath(prefix, key), i), "must be a filter object")
					continue
				}
				nested = append(nested, parseFilter(fmt.Sprintf("%s.%d", joinPath(prefix, key), i), m, vs))
			}
			switch key {
			case "$or":
				parts = append(parts, Or(nested...))
			case "$nor":
				parts = append(parts, Nor(nested...))
			default:
				parts = append(parts, And(nested...))
			}
			continue
		}

		field, op, hasOp := strings.Cut(key, "__")
		if field == "" {
			vs.add(joinPath(prefix, key), "field name is required")
			continue
		}
		if !hasOp {
			parts = append(parts, Where(field).Eq(value))
			continue
		}
		ref := Where(field)
		switch Operator(op) {
		case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte:
			parts = append(parts, ref.expr(Operator(op), value))
		case OpIn, OpNin:
			values, ok := sliceOf(value)
			if !ok {
				vs.add(joinPath(prefix, key), "must be a list")
				continue
			}
			parts = append(parts, ref.expr(Operator(op), values))
		case OpExists:
			b, ok := value.(bool)
			if !ok {
				vs.add(joinPath(prefix, key), "must be a boolean")
				continue
			}
			parts = append(parts, ref.Exists(b))
		case OpRegex, suffixContains, suffixIContains, suffixStartsWith:
			s, ok := value.(string)
			if !ok {
				vs.add(joinPath(prefix, key), "must be a string")
				continue
			}
			switch op {
			case suffixContains:
				parts = append(parts, ref.Regex(regexp.QuoteMeta(s), ""))
			case suffixIContains:
				parts = append(parts, ref.Regex(regexp.QuoteMeta(s), "i"))
			case suffixStartsWith:
				parts = append(parts, ref.Regex("^"+regexp.QuoteMeta(s), ""))
			default:
				if _, err := regexp.Compile(s); err != nil {
					vs.add(joinPath(prefix, key), "invalid regular expression")
					continue
				}
				parts = append(parts, ref.Regex(s, ""))
			}
		default:
			vs.add(joinPath(prefix, key), fmt.Sprintf("unknown operator %q", op))
		}
	}
	return And(parts...)
}
