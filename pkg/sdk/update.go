package sdk

import (
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

type UpdateOperator string

const (
	UpdateSet      UpdateOperator = "$set"
	UpdateUnset    UpdateOperator = "$unset"
	UpdateInc      UpdateOperator = "$inc"
	UpdateMul      UpdateOperator = "$mul"
	UpdateMin      UpdateOperator = "$min"
	UpdateMax      UpdateOperator = "$max"
	UpdatePush     UpdateOperator = "$push"
	UpdateAddToSet UpdateOperator = "$addToSet"
	UpdatePull     UpdateOperator = "$pull"
)

var updateOperators = map[UpdateOperator]bool{
	UpdateSet: true, UpdateUnset: true, UpdateInc: true, UpdateMul: true, UpdateMin: true,
	UpdateMax: true, UpdatePush: true, UpdateAddToSet: true, UpdatePull: true,
}

type updateEntry struct {
	op    UpdateOperator
	field string
	value any
	each  bool
}

// Update is an immutable list of field operations.
type Update struct {
	entries []updateEntry
}

func (u Update) with(e updateEntry) Update {
	entries := make([]updateEntry, len(u.entries), len(u.entries)+1)
	copy(entries, u.entries)
	return Update{entries: append(entries, e)}
}

func Set(field string, v any) Update  { return Update{}.Set(field, v) }
func Unset(field string) Update       { return Update{}.Unset(field) }
func Inc(field string, by any) Update { return Update{}.Inc(field, by) }

// SetFields sets every entry of doc.
func SetFields(doc Document) Update {
	u := Update{}
	for _, k := range sortedKeys(doc) {
		u = u.Set(k, doc[k])
	}
	return u
}

func (u Update) Set(field string, v any) Update {
	return u.with(updateEntry{op: UpdateSet, field: field, value: v})
}

func (u Update) Unset(field string) Update {
	return u.with(updateEntry{op: UpdateUnset, field: field, value: ""})
}

func (u Update) Inc(field string, by any) Update {
	return u.with(updateEntry{op: UpdateInc, field: field, value: by})
}

func (u Update) Mul(field string, by any) Update {
	return u.with(updateEntry{op: UpdateMul, field: field, value: by})
}

func (u Update) Min(field string, v any) Update {
	return u.with(updateEntry{op: UpdateMin, field: field, value: v})
}

func (u Update) Max(field string, v any) Update {
	return u.with(updateEntry{op: UpdateMax, field: field, value: v})
}

func (u Update) Push(field string, v any) Update {
	return u.with(updateEntry{op: UpdatePush, field: field, value: v})
}

func (u Update) PushEach(field string, values ...any) Update {
	return u.with(updateEntry{op: UpdatePush, field: field, value: values, each: true})
}

func (u Update) AddToSet(field string, v any) Update {
	return u.with(updateEntry{op: UpdateAddToSet, field: field, value: v})
}

// Pull removes list items equal to v, or matching v when it is a condition document.
func (u Update) Pull(field string, v any) Update {
	return u.with(updateEntry{op: UpdatePull, field: field, value: v})
}

func (u Update) IsEmpty() bool {
	return len(u.entries) == 0
}

// Fields returns the distinct paths touched by the update.
func (u Update) Fields() []string {
	seen := map[string]bool{}
	var out []string
	for _, e := range u.entries {
		if !seen[e.field] {
			seen[e.field] = true
			out = append(out, e.field)
		}
	}
	return out
}

// BSON renders operators in first-use order. A later entry for the same operator and
// field replaces the earlier one.
func (u Update) BSON() bson.D {
	var order []UpdateOperator
	byOp := map[UpdateOperator]bson.D{}
	for _, e := range u.entries {
		doc, seen := byOp[e.op]
		if !seen {
			order = append(order, e.op)
		}
		value := e.value
		if e.each {
			value = bson.D{{Key: "$each", Value: value}}
		}
		replaced := false
		for i := range doc {
			if doc[i].Key == e.field {
				doc[i].Value = value
				replaced = true
			}
		}
		if !replaced {
			doc = append(doc, bson.E{Key: e.field, Value: value})
		}
		byOp[e.op] = doc
	}
	out := bson.D{}
	for _, op := range order {
		out = append(out, bson.E{Key: string(op), Value: byOp[op]})
	}
	return out
}

func (u Update) String() string {
	return fmt.Sprintf("%v", u.BSON())
}

// ParseUpdate reads an operator document ({"$set": {...}, "$inc": {...}}) or a plain
// field map, which is treated as $set.
func ParseUpdate(spec map[string]any) (Update, error) {
	vs := &violations{shape: "update"}
	hasOps := false
	for k := range spec {
		if strings.HasPrefix(k, "$") {
			hasOps = true
		}
	}
	if !hasOps {
		return SetFields(Document(spec)), nil
	}

	u := Update{}
	for _, key := range sortedKeys(Document(spec)) {
		op := UpdateOperator(key)
		if !updateOperators[op] {
			vs.add(key, "unknown or unsupported update operator")
			continue
		}
		fields, ok := documentOf(spec[key])
		if !ok {
			vs.add(key, "must be a document of fields")
			continue
		}
		for _, field := range sortedKeys(fields) {
			value := fields[field]
			if (op == UpdatePush || op == UpdateAddToSet) && isEachDocument(value) {
				each, _ := documentOf(value)
				items, ok := sliceOf(each["$each"])
				if !ok {
					vs.add(key+"."+field, "$each must be a list")
					continue
				}
				u = u.with(updateEntry{op: op, field: field, value: items, each: true})
				continue
			}
			u = u.with(updateEntry{op: op, field: field, value: value})
		}
	}
	if err := vs.err(); err != nil {
		return Update{}, err
	}
	return u, nil
}

func isEachDocument(v any) bool {
	doc, ok := documentOf(v)
	if !ok {
		return false
	}
	_, has := doc["$each"]
	return has && len(doc) == 1
}

// validate checks the update against the shape with the insert rules and returns a
// copy whose values are coerced.
func (u Update) validate(shape *Shape) (Update, error) {
	vs := &violations{shape: shape.Name()}
	if u.IsEmpty() {
		vs.add("", "update must contain at least one operation")
		return Update{}, vs.err()
	}

	opsByField := map[string]UpdateOperator{}
	out := Update{entries: make([]updateEntry, 0, len(u.entries))}
	for _, e := range u.entries {
		if e.field == "" || e.field == "_id" || strings.HasPrefix(e.field, "_id.") {
			vs.add(e.field, "cannot be updated")
			continue
		}
		if prev, ok := opsByField[e.field]; ok && prev != e.op {
			vs.add(e.field, fmt.Sprintf("conflicting update operators %s and %s", prev, e.op))
			continue
		}
		opsByField[e.field] = e.op

		target, known := shape.resolvePath(e.field)
		if !known {
			out.entries = append(out.entries, e)
			continue
		}

		switch e.op {
		case UpdateSet, UpdateMin, UpdateMax:
			coerced, err := shape.ValidatePartial(Document{e.field: e.value})
			if err != nil {
				vs.list = append(vs.list, err.(*ValidationError).Violations...)
				continue
			}
			e.value = coerced[e.field]
		case UpdateUnset:
			if target.field != nil && target.itemDepth == 0 && !target.field.Optional {
				vs.add(e.field, "is required and cannot be unset")
				continue
			}
		case UpdateInc, UpdateMul:
			if !target.typ.numeric() {
				vs.add(e.field, fmt.Sprintf("%s requires a numeric field, got %s", e.op, target.typ))
				continue
			}
			coerced, ok := coerceValue(e.field, target.typ, e.value, vs)
			if !ok {
				continue
			}
			e.value = coerced
		case UpdatePush, UpdateAddToSet:
			if target.typ.Name != TypeArray {
				vs.add(e.field, fmt.Sprintf("%s requires a list field, got %s", e.op, target.typ))
				continue
			}
			if e.each {
				items, _ := sliceOf(e.value)
				coerced := make([]any, 0, len(items))
				for i, item := range items {
					if c, ok := coerceValue(fmt.Sprintf("%s.%d", e.field, i), *target.typ.Items, item, vs); ok {
						coerced = append(coerced, c)
					}
				}
				e.value = coerced
				break
			}
			coerced, ok := coerceValue(e.field, *target.typ.Items, e.value, vs)
			if !ok {
				continue
			}
			e.value = coerced
		case UpdatePull:
			if target.typ.Name != TypeArray {
				vs.add(e.field, fmt.Sprintf("%s requires a list field, got %s", e.op, target.typ))
				continue
			}
		}
		out.entries = append(out.entries, e)
	}
	if err := vs.err(); err != nil {
		return Update{}, err
	}
	return out, nil
}
