package sdk

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Validate checks a full document against the shape: required fields are present,
// every value coerces to its declared type and satisfies its constraints, and defaults
// are filled in. Fields the shape does not declare are kept as they are.
// All violations are collected into a single *ValidationError.
func (s *Shape) Validate(doc Document) (Document, error) {
	vs := &violations{shape: s.name}
	out := s.validateInto("", doc, vs)
	if err := vs.err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Shape) validateInto(prefix string, doc Document, vs *violations) Document {
	out := make(Document, len(doc)+len(s.fields))
	for k, v := range doc {
		if _, declared := s.index[k]; !declared {
			out[k] = v
		}
	}
	for _, f := range s.fields {
		path := joinPath(prefix, f.Name)
		v, present := doc[f.Name]
		if !present {
			switch {
			case f.HasDefault:
				out[f.Name] = copyValue(f.Default)
			case !f.Optional:
				vs.add(path, "is required")
			}
			continue
		}
		if v == nil {
			if f.Required() {
				vs.add(path, "is required")
			} else if f.HasDefault {
				out[f.Name] = copyValue(f.Default)
			} else {
				out[f.Name] = nil
			}
			continue
		}
		coerced, ok := coerceValue(path, f.Type, v, vs)
		if !ok {
			continue
		}
		checkConstraints(path, f, coerced, vs)
		out[f.Name] = coerced
	}
	return out
}

// ValidatePartial checks only the given paths, as used by $set. Dotted paths reach into
// nested shapes and numeric segments into lists. Unknown paths are kept unchecked.
func (s *Shape) ValidatePartial(fields Document) (Document, error) {
	vs := &violations{shape: s.name}
	out := make(Document, len(fields))
	for _, path := range sortedKeys(fields) {
		v := fields[path]
		target, ok := s.resolvePath(path)
		if !ok {
			out[path] = v
			continue
		}
		if v == nil {
			if target.field != nil && target.field.Required() && target.itemDepth == 0 {
				vs.add(path, "is required")
				continue
			}
			out[path] = nil
			continue
		}
		coerced, ok := coerceValue(path, target.typ, v, vs)
		if !ok {
			continue
		}
		if target.field != nil && target.itemDepth == 0 {
			checkConstraints(path, *target.field, coerced, vs)
		}
		out[path] = coerced
	}
	if err := vs.err(); err != nil {
		return nil, err
	}
	return out, nil
}

type pathTarget struct {
	field *Field
	typ   Type
	// number of list segments crossed after the field itself
	itemDepth int
}

func (s *Shape) resolvePath(path string) (pathTarget, bool) {
	segments := strings.Split(path, ".")
	shape := s
	var target pathTarget
	for i := 0; i < len(segments); i++ {
		if shape == nil {
			return pathTarget{}, false
		}
		f, ok := shape.Field(segments[i])
		if !ok {
			return pathTarget{}, false
		}
		field := f
		target = pathTarget{field: &field, typ: f.Type}
		for target.typ.Name == TypeArray && i+1 < len(segments) && isArraySegment(segments[i+1]) {
			target.typ = *target.typ.Items
			target.itemDepth++
			i++
		}
		shape = nil
		if target.typ.Name == TypeObject {
			shape = target.typ.Shape
		}
		if i+1 < len(segments) && shape != nil {
			continue
		}
		if i+1 < len(segments) {
			return pathTarget{}, false
		}
	}
	return target, true
}

func isArraySegment(segment string) bool {
	if segment == "$" || segment == "$[]" || (strings.HasPrefix(segment, "$[") && strings.HasSuffix(segment, "]")) {
		return true
	}
	_, err := strconv.Atoi(segment)
	return err == nil
}

func checkConstraints(path string, f Field, v any, vs *violations) {
	for _, c := range f.Constraints {
		if reason := c.check(v); reason != "" {
			vs.add(path, reason)
		}
	}
}

// coerceValue converts v to the canonical representation of t:
// string, float64, int64, bool, primitive.ObjectID, time.Time, []any or Document.
func coerceValue(path string, t Type, v any, vs *violations) (any, bool) {
	if v == nil {
		vs.add(path, "must not be null")
		return nil, false
	}
	mismatch := func() (any, bool) {
		vs.add(path, fmt.Sprintf("must be of type %s", t))
		return nil, false
	}
	rv := reflect.ValueOf(v)
	switch t.Name {
	case TypeString:
		if rv.Kind() == reflect.String {
			return rv.String(), true
		}
		return mismatch()
	case TypeBoolean:
		if rv.Kind() == reflect.Bool {
			return rv.Bool(), true
		}
		return mismatch()
	case TypeNumber:
		if f, ok := numberOf(rv); ok && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return f, true
		}
		return mismatch()
	case TypeInteger:
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return rv.Int(), true
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			if rv.Uint() > math.MaxInt64 {
				return mismatch()
			}
			return int64(rv.Uint()), true
		case reflect.Float32, reflect.Float64:
			f := rv.Float()
			if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) || f < math.MinInt64 || f >= math.MaxInt64 {
				return mismatch()
			}
			return int64(f), true
		}
		return mismatch()
	case TypeObjectID:
		switch value := v.(type) {
		case primitive.ObjectID:
			return value, true
		case ObjectID:
			if oid, err := value.ToPrimitiveObjectID(); err == nil {
				return oid, true
			}
		case string:
			if oid, err := primitive.ObjectIDFromHex(value); err == nil {
				return oid, true
			}
		}
		return mismatch()
	case TypeDateTime:
		switch value := v.(type) {
		case time.Time:
			return value.UTC(), true
		case primitive.DateTime:
			return value.Time().UTC(), true
		case string:
			if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
				return ts.UTC(), true
			}
		}
		return mismatch()
	case TypeArray:
		items, ok := sliceOf(v)
		if !ok {
			return mismatch()
		}
		out := make([]any, 0, len(items))
		valid := true
		for i, item := range items {
			coerced, ok := coerceValue(joinPath(path, strconv.Itoa(i)), *t.Items, item, vs)
			if !ok {
				valid = false
				continue
			}
			out = append(out, coerced)
		}
		return out, valid
	case TypeObject:
		doc, ok := documentOf(v)
		if !ok {
			return mismatch()
		}
		before := len(vs.list)
		out := t.Shape.validateInto(path, doc, vs)
		return out, len(vs.list) == before
	}
	return mismatch()
}

func numberOf(rv reflect.Value) (float64, bool) {
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}

func toFloat(v any) float64 {
	f, _ := numberOf(reflect.ValueOf(v))
	return f
}

func sliceOf(v any) ([]any, bool) {
	switch value := v.(type) {
	case []any:
		return value, true
	case bson.A:
		return []any(value), true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
		// binary data, not a list
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func documentOf(v any) (Document, bool) {
	switch value := v.(type) {
	case Document:
		return value, true
	case map[string]any:
		return Document(value), true
	case bson.D:
		doc := make(Document, len(value))
		for _, e := range value {
			doc[e.Key] = e.Value
		}
		return doc, true
	}
	return nil, false
}

// copyValue deep-copies defaults so inserted documents never share them.
func copyValue(v any) any {
	switch value := v.(type) {
	case []any:
		out := make([]any, len(value))
		for i, item := range value {
			out[i] = copyValue(item)
		}
		return out
	case Document:
		out := make(Document, len(value))
		for k, item := range value {
			out[k] = copyValue(item)
		}
		return out
	default:
		return v
	}
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

func sortedKeys(doc Document) []string {
	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
