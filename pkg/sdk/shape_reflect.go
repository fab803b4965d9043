package sdk

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"gopkg.in/yaml.v3"
)

var (
	typeOfTime          = reflect.TypeOf(time.Time{})
	typeOfDateTime      = reflect.TypeOf(primitive.DateTime(0))
	typeOfPrimitiveOID  = reflect.TypeOf(primitive.ObjectID{})
	typeOfObjectID      = reflect.TypeOf(ObjectID(""))
	typeOfDocument      = reflect.TypeOf(Document{})
	typeOfUntypedObject = reflect.TypeOf(map[string]any{})
)

// ShapeOf derives a shape from the bson tags of T. Pointer fields are optional and a
// `schema` tag adds constraints, defaults and descriptions:
//
//	Price float64  `bson:"price" schema:"positive"`
//	Email string   `bson:"email" schema:"email"`
//	Tags  []string `bson:"tags" schema:"default=[]"`
//
// The _id field is managed by the collection and skipped.
func ShapeOf[T any](name string) (*Shape, error) {
	var zero T
	t := reflect.TypeOf(zero)
	if t == nil {
		return nil, &SchemaError{Shape: name, Reason: "cannot derive a shape from an interface type"}
	}
	return shapeOfType(name, t, map[reflect.Type]bool{})
}

// MustShapeOf panics when T cannot be described as a shape.
func MustShapeOf[T any](name string) *Shape {
	s, err := ShapeOf[T](name)
	if err != nil {
		panic(err)
	}
	return s
}

func shapeOfType(name string, t reflect.Type, visited map[reflect.Type]bool) (*Shape, error) {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, &SchemaError{Shape: name, Reason: fmt.Sprintf("%s is not a struct", t)}
	}
	if visited[t] {
		return nil, &SchemaError{Shape: name, Reason: fmt.Sprintf("recursive type %s", t)}
	}
	visited[t] = true
	defer delete(visited, t)

	fields, err := structFields(name, t, visited)
	if err != nil {
		return nil, err
	}
	return NewShape(name, fields...)
}

func structFields(shape string, t reflect.Type, visited map[reflect.Type]bool) ([]Field, error) {
	var fields []Field
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if sf.PkgPath != "" {
			continue
		}
		tagParts := strings.Split(sf.Tag.Get("bson"), ",")
		name := tagParts[0]
		if name == "-" {
			continue
		}

		if hasInlineTag(tagParts) {
			embedded := sf.Type
			if embedded.Kind() == reflect.Ptr {
				embedded = embedded.Elem()
			}
			if embedded.Kind() == reflect.Struct {
				inner, err := structFields(shape, embedded, visited)
				if err != nil {
					return nil, err
				}
				fields = append(fields, inner...)
				continue
			}
		}

		if name == "" {
			name = strings.ToLower(sf.Name)
		}
		if name == "_id" {
			continue
		}

		ft := sf.Type
		optional := false
		if ft.Kind() == reflect.Ptr {
			ft = ft.Elem()
			optional = true
		}
		typ, err := typeOf(shape, name, ft, visited)
		if err != nil {
			return nil, err
		}

		field := Field{Name: name, Type: typ, Optional: optional}
		if tag := sf.Tag.Get("schema"); tag != "" {
			if err := applyFieldTag(&field, parseSchemaTag(tag)); err != nil {
				return nil, &SchemaError{Shape: shape, Field: name, Reason: err.Error()}
			}
		}
		fields = append(fields, field)
	}
	return fields, nil
}

func typeOf(shape, field string, t reflect.Type, visited map[reflect.Type]bool) (Type, error) {
	switch t {
	case typeOfPrimitiveOID, typeOfObjectID:
		return ObjectIDType(), nil
	case typeOfTime, typeOfDateTime:
		return DateTimeType(), nil
	case typeOfDocument, typeOfUntypedObject:
		return Type{}, &SchemaError{Shape: shape, Field: field, Reason: "untyped maps cannot be declared, use a struct"}
	}
	switch t.Kind() {
	case reflect.String:
		return StringType(), nil
	case reflect.Bool:
		return BooleanType(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32:
		return IntegerType(), nil
	case reflect.Float32, reflect.Float64:
		return NumberType(), nil
	case reflect.Slice, reflect.Array:
		if t.Elem().Kind() == reflect.Uint8 {
			return Type{}, &SchemaError{Shape: shape, Field: field, Reason: "binary fields are not supported"}
		}
		elem := t.Elem()
		if elem.Kind() == reflect.Ptr {
			elem = elem.Elem()
		}
		items, err := typeOf(shape, field, elem, visited)
		if err != nil {
			return Type{}, err
		}
		return ListOf(items), nil
	case reflect.Struct:
		nestedName := t.Name()
		if nestedName == "" {
			nestedName = shape + "." + field
		}
		nested, err := shapeOfType(nestedName, t, visited)
		if err != nil {
			return Type{}, err
		}
		return NestedShape(nested), nil
	}
	return Type{}, &SchemaError{Shape: shape, Field: field, Reason: fmt.Sprintf("unsupported Go type %s", t)}
}

// hasInlineTag checks if the tag parts contain the "inline" option
func hasInlineTag(tagParts []string) bool {
	for _, part := range tagParts[1:] {
		if strings.TrimSpace(part) == "inline" {
			return true
		}
	}
	return false
}

// parseSchemaTag splits `a,b=c` into {"a": "true", "b": "c"}.
func parseSchemaTag(tag string) map[string]string {
	parts := strings.Split(tag, ",")
	props := make(map[string]string)
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		if len(kv) == 2 {
			props[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
		} else {
			props[part] = "true"
		}
	}
	return props
}

func applyFieldTag(f *Field, props map[string]string) error {
	for _, key := range sortedTagKeys(props) {
		v := props[key]
		switch key {
		case "description":
			f.Description = v
		case "optional":
			f.Optional = v == "true"
		case "default":
			var value any
			if err := yaml.Unmarshal([]byte(v), &value); err != nil {
				return fmt.Errorf("invalid default %q: %w", v, err)
			}
			if value == nil && f.Type.Name == TypeArray {
				value = []any{}
			}
			*f = f.WithDefault(value)
		case "oneOf":
			f.Constraints = append(f.Constraints, OneOf(strings.Split(v, "|")...))
		case "pattern":
			f.Constraints = append(f.Constraints, Pattern(v))
		default:
			c, err := constraintFromTag(key, v)
			if err != nil {
				return err
			}
			f.Constraints = append(f.Constraints, c)
		}
	}
	return nil
}

// constraintFromTag builds the constraints that take no argument or a single number.
func constraintFromTag(name, arg string) (Constraint, error) {
	switch name {
	case "positive":
		return Positive(), nil
	case "nonNegative":
		return NonNegative(), nil
	case "notEmpty":
		return NotEmpty(), nil
	case "email":
		return Email(), nil
	case "min", "max":
		n, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return Constraint{}, fmt.Errorf("%s requires a number, got %q", name, arg)
		}
		if name == "min" {
			return Min(n), nil
		}
		return Max(n), nil
	case "minLength", "maxLength", "minItems", "maxItems":
		n, err := strconv.Atoi(arg)
		if err != nil || n < 0 {
			return Constraint{}, fmt.Errorf("%s requires a non-negative integer, got %q", name, arg)
		}
		switch name {
		case "minLength":
			return MinLength(n), nil
		case "maxLength":
			return MaxLength(n), nil
		case "minItems":
			return MinItems(n), nil
		default:
			return MaxItems(n), nil
		}
	}
	return Constraint{}, fmt.Errorf("unknown constraint %q", name)
}

// sortedTagKeys keeps constraint order stable across runs.
func sortedTagKeys(props map[string]string) []string {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
