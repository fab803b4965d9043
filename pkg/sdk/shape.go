package sdk

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
)

type TypeName string

const (
	TypeString   TypeName = "string"
	TypeNumber   TypeName = "number"
	TypeInteger  TypeName = "integer"
	TypeBoolean  TypeName = "boolean"
	TypeObjectID TypeName = "objectId"
	TypeDateTime TypeName = "date-time"
	TypeArray    TypeName = "array"
	TypeObject   TypeName = "object"
)

var knownTypes = map[TypeName]bool{
	TypeString:   true,
	TypeNumber:   true,
	TypeInteger:  true,
	TypeBoolean:  true,
	TypeObjectID: true,
	TypeDateTime: true,
	TypeArray:    true,
	TypeObject:   true,
}

// Type is the semantic type of a field. Items is set for arrays, Shape for nested objects.
type Type struct {
	Name  TypeName
	Items *Type
	Shape *Shape
}

func StringType() Type   { return Type{Name: TypeString} }
func NumberType() Type   { return Type{Name: TypeNumber} }
func IntegerType() Type  { return Type{Name: TypeInteger} }
func BooleanType() Type  { return Type{Name: TypeBoolean} }
func ObjectIDType() Type { return Type{Name: TypeObjectID} }
func DateTimeType() Type { return Type{Name: TypeDateTime} }

func ListOf(items Type) Type {
	return Type{Name: TypeArray, Items: &items}
}

func NestedShape(shape *Shape) Type {
	return Type{Name: TypeObject, Shape: shape}
}

func (t Type) String() string {
	switch t.Name {
	case TypeArray:
		if t.Items == nil {
			return "array<?>"
		}
		return "array<" + t.Items.String() + ">"
	case TypeObject:
		if t.Shape == nil {
			return "object<?>"
		}
		return "object<" + t.Shape.Name() + ">"
	default:
		return string(t.Name)
	}
}

func (t Type) numeric() bool {
	return t.Name == TypeNumber || t.Name == TypeInteger
}

// Constraint is a named predicate over a coerced field value.
type Constraint struct {
	Name string
	Arg  any

	appliesTo []TypeName
	check     func(v any) string
	err       error
}

func (c Constraint) applies(t TypeName) bool {
	for _, name := range c.appliesTo {
		if name == t {
			return true
		}
	}
	return false
}

func (c Constraint) String() string {
	if c.Arg == nil {
		return c.Name
	}
	return fmt.Sprintf("%s=%v", c.Name, c.Arg)
}

var numericTypes = []TypeName{TypeNumber, TypeInteger}

// valueValidator backs every constraint check except pattern.
var valueValidator = newValueValidator()

func newValueValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("notblank", validators.NotBlank); err != nil {
		panic(err)
	}
	return v
}

// tagCheck reports message when v fails the validator tag.
func tagCheck(tag, message string) func(v any) string {
	return func(v any) string {
		if err := valueValidator.Var(v, tag); err != nil {
			return message
		}
		return ""
	}
}

// numberCheck compares integers and numbers as float64 so fractional bounds apply to both.
func numberCheck(tag, message string) func(v any) string {
	check := tagCheck(tag, message)
	return func(v any) string {
		return check(toFloat(v))
	}
}

func formatBound(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func Positive() Constraint {
	return Constraint{Name: "positive", appliesTo: numericTypes, check: numberCheck("gt=0", "must be positive")}
}

func NonNegative() Constraint {
	return Constraint{Name: "nonNegative", appliesTo: numericTypes, check: numberCheck("gte=0", "must not be negative")}
}

func Min(min float64) Constraint {
	return Constraint{Name: "min", Arg: min, appliesTo: numericTypes,
		check: numberCheck("gte="+formatBound(min), fmt.Sprintf("must be greater than or equal to %v", min)),
		err:   finiteBound(min)}
}

func Max(max float64) Constraint {
	return Constraint{Name: "max", Arg: max, appliesTo: numericTypes,
		check: numberCheck("lte="+formatBound(max), fmt.Sprintf("must be less than or equal to %v", max)),
		err:   finiteBound(max)}
}

func finiteBound(f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("bound must be a finite number, got %v", f)
	}
	return nil
}

func MinLength(n int) Constraint {
	return Constraint{Name: "minLength", Arg: n, appliesTo: []TypeName{TypeString},
		check: tagCheck("min="+strconv.Itoa(n), fmt.Sprintf("must be at least %d characters long", n))}
}

func MaxLength(n int) Constraint {
	return Constraint{Name: "maxLength", Arg: n, appliesTo: []TypeName{TypeString},
		check: tagCheck("max="+strconv.Itoa(n), fmt.Sprintf("must be at most %d characters long", n))}
}

func NotEmpty() Constraint {
	return Constraint{Name: "notEmpty", appliesTo: []TypeName{TypeString, TypeArray}, check: tagCheck("notblank", "must not be empty")}
}

func Email() Constraint {
	return Constraint{Name: "email", appliesTo: []TypeName{TypeString}, check: tagCheck("email", "must be a valid email address")}
}

// Pattern matches strings against a regular expression. The validator has no regex tag.
func Pattern(expr string) Constraint {
	re, err := regexp.Compile(expr)
	c := Constraint{Name: "pattern", Arg: expr, appliesTo: []TypeName{TypeString}, err: err}
	c.check = func(v any) string {
		if !re.MatchString(v.(string)) {
			return fmt.Sprintf("must match pattern %q", expr)
		}
		return ""
	}
	return c
}

// OneOf values are quoted into a oneof tag, so they cannot contain the tag separators.
func OneOf(values ...string) Constraint {
	allowed := append([]string(nil), values...)
	c := Constraint{Name: "oneOf", Arg: strings.Join(allowed, "|"), appliesTo: []TypeName{TypeString}}
	quoted := make([]string, 0, len(allowed))
	for _, a := range allowed {
		if strings.ContainsAny(a, ",|'") {
			c.err = fmt.Errorf("value %q must not contain ',', '|' or a single quote", a)
		}
		quoted = append(quoted, "'"+a+"'")
	}
	if len(allowed) == 0 {
		c.err = fmt.Errorf("requires at least one value")
	}
	c.check = tagCheck("oneof="+strings.Join(quoted, " "), fmt.Sprintf("must be one of %v", allowed))
	return c
}

func MinItems(n int) Constraint {
	return Constraint{Name: "minItems", Arg: n, appliesTo: []TypeName{TypeArray},
		check: tagCheck("min="+strconv.Itoa(n), fmt.Sprintf("must contain at least %d items", n))}
}

func MaxItems(n int) Constraint {
	return Constraint{Name: "maxItems", Arg: n, appliesTo: []TypeName{TypeArray},
		check: tagCheck("max="+strconv.Itoa(n), fmt.Sprintf("must contain at most %d items", n))}
}

// Field declares one entry of a shape.
type Field struct {
	Name        string
	Type        Type
	Constraints []Constraint
	Default     any
	HasDefault  bool
	Optional    bool
	Description string
}

func NewField(name string, t Type, constraints ...Constraint) Field {
	return Field{Name: name, Type: t, Constraints: constraints}
}

func (f Field) WithDefault(v any) Field {
	f.Default = v
	f.HasDefault = true
	return f
}

func (f Field) AsOptional() Field {
	f.Optional = true
	return f
}

func (f Field) Describe(description string) Field {
	f.Description = description
	return f
}

// Required fields must be present on insert and cannot be unset.
func (f Field) Required() bool {
	return !f.Optional && !f.HasDefault
}

// Shape is an immutable, validated record declaration.
type Shape struct {
	name   string
	fields []Field
	index  map[string]int
}

// NewShape validates the declaration once. Any problem is reported as a *SchemaError.
func NewShape(name string, fields ...Field) (*Shape, error) {
	if strings.TrimSpace(name) == "" {
		return nil, &SchemaError{Shape: name, Reason: "shape name is required"}
	}
	s := &Shape{name: name, index: make(map[string]int, len(fields))}
	for _, f := range fields {
		if err := s.checkField(f); err != nil {
			return nil, err
		}
		if f.HasDefault {
			vs := &violations{shape: name}
			coerced, ok := coerceValue(f.Name, f.Type, f.Default, vs)
			if ok {
				checkConstraints(f.Name, f, coerced, vs)
			}
			if err := vs.err(); err != nil {
				return nil, &SchemaError{Shape: name, Field: f.Name, Reason: "invalid default: " + err.(*ValidationError).Violations[0].Reason}
			}
			f.Default = coerced
		}
		f.Constraints = append([]Constraint(nil), f.Constraints...)
		s.index[f.Name] = len(s.fields)
		s.fields = append(s.fields, f)
	}
	return s, nil
}

// MustShape panics on an invalid declaration; meant for package-level shape tables.
func MustShape(name string, fields ...Field) *Shape {
	s, err := NewShape(name, fields...)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Shape) checkField(f Field) error {
	fail := func(reason string) error {
		return &SchemaError{Shape: s.name, Field: f.Name, Reason: reason}
	}
	switch {
	case f.Name == "":
		return fail("field name is required")
	case f.Name == "_id":
		return fail("_id is managed by the collection and cannot be declared")
	case strings.Contains(f.Name, "."), strings.HasPrefix(f.Name, "$"):
		return fail("field names cannot contain '.' or start with '$'")
	}
	if _, dup := s.index[f.Name]; dup {
		return fail("duplicate field name")
	}
	if err := checkType(f.Type); err != "" {
		return fail(err)
	}
	for _, c := range f.Constraints {
		if c.err != nil {
			return fail(fmt.Sprintf("constraint %s: %v", c.Name, c.err))
		}
		if c.check == nil {
			return fail(fmt.Sprintf("constraint %q is not defined", c.Name))
		}
		if !c.applies(f.Type.Name) {
			return fail(fmt.Sprintf("constraint %s does not apply to type %s", c.Name, f.Type))
		}
	}
	return nil
}

func checkType(t Type) string {
	if !knownTypes[t.Name] {
		return fmt.Sprintf("unknown type %q", t.Name)
	}
	switch t.Name {
	case TypeArray:
		if t.Items == nil {
			return "array type requires an item type"
		}
		return checkType(*t.Items)
	case TypeObject:
		if t.Shape == nil {
			return "object type requires a nested shape"
		}
	}
	return ""
}

func (s *Shape) Name() string {
	return s.name
}

// Fields returns the declared fields in declaration order.
func (s *Shape) Fields() []Field {
	return append([]Field(nil), s.fields...)
}

func (s *Shape) Field(name string) (Field, bool) {
	i, ok := s.index[name]
	if !ok {
		return Field{}, false
	}
	return s.fields[i], true
}

// Fingerprint is a stable textual form of the declaration, equal for equal shapes.
// Nested shapes are compared by their fields only.
func (s *Shape) Fingerprint() string {
	return s.name + s.fieldsFingerprint()
}

func (s *Shape) fieldsFingerprint() string {
	var b strings.Builder
	b.WriteString("{")
	for i, f := range s.fields {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(f.Name)
		b.WriteString(":")
		b.WriteString(typeFingerprint(f.Type))
		if len(f.Constraints) > 0 {
			names := make([]string, 0, len(f.Constraints))
			for _, c := range f.Constraints {
				names = append(names, c.String())
			}
			sort.Strings(names)
			b.WriteString("[" + strings.Join(names, ",") + "]")
		}
		if f.HasDefault {
			fmt.Fprintf(&b, "=%v", f.Default)
		}
		if f.Optional {
			b.WriteString("?")
		}
	}
	b.WriteString("}")
	return b.String()
}

func typeFingerprint(t Type) string {
	switch t.Name {
	case TypeArray:
		return "array<" + typeFingerprint(*t.Items) + ">"
	case TypeObject:
		return "object" + t.Shape.fieldsFingerprint()
	default:
		return string(t.Name)
	}
}

func (s *Shape) Equal(other *Shape) bool {
	if s == other {
		return true
	}
	if s == nil || other == nil {
		return false
	}
	return s.Fingerprint() == other.Fingerprint()
}
