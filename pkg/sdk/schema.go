package sdk

import (
	"strings"

	"gopkg.in/yaml.v3"
)

type SchemaTypeName string

const (
	SchemaTypeString  SchemaTypeName = "string"
	SchemaTypeInteger SchemaTypeName = "integer"
	SchemaTypeNumber  SchemaTypeName = "number"
	SchemaTypeBoolean SchemaTypeName = "boolean"
	SchemaTypeObject  SchemaTypeName = "object"
	SchemaTypeArray   SchemaTypeName = "array"
)

type SchemaFormatName string

const (
	SchemaFormatDateTime SchemaFormatName = "date-time"
	SchemaFormatEmail    SchemaFormatName = "email"
	SchemaFormatObjectID SchemaFormatName = "objectId"
)

func NewSchemaFormat(f SchemaFormatName) *SchemaFormatName {
	return &f
}

// Schema is the JSON-schema-like description of a shape served to clients.
type Schema struct {
	Reference   string             `json:"$ref,omitempty" yaml:"$ref,omitempty"`
	Type        SchemaTypeName     `json:"type,omitempty" yaml:"type,omitempty"`
	Properties  *map[string]Schema `json:"properties,omitempty" yaml:"properties,omitempty"`
	Required    []string           `json:"required,omitempty" yaml:"required,omitempty"`
	Items       *Schema            `json:"items,omitempty" yaml:"items,omitempty"`
	Enum        *[]string          `json:"enum,omitempty" yaml:"enum,omitempty"`
	Title       *string            `json:"title,omitempty" yaml:"title,omitempty"`
	Description *string            `json:"description,omitempty" yaml:"description,omitempty"`
	Format      *SchemaFormatName  `json:"format,omitempty" yaml:"format,omitempty"`
	Default     any                `json:"default,omitempty" yaml:"default,omitempty"`

	// field dimension
	MinLength        *int     `json:"minLength,omitempty" yaml:"minLength,omitempty"`
	MaxLength        *int     `json:"maxLength,omitempty" yaml:"maxLength,omitempty"`
	Pattern          *string  `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	Minimum          *float64 `json:"minimum,omitempty" yaml:"minimum,omitempty"`
	Maximum          *float64 `json:"maximum,omitempty" yaml:"maximum,omitempty"`
	ExclusiveMinimum *float64 `json:"exclusiveMinimum,omitempty" yaml:"exclusiveMinimum,omitempty"`
	MinItems         *int     `json:"minItems,omitempty" yaml:"minItems,omitempty"`
	MaxItems         *int     `json:"maxItems,omitempty" yaml:"maxItems,omitempty"`

	UISchema *UISchema `json:"x-ui,omitempty" yaml:"x-ui,omitempty"`
}

type UISchema struct {
	Order *[]string `json:"order,omitempty" yaml:"order,omitempty"` // define the order of the attributes
}

type RootSchema struct {
	Schema `json:",inline" yaml:",inline"`
}

func (h *RootSchema) ToYAML() (string, error) {
	yamlData, err := yaml.Marshal(&h)
	if err != nil {
		return "", err
	}
	return string(yamlData), nil
}

// RootSchema describes the shape, its constraints and field order.
func (s *Shape) RootSchema() *RootSchema {
	root := s.schema()
	title := s.name
	root.Title = &title
	return &RootSchema{Schema: root}
}

func (s *Shape) schema() Schema {
	properties := make(map[string]Schema, len(s.fields))
	order := make([]string, 0, len(s.fields))
	var required []string
	for _, f := range s.fields {
		fieldSchema := typeSchema(f.Type)
		for _, c := range f.Constraints {
			applyConstraint(&fieldSchema, c)
		}
		if f.Description != "" {
			description := f.Description
			fieldSchema.Description = &description
		}
		if f.HasDefault {
			fieldSchema.Default = f.Default
		}
		if f.Required() {
			required = append(required, f.Name)
		}
		properties[f.Name] = fieldSchema
		order = append(order, f.Name)
	}
	return Schema{
		Type:       SchemaTypeObject,
		Properties: &properties,
		Required:   required,
		UISchema:   &UISchema{Order: &order},
	}
}

func typeSchema(t Type) Schema {
	switch t.Name {
	case TypeString:
		return Schema{Type: SchemaTypeString}
	case TypeNumber:
		return Schema{Type: SchemaTypeNumber}
	case TypeInteger:
		return Schema{Type: SchemaTypeInteger}
	case TypeBoolean:
		return Schema{Type: SchemaTypeBoolean}
	case TypeObjectID:
		return Schema{Type: SchemaTypeString, Format: NewSchemaFormat(SchemaFormatObjectID)}
	case TypeDateTime:
		return Schema{Type: SchemaTypeString, Format: NewSchemaFormat(SchemaFormatDateTime)}
	case TypeArray:
		items := typeSchema(*t.Items)
		return Schema{Type: SchemaTypeArray, Items: &items}
	default:
		return t.Shape.schema()
	}
}

func applyConstraint(s *Schema, c Constraint) {
	switch c.Name {
	case "positive":
		zero := 0.0
		s.ExclusiveMinimum = &zero
	case "nonNegative":
		zero := 0.0
		s.Minimum = &zero
	case "min":
		v := c.Arg.(float64)
		s.Minimum = &v
	case "max":
		v := c.Arg.(float64)
		s.Maximum = &v
	case "minLength":
		v := c.Arg.(int)
		s.MinLength = &v
	case "maxLength":
		v := c.Arg.(int)
		s.MaxLength = &v
	case "notEmpty":
		one := 1
		if s.Type == SchemaTypeArray {
			s.MinItems = &one
		} else {
			s.MinLength = &one
		}
	case "email":
		s.Format = NewSchemaFormat(SchemaFormatEmail)
	case "pattern":
		v := c.Arg.(string)
		s.Pattern = &v
	case "oneOf":
		values := strings.Split(c.Arg.(string), "|")
		s.Enum = &values
	case "minItems":
		v := c.Arg.(int)
		s.MinItems = &v
	case "maxItems":
		v := c.Arg.(int)
		s.MaxItems = &v
	}
}
