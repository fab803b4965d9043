package sdk

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// DeclaredShape is a shape read from a definition file together with the collection
// it is meant for.
type DeclaredShape struct {
	Collection string
	Shape      *Shape
	Source     string
}

type shapeDefinition struct {
	Shape      string            `yaml:"shape"`
	Collection string            `yaml:"collection"`
	Fields     []fieldDefinition `yaml:"fields"`
}

type fieldDefinition struct {
	Name        string            `yaml:"name"`
	Type        string            `yaml:"type"`
	Items       *fieldDefinition  `yaml:"items"`
	Fields      []fieldDefinition `yaml:"fields"`
	Constraints []string          `yaml:"constraints"`
	Default     yaml.Node         `yaml:"default"`
	Optional    bool              `yaml:"optional"`
	Description string            `yaml:"description"`
}

// ParseShapeYAML reads one or more YAML documents of the form
//
//	shape: Product
//	collection: products
//	fields:
//	  - name: price
//	    type: number
//	    constraints: [positive]
//	  - name: tags
//	    type: array
//	    items: {type: string}
//	    default: []
//
// Unknown keys are rejected.
func ParseShapeYAML(source string, data []byte) ([]DeclaredShape, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	var out []DeclaredShape
	for {
		var def shapeDefinition
		err := decoder.Decode(&def)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &SchemaError{Shape: source, Reason: fmt.Sprintf("invalid definition: %v", err)}
		}
		if def.Collection == "" {
			return nil, &SchemaError{Shape: def.Shape, Reason: fmt.Sprintf("%s: collection is required", source)}
		}
		shape, err := def.build()
		if err != nil {
			return nil, err
		}
		out = append(out, DeclaredShape{Collection: def.Collection, Shape: shape, Source: source})
	}
	return out, nil
}

func (d shapeDefinition) build() (*Shape, error) {
	fields := make([]Field, 0, len(d.Fields))
	for _, fd := range d.Fields {
		f, err := fd.build(d.Shape)
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	return NewShape(d.Shape, fields...)
}

func (fd fieldDefinition) build(shape string) (Field, error) {
	fail := func(reason string) (Field, error) {
		return Field{}, &SchemaError{Shape: shape, Field: fd.Name, Reason: reason}
	}
	typ, err := fd.buildType(shape)
	if err != nil {
		return Field{}, err
	}
	f := Field{Name: fd.Name, Type: typ, Optional: fd.Optional, Description: fd.Description}
	for _, raw := range fd.Constraints {
		name, arg, _ := strings.Cut(raw, "=")
		name = strings.TrimSpace(name)
		arg = strings.TrimSpace(arg)
		switch name {
		case "oneOf":
			f.Constraints = append(f.Constraints, OneOf(strings.Split(arg, "|")...))
		case "pattern":
			f.Constraints = append(f.Constraints, Pattern(arg))
		default:
			c, err := constraintFromTag(name, arg)
			if err != nil {
				return fail(err.Error())
			}
			f.Constraints = append(f.Constraints, c)
		}
	}
	if !fd.Default.IsZero() {
		var value any
		if err := fd.Default.Decode(&value); err != nil {
			return fail(fmt.Sprintf("invalid default: %v", err))
		}
		f = f.WithDefault(value)
	}
	return f, nil
}

func (fd fieldDefinition) buildType(shape string) (Type, error) {
	switch TypeName(fd.Type) {
	case TypeArray:
		if fd.Items == nil {
			return Type{}, &SchemaError{Shape: shape, Field: fd.Name, Reason: "array type requires items"}
		}
		items, err := fd.Items.buildType(shape)
		if err != nil {
			return Type{}, err
		}
		return ListOf(items), nil
	case TypeObject:
		nested := shapeDefinition{Shape: shape + "." + fd.Name, Fields: fd.Fields}
		s, err := nested.build()
		if err != nil {
			return Type{}, err
		}
		return NestedShape(s), nil
	default:
		// unknown names are reported by NewShape
		return Type{Name: TypeName(fd.Type)}, nil
	}
}

// LoadShapeDefinitions reads every file of fsys matching the doublestar pattern,
// e.g. "**/*.yaml". A collection declared twice is a *SchemaError.
func LoadShapeDefinitions(fsys fs.FS, pattern string) ([]DeclaredShape, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid shape definition pattern %q", pattern)
	}
	matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("failed to list shape definitions: %w", err)
	}

	var out []DeclaredShape
	seen := map[string]string{}
	for _, path := range matches {
		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return nil, fmt.Errorf("failed to read shape definition %s: %w", path, err)
		}
		declared, err := ParseShapeYAML(path, data)
		if err != nil {
			return nil, err
		}
		for _, d := range declared {
			if prev, dup := seen[d.Collection]; dup {
				return nil, &SchemaError{
					Shape:  d.Shape.Name(),
					Reason: fmt.Sprintf("collection %q is declared in both %s and %s", d.Collection, prev, path),
				}
			}
			seen[d.Collection] = path
			out = append(out, d)
		}
	}
	return out, nil
}

// ShapeDrift is a difference between a declared shape and the one bound in code.
type ShapeDrift struct {
	Collection string `json:"collection"`
	Source     string `json:"source"`
	Reason     string `json:"reason"`
}

// CompareShapes reports declared shapes whose collection is unbound or bound to a
// different shape.
func CompareShapes(bound map[string]*Shape, declared []DeclaredShape) []ShapeDrift {
	var drift []ShapeDrift
	for _, d := range declared {
		current, ok := bound[d.Collection]
		switch {
		case !ok:
			drift = append(drift, ShapeDrift{Collection: d.Collection, Source: d.Source, Reason: "collection is not bound"})
		case !current.Equal(d.Shape):
			drift = append(drift, ShapeDrift{
				Collection: d.Collection,
				Source:     d.Source,
				Reason:     fmt.Sprintf("declared %s, bound %s", d.Shape.Fingerprint(), current.Fingerprint()),
			})
		}
	}
	return drift
}
