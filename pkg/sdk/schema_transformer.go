package sdk

// SchemaTransformer derives a use case schema from the canonical shape schema.
type SchemaTransformer func(*Schema)

// Apply runs the transformers in order on r and returns it.
func (r *RootSchema) Apply(ts ...SchemaTransformer) *RootSchema {
	for _, t := range ts {
		t(&r.Schema)
	}
	return r
}

// Partial drops every required list, at any depth, and every default. It describes
// partial updates, where only the supplied fields are validated and set.
func Partial() SchemaTransformer {
	return func(s *Schema) {
		clearRequired(s)
	}
}

func clearRequired(s *Schema) {
	s.Required = nil
	s.Default = nil
	if s.Items != nil {
		clearRequired(s.Items)
	}
	if s.Properties == nil {
		return
	}
	for key, prop := range *s.Properties {
		clearRequired(&prop)
		(*s.Properties)[key] = prop
	}
}

// Forbid removes top-level fields from the schema, its required list and its field order.
func Forbid(fields ...string) SchemaTransformer {
	return func(s *Schema) {
		forbidden := make(map[string]bool, len(fields))
		for _, f := range fields {
			forbidden[f] = true
		}
		if s.Properties != nil {
			for f := range forbidden {
				delete(*s.Properties, f)
			}
		}
		s.Required = without(s.Required, forbidden)
		if s.UISchema != nil && s.UISchema.Order != nil {
			order := without(*s.UISchema.Order, forbidden)
			s.UISchema.Order = &order
		}
	}
}

func without(list []string, drop map[string]bool) []string {
	if list == nil {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, v := range list {
		if !drop[v] {
			out = append(out, v)
		}
	}
	return out
}
