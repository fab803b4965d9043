package products

import (
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/mattiabonardi/endor-odm-go/pkg/sdk"
)

const (
	limitParam = "limit"
	skipParam  = "skip"
	sortParam  = "sort"
)

// listQuery turns query parameters into a filter and find options.
//
//	?category=laptops&price__gte=500&tags__in=a,b&sort=-rating,price&limit=10&skip=20
//
// Values are read as strings and converted following the declared field type.
func listQuery(shape *sdk.Shape, params url.Values) (sdk.Filter, []sdk.FindOption, error) {
	vs := &sdk.ValidationError{Shape: "query"}
	spec := map[string]any{}
	var opts []sdk.FindOption

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		raw := params.Get(key)
		switch key {
		case limitParam, skipParam:
			n, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || n < 0 {
				vs.Violations = append(vs.Violations, sdk.FieldViolation{Field: key, Reason: "must be a non-negative integer"})
				continue
			}
			if key == limitParam {
				opts = append(opts, sdk.WithLimit(n))
			} else {
				opts = append(opts, sdk.WithSkip(n))
			}
		case sortParam:
			var sortKeys []sdk.SortKey
			for _, part := range strings.Split(raw, ",") {
				part = strings.TrimSpace(part)
				switch {
				case part == "" || part == "-":
					continue
				case strings.HasPrefix(part, "-"):
					sortKeys = append(sortKeys, sdk.Desc(part[1:]))
				default:
					sortKeys = append(sortKeys, sdk.Asc(strings.TrimPrefix(part, "+")))
				}
			}
			if len(sortKeys) > 0 {
				opts = append(opts, sdk.WithSort(sortKeys...))
			}
		default:
			value, reason := queryValue(shape, key, raw)
			if reason != "" {
				vs.Violations = append(vs.Violations, sdk.FieldViolation{Field: key, Reason: reason})
				continue
			}
			spec[key] = value
		}
	}
	if len(vs.Violations) > 0 {
		return sdk.Filter{}, nil, vs
	}

	filter, err := sdk.ParseFilter(spec)
	if err != nil {
		return sdk.Filter{}, nil, err
	}
	return filter, opts, nil
}

func queryValue(shape *sdk.Shape, key, raw string) (any, string) {
	field, op, _ := strings.Cut(key, "__")
	switch op {
	case "in", "nin":
		values := []any{}
		for _, part := range strings.Split(raw, ",") {
			v, reason := scalarValue(shape, field, strings.TrimSpace(part))
			if reason != "" {
				return nil, reason
			}
			values = append(values, v)
		}
		return values, ""
	case "exists":
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, "must be true or false"
		}
		return b, ""
	case "regex", "contains", "icontains", "startswith":
		return raw, ""
	}
	return scalarValue(shape, field, raw)
}

func scalarValue(shape *sdk.Shape, field, raw string) (any, string) {
	f, ok := shape.Field(field)
	if !ok {
		return raw, ""
	}
	t := f.Type
	if t.Name == sdk.TypeArray && t.Items != nil {
		// array fields match on their elements
		t = *t.Items
	}
	switch t.Name {
	case sdk.TypeNumber:
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, "must be a number"
		}
		return n, ""
	case sdk.TypeInteger:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, "must be an integer"
		}
		return n, ""
	case sdk.TypeBoolean:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, "must be true or false"
		}
		return b, ""
	}
	return raw, ""
}
