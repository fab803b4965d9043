package sdk

import (
	"go.mongodb.org/mongo-driver/bson"
)

// SortKey orders results by one field.
type SortKey struct {
	Field      string
	Descending bool
}

func Asc(field string) SortKey  { return SortKey{Field: field} }
func Desc(field string) SortKey { return SortKey{Field: field, Descending: true} }

func sortDocument(keys []SortKey) bson.D {
	out := make(bson.D, 0, len(keys))
	for _, k := range keys {
		dir := 1
		if k.Descending {
			dir = -1
		}
		out = append(out, bson.E{Key: k.Field, Value: dir})
	}
	return out
}

// Accumulator computes one output field of a $group stage.
type Accumulator struct {
	Output string
	Op     string
	Expr   any
}

// FieldRefExpr turns a field name into the "$field" reference used by expressions.
func FieldRefExpr(field string) string {
	return "$" + field
}

func accumulate(op, output string, expr any) Accumulator {
	return Accumulator{Output: output, Op: op, Expr: expr}
}

func Sum(output string, expr any) Accumulator    { return accumulate("$sum", output, expr) }
func Avg(output string, expr any) Accumulator    { return accumulate("$avg", output, expr) }
func MinOf(output string, expr any) Accumulator  { return accumulate("$min", output, expr) }
func MaxOf(output string, expr any) Accumulator  { return accumulate("$max", output, expr) }
func First(output string, expr any) Accumulator  { return accumulate("$first", output, expr) }
func Last(output string, expr any) Accumulator   { return accumulate("$last", output, expr) }
func PushTo(output string, expr any) Accumulator { return accumulate("$push", output, expr) }

// CountAll counts the documents of each group.
func CountAll(output string) Accumulator {
	return Sum(output, 1)
}

type stage struct {
	name  string
	value any
	// match stages keep the filter so it can be rendered with the collection shape
	match *Filter
}

// Pipeline is an ordered, immutable list of aggregation stages. It is passed to the
// store as is; no stage is evaluated locally.
type Pipeline struct {
	stages []stage
}

func NewPipeline() Pipeline {
	return Pipeline{}
}

func (p Pipeline) with(s stage) Pipeline {
	stages := make([]stage, len(p.stages), len(p.stages)+1)
	copy(stages, p.stages)
	return Pipeline{stages: append(stages, s)}
}

func (p Pipeline) Match(f Filter) Pipeline {
	return p.with(stage{name: "$match", match: &f})
}

// Group groups by key, a field reference such as "$category", a document of
// references, or nil for a single group.
func (p Pipeline) Group(key any, accumulators ...Accumulator) Pipeline {
	group := bson.D{{Key: "_id", Value: key}}
	for _, a := range accumulators {
		group = append(group, bson.E{Key: a.Output, Value: bson.D{{Key: a.Op, Value: a.Expr}}})
	}
	return p.with(stage{name: "$group", value: group})
}

func (p Pipeline) Sort(keys ...SortKey) Pipeline {
	return p.with(stage{name: "$sort", value: sortDocument(keys)})
}

func (p Pipeline) Project(projection bson.D) Pipeline {
	return p.with(stage{name: "$project", value: projection})
}

func (p Pipeline) Limit(n int64) Pipeline {
	return p.with(stage{name: "$limit", value: n})
}

func (p Pipeline) Skip(n int64) Pipeline {
	return p.with(stage{name: "$skip", value: n})
}

func (p Pipeline) Unwind(field string) Pipeline {
	return p.with(stage{name: "$unwind", value: FieldRefExpr(field)})
}

func (p Pipeline) Count(output string) Pipeline {
	return p.with(stage{name: "$count", value: output})
}

// Stage appends a raw stage, for operators without a dedicated builder.
func (p Pipeline) Stage(name string, value any) Pipeline {
	return p.with(stage{name: name, value: value})
}

func (p Pipeline) Len() int {
	return len(p.stages)
}

// Stages renders the pipeline without shape-aware filter conversions.
func (p Pipeline) Stages() bson.A {
	return p.render(nil)
}

func (p Pipeline) render(shape *Shape) bson.A {
	out := make(bson.A, 0, len(p.stages))
	for _, s := range p.stages {
		value := s.value
		if s.match != nil {
			value = s.match.render(shape)
		}
		out = append(out, bson.D{{Key: s.name, Value: value}})
	}
	return out
}
