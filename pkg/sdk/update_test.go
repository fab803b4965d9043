package sdk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func updateShape() *Shape {
	return MustShape("Product",
		NewField("title", StringType(), NotEmpty()),
		NewField("price", NumberType(), Positive()),
		NewField("stock", IntegerType()).WithDefault(0),
		NewField("brand", StringType()).AsOptional(),
		NewField("tags", ListOf(StringType())).WithDefault([]any{}),
		NewField("dimensions", NestedShape(MustShape("Dimensions",
			NewField("width", NumberType(), Min(0)),
		))).AsOptional(),
	)
}

func TestUpdateBSON(t *testing.T) {
	u := Set("price", 10).Inc("stock", 1).Set("title", "a").Set("price", 12).PushEach("tags", "x", "y").Unset("brand")

	assert.Equal(t, bson.D{
		{Key: "$set", Value: bson.D{{Key: "price", Value: 12}, {Key: "title", Value: "a"}}},
		{Key: "$inc", Value: bson.D{{Key: "stock", Value: 1}}},
		{Key: "$push", Value: bson.D{{Key: "tags", Value: bson.D{{Key: "$each", Value: []any{"x", "y"}}}}}},
		{Key: "$unset", Value: bson.D{{Key: "brand", Value: ""}}},
	}, u.BSON())
	assert.Equal(t, []string{"price", "stock", "title", "tags", "brand"}, u.Fields())
}

func TestUpdate_IsImmutable(t *testing.T) {
	base := Set("price", 10)
	_ = base.Set("title", "changed")
	_ = base.Inc("stock", 1)

	assert.Len(t, base.entries, 1)
	assert.True(t, Update{}.IsEmpty())
}

func TestUpdateValidate_CoercesValues(t *testing.T) {
	u, err := Set("price", 12).Inc("stock", 2.0).Push("tags", "new").Set("dimensions.width", 3).Set("color", "red").validate(updateShape())
	require.NoError(t, err)

	assert.Equal(t, bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "price", Value: 12.0},
			{Key: "dimensions.width", Value: 3.0},
			{Key: "color", Value: "red"},
		}},
		{Key: "$inc", Value: bson.D{{Key: "stock", Value: int64(2)}}},
		{Key: "$push", Value: bson.D{{Key: "tags", Value: "new"}}},
	}, u.BSON())
}

func TestUpdateValidate_Violations(t *testing.T) {
	tests := []struct {
		name   string
		update Update
		fields []string
	}{
		{"empty", Update{}, []string{""}},
		{"id", Set("_id", "x"), []string{"_id"}},
		{"constraint", Set("price", -1), []string{"price"}},
		{"type", Set("title", 5), []string{"title"}},
		{"required to null", Set("title", nil), []string{"title"}},
		{"unset required", Unset("title"), []string{"title"}},
		{"unset defaulted", Unset("stock"), []string{"stock"}},
		{"inc on string", Inc("title", 1), []string{"title"}},
		{"inc with string", Inc("stock", "one"), []string{"stock"}},
		{"push on scalar", Update{}.Push("title", "x"), []string{"title"}},
		{"push wrong item", Update{}.PushEach("tags", "ok", 3), []string{"tags.1"}},
		{"conflict", Set("price", 1).Inc("price", 1), []string{"price"}},
		{"nested constraint", Set("dimensions.width", -2), []string{"dimensions.width"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.update.validate(updateShape())
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, "Product", ve.Shape)
			assert.Equal(t, tt.fields, ve.Fields())
		})
	}
}

func TestUpdateValidate_UnsetOptional(t *testing.T) {
	u, err := Unset("brand").validate(updateShape())
	require.NoError(t, err)
	assert.Equal(t, bson.D{{Key: "$unset", Value: bson.D{{Key: "brand", Value: ""}}}}, u.BSON())
}

func TestParseUpdate(t *testing.T) {
	u, err := ParseUpdate(map[string]any{"title": "b", "price": 3})
	require.NoError(t, err)
	assert.Equal(t, bson.D{{Key: "$set", Value: bson.D{{Key: "price", Value: 3}, {Key: "title", Value: "b"}}}}, u.BSON())

	u, err = ParseUpdate(map[string]any{
		"$inc":      map[string]any{"stock": 1},
		"$addToSet": map[string]any{"tags": map[string]any{"$each": []any{"a"}}},
	})
	require.NoError(t, err)
	assert.Equal(t, bson.D{
		{Key: "$addToSet", Value: bson.D{{Key: "tags", Value: bson.D{{Key: "$each", Value: []any{"a"}}}}}},
		{Key: "$inc", Value: bson.D{{Key: "stock", Value: 1}}},
	}, u.BSON())

	_, err = ParseUpdate(map[string]any{"$rename": map[string]any{"a": "b"}, "$set": 1})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, []string{"$rename", "$set"}, ve.Fields())
}
