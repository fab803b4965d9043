package sdk_test

import (
	"testing"

	"github.com/mattiabonardi/endor-odm-go/pkg/sdk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaTransformer_Partial(t *testing.T) {
	address := sdk.MustShape("Address", sdk.NewField("city", sdk.StringType(), sdk.NotEmpty()))
	shape := sdk.MustShape("Customer",
		sdk.NewField("name", sdk.StringType()),
		sdk.NewField("tier", sdk.StringType()).WithDefault("basic"),
		sdk.NewField("address", sdk.NestedShape(address)),
	)

	canonical := shape.RootSchema()
	require.Equal(t, []string{"name", "address"}, canonical.Required)

	partial := shape.RootSchema().Apply(sdk.Partial())
	assert.Empty(t, partial.Required)
	props := *partial.Properties
	assert.Nil(t, props["tier"].Default)
	assert.Empty(t, props["address"].Required)
	assert.Contains(t, *props["address"].Properties, "city", "fields are kept")

	assert.Equal(t, []string{"name", "address"}, shape.RootSchema().Required, "the shape schema is rebuilt on every call")
}

func TestSchemaTransformer_Forbid(t *testing.T) {
	shape := sdk.MustShape("Customer",
		sdk.NewField("name", sdk.StringType()),
		sdk.NewField("email", sdk.StringType(), sdk.Email()),
		sdk.NewField("notes", sdk.StringType()).AsOptional(),
	)

	schema := shape.RootSchema().Apply(sdk.Forbid("email", "missing"))
	assert.NotContains(t, *schema.Properties, "email")
	assert.Equal(t, []string{"name"}, schema.Required)
	require.NotNil(t, schema.UISchema)
	assert.Equal(t, []string{"name", "notes"}, *schema.UISchema.Order)

	chained := shape.RootSchema().Apply(sdk.Forbid("notes"), sdk.Partial())
	assert.Len(t, *chained.Properties, 2)
	assert.Empty(t, chained.Required)
}
