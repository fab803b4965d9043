package sdk_test

import (
	"testing"
	"testing/fstest"

	"github.com/mattiabonardi/endor-odm-go/pkg/sdk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const productDefinition = `shape: Product
collection: products
fields:
  - name: title
    type: string
    constraints: [notEmpty]
    description: Product title
  - name: price
    type: number
    constraints: [positive]
  - name: stock
    type: integer
    default: 0
  - name: email
    type: string
    constraints: [email]
    optional: true
  - name: tags
    type: array
    items: {type: string}
    default: []
`

const orderDefinition = `shape: Order
collection: orders
fields:
  - name: productId
    type: objectId
  - name: status
    type: string
    constraints: ["oneOf=open|shipped"]
  - name: shipping
    type: object
    fields:
      - name: city
        type: string
`

func TestParseShapeYAML(t *testing.T) {
	declared, err := sdk.ParseShapeYAML("product.yaml", []byte(productDefinition))
	require.NoError(t, err)
	require.Len(t, declared, 1)

	assert.Equal(t, "products", declared[0].Collection)
	assert.Equal(t, "product.yaml", declared[0].Source)

	fromStruct, err := sdk.ShapeOf[reflectedProduct]("Product")
	require.NoError(t, err)
	assert.True(t, fromStruct.Equal(declared[0].Shape), "yaml %s, struct %s",
		declared[0].Shape.Fingerprint(), fromStruct.Fingerprint())
}

func TestParseShapeYAML_MultipleDocuments(t *testing.T) {
	declared, err := sdk.ParseShapeYAML("all.yaml", []byte(productDefinition+"---\n"+orderDefinition))
	require.NoError(t, err)
	require.Len(t, declared, 2)
	assert.Equal(t, "orders", declared[1].Collection)

	shipping, ok := declared[1].Shape.Field("shipping")
	require.True(t, ok)
	assert.Equal(t, sdk.TypeObject, shipping.Type.Name)
}

func TestParseShapeYAML_Errors(t *testing.T) {
	tests := map[string]string{
		"unknown key":         "shape: A\ncollection: a\nfields:\n  - name: x\n    type: string\n    nullable: true\n",
		"missing collection":  "shape: A\nfields:\n  - name: x\n    type: string\n",
		"unknown type":        "shape: A\ncollection: a\nfields:\n  - name: x\n    type: uuid\n",
		"array without items": "shape: A\ncollection: a\nfields:\n  - name: x\n    type: array\n",
		"unknown constraint":  "shape: A\ncollection: a\nfields:\n  - name: x\n    type: string\n    constraints: [shout]\n",
		"bad default":         "shape: A\ncollection: a\nfields:\n  - name: x\n    type: number\n    default: abc\n",
	}
	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := sdk.ParseShapeYAML("a.yaml", []byte(input))
			require.Error(t, err)
			assert.True(t, sdk.IsSchemaError(err), "got %v", err)
		})
	}
}

func TestLoadShapeDefinitions(t *testing.T) {
	fsys := fstest.MapFS{
		"shapes/product.yaml":     {Data: []byte(productDefinition)},
		"shapes/sales/order.yaml": {Data: []byte(orderDefinition)},
		"shapes/README.md":        {Data: []byte("# shapes")},
		"other/ignored.yaml.bak":  {Data: []byte("not yaml: [")},
	}

	declared, err := sdk.LoadShapeDefinitions(fsys, "shapes/**/*.yaml")
	require.NoError(t, err)
	require.Len(t, declared, 2)

	collections := []string{declared[0].Collection, declared[1].Collection}
	assert.ElementsMatch(t, []string{"products", "orders"}, collections)

	_, err = sdk.LoadShapeDefinitions(fsys, "shapes/[")
	assert.Error(t, err)
}

func TestLoadShapeDefinitions_DuplicateCollection(t *testing.T) {
	fsys := fstest.MapFS{
		"a.yaml": {Data: []byte(productDefinition)},
		"b.yaml": {Data: []byte(productDefinition)},
	}
	_, err := sdk.LoadShapeDefinitions(fsys, "*.yaml")
	assert.True(t, sdk.IsSchemaError(err))
}

func TestCompareShapes(t *testing.T) {
	declared, err := sdk.ParseShapeYAML("all.yaml", []byte(productDefinition+"---\n"+orderDefinition))
	require.NoError(t, err)

	bound := map[string]*sdk.Shape{
		"products": sdk.MustShapeOf[reflectedProduct]("Product"),
	}
	drift := sdk.CompareShapes(bound, declared)
	require.Len(t, drift, 1)
	assert.Equal(t, "orders", drift[0].Collection)
	assert.Equal(t, "collection is not bound", drift[0].Reason)

	bound["orders"] = sdk.MustShape("Order", sdk.NewField("status", sdk.StringType()))
	drift = sdk.CompareShapes(bound, declared)
	require.Len(t, drift, 1)
	assert.Equal(t, "orders", drift[0].Collection)
	assert.Contains(t, drift[0].Reason, "declared Order{")
}
