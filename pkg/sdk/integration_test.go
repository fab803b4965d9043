package sdk_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/mattiabonardi/endor-odm-go/pkg/sdk"
	"github.com/mattiabonardi/endor-odm-go/pkg/sdk_configuration"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sale struct {
	ID       sdk.ObjectID `bson:"_id,omitempty"`
	Category string       `bson:"category" schema:"notEmpty"`
	Price    float64      `bson:"price" schema:"positive"`
}

type categoryTotal struct {
	Category string  `bson:"_id"`
	Total    float64 `bson:"total"`
}

// liveDatabase returns an empty database on the store named by DOCUMENT_DB_TEST_URI,
// skipping the test when it is not set.
func liveDatabase(t *testing.T, ctx context.Context, name string) *sdk.Database {
	t.Helper()
	uri := os.Getenv("DOCUMENT_DB_TEST_URI")
	if uri == "" {
		t.Skip("DOCUMENT_DB_TEST_URI not set")
	}
	db, err := sdk.NewDatabase(sdk_configuration.DocumentDBConfig{
		URI:            uri,
		Database:       name,
		ConnectTimeout: 5 * time.Second,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(context.Background()) })
	require.NoError(t, db.Drop(ctx))
	return db
}

func TestIntegration_ProductLifecycle(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	db := liveDatabase(t, ctx, "endor_odm_integration")

	products, err := sdk.Bind[reflectedProduct](db, "products", sdk.MustShapeOf[reflectedProduct]("Product"))
	require.NoError(t, err)

	inserted, err := products.InsertMany(ctx, []reflectedProduct{
		{Title: "iPhone 9", Price: 549, Stock: 94},
		{Title: "iPhone X", Price: 899, Stock: 34},
		{Title: "Watch", Price: 99},
	})
	require.NoError(t, err)
	require.Len(t, inserted.InsertedIDs, 3)

	expensive, err := products.Find(sdk.Where("price").Gt(500), sdk.WithSort(sdk.Asc("price"))).ToList(ctx)
	require.NoError(t, err)
	require.Len(t, expensive, 2)
	assert.Equal(t, "iPhone 9", expensive[0].Title)

	res, err := products.UpdateOne(ctx, sdk.ByID(inserted.InsertedIDs[2]), sdk.Set("price", 120).Push("tags", "sale"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.ModifiedCount)

	watch, err := products.FindByID(ctx, inserted.InsertedIDs[2])
	require.NoError(t, err)
	require.NotNil(t, watch)
	assert.Equal(t, 120.0, watch.Price)
	assert.Equal(t, []string{"sale"}, watch.Tags)

	// a duplicate id makes the whole batch fail and leaves nothing behind
	_, err = products.InsertMany(ctx, []reflectedProduct{
		{Title: "New", Price: 1},
		{ID: sdk.ObjectID(sdk.IDString(inserted.InsertedIDs[0])), Title: "Dup", Price: 1},
	})
	var se *sdk.StoreError
	require.ErrorAs(t, err, &se)
	assert.True(t, se.IsDuplicateKey())
	assert.Empty(t, se.Orphaned)

	n, err := products.Count(ctx, sdk.All())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	deleted, err := products.DeleteMany(ctx, sdk.Where("stock").Lte(0))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted.DeletedCount)

	deleted, err = products.DeleteMany(ctx, sdk.Where("stock").Lte(0))
	require.NoError(t, err)
	assert.Equal(t, int64(0), deleted.DeletedCount, "deleting again removes nothing")
}

func TestIntegration_GroupByCategory(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	db := liveDatabase(t, ctx, "endor_odm_integration_aggregation")

	sales, err := sdk.Bind[sale](db, "sales", sdk.MustShapeOf[sale]("Sale"))
	require.NoError(t, err)
	_, err = sales.InsertMany(ctx, []sale{
		{Category: "cat1", Price: 10},
		{Category: "cat1", Price: 20},
		{Category: "cat2", Price: 30},
	})
	require.NoError(t, err)

	totals, err := sdk.AggregateAs[categoryTotal](sales, sdk.NewPipeline().
		Group(sdk.FieldRefExpr("category"), sdk.Sum("total", sdk.FieldRefExpr("price"))).
		Sort(sdk.Asc("_id")),
	).ToList(ctx)
	require.NoError(t, err)
	assert.Equal(t, []categoryTotal{{"cat1", 30}, {"cat2", 30}}, totals)

	averages, err := sdk.AggregateAs[categoryAverage](sales, sdk.NewPipeline().
		Group(sdk.FieldRefExpr("category"), sdk.Avg("averagePrice", sdk.FieldRefExpr("price"))).
		Sort(sdk.Desc("averagePrice")),
	).ToList(ctx)
	require.NoError(t, err)
	assert.Equal(t, []categoryAverage{{"cat2", 30}, {"cat1", 15}}, averages)
}
