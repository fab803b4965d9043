package products

import (
	"context"

	"github.com/mattiabonardi/endor-odm-go/pkg/sdk"
)

// Repository is the Product data access used by the HTTP handlers.
type Repository struct {
	products *sdk.Collection[Product]
}

// NewRepository binds the products collection. A positive findLimit caps list results
// when the caller sets no limit.
func NewRepository(db *sdk.Database, findLimit int64) (*Repository, error) {
	products, err := sdk.Bind[Product](db, CollectionName, ProductShape, sdk.WithDefaultLimit(findLimit))
	if err != nil {
		return nil, err
	}
	return &Repository{products: products}, nil
}

func (r *Repository) Shape() *sdk.Shape {
	return r.products.Shape()
}

// Create inserts the document and reads the stored product back.
func (r *Repository) Create(ctx context.Context, doc sdk.Document) (*Product, error) {
	res, err := r.products.InsertDocument(ctx, doc)
	if err != nil {
		return nil, err
	}
	return r.products.FindByID(ctx, res.InsertedID)
}

func (r *Repository) List(ctx context.Context, filter sdk.Filter, opts ...sdk.FindOption) ([]Product, error) {
	return r.products.Find(filter, opts...).ToList(ctx)
}

func (r *Repository) Count(ctx context.Context, filter sdk.Filter) (int64, error) {
	return r.products.Count(ctx, filter)
}

// Get returns nil when the product does not exist.
func (r *Repository) Get(ctx context.Context, id string) (*Product, error) {
	return r.products.FindByID(ctx, id)
}

// Update sets the given fields. It returns nil when no product has the id.
func (r *Repository) Update(ctx context.Context, id string, fields sdk.Document) (*Product, error) {
	res, err := r.products.UpdateOne(ctx, sdk.ByID(id), sdk.SetFields(fields))
	if err != nil {
		return nil, err
	}
	if res.MatchedCount == 0 {
		return nil, nil
	}
	return r.products.FindByID(ctx, id)
}

// Delete reports whether a product was removed.
func (r *Repository) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.products.DeleteOne(ctx, sdk.ByID(id))
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

// AveragePriceByCategory groups products by category, most expensive first.
func (r *Repository) AveragePriceByCategory(ctx context.Context) ([]CategoryAverage, error) {
	pipeline := sdk.NewPipeline().
		Group(sdk.FieldRefExpr("category"),
			sdk.Avg("averagePrice", sdk.FieldRefExpr("price")),
			sdk.CountAll("count"),
		).
		Sort(sdk.Desc("averagePrice"))
	return sdk.AggregateAs[CategoryAverage](r.products, pipeline).ToList(ctx)
}

func (r *Repository) TotalPriceByCategory(ctx context.Context) ([]CategoryTotal, error) {
	pipeline := sdk.NewPipeline().
		Group(sdk.FieldRefExpr("category"),
			sdk.Sum("totalPrice", sdk.FieldRefExpr("price")),
			sdk.CountAll("count"),
		).
		Sort(sdk.Desc("totalPrice"), sdk.Asc("_id"))
	return sdk.AggregateAs[CategoryTotal](r.products, pipeline).ToList(ctx)
}
