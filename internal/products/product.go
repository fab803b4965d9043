package products

import "github.com/mattiabonardi/endor-odm-go/pkg/sdk"

const CollectionName = "products"

type Product struct {
	ID                 sdk.ObjectID `json:"id" bson:"_id,omitempty"`
	Title              string       `json:"title" bson:"title" schema:"notEmpty"`
	Description        string       `json:"description" bson:"description"`
	Price              float64      `json:"price" bson:"price" schema:"positive"`
	DiscountPercentage float64      `json:"discountPercentage" bson:"discountPercentage" schema:"min=0,max=100"`
	Rating             float64      `json:"rating" bson:"rating" schema:"min=0,max=5"`
	Stock              int          `json:"stock" bson:"stock" schema:"nonNegative"`
	Brand              string       `json:"brand" bson:"brand"`
	Category           string       `json:"category" bson:"category"`
	Thumbnail          string       `json:"thumbnail" bson:"thumbnail"`
	Images             []string     `json:"images" bson:"images" schema:"default=[]"`
	Email              string       `json:"email" bson:"email" schema:"email"`
	Tags               []string     `json:"tags" bson:"tags" schema:"default=[]"`
}

// ProductShape is derived once from the Product tags.
var ProductShape = sdk.MustShapeOf[Product]("Product")

// CategoryAverage is one row of the average price per category aggregation.
type CategoryAverage struct {
	Category     string  `json:"category" bson:"_id"`
	AveragePrice float64 `json:"averagePrice" bson:"averagePrice"`
	Count        int64   `json:"count" bson:"count"`
}

// CategoryTotal is one row of the total price per category aggregation.
type CategoryTotal struct {
	Category   string  `json:"category" bson:"_id"`
	TotalPrice float64 `json:"totalPrice" bson:"totalPrice"`
	Count      int64   `json:"count" bson:"count"`
}
