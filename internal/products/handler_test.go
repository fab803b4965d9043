package products_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mattiabonardi/endor-odm-go/internal/products"
	"github.com/mattiabonardi/endor-odm-go/pkg/sdk"
	"github.com/mattiabonardi/endor-odm-go/pkg/sdk_server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const iphone = `{
	"title": "iPhone 9",
	"description": "An apple mobile which is nothing like apple",
	"price": 549,
	"discountPercentage": 12.96,
	"rating": 4.69,
	"stock": 94,
	"brand": "Apple",
	"category": "smartphones",
	"thumbnail": "https://example.com/1/thumbnail.jpg",
	"email": "sales@example.com"
}`

func newServer(mt *mtest.T) *sdk_server.Server {
	mt.Helper()
	db := sdk.NewDatabaseFromClient(mt.Client, mt.DB.Name(), nil)
	repository, err := products.NewRepository(db, 100)
	require.NoError(mt, err)
	return sdk_server.NewServerInitializer(db, nil).WithHandlers(products.NewHandler(repository)).Build()
}

func do(mt *mtest.T, s *sdk_server.Server, method, target, body string) *httptest.ResponseRecorder {
	mt.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func decode[T any](mt *mtest.T, w *httptest.ResponseRecorder) sdk_server.Response[T] {
	mt.Helper()
	var body sdk_server.Response[T]
	require.NoError(mt, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

func storedIPhone(id primitive.ObjectID) bson.D {
	return bson.D{
		{Key: "_id", Value: id},
		{Key: "title", Value: "iPhone 9"},
		{Key: "price", Value: 549.0},
		{Key: "stock", Value: int64(94)},
		{Key: "brand", Value: "Apple"},
		{Key: "category", Value: "smartphones"},
		{Key: "images", Value: bson.A{}},
		{Key: "email", Value: "sales@example.com"},
		{Key: "tags", Value: bson.A{}},
	}
}

func ns(mt *mtest.T) string {
	return mt.DB.Name() + "." + products.CollectionName
}

func TestHandler_Create(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("stores the product and returns it", func(mt *mtest.T) {
		s := newServer(mt)
		id := primitive.NewObjectID()
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(),
			mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch, storedIPhone(id)),
		)

		w := do(mt, s, http.MethodPost, "/products", iphone)
		require.Equal(mt, http.StatusCreated, w.Code, w.Body.String())

		body := decode[products.Product](mt, w)
		require.NotNil(mt, body.Data)
		assert.Equal(mt, sdk.NewObjectID(id), body.Data.ID)
		assert.Equal(mt, "iPhone 9", body.Data.Title)
		assert.Equal(mt, []string{}, body.Data.Tags)
		assert.Contains(mt, w.Body.String(), `"id":"`+id.Hex()+`"`)

		insert := mt.GetStartedEvent()
		require.Equal(mt, "insert", insert.CommandName)
		doc := insert.Command.Lookup("documents", "0")
		assert.Equal(mt, int64(94), doc.Document().Lookup("stock").AsInt64())
		images, err := doc.Document().Lookup("images").Array().Values()
		require.NoError(mt, err)
		assert.Empty(mt, images)
		assert.Equal(mt, "find", mt.GetStartedEvent().CommandName)
	})

	mt.Run("rejects an invalid product", func(mt *mtest.T) {
		s := newServer(mt)

		w := do(mt, s, http.MethodPost, "/products", `{"title": " ", "price": -3, "stock": 1.5, "email": "nope"}`)
		require.Equal(mt, http.StatusBadRequest, w.Code)

		body := decode[map[string]any](mt, w)
		require.Len(mt, body.Messages, 1)
		fields := []string{}
		for _, v := range body.Messages[0].Violations {
			fields = append(fields, v.Field)
		}
		assert.Subset(mt, fields, []string{"title", "price", "stock", "email", "description", "brand"})
		assert.Empty(mt, mt.GetAllStartedEvents())
	})

	mt.Run("rejects a malformed body", func(mt *mtest.T) {
		s := newServer(mt)

		w := do(mt, s, http.MethodPost, "/products", `{"title":`)
		assert.Equal(mt, http.StatusBadRequest, w.Code)
		assert.Empty(mt, mt.GetAllStartedEvents())
	})

	mt.Run("duplicate key is a conflict", func(mt *mtest.T) {
		s := newServer(mt)
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{Index: 0, Code: 11000, Message: "E11000 duplicate key error"}))

		w := do(mt, s, http.MethodPost, "/products", iphone)
		assert.Equal(mt, http.StatusConflict, w.Code)
	})
}

func TestHandler_Get(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("found", func(mt *mtest.T) {
		s := newServer(mt)
		id := primitive.NewObjectID()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch, storedIPhone(id)))

		w := do(mt, s, http.MethodGet, "/products/"+id.Hex(), "")
		require.Equal(mt, http.StatusOK, w.Code)
		assert.Equal(mt, "Apple", decode[products.Product](mt, w).Data.Brand)

		find := mt.GetStartedEvent()
		assert.Equal(mt, id, find.Command.Lookup("filter", "_id").ObjectID())
	})

	mt.Run("missing", func(mt *mtest.T) {
		s := newServer(mt)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch))

		w := do(mt, s, http.MethodGet, "/products/"+primitive.NewObjectID().Hex(), "")
		assert.Equal(mt, http.StatusNotFound, w.Code)
	})
}

func TestHandler_List(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("filters from the query string", func(mt *mtest.T) {
		s := newServer(mt)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch,
			storedIPhone(primitive.NewObjectID()),
			storedIPhone(primitive.NewObjectID()),
		), mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch, bson.D{{Key: "n", Value: int32(7)}}))

		w := do(mt, s, http.MethodGet, "/products?category=smartphones&price__gte=500&sort=-rating&limit=5", "")
		require.Equal(mt, http.StatusOK, w.Code, w.Body.String())
		assert.Len(mt, *decode[[]products.Product](mt, w).Data, 2)
		assert.Equal(mt, "7", w.Header().Get(products.TotalCountHeader))

		find := mt.GetStartedEvent()
		assert.Equal(mt, "smartphones", find.Command.Lookup("filter", "category").StringValue())
		assert.Equal(mt, 500.0, find.Command.Lookup("filter", "price", "$gte").Double())
		assert.Equal(mt, int64(-1), find.Command.Lookup("sort", "rating").AsInt64())
		assert.Equal(mt, int64(5), find.Command.Lookup("limit").AsInt64())

		count := mt.GetStartedEvent()
		require.Equal(mt, "aggregate", count.CommandName)
		match := count.Command.Lookup("pipeline", "0", "$match").Document()
		assert.Equal(mt, "smartphones", match.Lookup("category").StringValue())
	})

	mt.Run("default limit and empty result", func(mt *mtest.T) {
		s := newServer(mt)
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch),
			mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch),
		)

		w := do(mt, s, http.MethodGet, "/products", "")
		require.Equal(mt, http.StatusOK, w.Code)
		assert.JSONEq(mt, `{"messages":[],"data":[]}`, w.Body.String())
		assert.Equal(mt, int64(100), mt.GetStartedEvent().Command.Lookup("limit").AsInt64())
		assert.Equal(mt, "0", w.Header().Get(products.TotalCountHeader))
	})

	mt.Run("invalid query", func(mt *mtest.T) {
		s := newServer(mt)

		w := do(mt, s, http.MethodGet, "/products?price__gt=cheap", "")
		assert.Equal(mt, http.StatusBadRequest, w.Code)
		assert.Empty(mt, mt.GetAllStartedEvents())
	})
}

func TestHandler_Update(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("sets the given fields and returns the product", func(mt *mtest.T) {
		s := newServer(mt)
		id := primitive.NewObjectID()
		updated := storedIPhone(id)
		updated[2] = bson.E{Key: "price", Value: 499.0}
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}),
			mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch, updated),
		)

		w := do(mt, s, http.MethodPut, "/products/"+id.Hex(), `{"price": 499, "id": "ignored"}`)
		require.Equal(mt, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(mt, 499.0, decode[products.Product](mt, w).Data.Price)

		update := mt.GetStartedEvent()
		require.Equal(mt, "update", update.CommandName)
		set := update.Command.Lookup("updates", "0", "u", "$set").Document()
		assert.Equal(mt, 499.0, set.Lookup("price").Double())
		_, err := set.LookupErr("id")
		assert.Error(mt, err)
	})

	mt.Run("unknown id", func(mt *mtest.T) {
		s := newServer(mt)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}))

		w := do(mt, s, http.MethodPut, "/products/"+primitive.NewObjectID().Hex(), `{"price": 499}`)
		assert.Equal(mt, http.StatusNotFound, w.Code)
	})

	mt.Run("invalid values", func(mt *mtest.T) {
		s := newServer(mt)

		w := do(mt, s, http.MethodPut, "/products/"+primitive.NewObjectID().Hex(), `{"price": -1}`)
		assert.Equal(mt, http.StatusBadRequest, w.Code)

		w = do(mt, s, http.MethodPut, "/products/"+primitive.NewObjectID().Hex(), `{}`)
		assert.Equal(mt, http.StatusBadRequest, w.Code)
		assert.Empty(mt, mt.GetAllStartedEvents())
	})
}

func TestHandler_Delete(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("deleted", func(mt *mtest.T) {
		s := newServer(mt)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}))

		w := do(mt, s, http.MethodDelete, "/products/"+primitive.NewObjectID().Hex(), "")
		require.Equal(mt, http.StatusOK, w.Code)
		body := decode[map[string]any](mt, w)
		require.Len(mt, body.Messages, 1)
		assert.Equal(mt, "Product deleted successfully", body.Messages[0].Value)
		assert.Equal(mt, "delete", mt.GetStartedEvent().CommandName)
	})

	mt.Run("missing", func(mt *mtest.T) {
		s := newServer(mt)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}))

		w := do(mt, s, http.MethodDelete, "/products/"+primitive.NewObjectID().Hex(), "")
		assert.Equal(mt, http.StatusNotFound, w.Code)
	})
}

func TestHandler_Aggregations(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("average price by category", func(mt *mtest.T) {
		s := newServer(mt)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch,
			bson.D{{Key: "_id", Value: "laptops"}, {Key: "averagePrice", Value: 1499.5}, {Key: "count", Value: int32(2)}},
			bson.D{{Key: "_id", Value: "smartphones"}, {Key: "averagePrice", Value: 549.0}, {Key: "count", Value: int32(1)}},
		))

		w := do(mt, s, http.MethodGet, "/products/aggregation/category_price", "")
		require.Equal(mt, http.StatusOK, w.Code, w.Body.String())
		rows := *decode[[]products.CategoryAverage](mt, w).Data
		assert.Equal(mt, []products.CategoryAverage{
			{Category: "laptops", AveragePrice: 1499.5, Count: 2},
			{Category: "smartphones", AveragePrice: 549, Count: 1},
		}, rows)

		aggregate := mt.GetStartedEvent()
		require.Equal(mt, "aggregate", aggregate.CommandName)
		group := aggregate.Command.Lookup("pipeline", "0", "$group").Document()
		assert.Equal(mt, "$category", group.Lookup("_id").StringValue())
		assert.Equal(mt, "$price", group.Lookup("averagePrice", "$avg").StringValue())
		assert.Equal(mt, int64(-1), aggregate.Command.Lookup("pipeline", "1", "$sort", "averagePrice").AsInt64())
	})

	mt.Run("total price by category", func(mt *mtest.T) {
		s := newServer(mt)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch,
			bson.D{{Key: "_id", Value: "laptops"}, {Key: "totalPrice", Value: 2999.0}, {Key: "count", Value: int32(2)}},
		))

		w := do(mt, s, http.MethodGet, "/products/aggregation/category_total", "")
		require.Equal(mt, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(mt, []products.CategoryTotal{{Category: "laptops", TotalPrice: 2999, Count: 2}},
			*decode[[]products.CategoryTotal](mt, w).Data)

		aggregate := mt.GetStartedEvent()
		assert.Equal(mt, "$price", aggregate.Command.Lookup("pipeline", "0", "$group", "totalPrice", "$sum").StringValue())
	})

	mt.Run("empty collection", func(mt *mtest.T) {
		s := newServer(mt)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch))

		w := do(mt, s, http.MethodGet, "/products/aggregation/category_price", "")
		require.Equal(mt, http.StatusOK, w.Code)
		assert.JSONEq(mt, `{"messages":[],"data":[]}`, w.Body.String())
	})
}

func TestHandler_Schema(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("describes the product shape", func(mt *mtest.T) {
		s := newServer(mt)

		w := do(mt, s, http.MethodGet, "/products/schema", "")
		require.Equal(mt, http.StatusOK, w.Code)

		body := decode[map[string]any](mt, w)
		require.NotNil(mt, body.Schema)
		require.NotNil(mt, body.Schema.Title)
		assert.Equal(mt, "Product", *body.Schema.Title)
		assert.Contains(mt, body.Schema.Required, "title")
		assert.NotContains(mt, body.Schema.Required, "tags")
		assert.Empty(mt, mt.GetAllStartedEvents())
	})

	mt.Run("update view without excluded fields", func(mt *mtest.T) {
		s := newServer(mt)

		w := do(mt, s, http.MethodGet, "/products/schema?view=update&exclude=email,thumbnail", "")
		require.Equal(mt, http.StatusOK, w.Code)

		body := decode[map[string]any](mt, w)
		require.NotNil(mt, body.Schema)
		assert.Empty(mt, body.Schema.Required)
		require.NotNil(mt, body.Schema.Properties)
		assert.NotContains(mt, *body.Schema.Properties, "email")
		assert.NotContains(mt, *body.Schema.Properties, "thumbnail")
		assert.Contains(mt, *body.Schema.Properties, "price")
	})

	mt.Run("unknown view", func(mt *mtest.T) {
		s := newServer(mt)

		w := do(mt, s, http.MethodGet, "/products/schema?view=admin", "")
		assert.Equal(mt, http.StatusBadRequest, w.Code)
	})
}
