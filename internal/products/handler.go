package products

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mattiabonardi/endor-odm-go/pkg/sdk"
	"github.com/mattiabonardi/endor-odm-go/pkg/sdk_server"
)

const deletedMessage = "Product deleted successfully"

// TotalCountHeader carries the number of products matching a list filter, ignoring
// limit and skip.
const TotalCountHeader = "X-Total-Count"

// Handler exposes the products collection over HTTP.
type Handler struct {
	repository *Repository
}

func NewHandler(repository *Repository) *Handler {
	return &Handler{repository: repository}
}

func (h *Handler) Route(r *gin.RouterGroup) {
	group := r.Group("/products")
	group.POST("", sdk_server.Dispatch(h.create))
	group.GET("", h.list)
	group.GET("/schema", h.schema)
	group.GET("/aggregation/category_price", h.averagePrice)
	group.GET("/aggregation/category_total", h.totalPrice)
	group.GET("/:id", h.get)
	group.PUT("/:id", sdk_server.Dispatch(h.update))
	group.DELETE("/:id", h.delete)
}

func (h *Handler) create(body map[string]any, c *gin.Context) {
	ctx := sdk_server.Context(c)
	delete(body, "id")
	product, err := h.repository.Create(c.Request.Context(), sdk.Document(body))
	if err != nil {
		ctx.Fail(err)
		return
	}
	if product == nil {
		ctx.Fail(errors.New("inserted product could not be read back"))
		return
	}
	ctx.Logger.InfoWithFields("Product created", map[string]interface{}{"id": product.ID.String()})
	sdk_server.Created(c, *product)
}

func (h *Handler) list(c *gin.Context) {
	ctx := sdk_server.Context(c)
	filter, opts, err := listQuery(h.repository.Shape(), c.Request.URL.Query())
	if err != nil {
		ctx.Fail(err)
		return
	}
	products, err := h.repository.List(c.Request.Context(), filter, opts...)
	if err != nil {
		ctx.Fail(err)
		return
	}
	total, err := h.repository.Count(c.Request.Context(), filter)
	if err != nil {
		ctx.Fail(err)
		return
	}
	if products == nil {
		products = []Product{}
	}
	c.Header(TotalCountHeader, strconv.FormatInt(total, 10))
	sdk_server.End(c, products)
}

func (h *Handler) get(c *gin.Context) {
	ctx := sdk_server.Context(c)
	product, err := h.repository.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		ctx.Fail(err)
		return
	}
	if product == nil {
		ctx.Fail(sdk_server.ErrNotFound)
		return
	}
	sdk_server.End(c, *product)
}

func (h *Handler) update(body map[string]any, c *gin.Context) {
	ctx := sdk_server.Context(c)
	delete(body, "id")
	if len(body) == 0 {
		ctx.Fail(&sdk.ValidationError{Shape: ProductShape.Name(), Violations: []sdk.FieldViolation{{Reason: "no fields to update"}}})
		return
	}
	product, err := h.repository.Update(c.Request.Context(), c.Param("id"), sdk.Document(body))
	if err != nil {
		ctx.Fail(err)
		return
	}
	if product == nil {
		ctx.Fail(sdk_server.ErrNotFound)
		return
	}
	sdk_server.End(c, *product)
}

func (h *Handler) delete(c *gin.Context) {
	ctx := sdk_server.Context(c)
	deleted, err := h.repository.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		ctx.Fail(err)
		return
	}
	if !deleted {
		ctx.Fail(sdk_server.ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, sdk_server.MessageResponse(sdk_server.ResponseMessageGravityInfo, deletedMessage))
}

func (h *Handler) averagePrice(c *gin.Context) {
	rows, err := h.repository.AveragePriceByCategory(c.Request.Context())
	if err != nil {
		sdk_server.Context(c).Fail(err)
		return
	}
	if rows == nil {
		rows = []CategoryAverage{}
	}
	sdk_server.End(c, rows)
}

func (h *Handler) totalPrice(c *gin.Context) {
	rows, err := h.repository.TotalPriceByCategory(c.Request.Context())
	if err != nil {
		sdk_server.Context(c).Fail(err)
		return
	}
	if rows == nil {
		rows = []CategoryTotal{}
	}
	sdk_server.End(c, rows)
}

// schema serves the product schema. ?view=update describes PUT bodies and
// ?exclude=a,b hides fields.
func (h *Handler) schema(c *gin.Context) {
	schema := h.repository.Shape().RootSchema()
	switch view := c.Query("view"); view {
	case "", "create":
	case "update":
		schema.Apply(sdk.Partial())
	default:
		sdk_server.Context(c).Fail(&sdk.ValidationError{Shape: "query", Violations: []sdk.FieldViolation{{Field: "view", Reason: "must be create or update"}}})
		return
	}
	if exclude := c.Query("exclude"); exclude != "" {
		schema.Apply(sdk.Forbid(strings.Split(exclude, ",")...))
	}
	c.JSON(http.StatusOK, sdk_server.NewResponseBuilder[map[string]any]().AddSchema(schema).Build())
}
