package sdk_server

import (
	"net/http"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mattiabonardi/endor-odm-go/pkg/sdk"
)

const (
	responseSchemaName = "Response"
	openAPIPath        = "/openapi.json"
	updateSchemaSuffix = "Update"
)

type OpenAPIConfiguration struct {
	OpenAPI    string                                 `json:"openapi"`
	Info       OpenAPIInfo                            `json:"info"`
	Servers    []OpenAPIServer                        `json:"servers"`
	Tags       []OpenAPITag                           `json:"tags"`
	Paths      map[string]map[string]OpenAPIOperation `json:"paths"`
	Components OpenAPIComponents                      `json:"components"`
}

type OpenAPITag struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type OpenAPIInfo struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Version     string `json:"version"`
}

type OpenAPIServer struct {
	URL string `json:"url"`
}

type OpenAPIOperation struct {
	Summary     string              `json:"summary,omitempty"`
	Tags        []string            `json:"tags,omitempty"`
	OperationID string              `json:"operationId,omitempty"`
	Parameters  []OpenAPIParameter  `json:"parameters"`
	RequestBody *OpenAPIRequestBody `json:"requestBody,omitempty"`
	Responses   OpenAPIResponses    `json:"responses"`
}

type OpenAPIParameter struct {
	Name     string     `json:"name"`
	In       string     `json:"in"`
	Schema   sdk.Schema `json:"schema"`
	Required bool       `json:"required"`
}

type OpenAPIRequestBody struct {
	Content  map[string]OpenAPIMediaType `json:"content"`
	Required bool                        `json:"required,omitempty"`
}

type OpenAPIMediaType struct {
	Schema sdk.Schema `json:"schema"`
}

type OpenAPIComponents struct {
	Schemas map[string]sdk.Schema `json:"schemas"`
}

type OpenAPIResponse struct {
	Description string                      `json:"description"`
	Content     map[string]OpenAPIMediaType `json:"content"`
}

type OpenAPIResponses map[string]OpenAPIResponse

func componentRef(name string) sdk.Schema {
	return sdk.Schema{Reference: "#/components/schemas/" + name}
}

func jsonContent(schema sdk.Schema) map[string]OpenAPIMediaType {
	return map[string]OpenAPIMediaType{"application/json": {Schema: schema}}
}

// NewOpenAPIDefinition describes the given routes. Routes under a bound collection
// ("/products/...") are tagged with it. POST bodies reference the collection shape,
// PUT and PATCH bodies its partial "<Shape>Update" form.
func NewOpenAPIDefinition(title string, routes gin.RoutesInfo, shapes map[string]*sdk.Shape) OpenAPIConfiguration {
	gravity := []string{
		string(ResponseMessageGravityInfo),
		string(ResponseMessageGravityWarning),
		string(ResponseMessageGravityError),
		string(ResponseMessageGravityFatal),
	}
	definition := OpenAPIConfiguration{
		OpenAPI: "3.1.0",
		Info: OpenAPIInfo{
			Title:       title,
			Description: title + " docs",
			Version:     "v1",
		},
		Servers: []OpenAPIServer{{URL: "/"}},
		Tags:    []OpenAPITag{},
		Paths:   map[string]map[string]OpenAPIOperation{},
		Components: OpenAPIComponents{
			Schemas: map[string]sdk.Schema{
				responseSchemaName: {
					Type: sdk.SchemaTypeObject,
					Properties: &map[string]sdk.Schema{
						"messages": {
							Type: sdk.SchemaTypeArray,
							Items: &sdk.Schema{
								Type: sdk.SchemaTypeObject,
								Properties: &map[string]sdk.Schema{
									"gravity": {Type: sdk.SchemaTypeString, Enum: &gravity},
									"value":   {Type: sdk.SchemaTypeString},
								},
							},
						},
						"data":   {},
						"schema": {Type: sdk.SchemaTypeObject},
					},
				},
			},
		},
	}

	collections := make([]string, 0, len(shapes))
	for collection, shape := range shapes {
		collections = append(collections, collection)
		definition.Components.Schemas[shape.Name()] = shape.RootSchema().Schema
		definition.Components.Schemas[shape.Name()+updateSchemaSuffix] = shape.RootSchema().Apply(sdk.Partial()).Schema
	}
	sort.Strings(collections)
	for _, collection := range collections {
		definition.Tags = append(definition.Tags, OpenAPITag{Name: collection, Description: shapes[collection].Name() + " records"})
	}

	for _, route := range routes {
		path, params := openAPIPathOf(route.Path)
		segment := strings.Split(strings.TrimPrefix(route.Path, "/"), "/")[0]
		operation := OpenAPIOperation{
			OperationID: strings.ToLower(route.Method) + " " + path,
			Parameters:  params,
			Responses: OpenAPIResponses{
				"default": {Description: "Default response", Content: jsonContent(componentRef(responseSchemaName))},
			},
		}
		if shape, ok := shapes[segment]; ok {
			operation.Tags = []string{segment}
			switch route.Method {
			case http.MethodPost:
				operation.RequestBody = &OpenAPIRequestBody{Content: jsonContent(componentRef(shape.Name())), Required: true}
			case http.MethodPut, http.MethodPatch:
				operation.RequestBody = &OpenAPIRequestBody{Content: jsonContent(componentRef(shape.Name() + updateSchemaSuffix)), Required: true}
			}
		}
		if definition.Paths[path] == nil {
			definition.Paths[path] = map[string]OpenAPIOperation{}
		}
		definition.Paths[path][strings.ToLower(route.Method)] = operation
	}
	return definition
}

// openAPIPathOf turns "/products/:id" into "/products/{id}".
func openAPIPathOf(ginPath string) (string, []OpenAPIParameter) {
	params := []OpenAPIParameter{}
	segments := strings.Split(ginPath, "/")
	for i, segment := range segments {
		if len(segment) < 2 || (segment[0] != ':' && segment[0] != '*') {
			continue
		}
		name := segment[1:]
		segments[i] = "{" + name + "}"
		params = append(params, OpenAPIParameter{
			Name:     name,
			In:       "path",
			Schema:   sdk.Schema{Type: sdk.SchemaTypeString},
			Required: true,
		})
	}
	return strings.Join(segments, "/"), params
}

func (s *Server) openAPI(c *gin.Context) {
	var shapes map[string]*sdk.Shape
	if s.db != nil {
		shapes = s.db.Shapes()
	}
	c.JSON(http.StatusOK, NewOpenAPIDefinition(s.title, s.router.Routes(), shapes))
}
