package sdk_server

import "github.com/mattiabonardi/endor-odm-go/pkg/sdk"

// Response is the JSON envelope of every endpoint. Data holds the decoded record or
// list, Schema is set by schema endpoints, and Messages carry failures and notices.
type Response[T any] struct {
	Messages []ResponseMessage `json:"messages"`
	Data     *T                `json:"data"`
	Schema   *sdk.RootSchema   `json:"schema,omitempty"`
}

type ResponseBuilder[T any] struct {
	response Response[T]
}

func NewResponseBuilder[T any]() *ResponseBuilder[T] {
	return &ResponseBuilder[T]{
		response: Response[T]{
			Messages: []ResponseMessage{},
		},
	}
}

// NewDefaultResponseBuilder builds envelopes that carry no record.
func NewDefaultResponseBuilder() *ResponseBuilder[map[string]any] {
	return NewResponseBuilder[map[string]any]()
}

func (b *ResponseBuilder[T]) AddMessage(message ResponseMessage) *ResponseBuilder[T] {
	b.response.Messages = append(b.response.Messages, message)
	return b
}

func (b *ResponseBuilder[T]) AddData(data *T) *ResponseBuilder[T] {
	b.response.Data = data
	return b
}

func (b *ResponseBuilder[T]) AddSchema(schema *sdk.RootSchema) *ResponseBuilder[T] {
	b.response.Schema = schema
	return b
}

func (b *ResponseBuilder[T]) Build() *Response[T] {
	return &b.response
}

// DataResponse wraps a decoded record or list.
func DataResponse[T any](data T) *Response[T] {
	return NewResponseBuilder[T]().AddData(&data).Build()
}

// MessageResponse carries a single message and no record.
func MessageResponse(gravity ResponseMessageGravity, value string) *Response[map[string]any] {
	return NewDefaultResponseBuilder().AddMessage(NewMessage(gravity, value)).Build()
}

type ResponseMessage struct {
	Gravity ResponseMessageGravity `json:"gravity"`
	Value   string                 `json:"value"`
	// Violations lists the rejected fields of a validation failure.
	Violations []sdk.FieldViolation `json:"violations,omitempty"`
}

// ResponseMessageGravity ranks a message. Store and validation failures are Error,
// unknown routes and internal faults are Fatal.
type ResponseMessageGravity string

const (
	ResponseMessageGravityInfo    ResponseMessageGravity = "Info"
	ResponseMessageGravityWarning ResponseMessageGravity = "Warning"
	ResponseMessageGravityError   ResponseMessageGravity = "Error"
	ResponseMessageGravityFatal   ResponseMessageGravity = "Fatal"
)

func NewMessage(gravity ResponseMessageGravity, value string) ResponseMessage {
	return ResponseMessage{
		Gravity: gravity,
		Value:   value,
	}
}

// NewViolationMessage reports a rejected document with one entry per offending field.
func NewViolationMessage(err *sdk.ValidationError) ResponseMessage {
	message := NewMessage(ResponseMessageGravityError, err.Error())
	message.Violations = err.Violations
	return message
}
