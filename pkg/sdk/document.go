package sdk

import (
	"fmt"
	"reflect"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/x/bsonx/bsoncore"
)

// Document is the untyped record as stored.
type Document = bson.M

// ObjectID is a string holding a hex ObjectID. It is stored as a native ObjectID and
// serialized as a plain string in JSON, which keeps API models free of driver types.
type ObjectID string

func (id ObjectID) String() string {
	return string(id)
}

func (id ObjectID) IsEmpty() bool {
	return string(id) == ""
}

func (id ObjectID) IsValid() bool {
	return primitive.IsValidObjectID(string(id))
}

// ToPrimitiveObjectID returns an error if the string is not a valid ObjectID hex string
func (id ObjectID) ToPrimitiveObjectID() (primitive.ObjectID, error) {
	return primitive.ObjectIDFromHex(string(id))
}

func NewObjectID(oid primitive.ObjectID) ObjectID {
	return ObjectID(oid.Hex())
}

func GenerateObjectID() ObjectID {
	return ObjectID(primitive.NewObjectID().Hex())
}

// MarshalBSONValue implements the bsoncodec.ValueMarshaler interface
func (id ObjectID) MarshalBSONValue() (bsontype.Type, []byte, error) {
	if id.IsEmpty() {
		return bsontype.Null, nil, nil
	}

	oid, err := primitive.ObjectIDFromHex(string(id))
	if err != nil {
		return bsontype.Null, nil, err
	}

	return bsontype.ObjectID, bsoncore.AppendObjectID(nil, oid), nil
}

// UnmarshalBSONValue implements the bsoncodec.ValueUnmarshaler interface
func (id *ObjectID) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	switch t {
	case bsontype.Null:
		*id = ""
		return nil
	case bsontype.ObjectID:
		oid, _, ok := bsoncore.ReadObjectID(data)
		if !ok {
			return ErrInvalidBSONType
		}
		*id = ObjectID(oid.Hex())
		return nil
	case bsontype.String:
		s, _, ok := bsoncore.ReadString(data)
		if !ok {
			return ErrInvalidBSONType
		}
		*id = ObjectID(s)
		return nil
	}
	return ErrInvalidBSONType
}

// ErrInvalidBSONType is returned when unmarshaling ObjectID from an invalid BSON type
var ErrInvalidBSONType = fmt.Errorf("invalid BSON type for ObjectID")

// toDocument converts a typed value or a map into a fresh Document.
func toDocument(value any) (Document, error) {
	switch v := value.(type) {
	case nil:
		return nil, fmt.Errorf("cannot convert nil to a document")
	case Document:
		return cloneDocument(v), nil
	case map[string]any:
		return cloneDocument(Document(v)), nil
	case bson.D:
		doc, _ := documentOf(v)
		return doc, nil
	}
	if rv := reflect.ValueOf(value); rv.Kind() == reflect.Pointer && rv.IsNil() {
		return nil, fmt.Errorf("cannot convert nil %T to a document", value)
	}

	data, err := bson.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %T: %w", value, err)
	}
	var doc Document
	if err := bson.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %T to document: %w", value, err)
	}
	return doc, nil
}

// fromDocument decodes a stored document into T.
func fromDocument[T any](doc Document) (T, error) {
	var model T
	data, err := bson.Marshal(doc)
	if err != nil {
		return model, fmt.Errorf("failed to marshal raw document: %w", err)
	}
	if err := bson.Unmarshal(data, &model); err != nil {
		return model, fmt.Errorf("failed to unmarshal to %T: %w", model, err)
	}
	return model, nil
}

// helper shallow copy
func cloneDocument(src Document) Document {
	dst := make(Document, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// ensureID assigns a new ObjectID when the document has no usable _id and reports
// whether it did so.
func ensureID(doc Document) (any, bool) {
	switch id := doc["_id"].(type) {
	case nil:
	case string:
		if id != "" {
			doc["_id"] = toStorageID(id)
			return doc["_id"], false
		}
	case ObjectID:
		if !id.IsEmpty() {
			doc["_id"] = toStorageID(id)
			return doc["_id"], false
		}
	case primitive.ObjectID:
		if !id.IsZero() {
			return id, false
		}
	default:
		return id, false
	}
	oid := primitive.NewObjectID()
	doc["_id"] = oid
	return oid, true
}

// toStorageID maps hex strings to native ObjectIDs. Any other value is a custom id
// and is stored unchanged.
func toStorageID(id any) any {
	switch v := id.(type) {
	case string:
		if oid, err := primitive.ObjectIDFromHex(v); err == nil {
			return oid
		}
	case ObjectID:
		if oid, err := v.ToPrimitiveObjectID(); err == nil {
			return oid
		}
		return string(v)
	}
	return id
}

// IDString renders a stored identifier as a string.
func IDString(id any) string {
	switch v := id.(type) {
	case primitive.ObjectID:
		return v.Hex()
	case ObjectID:
		return string(v)
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}
