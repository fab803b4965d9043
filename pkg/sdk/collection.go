package sdk

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// compensationTimeout bounds the cleanup of a failed InsertMany.
const compensationTimeout = 10 * time.Second

type InsertResult struct {
	InsertedID any `json:"insertedId"`
}

type InsertManyResult struct {
	InsertedIDs []any `json:"insertedIds"`
}

type UpdateResult struct {
	MatchedCount  int64 `json:"matchedCount"`
	ModifiedCount int64 `json:"modifiedCount"`
	UpsertedID    any   `json:"upsertedId,omitempty"`
}

type DeleteResult struct {
	DeletedCount int64 `json:"deletedCount"`
}

type CollectionOption func(*collectionOptions)

type collectionOptions struct {
	defaultLimit int64
}

// WithDefaultLimit caps Find results when the caller does not set a limit.
func WithDefaultLimit(n int64) CollectionOption {
	return func(o *collectionOptions) {
		o.defaultLimit = n
	}
}

type FindOption func(*findSettings)

type findSettings struct {
	sort       []SortKey
	limit      *int64
	skip       *int64
	projection bson.D
}

func WithSort(keys ...SortKey) FindOption {
	return func(s *findSettings) {
		s.sort = append(s.sort, keys...)
	}
}

func WithLimit(n int64) FindOption {
	return func(s *findSettings) {
		s.limit = &n
	}
}

func WithSkip(n int64) FindOption {
	return func(s *findSettings) {
		s.skip = &n
	}
}

// WithProjection restricts the returned fields, e.g. bson.D{{Key: "title", Value: 1}}.
func WithProjection(projection bson.D) FindOption {
	return func(s *findSettings) {
		s.projection = projection
	}
}

// Collection is a typed accessor bound to one shape and one collection name.
// It is safe for concurrent use.
type Collection[T any] struct {
	db           *Database
	name         string
	shape        *Shape
	defaultLimit int64
	logger       *Logger
}

// Bind declares that the named collection holds records of the given shape.
// Binding a different shape to an already bound name is a *SchemaError.
func Bind[T any](db *Database, name string, shape *Shape, opts ...CollectionOption) (*Collection[T], error) {
	if db == nil {
		return nil, fmt.Errorf("cannot bind collection %q: database handle is nil", name)
	}
	if shape == nil {
		return nil, &SchemaError{Shape: "", Reason: fmt.Sprintf("collection %q requires a shape", name)}
	}
	if strings.TrimSpace(name) == "" || strings.Contains(name, "$") || strings.HasPrefix(name, "system.") {
		return nil, &SchemaError{Shape: shape.Name(), Reason: fmt.Sprintf("invalid collection name %q", name)}
	}
	settings := collectionOptions{}
	for _, opt := range opts {
		opt(&settings)
	}
	if settings.defaultLimit < 0 {
		return nil, fmt.Errorf("default limit for %q must not be negative", name)
	}
	if err := db.register(name, shape); err != nil {
		return nil, err
	}
	return &Collection[T]{
		db:           db,
		name:         name,
		shape:        shape,
		defaultLimit: settings.defaultLimit,
		logger:       db.Logger().With(LogContext{Collection: name}),
	}, nil
}

func (c *Collection[T]) Name() string {
	return c.name
}

func (c *Collection[T]) Shape() *Shape {
	return c.shape
}

func (c *Collection[T]) Database() *Database {
	return c.db
}

// prepare converts and validates one value for insertion.
func (c *Collection[T]) prepare(value any) (Document, error) {
	doc, err := toDocument(value)
	if err != nil {
		vs := &violations{shape: c.shape.Name()}
		vs.add("", err.Error())
		return nil, vs.err()
	}
	return c.shape.Validate(doc)
}

// Insert validates the value and writes it. A missing _id is generated.
func (c *Collection[T]) Insert(ctx context.Context, value T) (*InsertResult, error) {
	return c.insert(ctx, value)
}

// InsertDocument inserts an untyped document, such as a decoded request body,
// under the same validation as Insert.
func (c *Collection[T]) InsertDocument(ctx context.Context, doc Document) (*InsertResult, error) {
	return c.insert(ctx, doc)
}

func (c *Collection[T]) insert(ctx context.Context, value any) (result *InsertResult, err error) {
	const op = "insert"
	start := time.Now()
	defer func() { c.done(op, start, err, nil) }()

	doc, err := c.prepare(value)
	if err != nil {
		return nil, err
	}
	id, _ := ensureID(doc)

	coll, err := c.db.collection(ctx, c.name)
	if err != nil {
		return nil, c.storeError(op, nil, nil, err)
	}
	if _, err := coll.InsertOne(ctx, doc); err != nil {
		return nil, c.storeError(op, nil, nil, err)
	}
	return &InsertResult{InsertedID: id}, nil
}

// InsertMany is all-or-nothing: every value is validated before anything is written,
// and a store failure removes the documents that were already written.
func (c *Collection[T]) InsertMany(ctx context.Context, values []T) (result *InsertManyResult, err error) {
	const op = "insertMany"
	start := time.Now()
	defer func() { c.done(op, start, err, map[string]interface{}{"count": len(values)}) }()

	vs := &violations{shape: c.shape.Name()}
	docs := make([]any, 0, len(values))
	ids := make([]any, 0, len(values))
	generated := make([]bool, 0, len(values))
	for i, value := range values {
		doc, err := c.prepare(value)
		if err != nil {
			var ve *ValidationError
			if errors.As(err, &ve) {
				vs.merge(fmt.Sprintf("[%d]", i), ve)
			} else {
				vs.add(fmt.Sprintf("[%d]", i), err.Error())
			}
			continue
		}
		id, isNew := ensureID(doc)
		docs = append(docs, doc)
		ids = append(ids, id)
		generated = append(generated, isNew)
	}
	if err := vs.err(); err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return &InsertManyResult{InsertedIDs: []any{}}, nil
	}

	coll, err := c.db.collection(ctx, c.name)
	if err != nil {
		return nil, c.storeError(op, nil, nil, err)
	}
	if _, err := coll.InsertMany(ctx, docs, options.InsertMany().SetOrdered(true)); err != nil {
		storeErr := &StoreError{Op: op, Collection: c.name, Err: err}
		written, uncertain := appliedIDs(err, ids, generated)
		storeErr.Orphaned = append(c.compensate(ctx, coll, written), uncertain...)
		return nil, storeErr
	}
	return &InsertManyResult{InsertedIDs: ids}, nil
}

// appliedIDs splits the ids of a failed ordered insert into those to remove and those
// that may or may not have been written. When the failure point is unknown, ids
// generated here are removed, while caller-supplied ids are left alone since they
// may name documents that existed before the call.
func appliedIDs(err error, ids []any, generated []bool) (written, uncertain []any) {
	var bwe mongo.BulkWriteException
	if errors.As(err, &bwe) {
		if len(bwe.WriteErrors) == 0 {
			return ids, nil
		}
		first := len(ids)
		for _, we := range bwe.WriteErrors {
			if we.Index < first {
				first = we.Index
			}
		}
		return ids[:first], nil
	}
	for i, id := range ids {
		if generated[i] {
			written = append(written, id)
		} else {
			uncertain = append(uncertain, id)
		}
	}
	return written, uncertain
}

// compensate deletes the given ids and returns those that may remain.
func (c *Collection[T]) compensate(ctx context.Context, coll *mongo.Collection, ids []any) []any {
	if len(ids) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	res, err := coll.DeleteMany(ctx, bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: ids}}}})
	logger := c.logger.With(LogContext{Operation: "insertMany"})
	if err != nil {
		logger.ErrorWithFields("Failed to roll back partial insert", map[string]interface{}{
			"ids":   idStrings(ids),
			"error": err.Error(),
		})
		return ids
	}
	logger.WarnWithFields("Rolled back partial insert", map[string]interface{}{
		"requested": len(ids),
		"deleted":   res.DeletedCount,
	})
	return nil
}

func idStrings(ids []any) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = IDString(id)
	}
	return out
}

// Find returns a lazy cursor; the query is sent on the first read.
func (c *Collection[T]) Find(filter Filter, opts ...FindOption) *Cursor[T] {
	const op = "find"
	settings := findSettings{}
	for _, opt := range opts {
		opt(&settings)
	}
	if err := settings.validate(c.shape.Name()); err != nil {
		c.done(op, time.Now(), err, nil)
		return failedCursor[T](op, c.name, err)
	}
	rendered := filter.render(c.shape)
	findOpts := options.Find()
	if len(settings.sort) > 0 {
		findOpts.SetSort(sortDocument(settings.sort))
	}
	switch {
	case settings.limit != nil && *settings.limit > 0:
		findOpts.SetLimit(*settings.limit)
	case settings.limit == nil && c.defaultLimit > 0:
		findOpts.SetLimit(c.defaultLimit)
	}
	if settings.skip != nil {
		findOpts.SetSkip(*settings.skip)
	}
	if settings.projection != nil {
		findOpts.SetProjection(settings.projection)
	}

	return newCursor[T](op, c.name, func(ctx context.Context) (cur *mongo.Cursor, err error) {
		start := time.Now()
		defer func() { c.done(op, start, err, map[string]interface{}{"filter": fmt.Sprint(rendered)}) }()

		coll, err := c.db.collection(ctx, c.name)
		if err != nil {
			return nil, c.storeError(op, rendered, nil, err)
		}
		cur, err = coll.Find(ctx, rendered, findOpts)
		if err != nil {
			return nil, c.storeError(op, rendered, nil, err)
		}
		return cur, nil
	})
}

func (s findSettings) validate(shape string) error {
	vs := &violations{shape: shape}
	if s.limit != nil && *s.limit < 0 {
		vs.add("limit", "must not be negative")
	}
	if s.skip != nil && *s.skip < 0 {
		vs.add("skip", "must not be negative")
	}
	return vs.err()
}

// FindOne returns the first match, or nil without error when nothing matches.
func (c *Collection[T]) FindOne(ctx context.Context, filter Filter, opts ...FindOption) (result *T, err error) {
	const op = "findOne"
	start := time.Now()
	defer func() { c.done(op, start, err, nil) }()

	settings := findSettings{}
	for _, opt := range opts {
		opt(&settings)
	}
	if err := settings.validate(c.shape.Name()); err != nil {
		return nil, err
	}
	findOpts := options.FindOne()
	if len(settings.sort) > 0 {
		findOpts.SetSort(sortDocument(settings.sort))
	}
	if settings.skip != nil {
		findOpts.SetSkip(*settings.skip)
	}
	if settings.projection != nil {
		findOpts.SetProjection(settings.projection)
	}

	rendered := filter.render(c.shape)
	coll, err := c.db.collection(ctx, c.name)
	if err != nil {
		return nil, c.storeError(op, rendered, nil, err)
	}
	var model T
	if err := coll.FindOne(ctx, rendered, findOpts).Decode(&model); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, c.storeError(op, rendered, nil, err)
	}
	return &model, nil
}

// FindByID looks a record up by _id. Hex strings are matched as ObjectIDs.
func (c *Collection[T]) FindByID(ctx context.Context, id any) (*T, error) {
	return c.FindOne(ctx, ByID(id))
}

// UpdateOne applies the update to the first match. Set values are validated like inserts.
func (c *Collection[T]) UpdateOne(ctx context.Context, filter Filter, update Update) (*UpdateResult, error) {
	return c.update(ctx, "updateOne", filter, update)
}

func (c *Collection[T]) UpdateMany(ctx context.Context, filter Filter, update Update) (*UpdateResult, error) {
	return c.update(ctx, "updateMany", filter, update)
}

func (c *Collection[T]) update(ctx context.Context, op string, filter Filter, update Update) (result *UpdateResult, err error) {
	start := time.Now()
	defer func() { c.done(op, start, err, nil) }()

	validated, err := update.validate(c.shape)
	if err != nil {
		return nil, err
	}
	rendered := filter.render(c.shape)
	body := validated.BSON()

	coll, err := c.db.collection(ctx, c.name)
	if err != nil {
		return nil, c.storeError(op, rendered, body, err)
	}
	var res *mongo.UpdateResult
	if op == "updateOne" {
		res, err = coll.UpdateOne(ctx, rendered, body)
	} else {
		res, err = coll.UpdateMany(ctx, rendered, body)
	}
	if err != nil {
		return nil, c.storeError(op, rendered, body, err)
	}
	return &UpdateResult{MatchedCount: res.MatchedCount, ModifiedCount: res.ModifiedCount, UpsertedID: res.UpsertedID}, nil
}

// DeleteOne removes the first match. Zero matches is not an error.
func (c *Collection[T]) DeleteOne(ctx context.Context, filter Filter) (*DeleteResult, error) {
	return c.delete(ctx, "deleteOne", filter)
}

func (c *Collection[T]) DeleteMany(ctx context.Context, filter Filter) (*DeleteResult, error) {
	return c.delete(ctx, "deleteMany", filter)
}

func (c *Collection[T]) delete(ctx context.Context, op string, filter Filter) (result *DeleteResult, err error) {
	start := time.Now()
	defer func() { c.done(op, start, err, nil) }()

	rendered := filter.render(c.shape)
	coll, err := c.db.collection(ctx, c.name)
	if err != nil {
		return nil, c.storeError(op, rendered, nil, err)
	}
	var res *mongo.DeleteResult
	if op == "deleteOne" {
		res, err = coll.DeleteOne(ctx, rendered)
	} else {
		res, err = coll.DeleteMany(ctx, rendered)
	}
	if err != nil {
		return nil, c.storeError(op, rendered, nil, err)
	}
	return &DeleteResult{DeletedCount: res.DeletedCount}, nil
}

// Count returns the number of documents matching the filter.
func (c *Collection[T]) Count(ctx context.Context, filter Filter) (n int64, err error) {
	const op = "count"
	start := time.Now()
	defer func() { c.done(op, start, err, nil) }()

	rendered := filter.render(c.shape)
	coll, err := c.db.collection(ctx, c.name)
	if err != nil {
		return 0, c.storeError(op, rendered, nil, err)
	}
	n, err = coll.CountDocuments(ctx, rendered)
	if err != nil {
		return 0, c.storeError(op, rendered, nil, err)
	}
	return n, nil
}

// Aggregate runs the pipeline in the store and yields untyped documents.
func (c *Collection[T]) Aggregate(pipeline Pipeline) *Cursor[Document] {
	return AggregateAs[Document](c, pipeline)
}

// AggregateAs runs the pipeline and decodes each output document into R.
func AggregateAs[R any, T any](c *Collection[T], pipeline Pipeline) *Cursor[R] {
	const op = "aggregate"
	stages := pipeline.render(c.shape)
	return newCursor[R](op, c.name, func(ctx context.Context) (cur *mongo.Cursor, err error) {
		start := time.Now()
		defer func() { c.done(op, start, err, map[string]interface{}{"stages": len(stages)}) }()

		coll, err := c.db.collection(ctx, c.name)
		if err != nil {
			return nil, c.storeError(op, nil, nil, err)
		}
		cur, err = coll.Aggregate(ctx, stages)
		if err != nil {
			return nil, c.storeError(op, stages, nil, err)
		}
		return cur, nil
	})
}

func (c *Collection[T]) storeError(op string, filter, update any, err error) error {
	return &StoreError{Op: op, Collection: c.name, Filter: filter, Update: update, Err: err}
}

// done records metrics and logs the outcome of one operation.
func (c *Collection[T]) done(op string, start time.Time, err error, fields map[string]interface{}) {
	observe(c.name, op, start, err)

	logger := c.logger.With(LogContext{Operation: op})
	entry := map[string]interface{}{"duration_ms": time.Since(start).Milliseconds()}
	for k, v := range fields {
		entry[k] = v
	}
	switch {
	case err == nil:
		logger.DebugWithFields("Operation completed", entry)
	case IsValidationError(err):
		entry["error"] = err.Error()
		logger.WarnWithFields("Operation rejected", entry)
	default:
		entry["error"] = err.Error()
		logger.ErrorWithFields("Operation failed", entry)
	}
}
