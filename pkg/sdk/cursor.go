package sdk

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"
)

type openFunc func(ctx context.Context) (*mongo.Cursor, error)

// Cursor is a lazy, single-pass sequence of results. The query is sent on the first
// call to Next, ToList or Each. A Cursor is not safe for concurrent use.
type Cursor[T any] struct {
	open       openFunc
	op         string
	collection string

	cur      *mongo.Cursor
	current  T
	err      error
	started  bool
	finished bool
}

func newCursor[T any](op, collection string, open openFunc) *Cursor[T] {
	return &Cursor[T]{open: open, op: op, collection: collection}
}

// failedCursor returns a cursor whose first read reports err.
func failedCursor[T any](op, collection string, err error) *Cursor[T] {
	return newCursor[T](op, collection, func(context.Context) (*mongo.Cursor, error) {
		return nil, err
	})
}

// Next advances to the next result, opening the cursor when needed.
func (c *Cursor[T]) Next(ctx context.Context) bool {
	if c.finished || c.err != nil {
		return false
	}
	if !c.started {
		c.started = true
		cur, err := c.open(ctx)
		if err != nil {
			c.err = err
			c.finished = true
			return false
		}
		c.cur = cur
	}
	if !c.cur.Next(ctx) {
		if err := c.cur.Err(); err != nil {
			c.err = c.wrap(err)
		}
		c.finish(ctx)
		return false
	}
	var item T
	if err := c.cur.Decode(&item); err != nil {
		c.err = c.wrap(err)
		c.finish(ctx)
		return false
	}
	c.current = item
	return true
}

// Current is the result Next moved to.
func (c *Cursor[T]) Current() T {
	return c.current
}

func (c *Cursor[T]) Err() error {
	return c.err
}

// Close releases the server-side cursor. Closing an unopened cursor marks it consumed.
func (c *Cursor[T]) Close(ctx context.Context) error {
	c.started = true
	if c.finished {
		return nil
	}
	c.finished = true
	if c.cur == nil {
		return nil
	}
	if err := c.cur.Close(ctx); err != nil {
		return c.wrap(err)
	}
	return nil
}

func (c *Cursor[T]) finish(ctx context.Context) {
	c.finished = true
	if c.cur != nil {
		_ = c.cur.Close(ctx)
	}
}

// ToList drains the cursor. It returns ErrCursorConsumed when the cursor was already read.
func (c *Cursor[T]) ToList(ctx context.Context) ([]T, error) {
	if c.started {
		return nil, ErrCursorConsumed
	}
	items := []T{}
	for c.Next(ctx) {
		items = append(items, c.current)
	}
	if c.err != nil {
		return nil, c.err
	}
	return items, nil
}

// Each calls fn for every result and stops at the first error fn returns.
func (c *Cursor[T]) Each(ctx context.Context, fn func(T) error) error {
	if c.started {
		return ErrCursorConsumed
	}
	for c.Next(ctx) {
		if err := fn(c.current); err != nil {
			_ = c.Close(ctx)
			return err
		}
	}
	return c.err
}

// Clone returns an unopened cursor that issues the same query again.
func (c *Cursor[T]) Clone() *Cursor[T] {
	return newCursor[T](c.op, c.collection, c.open)
}

func (c *Cursor[T]) wrap(err error) error {
	if _, ok := err.(*StoreError); ok {
		return err
	}
	return &StoreError{Op: c.op, Collection: c.collection, Err: err}
}
