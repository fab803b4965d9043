package sdk

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mattiabonardi/endor-odm-go/pkg/sdk_configuration"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Database is the shared handle to one database. The native client is created on first
// use, at most once, and every collection bound to the handle shares its pool.
type Database struct {
	name    string
	uri     string
	opts    *options.ClientOptions
	logger  *Logger
	timeout time.Duration

	mu     sync.Mutex
	client *mongo.Client
	owned  bool
	closed bool
	shapes map[string]*Shape
}

// NewDatabase validates the configuration without dialing the store.
func NewDatabase(cfg sdk_configuration.DocumentDBConfig, logger *Logger) (*Database, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = NopLogger()
	}
	redacted := cfg.RedactedURI()
	opts := options.Client().
		ApplyURI(cfg.ConnectionURI()).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetServerSelectionTimeout(cfg.ConnectTimeout)
	if err := opts.Validate(); err != nil {
		return nil, &ConnectionError{URI: redacted, Err: errors.Wrap(err, "invalid connection uri")}
	}
	if cfg.Username != "" {
		opts.SetAuth(options.Credential{
			Username:   cfg.Username,
			Password:   cfg.Password,
			AuthSource: cfg.AuthSource,
		})
	}
	return &Database{
		name:    cfg.Database,
		uri:     redacted,
		timeout: cfg.ConnectTimeout,
		opts:    opts,
		logger:  logger.With(LogContext{Database: cfg.Database}),
		owned:   true,
		shapes:  map[string]*Shape{},
	}, nil
}

// NewDatabaseFromClient adopts an already connected client. Close leaves it connected.
func NewDatabaseFromClient(client *mongo.Client, name string, logger *Logger) *Database {
	if logger == nil {
		logger = NopLogger()
	}
	return &Database{
		name:    name,
		uri:     "<external client>",
		timeout: sdk_configuration.DefaultConnectTimeout,
		logger:  logger.With(LogContext{Database: name}),
		client:  client,
		shapes:  map[string]*Shape{},
	}
}

func (d *Database) Name() string {
	return d.name
}

func (d *Database) Logger() *Logger {
	return d.logger
}

// Client returns the shared client, connecting and pinging it on first use.
// A failed attempt is not remembered, so a later call may succeed.
func (d *Database) Client(ctx context.Context) (*mongo.Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, &ConnectionError{URI: d.uri, Err: ErrDatabaseClosed}
	}
	if d.client != nil {
		return d.client, nil
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, d.opts)
	if err != nil {
		d.logger.ErrorWithFields("Failed to connect", map[string]interface{}{"uri": d.uri, "error": err.Error()})
		return nil, &ConnectionError{URI: d.uri, Err: errors.Wrap(err, "connect")}
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		d.logger.ErrorWithFields("Failed to reach the document store", map[string]interface{}{"uri": d.uri, "error": err.Error()})
		return nil, &ConnectionError{URI: d.uri, Err: errors.Wrap(err, "ping")}
	}
	d.client = client
	d.logger.InfoWithFields("Document store connected successfully", map[string]interface{}{"uri": d.uri})
	return client, nil
}

// Connect establishes the connection eagerly, typically at startup.
func (d *Database) Connect(ctx context.Context) error {
	_, err := d.Client(ctx)
	return err
}

// Ping checks that the store answers, connecting first if needed.
func (d *Database) Ping(ctx context.Context) error {
	d.mu.Lock()
	client, closed := d.client, d.closed
	d.mu.Unlock()
	if closed {
		return &ConnectionError{URI: d.uri, Err: ErrDatabaseClosed}
	}
	if client == nil {
		_, err := d.Client(ctx)
		return err
	}
	if err := client.Ping(ctx, nil); err != nil {
		return &ConnectionError{URI: d.uri, Err: errors.Wrap(err, "ping")}
	}
	return nil
}

// Close disconnects an owned client. It is safe to call more than once; every later
// operation fails with ErrDatabaseClosed.
func (d *Database) Close(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	client := d.client
	d.client = nil
	if client == nil || !d.owned {
		return nil
	}
	if err := client.Disconnect(ctx); err != nil {
		return &ConnectionError{URI: d.uri, Err: errors.Wrap(err, "disconnect")}
	}
	d.logger.Info("Document store disconnected")
	return nil
}

// Drop removes the whole database. Meant for test fixtures.
func (d *Database) Drop(ctx context.Context) error {
	client, err := d.Client(ctx)
	if err != nil {
		return err
	}
	if err := client.Database(d.name).Drop(ctx); err != nil {
		return &StoreError{Op: "drop", Collection: d.name, Err: err}
	}
	return nil
}

func (d *Database) collection(ctx context.Context, name string) (*mongo.Collection, error) {
	client, err := d.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Database(d.name).Collection(name), nil
}

// register binds a shape to a collection name. Binding the same shape again is allowed.
func (d *Database) register(collection string, shape *Shape) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return &ConnectionError{URI: d.uri, Err: ErrDatabaseClosed}
	}
	if bound, ok := d.shapes[collection]; ok && !bound.Equal(shape) {
		return &SchemaError{
			Shape:  shape.Name(),
			Reason: fmt.Sprintf("collection %q is already bound to a different shape %q", collection, bound.Name()),
		}
	}
	d.shapes[collection] = shape
	return nil
}

// Shapes returns the collection names bound so far and their shapes.
func (d *Database) Shapes() map[string]*Shape {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]*Shape, len(d.shapes))
	for k, v := range d.shapes {
		out[k] = v
	}
	return out
}

// Collections lists the bound collection names in order.
func (d *Database) Collections() []string {
	shapes := d.Shapes()
	names := make([]string, 0, len(shapes))
	for name := range shapes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
