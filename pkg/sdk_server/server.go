package sdk_server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mattiabonardi/endor-odm-go/pkg/sdk"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const defaultShutdownTimeout = 10 * time.Second

// Server is the HTTP shell around a database handle. The handle is connected when the
// server starts and closed when it stops.
type Server struct {
	db              *sdk.Database
	logger          *sdk.Logger
	port            string
	title           string
	handlers        []Handler
	shutdownTimeout time.Duration
	postInitFunc    func()
	router          *gin.Engine
}

type ServerInitializer struct {
	server *Server
}

func NewServerInitializer(db *sdk.Database, logger *sdk.Logger) *ServerInitializer {
	if logger == nil {
		logger = sdk.NopLogger()
	}
	return &ServerInitializer{
		server: &Server{
			db:              db,
			logger:          logger,
			port:            "8080",
			title:           "endor-odm",
			shutdownTimeout: defaultShutdownTimeout,
		},
	}
}

func (b *ServerInitializer) WithPort(port string) *ServerInitializer {
	b.server.port = port
	return b
}

// WithTitle names the service in the OpenAPI definition.
func (b *ServerInitializer) WithTitle(title string) *ServerInitializer {
	b.server.title = title
	return b
}

func (b *ServerInitializer) WithHandlers(handlers ...Handler) *ServerInitializer {
	b.server.handlers = append(b.server.handlers, handlers...)
	return b
}

func (b *ServerInitializer) WithShutdownTimeout(timeout time.Duration) *ServerInitializer {
	b.server.shutdownTimeout = timeout
	return b
}

// WithPostInitFunc runs f once the handle is connected, before serving.
func (b *ServerInitializer) WithPostInitFunc(f func()) *ServerInitializer {
	b.server.postInitFunc = f
	return b
}

func (b *ServerInitializer) Build() *Server {
	b.server.router = b.server.newRouter()
	return b.server
}

func (s *Server) newRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestID(s.logger), AccessLog())

	// monitoring
	router.GET("/readyz", s.ready)
	router.GET("/livez", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET(openAPIPath, s.openAPI)

	for _, h := range s.handlers {
		h.Route(&router.RouterGroup)
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, MessageResponse(ResponseMessageGravityFatal,
			"404 page not found (uri: "+c.Request.RequestURI+", method: "+c.Request.Method+")"))
	})
	return router
}

func (s *Server) ready(c *gin.Context) {
	if s.db == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := s.db.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Router exposes the configured engine, mainly for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Run connects the handle, serves until ctx is done, then drains requests and closes
// the handle.
func (s *Server) Run(ctx context.Context) error {
	if s.db != nil {
		if err := s.db.Connect(ctx); err != nil {
			return err
		}
	}
	if s.postInitFunc != nil {
		s.postInitFunc()
	}

	srv := &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		s.logger.InfoWithFields("Server listening", map[string]interface{}{"port": s.port})
		serveErr <- srv.ListenAndServe()
	}()

	var err error
	select {
	case err = <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
	case <-ctx.Done():
		s.logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.shutdownTimeout)
		defer cancel()
		if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
			err = fmt.Errorf("failed to shut down http server: %w", shutdownErr)
		}
	}

	if s.db != nil {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.shutdownTimeout)
		defer cancel()
		if closeErr := s.db.Close(closeCtx); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	return err
}
