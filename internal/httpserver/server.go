package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tinytelemetry/zquery/internal/datasource"
	"github.com/tinytelemetry/zquery/internal/filter"
	"github.com/tinytelemetry/zquery/internal/inventory"
	"github.com/tinytelemetry/zquery/internal/metrics"
	"github.com/tinytelemetry/zquery/internal/model"
)

// maxIngestBody caps inventory and sample upload bodies (64 MB).
const maxIngestBody = 64 << 20

// IngestStore is the narrow write/introspection contract required by the API.
type IngestStore interface {
	ReplaceInventory(inv model.Inventory) error
	InsertHistory(samples []model.Sample) error
	InsertTrends(trends []model.Trend) error
	TableRowCounts() (map[string]int64, error)
}

// Server provides an HTTP API for item resolution and timeseries queries.
type Server struct {
	addr      string
	api       model.ReadAPI
	store     IngestStore
	metrics   *metrics.Metrics
	log       *zap.Logger
	server    *http.Server
	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
}

// NewServer creates a new HTTP API server. A nil m leaves /metrics unrouted.
func NewServer(addr string, api model.ReadAPI, store IngestStore, m *metrics.Metrics, logger *zap.Logger) *Server {
	if addr == "" {
		addr = "127.0.0.1:3000"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:      addr,
		api:       api,
		store:     store,
		metrics:   m,
		log:       logger.Named("http"),
		ctx:       ctx,
		cancel:    cancel,
		startTime: time.Now(),
	}
}

// Handler builds the gin engine with all routes registered.
func (s *Server) Handler() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	api := r.Group("/api")
	api.GET("/health", s.handleHealth)
	api.POST("/items", s.handleItems)
	api.POST("/query", s.handleQuery)
	api.PUT("/inventory", s.handleInventory)
	api.POST("/history", s.handleHistory)
	api.POST("/trends", s.handleTrends)

	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}
	return r
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)

	s.server = &http.Server{
		Handler:           s.Handler(),
		BaseContext:       func(_ net.Listener) context.Context { return s.ctx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	s.startTime = time.Now()
	s.log.Info("listening", zap.String("addr", listener.Addr().String()))

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("serve failed", zap.Error(err))
		}
	}()
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	s.cancel()
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// requestLogger tags each request with a req_id and logs its outcome.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Header("X-Request-ID", reqID)
		start := time.Now()

		c.Next()

		s.log.Debug("request",
			zap.String("req_id", reqID),
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	counts, err := s.store.TableRowCounts()
	if err != nil {
		s.log.Error("health: row counts", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read health metrics"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"uptime":     time.Since(s.startTime).String(),
		"row_counts": counts,
	})
}

func (s *Server) handleItems(c *gin.Context) {
	var target model.Target
	if err := c.ShouldBindJSON(&target); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}

	items, err := s.api.ResolveItems(target)
	if err != nil {
		s.writeQueryError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "count": len(items)})
}

func (s *Server) handleQuery(c *gin.Context) {
	var req model.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}

	series, err := s.api.QueryTimeseries(req)
	if err != nil {
		s.writeQueryError(c, err)
		return
	}
	c.JSON(http.StatusOK, series)
}

func (s *Server) writeQueryError(c *gin.Context, err error) {
	if errors.Is(err, filter.ErrInvalidFilterSyntax) || errors.Is(err, datasource.ErrInvalidMode) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.log.Error("query failed", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
}

func (s *Server) handleInventory(c *gin.Context) {
	snap, err := inventory.Decode(http.MaxBytesReader(c.Writer, c.Request.Body, maxIngestBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.store.ReplaceInventory(snap); err != nil {
		s.log.Error("replace inventory", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store inventory"})
		return
	}

	groups, hosts, apps, items := snap.Len()
	s.log.Info("inventory replaced",
		zap.Int("groups", groups),
		zap.Int("hosts", hosts),
		zap.Int("applications", apps),
		zap.Int("items", items),
	)
	c.JSON(http.StatusOK, gin.H{
		"groups":       groups,
		"hosts":        hosts,
		"applications": apps,
		"items":        items,
	})
}

func (s *Server) handleHistory(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxIngestBody)
	var samples []model.Sample
	if err := c.ShouldBindJSON(&samples); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}
	if err := s.store.InsertHistory(samples); err != nil {
		s.log.Error("insert history", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"inserted": len(samples)})
}

func (s *Server) handleTrends(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxIngestBody)
	var trends []model.Trend
	if err := c.ShouldBindJSON(&trends); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}
	if err := s.store.InsertTrends(trends); err != nil {
		s.log.Error("insert trends", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store trends"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"inserted": len(trends)})
}
