// Package api exposes screening sessions over HTTP.
package api

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"quote-screener/internal/catalog"
	"quote-screener/internal/criteria"
	"quote-screener/internal/domain"
	"quote-screener/internal/observability"
	"quote-screener/internal/projection"
	"quote-screener/internal/screening"
	"quote-screener/internal/storage"
)

// QuoteLookup is the quote store as seen by the API.
type QuoteLookup interface {
	Get(symbol string) (*domain.Quote, error)
	IsStale(symbol string) bool
}

// Options contains the dependencies of a Server.
type Options struct {
	Manager   *screening.Manager
	Projector *projection.Projector
	Presets   *criteria.Registry
	Engine    *criteria.Engine // Default: criteria.NewEngine()
	Catalog   *catalog.Catalog
	Index     *catalog.Index // nil disables search
	Quotes    QuoteLookup
	Logger    *log.Logger // Default: log.Default()
}

// Server is the HTTP presentation adapter.
type Server struct {
	manager   *screening.Manager
	projector *projection.Projector
	presets   *criteria.Registry
	engine    *criteria.Engine
	catalog   *catalog.Catalog
	index     *catalog.Index
	quotes    QuoteLookup
	logger    *log.Logger
}

// NewServer creates a Server.
func NewServer(opts Options) *Server {
	engine := opts.Engine
	if engine == nil {
		engine = criteria.NewEngine()
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		manager:   opts.Manager,
		projector: opts.Projector,
		presets:   opts.Presets,
		engine:    engine,
		catalog:   opts.Catalog,
		index:     opts.Index,
		quotes:    opts.Quotes,
		logger:    logger,
	}
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.LoggerWithWriter(s.logger.Writer()), gin.Recovery())

	r.GET("/health", s.health)
	r.GET("/metrics", gin.WrapH(observability.Handler()))

	api := r.Group("/api")
	{
		api.GET("/presets", s.listPresets)
		api.GET("/instruments/search", s.searchInstruments)
		api.GET("/quotes/:symbol", s.getQuote)

		api.POST("/sessions", s.createSession)
		api.GET("/sessions", s.listSessions)
		api.DELETE("/sessions/:id", s.closeSession)
		api.GET("/sessions/:id/page", s.page)
		api.GET("/sessions/:id/diff", s.diff)
		api.GET("/sessions/:id/explain/:symbol", s.explain)
		api.PUT("/sessions/:id/criteria", s.replaceCriteria)
		api.PATCH("/sessions/:id/criteria/:field", s.setCriterion)
		api.DELETE("/sessions/:id/criteria/:field", s.removeCriterion)
		api.PUT("/sessions/:id/sort", s.setSort)
	}
	return r
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"instruments": s.catalog.Len(),
		"sessions":    s.manager.Len(),
	})
}

// errBadRequest marks malformed request input.
var errBadRequest = errors.New("bad request")

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, domain.ErrInvalidRange),
		errors.Is(err, domain.ErrUnknownField),
		errors.Is(err, domain.ErrDuplicateCriterion),
		errors.Is(err, projection.ErrInvalidPage):
		return http.StatusBadRequest
	case errors.Is(err, screening.ErrSessionNotFound),
		errors.Is(err, screening.ErrCriterionNotSet),
		errors.Is(err, criteria.ErrUnknownPreset),
		errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, projection.ErrFullRefreshRequired):
		return http.StatusConflict
	case errors.Is(err, screening.ErrSessionClosed):
		return http.StatusGone
	case errors.Is(err, screening.ErrTooManySessions):
		return http.StatusTooManyRequests
	case errors.Is(err, screening.ErrSessionNotReady):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Printf("[api] %s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	body := gin.H{"error": err.Error()}
	if status == http.StatusConflict {
		body["full_refresh_required"] = true
	}
	c.AbortWithStatusJSON(status, body)
}
