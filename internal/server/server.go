// Package server exposes the counterfactual search over HTTP.
package server

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	counterfactual "github.com/FrenchMajesty/evidence-counterfactual"
	"github.com/FrenchMajesty/evidence-counterfactual/pkg/sparse"
)

// ExplainRequest is the body of POST /v1/explain. Unset bounds use the server defaults.
type ExplainRequest struct {
	Instance     sparse.Vector `json:"instance"`
	Threshold    *float64      `json:"threshold,omitempty"`
	MaxIter      *int          `json:"max_iter,omitempty" validate:"omitempty,gte=0,lte=100000"`
	MaxExplained *int          `json:"max_explained,omitempty" validate:"omitempty,gte=0,lte=1000"`
	MaxFeatures  *int          `json:"max_features,omitempty"`
}

// DefaultMaxDimension bounds instance dimensionality when the served scorer does not fix it
const DefaultMaxDimension = 1 << 20

// ErrDimension is returned for instances the served scorer cannot accept
var ErrDimension = errors.New("instance dimension not accepted")

// Schema describes the instances the served scorer accepts
type Schema struct {
	// FeatureNames maps feature index to display name. May be nil.
	FeatureNames []string

	// Dimension is the exact instance dimensionality. If 0, uses len(FeatureNames) when set.
	Dimension int

	// MaxDimension bounds instances when no exact Dimension is known. If 0, uses DefaultMaxDimension.
	MaxDimension int
}

// check returns ErrDimension when dim is not accepted
func (sc Schema) check(dim int) error {
	if sc.Dimension > 0 && dim != sc.Dimension {
		return fmt.Errorf("%w: got %d, want %d", ErrDimension, dim, sc.Dimension)
	}
	if dim > sc.MaxDimension {
		return fmt.Errorf("%w: got %d, max %d", ErrDimension, dim, sc.MaxDimension)
	}
	return nil
}

// ErrorResponse is returned for every failed request
type ErrorResponse struct {
	Error string `json:"error"`
}

// Server handles explanation requests against a single scorer
type Server struct {
	scorer   counterfactual.Scorer
	schema   Schema
	defaults counterfactual.Config
	registry *prometheus.Registry
	logger   *zap.Logger
	validate *validator.Validate
}

// New creates a server. The defaults' Metrics and Logger are used for every search.
func New(scorer counterfactual.Scorer, schema Schema, defaults counterfactual.Config, registry *prometheus.Registry, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaults.Logger == nil {
		defaults.Logger = logger
	}
	if schema.Dimension == 0 && schema.FeatureNames != nil {
		schema.Dimension = len(schema.FeatureNames)
	}
	if schema.MaxDimension == 0 {
		schema.MaxDimension = DefaultMaxDimension
	}
	schema.MaxDimension = max(schema.MaxDimension, schema.Dimension)

	return &Server{
		scorer:   scorer,
		schema:   schema,
		defaults: defaults,
		registry: registry,
		logger:   logger,
		validate: validator.New(),
	}
}

// Router builds the gin engine with all routes
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), s.logRequests())

	router.GET("/healthz", s.health)
	router.POST("/v1/explain", s.explain)
	if s.registry != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
	}

	return router
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) explain(c *gin.Context) {
	var req ExplainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	if err := s.schema.check(req.Instance.Dim()); err != nil {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error()})
		return
	}

	cfg := s.defaults
	if req.Threshold != nil {
		cfg.Threshold = *req.Threshold
	}
	if req.MaxIter != nil {
		cfg.MaxIter = *req.MaxIter
	}
	if req.MaxExplained != nil {
		cfg.MaxExplained = *req.MaxExplained
	}
	if req.MaxFeatures != nil {
		cfg.MaxFeatures = *req.MaxFeatures
	}

	explainer, err := counterfactual.NewExplainer(s.scorer, cfg)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	result, err := explainer.Explain(c.Request.Context(), req.Instance, s.schema.FeatureNames)
	if err != nil {
		c.JSON(statusFor(err), ErrorResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

// statusFor maps search errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, counterfactual.ErrFeatureNames), errors.Is(err, sparse.ErrDimensionMismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, counterfactual.ErrNonFiniteScore):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
