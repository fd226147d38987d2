package knnserver

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/partnerknn/knnserve/internal/knn"
	"github.com/partnerknn/knnserve/internal/logging"
)

var tracer = otel.Tracer("github.com/partnerknn/knnserve/pkg/knnserver")

// Server is the external HTTP boundary in front of a Router: one process
// per platform/version, fronting every loaded country.
type Server struct {
	echo    *echo.Echo
	router  *knn.Router
	logger  *logging.Logger
	metrics *Metrics
	health  *HealthChecker
}

// Config holds the listener address for Server.Start.
type Config struct {
	Addr string
}

// NewServer wires router behind an Echo instance with the standard
// recover/request-id middleware plus KNN-specific request logging, health,
// and metrics endpoints.
func NewServer(router *knn.Router, logger *logging.Logger, health *HealthChecker) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	if health == nil {
		health = NewHealthChecker()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))

	s := &Server{
		echo:    e,
		router:  router,
		logger:  logger,
		metrics: NewMetrics(),
		health:  health,
	}

	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.echo.GET("/healthz", s.handleHealthz)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/v1")
	v1.POST("/search", s.handleSearch)
	v1.GET("/countries", s.handleAvailableCountries)
	v1.POST("/multi_search", s.handleMultiSearch)
	v1.GET("/countries/:country/indices", s.handleIndicesForCountry)
	v1.GET("/countries/:country/indices/:index_id/products", s.handleIndexedProducts)
}

// handleHealthz reports StatusNotServing as 503 and everything else as 200,
// along with every tracked country's individual status.
func (s *Server) handleHealthz(c echo.Context) error {
	snapshot := s.health.Snapshot()
	services := make(map[string]string, len(snapshot))
	overall := "SERVING"

	for name, status := range snapshot {
		services[name] = status.String()
		if status == StatusNotServing {
			overall = "NOT_SERVING"
		}
	}

	code := http.StatusOK
	if overall == "NOT_SERVING" {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, HealthResponse{Status: overall, Services: services})
}

// handleSearch implements the core recommendation request: resolve the
// requested country's Service (falling back to "XX"), compute a user
// vector from the supplied event history, and return its nearest
// recommendable neighbors in the requested partner's index.
func (s *Server) handleSearch(c echo.Context) error {
	const op = "search"
	start := time.Now()
	ctx, span := tracer.Start(c.Request().Context(), "knnserver.Search")
	defer span.End()
	ctx = logging.ContextWithRequestID(ctx, c.Response().Header().Get(echo.HeaderXRequestID))

	var req SearchRequest
	if err := c.Bind(&req); err != nil {
		s.metrics.Observe(op, "bad_request", time.Since(start))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	svc, ok := s.router.GetService(strings.ToUpper(req.Country))
	if !ok {
		s.metrics.Observe(op, "country_not_found", time.Since(start))
		span.SetStatus(codes.Error, "country not available")
		return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("country %s not available", req.Country))
	}

	ctx = logging.ContextWithQuery(ctx, logging.QueryContext{Country: strings.ToUpper(req.Country), Partner: req.IndexID})

	events := make([]knn.UserEvent, len(req.UserEvents))
	for i, e := range req.UserEvents {
		events[i] = knn.UserEvent{PartnerID: e.PartnerID, Label: e.ProductID, Timestamp: e.Timestamp, EventType: e.EventType}
	}

	results, err := svc.GetClosestItems(ctx, events, req.IndexID, req.ResultCount, req.Model)
	if err != nil {
		s.metrics.Observe(op, "error", time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error(ctx, "search failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	products := make([]Product, len(results))
	for i, r := range results {
		products[i] = Product{ProductID: r.Label, Score: r.Distance}
	}

	s.metrics.Observe(op, "ok", time.Since(start))
	s.metrics.ObserveResultCount(op, len(products))
	span.SetAttributes(attribute.Int("result_count", len(products)))
	return c.JSON(http.StatusOK, SearchResponse{Products: products})
}

// handleAvailableCountries lists every country with a loaded Service.
func (s *Server) handleAvailableCountries(c echo.Context) error {
	countries := s.router.GetCountries()
	infos := make([]CountryInfo, len(countries))
	for i, name := range countries {
		infos[i] = CountryInfo{Name: name}
	}
	return c.JSON(http.StatusOK, AvailableCountriesResponse{Countries: infos})
}

// handleMultiSearch is reserved: batching multiple search requests into
// one round trip isn't implemented yet.
func (s *Server) handleMultiSearch(c echo.Context) error {
	return echo.NewHTTPError(http.StatusNotImplemented, "multi_search is not implemented")
}

// handleIndicesForCountry is reserved: per-country index introspection
// isn't implemented yet.
func (s *Server) handleIndicesForCountry(c echo.Context) error {
	return echo.NewHTTPError(http.StatusNotImplemented, "get_indices_for_country is not implemented")
}

// handleIndexedProducts is reserved: per-index product listing over HTTP
// isn't implemented yet (use the Service.ListLabels path in-process).
func (s *Server) handleIndexedProducts(c echo.Context) error {
	return echo.NewHTTPError(http.StatusNotImplemented, "get_indexed_products is not implemented")
}

// Start starts the HTTP server on addr and blocks until it exits.
func (s *Server) Start(addr string) error {
	s.logger.Underlying().Sugar().Infow("starting knn http server", "addr", addr)
	if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server start: %w", err)
	}
	return nil
}

// Shutdown gracefully drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.health.Shutdown()
	return s.echo.Shutdown(ctx)
}

