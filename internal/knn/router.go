package knn

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/partnerknn/knnserve/internal/logging"
)

// RouterConfig holds the filesystem layout and model set a Router applies
// uniformly to every country it loads.
type RouterConfig struct {
	IndicesRoot string
	ModelRoot   string
	Platform    string
	Version     string
	Models      []Model
}

// indicesPath returns the per-country indices directory:
// {indices_root}/{platform}/{version}/country={cc}.
func (c RouterConfig) indicesPath(country string) string {
	return filepath.Join(c.IndicesRoot, c.Platform, c.Version, "country="+country)
}

// modelPath returns the per-country model directory:
// {base}/{platform}/{model_version}/country={cc}, where base is the
// model's own path override if one is configured, else the Router's
// shared model_root. Returns "" if neither is set, meaning this model has
// no path configured for this country.
func (c RouterConfig) modelPath(country string, m Model) string {
	base := m.ModelPath
	if base == "" {
		base = c.ModelRoot
	}
	if base == "" {
		return ""
	}
	return filepath.Join(base, c.Platform, m.Version, "country="+country)
}

// modelRequiresPath reports whether loading a model of this type needs an
// on-disk graph: Average is a pure function of the registry and has
// nothing to load, while Neural and XLA load a computation graph file.
func modelRequiresPath(t ModelType) bool {
	return t != ModelTypeAverage
}

// Router fronts one Service per country, behind the reserved "XX" fallback
// country for requests naming a country that was never loaded.
type Router struct {
	config    RouterConfig
	countries map[string]*Service
	logger    *logging.Logger
}

// NewRouter returns an empty Router over config, logging nowhere until
// WithLogger attaches one.
func NewRouter(config RouterConfig) *Router {
	return &Router{config: config, countries: make(map[string]*Service), logger: logging.NewNop()}
}

// WithLogger attaches logger for per-country load progress reporting and
// returns the Router for chaining. A nil logger is ignored.
func (r *Router) WithLogger(logger *logging.Logger) *Router {
	if logger != nil {
		r.logger = logger
	}
	return r
}

// validateCountryCode rejects country codes that can't be safely joined
// into the indices/model path layout: empty strings, path separators, and
// ".." segments would otherwise let a misconfigured country code escape
// the configured indices/model roots.
func validateCountryCode(country string) error {
	if country == "" || strings.ContainsAny(country, `/\`) || strings.Contains(country, "..") {
		return fmt.Errorf("%w: country code %q", ErrInvalidPath, country)
	}
	return nil
}

// Load builds and installs a Service for country: loads its index from the
// configured indices path, then loads every configured model against it.
func (r *Router) Load(country string, loadIndex func(path string) (*Registry, error)) error {
	if err := validateCountryCode(country); err != nil {
		return err
	}

	svc := NewService()

	registry, err := loadIndex(r.config.indicesPath(country))
	if err != nil {
		return err
	}
	svc.LoadIndex(registry)

	for _, m := range r.config.Models {
		model := m
		model.ModelPath = r.config.modelPath(country, m)
		if model.ModelPath == "" && modelRequiresPath(model.ModelType) {
			r.logger.Warn(context.Background(), "skipping model: no path configured for country",
				zap.String("country", country), zap.String("model", model.Name))
			continue
		}
		if err := svc.LoadModel(model); err != nil {
			return err
		}
	}

	r.countries[country] = svc
	return nil
}

// LoadCountries loads every country in countries, logging each one's
// outcome individually before propagating the first failure (rather than
// aborting silently), matching the per-iteration progress reporting the
// original loader gave operators watching startup logs.
func (r *Router) LoadCountries(countries []string, loadIndex func(path string) (*Registry, error)) error {
	ctx := context.Background()
	for _, c := range countries {
		if err := r.Load(c, loadIndex); err != nil {
			r.logger.Error(ctx, "country load failed", zap.String("country", c), zap.Error(err))
			return fmt.Errorf("loading country %s: %w", c, err)
		}
		r.logger.Info(ctx, "country loaded", zap.String("country", c))
	}
	return nil
}

// GetService returns country's Service, falling back to "XX" if country
// was never loaded. The second return value is false if neither was found.
func (r *Router) GetService(country string) (*Service, bool) {
	if svc, ok := r.countries[country]; ok {
		return svc, true
	}
	svc, ok := r.countries["XX"]
	return svc, ok
}

// GetCountries returns every country code with a loaded Service.
func (r *Router) GetCountries() []string {
	out := make([]string, 0, len(r.countries))
	for c := range r.countries {
		out = append(out, c)
	}
	return out
}

// Close releases every loaded country's Service, including any neural
// evaluator's ONNX session, and should be called once during shutdown.
func (r *Router) Close() error {
	var errs []error
	for country, svc := range r.countries {
		if err := svc.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing country %s: %w", country, err))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	joined := errs[0]
	for _, e := range errs[1:] {
		joined = fmt.Errorf("%w; %w", joined, e)
	}
	return joined
}
