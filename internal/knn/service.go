package knn

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// ModelType identifies which kind of UserEmbeddingComputer a Model
// configures. XLA is recognized but not yet backed by a computer
// implementation.
type ModelType int

const (
	ModelTypeAverage ModelType = iota
	ModelTypeNeural
	ModelTypeXLA
)

// ParseModelType accepts the same spellings the rest of the stack's model
// configuration uses.
func ParseModelType(s string) (ModelType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "average", "avg":
		return ModelTypeAverage, nil
	case "tf", "tensorflow", "onnx", "neural":
		return ModelTypeNeural, nil
	case "xla":
		return ModelTypeXLA, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrModelNotFound, s)
	}
}

// Model describes one user-embedding computer a Service should load.
type Model struct {
	Name      string
	ModelPath string
	ModelType ModelType
	IsDefault bool
	Version   string
}

// Service fronts one country's Registry with a named set of
// UserEmbeddingComputers. It is built empty and populated via LoadIndex and
// LoadModel; every read-path method returns ErrIndexNotLoaded until a
// Registry is installed.
type Service struct {
	registry     *Registry
	defaultModel string
	models       map[string]UserEmbeddingComputer
}

// NewService returns an empty Service with no Registry and no models.
func NewService() *Service {
	return &Service{models: make(map[string]UserEmbeddingComputer)}
}

// LoadIndex installs registry as this Service's embedding registry,
// replacing whatever was previously loaded.
func (s *Service) LoadIndex(registry *Registry) {
	s.registry = registry
}

// LoadModel constructs and registers a UserEmbeddingComputer for model. The
// XLA type is accepted by configuration but has no implementation, so
// loading one returns ErrUnimplemented.
func (s *Service) LoadModel(model Model) error {
	var computer UserEmbeddingComputer
	switch model.ModelType {
	case ModelTypeAverage:
		computer = AverageComputer{}
	case ModelTypeNeural:
		nc, err := NewNeuralComputer(model.ModelPath)
		if err != nil {
			return fmt.Errorf("loading neural model %s: %w", model.Name, err)
		}
		computer = nc
	case ModelTypeXLA:
		return fmt.Errorf("%w: XLA model type", ErrUnimplemented)
	default:
		return fmt.Errorf("%w: unrecognized model type for %s", ErrModelNotFound, model.Name)
	}

	s.models[model.Name] = computer
	if model.IsDefault {
		s.defaultModel = model.Name
	}
	return nil
}

// Close releases every loaded model that holds a native resource (the
// ONNX session behind a neural model, in particular). Errors from
// individual models are joined rather than stopping the rest from closing.
func (s *Service) Close() error {
	var errs []error
	for name, computer := range s.models {
		closer, ok := computer.(io.Closer)
		if !ok {
			continue
		}
		if err := closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing model %s: %w", name, err))
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

// ListLabels returns the recommendable labels for partnerID.
func (s *Service) ListLabels(partnerID int32) ([]int64, error) {
	if s.registry == nil {
		return nil, ErrIndexNotLoaded
	}
	return s.registry.ListLabels(partnerID), nil
}

// GetItem resolves label within partnerID's index.
func (s *Service) GetItem(partnerID int32, label int64) ([]float32, error) {
	if s.registry == nil {
		return nil, ErrIndexNotLoaded
	}
	v, _ := s.registry.FetchItem(partnerID, label)
	return v, nil
}

// computeUserVector resolves modelName (or the default, if modelName is
// empty) and runs it against the loaded registry.
func (s *Service) computeUserVector(ctx context.Context, modelName string, events []UserEvent) (EmbeddingResult, error) {
	name := modelName
	if name == "" {
		name = s.defaultModel
	}
	if name == "" {
		return EmbeddingResult{}, ErrModelMissing
	}
	if s.registry == nil {
		return EmbeddingResult{}, ErrIndexNotLoaded
	}

	computer, ok := s.models[name]
	if !ok {
		return EmbeddingResult{}, &ModelNotFoundError{Name: name}
	}
	return computer.ComputeUserVector(ctx, s.registry, events)
}

// GetClosestItems computes a user vector from events and searches
// queryPartner's index for its k nearest recommendable rows. A user vector
// with zero contributing events short-circuits to an empty result: there's
// nothing meaningful to search with an all-zero query.
func (s *Service) GetClosestItems(ctx context.Context, events []UserEvent, queryPartner int32, k int, modelName string) ([]IndexResult, error) {
	userVector, err := s.computeUserVector(ctx, modelName, events)
	if err != nil {
		return nil, err
	}
	if userVector.UsedCount == 0 {
		return nil, nil
	}

	if s.registry == nil {
		return nil, ErrIndexNotLoaded
	}
	return s.registry.Search(ctx, queryPartner, userVector.UserEmbedding, k)
}
