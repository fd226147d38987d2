package knn

import "context"

// Registry maps partner IDs onto their PartnerIndex, built once at load
// time and read many times concurrently. All partners under one Registry
// share a single embedding dimension.
type Registry struct {
	dimension int
	partners  map[int32]*PartnerIndex
}

// NewRegistry builds a Registry from a partner-id -> PartnerIndex map
// already assembled by the Loader.
func NewRegistry(dimension int, partners map[int32]*PartnerIndex) *Registry {
	return &Registry{dimension: dimension, partners: partners}
}

// Dimension returns the embedding width shared by every partner in this registry.
func (r *Registry) Dimension() int { return r.dimension }

// ListLabels returns the recommendable labels registered for partnerID, or
// an empty list if the partner isn't present: an absent partner is reported
// to callers as emptiness, not an error, matching the query-time "quietly
// return nothing" style used throughout this package for unresolvable IDs.
func (r *Registry) ListLabels(partnerID int32) []int64 {
	idx, ok := r.partners[partnerID]
	if !ok {
		return nil
	}
	return idx.ListLabels()
}

// FetchItem resolves label within partnerID's index.
func (r *Registry) FetchItem(partnerID int32, label int64) ([]float32, bool) {
	idx, ok := r.partners[partnerID]
	if !ok {
		return nil, false
	}
	return idx.GetItem(label)
}

// HasItem reports whether label is resolvable within partnerID's index.
func (r *Registry) HasItem(partnerID int32, label int64) bool {
	_, ok := r.FetchItem(partnerID, label)
	return ok
}

// Search delegates to partnerID's PartnerIndex, returning an empty result
// (not an error) when the partner has no loaded index.
func (r *Registry) Search(ctx context.Context, partnerID int32, embedding []float32, k int) ([]IndexResult, error) {
	idx, ok := r.partners[partnerID]
	if !ok {
		return nil, nil
	}
	return idx.Search(ctx, embedding, k)
}

// Partners returns the partner IDs with a loaded index.
func (r *Registry) Partners() []int32 {
	out := make([]int32, 0, len(r.partners))
	for id := range r.partners {
		out = append(out, id)
	}
	return out
}
