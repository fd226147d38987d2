package knn

import (
	"context"
	"fmt"
	"math"
	"sync"
)

// IndexResult is one candidate returned by a shard or aggregated search:
// an external product label and its distance to the query (lower is
// better). Ties on Distance break by smaller Label first.
type IndexResult struct {
	Label    int64
	Distance float32
}

// less reports whether r sorts before other under ascending-distance,
// smaller-label-breaks-ties ordering, using IEEE-754 total order on the
// float32 component so NaN distances never confuse the comparison.
func (r IndexResult) less(other IndexResult) bool {
	if totalOrderKey(r.Distance) != totalOrderKey(other.Distance) {
		return totalOrderLess(r.Distance, other.Distance)
	}
	return r.Label < other.Label
}

// totalOrderLess implements IEEE-754 §5.10 totalOrder for float32, matching
// Rust's f32::total_cmp: -NaN < -Inf < ... < -0 < +0 < ... < +Inf < +NaN.
func totalOrderLess(a, b float32) bool {
	return totalOrderKey(a) < totalOrderKey(b)
}

// totalOrderKey maps a float32's bit pattern onto an int32 key whose
// ordinary signed ordering matches IEEE total order: for non-negative
// values (sign bit clear) the bit pattern already orders correctly as is;
// for negative values every bit but the sign bit must be flipped.
func totalOrderKey(f float32) int32 {
	bits := int32(math.Float32bits(f))
	bits ^= int32(uint32(bits>>31) >> 1)
	return bits
}

// NativeIndex is the opaque native ANN handle: building an index offline is
// out of scope here, so the interface carries only the read-only runtime
// contract (Count/Dimension/Labels/Reconstruct/Search) and has no add or
// load method. The Loader reads each "*.index" file itself and constructs
// the implementation (NewChromemIndex) from the decoded vectors.
type NativeIndex interface {
	// Count returns the number of indexed vectors.
	Count() int
	// Dimension returns the vector width of this index.
	Dimension() int
	// Labels returns the external labels present, in a stable but
	// unspecified order.
	Labels() []int64
	// Reconstruct returns an owned copy of the embedding for label, or
	// false if label is absent.
	Reconstruct(label int64) ([]float32, bool)
	// Search returns up to k candidates ordered by ascending distance.
	Search(ctx context.Context, query []float32, k int) ([]IndexResult, error)
}

// Shard wraps one NativeIndex with shared access for reads
// (Reconstruct/Count/Dimension/Labels) and exclusive access for Search,
// because some ANN backends mutate internal scratch state during a query.
// The lock is per-shard, so independent shards search fully in parallel.
type Shard struct {
	mu              sync.RWMutex
	native          NativeIndex
	isRecommendable bool
}

// NewShard wraps native as a Shard. isRecommendable controls whether the
// shard's rows are eligible as search results (true) or lookup-only
// "extras" (false).
func NewShard(native NativeIndex, isRecommendable bool) *Shard {
	return &Shard{native: native, isRecommendable: isRecommendable}
}

// IsRecommendable reports whether this shard's rows may be returned by search.
func (s *Shard) IsRecommendable() bool { return s.isRecommendable }

// Count returns the number of vectors in the shard.
func (s *Shard) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.native.Count()
}

// Dimension returns the shard's vector width.
func (s *Shard) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.native.Dimension()
}

// Labels returns the external labels present in this shard.
func (s *Shard) Labels() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.native.Labels()
}

// GetItem returns an owned copy of label's embedding, or (nil, false) if
// label is absent from this shard.
func (s *Shard) GetItem(label int64) ([]float32, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.native.Reconstruct(label)
}

// Search returns up to k candidates ordered by ascending distance. It takes
// the shard's lock exclusively: some native backends require mutable
// scratch space for a query.
func (s *Shard) Search(ctx context.Context, query []float32, k int) ([]IndexResult, error) {
	if k == 0 {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(query) != s.native.Dimension() {
		return nil, fmt.Errorf("%w: query has %d dims, shard has %d", ErrDimensionMismatch, len(query), s.native.Dimension())
	}
	return s.native.Search(ctx, query, k)
}
