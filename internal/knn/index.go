package knn

import (
	"container/heap"
	"context"
)

// PartnerIndex aggregates every shard loaded for one partner: the
// recommendable shards, whose rows are eligible to come back from Search,
// and the non-recommendable "extra" shards, which exist purely so GetItem
// can resolve a label that a caller's event history references but that
// was deliberately excluded from recommendation candidates.
type PartnerIndex struct {
	dimension int
	reco      []*Shard
	extra     []*Shard
}

// NewPartnerIndex builds a PartnerIndex from its constituent shards, split
// by recommendability. All shards must share the same dimension; callers
// assemble that guarantee at load time.
func NewPartnerIndex(dimension int, shards []*Shard) *PartnerIndex {
	pi := &PartnerIndex{dimension: dimension}
	for _, s := range shards {
		if s.IsRecommendable() {
			pi.reco = append(pi.reco, s)
		} else {
			pi.extra = append(pi.extra, s)
		}
	}
	return pi
}

// Dimension returns the shared embedding width across this partner's shards.
func (p *PartnerIndex) Dimension() int { return p.dimension }

// Count returns the total number of recommendable rows across shards.
func (p *PartnerIndex) Count() int {
	n := 0
	for _, s := range p.reco {
		n += s.Count()
	}
	return n
}

// ListLabels returns the external labels of every recommendable row.
func (p *PartnerIndex) ListLabels() []int64 {
	var out []int64
	for _, s := range p.reco {
		out = append(out, s.Labels()...)
	}
	return out
}

// GetItem resolves label's embedding, checking recommendable shards first
// and falling back to the non-recommendable extras, in load order.
func (p *PartnerIndex) GetItem(label int64) ([]float32, bool) {
	for _, s := range p.reco {
		if v, ok := s.GetItem(label); ok {
			return v, true
		}
	}
	for _, s := range p.extra {
		if v, ok := s.GetItem(label); ok {
			return v, true
		}
	}
	return nil, false
}

// Search queries every recommendable shard and merges the results into a
// single ascending-distance, tie-broken-by-label top-k, using a bounded
// max-heap so the merge costs O(total_candidates * log k) rather than a
// full sort.
func (p *PartnerIndex) Search(ctx context.Context, embedding []float32, k int) ([]IndexResult, error) {
	if k <= 0 {
		return nil, nil
	}

	h := &resultHeap{}
	heap.Init(h)

	for _, s := range p.reco {
		candidates, err := s.Search(ctx, embedding, k)
		if err != nil {
			return nil, err
		}
		for _, cand := range candidates {
			if h.Len() < k {
				heap.Push(h, cand)
				continue
			}
			if cand.less((*h)[0]) {
				(*h)[0] = cand
				heap.Fix(h, 0)
			}
		}
	}

	out := make([]IndexResult, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(IndexResult)
	}
	return out, nil
}
