package knn

import (
	"container/heap"
	"context"
	"fmt"
	"sort"
	"strconv"

	chromem "github.com/philippgille/chromem-go"
)

// ChromemIndex is a NativeIndex backed by an embedded chromem-go collection.
// Every embedding is persisted into the collection, and cosine-metric
// shards search through collection.QueryEmbedding, the ANN library's own
// precomputed-vector query path. Reconstruct is served from the local
// cache of vectors exactly as loaded. chromem-go hardcodes
// cosine similarity internally, though, with no L2 or dot-product mode and
// no documented tie-break order for equal similarities, so L2/dot shards
// (and exact smaller-label-wins determinism at a result boundary) fall back
// to the local heap-based scan over the cached labels/vectors below.
type ChromemIndex struct {
	collection *chromem.Collection
	metric     DistanceMetric
	dimension  int
	labels     []int64
	vectors    map[int64][]float32
}

// chromemDocID renders an external label as a chromem document ID.
func chromemDocID(label int64) string {
	return strconv.FormatInt(label, 10)
}

// parseChromemDocID inverts chromemDocID.
func parseChromemDocID(id string) (int64, error) {
	return strconv.ParseInt(id, 10, 64)
}

// noopEmbeddingFunc returns an error if ever invoked: every document added
// to a ChromemIndex arrives with its embedding already populated, so
// chromem-go never needs to compute one itself.
func noopEmbeddingFunc(context.Context, string) ([]float32, error) {
	return nil, fmt.Errorf("ChromemIndex: unexpected embedding computation requested")
}

// NewChromemIndex builds a ChromemIndex from parallel labels/vectors slices
// (as produced by the loader from one chunk's mapping and vector files),
// persisting them into a fresh collection on db.
func NewChromemIndex(ctx context.Context, db *chromem.DB, collectionName string, metric DistanceMetric, dimension int, labels []int64, vectors [][]float32) (*ChromemIndex, error) {
	if len(labels) != len(vectors) {
		return nil, fmt.Errorf("%w: %d labels but %d vectors", ErrDimensionMismatch, len(labels), len(vectors))
	}

	collection, err := db.GetOrCreateCollection(collectionName, nil, noopEmbeddingFunc)
	if err != nil {
		return nil, fmt.Errorf("creating chromem collection %s: %w", collectionName, err)
	}

	idx := &ChromemIndex{
		collection: collection,
		metric:     metric,
		dimension:  dimension,
		labels:     make([]int64, 0, len(labels)),
		vectors:    make(map[int64][]float32, len(labels)),
	}

	docs := make([]chromem.Document, 0, len(labels))
	for i, label := range labels {
		vec := vectors[i]
		if len(vec) != dimension {
			return nil, fmt.Errorf("%w: label %d has %d dims, index declares %d", ErrDimensionMismatch, label, len(vec), dimension)
		}
		if _, dup := idx.vectors[label]; dup {
			continue
		}
		idx.labels = append(idx.labels, label)
		idx.vectors[label] = vec
		docs = append(docs, chromem.Document{
			ID:        chromemDocID(label),
			Embedding: vec,
			Metadata:  map[string]string{"label": chromemDocID(label)},
		})
	}

	if len(docs) > 0 {
		if err := collection.AddDocuments(ctx, docs, 1); err != nil {
			return nil, fmt.Errorf("persisting %d documents to chromem collection %s: %w", len(docs), collectionName, err)
		}
	}

	return idx, nil
}

func (c *ChromemIndex) Count() int { return c.collection.Count() }

func (c *ChromemIndex) Dimension() int { return c.dimension }

func (c *ChromemIndex) Labels() []int64 {
	out := make([]int64, len(c.labels))
	copy(out, c.labels)
	return out
}

// Reconstruct returns a copy of label's embedding from the local cache,
// exactly as it was loaded. The collection's stored copy is not used here,
// because chromem-go rescales added embeddings to unit length.
func (c *ChromemIndex) Reconstruct(label int64) ([]float32, bool) {
	vec, ok := c.vectors[label]
	if !ok {
		return nil, false
	}
	out := make([]float32, len(vec))
	copy(out, vec)
	return out, true
}

// Search routes cosine-metric shards through chromem-go's own
// QueryEmbedding and falls back to a hand-rolled scan for every other
// metric, since chromem-go has no L2 or dot-product mode.
func (c *ChromemIndex) Search(ctx context.Context, query []float32, k int) ([]IndexResult, error) {
	if k <= 0 {
		return nil, nil
	}
	if c.metric == MetricCosine {
		return c.searchViaChromem(ctx, query, k)
	}
	return c.bruteForceSearch(ctx, query, k)
}

// searchViaChromem asks chromem-go's own ANN collection for the nearest
// neighbors of a precomputed query vector, then recomputes each returned
// candidate's distance with the same comparator the rest of the stack uses
// so the output is bit-for-bit the same shape as the brute-force path.
// Ties that fall exactly on the nResults boundary follow chromem-go's own
// internal ordering rather than the strict smaller-label-wins rule below,
// since the library does not document a tie-break for equal similarities.
func (c *ChromemIndex) searchViaChromem(ctx context.Context, query []float32, k int) ([]IndexResult, error) {
	n := k
	if count := c.collection.Count(); n > count {
		n = count
	}
	if n == 0 {
		return nil, nil
	}

	results, err := c.collection.QueryEmbedding(ctx, query, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem QueryEmbedding: %w", err)
	}

	out := make([]IndexResult, 0, len(results))
	for _, r := range results {
		label, err := parseChromemDocID(r.ID)
		if err != nil {
			continue
		}
		out = append(out, IndexResult{Label: label, Distance: c.metric.distance(query, r.Embedding)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].less(out[j]) })
	return out, nil
}

// bruteForceSearch performs an exhaustive scan over every vector held by the
// index, keeping the k nearest in a bounded max-heap so the working set
// never exceeds k elements regardless of collection size. This is the only
// search path for L2/dot shards, since chromem-go has no mode for either
// metric.
func (c *ChromemIndex) bruteForceSearch(ctx context.Context, query []float32, k int) ([]IndexResult, error) {
	h := &resultHeap{}
	heap.Init(h)

	for _, label := range c.labels {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		vec := c.vectors[label]
		cand := IndexResult{Label: label, Distance: c.metric.distance(query, vec)}

		if h.Len() < k {
			heap.Push(h, cand)
			continue
		}
		if cand.less((*h)[0]) {
			(*h)[0] = cand
			heap.Fix(h, 0)
		}
	}

	out := make([]IndexResult, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(IndexResult)
	}
	return out, nil
}

// resultHeap is a max-heap over IndexResult ordered by less: the root is
// always the worst (furthest) of the candidates retained so far, so a
// tighter candidate can replace it in O(log k).
type resultHeap []IndexResult

func (h resultHeap) Len() int { return len(h) }

// Less inverts the ascending IndexResult.less so container/heap's min-heap
// machinery produces a max-heap over "worseness".
func (h resultHeap) Less(i, j int) bool { return h[j].less(h[i]) }

func (h resultHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *resultHeap) Push(x any) { *h = append(*h, x.(IndexResult)) }

func (h *resultHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
