package knn

import "context"

// UserEvent is one interaction a caller supplies as input to a search: the
// partner whose catalog the event's label belongs to, the label itself,
// when it happened, and the kind of event it was (view, purchase, ...).
// The event_type/timestamp fields only matter to computers that weight or
// window events (the neural evaluator); AverageComputer ignores both.
type UserEvent struct {
	PartnerID int32
	Label     int64
	Timestamp int64
	EventType int32
}

// EmbeddingResult is a computed user vector plus how many of the input
// events actually contributed to it. UsedCount == 0 means every event
// missed the registry (unknown label, wrong partner), and callers treat
// that as "nothing to recommend from" rather than running a meaningless
// all-zero search.
type EmbeddingResult struct {
	UserEmbedding []float32
	UsedCount     int
}

// UserEmbeddingComputer turns a user's event history into a single query
// vector against one embedding registry.
type UserEmbeddingComputer interface {
	ComputeUserVector(ctx context.Context, registry *Registry, events []UserEvent) (EmbeddingResult, error)
}

// AverageComputer is the simplest UserEmbeddingComputer: the unweighted
// mean of every event's resolved embedding, skipping events whose label
// isn't present in the registry.
type AverageComputer struct{}

func (AverageComputer) ComputeUserVector(ctx context.Context, registry *Registry, events []UserEvent) (EmbeddingResult, error) {
	sum := make([]float32, registry.Dimension())
	count := 0

	for _, ev := range events {
		vec, ok := registry.FetchItem(ev.PartnerID, ev.Label)
		if !ok {
			continue
		}
		for i, v := range vec {
			sum[i] += v
		}
		count++
	}

	if count > 0 {
		inv := 1 / float32(count)
		for i := range sum {
			sum[i] *= inv
		}
	}

	return EmbeddingResult{UserEmbedding: sum, UsedCount: count}, nil
}
