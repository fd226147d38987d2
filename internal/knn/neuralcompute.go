package knn

import (
	"context"
	"fmt"
	"sync"
	"time"

	ort "github.com/yalue/onnxruntime_go"
)

// Tensor names the neural evaluator's graph exposes. The shapes mirror a
// single batch of user-event history: product_embeddings is
// [1, n, dimension], the two other per-event tensors are [1, n], and
// current_timestamp_sec/nb_events are scalars.
const (
	tensorProductEmbeddings  = "product_embeddings"
	tensorTimestamps         = "timestamps_sec"
	tensorCurrentTimestamp   = "current_timestamp_sec"
	tensorEventTypes         = "event_types"
	tensorNbEvents           = "nb_events"
	tensorUserEmbeddingOut   = "user_embedding"
)

// nowFunc is swappable in tests so the current-timestamp feed is deterministic.
var nowFunc = func() int64 { return time.Now().Unix() }

var (
	ortInitOnce    sync.Once
	ortInitErr     error
	ortInitialized bool
)

// InitializeRuntime prepares the process-wide ONNX Runtime environment every
// NeuralComputer session depends on. onnxruntime_go requires this to run
// exactly once, before the first NewDynamicAdvancedSession call, so callers
// should invoke it during startup wiring rather than inside LoadModel.
// libraryPath overrides the shared-library search path the same way the
// teacher's ONNX_PATH convention does; leave it empty to use the platform
// default search (libonnxruntime.so/.dylib on the loader path).
func InitializeRuntime(libraryPath string) error {
	ortInitOnce.Do(func() {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		if ortInitErr = ort.InitializeEnvironment(); ortInitErr == nil {
			ortInitialized = true
		}
	})
	return ortInitErr
}

// ShutdownRuntime releases the process-wide ONNX Runtime environment. It is
// a no-op if InitializeRuntime was never called or failed.
func ShutdownRuntime() error {
	if !ortInitialized {
		return nil
	}
	ortInitialized = false
	return ort.DestroyEnvironment()
}

// NeuralComputer is a UserEmbeddingComputer backed by an ONNX graph,
// replacing the single-threaded-executor TensorFlow graph the stack used
// before: same named tensors, same event-history framing, different
// runtime. A session only supports one concurrent Run, so calls are
// serialized behind a mutex.
type NeuralComputer struct {
	mu      sync.Mutex
	session *ort.DynamicAdvancedSession
}

// NewNeuralComputer loads the ONNX graph at modelPath and binds it to the
// five named input tensors and the single named output tensor the graph is
// expected to expose.
func NewNeuralComputer(modelPath string) (*NeuralComputer, error) {
	session, err := ort.NewDynamicAdvancedSession(
		modelPath,
		[]string{tensorProductEmbeddings, tensorTimestamps, tensorCurrentTimestamp, tensorEventTypes, tensorNbEvents},
		[]string{tensorUserEmbeddingOut},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("loading onnx model %s: %w", modelPath, err)
	}
	return &NeuralComputer{session: session}, nil
}

// Close releases the underlying ONNX session.
func (n *NeuralComputer) Close() error {
	if n.session == nil {
		return nil
	}
	return n.session.Destroy()
}

func (n *NeuralComputer) ComputeUserVector(ctx context.Context, registry *Registry, events []UserEvent) (EmbeddingResult, error) {
	dim := registry.Dimension()
	nEvents := int64(len(events))

	productEmbeddings := make([]float32, 0, len(events)*dim)
	timestamps := make([]int64, len(events))
	eventTypes := make([]int64, len(events))
	usedCount := 0

	for i, ev := range events {
		vec, ok := registry.FetchItem(ev.PartnerID, ev.Label)
		if ok {
			usedCount++
			productEmbeddings = append(productEmbeddings, vec...)
		} else {
			productEmbeddings = append(productEmbeddings, make([]float32, dim)...)
		}
		timestamps[i] = ev.Timestamp
		eventTypes[i] = int64(ev.EventType)
	}

	productTensor, err := ort.NewTensor(ort.NewShape(1, nEvents, int64(dim)), productEmbeddings)
	if err != nil {
		return EmbeddingResult{}, fmt.Errorf("building product_embeddings tensor: %w", err)
	}
	defer productTensor.Destroy()

	timestampsTensor, err := ort.NewTensor(ort.NewShape(1, nEvents), timestamps)
	if err != nil {
		return EmbeddingResult{}, fmt.Errorf("building timestamps_sec tensor: %w", err)
	}
	defer timestampsTensor.Destroy()

	eventTypesTensor, err := ort.NewTensor(ort.NewShape(1, nEvents), eventTypes)
	if err != nil {
		return EmbeddingResult{}, fmt.Errorf("building event_types tensor: %w", err)
	}
	defer eventTypesTensor.Destroy()

	currentTimestampTensor, err := ort.NewTensor(ort.NewShape(1), []int64{nowFunc()})
	if err != nil {
		return EmbeddingResult{}, fmt.Errorf("building current_timestamp_sec tensor: %w", err)
	}
	defer currentTimestampTensor.Destroy()

	nbEventsTensor, err := ort.NewTensor(ort.NewShape(1), []int64{nEvents})
	if err != nil {
		return EmbeddingResult{}, fmt.Errorf("building nb_events tensor: %w", err)
	}
	defer nbEventsTensor.Destroy()

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(dim)))
	if err != nil {
		return EmbeddingResult{}, fmt.Errorf("allocating user_embedding output tensor: %w", err)
	}
	defer outputTensor.Destroy()

	n.mu.Lock()
	err = n.session.Run(
		[]ort.Value{productTensor, timestampsTensor, currentTimestampTensor, eventTypesTensor, nbEventsTensor},
		[]ort.Value{outputTensor},
	)
	n.mu.Unlock()
	if err != nil {
		return EmbeddingResult{}, fmt.Errorf("running neural evaluator: %w", err)
	}

	result := make([]float32, dim)
	copy(result, outputTensor.GetData())

	return EmbeddingResult{UserEmbedding: result, UsedCount: usedCount}, nil
}
