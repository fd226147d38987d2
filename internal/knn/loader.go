package knn

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	chromem "github.com/philippgille/chromem-go"
)

// ChunkMetadata is one entry of an indices folder's metadata.json: the
// description of a single on-disk chunk (one partner/chunk/recommendable
// combination) that the Loader must assemble into a Shard.
type ChunkMetadata struct {
	PartnerID       int32  `json:"partnerId"`
	ChunkID         int32  `json:"chunkId"`
	Count           int    `json:"count"`
	Country         string `json:"country"`
	IndexParams     string `json:"indexParams"`
	IsRecommendable bool   `json:"isRecommendable"`
	Metric          string `json:"metric"`
	Dimension       int    `json:"dimension"`
}

// indexFileBase returns the base filename a chunk's three on-disk files
// share: "{country}.{partner}.{chunk}.{True|False}".
func (m ChunkMetadata) indexFileBase() string {
	flag := "False"
	if m.IsRecommendable {
		flag = "True"
	}
	return fmt.Sprintf("%s.%d.%d.%s", m.Country, m.PartnerID, m.ChunkID, flag)
}

// Loader assembles a Registry from an on-disk indices folder. Vectors are
// persisted into chromem-go collections as they're loaded, one collection
// per chunk, named after the chunk's index file base.
type Loader struct {
	db *chromem.DB
}

// NewLoader returns a Loader that persists loaded chunks into db.
func NewLoader(db *chromem.DB) *Loader {
	return &Loader{db: db}
}

// LoadIndexFolder reads root/metadata.json and the index/mapping/norms
// files it references under root/indices/, and assembles them into a
// Registry. Every chunk must declare the same dimension; any IO, parse, or
// dimension-mismatch failure aborts the whole load rather than returning a
// partially-built registry.
func (l *Loader) LoadIndexFolder(ctx context.Context, root string) (*Registry, error) {
	metadataPath := filepath.Join(root, "metadata.json")
	f, err := os.Open(metadataPath)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", metadataPath, err)
	}
	defer f.Close()

	var chunks []ChunkMetadata
	if err := json.NewDecoder(f).Decode(&chunks); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", metadataPath, err)
	}

	shardsByPartner := make(map[int32][]*Shard)
	dimension := 0

	for _, chunk := range chunks {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if dimension == 0 {
			dimension = chunk.Dimension
		} else if chunk.Dimension != dimension {
			return nil, fmt.Errorf("%w: chunk %s declares dimension %d, registry is %d", ErrDimensionMismatch, chunk.indexFileBase(), chunk.Dimension, dimension)
		}

		shard, err := l.loadChunk(ctx, root, chunk)
		if err != nil {
			return nil, fmt.Errorf("loading chunk %s: %w", chunk.indexFileBase(), err)
		}
		shardsByPartner[chunk.PartnerID] = append(shardsByPartner[chunk.PartnerID], shard)
	}

	partners := make(map[int32]*PartnerIndex, len(shardsByPartner))
	for partnerID, shards := range shardsByPartner {
		partners[partnerID] = NewPartnerIndex(dimension, shards)
	}

	return NewRegistry(dimension, partners), nil
}

func (l *Loader) loadChunk(ctx context.Context, root string, chunk ChunkMetadata) (*Shard, error) {
	base := chunk.indexFileBase()
	indicesDir := filepath.Join(root, "indices")

	metric, err := ParseMetric(chunk.Metric)
	if err != nil {
		return nil, err
	}

	labels, err := readInt64Array(filepath.Join(indicesDir, base+".index_inverseMapping.array"))
	if err != nil {
		return nil, fmt.Errorf("reading inverse mapping: %w", err)
	}

	norms, err := readFloat32Array(filepath.Join(indicesDir, base+".index_embeddingNorms.array"))
	if err != nil {
		return nil, fmt.Errorf("reading embedding norms: %w", err)
	}
	if len(norms) != len(labels) {
		return nil, fmt.Errorf("%w: %d norms but %d labels", ErrDimensionMismatch, len(norms), len(labels))
	}

	flat, err := readFloat32Array(filepath.Join(indicesDir, base+".index"))
	if err != nil {
		return nil, fmt.Errorf("reading index vectors: %w", err)
	}
	if chunk.Dimension <= 0 {
		return nil, fmt.Errorf("%w: chunk %s declares non-positive dimension", ErrDimensionMismatch, base)
	}
	if len(flat) != len(labels)*chunk.Dimension {
		return nil, fmt.Errorf("%w: index file holds %d float32s, expected %d labels * %d dims", ErrDimensionMismatch, len(flat), len(labels), chunk.Dimension)
	}

	vectors := make([][]float32, len(labels))
	for i := range labels {
		vectors[i] = flat[i*chunk.Dimension : (i+1)*chunk.Dimension]
	}

	native, err := NewChromemIndex(ctx, l.db, base, metric, chunk.Dimension, labels, vectors)
	if err != nil {
		return nil, err
	}
	return NewShard(native, chunk.IsRecommendable), nil
}

// readInt64Array reads a big-endian i64 array to EOF.
func readInt64Array(path string) ([]int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var out []int64
	for {
		var v int64
		if err := binary.Read(r, binary.BigEndian, &v); err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// readFloat32Array reads a big-endian f32 array to EOF.
func readFloat32Array(path string) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var out []float32
	for {
		var v float32
		if err := binary.Read(r, binary.BigEndian, &v); err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
