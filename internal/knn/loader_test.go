package knn

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	chromem "github.com/philippgille/chromem-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeInt64Array(t *testing.T, path string, vals []int64) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	for _, v := range vals {
		require.NoError(t, binary.Write(f, binary.BigEndian, v))
	}
}

func writeFloat32Array(t *testing.T, path string, vals []float32) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	for _, v := range vals {
		require.NoError(t, binary.Write(f, binary.BigEndian, v))
	}
}

func writeChunkFiles(t *testing.T, dir string, base string, labels []int64, vectors [][]float32) {
	t.Helper()
	writeInt64Array(t, filepath.Join(dir, base+".index_inverseMapping.array"), labels)

	norms := make([]float32, len(labels))
	for i, v := range vectors {
		var sum float32
		for _, c := range v {
			sum += c * c
		}
		norms[i] = sum
	}
	writeFloat32Array(t, filepath.Join(dir, base+".index_embeddingNorms.array"), norms)

	var flat []float32
	for _, v := range vectors {
		flat = append(flat, v...)
	}
	writeFloat32Array(t, filepath.Join(dir, base+".index"), flat)
}

func TestLoader_LoadIndexFolder(t *testing.T) {
	root := t.TempDir()
	indicesDir := filepath.Join(root, "indices")
	require.NoError(t, os.MkdirAll(indicesDir, 0o755))

	chunks := []ChunkMetadata{
		{PartnerID: 1, ChunkID: 0, Country: "FR", IsRecommendable: true, Metric: "cosine", Dimension: 2},
		{PartnerID: 1, ChunkID: 1, Country: "FR", IsRecommendable: false, Metric: "cosine", Dimension: 2},
	}
	metaFile, err := os.Create(filepath.Join(root, "metadata.json"))
	require.NoError(t, err)
	require.NoError(t, json.NewEncoder(metaFile).Encode(chunks))
	require.NoError(t, metaFile.Close())

	writeChunkFiles(t, indicesDir, chunks[0].indexFileBase(), []int64{1, 2}, [][]float32{{1, 0}, {0, 1}})
	writeChunkFiles(t, indicesDir, chunks[1].indexFileBase(), []int64{3}, [][]float32{{1, 1}})

	loader := NewLoader(chromem.NewDB())
	registry, err := loader.LoadIndexFolder(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, 2, registry.Dimension())
	assert.ElementsMatch(t, []int64{1, 2}, registry.ListLabels(1))

	v, ok := registry.FetchItem(1, 3)
	require.True(t, ok)
	assert.Equal(t, []float32{1, 1}, v)

	results, err := registry.Search(context.Background(), 1, []float32{1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int64(1), results[0].Label)
}

func TestLoader_DimensionMismatchAcrossChunks(t *testing.T) {
	root := t.TempDir()
	indicesDir := filepath.Join(root, "indices")
	require.NoError(t, os.MkdirAll(indicesDir, 0o755))

	chunks := []ChunkMetadata{
		{PartnerID: 1, ChunkID: 0, Country: "FR", IsRecommendable: true, Metric: "cosine", Dimension: 2},
		{PartnerID: 2, ChunkID: 0, Country: "FR", IsRecommendable: true, Metric: "cosine", Dimension: 3},
	}
	metaFile, err := os.Create(filepath.Join(root, "metadata.json"))
	require.NoError(t, err)
	require.NoError(t, json.NewEncoder(metaFile).Encode(chunks))
	require.NoError(t, metaFile.Close())

	writeChunkFiles(t, indicesDir, chunks[0].indexFileBase(), []int64{1}, [][]float32{{1, 0}})
	writeChunkFiles(t, indicesDir, chunks[1].indexFileBase(), []int64{2}, [][]float32{{1, 0, 0}})

	loader := NewLoader(chromem.NewDB())
	_, err = loader.LoadIndexFolder(context.Background(), root)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestLoader_MissingMetadataFile(t *testing.T) {
	root := t.TempDir()
	loader := NewLoader(chromem.NewDB())
	_, err := loader.LoadIndexFolder(context.Background(), root)
	require.Error(t, err)
}
