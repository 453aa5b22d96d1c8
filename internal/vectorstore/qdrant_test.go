package vectorstore

import (
	"errors"
	"testing"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/fyrsmithlabs/hierctx/internal/hierarchy"
)

func TestQdrantConfig_Defaults(t *testing.T) {
	var cfg QdrantConfig
	cfg.ApplyDefaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 6334, cfg.Port)
	assert.Equal(t, uint64(384), cfg.VectorSize)

	cfg.Port = 70000
	require.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}

func TestIsTransientError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("plain"), false},
		{status.Error(grpccodes.Unavailable, "down"), true},
		{status.Error(grpccodes.DeadlineExceeded, "slow"), true},
		{status.Error(grpccodes.NotFound, "missing"), false},
		{status.Error(grpccodes.InvalidArgument, "bad"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsTransientError(tt.err), "%v", tt.err)
	}
	assert.True(t, isNotFound(status.Error(grpccodes.NotFound, "missing")))
	assert.False(t, isNotFound(nil))
}

func TestBuildFilter(t *testing.T) {
	assert.Nil(t, buildFilter(nil))

	target := hierarchy.DepartmentTarget{Company: "c1", Department: "d1"}
	f := buildFilter(target.Filter())
	require.Len(t, f.Must, 3)

	var keys []string
	for _, c := range f.Must {
		field := c.GetField()
		require.NotNil(t, field)
		keys = append(keys, field.GetKey())
		assert.Equal(t, target.Filter()[field.GetKey()], field.GetMatch().GetKeyword())
	}
	assert.Equal(t, []string{"company", "department", "level"}, keys)
}

func TestPointRoundTrip(t *testing.T) {
	m, err := hierarchy.NewMetadata("c1", "d1", "e1")
	require.NoError(t, err)
	doc := Document{
		ID:       "5f0c7d3e-8e4e-5d1c-9a53-4a3c1f0e2b11",
		Content:  "notes",
		Source:   "c1/d1/e1/notes.md",
		Index:    2,
		Metadata: m,
		Vector:   []float32{0.6, 0.8},
	}

	point := toPoint(doc)
	assert.Equal(t, "c1|d1|e1", point.Payload[hierarchy.KeyHierarchyKey].GetStringValue())

	got, err := fromPoint(&qdrant.ScoredPoint{Payload: point.Payload, Score: 0.9})
	require.NoError(t, err)
	assert.Equal(t, SearchResult{
		ID:       doc.ID,
		Content:  "notes",
		Source:   "c1/d1/e1/notes.md",
		Index:    2,
		Metadata: m,
		Score:    0.9,
	}, got)

	_, err = fromPoint(&qdrant.ScoredPoint{Payload: map[string]*qdrant.Value{}})
	require.Error(t, err)
}

func TestIsGenerationName(t *testing.T) {
	assert.True(t, isGenerationName(hierarchy.CompanyPartition("c1").Name()+"_gabc123"))
	assert.True(t, isGenerationName(hierarchy.GeneralPartition.Name()+"_g1"))
	assert.False(t, isGenerationName("hc_general"))
	assert.False(t, isGenerationName("memories_gx"))
}
