package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTEIServer(t *testing.T, handler http.HandlerFunc) *TEIService {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	svc, err := NewTEIService(TEIConfig{BaseURL: srv.URL + "/", Model: "test-model"}, NewMetrics(zap.NewNop()))
	require.NoError(t, err)
	return svc
}

func echoLengths(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/embed", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req teiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Truncate)

		out := make([][]float32, len(req.Inputs))
		for i, in := range req.Inputs {
			out[i] = []float32{float32(len(in)), 1}
		}
		_ = json.NewEncoder(w).Encode(out)
	}
}

func TestTEIService_EmbedDocuments(t *testing.T) {
	svc := newTEIServer(t, echoLengths(t))

	vectors, err := svc.EmbedDocuments(context.Background(), []string{"a", "abc"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 1}, {3, 1}}, vectors)
}

func TestTEIService_EmbedQuery(t *testing.T) {
	svc := newTEIServer(t, echoLengths(t))

	vector, err := svc.EmbedQuery(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{5, 1}, vector)
}

func TestTEIService_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		texts   []string
		wantErr error
	}{
		{
			name:    "empty input",
			handler: func(http.ResponseWriter, *http.Request) { t.Error("unexpected request") },
			texts:   nil,
			wantErr: ErrEmptyInput,
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "model overloaded", http.StatusServiceUnavailable)
			},
			texts:   []string{"x"},
			wantErr: ErrEmbeddingFailed,
		},
		{
			name: "count mismatch",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`[[1,2]]`))
			},
			texts:   []string{"x", "y"},
			wantErr: ErrEmbeddingFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTEIServer(t, tt.handler)
			_, err := svc.EmbedDocuments(context.Background(), tt.texts)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestTEIConfig_Validate(t *testing.T) {
	_, err := NewTEIService(TEIConfig{}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "base URL required")
}
