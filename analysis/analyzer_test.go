package analysis_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hsie-lab/hsie-pipeline/analysis"
	"github.com/hsie-lab/hsie-pipeline/clients"
	"github.com/hsie-lab/hsie-pipeline/evidence"
)

func TestParseKinds(t *testing.T) {
	kinds, err := analysis.ParseKinds([]string{"semantic", "acoustic"})
	require.NoError(t, err)
	assert.Equal(t, []evidence.AnalyzerKind{evidence.AnalyzerSemantic, evidence.AnalyzerAcoustic}, kinds)

	_, err = analysis.ParseKinds([]string{"sentiment"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown analyzer")

	_, err = analysis.ParseKinds([]string{"acoustic", "acoustic"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listed twice")

	kinds, err = analysis.ParseKinds(nil)
	require.NoError(t, err)
	assert.Empty(t, kinds)
}

func TestNewHTTPAnalyzer_Validation(t *testing.T) {
	h := clients.NewHTTP(time.Second)

	_, err := analysis.NewHTTPAnalyzer(h, "sentiment", "v1", "http://x")
	require.Error(t, err)

	_, err = analysis.NewHTTPAnalyzer(h, evidence.AnalyzerAcoustic, "v1", "")
	require.Error(t, err)
}

func TestHTTPAnalyzer_Score(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req clients.ScoreRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "you are useless", req.Text)
		assert.Equal(t, "sp_a", req.SpeakerID)
		json.NewEncoder(w).Encode(clients.ScoreResponse{Value: 0.77, Confidence: 0.91})
	}))
	defer srv.Close()

	a, err := analysis.NewHTTPAnalyzer(clients.NewHTTP(5*time.Second), evidence.AnalyzerSemantic, "sem-v4", srv.URL)
	require.NoError(t, err)
	assert.Equal(t, evidence.AnalyzerSemantic, a.Kind())
	assert.Equal(t, "sem-v4", a.Version())

	value, confidence, err := a.Score(context.Background(), evidence.Segment{
		Index: 2, Start: 6.8, End: 7.8, SpeakerID: "sp_a", Text: "you are useless",
	})
	require.NoError(t, err)
	assert.Equal(t, 0.77, value)
	assert.Equal(t, 0.91, confidence)
}
