package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// ScoreRequest is the segment view a scoring service receives. Acoustic
// scorers work from the timing fields, semantic and linguistic scorers from
// the text; all three share one wire contract.
type ScoreRequest struct {
	Text      string  `json:"text"`
	Start     float64 `json:"start"`
	End       float64 `json:"end"`
	SpeakerID string  `json:"speaker_id,omitempty"`
	AudioRef  string  `json:"audio_ref,omitempty"`
}

// ScoreResponse is a bounded score in [0,1] plus the scorer's confidence.
type ScoreResponse struct {
	Value        float64 `json:"value"`
	Confidence   float64 `json:"confidence"`
	ModelVersion string  `json:"model_version,omitempty"`
}

// Score posts one segment to a scoring service. The caller owns the context
// deadline; a failure here is isolated to the (segment, analyzer) pair.
func (h *HTTP) Score(ctx context.Context, url string, req ScoreRequest) (*ScoreResponse, error) {
	b, _ := json.Marshal(req)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url+"/score", bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := h.c.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("score %s: %s", resp.Status, string(body))
	}

	var out ScoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("score decode: %w", err)
	}
	return &out, nil
}
