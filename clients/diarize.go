package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// TimeSpan is an utterance span submitted for speaker labeling.
type TimeSpan struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// SpeakerSpan is one diarized span: a time range, the speaker the service
// assigned, and how confident it is in that assignment.
type SpeakerSpan struct {
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	SpeakerID  string  `json:"speaker_id"`
	Confidence float64 `json:"confidence"`
}

type diarizeReq struct {
	AudioRef string     `json:"audio_ref"`
	Spans    []TimeSpan `json:"spans,omitempty"`
}

type diarizeResp struct {
	Speakers []SpeakerSpan `json:"speakers"`
	Version  string        `json:"model_version"`
}

// Diarize asks the diarization service to assign speakers over the given
// audio. The returned spans carry per-span confidence; thresholding into the
// unknown sentinel is the preprocessing stage's job, not the client's.
func (h *HTTP) Diarize(ctx context.Context, url, audioRef string, spans []TimeSpan) ([]SpeakerSpan, string, error) {
	b, _ := json.Marshal(diarizeReq{AudioRef: audioRef, Spans: spans})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url+"/diarize", bytes.NewReader(b))
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.c.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, "", fmt.Errorf("diarize %s: %s", resp.Status, string(body))
	}

	var out diarizeResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, "", fmt.Errorf("diarize decode: %w", err)
	}
	return out.Speakers, out.Version, nil
}
