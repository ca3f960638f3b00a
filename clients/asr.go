package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/hsie-lab/hsie-pipeline/evidence"
)

// TranscriptionError reason codes.
const (
	ReasonUnsupportedFormat = "unsupported_format"
	ReasonLowConfidence     = "low_confidence"
	ReasonTimeout           = "timeout"
	ReasonUnavailable       = "unavailable"
)

// TranscriptionError is a capture-time failure from the ASR engine. It is
// terminal for that capture: the entry stage writes no evidence when it sees
// one.
type TranscriptionError struct {
	Reason string
	Err    error
}

func (e *TranscriptionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transcription failed (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("transcription failed (%s)", e.Reason)
}

func (e *TranscriptionError) Unwrap() error     { return e.Err }
func (e *TranscriptionError) ErrorKind() string { return "TranscriptionError" }

// TranscriptResult is the complete output of one transcription call.
type TranscriptResult struct {
	Transcript        string
	Chunks            []evidence.TranscriptChunk
	Language          string
	Engine            string
	EngineVersion     string
	Duration          float64
	OverallConfidence float64
}

type asrSegment struct {
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

type asrResp struct {
	Transcript string       `json:"text"`
	Segments   []asrSegment `json:"segments"`
	Language   string       `json:"language"`
	Duration   float64      `json:"duration"`
	Confidence float64      `json:"confidence"`
	Engine     string       `json:"engine"`
	Version    string       `json:"model_version"`
}

// ASR uploads the audio file to the transcription service and returns the
// timed transcript. Failures map onto TranscriptionError reason codes; a
// non-2xx status never yields a partial result.
func (h *HTTP) ASR(ctx context.Context, url, audioPath string) (*TranscriptResult, error) {
	var b bytes.Buffer
	w := multipart.NewWriter(&b)

	fw, err := w.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, &TranscriptionError{Reason: ReasonUnavailable, Err: err}
	}
	fd, err := os.Open(audioPath)
	if err != nil {
		return nil, &TranscriptionError{Reason: ReasonUnsupportedFormat, Err: err}
	}
	defer fd.Close()

	if _, err = io.Copy(fw, fd); err != nil {
		return nil, &TranscriptionError{Reason: ReasonUnavailable, Err: err}
	}
	if err = w.Close(); err != nil {
		return nil, &TranscriptionError{Reason: ReasonUnavailable, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url+"/transcribe", &b)
	if err != nil {
		return nil, &TranscriptionError{Reason: ReasonUnavailable, Err: err}
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := h.c.Do(req)
	if err != nil {
		reason := ReasonUnavailable
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			reason = ReasonTimeout
		}
		return nil, &TranscriptionError{Reason: reason, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		reason := ReasonUnavailable
		switch resp.StatusCode {
		case http.StatusUnsupportedMediaType:
			reason = ReasonUnsupportedFormat
		case http.StatusUnprocessableEntity:
			reason = ReasonLowConfidence
		case http.StatusGatewayTimeout:
			reason = ReasonTimeout
		}
		return nil, &TranscriptionError{Reason: reason, Err: fmt.Errorf("asr %s: %s", resp.Status, string(body))}
	}

	var out asrResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &TranscriptionError{Reason: ReasonUnavailable, Err: fmt.Errorf("asr decode: %w", err)}
	}

	chunks := make([]evidence.TranscriptChunk, 0, len(out.Segments))
	for _, s := range out.Segments {
		chunks = append(chunks, evidence.TranscriptChunk{Start: s.Start, End: s.End, Text: s.Text, Confidence: s.Confidence})
	}
	return &TranscriptResult{
		Transcript:        out.Transcript,
		Chunks:            chunks,
		Language:          out.Language,
		Engine:            out.Engine,
		EngineVersion:     out.Version,
		Duration:          out.Duration,
		OverallConfidence: out.Confidence,
	}, nil
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
