// Package analysis defines the pluggable scorer contract for the analysis
// stage. The set of kinds is closed (acoustic, semantic, linguistic); which
// of them run, and against which model version, is configuration.
package analysis

import (
	"context"
	"fmt"

	"github.com/hsie-lab/hsie-pipeline/clients"
	"github.com/hsie-lab/hsie-pipeline/evidence"
)

// Analyzer scores one segment on one dimension. Implementations are
// independent of each other and carry no shared state, so calls for the same
// segment may run concurrently.
type Analyzer interface {
	Kind() evidence.AnalyzerKind
	Version() string
	Score(ctx context.Context, seg evidence.Segment) (value, confidence float64, err error)
}

// ParseKinds validates a configured analyzer list against the closed set and
// rejects duplicates.
func ParseKinds(names []string) ([]evidence.AnalyzerKind, error) {
	seen := make(map[evidence.AnalyzerKind]bool, len(names))
	out := make([]evidence.AnalyzerKind, 0, len(names))
	for _, n := range names {
		k := evidence.AnalyzerKind(n)
		if !evidence.KnownAnalyzer(k) {
			return nil, fmt.Errorf("unknown analyzer %q (want acoustic, semantic or linguistic)", n)
		}
		if seen[k] {
			return nil, fmt.Errorf("analyzer %q listed twice", n)
		}
		seen[k] = true
		out = append(out, k)
	}
	return out, nil
}

// HTTPAnalyzer scores segments through a remote scoring service, one endpoint
// per dimension.
type HTTPAnalyzer struct {
	kind    evidence.AnalyzerKind
	version string
	url     string
	h       *clients.HTTP
}

func NewHTTPAnalyzer(h *clients.HTTP, kind evidence.AnalyzerKind, version, url string) (*HTTPAnalyzer, error) {
	if !evidence.KnownAnalyzer(kind) {
		return nil, fmt.Errorf("unknown analyzer kind %q", kind)
	}
	if url == "" {
		return nil, fmt.Errorf("no %s service url configured", kind)
	}
	return &HTTPAnalyzer{kind: kind, version: version, url: url, h: h}, nil
}

func (a *HTTPAnalyzer) Kind() evidence.AnalyzerKind { return a.kind }

func (a *HTTPAnalyzer) Version() string { return a.version }

func (a *HTTPAnalyzer) Score(ctx context.Context, seg evidence.Segment) (float64, float64, error) {
	resp, err := a.h.Score(ctx, a.url, clients.ScoreRequest{
		Text:      seg.Text,
		Start:     seg.Start,
		End:       seg.End,
		SpeakerID: seg.SpeakerID,
	})
	if err != nil {
		return 0, 0, err
	}
	return resp.Value, resp.Confidence, nil
}
