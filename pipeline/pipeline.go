// Package pipeline implements the four evidence stages: entry (capture),
// preprocessing (diarization + segment reconstruction), analysis (per-segment
// scoring) and aggregation (HSI/HSIE). Stages only read committed evidence
// and submit new versions; nothing is ever mutated in place.
package pipeline

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/hsie-lab/hsie-pipeline/analysis"
	"github.com/hsie-lab/hsie-pipeline/clients"
	"github.com/hsie-lab/hsie-pipeline/config"
	"github.com/hsie-lab/hsie-pipeline/store"
)

// Transcriber is the opaque ASR collaborator. Either it returns a complete
// transcript or the capture fails; there is no partial result.
type Transcriber interface {
	Transcribe(ctx context.Context, audioRef string) (*clients.TranscriptResult, error)
}

// Diarizer assigns speakers to time spans. The second return value is the
// model version, recorded in the preprocessed payload for reproducibility.
type Diarizer interface {
	Name() string
	Diarize(ctx context.Context, audioRef string, spans []clients.TimeSpan) ([]clients.SpeakerSpan, string, error)
}

type Pipeline struct {
	cfg       *config.Root
	store     store.Store
	asr       Transcriber
	diarizer  Diarizer
	analyzers []analysis.Analyzer
	log       *logrus.Logger
}

func NewPipeline(cfg *config.Root, st store.Store, asr Transcriber, di Diarizer, analyzers []analysis.Analyzer, log *logrus.Logger) *Pipeline {
	if log == nil {
		log = logrus.New()
	}
	return &Pipeline{cfg: cfg, store: st, asr: asr, diarizer: di, analyzers: analyzers, log: log}
}

// Store exposes the evidence store for lineage inspection.
func (p *Pipeline) Store() store.Store { return p.store }
