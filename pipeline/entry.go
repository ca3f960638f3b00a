package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/hsie-lab/hsie-pipeline/evidence"
)

// Capture runs the entry stage: transcribe the audio exactly once and commit
// the raw evidence. On transcription failure nothing is written; there is no
// placeholder or partial evidence. The raw payload schema has no speaker
// field, so diarization-dependent code cannot run against it by construction.
func (p *Pipeline) Capture(ctx context.Context, audioRef string) (evidence.Evidence, error) {
	res, err := p.asr.Transcribe(ctx, audioRef)
	if err != nil {
		return evidence.Evidence{}, fmt.Errorf("entry stage: %s: %w", audioRef, err)
	}

	payload := evidence.RawPayload{
		Transcript:        res.Transcript,
		Chunks:            res.Chunks,
		AudioRef:          audioRef,
		Language:          res.Language,
		Engine:            res.Engine,
		EngineVersion:     res.EngineVersion,
		SessionID:         uuid.NewString(),
		CaptureID:         uuid.NewString(),
		Duration:          res.Duration,
		OverallConfidence: res.OverallConfidence,
	}

	ev, err := evidence.New(evidence.KindRaw, "", evidence.ProducerEntry, payload)
	if err != nil {
		return evidence.Evidence{}, fmt.Errorf("entry stage: %w", err)
	}
	id, err := p.store.Put(ev)
	if err != nil {
		return evidence.Evidence{}, fmt.Errorf("entry stage: commit raw evidence: %w", err)
	}

	p.log.WithFields(logrus.Fields{
		"stage":    "entry",
		"evidence": id,
		"chunks":   len(payload.Chunks),
		"audio":    audioRef,
	}).Info("committed raw evidence")

	return p.store.Get(id)
}
