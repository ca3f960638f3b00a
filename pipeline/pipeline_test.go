package pipeline_test

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/hsie-lab/hsie-pipeline/analysis"
	"github.com/hsie-lab/hsie-pipeline/clients"
	"github.com/hsie-lab/hsie-pipeline/config"
	"github.com/hsie-lab/hsie-pipeline/evidence"
	"github.com/hsie-lab/hsie-pipeline/pipeline"
	"github.com/hsie-lab/hsie-pipeline/store"
)

// --- stubs -----------------------------------------------------------------

type stubTranscriber struct {
	res *clients.TranscriptResult
	err error
}

func (s stubTranscriber) Transcribe(ctx context.Context, audioRef string) (*clients.TranscriptResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.res, nil
}

type stubDiarizer struct {
	spans   []clients.SpeakerSpan
	version string
	err     error
}

func (s stubDiarizer) Name() string { return "stub-diarizer" }

func (s stubDiarizer) Diarize(ctx context.Context, audioRef string, spans []clients.TimeSpan) ([]clients.SpeakerSpan, string, error) {
	if s.err != nil {
		return nil, "", s.err
	}
	return s.spans, s.version, nil
}

type stubAnalyzer struct {
	kind    evidence.AnalyzerKind
	version string
	fn      func(ctx context.Context, seg evidence.Segment) (float64, float64, error)
}

func (s stubAnalyzer) Kind() evidence.AnalyzerKind { return s.kind }
func (s stubAnalyzer) Version() string             { return s.version }

func (s stubAnalyzer) Score(ctx context.Context, seg evidence.Segment) (float64, float64, error) {
	return s.fn(ctx, seg)
}

func constAnalyzer(kind evidence.AnalyzerKind, value, confidence float64) stubAnalyzer {
	return stubAnalyzer{
		kind:    kind,
		version: string(kind) + "-test-v1",
		fn: func(ctx context.Context, seg evidence.Segment) (float64, float64, error) {
			return value, confidence, nil
		},
	}
}

// countingStore wraps a Store to observe how many puts actually happened.
type countingStore struct {
	store.Store
	puts int
}

func (c *countingStore) Put(ev evidence.Evidence) (string, error) {
	id, err := c.Store.Put(ev)
	if err == nil {
		c.puts++
	}
	return id, err
}

// --- fixtures --------------------------------------------------------------

func testConfig() *config.Root {
	cfg := &config.Root{}
	cfg.Pipeline.Name = "hsie-test"
	cfg.Diarization.ConfidenceThreshold = 0.6
	cfg.Analysis.Workers = 4
	cfg.Scoring.Weights = map[string]float64{"acoustic": 1.0 / 3, "semantic": 1.0 / 3, "linguistic": 1.0 / 3}
	cfg.Scoring.SeverityFloor = 0.7
	cfg.Scoring.Escalation = 0.25
	cfg.Scoring.MaxBoost = 2.0
	return cfg
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestPipeline(cfg *config.Root, st store.Store, tr pipeline.Transcriber, di pipeline.Diarizer, analyzers []analysis.Analyzer) *pipeline.Pipeline {
	return pipeline.NewPipeline(cfg, st, tr, di, analyzers, quietLogger())
}

// sampleTranscript is the shared capture fixture: two chunks close enough to
// merge, one low-diarization-confidence utterance, one empty chunk, and a
// final utterance after a long pause.
func sampleTranscript() *clients.TranscriptResult {
	return &clients.TranscriptResult{
		Transcript: "we need to talk about your performance I did everything you asked you are useless and everyone knows it",
		Chunks: []evidence.TranscriptChunk{
			{Start: 0.0, End: 1.0, Text: "we need to talk", Confidence: 0.95},
			{Start: 1.2, End: 2.2, Text: "about your performance", Confidence: 0.92},
			{Start: 3.5, End: 4.5, Text: "I did everything you asked", Confidence: 0.90},
			{Start: 4.6, End: 4.6, Text: "", Confidence: 0},
			{Start: 6.8, End: 7.8, Text: "you are useless and everyone knows it", Confidence: 0.97},
		},
		Language:          "en",
		Engine:            "stub-asr",
		EngineVersion:     "v1",
		Duration:          7.8,
		OverallConfidence: 0.93,
	}
}

func sampleSpeakers() []clients.SpeakerSpan {
	return []clients.SpeakerSpan{
		{Start: 0.0, End: 2.2, SpeakerID: "sp_a", Confidence: 0.9},
		{Start: 3.5, End: 4.5, SpeakerID: "sp_b", Confidence: 0.4},
		{Start: 6.8, End: 7.8, SpeakerID: "sp_a", Confidence: 0.85},
	}
}

// captureAndPreprocess walks the fixture through the first two stages.
func captureAndPreprocess(t *testing.T, p *pipeline.Pipeline) (raw, preprocessed evidence.Evidence) {
	t.Helper()
	raw, err := p.Capture(context.Background(), "meeting.wav")
	require.NoError(t, err)
	preprocessed, err = p.Preprocess(context.Background(), raw.ID)
	require.NoError(t, err)
	return raw, preprocessed
}
