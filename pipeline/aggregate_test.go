package pipeline_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hsie-lab/hsie-pipeline/evidence"
	"github.com/hsie-lab/hsie-pipeline/pipeline"
	"github.com/hsie-lab/hsie-pipeline/store"
)

// commitAnalyzed builds a full raw→preprocessed→analyzed chain around the
// given segments and analyses, so aggregation tests can shape their input
// precisely.
func commitAnalyzed(t *testing.T, st store.Store, segments []evidence.Segment, analyses []evidence.SegmentAnalysis, requested []evidence.AnalyzerKind) evidence.Evidence {
	t.Helper()

	raw, err := evidence.New(evidence.KindRaw, "", evidence.ProducerEntry, evidence.RawPayload{Transcript: "fixture", AudioRef: "a.wav"})
	require.NoError(t, err)
	_, err = st.Put(raw)
	require.NoError(t, err)

	pre, err := evidence.New(evidence.KindPreprocessed, raw.ID, evidence.ProducerPreprocess, evidence.PreprocessedPayload{
		Segments: segments,
		Diarizer: "fixture",
	})
	require.NoError(t, err)
	_, err = st.Put(pre)
	require.NoError(t, err)

	an, err := evidence.New(evidence.KindAnalyzed, pre.ID, evidence.ProducerAnalysis, evidence.AnalyzedPayload{
		Segments:  segments,
		Analyses:  analyses,
		Requested: requested,
	})
	require.NoError(t, err)
	_, err = st.Put(an)
	require.NoError(t, err)
	return an
}

func result(value, confidence float64) evidence.AnalysisResult {
	return evidence.AnalysisResult{Value: value, Confidence: confidence, AnalyzerVersion: "test-v1"}
}

func TestAggregate_RenormalizesOverPresentDimensions(t *testing.T) {
	st := store.NewMemory()
	p := newTestPipeline(testConfig(), st, stubTranscriber{}, stubDiarizer{}, nil)

	segments := []evidence.Segment{
		{Index: 0, Start: 0, End: 1, SpeakerID: "sp_a", Text: "one"},
		{Index: 1, Start: 2, End: 3, SpeakerID: "sp_b", Text: "two"},
	}
	// Only acoustic and semantic ran; linguistic was never requested.
	analyses := []evidence.SegmentAnalysis{
		{Results: map[evidence.AnalyzerKind]evidence.AnalysisResult{
			evidence.AnalyzerAcoustic: result(0.4, 1),
			evidence.AnalyzerSemantic: result(0.6, 1),
		}},
		{Results: map[evidence.AnalyzerKind]evidence.AnalysisResult{
			evidence.AnalyzerAcoustic: result(0.2, 1),
			evidence.AnalyzerSemantic: result(0.8, 1),
		}},
	}
	an := commitAnalyzed(t, st, segments, analyses, []evidence.AnalyzerKind{evidence.AnalyzerAcoustic, evidence.AnalyzerSemantic})

	score, scored, err := p.Aggregate(context.Background(), an.ID, nil)
	require.NoError(t, err)

	// Configured thirds renormalize to halves over the two present dims.
	require.Len(t, score.Weights, 2)
	assert.InDelta(t, 0.5, score.Weights[evidence.AnalyzerAcoustic], 1e-9)
	assert.InDelta(t, 0.5, score.Weights[evidence.AnalyzerSemantic], 1e-9)
	assert.NotContains(t, score.Weights, evidence.AnalyzerLinguistic)

	// acoustic mean 0.3, semantic mean 0.7 at equal weight.
	assert.InDelta(t, 0.5, score.HSI, 1e-9)
	assert.Equal(t, an.ID, score.ScoredFrom)

	// The scored evidence is a sibling: same preprocessed parent, new id.
	assert.Equal(t, an.ParentID, scored.ParentID)
	assert.NotEqual(t, an.ID, scored.ID)
	assert.Equal(t, evidence.ProducerAggregator, scored.Producer)

	ap, err := scored.Analyzed()
	require.NoError(t, err)
	require.NotNil(t, ap.Score)
	assert.InDelta(t, score.HSI, ap.Score.HSI, 1e-9)
}

func TestAggregate_MissingResultExcludedFromDimension(t *testing.T) {
	st := store.NewMemory()
	p := newTestPipeline(testConfig(), st, stubTranscriber{}, stubDiarizer{}, nil)

	segments := []evidence.Segment{
		{Index: 0, Start: 0, End: 1, SpeakerID: "sp_a", Text: "one"},
		{Index: 1, Start: 2, End: 3, SpeakerID: "sp_b", Text: "two"},
	}
	// Segment 1 has no semantic result (marked failure): it must not drag
	// the semantic dimension toward zero.
	analyses := []evidence.SegmentAnalysis{
		{Results: map[evidence.AnalyzerKind]evidence.AnalysisResult{
			evidence.AnalyzerAcoustic: result(0.5, 1),
			evidence.AnalyzerSemantic: result(0.9, 1),
		}},
		{
			Results: map[evidence.AnalyzerKind]evidence.AnalysisResult{
				evidence.AnalyzerAcoustic: result(0.5, 1),
			},
			Failures: map[evidence.AnalyzerKind]evidence.FailureMarker{
				evidence.AnalyzerSemantic: {Reason: "timeout"},
			},
		},
	}
	an := commitAnalyzed(t, st, segments, analyses, []evidence.AnalyzerKind{evidence.AnalyzerAcoustic, evidence.AnalyzerSemantic})

	score, _, err := p.Aggregate(context.Background(), an.ID, nil)
	require.NoError(t, err)

	// semantic dimension = 0.9 from the one segment that has it.
	assert.InDelta(t, 0.5*0.5+0.5*0.9, score.HSI, 1e-9)

	for _, c := range score.Components {
		if c.SegmentIndex == 1 {
			assert.NotEqual(t, evidence.AnalyzerSemantic, c.Analyzer, "failed pair must not contribute")
		}
	}
}

func TestAggregate_InsufficientEvidence(t *testing.T) {
	st := store.NewMemory()
	p := newTestPipeline(testConfig(), st, stubTranscriber{}, stubDiarizer{}, nil)

	segments := []evidence.Segment{{Index: 0, Start: 0, End: 1, SpeakerID: "sp_a", Text: "one"}}
	analyses := []evidence.SegmentAnalysis{
		{Failures: map[evidence.AnalyzerKind]evidence.FailureMarker{
			evidence.AnalyzerAcoustic: {Reason: "unavailable"},
		}},
	}
	an := commitAnalyzed(t, st, segments, analyses, []evidence.AnalyzerKind{evidence.AnalyzerAcoustic})

	_, _, err := p.Aggregate(context.Background(), an.ID, nil)
	var insufficient *pipeline.InsufficientEvidenceError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, "InsufficientEvidenceError", evidence.Kind(err))
}

func TestAggregate_HSIEEscalatesRepeatedPairs(t *testing.T) {
	st := store.NewMemory()
	p := newTestPipeline(testConfig(), st, stubTranscriber{}, stubDiarizer{}, nil)

	// sp_a attacks sp_b three times above the severity floor; HSIE must
	// exceed HSI via the declared escalation, capped by max_boost.
	segments := []evidence.Segment{
		{Index: 0, Start: 0, End: 1, SpeakerID: "sp_b", Text: "please stop"},
		{Index: 1, Start: 2, End: 3, SpeakerID: "sp_a", Text: "severe one"},
		{Index: 2, Start: 4, End: 5, SpeakerID: "sp_b", Text: "please"},
		{Index: 3, Start: 6, End: 7, SpeakerID: "sp_a", Text: "severe two"},
		{Index: 4, Start: 8, End: 9, SpeakerID: "sp_b", Text: "stop"},
		{Index: 5, Start: 10, End: 11, SpeakerID: "sp_a", Text: "severe three"},
	}
	mild := map[evidence.AnalyzerKind]evidence.AnalysisResult{evidence.AnalyzerSemantic: result(0.1, 1)}
	severe := map[evidence.AnalyzerKind]evidence.AnalysisResult{evidence.AnalyzerSemantic: result(0.8, 1)}
	analyses := []evidence.SegmentAnalysis{
		{Results: mild}, {Results: severe}, {Results: mild}, {Results: severe}, {Results: mild}, {Results: severe},
	}
	an := commitAnalyzed(t, st, segments, analyses, []evidence.AnalyzerKind{evidence.AnalyzerSemantic})

	score, _, err := p.Aggregate(context.Background(), an.ID, nil)
	require.NoError(t, err)
	assert.Greater(t, score.HSIE, score.HSI)

	// First severe occurrence of the pair is unescalated; later ones climb
	// by the configured step.
	factorBySegment := map[int]float64{}
	for _, c := range score.Components {
		factorBySegment[c.SegmentIndex] = c.Escalation
	}
	assert.InDelta(t, 1.0, factorBySegment[1], 1e-9)
	assert.InDelta(t, 1.25, factorBySegment[3], 1e-9)
	assert.InDelta(t, 1.5, factorBySegment[5], 1e-9)
}

func TestAggregate_UnknownSpeakerNeverEscalates(t *testing.T) {
	st := store.NewMemory()
	p := newTestPipeline(testConfig(), st, stubTranscriber{}, stubDiarizer{}, nil)

	segments := []evidence.Segment{
		{Index: 0, Start: 0, End: 1, SpeakerID: "sp_b", Text: "context"},
		{Index: 1, Start: 2, End: 3, SpeakerID: evidence.SpeakerUnknown, Text: "severe"},
		{Index: 2, Start: 4, End: 5, SpeakerID: evidence.SpeakerUnknown, Text: "severe again"},
	}
	severe := map[evidence.AnalyzerKind]evidence.AnalysisResult{evidence.AnalyzerSemantic: result(0.9, 1)}
	mild := map[evidence.AnalyzerKind]evidence.AnalysisResult{evidence.AnalyzerSemantic: result(0.1, 1)}
	analyses := []evidence.SegmentAnalysis{{Results: mild}, {Results: severe}, {Results: severe}}
	an := commitAnalyzed(t, st, segments, analyses, []evidence.AnalyzerKind{evidence.AnalyzerSemantic})

	score, _, err := p.Aggregate(context.Background(), an.ID, nil)
	require.NoError(t, err)
	assert.InDelta(t, score.HSI, score.HSIE, 1e-9, "unknown speakers must not be conflated into escalation")
}

func TestAggregate_RejectsWrongKindAndRerunIsDeterministic(t *testing.T) {
	st := store.NewMemory()
	p := newTestPipeline(testConfig(), st, stubTranscriber{}, stubDiarizer{}, nil)

	segments := []evidence.Segment{{Index: 0, Start: 0, End: 1, SpeakerID: "sp_a", Text: "one"}}
	analyses := []evidence.SegmentAnalysis{{Results: map[evidence.AnalyzerKind]evidence.AnalysisResult{
		evidence.AnalyzerAcoustic: result(0.3, 0.9),
	}}}
	an := commitAnalyzed(t, st, segments, analyses, []evidence.AnalyzerKind{evidence.AnalyzerAcoustic})

	_, _, err := p.Aggregate(context.Background(), an.ParentID, nil)
	var ie *evidence.IntegrityError
	require.ErrorAs(t, err, &ie, "aggregating a preprocessed evidence is rejected")

	_, first, err := p.Aggregate(context.Background(), an.ID, nil)
	require.NoError(t, err)
	_, second, err := p.Aggregate(context.Background(), an.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "equal input and weights converge on one scored evidence")

	children, err := st.Children(an.ParentID)
	require.NoError(t, err)
	assert.Len(t, children, 2, "input analyzed plus one scored sibling")
}
