package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hsie-lab/hsie-pipeline/analysis"
	"github.com/hsie-lab/hsie-pipeline/config"
	"github.com/hsie-lab/hsie-pipeline/evidence"
)

// Analyze scores every segment of a preprocessed evidence with the configured
// analyzer set and commits the analyzed version. Segments run concurrently
// under a bounded worker pool; within a segment the analyzers run in
// parallel, each under its own timeout. One failing (segment, analyzer) pair
// is recorded as a marker and isolates nothing else.
func (p *Pipeline) Analyze(ctx context.Context, preprocessedID string) (evidence.Evidence, error) {
	if len(p.analyzers) == 0 {
		return evidence.Evidence{}, fmt.Errorf("analysis stage: no analyzers configured")
	}

	parent, err := p.store.Get(preprocessedID)
	if err != nil {
		return evidence.Evidence{}, fmt.Errorf("analysis stage: %w", err)
	}
	if parent.VersionKind != evidence.KindPreprocessed {
		return evidence.Evidence{}, &evidence.IntegrityError{
			Stage:    "analysis",
			Evidence: preprocessedID,
			Reason:   fmt.Sprintf("expected preprocessed evidence, got %s", parent.VersionKind),
		}
	}
	pp, err := parent.Preprocessed()
	if err != nil {
		return evidence.Evidence{}, fmt.Errorf("analysis stage: %w", err)
	}

	workers := p.cfg.Analysis.Workers
	if workers <= 0 {
		workers = 1
	}
	timeout := config.DurSeconds(p.cfg.Analysis.TimeoutSec)

	analyses := make([]evidence.SegmentAnalysis, len(pp.Segments))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for i := range pp.Segments {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			analyses[i] = p.analyzeSegment(ctx, pp.Segments[i], timeout)
		}(i)
	}
	wg.Wait()

	requested := make([]evidence.AnalyzerKind, len(p.analyzers))
	failed := 0
	for i, a := range p.analyzers {
		requested[i] = a.Kind()
	}
	for _, sa := range analyses {
		failed += len(sa.Failures)
	}

	payload := evidence.AnalyzedPayload{
		Segments:  pp.Segments,
		Analyses:  analyses,
		Requested: requested,
	}
	ev, err := evidence.New(evidence.KindAnalyzed, parent.ID, evidence.ProducerAnalysis, payload)
	if err != nil {
		return evidence.Evidence{}, fmt.Errorf("analysis stage: %w", err)
	}
	id, err := p.store.Put(ev)
	if err != nil {
		return evidence.Evidence{}, fmt.Errorf("analysis stage: commit: %w", err)
	}

	p.log.WithFields(logrus.Fields{
		"stage":    "analysis",
		"evidence": id,
		"parent":   preprocessedID,
		"segments": len(pp.Segments),
		"failed":   failed,
	}).Info("committed analyzed evidence")

	return p.store.Get(id)
}

// analyzeSegment runs every requested analyzer against one segment. Each
// call gets its own timeout; a timeout or error becomes that pair's failure
// marker. Out-of-range scores are failures too, never silently clamped.
func (p *Pipeline) analyzeSegment(ctx context.Context, seg evidence.Segment, timeout time.Duration) evidence.SegmentAnalysis {
	var (
		mu       sync.Mutex
		results  = make(map[evidence.AnalyzerKind]evidence.AnalysisResult)
		failures = make(map[evidence.AnalyzerKind]evidence.FailureMarker)
		wg       sync.WaitGroup
	)

	for _, a := range p.analyzers {
		wg.Add(1)
		go func(a analysis.Analyzer) {
			defer wg.Done()

			callCtx := ctx
			cancel := func() {}
			if timeout > 0 {
				callCtx, cancel = context.WithTimeout(ctx, timeout)
			}
			defer cancel()

			value, confidence, err := a.Score(callCtx, seg)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, context.DeadlineExceeded):
				failures[a.Kind()] = evidence.FailureMarker{Reason: "timeout", AnalyzerVersion: a.Version()}
			case err != nil:
				failures[a.Kind()] = evidence.FailureMarker{Reason: err.Error(), AnalyzerVersion: a.Version()}
			case value < 0 || value > 1 || confidence < 0 || confidence > 1:
				failures[a.Kind()] = evidence.FailureMarker{
					Reason:          fmt.Sprintf("score out of range: value=%.3f confidence=%.3f", value, confidence),
					AnalyzerVersion: a.Version(),
				}
			default:
				results[a.Kind()] = evidence.AnalysisResult{Value: value, Confidence: confidence, AnalyzerVersion: a.Version()}
			}

			if fm, ok := failures[a.Kind()]; ok {
				p.log.WithFields(logrus.Fields{
					"stage":    "analysis",
					"segment":  seg.Index,
					"analyzer": a.Kind(),
					"reason":   fm.Reason,
				}).Warn("partial analysis failure")
			}
		}(a)
	}
	wg.Wait()

	return evidence.SegmentAnalysis{Results: results, Failures: failures}
}
