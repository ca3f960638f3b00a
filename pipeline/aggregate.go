package pipeline

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/hsie-lab/hsie-pipeline/evidence"
)

// InsufficientEvidenceError reports an aggregation input in which no segment
// carries any valid analyzer result. Aggregation never fabricates a score.
type InsufficientEvidenceError struct {
	Evidence string
}

func (e *InsufficientEvidenceError) Error() string {
	return fmt.Sprintf("aggregation: no valid analyzer results in evidence %s", e.Evidence)
}

func (e *InsufficientEvidenceError) ErrorKind() string { return "InsufficientEvidenceError" }

// Aggregate reduces the per-segment scores of an analyzed evidence into
// HSI/HSIE and commits a sibling analyzed evidence embedding the score block.
// weights may be nil to use the configured weighting. Weights renormalize
// over the dimensions actually present: a segment with no result for a
// dimension contributes nothing to that dimension instead of dragging it to
// zero.
func (p *Pipeline) Aggregate(ctx context.Context, analyzedID string, weights map[string]float64) (*evidence.HSIScore, evidence.Evidence, error) {
	parent, err := p.store.Get(analyzedID)
	if err != nil {
		return nil, evidence.Evidence{}, fmt.Errorf("aggregation: %w", err)
	}
	if parent.VersionKind != evidence.KindAnalyzed {
		return nil, evidence.Evidence{}, &evidence.IntegrityError{
			Stage:    "aggregation",
			Evidence: analyzedID,
			Reason:   fmt.Sprintf("expected analyzed evidence, got %s", parent.VersionKind),
		}
	}
	ap, err := parent.Analyzed()
	if err != nil {
		return nil, evidence.Evidence{}, fmt.Errorf("aggregation: %w", err)
	}

	if weights == nil {
		weights = p.cfg.Scoring.Weights
	}
	score, err := p.computeScore(analyzedID, ap, weights)
	if err != nil {
		return nil, evidence.Evidence{}, err
	}
	score.ScoredFrom = parent.ID

	// The version order admits no analyzed→analyzed edge, so the scored
	// evidence is committed as a sibling of its input: same preprocessed
	// parent, payload extended with the score block. A re-run yields a new
	// id without touching the evidence it was scored from.
	payload := evidence.AnalyzedPayload{
		Segments:  ap.Segments,
		Analyses:  ap.Analyses,
		Requested: ap.Requested,
		Score:     score,
	}
	ev, err := evidence.New(evidence.KindAnalyzed, parent.ParentID, evidence.ProducerAggregator, payload)
	if err != nil {
		return nil, evidence.Evidence{}, fmt.Errorf("aggregation: %w", err)
	}
	id, err := p.store.Put(ev)
	if err != nil {
		return nil, evidence.Evidence{}, fmt.Errorf("aggregation: commit: %w", err)
	}

	p.log.WithFields(logrus.Fields{
		"stage":    "aggregation",
		"evidence": id,
		"scored":   analyzedID,
		"hsi":      score.HSI,
		"hsie":     score.HSIE,
	}).Info("committed scored evidence")

	stored, err := p.store.Get(id)
	if err != nil {
		return nil, evidence.Evidence{}, err
	}
	return score, stored, nil
}

// dimension accumulators for one analyzer kind.
type dimAccum struct {
	weightedSum  float64 // Σ value*confidence
	escalatedSum float64 // Σ min(value*factor, 1)*confidence
	confSum      float64 // Σ confidence
	count        int
}

func (p *Pipeline) computeScore(analyzedID string, ap *evidence.AnalyzedPayload, weights map[string]float64) (*evidence.HSIScore, error) {
	factors := p.escalationFactors(ap)

	dims := make(map[evidence.AnalyzerKind]*dimAccum)
	var components []evidence.Contribution

	for i, sa := range ap.Analyses {
		// Deterministic kind order keeps the committed payload, and therefore
		// the content id, stable across re-runs.
		kinds := make([]evidence.AnalyzerKind, 0, len(sa.Results))
		for kind := range sa.Results {
			kinds = append(kinds, kind)
		}
		sort.Slice(kinds, func(a, b int) bool { return kinds[a] < kinds[b] })

		for _, kind := range kinds {
			res := sa.Results[kind]
			d := dims[kind]
			if d == nil {
				d = &dimAccum{}
				dims[kind] = d
			}
			escalated := res.Value * factors[i]
			if escalated > 1 {
				escalated = 1
			}
			d.weightedSum += res.Value * res.Confidence
			d.escalatedSum += escalated * res.Confidence
			d.confSum += res.Confidence
			d.count++
			components = append(components, evidence.Contribution{
				SegmentIndex: i,
				Analyzer:     kind,
				Value:        res.Value,
				Escalation:   factors[i],
			})
		}
	}
	if len(dims) == 0 {
		return nil, &InsufficientEvidenceError{Evidence: analyzedID}
	}

	// Renormalize configured weights over the dimensions present.
	used := make(map[evidence.AnalyzerKind]float64, len(dims))
	total := 0.0
	for kind := range dims {
		w, ok := weights[string(kind)]
		if !ok {
			w = 1
		}
		used[kind] = w
		total += w
	}
	if total <= 0 {
		return nil, fmt.Errorf("aggregation: weighting config assigns no weight to present dimensions")
	}
	for kind := range used {
		used[kind] /= total
	}

	var hsi, hsie float64
	for kind, d := range dims {
		var dimScore, dimScoreE float64
		if d.confSum > 0 {
			dimScore = d.weightedSum / d.confSum
			dimScoreE = d.escalatedSum / d.confSum
		}
		hsi += used[kind] * dimScore
		hsie += used[kind] * dimScoreE
	}

	// Fill per-component weight shares now that renormalized weights exist.
	for ci := range components {
		c := &components[ci]
		d := dims[c.Analyzer]
		res := ap.Analyses[c.SegmentIndex].Results[c.Analyzer]
		if d.confSum > 0 {
			c.Weight = used[c.Analyzer] * res.Confidence / d.confSum
		}
		c.Weighted = c.Value * c.Weight
	}

	return &evidence.HSIScore{
		HSI:        hsi,
		HSIE:       hsie,
		Weights:    used,
		Components: components,
	}, nil
}

// escalationFactors implements the HSIE contextual weighting: a segment at or
// above the severity floor escalates when the same (speaker, preceding
// distinct speaker) pair has already produced such a segment. Unknown
// speakers never escalate, so low-confidence diarization cannot inflate the
// index.
func (p *Pipeline) escalationFactors(ap *evidence.AnalyzedPayload) []float64 {
	floor := p.cfg.Scoring.SeverityFloor
	step := p.cfg.Scoring.Escalation
	maxBoost := p.cfg.Scoring.MaxBoost
	if maxBoost <= 0 {
		maxBoost = 1
	}

	factors := make([]float64, len(ap.Segments))
	pairCount := make(map[[2]string]int)

	for i, seg := range ap.Segments {
		factors[i] = 1

		severe := false
		for _, res := range ap.Analyses[i].Results {
			if res.Value >= floor {
				severe = true
				break
			}
		}
		if !severe || seg.SpeakerID == evidence.SpeakerUnknown {
			continue
		}

		// The addressee is the most recent earlier speaker distinct from
		// this segment's speaker.
		addressee := ""
		for j := i - 1; j >= 0; j-- {
			if ap.Segments[j].SpeakerID != seg.SpeakerID {
				addressee = ap.Segments[j].SpeakerID
				break
			}
		}
		if addressee == "" || addressee == evidence.SpeakerUnknown {
			continue
		}

		pair := [2]string{seg.SpeakerID, addressee}
		f := 1 + step*float64(pairCount[pair])
		if f > maxBoost {
			f = maxBoost
		}
		factors[i] = f
		pairCount[pair]++
	}
	return factors
}
