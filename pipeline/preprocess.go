package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/hsie-lab/hsie-pipeline/clients"
	"github.com/hsie-lab/hsie-pipeline/evidence"
)

// Pause thresholds for utterance reconstruction, in seconds. A pause shorter
// than the short threshold keeps two same-speaker chunks in one utterance.
const (
	pauseThresholdShort = 0.7
	pauseThresholdLong  = 2.0
)

// Discard reasons recorded in the preprocessed payload.
const (
	discardEmptyText    = "empty_text"
	discardZeroDuration = "zero_duration"
)

// Preprocess runs diarization and segment reconstruction over a raw evidence
// and commits the preprocessed version. Every chunk of the parent transcript
// ends up in exactly one segment or in the discarded list with a reason.
func (p *Pipeline) Preprocess(ctx context.Context, rawID string) (evidence.Evidence, error) {
	parent, err := p.store.Get(rawID)
	if err != nil {
		return evidence.Evidence{}, fmt.Errorf("preprocessing stage: %w", err)
	}
	if parent.VersionKind != evidence.KindRaw {
		return evidence.Evidence{}, &evidence.IntegrityError{
			Stage:    "preprocessing",
			Evidence: rawID,
			Reason:   fmt.Sprintf("expected raw evidence, got %s", parent.VersionKind),
		}
	}
	raw, err := parent.Raw()
	if err != nil {
		return evidence.Evidence{}, fmt.Errorf("preprocessing stage: %w", err)
	}

	kept, discarded, err := splitChunks(rawID, raw.Chunks)
	if err != nil {
		return evidence.Evidence{}, err
	}

	spans := make([]clients.TimeSpan, len(kept))
	for i, c := range kept {
		spans[i] = clients.TimeSpan{Start: c.Start, End: c.End}
	}
	speakers, diVersion, err := p.diarizer.Diarize(ctx, raw.AudioRef, spans)
	if err != nil {
		return evidence.Evidence{}, fmt.Errorf("preprocessing stage: diarize %s: %w", rawID, err)
	}

	threshold := p.cfg.Diarization.ConfidenceThreshold
	segments := assignSpeakers(kept, speakers, threshold)
	segments = mergeUtterances(segments)
	finalizeSegments(segments)

	if err := checkSegmentOrder(rawID, segments); err != nil {
		return evidence.Evidence{}, err
	}

	payload := evidence.PreprocessedPayload{
		Segments:            segments,
		Discarded:           discarded,
		Diarizer:            p.diarizer.Name(),
		DiarizerVersion:     diVersion,
		ConfidenceThreshold: threshold,
	}
	ev, err := evidence.New(evidence.KindPreprocessed, parent.ID, evidence.ProducerPreprocess, payload)
	if err != nil {
		return evidence.Evidence{}, fmt.Errorf("preprocessing stage: %w", err)
	}
	id, err := p.store.Put(ev)
	if err != nil {
		return evidence.Evidence{}, fmt.Errorf("preprocessing stage: commit: %w", err)
	}

	p.log.WithFields(logrus.Fields{
		"stage":     "preprocessing",
		"evidence":  id,
		"parent":    rawID,
		"segments":  len(segments),
		"discarded": len(discarded),
	}).Info("committed preprocessed evidence")

	return p.store.Get(id)
}

// splitChunks orders the raw chunks and separates usable ones from spans that
// carry nothing to segment. Overlapping input chunks are a structural defect
// of the raw evidence and are rejected, not repaired.
func splitChunks(rawID string, chunks []evidence.TranscriptChunk) ([]evidence.TranscriptChunk, []evidence.DiscardedSpan, error) {
	ordered := make([]evidence.TranscriptChunk, len(chunks))
	copy(ordered, chunks)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Start < ordered[j].Start })

	var kept []evidence.TranscriptChunk
	var discarded []evidence.DiscardedSpan
	for _, c := range ordered {
		switch {
		case strings.TrimSpace(c.Text) == "":
			discarded = append(discarded, evidence.DiscardedSpan{Start: c.Start, End: c.End, Reason: discardEmptyText})
		case c.End <= c.Start:
			discarded = append(discarded, evidence.DiscardedSpan{Start: c.Start, End: c.End, Text: c.Text, Reason: discardZeroDuration})
		default:
			if n := len(kept); n > 0 && c.Start < kept[n-1].End {
				return nil, nil, &evidence.IntegrityError{
					Stage:    "preprocessing",
					Evidence: rawID,
					Reason:   fmt.Sprintf("transcript chunks overlap at %.2fs", c.Start),
				}
			}
			kept = append(kept, c)
		}
	}
	return kept, discarded, nil
}

// assignSpeakers labels each chunk with the speaker span covering most of it.
// A span below the confidence threshold, or a chunk no span covers, gets the
// unknown sentinel rather than a best guess.
func assignSpeakers(chunks []evidence.TranscriptChunk, speakers []clients.SpeakerSpan, threshold float64) []evidence.Segment {
	segs := make([]evidence.Segment, 0, len(chunks))
	for _, c := range chunks {
		speaker := evidence.SpeakerUnknown
		best := 0.0
		for _, s := range speakers {
			ov := overlap(c.Start, c.End, s.Start, s.End)
			if ov <= best {
				continue
			}
			best = ov
			if s.Confidence < threshold {
				speaker = evidence.SpeakerUnknown
			} else {
				speaker = s.SpeakerID
			}
		}
		segs = append(segs, evidence.Segment{
			Start:      c.Start,
			End:        c.End,
			SpeakerID:  speaker,
			Text:       strings.TrimSpace(c.Text),
			Confidence: c.Confidence,
		})
	}
	return segs
}

func overlap(aStart, aEnd, bStart, bEnd float64) float64 {
	start := aStart
	if bStart > start {
		start = bStart
	}
	end := aEnd
	if bEnd < end {
		end = bEnd
	}
	if end <= start {
		return 0
	}
	return end - start
}

// mergeUtterances joins consecutive same-speaker segments separated by less
// than the short-pause threshold into one utterance. Purely mechanical: text
// concatenation and time extension, confidence kept at the minimum.
func mergeUtterances(segs []evidence.Segment) []evidence.Segment {
	if len(segs) == 0 {
		return segs
	}
	out := []evidence.Segment{segs[0]}
	for _, s := range segs[1:] {
		last := &out[len(out)-1]
		if s.SpeakerID == last.SpeakerID && s.Start-last.End < pauseThresholdShort {
			last.Text = strings.TrimSpace(last.Text + " " + s.Text)
			if s.End > last.End {
				last.End = s.End
			}
			if s.Confidence < last.Confidence {
				last.Confidence = s.Confidence
			}
			continue
		}
		out = append(out, s)
	}
	return out
}

func finalizeSegments(segs []evidence.Segment) {
	for i := range segs {
		segs[i].Index = i
		if i == 0 {
			segs[i].PauseBefore = 0
		} else {
			segs[i].PauseBefore = segs[i].Start - segs[i-1].End
		}
		segs[i].PauseLevel = classifyPause(segs[i].PauseBefore)
	}
}

func classifyPause(d float64) evidence.PauseLevel {
	switch {
	case d < pauseThresholdShort:
		return evidence.PauseShort
	case d < pauseThresholdLong:
		return evidence.PauseNormal
	default:
		return evidence.PauseLong
	}
}

func checkSegmentOrder(rawID string, segs []evidence.Segment) error {
	for i := 1; i < len(segs); i++ {
		if segs[i].Start < segs[i-1].End {
			return &evidence.IntegrityError{
				Stage:    "preprocessing",
				Evidence: rawID,
				Reason:   fmt.Sprintf("segments %d and %d overlap", i-1, i),
			}
		}
	}
	return nil
}
