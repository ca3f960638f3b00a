package evidence

// TranscriptChunk is one time-aligned piece of the ASR output, exactly as the
// transcription service returned it. Raw evidence keeps these untouched.
type TranscriptChunk struct {
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// RawPayload is the first evidence version: the complete transcription result
// plus capture metadata. It carries no speaker information at all; anything
// that needs a speaker_id must run against preprocessed evidence.
type RawPayload struct {
	Transcript        string            `json:"transcript"`
	Chunks            []TranscriptChunk `json:"chunks"`
	AudioRef          string            `json:"audio_ref"`
	Language          string            `json:"language,omitempty"`
	Engine            string            `json:"engine,omitempty"`
	EngineVersion     string            `json:"engine_version,omitempty"`
	SessionID         string            `json:"session_id"`
	CaptureID         string            `json:"capture_id"`
	Duration          float64           `json:"duration"`
	OverallConfidence float64           `json:"overall_confidence"`
}

// SpeakerUnknown is the sentinel speaker id assigned when diarization
// confidence falls below the configured threshold. It is never a best guess
// and is excluded from speaker-sensitive aggregation.
const SpeakerUnknown = "unknown"

// PauseLevel classifies the silence preceding a segment.
type PauseLevel string

const (
	PauseShort  PauseLevel = "short"
	PauseNormal PauseLevel = "normal"
	PauseLong   PauseLevel = "long"
)

// Segment is an utterance-level slice of the interaction with an assigned
// speaker. Segments in one payload are ordered by start and non-overlapping.
type Segment struct {
	Index       int        `json:"index"`
	Start       float64    `json:"start"`
	End         float64    `json:"end"`
	SpeakerID   string     `json:"speaker_id"`
	Text        string     `json:"transcript_span"`
	Confidence  float64    `json:"confidence"`
	PauseBefore float64    `json:"pause_before"`
	PauseLevel  PauseLevel `json:"pause_level"`
}

// DiscardedSpan records source material that was excluded from segmentation,
// with the reason. Nothing from the raw transcript is ever dropped silently.
type DiscardedSpan struct {
	Start  float64 `json:"start"`
	End    float64 `json:"end"`
	Text   string  `json:"text,omitempty"`
	Reason string  `json:"reason"`
}

// PreprocessedPayload is the second evidence version: diarized, reconstructed
// utterance segments covering the parent transcript.
type PreprocessedPayload struct {
	Segments            []Segment       `json:"segments"`
	Discarded           []DiscardedSpan `json:"discarded,omitempty"`
	Diarizer            string          `json:"diarizer"`
	DiarizerVersion     string          `json:"diarizer_version,omitempty"`
	ConfidenceThreshold float64         `json:"confidence_threshold"`
}

// AnalyzerKind names one of the closed set of scoring dimensions.
type AnalyzerKind string

const (
	AnalyzerAcoustic   AnalyzerKind = "acoustic"
	AnalyzerSemantic   AnalyzerKind = "semantic"
	AnalyzerLinguistic AnalyzerKind = "linguistic"
)

// KnownAnalyzer reports whether k is one of the three supported kinds.
func KnownAnalyzer(k AnalyzerKind) bool {
	switch k {
	case AnalyzerAcoustic, AnalyzerSemantic, AnalyzerLinguistic:
		return true
	}
	return false
}

// AnalysisResult is one analyzer's score for one segment, with the model
// version that produced it.
type AnalysisResult struct {
	Value           float64 `json:"value"`
	Confidence      float64 `json:"confidence"`
	AnalyzerVersion string  `json:"analyzer_version"`
}

// FailureMarker records an isolated per-(segment, analyzer) failure. The pair
// is marked, never silently missing or zero-filled.
type FailureMarker struct {
	Reason          string `json:"reason"`
	AnalyzerVersion string `json:"analyzer_version,omitempty"`
}

// SegmentAnalysis holds, for one segment, either a result or a failure marker
// for every analyzer that was requested. A kind never appears in both maps.
type SegmentAnalysis struct {
	Results  map[AnalyzerKind]AnalysisResult `json:"results,omitempty"`
	Failures map[AnalyzerKind]FailureMarker  `json:"failures,omitempty"`
}

// AnalyzedPayload is the third evidence version: the parent's segments plus
// index-aligned per-segment analyses. Score is set only on evidence committed
// by the aggregator.
type AnalyzedPayload struct {
	Segments  []Segment         `json:"segments"`
	Analyses  []SegmentAnalysis `json:"analyses"`
	Requested []AnalyzerKind    `json:"requested"`
	Score     *HSIScore         `json:"score,omitempty"`
}

// Contribution is one (segment, analyzer) share of the aggregate index, kept
// for explainability.
type Contribution struct {
	SegmentIndex int          `json:"segment"`
	Analyzer     AnalyzerKind `json:"analyzer"`
	Value        float64      `json:"value"`
	Weight       float64      `json:"weight"`
	Weighted     float64      `json:"weighted"`
	Escalation   float64      `json:"escalation,omitempty"`
}

// HSIScore is the aggregate harassment strength index (and its extended
// variant) with the full weighting breakdown.
type HSIScore struct {
	HSI        float64                  `json:"hsi"`
	HSIE       float64                  `json:"hsie"`
	Weights    map[AnalyzerKind]float64 `json:"weights"`
	Components []Contribution           `json:"components"`
	ScoredFrom string                   `json:"scored_from,omitempty"`
}
