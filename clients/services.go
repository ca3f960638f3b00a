package clients

import "context"

// ASRService binds the shared HTTP client to one configured ASR endpoint,
// satisfying the pipeline's Transcriber contract.
type ASRService struct {
	h   *HTTP
	url string
}

func NewASRService(h *HTTP, url string) *ASRService {
	return &ASRService{h: h, url: url}
}

func (s *ASRService) Transcribe(ctx context.Context, audioRef string) (*TranscriptResult, error) {
	if s.url == "" {
		return nil, &TranscriptionError{Reason: ReasonUnavailable, Err: errNoEndpoint("asr")}
	}
	return s.h.ASR(ctx, s.url, audioRef)
}

// DiarizationService binds the shared HTTP client to one configured
// diarization endpoint, satisfying the pipeline's Diarizer contract.
type DiarizationService struct {
	h   *HTTP
	url string
}

func NewDiarizationService(h *HTTP, url string) *DiarizationService {
	return &DiarizationService{h: h, url: url}
}

func (s *DiarizationService) Name() string { return "diarization-service" }

func (s *DiarizationService) Diarize(ctx context.Context, audioRef string, spans []TimeSpan) ([]SpeakerSpan, string, error) {
	if s.url == "" {
		return nil, "", errNoEndpoint("diarization")
	}
	return s.h.Diarize(ctx, s.url, audioRef, spans)
}

type errNoEndpoint string

func (e errNoEndpoint) Error() string { return "no " + string(e) + " service url configured" }
