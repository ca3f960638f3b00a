// Package evidence defines the immutable, content-addressed Evidence model
// shared by every pipeline stage. An Evidence is a snapshot of derived data
// with explicit provenance to its parent; once created it is never modified.
package evidence

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// VersionKind identifies which stage of derivation an Evidence represents.
// The kinds form a strict order: raw < preprocessed < analyzed.
type VersionKind string

const (
	KindRaw          VersionKind = "raw"
	KindPreprocessed VersionKind = "preprocessed"
	KindAnalyzed     VersionKind = "analyzed"
)

func (k VersionKind) rank() int {
	switch k {
	case KindRaw:
		return 0
	case KindPreprocessed:
		return 1
	case KindAnalyzed:
		return 2
	}
	return -1
}

// Valid reports whether k is one of the known version kinds.
func (k VersionKind) Valid() bool { return k.rank() >= 0 }

// Follows reports whether k is the immediate successor of parent in the
// version order. Raw follows nothing.
func (k VersionKind) Follows(parent VersionKind) bool {
	return k.rank() >= 1 && parent.rank() == k.rank()-1
}

// Producer identities recorded on committed Evidence, for audit.
const (
	ProducerEntry      = "entry-stage"
	ProducerPreprocess = "preprocessing-stage"
	ProducerAnalysis   = "analysis-stage"
	ProducerAggregator = "aggregator"
)

// Evidence is an immutable snapshot in the lineage forest. ID is the content
// hash of (version_kind, parent_id, payload), so equal content converges to
// one node regardless of who or when it was submitted. CreatedAt and Producer
// are audit metadata and deliberately excluded from the hash.
type Evidence struct {
	ID          string          `json:"id"`
	VersionKind VersionKind     `json:"version_kind"`
	ParentID    string          `json:"parent_id,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	Producer    string          `json:"producer"`
	Payload     json.RawMessage `json:"payload"`
}

// New builds an Evidence from a version-specific payload and computes its
// content-addressed id. parentID must be empty for raw evidence and non-empty
// otherwise; the store re-checks that the parent actually exists.
func New(kind VersionKind, parentID, producer string, payload any) (Evidence, error) {
	if !kind.Valid() {
		return Evidence{}, &IntegrityError{Reason: fmt.Sprintf("unknown version kind %q", kind)}
	}
	if (kind == KindRaw) != (parentID == "") {
		return Evidence{}, &IntegrityError{
			Evidence: parentID,
			Reason:   fmt.Sprintf("%s evidence with parent_id=%q", kind, parentID),
		}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Evidence{}, fmt.Errorf("encode %s payload: %w", kind, err)
	}
	return Evidence{
		ID:          ContentID(kind, parentID, body),
		VersionKind: kind,
		ParentID:    parentID,
		CreatedAt:   time.Now().UTC(),
		Producer:    producer,
		Payload:     body,
	}, nil
}

// ContentID derives the evidence id from the hashed fields. Exposed so the
// store can verify submitted evidence against its own content.
func ContentID(kind VersionKind, parentID string, payload []byte) string {
	h := sha256.New()
	h.Write([]byte(kind))
	h.Write([]byte{0})
	h.Write([]byte(parentID))
	h.Write([]byte{0})
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// Raw decodes the payload of a raw Evidence.
func (e Evidence) Raw() (*RawPayload, error) {
	if e.VersionKind != KindRaw {
		return nil, &IntegrityError{Evidence: e.ID, Reason: fmt.Sprintf("expected raw evidence, got %s", e.VersionKind)}
	}
	var p RawPayload
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return nil, fmt.Errorf("decode raw payload of %s: %w", e.ID, err)
	}
	return &p, nil
}

// Preprocessed decodes the payload of a preprocessed Evidence.
func (e Evidence) Preprocessed() (*PreprocessedPayload, error) {
	if e.VersionKind != KindPreprocessed {
		return nil, &IntegrityError{Evidence: e.ID, Reason: fmt.Sprintf("expected preprocessed evidence, got %s", e.VersionKind)}
	}
	var p PreprocessedPayload
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return nil, fmt.Errorf("decode preprocessed payload of %s: %w", e.ID, err)
	}
	return &p, nil
}

// Analyzed decodes the payload of an analyzed Evidence.
func (e Evidence) Analyzed() (*AnalyzedPayload, error) {
	if e.VersionKind != KindAnalyzed {
		return nil, &IntegrityError{Evidence: e.ID, Reason: fmt.Sprintf("expected analyzed evidence, got %s", e.VersionKind)}
	}
	var p AnalyzedPayload
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return nil, fmt.Errorf("decode analyzed payload of %s: %w", e.ID, err)
	}
	return &p, nil
}
