// Package store provides the append-only, content-addressed evidence store.
// The public surface has no update or delete: once Put returns, the evidence
// is immutable and re-fetching by id yields byte-identical payload.
package store

import (
	"sort"

	"github.com/hsie-lab/hsie-pipeline/evidence"
)

// Store is the lineage-keeping repository shared by all stages.
//
// Put validates lineage (parent exists, version kind strictly follows) and is
// idempotent under content addressing: submitting equal (kind, parent,
// payload) twice returns the same id without duplicating the entry.
// Children returns direct descendants ordered by creation time then id, and
// Lineage returns the chain from the raw root down to id.
type Store interface {
	Put(ev evidence.Evidence) (string, error)
	Get(id string) (evidence.Evidence, error)
	Children(id string) ([]evidence.Evidence, error)
	Lineage(id string) ([]evidence.Evidence, error)
}

// validate runs the shared Put-time checks against a parent lookup.
func validate(ev evidence.Evidence, getParent func(string) (evidence.Evidence, bool)) error {
	if !ev.VersionKind.Valid() {
		return &evidence.IntegrityError{Evidence: ev.ID, Reason: "unknown version kind " + string(ev.VersionKind)}
	}
	if want := evidence.ContentID(ev.VersionKind, ev.ParentID, ev.Payload); want != ev.ID {
		return &evidence.IntegrityError{Evidence: ev.ID, Reason: "id does not match content hash " + want}
	}
	if ev.VersionKind == evidence.KindRaw {
		if ev.ParentID != "" {
			return &evidence.IntegrityError{Evidence: ev.ID, Reason: "raw evidence must not have a parent"}
		}
		return nil
	}
	if ev.ParentID == "" {
		return &evidence.IntegrityError{Evidence: ev.ID, Reason: string(ev.VersionKind) + " evidence without parent"}
	}
	parent, ok := getParent(ev.ParentID)
	if !ok {
		return &evidence.IntegrityError{Evidence: ev.ID, Reason: "parent " + ev.ParentID + " does not exist"}
	}
	if !ev.VersionKind.Follows(parent.VersionKind) {
		return &evidence.IntegrityError{
			Evidence: ev.ID,
			Reason:   string(ev.VersionKind) + " does not strictly follow parent kind " + string(parent.VersionKind),
		}
	}
	return nil
}

func sortEvidence(evs []evidence.Evidence) {
	sort.Slice(evs, func(i, j int) bool {
		if !evs[i].CreatedAt.Equal(evs[j].CreatedAt) {
			return evs[i].CreatedAt.Before(evs[j].CreatedAt)
		}
		return evs[i].ID < evs[j].ID
	})
}
