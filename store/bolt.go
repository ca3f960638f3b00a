package store

import (
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/hsie-lab/hsie-pipeline/evidence"
)

var (
	bucketEvidence = []byte("evidence")
	bucketChildren = []byte("children")
)

// Bolt is the persistent Store backend on an embedded bbolt file. Every Put
// is a single read-check-write transaction, so concurrent submissions of
// equal content converge on one entry.
type Bolt struct {
	db *bolt.DB
}

// OpenBolt opens (or creates) the evidence database at path.
func OpenBolt(path string) (*Bolt, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open evidence db %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketEvidence); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketChildren)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init evidence db: %w", err)
	}
	return &Bolt{db: db}, nil
}

// Close releases the underlying database file.
func (b *Bolt) Close() error { return b.db.Close() }

func (b *Bolt) Put(ev evidence.Evidence) (string, error) {
	err := b.db.Update(func(tx *bolt.Tx) error {
		eb := tx.Bucket(bucketEvidence)
		if eb.Get([]byte(ev.ID)) != nil {
			return nil
		}
		err := validate(ev, func(id string) (evidence.Evidence, bool) {
			raw := eb.Get([]byte(id))
			if raw == nil {
				return evidence.Evidence{}, false
			}
			var p evidence.Evidence
			if json.Unmarshal(raw, &p) != nil {
				return evidence.Evidence{}, false
			}
			return p, true
		})
		if err != nil {
			return err
		}
		enc, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("encode evidence %s: %w", ev.ID, err)
		}
		if err := eb.Put([]byte(ev.ID), enc); err != nil {
			return err
		}
		if ev.ParentID == "" {
			return nil
		}
		cb := tx.Bucket(bucketChildren)
		var ids []string
		if raw := cb.Get([]byte(ev.ParentID)); raw != nil {
			if err := json.Unmarshal(raw, &ids); err != nil {
				return fmt.Errorf("decode child index of %s: %w", ev.ParentID, err)
			}
		}
		ids = append(ids, ev.ID)
		enc, err = json.Marshal(ids)
		if err != nil {
			return err
		}
		return cb.Put([]byte(ev.ParentID), enc)
	})
	if err != nil {
		return "", err
	}
	return ev.ID, nil
}

func (b *Bolt) Get(id string) (evidence.Evidence, error) {
	var ev evidence.Evidence
	err := b.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketEvidence).Get([]byte(id))
		if raw == nil {
			return &evidence.NotFoundError{Evidence: id}
		}
		return json.Unmarshal(raw, &ev)
	})
	if err != nil {
		return evidence.Evidence{}, err
	}
	return ev, nil
}

func (b *Bolt) Children(id string) ([]evidence.Evidence, error) {
	var out []evidence.Evidence
	err := b.db.View(func(tx *bolt.Tx) error {
		eb := tx.Bucket(bucketEvidence)
		if eb.Get([]byte(id)) == nil {
			return &evidence.NotFoundError{Evidence: id}
		}
		raw := tx.Bucket(bucketChildren).Get([]byte(id))
		if raw == nil {
			return nil
		}
		var ids []string
		if err := json.Unmarshal(raw, &ids); err != nil {
			return fmt.Errorf("decode child index of %s: %w", id, err)
		}
		for _, cid := range ids {
			enc := eb.Get([]byte(cid))
			if enc == nil {
				return &evidence.IntegrityError{Evidence: cid, Reason: "indexed child missing from store"}
			}
			var ev evidence.Evidence
			if err := json.Unmarshal(enc, &ev); err != nil {
				return err
			}
			out = append(out, ev)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortEvidence(out)
	return out, nil
}

func (b *Bolt) Lineage(id string) ([]evidence.Evidence, error) {
	var chain []evidence.Evidence
	err := b.db.View(func(tx *bolt.Tx) error {
		eb := tx.Bucket(bucketEvidence)
		cur := id
		for {
			raw := eb.Get([]byte(cur))
			if raw == nil {
				if cur == id {
					return &evidence.NotFoundError{Evidence: id}
				}
				return &evidence.IntegrityError{Evidence: id, Reason: "ancestor " + cur + " missing from store"}
			}
			var ev evidence.Evidence
			if err := json.Unmarshal(raw, &ev); err != nil {
				return err
			}
			chain = append([]evidence.Evidence{ev}, chain...)
			if ev.ParentID == "" {
				return nil
			}
			cur = ev.ParentID
		}
	})
	if err != nil {
		return nil, err
	}
	return chain, nil
}
