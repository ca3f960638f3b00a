package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ExportManifest indexes one exported lineage chain. The per-evidence files
// next to it hold the interchange-format JSON snapshots themselves.
type ExportManifest struct {
	Head        string    `json:"head"`
	GeneratedAt time.Time `json:"generated_at"`
	Chain       []string  `json:"chain"`
}

// ExportLineage writes the full chain from raw to id into outDir, one JSON
// file per evidence plus a manifest. The files are the audit artifacts; the
// store remains the source of truth.
func (p *Pipeline) ExportLineage(id, outDir string) (string, error) {
	chain, err := p.store.Lineage(id)
	if err != nil {
		return "", fmt.Errorf("export: %w", err)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("export: %w", err)
	}

	manifest := ExportManifest{Head: id, GeneratedAt: time.Now().UTC()}
	for _, ev := range chain {
		if err := writeJSON(filepath.Join(outDir, ev.ID+".json"), ev); err != nil {
			return "", fmt.Errorf("export %s: %w", ev.ID, err)
		}
		manifest.Chain = append(manifest.Chain, ev.ID)
	}

	path := filepath.Join(outDir, "manifest.json")
	if err := writeJSON(path, manifest); err != nil {
		return "", fmt.Errorf("export manifest: %w", err)
	}
	return path, nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
