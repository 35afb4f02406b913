/*
Copyright © 2024 the ChocoForestWatch authors.
This file is part of forestwatch-core.

forestwatch-core is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

forestwatch-core is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with forestwatch-core.  If not, see <http://www.gnu.org/licenses/>.
*/

package rundir

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Artifact is one entry of the machine-readable manifest written at the end
// of every stage.
type Artifact struct {
	Stage    string `json:"stage"`
	Unit     string `json:"unit"`
	Path     string `json:"path"`
	Checksum string `json:"checksum"`
	Bytes    int64  `json:"bytes"`
}

// UnitResult records the success/failure/skip outcome of a single unit
// (a month, a trial, a window) within a stage.
type UnitResult struct {
	Unit    string `json:"unit"`
	Status  string `json:"status"` // "succeeded", "failed", "skipped"
	Message string `json:"message,omitempty"`
	Retry   string `json:"retry_command,omitempty"`
}

// Manifest is the summary table and artifact list produced at the end of a
// stage: a machine-readable enumeration of every artifact the stage wrote.
type Manifest struct {
	Stage     string       `json:"stage"`
	RunID     string       `json:"run_id"`
	Units     []UnitResult `json:"units"`
	Artifacts []Artifact   `json:"artifacts"`
}

// Succeeded, Failed and Skipped count unit outcomes for the stage-end
// summary table.
func (m *Manifest) Succeeded() int { return m.countStatus("succeeded") }
func (m *Manifest) Failed() int    { return m.countStatus("failed") }
func (m *Manifest) Skipped() int   { return m.countStatus("skipped") }

func (m *Manifest) countStatus(status string) int {
	n := 0
	for _, u := range m.Units {
		if u.Status == status {
			n++
		}
	}
	return n
}

// ManifestPath returns the conventional manifest file location for a stage within a
// run directory.
func (r *Run) ManifestPath(stage string) string {
	return filepath.Join(r.Root, fmt.Sprintf("%s.manifest.json", stage))
}

// WriteManifest serializes m to its conventional location within r.
func (r *Run) WriteManifest(m *Manifest) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("rundir: marshaling manifest: %w", err)
	}
	path := r.ManifestPath(m.Stage)
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("rundir: writing manifest %s: %w", path, err)
	}
	return nil
}

// ReadManifest loads a previously written manifest for the given stage.
func (r *Run) ReadManifest(stage string) (*Manifest, error) {
	path := r.ManifestPath(stage)
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rundir: reading manifest %s: %w", path, err)
	}
	var m Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("rundir: unmarshaling manifest %s: %w", path, err)
	}
	return &m, nil
}

// ManifestDiff is the result of comparing two manifests' artifact lists.
type ManifestDiff struct {
	Added   []string
	Removed []string
	Changed []string // present in both, but checksum differs
}

// Empty reports whether the diff found no differences, which a caller can
// use to skip a re-run that would reproduce byte-identical output.
func (d ManifestDiff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// Diff compares the artifact lists of two manifests by path, reporting
// which artifacts were added, removed, or changed checksum between them.
// A caller uses this to decide whether a re-run actually changed anything.
func Diff(a, b *Manifest) ManifestDiff {
	aIdx := make(map[string]Artifact, len(a.Artifacts))
	for _, art := range a.Artifacts {
		aIdx[art.Path] = art
	}
	bIdx := make(map[string]Artifact, len(b.Artifacts))
	for _, art := range b.Artifacts {
		bIdx[art.Path] = art
	}

	var d ManifestDiff
	for path, art := range bIdx {
		old, ok := aIdx[path]
		if !ok {
			d.Added = append(d.Added, path)
			continue
		}
		if old.Checksum != art.Checksum {
			d.Changed = append(d.Changed, path)
		}
	}
	for path := range aIdx {
		if _, ok := bIdx[path]; !ok {
			d.Removed = append(d.Removed, path)
		}
	}
	sort.Strings(d.Added)
	sort.Strings(d.Removed)
	sort.Strings(d.Changed)
	return d
}
