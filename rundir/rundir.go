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

// Package rundir manages the persistent on-disk run directory that is
// shared by every pipeline stage: runs/<run_id>/{<YYYY>_<MM>/{saved_models,
// data_cache,model_diagnostics,prediction_cogs}, composites/,
// hyperparameter_tuning/, benchmark_results/}.
//
// A Run survives crashes: constructing one never destroys existing content,
// so a re-run can reuse whatever a prior attempt already produced.
package rundir

import (
	"fmt"
	"os"
	"path/filepath"
)

// Run is the durable on-disk workspace for a single pipeline run.
type Run struct {
	ID   string
	Root string // runs/<run_id>
}

// New returns the Run rooted at filepath.Join(runsRoot, "runs", runID),
// creating the top-level directory if it does not already exist.
func New(runsRoot, runID string) (*Run, error) {
	if runID == "" {
		return nil, fmt.Errorf("rundir: run id must not be empty")
	}
	root := filepath.Join(runsRoot, "runs", runID)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("rundir: creating run directory %s: %w", root, err)
	}
	return &Run{ID: runID, Root: root}, nil
}

// month formats a year and 1-12 month number as the run directory's
// "<YYYY>_<MM>" unit name.
func month(year, m int) string {
	return fmt.Sprintf("%04d_%02d", year, m)
}

// MonthDir returns the directory for the given year/month, creating it (and
// its saved_models/data_cache/model_diagnostics/prediction_cogs children) if
// necessary.
func (r *Run) MonthDir(year, m int) (string, error) {
	dir := filepath.Join(r.Root, month(year, m))
	for _, sub := range []string{"saved_models", "data_cache", "model_diagnostics", "prediction_cogs"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return "", fmt.Errorf("rundir: creating %s: %w", sub, err)
		}
	}
	return dir, nil
}

func (r *Run) subdir(name string) (string, error) {
	dir := filepath.Join(r.Root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("rundir: creating %s: %w", name, err)
	}
	return dir, nil
}

// SavedModelsDir returns runs/<run_id>/<YYYY>_<MM>/saved_models.
func (r *Run) SavedModelsDir(year, m int) (string, error) {
	dir, err := r.MonthDir(year, m)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "saved_models"), nil
}

// DataCacheDir returns runs/<run_id>/<YYYY>_<MM>/data_cache.
func (r *Run) DataCacheDir(year, m int) (string, error) {
	dir, err := r.MonthDir(year, m)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "data_cache"), nil
}

// ModelDiagnosticsDir returns runs/<run_id>/<YYYY>_<MM>/model_diagnostics.
func (r *Run) ModelDiagnosticsDir(year, m int) (string, error) {
	dir, err := r.MonthDir(year, m)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "model_diagnostics"), nil
}

// PredictionCOGsDir returns runs/<run_id>/<YYYY>_<MM>/prediction_cogs.
func (r *Run) PredictionCOGsDir(year, m int) (string, error) {
	dir, err := r.MonthDir(year, m)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "prediction_cogs"), nil
}

// CompositesDir returns runs/<run_id>/composites.
func (r *Run) CompositesDir() (string, error) { return r.subdir("composites") }

// HyperparameterTuningDir returns runs/<run_id>/hyperparameter_tuning.
func (r *Run) HyperparameterTuningDir() (string, error) { return r.subdir("hyperparameter_tuning") }

// BenchmarkResultsDir returns runs/<run_id>/benchmark_results.
func (r *Run) BenchmarkResultsDir() (string, error) { return r.subdir("benchmark_results") }

// Lock acquires a single-writer advisory lock for the given unit key (one
// writer per unit key, as required by the concurrency model). The returned
// function releases the lock and must always be called.
func (r *Run) Lock(unitKey string) (func(), error) {
	dir, err := r.subdir("locks")
	if err != nil {
		return nil, err
	}
	path := filepath.Join(dir, unitKey+".lock")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("rundir: unit %q already locked: %w", unitKey, err)
	}
	f.Close()
	return func() { os.Remove(path) }, nil
}
