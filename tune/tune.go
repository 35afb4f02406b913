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

package tune

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/chocoforestwatch/forestwatch-core/ferrors"
	"github.com/chocoforestwatch/forestwatch-core/train"
	"github.com/chocoforestwatch/forestwatch-core/train/boost"
)

// ExperimentResult is one trial's outcome, exactly as named by the tuner's
// contract.
type ExperimentResult struct {
	ID               string
	Params           boost.Params
	CVAccuracyMean   float64
	CVAccuracyStdDev float64
	TestAccuracy     float64
	F1Macro          float64
	PrecisionMacro   float64
	RecallMacro      float64
	TrainSeconds     float64
	ModelPath        string
	DiagnosticsPath  string
	Timestamp        time.Time
}

// Run draws nTrials configurations from preset's joint domain using seed,
// fits each via train.Fit, and returns every trial's ExperimentResult.
// Only the final model per trial is persisted (Open Question (b) is
// resolved this way; see DESIGN.md), not each CV fold's intermediate
// model.
func Run(fc *train.FeatureCache, cfg train.Config, presetName string, nTrials int, seed int64, outDir string) ([]ExperimentResult, error) {
	preset, err := LookupPreset(presetName)
	if err != nil {
		return nil, ferrors.New(ferrors.ConfigError, "", err)
	}
	rng := rand.New(rand.NewSource(seed))

	var results []ExperimentResult
	for trial := 0; trial < nTrials; trial++ {
		trialCfg := cfg
		trialCfg.Hyperparams = Sample(preset, cfg.Hyperparams, rng)

		start := timeNow()
		fitResult, err := train.Fit(fc, trialCfg)
		elapsed := timeSince(start)
		if err != nil {
			continue // a degenerate draw fails its own trial, not the whole search
		}

		id := fmt.Sprintf("trial-%03d", trial)
		var modelPath, diagPath string
		if outDir != "" {
			modelPath = filepath.Join(outDir, id+".model")
			if err := fitResult.Bundle.Save(modelPath); err != nil {
				return nil, err
			}
			diagPath = filepath.Join(outDir, id+".diagnostics.json")
			if err := writeJSON(diagPath, fitResult.Diagnostics); err != nil {
				return nil, err
			}
		}

		results = append(results, ExperimentResult{
			ID:               id,
			Params:           trialCfg.Hyperparams,
			CVAccuracyMean:   fitResult.Diagnostics.CV.AccuracyMean,
			CVAccuracyStdDev: fitResult.Diagnostics.CV.AccuracyStdDev,
			TestAccuracy:     fitResult.Diagnostics.TestAccuracy,
			F1Macro:          fitResult.Diagnostics.Macro.F1,
			PrecisionMacro:   fitResult.Diagnostics.Macro.Precision,
			RecallMacro:      fitResult.Diagnostics.Macro.Recall,
			TrainSeconds:     elapsed,
			ModelPath:        modelPath,
			DiagnosticsPath:  diagPath,
			Timestamp:        timeNow(),
		})
	}
	return results, nil
}

// Best selects the top experiment by cv_accuracy_mean, ties broken by
// lower cv_accuracy_std, then by lower train_seconds.
func Best(results []ExperimentResult) (ExperimentResult, error) {
	if len(results) == 0 {
		return ExperimentResult{}, fmt.Errorf("tune: no experiments to select from")
	}
	ranked := Rank(results)
	return ranked[0], nil
}

// Rank sorts results best-first by the tuner's selection rule.
func Rank(results []ExperimentResult) []ExperimentResult {
	out := append([]ExperimentResult(nil), results...)
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.CVAccuracyMean != b.CVAccuracyMean {
			return a.CVAccuracyMean > b.CVAccuracyMean
		}
		if a.CVAccuracyStdDev != b.CVAccuracyStdDev {
			return a.CVAccuracyStdDev < b.CVAccuracyStdDev
		}
		return a.TrainSeconds < b.TrainSeconds
	})
	return out
}

// WriteOutputs writes the tuner's four reproducibility artifacts: per-trial
// JSON, a ranked CSV, a top-5 JSON, and the preset definition.
func WriteOutputs(dir string, preset Preset, results []ExperimentResult) error {
	if err := writeJSON(filepath.Join(dir, "trials.json"), results); err != nil {
		return err
	}
	ranked := Rank(results)
	if err := writeRankedCSV(filepath.Join(dir, "ranked.csv"), ranked); err != nil {
		return err
	}
	top := ranked
	if len(top) > 5 {
		top = top[:5]
	}
	if err := writeJSON(filepath.Join(dir, "top5.json"), top); err != nil {
		return err
	}
	return writeJSON(filepath.Join(dir, "preset.json"), preset)
}

func writeJSON(path string, v interface{}) error {
	f, err := os.Create(path)
	if err != nil {
		return ferrors.New(ferrors.TransportError, "", fmt.Errorf("tune: creating %s: %w", path, err))
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeRankedCSV(path string, ranked []ExperimentResult) error {
	f, err := os.Create(path)
	if err != nil {
		return ferrors.New(ferrors.TransportError, "", fmt.Errorf("tune: creating %s: %w", path, err))
	}
	defer f.Close()
	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"rank", "id", "cv_accuracy_mean", "cv_accuracy_std", "test_accuracy", "f1_macro", "train_seconds"}); err != nil {
		return err
	}
	for i, r := range ranked {
		row := []string{
			strconv.Itoa(i + 1), r.ID,
			strconv.FormatFloat(r.CVAccuracyMean, 'f', 6, 64),
			strconv.FormatFloat(r.CVAccuracyStdDev, 'f', 6, 64),
			strconv.FormatFloat(r.TestAccuracy, 'f', 6, 64),
			strconv.FormatFloat(r.F1Macro, 'f', 6, 64),
			strconv.FormatFloat(r.TrainSeconds, 'f', 3, 64),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}

var timeNowFn = time.Now

func timeNow() time.Time { return timeNowFn() }

func timeSince(t time.Time) float64 { return timeNowFn().Sub(t).Seconds() }
