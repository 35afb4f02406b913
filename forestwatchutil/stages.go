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

package forestwatchutil

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"

	"github.com/ctessum/geom"

	"github.com/chocoforestwatch/forestwatch-core/benchmark"
	"github.com/chocoforestwatch/forestwatch-core/catalog"
	"github.com/chocoforestwatch/forestwatch-core/composite"
	"github.com/chocoforestwatch/forestwatch-core/extract"
	"github.com/chocoforestwatch/forestwatch-core/ferrors"
	"github.com/chocoforestwatch/forestwatch-core/objectstore"
	"github.com/chocoforestwatch/forestwatch-core/predict"
	"github.com/chocoforestwatch/forestwatch-core/rundir"
	"github.com/chocoforestwatch/forestwatch-core/rundir/checksum"
	"github.com/chocoforestwatch/forestwatch-core/science/features"
	"github.com/chocoforestwatch/forestwatch-core/train"
	"github.com/chocoforestwatch/forestwatch-core/tune"
)

// StageRunner is one independently invocable pipeline stage. "all" chains
// several StageRunners back to back, stopping at the first one whose
// manifest reports any failed unit.
type StageRunner interface {
	StageName() string
	Run(ctx context.Context, cfg *Cfg, run *rundir.Run) (*rundir.Manifest, error)
}

func featureNames(cfg *Cfg) []string {
	if names := cfg.GetStringSlice("features"); len(names) > 0 {
		return names
	}
	return features.Names()
}

func classOrder(cfg *Cfg) []string {
	if order := GetStringSlice("class_order", cfg.Viper); len(order) > 0 {
		return order
	}
	return []string{"Forest", "NonForest"}
}

func ancillaryClasses(cs *extract.ClassSet, cfg *Cfg) map[uint8]bool {
	out := make(map[uint8]bool)
	for _, name := range cfg.GetStringSlice("ancillary_classes") {
		if idx, err := cs.Index(name); err == nil {
			out[uint8(idx)] = true
		}
	}
	return out
}

func mosaicResolver(cfg *Cfg) extract.MosaicResolver {
	tmpl := cfg.GetString("mosaic_url_template")
	return func(year, month int) (string, error) {
		if tmpl == "" {
			return "", ferrors.New(ferrors.ConfigError, "", fmt.Errorf("forestwatch: mosaic_url_template is not configured"))
		}
		return fmt.Sprintf(tmpl, year, month), nil
	}
}

func pixelSource(cfg *Cfg) catalog.PixelSource {
	if url := cfg.GetString("tile_stat_url"); url != "" {
		return catalog.NewTileStatSource(url, &http.Client{})
	}
	return &catalog.RangeReadSource{}
}

// openCatalog dials the catalog named by --db-host: the embedded sqlite
// database for "local", Postgres/PostGIS for "remote".
func openCatalog(ctx context.Context, cfg *Cfg) (catalog.Catalog, error) {
	switch cfg.GetString("db-host") {
	case "", "local":
		return catalog.OpenSQLite(cfg.GetString("db_path"))
	case "remote":
		return catalog.OpenPostgres(ctx, cfg.GetString("db_dsn"))
	default:
		return nil, ferrors.New(ferrors.ConfigError, "", fmt.Errorf("forestwatch: unknown --db-host %q (want local or remote)", cfg.GetString("db-host")))
	}
}

func loadClassesAndFeatures(cfg *Cfg) (*extract.ClassSet, []extract.TrainingFeature, error) {
	cs, err := extract.NewClassSet(classOrder(cfg))
	if err != nil {
		return nil, nil, err
	}
	path := cfg.GetString("training_features")
	if path == "" {
		return nil, nil, ferrors.New(ferrors.ConfigError, "", fmt.Errorf("forestwatch: training_features path is not configured"))
	}
	feats, err := extract.LoadTrainingFeatures(path)
	if err != nil {
		return nil, nil, err
	}
	return cs, feats, nil
}

func retryCommand(stage string, cfg *Cfg, year, month int) string {
	switch stage {
	case "training":
		return fmt.Sprintf("forestwatch training --year %d --start-month %d --end-month %d --project-id %s --run-id %s",
			year, month, month, cfg.GetString("project-id"), cfg.GetString("run-id"))
	case "tuning":
		return fmt.Sprintf("forestwatch tuning --year %d --tune-month %d --project-id %s --run-id %s",
			year, month, cfg.GetString("project-id"), cfg.GetString("run-id"))
	case "cfw-processing":
		return fmt.Sprintf("forestwatch cfw-processing --year %d --project-id %s --run-id %s --boundary-geojson %s",
			year, cfg.GetString("project-id"), cfg.GetString("run-id"), cfg.GetString("boundary-geojson"))
	default:
		return fmt.Sprintf("forestwatch %s --year %d --project-id %s --run-id %s", stage, year, cfg.GetString("project-id"), cfg.GetString("run-id"))
	}
}

// trainingStage extracts, prepares, fits and predicts one Monthly Model
// per month in the configured range. Each month is an independent unit: a
// failure in one month does not stop the others.
type trainingStage struct{}

func (trainingStage) StageName() string { return "training" }

func (trainingStage) Run(ctx context.Context, cfg *Cfg, run *rundir.Run) (*rundir.Manifest, error) {
	manifest := &rundir.Manifest{Stage: "training", RunID: run.ID}

	classes, allFeatures, err := loadClassesAndFeatures(cfg)
	if err != nil {
		return nil, err
	}
	names := featureNames(cfg)
	year := cfg.GetInt("year")

	if reportPath, err := writeValidationReport(run, allFeatures); err != nil {
		log.Printf("training: writing validation report: %v", err)
	} else {
		manifest.Artifacts = append(manifest.Artifacts, rundir.Artifact{Stage: "training", Unit: fmt.Sprintf("%04d", year), Path: reportPath})
	}

	cat, err := openCatalog(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer cat.Close()
	bucketURL := cfg.GetString("bucket_url")
	collectionID := cfg.GetString("project-id")

	for _, month := range cfg.MonthRange() {
		unit := monthUnit(year, month)
		release, err := run.Lock(unit)
		if err != nil {
			manifest.Units = append(manifest.Units, rundir.UnitResult{Unit: unit, Status: "skipped", Message: err.Error()})
			continue
		}

		result, artifacts, failErr := trainOneMonth(ctx, cfg, run, classes, names, allFeatures, year, month, cat, bucketURL, collectionID)
		release()
		if failErr != nil {
			manifest.Units = append(manifest.Units, rundir.UnitResult{
				Unit: unit, Status: "failed", Message: failErr.Error(),
				Retry: retryCommand("training", cfg, year, month),
			})
			continue
		}
		manifest.Units = append(manifest.Units, rundir.UnitResult{Unit: unit, Status: "succeeded"})
		manifest.Artifacts = append(manifest.Artifacts, artifacts...)
		_ = result
	}
	return manifest, run.WriteManifest(manifest)
}

func trainOneMonth(ctx context.Context, cfg *Cfg, run *rundir.Run, classes *extract.ClassSet, names []string,
	allFeatures []extract.TrainingFeature, year, month int, cat catalog.Catalog, bucketURL, collectionID string) (*predict.Result, []rundir.Artifact, error) {

	dataCacheDir, err := run.DataCacheDir(year, month)
	if err != nil {
		return nil, nil, ferrors.New(ferrors.ConfigError, "", err)
	}
	ext := &extract.Extractor{
		Classes: classes, Source: pixelSource(cfg), Mosaics: mosaicResolver(cfg),
		CacheDir: dataCacheDir, FeatureSetHash: checksum.Of(names),
	}
	monthFeatures := filterByMonth(allFeatures, year, month)
	pc, err := ext.Run(ctx, run.ID, year, month, monthFeatures)
	if err != nil {
		return nil, nil, err
	}
	if err := pc.Validate(); err != nil {
		return nil, nil, err
	}

	fc, err := train.Prepare(pc, names)
	if err != nil {
		return nil, nil, err
	}

	trainCfg := train.DefaultConfig(classes.Names(), names)
	fitResult, err := train.Fit(fc, trainCfg)
	if err != nil {
		return nil, nil, err
	}

	modelsDir, err := run.SavedModelsDir(year, month)
	if err != nil {
		return nil, nil, ferrors.New(ferrors.ConfigError, "", err)
	}
	modelPath := fmt.Sprintf("%s/%04d-%02d.model", modelsDir, year, month)
	if err := fitResult.Bundle.Save(modelPath); err != nil {
		return nil, nil, err
	}
	modelSum, err := checksum.File(modelPath)
	if err != nil {
		return nil, nil, ferrors.New(ferrors.IntegrityError, modelPath, err)
	}

	mosaicURL, err := mosaicResolver(cfg)(year, month)
	if err != nil {
		return nil, nil, err
	}
	predictCfg := predict.Config{MosaicURL: mosaicURL, MosaicSR: cfg.GetString("mosaic_sr"), Year: year, Month: month}
	pub := predict.PublishConfig{
		RunID: run.ID, Year: year, Month: month,
		CollectionID: collectionID, BucketURL: bucketURL,
	}
	result, err := predict.Publish(ctx, run, fitResult.Bundle, predictCfg, pub, cat)
	if err != nil {
		return nil, nil, err
	}

	unit := monthUnit(year, month)
	artifacts := []rundir.Artifact{
		{Stage: "training", Unit: unit, Path: modelPath, Checksum: modelSum},
		{Stage: "training", Unit: unit, Path: result.OutputPath, Checksum: result.Checksum},
	}
	return result, artifacts, nil
}

// minTrainingClasses is the fewest distinct classes Fit can train on; any
// month falling short is still attempted (and fails loudly there), but
// writeValidationReport surfaces it ahead of time.
const minTrainingClasses = 2

// writeValidationReport runs the training-feature pre-flight check over
// every month in scope and writes the human-readable table to the run
// directory, logging any month with too few observed classes.
func writeValidationReport(run *rundir.Run, allFeatures []extract.TrainingFeature) (string, error) {
	report := extract.Validate(allFeatures, minTrainingClasses)
	for _, w := range report.Warnings {
		log.Printf("training: %s", w)
	}
	path := filepath.Join(run.Root, "validation_report.txt")
	if err := os.WriteFile(path, []byte(report.String()), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func filterByMonth(features []extract.TrainingFeature, year, month int) []extract.TrainingFeature {
	var out []extract.TrainingFeature
	for _, f := range features {
		if f.Year == year && f.Month == month {
			out = append(out, f)
		}
	}
	return out
}

// tuningStage runs a hyperparameter search for one (or every) month in the
// configured range.
type tuningStage struct{}

func (tuningStage) StageName() string { return "tuning" }

func (tuningStage) Run(ctx context.Context, cfg *Cfg, run *rundir.Run) (*rundir.Manifest, error) {
	manifest := &rundir.Manifest{Stage: "tuning", RunID: run.ID}
	year := cfg.GetInt("year")
	preset := cfg.GetString("tune-preset")
	if preset == "" {
		preset = "balanced"
	}
	trials := cfg.GetInt("tune-trials")
	if trials <= 0 {
		trials = 20
	}
	seed := cfg.GetInt64("tuning_seed")

	months := cfg.MonthRange()
	if m := cfg.GetInt("tune-month"); m > 0 {
		months = []int{m}
	}

	classes, allFeatures, err := loadClassesAndFeatures(cfg)
	if err != nil {
		return nil, err
	}
	names := featureNames(cfg)

	for _, month := range months {
		unit := monthUnit(year, month)
		outDir, err := run.HyperparameterTuningDir()
		if err != nil {
			manifest.Units = append(manifest.Units, rundir.UnitResult{Unit: unit, Status: "failed", Message: err.Error()})
			continue
		}

		dataCacheDir, err := run.DataCacheDir(year, month)
		if err != nil {
			manifest.Units = append(manifest.Units, rundir.UnitResult{Unit: unit, Status: "failed", Message: err.Error()})
			continue
		}
		ext := &extract.Extractor{Classes: classes, Source: pixelSource(cfg), Mosaics: mosaicResolver(cfg), CacheDir: dataCacheDir, FeatureSetHash: checksum.Of(names)}
		pc, err := ext.Run(ctx, run.ID, year, month, filterByMonth(allFeatures, year, month))
		if err != nil {
			manifest.Units = append(manifest.Units, rundir.UnitResult{Unit: unit, Status: "failed", Message: err.Error(), Retry: retryCommand("tuning", cfg, year, month)})
			continue
		}
		fc, err := train.Prepare(pc, names)
		if err != nil {
			manifest.Units = append(manifest.Units, rundir.UnitResult{Unit: unit, Status: "failed", Message: err.Error(), Retry: retryCommand("tuning", cfg, year, month)})
			continue
		}

		trainCfg := train.DefaultConfig(classes.Names(), names)
		results, err := tune.Run(fc, trainCfg, preset, trials, seed, outDir)
		if err != nil {
			manifest.Units = append(manifest.Units, rundir.UnitResult{Unit: unit, Status: "failed", Message: err.Error(), Retry: retryCommand("tuning", cfg, year, month)})
			continue
		}
		p, _ := tune.LookupPreset(preset)
		if err := tune.WriteOutputs(outDir, p, results); err != nil {
			manifest.Units = append(manifest.Units, rundir.UnitResult{Unit: unit, Status: "failed", Message: err.Error()})
			continue
		}
		manifest.Units = append(manifest.Units, rundir.UnitResult{Unit: unit, Status: "succeeded"})
		manifest.Artifacts = append(manifest.Artifacts, rundir.Artifact{Stage: "tuning", Unit: unit, Path: outDir})
	}
	return manifest, run.WriteManifest(manifest)
}

// compositesStage builds the annual Composite from the run's already
// published Prediction Rasters.
type compositesStage struct{}

func (compositesStage) StageName() string { return "composites" }

func (compositesStage) Run(ctx context.Context, cfg *Cfg, run *rundir.Run) (*rundir.Manifest, error) {
	manifest := &rundir.Manifest{Stage: "composites", RunID: run.ID}
	year := cfg.GetInt("year")
	algorithm := cfg.GetString("forest-algorithm")
	if algorithm == "" {
		algorithm = "majority_vote"
	}
	unit := fmt.Sprintf("%04d", year)

	var months []composite.MonthlyRaster
	for _, m := range cfg.MonthRange() {
		dir, err := run.PredictionCOGsDir(year, m)
		if err != nil {
			continue
		}
		path := fmt.Sprintf("%s/%04d-%02d.tif", dir, year, m)
		months = append(months, composite.MonthlyRaster{Month: m, Path: path})
	}
	if len(months) == 0 {
		err := ferrors.New(ferrors.StageDependencyError, unit, fmt.Errorf("forestwatch: no prediction rasters available for %d, run training first", year))
		manifest.Units = append(manifest.Units, rundir.UnitResult{Unit: unit, Status: "failed", Message: err.Error()})
		return manifest, run.WriteManifest(manifest)
	}

	classes, err := extract.NewClassSet(classOrder(cfg))
	if err != nil {
		return nil, err
	}
	ancillary := ancillaryClasses(classes, cfg)

	outDir, err := run.CompositesDir()
	if err != nil {
		return nil, ferrors.New(ferrors.ConfigError, "", err)
	}
	outputPath := fmt.Sprintf("%s/%04d_%s.tif", outDir, year, algorithm)

	if err := composite.Build(months, algorithm, ancillary, outputPath); err != nil {
		manifest.Units = append(manifest.Units, rundir.UnitResult{
			Unit: unit, Status: "failed", Message: err.Error(),
			Retry: fmt.Sprintf("forestwatch composites --year %d --project-id %s --run-id %s", year, cfg.GetString("project-id"), run.ID),
		})
		return manifest, run.WriteManifest(manifest)
	}

	sum, err := checksum.File(outputPath)
	if err != nil {
		return nil, ferrors.New(ferrors.IntegrityError, outputPath, err)
	}

	if cat, err := openCatalog(ctx, cfg); err == nil {
		defer cat.Close()
		bucketURL := cfg.GetString("bucket_url")
		if bucketURL != "" {
			if bucket, err := objectstore.Open(ctx, bucketURL); err == nil {
				defer bucket.Close()
				key := objectstore.Key(run.ID, unit, "composite.tif")
				if err := objectstore.PutFile(ctx, bucket, key, outputPath); err == nil {
					_ = cat.RegisterItem(ctx, catalog.Item{
						ID:           catalog.ItemID(run.ID, year, 0),
						CollectionID: cfg.GetString("project-id"),
						AssetURL:     bucketURL + "/" + key,
						Checksum:     sum,
						Year:         year,
					})
				}
			}
		}
	}

	manifest.Units = append(manifest.Units, rundir.UnitResult{Unit: unit, Status: "succeeded"})
	manifest.Artifacts = append(manifest.Artifacts, rundir.Artifact{Stage: "composites", Unit: unit, Path: outputPath, Checksum: sum})
	return manifest, run.WriteManifest(manifest)
}

// cfwProcessingStage re-runs the Predictor for every month in range,
// clipped to --boundary-geojson, independently of the inline prediction
// "training" already performed. This is the standalone re-processing path
// used to regenerate clipped rasters without refitting a model.
type cfwProcessingStage struct{}

func (cfwProcessingStage) StageName() string { return "cfw-processing" }

func (cfwProcessingStage) Run(ctx context.Context, cfg *Cfg, run *rundir.Run) (*rundir.Manifest, error) {
	manifest := &rundir.Manifest{Stage: "cfw-processing", RunID: run.ID}
	year := cfg.GetInt("year")

	var boundary *geom.Polygon
	if path := cfg.GetString("boundary-geojson"); path != "" {
		b, err := predict.LoadBoundary(path)
		if err != nil {
			return nil, err
		}
		boundary = b
	}

	cat, err := openCatalog(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer cat.Close()
	bucketURL := cfg.GetString("bucket_url")
	collectionID := cfg.GetString("project-id")

	for _, month := range cfg.MonthRange() {
		unit := monthUnit(year, month)
		modelsDir, err := run.SavedModelsDir(year, month)
		if err != nil {
			manifest.Units = append(manifest.Units, rundir.UnitResult{Unit: unit, Status: "failed", Message: err.Error()})
			continue
		}
		modelPath := fmt.Sprintf("%s/%04d-%02d.model", modelsDir, year, month)
		bundle, err := train.LoadBundle(modelPath)
		if err != nil {
			manifest.Units = append(manifest.Units, rundir.UnitResult{
				Unit: unit, Status: "failed",
				Message: fmt.Sprintf("no trained model for %s, run training first: %v", unit, err),
			})
			continue
		}

		mosaicURL, err := mosaicResolver(cfg)(year, month)
		if err != nil {
			manifest.Units = append(manifest.Units, rundir.UnitResult{Unit: unit, Status: "failed", Message: err.Error()})
			continue
		}
		predictCfg := predict.Config{
			MosaicURL:  mosaicURL,
			MosaicSR:   cfg.GetString("mosaic_sr"),
			GeometrySR: cfg.GetString("boundary_sr"),
			Boundary:   boundary,
			Year:       year,
			Month:      month,
		}

		pub := predict.PublishConfig{RunID: run.ID, Year: year, Month: month, CollectionID: collectionID, BucketURL: bucketURL}
		result, err := predict.Publish(ctx, run, bundle, predictCfg, pub, cat)
		if err != nil {
			manifest.Units = append(manifest.Units, rundir.UnitResult{
				Unit: unit, Status: "failed", Message: err.Error(),
				Retry: retryCommand("cfw-processing", cfg, year, month),
			})
			continue
		}
		manifest.Units = append(manifest.Units, rundir.UnitResult{Unit: unit, Status: "succeeded"})
		manifest.Artifacts = append(manifest.Artifacts, rundir.Artifact{Stage: "cfw-processing", Unit: unit, Path: result.OutputPath, Checksum: result.Checksum})
	}
	return manifest, run.WriteManifest(manifest)
}

// benchmarksStage compares the raster named by benchmark_prediction_path
// (or, when that is unset, the run's composite for the configured
// forest-algorithm) against the configured reference rasters. Monthly
// prediction rasters are not used as a fallback.
type benchmarksStage struct{}

func (benchmarksStage) StageName() string { return "benchmarks" }

func (benchmarksStage) Run(ctx context.Context, cfg *Cfg, run *rundir.Run) (*rundir.Manifest, error) {
	manifest := &rundir.Manifest{Stage: "benchmarks", RunID: run.ID}
	year := cfg.GetInt("year")
	refs := cfg.ReferenceRasters()
	if len(refs) == 0 {
		err := ferrors.New(ferrors.ConfigError, "", fmt.Errorf("forestwatch: no reference_rasters configured"))
		manifest.Units = append(manifest.Units, rundir.UnitResult{Unit: fmt.Sprintf("%04d", year), Status: "failed", Message: err.Error()})
		return manifest, run.WriteManifest(manifest)
	}

	resultsDir, err := run.BenchmarkResultsDir()
	if err != nil {
		return nil, ferrors.New(ferrors.ConfigError, "", err)
	}

	for key, refPath := range refs {
		predPath := cfg.GetString("benchmark_prediction_path")
		if predPath == "" {
			if compDir, err := run.CompositesDir(); err == nil {
				algorithm := cfg.GetString("forest-algorithm")
				if algorithm == "" {
					algorithm = "majority_vote"
				}
				predPath = fmt.Sprintf("%s/%04d_%s.tif", compDir, year, algorithm)
			}
		}

		predRaster, err := benchmark.ReadRaster(predPath)
		if err != nil {
			manifest.Units = append(manifest.Units, rundir.UnitResult{
				Unit: key, Status: "failed", Message: err.Error(),
				Retry: fmt.Sprintf("forestwatch benchmarks --year %d --project-id %s --run-id %s", year, cfg.GetString("project-id"), run.ID),
			})
			continue
		}
		refRaster, err := benchmark.ReadRaster(refPath)
		if err != nil {
			manifest.Units = append(manifest.Units, rundir.UnitResult{Unit: key, Status: "failed", Message: err.Error()})
			continue
		}

		result, err := benchmark.Compare(predRaster, refRaster, nil)
		if err != nil {
			manifest.Units = append(manifest.Units, rundir.UnitResult{Unit: key, Status: "failed", Message: err.Error()})
			continue
		}

		outPath := fmt.Sprintf("%s/%s.json", resultsDir, key)
		if err := benchmark.WriteJSON(outPath, result); err != nil {
			manifest.Units = append(manifest.Units, rundir.UnitResult{Unit: key, Status: "failed", Message: err.Error()})
			continue
		}
		plotPath := fmt.Sprintf("%s/%s.png", resultsDir, key)
		if err := benchmark.WritePlot(plotPath, result); err != nil {
			manifest.Units = append(manifest.Units, rundir.UnitResult{Unit: key, Status: "failed", Message: err.Error()})
			continue
		}
		manifest.Units = append(manifest.Units, rundir.UnitResult{Unit: key, Status: "succeeded"})
		manifest.Artifacts = append(manifest.Artifacts, rundir.Artifact{Stage: "benchmarks", Unit: key, Path: outPath})
		manifest.Artifacts = append(manifest.Artifacts, rundir.Artifact{Stage: "benchmarks", Unit: key, Path: plotPath})
	}
	return manifest, run.WriteManifest(manifest)
}
