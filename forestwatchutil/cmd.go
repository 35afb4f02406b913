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
	"os"

	"github.com/lnashier/viper"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/chocoforestwatch/forestwatch-core/ferrors"
	"github.com/chocoforestwatch/forestwatch-core/rundir"
)

// InitializeConfig builds the command tree and returns the Cfg that backs
// it. Run cfg.Root.Execute() to dispatch.
func InitializeConfig() *Cfg {
	cfg := &Cfg{Viper: viper.New()}

	cfg.Root = &cobra.Command{
		Use:   "forestwatch",
		Short: "Forest / non-forest classification batch pipeline",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setConfig(cfg)
		},
	}

	cfg.trainingCmd = &cobra.Command{
		Use:   "training",
		Short: "extract pixels, fit a Monthly Model and predict for each month in range",
		RunE:  cfg.runStage(trainingStage{}),
	}
	cfg.tuningCmd = &cobra.Command{
		Use:   "tuning",
		Short: "randomized hyperparameter search against a preset's sampling domain",
		RunE:  cfg.runStage(tuningStage{}),
	}
	cfg.compositesCmd = &cobra.Command{
		Use:   "composites",
		Short: "build the annual composite from this run's Prediction Rasters",
		RunE:  cfg.runStage(compositesStage{}),
	}
	cfg.cfwProcessingCmd = &cobra.Command{
		Use:   "cfw-processing",
		Short: "re-run the predictor against a boundary-clipped AOI using already-trained models",
		RunE:  cfg.runStage(cfwProcessingStage{}),
	}
	cfg.benchmarksCmd = &cobra.Command{
		Use:   "benchmarks",
		Short: "compare the run's composite against configured reference rasters",
		RunE:  cfg.runStage(benchmarksStage{}),
	}
	cfg.allCmd = &cobra.Command{
		Use:   "all",
		Short: "run training, composites, cfw-processing and benchmarks in sequence",
		RunE:  cfg.runAll(),
	}
	cfg.listCmd = &cobra.Command{
		Use:   "list",
		Short: "list STAC items registered under a project",
		RunE:  cfg.runList(),
	}
	initConfigCmd := &cobra.Command{
		Use:   "init-config [path]",
		Short: "write a starter TOML configuration file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "forestwatch.toml"
			if len(args) == 1 {
				path = args[0]
			}
			return WriteDefaultConfig(path)
		},
	}
	cfg.Root.AddCommand(cfg.trainingCmd, cfg.tuningCmd, cfg.compositesCmd, cfg.cfwProcessingCmd, cfg.benchmarksCmd, cfg.allCmd, cfg.listCmd, initConfigCmd)

	monthRangeCmds := []*pflag.FlagSet{
		cfg.trainingCmd.Flags(), cfg.tuningCmd.Flags(), cfg.compositesCmd.Flags(),
		cfg.cfwProcessingCmd.Flags(), cfg.allCmd.Flags(),
	}
	dbHostCmds := []*pflag.FlagSet{
		cfg.trainingCmd.Flags(), cfg.tuningCmd.Flags(), cfg.compositesCmd.Flags(),
		cfg.cfwProcessingCmd.Flags(), cfg.benchmarksCmd.Flags(), cfg.allCmd.Flags(), cfg.listCmd.Flags(),
	}
	allButList := []*pflag.FlagSet{
		cfg.trainingCmd.Flags(), cfg.tuningCmd.Flags(), cfg.compositesCmd.Flags(),
		cfg.cfwProcessingCmd.Flags(), cfg.benchmarksCmd.Flags(), cfg.allCmd.Flags(),
	}

	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{name: "config", usage: "path to a TOML configuration file",
			defaultVal: "", flagsets: []*pflag.FlagSet{cfg.Root.PersistentFlags()}},
		{name: "runs_root", usage: "root directory for run workspaces",
			defaultVal: "./runs", flagsets: []*pflag.FlagSet{cfg.Root.PersistentFlags()}},
		{name: "year", usage: "calendar year to process",
			defaultVal: 0, flagsets: allButList},
		{name: "project-id", usage: "STAC collection / project identifier",
			defaultVal: "", flagsets: append(append([]*pflag.FlagSet{}, allButList...), cfg.listCmd.Flags())},
		{name: "run-id", usage: "run identifier; generated if omitted",
			defaultVal: "", flagsets: allButList},
		{name: "start-month", usage: "first month to process (1-12)",
			defaultVal: 1, flagsets: monthRangeCmds},
		{name: "end-month", usage: "last month to process (1-12)",
			defaultVal: 12, flagsets: monthRangeCmds},
		{name: "features", usage: "feature extractor names (default: the full registry)",
			defaultVal: []string{}, flagsets: []*pflag.FlagSet{cfg.trainingCmd.Flags(), cfg.tuningCmd.Flags(), cfg.allCmd.Flags()}},
		{name: "db-host", usage: "STAC catalog backend: local or remote",
			defaultVal: "local", flagsets: dbHostCmds},
		{name: "tune-month", usage: "single month to tune; all months in range if omitted",
			defaultVal: 0, flagsets: []*pflag.FlagSet{cfg.tuningCmd.Flags()}},
		{name: "tune-preset", usage: "search preset: fast, balanced, thorough, regularization_focus, depth_learning_focus",
			defaultVal: "balanced", flagsets: []*pflag.FlagSet{cfg.tuningCmd.Flags()}},
		{name: "tune-trials", usage: "number of trial configurations to sample",
			defaultVal: 20, flagsets: []*pflag.FlagSet{cfg.tuningCmd.Flags()}},
		{name: "forest-algorithm", usage: "composite algorithm: majority_vote, temporal_trend, change_point, latest_valid, weighted_temporal",
			defaultVal: "majority_vote", flagsets: []*pflag.FlagSet{cfg.compositesCmd.Flags(), cfg.benchmarksCmd.Flags(), cfg.allCmd.Flags()}},
		{name: "boundary-geojson", usage: "path to a GeoJSON boundary to clip predictions to",
			defaultVal: "", flagsets: []*pflag.FlagSet{cfg.cfwProcessingCmd.Flags(), cfg.allCmd.Flags()}},
	}
	registerOptions(cfg)

	return cfg
}

// runStage adapts a StageRunner into a cobra RunE: it opens the run
// directory, runs the stage, prints the summary table, and maps the
// outcome to an exit code via ferrors.Kind.ExitCode.
func (cfg *Cfg) runStage(stage StageRunner) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		run, err := rundir.New(cfg.GetString("runs_root"), cfg.RunID())
		if err != nil {
			return ferrors.New(ferrors.ConfigError, "", err)
		}

		manifest, err := stage.Run(ctx, cfg, run)
		if err != nil {
			return err
		}
		printManifest(stage.StageName(), manifest)
		if manifest.Failed() > 0 {
			os.Exit(ferrors.InputDataError.ExitCode())
		}
		return nil
	}
}

// runAll sequences the four "all" stages in the order named by the
// orchestrator's external command contract: training, composites,
// cfw-processing, benchmarks. A stage with any failed unit stops the
// chain; its retry commands are printed for the operator to resume from.
func (cfg *Cfg) runAll() func(*cobra.Command, []string) error {
	stages := []StageRunner{trainingStage{}, compositesStage{}, cfwProcessingStage{}, benchmarksStage{}}
	return func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		run, err := rundir.New(cfg.GetString("runs_root"), cfg.RunID())
		if err != nil {
			return ferrors.New(ferrors.ConfigError, "", err)
		}

		for _, stage := range stages {
			manifest, err := stage.Run(ctx, cfg, run)
			if err != nil {
				return err
			}
			printManifest(stage.StageName(), manifest)
			if manifest.Failed() > 0 {
				fmt.Fprintf(os.Stderr, "forestwatch: stage %q had failures, stopping\n", stage.StageName())
				os.Exit(ferrors.InputDataError.ExitCode())
			}
		}
		return nil
	}
}

func (cfg *Cfg) runList() func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		cat, err := openCatalog(ctx, cfg)
		if err != nil {
			return err
		}
		defer cat.Close()
		items, err := cat.ItemsByCollection(ctx, cfg.GetString("project-id"))
		if err != nil {
			return err
		}
		for _, it := range items {
			fmt.Printf("%-40s %04d-%02d  %s\n", it.ID, it.Year, it.Month, it.AssetURL)
		}
		return nil
	}
}

func printManifest(stage string, m *rundir.Manifest) {
	fmt.Printf("== %s: %d succeeded, %d failed, %d skipped ==\n", stage, m.Succeeded(), m.Failed(), m.Skipped())
	for _, u := range m.Units {
		if u.Status == "succeeded" {
			continue
		}
		fmt.Printf("  %-12s %-10s %s\n", u.Unit, u.Status, u.Message)
		if u.Retry != "" {
			fmt.Printf("    retry: %s\n", u.Retry)
		}
	}
}
