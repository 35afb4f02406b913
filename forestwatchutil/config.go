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

// Package forestwatchutil implements the orchestrator: a spf13/cobra
// command tree with one subcommand per named pipeline stage plus "all",
// a viper/toml configuration layer, and the stage-sequencing, manifest
// and retry-command logic shared by every subcommand.
package forestwatchutil

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/lnashier/viper"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Cfg holds the orchestrator's configuration and command tree.
type Cfg struct {
	*viper.Viper

	Root             *cobra.Command
	trainingCmd      *cobra.Command
	tuningCmd        *cobra.Command
	compositesCmd    *cobra.Command
	cfwProcessingCmd *cobra.Command
	benchmarksCmd    *cobra.Command
	allCmd           *cobra.Command
	listCmd          *cobra.Command
}

// options is a table of every flag the command tree exposes, each naming
// the set of commands' FlagSets it appears on. A flag that appears on more
// than one command is created once, on its first listed FlagSet, and
// shared onto the rest via AddFlag so every command's copy is the same
// underlying pflag.Flag (and so a single viper binding sees whichever
// command actually parsed it).
var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func registerOptions(cfg *Cfg) {
	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 {
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch v := option.defaultVal.(type) {
			case string:
				set.String(option.name, v, option.usage)
			case int:
				set.Int(option.name, v, option.usage)
			case int64:
				set.Int64(option.name, v, option.usage)
			case []string:
				set.StringSlice(option.name, v, option.usage)
			default:
				panic(fmt.Errorf("forestwatchutil: invalid default type %T for option %q", v, option.name))
			}
			cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
}

// setConfig reads the configuration file named by the "config" flag, if
// any was given.
func setConfig(cfg *Cfg) error {
	if path := cfg.GetString("config"); path != "" {
		cfg.SetConfigFile(path)
		if err := cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("forestwatch: reading configuration file: %w", err)
		}
	}
	return nil
}

// RunID returns the configured run id, falling back to a generated one if
// it was left blank.
func (cfg *Cfg) RunID() string {
	if id := cfg.GetString("run-id"); id != "" {
		return id
	}
	return newRunID()
}

// MonthRange returns the inclusive [start-month, end-month] range as a
// sorted slice, clamped to 1-12.
func (cfg *Cfg) MonthRange() []int {
	start, end := cfg.GetInt("start-month"), cfg.GetInt("end-month")
	if start < 1 {
		start = 1
	}
	if end < 1 || end > 12 {
		end = 12
	}
	var months []int
	for m := start; m <= end; m++ {
		months = append(months, m)
	}
	return months
}

// ReferenceRasters returns the configured year/month -> reference raster
// path map, keyed by "YYYY-MM".
func (cfg *Cfg) ReferenceRasters() map[string]string {
	return GetStringMapString("reference_rasters", cfg.Viper)
}

// GetStringMapString works around this viper fork returning string-encoded
// maps for some key types: it first tries the native map getter, then falls
// back to decoding a JSON string value.
func GetStringMapString(key string, v *viper.Viper) map[string]string {
	if m := v.GetStringMapString(key); len(m) > 0 {
		return m
	}
	return decodeJSONStringMap(v.GetString(key))
}

// GetStringSlice returns key as a string slice, accepting anything
// cast.ToStringSliceE can coerce (a TOML array, a single string, a
// comma-joined flag value) rather than only the slice type the native
// viper getter expects.
func GetStringSlice(key string, v *viper.Viper) []string {
	out, err := cast.ToStringSliceE(v.Get(key))
	if err != nil {
		return nil
	}
	return out
}

func monthUnit(year, month int) string {
	return fmt.Sprintf("%04d-%02d", year, month)
}

// defaultConfigTemplate is written by "forestwatch init-config" as a
// starting point for a project's TOML configuration file.
type defaultConfigTemplate struct {
	RunsRoot         string            `toml:"runs_root"`
	ProjectID        string            `toml:"project_id"`
	TrainingFeatures string            `toml:"training_features"`
	Features         []string          `toml:"features"`
	ClassOrder       []string          `toml:"class_order"`
	DBHost           string            `toml:"db_host"`
	ReferenceRasters map[string]string `toml:"reference_rasters"`
}

// WriteDefaultConfig renders a starter configuration to path as plain TOML
// (no comments are written).
func WriteDefaultConfig(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("forestwatch: creating %s: %w", path, err)
	}
	defer f.Close()

	tmpl := defaultConfigTemplate{
		RunsRoot:         "./runs",
		ClassOrder:       []string{"Forest", "NonForest"},
		DBHost:           "local",
		ReferenceRasters: map[string]string{},
	}
	enc := toml.NewEncoder(f)
	return enc.Encode(tmpl)
}
