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

// Package tune wraps package train's Fit phase with randomized
// hyperparameter search over a named preset's sampling domain.
package tune

import "fmt"

// DomainKind selects how a hyperparameter's value is drawn.
type DomainKind int

const (
	Uniform DomainKind = iota
	LogUniform
	Discrete
)

// Domain is a single hyperparameter's sampling space.
type Domain struct {
	Kind     DomainKind
	Min, Max float64   // for Uniform/LogUniform
	Values   []float64 // for Discrete
}

// Preset is a named, explicit mapping from hyperparameter name to sampling
// domain.
type Preset struct {
	Name    string
	Domains map[string]Domain
}

// presetNames is the closed set of valid presets.
var presetNames = []string{"fast", "balanced", "thorough", "regularization_focus", "depth_learning_focus"}

// Presets is the closed registry of hyperparameter search presets.
var Presets = map[string]Preset{
	"fast": {
		Name: "fast",
		Domains: map[string]Domain{
			"estimators":     {Kind: Discrete, Values: []float64{50, 100}},
			"max_depth":      {Kind: Discrete, Values: []float64{3, 4}},
			"learning_rate":  {Kind: LogUniform, Min: 0.05, Max: 0.3},
			"subsample":      {Kind: Uniform, Min: 0.7, Max: 1.0},
			"colsample":      {Kind: Uniform, Min: 0.7, Max: 1.0},
		},
	},
	"balanced": {
		Name: "balanced",
		Domains: map[string]Domain{
			"estimators":    {Kind: Discrete, Values: []float64{100, 200, 300}},
			"max_depth":     {Kind: Discrete, Values: []float64{3, 4, 5, 6}},
			"learning_rate": {Kind: LogUniform, Min: 0.01, Max: 0.3},
			"subsample":     {Kind: Uniform, Min: 0.6, Max: 1.0},
			"colsample":     {Kind: Uniform, Min: 0.6, Max: 1.0},
			"reg_lambda":    {Kind: LogUniform, Min: 0.1, Max: 10},
		},
	},
	"thorough": {
		Name: "thorough",
		Domains: map[string]Domain{
			"estimators":      {Kind: Discrete, Values: []float64{200, 300, 400, 500, 600}},
			"max_depth":       {Kind: Discrete, Values: []float64{3, 4, 5, 6, 7, 8}},
			"learning_rate":   {Kind: LogUniform, Min: 0.005, Max: 0.3},
			"subsample":       {Kind: Uniform, Min: 0.5, Max: 1.0},
			"colsample":       {Kind: Uniform, Min: 0.5, Max: 1.0},
			"reg_alpha":       {Kind: LogUniform, Min: 0.001, Max: 10},
			"reg_lambda":      {Kind: LogUniform, Min: 0.1, Max: 10},
			"gamma":           {Kind: LogUniform, Min: 0.001, Max: 5},
			"min_child_weight": {Kind: Discrete, Values: []float64{1, 2, 3, 5, 10}},
		},
	},
	"regularization_focus": {
		Name: "regularization_focus",
		Domains: map[string]Domain{
			"estimators":       {Kind: Discrete, Values: []float64{150, 250}},
			"max_depth":        {Kind: Discrete, Values: []float64{3, 4, 5}},
			"learning_rate":    {Kind: LogUniform, Min: 0.02, Max: 0.2},
			"subsample":        {Kind: Uniform, Min: 0.6, Max: 0.9},
			"colsample":        {Kind: Uniform, Min: 0.5, Max: 0.9},
			"reg_alpha":        {Kind: LogUniform, Min: 0.01, Max: 50},
			"reg_lambda":       {Kind: LogUniform, Min: 0.5, Max: 50},
			"gamma":            {Kind: LogUniform, Min: 0.01, Max: 10},
			"min_child_weight": {Kind: Discrete, Values: []float64{3, 5, 10, 20}},
		},
	},
	"depth_learning_focus": {
		Name: "depth_learning_focus",
		Domains: map[string]Domain{
			"estimators":    {Kind: Discrete, Values: []float64{200, 400, 600, 800}},
			"max_depth":     {Kind: Discrete, Values: []float64{4, 6, 8, 10, 12}},
			"learning_rate": {Kind: LogUniform, Min: 0.005, Max: 0.5},
			"subsample":     {Kind: Uniform, Min: 0.6, Max: 1.0},
			"colsample":     {Kind: Uniform, Min: 0.6, Max: 1.0},
		},
	},
}

// LookupPreset validates name against the closed preset set.
func LookupPreset(name string) (Preset, error) {
	p, ok := Presets[name]
	if !ok {
		return Preset{}, fmt.Errorf("tune: unknown preset %q (valid: %v)", name, presetNames)
	}
	return p, nil
}

// Names returns the closed set of valid preset names.
func Names() []string { return append([]string(nil), presetNames...) }
