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

// Package train fits a per-month classifier from a Pixel Cache: a
// two-phase Prepare/Fit workflow with group-aware splitting, K-fold
// cross-validation, and diagnostics.
package train

import (
	"fmt"

	"github.com/chocoforestwatch/forestwatch-core/ferrors"
	"github.com/chocoforestwatch/forestwatch-core/train/boost"
)

// SplitMethod selects how rows are partitioned into train/val/test.
type SplitMethod string

const (
	SplitFeature SplitMethod = "feature"
	SplitPixel   SplitMethod = "pixel"
)

// ClassWeighting selects whether classes are reweighted for imbalance.
type ClassWeighting string

const (
	ClassWeightNone     ClassWeighting = "none"
	ClassWeightBalanced ClassWeighting = "balanced"
)

// Config is the C3 Trainer's enumerated configuration.
type Config struct {
	SplitMethod         SplitMethod
	TestFraction        float64
	ValFraction         float64
	RandomState         int64
	EarlyStoppingRounds int
	ClassWeighting      ClassWeighting
	CVFolds             int
	ClassOrder          []string
	FeatureExtractors   []string
	Hyperparams         boost.Params
}

// DefaultConfig returns a Config with the pipeline's standard defaults.
func DefaultConfig(classOrder, featureExtractors []string) Config {
	return Config{
		SplitMethod:         SplitFeature,
		TestFraction:        0.2,
		ValFraction:         0.2,
		RandomState:         0,
		EarlyStoppingRounds: 10,
		ClassWeighting:      ClassWeightNone,
		CVFolds:             5,
		ClassOrder:          classOrder,
		FeatureExtractors:   featureExtractors,
		Hyperparams:         boost.DefaultParams(len(classOrder)),
	}
}

// Validate checks the Config's enumerated-field bounds.
func (c Config) Validate() error {
	if c.TestFraction < 0.05 || c.TestFraction > 0.5 {
		return ferrors.New(ferrors.ConfigError, "", fmt.Errorf("train: test_fraction %.3f out of range [0.05, 0.5]", c.TestFraction))
	}
	if c.ValFraction < 0.05 || c.ValFraction > 0.5 {
		return ferrors.New(ferrors.ConfigError, "", fmt.Errorf("train: val_fraction %.3f out of range [0.05, 0.5]", c.ValFraction))
	}
	if c.CVFolds < 2 {
		return ferrors.New(ferrors.ConfigError, "", fmt.Errorf("train: cv_folds must be >= 2, got %d", c.CVFolds))
	}
	switch c.SplitMethod {
	case SplitFeature, SplitPixel:
	default:
		return ferrors.New(ferrors.ConfigError, "", fmt.Errorf("train: unknown split_method %q", c.SplitMethod))
	}
	switch c.ClassWeighting {
	case ClassWeightNone, ClassWeightBalanced:
	default:
		return ferrors.New(ferrors.ConfigError, "", fmt.Errorf("train: unknown class_weighting %q", c.ClassWeighting))
	}
	return nil
}
