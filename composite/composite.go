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

// Package composite implements the Composite Builder (C6): fusing up to
// twelve monthly Prediction Rasters into a single annual raster using one
// of five pluggable temporal-decision algorithms.
package composite

import "fmt"

// Class values on the fixed palette shared with the Predictor.
const (
	Forest    uint8 = 0
	NonForest uint8 = 1
	Missing   uint8 = 255
)

// changePointThreshold is the fixed purity-gain threshold above which
// change_point reports the later segment's label instead of falling back
// to a plain majority vote; see DESIGN.md.
const changePointThreshold = 0.10

// Algorithm is a named, pure temporal-decision rule for collapsing a
// vector of monthly class indices (with ancillary classes already mapped
// to Missing, in calendar order) into a single annual label.
type Algorithm struct {
	Name string
	// MinValid is the minimum number of non-Missing entries required to
	// produce a label; output pixels below it become Missing.
	MinValid int
	// reduce operates on the already-filtered valid(v) slice (no Missing
	// entries) and returns the label plus an optional confidence score.
	reduce func(valid []uint8) (uint8, *float64)
}

var registry = map[string]Algorithm{
	"majority_vote":     {Name: "majority_vote", MinValid: 2, reduce: majorityVote},
	"latest_valid":      {Name: "latest_valid", MinValid: 1, reduce: latestValid},
	"weighted_temporal":  {Name: "weighted_temporal", MinValid: 2, reduce: weightedTemporal},
	"temporal_trend":    {Name: "temporal_trend", MinValid: 3, reduce: temporalTrend},
	"change_point":      {Name: "change_point", MinValid: 4, reduce: changePoint},
}

// Names returns the closed set of valid algorithm names.
func Names() []string {
	return []string{"majority_vote", "latest_valid", "weighted_temporal", "temporal_trend", "change_point"}
}

// Lookup returns the named algorithm from the closed registry.
func Lookup(name string) (Algorithm, error) {
	a, ok := registry[name]
	if !ok {
		return Algorithm{}, fmt.Errorf("composite: unknown algorithm %q", name)
	}
	return a, nil
}

// valid returns the subsequence of v whose entries are not Missing,
// preserving calendar order.
func valid(v []uint8) []uint8 {
	out := make([]uint8, 0, len(v))
	for _, x := range v {
		if x != Missing {
			out = append(out, x)
		}
	}
	return out
}

// ApplyAncillary maps every entry of v that appears in ancillary (the
// Cloud/Shadow/Haze/SensorError classes) to Missing, leaving Forest and
// NonForest untouched. The result is suitable as input to Reduce.
func ApplyAncillary(v []uint8, ancillary map[uint8]bool) []uint8 {
	out := make([]uint8, len(v))
	for i, x := range v {
		if ancillary[x] {
			out[i] = Missing
		} else {
			out[i] = x
		}
	}
	return out
}

// Reduce applies the named algorithm to a single output pixel's monthly
// class-index vector v (already with ancillary classes mapped to
// Missing), returning the annual label and, for change_point, the purity
// gain that produced it. Pixels with fewer than the algorithm's MinValid
// non-Missing entries return Missing with no confidence score.
func Reduce(algorithm string, v []uint8) (uint8, *float64, error) {
	alg, err := Lookup(algorithm)
	if err != nil {
		return Missing, nil, err
	}
	validV := valid(v)
	if len(validV) < alg.MinValid {
		return Missing, nil, nil
	}
	label, confidence := alg.reduce(validV)
	return label, confidence, nil
}

// counts returns the number of Forest and NonForest entries in v.
func counts(v []uint8) (forest, nonForest int) {
	for _, x := range v {
		if x == Forest {
			forest++
		} else if x == NonForest {
			nonForest++
		}
	}
	return
}

// majorityLabel is the mode of v, with ties broken toward Non-Forest, used
// by majority_vote and as the fallback for temporal_trend and
// change_point.
func majorityLabel(v []uint8) uint8 {
	forest, nonForest := counts(v)
	if nonForest >= forest {
		return NonForest
	}
	return Forest
}

func majorityVote(v []uint8) (uint8, *float64) {
	return majorityLabel(v), nil
}

func latestValid(v []uint8) (uint8, *float64) {
	return v[len(v)-1], nil
}

// weightedTemporal weights each entry by its recency within the valid
// sequence: w_i = (i+1)/len(v) for 0-indexed position i, so the most
// recent valid month has weight 1 and the oldest has weight 1/len(v).
// Ties (equal weighted mass for Forest and NonForest) favor Non-Forest.
func weightedTemporal(v []uint8) (uint8, *float64) {
	var forestWeight, nonForestWeight float64
	n := float64(len(v))
	for i, x := range v {
		w := float64(i+1) / n
		if x == Forest {
			forestWeight += w
		} else if x == NonForest {
			nonForestWeight += w
		}
	}
	if nonForestWeight >= forestWeight {
		return NonForest, nil
	}
	return Forest, nil
}

// temporalTrend emits the label of the tail run if its length is at least
// 2, otherwise falls back to a plain majority vote over the valid
// sequence.
func temporalTrend(v []uint8) (uint8, *float64) {
	tail := v[len(v)-1]
	run := 1
	for i := len(v) - 2; i >= 0; i-- {
		if v[i] != tail {
			break
		}
		run++
	}
	if run >= 2 {
		return tail, nil
	}
	return majorityLabel(v), nil
}

// purity is the fraction of v occupied by its most common label.
func purity(v []uint8) float64 {
	if len(v) == 0 {
		return 0
	}
	forest, nonForest := counts(v)
	max := forest
	if nonForest > max {
		max = nonForest
	}
	return float64(max) / float64(len(v))
}

// changePoint finds the split index that maximizes combined label purity
// across the two sides, and if the resulting gain over the un-split
// baseline exceeds changePointThreshold, emits the later segment's mode
// label together with the gain as a confidence score. Otherwise it falls
// back to a plain majority vote with no confidence score.
func changePoint(v []uint8) (uint8, *float64) {
	base := purity(v)
	n := len(v)
	bestGain := -1.0
	bestSplit := 0
	for s := 1; s < n; s++ {
		left, right := v[:s], v[s:]
		combined := (float64(s)*purity(left) + float64(n-s)*purity(right)) / float64(n)
		gain := combined - base
		if gain > bestGain {
			bestGain = gain
			bestSplit = s
		}
	}
	if bestSplit > 0 && bestGain > changePointThreshold {
		label := majorityLabel(v[bestSplit:])
		gain := bestGain
		return label, &gain
	}
	return majorityLabel(v), nil
}
