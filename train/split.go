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

package train

import (
	"math"
	"math/rand"
	"sort"
)

// Split holds row indices (into the cache's row slice) for each partition.
type Split struct {
	Train, Val, Test []int
}

// Row is the minimal per-pixel info splitting needs: its class and group
// (feature id).
type Row struct {
	ClassIdx int
	GroupID  string
}

// MakeSplit partitions rows according to method, reserving testFrac and
// valFrac of the data for test and validation respectively.
func MakeSplit(rows []Row, method SplitMethod, testFrac, valFrac float64, seed int64) Split {
	if method == SplitPixel {
		return pixelSplit(rows, testFrac, valFrac, seed)
	}
	return featureSplit(rows, testFrac, valFrac, seed)
}

// pixelSplit is stratified random sampling directly over rows: each class's
// rows are independently shuffled and partitioned, its test and validation
// counts being its row count times each fraction, rounded down, so
// per-class proportions are preserved up to that rounding.
func pixelSplit(rows []Row, testFrac, valFrac float64, seed int64) Split {
	byClass := groupIndicesByClass(rows)
	rng := rand.New(rand.NewSource(seed))
	var s Split
	for _, idxs := range byClass {
		shuffled := append([]int(nil), idxs...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		nTest := int(float64(len(shuffled)) * testFrac)
		nVal := int(float64(len(shuffled)) * valFrac)
		s.Test = append(s.Test, shuffled[:nTest]...)
		s.Val = append(s.Val, shuffled[nTest:nTest+nVal]...)
		s.Train = append(s.Train, shuffled[nTest+nVal:]...)
	}
	return s
}

// featureSplit assigns whole feature (polygon) groups to partitions, never
// splitting a group's rows across partitions, while keeping each
// partition's per-class feature-group counts within one polygon of the
// exact target proportion.
func featureSplit(rows []Row, testFrac, valFrac float64, seed int64) Split {
	groupClass := make(map[string]int)
	groupRows := make(map[string][]int)
	for i, r := range rows {
		groupClass[r.GroupID] = r.ClassIdx
		groupRows[r.GroupID] = append(groupRows[r.GroupID], i)
	}

	byClassGroups := make(map[int][]string)
	for g, c := range groupClass {
		byClassGroups[c] = append(byClassGroups[c], g)
	}
	// Deterministic base order before shuffling, so the same seed always
	// produces the same split regardless of map iteration order.
	classes := make([]int, 0, len(byClassGroups))
	for c := range byClassGroups {
		classes = append(classes, c)
	}
	sort.Ints(classes)

	rng := rand.New(rand.NewSource(seed))
	var s Split
	for _, c := range classes {
		groups := append([]string(nil), byClassGroups[c]...)
		sort.Strings(groups)
		rng.Shuffle(len(groups), func(i, j int) { groups[i], groups[j] = groups[j], groups[i] })

		nTest := int(math.Round(float64(len(groups)) * testFrac))
		nVal := int(math.Round(float64(len(groups))*(testFrac+valFrac))) - nTest
		for i, g := range groups {
			switch {
			case i < nTest:
				s.Test = append(s.Test, groupRows[g]...)
			case i < nTest+nVal:
				s.Val = append(s.Val, groupRows[g]...)
			default:
				s.Train = append(s.Train, groupRows[g]...)
			}
		}
	}
	return s
}

func groupIndicesByClass(rows []Row) map[int][]int {
	out := make(map[int][]int)
	for i, r := range rows {
		out[r.ClassIdx] = append(out[r.ClassIdx], i)
	}
	return out
}

// ObservedClasses returns the distinct class indices with at least one row,
// sorted ascending — used by the "reduce class_order to observed labels"
// failure-recovery rule.
func ObservedClasses(rows []Row) []int {
	seen := make(map[int]bool)
	for _, r := range rows {
		seen[r.ClassIdx] = true
	}
	out := make([]int, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Ints(out)
	return out
}
