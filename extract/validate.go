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

package extract

import (
	"fmt"
	"sort"
	"strings"
)

// MonthHistogram is the observed per-class feature count for one month, a
// pre-flight check a caller can run before committing to extraction.
type MonthHistogram struct {
	Year, Month int
	Counts      map[string]int
}

// DistinctClasses reports how many distinct classes have at least one
// observation this month.
func (h MonthHistogram) DistinctClasses() int {
	n := 0
	for _, c := range h.Counts {
		if c > 0 {
			n++
		}
	}
	return n
}

// ValidationReport summarizes training-feature coverage across a set of
// months before extraction runs, so a caller can catch a month with too
// few observed classes ahead of time rather than discovering it mid-fit.
type ValidationReport struct {
	Histograms []MonthHistogram
	Warnings   []string
}

// Validate builds a ValidationReport from a set of training features,
// flagging any month with fewer than minClasses distinct observed classes.
func Validate(features []TrainingFeature, minClasses int) *ValidationReport {
	byMonth := make(map[[2]int]map[string]int)
	for _, tf := range features {
		key := [2]int{tf.Year, tf.Month}
		counts, ok := byMonth[key]
		if !ok {
			counts = make(map[string]int)
			byMonth[key] = counts
		}
		counts[tf.Class]++
	}

	var keys [][2]int
	for k := range byMonth {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i][0] != keys[j][0] {
			return keys[i][0] < keys[j][0]
		}
		return keys[i][1] < keys[j][1]
	})

	report := &ValidationReport{}
	for _, k := range keys {
		h := MonthHistogram{Year: k[0], Month: k[1], Counts: byMonth[k]}
		report.Histograms = append(report.Histograms, h)
		if h.DistinctClasses() < minClasses {
			report.Warnings = append(report.Warnings, fmt.Sprintf(
				"%04d-%02d: only %d distinct class(es) observed, need at least %d",
				h.Year, h.Month, h.DistinctClasses(), minClasses))
		}
	}
	return report
}

// String renders the report as the human-readable pre-flight table printed
// ahead of a training run.
func (r *ValidationReport) String() string {
	var b strings.Builder
	for _, h := range r.Histograms {
		fmt.Fprintf(&b, "%04d-%02d:", h.Year, h.Month)
		var classes []string
		for c := range h.Counts {
			classes = append(classes, c)
		}
		sort.Strings(classes)
		for _, c := range classes {
			fmt.Fprintf(&b, " %s=%d", c, h.Counts[c])
		}
		b.WriteByte('\n')
	}
	for _, w := range r.Warnings {
		fmt.Fprintf(&b, "warning: %s\n", w)
	}
	return b.String()
}
