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

// Package boost implements a from-scratch gradient-boosted ensemble of
// shallow regression trees, fit with Newton steps over a softmax loss.
package boost

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// node is one node of a regression tree; leaves have Feature == -1.
type node struct {
	Feature     int
	Threshold   float64
	Value       float64 // leaf prediction; meaningless on internal nodes
	Left, Right *node
}

func (n *node) predict(row []float64) float64 {
	for n.Feature >= 0 {
		if row[n.Feature] <= n.Threshold {
			n = n.Left
		} else {
			n = n.Right
		}
	}
	return n.Value
}

// treeParams bounds a single regression tree's growth.
type treeParams struct {
	MaxDepth       int
	MinChildWeight float64
	Lambda         float64 // L2 leaf-weight regularization (reg_lambda)
	Gamma          float64 // minimum gain required to split
	ColSample      float64 // fraction of columns considered per split
	rng            *rand.Rand
}

// fitTree grows one Newton-step regression tree predicting target with
// per-row weight, over the rows indexed by idx into X.
func fitTree(X *mat.Dense, target, weight []float64, idx []int, p treeParams) *node {
	return growNode(X, target, weight, idx, p, 0)
}

func growNode(X *mat.Dense, target, weight []float64, idx []int, p treeParams, depth int) *node {
	sumW, sumWT := 0.0, 0.0
	for _, i := range idx {
		sumW += weight[i]
		sumWT += weight[i] * target[i]
	}
	leafValue := leafWeight(sumWT, sumW, p.Lambda)
	leaf := &node{Feature: -1, Value: leafValue}

	if depth >= p.MaxDepth || len(idx) < 2 || sumW < 2*p.MinChildWeight {
		return leaf
	}

	_, numFeatures := X.Dims()
	cols := candidateColumns(numFeatures, p.ColSample, p.rng)

	bestGain := 0.0
	bestFeature := -1
	bestThreshold := 0.0
	var bestLeftIdx, bestRightIdx []int

	parentScore := leafScore(sumWT, sumW, p.Lambda)

	for _, f := range cols {
		thresholds := candidateThresholds(X, idx, f)
		for _, thr := range thresholds {
			var leftW, leftWT, rightW, rightWT float64
			var leftIdx, rightIdx []int
			for _, i := range idx {
				if X.At(i, f) <= thr {
					leftW += weight[i]
					leftWT += weight[i] * target[i]
					leftIdx = append(leftIdx, i)
				} else {
					rightW += weight[i]
					rightWT += weight[i] * target[i]
					rightIdx = append(rightIdx, i)
				}
			}
			if leftW < p.MinChildWeight || rightW < p.MinChildWeight {
				continue
			}
			gain := leafScore(leftWT, leftW, p.Lambda) + leafScore(rightWT, rightW, p.Lambda) - parentScore - p.Gamma
			if gain > bestGain {
				bestGain = gain
				bestFeature = f
				bestThreshold = thr
				bestLeftIdx = leftIdx
				bestRightIdx = rightIdx
			}
		}
	}

	if bestFeature < 0 {
		return leaf
	}
	return &node{
		Feature:   bestFeature,
		Threshold: bestThreshold,
		Left:      growNode(X, target, weight, bestLeftIdx, p, depth+1),
		Right:     growNode(X, target, weight, bestRightIdx, p, depth+1),
	}
}

// leafWeight is the Newton-step optimal leaf value: -G/(H+lambda).
func leafWeight(sumGH, sumH, lambda float64) float64 {
	if sumH+lambda == 0 {
		return 0
	}
	return sumGH / (sumH + lambda)
}

// leafScore is the XGBoost-style structure score G^2/(H+lambda) used to
// compare candidate splits.
func leafScore(sumGH, sumH, lambda float64) float64 {
	if sumH+lambda == 0 {
		return 0
	}
	return (sumGH * sumGH) / (sumH + lambda)
}

func candidateColumns(numFeatures int, colSample float64, rng *rand.Rand) []int {
	if colSample >= 1 || colSample <= 0 {
		out := make([]int, numFeatures)
		for i := range out {
			out[i] = i
		}
		return out
	}
	n := int(math.Ceil(colSample * float64(numFeatures)))
	if n < 1 {
		n = 1
	}
	perm := rng.Perm(numFeatures)
	return perm[:n]
}

// candidateThresholds returns midpoints between consecutive distinct sorted
// values of column f among idx, capped to a modest number of candidates.
func candidateThresholds(X *mat.Dense, idx []int, f int) []float64 {
	vals := make([]float64, len(idx))
	for i, r := range idx {
		vals[i] = X.At(r, f)
	}
	sortedUnique := uniqueSorted(vals)
	if len(sortedUnique) < 2 {
		return nil
	}
	const maxCandidates = 32
	step := 1
	if len(sortedUnique)-1 > maxCandidates {
		step = (len(sortedUnique) - 1) / maxCandidates
	}
	var out []float64
	for i := 0; i+1 < len(sortedUnique); i += step {
		out = append(out, (sortedUnique[i]+sortedUnique[i+1])/2)
	}
	return out
}

func uniqueSorted(vals []float64) []float64 {
	sorted := append([]float64(nil), vals...)
	// simple insertion sort is fine: node splitting already bounds width
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1] > sorted[j]; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	out := sorted[:0]
	for i, v := range sorted {
		if i == 0 || v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}
