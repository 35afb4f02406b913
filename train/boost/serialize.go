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

package boost

import (
	"bytes"
	"encoding/gob"
)

// flatNode is node's gob-friendly representation: Left/Right are indices
// into a flat slice rather than pointers, so gob never has to chase a
// recursive pointer graph.
type flatNode struct {
	Feature     int
	Threshold   float64
	Value       float64
	Left, Right int // -1 if absent
}

func flatten(n *node, out *[]flatNode) int {
	if n == nil {
		return -1
	}
	idx := len(*out)
	*out = append(*out, flatNode{})
	left := flatten(n.Left, out)
	right := flatten(n.Right, out)
	(*out)[idx] = flatNode{Feature: n.Feature, Threshold: n.Threshold, Value: n.Value, Left: left, Right: right}
	return idx
}

func unflatten(flat []flatNode, idx int) *node {
	if idx < 0 {
		return nil
	}
	fn := flat[idx]
	return &node{
		Feature:   fn.Feature,
		Threshold: fn.Threshold,
		Value:     fn.Value,
		Left:      unflatten(flat, fn.Left),
		Right:     unflatten(flat, fn.Right),
	}
}

// wireModel is the gob-encoded shape of Model.
type wireModel struct {
	Params Params
	Bias   []float64
	Trees  [][]int // per round, per class: root index into Flat, or -1
	Flat   []flatNode
}

// GobEncode implements gob.GobEncoder so Model round-trips through gob
// (directly, or nested inside another gob-encoded struct) without exposing
// its pointer-based tree representation.
func (m *Model) GobEncode() ([]byte, error) {
	var flat []flatNode
	roots := make([][]int, len(m.Trees))
	for i, round := range m.Trees {
		roots[i] = make([]int, len(round))
		for k, tree := range round {
			roots[i][k] = flatten(tree, &flat)
		}
	}
	w := wireModel{Params: m.Params, Bias: m.Bias, Trees: roots, Flat: flat}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&w); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GobDecode implements gob.GobDecoder.
func (m *Model) GobDecode(data []byte) error {
	var w wireModel
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&w); err != nil {
		return err
	}
	m.Params = w.Params
	m.Bias = w.Bias
	m.Trees = make([][]*node, len(w.Trees))
	for i, roots := range w.Trees {
		m.Trees[i] = make([]*node, len(roots))
		for k, r := range roots {
			m.Trees[i][k] = unflatten(w.Flat, r)
		}
	}
	return nil
}
