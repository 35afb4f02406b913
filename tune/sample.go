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

package tune

import (
	"math"
	"math/rand"
	"sort"

	"github.com/chocoforestwatch/forestwatch-core/train/boost"
)

// Sample draws one hyperparameter configuration from preset's joint domain
// using rng, and overlays it onto base (which supplies NumClasses and any
// field the preset does not override).
func Sample(preset Preset, base boost.Params, rng *rand.Rand) boost.Params {
	p := base
	names := make([]string, 0, len(preset.Domains))
	for name := range preset.Domains {
		names = append(names, name)
	}
	sort.Strings(names) // deterministic draw order for a fixed rng sequence

	for _, name := range names {
		d := preset.Domains[name]
		v := drawOne(d, rng)
		switch name {
		case "estimators":
			p.Estimators = int(v)
		case "max_depth":
			p.MaxDepth = int(v)
		case "learning_rate":
			p.LearningRate = v
		case "subsample":
			p.Subsample = v
		case "colsample":
			p.ColSample = v
		case "reg_alpha":
			p.RegAlpha = v
		case "reg_lambda":
			p.RegLambda = v
		case "gamma":
			p.Gamma = v
		case "min_child_weight":
			p.MinChildWeight = v
		}
	}
	return p
}

func drawOne(d Domain, rng *rand.Rand) float64 {
	switch d.Kind {
	case Discrete:
		return d.Values[rng.Intn(len(d.Values))]
	case LogUniform:
		logMin, logMax := math.Log(d.Min), math.Log(d.Max)
		return math.Exp(logMin + rng.Float64()*(logMax-logMin))
	default: // Uniform
		return d.Min + rng.Float64()*(d.Max-d.Min)
	}
}
