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

package predict

import "gonum.org/v1/gonum/mat"

// rowsToMatrix stacks a window's per-pixel feature rows into a dense
// matrix in the row-major layout boost.Model.Predict expects.
func rowsToMatrix(rows [][]float64) *mat.Dense {
	if len(rows) == 0 {
		return mat.NewDense(0, 0, nil)
	}
	width := len(rows[0])
	data := make([]float64, 0, len(rows)*width)
	for _, r := range rows {
		data = append(data, r...)
	}
	return mat.NewDense(len(rows), width, data)
}
