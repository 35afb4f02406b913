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

package forestwatchutil

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// newRunID generates a run id of the form "run-<unix-seconds>-<uuid>" for
// invocations that did not pin one with --run-id.
func newRunID() string {
	return fmt.Sprintf("run-%d-%s", time.Now().Unix(), uuid.New().String())
}

// decodeJSONStringMap decodes s as a JSON object of strings, returning nil
// on any parse failure rather than erroring: the caller treats an absent
// or malformed map the same as an empty one.
func decodeJSONStringMap(s string) map[string]string {
	if s == "" {
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil
	}
	return m
}
