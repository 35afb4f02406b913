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
	"bytes"
	"encoding/gob"
	"fmt"
	"os"

	"github.com/chocoforestwatch/forestwatch-core/ferrors"
	"github.com/chocoforestwatch/forestwatch-core/train/boost"
)

// BundleSchemaVersion is bumped whenever the Bundle's wire shape changes
// in a way that is not backward compatible.
const BundleSchemaVersion = 1

// Bundle is the Monthly Model: the fitted estimator, the ordered feature
// extractor list used to build its training columns, the class-index to
// class-name mapping, the training hyperparameters, and a schema version.
type Bundle struct {
	SchemaVersion     int
	Model             *boost.Model
	FeatureExtractors []string
	ClassNames        []string // index i is the class name for class index i
	Hyperparams       boost.Params
}

// ExtractorsEqual reports whether other is byte-identical to the bundle's
// recorded extractor list. A mismatch at prediction time is fatal.
func (b *Bundle) ExtractorsEqual(other []string) bool {
	if len(b.FeatureExtractors) != len(other) {
		return false
	}
	for i, name := range b.FeatureExtractors {
		if name != other[i] {
			return false
		}
	}
	return true
}

// CheckExtractors returns an IntegrityError if other does not byte-equal
// the bundle's recorded extractor list.
func (b *Bundle) CheckExtractors(other []string) error {
	if !b.ExtractorsEqual(other) {
		return ferrors.New(ferrors.IntegrityError, "",
			fmt.Errorf("train: prediction extractor list %v does not match model's recorded list %v", other, b.FeatureExtractors))
	}
	return nil
}

// Save gob-encodes the bundle to path.
func (b *Bundle) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return ferrors.New(ferrors.TransportError, "", fmt.Errorf("train: creating model bundle %s: %w", path, err))
	}
	defer f.Close()
	if err := gob.NewEncoder(f).Encode(b); err != nil {
		return ferrors.New(ferrors.IntegrityError, "", fmt.Errorf("train: encoding model bundle %s: %w", path, err))
	}
	return nil
}

// LoadBundle gob-decodes a Bundle previously written by Save.
func LoadBundle(path string) (*Bundle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ferrors.New(ferrors.StageDependencyError, "", fmt.Errorf("train: opening model bundle %s: %w", path, err))
	}
	defer f.Close()
	var b Bundle
	if err := gob.NewDecoder(f).Decode(&b); err != nil {
		return nil, ferrors.New(ferrors.IntegrityError, "", fmt.Errorf("train: decoding model bundle %s: %w", path, err))
	}
	if b.SchemaVersion != BundleSchemaVersion {
		return nil, ferrors.New(ferrors.IntegrityError, "",
			fmt.Errorf("train: model bundle %s has schema version %d, runtime expects %d", path, b.SchemaVersion, BundleSchemaVersion))
	}
	return &b, nil
}

// Bytes gob-encodes the bundle to an in-memory buffer, used by tests that
// check the round-trip property without touching disk.
func (b *Bundle) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(b); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BundleFromBytes is the inverse of Bytes.
func BundleFromBytes(data []byte) (*Bundle, error) {
	var b Bundle
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&b); err != nil {
		return nil, err
	}
	return &b, nil
}
