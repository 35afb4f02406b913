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

// Package checksum computes the content hashes used as Pixel Cache keys
// (the feature-set hash) and as the basis for STAC-registration checksum
// verification: every registered item's raster checksum must match the
// asset bytes at the object-store URL.
package checksum

import (
	"encoding/gob"
	"fmt"
	"hash/fnv"
	"io"
	"os"

	"github.com/davecgh/go-spew/spew"
)

// Of returns a stable hash key for object. A fmt.Stringer is keyed by its
// String result. Values that gob can encode (the common case: structs of
// basic types and slices, NaN floats included) hash the gob bytes; values
// gob rejects (for example channels, functions, or structs with no
// exported fields) fall back to a sorted, pointer-free Go-syntax dump so
// the key is still unaffected by field ordering in memory.
func Of(object interface{}) string {
	if s, ok := object.(fmt.Stringer); ok {
		return s.String()
	}
	h := fnv.New128a()
	if err := gob.NewEncoder(h).Encode(object); err == nil {
		return fmt.Sprintf("%x", h.Sum(nil))
	}
	h.Reset()
	printer := spew.ConfigState{
		Indent:                  " ",
		SortKeys:                true,
		DisableMethods:          true,
		SpewKeys:                true,
		DisablePointerAddresses: true,
		DisableCapacities:       true,
	}
	printer.Fprintf(h, "%#v", object)
	return fmt.Sprintf("%x", h.Sum(nil))
}

// File returns the FNV-128a hex digest of the file at path, used to verify
// that a registered STAC item's checksum tag matches the bytes actually
// sitting at the object-store URL.
func File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("checksum: opening %s: %w", path, err)
	}
	defer f.Close()
	return Reader(f)
}

// Reader returns the FNV-128a hex digest of everything read from r.
func Reader(r io.Reader) (string, error) {
	h := fnv.New128a()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("checksum: reading: %w", err)
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// Bytes returns the FNV-128a hex digest of b.
func Bytes(b []byte) string {
	h := fnv.New128a()
	h.Write(b)
	return fmt.Sprintf("%x", h.Sum(nil))
}
