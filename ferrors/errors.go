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

// Package ferrors defines the closed set of error kinds used across the
// pipeline and the policy for which of them may be retried.
package ferrors

import (
	"errors"
	"fmt"
)

// Kind is a closed taxonomy of the ways a pipeline unit can fail.
type Kind int

const (
	// ConfigError indicates bad CLI flags, environment, or configuration file
	// content. Never retriable; aborts the run immediately.
	ConfigError Kind = iota
	// InputDataError indicates an invalid polygon, an unknown class label, or
	// a mismatched CRS. Never retriable.
	InputDataError
	// TransportError indicates an HTTP or object-store failure that may
	// succeed if attempted again.
	TransportError
	// IntegrityError indicates a checksum mismatch or an invariant
	// violation. Never retried, and aborts the run immediately.
	IntegrityError
	// ModelError indicates degenerate training data or a NaN loss.
	ModelError
	// StageDependencyError indicates a required prior-stage artifact is
	// missing.
	StageDependencyError
	// Cancelled indicates the unit was cancelled by the caller.
	Cancelled
)

func (k Kind) String() string {
	switch k {
	case ConfigError:
		return "ConfigError"
	case InputDataError:
		return "InputDataError"
	case TransportError:
		return "TransportError"
	case IntegrityError:
		return "IntegrityError"
	case ModelError:
		return "ModelError"
	case StageDependencyError:
		return "StageDependencyError"
	case Cancelled:
		return "Cancelled"
	default:
		return "UnknownError"
	}
}

// ExitCode maps a Kind to the process exit code defined for the CLI.
func (k Kind) ExitCode() int {
	switch k {
	case ConfigError:
		return 2
	case TransportError:
		return 3
	case InputDataError, IntegrityError, ModelError, StageDependencyError:
		return 4
	case Cancelled:
		return 5
	default:
		return 1
	}
}

// Retriable reports whether an error of this kind should be retried with
// backoff before being surfaced as a unit failure.
func (k Kind) Retriable() bool {
	return k == TransportError
}

// Aborting reports whether an error of this kind should abort the whole run
// immediately rather than being aggregated as a unit failure.
func (k Kind) Aborting() bool {
	return k == ConfigError || k == IntegrityError
}

// Error wraps an underlying error with a Kind and the identifier of the unit
// (a month, a trial, a window) that produced it.
type Error struct {
	Kind   Kind
	Unit   string
	Err    error
	Detail string
}

func (e *Error) Error() string {
	if e.Unit == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s[%s]: %v", e.Kind, e.Unit, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an *Error of the given kind wrapping err for the named unit.
func New(kind Kind, unit string, err error) *Error {
	return &Error{Kind: kind, Unit: unit, Err: err}
}

// Newf constructs an *Error of the given kind with a formatted message.
func Newf(kind Kind, unit, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Unit: unit, Err: fmt.Errorf(format, args...)}
}

// As reports whether err (or any error it wraps) is a *Error, writing it
// into target in the manner of errors.As.
func As(err error, target **Error) bool {
	return errors.As(err, target)
}

// KindOf returns the Kind of err if it is (or wraps) a *Error, and
// InputDataError otherwise, which is the conservative default: unclassified
// failures are treated as non-retriable rather than silently retried.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return InputDataError
}

// Retriable reports whether err should be retried with backoff.
func Retriable(err error) bool {
	return KindOf(err).Retriable()
}
