/*
Copyright (C) 2026 the vecfilter authors.
This file is part of vecfilter.

vecfilter is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

vecfilter is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with vecfilter.  If not, see <http://www.gnu.org/licenses/>.
*/

package vecfilter

import "fmt"

// ErrorKind enumerates the failure taxonomy of §7.
type ErrorKind string

const (
	LayerNotFilterable       ErrorKind = "LayerNotFilterable"
	BackendUnavailable       ErrorKind = "BackendUnavailable"
	CapabilityMismatch       ErrorKind = "CapabilityMismatch"
	PredicateNotSupported    ErrorKind = "PredicateNotSupported"
	ExpressionNotTranslatable ErrorKind = "ExpressionNotTranslatable"
	UnsafeExpression         ErrorKind = "UnsafeExpression"
	UnknownColumn            ErrorKind = "UnknownColumn"
	GeometryInvalid          ErrorKind = "GeometryInvalid"
	BackendQueryFailed       ErrorKind = "BackendQueryFailed"
	Cancelled                ErrorKind = "Cancelled"
	Timeout                  ErrorKind = "Timeout"
	CacheInconsistency       ErrorKind = "CacheInconsistency"
)

// FilterError is the structured diagnostic surfaced for every failure kind
// in §7: kind, layer, backend, and a brief message.
type FilterError struct {
	Kind     ErrorKind
	LayerRef LayerRef
	Backend  BackendKind
	Message  string
	Cause    error
}

func (e *FilterError) Error() string {
	if e.LayerRef != "" {
		return fmt.Sprintf("filter failed for layer %s: %s: %s", e.LayerRef, e.Kind, e.Message)
	}
	return fmt.Sprintf("filter failed: %s: %s", e.Kind, e.Message)
}

func (e *FilterError) Unwrap() error { return e.Cause }

// NewFilterError constructs a FilterError with the given kind and context.
func NewFilterError(kind ErrorKind, layer LayerRef, backend BackendKind, msg string, cause error) *FilterError {
	return &FilterError{Kind: kind, LayerRef: layer, Backend: backend, Message: msg, Cause: cause}
}

// KindOf extracts the ErrorKind from err if it (or something it wraps) is
// a *FilterError, and ok=false otherwise.
func KindOf(err error) (kind ErrorKind, ok bool) {
	var fe *FilterError
	if asFilterError(err, &fe) {
		return fe.Kind, true
	}
	return "", false
}

func asFilterError(err error, target **FilterError) bool {
	for err != nil {
		if fe, ok := err.(*FilterError); ok {
			*target = fe
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Retryable reports whether the propagation policy in §7 allows the
// orchestrator to retry this error locally (one retry on transient
// BackendQueryFailed/CacheInconsistency classes, backend fallback on
// CapabilityMismatch, or in-process evaluation on
// ExpressionNotTranslatable). It looks at the kind only and does not
// classify transience of a particular driver error.
func Retryable(kind ErrorKind) bool {
	switch kind {
	case BackendQueryFailed, CapabilityMismatch, ExpressionNotTranslatable, CacheInconsistency:
		return true
	default:
		return false
	}
}
