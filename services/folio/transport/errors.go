// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package transport

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound is wrapped by a TransportError for 404 responses.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized is wrapped by a TransportError for 401 and 403.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrServer is wrapped by a TransportError for any other non-2xx status.
	ErrServer = errors.New("server error")
)

// TransportError is a failed remote call: a network error, a timeout or a
// non-2xx response. Status is zero when no response arrived.
type TransportError struct {
	Op     string
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: status %d: %v", e.Op, e.Status, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Retryable reports whether repeating the call could succeed.
func (e *TransportError) Retryable() bool {
	return e.Status == 0 || e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// statusError maps an HTTP status to a TransportError.
func statusError(op string, status int, msg string) *TransportError {
	var base error
	switch {
	case status == http.StatusNotFound:
		base = ErrNotFound
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		base = ErrUnauthorized
	default:
		base = ErrServer
	}
	if msg != "" {
		base = fmt.Errorf("%w: %s", base, msg)
	}
	return &TransportError{Op: op, Status: status, Err: base}
}

// IsTransport reports whether err is or wraps a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
