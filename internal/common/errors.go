// Package common defines sentinel errors shared by the matchbridge client
// layers. Callers should match them with errors.Is.
package common

import "errors"

var (
	// Storage-level errors.
	ErrNotFound     = errors.New("not found")
	ErrSealedRecord = errors.New("sealed record cannot be opened")

	// Authentication flow errors.
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrUnexpectedFrame  = errors.New("unexpected handshake frame")
	ErrMalformedToken   = errors.New("malformed token response")

	// Rating errors.
	ErrInvalidRateContent = errors.New("rate content must carry exactly one of photo or prompt")
	ErrSubjectMismatch    = errors.New("content item belongs to another subject")
	ErrAlreadyRated       = errors.New("subject already rated")
)
