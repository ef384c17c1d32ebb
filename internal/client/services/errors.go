package services

import (
	"errors"
	"fmt"

	"github.com/dmitrijs2005/matchbridge/internal/client/transport"
)

// AuthKind separates primary login failures from chat federation failures,
// so callers can tell "signed in, chat broken" apart from "not signed in".
type AuthKind int

const (
	KindLogin AuthKind = iota + 1
	KindFederation
)

func (k AuthKind) String() string {
	switch k {
	case KindLogin:
		return "login"
	case KindFederation:
		return "federation"
	default:
		return "auth"
	}
}

// AuthError wraps every failed remote step of login or federation. Status
// and Detail carry the upstream reply when there was one.
type AuthError struct {
	Kind   AuthKind
	Op     string
	Status int
	Detail string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s failed: %s: status %d: %s", e.Kind, e.Op, e.Status, e.Detail)
	}
	return fmt.Sprintf("%s failed: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

func newAuthError(kind AuthKind, op string, err error) *AuthError {
	ae := &AuthError{Kind: kind, Op: op, Err: err}
	var se *transport.StatusError
	if errors.As(err, &se) {
		ae.Status = se.Status
		ae.Detail = se.Body
	}
	return ae
}

func loginError(op string, err error) error {
	return newAuthError(KindLogin, op, err)
}

func federationError(op string, err error) error {
	return newAuthError(KindFederation, op, err)
}

// ModerationError is a failed or negative pre-flight text review.
type ModerationError struct {
	Status  int
	Detail  string
	Harmful bool
	Err     error
}

func (e *ModerationError) Error() string {
	switch {
	case e.Harmful:
		return "moderation rejected comment"
	case e.Status != 0:
		return fmt.Sprintf("moderation check failed: status %d: %s", e.Status, e.Detail)
	case e.Err != nil:
		return fmt.Sprintf("moderation check failed: %v", e.Err)
	default:
		return fmt.Sprintf("moderation check failed: %s", e.Detail)
	}
}

func (e *ModerationError) Unwrap() error { return e.Err }

// RatingError is any failed like, note or skip. The ledger is unchanged
// when one is returned.
type RatingError struct {
	SubjectID string
	Err       error
}

func (e *RatingError) Error() string {
	return fmt.Sprintf("rating subject %s: %v", e.SubjectID, e.Err)
}

func (e *RatingError) Unwrap() error { return e.Err }
