package backend

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Code classifies a backend failure.
type Code string

const (
	// CodeNotFound indicates the item does not exist.
	CodeNotFound Code = "NOT_FOUND"

	// CodeInvalidOperation indicates the backend refused the operation.
	CodeInvalidOperation Code = "INVALID_OPERATION"

	// CodeUnauthorized indicates missing or expired credentials.
	CodeUnauthorized Code = "UNAUTHORIZED"

	// CodeVersionMismatch indicates the item changed since the caller saw it.
	CodeVersionMismatch Code = "VERSION_MISMATCH"

	// CodeCancelled indicates the operation was cancelled.
	CodeCancelled Code = "CANCELLED"

	// CodeCurrentlyNotPossible indicates a transient condition such as a
	// rate limit. Operations failing with it are retried.
	CodeCurrentlyNotPossible Code = "CURRENTLY_NOT_POSSIBLE"

	// CodeUnavailable indicates the backend cannot be reached.
	CodeUnavailable Code = "SERVICE_UNAVAILABLE"

	// CodePolicy indicates the item is blocked by the transfer policy.
	CodePolicy Code = "POLICY_VIOLATION"

	// CodeEncryptionRequired indicates the target requires encryption to be
	// activated first.
	CodeEncryptionRequired Code = "ENCRYPTION_REQUIRED"
)

// Retryable reports whether failures with this code are retried.
func (c Code) Retryable() bool {
	return c == CodeCurrentlyNotPossible
}

// Sentinels for errors.Is matching on the code alone.
var (
	ErrNotFound             = &Error{Code: CodeNotFound}
	ErrInvalidOperation     = &Error{Code: CodeInvalidOperation}
	ErrUnauthorized         = &Error{Code: CodeUnauthorized}
	ErrVersionMismatch      = &Error{Code: CodeVersionMismatch}
	ErrCancelled            = &Error{Code: CodeCancelled}
	ErrCurrentlyNotPossible = &Error{Code: CodeCurrentlyNotPossible}
	ErrUnavailable          = &Error{Code: CodeUnavailable}
	ErrPolicy               = &Error{Code: CodePolicy}
	ErrEncryptionRequired   = &Error{Code: CodeEncryptionRequired}
)

// Error is a classified backend failure.
type Error struct {
	Code Code
	Op   string
	Path []string
	Err  error
}

// E builds a classified error.
func E(code Code, op string, path []string, err error) *Error {
	return &Error{Code: code, Op: op, Path: path, Err: err}
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		fmt.Fprintf(&b, "%s ", e.Op)
	}
	if len(e.Path) > 0 {
		fmt.Fprintf(&b, "/%s ", strings.Join(e.Path, "/"))
	}
	b.WriteString(strings.ToLower(string(e.Code)))
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// CodeOf extracts the code of err. Context cancellation maps to
// CodeCancelled; unclassified errors return the empty code.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var be *Error
	if errors.As(err, &be) {
		return be.Code
	}
	if errors.Is(err, context.Canceled) {
		return CodeCancelled
	}
	return ""
}

// FromOS classifies an error returned by a filesystem call. Unclassified
// I/O errors are treated as transient.
func FromOS(op string, path []string, err error) error {
	if err == nil {
		return nil
	}
	var code Code
	switch {
	case CodeOf(err) != "":
		return err
	case errors.Is(err, os.ErrNotExist):
		code = CodeNotFound
	case errors.Is(err, os.ErrPermission), errors.Is(err, os.ErrExist):
		code = CodeInvalidOperation
	default:
		code = CodeCurrentlyNotPossible
	}
	return E(code, op, path, err)
}
