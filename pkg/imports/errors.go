package imports

import (
	"errors"
	"fmt"

	"github.com/appforge/appforge/pkg/domain"
)

// ErrorClass classifies import failures.
type ErrorClass string

const (
	// ErrorClassDenied indicates the permission gate rejected the resource.
	ErrorClassDenied ErrorClass = "denied"

	// ErrorClassInvalid indicates bad manifest data, such as a parent
	// reference that resolves to a context of the wrong kind.
	ErrorClassInvalid ErrorClass = "invalid"

	// ErrorClassInternal indicates a lookup or identity failure.
	ErrorClassInternal ErrorClass = "internal"
)

// Error codes.
const (
	ErrCodeAccessDenied       = "ACL_NO_RESOURCE_FOUND"
	ErrCodeMalformedReference = "MALFORMED_REFERENCE"
	ErrCodeLookupFailed       = "LOOKUP_FAILED"
	ErrCodeIdentity           = "IDENTITY_FAILED"
)

// ImportError is a classified error raised while importing a resource.
type ImportError struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Code identifies the error for programmatic handling.
	Code string `json:"code"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// ResourceKind and ResourceID name the entity the error is about. For
	// access-denied errors this is the parent context.
	ResourceKind string `json:"resourceKind,omitempty"`
	ResourceID   string `json:"resourceId,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *ImportError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.ResourceKind != "" || e.ResourceID != "" {
		msg = fmt.Sprintf("%s (%s=%s)", msg, e.ResourceKind, e.ResourceID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *ImportError) Unwrap() error {
	return e.Err
}

// Is matches any *ImportError with the same class and code, so the
// sentinels below work with errors.Is.
func (e *ImportError) Is(target error) bool {
	t, ok := target.(*ImportError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

var (
	// ErrAccessDenied matches every access-denied error.
	ErrAccessDenied = &ImportError{Class: ErrorClassDenied, Code: ErrCodeAccessDenied, Message: "access denied"}

	// ErrMalformedReference matches every wrong-kind parent reference.
	ErrMalformedReference = &ImportError{Class: ErrorClassInvalid, Code: ErrCodeMalformedReference, Message: "malformed context reference"}
)

// NewAccessDeniedError reports that no resource of kind with id is
// accessible to the acting principal.
func NewAccessDeniedError(kind, id string) *ImportError {
	return &ImportError{
		Class:        ErrorClassDenied,
		Code:         ErrCodeAccessDenied,
		Message:      "no resource found or access denied",
		ResourceKind: kind,
		ResourceID:   id,
	}
}

// NewMalformedReferenceError reports that ref resolved to a context of an
// unexpected kind.
func NewMalformedReferenceError(ref string, got, want domain.ContextKind) *ImportError {
	return &ImportError{
		Class:        ErrorClassInvalid,
		Code:         ErrCodeMalformedReference,
		Message:      fmt.Sprintf("reference %q resolves to a %s, expected a %s", ref, got, want),
		ResourceKind: string(got),
		ResourceID:   ref,
	}
}

func newLookupError(scope string, err error) *ImportError {
	return &ImportError{
		Class:   ErrorClassInternal,
		Code:    ErrCodeLookupFailed,
		Message: "failed to read existing resources in " + scope,
		Err:     err,
	}
}

func newIdentityError(gitSyncID string, err error) *ImportError {
	return &ImportError{
		Class:      ErrorClassInternal,
		Code:       ErrCodeIdentity,
		Message:    "failed to establish default resources",
		ResourceID: gitSyncID,
		Err:        err,
	}
}

// IsAccessDenied reports whether err is an access-denied error.
func IsAccessDenied(err error) bool {
	return errors.Is(err, ErrAccessDenied)
}

// ErrorCode returns the code of the first ImportError in err's chain.
func ErrorCode(err error) string {
	var e *ImportError
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
