// Package wikierror defines the typed error taxonomy for the wiki store.
// Every failure a store operation can return is one of these codes, so the
// calling layer can tell a user-correctable rejection apart from a missing
// record or a broken engine without string matching.
package wikierror

import (
	"errors"
	"fmt"
)

// Class buckets codes by how the calling layer should surface them.
type Class int

const (
	// ClassBadRequest is a policy rejection; the request was understood and
	// refused. Correctable by the user, never retried automatically.
	ClassBadRequest Class = iota + 1
	// ClassNotFound is an expected absence.
	ClassNotFound
	// ClassInternal covers engine faults and atomicity-contract violations.
	ClassInternal
)

type Code int

const (
	CodeUnknown Code = iota

	// Policy rejections.
	CodeIdenticalNewRevision
	CodeDuplicateArticleName
	CodeUserAlreadyExists
	CodeRegistrationDisabled

	// Expected absences.
	CodeRevisionUnknown
	CodeUserNotFound

	// Data inconsistencies. These mean the atomicity contract was violated
	// and are never silently recovered.
	CodeMalformedKey
	CodeArticleDataInconsistent
	CodeRevisionDataInconsistent
	CodeUserDataInconsistent
	CodeCredentialNotFound

	// Engine-level faults.
	CodeStorage
)

func (c Code) Class() Class {
	switch c {
	case CodeIdenticalNewRevision, CodeDuplicateArticleName, CodeUserAlreadyExists, CodeRegistrationDisabled:
		return ClassBadRequest
	case CodeRevisionUnknown, CodeUserNotFound:
		return ClassNotFound
	default:
		return ClassInternal
	}
}

// Error carries a code, a human-readable message and an optional cause.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) Class() Class {
	return e.Code.Class()
}

// Is lets errors.Is match two *Error values by code, so sentinel-style
// comparisons like errors.Is(err, wikierror.IdenticalNewRevision()) work.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code
}

// CodeOf extracts the Code from err, or CodeUnknown for foreign errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code Code) bool {
	return CodeOf(err) == code
}

func IdenticalNewRevision() *Error {
	return &Error{
		Code:    CodeIdenticalNewRevision,
		Message: "new content is identical to the previous revision",
	}
}

func DuplicateArticleName(name string) *Error {
	return &Error{
		Code:    CodeDuplicateArticleName,
		Message: fmt.Sprintf("article %q already exists", name),
	}
}

func UserAlreadyExists(name string) *Error {
	return &Error{
		Code:    CodeUserAlreadyExists,
		Message: fmt.Sprintf("username %q already taken", name),
	}
}

func RegistrationDisabled() *Error {
	return &Error{
		Code:    CodeRegistrationDisabled,
		Message: "registration is disabled",
	}
}

func RevisionUnknown(article uint32, number uint32) *Error {
	return &Error{
		Code:    CodeRevisionUnknown,
		Message: fmt.Sprintf("revision (%d,%d) does not exist", article, number),
	}
}

func UserNotFound(name string) *Error {
	return &Error{
		Code:    CodeUserNotFound,
		Message: fmt.Sprintf("unknown user %q", name),
	}
}

func MalformedKey(got, want int) *Error {
	return &Error{
		Code:    CodeMalformedKey,
		Message: fmt.Sprintf("malformed key: got %d bytes, want %d", got, want),
	}
}

func ArticleDataInconsistent(id uint32) *Error {
	return &Error{
		Code:    CodeArticleDataInconsistent,
		Message: fmt.Sprintf("article data inconsistent: id %d not found", id),
	}
}

func RevisionDataInconsistent(article uint32, number uint32) *Error {
	return &Error{
		Code:    CodeRevisionDataInconsistent,
		Message: fmt.Sprintf("revision data inconsistent: (%d,%d) is missing fields", article, number),
	}
}

func UserDataInconsistent(id uint32) *Error {
	return &Error{
		Code:    CodeUserDataInconsistent,
		Message: fmt.Sprintf("user data inconsistent: id %d has no name", id),
	}
}

func CredentialNotFound(id uint32) *Error {
	return &Error{
		Code:    CodeCredentialNotFound,
		Message: fmt.Sprintf("user id %d does not exist or has no credential", id),
	}
}

// Storage wraps an engine-level failure. Domain errors pass through
// unchanged so transaction aborts keep their original code.
func Storage(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{
		Code:    CodeStorage,
		Message: "storage error",
		Cause:   err,
	}
}
