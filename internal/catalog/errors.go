package catalog

import "errors"

// Domain errors for the catalog package.
//
// The not-found errors all match ErrNotFound:
//
//	if errors.Is(err, catalog.ErrNotFound) {
//	    // 404
//	}
var (
	// ErrNotFound matches every "does not exist" error below.
	ErrNotFound = errors.New("catalog: not found")

	ErrConnectionNotFound = notFound("catalog: connection not found")
	ErrTagNotFound        = notFound("catalog: tag not found")
	ErrRuleNotFound       = notFound("catalog: rule not found")

	// ErrInvalidConnection is returned when a connection definition fails validation.
	ErrInvalidConnection = errors.New("catalog: invalid connection")

	// ErrInvalidTag is returned when a tag definition fails validation.
	ErrInvalidTag = errors.New("catalog: invalid tag")

	// ErrInvalidRule is returned when a rule definition fails validation.
	ErrInvalidRule = errors.New("catalog: invalid rule")

	// ErrMalformedLogic is returned when a rule's logic columns do not form a
	// static or compare case.
	ErrMalformedLogic = errors.New("catalog: malformed rule logic")
)

type notFoundError struct{ msg string }

func notFound(msg string) error { return &notFoundError{msg: msg} }

func (e *notFoundError) Error() string { return e.msg }

func (e *notFoundError) Is(target error) bool { return target == ErrNotFound }

// IsValidation reports whether err is one of the invalid-definition errors.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidConnection) ||
		errors.Is(err, ErrInvalidTag) ||
		errors.Is(err, ErrInvalidRule)
}
