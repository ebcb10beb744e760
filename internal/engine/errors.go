package engine

import "errors"

var (
	// ErrMalformedRule is reported for a rule whose logic could not be decoded.
	ErrMalformedRule = errors.New("engine: malformed rule")

	// ErrUnknownOperator is reported for a rule with an unsupported operator.
	ErrUnknownOperator = errors.New("engine: unknown operator")
)
