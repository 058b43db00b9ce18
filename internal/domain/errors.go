package domain

import "errors"

// Error taxonomy shared by every layer. Callers match with errors.Is;
// lower layers wrap with fmt.Errorf("%w: ...").
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidState = errors.New("invalid state")
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidInput = errors.New("invalid input")
)
