package repository

import "errors"

var (
	// ErrNotFound indica que el recurso solicitado no existe.
	ErrNotFound = errors.New("not found")

	// ErrConflict indica un conflicto (ej: duplicado, constraint violation).
	ErrConflict = errors.New("conflict")

	// ErrCodeConsumed indicates an authorization code that was already
	// redeemed. Distinct from ErrNotFound so the grant handler can treat
	// reuse as a security event.
	ErrCodeConsumed = errors.New("authorization code already consumed")

	// ErrInvalidInput indica que los datos de entrada son inválidos.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotImplemented indica que la operación no está implementada por este driver.
	ErrNotImplemented = errors.New("not implemented")
)

// IsNotFound verifica si el error es ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsCodeConsumed verifica si el error es ErrCodeConsumed.
func IsCodeConsumed(err error) bool {
	return errors.Is(err, ErrCodeConsumed)
}
