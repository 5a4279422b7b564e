package domain

import "errors"

// ErrNotFound is returned when the requested resource does not exist.
// Handlers should map this to HTTP 404.
var ErrNotFound = errors.New("not found")

// ErrValidation is returned by service functions when input fails business
// rule validation (e.g. malformed entry time, unknown day filter).
// Handlers should map this to HTTP 422 Unprocessable Entity.
var ErrValidation = errors.New("validation error")

// ErrInvalidPlate is returned when a plate is empty after normalization or
// does not match an accepted plate format.
var ErrInvalidPlate = errors.New("invalid plate")

// ErrAlreadyParked is returned when a vehicle enters while it already has an
// open stay. The existing stay is left untouched.
var ErrAlreadyParked = errors.New("vehicle already parked")

// ErrNotParked is returned when a vehicle exits without an open stay.
var ErrNotParked = errors.New("vehicle not parked")

// ErrInvalidInterval is returned in final-billing mode when the exit time
// precedes the entry time.
var ErrInvalidInterval = errors.New("exit time precedes entry time")
