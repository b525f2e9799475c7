package repositories

import "errors"

// ErrNotFound is returned when the requested record does not exist. Callers
// check it with errors.Is to distinguish missing rows from database errors.
var ErrNotFound = errors.New("record not found")
