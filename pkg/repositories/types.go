package repositories

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a requested record does not exist.
type ErrNotFound struct {
	Resource string
}

func (e *ErrNotFound) Error() string {
	if e.Resource == "" {
		return "not found"
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

func IsNotFound(err error) bool {
	var notFound *ErrNotFound
	return errors.As(err, &notFound)
}

func notFound(format string, args ...interface{}) error {
	return &ErrNotFound{Resource: fmt.Sprintf(format, args...)}
}
