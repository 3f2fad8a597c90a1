package node

import (
	"errors"
	"fmt"
)

// NotFoundError reports a missing node or an unregistered class.
type NotFoundError struct {
	// Kind is "node" or "class".
	Kind string

	// Name is the node uid or class name that was not found.
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.Name)
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
