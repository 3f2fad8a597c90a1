package hook

import (
	"errors"
	"fmt"
)

// Message is a user-visible note queued by a handler during dispatch.
// Level is "info", "warning", or "error".
type Message struct {
	Text  string `json:"text"`
	Level string `json:"level"`
}

// RejectedError is raised when a before-persist handler vetoes a
// write. Payload is the handler's structured result; Messages are the
// notes queued on the context up to the veto.
type RejectedError struct {
	Payload  map[string]any
	Messages []Message
}

func (e *RejectedError) Error() string {
	if reason, ok := e.Payload["error"]; ok {
		return fmt.Sprintf("persist rejected: %v", reason)
	}
	return "persist rejected by handler"
}

// IsRejected reports whether err is (or wraps) a RejectedError.
func IsRejected(err error) bool {
	var r *RejectedError
	return errors.As(err, &r)
}
