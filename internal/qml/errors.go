package qml

import (
	"errors"
	"fmt"
)

// ErrSerialization is matched by every *SerializationError via errors.Is.
var ErrSerialization = errors.New("serialization error")

// SerializationError reports a value the serializer cannot represent.
type SerializationError struct {
	Path   string // slash-separated key path from the root
	Value  any
	Reason string
}

func (e *SerializationError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("serialize %s: %s", e.Path, e.Reason)
	}
	return fmt.Sprintf("serialize %s: %s (%T)", e.Path, e.Reason, e.Value)
}

func (e *SerializationError) Is(target error) bool {
	return target == ErrSerialization
}
