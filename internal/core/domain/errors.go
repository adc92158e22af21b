package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownComponent is returned on a registry lookup miss.
	ErrUnknownComponent = errors.New("unknown component")
	// ErrMissingConfig is returned when a component constructor is missing a
	// mandatory configuration parameter.
	ErrMissingConfig = errors.New("missing required config")
	// ErrRetrievalFailed marks a fatal retrieval error: without at least one
	// retrieved list there is nothing to rank.
	ErrRetrievalFailed = errors.New("retrieval failed")
	// ErrTransformFailed marks a recoverable transform-stage error.
	ErrTransformFailed = errors.New("transform failed")
	// ErrRerankFailed marks a recoverable rerank-stage error.
	ErrRerankFailed = errors.New("rerank failed")

	ErrInvalidInput = errors.New("invalid input")
	ErrTemporary    = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
