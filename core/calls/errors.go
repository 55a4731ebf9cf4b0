package calls

import (
	"errors"
	"fmt"
)

// NotFoundError means a referenced entity (call, target, voice message
// scope) does not exist. For voice messages this triggers fallback content,
// for calls the webhook gets a 404.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// IsNotFound returns whether the error chain contains a NotFoundError
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// TransientStoreError wraps a store failure that was retried and still
// failed. Bookkeeping callers log it and continue with best-effort defaults.
type TransientStoreError struct {
	Op  string
	Err error
}

func (e *TransientStoreError) Error() string {
	return fmt.Sprintf("transient store error during %s: %s", e.Op, e.Err)
}

func (e *TransientStoreError) Unwrap() error { return e.Err }

// AmbiguousStateError means the stored state doesn't support a single
// correct decision, e.g. multiple dialed receivers and no answer. These are
// logged and left unresolved, never guessed.
type AmbiguousStateError struct {
	Reason string
}

func (e *AmbiguousStateError) Error() string {
	return fmt.Sprintf("ambiguous call state: %s", e.Reason)
}

// ProviderCommandError is a failed outbound command to the signaling
// provider. NotFound responses mean the call already resolved on the
// provider side and are not treated as failures by teardown paths.
type ProviderCommandError struct {
	Command    string
	StatusCode int
	NotFound   bool
	Err        error
}

func (e *ProviderCommandError) Error() string {
	return fmt.Sprintf("provider command %s failed (status %d): %s", e.Command, e.StatusCode, e.Err)
}

func (e *ProviderCommandError) Unwrap() error { return e.Err }

// IsProviderNotFound returns whether err is a provider "not found" response
func IsProviderNotFound(err error) bool {
	var pc *ProviderCommandError
	return errors.As(err, &pc) && pc.NotFound
}
