package prefs

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicatePreference reports a preference name registered twice.
	ErrDuplicatePreference = errors.New("prefs: preference already registered")
	// ErrFolderScopeRequiresResource reports a Folder write without a resource URI.
	ErrFolderScopeRequiresResource = errors.New("prefs: unable to write to Folder settings because no resource is provided")
	// ErrUnboundScope reports a scope without a bound provider.
	ErrUnboundScope = errors.New("prefs: no provider bound to scope")
	// ErrWriteRejected reports a provider that refused a write.
	ErrWriteRejected = errors.New("prefs: provider rejected write")
	// ErrServiceDisposed reports use of a disposed service.
	ErrServiceDisposed = errors.New("prefs: service disposed")
	// ErrInvalidScope reports a scope value outside the known range.
	ErrInvalidScope = errors.New("prefs: invalid scope")
)

// RegistrationError describes a schema contribution that could not be
// registered.
type RegistrationError struct {
	Name string
	Err  error
}

func (e *RegistrationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("prefs: register %q: %v", e.Name, e.Err)
}

func (e *RegistrationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// WriteError describes a failed write to a scope.
type WriteError struct {
	Scope Scope
	Name  string
	Err   error
}

func (e *WriteError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("prefs: unable to write %q to %s settings: %v", e.Name, e.Scope, e.Err)
}

func (e *WriteError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
