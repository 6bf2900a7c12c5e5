// Package karerrors defines the cross-device error taxonomy shared by the
// fabric, device runtime, lock, and alarm layers.
package karerrors

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. Callers use errors.Is against these rather than the
// concrete wrapper types below.
var (
	ErrParameter    = errors.New("parameter validation failed")
	ErrTimeout      = errors.New("request timed out")
	ErrLock         = errors.New("distributed lock error")
	ErrBadTransition = errors.New("slot not callable in current state")
	ErrBroker       = errors.New("broker transport error")
	ErrInstanceGone = errors.New("target instance is gone")
	ErrFatal        = errors.New("fatal invariant violation")

	// ErrSuppressReply is returned by a fabric.SlotFunc to tell the
	// dispatcher not to publish any reply envelope at all, matching
	// karabo::core::Device::slotReconfigure's behavior on an empty
	// configuration hash (core/Device.cc:249, "if
	// (newConfiguration.empty()) return;" — no reply() call, so a
	// requesting caller simply times out rather than getting back
	// (true, "")).
	ErrSuppressReply = errors.New("fabric: suppress reply")
)

// ParameterError reports a schema violation on set or slotReconfigure.
type ParameterError struct {
	Path   string
	Reason string
}

func (e *ParameterError) Error() string {
	return fmt.Sprintf("parameter %q: %s", e.Path, e.Reason)
}

func (e *ParameterError) Unwrap() error { return ErrParameter }

// NewParameterError builds a ParameterError.
func NewParameterError(path, reason string) *ParameterError {
	return &ParameterError{Path: path, Reason: reason}
}

// TimeoutError reports a request that received no reply within its deadline.
type TimeoutError struct {
	Target string
	Slot   string
	Millis int64
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request %s.%s timed out after %dms", e.Target, e.Slot, e.Millis)
}

func (e *TimeoutError) Unwrap() error { return ErrTimeout }

// LockError reports a failed or stolen cooperative lock.
type LockError struct {
	DeviceID string
	Reason   string
}

func (e *LockError) Error() string {
	return fmt.Sprintf("lock on %s: %s", e.DeviceID, e.Reason)
}

func (e *LockError) Unwrap() error { return ErrLock }

// BadTransitionError reports a slot call rejected by the current state.
type BadTransitionError struct {
	DeviceID string
	Slot     string
	State    string
	Allowed  []string
}

func (e *BadTransitionError) Error() string {
	if len(e.Allowed) == 0 {
		return fmt.Sprintf("%s: slot %q not callable (no states allowed)", e.DeviceID, e.Slot)
	}
	return fmt.Sprintf("%s: slot %q not callable in state %s (allowed: %s)",
		e.DeviceID, e.Slot, e.State, strings.Join(e.Allowed, ","))
}

func (e *BadTransitionError) Unwrap() error { return ErrBadTransition }

// BrokerError reports a transport-level failure talking to the broker.
type BrokerError struct {
	Op     string
	Reason error
}

func (e *BrokerError) Error() string {
	return fmt.Sprintf("broker %s: %v", e.Op, e.Reason)
}

func (e *BrokerError) Unwrap() error { return ErrBroker }

// InstanceGoneError reports that the target of an in-flight request
// disappeared before replying.
type InstanceGoneError struct {
	InstanceID string
}

func (e *InstanceGoneError) Error() string {
	return fmt.Sprintf("instance %s is gone", e.InstanceID)
}

func (e *InstanceGoneError) Unwrap() error { return ErrInstanceGone }

// FatalError reports an invariant violation from which the process cannot
// safely continue (index desync, corrupted persistence file, etc).
type FatalError struct {
	Component string
	Detail    string
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal in %s: %s", e.Component, e.Detail)
}

func (e *FatalError) Unwrap() error { return ErrFatal }

// ValidationErrors accumulates multiple leaf-level validation failures
// produced by a single Validator.Validate call.
type ValidationErrors struct {
	Errors []string
}

func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 1 {
		return "validation failed: " + e.Errors[0]
	}
	return fmt.Sprintf("validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

func (e *ValidationErrors) Unwrap() error { return ErrParameter }

// Empty reports whether no errors were accumulated.
func (e *ValidationErrors) Empty() bool { return e == nil || len(e.Errors) == 0 }

// ValidationBuilder accumulates validation error messages from a
// sequence of conditional checks.
type ValidationBuilder struct {
	errors []string
}

// Addf records a formatted error if cond is false.
func (b *ValidationBuilder) Addf(cond bool, format string, args ...interface{}) {
	if !cond {
		b.errors = append(b.errors, fmt.Sprintf(format, args...))
	}
}

// Add records msg unconditionally.
func (b *ValidationBuilder) Add(msg string) {
	b.errors = append(b.errors, msg)
}

// Build returns a *ValidationErrors if anything was recorded, else nil.
func (b *ValidationBuilder) Build() *ValidationErrors {
	if len(b.errors) == 0 {
		return nil
	}
	return &ValidationErrors{Errors: b.errors}
}
