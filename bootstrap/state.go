package bootstrap

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Mode is the runtime mode the controller was built for. It is decided once, before the first attempt.
type Mode int

// Runtime modes.
const (
	Full Mode = iota
	Constrained
)

// ErrBadMode is returned by ParseMode.
var ErrBadMode = errors.New("unknown runtime mode")

func (m Mode) String() string {
	switch m {
	case Full:
		return "full"
	case Constrained:
		return "constrained"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// ParseMode is the inverse of Mode.String.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "full":
		return Full, nil
	case "constrained":
		return Constrained, nil
	default:
		return Full, fmt.Errorf("%w: %q", ErrBadMode, s)
	}
}

// State is the bootstrap lifecycle state.
type State int

// Bootstrap states.
const (
	NotStarted State = iota
	InProgress
	DegradedReady
	Ready
	Failed
)

var stateNames = [...]string{"not_started", "in_progress", "degraded_ready", "ready", "failed"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}

	return stateNames[s]
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether an attempt ends in s.
func (s State) Terminal() bool {
	return s == DegradedReady || s == Ready || s == Failed
}

// States lists every state name, in order.
func States() []string {
	return append([]string(nil), stateNames[:]...)
}

// FailureKind classifies why an attempt failed.
type FailureKind int

// Failure kinds.
const (
	Internal FailureKind = iota
	StorageUnavailable
	NetworkUnavailable
	BackendRejected
)

func (k FailureKind) String() string {
	switch k {
	case StorageUnavailable:
		return "storage_unavailable"
	case NetworkUnavailable:
		return "network_unavailable"
	case BackendRejected:
		return "backend_rejected"
	default:
		return "internal"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k FailureKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Retryable reports whether a later attempt may succeed without operator action.
func (k FailureKind) Retryable() bool {
	return k == StorageUnavailable || k == NetworkUnavailable
}

// Failure is the reason carried by the Failed state.
type Failure struct {
	Kind FailureKind
	Err  error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return f.Kind.String()
	}

	return f.Kind.String() + ": " + f.Err.Error()
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Retryable reports whether the failure is transient.
func (f *Failure) Retryable() bool {
	return f.Kind.Retryable()
}

// Snapshot is an immutable view of the controller. It carries the address, never key material.
type Snapshot struct {
	Attempt         string
	State           State
	Mode            Mode
	Address         string
	Failure         *Failure
	ActivationError error
	Updated         time.Time
}

// settled reports whether Initialize has nothing left to do.
func (s Snapshot) settled() bool {
	return s.State == DegradedReady || (s.State == Ready && s.ActivationError == nil)
}

type snapshotJSON struct {
	Attempt    string    `json:"attempt,omitempty"`
	State      State     `json:"state"`
	Mode       Mode      `json:"mode"`
	Address    string    `json:"address,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Kind       string    `json:"kind,omitempty"`
	Retryable  bool      `json:"retryable,omitempty"`
	Activation string    `json:"activationError,omitempty"`
	Updated    time.Time `json:"updated"`
}

// MarshalJSON implements json.Marshaler.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	j := snapshotJSON{
		Attempt: s.Attempt,
		State:   s.State,
		Mode:    s.Mode,
		Address: s.Address,
		Updated: s.Updated,
	}

	if s.Failure != nil {
		j.Reason = s.Failure.Error()
		j.Kind = s.Failure.Kind.String()
		j.Retryable = s.Failure.Retryable()
	}

	if s.ActivationError != nil {
		j.Activation = s.ActivationError.Error()
	}

	return json.Marshal(j)
}
