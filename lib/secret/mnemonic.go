// Package secret keeps wallet secrets out of logs, error messages and API responses.
//
// A Mnemonic never renders its content through fmt, encoding/json, encoding or zap: all of them print Redacted.
// The phrase is only reachable through WithBytes, and Wipe zeroes the backing memory once it is not needed anymore.
package secret

import (
	"crypto/subtle"
	"fmt"
	"runtime"
	"sync"
)

// Redacted is printed in place of any secret content.
const Redacted = "[REDACTED]"

// Mnemonic wraps a recovery phrase.
type Mnemonic struct {
	mu   sync.RWMutex
	data []byte
}

// NewMnemonic copies phrase into a new Mnemonic. The caller may zero its own copy afterwards.
func NewMnemonic(phrase []byte) *Mnemonic {
	data := make([]byte, len(phrase))
	copy(data, phrase)

	return &Mnemonic{data: data}
}

// WithBytes gives fn scoped access to the phrase. fn must not retain the slice.
func (m *Mnemonic) WithBytes(fn func(phrase []byte) error) error {
	if m == nil {
		return fn(nil)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	return fn(m.data)
}

// Empty reports whether the phrase has been wiped or was never set.
func (m *Mnemonic) Empty() bool {
	if m == nil {
		return true
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.data) == 0
}

// Wipe zeroes the phrase. The Mnemonic is empty afterwards.
func (m *Mnemonic) Wipe() {
	if m == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	Zero(m.data)
	m.data = nil
}

// String implements fmt.Stringer.
func (m *Mnemonic) String() string { return Redacted }

// GoString implements fmt.GoStringer so %#v is redacted too.
func (m *Mnemonic) GoString() string { return Redacted }

// Format implements fmt.Formatter for every verb.
func (m *Mnemonic) Format(f fmt.State, _ rune) { _, _ = f.Write([]byte(Redacted)) }

// MarshalText implements encoding.TextMarshaler.
func (m *Mnemonic) MarshalText() ([]byte, error) { return []byte(Redacted), nil }

// MarshalJSON implements json.Marshaler.
func (m *Mnemonic) MarshalJSON() ([]byte, error) { return []byte(`"` + Redacted + `"`), nil }

// Zero overwrites b with zeros.
func Zero(b []byte) {
	if len(b) == 0 {
		return
	}

	subtle.ConstantTimeCopy(1, b, make([]byte, len(b)))
	runtime.KeepAlive(b)
}
