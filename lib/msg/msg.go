// Package msg defines the interface for different message brokers.
//
// The bootstrap service publishes two kinds of messages: wallet requests, asking the explorer and bot services to
// start or stop following an address, and bootstrap state events, fanned out to any observer of the service.
package msg

import "time"

// Types of object for wallet requests.
const (
	EXIT    = -1
	ADDRESS = 0
	TX      = 1
)

// Actions to be applied to objects for wallet requests.
const (
	LISTEN   = 0
	UNLISTEN = 1
)

// WalletReq defines the message that the bootstrap service publishes to ask explorer and bot services to follow an
// object.
type WalletReq struct {
	Net  string `json:"net"`
	Type int    `json:"type"` // type of object
	Obj  string `json:"obj"`
	Act  int    `json:"act"` // action to be applied
}

// StateEvent is published on every terminal bootstrap transition. It never carries secret material.
type StateEvent struct {
	Attempt   string    `json:"attempt"`
	State     string    `json:"state"`
	Mode      string    `json:"mode"`
	Address   string    `json:"address,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Retryable bool      `json:"retryable,omitempty"`
	At        time.Time `json:"at"`
}

// Broker is the message broker used by the bootstrap service.
type Broker interface {
	Setup() error
	Close() error

	// SendRequest publishes a wallet request for the network net.
	SendRequest(net string, r WalletReq) error
	// SendState publishes a bootstrap state event.
	SendState(e StateEvent) error
	// GetStates consumes bootstrap state events until the broker is closed.
	GetStates() (<-chan StateEvent, <-chan error, error)
}
