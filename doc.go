// Package walletboot and its sub-packages implement the bootstrap and synchronization service of a wallet ecosystem.
/*
On start, walletboot decides whether the host can afford a live blockchain initialization (full mode) or must start
fast in a degraded, offline mode (constrained mode). In full mode it recovers the wallet's cryptographic identity, or
generates and persists a new one, registers or synchronizes it with the remote backend and starts the auxiliary
services (bots, watchers) bound to the resolved address. In constrained mode it reports a placeholder address and
touches nothing else.

Architecture

The bootstrap controller (package bootstrap) is a single-flight state machine: NotStarted, InProgress, DegradedReady,
Ready and Failed. It is the only writer of the bootstrap state; observers subscribe to its terminal transitions.
Nothing escapes the controller: errors and panics of its collaborators end the attempt in Failed with a reason that
tells whether a retry may succeed.

The key material store (package lib/keys) derives a BIP44 ethereum address from a BIP39 mnemonic and keeps at most one
identity per persistence medium. Media are product agnostic (package lib/store): memory, file, MongoDB, PostgreSQL and
Redis. With a passphrase configured the mnemonic is sealed at rest (package lib/secret), and it is never logged.

The remote sync client (package lib/backend) registers new wallets and pulls the backend state of existing ones,
classifying failures as transient or permanent.

The activator (package activator) starts the auxiliary services: a listen service asking the explorer and bot services,
through the message broker (package lib/msg), to follow the address, and a balance watcher polling the configured
blockchains (package lib/block).

Service

The wallet service (package wallet) can be started running cmd/walletboot with the serve command. It publishes every
terminal bootstrap state to the message broker and exposes an HTTP RESTful API to read the state, trigger an attempt and
read the resolved address and its balance. The runtime mode is read from the JSON config file or, in auto mode, probed
from the blockchain nodes (package lib/probe).

The service can also be monitored via a Prometheus API by setting the flag "-m" at startup.
*/
package walletboot
