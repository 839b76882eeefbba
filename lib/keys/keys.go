// Package keys implements the key material store: generation, persistence and retrieval of the wallet's
// cryptographic identity (mnemonic and derived address).
//
// At most one identity exists per medium. GetIdentity never fabricates one and GenerateIdentity never overwrites one:
// rotating keys is an explicit decision that does not belong here.
package keys

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tarancss/walletboot/lib/secret"
	"github.com/tarancss/walletboot/lib/store"
)

// RecordKey is the medium key holding the identity record.
const RecordKey = "identity"

// recordVersion is the current record format.
const recordVersion = 1

// Errors returned
var (
	ErrIdentityNotFound      = errors.New("wallet identity not found")
	ErrIdentityAlreadyExists = errors.New("wallet identity already exists")
	ErrStorageUnavailable    = errors.New("key material storage unavailable")
	ErrInvalidMnemonic       = errors.New("invalid mnemonic")
	ErrInvalidAddress        = errors.New("invalid derived address")
)

// record is the persisted form of an Identity. Exactly one of Mnemonic and Sealed is set.
type record struct {
	Version  int            `json:"version"`
	Address  string         `json:"address"`
	Path     Path           `json:"path"`
	Created  time.Time      `json:"created"`
	Mnemonic string         `json:"mnemonic,omitempty"`
	Sealed   *secret.Sealed `json:"sealed,omitempty"`
}

// Store owns the wallet identity kept in a medium.
type Store struct {
	l          sync.Mutex // serializes generation against reads
	m          store.Medium
	path       Path
	passphrase []byte
	log        *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithPassphrase seals the mnemonic at rest with a key derived from passphrase.
func WithPassphrase(passphrase string) Option {
	return func(s *Store) {
		if passphrase != "" {
			s.passphrase = []byte(passphrase)
		}
	}
}

// WithLogger sets the logger. The mnemonic is never handed to it.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// New returns a Store persisting to m and deriving addresses at path.
func New(m store.Medium, path Path, opts ...Option) *Store {
	s := &Store{m: m, path: path, log: zap.NewNop()}
	for _, o := range opts {
		o(s)
	}

	return s
}

// Path returns the derivation path used by the store.
func (s *Store) Path() Path {
	return s.path
}

// GetIdentity reads the persisted identity. It returns ErrIdentityNotFound when none is stored and wraps
// ErrStorageUnavailable when the medium cannot be reached or the record cannot be opened.
func (s *Store) GetIdentity(ctx context.Context) (*Identity, error) {
	s.l.Lock()
	defer s.l.Unlock()

	return s.get(ctx)
}

func (s *Store) get(ctx context.Context) (*Identity, error) {
	b, err := s.m.Get(ctx, RecordKey)
	if errors.Is(err, store.ErrDataNotFound) {
		return nil, ErrIdentityNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}

	var r record
	if err = json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("%w: corrupt identity record: %w", ErrStorageUnavailable, err)
	}

	if r.Version != recordVersion {
		return nil, fmt.Errorf("%w: unsupported identity record version %d", ErrStorageUnavailable, r.Version)
	}

	phrase, err := s.open(&r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	defer secret.Zero(phrase)

	// the stored address must match the one derived from the stored phrase
	addr, err := Derive(phrase, r.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}

	if !SameAddress(addr, r.Address) {
		return nil, fmt.Errorf("%w: identity record address does not match its mnemonic", ErrStorageUnavailable)
	}

	return &Identity{Mnemonic: secret.NewMnemonic(phrase), Address: addr, Path: r.Path}, nil
}

// GenerateIdentity creates a new mnemonic from a secure entropy source, derives the address, persists both and
// returns the identity once the medium acknowledged the write. It fails with ErrIdentityAlreadyExists if an identity
// is already stored.
func (s *Store) GenerateIdentity(ctx context.Context) (*Identity, error) {
	s.l.Lock()
	defer s.l.Unlock()

	ok, err := s.m.Exists(ctx, RecordKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}

	if ok {
		return nil, ErrIdentityAlreadyExists
	}

	m, err := newMnemonic()
	if err != nil {
		return nil, err
	}

	r := record{Version: recordVersion, Path: s.path, Created: time.Now().UTC()}

	err = m.WithBytes(func(phrase []byte) error {
		var errD error
		if r.Address, errD = Derive(phrase, s.path); errD != nil {
			return errD
		}

		return s.seal(&r, phrase)
	})
	if err != nil {
		m.Wipe()

		return nil, err
	}

	b, err := json.Marshal(r)
	r.Mnemonic = ""

	if err != nil {
		m.Wipe()

		return nil, fmt.Errorf("cannot encode identity record: %w", err)
	}

	err = s.m.Set(ctx, RecordKey, b)
	secret.Zero(b)

	if err != nil {
		m.Wipe()

		return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}

	s.log.Info("wallet identity generated", zap.String("address", r.Address), zap.Stringer("path", s.path),
		zap.Bool("sealed", r.Sealed != nil))

	return &Identity{Mnemonic: m, Address: r.Address, Path: s.path}, nil
}

// seal stores phrase in r, encrypted when the store has a passphrase.
func (s *Store) seal(r *record, phrase []byte) error {
	if len(s.passphrase) == 0 {
		r.Mnemonic = string(phrase)

		return nil
	}

	sealed, err := secret.Seal(phrase, s.passphrase)
	if err != nil {
		return fmt.Errorf("cannot seal mnemonic: %w", err)
	}

	r.Sealed = sealed

	return nil
}

// open returns the phrase held by r. The caller zeroes it.
func (s *Store) open(r *record) ([]byte, error) {
	if r.Sealed != nil {
		return secret.Open(r.Sealed, s.passphrase)
	}

	if r.Mnemonic == "" {
		return nil, ErrInvalidMnemonic
	}

	return []byte(r.Mnemonic), nil
}
