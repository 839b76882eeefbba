// Package activator starts and stops the auxiliary services (bots, watchers) that work on behalf of the wallet address
// resolved by the bootstrap.
//
// The activator is bound to at most one address at a time. Activating the bound address again is a no-op; binding a
// different address requires an explicit Deactivate first.
package activator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Errors returned
var (
	ErrActivationFailed = errors.New("auxiliary services activation failed")
	ErrAlreadyBound     = errors.New("auxiliary services already bound to another address")
	ErrNoAddress        = errors.New("an address is required")
)

// Service is an auxiliary service bound to a wallet address.
type Service interface {
	Name() string
	// Start begins work for address. It must not block beyond the setup of the service.
	Start(ctx context.Context, address string) error
	// Stop releases everything started by Start.
	Stop(ctx context.Context) error
}

// Handle describes an active binding.
type Handle struct {
	Address  string    `json:"address"`
	Services []string  `json:"services"`
	Started  time.Time `json:"started"`
}

// Activator runs a fixed set of services for one address.
type Activator struct {
	l        sync.Mutex
	services []Service
	active   *Handle
	log      *zap.Logger
}

// New returns an Activator for services. A nil logger disables logging.
func New(log *zap.Logger, services ...Service) *Activator {
	if log == nil {
		log = zap.NewNop()
	}

	return &Activator{services: services, log: log}
}

// Address returns the bound address or "" when no binding exists.
func (a *Activator) Address() string {
	a.l.Lock()
	defer a.l.Unlock()

	if a.active == nil {
		return ""
	}

	return a.active.Address
}

// Activate starts every service for address. If any service fails, the ones already started are stopped again and
// the error wraps ErrActivationFailed.
func (a *Activator) Activate(ctx context.Context, address string) (Handle, error) {
	if address == "" {
		return Handle{}, fmt.Errorf("%w: %w", ErrActivationFailed, ErrNoAddress)
	}

	a.l.Lock()
	defer a.l.Unlock()

	if a.active != nil {
		if a.active.Address == address {
			return *a.active, nil
		}

		return Handle{}, fmt.Errorf("%w: bound to %s", ErrAlreadyBound, a.active.Address)
	}

	h := Handle{Address: address, Started: time.Now().UTC()}

	for _, s := range a.services {
		if err := s.Start(ctx, address); err != nil {
			err = fmt.Errorf("%w: %s: %w", ErrActivationFailed, s.Name(), err)
			// undo what was started in this call
			for i := len(h.Services) - 1; i >= 0; i-- {
				err = multierr.Append(err, a.services[i].Stop(ctx))
			}

			a.log.Warn("auxiliary services not activated", zap.String("address", address), zap.Error(err))

			return Handle{}, err
		}

		h.Services = append(h.Services, s.Name())
	}

	a.active = &h

	a.log.Info("auxiliary services activated", zap.String("address", address), zap.Strings("services", h.Services))

	return h, nil
}

// Deactivate stops every service and releases the binding. The binding is released even when a service fails to
// stop; the combined errors are returned.
func (a *Activator) Deactivate(ctx context.Context) error {
	a.l.Lock()
	defer a.l.Unlock()

	if a.active == nil {
		return nil
	}

	var err error
	for i := len(a.services) - 1; i >= 0; i-- {
		if errS := a.services[i].Stop(ctx); errS != nil {
			err = multierr.Append(err, fmt.Errorf("%s: %w", a.services[i].Name(), errS))
		}
	}

	a.log.Info("auxiliary services deactivated", zap.String("address", a.active.Address), zap.Error(err))
	a.active = nil

	return err
}
