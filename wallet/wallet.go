// Package wallet implements the wallet bootstrap microservice.
//
// The service owns the bootstrap controller, publishes every terminal bootstrap state to the message broker and
// exposes a RESTful API for the host application to read the state, trigger an attempt and read the resolved address.
package wallet

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/tarancss/walletboot/bootstrap"
	"github.com/tarancss/walletboot/lib/block"
	"github.com/tarancss/walletboot/lib/msg"
	"github.com/tarancss/walletboot/lib/store"
	"github.com/tarancss/walletboot/lib/store/db"
)

// Wallet contains the data necessary to deliver the service
type Wallet struct {
	ctl *bootstrap.Controller
	m   store.Medium           // key material medium, closed on Stop
	mb  msg.Broker             // optional
	bc  map[string]block.Chain // blockchain clients
	log *zap.Logger

	l     sync.Mutex
	s     *http.Server  // http server
	sc    chan struct{} // closed when Stop has finished
	once  sync.Once
	unsub func()
}

// New returns a pointer to a new Wallet service. mb and m may be nil.
func New(ctl *bootstrap.Controller, m store.Medium, mb msg.Broker, bc map[string]block.Chain, log *zap.Logger) *Wallet {
	if log == nil {
		log = zap.NewNop()
	}

	return &Wallet{
		ctl: ctl,
		m:   m,
		mb:  mb,
		bc:  bc,
		log: log,
		sc:  make(chan struct{}),
	}
}

// Controller returns the bootstrap controller of the service.
func (w *Wallet) Controller() *bootstrap.Controller {
	return w.ctl
}

// PublishStates sends every terminal bootstrap state to the message broker. A state reached before the call is sent
// at once.
func (w *Wallet) PublishStates() {
	if w.mb == nil {
		return
	}

	cur, unsub := w.ctl.Subscribe(w.publish)

	w.l.Lock()
	w.unsub = unsub
	w.l.Unlock()

	if cur.State.Terminal() {
		w.publish(cur)
	}
}

func (w *Wallet) publish(s bootstrap.Snapshot) {
	if err := w.mb.SendState(Event(s)); err != nil {
		w.log.Warn("cannot publish bootstrap state", zap.Stringer("state", s.State), zap.Error(err))
	}
}

// Event converts a snapshot to the broker message.
func Event(s bootstrap.Snapshot) msg.StateEvent {
	e := msg.StateEvent{
		Attempt: s.Attempt,
		State:   s.State.String(),
		Mode:    s.Mode.String(),
		Address: s.Address,
		At:      s.Updated,
	}

	switch {
	case s.Failure != nil:
		e.Reason = s.Failure.Error()
		e.Retryable = s.Failure.Retryable()
	case s.ActivationError != nil:
		e.Reason = s.ActivationError.Error()
		e.Retryable = true
	}

	return e
}

// Stop shuts down the http server and closes gracefully the bootstrap controller and the connections to message
// broker, blockchains and key material medium.
func (w *Wallet) Stop(ctx context.Context) (err error) {
	w.l.Lock()
	s, unsub := w.s, w.unsub
	w.unsub = nil
	w.l.Unlock()

	defer w.once.Do(func() { close(w.sc) })

	// shutdown http server
	if s != nil {
		if errS := s.Shutdown(ctx); errS != nil && !errors.Is(errS, http.ErrServerClosed) {
			err = multierr.Append(err, errS)
		}
	}

	if unsub != nil {
		unsub()
	}

	err = multierr.Append(err, w.ctl.Close(ctx))

	// close message broker
	if w.mb != nil {
		err = multierr.Append(err, w.mb.Close())
	}

	block.End(w.bc)

	// close key material medium
	if w.m != nil {
		err = multierr.Append(err, db.Close(w.m))
	}

	w.log.Info("wallet service stopped", zap.Error(err))

	return err
}
