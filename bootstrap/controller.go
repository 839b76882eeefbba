package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/tarancss/walletboot/activator"
	"github.com/tarancss/walletboot/lib/backend"
	"github.com/tarancss/walletboot/lib/keys"
	"github.com/tarancss/walletboot/lib/metrics"
)

// DefaultSentinel is the address reported in degraded mode.
const DefaultSentinel = "web_mode_placeholder"

// KeyStore reads and creates the wallet identity.
type KeyStore interface {
	GetIdentity(ctx context.Context) (*keys.Identity, error)
	GenerateIdentity(ctx context.Context) (*keys.Identity, error)
}

// SyncClient talks to the remote backend.
type SyncClient interface {
	RegisterWallet(ctx context.Context, address string) (backend.Ack, error)
	SyncWalletData(ctx context.Context, address string) (backend.SyncRecord, error)
}

// Activator starts the auxiliary services for an address.
type Activator interface {
	Activate(ctx context.Context, address string) (activator.Handle, error)
	Deactivate(ctx context.Context) error
	Address() string
}

// Controller owns the bootstrap state. It is the only writer of it; everybody else reads snapshots or subscribes.
type Controller struct {
	mode     Mode
	sentinel string
	keys     KeyStore
	sync     SyncClient
	act      Activator
	prereq   func(context.Context) error
	log      *zap.Logger
	metrics  *metrics.Metrics

	sf     singleflight.Group
	ctx    context.Context // lifetime of the attempts
	cancel context.CancelFunc
	wg     sync.WaitGroup

	l         sync.Mutex
	snap      Snapshot
	closed    bool
	observers map[int]func(Snapshot)
	nextObs   int

	// pendingRegister holds a generated address whose registration did not complete in this process. Only the
	// running attempt touches it.
	pendingRegister string
}

// Option configures a Controller.
type Option func(*Controller)

// WithSentinel sets the degraded mode address.
func WithSentinel(s string) Option {
	return func(c *Controller) {
		if s != "" {
			c.sentinel = s
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}

// WithMetrics exports attempt outcomes and the current state to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// WithPrerequisite runs fn at the start of every attempt, before anything else. An error fails the attempt.
func WithPrerequisite(fn func(context.Context) error) Option {
	return func(c *Controller) {
		c.prereq = fn
	}
}

// New returns a Controller in NotStarted. In Constrained mode ks, sc and act are never called and may be nil.
func New(mode Mode, ks KeyStore, sc SyncClient, act Activator, opts ...Option) *Controller {
	c := &Controller{
		mode:      mode,
		sentinel:  DefaultSentinel,
		keys:      ks,
		sync:      sc,
		act:       act,
		log:       zap.NewNop(),
		observers: make(map[int]func(Snapshot)),
	}

	for _, o := range opts {
		o(c)
	}

	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.snap = Snapshot{State: NotStarted, Mode: mode, Updated: time.Now().UTC()}
	c.metrics.State(NotStarted.String(), States())

	return c
}

// Mode returns the runtime mode.
func (c *Controller) Mode() Mode {
	return c.mode
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.l.Lock()
	defer c.l.Unlock()

	return c.snap
}

// Subscribe registers fn to be called with every terminal snapshot and returns the current snapshot, so a subscriber
// arriving after the end of an attempt still sees its outcome. fn is called outside of any lock, one attempt at a
// time. The returned func unsubscribes.
func (c *Controller) Subscribe(fn func(Snapshot)) (Snapshot, func()) {
	c.l.Lock()
	defer c.l.Unlock()

	id := c.nextObs
	c.nextObs++
	c.observers[id] = fn

	return c.snap, func() {
		c.l.Lock()
		delete(c.observers, id)
		c.l.Unlock()
	}
}

// Initialize runs a bootstrap attempt, or joins the one in flight, and returns its terminal snapshot. If the
// controller is already Ready or DegradedReady it returns at once. ctx only bounds the wait: when it is done the
// current, possibly InProgress, snapshot is returned and the attempt carries on. Initialize never panics.
func (c *Controller) Initialize(ctx context.Context) Snapshot {
	if s := c.Snapshot(); s.settled() {
		return s
	}

	ch := c.sf.DoChan("initialize", func() (interface{}, error) {
		return c.run(), nil
	})

	select {
	case r := <-ch:
		return r.Val.(Snapshot) //nolint:forcetypeassert // run only returns snapshots
	case <-ctx.Done():
		return c.Snapshot()
	}
}

// Close abandons the attempt in flight, waits for it to return within ctx and stops the auxiliary services. Steps
// already committed are kept. Initialize after Close returns the last snapshot.
func (c *Controller) Close(ctx context.Context) error {
	c.l.Lock()
	if c.closed {
		c.l.Unlock()

		return nil
	}

	c.closed = true
	c.l.Unlock()

	c.cancel()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("bootstrap attempt still running: %w", ctx.Err())
	}

	if c.act != nil && c.mode == Full {
		return c.act.Deactivate(ctx)
	}

	return nil
}

// begin moves to InProgress unless there is nothing to do.
func (c *Controller) begin() (Snapshot, bool) {
	c.l.Lock()
	defer c.l.Unlock()

	if c.closed || c.snap.settled() {
		return c.snap, false
	}

	c.wg.Add(1)

	c.snap = Snapshot{
		Attempt: uuid.NewString(),
		State:   InProgress,
		Mode:    c.mode,
		Address: c.snap.Address,
		Updated: time.Now().UTC(),
	}
	c.metrics.State(InProgress.String(), States())

	return c.snap, true
}

// finish stores the terminal snapshot s and notifies the observers.
func (c *Controller) finish(s Snapshot) Snapshot {
	c.l.Lock()
	s.Attempt = c.snap.Attempt
	s.Mode = c.mode
	s.Updated = time.Now().UTC()

	if s.Address == "" {
		s.Address = c.snap.Address
	}

	c.snap = s

	obs := make([]func(Snapshot), 0, len(c.observers))
	for _, fn := range c.observers {
		obs = append(obs, fn)
	}
	c.l.Unlock()

	c.metrics.State(s.State.String(), States())

	for _, fn := range obs {
		c.notify(fn, s)
	}

	return s
}

func (c *Controller) notify(fn func(Snapshot), s Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("bootstrap observer panicked", zap.Any("panic", r))
		}
	}()

	fn(s)
}

// run executes one attempt. Only one run is active at a time.
func (c *Controller) run() (snap Snapshot) {
	cur, ok := c.begin()
	if !ok {
		return cur
	}
	defer c.wg.Done()

	start := time.Now()
	log := c.log.With(zap.String("attempt", cur.Attempt), zap.Stringer("mode", c.mode))

	defer func() {
		if r := recover(); r != nil {
			log.Error("bootstrap attempt panicked", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))

			snap = c.finish(Snapshot{State: Failed, Failure: &Failure{Kind: Internal, Err: fmt.Errorf("panic: %v", r)}})
		}

		c.metrics.Attempt(snap.State.String(), time.Since(start))

		switch {
		case snap.Failure != nil:
			log.Warn("bootstrap failed", zap.String("address", snap.Address), zap.Error(snap.Failure),
				zap.Bool("retryable", snap.Failure.Retryable()), zap.Duration("elapsed", time.Since(start)))
		case snap.ActivationError != nil:
			log.Warn("bootstrap ready, auxiliary services down", zap.String("address", snap.Address),
				zap.Error(snap.ActivationError), zap.Duration("elapsed", time.Since(start)))
		default:
			log.Info("bootstrap done", zap.Stringer("state", snap.State), zap.String("address", snap.Address),
				zap.Duration("elapsed", time.Since(start)))
		}
	}()

	log.Info("bootstrap started")

	return c.finish(c.attempt(c.ctx, log))
}

// attempt walks the state machine and returns the terminal snapshot, without Attempt, Mode and Updated.
func (c *Controller) attempt(ctx context.Context, log *zap.Logger) Snapshot {
	if c.prereq != nil {
		if err := c.prereq(ctx); err != nil {
			return failed(fmt.Errorf("prerequisite: %w", err))
		}
	}

	if c.mode == Constrained {
		return Snapshot{State: DegradedReady, Address: c.sentinel}
	}

	var address string

	id, err := c.keys.GetIdentity(ctx)

	switch {
	case errors.Is(err, keys.ErrIdentityNotFound):
		if id, err = c.keys.GenerateIdentity(ctx); err != nil {
			return failed(fmt.Errorf("cannot generate identity: %w", err))
		}

		address = id.Address
		id.Wipe()
		c.pendingRegister = address

		log.Info("new wallet created", zap.String("address", address))

		if err = c.register(ctx, address, log); err != nil {
			return withAddress(failed(err), address)
		}
	case err != nil:
		return failed(fmt.Errorf("cannot read identity: %w", err))
	default:
		address = id.Address
		id.Wipe()

		log.Info("existing wallet found", zap.String("address", address))

		// a generated identity whose registration failed is registered before anything else
		if c.pendingRegister == address {
			if err = c.register(ctx, address, log); err != nil {
				return withAddress(failed(err), address)
			}
		}

		var rec backend.SyncRecord

		rec, err = c.sync.SyncWalletData(ctx, address)
		if errors.Is(err, backend.ErrWalletNotFound) {
			// persisted by an earlier run whose registration never reached the backend
			log.Warn("wallet unknown to backend, registering", zap.String("address", address))

			if err = c.register(ctx, address, log); err != nil {
				return withAddress(failed(err), address)
			}

			rec, err = c.sync.SyncWalletData(ctx, address)
		}

		if err != nil {
			return withAddress(failed(fmt.Errorf("cannot sync wallet: %w", err)), address)
		}

		log.Debug("wallet synced", zap.String("address", address), zap.Time("updated", rec.UpdatedAt))
	}

	return Snapshot{State: Ready, Address: address, ActivationError: c.activate(ctx, address)}
}

func (c *Controller) register(ctx context.Context, address string, log *zap.Logger) error {
	ack, err := c.sync.RegisterWallet(ctx, address)
	if err != nil {
		return fmt.Errorf("cannot register wallet: %w", err)
	}

	c.pendingRegister = ""

	log.Info("wallet registered", zap.String("address", address), zap.Bool("existing", ack.Existing))

	return nil
}

// activate binds the auxiliary services to address, releasing a binding to any other address first.
func (c *Controller) activate(ctx context.Context, address string) error {
	if c.act == nil {
		return nil
	}

	if bound := c.act.Address(); bound != "" && bound != address {
		if err := c.act.Deactivate(ctx); err != nil {
			return fmt.Errorf("%w: cannot release %s: %w", activator.ErrActivationFailed, bound, err)
		}
	}

	_, err := c.act.Activate(ctx, address)

	return err
}

func failed(err error) Snapshot {
	return Snapshot{State: Failed, Failure: &Failure{Kind: classify(err), Err: err}}
}

func withAddress(s Snapshot, address string) Snapshot {
	s.Address = address

	return s
}

// classify maps the errors of the collaborators to a FailureKind.
func classify(err error) FailureKind {
	switch {
	case errors.Is(err, keys.ErrStorageUnavailable):
		return StorageUnavailable
	case errors.Is(err, backend.ErrNetworkUnavailable):
		return NetworkUnavailable
	case errors.Is(err, backend.ErrBackendRejected):
		return BackendRejected
	default:
		return Internal
	}
}
