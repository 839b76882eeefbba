package activator

import (
	"context"
	"math/big"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tarancss/walletboot/lib/block"
	"github.com/tarancss/walletboot/lib/metrics"
)

// BalanceWatcher polls the balance of the address on every chain, once per average block, and exports it.
type BalanceWatcher struct {
	bc  map[string]block.Chain
	m   *metrics.Metrics
	log *zap.Logger

	// Interval overrides the per chain polling period when positive.
	Interval time.Duration

	l      sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewBalanceWatcher returns a watcher for the chains in bc reporting to m.
func NewBalanceWatcher(bc map[string]block.Chain, m *metrics.Metrics, log *zap.Logger) *BalanceWatcher {
	if log == nil {
		log = zap.NewNop()
	}

	return &BalanceWatcher{bc: bc, m: m, log: log}
}

// Name implements Service.
func (w *BalanceWatcher) Name() string { return "balance" }

// Start implements Service. One goroutine per chain runs until Stop.
func (w *BalanceWatcher) Start(_ context.Context, address string) error {
	w.l.Lock()
	defer w.l.Unlock()

	if w.cancel != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel

	for net, c := range w.bc {
		period := w.Interval
		if period <= 0 {
			period = time.Duration(c.AvgBlock()) * time.Second
		}

		if period <= 0 {
			period = time.Second
		}

		w.wg.Add(1)

		go func(net string, c block.Chain, period time.Duration) {
			defer w.wg.Done()

			w.log.Info("watching balance", zap.String("net", net), zap.String("address", address),
				zap.Duration("period", period))

			t := time.NewTicker(period)
			defer t.Stop()

			for {
				w.poll(net, c, address)

				select {
				case <-ctx.Done():
					return
				case <-t.C:
				}
			}
		}(net, c, period)
	}

	return nil
}

func (w *BalanceWatcher) poll(net string, c block.Chain, address string) {
	bal, tok := new(big.Int), new(big.Int)
	if err := c.Balance(address, "", bal, tok); err != nil {
		w.log.Warn("cannot get balance", zap.String("net", net), zap.Error(err))

		return
	}

	f, _ := new(big.Float).SetInt(bal).Float64()
	w.m.Balance(net, f)
}

// Stop implements Service. It waits for the polling goroutines to return.
func (w *BalanceWatcher) Stop(_ context.Context) error {
	w.l.Lock()
	defer w.l.Unlock()

	if w.cancel == nil {
		return nil
	}

	w.cancel()
	w.wg.Wait()
	w.cancel = nil
	w.m.ResetBalance()

	return nil
}
