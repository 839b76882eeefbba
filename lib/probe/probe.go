// Package probe decides the runtime mode of the bootstrap from the configuration and, in auto mode, from the
// reachability of the configured blockchain nodes.
package probe

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"

	"github.com/tarancss/walletboot/bootstrap"
	"github.com/tarancss/walletboot/lib/block"
	"github.com/tarancss/walletboot/lib/config"
)

// zeroAddress is queried to test a node: every node can answer its balance.
const zeroAddress = "0x0000000000000000000000000000000000000000"

// Detect maps the configured mode to a runtime mode. In auto mode the chains are queried concurrently and the mode
// is Full as soon as one of them answers within timeout, Constrained otherwise.
func Detect(ctx context.Context, mode string, chains map[string]block.Chain, timeout time.Duration,
	log *zap.Logger,
) (bootstrap.Mode, error) {
	if log == nil {
		log = zap.NewNop()
	}

	switch mode {
	case config.ModeFull:
		return bootstrap.Full, nil
	case config.ModeConstrained:
		return bootstrap.Constrained, nil
	case config.ModeAuto:
	default:
		return bootstrap.Constrained, fmt.Errorf("%w: %q", config.ErrBadMode, mode)
	}

	if len(chains) == 0 {
		log.Info("no blockchain configured, running constrained")

		return bootstrap.Constrained, nil
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// buffered so late answers never block
	ch := make(chan string, len(chains))

	for net, c := range chains {
		go func(net string, c block.Chain) {
			bal, tok := new(big.Int), new(big.Int)
			if err := c.Balance(zeroAddress, "", bal, tok); err != nil {
				log.Debug("blockchain node not reachable", zap.String("net", net), zap.Error(err))

				ch <- ""

				return
			}

			ch <- net
		}(net, c)
	}

	for range chains {
		select {
		case net := <-ch:
			if net != "" {
				log.Info("blockchain node reachable, running full", zap.String("net", net))

				return bootstrap.Full, nil
			}
		case <-ctx.Done():
			log.Warn("blockchain probe timed out, running constrained", zap.Duration("timeout", timeout))

			return bootstrap.Constrained, nil
		}
	}

	log.Warn("no blockchain node reachable, running constrained")

	return bootstrap.Constrained, nil
}
