// Package block defines the interface required for all blockchain or network connections.
package block

import (
	"math/big"
	"strings"

	"go.uber.org/zap"

	"github.com/tarancss/walletboot/lib/block/ethereum"
	"github.com/tarancss/walletboot/lib/config"
)

// Chain is an interface that contains the methods the bootstrap service needs from a blockchain client.
type Chain interface {
	// member-type methods
	AvgBlock() int // average block mining rate in seconds
	// methods
	Close()
	Balance(account, token string, bal, tokBal *big.Int) error
}

// Init loads all the clients read from the config to blockchains into a map. Networks whose node is not an http(s)
// url are ignored.
func Init(bc []config.BlockConfig, log *zap.Logger) (m map[string]Chain, err error) {
	if log == nil {
		log = zap.NewNop()
	}

	m = make(map[string]Chain)

	for _, block := range bc {
		if !strings.HasPrefix(block.Node, "http://") && !strings.HasPrefix(block.Node, "https://") {
			log.Warn("blockchain interface not defined, ignoring", zap.String("net", block.Name))

			continue
		}

		var c *ethereum.Ethereum
		if c, err = ethereum.Init(block.Node, block.Secret); err != nil {
			End(m)

			return nil, err
		}

		m[block.Name] = c
	}

	return m, nil
}

// End closes gracefully all the blockchain clients opened.
func End(bc map[string]Chain) {
	for _, block := range bc {
		block.Close()
	}
}
