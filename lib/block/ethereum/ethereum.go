// Package ethereum implements the chain interface for ethereum networks.
package ethereum

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/tarancss/ethcli"
)

// avgBlock is the average time to mine a block in seconds.
const avgBlock = 12

// ErrNoClient is returned when the node client could not be created.
var ErrNoClient = errors.New("cannot connect to ethereum blockchain")

// Ethereum implements a connection to an ethereum-type chain.
type Ethereum struct {
	c *ethcli.EthCli
}

// Init returns a connection to an ethereum node, using secret if necessary for authentication.
func Init(node, secret string) (*Ethereum, error) {
	c := ethcli.Init(node, secret)
	if c == nil {
		return nil, fmt.Errorf("%w in %s", ErrNoClient, node)
	}

	return &Ethereum{c: c}, nil
}

// AvgBlock returns the average time to mine a block in seconds.
func (e *Ethereum) AvgBlock() int {
	return avgBlock
}

// Close ends a connection
func (e *Ethereum) Close() {
	e.c.End()
}

// Balance loads the ether balance, and the token balance if specified, onto the provided big.Int pointers, or error
// otherwise.
func (e *Ethereum) Balance(address, token string, ethBal, tokBal *big.Int) error {
	eb, tb, err := e.c.GetBalance(address, token)
	if err != nil {
		return err
	}

	ethBal.Set(eb)
	tokBal.Set(tb)

	return nil
}
