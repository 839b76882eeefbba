package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/tarancss/walletboot/bootstrap"
)

// Errors returned to client requests.
var (
	ErrBadWait  = errors.New("invalid wait - it must be a duration between 0s and 14s")
	ErrNotReady = errors.New("wallet not ready")
	ErrNoChains = errors.New("no blockchain available")
)

// waitDefault and waitMax bound how long POST /initialize waits for the attempt. waitMax stays below the server's
// write timeout.
const (
	waitDefault = 10 * time.Second
	waitMax     = (timeout - 1) * time.Second
)

// Response defines the data structure returned to the client making the http request.
type Response struct {
	Body  string `json:"body"`
	Error string `json:"error,omitempty"`
}

// reply writes res with status and logs the request.
func (w *Wallet) reply(rw http.ResponseWriter, r *http.Request, status int, res Response, err error) {
	if err != nil {
		res.Error = err.Error()
	}

	w.log.Debug("httpreq", zap.String("from", r.RemoteAddr), zap.String("uri", r.RequestURI), zap.Int("status", status),
		zap.Error(err))

	rw.Header().Set("Content-Type", "application/json;charset=utf8")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(&res)
}

// homeHandler just replies a welcome message to the client.
func (w *Wallet) homeHandler(rw http.ResponseWriter, r *http.Request) {
	w.reply(rw, r, http.StatusOK, Response{Body: "Hello, this is your wallet bootstrap service!"}, nil)
}

// stateHandler replies the current bootstrap snapshot.
func (w *Wallet) stateHandler(rw http.ResponseWriter, r *http.Request) {
	var res Response

	b, err := json.Marshal(w.ctl.Snapshot())
	if err != nil {
		w.reply(rw, r, http.StatusInternalServerError, res, err)

		return
	}

	res.Body = string(b)
	w.reply(rw, r, http.StatusOK, res, nil)
}

// initializeHandler runs a bootstrap attempt, or joins the one in flight, and replies the snapshot once the attempt
// ends or the wait (query ?wait=<duration>) expires. Failed attempts are replied with 503 and the failure reason.
func (w *Wallet) initializeHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	status := http.StatusOK

	defer func() {
		w.reply(rw, r, status, res, err)
	}()

	wait := waitDefault

	if q := r.URL.Query().Get("wait"); q != "" {
		if wait, err = time.ParseDuration(q); err != nil || wait < 0 || wait > waitMax {
			status, err = http.StatusBadRequest, ErrBadWait

			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), wait)
	defer cancel()

	s := w.ctl.Initialize(ctx)

	b, errM := json.Marshal(s)
	if errM != nil {
		status, err = http.StatusInternalServerError, errM

		return
	}

	res.Body = string(b)

	switch s.State {
	case bootstrap.Failed:
		status, err = http.StatusServiceUnavailable, s.Failure
	case bootstrap.Ready, bootstrap.DegradedReady:
	default:
		status = http.StatusAccepted
	}
}

// addressHandler replies the resolved wallet address: the real one in full mode, the sentinel in degraded mode.
func (w *Wallet) addressHandler(rw http.ResponseWriter, r *http.Request) {
	s := w.ctl.Snapshot()

	switch s.State {
	case bootstrap.Ready, bootstrap.DegradedReady:
		w.reply(rw, r, http.StatusOK, Response{Body: s.Address}, nil)
	default:
		w.reply(rw, r, http.StatusServiceUnavailable, Response{}, fmt.Errorf("%w: %s", ErrNotReady, s.State))
	}
}

// addrBalance struct used to get balances of the wallet address from the networks.
type addrBalance struct {
	Net   string `json:"net"`             // blockchain name
	Bal   string `json:"bal,omitempty"`   // balance of blockchain currency of address
	Tok   string `json:"tok,omitempty"`   // balance of token of address
	Error string `json:"error,omitempty"` // why the balance is missing
}

// balanceHandler replies the balance of the wallet address. If a token is specified (?tok=0x...), it will also reply
// the balance of the address in tokens, for all the networks or those specified in the query (?blk=net).
func (w *Wallet) balanceHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	bals := []addrBalance{}
	status := http.StatusOK

	defer func() {
		if err == nil {
			tmp, _ := json.Marshal(bals)
			res.Body = string(tmp)
		}

		w.reply(rw, r, status, res, err)
	}()

	s := w.ctl.Snapshot()
	if s.State != bootstrap.Ready {
		status, err = http.StatusServiceUnavailable, fmt.Errorf("%w: %s", ErrNotReady, s.State)

		return
	}

	if len(w.bc) == 0 {
		status, err = http.StatusServiceUnavailable, ErrNoChains

		return
	}

	tok := r.URL.Query().Get("tok")
	nets := r.URL.Query()["blk"]

	for name, client := range w.bc {
		if len(nets) != 0 && !slices.Contains(nets, name) {
			continue
		}

		bal, tokBal := new(big.Int), new(big.Int)
		if errB := client.Balance(s.Address, tok, bal, tokBal); errB != nil {
			bals = append(bals, addrBalance{Net: name, Error: errB.Error()})

			continue
		}

		b := addrBalance{Net: name, Bal: bal.String()}
		if tok != "" {
			b.Tok = tokBal.String()
		}

		bals = append(bals, b)
	}

	slices.SortFunc(bals, func(a, b addrBalance) int {
		switch {
		case a.Net < b.Net:
			return -1
		case a.Net > b.Net:
			return 1
		default:
			return 0
		}
	})
}

// networksHandler replies the networks available to the wallet.
func (w *Wallet) networksHandler(rw http.ResponseWriter, r *http.Request) {
	pl := make([]string, 0, len(w.bc))
	for net := range w.bc {
		pl = append(pl, net)
	}

	slices.Sort(pl)

	tmp, _ := json.Marshal(pl)
	w.reply(rw, r, http.StatusOK, Response{Body: string(tmp)}, nil)
}
