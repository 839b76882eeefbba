package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarancss/walletboot/bootstrap"
	"github.com/tarancss/walletboot/lib/backend"
	"github.com/tarancss/walletboot/lib/block"
	"github.com/tarancss/walletboot/lib/keys"
	"github.com/tarancss/walletboot/lib/msg"
	"github.com/tarancss/walletboot/lib/store/memory"
)

// mockBackend answers the wallet backend API: every registration succeeds and every address is known.
func mockBackend(status int) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "application/json;charset=utf8")

		if status != 0 {
			rw.WriteHeader(status)
			_, _ = rw.Write([]byte(`{"error":"down"}`))

			return
		}

		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/wallets":
			rw.WriteHeader(http.StatusCreated)
			_, _ = io.Copy(rw, r.Body)
		case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/api/wallets/"):
			_ = json.NewEncoder(rw).Encode(backend.SyncRecord{Address: strings.TrimPrefix(r.URL.Path, "/api/wallets/")})
		default:
			rw.WriteHeader(http.StatusNotFound)
		}
	}
}

// fakeChain answers a fixed balance.
type fakeChain struct{ err error }

func (c fakeChain) AvgBlock() int  { return 12 }
func (c fakeChain) Close()         {}

func (c fakeChain) Balance(_, tok string, bal, tokBal *big.Int) error {
	if c.err != nil {
		return c.err
	}

	bal.SetInt64(16)

	if tok != "" {
		tokBal.SetInt64(751)
	}

	return nil
}

// fakeBroker records state events.
type fakeBroker struct {
	l      sync.Mutex
	events []msg.StateEvent
	closed bool
}

func (b *fakeBroker) Setup() error { return nil }

func (b *fakeBroker) Close() error {
	b.l.Lock()
	defer b.l.Unlock()

	b.closed = true

	return nil
}

func (b *fakeBroker) SendRequest(_ string, _ msg.WalletReq) error { return nil }

func (b *fakeBroker) SendState(e msg.StateEvent) error {
	b.l.Lock()
	defer b.l.Unlock()

	b.events = append(b.events, e)

	return nil
}

func (b *fakeBroker) GetStates() (<-chan msg.StateEvent, <-chan error, error) { return nil, nil, nil }

func (b *fakeBroker) states() []string {
	b.l.Lock()
	defer b.l.Unlock()

	s := make([]string, 0, len(b.events))
	for _, e := range b.events {
		s = append(s, e.State)
	}

	return s
}

// newFull returns a full mode service against a mock backend answering status.
func newFull(t *testing.T, status int, bc map[string]block.Chain) *Wallet {
	t.Helper()

	srv := httptest.NewServer(mockBackend(status))
	t.Cleanup(srv.Close)

	sc, err := backend.New(srv.URL+"/api", backend.WithTimeout(time.Second))
	require.NoError(t, err)

	m := memory.New()
	ctl := bootstrap.New(bootstrap.Full, keys.New(m, keys.DefaultPath), sc, nil)
	w := New(ctl, m, nil, bc, nil)

	t.Cleanup(func() { _ = w.Stop(context.Background()) })

	return w
}

// makeRequest calls the API and decodes the Response.
func makeRequest(t *testing.T, srv *httptest.Server, method, uri string) (int, Response) {
	t.Helper()

	req, err := http.NewRequestWithContext(context.Background(), method, srv.URL+uri, nil)
	require.NoError(t, err)

	res, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	var r Response
	if res.StatusCode != http.StatusMethodNotAllowed {
		require.NoError(t, json.NewDecoder(res.Body).Decode(&r))
	}

	return res.StatusCode, r
}

func decodeSnapshot(t *testing.T, body string) map[string]interface{} {
	t.Helper()

	var s map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(body), &s))

	return s
}

func TestAPIConstrained(t *testing.T) {
	ctl := bootstrap.New(bootstrap.Constrained, nil, nil, nil)
	w := New(ctl, nil, nil, map[string]block.Chain{"sepolia": fakeChain{}, "holesky": fakeChain{}}, nil)
	defer func() { _ = w.Stop(context.Background()) }()

	srv := httptest.NewServer(w.Router())
	defer srv.Close()

	cases := []struct {
		name, method, uri string
		status            int
		errExp            string
		bodyExp           string
	}{
		{"homePage_1", http.MethodGet, "/", http.StatusOK, "", "Hello, this is your wallet bootstrap service!"},
		{"homePage_2", http.MethodPost, "/", http.StatusOK, "", "Hello, this is your wallet bootstrap service!"},
		{"networks_0", http.MethodPost, "/networks", http.StatusMethodNotAllowed, "", ""},
		{"networks_1", http.MethodGet, "/networks", http.StatusOK, "", `["holesky","sepolia"]`},
		{"address_0", http.MethodGet, "/address", http.StatusServiceUnavailable, "wallet not ready: not_started", ""},
		{"init_0", http.MethodGet, "/initialize", http.StatusMethodNotAllowed, "", ""},
		{"init_1", http.MethodPost, "/initialize?wait=forever", http.StatusBadRequest, ErrBadWait.Error(), ""},
		{"init_2", http.MethodPost, "/initialize?wait=1m", http.StatusBadRequest, ErrBadWait.Error(), ""},
		{"init_3", http.MethodPost, "/initialize", http.StatusOK, "", ""},
		{"init_4", http.MethodPost, "/initialize?wait=1s", http.StatusOK, "", ""},
		{"address_1", http.MethodGet, "/address", http.StatusOK, "", bootstrap.DefaultSentinel},
		{"address_2", http.MethodPost, "/address", http.StatusMethodNotAllowed, "", ""},
		{"balance_0", http.MethodGet, "/balance", http.StatusServiceUnavailable, "wallet not ready: degraded_ready", ""},
		{"state_0", http.MethodPut, "/state", http.StatusMethodNotAllowed, "", ""},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			status, res := makeRequest(t, srv, c.method, c.uri)
			require.Equal(t, c.status, status)
			assert.Equal(t, c.errExp, res.Error)

			if c.bodyExp != "" {
				assert.Equal(t, c.bodyExp, res.Body)
			}
		})
	}

	status, res := makeRequest(t, srv, http.MethodGet, "/state")
	require.Equal(t, http.StatusOK, status)

	s := decodeSnapshot(t, res.Body)
	assert.Equal(t, "degraded_ready", s["state"])
	assert.Equal(t, "constrained", s["mode"])
	assert.Equal(t, bootstrap.DefaultSentinel, s["address"])
}

func TestAPIFull(t *testing.T) {
	w := newFull(t, 0, map[string]block.Chain{"sepolia": fakeChain{}, "holesky": fakeChain{err: errors.New("node down")}})

	srv := httptest.NewServer(w.Router())
	defer srv.Close()

	status, res := makeRequest(t, srv, http.MethodPost, "/initialize")
	require.Equal(t, http.StatusOK, status, res.Error)

	s := decodeSnapshot(t, res.Body)
	assert.Equal(t, "ready", s["state"])
	assert.Equal(t, "full", s["mode"])

	status, res = makeRequest(t, srv, http.MethodGet, "/address")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, s["address"], res.Body)
	assert.Equal(t, w.Controller().Snapshot().Address, res.Body)

	status, res = makeRequest(t, srv, http.MethodGet, "/balance?tok=0xa34de7bd2b4270c0b12d5fd7a0c219a4d68d732f")
	require.Equal(t, http.StatusOK, status)

	var bals []addrBalance
	require.NoError(t, json.Unmarshal([]byte(res.Body), &bals))
	assert.Equal(t, []addrBalance{
		{Net: "holesky", Error: "node down"},
		{Net: "sepolia", Bal: "16", Tok: "751"},
	}, bals)

	status, res = makeRequest(t, srv, http.MethodGet, "/balance?blk=sepolia")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, `[{"net":"sepolia","bal":"16"}]`, res.Body)
}

func TestAPIFailed(t *testing.T) {
	w := newFull(t, http.StatusServiceUnavailable, nil)

	srv := httptest.NewServer(w.Router())
	defer srv.Close()

	status, res := makeRequest(t, srv, http.MethodPost, "/initialize")
	require.Equal(t, http.StatusServiceUnavailable, status)
	assert.Contains(t, res.Error, "network_unavailable")

	s := decodeSnapshot(t, res.Body)
	assert.Equal(t, "failed", s["state"])
	assert.Equal(t, true, s["retryable"])

	status, _ = makeRequest(t, srv, http.MethodGet, "/address")
	assert.Equal(t, http.StatusServiceUnavailable, status)
}

func TestPublishStates(t *testing.T) {
	mb := &fakeBroker{}
	w := New(bootstrap.New(bootstrap.Constrained, nil, nil, nil), nil, mb, nil, nil)

	w.PublishStates()
	assert.Empty(t, mb.states(), "nothing published before the first attempt ends")

	w.Controller().Initialize(context.Background())
	w.Controller().Initialize(context.Background())
	assert.Equal(t, []string{"degraded_ready"}, mb.states())

	mb.l.Lock()
	e := mb.events[0]
	mb.l.Unlock()
	assert.Equal(t, "constrained", e.Mode)
	assert.Equal(t, bootstrap.DefaultSentinel, e.Address)
	assert.NotEmpty(t, e.Attempt)

	// a late publisher sends the terminal state at once
	mb2 := &fakeBroker{}
	w2 := New(w.Controller(), nil, mb2, nil, nil)
	w2.PublishStates()
	assert.Equal(t, []string{"degraded_ready"}, mb2.states())

	require.NoError(t, w.Stop(context.Background()))
	assert.True(t, mb.closed)
}

func TestEvent(t *testing.T) {
	e := Event(bootstrap.Snapshot{
		State:   bootstrap.Failed,
		Failure: &bootstrap.Failure{Kind: bootstrap.BackendRejected, Err: errors.New("status 403")},
	})
	assert.Equal(t, "failed", e.State)
	assert.Equal(t, "backend_rejected: status 403", e.Reason)
	assert.False(t, e.Retryable)

	e = Event(bootstrap.Snapshot{State: bootstrap.Ready, ActivationError: errors.New("broker down")})
	assert.Equal(t, "broker down", e.Reason)
	assert.True(t, e.Retryable)
}

func TestInitStop(t *testing.T) {
	w := New(bootstrap.New(bootstrap.Constrained, nil, nil, nil), memory.New(), nil, nil, nil)

	done := make(chan error)
	go func() { done <- w.Init("127.0.0.1", "0") }()

	assert.Eventually(t, func() bool {
		w.l.Lock()
		defer w.l.Unlock()

		return w.s != nil
	}, time.Second, time.Millisecond)

	require.NoError(t, w.Stop(context.Background()))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Init did not return after Stop")
	}
}
