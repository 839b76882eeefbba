package bootstrap

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	for _, m := range []Mode{Full, Constrained} {
		p, err := ParseMode(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, p)
	}

	_, err := ParseMode("auto")
	assert.ErrorIs(t, err, ErrBadMode)
}

func TestStates(t *testing.T) {
	assert.Equal(t, "degraded_ready", DegradedReady.String())
	assert.Equal(t, "state(9)", State(9).String())
	assert.Len(t, States(), 5)

	for s, terminal := range map[State]bool{
		NotStarted: false, InProgress: false, DegradedReady: true, Ready: true, Failed: true,
	} {
		assert.Equal(t, terminal, s.Terminal(), s.String())
	}
}

func TestFailureKinds(t *testing.T) {
	assert.True(t, StorageUnavailable.Retryable())
	assert.True(t, NetworkUnavailable.Retryable())
	assert.False(t, BackendRejected.Retryable())
	assert.False(t, Internal.Retryable())

	f := &Failure{Kind: BackendRejected, Err: errBoom}
	assert.Equal(t, "backend_rejected: boom", f.Error())
	assert.True(t, errors.Is(f, errBoom))
	assert.Equal(t, "internal", (&Failure{}).Error())
}

func TestSnapshotJSON(t *testing.T) {
	s := Snapshot{
		Attempt: "a1",
		State:   Failed,
		Mode:    Full,
		Address: "0xf4cefc8d1afaa51d5a5e7f57d214b60429ca4378",
		Failure: &Failure{Kind: NetworkUnavailable, Err: errBoom},
		Updated: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	b, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"attempt": "a1",
		"state": "failed",
		"mode": "full",
		"address": "0xf4cefc8d1afaa51d5a5e7f57d214b60429ca4378",
		"reason": "network_unavailable: boom",
		"kind": "network_unavailable",
		"retryable": true,
		"updated": "2024-01-02T03:04:05Z"
	}`, string(b))

	b, err = json.Marshal(Snapshot{State: Ready, ActivationError: errBoom})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"activationError":"boom"`)
}
