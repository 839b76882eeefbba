package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tarancss/walletboot/bootstrap"
	"github.com/tarancss/walletboot/lib/config"
	"github.com/tarancss/walletboot/lib/store/db"
)

func baseConfig(t *testing.T) config.ServiceConfig {
	t.Helper()

	conf, err := config.ExtractConfiguration("")
	require.NoError(t, err)

	conf.MbType = ""
	conf.Bc = nil

	return conf
}

func TestBuildConstrained(t *testing.T) {
	conf := baseConfig(t)
	conf.Mode = config.ModeAuto // no chain answers

	w, err := build(context.Background(), conf, zap.NewNop())
	require.NoError(t, err)

	s := w.Controller().Initialize(context.Background())
	assert.Equal(t, bootstrap.DegradedReady, s.State)
	assert.Equal(t, conf.Sentinel, s.Address)

	require.NoError(t, w.Stop(context.Background()))
}

func TestBuildFull(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			rw.WriteHeader(http.StatusCreated)
		}

		_, _ = rw.Write([]byte(`{}`))
	}))
	defer srv.Close()

	dir := t.TempDir()

	conf := baseConfig(t)
	conf.Mode = config.ModeFull
	conf.DBType = db.FILE
	conf.DBConn = filepath.Join(dir, "keys")
	conf.Backend = srv.URL
	conf.Passphrase = "correct horse battery staple"

	w, err := build(context.Background(), conf, zap.NewNop())
	require.NoError(t, err)

	s := w.Controller().Initialize(context.Background())
	require.Equal(t, bootstrap.Ready, s.State, "failure: %v", s.Failure)
	assert.True(t, strings.HasPrefix(s.Address, "0x"))

	require.NoError(t, w.Stop(context.Background()))

	// the record is sealed: no phrase in clear on disk
	b, err := os.ReadFile(filepath.Join(conf.DBConn, "identity"))
	require.NoError(t, err)

	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &rec))
	assert.NotContains(t, rec, "mnemonic")
	assert.Contains(t, rec, "sealed")

	// a second boot finds the same wallet
	w, err = build(context.Background(), conf, zap.NewNop())
	require.NoError(t, err)

	s2 := w.Controller().Initialize(context.Background())
	require.Equal(t, bootstrap.Ready, s2.State, "failure: %v", s2.Failure)
	assert.Equal(t, s.Address, s2.Address)

	require.NoError(t, w.Stop(context.Background()))
}

func TestBuildBadMedium(t *testing.T) {
	conf := baseConfig(t)
	conf.Mode = config.ModeFull
	conf.DBType = "floppy"

	_, err := build(context.Background(), conf, zap.NewNop())
	assert.ErrorIs(t, err, db.ErrUnknownType)
}

func TestInitCommand(t *testing.T) {
	t.Setenv("WB_MODE", config.ModeConstrained)
	t.Setenv("WB_MBTYPE", "none")
	t.Setenv("WB_BLOCKCHAINS", "[]")

	var out bytes.Buffer

	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"init"})

	require.NoError(t, rootCmd.Execute())

	var s map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Bytes(), &s))
	assert.Equal(t, "degraded_ready", s["state"])
	assert.Equal(t, config.SentinelDefault, s["address"])
}
