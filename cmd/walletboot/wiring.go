package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/tarancss/walletboot/activator"
	"github.com/tarancss/walletboot/bootstrap"
	"github.com/tarancss/walletboot/lib/backend"
	"github.com/tarancss/walletboot/lib/block"
	"github.com/tarancss/walletboot/lib/config"
	"github.com/tarancss/walletboot/lib/keys"
	"github.com/tarancss/walletboot/lib/metrics"
	"github.com/tarancss/walletboot/lib/msg"
	"github.com/tarancss/walletboot/lib/msg/amqp"
	"github.com/tarancss/walletboot/lib/probe"
	"github.com/tarancss/walletboot/lib/store"
	"github.com/tarancss/walletboot/lib/store/db"
	"github.com/tarancss/walletboot/wallet"
)

// brokerRetry is how long to wait for the broker to come up before the second and last connection attempt.
const brokerRetry = 10 * time.Second

// build wires the service from conf. Everything it opened is closed by the returned service's Stop.
func build(ctx context.Context, conf config.ServiceConfig, log *zap.Logger) (*wallet.Wallet, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	met := metrics.New(reg)

	// load Prometheus monitor
	if monitor {
		go serveMetrics(reg, log)
	}

	// load all blockchains
	chains, err := block.Init(conf.Bc, log)
	if err != nil {
		return nil, err
	}

	log.Info("blockchain clients loaded", zap.Int("chains", len(chains)))

	mode, err := probe.Detect(ctx, conf.Mode, chains, time.Duration(conf.Timeout), log)
	if err != nil {
		block.End(chains)

		return nil, err
	}

	mb := connectBroker(conf, log)

	opts := []bootstrap.Option{
		bootstrap.WithSentinel(conf.Sentinel),
		bootstrap.WithLogger(log),
		bootstrap.WithMetrics(met),
		bootstrap.WithPrerequisite(checkEntropy),
	}

	// degraded mode never touches key material, backend or auxiliary services
	if mode == bootstrap.Constrained {
		ctl := bootstrap.New(mode, nil, nil, nil, opts...)

		return wallet.New(ctl, nil, mb, chains, log), nil
	}

	m, ks, err := openKeys(conf, log)
	if err != nil {
		closeAll(mb, chains)

		return nil, err
	}

	sc, err := backend.New(conf.Backend,
		backend.WithTimeout(time.Duration(conf.Timeout)),
		backend.WithAPIKey(conf.BackendKey),
		backend.WithLogger(log),
		backend.WithObserver(met.Backend),
	)
	if err != nil {
		_ = db.Close(m)
		closeAll(mb, chains)

		return nil, err
	}

	var services []activator.Service
	if mb != nil {
		services = append(services, activator.NewListenService(mb, conf.Networks(), log))
	}

	if len(chains) > 0 {
		services = append(services, activator.NewBalanceWatcher(chains, met, log))
	}

	ctl := bootstrap.New(mode, ks, sc, activator.New(log, services...), opts...)

	return wallet.New(ctl, m, mb, chains, log), nil
}

// openKeys opens the key material medium and the key store on it.
func openKeys(conf config.ServiceConfig, log *zap.Logger) (store.Medium, *keys.Store, error) {
	w, change, index, err := conf.ParsePath()
	if err != nil {
		return nil, nil, err
	}

	m, err := db.New(conf.DBType, conf.DBConn)
	if err != nil {
		return nil, nil, fmt.Errorf("cannot open %s medium: %w", conf.DBType, err)
	}

	log.Info("key material medium opened", zap.String("type", conf.DBType))

	if conf.Passphrase == "" {
		log.Warn("no passphrase configured, the mnemonic is stored unsealed")
	}

	ks := keys.New(m, keys.Path{Wallet: w, Change: change, Index: index},
		keys.WithPassphrase(conf.Passphrase), keys.WithLogger(log))

	return m, ks, nil
}

// connectBroker returns the configured message broker or nil when none is available.
func connectBroker(conf config.ServiceConfig, log *zap.Logger) msg.Broker {
	switch conf.MbType {
	case "amqp":
	case "":
		return nil
	default:
		log.Warn("unknown message broker type", zap.String("type", conf.MbType))

		return nil
	}

	mb, err := amqp.New(conf.MbConn, log)
	if err != nil {
		log.Warn("message broker not ready, retrying", zap.Duration("in", brokerRetry), zap.Error(err))
		time.Sleep(brokerRetry) // wait for AMQP to be ready and try to reconnect

		if mb, err = amqp.New(conf.MbConn, log); err != nil {
			log.Error("running without message broker", zap.Error(err))

			return nil
		}
	}

	if err = mb.Setup(); err != nil {
		log.Error("cannot set up message broker, running without it", zap.Error(err))

		_ = mb.Close()

		return nil
	}

	return mb
}

func closeAll(mb msg.Broker, chains map[string]block.Chain) {
	if mb != nil {
		_ = mb.Close()
	}

	block.End(chains)
}

// checkEntropy makes sure the system entropy source works before any attempt can generate key material.
func checkEntropy(context.Context) error {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return fmt.Errorf("entropy source unavailable: %w", err)
	}

	return nil
}

func serveMetrics(reg *prometheus.Registry, log *zap.Logger) {
	log.Info("serving metrics API", zap.String("addr", ":9100"))

	h := http.NewServeMux()
	h.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	s := &http.Server{Addr: ":9100", Handler: h, ReadHeaderTimeout: 5 * time.Second}
	if err := s.ListenAndServe(); err != nil {
		log.Error("metrics server stopped", zap.Error(err))
	}
}
