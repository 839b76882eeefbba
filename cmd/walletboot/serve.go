package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// stopTimeout bounds the graceful shutdown.
const stopTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Bootstrap the wallet and serve the RESTful API until killed",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	conf, err := loadConfig(log)
	if err != nil {
		return err
	}

	w, err := build(cmd.Context(), conf, log)
	if err != nil {
		return err
	}

	w.PublishStates()

	// capture CTRL+C or docker's SIGTERM for gracious exit
	go func() {
		sigchan := make(chan os.Signal, 1)
		signal.Notify(sigchan, os.Interrupt, syscall.SIGTERM)
		<-sigchan
		log.Info("program killed")

		ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		// do last actions and wait for all write operations to end
		if errS := w.Stop(ctx); errS != nil {
			log.Error("error stopping wallet service", zap.Error(errS))
		}
	}()

	// first attempt in the background, the API reports its progress
	go w.Controller().Initialize(context.Background())

	// init RESTful API and wait for its return
	return w.Init(conf.RestfulEndpoint, conf.Port)
}
