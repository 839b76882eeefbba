package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tarancss/walletboot/bootstrap"
)

// ErrNotBootstrapped is returned by init when the attempt does not end ready.
var ErrNotBootstrapped = errors.New("wallet not bootstrapped")

var initWait time.Duration

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Run a single bootstrap attempt and print its outcome",
	Args:  cobra.NoArgs,
	RunE:  runInit,
}

func init() {
	initCmd.Flags().DurationVar(&initWait, "wait", time.Minute, "how long to wait for the attempt")
}

func runInit(cmd *cobra.Command, _ []string) error {
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	conf, err := loadConfig(log)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), initWait)
	defer cancel()

	w, err := build(ctx, conf, log)
	if err != nil {
		return err
	}

	w.PublishStates()

	s := w.Controller().Initialize(ctx)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), stopTimeout)
	defer stopCancel()

	errS := w.Stop(stopCtx)

	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), string(b))

	switch s.State {
	case bootstrap.Ready, bootstrap.DegradedReady:
		return errS
	default:
		return fmt.Errorf("%w: %s", ErrNotBootstrapped, s.State)
	}
}
