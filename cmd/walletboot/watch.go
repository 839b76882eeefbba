package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tarancss/walletboot/lib/msg/amqp"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print the bootstrap states published to the message broker",
	Args:  cobra.NoArgs,
	RunE:  runWatch,
}

func runWatch(cmd *cobra.Command, _ []string) error {
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	conf, err := loadConfig(log)
	if err != nil {
		return err
	}

	mb, err := amqp.New(conf.MbConn, log)
	if err != nil {
		return err
	}

	if err = mb.Setup(); err != nil {
		_ = mb.Close()

		return err
	}

	eves, errs, err := mb.GetStates()
	if err != nil {
		_ = mb.Close()

		return err
	}

	// closing the message broker ends both channels
	go func() {
		sigchan := make(chan os.Signal, 1)
		signal.Notify(sigchan, os.Interrupt, syscall.SIGTERM)
		<-sigchan

		if errC := mb.Close(); errC != nil {
			log.Warn("error closing message broker", zap.Error(errC))
		}
	}()

	enc := json.NewEncoder(cmd.OutOrStdout())

	for {
		select {
		case e, ok := <-eves:
			if !ok {
				return nil
			}

			if err = enc.Encode(e); err != nil {
				return err
			}
		case e, ok := <-errs:
			if !ok {
				errs = nil

				continue
			}

			fmt.Fprintln(cmd.ErrOrStderr(), "cannot decode state event:", e)
		}
	}
}
