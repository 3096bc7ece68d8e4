package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luma/redisclient/pubsub"
	"github.com/luma/redisclient/transport"
)

const quitTimeout = 2 * time.Second

var (
	// Treat the names as patterns
	patterns bool
)

func init() {
	flags := SubscribeCmd.Flags()

	flags.BoolVar(&patterns, "pattern", false, "Subscribe to patterns instead of channels")
}

var SubscribeCmd = &cobra.Command{
	Use:   "subscribe [--pattern] <names...>",
	Short: "Print every message pushed to channels or patterns",
	Long: `Print every message pushed to channels or patterns, one JSON object per
line, until interrupted.
`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, signalStop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer signalStop()

		conf, log, err := setup(ctx, cmd)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		lost := make(chan error, 1)

		session := pubsub.New(pubsub.Config{
			Host:          conf.Host,
			Port:          conf.Port,
			ReadChunkSize: conf.ReadChunkSize,
			DialTimeout:   conf.DialTimeout,
		}, func(msg pubsub.Message) {
			line, err := msg.MarshalJSON()
			if err != nil {
				log.Error("Failed to render message", zap.Error(err))
				return
			}
			fmt.Fprintln(out, string(line))
		}, func(err error) {
			log.Error("Subscription error", zap.Error(err))

			var transportErr *transport.Error
			if errors.As(err, &transportErr) {
				select {
				case lost <- err:
				default:
				}
			}
		}, pubsub.WithLogger(log))
		defer session.Close()

		if conf.Password != "" {
			session.Auth(ctx, conf.Password, func(_ string, err error) {
				if err != nil {
					log.Error("Failed to authenticate", zap.Error(err))
				}
			})
		}

		if patterns {
			err = session.PSubscribe(ctx, args...)
		} else {
			err = session.Subscribe(ctx, args...)
		}
		if err != nil {
			return err
		}

		select {
		case <-ctx.Done():
		case err := <-lost:
			return err
		}

		signalStop()
		log.Info("Unsubscribing")

		quit := make(chan bool, 1)
		quitCtx, cancel := context.WithTimeout(context.Background(), quitTimeout)
		defer cancel()

		session.Quit(quitCtx, func(success bool) { quit <- success })

		select {
		case <-quit:
		case <-quitCtx.Done():
			log.Warn("Server did not close the connection in time")
		}

		return nil
	},
}
