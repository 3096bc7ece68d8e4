package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/luma/redisclient/client"
	"github.com/luma/redisclient/internal/env"
	"github.com/luma/redisclient/protocol"
)

var ExecCmd = &cobra.Command{
	Use:   "exec <command> [args...]",
	Short: "Run one command and print its reply as JSON",
	Long: `Run one command and print its reply as JSON

Multi-word commands are quoted:
	redisclient exec "OBJECT ENCODING" greeting
`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		ctx, signalStop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer signalStop()

		conf, log, err := setup(ctx, cmd)
		if err != nil {
			return err
		}

		c := connect(conf, log)
		defer func() {
			err = multierr.Append(err, c.Close())
		}()

		reply, err := c.Do(ctx, protocol.NewCommand(args[0], args[1:]...))

		var serverErr *protocol.ServerError
		if err != nil && !errors.As(err, &serverErr) {
			return err
		}

		out, jsonErr := reply.MarshalJSON()
		if jsonErr != nil {
			return jsonErr
		}

		fmt.Fprintln(cmd.OutOrStdout(), string(out))

		return err
	},
}

// connect creates a client for conf. When the config has a password or a
// database, every stream the client opens authenticates and selects it first.
func connect(conf *env.Config, log *zap.Logger, opts ...client.Option) *client.Client {
	opts = append([]client.Option{client.WithLogger(log)}, opts...)

	if conf.Password != "" || conf.DB != 0 {
		opts = append(opts, client.WithOnConnect(client.Handshake(conf.Password, conf.DB)))
	}

	return client.New(client.Config{
		Host:          conf.Host,
		Port:          conf.Port,
		ReadChunkSize: conf.ReadChunkSize,
		DialTimeout:   conf.DialTimeout,
	}, opts...)
}
