package cmd

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/luma/redisclient/internal/redistest"
)

var (
	// Split replies into writes of this many bytes
	writeChunkSize int
)

func init() {
	flags := MockCmd.Flags()

	flags.IntVar(&writeChunkSize, "write-chunk-size", 0, "Write replies in chunks of this many bytes, 0 writes them whole")
}

var MockCmd = &cobra.Command{
	Use:   "mock",
	Short: "Run an in-memory development server",
	Long: `Run an in-memory development server on --host and --port that speaks
enough of the protocol to try the other commands against.

Usage
	redisclient mock --port 6400 --password secret
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, signalStop := signal.NotifyContext(context.Background(), os.Interrupt, unix.SIGTERM)
		defer signalStop()

		conf, log, err := setup(ctx, cmd)
		if err != nil {
			return err
		}

		server := redistest.New(redistest.Options{
			Host:           conf.Host,
			Port:           conf.Port,
			Password:       conf.Password,
			WriteChunkSize: writeChunkSize,
			Log:            log.Named("mock"),
		})

		if err := server.Start(ctx); err != nil {
			return err
		}

		<-ctx.Done()

		signalStop()
		log.Info("Shutting down")

		if err := server.Close(); err != nil {
			log.Error("Server did not close cleanly", zap.Error(err))
		}

		return nil
	},
}
