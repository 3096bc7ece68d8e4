package cmd

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/luma/redisclient/client"
	"github.com/luma/redisclient/internal/gateway"
	"github.com/luma/redisclient/metrics"
)

var (
	// The host to listen for http requests on
	httpHost string

	// The port to listen for http requests on
	httpPort int

	debugHTTP bool
)

func init() {
	flags := GatewayCmd.Flags()

	flags.StringVar(&httpHost, "http-host", "", "The host to listen to HTTP requests on")
	flags.IntVar(&httpPort, "http-port", 0, "The port to listen to HTTP requests on")
	flags.BoolVar(&debugHTTP, "debug-http", false, "Run gin in debug mode")
}

var GatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Serve commands to the server over HTTP",
	Long: `Serve commands to the server over HTTP

Usage
	redisclient gateway --http-port 7380
	curl -d '{"command": "GET", "args": ["greeting"]}' localhost:7380/commands

`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		ctx, signalStop := signal.NotifyContext(context.Background(), os.Interrupt, unix.SIGTERM)
		defer signalStop()

		conf, log, err := setup(ctx, cmd)
		if err != nil {
			return err
		}

		flags := cmd.Flags()
		if flags.Changed("http-host") {
			conf.GatewayHost = httpHost
		}
		if flags.Changed("http-port") {
			conf.GatewayPort = httpPort
		}
		if flags.Changed("debug-http") {
			conf.DebugHTTP = debugHTTP
		}

		fileLimit, err := setFileLimit()
		if err != nil {
			return err
		}

		log.Info("Set file limit", zap.Uint64("fileLimit", fileLimit))

		reg := prometheus.NewRegistry()
		reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

		m, err := metrics.New(reg)
		if err != nil {
			return err
		}

		c := connect(conf, log.Named("client"), client.WithMetrics(m))

		gw := gateway.New(gateway.Options{
			Host:      conf.GatewayHost,
			Port:      conf.GatewayPort,
			Client:    c,
			Gatherer:  reg,
			DebugHTTP: conf.DebugHTTP,
			Log:       log.Named("gateway"),
		})

		if err := gw.Start(ctx); err != nil {
			return err
		}

		log.Info("Gateway running",
			zap.String("server", c.Addr()),
			zap.String("addr", gw.Addr()))

		// Listen for the interrupt signal.
		<-ctx.Done()

		// Restore default behavior on the interrupt signal and notify user of shutdown.
		signalStop()
		log.Info("Shutting down gracefully, press Ctrl+C again to force")

		// Requests in flight get 5 seconds to finish
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := gw.Shutdown(ctx); err != nil {
			log.Error("Http server forced to shutdown", zap.Error(err))
		}

		if err := c.Close(); err != nil {
			log.Error("Client did not close cleanly", zap.Error(err))
		}

		log.Info("Exiting")
		return nil
	},
}

func setFileLimit() (uint64, error) {
	var rLimit unix.Rlimit

	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rLimit); err != nil {
		return 0, err
	}

	rLimit.Cur = rLimit.Max
	if err := unix.Setrlimit(unix.RLIMIT_NOFILE, &rLimit); err != nil {
		return 0, err
	}

	return rLimit.Cur, nil
}
