package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luma/redisclient/cmd/gen"
	"github.com/luma/redisclient/internal/env"
)

var (
	// Path of an optional YAML config file
	configPath string

	// Overrides for the config file and environment
	host     string
	port     int
	password string
	logLevel string
)

var RootCmd = &cobra.Command{
	Use:   "redisclient",
	Short: "Talk to a Redis compatible server",
	Long: `Talk to a Redis compatible server

Usage
	redisclient exec SET greeting "hello world"
	redisclient subscribe news
	redisclient gateway
`,
	SilenceUsage: true,
}

func init() {
	flags := RootCmd.PersistentFlags()

	flags.StringVarP(&configPath, "config", "c", "", "A YAML config file")
	flags.StringVarP(&host, "host", "a", "", "The server host")
	flags.IntVarP(&port, "port", "p", 0, "The server port")
	flags.StringVar(&password, "password", "", "AUTH with this password after connecting")
	flags.StringVar(&logLevel, "log-level", "", "debug, info, warn or error")

	RootCmd.AddCommand(ExecCmd, SubscribeCmd, GatewayCmd, MockCmd, VersionCmd, gen.RootCmd)
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads the config, applies the command line flags over it and builds
// the logger.
func setup(ctx context.Context, cmd *cobra.Command) (*env.Config, *zap.Logger, error) {
	conf, err := env.LoadConfig(ctx, configPath)
	if err != nil {
		return nil, nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("host") {
		conf.Host = host
	}
	if flags.Changed("port") {
		conf.Port = port
	}
	if flags.Changed("password") {
		conf.Password = password
	}
	if flags.Changed("log-level") {
		conf.LogLevel = logLevel
	}

	log, err := env.MakeLogger(conf.LogLevel)
	if err != nil {
		return nil, nil, err
	}

	return conf, log, nil
}
