package env_test

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/sethvargo/go-envconfig"
	"go.uber.org/zap/zapcore"

	"github.com/luma/redisclient/internal/env"
)

var _ = Describe("LoadConfig()", func() {
	var (
		ctx context.Context
		dir string
	)

	BeforeEach(func() {
		ctx = context.Background()

		var err error
		dir, err = ioutil.TempDir("", "redisclient-env")
		Expect(err).To(Succeed())
	})

	AfterEach(func() {
		os.RemoveAll(dir)
	})

	writeFile := func(contents string) string {
		path := filepath.Join(dir, "redisclient.yaml")
		Expect(ioutil.WriteFile(path, []byte(contents), 0o600)).To(Succeed())
		return path
	}

	It("falls back to the defaults", func() {
		config, err := env.LoadConfigWith(ctx, "", envconfig.MapLookuper(map[string]string{}))
		Expect(err).To(Succeed())

		Expect(config).To(Equal(&env.Config{
			Host:          env.DefaultHost,
			Port:          env.DefaultPort,
			ReadChunkSize: env.DefaultReadChunkSize,
			DialTimeout:   env.DefaultDialTimeout,
			GatewayHost:   env.DefaultGatewayHost,
			GatewayPort:   env.DefaultGatewayPort,
			LogLevel:      env.DefaultLogLevel,
		}))
	})

	It("reads the environment", func() {
		config, err := env.LoadConfigWith(ctx, "", envconfig.MapLookuper(map[string]string{
			"REDISCLIENT_HOST":         "cache.internal",
			"REDISCLIENT_PORT":         "6380",
			"REDISCLIENT_DIAL_TIMEOUT": "250ms",
			"REDISCLIENT_DEBUG_HTTP":   "true",
		}))
		Expect(err).To(Succeed())

		Expect(config.Host).To(Equal("cache.internal"))
		Expect(config.Port).To(Equal(6380))
		Expect(config.DialTimeout).To(Equal(250 * time.Millisecond))
		Expect(config.DebugHTTP).To(BeTrue())
	})

	It("reads a YAML file and lets the environment win", func() {
		path := writeFile(`
host: file.internal
port: 7000
password: hunter2
dialTimeout: 2s
logLevel: debug
`)

		config, err := env.LoadConfigWith(ctx, path, envconfig.MapLookuper(map[string]string{
			"REDISCLIENT_PORT": "7001",
		}))
		Expect(err).To(Succeed())

		Expect(config.Host).To(Equal("file.internal"))
		Expect(config.Port).To(Equal(7001))
		Expect(config.Password).To(Equal("hunter2"))
		Expect(config.DialTimeout).To(Equal(2 * time.Second))
		Expect(config.LogLevel).To(Equal("debug"))
		Expect(config.GatewayPort).To(Equal(env.DefaultGatewayPort))
	})

	It("lets the environment set zero values over the file", func() {
		path := writeFile(`
db: 3
debugHTTP: true
readChunkSize: 512
`)

		config, err := env.LoadConfigWith(ctx, path, envconfig.MapLookuper(map[string]string{
			"REDISCLIENT_DB":         "0",
			"REDISCLIENT_DEBUG_HTTP": "false",
		}))
		Expect(err).To(Succeed())

		Expect(config.DB).To(Equal(0))
		Expect(config.DebugHTTP).To(BeFalse())
		Expect(config.ReadChunkSize).To(Equal(512))
	})

	It("fails on a bad duration", func() {
		path := writeFile("dialTimeout: soon\n")

		_, err := env.LoadConfigWith(ctx, path, envconfig.MapLookuper(map[string]string{}))
		Expect(err).To(HaveOccurred())
	})

	It("fails on a missing file", func() {
		_, err := env.LoadConfigWith(ctx, filepath.Join(dir, "nope.yaml"), envconfig.MapLookuper(map[string]string{}))
		Expect(os.IsNotExist(err)).To(BeTrue())
	})
})

var _ = Describe("MakeLogger()", func() {
	It("uses the given level", func() {
		log, err := env.MakeLogger("warn")
		Expect(err).To(Succeed())
		Expect(log.Core().Enabled(zapcore.InfoLevel)).To(BeFalse())
		Expect(log.Core().Enabled(zapcore.WarnLevel)).To(BeTrue())
	})

	It("defaults to info", func() {
		log, err := env.MakeLogger("")
		Expect(err).To(Succeed())
		Expect(log.Core().Enabled(zapcore.InfoLevel)).To(BeTrue())
		Expect(log.Core().Enabled(zapcore.DebugLevel)).To(BeFalse())
	})

	It("rejects unknown levels", func() {
		_, err := env.MakeLogger("loud")
		Expect(err).To(HaveOccurred())
	})
})
