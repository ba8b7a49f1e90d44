// Command udpproxy runs the consistent-hash UDP routing proxy: it takes a
// single positional argument, the path to a YAML configuration document, and
// forwards datagrams to a pool of TCP-health-checked backends until it
// receives SIGINT or SIGTERM.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/maralla/udphashproxy/internal/config"
	"github.com/maralla/udphashproxy/internal/logging"
	"github.com/maralla/udphashproxy/internal/metrics"
	"github.com/maralla/udphashproxy/internal/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "udpproxy: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	jsonLogs := flag.Bool("json-logs", false, "emit structured JSON logs instead of text")
	debug := flag.Bool("debug", false, "lower the log level to debug")
	flag.Parse()

	if flag.NArg() != 1 {
		return fmt.Errorf("usage: udpproxy [--json-logs] [--debug] <config-path>")
	}
	configPath := flag.Arg(0)

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := logging.New(logging.Options{JSON: *jsonLogs, Debug: *debug})
	logger.Info().Str("config", configPath).Int("threads", cfg.Threads).Int("bind", cfg.Bind).Log("starting udpproxy")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.MetricsBind != "" {
		srv := metrics.NewServer(cfg.MetricsBind)
		go func() {
			if err := srv.Run(ctx); err != nil {
				logger.Err().Err(err).Log("metrics server stopped")
			}
		}()
	}

	sup, err := worker.New(cfg, logger)
	if err != nil {
		return err
	}

	err = sup.Run(ctx)
	logger.Info().Log("udpproxy stopped")
	return err
}
