// Command rproxy runs a reverse proxy server from a YAML configuration file.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/irtimmer/rproxy/internal/config"
)

func main() {
	configPath := flag.String("config", "rproxy.yaml", "path to the YAML configuration file")
	devLog := flag.Bool("dev", false, "use a human-readable development logger instead of JSON")
	flag.Parse()

	logger, err := newLogger(*devLog)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rproxy: building logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(*configPath, logger); err != nil {
		logger.Error("exiting", zap.Error(err))
		os.Exit(1)
	}
}

func newLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(configPath string, logger *zap.Logger) error {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}

	cfg, err := config.Parse(data)
	if err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}

	builder := config.NewBuilder(logger)
	listeners, err := builder.BuildListeners(cfg)
	if err != nil {
		return fmt.Errorf("building listeners: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	for _, l := range listeners {
		l := l
		logger.Info("listening", zap.String("addr", l.Addr))
		g.Go(func() error {
			return l.Run(gctx)
		})
	}

	return g.Wait()
}
