package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/interactivectl/internal/account"
	"github.com/danmuck/interactivectl/internal/config"
	"github.com/danmuck/interactivectl/internal/interactive"
	"github.com/danmuck/interactivectl/internal/logging"
	"github.com/danmuck/interactivectl/internal/transport/wstransport"
	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", "interactivectl.toml", "config file (.toml, .yaml or .yml)")
	metricsAddr := flag.String("metrics", "", "serve /metrics and /health on this address (overrides metrics_addr)")
	state := flag.String("state", "TEST_STATE", "state label sent after each report")
	flag.Parse()

	logging.ConfigureRuntime()
	if err := run(*configPath, *metricsAddr, *state); err != nil {
		fmt.Fprintf(os.Stderr, "interactivectl: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, metricsAddr, state string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if metricsAddr != "" {
		cfg.MetricsAddr = metricsAddr
	}

	accounts, err := account.NewHTTPService(cfg.APIBaseURL, 0)
	if err != nil {
		return err
	}
	tcfg := wstransport.DefaultConfig()
	if cfg.CAFile != "" {
		if tcfg.TLS, err = wstransport.LoadCAFile(cfg.CAFile); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := newRobot(state)
	client, err := interactive.New(cfg.Client, cfg.Credentials, accounts, wstransport.New(tcfg), r.handlers())
	if err != nil {
		return err
	}
	r.client = client

	if cfg.MetricsAddr != "" {
		srv := newStatusServer(cfg.MetricsAddr, client)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Str("addr", cfg.MetricsAddr).Msg("interactivectl: status server")
			}
		}()
		defer shutdown(srv)
	}

	log.Info().
		Dur("timeout", cfg.Client.Timeout).
		Bool("auto_reconnect", cfg.Client.AutoReconnect).
		Int("max_reconnect_attempts", cfg.Client.MaxReconnectAttempts).
		Str("handler_mode", cfg.Client.HandlerMode.String()).
		Msg("interactivectl: starting")

	err = client.Start(ctx)
	if errors.Is(err, context.Canceled) {
		log.Info().Msg("interactivectl: stopped")
		return nil
	}
	return err
}
