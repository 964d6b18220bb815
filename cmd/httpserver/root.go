package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/BanderoLio/PyMoviesAndCurrencies/internal/cache"
	"github.com/BanderoLio/PyMoviesAndCurrencies/internal/config"
	"github.com/BanderoLio/PyMoviesAndCurrencies/internal/exchange"
	"github.com/BanderoLio/PyMoviesAndCurrencies/internal/movie"
	"github.com/BanderoLio/PyMoviesAndCurrencies/internal/router"
	"github.com/BanderoLio/PyMoviesAndCurrencies/internal/server"
	"github.com/BanderoLio/PyMoviesAndCurrencies/internal/slogutil"
	"github.com/BanderoLio/PyMoviesAndCurrencies/internal/upstream"
)

var (
	cfgFile string
	v       = config.New()
)

var rootCmd = &cobra.Command{
	Use:   "httpserver",
	Short: "Serve exchange rates and movie lookups over a hand-rolled HTTP server",
	Long: `httpserver accepts TCP connections, parses one HTTP request line per
connection, and answers with an HTML page: an index, a movie search form,
the rate of a currency (/exchange?currency=EUR) or an OMDb movie lookup
(/movie?title=Matrix).`,
	SilenceUsage: true,
	RunE:         runServer,
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&cfgFile, "config", "", "config file (default ./httpserver.{toml,yaml,json})")
	flags.String("host", "", "host to bind to")
	flags.Int("port", 0, "port to listen on")
	flags.String("log-level", "", "debug, info, warn or error")
	flags.String("omdb-api-key", "", "OMDb API key")

	for key, flag := range map[string]string{
		"server.host":           "host",
		"server.port":           "port",
		"logging.level":         "log-level",
		"upstream.omdb_api_key": "omdb-api-key",
	} {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(err)
		}
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		return err
	}

	logger := slogutil.NewLogger(os.Stderr, slogutil.LevelFromString(cfg.Logging.Level), cfg.Logging.Format)

	var store upstream.Cache
	if cfg.Cache.Enabled {
		st, err := cache.Open(cfg.Cache.Path, cfg.Cache.TTL, logger)
		if err != nil {
			return err
		}
		defer st.Close()
		if n, err := st.Prune(cmd.Context()); err != nil {
			logger.Warn("cache prune failed", "error", err)
		} else if n > 0 {
			logger.Info("expired cache entries removed", "count", n)
		}
		store = st
	}

	client := upstream.NewClient(cfg.Upstream.Timeout, store, logger.With("component", "upstream"))
	exchangeSvc, err := exchange.New(client, cfg.Upstream.ExchangeURL, logger.With("component", "exchange"))
	if err != nil {
		return err
	}
	movieSvc := movie.New(client, cfg.Upstream.OMDbURL, cfg.Upstream.OMDbAPIKey, logger.With("component", "movie"))
	if cfg.Upstream.OMDbAPIKey == "" {
		logger.Warn("no OMDb API key configured; movie lookups will fail")
	}

	rt := router.New(exchangeSvc, movieSvc)

	srv, err := server.Serve(cfg.Server, rt, logger)
	if err != nil {
		logger.Error("cannot start server", "failure", server.BindFailure, "addr", cfg.Addr(), "error", err)
		return err
	}
	logger.Info("server started",
		"addr", srv.Addr().String(),
		"url", "http://"+cfg.Addr(),
		"routes", rt.Paths(),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("received shutdown signal", "signal", sig.String())

	return stop(srv, cfg.Server, logger)
}

func stop(srv *server.Server, cfg config.ServerConfig, logger *slog.Logger) error {
	if cfg.DrainTimeout <= 0 {
		if err := srv.Close(); err != nil {
			logger.Warn("error closing listener", "error", err)
		}
		logger.Info("server stopped")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DrainTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("shutdown did not drain cleanly", "error", err)
		return nil
	}
	logger.Info("server stopped gracefully")
	return nil
}
