package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newServeCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the JSON auth API with a background sweeper",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadSettings(v)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().String("addr", ":8080", "HTTP listen address")
	cmd.Flags().StringSlice("allowed-origins", nil, "CORS origins allowed to call the API")
	_ = v.BindPFlag("http.addr", cmd.Flags().Lookup("addr"))
	_ = v.BindPFlag("http.allowed_origins", cmd.Flags().Lookup("allowed-origins"))
	return cmd
}

func runServe(parent context.Context, cfg *settings) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := log.Logger.With().Str("service", "goguard").Logger()

	svc, err := buildService(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	report := svc.engine.SecurityReport()
	logger.Info().
		Bool("jwt", report.JWTEnabled).
		Str("rate_backend", report.RateLimitBackend).
		Str("otp", report.OTPProvider).
		Str("activity", report.ActivityBackend).
		Bool("hashed_reuse_history", report.HashedReuseHistory).
		Bool("secure_cookies", report.SecureCookies).
		Msg("security configuration")
	engineCfg := svc.engine.Config()
	for _, w := range engineCfg.Lint() {
		logger.Warn().Str("code", w.Code).Msg(w.Message)
	}

	srv := &server{engine: svc.engine, logger: logger}
	handler, err := srv.router(routerOptions{
		AllowedOrigins:    cfg.HTTP.AllowedOrigins,
		RequestsPerMinute: cfg.HTTP.RequestsPerMinute,
	})
	if err != nil {
		return err
	}

	httpSrv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		svc.engine.RunSweeper(ctx, cfg.RateLimit.SweepInterval)
	}()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.HTTP.Addr).Msg("starting goguard")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			stop()
			<-sweepDone
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown server")
	}
	<-sweepDone
	return nil
}
