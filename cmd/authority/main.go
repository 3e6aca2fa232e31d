package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"authmsg/internal/app"
	"authmsg/internal/authority"
	"authmsg/internal/domain"
	"authmsg/internal/store"
)

func main() {
	if err := newRoot().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRoot() *cobra.Command {
	var (
		configPath string
		listen     string
		ledgerPath string
		deny       []string
		delay      time.Duration
	)
	cmd := &cobra.Command{
		Use:          "authority",
		Short:        "Serve the development authority over HTTP",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("deny") {
				cfg.Dev.DenyUsers = deny
			}
			if cmd.Flags().Changed("approve-delay") {
				cfg.Dev.ApproveDelay = delay
			}
			log, err := app.NewLogger(cfg.Log, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			var ledger domain.RedemptionLedger
			if ledgerPath != "" {
				fl := store.NewFileLedger(ledgerPath)
				if err := fl.Bootstrap(); err != nil {
					return fmt.Errorf("load ledger: %w", err)
				}
				ledger = fl
			}
			backend, err := app.NewDevAuthority(cfg, ledger, log)
			if err != nil {
				return err
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			mux.Handle("/", authority.NewServer(backend, reg, log))

			srv := &http.Server{Addr: listen, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()

			log.Info("authority listening", "addr", listen, "client_id", cfg.Authority.ClientID)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "YAML config file (authority and dev sections)")
	cmd.Flags().StringVar(&listen, "listen", ":8080", "listen address")
	cmd.Flags().StringVar(&ledgerPath, "ledger", "", "file for redeemed key tokens; empty keeps them in memory")
	cmd.Flags().StringSliceVar(&deny, "deny", nil, "users whose verification requests are denied")
	cmd.Flags().DurationVar(&delay, "approve-delay", 0, "wait this long before answering a verification request")
	return cmd
}
