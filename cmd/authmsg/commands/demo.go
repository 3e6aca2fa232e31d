package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"authmsg/internal/app"
	"authmsg/internal/services/orchestrator"
)

func demoCmd() *cobra.Command {
	var (
		sender, receiver, message, metricsListen string
		concurrent, retryExchange                bool
	)
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run the full bind, verify, bootstrap and exchange workflow",
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if flags.Changed("sender") {
				cfg.Workflow.Sender = sender
			}
			if flags.Changed("receiver") {
				cfg.Workflow.Receiver = receiver
			}
			if flags.Changed("message") {
				cfg.Workflow.Message = message
			}
			if flags.Changed("concurrent") {
				cfg.Workflow.ConcurrentVerification = concurrent
			}
			if flags.Changed("metrics-listen") {
				cfg.Metrics.Listen = metricsListen
			}

			a, err := app.New(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if cfg.Metrics.Listen != "" {
				shutdown := serveMetrics(a, cfg.Metrics.Listen)
				defer shutdown()
			}

			report, err := a.Run(ctx)
			var f *orchestrator.Failure
			if retryExchange && errors.As(err, &f) && f.Reason == orchestrator.ReasonCryptoFailure {
				a.Logger.Warn("exchange failed, retrying with the same identities", "error", err)
				if retried, rerr := a.Workflow.RetryExchange(ctx); rerr == nil || errors.As(rerr, &f) {
					report, err = retried, rerr
				}
			}
			out := cmd.OutOrStdout()
			for _, st := range report.History {
				fmt.Fprintf(out, "%s  %s\n", st.At.Format(time.RFC3339), st)
			}
			if err != nil {
				if errors.As(err, &f) && f.Reason == orchestrator.ReasonCryptoFailure {
					// Both users are verified; a failed exchange is reported, not fatal.
					fmt.Fprintf(cmd.ErrOrStderr(), "exchange failed: %v\n", err)
					return nil
				}
				return err
			}
			fmt.Fprintf(out, "%s -> %s: %s\n", report.Sender.UserID, report.Receiver.UserID, report.Forward)
			fmt.Fprintf(out, "%s -> %s: %s\n", report.Receiver.UserID, report.Sender.UserID, report.Reply)
			return nil
		},
	}
	cmd.Flags().StringVar(&sender, "sender", "", "sending user")
	cmd.Flags().StringVar(&receiver, "receiver", "", "receiving user")
	cmd.Flags().StringVarP(&message, "message", "m", orchestrator.DefaultMessage, "message to send")
	cmd.Flags().BoolVar(&concurrent, "concurrent", false, "request both verifications at once")
	cmd.Flags().BoolVar(&retryExchange, "retry-exchange", true, "rerun the exchange once after a crypto failure")
	cmd.Flags().StringVar(&metricsListen, "metrics-listen", "", "serve Prometheus metrics on this address while running")
	return cmd
}

func serveMetrics(a *app.App, addr string) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Error("metrics listener stopped", "error", err)
		}
	}()
	a.Logger.Info("serving metrics", "addr", addr)
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
