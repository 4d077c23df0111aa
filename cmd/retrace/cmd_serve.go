package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/retracehq/retrace/internal/httpapi"
	"github.com/retracehq/retrace/internal/metrics"
)

func newServeCommand() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the regression API over HTTP",
		Long: `Serve the regression API over HTTP.

Endpoints cover starting regression runs, polling run status, replaying
single test cases and reading test logs. Prometheus metrics for runs,
cases, verdicts and latency are exposed on /metrics.

Shutdown is cooperative: in-flight cases finish their
compose-execute-evaluate-persist unit before the process exits.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close() //nolint:errcheck

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector())
			app.orch.OnProgress(metrics.New(reg).Observe)

			if listen == "" {
				listen = app.cfg.Listen
			}

			server := httpapi.NewServer(httpapi.Config{
				Listen:       listen,
				Store:        app.store,
				Orchestrator: app.orch,
				Metrics:      promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return server.Serve(ctx)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (default: from config)")
	return cmd
}
