package cli

import (
    "context"
    "errors"
    "net/http"
    "time"

    "github.com/prometheus/client_golang/prometheus/promhttp"
    "github.com/spf13/cobra"

    "github.com/amirimatin/clusterdash/internal/logutil"
    "github.com/amirimatin/clusterdash/pkg/dashboard"
    obsmetrics "github.com/amirimatin/clusterdash/pkg/observability/metrics"
    "github.com/amirimatin/clusterdash/pkg/poller"
)

// NewWatchCmd returns the "watch" command: poll status and catalog until
// interrupted, printing one line per cycle.
func NewWatchCmd(o *options) *cobra.Command {
    var (
        interval    time.Duration
        metricsAddr string
        count       int
    )
    cmd := &cobra.Command{
        Use:   "watch",
        Short: "Continuously poll cluster status and the catalog",
        Args:  cobra.NoArgs,
        RunE: func(cmd *cobra.Command, args []string) error {
            ctx, cancel := signalContext(cmd.Context())
            defer cancel()
            a, err := o.open(ctx, cmd)
            if err != nil { return err }
            defer a.Close()
            if !cmd.Flags().Changed("interval") { interval = a.cfg.PollInterval() }
            if !cmd.Flags().Changed("metrics-addr") { metricsAddr = a.cfg.Metrics.Addr }

            if metricsAddr != "" {
                stop := serveMetrics(metricsAddr, a)
                defer stop()
            }

            view := dashboard.NewView(logutil.New(cmd.ErrOrStderr(), "dashboard"))
            states := view.Subscribe(ctx)
            p, err := poller.New(a.client, poller.Options{
                CycleTimeout: a.cfg.Timeout(),
                Logger:       logutil.New(cmd.ErrOrStderr(), "poller"),
            })
            if err != nil { return err }
            h, err := p.Start(ctx, interval, func(r poller.Result) { view.Apply(r) })
            if err != nil { return err }
            defer h.Stop()
            a.log.Info().Str("api", a.client.BaseURL()).Dur("interval", interval).Msg("watching")

            seen := 0
            for {
                select {
                case <-ctx.Done():
                    return nil
                case st, ok := <-states:
                    if !ok { return nil }
                    renderState(cmd.OutOrStdout(), st)
                    seen++
                    if count > 0 && seen >= count { return nil }
                }
            }
        },
    }
    cmd.Flags().DurationVar(&interval, "interval", 0, "refresh interval (default from config, 5s)")
    cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. 127.0.0.1:9108)")
    cmd.Flags().IntVar(&count, "count", 0, "exit after this many updates (0 = until interrupted)")
    return cmd
}

func serveMetrics(addr string, a *app) func() {
    obsmetrics.Register()
    mux := http.NewServeMux()
    mux.Handle("/metrics", promhttp.Handler())
    srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
    go func() {
        if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
            a.log.Error().Err(err).Str("addr", addr).Msg("metrics server failed")
        }
    }()
    a.log.Info().Str("addr", addr).Msg("serving metrics")
    return func() {
        ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
        defer cancel()
        _ = srv.Shutdown(ctx)
    }
}
