package cli

import (
    "context"
    "fmt"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/rs/zerolog"
    "github.com/spf13/cobra"

    "github.com/amirimatin/clusterdash/internal/logutil"
    "github.com/amirimatin/clusterdash/pkg/config"
    "github.com/amirimatin/clusterdash/pkg/observability/tracing"
    "github.com/amirimatin/clusterdash/pkg/transport/httpjson"
)

// AddAll attaches the global flags and every clusterdash subcommand
// (status/videos/video/urls/watch/upload) to root.
func AddAll(root *cobra.Command) {
    o := &options{}
    o.bind(root)
    root.AddCommand(NewStatusCmd(o))
    root.AddCommand(NewVideosCmd(o))
    root.AddCommand(NewVideoCmd(o))
    root.AddCommand(NewURLsCmd(o))
    root.AddCommand(NewWatchCmd(o))
    root.AddCommand(NewUploadCmd(o))
}

// options holds the persistent flags shared by all commands.
type options struct {
    configPath, envFile                   string
    apiURL                                string
    timeout, uploadTimeout                time.Duration
    logLevel                              string
    logJSON, trace, dnsCache, jsonOut     bool
    tlsCA, tlsCert, tlsKey, tlsServerName string
    tlsSkip                               bool
}

func (o *options) bind(root *cobra.Command) {
    f := root.PersistentFlags()
    f.StringVar(&o.configPath, "config", "", "config file (default ~/.config/clusterdash/config.toml)")
    f.StringVar(&o.envFile, "env-file", "", "dotenv file with CLUSTERDASH_* overrides (default ./.env)")
    f.StringVar(&o.apiURL, "api-url", httpjson.DefaultBaseURL, "gateway base URL")
    f.DurationVar(&o.timeout, "timeout", httpjson.DefaultTimeout, "per-request timeout")
    f.DurationVar(&o.uploadTimeout, "upload-timeout", 0, "upload timeout (default: same as --timeout)")
    f.StringVar(&o.logLevel, "log-level", "info", "log level: debug|info|warn|error")
    f.BoolVar(&o.logJSON, "log-json", false, "emit JSON logs")
    f.BoolVar(&o.trace, "trace", false, "enable OpenTelemetry stdout tracing (dev)")
    f.BoolVar(&o.dnsCache, "dns-cache", false, "cache DNS lookups for the gateway host")
    f.BoolVar(&o.jsonOut, "json", false, "print raw JSON instead of tables")
    f.StringVar(&o.tlsCA, "tls-ca", "", "path to CA cert (PEM)")
    f.StringVar(&o.tlsCert, "tls-cert", "", "path to client certificate (PEM)")
    f.StringVar(&o.tlsKey, "tls-key", "", "path to client private key (PEM)")
    f.BoolVar(&o.tlsSkip, "tls-skip-verify", false, "skip server cert verification (DEV ONLY)")
    f.StringVar(&o.tlsServerName, "tls-server-name", "", "expected server name (for TLS validation)")
}

// resolve loads the configuration and applies flags the user set explicitly.
func (o *options) resolve(cmd *cobra.Command) (*config.Config, error) {
    cfg, err := config.Load(config.LoadOptions{Path: o.configPath, EnvFile: o.envFile})
    if err != nil { return nil, err }
    f := cmd.Flags()
    if f.Changed("api-url") { cfg.API.URL = o.apiURL }
    if f.Changed("timeout") { cfg.API.Timeout = config.Duration(o.timeout) }
    if f.Changed("upload-timeout") { cfg.API.UploadTimeout = config.Duration(o.uploadTimeout) }
    if f.Changed("log-level") { cfg.Logging.Level = o.logLevel }
    if f.Changed("log-json") {
        cfg.Logging.Format = "console"
        if o.logJSON { cfg.Logging.Format = "json" }
    }
    if f.Changed("dns-cache") { cfg.Network.DNSCache = o.dnsCache }
    if f.Changed("tls-ca") { cfg.TLS.CAFile = o.tlsCA }
    if f.Changed("tls-cert") { cfg.TLS.CertFile = o.tlsCert }
    if f.Changed("tls-key") { cfg.TLS.KeyFile = o.tlsKey }
    if f.Changed("tls-server-name") { cfg.TLS.ServerName = o.tlsServerName }
    if f.Changed("tls-skip-verify") { cfg.TLS.InsecureSkipVerify = o.tlsSkip }
    if cfg.TLS.CAFile != "" || cfg.TLS.CertFile != "" || cfg.TLS.InsecureSkipVerify { cfg.TLS.Enable = true }
    if err := cfg.Validate(); err != nil { return nil, err }
    return cfg, nil
}

// app is everything a command needs to talk to the gateway.
type app struct {
    cfg     *config.Config
    log     zerolog.Logger
    client  *httpjson.Client
    closers []func()
}

func (o *options) open(ctx context.Context, cmd *cobra.Command) (*app, error) {
    cfg, err := o.resolve(cmd)
    if err != nil { return nil, err }
    logutil.SetJSON(cfg.JSONLogs())
    logutil.SetLevel(cfg.Logging.Level)
    rt := &app{cfg: cfg, log: logutil.New(cmd.ErrOrStderr(), "cli")}
    if cfg.Source != "" { rt.log.Debug().Str("file", cfg.Source).Msg("loaded config file") }

    if o.trace {
        shutdown, err := tracing.Setup(true)
        if err != nil {
            rt.log.Warn().Err(err).Msg("tracing setup error")
        } else {
            rt.closers = append(rt.closers, func() { _ = shutdown(context.Background()) })
        }
    }

    client, err := httpjson.NewClient(cfg.API.URL, cfg.Timeout())
    if err != nil { rt.Close(); return nil, err }
    client.WithUploadTimeout(cfg.UploadTimeout())
    if cfg.TLS.Enable {
        tcfg, err := cfg.TLS.Options().ClientHotReload()
        if err != nil { rt.Close(); return nil, fmt.Errorf("tls client config: %w", err) }
        client.UseTLS(tcfg)
    }
    if cfg.Network.DNSCache {
        dctx, cancel := context.WithCancel(ctx)
        rt.closers = append(rt.closers, cancel)
        client.UseDNSCache(dctx, time.Duration(cfg.Network.DNSRefresh), rt.log)
    }
    rt.client = client
    return rt, nil
}

// Close releases resources in reverse order of acquisition.
func (rt *app) Close() {
    for i := len(rt.closers) - 1; i >= 0; i-- { rt.closers[i]() }
    rt.closers = nil
}

// signalContext derives a context cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
    return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
