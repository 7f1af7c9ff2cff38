package config

import (
    "fmt"
    "strconv"
    "strings"
    "time"
)

// Environment variables recognized by Load.
const (
    EnvAPIURL        = "CLUSTERDASH_API_URL"
    EnvTimeout       = "CLUSTERDASH_TIMEOUT"
    EnvUploadTimeout = "CLUSTERDASH_UPLOAD_TIMEOUT"
    EnvPollInterval  = "CLUSTERDASH_POLL_INTERVAL"
    EnvLogFormat     = "CLUSTERDASH_LOG_FORMAT"
    EnvLogJSON       = "CLUSTERDASH_LOG_JSON"
    EnvLogLevel      = "CLUSTERDASH_LOG_LEVEL"
    EnvMetricsAddr   = "CLUSTERDASH_METRICS_ADDR"
    EnvDNSCache      = "CLUSTERDASH_DNS_CACHE"
    EnvTLSCA         = "CLUSTERDASH_TLS_CA"
    EnvTLSCert       = "CLUSTERDASH_TLS_CERT"
    EnvTLSKey        = "CLUSTERDASH_TLS_KEY"
    EnvTLSInsecure   = "CLUSTERDASH_TLS_INSECURE"
    EnvTLSServerName = "CLUSTERDASH_TLS_SERVER_NAME"
)

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(env lookupFunc) error {
    str := func(key string, dst *string) {
        if v, ok := env(key); ok && strings.TrimSpace(v) != "" { *dst = strings.TrimSpace(v) }
    }
    dur := func(key string, dst *Duration) error {
        v, ok := env(key)
        if !ok || strings.TrimSpace(v) == "" { return nil }
        d, err := time.ParseDuration(strings.TrimSpace(v))
        if err != nil { return fmt.Errorf("%s: %w", key, err) }
        *dst = Duration(d)
        return nil
    }
    boolean := func(key string, dst *bool) error {
        v, ok := env(key)
        if !ok || strings.TrimSpace(v) == "" { return nil }
        b, err := strconv.ParseBool(strings.TrimSpace(v))
        if err != nil { return fmt.Errorf("%s: %w", key, err) }
        *dst = b
        return nil
    }

    str(EnvAPIURL, &c.API.URL)
    if err := dur(EnvTimeout, &c.API.Timeout); err != nil { return err }
    if err := dur(EnvUploadTimeout, &c.API.UploadTimeout); err != nil { return err }
    if err := dur(EnvPollInterval, &c.Poll.Interval); err != nil { return err }
    str(EnvLogFormat, &c.Logging.Format)
    var logJSON bool
    if err := boolean(EnvLogJSON, &logJSON); err != nil { return err }
    if logJSON { c.Logging.Format = "json" }
    str(EnvLogLevel, &c.Logging.Level)
    str(EnvMetricsAddr, &c.Metrics.Addr)
    if err := boolean(EnvDNSCache, &c.Network.DNSCache); err != nil { return err }

    str(EnvTLSCA, &c.TLS.CAFile)
    str(EnvTLSCert, &c.TLS.CertFile)
    str(EnvTLSKey, &c.TLS.KeyFile)
    str(EnvTLSServerName, &c.TLS.ServerName)
    if err := boolean(EnvTLSInsecure, &c.TLS.InsecureSkipVerify); err != nil { return err }
    if c.TLS.CAFile != "" || c.TLS.CertFile != "" || c.TLS.InsecureSkipVerify { c.TLS.Enable = true }
    return nil
}
