package config

import (
    "errors"
    "fmt"
    "net"
    "net/url"
    "strings"
    "time"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
    if err := c.validateAPI(); err != nil { return err }
    if time.Duration(c.Poll.Interval) <= 0 { return errors.New("poll.interval must be positive") }
    if err := c.validateLogging(); err != nil { return err }
    if c.Metrics.Addr != "" {
        if _, _, err := net.SplitHostPort(c.Metrics.Addr); err != nil { return fmt.Errorf("metrics.addr: %w", err) }
    }
    if c.Network.DNSCache && time.Duration(c.Network.DNSRefresh) <= 0 { return errors.New("network.dns_refresh must be positive") }
    if (c.TLS.CertFile == "") != (c.TLS.KeyFile == "") { return errors.New("tls.cert_file and tls.key_file must be set together") }
    return nil
}

func (c *Config) validateAPI() error {
    u, err := url.Parse(c.API.URL)
    if err != nil { return fmt.Errorf("api.url: %w", err) }
    if u.Scheme != "http" && u.Scheme != "https" { return fmt.Errorf("api.url %q: scheme must be http or https", c.API.URL) }
    if u.Host == "" { return fmt.Errorf("api.url %q: missing host", c.API.URL) }
    if time.Duration(c.API.Timeout) <= 0 { return errors.New("api.timeout must be positive") }
    if time.Duration(c.API.UploadTimeout) < 0 { return errors.New("api.upload_timeout must not be negative") }
    return nil
}

func (c *Config) validateLogging() error {
    switch strings.ToLower(c.Logging.Format) {
    case "", "console", "text", "json":
    default:
        return fmt.Errorf("logging.format %q: want console or json", c.Logging.Format)
    }
    switch strings.ToLower(c.Logging.Level) {
    case "", "debug", "info", "warn", "warning", "error":
    default:
        return fmt.Errorf("logging.level %q: want debug, info, warn or error", c.Logging.Level)
    }
    return nil
}

// JSONLogs reports whether log output should be JSON.
func (c *Config) JSONLogs() bool { return strings.EqualFold(c.Logging.Format, "json") }

// Timeout returns the per-request bound.
func (c *Config) Timeout() time.Duration { return time.Duration(c.API.Timeout) }

// UploadTimeout returns the upload bound, falling back to Timeout.
func (c *Config) UploadTimeout() time.Duration {
    if c.API.UploadTimeout > 0 { return time.Duration(c.API.UploadTimeout) }
    return c.Timeout()
}

// PollInterval returns the watch refresh cadence.
func (c *Config) PollInterval() time.Duration { return time.Duration(c.Poll.Interval) }
