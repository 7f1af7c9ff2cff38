// Package config resolves clusterdash settings from defaults, a TOML file,
// a dotenv file and CLUSTERDASH_* environment variables, in that order of
// increasing precedence. Command-line flags are layered on top by the CLI.
package config

import (
    "errors"
    "fmt"
    "io/fs"
    "os"
    "path/filepath"
    "strings"
    "time"

    "github.com/joho/godotenv"
    "github.com/pelletier/go-toml/v2"

    "github.com/amirimatin/clusterdash/pkg/security/tlsconfig"
    "github.com/amirimatin/clusterdash/pkg/transport/httpjson"
)

const (
    DefaultPollInterval = 5 * time.Second
    DefaultDNSRefresh   = 5 * time.Minute
    defaultPath         = "~/.config/clusterdash/config.toml"
)

// Duration is a time.Duration written as "10s" or "1m30s" in TOML.
type Duration time.Duration

func (d *Duration) UnmarshalText(b []byte) error {
    v, err := time.ParseDuration(strings.TrimSpace(string(b)))
    if err != nil { return err }
    *d = Duration(v)
    return nil
}

func (d Duration) MarshalText() ([]byte, error) { return []byte(time.Duration(d).String()), nil }

// API holds gateway connection settings.
type API struct {
    URL           string   `toml:"url"`
    Timeout       Duration `toml:"timeout"`
    UploadTimeout Duration `toml:"upload_timeout"` // 0 means same as timeout
}

// Poll holds status polling settings.
type Poll struct {
    Interval Duration `toml:"interval"`
}

// Logging holds log output settings.
type Logging struct {
    Format string `toml:"format"` // "console" or "json"
    Level  string `toml:"level"`
}

// Metrics holds the Prometheus listener used by watch.
type Metrics struct {
    Addr string `toml:"addr"` // empty disables
}

// Network holds dialer settings.
type Network struct {
    DNSCache   bool     `toml:"dns_cache"`
    DNSRefresh Duration `toml:"dns_refresh"`
}

// TLS mirrors tlsconfig.Options.
type TLS struct {
    Enable             bool   `toml:"enable"`
    CAFile             string `toml:"ca_file"`
    CertFile           string `toml:"cert_file"`
    KeyFile            string `toml:"key_file"`
    InsecureSkipVerify bool   `toml:"insecure_skip_verify"`
    ServerName         string `toml:"server_name"`
}

// Options converts the section into tlsconfig options.
func (t TLS) Options() tlsconfig.Options {
    return tlsconfig.Options{
        Enable:             t.Enable,
        CAFile:             t.CAFile,
        CertFile:           t.CertFile,
        KeyFile:            t.KeyFile,
        InsecureSkipVerify: t.InsecureSkipVerify,
        ServerName:         t.ServerName,
    }
}

// Config is the resolved clusterdash configuration.
type Config struct {
    API     API     `toml:"api"`
    Poll    Poll    `toml:"poll"`
    Logging Logging `toml:"logging"`
    Metrics Metrics `toml:"metrics"`
    Network Network `toml:"network"`
    TLS     TLS     `toml:"tls"`

    // Source is the config file that was read, empty when none was found.
    Source string `toml:"-"`
}

// Default returns the built-in configuration.
func Default() Config {
    return Config{
        API:     API{URL: httpjson.DefaultBaseURL, Timeout: Duration(httpjson.DefaultTimeout)},
        Poll:    Poll{Interval: Duration(DefaultPollInterval)},
        Logging: Logging{Format: "console", Level: "info"},
        Network: Network{DNSRefresh: Duration(DefaultDNSRefresh)},
    }
}

// LoadOptions selects the inputs of Load.
type LoadOptions struct {
    // Path is the config file. Empty searches ~/.config/clusterdash/config.toml
    // and tolerates its absence; an explicit path must exist.
    Path string
    // EnvFile is a dotenv file. Empty uses .env in the working directory if present.
    EnvFile string
    // LookupEnv reads the process environment. Defaults to os.LookupEnv.
    LookupEnv func(string) (string, bool)
}

// Load resolves and validates the configuration.
func Load(opts LoadOptions) (*Config, error) {
    cfg := Default()
    path, exists, err := resolvePath(opts.Path)
    if err != nil { return nil, err }
    if exists {
        if err := decodeFile(path, &cfg); err != nil { return nil, err }
        cfg.Source = path
    }

    dotenv, err := readEnvFile(opts.EnvFile)
    if err != nil { return nil, err }
    lookup := opts.LookupEnv
    if lookup == nil { lookup = os.LookupEnv }
    env := func(key string) (string, bool) {
        if v, ok := lookup(key); ok { return v, true }
        v, ok := dotenv[key]
        return v, ok
    }
    if err := cfg.applyEnv(env); err != nil { return nil, err }

    if err := cfg.Validate(); err != nil { return nil, err }
    return &cfg, nil
}

func decodeFile(path string, cfg *Config) error {
    f, err := os.Open(path)
    if err != nil { return fmt.Errorf("open config: %w", err) }
    defer f.Close()
    dec := toml.NewDecoder(f)
    dec.DisallowUnknownFields()
    if err := dec.Decode(cfg); err != nil {
        var strict *toml.StrictMissingError
        if errors.As(err, &strict) { return fmt.Errorf("parse config %s: %s", path, strict.String()) }
        return fmt.Errorf("parse config %s: %w", path, err)
    }
    return nil
}

func readEnvFile(path string) (map[string]string, error) {
    explicit := path != ""
    if !explicit { path = ".env" }
    m, err := godotenv.Read(path)
    if err != nil {
        if !explicit && errors.Is(err, fs.ErrNotExist) { return map[string]string{}, nil }
        return nil, fmt.Errorf("read env file: %w", err)
    }
    return m, nil
}

// DefaultPath returns the expanded default config file location.
func DefaultPath() (string, error) { return expandPath(defaultPath) }

func resolvePath(path string) (string, bool, error) {
    if path != "" {
        p, err := expandPath(path)
        if err != nil { return "", false, err }
        if _, err := os.Stat(p); err != nil { return "", false, fmt.Errorf("stat config: %w", err) }
        return p, true, nil
    }
    p, err := DefaultPath()
    if err != nil { return "", false, err }
    info, err := os.Stat(p)
    if err == nil && !info.IsDir() { return p, true, nil }
    return p, false, nil
}

func expandPath(p string) (string, error) {
    if strings.HasPrefix(p, "~") {
        home, err := os.UserHomeDir()
        if err != nil { return "", fmt.Errorf("resolve home directory: %w", err) }
        if p == "~" {
            p = home
        } else if len(p) > 1 && (p[1] == '/' || p[1] == '\\') {
            p = filepath.Join(home, p[2:])
        }
    }
    return filepath.Abs(filepath.Clean(p))
}
