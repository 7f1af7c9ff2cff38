package httpjson

import (
    "context"
    "fmt"
    "net"
    "time"

    "github.com/rs/dnscache"
    "github.com/rs/zerolog"
)

// UseDNSCache routes connection setup through a caching resolver. The cache
// is refreshed every refresh interval until ctx is done.
func (c *Client) UseDNSCache(ctx context.Context, refresh time.Duration, log zerolog.Logger) *Client {
    if c.transport == nil { return c }
    if refresh <= 0 { refresh = 5 * time.Minute }
    r := &dnscache.Resolver{}
    go func() {
        t := time.NewTicker(refresh)
        defer t.Stop()
        for {
            select {
            case <-ctx.Done():
                return
            case <-t.C:
                r.Refresh(true)
                log.Debug().Dur("refresh", refresh).Msg("dns cache refreshed")
            }
        }
    }()
    c.transport.DialContext = cachedDialer(r, &net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second})
    return c
}

func cachedDialer(r *dnscache.Resolver, d *net.Dialer) func(ctx context.Context, network, addr string) (net.Conn, error) {
    return func(ctx context.Context, network, addr string) (net.Conn, error) {
        host, port, err := net.SplitHostPort(addr)
        if err != nil { return nil, err }
        if net.ParseIP(host) != nil { return d.DialContext(ctx, network, addr) }
        ips, err := r.LookupHost(ctx, host)
        if err != nil { return nil, err }
        var lastErr error
        for _, ip := range ips {
            conn, err := d.DialContext(ctx, network, net.JoinHostPort(ip, port))
            if err == nil { return conn, nil }
            lastErr = err
        }
        if lastErr == nil { lastErr = fmt.Errorf("no addresses for %s", host) }
        return nil, lastErr
    }
}
