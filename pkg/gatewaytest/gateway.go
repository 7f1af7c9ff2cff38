// Package gatewaytest provides an in-memory video gateway speaking the same
// HTTP API as the real one. It backs tests and local demos.
package gatewaytest

import (
    "context"
    "crypto/tls"
    "encoding/json"
    "errors"
    "fmt"
    "io"
    "net"
    "net/http"
    "path/filepath"
    "strings"
    "sync"
    "time"

    "github.com/prometheus/client_golang/prometheus/promhttp"
    "github.com/rs/zerolog"

    "github.com/amirimatin/clusterdash/internal/logutil"
    "github.com/amirimatin/clusterdash/pkg/api"
    "github.com/amirimatin/clusterdash/pkg/observability/tracing"
)

// Gateway holds the cluster snapshot and catalog it serves.
type Gateway struct {
    log    zerolog.Logger
    now    func() time.Time
    tlsCfg *tls.Config

    mu          sync.Mutex
    snapshot    api.ClusterSnapshot
    videos      []api.VideoRecord
    unavailable string
    reject      func(name string) error
    uploads     int
}

// New returns a gateway reporting snap and an empty catalog.
func New(snap api.ClusterSnapshot, log zerolog.Logger) *Gateway {
    return &Gateway{snapshot: snap, log: log, now: time.Now}
}

// Healthy returns a snapshot with leader n1 and the given healthy followers.
func Healthy(followers ...string) api.ClusterSnapshot {
    fs := make([]api.NodeStatus, 0, len(followers))
    for _, id := range followers {
        fs = append(fs, api.NodeStatus{ID: id, Status: api.HealthHealthy, URL: "http://" + id})
    }
    s, _ := api.NewClusterSnapshot(&api.NodeStatus{ID: "n1", Status: api.HealthHealthy, URL: "http://n1"}, fs, true)
    return s
}

// UseTLS makes Start serve HTTPS with cfg.
func (g *Gateway) UseTLS(cfg *tls.Config) *Gateway { g.tlsCfg = cfg; return g }

// SetSnapshot replaces the reported cluster status.
func (g *Gateway) SetSnapshot(s api.ClusterSnapshot) { g.mu.Lock(); g.snapshot = s; g.mu.Unlock() }

// SetUnavailable makes every read endpoint answer 503 with msg. An empty msg
// restores normal service.
func (g *Gateway) SetUnavailable(msg string) { g.mu.Lock(); g.unavailable = msg; g.mu.Unlock() }

// RejectUploads installs a hook; a non-nil error rejects the upload with 400.
func (g *Gateway) RejectUploads(fn func(name string) error) { g.mu.Lock(); g.reject = fn; g.mu.Unlock() }

// AddVideo appends v to the catalog.
func (g *Gateway) AddVideo(v api.VideoRecord) { g.mu.Lock(); g.videos = append(g.videos, v); g.mu.Unlock() }

// Videos returns a copy of the catalog.
func (g *Gateway) Videos() []api.VideoRecord {
    g.mu.Lock()
    defer g.mu.Unlock()
    return append([]api.VideoRecord(nil), g.videos...)
}

// Uploads returns the number of accepted uploads.
func (g *Gateway) Uploads() int { g.mu.Lock(); defer g.mu.Unlock(); return g.uploads }

// Handler returns the gateway's HTTP routes.
func (g *Gateway) Handler() http.Handler {
    mux := http.NewServeMux()
    mux.HandleFunc("GET /cluster/status", g.handleStatus)
    mux.HandleFunc("GET /videos", g.handleList)
    mux.HandleFunc("GET /videos/{id}", g.handleGet)
    mux.HandleFunc("GET /videos/{id}/stream", g.handleStream)
    mux.HandleFunc("GET /videos/{id}/thumbnail", g.handleStream)
    mux.HandleFunc("POST /upload", g.handleUpload)
    mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("ok")) })
    mux.Handle("GET /metrics", promhttp.Handler())
    return mux
}

// Start serves the gateway on bind until ctx is done and returns the bound
// address.
func (g *Gateway) Start(ctx context.Context, bind string) (string, error) {
    ln, err := net.Listen("tcp", bind)
    if err != nil { return "", err }
    srv := &http.Server{Handler: g.Handler(), ReadHeaderTimeout: 5 * time.Second}
    if g.tlsCfg != nil { ln = tls.NewListener(ln, g.tlsCfg) }
    go func() {
        if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
            g.log.Error().Err(err).Msg("gateway server error")
        }
    }()
    go func() {
        <-ctx.Done()
        sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
        defer cancel()
        _ = srv.Shutdown(sctx)
    }()
    logutil.Infof(g.log, "gateway listening on %s", ln.Addr())
    return ln.Addr().String(), nil
}

func (g *Gateway) down(w http.ResponseWriter) bool {
    g.mu.Lock()
    msg := g.unavailable
    g.mu.Unlock()
    if msg == "" { return false }
    http.Error(w, msg, http.StatusServiceUnavailable)
    return true
}

func (g *Gateway) handleStatus(w http.ResponseWriter, r *http.Request) {
    _, span := tracing.StartSpan(r.Context(), "gateway.status")
    defer span.End(nil)
    if g.down(w) { return }
    g.mu.Lock()
    s := g.snapshot
    g.mu.Unlock()
    writeJSON(w, s)
}

func (g *Gateway) handleList(w http.ResponseWriter, r *http.Request) {
    if g.down(w) { return }
    writeJSON(w, g.Videos())
}

func (g *Gateway) handleGet(w http.ResponseWriter, r *http.Request) {
    if g.down(w) { return }
    v, ok := g.find(r.PathValue("id"))
    if !ok { http.Error(w, "Video not found", http.StatusNotFound); return }
    writeJSON(w, v)
}

func (g *Gateway) handleStream(w http.ResponseWriter, r *http.Request) {
    if _, ok := g.find(r.PathValue("id")); !ok { http.Error(w, "Video not found", http.StatusNotFound); return }
    w.Header().Set("Content-Type", "application/octet-stream")
    w.WriteHeader(http.StatusOK)
}

func (g *Gateway) find(id string) (api.VideoRecord, bool) {
    g.mu.Lock()
    defer g.mu.Unlock()
    for _, v := range g.videos {
        if v.ID == id { return v, true }
    }
    return api.VideoRecord{}, false
}

func (g *Gateway) handleUpload(w http.ResponseWriter, r *http.Request) {
    _, span := tracing.StartSpan(r.Context(), "gateway.upload")
    var spanErr error
    defer func() { span.End(spanErr) }()

    f, hdr, err := r.FormFile("file")
    if err != nil { spanErr = err; http.Error(w, "Upload failed: "+err.Error(), http.StatusBadRequest); return }
    defer f.Close()
    n, err := io.Copy(io.Discard, f)
    if err != nil { spanErr = err; http.Error(w, "Upload failed: "+err.Error(), http.StatusBadRequest); return }

    g.mu.Lock()
    reject := g.reject
    g.mu.Unlock()
    if reject != nil {
        if err := reject(hdr.Filename); err != nil {
            spanErr = err
            http.Error(w, "Upload failed: "+err.Error(), http.StatusBadRequest)
            return
        }
    }

    base := strings.TrimSuffix(filepath.Base(hdr.Filename), filepath.Ext(hdr.Filename))
    id := fmt.Sprintf("%d_%s", g.now().Unix(), base)
    v := api.VideoRecord{
        ID:           id,
        Title:        base,
        Bucket:       "videos",
        Object:       hdr.Filename,
        ThumbnailRef: "/videos/" + id + "/thumbnail",
        SizeBytes:    n,
        ContentType:  hdr.Header.Get("Content-Type"),
        UploadedAt:   g.now().UTC(),
        Resolutions:  []string{"original"},
    }
    g.mu.Lock()
    g.videos = append(g.videos, v)
    g.uploads++
    g.mu.Unlock()
    g.log.Info().Str("id", id).Int64("size", n).Str("request_id", r.Header.Get("X-Request-ID")).Msg("upload stored")
    writeJSON(w, v)
}

func writeJSON(w http.ResponseWriter, v any) {
    w.Header().Set("Content-Type", "application/json")
    _ = json.NewEncoder(w).Encode(v)
}
