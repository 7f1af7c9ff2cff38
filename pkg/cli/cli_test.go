package cli

import (
    "bytes"
    "encoding/json"
    "io"
    "net/http"
    "net/http/httptest"
    "os"
    "path/filepath"
    "strings"
    "testing"

    "github.com/spf13/cobra"
    "github.com/stretchr/testify/require"
)

const (
    statusJSON = `{"leader":{"id":"n1","is_leader":true,"status":"healthy","url":"http://n1"},
"followers":[{"id":"n2","is_leader":false,"status":"down","url":"http://n2"}],"healthy":true}`
    videosJSON = `[{"id":"1755_intro","title":"intro","bucket":"videos","object":"intro.mp4","size":1048576,
"content_type":"video/mp4","uploaded_at":"2025-08-13T10:00:00Z","resolutions":["original","720p"]}]`
    videoJSON = `{"id":"1755_intro","title":"intro","bucket":"videos","object":"intro.mp4","size":1048576,
"content_type":"video/mp4","uploaded_at":"2025-08-13T10:00:00Z","resolutions":["original"]}`
)

func gateway(t *testing.T) *httptest.Server {
    t.Helper()
    mux := http.NewServeMux()
    mux.HandleFunc("/cluster/status", func(w http.ResponseWriter, r *http.Request) { _, _ = io.WriteString(w, statusJSON) })
    mux.HandleFunc("/videos", func(w http.ResponseWriter, r *http.Request) { _, _ = io.WriteString(w, videosJSON) })
    mux.HandleFunc("/videos/1755_intro", func(w http.ResponseWriter, r *http.Request) { _, _ = io.WriteString(w, videoJSON) })
    mux.HandleFunc("/upload", func(w http.ResponseWriter, r *http.Request) {
        f, hdr, err := r.FormFile("file")
        if err != nil { http.Error(w, err.Error(), http.StatusBadRequest); return }
        defer f.Close()
        if hdr.Filename == "reject.mp4" { http.Error(w, "Upload failed: unsupported", http.StatusBadRequest); return }
        _, _ = io.Copy(io.Discard, f)
        _, _ = io.WriteString(w, `{"id":"1755_clip","title":"clip","bucket":"videos","object":"clip.mp4","size":4096,"resolutions":[]}`)
    })
    srv := httptest.NewServer(mux)
    t.Cleanup(srv.Close)
    return srv
}

// run executes the CLI in an isolated home and working directory.
func run(t *testing.T, args ...string) (string, string, error) {
    t.Helper()
    t.Setenv("HOME", t.TempDir())
    t.Chdir(t.TempDir())
    for _, k := range []string{"CLUSTERDASH_API_URL", "CLUSTERDASH_LOG_FORMAT", "CLUSTERDASH_LOG_JSON", "CLUSTERDASH_METRICS_ADDR"} {
        t.Setenv(k, "")
    }
    root := &cobra.Command{Use: "clusterdash", SilenceUsage: true, SilenceErrors: true}
    AddAll(root)
    var stdout, stderr bytes.Buffer
    root.SetOut(&stdout)
    root.SetErr(&stderr)
    root.SetArgs(args)
    err := root.Execute()
    return stdout.String(), stderr.String(), err
}

func TestStatusTable(t *testing.T) {
    srv := gateway(t)
    out, _, err := run(t, "status", "--api-url", srv.URL)
    require.NoError(t, err)
    require.Contains(t, out, "Cluster: healthy  Leader: n1  Followers: 1")
    require.Contains(t, out, "leader")
    require.Contains(t, out, "degraded")
}

func TestStatusJSON(t *testing.T) {
    srv := gateway(t)
    out, _, err := run(t, "status", "--json", "--api-url", srv.URL)
    require.NoError(t, err)
    var got struct {
        Leader    struct{ ID string `json:"id"` } `json:"leader"`
        Followers []struct {
            IsLeader bool   `json:"is_leader"`
            Status   string `json:"status"`
        } `json:"followers"`
        Healthy bool `json:"healthy"`
    }
    require.NoError(t, json.Unmarshal([]byte(out), &got))
    require.Equal(t, "n1", got.Leader.ID)
    require.True(t, got.Healthy)
    require.Len(t, got.Followers, 1)
    require.Equal(t, "degraded", got.Followers[0].Status)
}

func TestVideosTable(t *testing.T) {
    srv := gateway(t)
    out, _, err := run(t, "videos", "--api-url", srv.URL)
    require.NoError(t, err)
    require.Contains(t, out, "1755_intro")
    require.Contains(t, out, "1.0 MiB")
    require.Contains(t, out, "1 videos")
    require.Contains(t, out, "1.00 MB")
}

func TestVideoAndURLs(t *testing.T) {
    srv := gateway(t)
    out, _, err := run(t, "video", "1755_intro", "--api-url", srv.URL)
    require.NoError(t, err)
    require.Contains(t, out, srv.URL+"/videos/1755_intro/stream")
    require.Contains(t, out, "videos/intro.mp4")

    out, _, err = run(t, "urls", "my clip", "--api-url", "http://gw:8080/")
    require.NoError(t, err)
    require.Equal(t, "stream:    http://gw:8080/videos/my%20clip/stream\nthumbnail: http://gw:8080/videos/my%20clip/thumbnail\n", out)
}

func TestUpload(t *testing.T) {
    srv := gateway(t)
    dir := t.TempDir()
    path := filepath.Join(dir, "clip.mp4")
    require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte("x"), 4096), 0o600))

    out, errOut, err := run(t, "upload", path, "--api-url", srv.URL)
    require.NoError(t, err)
    require.Contains(t, out, "1755_clip")
    require.Contains(t, errOut, "uploading clip.mp4: 0%")
    require.Contains(t, errOut, "uploading clip.mp4: 100%")

    rejected := filepath.Join(dir, "reject.mp4")
    require.NoError(t, os.WriteFile(rejected, []byte("nope"), 0o600))
    _, _, err = run(t, "upload", rejected, "--api-url", srv.URL)
    require.ErrorContains(t, err, "server-rejected")
    require.ErrorContains(t, err, "Upload failed: unsupported")

    empty := filepath.Join(dir, "empty.mp4")
    require.NoError(t, os.WriteFile(empty, nil, 0o600))
    _, _, err = run(t, "upload", empty, "--api-url", srv.URL)
    require.ErrorContains(t, err, "invalid-file")
}

func TestWatchCount(t *testing.T) {
    srv := gateway(t)
    out, _, err := run(t, "watch", "--count", "2", "--interval", "10ms", "--api-url", srv.URL)
    require.NoError(t, err)
    lines := strings.Split(strings.TrimSpace(out), "\n")
    require.Len(t, lines, 2)
    for _, l := range lines {
        require.Contains(t, l, "cluster=healthy leader=n1 followers=0/1 videos=1 storage=1.00 MB [720p:1 original:1]")
    }
}

func TestWatchReportsFailures(t *testing.T) {
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        http.Error(w, "no leader available", http.StatusServiceUnavailable)
    }))
    defer srv.Close()
    out, _, err := run(t, "watch", "--count", "1", "--interval", "10ms", "--api-url", srv.URL)
    require.NoError(t, err)
    require.Contains(t, out, "no data yet")
    require.Contains(t, out, "no leader available")
}

func TestStatusUnreachable(t *testing.T) {
    srv := httptest.NewServer(http.NotFoundHandler())
    url := srv.URL
    srv.Close()
    _, _, err := run(t, "status", "--api-url", url, "--timeout", "1s")
    require.ErrorContains(t, err, "network")
}

func TestBadConfigFlag(t *testing.T) {
    _, _, err := run(t, "status", "--api-url", "ftp://nowhere")
    require.Error(t, err)
}
