package httpjson

import (
    "bytes"
    "context"
    "crypto/tls"
    "fmt"
    "io"
    "mime"
    "mime/multipart"
    "net/http"
    "net/textproto"
    "net/url"
    "path/filepath"
    "strings"
    "time"

    "go.opentelemetry.io/otel/attribute"

    "github.com/amirimatin/clusterdash/pkg/api"
    "github.com/amirimatin/clusterdash/pkg/observability/tracing"
    "github.com/amirimatin/clusterdash/pkg/transport"
)

const (
    DefaultBaseURL = "http://localhost:8080"
    DefaultTimeout = 10 * time.Second

    maxBodyBytes = 16 << 20
)

// Client is a thin HTTP client for the video gateway API. Every request is
// bounded by a timeout and failures are returned as *api.Error. The client
// does not retry; callers decide when to ask again.
type Client struct {
    base          string
    httpc         *http.Client
    transport     *http.Transport
    timeout       time.Duration
    uploadTimeout time.Duration
}

// NewClient constructs a Client for baseURL (scheme://host[:port][/prefix]).
// A non-positive timeout selects DefaultTimeout.
func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
    if timeout <= 0 { timeout = DefaultTimeout }
    if baseURL == "" { baseURL = DefaultBaseURL }
    u, err := url.Parse(baseURL)
    if err != nil { return nil, fmt.Errorf("httpjson: base url: %w", err) }
    if u.Scheme != "http" && u.Scheme != "https" { return nil, fmt.Errorf("httpjson: base url %q: scheme must be http or https", baseURL) }
    if u.Host == "" { return nil, fmt.Errorf("httpjson: base url %q: missing host", baseURL) }
    tr := http.DefaultTransport.(*http.Transport).Clone()
    return &Client{
        base:          strings.TrimRight(u.String(), "/"),
        httpc:         &http.Client{Transport: tr},
        transport:     tr,
        timeout:       timeout,
        uploadTimeout: timeout,
    }, nil
}

// UseTLS sets the TLS config for the underlying transport.
func (c *Client) UseTLS(cfg *tls.Config) *Client {
    if c.transport != nil { c.transport.TLSClientConfig = cfg }
    return c
}

// WithUploadTimeout bounds POST /upload separately from the other calls.
func (c *Client) WithUploadTimeout(d time.Duration) *Client {
    if d > 0 { c.uploadTimeout = d }
    return c
}

// BaseURL returns the normalized base URL.
func (c *Client) BaseURL() string { return c.base }

// Timeout returns the per-request bound for non-upload calls.
func (c *Client) Timeout() time.Duration { return c.timeout }

func (c *Client) endpoint(path string) string { return c.base + path }

func (c *Client) GetClusterStatus(ctx context.Context) (api.ClusterSnapshot, error) {
    const op = "get_cluster_status"
    b, err := c.get(ctx, op, "/cluster/status")
    if err != nil { return api.ClusterSnapshot{}, err }
    s, err := api.DecodeClusterSnapshot(b)
    if err != nil { return api.ClusterSnapshot{}, api.NewError(api.KindMalformed, op, err) }
    return s, nil
}

func (c *Client) ListVideos(ctx context.Context) ([]api.VideoRecord, error) {
    const op = "list_videos"
    b, err := c.get(ctx, op, "/videos")
    if err != nil { return nil, err }
    vs, err := api.DecodeVideos(b)
    if err != nil { return nil, api.NewError(api.KindMalformed, op, err) }
    return vs, nil
}

func (c *Client) GetVideo(ctx context.Context, id string) (api.VideoRecord, error) {
    const op = "get_video"
    if strings.TrimSpace(id) == "" { return api.VideoRecord{}, fmt.Errorf("httpjson: %s: empty video id", op) }
    b, err := c.get(ctx, op, "/videos/"+url.PathEscape(id))
    if err != nil { return api.VideoRecord{}, err }
    v, err := api.DecodeVideo(b)
    if err != nil { return api.VideoRecord{}, api.NewError(api.KindMalformed, op, err) }
    return v, nil
}

// StreamURL returns the playback URL of a video. Nothing is fetched.
func (c *Client) StreamURL(id string) string {
    return c.endpoint("/videos/" + url.PathEscape(id) + "/stream")
}

// ThumbnailURL returns the thumbnail URL of a video. Nothing is fetched.
func (c *Client) ThumbnailURL(id string) string {
    return c.endpoint("/videos/" + url.PathEscape(id) + "/thumbnail")
}

func (c *Client) get(ctx context.Context, op, path string) ([]byte, error) {
    ctx, cancel := context.WithTimeout(ctx, c.timeout)
    defer cancel()
    ctx, span := tracing.StartSpan(ctx, "http."+op, attribute.String("http.path", path))
    b, err := c.doGet(ctx, op, path)
    span.End(err)
    return b, err
}

func (c *Client) doGet(ctx context.Context, op, path string) ([]byte, error) {
    req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(path), nil)
    if err != nil { return nil, api.NewError(api.KindNetwork, op, err) }
    req.Header.Set("Accept", "application/json")
    resp, err := c.httpc.Do(req)
    if err != nil { return nil, classify(ctx, op, err) }
    defer resp.Body.Close()
    b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
    if err != nil { return nil, classify(ctx, op, err) }
    if resp.StatusCode < 200 || resp.StatusCode > 299 {
        return nil, api.StatusError(api.KindServer, op, resp.StatusCode, b)
    }
    return b, nil
}

// Upload streams req.Body as the multipart field "file" to POST /upload.
// progress observes file bytes as the transport consumes them.
func (c *Client) Upload(ctx context.Context, req transport.UploadRequest, progress transport.ProgressFunc) (api.VideoRecord, error) {
    const op = "upload"
    ctx, cancel := context.WithTimeout(ctx, c.uploadTimeout)
    defer cancel()
    ctx, span := tracing.StartSpan(ctx, "http.upload",
        attribute.String("file.name", req.FileName), attribute.Int64("file.size", req.Size))
    v, err := c.doUpload(ctx, op, req, progress)
    span.End(err)
    return v, err
}

func (c *Client) doUpload(ctx context.Context, op string, req transport.UploadRequest, progress transport.ProgressFunc) (api.VideoRecord, error) {
    if req.Body == nil || req.Size <= 0 {
        return api.VideoRecord{}, api.NewError(api.KindInvalidFile, op, fmt.Errorf("empty file %q", req.FileName))
    }
    head, tail, contentType, err := multipartFrame(req.FileName)
    if err != nil { return api.VideoRecord{}, api.NewError(api.KindInvalidFile, op, err) }

    file := &countingReader{r: io.LimitReader(req.Body, req.Size), total: req.Size, fn: progress}
    body := io.MultiReader(bytes.NewReader(head), file, bytes.NewReader(tail))
    httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/upload"), body)
    if err != nil { return api.VideoRecord{}, api.NewError(api.KindNetwork, op, err) }
    httpReq.ContentLength = int64(len(head)) + req.Size + int64(len(tail))
    httpReq.Header.Set("Content-Type", contentType)
    httpReq.Header.Set("Accept", "application/json")
    if req.RequestID != "" { httpReq.Header.Set("X-Request-ID", req.RequestID) }

    resp, err := c.httpc.Do(httpReq)
    if err != nil { return api.VideoRecord{}, classify(ctx, op, err) }
    defer resp.Body.Close()
    b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
    if err != nil { return api.VideoRecord{}, classify(ctx, op, err) }
    if resp.StatusCode < 200 || resp.StatusCode > 299 {
        return api.VideoRecord{}, api.StatusError(api.KindServerRejected, op, resp.StatusCode, b)
    }
    v, err := api.DecodeVideo(b)
    if err != nil { return api.VideoRecord{}, api.NewError(api.KindMalformed, op, err) }
    return v, nil
}

// multipartFrame renders the bytes surrounding the file content of a
// single-part form so the request can carry an exact Content-Length.
func multipartFrame(fileName string) (head, tail []byte, contentType string, err error) {
    var buf bytes.Buffer
    mw := multipart.NewWriter(&buf)
    name := filepath.Base(fileName)
    if name == "." || name == string(filepath.Separator) || name == "" { name = "upload.bin" }
    h := make(textproto.MIMEHeader)
    h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(name)))
    h.Set("Content-Type", contentTypeOf(name))
    if _, err := mw.CreatePart(h); err != nil { return nil, nil, "", err }
    head = append([]byte(nil), buf.Bytes()...)
    buf.Reset()
    if err := mw.Close(); err != nil { return nil, nil, "", err }
    tail = append([]byte(nil), buf.Bytes()...)
    return head, tail, mw.FormDataContentType(), nil
}

var videoTypes = map[string]string{
    ".mp4":  "video/mp4",
    ".m4v":  "video/x-m4v",
    ".mov":  "video/quicktime",
    ".mkv":  "video/x-matroska",
    ".webm": "video/webm",
    ".avi":  "video/x-msvideo",
    ".ts":   "video/mp2t",
}

func contentTypeOf(name string) string {
    ext := strings.ToLower(filepath.Ext(name))
    if ct, ok := videoTypes[ext]; ok { return ct }
    if ct := mime.TypeByExtension(ext); ct != "" { return ct }
    return "application/octet-stream"
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string { return quoteEscaper.Replace(s) }

type countingReader struct {
    r     io.Reader
    sent  int64
    total int64
    fn    transport.ProgressFunc
}

func (cr *countingReader) Read(p []byte) (int, error) {
    n, err := cr.r.Read(p)
    if n > 0 {
        cr.sent += int64(n)
        if cr.fn != nil { cr.fn(cr.sent, cr.total) }
    }
    return n, err
}

// classify prefers the request context's verdict: once the deadline passed or
// the caller cancelled, the transport error text is incidental.
func classify(ctx context.Context, op string, err error) *api.Error {
    if cerr := ctx.Err(); cerr != nil { return api.Classify(op, fmt.Errorf("%w (%v)", cerr, err)) }
    return api.Classify(op, err)
}

var _ transport.Backend = (*Client)(nil)
