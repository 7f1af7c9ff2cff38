// Package upload runs single video uploads and reports their progress as a
// monotonic percentage followed by exactly one terminal Outcome.
package upload

import (
    "context"
    "errors"
    "fmt"
    "sync"
    "sync/atomic"
    "time"

    "github.com/google/uuid"
    "github.com/rs/zerolog"
    "go.opentelemetry.io/otel/attribute"

    "github.com/amirimatin/clusterdash/pkg/api"
    obsmetrics "github.com/amirimatin/clusterdash/pkg/observability/metrics"
    "github.com/amirimatin/clusterdash/pkg/observability/tracing"
    "github.com/amirimatin/clusterdash/pkg/transport"
)

const op = "upload"

// State is the lifecycle position of an upload.
type State int

const (
    Pending State = iota
    Succeeded
    Failed
)

func (s State) String() string {
    switch s {
    case Pending:
        return "pending"
    case Succeeded:
        return "succeeded"
    case Failed:
        return "failed"
    default:
        return fmt.Sprintf("state(%d)", int(s))
    }
}

// Outcome is the result of Run. Video is set when State is Succeeded, Err
// when State is Failed.
type Outcome struct {
    State   State
    Percent int
    Video   api.VideoRecord
    Err     *api.Error
}

// OK reports whether the upload succeeded.
func (o Outcome) OK() bool { return o.State == Succeeded }

func failed(percent int, err *api.Error) Outcome {
    return Outcome{State: Failed, Percent: percent, Err: err}
}

// Options tunes a Session. The zero value is usable.
type Options struct {
    Logger zerolog.Logger
    // NewRequestID generates the X-Request-ID value. Defaults to a random UUID.
    NewRequestID func() string
}

// Session is a single-use upload. Run may be called once; Abort may be
// called at any time from any goroutine, the progress callback included.
type Session struct {
    up        transport.Uploader
    log       zerolog.Logger
    requestID string

    mu      sync.Mutex
    used    bool
    aborted bool
    cancel  context.CancelFunc

    progress tracker
    sent     atomic.Int64
}

// New returns a Session submitting through up.
func New(up transport.Uploader, opts Options) *Session {
    if opts.NewRequestID == nil { opts.NewRequestID = uuid.NewString }
    id := opts.NewRequestID()
    return &Session{
        up:        up,
        requestID: id,
        log:       opts.Logger.With().Str("request_id", id).Logger(),
    }
}

// RequestID returns the id sent with the upload request.
func (s *Session) RequestID() string { return s.requestID }

// Run uploads f and blocks until the upload resolves. onProgress, if not
// nil, receives non-decreasing percentages in [0,100], each value at most
// once. No call starts after Abort returns and none runs after Run returns.
func (s *Session) Run(ctx context.Context, f File, onProgress func(int)) Outcome {
    if ctx == nil { ctx = context.Background() }
    s.mu.Lock()
    if s.used {
        s.mu.Unlock()
        return failed(0, api.NewError(api.KindInvalidFile, op, errors.New("session already used")))
    }
    s.used = true
    if s.aborted {
        s.mu.Unlock()
        return s.finish(failed(0, api.NewError(api.KindAborted, op, errors.New("aborted before start"))), f, 0)
    }
    runCtx, cancel := context.WithCancel(ctx)
    s.cancel = cancel
    s.mu.Unlock()
    defer cancel()

    if err := f.validate(); err != nil {
        return s.finish(failed(0, api.NewError(api.KindInvalidFile, op, err)), f, 0)
    }
    rc, err := f.Open()
    if err != nil {
        return s.finish(failed(0, api.NewError(api.KindInvalidFile, op, fmt.Errorf("open %s: %w", f.Name, err))), f, 0)
    }
    defer rc.Close()

    runCtx, span := tracing.StartSpan(runCtx, "upload.run",
        attribute.String("request.id", s.requestID),
        attribute.String("file.name", f.Name),
        attribute.Int64("file.size", f.Size))
    began := time.Now()
    s.log.Info().Str("file", f.Name).Int64("size", f.Size).Msg("upload started")

    s.progress.bind(runCtx, onProgress)
    s.progress.observe(0, f.Size)
    v, err := s.up.Upload(runCtx, transport.UploadRequest{
        FileName:  f.Name,
        Size:      f.Size,
        Body:      rc,
        RequestID: s.requestID,
    }, func(sent, total int64) {
        if total <= 0 { total = f.Size }
        s.sent.Store(sent)
        s.progress.observe(sent, total)
    })

    var out Outcome
    switch {
    case s.isAborted():
        out = failed(s.progress.last(), api.NewError(api.KindAborted, op, context.Canceled))
    case err != nil:
        out = failed(s.progress.last(), api.Classify(op, err))
    default:
        if verr := v.Validate(); verr != nil {
            out = failed(s.progress.last(), api.NewError(api.KindMalformed, op, verr))
            break
        }
        s.progress.observe(f.Size, f.Size)
        span.SetAttributes(attribute.String("video.id", v.ID))
        out = Outcome{State: Succeeded, Percent: 100, Video: v}
    }
    var spanErr error
    if out.Err != nil { spanErr = out.Err }
    span.End(spanErr)
    return s.finish(out, f, time.Since(began))
}

// Abort cancels an upload in progress, or the next Run if none started yet.
// No progress callback starts once Abort returns. It does not wait for one
// already running, so it is safe to call from inside onProgress.
func (s *Session) Abort() {
    s.mu.Lock()
    s.aborted = true
    cancel := s.cancel
    s.mu.Unlock()
    if cancel != nil { cancel() }
    s.progress.close()
}

func (s *Session) isAborted() bool {
    s.mu.Lock()
    defer s.mu.Unlock()
    return s.aborted
}

// finish closes progress delivery and records the terminal outcome.
func (s *Session) finish(out Outcome, f File, took time.Duration) Outcome {
    s.progress.drain()
    obsmetrics.UploadedBytes.Add(float64(s.sent.Load()))
    if out.Err != nil {
        obsmetrics.Uploads.WithLabelValues(string(out.Err.Kind)).Inc()
        s.log.Warn().Str("file", f.Name).Str("kind", string(out.Err.Kind)).Err(out.Err).Int("percent", out.Percent).Msg("upload failed")
        return out
    }
    obsmetrics.Uploads.WithLabelValues("ok").Inc()
    s.log.Info().Str("file", f.Name).Str("video_id", out.Video.ID).Dur("took", took).Msg("upload finished")
    return out
}

// tracker turns byte counts into callback-ready percentages. deliverMu keeps
// callbacks serialized in percent order; mu guards the state and is never held
// while the callback runs.
type tracker struct {
    deliverMu sync.Mutex

    mu      sync.Mutex
    ctx     context.Context
    fn      func(int)
    percent int
    emitted bool
    closed  bool
}

func (t *tracker) bind(ctx context.Context, fn func(int)) {
    t.mu.Lock()
    t.ctx, t.fn = ctx, fn
    t.mu.Unlock()
}

func (t *tracker) observe(sent, total int64) {
    p := Percent(sent, total)
    t.deliverMu.Lock()
    defer t.deliverMu.Unlock()
    t.mu.Lock()
    if t.closed || (t.ctx != nil && t.ctx.Err() != nil) || p < t.percent || (p == t.percent && t.emitted) {
        t.mu.Unlock()
        return
    }
    t.percent, t.emitted = p, true
    fn := t.fn
    t.mu.Unlock()
    if fn != nil { fn(p) }
}

func (t *tracker) last() int {
    t.mu.Lock()
    defer t.mu.Unlock()
    return t.percent
}

func (t *tracker) close() {
    t.mu.Lock()
    t.closed = true
    t.mu.Unlock()
}

// drain closes the tracker and waits for a callback in progress.
func (t *tracker) drain() {
    t.close()
    t.deliverMu.Lock()
    t.deliverMu.Unlock()
}

// Percent returns round(sent*100/total) clamped to [0,100]. A non-positive
// total yields 0.
func Percent(sent, total int64) int {
    if total <= 0 || sent <= 0 { return 0 }
    if sent >= total { return 100 }
    p := (sent*100 + total/2) / total
    if p > 100 { p = 100 }
    return int(p)
}
