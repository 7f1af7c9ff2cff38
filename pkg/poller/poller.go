// Package poller keeps a periodically refreshed view of cluster status and
// the video catalog.
//
// A Handle runs one cycle immediately and then one per interval. Cycles never
// overlap: a tick that fires while a cycle is in flight is skipped. Each cycle
// fetches status and catalog concurrently and yields exactly one Result; if
// either fetch fails the whole cycle fails, so a status/catalog pair always
// comes from the same cycle.
package poller

import (
    "context"
    "errors"
    "fmt"
    "sync"
    "time"

    "github.com/rs/zerolog"
    "go.opentelemetry.io/otel/attribute"
    "golang.org/x/sync/errgroup"

    "github.com/amirimatin/clusterdash/pkg/api"
    obsmetrics "github.com/amirimatin/clusterdash/pkg/observability/metrics"
    "github.com/amirimatin/clusterdash/pkg/observability/tracing"
    "github.com/amirimatin/clusterdash/pkg/transport"
)

const DefaultCycleTimeout = 10 * time.Second

var ErrInvalidInterval = errors.New("poller: interval must be positive")

// Result is the outcome of one poll cycle: either Snapshot and Videos, or Err.
type Result struct {
    Cycle    uint64
    At       time.Time
    Snapshot api.ClusterSnapshot
    Videos   []api.VideoRecord
    Err      *api.Error
}

// OK reports whether the cycle succeeded.
func (r Result) OK() bool { return r.Err == nil }

// Options tunes a Poller. The zero value is usable.
type Options struct {
    // CycleTimeout bounds one cycle (both fetches). Defaults to 10s.
    CycleTimeout time.Duration
    Logger       zerolog.Logger
    // Now is the clock used to stamp results.
    Now func() time.Time
}

// Poller fetches from a StatusSource. It is stateless between Start calls and
// may start any number of independent handles.
type Poller struct {
    src  transport.StatusSource
    opts Options
}

// New returns a Poller reading from src.
func New(src transport.StatusSource, opts Options) (*Poller, error) {
    if src == nil { return nil, errors.New("poller: nil status source") }
    if opts.CycleTimeout <= 0 { opts.CycleTimeout = DefaultCycleTimeout }
    if opts.Now == nil { opts.Now = time.Now }
    return &Poller{src: src, opts: opts}, nil
}

// Handle controls one running poll loop.
type Handle struct {
    p        *Poller
    interval time.Duration
    onResult func(Result)
    cancel   context.CancelFunc
    done     chan struct{}

    // mu guards stopped. A delivery checks stopped under mu and then calls
    // onResult without holding it, so Stop can run inside onResult.
    mu      sync.Mutex
    stopped bool
    once    sync.Once
}

// Start begins polling every interval and reports each cycle to onResult.
// The first cycle starts immediately. onResult is called from a single
// goroutine, never concurrently, and cycle N's call returns before cycle N+1
// begins fetching.
//
// Cancelling ctx stops the loop like Stop, without waiting.
func (p *Poller) Start(ctx context.Context, interval time.Duration, onResult func(Result)) (*Handle, error) {
    if interval <= 0 { return nil, ErrInvalidInterval }
    if onResult == nil { return nil, errors.New("poller: nil result callback") }
    if ctx == nil { ctx = context.Background() }
    runCtx, cancel := context.WithCancel(ctx)
    h := &Handle{p: p, interval: interval, onResult: onResult, cancel: cancel, done: make(chan struct{})}
    go h.run(runCtx)
    return h, nil
}

// Stop cancels the timer and any in-flight cycle. No onResult call starts
// after Stop returns; a call already underway finishes on its own, and Done
// reports when it has. Stop never blocks, is idempotent and may be called
// from inside onResult.
func (h *Handle) Stop() {
    h.once.Do(h.cancel)
    h.mu.Lock()
    h.stopped = true
    h.mu.Unlock()
}

// Done is closed once the loop and any in-flight cycle have exited.
func (h *Handle) Done() <-chan struct{} { return h.done }

func (h *Handle) run(ctx context.Context) {
    defer close(h.done)
    log := h.p.opts.Logger
    cycleDone := make(chan struct{}, 1)
    inFlight := false
    var n uint64
    launch := func() {
        inFlight = true
        n++
        cycle := n
        go func() {
            defer func() { cycleDone <- struct{}{} }()
            r := h.p.runCycle(ctx, cycle)
            h.deliver(ctx, r)
        }()
    }

    launch()
    t := time.NewTicker(h.interval)
    defer t.Stop()
    for {
        select {
        case <-ctx.Done():
            if inFlight { <-cycleDone }
            log.Debug().Uint64("cycles", n).Msg("poller stopped")
            return
        case <-cycleDone:
            inFlight = false
        case <-t.C:
            if inFlight {
                obsmetrics.PollSkippedTicks.Inc()
                log.Debug().Uint64("cycle", n).Msg("previous cycle still in flight, skipping tick")
                continue
            }
            launch()
        }
    }
}

func (h *Handle) deliver(ctx context.Context, r Result) {
    h.mu.Lock()
    live := !h.stopped && ctx.Err() == nil
    h.mu.Unlock()
    if live { h.onResult(r) }
}

// runCycle performs both fetches and folds them into one Result.
func (p *Poller) runCycle(runCtx context.Context, cycle uint64) Result {
    start, began := p.opts.Now(), time.Now()
    ctx, cancel := context.WithTimeout(runCtx, p.opts.CycleTimeout)
    defer cancel()
    ctx, span := tracing.StartSpan(ctx, "poll.cycle", attribute.Int64("cycle", int64(cycle)))

    var (
        snap   api.ClusterSnapshot
        videos []api.VideoRecord
    )
    g, gctx := errgroup.WithContext(ctx)
    g.Go(func() (err error) {
        defer recoverInto(&err, "get_cluster_status")
        snap, err = p.src.GetClusterStatus(gctx)
        return classify(gctx, "get_cluster_status", err)
    })
    g.Go(func() (err error) {
        defer recoverInto(&err, "list_videos")
        videos, err = p.src.ListVideos(gctx)
        return classify(gctx, "list_videos", err)
    })
    err := g.Wait()

    res := Result{Cycle: cycle, At: start}
    if err != nil {
        res.Err = api.Classify("poll", err)
    } else {
        res.Snapshot = snap
        res.Videos = videos
    }
    span.End(err)
    if res.Err != nil && runCtx.Err() != nil {
        // stopped mid-cycle; the result is never delivered
        p.opts.Logger.Debug().Uint64("cycle", cycle).Msg("poll cycle cancelled")
        return res
    }
    p.observe(res, time.Since(began))
    return res
}

func (p *Poller) observe(r Result, took time.Duration) {
    obsmetrics.PollDuration.Observe(took.Seconds())
    log := p.opts.Logger
    if r.Err != nil {
        obsmetrics.PollCycles.WithLabelValues(string(r.Err.Kind)).Inc()
        log.Warn().Uint64("cycle", r.Cycle).Str("kind", string(r.Err.Kind)).Err(r.Err).Dur("took", took).Msg("poll cycle failed")
        return
    }
    obsmetrics.PollCycles.WithLabelValues("ok").Inc()
    log.Debug().Uint64("cycle", r.Cycle).Int("videos", len(r.Videos)).Dur("took", took).Msg("poll cycle ok")
}

// classify normalizes errors from sources that do not return *api.Error.
// A deadline hit by the cycle bound is a timeout even if the source reported
// something else.
func classify(ctx context.Context, op string, err error) error {
    if err == nil { return nil }
    if api.KindOf(err) == "" && errors.Is(ctx.Err(), context.DeadlineExceeded) {
        return api.NewError(api.KindTimeout, op, err)
    }
    return api.Classify(op, err)
}

func recoverInto(err *error, op string) {
    if r := recover(); r != nil {
        *err = api.NewError(api.KindMalformed, op, fmt.Errorf("panic while fetching: %v", r))
    }
}
