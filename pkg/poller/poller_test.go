package poller

import (
    "bytes"
    "context"
    "errors"
    "sync"
    "sync/atomic"
    "testing"
    "time"

    "github.com/prometheus/client_golang/prometheus/testutil"
    "github.com/rs/zerolog"
    "github.com/stretchr/testify/require"

    "github.com/amirimatin/clusterdash/pkg/api"
    obsmetrics "github.com/amirimatin/clusterdash/pkg/observability/metrics"
)

type fakeSource struct {
    status func(ctx context.Context) (api.ClusterSnapshot, error)
    videos func(ctx context.Context) ([]api.VideoRecord, error)
}

func (f *fakeSource) GetClusterStatus(ctx context.Context) (api.ClusterSnapshot, error) { return f.status(ctx) }
func (f *fakeSource) ListVideos(ctx context.Context) ([]api.VideoRecord, error)        { return f.videos(ctx) }

func healthySnapshot(t *testing.T) api.ClusterSnapshot {
    t.Helper()
    s, err := api.NewClusterSnapshot(
        &api.NodeStatus{ID: "n1", Status: api.HealthHealthy, URL: "http://n1"},
        []api.NodeStatus{{ID: "n2", Status: api.HealthHealthy, URL: "http://n2"}},
        true)
    require.NoError(t, err)
    return s
}

func okSource(t *testing.T) *fakeSource {
    snap := healthySnapshot(t)
    return &fakeSource{
        status: func(context.Context) (api.ClusterSnapshot, error) { return snap, nil },
        videos: func(context.Context) ([]api.VideoRecord, error) {
            return []api.VideoRecord{{ID: "v1", SizeBytes: 1048576}}, nil
        },
    }
}

func waitResult(t *testing.T, ch <-chan Result) Result {
    t.Helper()
    select {
    case r := <-ch:
        return r
    case <-time.After(2 * time.Second):
        t.Fatalf("timed out waiting for poll result")
        return Result{}
    }
}

func TestStart_Validation(t *testing.T) {
    p, err := New(okSource(t), Options{})
    require.NoError(t, err)
    _, err = p.Start(context.Background(), 0, func(Result) {})
    require.ErrorIs(t, err, ErrInvalidInterval)
    _, err = p.Start(context.Background(), time.Second, nil)
    require.Error(t, err)
    _, err = New(nil, Options{})
    require.Error(t, err)
}

func TestPoll_ImmediateOk(t *testing.T) {
    p, err := New(okSource(t), Options{})
    require.NoError(t, err)
    results := make(chan Result, 4)
    h, err := p.Start(context.Background(), time.Hour, func(r Result) { results <- r })
    require.NoError(t, err)
    defer h.Stop()

    r := waitResult(t, results)
    require.True(t, r.OK())
    require.Equal(t, uint64(1), r.Cycle)
    l, ok := r.Snapshot.Leader()
    require.True(t, ok)
    require.True(t, l.IsLeader)
    for _, f := range r.Snapshot.Followers() {
        require.False(t, f.IsLeader)
    }
    require.Len(t, r.Videos, 1)
}

func TestPoll_RepeatsOnInterval(t *testing.T) {
    p, err := New(okSource(t), Options{})
    require.NoError(t, err)
    results := make(chan Result, 16)
    h, err := p.Start(context.Background(), 10*time.Millisecond, func(r Result) { results <- r })
    require.NoError(t, err)
    defer h.Stop()

    for want := uint64(1); want <= 3; want++ {
        r := waitResult(t, results)
        require.Equal(t, want, r.Cycle)
    }
}

func TestPoll_PartialFailureIsErr(t *testing.T) {
    src := okSource(t)
    src.videos = func(context.Context) ([]api.VideoRecord, error) {
        return nil, api.StatusError(api.KindServer, "list_videos", 503, []byte("no leader available"))
    }
    p, err := New(src, Options{})
    require.NoError(t, err)
    results := make(chan Result, 1)
    h, err := p.Start(context.Background(), time.Hour, func(r Result) { results <- r })
    require.NoError(t, err)
    defer h.Stop()

    r := waitResult(t, results)
    require.False(t, r.OK())
    require.Equal(t, api.KindServer, r.Err.Kind)
    require.Nil(t, r.Videos)
    _, hasLeader := r.Snapshot.Leader()
    require.False(t, hasLeader, "status from a failed cycle must be discarded")
}

func TestPoll_CatalogTimeout(t *testing.T) {
    src := okSource(t)
    src.videos = func(ctx context.Context) ([]api.VideoRecord, error) {
        <-ctx.Done()
        return nil, ctx.Err()
    }
    p, err := New(src, Options{CycleTimeout: 30 * time.Millisecond})
    require.NoError(t, err)
    results := make(chan Result, 1)
    h, err := p.Start(context.Background(), time.Hour, func(r Result) { results <- r })
    require.NoError(t, err)
    defer h.Stop()

    r := waitResult(t, results)
    require.False(t, r.OK())
    require.Equal(t, api.KindTimeout, r.Err.Kind)
    require.ErrorIs(t, r.Err, api.ErrTimeout)
}

func TestPoll_UnclassifiedErrorsAreNormalized(t *testing.T) {
    src := okSource(t)
    src.status = func(context.Context) (api.ClusterSnapshot, error) {
        return api.ClusterSnapshot{}, errors.New("connection reset by peer")
    }
    p, err := New(src, Options{})
    require.NoError(t, err)
    results := make(chan Result, 1)
    h, err := p.Start(context.Background(), time.Hour, func(r Result) { results <- r })
    require.NoError(t, err)
    defer h.Stop()

    r := waitResult(t, results)
    require.Equal(t, api.KindNetwork, r.Err.Kind)
}

func TestPoll_PanicBecomesMalformed(t *testing.T) {
    src := okSource(t)
    src.status = func(context.Context) (api.ClusterSnapshot, error) { panic("nil map") }
    p, err := New(src, Options{})
    require.NoError(t, err)
    results := make(chan Result, 1)
    h, err := p.Start(context.Background(), time.Hour, func(r Result) { results <- r })
    require.NoError(t, err)
    defer h.Stop()

    r := waitResult(t, results)
    require.Equal(t, api.KindMalformed, r.Err.Kind)
}

func TestPoll_CyclesNeverOverlap(t *testing.T) {
    var (
        mu      sync.Mutex
        events  []string
        active  atomic.Int32
        maxSeen atomic.Int32
    )
    record := func(e string) { mu.Lock(); events = append(events, e); mu.Unlock() }
    src := okSource(t)
    snap := healthySnapshot(t)
    src.status = func(ctx context.Context) (api.ClusterSnapshot, error) {
        if n := active.Add(1); n > maxSeen.Load() { maxSeen.Store(n) }
        defer active.Add(-1)
        record("start")
        // Each cycle outlasts several intervals.
        select {
        case <-time.After(25 * time.Millisecond):
        case <-ctx.Done():
        }
        return snap, nil
    }
    p, err := New(src, Options{})
    require.NoError(t, err)
    h, err := p.Start(context.Background(), 5*time.Millisecond, func(Result) { record("result") })
    require.NoError(t, err)
    time.Sleep(150 * time.Millisecond)
    h.Stop()
    <-h.Done()

    require.Equal(t, int32(1), maxSeen.Load())
    mu.Lock()
    defer mu.Unlock()
    require.GreaterOrEqual(t, len(events), 4)
    for i, e := range events {
        want := "start"
        if i%2 == 1 { want = "result" }
        require.Equal(t, want, e, "event %d in %v", i, events)
    }
}

func TestStop_NoCallbackAfterReturn(t *testing.T) {
    release := make(chan struct{})
    entered := make(chan struct{}, 1)
    src := okSource(t)
    snap := healthySnapshot(t)
    src.status = func(ctx context.Context) (api.ClusterSnapshot, error) {
        entered <- struct{}{}
        <-release
        return snap, nil
    }
    p, err := New(src, Options{})
    require.NoError(t, err)
    var calls atomic.Int32
    h, err := p.Start(context.Background(), time.Hour, func(Result) { calls.Add(1) })
    require.NoError(t, err)

    <-entered
    h.Stop()
    h.Stop()
    close(release)
    select {
    case <-h.Done():
    case <-time.After(2 * time.Second):
        t.Fatal("poller did not exit after stop")
    }
    require.Equal(t, int32(0), calls.Load())
}

func TestStop_InsideCallback(t *testing.T) {
    p, err := New(okSource(t), Options{})
    require.NoError(t, err)
    var (
        h     *Handle
        ready = make(chan struct{})
        calls atomic.Int32
    )
    h, err = p.Start(context.Background(), time.Millisecond, func(Result) {
        <-ready
        calls.Add(1)
        h.Stop()
    })
    require.NoError(t, err)
    close(ready)

    select {
    case <-h.Done():
    case <-time.After(2 * time.Second):
        t.Fatal("Stop inside onResult did not return")
    }
    require.Equal(t, int32(1), calls.Load())
}

func TestStop_DuringCallbackDoesNotBlock(t *testing.T) {
    p, err := New(okSource(t), Options{})
    require.NoError(t, err)
    inCallback := make(chan struct{})
    release := make(chan struct{})
    var calls atomic.Int32
    h, err := p.Start(context.Background(), time.Millisecond, func(Result) {
        if calls.Add(1) == 1 { close(inCallback) }
        <-release
    })
    require.NoError(t, err)

    <-inCallback
    stopped := make(chan struct{})
    go func() { h.Stop(); close(stopped) }()
    select {
    case <-stopped:
    case <-time.After(2 * time.Second):
        t.Fatal("Stop blocked on a running callback")
    }
    close(release)
    <-h.Done()
    require.Equal(t, int32(1), calls.Load())
}

func TestStop_MidCycleIsNotAFailure(t *testing.T) {
    entered := make(chan struct{}, 1)
    src := okSource(t)
    src.videos = func(ctx context.Context) ([]api.VideoRecord, error) {
        entered <- struct{}{}
        <-ctx.Done()
        return nil, ctx.Err()
    }
    var buf bytes.Buffer
    p, err := New(src, Options{Logger: zerolog.New(&buf)})
    require.NoError(t, err)
    aborted := obsmetrics.PollCycles.WithLabelValues(string(api.KindAborted))
    before := testutil.ToFloat64(aborted)

    h, err := p.Start(context.Background(), time.Hour, func(Result) { t.Error("unexpected result") })
    require.NoError(t, err)
    <-entered
    h.Stop()
    <-h.Done()

    require.NotContains(t, buf.String(), "poll cycle failed")
    require.Equal(t, before, testutil.ToFloat64(aborted))
}

func TestContextCancelStopsLoop(t *testing.T) {
    p, err := New(okSource(t), Options{})
    require.NoError(t, err)
    ctx, cancel := context.WithCancel(context.Background())
    h, err := p.Start(ctx, 5*time.Millisecond, func(Result) {})
    require.NoError(t, err)
    cancel()
    select {
    case <-h.Done():
    case <-time.After(2 * time.Second):
        t.Fatal("poller did not exit after context cancel")
    }
}

func TestResultTimestampUsesClock(t *testing.T) {
    at := time.Date(2025, 8, 13, 12, 0, 0, 0, time.UTC)
    p, err := New(okSource(t), Options{Now: func() time.Time { return at }})
    require.NoError(t, err)
    results := make(chan Result, 1)
    h, err := p.Start(context.Background(), time.Hour, func(r Result) { results <- r })
    require.NoError(t, err)
    defer h.Stop()
    require.Equal(t, at, waitResult(t, results).At)
}
