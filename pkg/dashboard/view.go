package dashboard

import (
    "context"
    "sync"
    "time"

    "github.com/rs/zerolog"

    "github.com/amirimatin/clusterdash/pkg/api"
    obsmetrics "github.com/amirimatin/clusterdash/pkg/observability/metrics"
    "github.com/amirimatin/clusterdash/pkg/poller"
)

// State is what a dashboard displays. After a failed cycle the previous
// snapshot and catalog are kept and Stale is set.
type State struct {
    HasData   bool
    Snapshot  api.ClusterSnapshot
    Videos    []api.VideoRecord
    Metrics   DerivedMetrics
    Cycle     uint64
    UpdatedAt time.Time
    Stale     bool
    LastErr   *api.Error
    LastErrAt time.Time
    Failures  int // consecutive failed cycles
}

// View applies poll results in order and fans the resulting state out to
// subscribers. It is safe for concurrent use.
type View struct {
    log zerolog.Logger

    mu sync.RWMutex
    st State
    eb stateBus
}

// NewView returns an empty view.
func NewView(log zerolog.Logger) *View { return &View{log: log} }

// Apply folds r into the view. Results from cycles older than the last
// applied one are ignored.
func (v *View) Apply(r poller.Result) State {
    v.mu.Lock()
    if r.Cycle != 0 && r.Cycle < v.st.Cycle {
        st := v.st
        v.mu.Unlock()
        return st
    }
    if r.Cycle != 0 { v.st.Cycle = r.Cycle }
    if r.OK() {
        v.st.HasData = true
        v.st.Snapshot = r.Snapshot
        v.st.Videos = r.Videos
        v.st.Metrics = Compute(r.Snapshot, r.Videos)
        v.st.UpdatedAt = r.At
        v.st.Stale = false
        if v.st.Failures > 0 { v.log.Info().Int("after_failures", v.st.Failures).Msg("backend reachable again") }
        v.st.Failures = 0
        setGauges(v.st.Metrics)
    } else {
        v.st.Stale = v.st.HasData
        v.st.LastErr = r.Err
        v.st.LastErrAt = r.At
        v.st.Failures++
    }
    st := v.st
    v.mu.Unlock()
    v.eb.publish(st)
    return st
}

// State returns the current state.
func (v *View) State() State {
    v.mu.RLock()
    defer v.mu.RUnlock()
    return v.st
}

// Subscribe returns a channel of states, one per applied result. The channel
// is buffered and closed when ctx is done. A slow consumer misses states
// rather than blocking Apply.
func (v *View) Subscribe(ctx context.Context) <-chan State {
    ch := make(chan State, 16)
    v.eb.add(ch)
    go func() {
        <-ctx.Done()
        v.eb.remove(ch)
        close(ch)
    }()
    return ch
}

func setGauges(m DerivedMetrics) {
    obsmetrics.ClusterHealthy.Set(obsmetrics.Bool(m.Healthy))
    obsmetrics.ClusterHasLeader.Set(obsmetrics.Bool(m.HasLeader))
    obsmetrics.ClusterFollowers.Set(float64(m.FollowerCount))
    obsmetrics.CatalogVideos.Set(float64(m.TotalVideos))
    obsmetrics.CatalogBytes.Set(float64(m.TotalStorageBytes))
}

type stateBus struct {
    mu   sync.Mutex
    subs map[chan State]struct{}
}

func (b *stateBus) add(ch chan State) {
    b.mu.Lock()
    if b.subs == nil { b.subs = make(map[chan State]struct{}) }
    b.subs[ch] = struct{}{}
    b.mu.Unlock()
}

func (b *stateBus) remove(ch chan State) {
    b.mu.Lock()
    if b.subs != nil { delete(b.subs, ch) }
    b.mu.Unlock()
}

func (b *stateBus) publish(st State) {
    b.mu.Lock()
    for ch := range b.subs {
        select {
        case ch <- st:
        default:
            // slow receiver
        }
    }
    b.mu.Unlock()
}
