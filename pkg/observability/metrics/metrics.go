package metrics

import (
    "sync"

    "github.com/prometheus/client_golang/prometheus"
)

var (
    once sync.Once

    PollCycles = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: "clusterdash",
        Subsystem: "poll",
        Name:      "cycles_total",
        Help:      "Completed poll cycles by result (ok or failure kind)",
    }, []string{"result"})

    PollSkippedTicks = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: "clusterdash",
        Subsystem: "poll",
        Name:      "skipped_ticks_total",
        Help:      "Ticks skipped because the previous cycle was still in flight",
    })

    PollDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
        Namespace: "clusterdash",
        Subsystem: "poll",
        Name:      "cycle_duration_seconds",
        Help:      "Wall time of one poll cycle",
        Buckets:   prometheus.DefBuckets,
    })

    ClusterHealthy = prometheus.NewGauge(prometheus.GaugeOpts{
        Namespace: "clusterdash",
        Subsystem: "cluster",
        Name:      "healthy",
        Help:      "1 if the backend last reported a healthy cluster, else 0",
    })

    ClusterHasLeader = prometheus.NewGauge(prometheus.GaugeOpts{
        Namespace: "clusterdash",
        Subsystem: "cluster",
        Name:      "has_leader",
        Help:      "1 if a leader was present in the last snapshot, else 0",
    })

    ClusterFollowers = prometheus.NewGauge(prometheus.GaugeOpts{
        Namespace: "clusterdash",
        Subsystem: "cluster",
        Name:      "followers",
        Help:      "Number of followers in the last snapshot",
    })

    CatalogVideos = prometheus.NewGauge(prometheus.GaugeOpts{
        Namespace: "clusterdash",
        Subsystem: "catalog",
        Name:      "videos",
        Help:      "Number of videos in the last fetched catalog",
    })

    CatalogBytes = prometheus.NewGauge(prometheus.GaugeOpts{
        Namespace: "clusterdash",
        Subsystem: "catalog",
        Name:      "storage_bytes",
        Help:      "Sum of video sizes in the last fetched catalog",
    })

    Uploads = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: "clusterdash",
        Subsystem: "upload",
        Name:      "sessions_total",
        Help:      "Finished upload sessions by result (ok or failure kind)",
    }, []string{"result"})

    UploadedBytes = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: "clusterdash",
        Subsystem: "upload",
        Name:      "bytes_total",
        Help:      "File bytes handed to the transport by upload sessions",
    })
)

// Register registers metrics into the default Prometheus registry (idempotent).
func Register() {
    once.Do(func() {
        for _, c := range Collectors() { prometheus.MustRegister(c) }
    })
}

// Collectors lists every collector of this package, for custom registries.
func Collectors() []prometheus.Collector {
    return []prometheus.Collector{
        PollCycles, PollSkippedTicks, PollDuration,
        ClusterHealthy, ClusterHasLeader, ClusterFollowers,
        CatalogVideos, CatalogBytes,
        Uploads, UploadedBytes,
    }
}

// Bool converts a flag to a gauge value.
func Bool(b bool) float64 {
    if b { return 1 }
    return 0
}
