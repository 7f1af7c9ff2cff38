// Package dashboard reconciles poll results into the state shown to users:
// the last good cluster snapshot and catalog, metrics derived from them, and
// the most recent failure.
package dashboard

import (
    "fmt"
    "time"

    "github.com/amirimatin/clusterdash/pkg/api"
)

// DerivedMetrics summarizes one snapshot and catalog. It is recomputed on
// every successful poll and never stored.
type DerivedMetrics struct {
    TotalVideos       int
    TotalStorageBytes int64
    ResolutionCounts  map[string]int
    LatestUpload      time.Time
    HasLeader         bool
    Healthy           bool
    FollowerCount     int
    HealthyFollowers  int
}

// Compute derives metrics from a snapshot and the catalog fetched with it.
func Compute(s api.ClusterSnapshot, videos []api.VideoRecord) DerivedMetrics {
    m := DerivedMetrics{
        TotalVideos:      len(videos),
        ResolutionCounts: make(map[string]int),
        Healthy:          s.Healthy(),
    }
    for _, v := range videos {
        m.TotalStorageBytes += v.SizeBytes
        for _, r := range v.Resolutions { m.ResolutionCounts[r]++ }
        if v.UploadedAt.After(m.LatestUpload) { m.LatestUpload = v.UploadedAt }
    }
    _, m.HasLeader = s.Leader()
    for _, f := range s.Followers() {
        m.FollowerCount++
        if f.Status == api.HealthHealthy { m.HealthyFollowers++ }
    }
    return m
}

var byteUnits = []string{"KB", "MB", "GB", "TB", "PB"}

// FormatBytes renders n with base-1024 units and two decimals, e.g.
// "1.00 MB". Values below 1 KB are printed as whole bytes.
func FormatBytes(n int64) string {
    if n < 1024 { return fmt.Sprintf("%d B", n) }
    v := float64(n)
    unit := ""
    for _, u := range byteUnits {
        v /= 1024
        unit = u
        if v < 1024 { break }
    }
    return fmt.Sprintf("%.2f %s", v, unit)
}
