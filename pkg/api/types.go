package api

import (
    "encoding/json"
    "errors"
    "fmt"
    "strings"
    "time"
)

// NodeHealth is the per-node health reported by the backend gateway.
type NodeHealth string

const (
    HealthHealthy  NodeHealth = "healthy"
    HealthDegraded NodeHealth = "degraded"
    HealthUnknown  NodeHealth = "unknown"
)

// ParseNodeHealth maps a wire status onto NodeHealth. The gateway reports
// unreachable nodes as "down" and undecodable ones as "unhealthy"; both are
// degraded from the client's point of view.
func ParseNodeHealth(s string) NodeHealth {
    switch strings.ToLower(strings.TrimSpace(s)) {
    case "healthy":
        return HealthHealthy
    case "degraded", "unhealthy", "down":
        return HealthDegraded
    default:
        return HealthUnknown
    }
}

// NodeStatus describes one consensus node as seen through the gateway.
type NodeStatus struct {
    ID       string     `json:"id"`
    IsLeader bool       `json:"is_leader"`
    Status   NodeHealth `json:"status"`
    URL      string     `json:"url"`
}

// Name returns the node ID, falling back to its URL for nodes the gateway
// could not identify.
func (n NodeStatus) Name() string {
    if n.ID != "" { return n.ID }
    return n.URL
}

// ClusterSnapshot is an immutable view of cluster leadership and health at
// the time of one /cluster/status response. The zero value is a snapshot of
// an unhealthy cluster without a leader.
type ClusterSnapshot struct {
    leader    *NodeStatus
    followers []NodeStatus
    healthy   bool
}

// NewClusterSnapshot builds a snapshot and enforces the leader/follower flag
// invariant: the leader entry always reports IsLeader and followers never do.
// It rejects a leader without ID and a node listed both as leader and follower.
func NewClusterSnapshot(leader *NodeStatus, followers []NodeStatus, healthy bool) (ClusterSnapshot, error) {
    s := ClusterSnapshot{healthy: healthy}
    if leader != nil {
        if leader.ID == "" { return ClusterSnapshot{}, errors.New("leader without id") }
        l := *leader
        l.IsLeader = true
        if l.Status == "" { l.Status = HealthUnknown }
        s.leader = &l
    }
    s.followers = make([]NodeStatus, 0, len(followers))
    for i, f := range followers {
        if f.ID == "" && f.URL == "" { return ClusterSnapshot{}, fmt.Errorf("follower %d without id or url", i) }
        if s.leader != nil && f.ID != "" && f.ID == s.leader.ID {
            return ClusterSnapshot{}, fmt.Errorf("node %q reported as both leader and follower", f.ID)
        }
        f.IsLeader = false
        if f.Status == "" { f.Status = HealthUnknown }
        s.followers = append(s.followers, f)
    }
    return s, nil
}

// Leader returns the elected leader, if any.
func (s ClusterSnapshot) Leader() (NodeStatus, bool) {
    if s.leader == nil { return NodeStatus{}, false }
    return *s.leader, true
}

// Followers returns a copy of the follower list in server order.
func (s ClusterSnapshot) Followers() []NodeStatus {
    return append([]NodeStatus(nil), s.followers...)
}

// Healthy is the backend's authoritative cluster health flag.
func (s ClusterSnapshot) Healthy() bool { return s.healthy }

// Nodes returns the leader (if any) followed by all followers.
func (s ClusterSnapshot) Nodes() []NodeStatus {
    out := make([]NodeStatus, 0, len(s.followers)+1)
    if s.leader != nil { out = append(out, *s.leader) }
    return append(out, s.followers...)
}

type wireNode struct {
    ID       string `json:"id"`
    IsLeader bool   `json:"is_leader"`
    Status   string `json:"status"`
    URL      string `json:"url"`
}

type wireSnapshot struct {
    Leader    *wireNode  `json:"leader"`
    Followers []wireNode `json:"followers"`
    Healthy   *bool      `json:"healthy"`
}

func (w wireNode) node() NodeStatus {
    return NodeStatus{ID: w.ID, IsLeader: w.IsLeader, Status: ParseNodeHealth(w.Status), URL: w.URL}
}

// DecodeClusterSnapshot parses a /cluster/status body. The healthy flag is
// required; followers may be absent or null.
func DecodeClusterSnapshot(data []byte) (ClusterSnapshot, error) {
    var w wireSnapshot
    if err := json.Unmarshal(data, &w); err != nil { return ClusterSnapshot{}, fmt.Errorf("decode cluster status: %w", err) }
    if w.Healthy == nil { return ClusterSnapshot{}, errors.New("decode cluster status: missing healthy") }
    var leader *NodeStatus
    if w.Leader != nil {
        n := w.Leader.node()
        leader = &n
    }
    followers := make([]NodeStatus, 0, len(w.Followers))
    for _, f := range w.Followers { followers = append(followers, f.node()) }
    s, err := NewClusterSnapshot(leader, followers, *w.Healthy)
    if err != nil { return ClusterSnapshot{}, fmt.Errorf("decode cluster status: %w", err) }
    return s, nil
}

// MarshalJSON encodes the snapshot in the gateway's wire shape.
func (s ClusterSnapshot) MarshalJSON() ([]byte, error) {
    type out struct {
        Leader    *NodeStatus  `json:"leader"`
        Followers []NodeStatus `json:"followers"`
        Healthy   bool         `json:"healthy"`
    }
    fs := s.Followers()
    if fs == nil { fs = []NodeStatus{} }
    return json.Marshal(out{Leader: s.leader, Followers: fs, Healthy: s.healthy})
}

// VideoRecord is a catalog entry created server-side on upload. The client
// never mutates records; a catalog is always replaced as a whole.
type VideoRecord struct {
    ID           string    `json:"id"`
    Title        string    `json:"title"`
    Bucket       string    `json:"bucket"`
    Object       string    `json:"object"`
    ThumbnailRef string    `json:"thumbnail_url"`
    SizeBytes    int64     `json:"size"`
    ContentType  string    `json:"content_type"`
    UploadedAt   time.Time `json:"uploaded_at"`
    Resolutions  []string  `json:"resolutions"`
}

// Validate checks the fields the client relies on.
func (v VideoRecord) Validate() error {
    if strings.TrimSpace(v.ID) == "" { return errors.New("video without id") }
    if v.SizeBytes < 0 { return fmt.Errorf("video %q: negative size %d", v.ID, v.SizeBytes) }
    return nil
}

// DecodeVideo parses and validates a single VideoRecord body.
func DecodeVideo(data []byte) (VideoRecord, error) {
    var v VideoRecord
    if err := json.Unmarshal(data, &v); err != nil { return VideoRecord{}, fmt.Errorf("decode video: %w", err) }
    if err := v.Validate(); err != nil { return VideoRecord{}, fmt.Errorf("decode video: %w", err) }
    if v.Resolutions == nil { v.Resolutions = []string{} }
    return v, nil
}

// DecodeVideos parses a /videos body. A JSON null is an empty catalog; any
// invalid element rejects the whole catalog.
func DecodeVideos(data []byte) ([]VideoRecord, error) {
    var vs []VideoRecord
    if err := json.Unmarshal(data, &vs); err != nil { return nil, fmt.Errorf("decode videos: %w", err) }
    out := make([]VideoRecord, 0, len(vs))
    for i, v := range vs {
        if err := v.Validate(); err != nil { return nil, fmt.Errorf("decode videos: item %d: %w", i, err) }
        if v.Resolutions == nil { v.Resolutions = []string{} }
        out = append(out, v)
    }
    return out, nil
}
