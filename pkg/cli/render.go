package cli

import (
    "encoding/json"
    "fmt"
    "io"
    "os"
    "sort"
    "strings"
    "time"

    "github.com/dustin/go-humanize"
    "github.com/jedib0t/go-pretty/v6/table"
    "github.com/jedib0t/go-pretty/v6/text"
    "github.com/mattn/go-isatty"

    "github.com/amirimatin/clusterdash/pkg/api"
    "github.com/amirimatin/clusterdash/pkg/dashboard"
)

func isTerminal(w io.Writer) bool {
    f, ok := w.(*os.File)
    if !ok { return false }
    fd := f.Fd()
    return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func newTable(w io.Writer, headers ...string) table.Writer {
    tw := table.NewWriter()
    tw.SetOutputMirror(w)
    tw.SetStyle(table.StyleRounded)
    tw.Style().Format.Footer = text.FormatDefault
    row := make(table.Row, len(headers))
    for i, h := range headers { row[i] = h }
    tw.AppendHeader(row)
    return tw
}

func writeJSON(w io.Writer, v any) error {
    enc := json.NewEncoder(w)
    enc.SetIndent("", "  ")
    return enc.Encode(v)
}

func renderSnapshot(w io.Writer, s api.ClusterSnapshot) {
    health := "healthy"
    if !s.Healthy() { health = "degraded" }
    leader := "none"
    if l, ok := s.Leader(); ok { leader = l.Name() }
    fmt.Fprintf(w, "Cluster: %s  Leader: %s  Followers: %d\n", health, leader, len(s.Followers()))

    tw := newTable(w, "NODE", "ROLE", "STATUS", "URL")
    for _, n := range s.Nodes() {
        role := "follower"
        if n.IsLeader { role = "leader" }
        tw.AppendRow(table.Row{n.Name(), role, string(n.Status), n.URL})
    }
    tw.Render()
}

func renderVideos(w io.Writer, videos []api.VideoRecord, now time.Time) {
    tw := newTable(w, "ID", "TITLE", "SIZE", "RESOLUTIONS", "UPLOADED")
    tw.SetColumnConfigs([]table.ColumnConfig{{Number: 3, Align: text.AlignRight, AlignHeader: text.AlignLeft}})
    for _, v := range videos {
        tw.AppendRow(table.Row{v.ID, v.Title, humanize.IBytes(uint64(v.SizeBytes)), resolutions(v.Resolutions), uploaded(v.UploadedAt, now)})
    }
    m := dashboard.Compute(api.ClusterSnapshot{}, videos)
    tw.AppendFooter(table.Row{"", fmt.Sprintf("%d videos", m.TotalVideos), dashboard.FormatBytes(m.TotalStorageBytes), "", ""})
    tw.Render()
}

func renderVideo(w io.Writer, v api.VideoRecord, streamURL, thumbURL string, now time.Time) {
    tw := newTable(w, "FIELD", "VALUE")
    tw.AppendRows([]table.Row{
        {"id", v.ID},
        {"title", v.Title},
        {"size", fmt.Sprintf("%s (%d bytes)", dashboard.FormatBytes(v.SizeBytes), v.SizeBytes)},
        {"content type", v.ContentType},
        {"storage", v.Bucket + "/" + v.Object},
        {"resolutions", resolutions(v.Resolutions)},
        {"uploaded", uploaded(v.UploadedAt, now)},
        {"stream", streamURL},
        {"thumbnail", thumbURL},
    })
    tw.Render()
}

// renderState prints one line per dashboard update.
func renderState(w io.Writer, st dashboard.State) {
    if st.LastErr != nil && (st.Stale || !st.HasData) {
        at := st.LastErrAt.Format(time.TimeOnly)
        if !st.HasData {
            fmt.Fprintf(w, "%s  no data yet: %v\n", at, st.LastErr)
            return
        }
        fmt.Fprintf(w, "%s  STALE (%d failed) %v\n", at, st.Failures, st.LastErr)
    }
    m := st.Metrics
    health := "healthy"
    if !m.Healthy { health = "degraded" }
    leader := "none"
    if l, ok := st.Snapshot.Leader(); ok { leader = l.Name() }
    fmt.Fprintf(w, "%s  cluster=%s leader=%s followers=%d/%d videos=%d storage=%s%s\n",
        st.UpdatedAt.Format(time.TimeOnly), health, leader, m.HealthyFollowers, m.FollowerCount,
        m.TotalVideos, dashboard.FormatBytes(m.TotalStorageBytes), resolutionSummary(m.ResolutionCounts))
}

func resolutionSummary(counts map[string]int) string {
    if len(counts) == 0 { return "" }
    keys := make([]string, 0, len(counts))
    for k := range counts { keys = append(keys, k) }
    sort.Strings(keys)
    parts := make([]string, 0, len(keys))
    for _, k := range keys { parts = append(parts, fmt.Sprintf("%s:%d", k, counts[k])) }
    return " [" + strings.Join(parts, " ") + "]"
}

func resolutions(rs []string) string {
    if len(rs) == 0 { return "-" }
    return strings.Join(rs, ", ")
}

func uploaded(t, now time.Time) string {
    if t.IsZero() { return "-" }
    return humanize.RelTime(t, now, "ago", "from now")
}
