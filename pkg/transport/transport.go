package transport

import (
    "context"
    "io"

    "github.com/amirimatin/clusterdash/pkg/api"
)

// StatusSource is the read side used by the status poller.
type StatusSource interface {
    GetClusterStatus(ctx context.Context) (api.ClusterSnapshot, error)
    ListVideos(ctx context.Context) ([]api.VideoRecord, error)
}

// ProgressFunc receives the number of file bytes handed to the network so far
// and the declared total. Calls may arrive from the transport's goroutine.
type ProgressFunc func(sent, total int64)

// UploadRequest describes one multipart file submission.
type UploadRequest struct {
    FileName  string
    Size      int64
    Body      io.Reader
    RequestID string
}

// Uploader submits video files.
type Uploader interface {
    Upload(ctx context.Context, req UploadRequest, progress ProgressFunc) (api.VideoRecord, error)
}

// Backend is the full set of gateway operations consumed by clusterdash.
// Failures of the exchange itself are returned as *api.Error values.
type Backend interface {
    StatusSource
    Uploader
    GetVideo(ctx context.Context, id string) (api.VideoRecord, error)
    StreamURL(id string) string
    ThumbnailURL(id string) string
}
