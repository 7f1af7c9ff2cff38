package api

import (
    "context"
    "errors"
    "fmt"
    "net"
    "strings"
)

// Kind classifies a failure for display and metrics.
type Kind string

const (
    KindNetwork        Kind = "network"
    KindTimeout        Kind = "timeout"
    KindServer         Kind = "server"
    KindServerRejected Kind = "server-rejected"
    KindMalformed      Kind = "malformed-response"
    KindInvalidFile    Kind = "invalid-file"
    KindAborted        Kind = "aborted"
)

var (
    ErrNetwork        = errors.New("clusterdash: network error")
    ErrTimeout        = errors.New("clusterdash: timeout")
    ErrServer         = errors.New("clusterdash: server error")
    ErrServerRejected = errors.New("clusterdash: rejected by server")
    ErrMalformed      = errors.New("clusterdash: malformed response")
    ErrInvalidFile    = errors.New("clusterdash: invalid file")
    ErrAborted        = errors.New("clusterdash: aborted")
)

var sentinels = map[Kind]error{
    KindNetwork:        ErrNetwork,
    KindTimeout:        ErrTimeout,
    KindServer:         ErrServer,
    KindServerRejected: ErrServerRejected,
    KindMalformed:      ErrMalformed,
    KindInvalidFile:    ErrInvalidFile,
    KindAborted:        ErrAborted,
}

// Error is a classified failure of one backend operation.
type Error struct {
    Kind       Kind
    Op         string // e.g. "get_cluster_status", "upload"
    StatusCode int    // HTTP status if the backend answered
    Message    string // backend-supplied or client-side reason
    Err        error
}

func (e *Error) Error() string {
    var b strings.Builder
    if e.Op != "" { b.WriteString(e.Op); b.WriteString(": ") }
    b.WriteString(string(e.Kind))
    if e.StatusCode != 0 { fmt.Fprintf(&b, " (status %d)", e.StatusCode) }
    switch {
    case e.Message != "":
        b.WriteString(": "); b.WriteString(e.Message)
    case e.Err != nil:
        b.WriteString(": "); b.WriteString(e.Err.Error())
    }
    return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel error of e's kind, then the wrapped error.
func (e *Error) Is(target error) bool {
    if target == nil { return false }
    if s, ok := sentinels[e.Kind]; ok && s == target { return true }
    return false
}

// NewError returns a classified error.
func NewError(kind Kind, op string, err error) *Error {
    return &Error{Kind: kind, Op: op, Err: err}
}

// StatusError returns a classified error for a non-2xx response. The body is
// trimmed and truncated into the user-facing message.
func StatusError(kind Kind, op string, code int, body []byte) *Error {
    msg := strings.TrimSpace(string(body))
    if len(msg) > 512 { msg = msg[:512] + "..." }
    if msg == "" { msg = fmt.Sprintf("unexpected status %d", code) }
    return &Error{Kind: kind, Op: op, StatusCode: code, Message: msg}
}

// Classify maps a transport error onto the failure taxonomy. Errors that are
// already classified are returned unchanged.
func Classify(op string, err error) *Error {
    if err == nil { return nil }
    var ce *Error
    if errors.As(err, &ce) { return ce }
    if errors.Is(err, context.Canceled) { return NewError(KindAborted, op, err) }
    if errors.Is(err, context.DeadlineExceeded) { return NewError(KindTimeout, op, err) }
    var ne net.Error
    if errors.As(err, &ne) && ne.Timeout() { return NewError(KindTimeout, op, err) }
    return NewError(KindNetwork, op, err)
}

// KindOf reports the classification of err, or "" when err is not classified.
func KindOf(err error) Kind {
    var ce *Error
    if errors.As(err, &ce) { return ce.Kind }
    return ""
}
