package logutil

import (
    "bytes"
    "encoding/json"
    "testing"

    "github.com/stretchr/testify/require"
)

func TestNew_JSONCarriesComponent(t *testing.T) {
    prev := JSON()
    SetJSON(true)
    defer SetJSON(prev)

    var buf bytes.Buffer
    l := New(&buf, "poller")
    Infof(l, "cycle %d done", 3)

    var evt map[string]any
    require.NoError(t, json.Unmarshal(buf.Bytes(), &evt))
    require.Equal(t, "poller", evt["component"])
    require.Equal(t, "info", evt["level"])
    require.Equal(t, "cycle 3 done", evt["message"])
}

func TestNew_Console(t *testing.T) {
    prev := JSON()
    SetJSON(false)
    defer SetJSON(prev)

    var buf bytes.Buffer
    Warnf(New(&buf, "upload"), "slow %s", "backend")
    require.Contains(t, buf.String(), "slow backend")
    require.Contains(t, buf.String(), "upload")
}

func TestSetLevel_FiltersHelpers(t *testing.T) {
    prev := JSON()
    SetJSON(true)
    defer SetJSON(prev)
    SetLevel("warn")
    defer SetLevel("info")

    var buf bytes.Buffer
    l := New(&buf, "cli")
    Debugf(l, "hidden %d", 1)
    Infof(l, "hidden %d", 2)
    Errorf(l, "command failed: %s", "boom")

    require.NotContains(t, buf.String(), "hidden")
    var evt map[string]any
    require.NoError(t, json.Unmarshal(buf.Bytes(), &evt))
    require.Equal(t, "error", evt["level"])
    require.Equal(t, "command failed: boom", evt["message"])
}
