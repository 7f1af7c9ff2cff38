package cli

import (
    "fmt"
    "time"

    "github.com/spf13/cobra"
)

// NewStatusCmd returns the "status" command.
func NewStatusCmd(o *options) *cobra.Command {
    return &cobra.Command{
        Use:   "status",
        Short: "Show cluster leadership and health",
        Args:  cobra.NoArgs,
        RunE: func(cmd *cobra.Command, args []string) error {
            a, err := o.open(cmd.Context(), cmd)
            if err != nil { return err }
            defer a.Close()
            s, err := a.client.GetClusterStatus(cmd.Context())
            if err != nil { return fmt.Errorf("status error: %w", err) }
            if o.jsonOut { return writeJSON(cmd.OutOrStdout(), s) }
            renderSnapshot(cmd.OutOrStdout(), s)
            return nil
        },
    }
}

// NewVideosCmd returns the "videos" command.
func NewVideosCmd(o *options) *cobra.Command {
    return &cobra.Command{
        Use:   "videos",
        Short: "List the video catalog",
        Args:  cobra.NoArgs,
        RunE: func(cmd *cobra.Command, args []string) error {
            a, err := o.open(cmd.Context(), cmd)
            if err != nil { return err }
            defer a.Close()
            vs, err := a.client.ListVideos(cmd.Context())
            if err != nil { return fmt.Errorf("videos error: %w", err) }
            if o.jsonOut { return writeJSON(cmd.OutOrStdout(), vs) }
            renderVideos(cmd.OutOrStdout(), vs, time.Now())
            return nil
        },
    }
}

// NewVideoCmd returns the "video <id>" command.
func NewVideoCmd(o *options) *cobra.Command {
    return &cobra.Command{
        Use:   "video <id>",
        Short: "Show one video with its stream and thumbnail URLs",
        Args:  cobra.ExactArgs(1),
        RunE: func(cmd *cobra.Command, args []string) error {
            a, err := o.open(cmd.Context(), cmd)
            if err != nil { return err }
            defer a.Close()
            v, err := a.client.GetVideo(cmd.Context(), args[0])
            if err != nil { return fmt.Errorf("video error: %w", err) }
            if o.jsonOut { return writeJSON(cmd.OutOrStdout(), v) }
            renderVideo(cmd.OutOrStdout(), v, a.client.StreamURL(v.ID), a.client.ThumbnailURL(v.ID), time.Now())
            return nil
        },
    }
}

// NewURLsCmd returns the "urls <id>" command. It builds the URLs locally.
func NewURLsCmd(o *options) *cobra.Command {
    return &cobra.Command{
        Use:   "urls <id>",
        Short: "Print the stream and thumbnail URLs of a video",
        Args:  cobra.ExactArgs(1),
        RunE: func(cmd *cobra.Command, args []string) error {
            a, err := o.open(cmd.Context(), cmd)
            if err != nil { return err }
            defer a.Close()
            stream, thumb := a.client.StreamURL(args[0]), a.client.ThumbnailURL(args[0])
            if o.jsonOut {
                return writeJSON(cmd.OutOrStdout(), map[string]string{"stream": stream, "thumbnail": thumb})
            }
            fmt.Fprintf(cmd.OutOrStdout(), "stream:    %s\nthumbnail: %s\n", stream, thumb)
            return nil
        },
    }
}
