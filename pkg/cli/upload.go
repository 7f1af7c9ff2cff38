package cli

import (
    "fmt"
    "io"
    "time"

    "github.com/schollz/progressbar/v3"
    "github.com/spf13/cobra"

    "github.com/amirimatin/clusterdash/internal/logutil"
    "github.com/amirimatin/clusterdash/pkg/upload"
)

// NewUploadCmd returns the "upload <file>" command.
func NewUploadCmd(o *options) *cobra.Command {
    return &cobra.Command{
        Use:   "upload <file>",
        Short: "Upload a video file to the gateway",
        Args:  cobra.ExactArgs(1),
        RunE: func(cmd *cobra.Command, args []string) error {
            ctx, cancel := signalContext(cmd.Context())
            defer cancel()
            a, err := o.open(ctx, cmd)
            if err != nil { return err }
            defer a.Close()

            f, err := upload.OpenFile(args[0])
            if err != nil { return fmt.Errorf("upload error: %w", err) }
            s := upload.New(a.client, upload.Options{Logger: logutil.New(cmd.ErrOrStderr(), "upload")})
            progress, done := progressReporter(cmd.ErrOrStderr(), f)
            out := s.Run(ctx, f, progress)
            done()
            if !out.OK() { return fmt.Errorf("upload error: %w", out.Err) }

            if o.jsonOut { return writeJSON(cmd.OutOrStdout(), out.Video) }
            v := out.Video
            renderVideo(cmd.OutOrStdout(), v, a.client.StreamURL(v.ID), a.client.ThumbnailURL(v.ID), time.Now())
            return nil
        },
    }
}

// progressReporter draws a progress bar on terminals and prints a line per
// ten percent otherwise. done finishes the output.
func progressReporter(w io.Writer, f upload.File) (func(int), func()) {
    if isTerminal(w) {
        bar := progressbar.NewOptions(100,
            progressbar.OptionSetWriter(w),
            progressbar.OptionSetDescription(f.Name),
            progressbar.OptionShowCount(),
            progressbar.OptionSetPredictTime(true),
            progressbar.OptionClearOnFinish(),
        )
        return func(p int) { _ = bar.Set(p) }, func() { _ = bar.Finish() }
    }
    last := -10
    return func(p int) {
        if p/10 == last/10 && p != 100 { return }
        last = p
        fmt.Fprintf(w, "uploading %s: %d%%\n", f.Name, p)
    }, func() {}
}
