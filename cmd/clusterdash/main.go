package main

import (
    "os"

    "github.com/spf13/cobra"

    "github.com/amirimatin/clusterdash/internal/logutil"
    clidash "github.com/amirimatin/clusterdash/pkg/cli"
)

func main() {
    if err := newRoot().Execute(); err != nil {
        logutil.Errorf(logutil.Default("clusterdash"), "%v", err)
        os.Exit(1)
    }
}

func newRoot() *cobra.Command {
    root := &cobra.Command{
        Use:           "clusterdash",
        Short:         "Cluster status, catalog and upload client for the video gateway",
        SilenceUsage:  true,
        SilenceErrors: true,
    }
    clidash.AddAll(root)
    return root
}
