// cmd/spancache/main.go
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/FairForge/spancache/internal/api"
)

func main() {
	var configPath string

	root := &cobra.Command{
		Use:           "spancache",
		Short:         "Span labeling cache with predictive pre-warming",
		Version:       api.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")

	root.AddCommand(
		newServeCmd(&configPath),
		newCacheCmd(&configPath),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
