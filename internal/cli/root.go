package cli

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/example/pm/internal/wire"
)

var metricsFile string

// AddGlobalFlags registers flags every command understands.
func AddGlobalFlags(root *cobra.Command) {
	root.PersistentFlags().String("config", "", "Config file (default ~/.pm/config.yaml)")
	root.PersistentFlags().StringVar(&metricsFile, "metrics-file", "", "Write REST call metrics in Prometheus text format to this file on exit")
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		wire.SetConfigPath(path)
		return nil
	}
}

// Finish writes the metrics file if one was requested and releases wired resources.
func Finish() error {
	defer wire.Close()
	if metricsFile == "" {
		return nil
	}
	reg := wire.Registry()
	if reg == nil {
		return nil
	}
	return writeMetrics(reg, metricsFile)
}

func writeMetrics(g prometheus.Gatherer, path string) error {
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}
