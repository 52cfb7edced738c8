package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tourist-safety",
	Short: "Tourist safety risk assessment service",
	Long: "tourist-safety scores tourist location updates against geofences, a population " +
		"anomaly model and per-tourist movement baselines, retraining the models in the background.",
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(retrainCmd)
	rootCmd.AddCommand(zonesCmd)
}
