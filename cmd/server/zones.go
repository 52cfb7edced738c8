package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jengzang/tourist-safety-backend/internal/models"
	"github.com/jengzang/tourist-safety-backend/internal/service"
)

var zonesCmd = &cobra.Command{
	Use:   "zones",
	Short: "Manage geofence zones",
}

var zonesImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Validate a zone file and upsert its valid zones",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		n, rejected, err := service.ImportZonesFile(ctx, args[0], a.repos.zones, a.logger)
		if err != nil {
			return err
		}
		printRejected(cmd, rejected)
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d zones\n", n)
		return nil
	},
}

var zonesCheckCmd = &cobra.Command{
	Use:   "check <file.yaml>",
	Short: "Validate a zone file without importing it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		zones, rejected, err := service.ParseZones(data)
		if err != nil {
			return err
		}
		printRejected(cmd, rejected)
		fmt.Fprintf(cmd.OutOrStdout(), "%d valid, %d rejected\n", len(zones), len(rejected))
		if len(rejected) > 0 {
			return fmt.Errorf("%d invalid zones", len(rejected))
		}
		return nil
	},
}

func printRejected(cmd *cobra.Command, rejected []models.RejectedZone) {
	for _, r := range rejected {
		fmt.Fprintf(cmd.ErrOrStderr(), "rejected %s: %s\n", r.ZoneID, r.Reason)
	}
}

func init() {
	zonesCmd.AddCommand(zonesImportCmd)
	zonesCmd.AddCommand(zonesCheckCmd)
}
