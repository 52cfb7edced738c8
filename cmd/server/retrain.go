package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jengzang/tourist-safety-backend/internal/models"
)

var retrainCmd = &cobra.Command{
	Use:   "retrain [anomaly|temporal|all]",
	Short: "Run one training cycle and persist the resulting snapshots",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target := "all"
		if len(args) == 1 {
			target = args[0]
		}

		kinds := models.ModelKinds
		if target != "all" {
			kind, err := models.ParseModelKind(target)
			if err != nil {
				return err
			}
			kinds = []models.ModelKind{kind}
		}

		ctx := context.Background()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		var errs []error
		for _, k := range kinds {
			err := a.scheduler.RunOnce(ctx, k, models.TriggerForced)
			switch {
			case models.IsInsufficientData(err):
				// a skipped cycle keeps the previous snapshot and is not an error
				fmt.Fprintf(cmd.OutOrStdout(), "%s: skipped, not enough data (%v)\n", k, err)
			case err != nil:
				errs = append(errs, fmt.Errorf("%s: %w", k, err))
			default:
				snap := a.registry.Current(k)
				fmt.Fprintf(cmd.OutOrStdout(), "%s: version %d (%d samples)\n", k, snap.Version, snap.TrainingSampleCount)
			}
		}
		return errors.Join(errs...)
	},
}
