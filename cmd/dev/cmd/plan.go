package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/mklimuk/devices/config"
)

// PlanCmd validates sampling plans before they are deployed.
func PlanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plan [file...]",
		Short: "Validate sampling plans",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return validatePlans(args)
		},
	}
}

func validatePlans(paths []string) error {
	var failed int
	for _, path := range paths {
		cfg, err := config.Load(path)
		if err != nil {
			slog.Error("invalid plan", "file", path, "error", err)
			failed++
			continue
		}
		slog.Info("plan ok", "file", path, "adapter", cfg.Adapter, "devices", len(cfg.Devices), "interval", cfg.Interval)
		for _, d := range cfg.Devices {
			slog.Debug("device", "name", d.Name, "kind", d.Kind, "address", fmt.Sprintf("%#02x", d.Address))
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d plans are invalid", failed, len(paths))
	}
	return nil
}
