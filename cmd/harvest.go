package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/lexharvest/internal/harvest"
)

func newHarvestCmd() *cobra.Command {
	var start, end string

	cmd := &cobra.Command{
		Use:   "harvest",
		Short: "Harvest every document published between two dates",
		Long: `Processes each publication day from --start to --end inclusive. Days with
no documents are reported at the end of the run. Interrupting the run keeps
every record stored so far.`,
		Example: "  lexharvest harvest --start 2024-01-15 --end 2024-01-19",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHarvest(cmd, start, end)
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "first publication day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&end, "end", "", "last publication day (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func runHarvest(cmd *cobra.Command, rawStart, rawEnd string) error {
	a, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	start, end, err := parseRange(rawStart, rawEnd)
	if err != nil {
		return err
	}

	a.ServeMetrics()
	h, err := a.Harvester(cmd.Context())
	if err != nil {
		return fmt.Errorf("build harvester: %w", err)
	}

	logger := a.Logger()
	summary, err := h.RunRange(cmd.Context(), start, end)
	switch {
	case errors.Is(err, context.Canceled):
		logger.Warn("harvest interrupted", zap.Int("periods", summary.Periods), zap.Int("stored", len(summary.Locations)))
		return nil
	case err != nil:
		return fmt.Errorf("harvest: %w", err)
	}

	empty := make([]string, 0, len(summary.EmptyPeriods))
	for _, p := range summary.EmptyPeriods {
		empty = append(empty, p.String())
	}
	logger.Info("harvest finished",
		zap.Int("periods", summary.Periods),
		zap.Int("stored", len(summary.Locations)),
		zap.Strings("empty_periods", empty),
	)
	return nil
}

func parseRange(rawStart, rawEnd string) (harvest.Period, harvest.Period, error) {
	start, err := harvest.ParsePeriod(rawStart)
	if err != nil {
		return harvest.Period{}, harvest.Period{}, fmt.Errorf("--start: %w", err)
	}
	end, err := harvest.ParsePeriod(rawEnd)
	if err != nil {
		return harvest.Period{}, harvest.Period{}, fmt.Errorf("--end: %w", err)
	}
	return start, end, nil
}
