package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/xela07ax/attendance-engine/internal/analytics"
	"github.com/xela07ax/attendance-engine/internal/domain"
	"github.com/xela07ax/attendance-engine/internal/ledger"
)

func NewReportCmd(deps *Dependencies) *cobra.Command {
	var days int
	var asOf string

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print attendance analytics as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := compute(cmd.Context(), deps, days, asOf)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}

	cmd.Flags().IntVarP(&days, "days", "d", 0, "Window length in days (default from config)")
	cmd.Flags().StringVar(&asOf, "as-of", "", "Last day of the window, YYYY-MM-DD (default today)")

	return cmd
}

func NewExportCmd(deps *Dependencies) *cobra.Command {
	var days int
	var asOf string
	var out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the daily attendance trend as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := compute(cmd.Context(), deps, days, asOf)
			if err != nil {
				return err
			}
			data := analytics.ToCSV(res)
			if out == "" || out == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", out, err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d days to %s\n", len(res.DailyTrend), out)
			return nil
		},
	}

	cmd.Flags().IntVarP(&days, "days", "d", 0, "Window length in days (default from config)")
	cmd.Flags().StringVar(&asOf, "as-of", "", "Last day of the window, YYYY-MM-DD (default today)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (default stdout)")

	return cmd
}

// compute строит аналитику тем же агрегатором, что и сервис, но по данным из БД
func compute(ctx context.Context, deps *Dependencies, days int, asOf string) (domain.AnalyticsResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if days == 0 {
		days = deps.DefaultDays
	}

	at := deps.Now()
	if asOf != "" {
		d, err := time.ParseInLocation(domain.DateLayout, asOf, deps.Location)
		if err != nil {
			return domain.AnalyticsResult{}, fmt.Errorf("--as-of must be %s: %w", domain.DateLayout, err)
		}
		at = d.AddDate(0, 0, 1).Add(-time.Second)
	}

	src, closeFn, err := deps.Open(ctx)
	if err != nil {
		return domain.AnalyticsResult{}, err
	}
	defer closeFn()

	entries, err := src.LoadAll(ctx)
	if err != nil {
		return domain.AnalyticsResult{}, fmt.Errorf("loading ledger: %w", err)
	}
	persons, err := src.ListPersons(ctx)
	if err != nil {
		return domain.AnalyticsResult{}, fmt.Errorf("loading persons: %w", err)
	}

	agg := analytics.NewAggregator(deps.Location, analytics.WithMaxDays(deps.MaxDays))
	return agg.Compute(ledger.NewView(entries), len(persons), domain.AnalyticsWindow{Days: days, AsOf: at})
}
