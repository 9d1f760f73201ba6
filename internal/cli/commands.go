package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mohamedkhairy/feedmix/internal/models"
	"github.com/mohamedkhairy/feedmix/internal/view"
	"github.com/mohamedkhairy/feedmix/pkg/logger"
)

func (s *session) calculateCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "calculate [date]",
		Short: "Calculate the report of a date (YYYYMMDD or YYYY-MM-DD)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			date, err := dateArg(args[0])
			if err != nil {
				return err
			}
			r := s.app.Facade.CalculateDailyReport(date, force)
			if r == nil {
				return notFound(date)
			}
			return writeJSON(cmd.OutOrStdout(), r)
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Recalculate even when a cached report is valid")
	return cmd
}

func (s *session) showCmd() *cobra.Command {
	var summary bool
	cmd := &cobra.Command{
		Use:   "show [date]",
		Short: "Print a report, or only its summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			date, err := dateArg(args[0])
			if err != nil {
				return err
			}
			v := s.app.Facade.GetReport(date, !summary)
			if v == nil {
				return notFound(date)
			}
			return writeJSON(cmd.OutOrStdout(), v)
		},
	}
	cmd.Flags().BoolVar(&summary, "summary", false, "Print summary and metadata only")
	return cmd
}

func (s *session) tableCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "table [feed|mix] [date]",
		Short:     "Print the per-farm consumption table",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{string(models.UsageFeed), string(models.UsageMix)},
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := models.ParseUsageKind(args[0])
			if err != nil {
				return fmt.Errorf("%w: %q (expected feed or mix)", err, args[0])
			}
			date, err := dateArg(args[1])
			if err != nil {
				return err
			}

			var rows []view.ConsumptionRow
			if kind == models.UsageMix {
				rows = s.app.Facade.GetMixConsumptionTable(date)
			} else {
				rows = s.app.Facade.GetFeedConsumptionTable(date)
			}
			if rows == nil {
				return notFound(date)
			}
			return writeJSON(cmd.OutOrStdout(), rows)
		},
	}
}

func (s *session) areasCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "areas [date]",
		Short: "Print the ranked area summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			date, err := dateArg(args[0])
			if err != nil {
				return err
			}
			summary := s.app.Facade.GetAreaSummary(date)
			if summary == nil {
				return notFound(date)
			}
			return writeJSON(cmd.OutOrStdout(), summary)
		},
	}
}

func (s *session) performanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "performance [date]",
		Short: "Print consumption and operational metrics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			date, err := dateArg(args[0])
			if err != nil {
				return err
			}
			metrics := s.app.Facade.GetPerformanceMetrics(date)
			if metrics == nil {
				return notFound(date)
			}
			return writeJSON(cmd.OutOrStdout(), metrics)
		},
	}
}

func (s *session) refreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh [date]",
		Short: "Drop the cached report of a date and recalculate it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			date, err := dateArg(args[0])
			if err != nil {
				return err
			}
			if !s.app.Facade.RefreshReport(date) {
				return notFound(date)
			}
			return writeJSON(cmd.OutOrStdout(), map[string]interface{}{"date": date, "refreshed": true})
		},
	}
}

func (s *session) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved report dates, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeJSON(cmd.OutOrStdout(), s.app.Facade.GetAvailableReports())
		},
	}
}

func (s *session) cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the report cache",
	}

	status := &cobra.Command{
		Use:   "status [date]",
		Short: "Print cache statistics, or the entries of one date",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			date := ""
			if len(args) == 1 {
				var err error
				if date, err = dateArg(args[0]); err != nil {
					return err
				}
			}
			return writeJSON(cmd.OutOrStdout(), s.app.Facade.GetCacheStatus(date))
		},
	}

	var days int
	var expired bool
	cleanup := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove old or expired cache entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if expired {
				removed := s.app.Facade.CleanupExpiredCache()
				return writeJSON(cmd.OutOrStdout(), map[string]interface{}{"removed": removed, "expired": true})
			}
			if days < 0 {
				return fmt.Errorf("--days must not be negative")
			}
			removed := s.app.Facade.CleanupOldCache(days)
			return writeJSON(cmd.OutOrStdout(), map[string]interface{}{"removed": removed, "days": days})
		},
	}
	cleanup.Flags().IntVar(&days, "days", 7, "Remove entries created more than this many days ago")
	cleanup.Flags().BoolVar(&expired, "expired", false, "Remove only entries past the validity window")

	invalidate := &cobra.Command{
		Use:   "invalidate [date]",
		Short: "Remove every cache entry of a date",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			date, err := dateArg(args[0])
			if err != nil {
				return err
			}
			s.app.Facade.InvalidateReportCache(date)
			return writeJSON(cmd.OutOrStdout(), map[string]interface{}{"date": date, "invalidated": true})
		},
	}

	cmd.AddCommand(status, cleanup, invalidate)
	return cmd
}

func interruptible(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

func (s *session) watchCmd() *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Invalidate cached reports when report files change, until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if once {
				return writeJSON(cmd.OutOrStdout(), s.app.Watcher.Scan())
			}
			ctx, stop := interruptible(cmd)
			defer stop()
			return s.app.Watcher.Run(ctx)
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "Scan once, print the result and exit")
	return cmd
}

func (s *session) rankingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rankings",
		Short: "Read farm rankings",
	}

	var limit int
	get := &cobra.Command{
		Use:   "get [date] [feed|mix]",
		Short: "Print the farm ranking of a date",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			date, err := dateArg(args[0])
			if err != nil {
				return err
			}
			kind, err := models.ParseUsageKind(args[1])
			if err != nil {
				return fmt.Errorf("%w: %q (expected feed or mix)", err, args[1])
			}
			if limit < 0 {
				return fmt.Errorf("--limit must not be negative")
			}

			if s.app.Rankings != nil {
				published, err := s.app.Rankings.Rankings(cmd.Context(), date, kind, limit, 0)
				if err != nil {
					logger.Warn("Published rankings unavailable", logger.Date(date), logger.ErrorField(err))
				} else if len(published) > 0 {
					return writeJSON(cmd.OutOrStdout(), published)
				}
			}

			rankings := s.app.Facade.GetFarmRankings(date, kind)
			if rankings == nil {
				return notFound(date)
			}
			if limit > 0 && len(rankings) > limit {
				rankings = rankings[:limit]
			}
			return writeJSON(cmd.OutOrStdout(), rankings)
		},
	}
	get.Flags().IntVar(&limit, "limit", 0, "Maximum number of farms (0 for all)")

	follow := &cobra.Command{
		Use:   "follow",
		Short: "Print ranking updates as they are published, until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if s.app.Rankings == nil {
				return fmt.Errorf("rankings need Redis: set REDIS_ENABLED=true")
			}
			ctx, stop := interruptible(cmd)
			defer stop()

			updates, err := s.app.Rankings.Updates(ctx)
			if err != nil {
				return err
			}
			for update := range updates {
				if err := writeJSON(cmd.OutOrStdout(), update); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.AddCommand(get, follow)
	return cmd
}
