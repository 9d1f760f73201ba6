// Package cli implements the feedreport command-line interface.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mohamedkhairy/feedmix/internal/app"
	"github.com/mohamedkhairy/feedmix/internal/config"
	"github.com/mohamedkhairy/feedmix/internal/models"
	"github.com/mohamedkhairy/feedmix/pkg/logger"
)

// AppFactory builds the pipeline a command runs against
type AppFactory func() (*app.App, error)

// session carries the pipeline between the root hooks and a subcommand
type session struct {
	newApp AppFactory
	app    *app.App
}

// NewRootCommand builds the command tree. newApp is called once per
// invocation, before the subcommand runs.
func NewRootCommand(newApp AppFactory) *cobra.Command {
	s := &session{newApp: newApp}

	root := &cobra.Command{
		Use:           "feedreport",
		Short:         "Daily feed and mix report tool",
		Long:          `Calculate, inspect and cache the daily poultry feed and mix consumption reports.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a, err := s.newApp()
			if err != nil {
				return err
			}
			s.app = a
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if s.app == nil {
				return nil
			}
			return s.app.Close()
		},
	}

	root.AddCommand(
		s.calculateCmd(),
		s.showCmd(),
		s.tableCmd(),
		s.areasCmd(),
		s.performanceCmd(),
		s.refreshCmd(),
		s.listCmd(),
		s.cacheCmd(),
		s.watchCmd(),
		s.rankingsCmd(),
	)
	return root
}

// DefaultApp loads configuration from the environment and wires the pipeline
func DefaultApp() (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := logger.Init(cfg.LogLevel, cfg.Environment); err != nil {
		return nil, err
	}
	return app.New(cfg)
}

// Execute runs the CLI and exits non-zero on error
func Execute() {
	defer logger.Sync()
	if err := NewRootCommand(DefaultApp).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	data, err := models.EncodeJSON(v)
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = w.Write(data)
	return err
}

func dateArg(raw string) (string, error) {
	date, err := models.NormalizeDate(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %q", models.ErrInvalidDate, raw)
	}
	return date, nil
}

func notFound(date string) error {
	return fmt.Errorf("%w: %s", models.ErrReportNotFound, date)
}
