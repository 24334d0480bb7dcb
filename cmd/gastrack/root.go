package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/mmynk/gasbottle/internal/config"
	"github.com/mmynk/gasbottle/internal/syncer"
	"github.com/mmynk/gasbottle/pkg/logging"
)

// cli holds state shared by the subcommands of one invocation.
type cli struct {
	configPath string
	onStatus   func(syncer.Status)
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "gastrack",
		Short:         "Track gas bottle refills and their cost",
		Long:          `gastrack records the date and cost of each gas bottle refill, derives usage and cost statistics, and keeps the records in sync with an optional remote document server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "config file (default ~/.config/gastrack/config.toml)")

	root.AddCommand(
		newAddCmd(c),
		newRemoveCmd(c),
		newListCmd(c),
		newClearCmd(c),
		newSettingsCmd(c),
		newStatsCmd(c),
		newReportCmd(c),
		newExportCmd(c),
		newImportCmd(c),
		newStatusCmd(c),
		newWatchCmd(c),
	)
	return root
}

// withApp loads the configuration, opens the tracker, runs fn and closes
// the tracker again, flushing pending remote writes.
func (c *cli) withApp(cmd *cobra.Command, fn func(*app) error) error {
	cfg, err := config.LoadClient(c.configPath)
	if err != nil {
		return err
	}
	logging.Configure(cfg.LogLevel, "text")

	a, err := openApp(cmd.Context(), cfg, c.onStatus)
	if err != nil {
		return err
	}
	runErr := fn(a)
	return errors.Join(runErr, a.close())
}
