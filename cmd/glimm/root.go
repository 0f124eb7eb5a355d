package main

import (
	"github.com/spf13/cobra"

	"github.com/kimhsiao/glimm/backend/internal/config"
	"github.com/kimhsiao/glimm/backend/internal/logging"
)

// cli carries state shared by every subcommand. cfg is set by the root
// command's PersistentPreRunE before any subcommand runs.
type cli struct {
	envFile string
	cfg     *config.Config
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:          "glimm",
		Short:        "glimm - capture small moments, a few times a day",
		Long:         `glimm stores photo memories locally, reminds you to capture them and produces portable backups.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(c.envFile)
			if err != nil {
				return err
			}
			logging.Init(cmd.ErrOrStderr(), cfg.Level())
			c.cfg = cfg
			return nil
		},
	}

	// Global flags available to all subcommands
	root.PersistentFlags().StringVar(&c.envFile, "env-file", "", "env file to load (default .env when present)")

	root.AddCommand(
		c.newAddCmd(),
		c.newListCmd(),
		c.newDeleteCmd(),
		c.newExportCmd(),
		c.newImportCmd(),
		c.newSettingsCmd(),
		c.newRemindersCmd(),
		c.newServeCmd(),
	)
	return root
}

// withApp opens the store for the duration of fn.
func (c *cli) withApp(fn func(a *app) error) error {
	a, err := openApp(c.cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}
