package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kimhsiao/glimm/backend/internal/reminder"
)

func (c *cli) newRemindersCmd() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "reminders",
		Short: "Preview a reminder schedule for the stored window",
		Long:  `Computes a fresh randomized schedule from the stored reminder window. Nothing is armed; use "glimm serve" for delivery.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if days <= 0 {
				days = c.cfg.ReminderHorizonDays
			}
			return c.withApp(func(a *app) error {
				settings, err := a.repo.GetSettings()
				if err != nil {
					return err
				}

				now := time.Now().In(c.cfg.Location())
				times := reminder.NewScheduler(reminder.DefaultSource).Schedule(settings.Reminders, days, now)

				out := cmd.OutOrStdout()
				if len(times) == 0 {
					fmt.Fprintln(out, "no reminders scheduled")
					return nil
				}
				for _, t := range times {
					fmt.Fprintln(out, t.Format("Mon 2006-01-02 15:04"))
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&days, "days", 0, "days ahead to plan (default GLIMM_REMINDER_HORIZON_DAYS)")
	return cmd
}
