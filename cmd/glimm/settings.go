package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/kimhsiao/glimm/backend/internal/models"
)

func (c *cli) newSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change stored settings",
	}
	cmd.AddCommand(c.newReminderSettingsCmd())
	return cmd
}

func (c *cli) newReminderSettingsCmd() *cobra.Command {
	var (
		start, end string
		frequency  int
		enabled    bool
	)

	cmd := &cobra.Command{
		Use:   "reminders",
		Short: "Show or change the reminder window",
		Long:  `Without flags the current reminder window is printed. Changed flags are saved.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(func(a *app) error {
				settings, err := a.repo.GetSettings()
				if err != nil {
					return err
				}

				flags := cmd.Flags()
				w := &settings.Reminders
				if flags.Changed("start") {
					if w.DayStart, err = models.ParseClockTime(start); err != nil {
						return err
					}
				}
				if flags.Changed("end") {
					if w.DayEnd, err = models.ParseClockTime(end); err != nil {
						return err
					}
				}
				if flags.Changed("frequency") {
					w.Frequency = frequency
				}
				if flags.Changed("enabled") {
					w.Enabled = enabled
				}

				changed := false
				for _, name := range []string{"start", "end", "frequency", "enabled"} {
					changed = changed || flags.Changed(name)
				}
				if changed {
					if err := a.repo.SaveSettings(settings); err != nil {
						return err
					}
				}
				printWindow(cmd.OutOrStdout(), settings.Reminders)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&start, "start", "", "start of the day window (HH:MM)")
	cmd.Flags().StringVar(&end, "end", "", "end of the day window (HH:MM)")
	cmd.Flags().IntVar(&frequency, "frequency", 0, "reminders per day")
	cmd.Flags().BoolVar(&enabled, "enabled", true, "whether reminders fire at all")
	return cmd
}

func printWindow(out io.Writer, w models.ReminderWindow) {
	fmt.Fprintf(out, "enabled: %t\nwindow: %s-%s\nfrequency: %d\n", w.Enabled, w.DayStart, w.DayEnd, w.Frequency)
}
