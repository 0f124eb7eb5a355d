package main

import (
	"fmt"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/kimhsiao/glimm/backend/internal/models"
	"github.com/kimhsiao/glimm/backend/internal/uuid"
)

func (c *cli) newAddCmd() *cobra.Command {
	var (
		note       string
		capturedAt string
		lat, lon   float64
		location   string
	)

	cmd := &cobra.Command{
		Use:   "add <image>",
		Short: "Store a new memory from an image file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			image, err := afero.ReadFile(afero.NewOsFs(), args[0])
			if err != nil {
				return fmt.Errorf("failed to read image: %w", err)
			}

			m := &models.Memory{ImageData: image, CapturedAt: time.Now()}
			if capturedAt != "" {
				if m.CapturedAt, err = time.Parse(time.RFC3339, capturedAt); err != nil {
					return fmt.Errorf("invalid --captured-at: %w", err)
				}
			}
			if cmd.Flags().Changed("note") {
				m.Note = models.StringPtr(note)
			}
			if cmd.Flags().Changed("lat") {
				m.Latitude = models.Float64Ptr(lat)
			}
			if cmd.Flags().Changed("lon") {
				m.Longitude = models.Float64Ptr(lon)
			}
			if cmd.Flags().Changed("location") {
				m.LocationName = models.StringPtr(location)
			}

			return c.withApp(func(a *app) error {
				if err := a.repo.CreateMemory(m); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), m.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&note, "note", "", "short note (up to 280 characters)")
	cmd.Flags().StringVar(&capturedAt, "captured-at", "", "capture time in RFC 3339 (default now)")
	cmd.Flags().Float64Var(&lat, "lat", 0, "latitude")
	cmd.Flags().Float64Var(&lon, "lon", 0, "longitude")
	cmd.Flags().StringVar(&location, "location", "", "place name")
	return cmd
}

func (c *cli) newListCmd() *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List memories, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(func(a *app) error {
				memories, err := a.repo.ListMemories(limit, offset)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, m := range memories {
					fmt.Fprintf(out, "%s\t%s\t%s\n",
						m.ID, m.CapturedAt.In(c.cfg.Location()).Format(time.RFC3339), m.NoteText())
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "maximum memories to show (0 = all)")
	cmd.Flags().IntVar(&offset, "offset", 0, "memories to skip")
	return cmd
}

func (c *cli) newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Permanently delete a memory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Normalize(args[0])
			if err != nil {
				return err
			}
			return c.withApp(func(a *app) error {
				if err := a.repo.DeleteMemory(id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", id)
				return nil
			})
		},
	}
}
