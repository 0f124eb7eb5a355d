package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kimhsiao/glimm/backend/internal/export"
)

func (c *cli) newExportCmd() *cobra.Command {
	var outDir, format, password string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write every memory into a backup archive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := &export.ExportConfig{OutputDir: outDir, Password: password}
			if format != "" {
				f, err := export.ParseFormat(format)
				if err != nil {
					return err
				}
				cfg.Format = f
			}

			return c.withApp(func(a *app) error {
				result, err := a.export.Export(cfg)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, result.FilePath)
				fmt.Fprintf(out, "items: %d\nsize: %d bytes\nsha256: %s\n",
					result.ItemCount, result.SizeBytes, result.Checksum)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&outDir, "out", "", "output directory (default GLIMM_EXPORT_DIR)")
	cmd.Flags().StringVar(&format, "format", "", "archive format: zip or tar.gz (default GLIMM_ARCHIVE_FORMAT)")
	cmd.Flags().StringVar(&password, "password", "", "encrypt the archive with this password (min 8 characters)")
	return cmd
}

func (c *cli) newImportCmd() *cobra.Command {
	var checksum, password string

	cmd := &cobra.Command{
		Use:   "import <archive>",
		Short: "Restore memories from a backup archive",
		Long:  `Restores every memory in the archive. Memories whose ID already exists are skipped.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(func(a *app) error {
				result, err := a.export.Import(&export.ImportConfig{
					ArchivePath: args[0],
					Checksum:    checksum,
					Password:    password,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported: %d\nskipped: %d\n",
					result.ImportedCount, result.SkippedCount)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&checksum, "checksum", "", "expected SHA-256 of the archive")
	cmd.Flags().StringVar(&password, "password", "", "password for an encrypted archive")
	return cmd
}
