package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"wardrobe-storage/internal/media"
)

func migrateCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Normalize the registry, purge legacy caches and migrate legacy item images",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := s.app.Provisioner.EnsureDirectories(cmd.Context()); err != nil {
				return err
			}
			report, err := s.app.Migration.Run(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, report)
		},
	}
}

func reconcileCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Flag items whose image is missing and remove items flagged on a previous run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			report, err := s.app.Validator.ReconcileAll(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, report)
		},
	}
}

func cleanupCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete images whose items no longer exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			active, err := s.app.DB.ActiveItemIDs(cmd.Context())
			if err != nil {
				return err
			}
			result, err := s.app.Cache.CleanupOrphaned(cmd.Context(), active)
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		},
	}
}

func healthCommand(s *session) *cobra.Command {
	var analyzeOnly bool
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Report storage usage and consistency",
		Long: `Report storage usage and consistency. Unless --analyze-only is set,
usage above the storage cap triggers an emergency cleanup.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if analyzeOnly {
				report, err := s.app.Cache.Analyze(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd, report)
			}
			result, err := s.app.Cache.HealthCheck(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		},
	}
	cmd.Flags().BoolVar(&analyzeOnly, "analyze-only", false, "Only analyze, never clean up")
	return cmd
}

func ingestCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <itemID> <file>",
		Short: "Store a photo as the image of an item",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := filepath.Abs(args[1])
			if err != nil {
				return err
			}
			result, err := s.app.Ingestor.Ingest(cmd.Context(), args[0], media.Asset{
				URI:      src,
				FileName: filepath.Base(src),
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		},
	}
}

func resolveCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <itemID>",
		Short: "Print the absolute path of the image displayed for an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := s.app.Validator.ResolveDisplayPath(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if p == "" {
				return fmt.Errorf("no image found for item %s", args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), p)
			return nil
		},
	}
}
