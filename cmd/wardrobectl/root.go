package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"wardrobe-storage/internal/app"
)

// Default timeout for a single command
const defaultTimeout = 5 * time.Minute

// Settings are the flags shared by every command.
type Settings struct {
	StorageRoot string
	DatabaseDir string
	CacheDir    string
	Cap         string
	Timeout     time.Duration
}

// DefaultSettings reads flag defaults from the same environment variables
// the server uses.
func DefaultSettings() *Settings {
	return &Settings{
		StorageRoot: envOr("STORAGE_ROOT", "/data/documents"),
		DatabaseDir: envOr("DATABASE_DIR", "/data/db"),
		CacheDir:    envOr("CACHE_DIR", "/data/cache"),
		Cap:         envOr("STORAGE_CAP", "500MB"),
		Timeout:     defaultTimeout,
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// session is the state shared between a command and the root hooks.
type session struct {
	settings *Settings
	app      *app.App
	cancel   context.CancelFunc
}

// Execute runs the command tree with args and releases the session even when
// the command fails.
func Execute(ctx context.Context, settings *Settings, args []string, out io.Writer) error {
	rootCmd, s := newRoot(settings)
	rootCmd.SetArgs(args)
	rootCmd.SetOut(out)
	err := rootCmd.ExecuteContext(ctx)
	return errors.Join(err, s.close())
}

// newRoot creates the wardrobectl command tree.
func newRoot(settings *Settings) (*cobra.Command, *session) {
	s := &session{settings: settings}

	rootCmd := &cobra.Command{
		Use:           "wardrobectl",
		Short:         "Maintain the wardrobe image store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&settings.StorageRoot, "root", settings.StorageRoot, "App documents directory holding permanent_images")
	flags.StringVar(&settings.DatabaseDir, "db", settings.DatabaseDir, "Directory containing wardrobe.db")
	flags.StringVar(&settings.CacheDir, "cache-dir", settings.CacheDir, "Legacy cache directory")
	flags.StringVar(&settings.Cap, "cap", settings.Cap, "Storage budget, e.g. 500MB")
	flags.DurationVar(&settings.Timeout, "timeout", settings.Timeout, "Timeout for the command")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		return s.open(cmd)
	}
	rootCmd.PersistentPostRunE = func(_ *cobra.Command, _ []string) error {
		return s.close()
	}

	rootCmd.AddCommand(
		migrateCommand(s),
		reconcileCommand(s),
		cleanupCommand(s),
		healthCommand(s),
		ingestCommand(s),
		resolveCommand(s),
	)
	return rootCmd, s
}

func (s *session) open(cmd *cobra.Command) error {
	capBytes, err := humanize.ParseBytes(s.settings.Cap)
	if err != nil {
		return fmt.Errorf("invalid --cap %q: %w", s.settings.Cap, err)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), s.settings.Timeout)
	cmd.SetContext(ctx)
	s.cancel = cancel

	a, err := app.Open(ctx, app.Options{
		StorageRoot:  s.settings.StorageRoot,
		CacheDir:     s.settings.CacheDir,
		DatabasePath: filepath.Join(s.settings.DatabaseDir, "wardrobe.db"),
		StorageCap:   int64(capBytes),
	})
	if err != nil {
		cancel()
		return err
	}
	s.app = a
	return nil
}

func (s *session) close() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.app == nil {
		return nil
	}
	err := s.app.Close()
	s.app = nil
	return err
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
