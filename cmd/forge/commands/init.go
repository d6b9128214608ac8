package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/appforge/appforge/pkg/config"
	"github.com/appforge/appforge/pkg/stores"
)

func newInitCommand(opts *globalOptions) *cobra.Command {
	var (
		dataDir string
		force   bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize an appforge instance",
		Long: `Initialize a data directory with a migrated SQLite database and write a
default configuration file pointing at it.`,
		Example: `  # Initialize in ./data with ./forge.yaml
  forge init

  # Initialize with custom paths
  forge init --data-dir /var/lib/appforge --config /etc/appforge/forge.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath := opts.configPath
			if configPath == "" {
				configPath = "forge.yaml"
			}

			log.Info().
				Str("data_dir", dataDir).
				Str("config", configPath).
				Msg("Initializing instance")

			if _, err := os.Stat(configPath); err == nil && !force {
				return fmt.Errorf("config file %s already exists (use --force to overwrite)", configPath)
			} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}

			if err := os.MkdirAll(dataDir, 0o700); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", dataDir, err)
			}

			cfg := config.Default()
			cfg.Database.Path = filepath.Join(dataDir, "appforge.db")
			if err := cfg.Validate(); err != nil {
				return err
			}

			store, err := stores.NewSQLiteStore(cfg.Store())
			if err != nil {
				return fmt.Errorf("failed to create store: %w", err)
			}
			defer store.Close()

			ctx := cmd.Context()
			if err := store.Init(ctx); err != nil {
				return fmt.Errorf("failed to initialize store: %w", err)
			}
			if err := store.Migrate(ctx); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Initialized SQLite database: %s\n", cfg.Database.Path)

			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("failed to encode config: %w", err)
			}
			if err := os.WriteFile(configPath, data, 0o600); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Created config file: %s\n", configPath)

			return nil
		},
	}

	cmd.Flags().StringVar(&dataDir, "data-dir", "./data", "data directory")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")

	return cmd
}
