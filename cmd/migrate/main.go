package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/cobra"

	"certintake/internal/config"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var source string

	cmd := &cobra.Command{
		Use:           "migrate",
		Short:         "Apply or inspect certificate store schema migrations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&source, "source", "file://db/migrations", "migration source URL")

	open := func() (*migrate.Migrate, error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		if cfg.DB.UsesMemory() {
			return nil, errors.New("db.driver is memory; nothing to migrate")
		}
		m, err := migrate.New(source, cfg.DB.DSN())
		if err != nil {
			return nil, fmt.Errorf("failed to create migrate instance: %w", err)
		}
		return m, nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := open()
			if err != nil {
				return err
			}
			defer m.Close()
			if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
				return fmt.Errorf("migration up failed: %w", err)
			}
			log.Println("migrations applied successfully")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Revert all migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := open()
			if err != nil {
				return err
			}
			defer m.Close()
			if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
				return fmt.Errorf("migration down failed: %w", err)
			}
			log.Println("migrations reverted successfully")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "steps <n>",
		Short: "Apply n migrations (negative n reverts)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid steps argument: %w", err)
			}
			m, err := open()
			if err != nil {
				return err
			}
			defer m.Close()
			if err := m.Steps(n); err != nil && !errors.Is(err, migrate.ErrNoChange) {
				return fmt.Errorf("migration steps failed: %w", err)
			}
			log.Printf("applied %d migration steps", n)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := open()
			if err != nil {
				return err
			}
			defer m.Close()
			version, dirty, err := m.Version()
			if err != nil {
				return fmt.Errorf("failed to get version: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version: %d, dirty: %v\n", version, dirty)
			return nil
		},
	})

	return cmd
}
