// cmd/hiway-migrate/main.go
package main

import (
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/saltehb/hiway/internal/log"
	"github.com/spf13/cobra"
)

// databaseURL picks the journal database: the --db flag, then HIWAY_DB_URL,
// then a URL assembled from the DB_* variables.
func databaseURL(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if url := os.Getenv("HIWAY_DB_URL"); url != "" {
		return url, nil
	}

	parts := map[string]string{}
	var missing []string
	for _, key := range []string{"DB_USERNAME", "DB_PASSWORD", "DB_HOST", "DB_PORT", "DB_NAME"} {
		parts[key] = os.Getenv(key)
		if parts[key] == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return "", errors.Errorf("no --db flag or HIWAY_DB_URL, and %v unset", missing)
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		parts["DB_USERNAME"], parts["DB_PASSWORD"], parts["DB_HOST"], parts["DB_PORT"], parts["DB_NAME"]), nil
}

func applyMigrations(sourceDir, dbURL string) error {
	m, err := migrate.New("file://"+sourceDir, dbURL)
	if err != nil {
		return errors.Wrap(err, "initialize migrations")
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Wrap(err, "apply migrations")
	}
	return nil
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{Use: "hiway-migrate"}
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the report entry journal schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(); err != nil {
				log.GetLogger().Debugf("No .env file loaded: %v", err)
			}
			flagValue, _ := cmd.Flags().GetString("db")
			dbURL, err := databaseURL(flagValue)
			if err != nil {
				return err
			}
			sourceDir, _ := cmd.Flags().GetString("path")
			if err := applyMigrations(sourceDir, dbURL); err != nil {
				return err
			}
			log.GetLogger().Infof("Journal schema in %s is up to date", sourceDir)
			return nil
		},
	}
	migrateCmd.Flags().String("db", "", "Journal database URL (defaults to HIWAY_DB_URL or DB_* variables)")
	migrateCmd.Flags().String("path", "migrations", "Directory holding the migration files")
	rootCmd.AddCommand(migrateCmd)
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.GetLogger().Errorf("Migration failed: %v", err)
		os.Exit(1)
	}
}
