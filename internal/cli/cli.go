package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/saltehb/hiway/internal/config"
	internal_http "github.com/saltehb/hiway/internal/http"
	"github.com/saltehb/hiway/internal/log"
	"github.com/saltehb/hiway/internal/reportlog"
	internal_storage "github.com/saltehb/hiway/internal/storage"
	"github.com/saltehb/hiway/pkg/models"
	"github.com/saltehb/hiway/pkg/service"
	"github.com/saltehb/hiway/pkg/storage"
	"github.com/spf13/cobra"
)

func SetupCLI(rootCmd *cobra.Command) {
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the ingest endpoint and the query API",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loadConfig(cmd)
			if port, _ := cmd.Flags().GetString("port"); port != "" {
				cfg.Port = port
			}
			journal := initJournal(cfg)
			opts := []service.Option{service.WithMaxPending(cfg.MaxPending)}
			if journal != nil {
				defer journal.Close()
				opts = append(opts, service.WithJournal(journal))
			}
			svc := service.NewIngestService(storage.NewMemoryStore(), log.GetLogger(), opts...)
			if journal != nil {
				if _, err := svc.Replay(journal); err != nil {
					log.GetLogger().Errorf("Failed to replay journal: %v", err)
					os.Exit(1)
				}
			}
			if err := internal_http.StartServer(cfg.Port, svc); err != nil {
				log.GetLogger().Errorf("Server stopped: %v", err)
				os.Exit(1)
			}
		},
	}
	serveCmd.Flags().String("port", "", "Listen port (overrides config)")

	replayCmd := &cobra.Command{
		Use:   "replay [file...]",
		Short: "Rebuild the store from report logs (or the configured journal) and print a summary",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loadConfig(cmd)
			asJSON, _ := cmd.Flags().GetBool("json")

			svc := service.NewIngestService(storage.NewMemoryStore(), log.GetLogger(), service.WithMaxPending(cfg.MaxPending))
			if len(args) == 0 {
				journal := initJournal(cfg)
				if journal == nil {
					fmt.Fprintln(os.Stderr, "Error: no report log given and no journal configured")
					os.Exit(1)
				}
				defer journal.Close()
				replay(cmd.ErrOrStderr(), svc, journal)
			}
			for _, path := range args {
				replay(cmd.ErrOrStderr(), svc, readLog(path))
			}
			printSummary(cmd.OutOrStdout(), cmd.ErrOrStderr(), svc, asJSON)
		},
	}
	replayCmd.Flags().Bool("json", false, "Print the summary as JSON")

	rootCmd.AddCommand(serveCmd, replayCmd)
}

func loadConfig(cmd *cobra.Command) config.Config {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		log.GetLogger().Errorf("Error retrieving config flag: %v", err)
		os.Exit(1)
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.GetLogger().Errorf("Invalid configuration: %v", err)
		fmt.Fprintf(os.Stderr, "Error: invalid configuration: %v\n", err)
		os.Exit(1)
	}
	log.SetLevel(cfg.LogLevel)
	return cfg
}

func initJournal(cfg config.Config) storage.Journal {
	journal, err := internal_storage.InitJournal(cfg)
	if err != nil {
		log.GetLogger().Errorf("Failed to open journal: %v", err)
		os.Exit(1)
	}
	return journal
}

func readLog(path string) service.EntryList {
	f, err := os.Open(path)
	if err != nil {
		log.GetLogger().Errorf("Failed to open report log: %v", err)
		fmt.Fprintf(os.Stderr, "Error: failed to open %s: %v\n", path, err)
		os.Exit(1)
	}
	defer f.Close()
	entries, err := reportlog.Decode(f, func(lerr *reportlog.LineError) {
		log.GetLogger().Errorf("%s: skipping malformed entry: %v", path, lerr)
	})
	if err != nil {
		log.GetLogger().Errorf("Failed to read report log %s: %v", path, err)
		os.Exit(1)
	}
	return service.EntryList(entries)
}

func replay(stderr io.Writer, svc *service.IngestService, src service.EntrySource) {
	stats, err := svc.Replay(src)
	if err != nil {
		log.GetLogger().Errorf("Failed to replay: %v", err)
		fmt.Fprintf(os.Stderr, "Error: failed to replay: %v\n", err)
		os.Exit(1)
	}
	if stats.Skipped > 0 {
		fmt.Fprintf(stderr, "Skipped %d of %d entries\n", stats.Skipped, stats.Entries)
	}
}

func printSummary(stdout, stderr io.Writer, svc *service.IngestService, asJSON bool) {
	summary := service.Summarize(svc.Store())
	if pending := svc.PendingEntries(); pending > 0 {
		fmt.Fprintf(stderr, "%d entries still wait for a %s entry of their run\n", pending, models.KeyWorkflowName)
	}
	if !asJSON {
		summary.Write(stdout)
		return
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		log.GetLogger().Errorf("Failed to encode summary: %v", err)
		os.Exit(1)
	}
}
