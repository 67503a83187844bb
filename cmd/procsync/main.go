package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rejintech/procsync/internal/config"
	"github.com/rejintech/procsync/internal/database"
	"github.com/rejintech/procsync/internal/logging"
	"github.com/rejintech/procsync/internal/pipeline"
	"github.com/rejintech/procsync/internal/procurement"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
	logger     = zap.NewNop()
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "procsync",
	Short:        "Procurement delivery request ingestion",
	Long:         "procsync pulls delivery request details from the public procurement API, keeps allow-listed records, and rebuilds a normalized relational model.",
	Version:      version,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		logger, err = logging.New(cfg.Logging.Level, verbose)
		if err != nil {
			return err
		}
		zap.ReplaceGlobals(logger)
		logger.Debug("config loaded", zap.String("path", path))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(normalizeCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(allowlistCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("procsync", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/procsync/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Printf("Set %s to your API service key before running a sync.\n", config.Default().Procurement.ServiceKeyEnv)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database and batch status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Printf("Database: %s\n\n", db.Path())
		fmt.Println("Raw records:")
		fmt.Printf("  Total: %d\n", stats.RawRecords)
		fmt.Printf("  Synced today: %d\n", stats.SyncedToday)
		fmt.Println("\nNormalized:")
		fmt.Printf("  Delivery requests: %d\n", stats.DeliveryRequests)
		fmt.Printf("  Delivery request items: %d\n", stats.DeliveryRequestItems)
		fmt.Printf("  Institutions: %d\n", stats.Institutions)
		fmt.Printf("  Companies: %d\n", stats.Companies)
		fmt.Printf("  Contracts: %d\n", stats.Contracts)
		fmt.Printf("  Categories: %d\n", stats.Categories)
		fmt.Printf("  Products: %d\n", stats.Products)
		fmt.Println("\nAllow-list:")
		fmt.Printf("  Total: %d\n", stats.AllowListTotal)
		fmt.Printf("  Active: %d\n", stats.AllowListActive)
		fmt.Printf("  Filtering: %s\n", onOff(cfg.Sync.Filtering))

		fmt.Println("\nLast batch:")
		if stats.LastBatch == nil {
			fmt.Println("  none")
			return nil
		}
		printRun(*stats.LastBatch)
		return nil
	},
}

// --- batch commands ---

var (
	endDate  string
	daysBack int
	dryRun   bool
)

func addWindowFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&endDate, "end-date", "", "Window end date YYYYMMDD (default today)")
	cmd.Flags().IntVar(&daysBack, "days-back", 1, "Number of days before the end date to include")
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch delivery request details and store allow-listed records",
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := procurement.NewWindow(endDate, daysBack, time.Now())
		if err != nil {
			return err
		}
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx, stop := signalContext()
		defer stop()

		fmt.Printf("Syncing %s...\n", w)
		r := pipeline.New(cfg, db, logger, nil).Sync(ctx, w)

		fmt.Printf("\nSync %s (batch %d):\n", r.Status, r.BatchLogID)
		fmt.Printf("  Upstream total: %d\n", r.TotalCount)
		fmt.Printf("  API calls: %d (%d failed pages)\n", r.APICalls, r.FailedPages)
		fmt.Printf("  Processed: %d\n", r.Total)
		fmt.Printf("  Inserted: %d\n", r.Inserted)
		fmt.Printf("  Updated: %d\n", r.Updated)
		fmt.Printf("  Filtered: %d\n", r.Filtered)
		fmt.Printf("  Errors: %d\n", r.Errors)
		if r.Message != "" {
			fmt.Printf("  Note: %s\n", r.Message)
		}
		if r.Status == database.BatchFailed {
			return fmt.Errorf("sync failed: %w", r.Err)
		}
		return nil
	},
}

var normalizeCmd = &cobra.Command{
	Use:   "normalize",
	Short: "Rebuild the normalized delivery request tables from raw records",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx, stop := signalContext()
		defer stop()

		fmt.Println("Normalizing delivery requests...")
		r := pipeline.New(cfg, db, logger, nil).Normalize(ctx)

		c := r.Created
		fmt.Printf("\nNormalization %s (batch %d):\n", r.Status, r.BatchLogID)
		fmt.Printf("  Raw rows: %d in %d batches\n", r.Records, r.Batches)
		fmt.Printf("  Delivery requests: %d (%d failed)\n", c.DeliveryRequests, r.FailedGroups)
		fmt.Printf("  Delivery request items: %d\n", c.DeliveryRequestItems)
		fmt.Printf("  New institutions: %d\n", c.Institutions)
		fmt.Printf("  New companies: %d\n", c.Companies)
		fmt.Printf("  New contracts: %d\n", c.Contracts)
		fmt.Printf("  New categories: %d\n", c.Categories)
		fmt.Printf("  New products: %d\n", c.Products)
		if r.Status == database.BatchFailed {
			return fmt.Errorf("normalization failed: %w", r.Err)
		}
		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full pipeline: sync -> normalize",
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := procurement.NewWindow(endDate, daysBack, time.Now())
		if err != nil {
			return err
		}
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx, stop := signalContext()
		defer stop()

		pipe := pipeline.New(cfg, db, logger, nil)

		var result *pipeline.Result
		if dryRun {
			result = pipe.DryRun(w)
		} else {
			result = pipe.Run(ctx, w)
		}

		for i, step := range result.Steps {
			fmt.Printf("\nStep %d/2: %s\n", i+1, step.Name)
			if step.Err != nil {
				fmt.Printf("  Error: %v\n", step.Err)
			}
			if step.Summary != "" {
				fmt.Printf("  %s\n", step.Summary)
			}
		}

		if result.Failed() {
			return fmt.Errorf("pipeline failed")
		}
		if !dryRun {
			fmt.Println("\nPipeline complete! Run 'procsync status' to inspect the tables.")
		}
		return nil
	},
}

func init() {
	addWindowFlags(syncCmd)
	addWindowFlags(runCmd)
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be done without executing")
}

// --- runs command ---

var (
	runsLimit int
	runsBatch string
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent batch runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		logs, err := db.GetBatchLogs(runsBatch, runsLimit)
		if err != nil {
			return err
		}
		if len(logs) == 0 {
			fmt.Println("No batch runs recorded yet.")
			return nil
		}
		for _, l := range logs {
			printRun(l)
			fmt.Println()
		}
		return nil
	},
}

func init() {
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 10, "Number of runs to show")
	runsCmd.Flags().StringVar(&runsBatch, "batch", "", "Only show runs of this batch name")
}

// --- probe command ---

const probeRows = 10

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Fetch one small page from the API and print a sample record",
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := procurement.NewWindow(endDate, daysBack, time.Now())
		if err != nil {
			return err
		}
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx, stop := signalContext()
		defer stop()

		client := pipeline.New(cfg, db, logger, nil).Client()
		res := client.Fetch(ctx, procurement.PageRequest{PageNo: 1, NumOfRows: probeRows, Window: w})
		fmt.Printf("GET %s\n", res.URL)
		fmt.Printf("  HTTP %d in %s (%d attempts)\n", res.HTTPStatus, res.Elapsed.Round(time.Millisecond), res.Attempts)
		if !res.Success {
			return fmt.Errorf("probe failed: %w", res.Err)
		}

		page, err := procurement.ParsePage(res.Body)
		if err != nil {
			return err
		}
		fmt.Printf("  Total count: %d, items on page: %d\n", page.TotalCount, len(page.Items))
		if len(page.Items) == 0 {
			return nil
		}

		d := procurement.Transform(page.Items[0])
		fmt.Println("\nSample record:")
		fmt.Printf("  Request: %s line %d\n", d.RequestNo, d.LineSeq)
		fmt.Printf("  Name: %s\n", deref(d.RequestName))
		fmt.Printf("  Institution: %s (%s)\n", deref(d.InstitutionName), deref(d.InstitutionCode))
		fmt.Printf("  Company: %s (%s)\n", deref(d.CompanyName), deref(d.BusinessNo))
		fmt.Printf("  Product: %s (%s)\n", deref(d.ProductName), deref(d.ProductCode))
		if d.RequestAmt != nil {
			fmt.Printf("  Amount: %.0f\n", *d.RequestAmt)
		}
		fmt.Printf("  Valid: %v\n", d.Valid())
		return nil
	},
}

func init() {
	addWindowFlags(probeCmd)
}

func printRun(l database.BatchLog) {
	fmt.Printf("  [%d] %s %s\n", l.ID, l.BatchName, l.Status)
	fmt.Printf("      started %s", l.StartTime)
	if l.EndTime != nil {
		fmt.Printf(", took %s", runDuration(l.StartTime, *l.EndTime))
	}
	fmt.Println()
	c := l.Counters
	fmt.Printf("      total %d, success %d, filtered %d, errors %d, api calls %d\n",
		c.Total, c.Success, c.Filtered, c.Error, c.APICalls)
	if l.ErrorMessage != nil {
		fmt.Printf("      %s\n", *l.ErrorMessage)
	}
}

func runDuration(start, end string) string {
	const layout = "2006-01-02 15:04:05"
	s, err1 := time.Parse(layout, start)
	e, err2 := time.Parse(layout, end)
	if err1 != nil || err2 != nil {
		return "?"
	}
	return e.Sub(s).String()
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func openDB() (*database.DB, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "procsync.db")
	return database.Open(dbPath)
}
