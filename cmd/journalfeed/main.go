package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/go-pkgz/lgr"
	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/TobiSchelling/journalfeed/internal/collect"
	"github.com/TobiSchelling/journalfeed/internal/config"
	"github.com/TobiSchelling/journalfeed/internal/database"
	"github.com/TobiSchelling/journalfeed/internal/llm"
	"github.com/TobiSchelling/journalfeed/internal/metrics"
	"github.com/TobiSchelling/journalfeed/internal/pipeline"
	"github.com/TobiSchelling/journalfeed/internal/translate"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
	stats      = metrics.New()
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "journalfeed",
	Short:   "Academic journal feeds with machine-translated abstracts",
	Long:    "journalfeed ingests journal RSS feeds, deduplicates articles and translates titles and abstracts.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			lgr.Setup(lgr.Debug, lgr.CallerFile)
		}

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		if err := config.LoadEnv(".env", filepath.Join(config.ConfigDir(), ".env")); err != nil {
			return err
		}
		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if !verbose && strings.EqualFold(cfg.Logging.Level, "debug") {
			lgr.Setup(lgr.Debug)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil || cfg.Metrics.PushgatewayURL == "" {
			return nil
		}
		if err := stats.Push(cmd.Context(), cfg.Metrics.PushgatewayURL, cfg.Metrics.Job); err != nil {
			lgr.Printf("[WARN] %v", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(journalsCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(translateCmd)
	rootCmd.AddCommand(runCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("journalfeed", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/journalfeed/",
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
		fmt.Println("Edit it to configure feeds and the translation provider.")
		fmt.Println("Put API keys in ~/.config/journalfeed/.env, e.g. OPENAI_API_KEY=sk-...")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database status and recent ingest runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx := cmd.Context()
		s, err := db.GetStats(ctx)
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Printf("Database: %s (%s)\n\n", db.Path(), db.Dialect())
		fmt.Println(renderTable(os.Stdout,
			[]string{"Journals", "Articles", "Translated", "Untranslated", "No abstract"},
			[][]string{{itoa(s.Journals), itoa(s.TotalArticles), itoa(s.Translated), itoa(s.Untranslated), itoa(s.MissingAbstract)}},
			[]columnAlignment{alignRight, alignRight, alignRight, alignRight, alignRight},
		))

		runs, err := db.ListIngestRuns(ctx, 10)
		if err != nil {
			return fmt.Errorf("listing ingest runs: %w", err)
		}
		if len(runs) == 0 {
			fmt.Println("\nNo ingest runs yet. Run: journalfeed ingest")
			return nil
		}

		rows := make([][]string, 0, len(runs))
		for _, r := range runs {
			rows = append(rows, []string{r.FinishedAt, r.FeedURL, itoa(r.Added), itoa(r.Skipped), itoa(r.Errors)})
		}
		fmt.Println("\nRecent ingest runs:")
		fmt.Println(renderTable(os.Stdout,
			[]string{"Finished", "Feed", "Added", "Skipped", "Errors"}, rows,
			[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight},
		))
		return nil
	},
}

var journalsCmd = &cobra.Command{
	Use:   "journals",
	Short: "List known journals",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		journals, counts, err := db.ListJournals(cmd.Context())
		if err != nil {
			return err
		}
		if len(journals) == 0 {
			fmt.Println("No journals yet. Run: journalfeed ingest")
			return nil
		}

		rows := make([][]string, 0, len(journals))
		for _, j := range journals {
			rows = append(rows, []string{strconv.FormatInt(j.ID, 10), j.Name, itoa(counts[j.ID]), j.RSSURL})
		}
		fmt.Println(renderTable(os.Stdout,
			[]string{"ID", "Name", "Articles", "Feed"}, rows,
			[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft},
		))
		return nil
	},
}

// --- ingest command ---

var ingestCmd = &cobra.Command{
	Use:   "ingest [feed-url...]",
	Short: "Ingest configured feeds, or only the given feed URLs",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		feeds, err := cfg.AllFeeds()
		if err != nil {
			return err
		}
		p := collect.NewPipeline(db, collect.NewFeedParser(0), feeds, cfg.Ingest.Limit, stats)

		var results []*collect.Result
		var ingestErr error
		if len(args) == 0 {
			if len(feeds) == 0 {
				return errors.New("no feeds configured; add some to the config or pass a feed URL")
			}
			results, ingestErr = p.IngestAll(cmd.Context())
		} else {
			var errs []error
			for _, u := range args {
				r, err := p.Ingest(cmd.Context(), u)
				if err != nil {
					errs = append(errs, err)
					continue
				}
				results = append(results, r)
			}
			ingestErr = errors.Join(errs...)
		}

		printIngestResults(results)
		if ingestErr != nil {
			fmt.Printf("\nSome feeds failed:\n%v\n", ingestErr)
		}
		return nil
	},
}

func printIngestResults(results []*collect.Result) {
	if len(results) == 0 {
		return
	}
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		rows = append(rows, []string{r.Journal.Name, itoa(r.Found), itoa(r.Added), itoa(r.Skipped), itoa(len(r.Errors))})
	}
	fmt.Println(renderTable(os.Stdout,
		[]string{"Journal", "Found", "Added", "Skipped", "Errors"}, rows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight},
	))
	for _, r := range results {
		for _, e := range r.Errors {
			fmt.Printf("  %s: %v\n", r.Journal.Name, e)
		}
	}
}

// --- translate command ---

var (
	articleID int64
	maxCycles int
)

var translateCmd = &cobra.Command{
	Use:   "translate",
	Short: "Translate untranslated articles in batches, or one article with --article",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		provider := pipeline.NewProvider(cfg)
		if provider == nil {
			return pipeline.ErrNoProvider
		}

		if articleID > 0 {
			return translateOne(cmd.Context(), db, provider)
		}

		lock, err := acquireSchedulerLock()
		if err != nil {
			return err
		}
		defer lock.Unlock()

		if cmd.Flags().Changed("max-cycles") {
			cfg.Scheduler.MaxCycles = maxCycles
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		result, err := pipeline.NewScheduler(cfg, db, provider, stats).Run(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("\nTranslation complete: %d cycles, %d translated, %d failed\n",
			result.Cycles, result.Translated, result.Failed)
		return nil
	},
}

func init() {
	translateCmd.Flags().Int64Var(&articleID, "article", 0, "Translate a single article by ID")
	translateCmd.Flags().IntVar(&maxCycles, "max-cycles", 0, "Stop after this many batches (0 = until done)")
}

func translateOne(ctx context.Context, db *database.DB, provider llm.Provider) error {
	article, err := db.GetArticleByID(ctx, articleID)
	if err != nil {
		return err
	}
	if article == nil {
		return fmt.Errorf("article %d not found", articleID)
	}
	if article.IsTranslated() {
		fmt.Printf("Article %d is already translated: %s\n", article.ID, *article.TitleTranslated)
		return nil
	}

	svc := translate.NewService(provider, translate.OptionsFromConfig(cfg.Translation, stats))
	tr, err := svc.Translate(ctx, article.Title, article.Summary)
	if err != nil {
		stats.Translation(metrics.OutcomeFailed)
		return err
	}
	ok, err := db.UpdateTranslation(ctx, article.ID, tr.Title, tr.Summary)
	if err != nil {
		stats.Translation(metrics.OutcomeStoreError)
		return err
	}
	if !ok {
		fmt.Printf("Article %d was translated concurrently; keeping the stored translation.\n", article.ID)
		return nil
	}
	stats.Translation(metrics.OutcomeTranslated)
	fmt.Printf("[%d] %s\n     %s\n", article.ID, article.Title, tr.Title)
	return nil
}

// acquireSchedulerLock keeps two schedulers from drawing the same batch.
func acquireSchedulerLock() (*flock.Flock, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	lock := flock.New(filepath.Join(dataDir, "journalfeed.lock"))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, errors.New("another journalfeed translation run is already in progress")
	}
	return lock, nil
}

// --- run command ---

var dryRun bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full pipeline: ingest -> fetch abstracts -> translate",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var result *pipeline.Result
		if dryRun {
			result = pipeline.New(cfg, db, nil, stats).DryRun(ctx)
		} else {
			provider := pipeline.NewProvider(cfg)
			if provider == nil {
				return pipeline.ErrNoProvider
			}
			lock, err := acquireSchedulerLock()
			if err != nil {
				return err
			}
			defer lock.Unlock()
			result = pipeline.New(cfg, db, provider, stats).Run(ctx)
		}

		for i, step := range result.Steps {
			fmt.Printf("\nStep %d/%d: %s\n", i+1, len(result.Steps), step.Name)
			if step.Err != nil {
				fmt.Printf("  Error: %v\n", step.Err)
			} else {
				fmt.Printf("  %s\n", step.Summary)
			}
		}

		if result.Failed() {
			return errors.New("pipeline finished with errors")
		}
		if !dryRun {
			fmt.Println("\nPipeline complete! Run 'journalfeed status' for totals.")
		}
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be done without executing")
}

func openDB() (*database.DB, error) {
	return database.Open(cfg.GetDSN())
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
