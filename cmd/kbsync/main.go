package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kbforge/kbsync/internal/app"
	"github.com/kbforge/kbsync/internal/config"
	"github.com/kbforge/kbsync/internal/fetcher"
	"github.com/kbforge/kbsync/internal/indexer"
	"github.com/kbforge/kbsync/internal/output"
	"github.com/kbforge/kbsync/internal/utils"
	"github.com/kbforge/kbsync/pkg/version"
)

var (
	cfgFile string
	verbose bool
	log     *utils.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "kbsync",
	Short: "Synchronize knowledge-base articles into a semantic search index",
	Long: `kbsync fetches help-center articles, converts them to normalized
Markdown, detects which documents changed since the previous run, splits
changed documents into retrieval-sized segments, and synchronizes them
into a vector store used by a question-answering assistant.

Only new and changed articles are re-indexed; removed articles are
deleted from the index.`,
	Version: version.Short(),
	RunE:    run,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.kbsync/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")

	rootCmd.Flags().String("api-url", "", "Knowledge base articles API URL")
	rootCmd.Flags().Int("page-size", config.DefaultPageSize, "Articles per API page")
	rootCmd.Flags().Int("max-segment-chars", config.DefaultMaxSegmentChars, "Maximum characters per segment")
	rootCmd.Flags().String("state-dir", "", "Identity snapshot directory")
	rootCmd.Flags().Bool("no-cache", false, "Disable page caching")
	rootCmd.Flags().String("schedule", "", "Cron expression for repeated runs (empty = run once)")
	rootCmd.Flags().Bool("dry-run", false, "Plan without applying or committing")
	rootCmd.Flags().Bool("confirm-full-deletion", false, "Allow a run that removes every known document")
	rootCmd.Flags().Bool("no-progress", false, "Disable upload progress bar")

	_ = viper.BindPFlag("source.api_url", rootCmd.Flags().Lookup("api-url"))
	_ = viper.BindPFlag("source.page_size", rootCmd.Flags().Lookup("page-size"))
	_ = viper.BindPFlag("segment.max_chars", rootCmd.Flags().Lookup("max-segment-chars"))
	_ = viper.BindPFlag("state.directory", rootCmd.Flags().Lookup("state-dir"))
	_ = viper.BindPFlag("schedule.cron", rootCmd.Flags().Lookup("schedule"))

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(urlsCmd)
	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
}

func run(cmd *cobra.Command, args []string) error {
	logLevel := "info"
	if verbose {
		logLevel = "debug"
	}
	log = utils.NewLogger(utils.LoggerOptions{
		Level:   logLevel,
		Format:  "pretty",
		Verbose: verbose,
	})

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if noCache, _ := cmd.Flags().GetBool("no-cache"); noCache {
		cfg.Cache.Enabled = false
	}

	dryRun, _ := cmd.Flags().GetBool("dry-run")
	confirmFullDeletion, _ := cmd.Flags().GetBool("confirm-full-deletion")
	noProgress, _ := cmd.Flags().GetBool("no-progress")

	runOpts := app.RunOptions{
		DryRun:              dryRun,
		ConfirmFullDeletion: confirmFullDeletion,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info().Msg("Shutting down gracefully...")
		cancel()
	}()

	orchestrator, err := app.NewOrchestrator(app.Options{
		Config:   cfg,
		Logger:   log,
		Progress: !noProgress && !dryRun,
	})
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}
	defer orchestrator.Close()

	if err := runOnce(ctx, orchestrator, runOpts); err != nil {
		return err
	}

	if cfg.Schedule.Cron == "" {
		return nil
	}

	return runScheduled(ctx, orchestrator, runOpts, cfg.Schedule.Cron)
}

func runOnce(ctx context.Context, orchestrator *app.Orchestrator, opts app.RunOptions) error {
	summary, err := orchestrator.Run(ctx, opts)
	if err != nil {
		return err
	}
	log.Info().
		Int("articles", summary.Articles).
		Int("added", summary.Added).
		Int("updated", summary.Updated).
		Int("unchanged", summary.Unchanged).
		Int("removed", summary.Removed).
		Int("segments", summary.Segments).
		Bool("dry_run", summary.DryRun).
		Dur("duration", summary.Duration).
		Msg("Run summary")
	return nil
}

// runScheduled keeps the process alive and re-runs on the cron schedule
// until interrupted. A tick that fires while a run is still in flight
// is skipped rather than stacked.
func runScheduled(ctx context.Context, orchestrator *app.Orchestrator, opts app.RunOptions, expr string) error {
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", expr, err)
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	c.Schedule(schedule, cron.FuncJob(func() {
		if err := runOnce(ctx, orchestrator, opts); err != nil {
			log.Error().Err(err).Msg("Scheduled run failed")
		}
	}))

	log.Info().Str("schedule", expr).Msg("Entering scheduled mode")
	c.Start()
	<-ctx.Done()

	stopCtx := c.Stop()
	<-stopCtx.Done()
	return nil
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report vector store file processing status",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		client, err := indexer.NewClient(indexer.Options{
			BaseURL:       cfg.Index.BaseURL,
			APIKey:        cfg.Index.APIKey,
			VectorStoreID: cfg.Index.VectorStoreID,
			Timeout:       cfg.Index.Timeout,
			Retrier:       fetcher.DefaultRetrierOptions(),
		})
		if err != nil {
			return err
		}
		defer client.Close()

		reports, err := client.Status(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("Found %d files in vector store %s\n", len(reports), cfg.Index.VectorStoreID)
		failed := 0
		for _, r := range reports {
			if r.Status == "completed" || r.Status == "processed" {
				continue
			}
			failed++
			fmt.Printf("  %s (%s): %s", r.ID, r.Filename, r.Status)
			if r.Error != "" {
				fmt.Printf(" - %s", r.Error)
			}
			fmt.Println()
		}
		if failed == 0 {
			fmt.Println("All files processed successfully.")
		} else {
			fmt.Printf("%d files not processed. See above for details.\n", failed)
		}
		return nil
	},
}

var urlsCmd = &cobra.Command{
	Use:   "urls",
	Short: "List source URLs found in archived articles",
	Long:  "Scans the article archive and prints every Article URL line, useful for auditing retrieval citations.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		writer := output.NewWriter(output.WriterOptions{
			BaseDir: utils.ExpandPath(cfg.Archive.Directory),
		})

		urls, err := writer.SourceURLs()
		if err != nil {
			return err
		}
		if len(urls) == 0 {
			fmt.Println("No archived articles with source URLs found.")
			return nil
		}

		for file, fileURLs := range urls {
			fmt.Printf("%s:\n", file)
			for _, u := range fileURLs {
				fmt.Printf("  %s\n", u)
			}
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.Full())
	},
}
