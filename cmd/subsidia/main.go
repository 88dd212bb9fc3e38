package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/subsidia/internal/common"
	"github.com/ternarybob/subsidia/internal/models"
	"github.com/ternarybob/subsidia/internal/services/discovery"
	"github.com/ternarybob/subsidia/internal/services/explorer"
	"github.com/ternarybob/subsidia/internal/services/finder"
	"github.com/ternarybob/subsidia/internal/services/llm"
	"github.com/ternarybob/subsidia/internal/services/scraper"
	"github.com/ternarybob/subsidia/internal/services/trust"
	"github.com/ternarybob/subsidia/internal/services/visual"
	badgerstore "github.com/ternarybob/subsidia/internal/storage/badger"
)

// configPaths is a custom flag type that allows multiple -config flags
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	// Command-line flags
	configFiles  configPaths // Multiple -config flags supported
	profileFlag  = flag.String("profile", "", "Organization profile: a text file path or inline text")
	userFlag     = flag.String("user", "default", "Scope identifier for the history ledger")
	onceFlag     = flag.Bool("once", false, "Run a single discovery pass and exit")
	watchFlag    = flag.Bool("watch", false, "Run discovery on the configured cron schedule")
	showVersion  = flag.Bool("version", false, "Print version information")
	showVersionV = flag.Bool("v", false, "Print version information (shorthand)")

	// Global state
	config *common.Config
	logger arbor.ILogger
)

func init() {
	// Register custom flag for multiple config files
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	flag.Parse()

	if *showVersion || *showVersionV {
		fmt.Printf("Subsidia version %s\n", common.GetVersion())
		os.Exit(0)
	}

	// Startup sequence (REQUIRED ORDER):
	// 1. Load config (defaults -> file1 -> file2 -> ... -> env)
	// 2. Initialize logger
	// 3. Print banner
	var err error

	// Auto-discover config file if not specified
	if len(configFiles) == 0 {
		if _, err := os.Stat("subsidia.toml"); err == nil {
			configFiles = append(configFiles, "subsidia.toml")
		} else if _, err := os.Stat("deployments/local/subsidia.toml"); err == nil {
			configFiles = append(configFiles, "deployments/local/subsidia.toml")
		}
	}

	config, err = common.LoadFromFiles(configFiles...)
	if err != nil {
		tempLogger := arbor.NewLogger()
		tempLogger.Fatal().Strs("paths", configFiles).Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}

	logger = common.InitLogger(config)
	common.PrintBanner(common.GetVersion())

	profile, err := loadProfile(*profileFlag)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load organization profile")
		os.Exit(1)
	}

	prompts, err := common.LoadPrompts(config.Prompts.Path)
	if err != nil {
		logger.Fatal().Err(err).Str("path", config.Prompts.Path).Msg("Failed to load prompt templates")
		os.Exit(1)
	}

	// Wire services bottom-up: LLM, browser pool, storage, pipeline.
	services, err := llm.NewServices(config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize LLM services")
		os.Exit(1)
	}
	defer services.Close()

	pool := explorer.NewBrowserPool(&config.Browser, logger)
	if err := pool.Init(&config.Browser); err != nil {
		logger.Warn().Err(err).Msg("Browser pool unavailable, continuing without page rendering")
	}
	defer pool.Shutdown()

	db, err := badgerstore.NewBadgerDB(logger, &config.Storage.Badger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open history ledger")
		os.Exit(1)
	}
	ledger := badgerstore.NewLedgerStorage(db, logger)
	defer ledger.Close()

	trustEval := trust.NewEvaluator(config, logger)
	exp := explorer.NewExplorer(pool, config, logger)
	vis := visual.NewAnalyzer(services.Vision, prompts, logger)
	scr := scraper.NewScraper(exp, vis, config, logger)
	fnd := finder.NewFinder(services.Grounded, trustEval, scr, exp, prompts, config, logger)
	orch := discovery.NewOrchestrator(fnd, ledger, config, logger)

	switch {
	case *watchFlag:
		runWatch(orch, profile, *userFlag)
	default:
		if !*onceFlag {
			logger.Info().Msg("No mode flag given, running a single pass (-once)")
		}
		if err := runOnce(context.Background(), orch, profile, *userFlag); err != nil {
			logger.Fatal().Err(err).Msg("Discovery run failed")
			os.Exit(1)
		}
	}
}

// runOnce executes a single discovery pass and prints the report.
func runOnce(ctx context.Context, orch *discovery.Orchestrator, profile, scope string) error {
	events := make(chan models.ProgressEvent, 64)
	done := make(chan struct{})
	common.SafeGo(logger, "progress-events", func() {
		defer close(done)
		for event := range events {
			logger.Info().
				Str("stage", string(event.Stage)).
				Str("candidate", event.Candidate).
				Msg(event.Message)
		}
	})

	result, err := orch.Run(ctx, &discovery.Request{
		Scope:   scope,
		Profile: profile,
		Events:  events,
	})
	close(events)
	<-done
	if err != nil {
		return err
	}

	fmt.Println(result.Report)
	logger.Info().
		Int("verified", len(result.Verified)).
		Int("deduped", result.Deduped).
		Int("skipped", result.Skipped).
		Msg("Discovery pass complete")
	return nil
}

// runWatch schedules discovery passes on the configured cron spec and
// blocks until interrupted.
func runWatch(orch *discovery.Orchestrator, profile, scope string) {
	scheduler := cron.New()
	_, err := scheduler.AddFunc(config.Schedule.Spec, func() {
		if err := runOnce(context.Background(), orch, profile, scope); err != nil {
			logger.Error().Err(err).Msg("Scheduled discovery run failed")
		}
	})
	if err != nil {
		logger.Fatal().Err(err).Str("spec", config.Schedule.Spec).Msg("Invalid cron schedule")
		os.Exit(1)
	}

	scheduler.Start()
	logger.Info().Str("spec", config.Schedule.Spec).Msg("Watch mode started - Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("Interrupt signal received, stopping scheduler")
	shutdownCtx := scheduler.Stop()
	<-shutdownCtx.Done()
	logger.Info().Msg("Scheduler stopped")
}

// loadProfile resolves the -profile flag: a readable file wins,
// otherwise the flag value is the profile text itself.
func loadProfile(value string) (string, error) {
	if strings.TrimSpace(value) == "" {
		return "", fmt.Errorf("-profile is required: pass a text file path or the profile text itself")
	}
	if info, err := os.Stat(value); err == nil && !info.IsDir() {
		data, err := os.ReadFile(value)
		if err != nil {
			return "", fmt.Errorf("failed to read profile file: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	return value, nil
}
