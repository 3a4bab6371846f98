package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/stillgrab/stillgrab/internal/cache"
	"github.com/stillgrab/stillgrab/internal/config"
	"github.com/stillgrab/stillgrab/internal/history"
	"github.com/stillgrab/stillgrab/internal/log"
	"github.com/stillgrab/stillgrab/internal/media"
	"github.com/stillgrab/stillgrab/internal/remote"
	"github.com/stillgrab/stillgrab/internal/report"
	"github.com/stillgrab/stillgrab/internal/sched"
	"github.com/stillgrab/stillgrab/internal/walker"
	"golang.org/x/term"
)

// Version is set at build time via -ldflags
var Version = "dev"

func main() {
	var (
		showVersion bool
		configPath  string
		force       bool
		root        string
		showHistory int
	)
	flag.BoolVar(&showVersion, "v", false, "print version")
	flag.BoolVar(&showVersion, "version", false, "print version")
	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.BoolVar(&force, "force", false, "re-check every folder and file, ignoring cached results")
	flag.StringVar(&root, "root", "", "scan root (overrides config)")
	flag.IntVar(&showHistory, "history", 0, "print the N most recent runs and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("stillgrab %s\n", Version)
		return
	}

	if err := run(configPath, root, force, showHistory); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, rootFlag string, force bool, showHistory int) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := log.SetupLogger(&cfg.Logging)
	if err != nil {
		// Fall back to null logger if file logging fails
		logger = log.NullLogger()
	}
	slog.SetDefault(logger)

	if !cfg.IsConfigured() {
		return runSetupFlow(cfg, logger)
	}

	if showHistory > 0 {
		return printHistory(cfg, showHistory)
	}

	root := cfg.Scan.Root
	if rootFlag != "" {
		root = rootFlag
	}

	logger.Info("starting stillgrab", "version", Version, "root", root, "force", force)

	if err := os.MkdirAll(cfg.Pipeline.ScratchDir, 0755); err != nil {
		return fmt.Errorf("failed to create scratch directory: %w", err)
	}

	client := remote.NewClient(&cfg.Server, logger)

	repo, err := cache.Open(cfg.Pipeline.DataDir, logger)
	if err != nil {
		return fmt.Errorf("failed to open cache: %w", err)
	}
	defer repo.Close()

	journal, err := history.Open(cfg.Pipeline.DataDir, cfg.Server.URL)
	if err != nil {
		return fmt.Errorf("failed to open run history: %w", err)
	}
	defer journal.Close()

	ctx := context.Background()

	ioLane := sched.NewLane("io", cfg.Scan.IOConcurrency, logger)
	mediaLane := sched.NewLane("media", 1, logger)

	batch := client.SupportsBatchExists(ctx)
	logger.Info("existence check mode", "batch", batch)

	resolver := remote.NewResolver(client, ioLane, batch, logger)
	runner := media.NewFFmpeg(cfg.Server.VerifyTLS, logger)
	pipeline := media.NewPipeline(runner, client, mediaLane, cfg.Pipeline.ScratchDir, cfg.Pipeline.MaxDownloadMB, logger)

	stats := report.NewStats()
	proc := walker.NewProcessor(pipeline, client, repo, stats, logger)
	w := walker.New(client, repo, resolver, proc, ioLane, stats,
		cfg.Scan.Cooldown, cfg.Scan.Extensions, force, logger)

	started := time.Now()
	w.Scan(ctx, root)

	// The walk returns before the dispatched jobs do.
	sched.WaitIdle(ctx, time.Second, ioLane, mediaLane)
	elapsed := time.Since(started)

	sum := stats.Snapshot()
	fmt.Println(report.Render(sum, elapsed))

	rec := history.NewRecord(started, time.Now(), root, force, sum)
	if err := journal.Append(rec); err != nil {
		logger.Error("failed to record run", "error", err)
	}

	logger.Info("run finished", "elapsed", elapsed, "uploaded", sum.Uploaded, "failed", sum.Failed)

	if sum.Failed > 0 {
		return fmt.Errorf("%d candidate(s) failed, see %s", sum.Failed, cfg.Logging.File)
	}
	return nil
}

func printHistory(cfg *config.Config, n int) error {
	journal, err := history.Open(cfg.Pipeline.DataDir, cfg.Server.URL)
	if err != nil {
		return fmt.Errorf("failed to open run history: %w", err)
	}
	defer journal.Close()

	recs, err := journal.Recent(n)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Println("No recorded runs.")
		return nil
	}

	for _, r := range recs {
		mode := ""
		if r.Force {
			mode = " (force)"
		}
		fmt.Printf("%s  root=%s%s  uploaded=%d failed=%d skipped_size=%d skipped_exists=%d skipped_cache=%d  took %s\n",
			r.StartedAt.Local().Format("2006-01-02 15:04"), r.Root, mode,
			r.Uploaded, r.Failed, r.SkippedSize, r.SkippedExists, r.SkippedCache,
			r.FinishedAt.Sub(r.StartedAt).Round(time.Second))
	}
	return nil
}

// runSetupFlow handles the initial setup when not configured
func runSetupFlow(cfg *config.Config, logger *slog.Logger) error {
	fmt.Println()
	fmt.Println("Welcome to Stillgrab!")
	fmt.Println()

	reader := bufio.NewReader(os.Stdin)

	var serverURL string
	for {
		fmt.Print("Enter your server URL (e.g., https://cloud.example.com): ")
		input, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}
		serverURL = strings.TrimSpace(input)
		if serverURL != "" {
			break
		}
		fmt.Println("Server URL cannot be empty. Please try again.")
	}

	fmt.Print("Username: ")
	input, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	username := strings.TrimSpace(input)

	fmt.Print("Password or app token: ")
	pwBytes, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}

	fmt.Print("Shared upload secret (optional, press Enter to skip): ")
	secretBytes, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("failed to read secret: %w", err)
	}

	cfg.Server.URL = strings.TrimRight(serverURL, "/")
	cfg.Server.Username = username
	cfg.Server.Password = string(pwBytes)
	cfg.Server.Secret = string(secretBytes)

	// Verify credentials before persisting them.
	fmt.Println()
	fmt.Println("Checking server access...")
	client := remote.NewClient(&cfg.Server, logger)
	if _, err := client.Stat("/"); err != nil {
		return fmt.Errorf("could not access the server with these credentials: %w", err)
	}

	if err := config.SaveConfig(cfg); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Println("✓ Connected. Configuration saved.")
	fmt.Println()
	fmt.Println("Run stillgrab again to start the first crawl.")

	logger.Info("setup completed", "server", cfg.Server.URL, "user", username)
	return nil
}
