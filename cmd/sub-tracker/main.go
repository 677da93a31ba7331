package main

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/zombor/sub-tracker/internal/domains"
	"github.com/zombor/sub-tracker/internal/scanning"
	"github.com/zombor/sub-tracker/internal/subscription"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("sub-tracker")
	var (
		port        = fs.IntLong("port", 8080, "HTTP server port")
		dbPath      = fs.StringLong("db", "sub-tracker.db", "Database file path")
		cancelLinks = fs.StringLong("cancel-links", "", "Path to a cancellation-links JSON file (defaults to the embedded table)")
		signalsPath = fs.StringLong("signals", "", "Path to a YAML file overriding the classifier signal tables")
		scanTimeout = fs.DurationLong("scan-timeout", scanning.DefaultScanTimeout, "How long to wait for a scan verdict")
		authUser    = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass    = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		showVersion = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("SUB_TRACKER"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	// Initialize database
	slog.Info("Initializing database...")
	db, err := subscription.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Load cancellation reference data
	links, err := loadLinks(*cancelLinks)
	if err != nil {
		slog.Error("Failed to load cancellation links", "error", err)
		os.Exit(1)
	}
	slog.Info("Loaded cancellation links", "domains", len(links))

	// Build the classifier from the default or tuned signal tables
	signals := scanning.DefaultSignals()
	if *signalsPath != "" {
		signals, err = scanning.LoadSignals(*signalsPath)
		if err != nil {
			slog.Error("Failed to load signal tables", "path", *signalsPath, "error", err)
			os.Exit(1)
		}
		slog.Info("Loaded tuned signal tables", "path", *signalsPath)
	}
	classifier, err := scanning.NewClassifier(signals)
	if err != nil {
		slog.Error("Failed to compile signal tables", "error", err)
		os.Exit(1)
	}

	// Wire the scan protocol: classifier runs against registered page
	// snapshots and verdicts flow back through the coordinator.
	injector := scanning.NewSnapshotInjector(classifier)
	coordinator := scanning.NewCoordinatorWithTimeout(injector, *scanTimeout)
	injector.DeliverTo(coordinator)

	// Initialize records and queries
	store := subscription.NewStore(db)
	queries := subscription.NewQueries()

	// Initialize server
	basicAuth := subscription.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := subscription.NewServer(store, queries, coordinator, injector, links, basicAuth)

	// Start server in goroutine
	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "scan_timeout", *scanTimeout)
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}

func loadLinks(path string) (domains.Links, error) {
	if path == "" {
		return domains.DefaultLinks()
	}
	return domains.LoadLinks(path)
}
