package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/ocr-analytics/internal/analysis"
	"github.com/zombor/ocr-analytics/internal/ocr"
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

	// A missing .env is fine; the environment and flags still apply
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "error: loading .env: %v\n", err)
		os.Exit(1)
	}

	fs := ff.NewFlagSet("ocr-analytics")
	var (
		port           = fs.IntLong("port", 8080, "HTTP server port")
		dbPath         = fs.StringLong("db", "ocr-analytics.db", "Database file path")
		storagePath    = fs.StringLong("storage", "./uploads", "Storage directory path")
		providerName   = fs.StringLong("provider", "azure", "OCR provider: 'azure', 'gemini', 'ollama' or 'mock'")
		azureEndpoint  = fs.StringLong("azure-endpoint", "", "Azure Computer Vision endpoint, e.g. https://westus.api.cognitive.microsoft.com")
		azureKey       = fs.StringLong("azure-key", "", "Azure Computer Vision subscription key")
		pollInterval   = fs.DurationLong("poll-interval", ocr.DefaultPollInterval, "Delay between Azure status queries")
		requestsPerMin = fs.IntLong("requests-per-minute", 20, "Azure request budget per minute (0 = unlimited)")
		geminiKey      = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel    = fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
		ollamaURL      = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel    = fs.StringLong("ollama-model", "llava", "Ollama vision model name (e.g., llava, qwen2-vl)")
		mockDelay      = fs.DurationLong("mock-delay", 0, "Simulated processing time of the mock provider")
		analyzeTimeout = fs.DurationLong("analyze-timeout", 2*time.Minute, "Upper bound for one OCR analysis")
		concurrency    = fs.IntLong("concurrency", 4, "Parallel analyses per batch upload")
		authUser       = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass       = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		logFormat      = fs.StringLong("log-format", "text", "Log output format: 'text' or 'json'")
		showVersion    = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("OCR_ANALYTICS"),
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

	switch *logFormat {
	case "json":
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
	case "text":
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	default:
		fmt.Fprintf(os.Stderr, "error: invalid log format %q (valid: text or json)\n", *logFormat)
		os.Exit(1)
	}

	// Initialize database
	slog.Info("Initializing database...")
	db, err := analysis.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Initialize OCR provider based on type
	var analyzer ocr.Analyzer
	switch *providerName {
	case "azure":
		slog.Info("Initializing Azure Read provider...", "endpoint", *azureEndpoint, "requests_per_minute", *requestsPerMin)
		analyzer, err = ocr.NewAzure(ocr.AzureConfig{
			Endpoint:          *azureEndpoint,
			APIKey:            *azureKey,
			PollInterval:      *pollInterval,
			RequestsPerMinute: *requestsPerMin,
		})
		if err != nil {
			slog.Error("Failed to initialize Azure", "error", err)
			os.Exit(1)
		}
	case "gemini":
		// Get Gemini API key from flag or environment
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
			os.Exit(1)
		}
		slog.Info("Initializing Gemini provider...", "model", *geminiModel)
		analyzer, err = ocr.NewGemini(context.Background(), apiKey, *geminiModel)
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			os.Exit(1)
		}
	case "ollama":
		slog.Info("Initializing Ollama provider...", "url", *ollamaURL, "model", *ollamaModel)
		analyzer, err = ocr.NewOllama(*ollamaURL, *ollamaModel)
		if err != nil {
			slog.Error("Failed to initialize Ollama", "error", err)
			os.Exit(1)
		}
	case "mock":
		slog.Info("Initializing mock provider...", "delay", *mockDelay)
		analyzer = ocr.NewMock(*mockDelay)
	default:
		slog.Error("Invalid provider", "provider", *providerName, "valid", "azure, gemini, ollama or mock")
		os.Exit(1)
	}
	defer analyzer.Close()

	// Initialize storage
	slog.Info("Initializing storage...")
	store, err := analysis.NewLocalStorage(*storagePath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	// Initialize service
	service := analysis.NewServiceWithOptions(db, analyzer, store, analysis.Options{
		AnalyzeTimeout: *analyzeTimeout,
		Concurrency:    *concurrency,
	})

	// Initialize server
	basicAuth := analysis.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := analysis.NewServer(service, basicAuth)

	// Start server in goroutine
	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "provider", service.Provider(), "version", version)
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}
