package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/vinodismyname/crcalc/config"
	"github.com/vinodismyname/crcalc/internal/datasets"
	"github.com/vinodismyname/crcalc/internal/params"
	"github.com/vinodismyname/crcalc/internal/registry"
	"github.com/vinodismyname/crcalc/internal/runtime"
	"github.com/vinodismyname/crcalc/internal/security"
	"github.com/vinodismyname/crcalc/internal/telemetry"
	"github.com/vinodismyname/crcalc/pkg/version"
)

const (
	envParamsFile = "CRCALC_PARAMS_FILE"
	envDataPath   = "CRCALC_DATA_PATH"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	var (
		useStdio        bool
		envFile         string
		paramsFile      string
		dataPath        string
		sheet           string
		shutdownTimeout time.Duration
	)

	flag.BoolVar(&useStdio, "stdio", false, "Run server over stdio transport")
	flag.StringVar(&envFile, "env-file", ".env", "Optional dotenv file loaded before reading the environment")
	flag.StringVar(&paramsFile, "params", "", "YAML file with fixed parameters (default $"+envParamsFile+")")
	flag.StringVar(&dataPath, "data", "", "Performance table to preload (default $"+envDataPath+")")
	flag.StringVar(&sheet, "sheet", "", "Worksheet of the preloaded table (default "+config.DefaultSheetName+")")
	flag.DurationVar(&shutdownTimeout, "shutdown-timeout", 5*time.Second, "Graceful shutdown timeout")
	flag.Parse()

	logger := zlog.Output(os.Stderr).With().Str("service", "crcalc-server").Logger()
	ctx := logger.WithContext(context.Background())

	if envFile != "" {
		if err := godotenv.Load(envFile); err == nil {
			logger.Info().Str("env_file", envFile).Msg("environment loaded")
		} else if !os.IsNotExist(err) {
			logger.Warn().Err(err).Str("env_file", envFile).Msg("failed to load env file")
		}
	}
	if paramsFile == "" {
		paramsFile = os.Getenv(envParamsFile)
	}
	if dataPath == "" {
		dataPath = os.Getenv(envDataPath)
	}

	// Security: validate allow-list directories on startup (fail-safe on error)
	secMgr, err := security.NewManagerFromEnv()
	if err != nil {
		logger.Error().Err(err).Msg("security: failed to initialize manager from env")
		fmt.Fprintln(os.Stderr, "invalid security configuration; set "+security.EnvAllowedDirs)
		os.Exit(1)
	}
	if err := secMgr.ValidateConfig(); err != nil {
		logger.Error().Err(err).Msg("security: invalid allow-list configuration")
		fmt.Fprintln(os.Stderr, "no allowed directories configured; set "+security.EnvAllowedDirs)
		os.Exit(1)
	}
	logger.Info().Strs("allowed_dirs", secMgr.AllowedDirectories()).Msg("security allow-list configured")

	fixed := params.Default()
	if paramsFile != "" {
		fixed, err = params.LoadFile(paramsFile)
		if err != nil {
			logger.Error().Err(err).Str("params_file", paramsFile).Msg("failed to load parameters")
			os.Exit(1)
		}
	}
	snap := fixed.Snapshot()
	logger.Info().
		Str("source", snap.Source).
		Int("tribes", len(snap.RetentionByTribe)).
		Int("segments", len(snap.ConversionRateBySegment)).
		Float64("default_unique_user_ratio", snap.DefaultUniqueUserRatio).
		Msg("parameters loaded")

	limits := runtime.NewLimits(config.DefaultMaxConcurrentRequests, config.DefaultMaxOpenDatasets)
	runtimeController := runtime.NewController(limits)
	runtimeMW := runtime.NewMiddleware(runtimeController, logger)

	dsMgr := datasets.NewManager(
		config.DefaultDatasetIdleTTL,
		config.DefaultDatasetCleanupPeriod,
		runtimeController,
		time.Now,
		datasets.WithValidator(secMgr),
		datasets.WithMaxRows(limits.MaxRowsPerDataset),
		datasets.WithLogger(logger),
	)
	dsMgr.Start()

	if dataPath != "" {
		id, canonical, err := dsMgr.Open(ctx, dataPath, sheet)
		if err != nil {
			logger.Error().Err(err).Str("path", dataPath).Msg("failed to preload dataset")
			os.Exit(1)
		}
		logger.Info().Str("dataset_id", id).Str("path", canonical).Msg("dataset preloaded")
	}

	toolRegistry := registry.New()
	writeFilter := registry.NewWriteToolFilterFromEnv()

	srv := server.NewMCPServer(
		"CR Avoided Contact Calculator",
		version.Version(),
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithHooks(telemetry.NewHooks(logger)),
		server.WithToolHandlerMiddleware(runtimeMW.ToolMiddleware),
		server.WithToolFilter(func(ctx context.Context, tools []mcp.Tool) []mcp.Tool { return writeFilter.FilterTools(ctx, tools) }),
	)

	deps := registry.Deps{
		Limits:   runtimeController.LimitsSnapshot(),
		Datasets: dsMgr,
		Params:   fixed,
		Security: secMgr,
	}
	registry.RegisterDatasetTools(srv, toolRegistry, deps)
	registry.RegisterCalculatorTools(srv, toolRegistry, deps)

	logger.Info().
		Str("name", version.Name).
		Str("version", version.Version()).
		Int("max_concurrent_requests", limits.MaxConcurrentRequests).
		Int("max_open_datasets", limits.MaxOpenDatasets).
		Strs("tools", toolRegistry.Names()).
		Bool("writes_enabled", writeFilter.AllowWrites()).
		Bool("stdio", useStdio).
		Msg("server bootstrap configured")

	if !useStdio {
		fmt.Fprintln(os.Stderr, "no transport selected; use --stdio to run over stdio")
		os.Exit(2)
	}

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ServeStdio(srv)
	}()

	var serveErr error
	select {
	case serveErr = <-errCh:
	case <-sigCtx.Done():
		logger.Info().Msg("shutdown signal received")
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := dsMgr.Close(closeCtx); err != nil {
		logger.Warn().Err(err).Msg("dataset manager close")
	}
	if serveErr != nil {
		// Use stderr for transport errors so clients don't misinterpret output
		fmt.Fprintf(os.Stderr, "Server error: %v\n", serveErr)
		os.Exit(1)
	}
}
