package config

import "time"

// Default runtime limits and guardrails for the CR avoided-volume calculator server.
// They are referenced by internal/runtime, internal/datasets and internal/params
// and can be overridden by flags, environment or the parameters file.

const (
	// Concurrency
	DefaultMaxConcurrentRequests = 10
	DefaultMaxOpenDatasets       = 4

	// Dataset and page bounds
	DefaultMaxRowsPerDataset = 500_000
	DefaultRankPageSize      = 50
	MaxRankPageSize          = 500
)

const (
	// Timeouts
	DefaultOperationTimeout      = 30 * time.Second
	DefaultAcquireRequestTimeout = 2 * time.Second

	// Dataset cache
	DefaultDatasetIdleTTL       = 30 * time.Minute
	DefaultDatasetCleanupPeriod = time.Minute
)

// Source table defaults.
const (
	DefaultSheetName = "Tabela Performance"
	UndefinedTribe   = "Indefinido"
)

// Fixed business parameters used when no parameters file is supplied.
const (
	DefaultRetentionApp = 0.916893598
	DefaultRetentionBot = 0.883475537
	DefaultRetentionWeb = 0.902710768

	DefaultConversionMobile      = 0.4947
	DefaultConversionResidential = 0.4989

	DefaultConversionRate  = 0.50
	DefaultUniqueUserRatio = 12.28
)

// Model constants.
const (
	// TruncationEpsilon absorbs float representation error before flooring.
	TruncationEpsilon = 1e-9
	// MinTransactionsPerAccess floors the transactions-per-access ratio.
	MinTransactionsPerAccess = 1.0
	// ParetoThresholdPct bounds the priority subset (inclusive).
	ParetoThresholdPct = 80.0
)
