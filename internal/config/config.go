package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Config carries all environment-driven settings. The numeric defaults
// (grace periods, cool-down, limiter ceiling, collection window, fees) are
// business-tuned values; treat them as defaults to retune, not invariants.
type Config struct {
	DBSource string
	OpsPort  string
	Env      string

	// Processor endpoints and credentials.
	AchWireBaseURL    string
	AchWireClientID   string
	AchWireSecret     string
	AchWireAltSecret  string
	CardRailBaseURL   string
	CardRailClientID  string
	CardRailSecret    string
	CardRailAltSecret string
	LedgerCoreBaseURL string

	// Shared service-level identity used for disbursements and unattributed
	// status fetches.
	ServiceIdentityID string

	// Sliding-window limiter for shared-identity fetches. The ceiling
	// targets 80% of the partner's stated cap.
	FetchLimitWindowSeconds int
	FetchLimitMaxCount      int
	FetchLimitBuckets       int

	// Reconciliation grace periods for NotFound results.
	PaymentNotFoundGrace      time.Duration
	DisbursementNotFoundGrace time.Duration
	ReconcileInterval         time.Duration
	ReconcileBatchSize        int

	// Eligibility.
	CollectionWindowStart string // "15:04", UTC
	CollectionWindowEnd   string
	RepeatChargeCoolDown  time.Duration
	MinNameLength         int

	// Adapter-static fees, negative amounts attached to transfer payloads.
	AchWireFee         decimal.Decimal
	AchWireSameDayFee  decimal.Decimal
	CardRailFee        decimal.Decimal
	CardRailSameDayFee decimal.Decimal
	CardRailRolloutPct int
}

func Load() (*Config, error) {
	dbSource := os.Getenv("DB_SOURCE")
	if dbSource == "" {
		return nil, fmt.Errorf("DB_SOURCE environment variable is required")
	}

	cfg := &Config{
		DBSource: dbSource,
		OpsPort:  getEnv("OPS_PORT", "9090"),
		Env:      getEnv("ENVIRONMENT", "development"),

		AchWireBaseURL:    getEnv("ACHWIRE_BASE_URL", "https://api.achwire.example.com/v3"),
		AchWireClientID:   getEnv("ACHWIRE_CLIENT_ID", ""),
		AchWireSecret:     getEnv("ACHWIRE_SECRET", ""),
		AchWireAltSecret:  getEnv("ACHWIRE_ALT_SECRET", ""),
		CardRailBaseURL:   getEnv("CARDRAIL_BASE_URL", "https://gateway.cardrail.example.com/v1"),
		CardRailClientID:  getEnv("CARDRAIL_CLIENT_ID", ""),
		CardRailSecret:    getEnv("CARDRAIL_SECRET", ""),
		CardRailAltSecret: getEnv("CARDRAIL_ALT_SECRET", ""),
		LedgerCoreBaseURL: getEnv("LEDGERCORE_BASE_URL", "http://ledger-core.internal:8080"),

		ServiceIdentityID: getEnv("SERVICE_IDENTITY_ID", "service-disbursement"),

		FetchLimitWindowSeconds: getEnvInt("FETCH_LIMIT_WINDOW_SECONDS", 60),
		FetchLimitMaxCount:      getEnvInt("FETCH_LIMIT_MAX_COUNT", 80),
		FetchLimitBuckets:       getEnvInt("FETCH_LIMIT_BUCKETS", 6),

		PaymentNotFoundGrace:      time.Duration(getEnvInt("PAYMENT_NOT_FOUND_GRACE_MINUTES", 60)) * time.Minute,
		DisbursementNotFoundGrace: time.Duration(getEnvInt("DISBURSEMENT_NOT_FOUND_GRACE_HOURS", 72)) * time.Hour,
		ReconcileInterval:         time.Duration(getEnvInt("RECONCILE_INTERVAL_SECONDS", 300)) * time.Second,
		ReconcileBatchSize:        getEnvInt("RECONCILE_BATCH_SIZE", 100),

		CollectionWindowStart: getEnv("COLLECTION_WINDOW_START", "09:00"),
		CollectionWindowEnd:   getEnv("COLLECTION_WINDOW_END", "16:30"),
		RepeatChargeCoolDown:  time.Duration(getEnvInt("REPEAT_CHARGE_COOL_DOWN_HOURS", 72)) * time.Hour,
		MinNameLength:         getEnvInt("MIN_NAME_LENGTH", 2),

		AchWireFee:         getEnvDecimal("ACHWIRE_FEE", "-0.25"),
		AchWireSameDayFee:  getEnvDecimal("ACHWIRE_SAME_DAY_FEE", "-0.75"),
		CardRailFee:        getEnvDecimal("CARDRAIL_FEE", "-0.50"),
		CardRailSameDayFee: getEnvDecimal("CARDRAIL_SAME_DAY_FEE", "-1.50"),
		CardRailRolloutPct: getEnvInt("CARDRAIL_ROLLOUT_PCT", 0),
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDecimal(key, fallback string) decimal.Decimal {
	if v := os.Getenv(key); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			return d
		}
	}
	return decimal.RequireFromString(fallback)
}
