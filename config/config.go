package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"billtrack/recurring"
)

// Config holds application configuration
type Config struct {
	// Database configuration
	DatabaseHost     string
	DatabasePort     string
	DatabaseName     string
	DatabaseUser     string
	DatabasePassword string

	// Redis configuration
	RedisHost     string
	RedisPassword string
	RedisPort     string

	// HTTP API
	APIPort int

	LogLevel string

	// Transactions fetched per page from the feed
	FeedPageSize int

	// LLM configuration
	LLM LLMConfig

	// Background scan worker
	Scan ScanConfig

	// Detection thresholds
	Detection DetectionConfig
}

// LLMConfig holds LLM service configuration
type LLMConfig struct {
	Enabled        bool
	Endpoint       string
	APIKey         string
	Model          string
	TimeoutSeconds int
	Retries        int
	CallsPerMinute int
	Burst          int
	CacheTTLHours  int
}

// Timeout returns the per-call deadline for split verdicts
func (c LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// CacheTTL returns how long a verdict stays cached
func (c LLMConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLHours) * time.Hour
}

// ScanConfig controls the scheduled incremental scan
type ScanConfig struct {
	Enabled         bool
	IntervalMinutes int
	Workers         int
}

// Interval returns the scan period
func (c ScanConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

// DetectionConfig mirrors recurring.Params so every threshold can be tuned from the environment
type DetectionConfig struct {
	MinOccurrences        int
	DedupWindowDays       int
	DedupAmountRatio      float64
	DedupAmountFloor      float64
	ClusterGapRatio       float64
	RegularityTolerance   float64
	MinMatchRatio         float64
	StrictMaxCV           float64
	RelaxedMaxCV          float64
	RelaxedMinOccurrences int
	CategoryOverrideCV    float64
	ExcludedCategories    []string
	DormancyGraceDays     int
	PaymentWindowDays     int
	DriftRatio            float64
	SplitAmountRatio      float64
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	// Load .env file if exists
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found, using environment variables")
	}

	d := recurring.DefaultParams()

	return &Config{
		// Database configuration
		DatabaseHost:     getEnvOrDefault("DB_HOST", "localhost"),
		DatabasePort:     getEnvOrDefault("DB_PORT", "5432"),
		DatabaseName:     getEnvOrDefault("DB_NAME", "billtrack"),
		DatabaseUser:     getEnvOrDefault("DB_USER", "billtrack"),
		DatabasePassword: getEnvOrDefault("DB_PASSWORD", "billtrack"),

		// Redis configuration
		RedisHost:     getEnvOrDefault("REDIS_HOST", "localhost"),
		RedisPort:     getEnvOrDefault("REDIS_PORT", "6379"),
		RedisPassword: getEnvOrDefault("REDIS_PASSWORD", ""),

		APIPort:      getEnvInt("API_PORT", 8080),
		LogLevel:     getEnvOrDefault("LOG_LEVEL", "info"),
		FeedPageSize: getEnvInt("FEED_PAGE_SIZE", 1000),

		// LLM configuration
		LLM: LLMConfig{
			Enabled:        getEnvBool("LLM_ENABLED", false),
			Endpoint:       getEnvOrDefault("LLM_ENDPOINT", "https://api.openai.com/v1"),
			APIKey:         getEnvOrDefault("LLM_API_KEY", ""),
			Model:          getEnvOrDefault("LLM_MODEL", "gpt-4o-mini"),
			TimeoutSeconds: getEnvInt("LLM_TIMEOUT_SECONDS", 15),
			Retries:        getEnvInt("LLM_RETRIES", 1),
			CallsPerMinute: getEnvInt("LLM_CALLS_PER_MINUTE", 30),
			Burst:          getEnvInt("LLM_BURST", 3),
			CacheTTLHours:  getEnvInt("LLM_CACHE_TTL_HOURS", 24*7),
		},

		Scan: ScanConfig{
			Enabled:         getEnvBool("SCAN_ENABLED", true),
			IntervalMinutes: getEnvInt("SCAN_INTERVAL_MINUTES", 360),
			Workers:         getEnvInt("SCAN_WORKERS", 4),
		},

		Detection: DetectionConfig{
			MinOccurrences:        getEnvInt("DETECT_MIN_OCCURRENCES", d.MinOccurrences),
			DedupWindowDays:       getEnvInt("DETECT_DEDUP_WINDOW_DAYS", d.DedupWindowDays),
			DedupAmountRatio:      getEnvFloat("DETECT_DEDUP_AMOUNT_RATIO", d.DedupAmountRatio),
			DedupAmountFloor:      getEnvFloat("DETECT_DEDUP_AMOUNT_FLOOR", d.DedupAmountFloor),
			ClusterGapRatio:       getEnvFloat("DETECT_CLUSTER_GAP_RATIO", d.ClusterGapRatio),
			RegularityTolerance:   getEnvFloat("DETECT_REGULARITY_TOLERANCE", d.RegularityTolerance),
			MinMatchRatio:         getEnvFloat("DETECT_MIN_MATCH_RATIO", d.MinMatchRatio),
			StrictMaxCV:           getEnvFloat("DETECT_STRICT_MAX_CV", d.StrictMaxCV),
			RelaxedMaxCV:          getEnvFloat("DETECT_RELAXED_MAX_CV", d.RelaxedMaxCV),
			RelaxedMinOccurrences: getEnvInt("DETECT_RELAXED_MIN_OCCURRENCES", d.RelaxedMinOccurrences),
			CategoryOverrideCV:    getEnvFloat("DETECT_CATEGORY_OVERRIDE_CV", d.CategoryOverrideCV),
			ExcludedCategories:    getEnvList("DETECT_EXCLUDED_CATEGORIES", d.ExcludedCategories),
			DormancyGraceDays:     getEnvInt("DETECT_DORMANCY_GRACE_DAYS", d.DormancyGraceDays),
			PaymentWindowDays:     getEnvInt("DETECT_PAYMENT_WINDOW_DAYS", d.PaymentWindowDays),
			DriftRatio:            getEnvFloat("DETECT_DRIFT_RATIO", d.DriftRatio),
			SplitAmountRatio:      getEnvFloat("DETECT_SPLIT_AMOUNT_RATIO", d.SplitAmountRatio),
		},
	}
}

// DetectionParams converts the detection section into engine parameters
func (c *Config) DetectionParams() recurring.Params {
	d := c.Detection
	return recurring.Params{
		MinOccurrences:        d.MinOccurrences,
		DedupWindowDays:       d.DedupWindowDays,
		DedupAmountRatio:      d.DedupAmountRatio,
		DedupAmountFloor:      d.DedupAmountFloor,
		ClusterGapRatio:       d.ClusterGapRatio,
		RegularityTolerance:   d.RegularityTolerance,
		MinMatchRatio:         d.MinMatchRatio,
		StrictMaxCV:           d.StrictMaxCV,
		RelaxedMaxCV:          d.RelaxedMaxCV,
		RelaxedMinOccurrences: d.RelaxedMinOccurrences,
		CategoryOverrideCV:    d.CategoryOverrideCV,
		ExcludedCategories:    append([]string(nil), d.ExcludedCategories...),
		DormancyGraceDays:     d.DormancyGraceDays,
		PaymentWindowDays:     d.PaymentWindowDays,
		DriftRatio:            d.DriftRatio,
		SplitAmountRatio:      d.SplitAmountRatio,
	}
}

// getEnvInt gets environment variable as int or returns default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var intValue int
	if _, err := fmt.Sscanf(value, "%d", &intValue); err != nil {
		return defaultValue
	}
	return intValue
}

// getEnvFloat gets environment variable as float64 or returns default value
func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var floatValue float64
	if _, err := fmt.Sscanf(value, "%f", &floatValue); err != nil {
		return defaultValue
	}
	return floatValue
}

// getEnvBool accepts true/false, 1/0 and yes/no
func getEnvBool(key string, defaultValue bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return defaultValue
	}
}

// getEnvList splits a comma separated variable, dropping empty entries
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if strings.TrimSpace(value) == "" {
		return append([]string(nil), defaultValue...)
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// getEnvOrDefault gets environment variable or returns default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
