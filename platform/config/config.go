// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// JWTConfig provides JWT validation settings for admin middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
	GetSubmitRatePerMinute() int
}

// EmailConfig provides SMTP settings for the email notification channel.
type EmailConfig interface {
	GetEmailEnabled() bool
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetEmailFromName() string
	GetEmailFromAddress() string
}

// SMSConfig provides settings for the SMS gateway channel.
type SMSConfig interface {
	GetSMSGatewayURL() string
	GetSMSGatewayKey() string
	GetSMSSenderID() string
}

// SchedulerConfig provides settings for the asynq worker and Redis.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
	GetDispatchSweepInterval() time.Duration
	GetArchiveSweepInterval() time.Duration
}

// MatchingConfig provides the tunable scoring parameters.
type MatchingConfig interface {
	GetMatchWeights() (geographic, capability, quality, capacity float64)
	GetMatchScoreFloor() float64
	GetMatchTopN() int
}

// DispatchConfig provides notification delivery policy.
type DispatchConfig interface {
	GetNotifyMaxAttempts() int
	GetNotifyBaseBackoff() time.Duration
	GetNotifyProviderTimeout() time.Duration
	GetNotifyJobTTL() time.Duration
	GetNotifyGlobalHourlyLimit() int
	GetNotifyBuilderHourlyLimit() int
	GetAppBaseURL() string
}

// IntakeConfig provides lead intake policy.
type IntakeConfig interface {
	GetIntakeDedupWindow() time.Duration
}

// LifecycleConfig provides lifecycle write policy.
type LifecycleConfig interface {
	GetLifecycleMaxConflictRetries() int
	GetArchiveAfter() time.Duration
}

// AnalyticsConfig provides the rolling window used by the aggregator and how
// often it reads new rows from the event log.
type AnalyticsConfig interface {
	GetAnalyticsWindow() time.Duration
	GetAnalyticsFollowInterval() time.Duration
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                         string
	HTTPAddr                    string
	DatabaseURL                 string
	JWTAccessSecret             string
	CORSAllowAll                bool
	CORSOrigins                 []string
	CORSAllowCreds              bool
	SubmitRatePerMinute         int
	AppBaseURL                  string
	EmailEnabled                bool
	SMTPHost                    string
	SMTPPort                    int
	SMTPUsername                string
	SMTPPassword                string
	EmailFromName               string
	EmailFromAddress            string
	SMSGatewayURL               string
	SMSGatewayKey               string
	SMSSenderID                 string
	RedisURL                    string
	RedisTLSInsecure            bool
	AsynqQueueName              string
	AsynqConcurrency            int
	DispatchSweepInterval       time.Duration
	ArchiveSweepInterval        time.Duration
	MatchWeightGeographic       float64
	MatchWeightCapability       float64
	MatchWeightQuality          float64
	MatchWeightCapacity         float64
	MatchScoreFloor             float64
	MatchTopN                   int
	NotifyMaxAttempts           int
	NotifyBaseBackoff           time.Duration
	NotifyProviderTimeout       time.Duration
	NotifyJobTTL                time.Duration
	NotifyGlobalHourlyLimit     int
	NotifyBuilderHourlyLimit    int
	IntakeDedupWindow           time.Duration
	LifecycleMaxConflictRetries int
	ArchiveAfter                time.Duration
	AnalyticsWindow             time.Duration
	AnalyticsFollowInterval     time.Duration
	BuilderSeedFile             string
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// JWTConfig implementation
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string         { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool       { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string    { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool     { return c.CORSAllowCreds }
func (c *Config) GetSubmitRatePerMinute() int { return c.SubmitRatePerMinute }

// EmailConfig implementation
func (c *Config) GetEmailEnabled() bool       { return c.EmailEnabled }
func (c *Config) GetSMTPHost() string         { return c.SMTPHost }
func (c *Config) GetSMTPPort() int            { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string     { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string     { return c.SMTPPassword }
func (c *Config) GetEmailFromName() string    { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string { return c.EmailFromAddress }

// SMSConfig implementation
func (c *Config) GetSMSGatewayURL() string { return c.SMSGatewayURL }
func (c *Config) GetSMSGatewayKey() string { return c.SMSGatewayKey }
func (c *Config) GetSMSSenderID() string   { return c.SMSSenderID }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string                     { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool               { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string               { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int                { return c.AsynqConcurrency }
func (c *Config) GetDispatchSweepInterval() time.Duration { return c.DispatchSweepInterval }
func (c *Config) GetArchiveSweepInterval() time.Duration  { return c.ArchiveSweepInterval }

// MatchingConfig implementation
func (c *Config) GetMatchWeights() (float64, float64, float64, float64) {
	return c.MatchWeightGeographic, c.MatchWeightCapability, c.MatchWeightQuality, c.MatchWeightCapacity
}
func (c *Config) GetMatchScoreFloor() float64 { return c.MatchScoreFloor }
func (c *Config) GetMatchTopN() int           { return c.MatchTopN }

// DispatchConfig implementation
func (c *Config) GetNotifyMaxAttempts() int               { return c.NotifyMaxAttempts }
func (c *Config) GetNotifyBaseBackoff() time.Duration     { return c.NotifyBaseBackoff }
func (c *Config) GetNotifyProviderTimeout() time.Duration { return c.NotifyProviderTimeout }
func (c *Config) GetNotifyJobTTL() time.Duration          { return c.NotifyJobTTL }
func (c *Config) GetNotifyGlobalHourlyLimit() int         { return c.NotifyGlobalHourlyLimit }
func (c *Config) GetNotifyBuilderHourlyLimit() int        { return c.NotifyBuilderHourlyLimit }
func (c *Config) GetAppBaseURL() string                   { return c.AppBaseURL }

// IntakeConfig implementation
func (c *Config) GetIntakeDedupWindow() time.Duration { return c.IntakeDedupWindow }

// LifecycleConfig implementation
func (c *Config) GetLifecycleMaxConflictRetries() int { return c.LifecycleMaxConflictRetries }
func (c *Config) GetArchiveAfter() time.Duration      { return c.ArchiveAfter }

// AnalyticsConfig implementation
func (c *Config) GetAnalyticsWindow() time.Duration         { return c.AnalyticsWindow }
func (c *Config) GetAnalyticsFollowInterval() time.Duration { return c.AnalyticsFollowInterval }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:3000"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	smtpHost := getEnv("SMTP_HOST", "")
	emailEnabled := strings.EqualFold(getEnv("EMAIL_ENABLED", "true"), "true")

	cfg := &Config{
		Env:                         getEnv("APP_ENV", "development"),
		HTTPAddr:                    getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:                 getEnv("DATABASE_URL", ""),
		JWTAccessSecret:             getEnv("JWT_ACCESS_SECRET", ""),
		CORSAllowAll:                corsAllowAll,
		CORSOrigins:                 corsOrigins,
		CORSAllowCreds:              strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "false"), "true"),
		SubmitRatePerMinute:         mustInt(getEnv("SUBMIT_RATE_PER_MINUTE", "10")),
		AppBaseURL:                  getEnv("APP_BASE_URL", "http://localhost:3000"),
		EmailEnabled:                emailEnabled && smtpHost != "",
		SMTPHost:                    smtpHost,
		SMTPPort:                    mustInt(getEnv("SMTP_PORT", "587")),
		SMTPUsername:                getEnv("SMTP_USERNAME", ""),
		SMTPPassword:                getEnv("SMTP_PASSWORD", ""),
		EmailFromName:               getEnv("EMAIL_FROM_NAME", "StandZon Leads"),
		EmailFromAddress:            getEnv("EMAIL_FROM_ADDRESS", ""),
		SMSGatewayURL:               getEnv("SMS_GATEWAY_URL", ""),
		SMSGatewayKey:               getEnv("SMS_GATEWAY_KEY", ""),
		SMSSenderID:                 getEnv("SMS_SENDER_ID", "StandZon"),
		RedisURL:                    getEnv("REDIS_URL", ""),
		RedisTLSInsecure:            strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:              getEnv("ASYNQ_QUEUE", "notifications"),
		AsynqConcurrency:            mustInt(getEnv("ASYNQ_CONCURRENCY", "10")),
		DispatchSweepInterval:       mustDuration(getEnv("NOTIFY_SWEEP_INTERVAL", "30s")),
		ArchiveSweepInterval:        mustDuration(getEnv("LEAD_ARCHIVE_SWEEP_INTERVAL", "1h")),
		MatchWeightGeographic:       mustFloat(getEnv("MATCH_WEIGHT_GEOGRAPHIC", "35")),
		MatchWeightCapability:       mustFloat(getEnv("MATCH_WEIGHT_CAPABILITY", "25")),
		MatchWeightQuality:          mustFloat(getEnv("MATCH_WEIGHT_QUALITY", "25")),
		MatchWeightCapacity:         mustFloat(getEnv("MATCH_WEIGHT_CAPACITY", "15")),
		MatchScoreFloor:             mustFloat(getEnv("MATCH_SCORE_FLOOR", "40")),
		MatchTopN:                   mustInt(getEnv("MATCH_TOP_N", "20")),
		NotifyMaxAttempts:           mustInt(getEnv("NOTIFY_MAX_ATTEMPTS", "3")),
		NotifyBaseBackoff:           mustDuration(getEnv("NOTIFY_BASE_BACKOFF", "30s")),
		NotifyProviderTimeout:       mustDuration(getEnv("NOTIFY_PROVIDER_TIMEOUT", "10s")),
		NotifyJobTTL:                mustDuration(getEnv("NOTIFY_JOB_TTL", "168h")),
		NotifyGlobalHourlyLimit:     mustInt(getEnv("NOTIFY_GLOBAL_HOURLY_LIMIT", "1000")),
		NotifyBuilderHourlyLimit:    mustInt(getEnv("NOTIFY_BUILDER_HOURLY_LIMIT", "10")),
		IntakeDedupWindow:           mustDuration(getEnv("INTAKE_DEDUP_WINDOW", "10m")),
		LifecycleMaxConflictRetries: mustInt(getEnv("LIFECYCLE_MAX_CONFLICT_RETRIES", "5")),
		ArchiveAfter:                mustDuration(getEnv("LEAD_ARCHIVE_AFTER", "720h")),
		AnalyticsWindow:             mustDuration(getEnv("ANALYTICS_WINDOW", "24h")),
		AnalyticsFollowInterval:     mustDuration(getEnv("ANALYTICS_FOLLOW_INTERVAL", "15s")),
		BuilderSeedFile:             getEnv("BUILDER_SEED_FILE", ""),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTAccessSecret == "" {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if cfg.EmailEnabled && cfg.EmailFromAddress == "" {
		return nil, fmt.Errorf("EMAIL_FROM_ADDRESS is required when email is enabled")
	}
	if cfg.CORSAllowAll && cfg.CORSAllowCreds {
		return nil, fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}
	if cfg.NotifyMaxAttempts < 1 {
		return nil, fmt.Errorf("NOTIFY_MAX_ATTEMPTS must be at least 1")
	}
	if cfg.NotifyBuilderHourlyLimit < 1 || cfg.NotifyGlobalHourlyLimit < 1 {
		return nil, fmt.Errorf("notification hourly limits must be positive")
	}
	if cfg.MatchWeightGeographic+cfg.MatchWeightCapability+cfg.MatchWeightQuality+cfg.MatchWeightCapacity <= 0 {
		return nil, fmt.Errorf("MATCH_WEIGHT_* must sum to a positive value")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return result
}

func mustFloat(value string) float64 {
	result, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
