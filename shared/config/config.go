package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Problem struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type Config struct {
	Env              string
	ServiceName      string
	HTTPPort         int
	LogLevel         string
	ConfigPath       string
	RequestTimeoutMS int
	RequestTimeout   time.Duration

	OIDCIssuer      string
	OIDCAudience    string
	OIDCJWKSURL     string
	JWKSTTLSeconds  int
	JWTClockSkewSec int

	DatabaseURL      string
	DBMaxConns       int
	DBMinConns       int
	DBConnMaxIdleSec int
	DBConnMaxLifeSec int

	AuditEnabled bool

	KafkaBrokers  []string
	KafkaClientID string
	KafkaGroupID  string
	KafkaRetryMax int
	KafkaWriteMS  int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	AsynqRedisAddr   string
	AsynqRedisPass   string
	AsynqRedisDB     int
	AsynqQueue       string
	AsynqConcurrency int

	OutboxScanSec     int
	OutboxBatchSize   int
	OutboxMaxAttempts int

	InfluxURL       string
	InfluxToken     string
	InfluxOrg       string
	InfluxBucket    string
	InfluxTimeoutMS int

	GeofenceRadiusM    float64
	PatrolFixTimeoutMS int
	PatrolFixMaxAgeMS  int
	EvidenceMaxBytes   int
	SessionHistoryMax  int
	PostCacheTTLSec    int

	BlobDir     string
	BlobBaseURL string

	LowStockScanSec int

	OtelEnabled     bool
	OtelEndpoint    string
	OtelInsecure    bool
	OtelSampleRatio float64
}

func Load(serviceNameDefault string, httpPortDefault int) (Config, []Problem) {
	envRaw := strings.TrimSpace(os.Getenv("ENV"))
	cfg := Config{
		Env:              envRaw,
		ServiceName:      serviceNameDefault,
		HTTPPort:         httpPortDefault,
		LogLevel:         "info",
		ConfigPath:       strings.TrimSpace(os.Getenv("CONFIG_PATH")),
		RequestTimeoutMS: 30000,

		OIDCIssuer:      strings.TrimSpace(os.Getenv("OIDC_ISSUER")),
		OIDCAudience:    strings.TrimSpace(os.Getenv("OIDC_AUDIENCE")),
		OIDCJWKSURL:     strings.TrimSpace(os.Getenv("OIDC_JWKS_URL")),
		JWKSTTLSeconds:  300,
		JWTClockSkewSec: 60,

		DatabaseURL:      strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DBMaxConns:       10,
		DBMinConns:       1,
		DBConnMaxIdleSec: 300,
		DBConnMaxLifeSec: 1800,

		AuditEnabled: false,

		KafkaRetryMax: 5,
		KafkaWriteMS:  5000,

		AsynqQueue:       "default",
		AsynqConcurrency: 10,

		OutboxScanSec:     5,
		OutboxBatchSize:   50,
		OutboxMaxAttempts: 20,

		InfluxTimeoutMS: 5000,

		GeofenceRadiusM:    100,
		PatrolFixTimeoutMS: 10000,
		PatrolFixMaxAgeMS:  0,
		EvidenceMaxBytes:   5 << 20,
		SessionHistoryMax:  50,
		PostCacheTTLSec:    60,

		BlobDir:     strings.TrimSpace(os.Getenv("BLOB_DIR")),
		BlobBaseURL: strings.TrimSpace(os.Getenv("BLOB_BASE_URL")),

		LowStockScanSec: 300,

		OtelEnabled:     false,
		OtelInsecure:    true,
		OtelSampleRatio: 1.0,
	}

	problems := make([]Problem, 0, 4)
	envProvided := envRaw != ""

	if repoRoot, ok := findRepoRoot(); ok && cfg.Env != "" && cfg.ConfigPath == "" {
		cfg.ConfigPath = filepath.Join(repoRoot, "configs", cfg.Env+".json")
	}

	if fileData, fileProblems, ok := loadConfigFile(cfg.ConfigPath, strings.TrimSpace(os.Getenv("CONFIG_PATH")) != ""); ok {
		problems = append(problems, fileProblems...)
		if fileEnv, ok := readStringKey(fileData, "ENV"); ok && strings.TrimSpace(fileEnv) != "" {
			envProvided = true
		}
		applyConfigMap(&cfg, fileData, &problems)
	} else {
		problems = append(problems, fileProblems...)
	}

	applyEnv(&cfg, &problems)

	// If issuer is set and no explicit JWKS URL is provided, default to issuer/.well-known/jwks.json.
	if cfg.OIDCIssuer != "" && strings.TrimSpace(cfg.OIDCJWKSURL) == "" {
		cfg.OIDCJWKSURL = strings.TrimRight(cfg.OIDCIssuer, "/") + "/.well-known/jwks.json"
	}

	if cfg.Env == "" {
		cfg.Env = "dev"
	}
	if !envProvided {
		problems = append(problems, Problem{Field: "ENV", Message: "ENV is required"})
	}
	if cfg.HTTPPort <= 0 || cfg.HTTPPort > 65535 {
		problems = append(problems, Problem{Field: "HTTP_PORT", Message: "HTTP_PORT must be 1-65535"})
		cfg.HTTPPort = httpPortDefault
	}
	if cfg.RequestTimeoutMS <= 0 {
		problems = append(problems, Problem{Field: "REQUEST_TIMEOUT_MS", Message: "REQUEST_TIMEOUT_MS must be > 0"})
		cfg.RequestTimeoutMS = 30000
	}
	cfg.RequestTimeout = time.Duration(cfg.RequestTimeoutMS) * time.Millisecond
	if cfg.JWKSTTLSeconds <= 0 {
		problems = append(problems, Problem{Field: "JWKS_CACHE_TTL_SECONDS", Message: "JWKS_CACHE_TTL_SECONDS must be > 0"})
		cfg.JWKSTTLSeconds = 300
	}
	if cfg.JWTClockSkewSec < 0 {
		problems = append(problems, Problem{Field: "JWT_CLOCK_SKEW_SECONDS", Message: "JWT_CLOCK_SKEW_SECONDS must be >= 0"})
		cfg.JWTClockSkewSec = 60
	}
	if cfg.DBMaxConns <= 0 {
		problems = append(problems, Problem{Field: "DB_MAX_CONNS", Message: "DB_MAX_CONNS must be > 0"})
		cfg.DBMaxConns = 10
	}
	if cfg.DBMinConns < 0 {
		problems = append(problems, Problem{Field: "DB_MIN_CONNS", Message: "DB_MIN_CONNS must be >= 0"})
		cfg.DBMinConns = 1
	}
	if cfg.DBMinConns > cfg.DBMaxConns {
		problems = append(problems, Problem{Field: "DB_MIN_CONNS", Message: "DB_MIN_CONNS must be <= DB_MAX_CONNS"})
		cfg.DBMinConns = cfg.DBMaxConns
	}
	if cfg.DBConnMaxIdleSec <= 0 {
		problems = append(problems, Problem{Field: "DB_CONN_MAX_IDLE_SECONDS", Message: "DB_CONN_MAX_IDLE_SECONDS must be > 0"})
		cfg.DBConnMaxIdleSec = 300
	}
	if cfg.DBConnMaxLifeSec <= 0 {
		problems = append(problems, Problem{Field: "DB_CONN_MAX_LIFETIME_SECONDS", Message: "DB_CONN_MAX_LIFETIME_SECONDS must be > 0"})
		cfg.DBConnMaxLifeSec = 1800
	}
	if cfg.KafkaRetryMax < 0 {
		problems = append(problems, Problem{Field: "KAFKA_RETRY_MAX", Message: "KAFKA_RETRY_MAX must be >= 0"})
		cfg.KafkaRetryMax = 5
	}
	if cfg.KafkaWriteMS <= 0 {
		problems = append(problems, Problem{Field: "KAFKA_WRITE_TIMEOUT_MS", Message: "KAFKA_WRITE_TIMEOUT_MS must be > 0"})
		cfg.KafkaWriteMS = 5000
	}
	if cfg.RedisDB < 0 {
		problems = append(problems, Problem{Field: "REDIS_DB", Message: "REDIS_DB must be >= 0"})
		cfg.RedisDB = 0
	}
	if cfg.AsynqRedisDB < 0 {
		problems = append(problems, Problem{Field: "ASYNQ_REDIS_DB", Message: "ASYNQ_REDIS_DB must be >= 0"})
		cfg.AsynqRedisDB = 0
	}
	if cfg.AsynqConcurrency <= 0 {
		problems = append(problems, Problem{Field: "ASYNQ_CONCURRENCY", Message: "ASYNQ_CONCURRENCY must be > 0"})
		cfg.AsynqConcurrency = 10
	}
	if cfg.OutboxScanSec <= 0 {
		problems = append(problems, Problem{Field: "OUTBOX_SCAN_INTERVAL_SECONDS", Message: "OUTBOX_SCAN_INTERVAL_SECONDS must be > 0"})
		cfg.OutboxScanSec = 5
	}
	if cfg.OutboxBatchSize <= 0 {
		problems = append(problems, Problem{Field: "OUTBOX_BATCH_SIZE", Message: "OUTBOX_BATCH_SIZE must be > 0"})
		cfg.OutboxBatchSize = 50
	}
	if cfg.OutboxMaxAttempts <= 0 {
		problems = append(problems, Problem{Field: "OUTBOX_MAX_ATTEMPTS", Message: "OUTBOX_MAX_ATTEMPTS must be > 0"})
		cfg.OutboxMaxAttempts = 20
	}
	if cfg.InfluxTimeoutMS <= 0 {
		problems = append(problems, Problem{Field: "INFLUX_TIMEOUT_MS", Message: "INFLUX_TIMEOUT_MS must be > 0"})
		cfg.InfluxTimeoutMS = 5000
	}
	if cfg.GeofenceRadiusM <= 0 {
		problems = append(problems, Problem{Field: "GEOFENCE_RADIUS_M", Message: "GEOFENCE_RADIUS_M must be > 0"})
		cfg.GeofenceRadiusM = 100
	}
	if cfg.PatrolFixTimeoutMS <= 0 {
		problems = append(problems, Problem{Field: "PATROL_FIX_TIMEOUT_MS", Message: "PATROL_FIX_TIMEOUT_MS must be > 0"})
		cfg.PatrolFixTimeoutMS = 10000
	}
	if cfg.PatrolFixMaxAgeMS < 0 {
		problems = append(problems, Problem{Field: "PATROL_FIX_MAX_AGE_MS", Message: "PATROL_FIX_MAX_AGE_MS must be >= 0"})
		cfg.PatrolFixMaxAgeMS = 0
	}
	if cfg.EvidenceMaxBytes <= 0 {
		problems = append(problems, Problem{Field: "EVIDENCE_MAX_BYTES", Message: "EVIDENCE_MAX_BYTES must be > 0"})
		cfg.EvidenceMaxBytes = 5 << 20
	}
	if cfg.SessionHistoryMax <= 0 {
		problems = append(problems, Problem{Field: "SESSION_HISTORY_MAX", Message: "SESSION_HISTORY_MAX must be > 0"})
		cfg.SessionHistoryMax = 50
	}
	if cfg.PostCacheTTLSec < 0 {
		problems = append(problems, Problem{Field: "POST_CACHE_TTL_SECONDS", Message: "POST_CACHE_TTL_SECONDS must be >= 0"})
		cfg.PostCacheTTLSec = 60
	}
	if cfg.LowStockScanSec <= 0 {
		problems = append(problems, Problem{Field: "LOWSTOCK_SCAN_INTERVAL_SECONDS", Message: "LOWSTOCK_SCAN_INTERVAL_SECONDS must be > 0"})
		cfg.LowStockScanSec = 300
	}
	if cfg.OtelSampleRatio < 0 || cfg.OtelSampleRatio > 1 {
		problems = append(problems, Problem{Field: "OTEL_SAMPLE_RATIO", Message: "OTEL_SAMPLE_RATIO must be 0-1"})
		cfg.OtelSampleRatio = 1.0
	}

	return cfg, problems
}

func findRepoRoot() (string, bool) {
	start, err := os.Getwd()
	if err != nil {
		return "", false
	}
	dir := start
	for i := 0; i < 8; i++ {
		candidate := filepath.Join(dir, "configs")
		if fi, err := os.Stat(candidate); err == nil && fi.IsDir() {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false
}

func loadConfigFile(path string, explicit bool) (map[string]any, []Problem, bool) {
	if strings.TrimSpace(path) == "" {
		return nil, nil, false
	}

	b, err := os.ReadFile(path)
	if err != nil {
		if explicit && !errors.Is(err, os.ErrNotExist) {
			return nil, []Problem{{Field: "CONFIG_PATH", Message: fmt.Sprintf("failed to read config file: %v", err)}}, false
		}
		if explicit && errors.Is(err, os.ErrNotExist) {
			return nil, []Problem{{Field: "CONFIG_PATH", Message: "config file not found"}}, false
		}
		return nil, nil, false
	}

	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, []Problem{{Field: "CONFIG_PATH", Message: fmt.Sprintf("invalid json: %v", err)}}, false
	}
	return raw, nil, true
}

func applyConfigMap(cfg *Config, raw map[string]any, problems *[]Problem) {
	for k, v := range raw {
		switch strings.ToUpper(strings.TrimSpace(k)) {
		case "ENV":
			if s, ok := v.(string); ok {
				cfg.Env = strings.TrimSpace(s)
			}
		case "SERVICE_NAME":
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				cfg.ServiceName = strings.TrimSpace(s)
			}
		case "HTTP_PORT", "PORT":
			if p, ok := asInt(v); ok {
				cfg.HTTPPort = p
			} else {
				*problems = append(*problems, Problem{Field: "HTTP_PORT", Message: "HTTP_PORT must be an integer"})
			}
		case "LOG_LEVEL":
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				cfg.LogLevel = strings.TrimSpace(s)
			}
		case "REQUEST_TIMEOUT_MS":
			applyInt(v, &cfg.RequestTimeoutMS, "REQUEST_TIMEOUT_MS", problems)
		case "OIDC_ISSUER":
			applyString(v, &cfg.OIDCIssuer)
		case "OIDC_AUDIENCE":
			applyString(v, &cfg.OIDCAudience)
		case "OIDC_JWKS_URL":
			applyString(v, &cfg.OIDCJWKSURL)
		case "JWKS_CACHE_TTL_SECONDS":
			applyInt(v, &cfg.JWKSTTLSeconds, "JWKS_CACHE_TTL_SECONDS", problems)
		case "JWT_CLOCK_SKEW_SECONDS":
			applyInt(v, &cfg.JWTClockSkewSec, "JWT_CLOCK_SKEW_SECONDS", problems)
		case "DATABASE_URL":
			applyString(v, &cfg.DatabaseURL)
		case "DB_MAX_CONNS":
			applyInt(v, &cfg.DBMaxConns, "DB_MAX_CONNS", problems)
		case "DB_MIN_CONNS":
			applyInt(v, &cfg.DBMinConns, "DB_MIN_CONNS", problems)
		case "DB_CONN_MAX_IDLE_SECONDS":
			applyInt(v, &cfg.DBConnMaxIdleSec, "DB_CONN_MAX_IDLE_SECONDS", problems)
		case "DB_CONN_MAX_LIFETIME_SECONDS":
			applyInt(v, &cfg.DBConnMaxLifeSec, "DB_CONN_MAX_LIFETIME_SECONDS", problems)
		case "AUDIT_ENABLED":
			applyBool(v, &cfg.AuditEnabled, "AUDIT_ENABLED", problems)
		case "KAFKA_BROKERS":
			if s, ok := v.(string); ok {
				cfg.KafkaBrokers = parseCSV(s)
			} else if arr, ok := v.([]any); ok {
				cfg.KafkaBrokers = parseAnyCSV(arr)
			}
		case "KAFKA_CLIENT_ID":
			applyString(v, &cfg.KafkaClientID)
		case "KAFKA_CONSUMER_GROUP":
			applyString(v, &cfg.KafkaGroupID)
		case "KAFKA_RETRY_MAX":
			applyInt(v, &cfg.KafkaRetryMax, "KAFKA_RETRY_MAX", problems)
		case "KAFKA_WRITE_TIMEOUT_MS":
			applyInt(v, &cfg.KafkaWriteMS, "KAFKA_WRITE_TIMEOUT_MS", problems)
		case "REDIS_ADDR":
			applyString(v, &cfg.RedisAddr)
		case "REDIS_PASSWORD":
			if s, ok := v.(string); ok {
				cfg.RedisPassword = s
			}
		case "REDIS_DB":
			applyInt(v, &cfg.RedisDB, "REDIS_DB", problems)
		case "ASYNQ_REDIS_ADDR":
			applyString(v, &cfg.AsynqRedisAddr)
		case "ASYNQ_REDIS_PASSWORD":
			if s, ok := v.(string); ok {
				cfg.AsynqRedisPass = s
			}
		case "ASYNQ_REDIS_DB":
			applyInt(v, &cfg.AsynqRedisDB, "ASYNQ_REDIS_DB", problems)
		case "ASYNQ_QUEUE":
			applyString(v, &cfg.AsynqQueue)
		case "ASYNQ_CONCURRENCY":
			applyInt(v, &cfg.AsynqConcurrency, "ASYNQ_CONCURRENCY", problems)
		case "OUTBOX_SCAN_INTERVAL_SECONDS":
			applyInt(v, &cfg.OutboxScanSec, "OUTBOX_SCAN_INTERVAL_SECONDS", problems)
		case "OUTBOX_BATCH_SIZE":
			applyInt(v, &cfg.OutboxBatchSize, "OUTBOX_BATCH_SIZE", problems)
		case "OUTBOX_MAX_ATTEMPTS":
			applyInt(v, &cfg.OutboxMaxAttempts, "OUTBOX_MAX_ATTEMPTS", problems)
		case "INFLUX_URL":
			applyString(v, &cfg.InfluxURL)
		case "INFLUX_TOKEN":
			if s, ok := v.(string); ok {
				cfg.InfluxToken = s
			}
		case "INFLUX_ORG":
			applyString(v, &cfg.InfluxOrg)
		case "INFLUX_BUCKET":
			applyString(v, &cfg.InfluxBucket)
		case "INFLUX_TIMEOUT_MS":
			applyInt(v, &cfg.InfluxTimeoutMS, "INFLUX_TIMEOUT_MS", problems)
		case "GEOFENCE_RADIUS_M":
			applyFloat(v, &cfg.GeofenceRadiusM, "GEOFENCE_RADIUS_M", problems)
		case "PATROL_FIX_TIMEOUT_MS":
			applyInt(v, &cfg.PatrolFixTimeoutMS, "PATROL_FIX_TIMEOUT_MS", problems)
		case "PATROL_FIX_MAX_AGE_MS":
			applyInt(v, &cfg.PatrolFixMaxAgeMS, "PATROL_FIX_MAX_AGE_MS", problems)
		case "EVIDENCE_MAX_BYTES":
			applyInt(v, &cfg.EvidenceMaxBytes, "EVIDENCE_MAX_BYTES", problems)
		case "SESSION_HISTORY_MAX":
			applyInt(v, &cfg.SessionHistoryMax, "SESSION_HISTORY_MAX", problems)
		case "POST_CACHE_TTL_SECONDS":
			applyInt(v, &cfg.PostCacheTTLSec, "POST_CACHE_TTL_SECONDS", problems)
		case "BLOB_DIR":
			applyString(v, &cfg.BlobDir)
		case "BLOB_BASE_URL":
			applyString(v, &cfg.BlobBaseURL)
		case "LOWSTOCK_SCAN_INTERVAL_SECONDS":
			applyInt(v, &cfg.LowStockScanSec, "LOWSTOCK_SCAN_INTERVAL_SECONDS", problems)
		case "OTEL_ENABLED":
			applyBool(v, &cfg.OtelEnabled, "OTEL_ENABLED", problems)
		case "OTEL_EXPORTER_OTLP_ENDPOINT":
			applyString(v, &cfg.OtelEndpoint)
		case "OTEL_EXPORTER_OTLP_INSECURE":
			applyBool(v, &cfg.OtelInsecure, "OTEL_EXPORTER_OTLP_INSECURE", problems)
		case "OTEL_SAMPLE_RATIO":
			applyFloat(v, &cfg.OtelSampleRatio, "OTEL_SAMPLE_RATIO", problems)
		}
	}
}

func applyString(v any, dst *string) {
	if s, ok := v.(string); ok {
		*dst = strings.TrimSpace(s)
	}
}

func applyInt(v any, dst *int, field string, problems *[]Problem) {
	if n, ok := asInt(v); ok {
		*dst = n
		return
	}
	*problems = append(*problems, Problem{Field: field, Message: field + " must be an integer"})
}

func applyFloat(v any, dst *float64, field string, problems *[]Problem) {
	if f, ok := asFloat(v); ok {
		*dst = f
		return
	}
	*problems = append(*problems, Problem{Field: field, Message: field + " must be a number"})
}

func applyBool(v any, dst *bool, field string, problems *[]Problem) {
	switch t := v.(type) {
	case bool:
		*dst = t
		return
	case string:
		if b, ok := asBool(t); ok {
			*dst = b
			return
		}
	}
	*problems = append(*problems, Problem{Field: field, Message: field + " must be a boolean"})
}

func applyEnv(cfg *Config, problems *[]Problem) {
	if v := strings.TrimSpace(os.Getenv("SERVICE_NAME")); v != "" {
		cfg.ServiceName = v
	}

	portRaw := strings.TrimSpace(os.Getenv("HTTP_PORT"))
	if portRaw == "" {
		portRaw = strings.TrimSpace(os.Getenv("PORT"))
	}
	if portRaw != "" {
		if p, err := strconv.Atoi(portRaw); err != nil || p <= 0 || p > 65535 {
			*problems = append(*problems, Problem{Field: "HTTP_PORT", Message: "HTTP_PORT must be 1-65535"})
		} else {
			cfg.HTTPPort = p
		}
	}

	if v := strings.TrimSpace(os.Getenv("LOG_LEVEL")); v != "" {
		cfg.LogLevel = v
	}

	setIntEnv(problems, "REQUEST_TIMEOUT_MS", &cfg.RequestTimeoutMS)
	setStringEnv("OIDC_ISSUER", &cfg.OIDCIssuer)
	setStringEnv("OIDC_AUDIENCE", &cfg.OIDCAudience)
	setStringEnv("OIDC_JWKS_URL", &cfg.OIDCJWKSURL)
	setIntEnv(problems, "JWKS_CACHE_TTL_SECONDS", &cfg.JWKSTTLSeconds)
	setIntEnv(problems, "JWT_CLOCK_SKEW_SECONDS", &cfg.JWTClockSkewSec)
	setStringEnv("DATABASE_URL", &cfg.DatabaseURL)
	setIntEnv(problems, "DB_MAX_CONNS", &cfg.DBMaxConns)
	setIntEnv(problems, "DB_MIN_CONNS", &cfg.DBMinConns)
	setIntEnv(problems, "DB_CONN_MAX_IDLE_SECONDS", &cfg.DBConnMaxIdleSec)
	setIntEnv(problems, "DB_CONN_MAX_LIFETIME_SECONDS", &cfg.DBConnMaxLifeSec)
	setBoolEnv(problems, "AUDIT_ENABLED", &cfg.AuditEnabled)

	if v := strings.TrimSpace(os.Getenv("KAFKA_BROKERS")); v != "" {
		cfg.KafkaBrokers = parseCSV(v)
	}
	setStringEnv("KAFKA_CLIENT_ID", &cfg.KafkaClientID)
	setStringEnv("KAFKA_CONSUMER_GROUP", &cfg.KafkaGroupID)
	setIntEnv(problems, "KAFKA_RETRY_MAX", &cfg.KafkaRetryMax)
	setIntEnv(problems, "KAFKA_WRITE_TIMEOUT_MS", &cfg.KafkaWriteMS)

	setStringEnv("REDIS_ADDR", &cfg.RedisAddr)
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	setIntEnv(problems, "REDIS_DB", &cfg.RedisDB)

	setStringEnv("ASYNQ_REDIS_ADDR", &cfg.AsynqRedisAddr)
	if v := os.Getenv("ASYNQ_REDIS_PASSWORD"); v != "" {
		cfg.AsynqRedisPass = v
	}
	setIntEnv(problems, "ASYNQ_REDIS_DB", &cfg.AsynqRedisDB)
	setStringEnv("ASYNQ_QUEUE", &cfg.AsynqQueue)
	setIntEnv(problems, "ASYNQ_CONCURRENCY", &cfg.AsynqConcurrency)

	setIntEnv(problems, "OUTBOX_SCAN_INTERVAL_SECONDS", &cfg.OutboxScanSec)
	setIntEnv(problems, "OUTBOX_BATCH_SIZE", &cfg.OutboxBatchSize)
	setIntEnv(problems, "OUTBOX_MAX_ATTEMPTS", &cfg.OutboxMaxAttempts)

	setStringEnv("INFLUX_URL", &cfg.InfluxURL)
	if v := os.Getenv("INFLUX_TOKEN"); v != "" {
		cfg.InfluxToken = v
	}
	setStringEnv("INFLUX_ORG", &cfg.InfluxOrg)
	setStringEnv("INFLUX_BUCKET", &cfg.InfluxBucket)
	setIntEnv(problems, "INFLUX_TIMEOUT_MS", &cfg.InfluxTimeoutMS)

	setFloatEnv(problems, "GEOFENCE_RADIUS_M", &cfg.GeofenceRadiusM)
	setIntEnv(problems, "PATROL_FIX_TIMEOUT_MS", &cfg.PatrolFixTimeoutMS)
	setIntEnv(problems, "PATROL_FIX_MAX_AGE_MS", &cfg.PatrolFixMaxAgeMS)
	setIntEnv(problems, "EVIDENCE_MAX_BYTES", &cfg.EvidenceMaxBytes)
	setIntEnv(problems, "SESSION_HISTORY_MAX", &cfg.SessionHistoryMax)
	setIntEnv(problems, "POST_CACHE_TTL_SECONDS", &cfg.PostCacheTTLSec)

	setStringEnv("BLOB_DIR", &cfg.BlobDir)
	setStringEnv("BLOB_BASE_URL", &cfg.BlobBaseURL)
	setIntEnv(problems, "LOWSTOCK_SCAN_INTERVAL_SECONDS", &cfg.LowStockScanSec)

	setBoolEnv(problems, "OTEL_ENABLED", &cfg.OtelEnabled)
	setStringEnv("OTEL_EXPORTER_OTLP_ENDPOINT", &cfg.OtelEndpoint)
	setBoolEnv(problems, "OTEL_EXPORTER_OTLP_INSECURE", &cfg.OtelInsecure)
	setFloatEnv(problems, "OTEL_SAMPLE_RATIO", &cfg.OtelSampleRatio)
}

func setStringEnv(key string, dst *string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setIntEnv(problems *[]Problem, key string, dst *int) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*problems = append(*problems, Problem{Field: key, Message: key + " must be an integer"})
		return
	}
	*dst = n
}

func setFloatEnv(problems *[]Problem, key string, dst *float64) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		*problems = append(*problems, Problem{Field: key, Message: key + " must be a number"})
		return
	}
	*dst = f
}

func setBoolEnv(problems *[]Problem, key string, dst *bool) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	b, ok := asBool(v)
	if !ok {
		*problems = append(*problems, Problem{Field: key, Message: key + " must be a boolean"})
		return
	}
	*dst = b
}

func readStringKey(raw map[string]any, key string) (string, bool) {
	for k, v := range raw {
		if strings.EqualFold(strings.TrimSpace(k), key) {
			s, ok := v.(string)
			return s, ok
		}
	}
	return "", false
}

func asInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		return int(t), true
	case json.Number:
		i, err := t.Int64()
		return int(i), err == nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(t))
		return i, err == nil
	default:
		return 0, false
	}
}

func asBool(v string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes", "y":
		return true, true
	case "false", "0", "no", "n":
		return false, true
	default:
		return false, false
	}
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func parseCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseAnyCSV(raw []any) []string {
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			s = strings.TrimSpace(s)
			if s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}
