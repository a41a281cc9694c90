package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file location.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port                        string   `yaml:"port"`
	LogLevel                    string   `yaml:"logLevel"`
	DatabaseURL                 string   `yaml:"databaseURL"`
	RedisAddr                   string   `yaml:"redisAddr"`
	RedisPassword               string   `yaml:"redisPassword"`
	GuardTTLSeconds             int      `yaml:"guardTTLSeconds"`
	MinioEndpoint               string   `yaml:"minioEndpoint"`
	MinioAccessKey              string   `yaml:"minioAccessKey"`
	MinioSecretKey              string   `yaml:"minioSecretKey"`
	MinioBucket                 string   `yaml:"minioBucket"`
	MinioUseSSL                 bool     `yaml:"minioUseSSL"`
	StorageDir                  string   `yaml:"storageDir"`
	AMQPURL                     string   `yaml:"amqpURL"`
	NotifyExchange              string   `yaml:"notifyExchange"`
	RendererURL                 string   `yaml:"rendererURL"`
	RendererTimeoutSeconds      int      `yaml:"rendererTimeoutSeconds"`
	InternalJWTPrivateKeyPath   string   `yaml:"internalJwtPrivateKeyPath"`
	InternalJWTPublicKeyPath    string   `yaml:"internalJwtPublicKeyPath"`
	InternalJWTVerifyPublicKeys string   `yaml:"internalJwtVerifyPublicKeys"`
	InternalJWTKeyID            string   `yaml:"internalJwtKeyId"`
	EmployeeRole                string   `yaml:"employeeRole"`
	OperationalDepartments      []string `yaml:"operationalDepartments"`
	SafetyRecipients            []string `yaml:"safetyRecipients"`
	PositiveFeedbackTerms       []string `yaml:"positiveFeedbackTerms"`
	OpTimeoutSeconds            int      `yaml:"opTimeoutSeconds"`
	RateLimitPerMinute          int      `yaml:"rateLimitPerMinute"`
	CleanupConcurrency          int      `yaml:"cleanupConcurrency"`
}

// Load reads config from path (defaults to config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	// Override with environment variables
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("ONBOARDING_GUARD_TTL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.GuardTTLSeconds = n
		}
	}
	if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		cfg.MinioEndpoint = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		cfg.MinioAccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.MinioSecretKey = v
	}
	if v := os.Getenv("MINIO_BUCKET"); v != "" {
		cfg.MinioBucket = v
	}
	if v := os.Getenv("MINIO_USE_SSL"); v == "true" {
		cfg.MinioUseSSL = true
	}
	if v := os.Getenv("STORAGE_DIR"); v != "" {
		cfg.StorageDir = v
	}
	if v := os.Getenv("AMQP_URL"); v != "" {
		cfg.AMQPURL = v
	}
	if v := os.Getenv("ONBOARDING_NOTIFY_EXCHANGE"); v != "" {
		cfg.NotifyExchange = v
	}
	if v := os.Getenv("ONBOARDING_RENDERER_URL"); v != "" {
		cfg.RendererURL = v
	}
	if v := os.Getenv("ONBOARDING_RENDERER_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RendererTimeoutSeconds = n
		}
	}
	if v := os.Getenv("TALENTCORE_INTERNAL_JWT_PRIVATE_KEY_PATH"); v != "" {
		cfg.InternalJWTPrivateKeyPath = v
	}
	if v := os.Getenv("TALENTCORE_INTERNAL_JWT_PUBLIC_KEY_PATH"); v != "" {
		cfg.InternalJWTPublicKeyPath = v
	}
	if v := os.Getenv("TALENTCORE_INTERNAL_JWT_VERIFY_PUBLIC_KEYS"); v != "" {
		cfg.InternalJWTVerifyPublicKeys = v
	}
	if v := os.Getenv("TALENTCORE_INTERNAL_JWT_KEY_ID"); v != "" {
		cfg.InternalJWTKeyID = v
	}
	if v := os.Getenv("ONBOARDING_EMPLOYEE_ROLE"); v != "" {
		cfg.EmployeeRole = v
	}
	if v := os.Getenv("ONBOARDING_OPERATIONAL_DEPARTMENTS"); v != "" {
		cfg.OperationalDepartments = splitCSV(v)
	}
	if v := os.Getenv("ONBOARDING_SAFETY_RECIPIENTS"); v != "" {
		cfg.SafetyRecipients = splitCSV(v)
	}
	if v := os.Getenv("ONBOARDING_POSITIVE_FEEDBACK_TERMS"); v != "" {
		cfg.PositiveFeedbackTerms = splitCSV(v)
	}
	if v := os.Getenv("ONBOARDING_OP_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.OpTimeoutSeconds = n
		}
	}
	if v := os.Getenv("ONBOARDING_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimitPerMinute = n
		}
	}
	if v := os.Getenv("ONBOARDING_CLEANUP_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.CleanupConcurrency = n
		}
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
	}
	if cfg.MinioEndpoint == "" && cfg.StorageDir == "" {
		return errors.New("config: either minioEndpoint or storageDir is required (set in config.yaml)")
	}
	if cfg.MinioEndpoint != "" {
		if cfg.MinioAccessKey == "" || cfg.MinioSecretKey == "" {
			return errors.New("config: minioAccessKey and minioSecretKey are required with minioEndpoint")
		}
		if cfg.MinioBucket == "" {
			return errors.New("config: minioBucket is required with minioEndpoint")
		}
	}
	if strings.TrimSpace(cfg.InternalJWTPrivateKeyPath) == "" || strings.TrimSpace(cfg.InternalJWTPublicKeyPath) == "" {
		return errors.New("config: internal service auth requires TALENTCORE_INTERNAL_JWT_PRIVATE_KEY_PATH + TALENTCORE_INTERNAL_JWT_PUBLIC_KEY_PATH")
	}
	if cfg.GuardTTLSeconds < 0 {
		return errors.New("config: guardTTLSeconds must be >= 0")
	}
	if cfg.RendererTimeoutSeconds < 0 {
		return errors.New("config: rendererTimeoutSeconds must be >= 0")
	}
	if cfg.OpTimeoutSeconds < 0 {
		return errors.New("config: opTimeoutSeconds must be >= 0")
	}
	if cfg.RateLimitPerMinute < 0 {
		return errors.New("config: rateLimitPerMinute must be >= 0")
	}
	if cfg.RateLimitPerMinute > 0 && cfg.RedisAddr == "" {
		return errors.New("config: rateLimitPerMinute requires redisAddr")
	}
	return nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
