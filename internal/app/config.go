package app

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/rollup-backend/internal/pkg/envutil"
	"github.com/yungbote/rollup-backend/internal/pkg/logger"
)

type Config struct {
	ServiceName     string        `yaml:"service_name"`
	Environment     string        `yaml:"environment"`
	Version         string        `yaml:"version"`
	HTTPAddr        string        `yaml:"http_addr"`
	JWTSecretKey    string        `yaml:"jwt_secret_key"`
	AccessTokenTTL  time.Duration `yaml:"access_token_ttl"`
	RecomputeOnBoot bool          `yaml:"recompute_on_boot"`
}

// LoadConfig layers an optional YAML file under environment variables; env
// always wins so deployments can override a checked-in file per instance.
func LoadConfig(log *logger.Logger) Config {
	cfg := Config{
		ServiceName:    "rollup-backend",
		Environment:    "development",
		Version:        "dev",
		HTTPAddr:       ":8080",
		JWTSecretKey:   "defaultsecret",
		AccessTokenTTL: time.Hour,
	}

	if path := envutil.String("CONFIG_FILE", ""); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			log.Warn("config file unreadable, using env only", "path", path, "error", err)
		} else if err := yaml.Unmarshal(raw, &cfg); err != nil {
			log.Warn("config file unparsable, using env only", "path", path, "error", err)
		}
	}

	cfg.ServiceName = envutil.String("SERVICE_NAME", cfg.ServiceName)
	cfg.Environment = envutil.String("ENVIRONMENT", cfg.Environment)
	cfg.Version = envutil.String("SERVICE_VERSION", cfg.Version)
	cfg.HTTPAddr = envutil.String("HTTP_ADDR", cfg.HTTPAddr)
	cfg.JWTSecretKey = envutil.String("JWT_SECRET_KEY", cfg.JWTSecretKey)
	cfg.AccessTokenTTL = envutil.Duration("ACCESS_TOKEN_TTL", cfg.AccessTokenTTL)
	cfg.RecomputeOnBoot = envutil.Bool("RECOMPUTE_ON_BOOT", cfg.RecomputeOnBoot)

	if cfg.JWTSecretKey == "defaultsecret" {
		log.Warn("JWT_SECRET_KEY not set, using insecure default")
	}
	return cfg
}
