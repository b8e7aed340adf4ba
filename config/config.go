package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// DeployMode selects the repository composition once at process start.
type DeployMode string

const (
	ModeCloud    DeployMode = "CLOUD"     // public-facing node, terminates platform callbacks
	ModeLocal    DeployMode = "LOCAL"     // intranet node, talks to IAM and the cloud node
	ModeDevDebug DeployMode = "DEV_DEBUG" // everything local, memory cache layered over sqlite
)

// Config holds all configuration for the gateway.
// Tags use mapstructure for viper unmarshalling.
type Config struct {
	HTTPPort  string `mapstructure:"HTTP_PORT"`
	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogPretty bool   `mapstructure:"LOG_PRETTY"`

	DeployMode DeployMode `mapstructure:"DEPLOY_MODE"`

	// Cloud mode storage.
	MongoURI    string `mapstructure:"MONGO_URI"`
	MongoDBName string `mapstructure:"MONGO_DB_NAME"`
	RedisAddr   string `mapstructure:"REDIS_ADDR"` // optional; empty uses the in-process code store

	// Local / debug mode storage.
	SQLitePath string `mapstructure:"SQLITE_PATH"`

	// Suite credentials configured on the platform's developer console.
	SuiteKey       string `mapstructure:"SUITE_KEY"`
	SuiteSecret    string `mapstructure:"SUITE_SECRET"`
	CallbackToken  string `mapstructure:"CALLBACK_TOKEN"`
	CallbackAESKey string `mapstructure:"CALLBACK_AES_KEY"`
	TemplateID     string `mapstructure:"TEMPLATE_ID"`

	// Platform endpoints.
	CorpTokenURL   string `mapstructure:"CORP_TOKEN_URL"`
	SuiteTokenURL  string `mapstructure:"SUITE_TOKEN_URL"`
	UserTokenURL   string `mapstructure:"USER_TOKEN_URL"`
	UserContactURL string `mapstructure:"USER_CONTACT_URL"`
	UnionIDURL     string `mapstructure:"UNION_ID_URL"`
	SendMessageURL string `mapstructure:"SEND_MESSAGE_URL"`

	// Collaborator hosts.
	CloudHost string `mapstructure:"CLOUD_HOST"`
	IAMHost   string `mapstructure:"IAM_HOST"`
	SiteURL   string `mapstructure:"SITE_URL"`

	// Shared secret guarding the /dingding/internal endpoints.
	SecretUser     string `mapstructure:"SECRET_USER"`
	SecretPassword string `mapstructure:"SECRET_PASSWORD"`

	OtelServiceName string `mapstructure:"OTEL_SERVICE_NAME"`
}

// Load reads configuration from file, environment variables, and defaults.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/dingbridge/")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("HTTP_PORT", "8000")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", false)
	v.SetDefault("DEPLOY_MODE", string(ModeLocal))
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017/dingbridge")
	v.SetDefault("MONGO_DB_NAME", "dingbridge")
	v.SetDefault("SQLITE_PATH", "dingbridge.db")
	v.SetDefault("CORP_TOKEN_URL", "https://oapi.dingtalk.com/service/get_corp_token")
	v.SetDefault("SUITE_TOKEN_URL", "https://api.dingtalk.com/v1.0/oauth2/corpAccessToken")
	v.SetDefault("USER_TOKEN_URL", "https://api.dingtalk.com/v1.0/oauth2/userAccessToken")
	v.SetDefault("USER_CONTACT_URL", "https://api.dingtalk.com/v1.0/contact/users/me")
	v.SetDefault("UNION_ID_URL", "https://oapi.dingtalk.com/topapi/user/getbyunionid")
	v.SetDefault("SEND_MESSAGE_URL", "https://oapi.dingtalk.com/topapi/message/corpconversation/sendbytemplate")
	v.SetDefault("CLOUD_HOST", "https://dingding.ruicore.io")
	v.SetDefault("IAM_HOST", "http://iam-be:8000")
	v.SetDefault("SITE_URL", "https://team.ruicore.io/login")
	v.SetDefault("OTEL_SERVICE_NAME", "dingbridge")

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine, env vars and defaults take over.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	switch cfg.DeployMode {
	case ModeCloud, ModeLocal, ModeDevDebug:
	default:
		return nil, fmt.Errorf("unknown deploy mode %q", cfg.DeployMode)
	}

	return &cfg, nil
}
