// Package config loads runtime configuration from the environment: store and
// chat endpoints, the cross-account credential table derived from DEPLOY_ARN*
// entries, and the ordered routing rules.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/pipewatch/pipewatch/internal/bot"
	"github.com/pipewatch/pipewatch/internal/route"
)

// Config holds the runtime config values used by the entry points.
type Config struct {
	ListenAddr string `mapstructure:"listen_addr"`
	LogLevel   string `mapstructure:"log_level"`

	DynamoTable string `mapstructure:"dynamo_table"`
	DatabaseURL string `mapstructure:"database_url"`

	GitHubToken       string `mapstructure:"github_token"`
	BitbucketBaseURL  string `mapstructure:"bitbucket_base_url"`
	BitbucketUsername string `mapstructure:"bitbucket_username"`
	BitbucketPassword string `mapstructure:"bitbucket_password"`

	SlackWebhookURL string `mapstructure:"slack_webhook_url"`
	IngestSecret    string `mapstructure:"ingest_secret"`

	RoutesFile string `mapstructure:"routes_file"`
	Routes     string `mapstructure:"routes"`

	KafkaBrokers string `mapstructure:"kafka_brokers"`
	KafkaTopic   string `mapstructure:"kafka_topic"`
	S3Bucket     string `mapstructure:"s3_bucket"`
	S3Prefix     string `mapstructure:"s3_prefix"`

	// Credentials is the cross-account role table, built from the process
	// environment rather than bound through viper.
	Credentials []bot.CredentialEntry `mapstructure:"-"`
}

var bindings = map[string]string{
	"listen_addr":        "LISTEN_ADDR",
	"log_level":          "LOG_LEVEL",
	"dynamo_table":       "DYNAMO_TABLE",
	"database_url":       "DATABASE_URL",
	"github_token":       "GITHUB_TOKEN",
	"bitbucket_base_url": "BITBUCKET_BASE_URL",
	"bitbucket_username": "BITBUCKET_USERNAME",
	"bitbucket_password": "BITBUCKET_PASSWORD",
	"slack_webhook_url":  "SLACK_WEBHOOK_URL",
	"ingest_secret":      "INGEST_SECRET",
	"routes_file":        "ROUTES_FILE",
	"routes":             "ROUTES",
	"kafka_brokers":      "KAFKA_BROKERS",
	"kafka_topic":        "KAFKA_TOPIC",
	"s3_bucket":          "S3_BUCKET",
	"s3_prefix":          "S3_PREFIX",
}

// Load reads config values from the environment.
func Load() (*Config, error) {
	v := viper.New()
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	cfg.Credentials = CredentialTable(os.Environ())
	return &cfg, nil
}

const credentialPrefix = "DEPLOY_ARN"

// CredentialTable builds the cross-account role table from DEPLOY_ARN*
// environment entries: DEPLOY_ARN is the bare default, DEPLOY_ARN_<suffix>
// scopes the role to pipelines whose name contains the suffix.
func CredentialTable(environ []string) []bot.CredentialEntry {
	var entries []bot.CredentialEntry
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, credentialPrefix) {
			continue
		}
		suffix := strings.TrimPrefix(name, credentialPrefix)
		suffix = strings.TrimPrefix(suffix, "_")
		entries = append(entries, bot.CredentialEntry{Suffix: suffix, ARN: value})
	}
	return entries
}

// LoadRoutes produces the ordered routing rule list, from the inline ROUTES
// JSON when set, otherwise from the routes file. No configuration means no
// rules: every notification goes unrouted.
func (c *Config) LoadRoutes() ([]route.Rule, error) {
	var raw []byte
	switch {
	case c.Routes != "":
		raw = []byte(c.Routes)
	case c.RoutesFile != "":
		data, err := os.ReadFile(c.RoutesFile)
		if err != nil {
			return nil, fmt.Errorf("read routes file: %w", err)
		}
		raw = data
	default:
		return nil, nil
	}
	var rules []route.Rule
	if err := json.Unmarshal(raw, &rules); err != nil {
		return nil, fmt.Errorf("decode routes: %w", err)
	}
	return rules, nil
}

// KafkaBrokerList splits the comma-separated broker config.
func (c *Config) KafkaBrokerList() []string {
	if c.KafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.KafkaBrokers, ",")
	brokers := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			brokers = append(brokers, p)
		}
	}
	return brokers
}
