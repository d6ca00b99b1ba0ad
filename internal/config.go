package internal

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// AppConfig is the server side of config.yaml.
type AppConfig struct {
	Server    ServerConfig    `yaml:"server"`
	Gerrit    GerritConfig    `yaml:"gerrit"`
	Watermill WatermillConfig `yaml:"watermill"`
	// Storage configures the optional ref update audit store.
	Storage StorageConfig `yaml:"storage"`
}

// Config is AppConfig plus the routing rules.
type Config struct {
	AppConfig   `yaml:",inline"`
	Rules       []Rule `yaml:"rules"`
	RulesStrict bool   `yaml:"rules_strict"`
}

// ServerConfig holds the HTTP listener settings. Durations are in
// milliseconds.
type ServerConfig struct {
	Port           int    `yaml:"port"`
	ReadTimeoutMS  int64  `yaml:"read_timeout_ms"`
	WriteTimeoutMS int64  `yaml:"write_timeout_ms"`
	IdleTimeoutMS  int64  `yaml:"idle_timeout_ms"`
	ReadHeaderMS   int64  `yaml:"read_header_timeout_ms"`
	MaxBodyBytes   int64  `yaml:"max_body_bytes"`
	RateLimitRPS   int64  `yaml:"rate_limit_rps"`
	RateLimitBurst int64  `yaml:"rate_limit_burst"`
	MetricsEnabled bool   `yaml:"metrics_enabled"`
	MetricsPath    string `yaml:"metrics_path"`
}

// Addr is the listen address for Port.
func (s ServerConfig) Addr() string {
	return ":" + strconv.Itoa(s.Port)
}

// GerritConfig is the endpoint the Gerrit webhooks plugin posts to.
type GerritConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// StorageConfig configures the ref update store. An empty DSN disables it.
type StorageConfig struct {
	Driver      string `yaml:"driver"`
	DSN         string `yaml:"dsn"`
	Dialect     string `yaml:"dialect"`
	Table       string `yaml:"table"`
	AutoMigrate bool   `yaml:"auto_migrate"`
	APIPath     string `yaml:"api_path"`
}

// Enabled reports whether a store should be opened.
func (c StorageConfig) Enabled() bool {
	return strings.TrimSpace(c.DSN) != ""
}

// WatermillConfig selects the brokers events are published to. Driver is
// shorthand for a single entry in Drivers.
type WatermillConfig struct {
	Driver       string             `yaml:"driver"`
	Drivers      []string           `yaml:"drivers"`
	GoChannel    GoChannelConfig    `yaml:"gochannel"`
	Kafka        KafkaConfig        `yaml:"kafka"`
	NATS         NATSConfig         `yaml:"nats"`
	AMQP         AMQPConfig         `yaml:"amqp"`
	SQL          SQLConfig          `yaml:"sql"`
	HTTP         HTTPConfig         `yaml:"http"`
	RiverQueue   RiverQueueConfig   `yaml:"riverqueue"`
	PublishRetry PublishRetryConfig `yaml:"publish_retry"`
	ConnectRetry ConnectRetryConfig `yaml:"connect_retry"`
}

type GoChannelConfig struct {
	OutputChannelBuffer            int64 `yaml:"output_buffer"`
	Persistent                     bool  `yaml:"persistent"`
	BlockPublishUntilSubscriberAck bool  `yaml:"block_publish_until_subscriber_ack"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
}

// NATSConfig targets a NATS Streaming cluster.
type NATSConfig struct {
	ClusterID string `yaml:"cluster_id"`
	ClientID  string `yaml:"client_id"`
	URL       string `yaml:"url"`
}

// AMQPConfig selects one of the watermill-amqp presets through Mode:
// durable_queue (default), nondurable_queue, durable_pubsub or
// nondurable_pubsub.
type AMQPConfig struct {
	URL  string `yaml:"url"`
	Mode string `yaml:"mode"`
}

type SQLConfig struct {
	Driver               string `yaml:"driver"`
	DSN                  string `yaml:"dsn"`
	Dialect              string `yaml:"dialect"`
	InitializeSchema     bool   `yaml:"initialize_schema"`
	AutoInitializeSchema bool   `yaml:"auto_initialize_schema"`
}

// HTTPConfig controls where the http driver posts. In topic_url mode the
// topic is the URL; in base_url mode it is appended to BaseURL.
type HTTPConfig struct {
	BaseURL string `yaml:"base_url"`
	Mode    string `yaml:"mode"`
}

// RiverQueueConfig describes the River job rows written by the riverqueue
// driver.
type RiverQueueConfig struct {
	Driver      string   `yaml:"driver"`
	DSN         string   `yaml:"dsn"`
	Table       string   `yaml:"table"`
	Queue       string   `yaml:"queue"`
	Kind        string   `yaml:"kind"`
	MaxAttempts int      `yaml:"max_attempts"`
	Priority    int      `yaml:"priority"`
	Tags        []string `yaml:"tags"`
}

// PublishRetryConfig controls how often a failed publish is retried per driver.
type PublishRetryConfig struct {
	Attempts int `yaml:"attempts"`
	DelayMS  int `yaml:"delay_ms"`
}

// ConnectRetryConfig controls how often a driver connection is attempted at
// startup before the driver is skipped.
type ConnectRetryConfig struct {
	Attempts int `yaml:"attempts"`
	DelayMS  int `yaml:"delay_ms"`
}

// LoadAppConfig reads the server settings from path, expanding environment
// variables, and fills in defaults.
func LoadAppConfig(path string) (AppConfig, error) {
	var cfg AppConfig
	if err := readYAML(path, &cfg); err != nil {
		return cfg, err
	}
	applyDefaults(&cfg)
	return cfg, nil
}

// LoadConfig is LoadAppConfig plus validated rules.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	if err := readYAML(path, &cfg); err != nil {
		return cfg, err
	}
	applyDefaults(&cfg.AppConfig)

	rules, err := normalizeRules(cfg.Rules)
	if err != nil {
		return cfg, err
	}
	cfg.Rules = rules
	return cfg, nil
}

// RulesConfig is what NewRuleEngine needs.
type RulesConfig struct {
	Rules  []Rule `yaml:"rules"`
	Strict bool   `yaml:"rules_strict"`
	Logger *log.Logger
}

// LoadRulesConfig reads only the rules section of path.
func LoadRulesConfig(path string) (RulesConfig, error) {
	var cfg RulesConfig
	if err := readYAML(path, &cfg); err != nil {
		return cfg, err
	}
	rules, err := normalizeRules(cfg.Rules)
	if err != nil {
		return cfg, err
	}
	cfg.Rules = rules
	return cfg, nil
}

func readYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), out); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// setDefault assigns def when *field is the zero value.
func setDefault[T comparable](field *T, def T) {
	var zero T
	if *field == zero {
		*field = def
	}
}

func applyDefaults(cfg *AppConfig) {
	server := &cfg.Server
	setDefault(&server.Port, 8080)
	setDefault(&server.ReadTimeoutMS, 5000)
	setDefault(&server.WriteTimeoutMS, 10000)
	setDefault(&server.IdleTimeoutMS, 60000)
	setDefault(&server.ReadHeaderMS, 5000)
	setDefault(&server.MaxBodyBytes, 1<<20)
	setDefault(&server.MetricsPath, "/debug/vars")

	setDefault(&cfg.Gerrit.Path, "/webhooks/gerrit")
	setDefault(&cfg.Storage.APIPath, "/api/ref-updates")

	wm := &cfg.Watermill
	setDefault(&wm.Driver, "gochannel")
	setDefault(&wm.GoChannel.OutputChannelBuffer, 64)
	setDefault(&wm.HTTP.Mode, "topic_url")
	setDefault(&wm.PublishRetry.Attempts, 3)
	setDefault(&wm.PublishRetry.DelayMS, 500)
	setDefault(&wm.ConnectRetry.Attempts, 10)
	setDefault(&wm.ConnectRetry.DelayMS, 2000)

	river := &wm.RiverQueue
	setDefault(&river.Table, "river_job")
	setDefault(&river.Queue, "default")
	setDefault(&river.Kind, "gerritevents.event")
	setDefault(&river.MaxAttempts, 25)
	setDefault(&river.Priority, 1)
}

func normalizeRules(rules []Rule) ([]Rule, error) {
	out := make([]Rule, 0, len(rules))
	for i, rule := range rules {
		rule.When = strings.TrimSpace(rule.When)
		rule.Emit = rule.Emit.normalized()
		if rule.When == "" || len(rule.Emit) == 0 {
			return nil, fmt.Errorf("rule %d is missing when or emit", i)
		}
		rule.Drivers = normalizeDrivers(rule.Drivers)
		out = append(out, rule)
	}
	return out, nil
}

func normalizeDrivers(drivers []string) []string {
	if len(drivers) == 0 {
		return nil
	}
	out := make([]string, 0, len(drivers))
	for _, driver := range drivers {
		if driver = strings.ToLower(strings.TrimSpace(driver)); driver != "" {
			out = append(out, driver)
		}
	}
	return out
}
