package worker

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const defaultConsumerGroup = "gerritevents-worker"

type AppConfig struct {
	Watermill SubscriberConfig `yaml:"watermill"`
}

type RulesConfig struct {
	Rules []struct {
		Emit emitTopics `yaml:"emit"`
	} `yaml:"rules"`
}

// emitTopics mirrors the server's emit field, a topic or a list of topics.
type emitTopics []string

func (e *emitTopics) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		*e = emitTopics{value.Value}
		return nil
	}
	var topics []string
	if err := value.Decode(&topics); err != nil {
		return err
	}
	*e = topics
	return nil
}

func LoadSubscriberConfig(path string) (SubscriberConfig, error) {
	var cfg AppConfig
	if err := readExpanded(path, &cfg); err != nil {
		return cfg.Watermill, err
	}
	applySubscriberDefaults(&cfg.Watermill)
	return cfg.Watermill, nil
}

// LoadTopicsFromConfig returns every topic the server's rules can emit, in
// order of first appearance.
func LoadTopicsFromConfig(path string) ([]string, error) {
	var cfg RulesConfig
	if err := readExpanded(path, &cfg); err != nil {
		return nil, err
	}
	topics := make([]string, 0, len(cfg.Rules))
	seen := make(map[string]struct{}, len(cfg.Rules))
	for _, rule := range cfg.Rules {
		for _, emit := range rule.Emit {
			topic := strings.TrimSpace(emit)
			if topic == "" {
				continue
			}
			if _, ok := seen[topic]; ok {
				continue
			}
			seen[topic] = struct{}{}
			topics = append(topics, topic)
		}
	}
	return topics, nil
}

func readExpanded(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), out); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func applySubscriberDefaults(cfg *SubscriberConfig) {
	if cfg.Driver == "" && len(cfg.Drivers) == 0 {
		cfg.Driver = "gochannel"
	}
	if cfg.GoChannel.OutputChannelBuffer == 0 {
		cfg.GoChannel.OutputChannelBuffer = 64
	}
	if cfg.NATS.ClientIDSuffix == "" {
		cfg.NATS.ClientIDSuffix = "-worker"
	}
	if cfg.Kafka.ConsumerGroup == "" {
		cfg.Kafka.ConsumerGroup = defaultConsumerGroup
	}
	if cfg.SQL.ConsumerGroup == "" {
		cfg.SQL.ConsumerGroup = defaultConsumerGroup
	}
	if cfg.ConnectRetry.Attempts == 0 {
		cfg.ConnectRetry.Attempts = 10
	}
	if cfg.ConnectRetry.DelayMS == 0 {
		cfg.ConnectRetry.DelayMS = 2000
	}
}
