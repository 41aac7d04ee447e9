package alarm

import (
	"fmt"
	"os"
	"time"

	"github.com/cyclopcam/logs"
	"gopkg.in/yaml.v3"
)

// SinkConfig is the YAML description of where alarm signals go.
// A missing file is not an error; you just get no sinks.
type SinkConfig struct {
	Audio *struct {
		Sound   string   `yaml:"sound"`   // path to the sound asset
		Command string   `yaml:"command"` // player binary, default ffplay
		Args    []string `yaml:"args"`    // player args before the sound file
	} `yaml:"audio"`
	Webhook *struct {
		URL            string `yaml:"url"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"webhook"`
}

// LoadSinks reads the sink config file and builds the configured sinks.
func LoadSinks(log logs.Log, filename string) ([]Sink, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	cfg := SinkConfig{}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %v: %w", filename, err)
	}
	sinks := []Sink{}
	if cfg.Audio != nil && cfg.Audio.Sound != "" {
		sinks = append(sinks, NewAudioSink(log, cfg.Audio.Sound, cfg.Audio.Command, cfg.Audio.Args))
	}
	if cfg.Webhook != nil {
		timeout := time.Duration(cfg.Webhook.TimeoutSeconds) * time.Second
		wh, err := NewWebhookSink(cfg.Webhook.URL, timeout)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, wh)
	}
	return sinks, nil
}
