package config

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// Store backends.
const (
	BackendSQLite = "sqlite"
	BackendBolt   = "bolt"
)

// MQTT modes.
const (
	MQTTOff       = "off"
	MQTTPublish   = "publish"
	MQTTSubscribe = "subscribe"
)

// Config is the full process configuration.
type Config struct {
	Store    Store    `yaml:"store"`
	Txn      Txn      `yaml:"txn"`
	Dispatch Dispatch `yaml:"dispatch"`
	MQTT     MQTT     `yaml:"mqtt"`
	Metrics  Metrics  `yaml:"metrics"`
	Log      Log      `yaml:"log"`
}

// Store selects and locates the record store.
type Store struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// Txn bounds conflict retries.
type Txn struct {
	MaxAttempts int      `yaml:"max_attempts"`
	Backoff     Duration `yaml:"backoff"`
}

// Dispatch tunes outbox delivery.
type Dispatch struct {
	Workers             int      `yaml:"workers"`
	BatchSize           int      `yaml:"batch_size"`
	PollInterval        Duration `yaml:"poll_interval"`
	MaxDeliveryAttempts int      `yaml:"max_delivery_attempts"`
}

// MQTT configures the broker bridge.
type MQTT struct {
	Mode        string `yaml:"mode"`
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
}

// Metrics configures the Prometheus endpoint.
type Metrics struct {
	Listen string `yaml:"listen"`
}

// Log configures the slog handler.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Duration is a time.Duration written as a Go duration string in YAML.
type Duration time.Duration

// UnmarshalYAML parses strings like "200ms".
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return fmt.Errorf("line %d: duration must be a string: %w", node.Line, err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML writes the duration as a string.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Store: Store{Backend: BackendSQLite, Path: "friendsync.db"},
		Txn:   Txn{MaxAttempts: 5, Backoff: Duration(10 * time.Millisecond)},
		Dispatch: Dispatch{
			Workers:             4,
			BatchSize:           64,
			PollInterval:        Duration(200 * time.Millisecond),
			MaxDeliveryAttempts: 10,
		},
		MQTT: MQTT{
			Mode:        MQTTOff,
			Broker:      "tcp://localhost:1883",
			ClientID:    "friendsync",
			TopicPrefix: "friendsync/changes",
		},
		Log: Log{Level: "info", Format: "text"},
	}
}

// Load reads, validates and decodes the file at path onto Default().
// An empty path returns Default().
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse validates and decodes YAML onto Default().
func Parse(data []byte) (Config, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := validate(raw); err != nil {
		return Config{}, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// validate unifies raw with the closed #Config schema.
func validate(raw map[string]any) error {
	if raw == nil {
		return nil
	}
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	value := ctx.Encode(raw)
	if err := value.Err(); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := def.Unify(value).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Validate checks constraints that span fields.
func (c Config) Validate() error {
	var errs []error
	if c.MQTT.Mode != MQTTOff && c.MQTT.Broker == "" {
		errs = append(errs, fmt.Errorf("mqtt.broker is required when mqtt.mode is %q", c.MQTT.Mode))
	}
	if c.Txn.Backoff < 0 || c.Dispatch.PollInterval <= 0 {
		errs = append(errs, errors.New("durations must be positive"))
	}
	return errors.Join(errs...)
}

// SlogLevel maps Log.Level to a slog.Level. Unknown levels map to info.
func (c Config) SlogLevel() slog.Level {
	switch c.Log.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
