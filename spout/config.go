package spout

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hugolhafner/go-spout/internal/clock"
	"github.com/hugolhafner/go-spout/kafka"
	"github.com/hugolhafner/go-spout/logger"
	"github.com/hugolhafner/go-spout/retry"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	SchemaVersion = "v1"
	EnvPrefix     = "SPOUT__"
)

// FirstPollOffsetStrategy picks where a newly assigned partition starts.
type FirstPollOffsetStrategy string

const (
	// Earliest starts at the beginning of the log, ignoring commits.
	Earliest FirstPollOffsetStrategy = "earliest"
	// Latest starts at the end of the log, ignoring commits.
	Latest FirstPollOffsetStrategy = "latest"
	// UncommittedEarliest resumes after the last commit, or starts at the
	// beginning when the group never committed.
	UncommittedEarliest FirstPollOffsetStrategy = "uncommitted_earliest"
	// UncommittedLatest resumes after the last commit, or starts at the end
	// when the group never committed.
	UncommittedLatest FirstPollOffsetStrategy = "uncommitted_latest"
)

func (s FirstPollOffsetStrategy) valid() bool {
	switch s {
	case Earliest, Latest, UncommittedEarliest, UncommittedLatest:
		return true
	}
	return false
}

const (
	RetryBounded   = "bounded"
	RetryUnlimited = "unlimited"
	RetryDisabled  = "disabled"

	DelayFixed       = "fixed"
	DelayExponential = "exponential"
)

type RetryConfig struct {
	Policy       string        `koanf:"policy"`
	MaxRetries   int           `koanf:"max_retries"`
	DelayKind    string        `koanf:"delay_kind"`
	InitialDelay time.Duration `koanf:"initial_delay"`
	DelayPeriod  time.Duration `koanf:"delay_period"`
	MaxDelay     time.Duration `koanf:"max_delay"`
}

type Config struct {
	SchemaVersion string `koanf:"schema_version"`

	BootstrapServers []string `koanf:"bootstrap_servers"`
	Topics           []string `koanf:"topics"`
	TopicPattern     string   `koanf:"topic_pattern"`
	ConsumerGroupID  string   `koanf:"consumer_group_id"`

	FirstPollOffsetStrategy FirstPollOffsetStrategy `koanf:"first_poll_offset_strategy"`
	MaxUncommittedOffsets   int64                   `koanf:"max_uncommitted_offsets"`
	OffsetsCommitPeriod     time.Duration           `koanf:"offsets_commit_period"`
	// OffsetsCommitMaxAcks commits early once that many acks accumulated.
	OffsetsCommitMaxAcks int           `koanf:"offsets_commit_max_acks"`
	PollTimeout          time.Duration `koanf:"poll_timeout"`
	MaxPollRecords       int           `koanf:"max_poll_records"`
	PollErrorBackoff     time.Duration `koanf:"poll_error_backoff"`
	AutoCommitMode       bool          `koanf:"auto_commit_mode"`

	// CommitMetadata is stored with every committed offset. Defaults to a
	// random instance id.
	CommitMetadata string `koanf:"commit_metadata"`

	Retry RetryConfig `koanf:"retry"`
}

func DefaultConfig() Config {
	c := Config{}
	applyDefaults(&c)
	return c
}

// LoadConfig merges YAML (if present) with env-vars
// (prefix `SPOUT__`, delimiter `__`), applies defaults and validates.
func LoadConfig(path string) (Config, error) {
	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil &&
			!errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load config %s: %w", path, err)
		}
	}

	err := k.Load(
		env.Provider(
			EnvPrefix, "__", func(s string) string {
				return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
			},
		), nil,
	)
	if err != nil {
		return Config{}, fmt.Errorf("load env config: %w", err)
	}

	if sv := k.String("schema_version"); sv != "" && sv != SchemaVersion {
		return Config{}, fmt.Errorf("%w: schema_version %q not supported (want %s)", ErrInvalidConfig, sv, SchemaVersion)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyDefaults(c *Config) {
	if c.SchemaVersion == "" {
		c.SchemaVersion = SchemaVersion
	}
	if len(c.BootstrapServers) == 0 {
		c.BootstrapServers = []string{"localhost:9092"}
	}
	if c.FirstPollOffsetStrategy == "" {
		c.FirstPollOffsetStrategy = UncommittedEarliest
	}
	if c.MaxUncommittedOffsets == 0 {
		c.MaxUncommittedOffsets = 10_000_000
	}
	if c.OffsetsCommitPeriod == 0 {
		c.OffsetsCommitPeriod = 30 * time.Second
	}
	if c.PollTimeout == 0 {
		c.PollTimeout = 200 * time.Millisecond
	}
	if c.MaxPollRecords == 0 {
		c.MaxPollRecords = 500
	}
	if c.PollErrorBackoff == 0 {
		c.PollErrorBackoff = time.Second
	}
	if c.CommitMetadata == "" {
		c.CommitMetadata = uuid.NewString()
	}
	if c.Retry.Policy == "" {
		c.Retry.Policy = RetryUnlimited
	}
	if c.Retry.DelayKind == "" {
		c.Retry.DelayKind = DelayExponential
	}
	if c.Retry.DelayKind == DelayExponential {
		if c.Retry.DelayPeriod == 0 {
			c.Retry.DelayPeriod = 2 * time.Millisecond
		}
		if c.Retry.MaxDelay == 0 {
			c.Retry.MaxDelay = 10 * time.Second
		}
	}
}

// Validate reports every problem at once, joined and wrapped in ErrInvalidConfig.
func (c Config) Validate() error {
	var errs []error

	if c.ConsumerGroupID == "" {
		errs = append(errs, errors.New("consumer_group_id is required"))
	}
	switch {
	case len(c.Topics) == 0 && c.TopicPattern == "":
		errs = append(errs, errors.New("one of topics or topic_pattern is required"))
	case len(c.Topics) > 0 && c.TopicPattern != "":
		errs = append(errs, errors.New("topics and topic_pattern are mutually exclusive"))
	case c.TopicPattern != "":
		if _, err := kafka.Pattern(c.TopicPattern); err != nil {
			errs = append(errs, fmt.Errorf("topic_pattern: %w", err))
		}
	}
	if !c.FirstPollOffsetStrategy.valid() {
		errs = append(errs, fmt.Errorf("unknown first_poll_offset_strategy %q", c.FirstPollOffsetStrategy))
	}
	if c.MaxUncommittedOffsets <= 0 {
		errs = append(errs, fmt.Errorf("max_uncommitted_offsets must be positive, got %d", c.MaxUncommittedOffsets))
	}
	if c.OffsetsCommitPeriod < 0 {
		errs = append(errs, errors.New("offsets_commit_period must not be negative"))
	}
	if c.PollTimeout < 0 {
		errs = append(errs, errors.New("poll_timeout must not be negative"))
	}
	if c.MaxPollRecords < 0 {
		errs = append(errs, errors.New("max_poll_records must not be negative"))
	}

	switch c.Retry.Policy {
	case RetryBounded:
		if c.Retry.MaxRetries < 0 {
			errs = append(errs, errors.New("retry.max_retries must not be negative"))
		}
	case RetryUnlimited, RetryDisabled:
	default:
		errs = append(errs, fmt.Errorf("unknown retry.policy %q", c.Retry.Policy))
	}
	switch c.Retry.DelayKind {
	case DelayFixed, DelayExponential:
	default:
		errs = append(errs, fmt.Errorf("unknown retry.delay_kind %q", c.Retry.DelayKind))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// Subscription resolves the topic selection once.
func (c Config) Subscription() (kafka.Subscription, error) {
	if c.TopicPattern != "" {
		return kafka.Pattern(c.TopicPattern)
	}
	return kafka.Topics(c.Topics...), nil
}

func (c Config) sourceConfig() kafka.SourceConfig {
	return kafka.SourceConfig{
		BootstrapServers: c.BootstrapServers,
		GroupID:          c.ConsumerGroupID,
		AutoCommit:       c.AutoCommitMode,
		MaxPollRecords:   c.MaxPollRecords,
	}
}

func (c RetryConfig) delay() retry.Delay {
	if c.DelayKind == DelayFixed {
		return retry.Fixed(c.InitialDelay)
	}
	return retry.Exponential{Initial: c.InitialDelay, Period: c.DelayPeriod, Max: c.MaxDelay}
}

// Service builds the configured retry policy.
func (c RetryConfig) Service(clk clock.Clock, l logger.Logger) retry.Service {
	opts := []retry.Option{retry.WithClock(clk), retry.WithLogger(l)}
	switch c.Policy {
	case RetryBounded:
		return retry.NewBounded(c.MaxRetries, c.delay(), opts...)
	case RetryDisabled:
		return retry.Disabled()
	default:
		return retry.NewUnlimited(c.delay(), opts...)
	}
}
