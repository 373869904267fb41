package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// TuningConfig holds tunable operational parameters that control engine
// behavior. These can be adjusted without touching the main application
// configuration.
type TuningConfig struct {
	Events   EventsTuning   `mapstructure:"events"`
	Stream   StreamTuning   `mapstructure:"stream"`
	Poll     PollTuning     `mapstructure:"poll"`
	Activity ActivityTuning `mapstructure:"activity"`
}

// EventsTuning contains event storage and routing tuning parameters.
type EventsTuning struct {
	// RingCapacity is the maximum events retained per cluster; the
	// oldest are evicted first.
	RingCapacity int `mapstructure:"ring_capacity"`

	// ChannelBufferSize is the buffer size for the delta and poll
	// result channels feeding the engine.
	ChannelBufferSize int `mapstructure:"channel_buffer_size"`
}

// StreamTuning contains delta stream connection tuning parameters.
type StreamTuning struct {
	// ReconnectIntervalSeconds is the fixed delay between reconnect
	// attempts after a stream connection drops.
	ReconnectIntervalSeconds int `mapstructure:"reconnect_interval_seconds"`

	// DialTimeoutSeconds bounds each connection handshake.
	DialTimeoutSeconds int `mapstructure:"dial_timeout_seconds"`

	// MaxFrameBytes is the largest inbound frame accepted.
	MaxFrameBytes int64 `mapstructure:"max_frame_bytes"`
}

// PollTuning contains refetch-path tuning parameters.
type PollTuning struct {
	// IntervalSeconds is the period between full event refetches for
	// clusters without a stream endpoint.
	IntervalSeconds int `mapstructure:"interval_seconds"`
}

// ActivityTuning contains activity log tuning parameters.
type ActivityTuning struct {
	// TailCapacity is the number of recent activity lines retained for
	// the status endpoint.
	TailCapacity int `mapstructure:"tail_capacity"`
}

// defaultTuning returns a TuningConfig with sensible defaults, used when
// tuning.yaml is not found or values are missing.
func defaultTuning() *TuningConfig {
	return &TuningConfig{
		Events: EventsTuning{
			RingCapacity:      1000,
			ChannelBufferSize: 100,
		},
		Stream: StreamTuning{
			ReconnectIntervalSeconds: 5,
			DialTimeoutSeconds:       10,
			MaxFrameBytes:            512 * 1024,
		},
		Poll: PollTuning{
			IntervalSeconds: 30,
		},
		Activity: ActivityTuning{
			TailCapacity: 200,
		},
	}
}

// LoadTuning loads tuning configuration from tuning.yaml on the standard
// search path. A missing file yields defaults without error.
func LoadTuning() (*TuningConfig, error) {
	return LoadTuningWithFile("")
}

// LoadTuningWithFile loads tuning configuration from a specific file
// path. With an empty path it searches for tuning.yaml in the standard
// locations. A separate viper instance keeps tuning isolated from the
// main application configuration.
func LoadTuningWithFile(tuningFile string) (*TuningConfig, error) {
	v := viper.New()

	defaults := defaultTuning()
	v.SetDefault("events.ring_capacity", defaults.Events.RingCapacity)
	v.SetDefault("events.channel_buffer_size", defaults.Events.ChannelBufferSize)
	v.SetDefault("stream.reconnect_interval_seconds", defaults.Stream.ReconnectIntervalSeconds)
	v.SetDefault("stream.dial_timeout_seconds", defaults.Stream.DialTimeoutSeconds)
	v.SetDefault("stream.max_frame_bytes", defaults.Stream.MaxFrameBytes)
	v.SetDefault("poll.interval_seconds", defaults.Poll.IntervalSeconds)
	v.SetDefault("activity.tail_capacity", defaults.Activity.TailCapacity)

	if tuningFile != "" {
		v.SetConfigFile(tuningFile)
	} else {
		v.SetConfigName("tuning")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/eventdeck")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return defaults, nil
		}
		if _, ok := err.(*os.PathError); ok {
			return defaults, nil
		}
		return nil, fmt.Errorf("failed to read tuning config: %w", err)
	}

	var tuning TuningConfig
	if err := v.Unmarshal(&tuning); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tuning config: %w", err)
	}

	if err := tuning.Validate(); err != nil {
		return nil, err
	}
	return &tuning, nil
}

// Validate checks tuning parameters for valid ranges.
func (t *TuningConfig) Validate() error {
	if t.Events.RingCapacity < 0 {
		return fmt.Errorf("events.ring_capacity must be >= 0, got %d", t.Events.RingCapacity)
	}
	if t.Events.ChannelBufferSize < 1 {
		return fmt.Errorf("events.channel_buffer_size must be >= 1, got %d", t.Events.ChannelBufferSize)
	}

	if t.Stream.ReconnectIntervalSeconds < 1 {
		return fmt.Errorf("stream.reconnect_interval_seconds must be >= 1, got %d", t.Stream.ReconnectIntervalSeconds)
	}
	if t.Stream.DialTimeoutSeconds < 1 {
		return fmt.Errorf("stream.dial_timeout_seconds must be >= 1, got %d", t.Stream.DialTimeoutSeconds)
	}
	if t.Stream.MaxFrameBytes < 1024 {
		return fmt.Errorf("stream.max_frame_bytes must be >= 1024, got %d", t.Stream.MaxFrameBytes)
	}

	if t.Poll.IntervalSeconds < 1 {
		return fmt.Errorf("poll.interval_seconds must be >= 1, got %d", t.Poll.IntervalSeconds)
	}

	if t.Activity.TailCapacity < 1 {
		return fmt.Errorf("activity.tail_capacity must be >= 1, got %d", t.Activity.TailCapacity)
	}

	return nil
}
