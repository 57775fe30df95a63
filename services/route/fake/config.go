package fake

import (
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
)

// Config scripts the simulated navigation stack. Feedback indices are 1-based; zero disables
// the corresponding behavior.
type Config struct {
	// NodeSpacing is the distance between consecutive route nodes.
	NodeSpacing float64 `mapstructure:"node_spacing"`
	// StepInterval is how long the robot takes to traverse one edge.
	StepInterval time.Duration `mapstructure:"step_interval"`
	// Reject lists the actions whose goals are declined.
	Reject []string `mapstructure:"reject"`
	// AbortAfter aborts tracking once this many feedback events were sent.
	AbortAfter int `mapstructure:"abort_after"`
	// CancelAfter cancels tracking once this many feedback events were sent.
	CancelAfter int `mapstructure:"cancel_after"`
	// DropEdgeAt sends this feedback event without a current edge.
	DropEdgeAt int `mapstructure:"drop_edge_at"`
	// SkipNodeAt sends this feedback event with a last node that breaks the chain.
	SkipNodeAt int `mapstructure:"skip_node_at"`
	// RerouteAt sends a rerouted event just before this feedback event.
	RerouteAt int `mapstructure:"reroute_at"`
	// StopShort leaves the robot this far short of the goal.
	StopShort float64 `mapstructure:"stop_short"`
	// ActivateAfter is the number of state queries a node answers before it is active.
	ActivateAfter int `mapstructure:"activate_after"`
	// AvailableAfter is the number of availability probes answered negatively.
	AvailableAfter int `mapstructure:"available_after"`
	// ConvergeAfter is the number of initial poses ignored before the localizer answers.
	ConvergeAfter int `mapstructure:"converge_after"`
	// FailShutdown lists the lifecycle managers whose shutdown call fails.
	FailShutdown []string `mapstructure:"fail_shutdown"`
}

// DefaultConfig returns a well-behaved stack.
func DefaultConfig() Config {
	return Config{
		NodeSpacing:  1,
		StepInterval: 50 * time.Millisecond,
	}
}

// NewConfig decodes attributes over the defaults. Durations may be given as strings like "10ms".
func NewConfig(attributes map[string]interface{}) (Config, error) {
	cfg := DefaultConfig()
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		Result:           &cfg,
	})
	if err != nil {
		return Config{}, err
	}
	if err := decoder.Decode(attributes); err != nil {
		return Config{}, errors.Wrap(err, "decoding fake navigation stack attributes")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate ensures all parts of the config are valid.
func (cfg Config) Validate() error {
	if cfg.NodeSpacing <= 0 {
		return errors.Errorf("node_spacing must be positive, got %v", cfg.NodeSpacing)
	}
	if cfg.StepInterval <= 0 {
		return errors.Errorf("step_interval must be positive, got %v", cfg.StepInterval)
	}
	if cfg.StopShort < 0 {
		return errors.Errorf("stop_short must not be negative, got %v", cfg.StopShort)
	}
	return nil
}
