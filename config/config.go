// Package config defines the tester's configuration file.
package config

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/utils"

	"go.viam.com/navtester/gateway"
	"go.viam.com/navtester/services/lifecycle"
	"go.viam.com/navtester/services/route"
	"go.viam.com/navtester/services/route/fake"
	"go.viam.com/navtester/tester"
)

// DefaultURL is where rosbridge listens by default.
const DefaultURL = "ws://localhost:9090"

// A Duration is a time.Duration written in config files as a string like "1.5s".
type Duration time.Duration

// MarshalJSON writes the duration as a string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON accepts a duration string or a number of seconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		*d = Duration(value * float64(time.Second))
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return errors.Wrapf(err, "invalid duration %q", value)
		}
		*d = Duration(parsed)
	default:
		return errors.Errorf("invalid duration %s", string(data))
	}
	return nil
}

// Config describes one tester run. Zero values fall back to the tester's defaults.
type Config struct {
	// URL of the rosbridge websocket.
	URL       string `json:"url,omitempty"`
	Namespace string `json:"namespace,omitempty"`
	// Robot is the initial x, y followed by the goal x, y.
	Robot         []float64 `json:"robot,omitempty"`
	ExpectFailure bool      `json:"expect_failure,omitempty"`
	Debug         bool      `json:"debug,omitempty"`
	// LogFile additionally receives every log line, rotated as it grows.
	LogFile string `json:"log_file,omitempty"`

	Localizer        string   `json:"localizer,omitempty"`
	Navigator        string   `json:"navigator,omitempty"`
	Managers         []string `json:"managers,omitempty"`
	ReroutingService string   `json:"rerouting_service,omitempty"`
	GoalTolerance    float64  `json:"goal_tolerance,omitempty"`

	StartupDelay         *Duration `json:"startup_delay,omitempty"`
	ShutdownTimeout      Duration  `json:"shutdown_timeout,omitempty"`
	StatusPollTimeout    Duration  `json:"status_poll_timeout,omitempty"`
	InitialPoseWait      Duration  `json:"initial_pose_wait,omitempty"`
	AvailabilityInterval Duration  `json:"availability_interval,omitempty"`
	StatePollInterval    Duration  `json:"state_poll_interval,omitempty"`
	// MaxAvailabilityAttempts bounds the waits for services; 0 waits forever.
	MaxAvailabilityAttempts int `json:"max_availability_attempts,omitempty"`

	// Fake, when set, runs against an in-process simulated stack configured by these
	// attributes instead of rosbridge.
	Fake map[string]interface{} `json:"fake,omitempty"`

	ConfigFilePath string `json:"-"`
}

// Validate ensures all parts of the config are valid.
func (c *Config) Validate(path string) error {
	if len(c.Robot) != 0 && len(c.Robot) != 4 {
		return errors.Errorf("%s: robot must be [init_x, init_y, final_x, final_y], got %d values", path, len(c.Robot))
	}
	for i, manager := range c.Managers {
		if manager == "" {
			return utils.NewConfigValidationFieldRequiredError(fmt.Sprintf("%s.managers.%d", path, i), "name")
		}
	}
	if c.GoalTolerance < 0 {
		return errors.Errorf("%s: goal_tolerance must not be negative", path)
	}
	if c.MaxAvailabilityAttempts < 0 {
		return errors.Errorf("%s: max_availability_attempts must not be negative", path)
	}
	if c.Fake != nil {
		if _, err := fake.NewConfig(c.Fake); err != nil {
			return errors.Wrapf(err, "%s.fake", path)
		}
	}
	return nil
}

// FakeConfig decodes the simulated stack's attributes.
func (c *Config) FakeConfig() (fake.Config, error) {
	return fake.NewConfig(c.Fake)
}

// Options returns the tester options with every value set in the config applied over the
// defaults.
func (c *Config) Options() tester.Options {
	opts := tester.DefaultOptions()
	if c.AvailabilityInterval > 0 {
		opts.Availability.Interval = time.Duration(c.AvailabilityInterval)
	}
	opts.Availability.MaxAttempts = c.MaxAvailabilityAttempts
	if c.StatePollInterval > 0 {
		opts.StatePoll = gateway.RetryPolicy{Interval: time.Duration(c.StatePollInterval)}
	}
	if c.StatusPollTimeout > 0 {
		opts.StatusPollTimeout = time.Duration(c.StatusPollTimeout)
	}
	if c.InitialPoseWait > 0 {
		opts.InitialPoseWait = time.Duration(c.InitialPoseWait)
	}
	if c.StartupDelay != nil {
		opts.StartupDelay = time.Duration(*c.StartupDelay)
	}
	if c.ShutdownTimeout > 0 {
		opts.ShutdownTimeout = time.Duration(c.ShutdownTimeout)
	}
	if c.GoalTolerance > 0 {
		opts.GoalTolerance = c.GoalTolerance
	}
	if c.ReroutingService != "" {
		opts.ReroutingService = c.ReroutingService
	}
	if c.Localizer != "" {
		opts.Localizer = c.Localizer
	}
	if c.Navigator != "" {
		opts.Navigator = c.Navigator
	}
	if len(c.Managers) != 0 {
		opts.Managers = append([]string(nil), c.Managers...)
	}
	return opts
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		URL:              DefaultURL,
		Localizer:        lifecycle.LocalizerNode,
		Navigator:        lifecycle.NavigatorNode,
		Managers:         []string{lifecycle.NavigationManager, lifecycle.LocalizationManager},
		ReroutingService: route.ReroutingService,
	}
}
