package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.viam.com/test"

	"go.viam.com/navtester/services/lifecycle"
	"go.viam.com/navtester/tester"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tester.json")
	test.That(t, os.WriteFile(path, []byte(contents), 0o600), test.ShouldBeNil)
	return path
}

func TestRead(t *testing.T) {
	t.Setenv("ROSBRIDGE_HOST", "nav.local")
	path := writeConfig(t, `{
		"url": "ws://${ROSBRIDGE_HOST}:9090",
		"namespace": "robot1",
		"robot": [0, 0, 5, 1],
		"startup_delay": "0s",
		"status_poll_timeout": 0.25,
		"state_poll_interval": "2s",
		"managers": ["lifecycle_manager_navigation"],
		"fake": {"step_interval": "10ms", "reroute_at": 2}
	}`)

	cfg, err := Read(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.ConfigFilePath, test.ShouldEqual, path)
	test.That(t, cfg.URL, test.ShouldEqual, "ws://nav.local:9090")
	test.That(t, cfg.Namespace, test.ShouldEqual, "robot1")
	test.That(t, cfg.Robot, test.ShouldResemble, []float64{0, 0, 5, 1})
	test.That(t, cfg.Navigator, test.ShouldEqual, lifecycle.NavigatorNode)

	opts := cfg.Options()
	test.That(t, opts.StartupDelay, test.ShouldEqual, time.Duration(0))
	test.That(t, opts.StatusPollTimeout, test.ShouldEqual, 250*time.Millisecond)
	test.That(t, opts.StatePoll.Interval, test.ShouldEqual, 2*time.Second)
	test.That(t, opts.Managers, test.ShouldResemble, []string{lifecycle.NavigationManager})
	test.That(t, opts.InitialPoseWait, test.ShouldEqual, tester.DefaultOptions().InitialPoseWait)

	fakeCfg, err := cfg.FakeConfig()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, fakeCfg.StepInterval, test.ShouldEqual, 10*time.Millisecond)
	test.That(t, fakeCfg.RerouteAt, test.ShouldEqual, 2)
}

func TestReadErrors(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "missing.json"))
	test.That(t, err, test.ShouldNotBeNil)

	for _, tc := range []struct {
		name     string
		contents string
		expected string
	}{
		{"not json", `{`, "failed to decode Config from json"},
		{"unknown field", `{"speed": 3}`, "unknown field"},
		{"bad duration", `{"startup_delay": "soon"}`, "invalid duration"},
		{"robot", `{"robot": [1, 2, 3]}`, "robot must be"},
		{"empty manager", `{"managers": ["a", ""]}`, `"name" is required`},
		{"fake attributes", `{"fake": {"warp_speed": 9}}`, "config.fake"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := FromReader("test", strings.NewReader(tc.contents))
			test.That(t, err, test.ShouldNotBeNil)
			test.That(t, err.Error(), test.ShouldContainSubstring, tc.expected)
		})
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	test.That(t, cfg.Validate("config"), test.ShouldBeNil)
	test.That(t, cfg.URL, test.ShouldEqual, DefaultURL)

	opts := cfg.Options()
	defaults := tester.DefaultOptions()
	test.That(t, opts.StartupDelay, test.ShouldEqual, defaults.StartupDelay)
	test.That(t, opts.Managers, test.ShouldResemble, defaults.Managers)
	test.That(t, opts.Availability.Interval, test.ShouldEqual, time.Second)
}

func TestDurationJSON(t *testing.T) {
	out, err := json.Marshal(Duration(1500 * time.Millisecond))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(out), test.ShouldEqual, `"1.5s"`)

	var d Duration
	test.That(t, json.Unmarshal(out, &d), test.ShouldBeNil)
	test.That(t, time.Duration(d), test.ShouldEqual, 1500*time.Millisecond)
	test.That(t, json.Unmarshal([]byte(`true`), &d), test.ShouldNotBeNil)
}
