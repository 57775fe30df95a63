// Package main is the route-tester command. It runs the compute_route and
// compute_and_track_route tests against a navigation stack reachable over rosbridge, or
// against an in-process simulated stack with --fake.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"go.viam.com/navtester/config"
	"go.viam.com/navtester/logging"
	"go.viam.com/navtester/referenceframe"
	"go.viam.com/navtester/ros/rosbridge"
	"go.viam.com/navtester/services/lifecycle"
	"go.viam.com/navtester/services/localization"
	"go.viam.com/navtester/services/route"
	"go.viam.com/navtester/services/route/fake"
	"go.viam.com/navtester/session"
	"go.viam.com/navtester/spatialmath"
	"go.viam.com/navtester/tester"
)

const (
	// Flags.
	flagRobot         = "robot"
	flagConfig        = "config"
	flagURL           = "url"
	flagNamespace     = "namespace"
	flagExpectFailure = "expect-failure"
	flagFake          = "fake"
	flagStartupDelay  = "startup-delay"
	flagDebug         = "debug"
	flagLogFile       = "log-file"
)

func main() {
	if err := newApp().Run(joinRobotValues(os.Args)); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	var logger logging.Logger
	return &cli.App{
		Name:  "route-tester",
		Usage: "end-to-end test of a nav2 route server",
		Flags: []cli.Flag{
			&cli.Float64SliceFlag{
				Name:    flagRobot,
				Aliases: []string{"r"},
				Usage:   "initial and goal positions: init_x init_y final_x final_y, space or comma separated",
			},
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "JSON config file",
			},
			&cli.StringFlag{
				Name:  flagURL,
				Value: config.DefaultURL,
				Usage: "rosbridge websocket URL",
			},
			&cli.StringFlag{
				Name:  flagNamespace,
				Usage: "namespace prefixed to every topic, service and action",
			},
			&cli.BoolFlag{
				Name:  flagExpectFailure,
				Usage: "exit successfully only if the tests fail",
			},
			&cli.BoolFlag{
				Name:  flagFake,
				Usage: "run against an in-process simulated navigation stack",
			},
			&cli.DurationFlag{
				Name:  flagStartupDelay,
				Usage: "wait this long for the navigation stack before testing",
			},
			&cli.BoolFlag{
				Name:  flagDebug,
				Usage: "enable debug logging",
			},
			&cli.StringFlag{
				Name:  flagLogFile,
				Usage: "also write logs to this file, rotated as it grows",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool(flagDebug) {
				logger = logging.NewDebugLogger("route-tester")
			} else {
				logger = logging.NewLogger("route-tester")
			}
			return nil
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if cfg.Debug {
				logger.SetLevel(logging.DEBUG)
			}
			if cfg.LogFile != "" {
				file := logging.NewFileAppender(cfg.LogFile)
				logger.AddAppender(file)
				defer func() {
					if err := file.Close(); err != nil {
						logger.Warnw("closing log file", "error", err)
					}
				}()
			}
			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()
			code, err := run(ctx, cfg, logger, c.App.Writer)
			if err != nil {
				return err
			}
			if code != 0 {
				return cli.Exit("", code)
			}
			return nil
		},
	}
}

// joinRobotValues rewrites "--robot x0 y0 x1 y1" into "--robot x0,y0,x1,y1" so the positions
// can be given as four separate arguments as well as one comma separated value.
func joinRobotValues(args []string) []string {
	joined := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		joined = append(joined, arg)
		if arg == "--" {
			return append(joined, args[i+1:]...)
		}
		if arg != "--"+flagRobot && arg != "-"+flagRobot && arg != "-r" {
			continue
		}
		if i+4 >= len(args) {
			continue
		}
		values := args[i+1 : i+5]
		numeric := true
		for _, v := range values {
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				numeric = false
				break
			}
		}
		if !numeric {
			continue
		}
		joined = append(joined, strings.Join(values, ","))
		i += 4
	}
	return joined
}

// loadConfig reads the config file, if any, and applies the flags set over it.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg := config.Default()
	if path := c.String(flagConfig); path != "" {
		var err error
		if cfg, err = config.Read(path); err != nil {
			return nil, err
		}
	}
	if c.IsSet(flagRobot) {
		cfg.Robot = c.Float64Slice(flagRobot)
	}
	if c.IsSet(flagURL) {
		cfg.URL = c.String(flagURL)
	}
	if c.IsSet(flagNamespace) {
		cfg.Namespace = c.String(flagNamespace)
	}
	if c.IsSet(flagExpectFailure) {
		cfg.ExpectFailure = c.Bool(flagExpectFailure)
	}
	if c.IsSet(flagStartupDelay) {
		delay := config.Duration(c.Duration(flagStartupDelay))
		cfg.StartupDelay = &delay
	}
	if c.IsSet(flagDebug) {
		cfg.Debug = c.Bool(flagDebug)
	}
	if c.IsSet(flagLogFile) {
		cfg.LogFile = c.String(flagLogFile)
	}
	if c.Bool(flagFake) && cfg.Fake == nil {
		cfg.Fake = map[string]interface{}{}
	}
	if len(cfg.Robot) != 4 {
		return nil, errors.Errorf("--%s requires exactly 4 values: init_x init_y final_x final_y", flagRobot)
	}
	if err := cfg.Validate("config"); err != nil {
		return nil, err
	}
	return cfg, nil
}

// run connects to the navigation stack and runs the tester, returning the exit code. A table of
// the reports is written to out.
func run(ctx context.Context, cfg *config.Config, logger logging.Logger, out io.Writer) (int, error) {
	initial := referenceframe.Stamp(spatialmath.NewForwardPose(cfg.Robot[0], cfg.Robot[1]))
	goal := referenceframe.Stamp(spatialmath.NewForwardPose(cfg.Robot[2], cfg.Robot[3]))
	logger.Infof("Starting tester, robot going from %v, %v to %v, %v.", cfg.Robot[0], cfg.Robot[1], cfg.Robot[2], cfg.Robot[3])
	sess := session.New(initial, goal, logger.Sublogger("session"))

	var (
		routes    route.Service
		lc        lifecycle.Service
		localizer localization.Service
	)
	if cfg.Fake != nil {
		fakeCfg, err := cfg.FakeConfig()
		if err != nil {
			return 1, err
		}
		stack := fake.NewNavigationStack(fakeCfg, clock.New(), logger.Sublogger("fake"))
		defer stack.Close()
		routes, lc, localizer = stack, stack, stack
	} else {
		bridge, err := rosbridge.Dial(ctx, cfg.URL, logger.Sublogger("rosbridge"))
		if err != nil {
			return 1, err
		}
		defer func() {
			if err := bridge.Close(); err != nil {
				logger.Debugw("closing rosbridge connection", "error", err)
			}
		}()
		routes = route.NewClient(bridge, cfg.Namespace, logger.Sublogger("route"))
		lc = lifecycle.NewClient(bridge, cfg.Namespace)
		localizer = localization.NewClient(bridge, cfg.Namespace, logger.Sublogger("localization"))
	}

	t := tester.New(sess, routes, lc, localizer, cfg.Options(), logger)
	code, reports := t.Run(ctx, cfg.ExpectFailure)
	for _, report := range reports {
		logger.Infow("test report", "report", report.String())
	}
	if len(reports) > 0 {
		fmt.Fprintln(out, tester.FormatReports(reports))
	}
	return code, nil
}
