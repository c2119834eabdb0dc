// Package uhubctl wraps the external uhubctl command-line tool, which drives
// the power switching of USB hub ports. Only the hubs supported by uhubctl
// can be controlled; see https://github.com/mvp/uhubctl for the device list.
//
// The tool's stdout is the only sensor this system has: every availability
// and reset-completion decision comes from classifying its line-oriented
// output into a small status vocabulary.
package uhubctl

import (
	"bytes"
	"context"
	"os/exec"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// Action is a power action understood by uhubctl.
type Action string

const (
	ActionOn     Action = "on"
	ActionOff    Action = "off"
	ActionCycle  Action = "cycle"
	ActionToggle Action = "toggle"
)

// Status is the power state of a single hub port.
type Status string

const (
	StatusOff Status = "off"
	StatusOn  Status = "on"
	// StatusOnConnected means the port is powered and a device is attached.
	StatusOnConnected Status = "on connected"
	StatusUnknown     Status = "unknown"
)

// noDevicesMarker appears on stderr when no uhubctl-compatible hub is
// attached. That is an expected condition, not a tool failure.
const noDevicesMarker = "No compatible devices detected!"

// Runner executes the uhubctl binary and returns its captured output.
// err is non-nil when the process exits non-zero or cannot be started.
type Runner interface {
	Run(ctx context.Context, args []string) (stdout, stderr string, err error)
}

type execRunner struct {
	binary string
}

func (r execRunner) Run(ctx context.Context, args []string) (string, string, error) {
	cmd := exec.CommandContext(ctx, r.binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

// Controller issues uhubctl invocations and answers queries against the
// captured output of the most recent one.
//
// The controller is single-buffered: every call overwrites the last-output
// slot, so results from one call must be fully consumed before the next is
// issued. It must not be used from two logical operations concurrently.
type Controller struct {
	runner Runner
	// lastOutput holds the raw stdout of the most recent invocation.
	lastOutput string
}

// NewController returns a Controller that shells out to the uhubctl binary
// found on PATH.
func NewController() *Controller {
	return &Controller{runner: execRunner{binary: "uhubctl"}}
}

// NewControllerWithRunner returns a Controller backed by the given runner.
func NewControllerWithRunner(r Runner) *Controller {
	return &Controller{runner: r}
}

// RunAction performs the given power action on a hub port.
// An empty hub broadens the action to all hubs (port must then be set);
// port 0 broadens it to all ports of the given hub.
func (c *Controller) RunAction(ctx context.Context, action Action, hub string, port int) {
	args := []string{"--action", string(action)}
	if hub != "" {
		args = append(args, "--location", hub)
	}
	if port > 0 {
		args = append(args, "--port", strconv.Itoa(port))
	}
	c.run(ctx, args)
}

// GetStatus reports the current power status of a hub port.
func (c *Controller) GetStatus(ctx context.Context, hub string, port int) Status {
	c.run(ctx, []string{"--location", hub, "--port", strconv.Itoa(port)})
	return searchPortStatus(c.lastOutput, hub, port)
}

// ScanHubsPorts returns every (hub, port) pair uhubctl reports, in output
// order. A port reachable through both its USB 3.0 and 2.0 hub paths shows
// up once per path; duplicates are preserved for the caller to deal with.
func (c *Controller) ScanHubsPorts(ctx context.Context) []HubPort {
	c.run(ctx, nil)
	return scanHubPorts(c.lastOutput)
}

// GetHubPortByDesc finds the hub and port whose device description contains
// descMatch (typically a hardware serial number). It returns ok=false when
// no port line matches.
func (c *Controller) GetHubPortByDesc(ctx context.Context, descMatch string) (HubPort, bool) {
	c.run(ctx, []string{"--search", descMatch})
	return searchHubPortByDesc(c.lastOutput, descMatch)
}

// run invokes uhubctl and captures its stdout for the query helpers.
// Tool failures degrade to empty output: absence of hardware must read as
// "nothing found", never as an error the callers have to unwind.
func (c *Controller) run(ctx context.Context, args []string) {
	stdout, stderr, err := c.runner.Run(ctx, args)
	if err != nil {
		if strings.Contains(stderr, noDevicesMarker) {
			c.lastOutput = ""
			return
		}
		log.Error().Err(err).Strs("args", args).Msg("uhubctl command failed")
		c.lastOutput = ""
		return
	}
	c.lastOutput = stdout
}
