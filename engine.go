// Package planrunner drives hardware-in-the-loop test plans against
// physical boards: it resolves each test's device requirements to live
// serial endpoints, power-cycles switchable boards between tests, invokes
// the external test frameworks, and repeats failed tests until their retry
// budget runs out.
package planrunner

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mpy-hil/planrunner/internal/config"
	"github.com/mpy-hil/planrunner/pkg/devs"
	"github.com/mpy-hil/planrunner/pkg/testplan"
	"github.com/mpy-hil/planrunner/providers/uhubctl"
)

// TestInvoker runs one resolved test case and returns its exit code.
type TestInvoker interface {
	Invoke(ctx context.Context, tc *testplan.TestCase, dutPort, stubPort string) int
}

// Config assembles an Engine. Resolver and Invoker are required; the rest
// defaults from the environment.
type Config struct {
	Resolver   Resolver
	Invoker    TestInvoker
	MaxRetries int
	Recorder   Recorder
	Report     *Report

	// Reset sequencing knobs. A power-cycled board is polled once per
	// PollInterval up to PollAttempts for "on connected", then given
	// SettleDelay to finish booting. Poll exhaustion is not fatal: the
	// test proceeds and fails on its own if the board never came back.
	PollInterval time.Duration
	PollAttempts int
	SettleDelay  time.Duration

	// Sleep is replaceable for tests; defaults to time.Sleep.
	Sleep func(time.Duration)
}

// Engine executes a test plan. Execution is strictly sequential: one test,
// one subprocess, one device reset at a time.
type Engine struct {
	cfg     Config
	results *Results
	runID   string
	pass    int
}

// NewEngine applies defaults to cfg and builds an Engine.
func NewEngine(cfg Config) *Engine {
	if cfg.Recorder == nil {
		cfg.Recorder = noopRecorder{}
	}
	if cfg.Report == nil {
		cfg.Report = NewReport(nil)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = config.Duration("HIL_RESET_POLL_INTERVAL", time.Second)
	}
	if cfg.PollAttempts <= 0 {
		cfg.PollAttempts = config.Int("HIL_RESET_POLL_ATTEMPTS", 5)
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = config.Duration("HIL_RESET_SETTLE_DELAY", 2*time.Second)
	}
	if cfg.Sleep == nil {
		cfg.Sleep = time.Sleep
	}
	return &Engine{
		cfg:     cfg,
		results: NewResults(cfg.MaxRetries),
		runID:   time.Now().Format("20060102-150405"),
	}
}

// RunPlan executes the given cases, then re-runs failed ones while their
// retry budget lasts. It returns the final results; the caller maps
// remaining failures to the process exit code.
func (e *Engine) RunPlan(ctx context.Context, cases []*testplan.TestCase) (*Results, error) {
	for len(cases) > 0 {
		e.pass++
		if err := e.runPass(ctx, cases); err != nil {
			return e.results, err
		}
		e.cfg.Report.Footer()

		cases = e.results.FilterRetries(cases)
		if len(cases) > 0 {
			e.cfg.Report.Retries(cases)
		}
	}
	e.cfg.Report.Summary(e.results)
	return e.results, nil
}

func (e *Engine) runPass(ctx context.Context, cases []*testplan.TestCase) error {
	for _, tc := range cases {
		dut, stub, err := e.cfg.Resolver.Resolve(ctx, tc)
		if err != nil {
			return err
		}

		dutPort, stubPort := portOf(dut), portOf(stub)
		if !tc.DevicesAvailable(dutPort, stubPort) {
			e.registerSkip(ctx, tc)
			continue
		}

		e.resetDevice(ctx, dut)
		if tc.RequiresMultipleDevs() {
			e.resetDevice(ctx, stub)
		}

		e.cfg.Report.TestInfo(tc.Name, dutPort, stubPort)
		code := e.cfg.Invoker.Invoke(ctx, tc, dutPort, stubPort)
		e.registerOutcome(ctx, tc, dutPort, stubPort, code)
	}
	return nil
}

// resetDevice power-cycles a switchable device and waits for it to come
// back. Devices without a bound switch are left alone.
func (e *Engine) resetDevice(ctx context.Context, dev *devs.Device) {
	if dev == nil || dev.Switch == nil {
		return
	}
	log.Info().Str("device", dev.Name).Str("hub", dev.Switch.Hub).Int("port", dev.Switch.Port).Msg("power cycling device")
	dev.Switch.Reset(ctx)

	connected := false
	for attempt := 0; attempt < e.cfg.PollAttempts; attempt++ {
		e.cfg.Sleep(e.cfg.PollInterval)
		if dev.Switch.Status(ctx) == uhubctl.StatusOnConnected {
			connected = true
			break
		}
	}
	if !connected {
		log.Warn().Str("device", dev.Name).Msg("device did not report connected after reset, proceeding anyway")
	}
	// Powered-on is not booted; give the firmware time to come up.
	e.cfg.Sleep(e.cfg.SettleDelay)
}

func (e *Engine) registerSkip(ctx context.Context, tc *testplan.TestCase) {
	e.results.RegisterSkip(tc.Name)
	e.cfg.Report.Skip(tc.Name)
	e.record(ctx, OutcomeRecord{
		RunID: e.runID, Pass: e.pass, TestName: tc.Name, Outcome: OutcomeSkip, At: time.Now(),
	})
}

func (e *Engine) registerOutcome(ctx context.Context, tc *testplan.TestCase, dutPort, stubPort string, code int) {
	outcome := OutcomePass
	if code != 0 {
		outcome = OutcomeFail
		e.results.RegisterFail(tc.Name)
		e.cfg.Report.Fail(tc.Name)
	} else {
		e.results.RegisterPass(tc.Name)
		e.cfg.Report.Pass(tc.Name)
	}
	e.record(ctx, OutcomeRecord{
		RunID: e.runID, Pass: e.pass, TestName: tc.Name, Outcome: outcome,
		ExitCode: code, DUTPort: dutPort, StubPort: stubPort, At: time.Now(),
	})
}

func (e *Engine) record(ctx context.Context, rec OutcomeRecord) {
	if err := e.cfg.Recorder.RecordOutcome(ctx, rec); err != nil {
		log.Error().Err(err).Str("test", rec.TestName).Msg("record outcome failed")
	}
}

func portOf(dev *devs.Device) string {
	if dev == nil || dev.Access == nil {
		return ""
	}
	return dev.Access.Address
}
