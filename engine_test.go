package planrunner

import (
	"context"
	"io"
	"reflect"
	"testing"
	"time"

	"github.com/mpy-hil/planrunner/pkg/devs"
	"github.com/mpy-hil/planrunner/pkg/testplan"
	"github.com/mpy-hil/planrunner/providers/uhubctl"
)

// scriptedInvoker returns canned exit codes per test name, consuming them
// in order, and records every invocation.
type scriptedInvoker struct {
	codes       map[string][]int
	invocations []string
}

func (s *scriptedInvoker) Invoke(ctx context.Context, tc *testplan.TestCase, dutPort, stubPort string) int {
	s.invocations = append(s.invocations, tc.Name)
	queue := s.codes[tc.Name]
	if len(queue) == 0 {
		return 0
	}
	code := queue[0]
	s.codes[tc.Name] = queue[1:]
	return code
}

// mapResolver resolves from a fixed name -> device pair table.
type mapResolver struct {
	devices map[string][2]*devs.Device
}

func (m *mapResolver) Resolve(ctx context.Context, tc *testplan.TestCase) (*devs.Device, *devs.Device, error) {
	pair := m.devices[tc.Name]
	return pair[0], pair[1], nil
}

func connectedDevice(name, port string) *devs.Device {
	return &devs.Device{Name: name, Access: &devs.SerialAccess{Address: port}}
}

type countingRecorder struct {
	records []OutcomeRecord
}

func (c *countingRecorder) RecordOutcome(ctx context.Context, rec OutcomeRecord) error {
	c.records = append(c.records, rec)
	return nil
}

func newTestEngine(resolver Resolver, invoker TestInvoker, maxRetries int, rec Recorder) *Engine {
	return NewEngine(Config{
		Resolver:     resolver,
		Invoker:      invoker,
		MaxRetries:   maxRetries,
		Recorder:     rec,
		Report:       NewReport(io.Discard),
		PollInterval: time.Nanosecond,
		SettleDelay:  time.Nanosecond,
		Sleep:        func(time.Duration) {},
	})
}

func TestSkipAndPass(t *testing.T) {
	// T1 has no device, T2 passes: skipped=[T1], passed=[T2], failed=[].
	cases := namedCases("T1", "T2")
	resolver := &mapResolver{devices: map[string][2]*devs.Device{
		"T2": {connectedDevice("board", "/dev/ttyACM0"), nil},
	}}
	invoker := &scriptedInvoker{codes: map[string][]int{"T2": {0}}}
	engine := newTestEngine(resolver, invoker, 1, nil)

	results, err := engine.RunPlan(context.Background(), cases)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(results.Skipped(), []string{"T1"}) {
		t.Errorf("skipped = %v", results.Skipped())
	}
	if !reflect.DeepEqual(results.Passed(), []string{"T2"}) {
		t.Errorf("passed = %v", results.Passed())
	}
	if len(results.Failed()) != 0 || !results.AllPassed() {
		t.Errorf("failed = %v", results.Failed())
	}
	// Skip is terminal: T1 must not have been retried on a later pass.
	if !reflect.DeepEqual(invoker.invocations, []string{"T2"}) {
		t.Errorf("invocations = %v", invoker.invocations)
	}
}

func TestAlwaysFailingTestExhaustsRetries(t *testing.T) {
	cases := namedCases("T3")
	resolver := &mapResolver{devices: map[string][2]*devs.Device{
		"T3": {connectedDevice("board", "/dev/ttyACM0"), nil},
	}}
	invoker := &scriptedInvoker{codes: map[string][]int{"T3": {1, 1, 1}}}
	engine := newTestEngine(resolver, invoker, 2, nil)

	results, err := engine.RunPlan(context.Background(), cases)
	if err != nil {
		t.Fatal(err)
	}
	// Initial pass plus two retries.
	if len(invoker.invocations) != 3 {
		t.Errorf("got %d passes, want 3", len(invoker.invocations))
	}
	if !reflect.DeepEqual(results.Failed(), []string{"T3"}) || results.AllPassed() {
		t.Errorf("failed = %v", results.Failed())
	}
}

func TestFailThenPassOnRetry(t *testing.T) {
	cases := namedCases("T1")
	resolver := &mapResolver{devices: map[string][2]*devs.Device{
		"T1": {connectedDevice("board", "/dev/ttyACM0"), nil},
	}}
	invoker := &scriptedInvoker{codes: map[string][]int{"T1": {1, 0}}}
	engine := newTestEngine(resolver, invoker, 1, nil)

	results, err := engine.RunPlan(context.Background(), cases)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(results.Passed(), []string{"T1"}) || len(results.Failed()) != 0 {
		t.Errorf("passed=%v failed=%v", results.Passed(), results.Failed())
	}
	if len(invoker.invocations) != 2 {
		t.Errorf("got %d invocations, want 2", len(invoker.invocations))
	}
}

func TestMultiWithoutStubIsSkipped(t *testing.T) {
	cases := []*testplan.TestCase{{Name: "M1", Type: testplan.TypeMulti}}
	resolver := &mapResolver{devices: map[string][2]*devs.Device{
		"M1": {connectedDevice("board", "/dev/ttyACM0"), nil},
	}}
	invoker := &scriptedInvoker{codes: map[string][]int{}}
	engine := newTestEngine(resolver, invoker, 0, nil)

	results, err := engine.RunPlan(context.Background(), cases)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(results.Skipped(), []string{"M1"}) {
		t.Errorf("skipped = %v", results.Skipped())
	}
	if len(invoker.invocations) != 0 {
		t.Errorf("skipped test must not be invoked: %v", invoker.invocations)
	}
}

func TestOutcomesReachRecorder(t *testing.T) {
	cases := namedCases("T1", "T2")
	resolver := &mapResolver{devices: map[string][2]*devs.Device{
		"T2": {connectedDevice("board", "/dev/ttyACM0"), nil},
	}}
	invoker := &scriptedInvoker{codes: map[string][]int{"T2": {1, 0}}}
	recorder := &countingRecorder{}
	engine := newTestEngine(resolver, invoker, 1, recorder)

	if _, err := engine.RunPlan(context.Background(), cases); err != nil {
		t.Fatal(err)
	}

	// Pass 1: T1 skip + T2 fail. Pass 2: T2 pass.
	var got []string
	for _, rec := range recorder.records {
		got = append(got, rec.TestName+":"+string(rec.Outcome))
	}
	want := []string{"T1:skip", "T2:fail", "T2:pass"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("records = %v, want %v", got, want)
	}
	if recorder.records[2].Pass != 2 {
		t.Errorf("retry outcome recorded on pass %d, want 2", recorder.records[2].Pass)
	}
}

// switchStatusRunner emulates a board that reports "enable connect" only
// after a few status polls following the cycle action.
type switchStatusRunner struct {
	statusCalls int
	readyAfter  int
	actions     []string
}

func (r *switchStatusRunner) Run(ctx context.Context, args []string) (string, string, error) {
	if len(args) > 0 && args[0] == "--action" {
		r.actions = append(r.actions, args[1])
		return "", "", nil
	}
	r.statusCalls++
	if r.statusCalls >= r.readyAfter {
		return "Current status for hub 1-1 [hub]\n  Port 2: 0103 power enable connect [dev]\n", "", nil
	}
	return "Current status for hub 1-1 [hub]\n  Port 2: 0100 power\n", "", nil
}

func TestResetSequencingPollsUntilConnected(t *testing.T) {
	runner := &switchStatusRunner{readyAfter: 3}
	ctl := uhubctl.NewControllerWithRunner(runner)
	dut := connectedDevice("board", "/dev/ttyACM0")
	dut.Switch = uhubctl.NewSwitch(ctl, "1-1", 2)

	resolver := &mapResolver{devices: map[string][2]*devs.Device{"T1": {dut, nil}}}
	invoker := &scriptedInvoker{codes: map[string][]int{"T1": {0}}}
	engine := newTestEngine(resolver, invoker, 0, nil)

	if _, err := engine.RunPlan(context.Background(), namedCases("T1")); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(runner.actions, []string{"cycle"}) {
		t.Errorf("actions = %v, want one cycle", runner.actions)
	}
	if runner.statusCalls != 3 {
		t.Errorf("status polls = %d, want 3", runner.statusCalls)
	}
	if len(invoker.invocations) != 1 {
		t.Errorf("test not invoked after reset")
	}
}

func TestResetPollExhaustionStillRunsTest(t *testing.T) {
	runner := &switchStatusRunner{readyAfter: 100}
	ctl := uhubctl.NewControllerWithRunner(runner)
	dut := connectedDevice("board", "/dev/ttyACM0")
	dut.Switch = uhubctl.NewSwitch(ctl, "1-1", 2)

	resolver := &mapResolver{devices: map[string][2]*devs.Device{"T1": {dut, nil}}}
	invoker := &scriptedInvoker{codes: map[string][]int{"T1": {0}}}
	engine := newTestEngine(resolver, invoker, 0, nil)

	results, err := engine.RunPlan(context.Background(), namedCases("T1"))
	if err != nil {
		t.Fatal(err)
	}
	if runner.statusCalls != 5 {
		t.Errorf("status polls = %d, want the bounded 5", runner.statusCalls)
	}
	if !reflect.DeepEqual(results.Passed(), []string{"T1"}) {
		t.Errorf("poll exhaustion must not fail the test, got %v", results.Passed())
	}
}
