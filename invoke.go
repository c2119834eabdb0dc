package planrunner

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mpy-hil/planrunner/pkg/testplan"
)

// ScriptRunner executes one external command in a working directory and
// reports its exit code. The call blocks until the process exits; the test
// frameworks behind it are opaque and only their exit code matters.
type ScriptRunner interface {
	Run(ctx context.Context, dir, name string, args ...string) (int, error)
}

type execScriptRunner struct{}

func (execScriptRunner) Run(ctx context.Context, dir, name string, args ...string) (int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, err
}

// Invoker dispatches a resolved test case to the matching external test
// framework. All script paths in the plan are relative to the MicroPython
// tests directory, so every command runs from there.
type Invoker struct {
	runner   ScriptRunner
	testsDir string
	sleep    func(time.Duration)
}

// NewInvoker returns an Invoker running real subprocesses from
// <mpyRootDir>/tests.
func NewInvoker(mpyRootDir string) *Invoker {
	return &Invoker{
		runner:   execScriptRunner{},
		testsDir: filepath.Join(mpyRootDir, "tests"),
		sleep:    time.Sleep,
	}
}

// NewInvokerWithRunner returns an Invoker with injected process execution
// and sleeping.
func NewInvokerWithRunner(runner ScriptRunner, mpyRootDir string, sleep func(time.Duration)) *Invoker {
	return &Invoker{runner: runner, testsDir: filepath.Join(mpyRootDir, "tests"), sleep: sleep}
}

// Invoke runs the test case against the resolved ports and returns the
// aggregated exit code (0 = pass).
func (v *Invoker) Invoke(ctx context.Context, tc *testplan.TestCase, dutPort, stubPort string) int {
	switch tc.Type {
	case testplan.TypeSingle:
		return v.runSingle(ctx, tc, dutPort)
	case testplan.TypeSinglePostDelay:
		return v.runSinglePostDelay(ctx, tc, dutPort)
	case testplan.TypeMultiStub:
		return v.runMultiStub(ctx, tc, dutPort, stubPort)
	case testplan.TypeMulti:
		return v.runMulti(ctx, tc, dutPort, stubPort)
	case testplan.TypeCustom:
		return v.runCustom(ctx, tc, dutPort)
	default:
		log.Error().Str("test", tc.Name).Str("type", string(tc.Type)).Msg("no runner for test type")
		return 1
	}
}

// run wraps the script runner; process spawn failures count as test
// failures rather than aborting the plan.
func (v *Invoker) run(ctx context.Context, name string, args ...string) int {
	code, err := v.runner.Run(ctx, v.testsDir, name, args...)
	if err != nil {
		log.Error().Err(err).Str("cmd", name+" "+strings.Join(args, " ")).Msg("test command could not run")
		return 1
	}
	return code
}

// runSingleCmd is one run-tests.py invocation. On failure the framework's
// failure listing is printed and cleaned so the next attempt starts fresh.
func (v *Invoker) runSingleCmd(ctx context.Context, dutPort string, testArgs, excludeArgs []string) int {
	args := []string{"run-tests.py", "-t", "port:" + dutPort}
	args = append(args, testArgs...)
	args = append(args, excludeArgs...)

	code := v.run(ctx, "python", args...)
	if code != 0 {
		v.run(ctx, "python", "run-tests.py", "--print-failures")
		v.run(ctx, "python", "run-tests.py", "--clean-failures")
	}
	return code
}

func (v *Invoker) runSingle(ctx context.Context, tc *testplan.TestCase, dutPort string) int {
	// run-tests.py wants directories flagged with -d.
	var testArgs []string
	for _, script := range tc.Scripts {
		if v.isDir(script) {
			testArgs = append(testArgs, "-d")
		}
		testArgs = append(testArgs, script)
	}
	var excludeArgs []string
	for _, excluded := range tc.Excludes {
		excludeArgs = append(excludeArgs, "-e", excluded)
	}
	return v.runSingleCmd(ctx, dutPort, testArgs, excludeArgs)
}

// runSinglePostDelay runs each test file in its own invocation with the
// configured delay in between, letting the board settle between tests.
func (v *Invoker) runSinglePostDelay(ctx context.Context, tc *testplan.TestCase, dutPort string) int {
	scripts := v.expandScripts(tc.Scripts)
	scripts = removeExcluded(scripts, tc.Excludes)

	for _, script := range scripts {
		if code := v.runSingleCmd(ctx, dutPort, []string{script}, nil); code != 0 {
			return code
		}
		if tc.PostTestDelay > 0 {
			v.sleep(tc.PostTestDelay)
		}
	}
	return 0
}

// runStub starts the stub script on the stub device via mpremote without
// waiting for the script output.
func (v *Invoker) runStub(ctx context.Context, tc *testplan.TestCase, stubPort string) int {
	mpremote := filepath.Join(v.testsDir, "..", "tools", "mpremote", "mpremote.py")
	return v.run(ctx, mpremote, "connect", stubPort, "run", "--no-follow", tc.StubScript)
}

func (v *Invoker) runMultiStub(ctx context.Context, tc *testplan.TestCase, dutPort, stubPort string) int {
	if code := v.runStub(ctx, tc, stubPort); code != 0 {
		return code
	}
	if tc.PostStubDelay > 0 {
		v.sleep(tc.PostStubDelay)
	}
	return v.runSingle(ctx, tc, dutPort)
}

func (v *Invoker) runMulti(ctx context.Context, tc *testplan.TestCase, dutPort, stubPort string) int {
	args := []string{"run-multitests.py", "-t", dutPort, "-t", stubPort}
	args = append(args, v.expandScripts(tc.Scripts)...)
	return v.run(ctx, "python", args...)
}

// runCustom runs each declared script as its own process with the dut port
// and the configured extra arguments. Any failing script fails the test,
// but all scripts run.
func (v *Invoker) runCustom(ctx context.Context, tc *testplan.TestCase, dutPort string) int {
	result := 0
	for _, script := range tc.Scripts {
		args := append([]string{script, dutPort}, tc.CustomArgs...)
		if code := v.run(ctx, "python", args...); code != 0 {
			result = 1
		}
	}
	return result
}

func (v *Invoker) isDir(script string) bool {
	info, err := os.Stat(filepath.Join(v.testsDir, script))
	return err == nil && info.IsDir()
}

// expandScripts replaces directories with the .py files under them,
// keeping paths relative to the tests directory.
func (v *Invoker) expandScripts(scripts []string) []string {
	var expanded []string
	for _, script := range scripts {
		if !v.isDir(script) {
			expanded = append(expanded, script)
			continue
		}
		root := filepath.Join(v.testsDir, script)
		_ = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
			if err != nil || info.IsDir() || !strings.HasSuffix(path, ".py") {
				return nil
			}
			if rel, relErr := filepath.Rel(v.testsDir, path); relErr == nil {
				expanded = append(expanded, rel)
			}
			return nil
		})
	}
	return expanded
}

func removeExcluded(scripts, excludes []string) []string {
	if len(excludes) == 0 {
		return scripts
	}
	var kept []string
	for _, script := range scripts {
		if !contains(excludes, script) {
			kept = append(kept, script)
		}
	}
	return kept
}
