package planrunner

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mpy-hil/planrunner/pkg/testplan"
)

// ANSI colors for the human-readable plan report. Structured diagnostics go
// through zerolog; this writer owns the operator-facing output.
const (
	colorBlue   = "\033[94m"
	colorYellow = "\033[33m"
	colorGreen  = "\033[92m"
	colorRed    = "\033[91m"
	colorOff    = "\033[0m"
)

const decoratorLineLen = 41

// Report renders the test plan progress and summary.
type Report struct {
	w io.Writer
}

// NewReport writes to w, defaulting to stdout.
func NewReport(w io.Writer) *Report {
	if w == nil {
		w = os.Stdout
	}
	return &Report{w: w}
}

func (r *Report) printf(format string, args ...any) {
	fmt.Fprintf(r.w, format, args...)
}

func (r *Report) banner(color string) {
	r.printf("%s%s%s\n", color, strings.Repeat("#", decoratorLineLen), colorOff)
}

func (r *Report) dashedLine() {
	r.printf("%s-\n", strings.Repeat("- ", decoratorLineLen/2))
}

// PlanInfo prints the run header. hilDevsFile and board are empty in
// static-port mode.
func (r *Report) PlanInfo(testPlanFile, hilDevsFile, board string) {
	r.banner(colorBlue)
	if board != "" {
		r.printf("%s> board        : %s%s\n", colorBlue, board, colorOff)
	}
	r.printf("test plan file : %s\n", relPath(testPlanFile))
	if hilDevsFile != "" {
		r.printf("hil devs file  : %s\n", relPath(hilDevsFile))
	}
	r.banner(colorBlue)
}

func (r *Report) TestInfo(testName, dutPort, stubPort string) {
	r.printf("%s\n", strings.Repeat("-", decoratorLineLen))
	r.printf("%s> running test : %s%s\n", colorBlue, testName, colorOff)
	r.printf("dut port       : %s\n", dutPort)
	if stubPort != "" {
		r.printf("stub port      : %s\n", stubPort)
	}
	r.dashedLine()
}

func (r *Report) Footer() {
	r.printf("%s\n", strings.Repeat("-", decoratorLineLen))
}

func (r *Report) Fail(testName string) {
	r.dashedLine()
	r.printf("%s> failed test  : %s %s\n", colorRed, testName, colorOff)
}

func (r *Report) Pass(testName string) {
	r.dashedLine()
	r.printf("%s> passed test  : %s%s\n", colorGreen, testName, colorOff)
}

func (r *Report) Skip(testName string) {
	r.printf("%s\n", strings.Repeat("-", decoratorLineLen))
	r.printf("%s> skipped test : %s%s\n", colorYellow, testName, colorOff)
}

// Retries announces the tests queued for another pass.
func (r *Report) Retries(cases []*testplan.TestCase) {
	if len(cases) == 0 {
		return
	}
	r.printf("%s\n", strings.Repeat("#", decoratorLineLen))
	r.printf("%s> retry tests  : ", colorYellow)
	for _, tc := range cases {
		r.printf("%s ", tc.Name)
	}
	r.printf("%s\n", colorOff)
	r.printf("%s\n", strings.Repeat("#", decoratorLineLen))
}

// Summary prints the final verdict block.
func (r *Report) Summary(results *Results) {
	passed, failed, skipped := results.Passed(), results.Failed(), results.Skipped()
	total := len(passed) + len(failed) + len(skipped)

	r.banner(colorBlue)
	r.printf("> test summary : ")

	switch {
	case len(failed) == 0 && len(skipped) == 0:
		r.printf("all %s%d%s tests %spassed%s\n", colorGreen, len(passed), colorOff, colorGreen, colorOff)
	case len(passed) > 0:
		r.printf("only %s%d%s out of %s%d%s test passed\n",
			colorGreen, len(passed), colorOff, colorBlue, total, colorOff)
	case len(skipped) == 0:
		r.printf("all %s%d%s tests %sfailed%s\n", colorRed, len(failed), colorOff, colorRed, colorOff)
	default:
		r.printf("\n")
	}

	if len(failed) > 0 || len(skipped) > 0 {
		r.nameList(colorGreen, " - passed      : ", passed)
		r.nameList(colorYellow, " - skipped     : ", skipped)
		r.nameList(colorRed, " - failed      : ", failed)
	}
	r.banner(colorBlue)
}

func (r *Report) nameList(color, label string, names []string) {
	if len(names) == 0 {
		return
	}
	r.printf("%s%s", color, label)
	for _, name := range names {
		r.printf("%s ", name)
	}
	r.printf("%s\n", colorOff)
}

func relPath(path string) string {
	if wd, err := os.Getwd(); err == nil {
		if rel, err := filepath.Rel(wd, path); err == nil {
			return rel
		}
	}
	return path
}
