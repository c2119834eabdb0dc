package planrunner

import (
	"context"
	"time"

	"github.com/mpy-hil/planrunner/pkg/testplan"
)

// Outcome is the terminal result of one test attempt.
type Outcome string

const (
	OutcomePass Outcome = "pass"
	OutcomeFail Outcome = "fail"
	OutcomeSkip Outcome = "skip"
)

// OutcomeRecord captures one attempt for external bookkeeping.
type OutcomeRecord struct {
	RunID    string
	Pass     int
	TestName string
	Outcome  Outcome
	ExitCode int
	DUTPort  string
	StubPort string
	At       time.Time
}

// Recorder receives attempt outcomes from the engine to persist elsewhere.
// Recorder failures never affect the run verdict.
type Recorder interface {
	RecordOutcome(ctx context.Context, rec OutcomeRecord) error
}

type noopRecorder struct{}

func (noopRecorder) RecordOutcome(ctx context.Context, rec OutcomeRecord) error { return nil }

type testRetry struct {
	name      string
	remaining int
}

// Results tracks pass/fail/skip state across passes over the plan, plus the
// per-test retry budget. A name may move from failed to passed but is never
// in two sets at once.
type Results struct {
	maxRetries int
	passed     []string
	failed     []string
	skipped    []string
	retries    []testRetry
}

// NewResults returns a tracker granting each test maxRetries retries after
// its first failure.
func NewResults(maxRetries int) *Results {
	return &Results{maxRetries: maxRetries}
}

// RegisterSkip marks a test skipped. Skips are terminal: any earlier
// failure and its ledger entry are dropped, so a device that vanished
// between passes cannot keep the retry loop alive.
func (r *Results) RegisterSkip(name string) {
	if i := indexOf(r.failed, name); i >= 0 {
		r.failed = append(r.failed[:i], r.failed[i+1:]...)
	}
	if j := r.retryIndex(name); j >= 0 {
		r.retries = append(r.retries[:j], r.retries[j+1:]...)
	}
	if !contains(r.skipped, name) {
		r.skipped = append(r.skipped, name)
	}
}

// RegisterFail marks a test failed. The first failure opens a ledger entry
// with the full retry budget; each later failure consumes one retry.
func (r *Results) RegisterFail(name string) {
	if !contains(r.failed, name) {
		r.failed = append(r.failed, name)
		r.retries = append(r.retries, testRetry{name: name, remaining: r.maxRetries})
		return
	}
	if i := r.retryIndex(name); i >= 0 {
		r.retries[i].remaining--
	}
}

// RegisterPass marks a test passed, clearing any earlier failure and its
// ledger entry. Registering the same pass twice is a no-op.
func (r *Results) RegisterPass(name string) {
	if i := indexOf(r.failed, name); i >= 0 {
		r.failed = append(r.failed[:i], r.failed[i+1:]...)
		if j := r.retryIndex(name); j >= 0 {
			r.retries = append(r.retries[:j], r.retries[j+1:]...)
		}
	}
	if !contains(r.passed, name) {
		r.passed = append(r.passed, name)
	}
}

// FilterRetries returns the subset of cases that still have retry budget
// left, preserving plan order.
func (r *Results) FilterRetries(cases []*testplan.TestCase) []*testplan.TestCase {
	var retry []*testplan.TestCase
	for _, tc := range cases {
		for _, entry := range r.retries {
			if tc.Name == entry.name && entry.remaining > 0 {
				retry = append(retry, tc)
			}
		}
	}
	return retry
}

func (r *Results) Passed() []string  { return r.passed }
func (r *Results) Failed() []string  { return r.failed }
func (r *Results) Skipped() []string { return r.skipped }

// AllPassed reports whether no test remains failed; skipped tests do not
// fail the run.
func (r *Results) AllPassed() bool {
	return len(r.failed) == 0
}

func (r *Results) retryIndex(name string) int {
	for i, entry := range r.retries {
		if entry.name == name {
			return i
		}
	}
	return -1
}

func contains(list []string, name string) bool {
	return indexOf(list, name) >= 0
}

func indexOf(list []string, name string) int {
	for i, item := range list {
		if item == name {
			return i
		}
	}
	return -1
}
