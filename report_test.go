package planrunner

import (
	"strings"
	"testing"
)

func TestSummaryAllPassed(t *testing.T) {
	var buf strings.Builder
	r := NewResults(0)
	r.RegisterPass("T1")
	r.RegisterPass("T2")

	NewReport(&buf).Summary(r)

	out := buf.String()
	if !strings.Contains(out, "tests") || !strings.Contains(out, "passed") {
		t.Fatalf("summary = %q", out)
	}
	if strings.Contains(out, "- failed") || strings.Contains(out, "- skipped") {
		t.Fatalf("all-passed summary must not list buckets: %q", out)
	}
}

func TestSummaryListsBuckets(t *testing.T) {
	var buf strings.Builder
	r := NewResults(0)
	r.RegisterPass("T1")
	r.RegisterSkip("T2")
	r.RegisterFail("T3")

	NewReport(&buf).Summary(r)

	out := buf.String()
	for _, want := range []string{"- passed", "- skipped", "- failed", "T1", "T2", "T3"} {
		if !strings.Contains(out, want) {
			t.Fatalf("summary missing %q: %q", want, out)
		}
	}
}

func TestTestInfoOmitsEmptyStubPort(t *testing.T) {
	var buf strings.Builder
	NewReport(&buf).TestInfo("basics", "/dev/ttyACM0", "")
	if strings.Contains(buf.String(), "stub port") {
		t.Fatalf("stub line printed without a stub: %q", buf.String())
	}

	buf.Reset()
	NewReport(&buf).TestInfo("p2p", "/dev/ttyACM0", "/dev/ttyACM1")
	if !strings.Contains(buf.String(), "stub port") {
		t.Fatalf("stub line missing: %q", buf.String())
	}
}
