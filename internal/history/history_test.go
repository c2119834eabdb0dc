package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	planrunner "github.com/mpy-hil/planrunner"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRecordAndSummarize(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	base := time.Now()

	records := []planrunner.OutcomeRecord{
		{RunID: "run-1", Pass: 1, TestName: "T1", Outcome: planrunner.OutcomeFail, ExitCode: 1, At: base},
		{RunID: "run-1", Pass: 1, TestName: "T2", Outcome: planrunner.OutcomeSkip, At: base},
		{RunID: "run-1", Pass: 2, TestName: "T1", Outcome: planrunner.OutcomePass, At: base.Add(time.Minute)},
		{RunID: "run-2", Pass: 1, TestName: "T1", Outcome: planrunner.OutcomeFail, ExitCode: 2, At: base},
	}
	for _, rec := range records {
		if err := store.RecordOutcome(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	summary, err := store.Summarize(ctx, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	// T1's retry pass supersedes its first failure.
	if summary.Passed != 1 || summary.Failed != 0 || summary.Skipped != 1 {
		t.Fatalf("summary = %+v", summary)
	}

	other, err := store.Summarize(ctx, "run-2")
	if err != nil {
		t.Fatal(err)
	}
	if other.Failed != 1 {
		t.Fatalf("run-2 summary = %+v", other)
	}
}

func TestSummarizeUnknownRun(t *testing.T) {
	store := openTestStore(t)
	summary, err := store.Summarize(context.Background(), "missing")
	if err != nil {
		t.Fatal(err)
	}
	if summary.Passed+summary.Failed+summary.Skipped != 0 {
		t.Fatalf("summary = %+v", summary)
	}
}
