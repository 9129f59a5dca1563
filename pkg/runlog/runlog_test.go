package runlog

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func tempJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "runlog.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestOpen_CreatesTables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	j, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer j.Close()

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("db file not created: %v", err)
	}
	regions, err := j.ListRegions()
	if err != nil {
		t.Fatalf("ListRegions on empty db: %v", err)
	}
	if len(regions) != 0 {
		t.Fatalf("expected 0 regions, got %d", len(regions))
	}
	if _, err := j.LastRun(); !errors.Is(err, ErrNoRuns) {
		t.Fatalf("LastRun on empty db = %v, want ErrNoRuns", err)
	}
}

func TestSeed_KeepsOrderAndFlags(t *testing.T) {
	j := tempJournal(t)

	if err := j.Seed([]string{"ZH", "BE", "AG"}); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if err := j.SetEnabled("BE", false); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}
	// Re-seeding must not re-enable BE.
	if err := j.Seed([]string{"ZH", "BE", "AG", "TI"}); err != nil {
		t.Fatalf("Seed again: %v", err)
	}

	codes, err := j.EnabledRegions()
	if err != nil {
		t.Fatalf("EnabledRegions: %v", err)
	}
	if want := []string{"ZH", "AG", "TI"}; !reflect.DeepEqual(codes, want) {
		t.Fatalf("EnabledRegions = %v, want %v", codes, want)
	}

	regions, _ := j.ListRegions()
	if len(regions) != 4 || regions[1].Code != "BE" || regions[1].Enabled {
		t.Fatalf("regions = %+v", regions)
	}
}

func TestSetEnabled_NotFound(t *testing.T) {
	j := tempJournal(t)
	if err := j.SetEnabled("XX", true); err == nil {
		t.Fatal("expected error for unknown region")
	}
}

func TestRecordFetch(t *testing.T) {
	j := tempJournal(t)
	if err := j.Seed([]string{"ZH"}); err != nil {
		t.Fatalf("Seed: %v", err)
	}

	if err := j.RecordFetch("ZH", 42, nil); err != nil {
		t.Fatalf("RecordFetch: %v", err)
	}
	regions, _ := j.ListRegions()
	r := regions[0]
	if r.LastStatus == nil || *r.LastStatus != "ok" {
		t.Fatalf("last_status = %v, want ok", r.LastStatus)
	}
	if r.LastCount == nil || *r.LastCount != 42 {
		t.Fatalf("last_count = %v, want 42", r.LastCount)
	}
	if r.LastFetch == nil || *r.LastFetch == 0 {
		t.Fatal("expected last_fetch to be set")
	}
	if r.LastError != nil {
		t.Fatalf("expected nil last_error, got %v", *r.LastError)
	}

	if err := j.RecordFetch("ZH", 0, errors.New("HTTP 503")); err != nil {
		t.Fatalf("RecordFetch with error: %v", err)
	}
	regions, _ = j.ListRegions()
	r = regions[0]
	if r.LastStatus == nil || *r.LastStatus != "error" {
		t.Fatalf("last_status = %v, want error", r.LastStatus)
	}
	if r.LastCount != nil {
		t.Fatalf("last_count = %v, want nil", *r.LastCount)
	}
	if r.LastError == nil || *r.LastError != "HTTP 503" {
		t.Fatalf("last_error = %v", r.LastError)
	}
}

func TestRuns(t *testing.T) {
	j := tempJournal(t)
	start := time.Now()

	if err := j.StartRun("run-1", start.Add(-time.Hour)); err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if err := j.FinishRun("run-1", Outcome{Status: StatusFailed, Err: errors.New("geography data unavailable")}); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	if err := j.StartRun("run-2", start); err != nil {
		t.Fatalf("StartRun: %v", err)
	}

	r, err := j.LastRun()
	if err != nil {
		t.Fatalf("LastRun: %v", err)
	}
	if r.ID != "run-2" || r.Status != StatusRunning || r.FinishedAt != nil {
		t.Fatalf("last run = %+v", r)
	}

	err = j.FinishRun("run-2", Outcome{
		Status:         StatusPartial,
		TotalEvents:    120,
		Municipalities: 35,
		Unmatched:      7,
		FailedRegions:  []string{"GE", "JU"},
	})
	if err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	r, _ = j.LastRun()
	if r.Status != StatusPartial || r.TotalEvents != 120 || r.Municipalities != 35 || r.Unmatched != 7 {
		t.Fatalf("last run = %+v", r)
	}
	if !reflect.DeepEqual(r.FailedRegions, []string{"GE", "JU"}) {
		t.Fatalf("failed regions = %v", r.FailedRegions)
	}
	if r.FinishedAt == nil || r.Error != nil {
		t.Fatalf("finished_at = %v, error = %v", r.FinishedAt, r.Error)
	}

	if err := j.FinishRun("missing", Outcome{Status: StatusOK}); err == nil {
		t.Fatal("expected error for unknown run")
	}
}
