package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/samvad-hq/scrapyd-go/internal/domain"
)

func openTestJournal(t *testing.T, opts Options) *boltJournal {
	t.Helper()
	raw, err := openBolt(filepath.Join(t.TempDir(), "jobs.db"), normalizeOptions(opts))
	if err != nil {
		t.Fatalf("openBolt: %v", err)
	}
	j := raw.(*boltJournal)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestBoltJournalRecordsAndLooksUpJobs(t *testing.T) {
	j := openTestJournal(t, Options{RecordTTL: time.Hour, CleanupInterval: time.Hour})

	_, found, err := j.Lookup("job1")
	if err != nil || found {
		t.Fatalf("expected unknown job, found=%v err=%v", found, err)
	}

	rec := domain.JobRecord{
		JobID:       "job1",
		Target:      "local",
		Project:     "quotes",
		Spider:      "toscrape",
		ScheduledAt: time.Now().UTC().Truncate(time.Second),
	}
	if err := j.Record(rec); err != nil {
		t.Fatalf("Record: %v", err)
	}

	got, found, err := j.Lookup("job1")
	if err != nil || !found {
		t.Fatalf("expected job recorded, found=%v err=%v", found, err)
	}
	if got.Project != "quotes" || got.Spider != "toscrape" || !got.ScheduledAt.Equal(rec.ScheduledAt) {
		t.Fatalf("unexpected record %#v", got)
	}
}

func TestBoltJournalExpiresRecords(t *testing.T) {
	j := openTestJournal(t, Options{RecordTTL: time.Minute, CleanupInterval: time.Minute})
	base := time.Now()
	j.now = func() time.Time { return base }

	if err := j.Record(domain.JobRecord{JobID: "old", ScheduledAt: base}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	// Fast-forward past the TTL and the cleanup cadence.
	j.now = func() time.Time { return base.Add(2 * time.Minute) }

	if list, err := j.List(); err != nil || len(list) != 0 {
		t.Fatalf("expected expired record hidden from List, got %v err=%v", list, err)
	}
	_, found, err := j.Lookup("old")
	if err != nil {
		t.Fatalf("Lookup after expiry: %v", err)
	}
	if found {
		t.Fatalf("expected record to expire and be removed")
	}
}

func TestBoltJournalListOrdersBySchedule(t *testing.T) {
	j := openTestJournal(t, Options{})
	now := time.Now()
	for _, rec := range []domain.JobRecord{
		{JobID: "b", ScheduledAt: now},
		{JobID: "a", ScheduledAt: now.Add(-time.Minute)},
	} {
		if err := j.Record(rec); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	list, err := j.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].JobID != "a" || list[1].JobID != "b" {
		t.Fatalf("unexpected order %#v", list)
	}
}

func TestBoltJournalRejectsEmptyJobID(t *testing.T) {
	j := openTestJournal(t, Options{})
	if err := j.Record(domain.JobRecord{}); err == nil {
		t.Fatalf("expected error for empty job id")
	}
}

func TestNewJournalSupportsNoop(t *testing.T) {
	j, err := NewJournal("none", "", Options{})
	if err != nil {
		t.Fatalf("NewJournal none: %v", err)
	}
	if err := j.Record(domain.JobRecord{JobID: "x"}); err != nil {
		t.Fatalf("noop journal Record: %v", err)
	}
	if _, err := NewJournal("redis", "", Options{}); err == nil {
		t.Fatalf("expected error for unsupported type")
	}
}
