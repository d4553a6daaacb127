package audit

import (
	"testing"
	"time"

	"github.com/rawblock/hashpass-engine/pkg/models"
)

func TestAppendAndQuery_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	log, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer log.Close()

	for i := 0; i < 5; i++ {
		rec := models.AuditRecord{
			RecordID:    string(rune('a' + i)),
			Timestamp:   time.Now(),
			InviteCode:  "HASHPASS-CODE",
			Fingerprint: "fp-common",
		}
		if err := log.Append(rec); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	records, total, err := Query(dir, "", 0, 100)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if total != 5 {
		t.Fatalf("expected total=5, got %d", total)
	}
	if len(records) != 5 {
		t.Fatalf("expected 5 records returned, got %d", len(records))
	}
}

func TestQuery_NewestFirst(t *testing.T) {
	dir := t.TempDir()
	log, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer log.Close()

	log.Append(models.AuditRecord{RecordID: "first", Fingerprint: "fp"})
	log.Append(models.AuditRecord{RecordID: "second", Fingerprint: "fp"})
	log.Append(models.AuditRecord{RecordID: "third", Fingerprint: "fp"})

	records, _, err := Query(dir, "", 0, 100)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(records) != 3 || records[0].RecordID != "third" {
		t.Fatalf("expected newest-first ordering with \"third\" first, got %+v", records)
	}
}

func TestQuery_SearchFiltersByInviteCodeOrFingerprint(t *testing.T) {
	dir := t.TempDir()
	log, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer log.Close()

	log.Append(models.AuditRecord{RecordID: "a", InviteCode: "HASHPASS-AAA", Fingerprint: "fp-1"})
	log.Append(models.AuditRecord{RecordID: "b", InviteCode: "HASHPASS-BBB", Fingerprint: "fp-2"})

	records, total, err := Query(dir, "fp-2", 0, 100)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if total != 1 || records[0].Fingerprint != "fp-2" {
		t.Fatalf("expected the search to match only fp-2, got total=%d records=%+v", total, records)
	}
}

func TestQuery_PaginationRespectsOffsetAndLimit(t *testing.T) {
	dir := t.TempDir()
	log, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer log.Close()

	for i := 0; i < 10; i++ {
		log.Append(models.AuditRecord{RecordID: string(rune('a' + i)), Fingerprint: "fp"})
	}

	page, total, err := Query(dir, "", 2, 3)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if total != 10 {
		t.Fatalf("expected total=10 regardless of pagination, got %d", total)
	}
	if len(page) != 3 {
		t.Fatalf("expected a page of 3 records, got %d", len(page))
	}
}

func TestQuery_OffsetBeyondTotalReturnsEmpty(t *testing.T) {
	dir := t.TempDir()
	log, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer log.Close()

	log.Append(models.AuditRecord{RecordID: "only", Fingerprint: "fp"})

	page, total, err := Query(dir, "", 50, 10)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if total != 1 {
		t.Fatalf("expected total=1, got %d", total)
	}
	if len(page) != 0 {
		t.Fatalf("expected an empty page when offset exceeds the total, got %d records", len(page))
	}
}

func TestAppend_RotatesAfterThreshold(t *testing.T) {
	dir := t.TempDir()
	log, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer log.Close()

	for i := 0; i < rotateAfter; i++ {
		if err := log.Append(models.AuditRecord{RecordID: "r", Fingerprint: "fp"}); err != nil {
			t.Fatalf("Append #%d: %v", i, err)
		}
	}
	if log.count != 0 {
		t.Fatalf("expected the segment counter to reset to 0 after rotation, got %d", log.count)
	}
}
