package enrichment

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/nrod/cancelwatch/internal/darwin"
	"github.com/nrod/cancelwatch/internal/resolver"
	"github.com/nrod/cancelwatch/internal/store"
)

func newTestEngine(t *testing.T) (*Engine, *store.Store) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "enrichment.db"))
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return New(s, resolver.New(s)), s
}

func strPtr(s string) *string { return &s }

func seedSchedule(t *testing.T, s *store.Store, uid string) {
	t.Helper()
	dep, arr := "10:00", "10:30"
	stops := []store.ScheduleStop{
		{Sequence: 1, Tiploc: "PADTON", StopType: store.StopOrigin, Departure: &dep, Platform: strPtr("1")},
		{Sequence: 2, Tiploc: "RDNG", StopType: store.StopIntermediate, Arrival: &arr, Departure: &arr},
		{Sequence: 3, Tiploc: "BRISTOL", StopType: store.StopTerminus, Arrival: strPtr("11:30")},
	}
	if _, err := s.PutSchedule(store.Schedule{
		TrainUID: uid, Headcode: "1A23", OperatorCode: "GW",
		StartDate: "2026-08-01", EndDate: "2026-08-31",
		DaysRun: "1111111", STPIndicator: store.STPPermanent,
	}, stops); err != nil {
		t.Fatalf("seedSchedule() error = %v", err)
	}
	if _, err := s.PutStation(store.Station{Tiploc: "PADTON", StationName: "London Paddington"}); err != nil {
		t.Fatalf("PutStation(PADTON) error = %v", err)
	}
	if _, err := s.PutStation(store.Station{Tiploc: "BRISTOL", StationName: "Bristol Temple Meads"}); err != nil {
		t.Fatalf("PutStation(BRISTOL) error = %v", err)
	}
}

func TestEnrichResolvesScheduleAndProjectsStops(t *testing.T) {
	e, s := newTestEngine(t)
	seedSchedule(t, s, "X12345")

	ev := darwin.DecodedEvent{
		RID: "202608031234X12345", TrainServiceCode: "12345",
		ReasonCode: "REASON01", ReasonText: "points failure", ReceivedAt: time.Now(),
	}
	c := e.Enrich(ev)

	if !c.DarwinEnriched {
		t.Fatalf("expected enrichment to succeed: %+v", c)
	}
	if c.Origin == nil || c.Origin.Tiploc != "PADTON" || c.Origin.StationName != "London Paddington" {
		t.Fatalf("unexpected origin: %+v", c.Origin)
	}
	if c.Destination == nil || c.Destination.Tiploc != "BRISTOL" || c.Destination.ScheduledArrival != "11:30" {
		t.Fatalf("unexpected destination: %+v", c.Destination)
	}
	if len(c.CallingPoints) != 1 || c.CallingPoints[0].Tiploc != "RDNG" {
		t.Fatalf("unexpected calling points: %+v", c.CallingPoints)
	}

	snap := e.Stats.Snapshot()
	if snap.EnrichedTotal != 1 || snap.CancellationsTotal != 1 {
		t.Fatalf("unexpected stats snapshot: %+v", snap)
	}
}

func TestEnrichNoScheduleRecordsFailureReason(t *testing.T) {
	e, _ := newTestEngine(t)

	ev := darwin.DecodedEvent{RID: "202608031234UNKNWN", ReasonCode: "R", ReasonText: "t", ReceivedAt: time.Now()}
	c := e.Enrich(ev)

	if c.DarwinEnriched {
		t.Fatalf("expected enrichment to fail for unknown train_uid")
	}
	if c.RID != ev.RID {
		t.Fatalf("expected RID to survive a failed enrichment: %+v", c)
	}
	snap := e.Stats.Snapshot()
	if snap.FailuresByReason[string(ReasonNoSchedule)] != 1 {
		t.Fatalf("unexpected failures snapshot: %+v", snap.FailuresByReason)
	}
}

func TestEnrichMalformedRIDRecordsNoRIDFailure(t *testing.T) {
	e, _ := newTestEngine(t)

	ev := darwin.DecodedEvent{RID: "short", ReasonCode: "R", ReasonText: "t", ReceivedAt: time.Now()}
	c := e.Enrich(ev)

	if c.DarwinEnriched {
		t.Fatalf("expected enrichment to fail for a too-short RID")
	}
	snap := e.Stats.Snapshot()
	if snap.FailuresByReason[string(ReasonNoRID)] != 1 {
		t.Fatalf("unexpected failures snapshot: %+v", snap.FailuresByReason)
	}
}

func TestEnrichOutOfDateRangeFindsNoSchedule(t *testing.T) {
	e, s := newTestEngine(t)
	seedSchedule(t, s, "X99999")

	ev := darwin.DecodedEvent{RID: "202601011234X99999", ReasonCode: "R", ReasonText: "t", ReceivedAt: time.Now()}
	c := e.Enrich(ev)

	if c.DarwinEnriched {
		t.Fatalf("expected a date outside the schedule's range to fail enrichment")
	}
}

func TestEnrichCoalescesConcurrentLookupsForSameKey(t *testing.T) {
	e, s := newTestEngine(t)
	seedSchedule(t, s, "X55555")

	const n = 20
	results := make(chan bool, n)
	for i := 0; i < n; i++ {
		go func() {
			ev := darwin.DecodedEvent{RID: "202608031234X55555", ReasonCode: "R", ReasonText: "t", ReceivedAt: time.Now()}
			results <- e.Enrich(ev).DarwinEnriched
		}()
	}
	for i := 0; i < n; i++ {
		if !<-results {
			t.Fatalf("expected every concurrent Enrich() call to succeed")
		}
	}

	snap := e.Stats.Snapshot()
	if snap.EnrichedTotal != n {
		t.Fatalf("EnrichedTotal = %d, want %d", snap.EnrichedTotal, n)
	}
}
