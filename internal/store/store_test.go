package store

import (
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "cancelwatch.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func strPtr(s string) *string { return &s }

func TestPutStationUppercasesCRSAndUpserts(t *testing.T) {
	s := openTestStore(t)

	id, err := s.PutStation(Station{Tiploc: "PADTON", CRSCode: strPtr("pad"), StationName: "London Paddington"})
	if err != nil {
		t.Fatalf("PutStation() error = %v", err)
	}

	got, ok, err := s.LookupStation("PAD")
	if err != nil || !ok {
		t.Fatalf("LookupStation(PAD) = %+v, %v, %v", got, ok, err)
	}
	if got.ID != id || got.CRSCode == nil || *got.CRSCode != "PAD" {
		t.Fatalf("unexpected station: %+v", got)
	}

	if _, err := s.PutStation(Station{Tiploc: "PADTON", CRSCode: strPtr("pad"), StationName: "Paddington (renamed)"}); err != nil {
		t.Fatalf("PutStation() upsert error = %v", err)
	}
	got2, _, _ := s.LookupStation("PADTON")
	if got2.StationName != "Paddington (renamed)" {
		t.Fatalf("upsert did not update station_name: %+v", got2)
	}
}

func TestLookupStationFallsThroughTiersToAlias(t *testing.T) {
	s := openTestStore(t)

	id, err := s.PutStation(Station{Tiploc: "RDNGSTN", CRSCode: strPtr("rdg"), StationName: "Reading"})
	if err != nil {
		t.Fatalf("PutStation() error = %v", err)
	}
	if err := s.PutAlias(StationAlias{StationID: id, AliasName: "Reading West", AliasType: AliasColloquial, IsPrimary: true}); err != nil {
		t.Fatalf("PutAlias() error = %v", err)
	}

	byName, ok, err := s.LookupStation("reading")
	if err != nil || !ok || byName.ID != id {
		t.Fatalf("LookupStation(reading) = %+v, %v, %v", byName, ok, err)
	}

	byAlias, ok, err := s.LookupStation("READING WEST")
	if err != nil || !ok || byAlias.ID != id {
		t.Fatalf("LookupStation(READING WEST) = %+v, %v, %v", byAlias, ok, err)
	}

	_, ok, err = s.LookupStation("nonexistent station")
	if err != nil || ok {
		t.Fatalf("LookupStation(nonexistent) = ok %v, err %v; want false, nil", ok, err)
	}
}

func TestCanonicalTiplocResolvesMappingOrPassesThrough(t *testing.T) {
	s := openTestStore(t)

	if err := s.PutMapping(TiplocMapping{SourceTiploc: "BADTLOC", CanonicalTiploc: "PADTON", DataSource: "cif", Reason: "typo"}); err != nil {
		t.Fatalf("PutMapping() error = %v", err)
	}

	if got := s.CanonicalTiploc("BADTLOC"); got != "PADTON" {
		t.Fatalf("CanonicalTiploc(BADTLOC) = %q, want PADTON", got)
	}
	if got := s.CanonicalTiploc("UNMAPPED"); got != "UNMAPPED" {
		t.Fatalf("CanonicalTiploc(UNMAPPED) = %q, want passthrough", got)
	}
}

func validStops() []ScheduleStop {
	dep := "10:00"
	arr := "10:30"
	return []ScheduleStop{
		{Sequence: 1, Tiploc: "PADTON", StopType: StopOrigin, Departure: &dep},
		{Sequence: 2, Tiploc: "RDNG", StopType: StopTerminus, Arrival: &arr},
	}
}

func TestPutScheduleRejectsMalformedStopSets(t *testing.T) {
	s := openTestStore(t)

	_, err := s.PutSchedule(Schedule{TrainUID: "X12345", StartDate: "2026-08-01", EndDate: "2026-08-31", DaysRun: "1111100", STPIndicator: STPPermanent}, nil)
	if err == nil {
		t.Fatalf("expected error for empty stop set")
	}

	noOrigin := []ScheduleStop{{Sequence: 1, Tiploc: "RDNG", StopType: StopTerminus, Arrival: strPtr("10:30")}}
	if _, err := s.PutSchedule(Schedule{TrainUID: "X12345", StartDate: "2026-08-01", EndDate: "2026-08-31", DaysRun: "1111100", STPIndicator: STPPermanent}, noOrigin); err == nil {
		t.Fatalf("expected error for schedule missing an origin stop")
	}
}

func TestResolveScheduleAppliesSTPPrecedence(t *testing.T) {
	s := openTestStore(t)

	permID, err := s.PutSchedule(Schedule{
		TrainUID: "X12345", StartDate: "2026-08-01", EndDate: "2026-08-31",
		DaysRun: "1111111", STPIndicator: STPPermanent,
	}, validStops())
	if err != nil {
		t.Fatalf("PutSchedule(permanent) error = %v", err)
	}

	if _, err := s.PutSchedule(Schedule{
		TrainUID: "X12345", StartDate: "2026-08-01", EndDate: "2026-08-31",
		DaysRun: "1111111", STPIndicator: STPOverlay,
	}, validStops()); err != nil {
		t.Fatalf("PutSchedule(overlay) error = %v", err)
	}

	resolved, ok, err := s.ResolveSchedule("X12345", "2026-08-03")
	if err != nil || !ok {
		t.Fatalf("ResolveSchedule() = %+v, %v, %v", resolved, ok, err)
	}
	if resolved.STPIndicator != STPOverlay {
		t.Fatalf("ResolveSchedule() returned %q, want overlay to win over permanent", resolved.STPIndicator)
	}

	if _, err := s.PutSchedule(Schedule{
		TrainUID: "X12345", StartDate: "2026-08-01", EndDate: "2026-08-31",
		DaysRun: "1111111", STPIndicator: STPCancelled,
	}, validStops()); err != nil {
		t.Fatalf("PutSchedule(cancelled) error = %v", err)
	}

	_, ok, err = s.ResolveSchedule("X12345", "2026-08-03")
	if err != nil || ok {
		t.Fatalf("ResolveSchedule() after cancellation = ok %v, err %v; want false, nil", ok, err)
	}

	stops, err := s.GetStops(permID)
	if err != nil || len(stops) != 2 {
		t.Fatalf("GetStops(permanent schedule) = %+v, %v", stops, err)
	}
}

func TestResolveScheduleHonoursDaysRun(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.PutSchedule(Schedule{
		TrainUID: "X99999", StartDate: "2026-08-01", EndDate: "2026-08-31",
		DaysRun: "1111100", STPIndicator: STPPermanent,
	}, validStops()); err != nil {
		t.Fatalf("PutSchedule() error = %v", err)
	}

	// 2026-08-01 is a Saturday (index 5, zero bit in the mask).
	_, ok, err := s.ResolveSchedule("X99999", "2026-08-01")
	if err != nil || ok {
		t.Fatalf("ResolveSchedule(Saturday) = ok %v, err %v; want false, nil", ok, err)
	}

	_, ok, err = s.ResolveSchedule("X99999", "2026-08-03")
	if err != nil || !ok {
		t.Fatalf("ResolveSchedule(Monday) = ok %v, err %v; want true, nil", ok, err)
	}
}

func TestPutConnectionUpsertsAndConnectionsFrom(t *testing.T) {
	s := openTestStore(t)

	c := Connection{FromTiploc: "PADTON", ToTiploc: "PADBAKR", Mode: ConnectionWalk, DurationMinutes: 8, ValidFrom: "2026-01-01", ValidTo: "2030-01-01"}
	if err := s.PutConnection(c); err != nil {
		t.Fatalf("PutConnection() error = %v", err)
	}
	c.DurationMinutes = 10
	if err := s.PutConnection(c); err != nil {
		t.Fatalf("PutConnection() upsert error = %v", err)
	}

	conns, err := s.ConnectionsFrom("PADTON")
	if err != nil {
		t.Fatalf("ConnectionsFrom() error = %v", err)
	}
	if len(conns) != 1 || conns[0].DurationMinutes != 10 {
		t.Fatalf("unexpected connections: %+v", conns)
	}
}

func TestBeginImportDedupsByFileHash(t *testing.T) {
	s := openTestStore(t)

	decision, rec, err := s.BeginImport("cif", "hash-1")
	if err != nil || decision != ImportAccept {
		t.Fatalf("BeginImport() = %v, %v, %v; want accept", decision, rec, err)
	}
	if err := s.FinishImport(rec.ID, 10, 10, true, nil); err != nil {
		t.Fatalf("FinishImport() error = %v", err)
	}

	decision2, _, err := s.BeginImport("cif", "hash-1")
	if err != nil || decision2 != ImportDuplicate {
		t.Fatalf("BeginImport() second call = %v, %v; want duplicate", decision2, err)
	}

	decision3, rec3, err := s.BeginImport("cif", "hash-2")
	if err != nil || decision3 != ImportAccept {
		t.Fatalf("BeginImport() new hash = %v, %v; want accept", decision3, err)
	}
	if err := s.FinishImport(rec3.ID, 5, 0, false, []string{"bad row 3"}); err != nil {
		t.Fatalf("FinishImport() error = %v", err)
	}

	decision4, _, err := s.BeginImport("cif", "hash-2")
	if err != nil || decision4 != ImportReplace {
		t.Fatalf("BeginImport() after failed import = %v, %v; want replace", decision4, err)
	}

	stats, err := s.Statistics()
	if err != nil {
		t.Fatalf("Statistics() error = %v", err)
	}
	if stats.LastImportOK {
		t.Fatalf("Statistics().LastImportOK = true, want false after most recent import failed")
	}
}

func TestPruneExpiredSchedulesDeletesOnlyPastEndDate(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.PutSchedule(Schedule{
		TrainUID: "OLD001", StartDate: "2020-01-01", EndDate: "2020-01-31",
		DaysRun: "1111111", STPIndicator: STPPermanent,
	}, validStops()); err != nil {
		t.Fatalf("PutSchedule(old) error = %v", err)
	}
	if _, err := s.PutSchedule(Schedule{
		TrainUID: "NEW001", StartDate: "2026-08-01", EndDate: "2026-12-31",
		DaysRun: "1111111", STPIndicator: STPPermanent,
	}, validStops()); err != nil {
		t.Fatalf("PutSchedule(new) error = %v", err)
	}

	n, err := s.PruneExpiredSchedules(30)
	if err != nil {
		t.Fatalf("PruneExpiredSchedules() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("PruneExpiredSchedules() removed %d, want 1", n)
	}

	stats, err := s.Statistics()
	if err != nil {
		t.Fatalf("Statistics() error = %v", err)
	}
	if stats.TotalSchedules != 1 {
		t.Fatalf("Statistics().TotalSchedules = %d, want 1", stats.TotalSchedules)
	}
}

func TestIterSchedulesActiveOnAppliesPrecedenceAndExcludesCancelled(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.PutSchedule(Schedule{
		TrainUID: "A1", StartDate: "2026-08-01", EndDate: "2026-08-31",
		DaysRun: "1111111", STPIndicator: STPPermanent,
	}, validStops()); err != nil {
		t.Fatalf("PutSchedule(A1) error = %v", err)
	}
	if _, err := s.PutSchedule(Schedule{
		TrainUID: "A2", StartDate: "2026-08-01", EndDate: "2026-08-31",
		DaysRun: "1111111", STPIndicator: STPCancelled,
	}, validStops()); err != nil {
		t.Fatalf("PutSchedule(A2) error = %v", err)
	}

	active, err := s.IterSchedulesActiveOn("2026-08-03")
	if err != nil {
		t.Fatalf("IterSchedulesActiveOn() error = %v", err)
	}
	if len(active) != 1 || active[0].TrainUID != "A1" {
		t.Fatalf("unexpected active schedules: %+v", active)
	}
}
