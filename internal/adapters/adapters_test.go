package adapters

import (
	"testing"

	"github.com/nrod/cancelwatch/internal/store"
)

func TestParseScheduleParsesValidBlock(t *testing.T) {
	data := []byte(`train_uid: X12345
headcode: 1A23
operator_code: GW
service_type: passenger
start_date: 2026-08-01
end_date: 2026-08-31
days_run: 1111111
stp_indicator: p
speed: 100
stop: 1 PADTON origin - 1000 - 1 -
stop: 2 RDNG terminus 1030 - - 2 -
`)
	records, report := ParseSchedule(data)
	if len(report.ParseErrors) != 0 {
		t.Fatalf("unexpected parse errors: %v", report.ParseErrors)
	}
	if report.RecordCount != 1 || len(records) != 1 {
		t.Fatalf("RecordCount = %d, len(records) = %d; want 1, 1", report.RecordCount, len(records))
	}
	rec := records[0]
	if rec.Schedule.TrainUID != "X12345" || rec.Schedule.STPIndicator != store.STPPermanent {
		t.Fatalf("unexpected schedule: %+v", rec.Schedule)
	}
	if len(rec.Stops) != 2 || rec.Stops[0].StopType != store.StopOrigin || *rec.Stops[0].Departure != "1000" {
		t.Fatalf("unexpected stops: %+v", rec.Stops)
	}
}

func TestParseScheduleSkipsMalformedBlockAndCountsError(t *testing.T) {
	data := []byte(`train_uid: X1
stp_indicator: Z
days_run: 1111111

train_uid: X2
stp_indicator: P
days_run: 1111111
stop: 1 PADTON origin - 1000 - 1 -
stop: 2 RDNG terminus 1030 - - 2 -
`)
	records, report := ParseSchedule(data)
	if len(report.ParseErrors) != 1 {
		t.Fatalf("expected 1 parse error, got %d: %v", len(report.ParseErrors), report.ParseErrors)
	}
	if len(records) != 1 || records[0].Schedule.TrainUID != "X2" {
		t.Fatalf("unexpected surviving records: %+v", records)
	}
}

func TestParseStationReferenceParsesAndSkipsComments(t *testing.T) {
	data := []byte("# comment\nPADTON|PAD|London Paddington|51.5154|-0.1755|GB|London\nBADLINE\n")
	records, report := ParseStationReference(data)
	if report.RecordCount != 1 || len(report.ParseErrors) != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	st := records[0].Station
	if st.Tiploc != "PADTON" || st.CRSCode == nil || *st.CRSCode != "PAD" {
		t.Fatalf("unexpected station: %+v", st)
	}
	if st.Latitude == nil || st.Longitude == nil {
		t.Fatalf("expected lat/long to be parsed: %+v", st)
	}
}

func TestParseStationReferenceRejectsMismatchedLatLong(t *testing.T) {
	data := []byte("PADTON|PAD|London Paddington|51.5154\n")
	records, report := ParseStationReference(data)
	if len(records) != 0 || report.RecordCount != 0 {
		t.Fatalf("expected lat-without-long to be rejected: %+v / %+v", records, report)
	}
	if len(report.ParseErrors) != 1 {
		t.Fatalf("expected 1 parse error, got %v", report.ParseErrors)
	}
}

func TestParseConnectionsKeyValueVariant(t *testing.T) {
	data := []byte("from=PADTON to=PADBAKR mode=walk duration=8 valid_from=2026-01-01 valid_to=2030-01-01\n")
	records, report := ParseConnections(data)
	if report.RecordCount != 1 || len(records) != 1 {
		t.Fatalf("unexpected report/records: %+v / %+v", report, records)
	}
	rec := records[0]
	if rec.FromTiploc != "PADTON" || rec.Mode != ConnectionWalk || rec.DurationMinutes != 8 {
		t.Fatalf("unexpected connection: %+v", rec)
	}
}

func TestParseConnectionsFixedWidthVariant(t *testing.T) {
	line := "PADTON PADBAKRW010"
	records, report := ParseConnections([]byte(line + "\n"))
	if report.RecordCount != 1 || len(records) != 1 {
		t.Fatalf("unexpected report/records: %+v / %+v", report, records)
	}
	rec := records[0]
	if rec.FromTiploc != "PADTON" || rec.ToTiploc != "PADBAKR" || rec.Mode != ConnectionWalk || rec.DurationMinutes != 10 {
		t.Fatalf("unexpected connection: %+v", rec)
	}
}

func TestParseConnectionsSkipsTooShortLines(t *testing.T) {
	records, report := ParseConnections([]byte("short\n"))
	if len(records) != 0 || len(report.ParseErrors) != 1 {
		t.Fatalf("expected 1 parse error, got records=%+v report=%+v", records, report)
	}
}
