package store

import (
	"context"
	"database/sql"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/nrod/cancelwatch/internal/apperr"
	"github.com/nrod/cancelwatch/internal/database"
)

// Store wraps a *sqlx.DB with the single-writer discipline §5 requires:
// imports take writeMu, every other write path (put_station et al.) is
// also serialized through it since the spec treats the whole store as
// single-writer; reads take no lock and rely on SQLite's MVCC-ish WAL
// readers.
type Store struct {
	db      *sqlx.DB
	path    string
	writeMu sync.Mutex
}

// Open creates (if needed) and opens the schedule store at path, applying
// schema migrations idempotently.
func Open(path string) (*Store, error) {
	db, err := database.Open(path)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeStore, "store: open", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, apperr.Wrap(apperr.CodeStore, "store: apply schema", err)
	}
	return &Store{db: db, path: path}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

// Ping verifies store reachability for the readiness check.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// PutStation upserts a Station keyed by tiploc; CRS is upper-cased per
// §3's invariant.
func (s *Store) PutStation(st Station) (int64, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if st.CRSCode != nil {
		up := strings.ToUpper(*st.CRSCode)
		st.CRSCode = &up
	}

	res, err := s.db.Exec(`
INSERT INTO station (tiploc, crs_code, station_name, country, region, latitude, longitude, is_active)
VALUES (?, ?, ?, ?, ?, ?, ?, 1)
ON CONFLICT (tiploc) DO UPDATE SET
    crs_code = excluded.crs_code,
    station_name = excluded.station_name,
    country = excluded.country,
    region = excluded.region,
    latitude = excluded.latitude,
    longitude = excluded.longitude,
    is_active = 1
`, st.Tiploc, st.CRSCode, st.StationName, st.Country, st.Region, st.Latitude, st.Longitude)
	if err != nil {
		return 0, apperr.Wrap(apperr.CodeStore, "store: put station", err)
	}

	var id int64
	if err := s.db.Get(&id, `SELECT id FROM station WHERE tiploc = ?`, st.Tiploc); err != nil {
		return 0, apperr.Wrap(apperr.CodeStore, "store: fetch station id", err)
	}
	_ = res
	return id, nil
}

// PutAlias inserts an alias, demoting any existing primary alias for the
// same station when is_primary is set (§3: "at most one alias flagged
// primary per station").
func (s *Store) PutAlias(a StationAlias) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.Beginx()
	if err != nil {
		return apperr.Wrap(apperr.CodeStore, "store: begin tx", err)
	}
	defer tx.Rollback()

	if a.IsPrimary {
		if _, err := tx.Exec(`UPDATE station_alias SET is_primary = 0 WHERE station_id = ?`, a.StationID); err != nil {
			return apperr.Wrap(apperr.CodeStore, "store: demote primary alias", err)
		}
	}

	if _, err := tx.Exec(`
INSERT INTO station_alias (station_id, alias_name, alias_type, is_primary)
VALUES (?, ?, ?, ?)
`, a.StationID, a.AliasName, a.AliasType, a.IsPrimary); err != nil {
		return apperr.Wrap(apperr.CodeStore, "store: put alias", err)
	}

	return tx.Commit()
}

// PutMapping upserts a TiplocMapping.
func (s *Store) PutMapping(m TiplocMapping) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.db.Exec(`
INSERT INTO tiploc_mapping (source_tiploc, canonical_tiploc, data_source, reason)
VALUES (?, ?, ?, ?)
ON CONFLICT (source_tiploc, data_source) DO UPDATE SET
    canonical_tiploc = excluded.canonical_tiploc,
    reason = excluded.reason
`, m.SourceTiploc, m.CanonicalTiploc, m.DataSource, m.Reason)
	if err != nil {
		return apperr.Wrap(apperr.CodeStore, "store: put mapping", err)
	}
	return nil
}

// PutConnection upserts a Connection keyed by (from_tiploc, to_tiploc, mode).
func (s *Store) PutConnection(c Connection) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.db.Exec(`
INSERT INTO connection (from_tiploc, to_tiploc, mode, duration_minutes, valid_from, valid_to)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (from_tiploc, to_tiploc, mode) DO UPDATE SET
    duration_minutes = excluded.duration_minutes,
    valid_from = excluded.valid_from,
    valid_to = excluded.valid_to
`, c.FromTiploc, c.ToTiploc, string(c.Mode), c.DurationMinutes, c.ValidFrom, c.ValidTo)
	if err != nil {
		return apperr.Wrap(apperr.CodeStore, "store: put connection", err)
	}
	return nil
}

// ConnectionsFrom returns all stored connections originating at tiploc.
func (s *Store) ConnectionsFrom(tiploc string) ([]Connection, error) {
	var conns []Connection
	err := s.db.Select(&conns, `SELECT id, from_tiploc, to_tiploc, mode, duration_minutes, valid_from, valid_to FROM connection WHERE from_tiploc = ?`, tiploc)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeStore, "store: connections from", err)
	}
	return conns, nil
}

// CanonicalTiploc resolves a possibly-malformed source tiploc through the
// mapping table, returning the input unchanged if no mapping exists.
func (s *Store) CanonicalTiploc(source string) string {
	var canonical string
	err := s.db.Get(&canonical, `SELECT canonical_tiploc FROM tiploc_mapping WHERE source_tiploc = ? LIMIT 1`, source)
	if err != nil {
		return source
	}
	return canonical
}

// PutSchedule inserts a Schedule and its stops atomically. STP semantics
// are enforced purely by the (train_uid, start_date, stp_indicator)
// uniqueness constraint plus resolve_schedule's precedence ordering —
// cancelled/overlay/new/permanent coexist as distinct rows and are
// disambiguated at read time, matching §4.A's "applies STP semantics…
// cancelled removes effective coverage… overlay supersedes permanent
// within overlap… new adds independently".
func (s *Store) PutSchedule(sc Schedule, stops []ScheduleStop) (int64, error) {
	if err := validateStops(stops); err != nil {
		return 0, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.Beginx()
	if err != nil {
		return 0, apperr.Wrap(apperr.CodeStore, "store: begin tx", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
INSERT INTO schedule (
    train_uid, headcode, operator_code, service_type, start_date, end_date,
    days_run, stp_indicator, speed, class, sleepers, reservations, catering
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (train_uid, start_date, stp_indicator) DO UPDATE SET
    headcode = excluded.headcode,
    operator_code = excluded.operator_code,
    service_type = excluded.service_type,
    end_date = excluded.end_date,
    days_run = excluded.days_run,
    speed = excluded.speed,
    class = excluded.class,
    sleepers = excluded.sleepers,
    reservations = excluded.reservations,
    catering = excluded.catering
`, sc.TrainUID, sc.Headcode, sc.OperatorCode, sc.ServiceType, sc.StartDate, sc.EndDate,
		sc.DaysRun, sc.STPIndicator, sc.Speed, sc.Class, sc.Sleepers, sc.Reservations, sc.Catering)
	if err != nil {
		return 0, apperr.Wrap(apperr.CodeStore, "store: put schedule", err)
	}

	var scheduleID int64
	scheduleID, err = res.LastInsertId()
	if err != nil || scheduleID == 0 {
		if err := tx.Get(&scheduleID, `
SELECT schedule_id FROM schedule WHERE train_uid = ? AND start_date = ? AND stp_indicator = ?
`, sc.TrainUID, sc.StartDate, sc.STPIndicator); err != nil {
			return 0, apperr.Wrap(apperr.CodeStore, "store: resolve schedule id", err)
		}
	}

	if _, err := tx.Exec(`DELETE FROM schedule_stop WHERE schedule_id = ?`, scheduleID); err != nil {
		return 0, apperr.Wrap(apperr.CodeStore, "store: clear stops", err)
	}

	stmt, err := tx.Preparex(`
INSERT INTO schedule_stop (schedule_id, sequence, tiploc, stop_type, arrival_time, departure_time, pass_time, platform, activities)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`)
	if err != nil {
		return 0, apperr.Wrap(apperr.CodeStore, "store: prepare stop insert", err)
	}
	defer stmt.Close()

	for _, st := range stops {
		if _, err := stmt.Exec(scheduleID, st.Sequence, st.Tiploc, st.StopType,
			st.Arrival, st.Departure, st.Pass, st.Platform, st.Activities); err != nil {
			return 0, apperr.Wrap(apperr.CodeStore, "store: insert stop", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, apperr.Wrap(apperr.CodeStore, "store: commit schedule", err)
	}
	return scheduleID, nil
}

func validateStops(stops []ScheduleStop) error {
	if len(stops) == 0 {
		return apperr.New(apperr.CodeStore, "store: schedule has no stops")
	}
	last := -1
	origins, termini := 0, 0
	for _, st := range stops {
		if st.Sequence <= last {
			return apperr.New(apperr.CodeStore, "store: schedule_stop sequence must be strictly increasing")
		}
		last = st.Sequence
		switch st.StopType {
		case StopOrigin:
			origins++
			if st.Departure == nil {
				return apperr.New(apperr.CodeStore, "store: origin stop missing departure_time")
			}
		case StopTerminus:
			termini++
			if st.Arrival == nil {
				return apperr.New(apperr.CodeStore, "store: terminus stop missing arrival_time")
			}
		case StopPass:
			if st.Pass == nil {
				return apperr.New(apperr.CodeStore, "store: pass stop missing pass_time")
			}
		}
	}
	if origins != 1 || termini != 1 {
		return apperr.New(apperr.CodeStore, "store: schedule must have exactly one origin and one terminus")
	}
	return nil
}

// GetStops returns a schedule's stops ordered by sequence.
func (s *Store) GetStops(scheduleID int64) ([]ScheduleStop, error) {
	var stops []ScheduleStop
	err := s.db.Select(&stops, `
SELECT schedule_id, sequence, tiploc, stop_type, arrival_time, departure_time, pass_time, platform, activities
FROM schedule_stop WHERE schedule_id = ? ORDER BY sequence ASC
`, scheduleID)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeStore, "store: get stops", err)
	}
	return stops, nil
}

// ResolveSchedule finds the schedule matching trainUID that is active on
// serviceDate, applying STP precedence cancelled > overlay > new >
// permanent (§4.E). Returns (Schedule{}, false, nil) on no match.
func (s *Store) ResolveSchedule(trainUID, serviceDate string) (Schedule, bool, error) {
	var candidates []Schedule
	err := s.db.Select(&candidates, `
SELECT schedule_id, train_uid, headcode, operator_code, service_type, start_date, end_date,
       days_run, stp_indicator, speed, class, sleepers, reservations, catering
FROM schedule
WHERE train_uid = ? AND start_date <= ? AND end_date >= ?
`, trainUID, serviceDate, serviceDate)
	if err != nil {
		return Schedule{}, false, apperr.Wrap(apperr.CodeStore, "store: resolve schedule query", err)
	}

	wd, err := weekdayIndex(serviceDate)
	if err != nil {
		return Schedule{}, false, apperr.Wrap(apperr.CodeStore, "store: parse service date", err)
	}

	var best *Schedule
	for i := range candidates {
		c := candidates[i]
		if !runsOn(c.DaysRun, wd) {
			continue
		}
		if best == nil || c.STPIndicator.precedence() > best.STPIndicator.precedence() {
			best = &c
		}
	}
	if best == nil {
		return Schedule{}, false, nil
	}
	if best.STPIndicator == STPCancelled {
		return Schedule{}, false, nil
	}
	return *best, true, nil
}

func weekdayIndex(dateStr string) (int, error) {
	t, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		return 0, err
	}
	// days_run: Monday = bit/index 0.
	wd := int(t.Weekday())
	return (wd + 6) % 7, nil
}

func runsOn(mask string, idx int) bool {
	if len(mask) != 7 || idx < 0 || idx > 6 {
		return false
	}
	return mask[idx] == '1'
}

// LookupStation resolves key against tiploc, crs_code, station_name, or
// alias, canonicalizing tiploc-shaped input through TiplocMapping first.
func (s *Store) LookupStation(key string) (Station, bool, error) {
	canonical := s.CanonicalTiploc(key)

	var st Station
	err := s.db.Get(&st, `
SELECT id, tiploc, crs_code, station_name, country, region, latitude, longitude, is_active
FROM station WHERE tiploc = ? LIMIT 1
`, canonical)
	if err == nil {
		return st, true, nil
	}
	if err != sql.ErrNoRows {
		return Station{}, false, apperr.Wrap(apperr.CodeStore, "store: lookup by tiploc", err)
	}

	err = s.db.Get(&st, `
SELECT id, tiploc, crs_code, station_name, country, region, latitude, longitude, is_active
FROM station WHERE UPPER(crs_code) = UPPER(?) LIMIT 1
`, key)
	if err == nil {
		return st, true, nil
	}
	if err != sql.ErrNoRows {
		return Station{}, false, apperr.Wrap(apperr.CodeStore, "store: lookup by crs", err)
	}

	err = s.db.Get(&st, `
SELECT id, tiploc, crs_code, station_name, country, region, latitude, longitude, is_active
FROM station WHERE UPPER(station_name) = UPPER(?) LIMIT 1
`, key)
	if err == nil {
		return st, true, nil
	}
	if err != sql.ErrNoRows {
		return Station{}, false, apperr.Wrap(apperr.CodeStore, "store: lookup by name", err)
	}

	err = s.db.Get(&st, `
SELECT s.id, s.tiploc, s.crs_code, s.station_name, s.country, s.region, s.latitude, s.longitude, s.is_active
FROM station s JOIN station_alias a ON a.station_id = s.id
WHERE UPPER(a.alias_name) = UPPER(?)
ORDER BY a.is_primary DESC LIMIT 1
`, key)
	if err == nil {
		return st, true, nil
	}
	if err != sql.ErrNoRows {
		return Station{}, false, apperr.Wrap(apperr.CodeStore, "store: lookup by alias", err)
	}

	return Station{}, false, nil
}

// IterSchedulesActiveOn returns every schedule active on date, honouring
// days_run/date range and STP precedence per train_uid.
func (s *Store) IterSchedulesActiveOn(date string) ([]Schedule, error) {
	var candidates []Schedule
	err := s.db.Select(&candidates, `
SELECT schedule_id, train_uid, headcode, operator_code, service_type, start_date, end_date,
       days_run, stp_indicator, speed, class, sleepers, reservations, catering
FROM schedule
WHERE start_date <= ? AND end_date >= ?
`, date, date)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeStore, "store: iter schedules", err)
	}

	wd, err := weekdayIndex(date)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeStore, "store: parse date", err)
	}

	byUID := make(map[string]*Schedule)
	for i := range candidates {
		c := candidates[i]
		if !runsOn(c.DaysRun, wd) {
			continue
		}
		cur, ok := byUID[c.TrainUID]
		if !ok || c.STPIndicator.precedence() > cur.STPIndicator.precedence() {
			byUID[c.TrainUID] = &c
		}
	}

	out := make([]Schedule, 0, len(byUID))
	for _, sc := range byUID {
		if sc.STPIndicator == STPCancelled {
			continue
		}
		out = append(out, *sc)
	}
	return out, nil
}

// Statistics reports store-wide counts and the database file size.
func (s *Store) Statistics() (Statistics, error) {
	var stats Statistics
	if err := s.db.Get(&stats.TotalSchedules, `SELECT COUNT(*) FROM schedule`); err != nil {
		return stats, apperr.Wrap(apperr.CodeStore, "store: count schedules", err)
	}
	if err := s.db.Get(&stats.TotalStops, `SELECT COUNT(*) FROM schedule_stop`); err != nil {
		return stats, apperr.Wrap(apperr.CodeStore, "store: count stops", err)
	}
	if err := s.db.Get(&stats.TotalStations, `SELECT COUNT(*) FROM station`); err != nil {
		return stats, apperr.Wrap(apperr.CodeStore, "store: count stations", err)
	}

	var lastSuccess sql.NullBool
	_ = s.db.Get(&lastSuccess, `SELECT success FROM import_record ORDER BY id DESC LIMIT 1`)
	stats.LastImportOK = lastSuccess.Valid && lastSuccess.Bool

	if s.path != "" {
		if fi, err := os.Stat(s.path); err == nil {
			stats.DatabaseBytes = fi.Size()
		}
	}
	return stats, nil
}

// BeginImport records the start of a file import, applying content-hash
// dedup: a hash already recorded with success=true is a duplicate and is
// not reprocessed.
func (s *Store) BeginImport(fileType, fileHash string) (ImportDecision, *ImportRecord, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var existing ImportRecord
	err := s.db.Get(&existing, `
SELECT id, file_type, file_hash, sequence_number, record_count, records_imported,
       started_at, finished_at, success, errors
FROM import_record WHERE file_hash = ? AND success = 1 LIMIT 1
`, fileHash)
	if err == nil {
		return ImportDuplicate, &existing, nil
	}
	if err != sql.ErrNoRows {
		return "", nil, apperr.Wrap(apperr.CodeStore, "store: check duplicate import", err)
	}

	decision := ImportAccept
	var seq int
	if err := s.db.Get(&seq, `SELECT COUNT(*) FROM import_record WHERE file_hash = ?`, fileHash); err == nil && seq > 0 {
		decision = ImportReplace
	}

	res, err := s.db.Exec(`
INSERT INTO import_record (file_type, file_hash, sequence_number, started_at, success)
VALUES (?, ?, ?, ?, 0)
`, fileType, fileHash, seq, time.Now().UTC())
	if err != nil {
		return "", nil, apperr.Wrap(apperr.CodeStore, "store: begin import", err)
	}

	id, _ := res.LastInsertId()
	return decision, &ImportRecord{ID: id, FileType: fileType, FileHash: fileHash, SequenceNumber: seq}, nil
}

// FinishImport records the outcome of an import started with BeginImport.
func (s *Store) FinishImport(id int64, recordCount, recordsImported int, success bool, errs []string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	joined := ""
	for i, e := range errs {
		if i > 0 {
			joined += "; "
		}
		joined += e
	}

	_, err := s.db.Exec(`
UPDATE import_record SET record_count = ?, records_imported = ?, finished_at = ?, success = ?, errors = ?
WHERE id = ?
`, recordCount, recordsImported, time.Now().UTC(), success, joined, id)
	if err != nil {
		return apperr.Wrap(apperr.CodeStore, "store: finish import", err)
	}
	return nil
}

// PruneExpiredSchedules deletes schedules whose end_date is more than
// retentionDays in the past. Supplements §4.A with the retention
// behaviour store.retention_days configures (§6) but the base spec
// leaves unspecified beyond naming the option.
func (s *Store) PruneExpiredSchedules(retentionDays int) (int64, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	cutoff := time.Now().AddDate(0, 0, -retentionDays).Format("2006-01-02")
	res, err := s.db.Exec(`DELETE FROM schedule WHERE end_date < ?`, cutoff)
	if err != nil {
		return 0, apperr.Wrap(apperr.CodeStore, "store: prune expired schedules", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

