// Package store implements the Schedule Store: the persistent, indexed,
// single-writer/many-reader home for stations, aliases, tiploc mappings,
// schedules, and the import ledger. It is built on jmoiron/sqlx over
// mattn/go-sqlite3 the way the teacher's internal/database package opens
// pools and tidbyt-gtfs's storage/sqlite.go shapes schema + queries; the
// schema itself, the STP precedence rules, and the resolve_schedule
// derivation are specific to this domain.
package store

import "time"

// StationAliasType enumerates §3's alias_type values.
type StationAliasType string

const (
	AliasCommon     StationAliasType = "common"
	AliasOfficial   StationAliasType = "official"
	AliasHistorical StationAliasType = "historical"
	AliasColloquial StationAliasType = "colloquial"
)

// STPIndicator is the normalized short-term-planning indicator. Format
// adapters translate the source's C/N/O/P codes into this enum at the
// boundary so the store and everything above it never sees source codes.
type STPIndicator string

const (
	STPPermanent STPIndicator = "permanent"
	STPNew       STPIndicator = "new"
	STPOverlay   STPIndicator = "overlay"
	STPCancelled STPIndicator = "cancelled"
)

// precedence returns the STP override rank; higher wins when multiple
// schedules with the same train_uid are active on the same date.
func (s STPIndicator) precedence() int {
	switch s {
	case STPCancelled:
		return 3
	case STPOverlay:
		return 2
	case STPNew:
		return 1
	default:
		return 0
	}
}

// ServiceType enumerates §3's service_type values.
type ServiceType string

const (
	ServicePassenger ServiceType = "passenger"
	ServiceFreight   ServiceType = "freight"
	ServiceOther     ServiceType = "other"
)

// StopType enumerates §3's stop_type values.
type StopType string

const (
	StopOrigin       StopType = "origin"
	StopIntermediate StopType = "intermediate"
	StopTerminus     StopType = "terminus"
	StopPass         StopType = "pass"
)

// Station is §3's Station entity.
type Station struct {
	ID          int64   `db:"id"`
	Tiploc      string  `db:"tiploc"`
	CRSCode     *string `db:"crs_code"`
	StationName string  `db:"station_name"`
	Country     *string `db:"country"`
	Region      *string `db:"region"`
	Latitude    *float64 `db:"latitude"`
	Longitude   *float64 `db:"longitude"`
	IsActive    bool    `db:"is_active"`
}

// StationAlias is §3's StationAlias entity.
type StationAlias struct {
	ID        int64            `db:"id"`
	StationID int64            `db:"station_id"`
	AliasName string           `db:"alias_name"`
	AliasType StationAliasType `db:"alias_type"`
	IsPrimary bool             `db:"is_primary"`
}

// TiplocMapping is §3's TiplocMapping entity.
type TiplocMapping struct {
	ID               int64  `db:"id"`
	SourceTiploc     string `db:"source_tiploc"`
	CanonicalTiploc  string `db:"canonical_tiploc"`
	DataSource       string `db:"data_source"`
	Reason           string `db:"reason"`
}

// Schedule is §3's Schedule entity.
type Schedule struct {
	ScheduleID   int64        `db:"schedule_id"`
	TrainUID     string       `db:"train_uid"`
	Headcode     string       `db:"headcode"`
	OperatorCode string       `db:"operator_code"`
	ServiceType  ServiceType  `db:"service_type"`
	StartDate    string       `db:"start_date"` // YYYY-MM-DD
	EndDate      string       `db:"end_date"`
	DaysRun      string       `db:"days_run"` // 7-char "0101010", Mon first
	STPIndicator STPIndicator `db:"stp_indicator"`
	Speed        *int         `db:"speed"`
	Class        *string      `db:"class"`
	Sleepers     bool         `db:"sleepers"`
	Reservations *string      `db:"reservations"`
	Catering     *string      `db:"catering"`
}

// ScheduleStop is §3's ScheduleStop entity.
type ScheduleStop struct {
	ScheduleID  int64    `db:"schedule_id"`
	Sequence    int      `db:"sequence"`
	Tiploc      string   `db:"tiploc"`
	StopType    StopType `db:"stop_type"`
	Arrival     *string  `db:"arrival_time"`
	Departure   *string  `db:"departure_time"`
	Pass        *string  `db:"pass_time"`
	Platform    *string  `db:"platform"`
	Activities  *string  `db:"activities"`
}

// ConnectionMode enumerates a stored Connection's interchange kind.
type ConnectionMode string

const (
	ConnectionWalk        ConnectionMode = "walk"
	ConnectionInterchange ConnectionMode = "interchange"
)

// Connection is §3's Connection entity, persisted from the ALF-like
// adapter: an interchange or walk link between two tiplocs, outside the
// scheduled-stop graph.
type Connection struct {
	ID              int64          `db:"id"`
	FromTiploc      string         `db:"from_tiploc"`
	ToTiploc        string         `db:"to_tiploc"`
	Mode            ConnectionMode `db:"mode"`
	DurationMinutes int            `db:"duration_minutes"`
	ValidFrom       string         `db:"valid_from"`
	ValidTo         string         `db:"valid_to"`
}

// ImportRecord is §3's ImportRecord housekeeping entity.
type ImportRecord struct {
	ID              int64      `db:"id"`
	FileType        string     `db:"file_type"`
	FileHash        string     `db:"file_hash"`
	SequenceNumber  int        `db:"sequence_number"`
	RecordCount     int        `db:"record_count"`
	RecordsImported int        `db:"records_imported"`
	StartedAt       time.Time  `db:"started_at"`
	FinishedAt      *time.Time `db:"finished_at"`
	Success         bool       `db:"success"`
	Errors          string     `db:"errors"`
}

// ImportDecision is the result of BeginImport's dedup check.
type ImportDecision string

const (
	ImportAccept  ImportDecision = "accept"
	ImportDuplicate ImportDecision = "duplicate"
	ImportReplace ImportDecision = "replace"
)

// Statistics is the store-wide snapshot returned by Statistics().
type Statistics struct {
	TotalSchedules int   `db:"total_schedules"`
	TotalStops     int   `db:"total_stops"`
	TotalStations  int   `db:"total_stations"`
	LastImportOK   bool  `db:"-"`
	DatabaseBytes  int64 `db:"-"`
}

// SearchResult pairs a Station with its resolver match score.
// MatchedPrimaryAlias records whether the candidate's best-scoring match
// came through its primary alias, the middle level of §4.C's three-tier
// tie-break (active, then primary alias, then name).
type SearchResult struct {
	Station             Station
	Score               int
	MatchedPrimaryAlias bool
}
