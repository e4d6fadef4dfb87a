package store

const schema = `
CREATE TABLE IF NOT EXISTS station (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    tiploc TEXT NOT NULL UNIQUE,
    crs_code TEXT,
    station_name TEXT NOT NULL,
    country TEXT,
    region TEXT,
    latitude REAL,
    longitude REAL,
    is_active INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_station_crs ON station (crs_code);
CREATE INDEX IF NOT EXISTS idx_station_name ON station (station_name);

CREATE TABLE IF NOT EXISTS station_alias (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    station_id INTEGER NOT NULL REFERENCES station(id),
    alias_name TEXT NOT NULL,
    alias_type TEXT NOT NULL,
    is_primary INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_alias_name ON station_alias (alias_name);
CREATE INDEX IF NOT EXISTS idx_alias_station ON station_alias (station_id);

CREATE TABLE IF NOT EXISTS tiploc_mapping (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    source_tiploc TEXT NOT NULL,
    canonical_tiploc TEXT NOT NULL,
    data_source TEXT NOT NULL,
    reason TEXT NOT NULL DEFAULT '',
    UNIQUE (source_tiploc, data_source)
);

CREATE TABLE IF NOT EXISTS schedule (
    schedule_id INTEGER PRIMARY KEY AUTOINCREMENT,
    train_uid TEXT NOT NULL,
    headcode TEXT NOT NULL DEFAULT '',
    operator_code TEXT NOT NULL DEFAULT '',
    service_type TEXT NOT NULL DEFAULT 'passenger',
    start_date TEXT NOT NULL,
    end_date TEXT NOT NULL,
    days_run TEXT NOT NULL,
    stp_indicator TEXT NOT NULL,
    speed INTEGER,
    class TEXT,
    sleepers INTEGER NOT NULL DEFAULT 0,
    reservations TEXT,
    catering TEXT,
    UNIQUE (train_uid, start_date, stp_indicator)
);
CREATE INDEX IF NOT EXISTS idx_schedule_uid_start ON schedule (train_uid, start_date);

CREATE TABLE IF NOT EXISTS schedule_stop (
    schedule_id INTEGER NOT NULL REFERENCES schedule(schedule_id) ON DELETE CASCADE,
    sequence INTEGER NOT NULL,
    tiploc TEXT NOT NULL,
    stop_type TEXT NOT NULL,
    arrival_time TEXT,
    departure_time TEXT,
    pass_time TEXT,
    platform TEXT,
    activities TEXT,
    PRIMARY KEY (schedule_id, sequence)
);

CREATE TABLE IF NOT EXISTS connection (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    from_tiploc TEXT NOT NULL,
    to_tiploc TEXT NOT NULL,
    mode TEXT NOT NULL,
    duration_minutes INTEGER NOT NULL,
    valid_from TEXT NOT NULL DEFAULT '',
    valid_to TEXT NOT NULL DEFAULT '',
    UNIQUE (from_tiploc, to_tiploc, mode)
);
CREATE INDEX IF NOT EXISTS idx_connection_from ON connection (from_tiploc);

CREATE TABLE IF NOT EXISTS import_record (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    file_type TEXT NOT NULL,
    file_hash TEXT NOT NULL,
    sequence_number INTEGER NOT NULL DEFAULT 0,
    record_count INTEGER NOT NULL DEFAULT 0,
    records_imported INTEGER NOT NULL DEFAULT 0,
    started_at TIMESTAMP NOT NULL,
    finished_at TIMESTAMP,
    success INTEGER NOT NULL DEFAULT 0,
    errors TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_import_hash ON import_record (file_hash);
`
