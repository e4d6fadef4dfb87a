package store

import "github.com/nrod/cancelwatch/internal/apperr"

// StationWithAliases pairs a Station with its aliases, for the resolver's
// fuzzy/prefix tiers which need the full alias set per station.
type StationWithAliases struct {
	Station      Station
	Aliases      []string
	PrimaryAlias string
}

// AllStationsWithAliases returns every active station with its aliases.
// Exists purely to feed the Station Resolver's in-process ranking passes
// (exact name, alias, prefix and fuzzy tiers); the exact tiploc/CRS tiers
// go through LookupStation's indexed queries instead.
func (s *Store) AllStationsWithAliases() ([]StationWithAliases, error) {
	var stations []Station
	if err := s.db.Select(&stations, `
SELECT id, tiploc, crs_code, station_name, country, region, latitude, longitude, is_active
FROM station WHERE is_active = 1
`); err != nil {
		return nil, apperr.Wrap(apperr.CodeStore, "store: list stations", err)
	}

	type aliasRow struct {
		StationID int64  `db:"station_id"`
		AliasName string `db:"alias_name"`
		IsPrimary bool   `db:"is_primary"`
	}
	var aliases []aliasRow
	if err := s.db.Select(&aliases, `SELECT station_id, alias_name, is_primary FROM station_alias`); err != nil {
		return nil, apperr.Wrap(apperr.CodeStore, "store: list aliases", err)
	}

	byStation := make(map[int64][]string, len(stations))
	primary := make(map[int64]string, len(stations))
	for _, a := range aliases {
		byStation[a.StationID] = append(byStation[a.StationID], a.AliasName)
		if a.IsPrimary {
			primary[a.StationID] = a.AliasName
		}
	}

	out := make([]StationWithAliases, 0, len(stations))
	for _, st := range stations {
		out = append(out, StationWithAliases{
			Station:      st,
			Aliases:      byStation[st.ID],
			PrimaryAlias: primary[st.ID],
		})
	}
	return out, nil
}
