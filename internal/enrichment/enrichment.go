// Package enrichment implements the Enrichment Engine (§4.F): resolving
// a DecodedEvent's RID against the Schedule Store and assembling an
// ActiveCancellation. Concurrent enrichment requests for the same service
// (bursty re-delivery of a cancellation from the push-port) are
// coalesced with golang.org/x/sync/singleflight,
// the library the whole example pack reaches for whenever multiple
// callers may race on the same expensive lookup key.
package enrichment

import (
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/nrod/cancelwatch/internal/cache"
	"github.com/nrod/cancelwatch/internal/darwin"
	"github.com/nrod/cancelwatch/internal/metrics"
	"github.com/nrod/cancelwatch/internal/resolver"
	"github.com/nrod/cancelwatch/internal/store"
)

// FailureReason enumerates §4.F's enrichment_failures_by_reason labels.
type FailureReason string

const (
	ReasonNoRID       FailureReason = "no_rid"
	ReasonNoSchedule  FailureReason = "no_schedule"
	ReasonAmbiguous   FailureReason = "ambiguous"
	ReasonStoreError  FailureReason = "store_error"
)

// Stats holds the atomic counters §4.F requires.
type Stats struct {
	DecodedTotal        atomic.Int64
	CancellationsTotal  atomic.Int64
	EnrichedTotal       atomic.Int64
	FailuresNoRID       atomic.Int64
	FailuresNoSchedule  atomic.Int64
	FailuresAmbiguous   atomic.Int64
	FailuresStoreError  atomic.Int64
}

// Snapshot is a point-in-time read of Stats, used by the Query API's
// /cancellations/stats endpoint.
type Snapshot struct {
	DecodedTotal       int64            `json:"decoded_total"`
	CancellationsTotal int64            `json:"cancellations_total"`
	EnrichedTotal      int64            `json:"enriched_total"`
	FailuresByReason   map[string]int64 `json:"enrichment_failures_by_reason"`
}

func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		DecodedTotal:       s.DecodedTotal.Load(),
		CancellationsTotal: s.CancellationsTotal.Load(),
		EnrichedTotal:      s.EnrichedTotal.Load(),
		FailuresByReason: map[string]int64{
			string(ReasonNoRID):      s.FailuresNoRID.Load(),
			string(ReasonNoSchedule): s.FailuresNoSchedule.Load(),
			string(ReasonAmbiguous):  s.FailuresAmbiguous.Load(),
			string(ReasonStoreError): s.FailuresStoreError.Load(),
		},
	}
}

// Engine correlates DecodedEvents against the Schedule Store.
type Engine struct {
	store    *store.Store
	resolver *resolver.Resolver
	group    singleflight.Group
	Stats    Stats
}

// New wires a Schedule Store and Station Resolver into an Engine.
func New(s *store.Store, r *resolver.Resolver) *Engine {
	return &Engine{store: s, resolver: r}
}

// Enrich turns a DecodedEvent into a cache.Cancellation, never mutating
// the Schedule Store (§4.F: "side-effect-free").
func (e *Engine) Enrich(ev darwin.DecodedEvent) cache.Cancellation {
	e.Stats.DecodedTotal.Add(1)
	e.Stats.CancellationsTotal.Add(1)

	out := cache.Cancellation{
		RID:              ev.RID,
		TrainServiceCode: ev.TrainServiceCode,
		ReasonCode:       ev.ReasonCode,
		ReasonText:       ev.ReasonText,
		ObservedAt:       ev.ReceivedAt,
	}

	uid, ok := darwin.TrainUID(ev.RID)
	if !ok {
		e.recordFailure(ReasonNoRID)
		return out
	}
	serviceDate, ok := darwin.ServiceDate(ev.RID)
	if !ok {
		e.recordFailure(ReasonNoRID)
		return out
	}

	sched, found, err := e.resolveCoalesced(uid, serviceDate)
	if err != nil {
		e.recordFailure(ReasonStoreError)
		return out
	}
	if !found {
		e.recordFailure(ReasonNoSchedule)
		return out
	}

	stops, err := e.store.GetStops(sched.ScheduleID)
	if err != nil || len(stops) < 2 {
		e.recordFailure(ReasonStoreError)
		return out
	}

	origin := stops[0]
	terminus := stops[len(stops)-1]

	out.DarwinEnriched = true
	out.TrainUID = sched.TrainUID
	out.Headcode = sched.Headcode
	out.OperatorCode = sched.OperatorCode
	out.ServiceDate = serviceDate
	out.Origin = e.projectOrigin(origin)
	out.Destination = e.projectDestination(terminus)

	for _, st := range stops[1 : len(stops)-1] {
		if st.StopType == store.StopPass {
			continue
		}
		out.CallingPoints = append(out.CallingPoints, e.projectCallingPoint(st))
	}

	e.Stats.EnrichedTotal.Add(1)
	metrics.EnrichedTotal.Inc()
	return out
}

// resolveCoalesced coalesces concurrent lookups for the same
// (uid, serviceDate) key via singleflight, so a burst of re-delivered
// push-port frames for the same service doesn't hammer the store.
func (e *Engine) resolveCoalesced(uid, serviceDate string) (store.Schedule, bool, error) {
	key := uid + "|" + serviceDate
	v, err, _ := e.group.Do(key, func() (interface{}, error) {
		sched, found, err := e.store.ResolveSchedule(uid, serviceDate)
		return resolveResult{sched, found}, err
	})
	if err != nil {
		return store.Schedule{}, false, err
	}
	r := v.(resolveResult)
	return r.schedule, r.found, nil
}

type resolveResult struct {
	schedule store.Schedule
	found    bool
}

func (e *Engine) stationName(tiploc string) string {
	if station, ok, err := e.store.LookupStation(tiploc); err == nil && ok {
		return station.StationName
	}
	return ""
}

func (e *Engine) projectOrigin(st store.ScheduleStop) *cache.OriginPoint {
	p := &cache.OriginPoint{Tiploc: st.Tiploc, StationName: e.stationName(st.Tiploc)}
	if st.Departure != nil {
		p.ScheduledDeparture = *st.Departure
	}
	if st.Platform != nil {
		p.Platform = *st.Platform
	}
	return p
}

func (e *Engine) projectDestination(st store.ScheduleStop) *cache.DestinationPoint {
	p := &cache.DestinationPoint{Tiploc: st.Tiploc, StationName: e.stationName(st.Tiploc)}
	if st.Arrival != nil {
		p.ScheduledArrival = *st.Arrival
	}
	if st.Platform != nil {
		p.Platform = *st.Platform
	}
	return p
}

func (e *Engine) projectCallingPoint(st store.ScheduleStop) cache.CallingPoint {
	p := cache.CallingPoint{Tiploc: st.Tiploc, StationName: e.stationName(st.Tiploc)}
	if st.Arrival != nil {
		p.Arrival = *st.Arrival
	}
	if st.Departure != nil {
		p.Departure = *st.Departure
	}
	if st.Platform != nil {
		p.Platform = *st.Platform
	}
	return p
}

func (e *Engine) recordFailure(reason FailureReason) {
	metrics.EnrichmentFailuresTotal.WithLabelValues(string(reason)).Inc()
	switch reason {
	case ReasonNoRID:
		e.Stats.FailuresNoRID.Add(1)
	case ReasonNoSchedule:
		e.Stats.FailuresNoSchedule.Add(1)
	case ReasonAmbiguous:
		e.Stats.FailuresAmbiguous.Add(1)
	case ReasonStoreError:
		e.Stats.FailuresStoreError.Add(1)
	}
}
