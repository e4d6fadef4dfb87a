package cache

import (
	"testing"
	"time"
)

func mustCancellation(rid string, observed time.Time, enriched bool) Cancellation {
	c := Cancellation{RID: rid, ObservedAt: observed, DarwinEnriched: enriched}
	if enriched {
		c.Origin = &OriginPoint{Tiploc: "PADTON", ScheduledDeparture: "10:00"}
		c.Destination = &DestinationPoint{Tiploc: "RDNG", ScheduledArrival: "10:30"}
	}
	return c
}

func TestInsertEvictsOnCapacity(t *testing.T) {
	evicted := map[string]int{}
	c := New(Options{Capacity: 2, MaxAge: time.Hour, OnEvict: func(reason string) { evicted[reason]++ }})

	base := time.Now()
	c.Insert(mustCancellation("A", base, false))
	c.Insert(mustCancellation("B", base.Add(time.Minute), false))
	c.Insert(mustCancellation("C", base.Add(2*time.Minute), false))

	if got := c.Len(); got != 2 {
		t.Fatalf("Len() = %d, want 2", got)
	}
	if evicted["capacity"] != 1 {
		t.Fatalf("capacity evictions = %d, want 1", evicted["capacity"])
	}

	recent := c.Recent(10, time.Time{})
	if len(recent) != 2 || recent[0].RID != "C" || recent[1].RID != "B" {
		t.Fatalf("unexpected order: %+v", recent)
	}
}

func TestInsertEvictsOnAge(t *testing.T) {
	evicted := map[string]int{}
	c := New(Options{Capacity: 10, MaxAge: time.Minute, OnEvict: func(reason string) { evicted[reason]++ }})

	old := time.Now().Add(-time.Hour)
	c.Insert(mustCancellation("old", old, false))
	c.Insert(mustCancellation("new", time.Now(), false))

	if c.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", c.Len())
	}
	if evicted["age"] != 1 {
		t.Fatalf("age evictions = %d, want 1", evicted["age"])
	}
}

func TestEnrichedFiltersNonEnriched(t *testing.T) {
	c := New(Options{Capacity: 10, MaxAge: time.Hour})
	now := time.Now()
	c.Insert(mustCancellation("plain", now, false))
	c.Insert(mustCancellation("full", now, true))

	enriched := c.Enriched(10, time.Time{})
	if len(enriched) != 1 || enriched[0].RID != "full" {
		t.Fatalf("unexpected enriched set: %+v", enriched)
	}
}

func TestByRouteAggregatesEnrichedOnly(t *testing.T) {
	c := New(Options{Capacity: 10, MaxAge: time.Hour})
	now := time.Now()
	c.Insert(mustCancellation("e1", now, true))
	c.Insert(mustCancellation("e2", now.Add(time.Second), true))
	c.Insert(mustCancellation("plain", now, false))

	routes := c.ByRoute()
	if len(routes) != 1 {
		t.Fatalf("expected one route, got %d: %+v", len(routes), routes)
	}
	if routes[0].Count != 2 || routes[0].Origin != "PADTON" || routes[0].Destination != "RDNG" {
		t.Fatalf("unexpected route stat: %+v", routes[0])
	}
}

func TestStatsEnrichmentRate(t *testing.T) {
	c := New(Options{Capacity: 10, MaxAge: time.Hour})
	now := time.Now()
	c.Insert(mustCancellation("e1", now, true))
	c.Insert(mustCancellation("p1", now, false))
	c.Insert(mustCancellation("p2", now, false))

	stats := c.Stats()
	if stats.Total != 3 || stats.Enriched != 1 || stats.NonEnriched != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	want := 1.0 / 3.0
	if stats.EnrichmentRate < want-0.001 || stats.EnrichmentRate > want+0.001 {
		t.Fatalf("EnrichmentRate = %f, want %f", stats.EnrichmentRate, want)
	}
}

func TestRemoveRetiresReinstatedEntry(t *testing.T) {
	c := New(Options{Capacity: 10, MaxAge: time.Hour})
	c.Insert(mustCancellation("R1", time.Now(), true))

	if !c.Remove("R1") {
		t.Fatalf("Remove(R1) = false, want true")
	}
	if c.Len() != 0 {
		t.Fatalf("Len() = %d after remove, want 0", c.Len())
	}
	if c.Remove("R1") {
		t.Fatalf("second Remove(R1) = true, want false")
	}
}

func TestPurgeOlderThan(t *testing.T) {
	c := New(Options{Capacity: 10, MaxAge: 24 * time.Hour})
	c.Insert(mustCancellation("old", time.Now().Add(-2*time.Hour), false))
	c.Insert(mustCancellation("new", time.Now(), false))

	n := c.PurgeOlderThan(time.Hour)
	if n != 1 {
		t.Fatalf("PurgeOlderThan removed %d, want 1", n)
	}
	if c.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", c.Len())
	}
}

func TestRecentSinceFiltersByTimestamp(t *testing.T) {
	c := New(Options{Capacity: 10, MaxAge: time.Hour})
	cutoff := time.Now()
	c.Insert(mustCancellation("before", cutoff.Add(-time.Minute), false))
	c.Insert(mustCancellation("after", cutoff.Add(time.Minute), false))

	recent := c.Recent(10, cutoff)
	if len(recent) != 1 || recent[0].RID != "after" {
		t.Fatalf("unexpected recent set: %+v", recent)
	}
}
