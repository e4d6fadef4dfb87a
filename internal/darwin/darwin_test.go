package darwin

import (
	"testing"
	"time"

	"github.com/nrod/cancelwatch/internal/stomp"
)

func TestDecodeCancellation(t *testing.T) {
	body := []byte(`<Pport><uR><CA rid="20260801123401234" tsc="12345" canReason="REASON01" canReasonText="points failure"/></uR></Pport>`)
	events := Decode(stomp.Frame{Body: body})

	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	ev := events[0]
	if ev.RID != "20260801123401234" || ev.TrainServiceCode != "12345" || ev.ReasonCode != "REASON01" {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if IsReinstatement(ev) {
		t.Fatalf("cancellation event misclassified as reinstatement")
	}
}

func TestDecodeReinstatement(t *testing.T) {
	body := []byte(`<Pport><uR><RID rid="20260801123401234"/></uR></Pport>`)
	events := Decode(stomp.Frame{Body: body})

	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if !IsReinstatement(events[0]) {
		t.Fatalf("expected reinstatement classification")
	}
}

func TestDecodeMixedFrameYieldsBoth(t *testing.T) {
	body := []byte(`<Pport><uR>
		<CA rid="A" tsc="1" canReason="R" canReasonText="t"/>
		<RID rid="B"/>
	</uR></Pport>`)
	events := Decode(stomp.Frame{Body: body})

	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
}

func TestDecodeUnparseableFrameReturnsNil(t *testing.T) {
	events := Decode(stomp.Frame{Body: []byte(`not xml`)})
	if events != nil {
		t.Fatalf("expected nil events for unparseable frame, got %+v", events)
	}
}

func TestDecodeNonCancellationFrameReturnsNil(t *testing.T) {
	events := Decode(stomp.Frame{Body: []byte(`<Pport><uR><TS rid="x"/></uR></Pport>`)})
	if events != nil {
		t.Fatalf("expected nil events for non-cancellation frame, got %+v", events)
	}
}

func TestServiceDate(t *testing.T) {
	date, ok := ServiceDate("20260801123401234")
	if !ok || date != "2026-08-01" {
		t.Fatalf("ServiceDate() = %q, %v; want 2026-08-01, true", date, ok)
	}

	if _, ok := ServiceDate("bad"); ok {
		t.Fatalf("expected ServiceDate to fail on non-numeric prefix")
	}
}

func TestTrainUID(t *testing.T) {
	uid, ok := TrainUID("20260801123401234W12345")
	if !ok || uid == "" {
		t.Fatalf("TrainUID() = %q, %v; want non-empty, true", uid, ok)
	}

	if _, ok := TrainUID("20260801"); ok {
		t.Fatalf("expected TrainUID to fail on a RID without a trailing segment")
	}
}

func TestDecodeReceivedAtIsStamped(t *testing.T) {
	before := time.Now()
	events := Decode(stomp.Frame{Body: []byte(`<Pport><uR><CA rid="X" canReason="R" canReasonText="t"/></uR></Pport>`)})
	after := time.Now()

	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].ReceivedAt.Before(before) || events[0].ReceivedAt.After(after) {
		t.Fatalf("ReceivedAt %v not within [%v, %v]", events[0].ReceivedAt, before, after)
	}
}
