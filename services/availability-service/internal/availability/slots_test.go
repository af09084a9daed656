package availability

import (
	"testing"
	"time"
)

func TestResolveSlot_PreferredFits(t *testing.T) {
	free := []Interval{{Start: at(9, 0), End: at(12, 0)}}

	dec := ResolveSlot(free, at(10, 0), 60*time.Minute, 30*time.Minute)
	if !dec.Fits {
		t.Fatal("expected preferred slot to fit")
	}
	if len(dec.Alternatives) != 0 {
		t.Fatalf("fitting slot must not carry alternatives, got %d", len(dec.Alternatives))
	}
}

func TestResolveSlot_EndBoundaryIsInclusive(t *testing.T) {
	free := []Interval{{Start: at(9, 0), End: at(10, 0)}}

	dec := ResolveSlot(free, at(9, 0), 60*time.Minute, 30*time.Minute)
	if !dec.Fits {
		t.Fatal("slot ending exactly at the free range end must fit")
	}
}

func TestResolveSlot_NoFitNoAlternatives(t *testing.T) {
	// 45-minute range cannot hold a 60-minute walk at all.
	free := []Interval{{Start: at(9, 0), End: at(9, 45)}}

	dec := ResolveSlot(free, at(10, 0), 60*time.Minute, 30*time.Minute)
	if dec.Fits {
		t.Fatal("expected no fit")
	}
	if len(dec.Alternatives) != 0 {
		t.Fatalf("expected no alternatives, got %d", len(dec.Alternatives))
	}
}

func TestResolveSlot_RankingOrder(t *testing.T) {
	// Preferred 10:00-11:00 straddles the booked gap, so candidates come
	// from the 30-minute grid of both remaining ranges.
	free := []Interval{
		{Start: at(8, 0), End: at(10, 0)},
		{Start: at(10, 30), End: at(12, 0)},
	}

	dec := ResolveSlot(free, at(10, 0), 60*time.Minute, 30*time.Minute)
	if dec.Fits {
		t.Fatal("expected conflict")
	}
	want := []string{"10:30", "09:00", "11:00", "08:00", "08:30"}
	if len(dec.Alternatives) != len(want) {
		t.Fatalf("expected %d candidates, got %d", len(want), len(dec.Alternatives))
	}
	for i, alt := range dec.Alternatives {
		if got := alt.Format("15:04"); got != want[i] {
			t.Fatalf("candidate %d: expected %s, got %s", i, want[i], got)
		}
	}
}

func TestResolveSlot_TieBreakPrefersEarlierTime(t *testing.T) {
	free := []Interval{{Start: at(8, 0), End: at(10, 30)}}

	dec := ResolveSlot(free, at(9, 45), 60*time.Minute, 30*time.Minute)
	if dec.Fits {
		t.Fatal("expected conflict: the hour-long walk runs past the free range")
	}
	// 09:00 and 09:30 are both distance 0 from hour 9; the earlier time wins.
	if got := dec.Alternatives[0].Format("15:04"); got != "09:00" {
		t.Fatalf("expected 09:00 first, got %s", got)
	}
	if got := dec.Alternatives[1].Format("15:04"); got != "09:30" {
		t.Fatalf("expected 09:30 second, got %s", got)
	}
}
