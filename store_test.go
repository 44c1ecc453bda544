package vpk

import "testing"

func newTestEntry(ext, dir, name string) *Entry {
	return &Entry{Type: ext, Directory: dir, FileName: name}
}

func TestEntryStoreLinearFindRemove(t *testing.T) {
	s := newEntryStore()
	a := newTestEntry("txt", noneMarker, "readme")
	b := newTestEntry("txt", "docs", "license")
	s.add(a)
	s.add(b)

	if got := s.find("txt", noneMarker, "readme"); got != a {
		t.Fatalf("find readme = %v, want %v", got, a)
	}
	if got := s.find("txt", "docs", "license"); got != b {
		t.Fatalf("find license = %v, want %v", got, b)
	}
	if got := s.find("txt", "docs", "missing"); got != nil {
		t.Fatalf("find missing = %v, want nil", got)
	}

	if !s.remove("txt", noneMarker, "readme") {
		t.Fatal("remove readme reported false")
	}
	if got := s.find("txt", noneMarker, "readme"); got != nil {
		t.Fatalf("readme still found after remove: %v", got)
	}
	if s.count() != 1 {
		t.Fatalf("count after remove = %d, want 1", s.count())
	}
}

func TestEntryStoreRemoveEmptiesKey(t *testing.T) {
	s := newEntryStore()
	s.add(newTestEntry("dat", noneMarker, "only"))
	s.remove("dat", noneMarker, "only")
	if _, ok := s.byType["dat"]; ok {
		t.Fatal("extension key left behind with an empty sequence")
	}
}

func TestEntryStoreOrderedAllPreservesInsertionOrder(t *testing.T) {
	s := newEntryStore()
	e1 := newTestEntry("a", noneMarker, "one")
	e2 := newTestEntry("b", noneMarker, "two")
	e3 := newTestEntry("a", noneMarker, "three")
	s.add(e1)
	s.add(e2)
	s.add(e3)

	got := s.orderedAll()
	want := []*Entry{e1, e2, e3}
	if len(got) != len(want) {
		t.Fatalf("orderedAll returned %d entries, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("orderedAll[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestEntryStoreSortedLookupMatchesLinear(t *testing.T) {
	linear := newEntryStore()
	sorted := newEntryStore()
	if err := sorted.optimize(CaseSensitive); err != nil {
		t.Fatalf("optimize: %v", err)
	}

	names := []string{"zeta", "alpha", "mid", "a", "longestname"}
	for _, n := range names {
		linear.add(newTestEntry("x", noneMarker, n))
		sorted.add(newTestEntry("x", noneMarker, n))
	}
	sorted.finalize()

	for _, n := range names {
		l := linear.find("x", noneMarker, n)
		s := sorted.find("x", noneMarker, n)
		if l == nil || s == nil {
			t.Fatalf("lookup for %q failed: linear=%v sorted=%v", n, l, s)
		}
		if l.FileName != s.FileName {
			t.Fatalf("linear and sorted disagree for %q", n)
		}
	}
}

func TestEntryStoreOptimizeAfterIngestFails(t *testing.T) {
	s := newEntryStore()
	s.add(newTestEntry("x", noneMarker, "a"))
	if err := s.optimize(CaseSensitive); err == nil {
		t.Fatal("expected error optimizing after ingestion")
	} else if !IsKind(err, KindInvalidState) {
		t.Fatalf("expected KindInvalidState, got %v", err)
	}
}

func TestEntryStoreCaseInsensitiveLookup(t *testing.T) {
	s := newEntryStore()
	if err := s.optimize(CaseInsensitiveOrdinal); err != nil {
		t.Fatalf("optimize: %v", err)
	}
	s.add(newTestEntry("x", noneMarker, "MixedCase"))
	s.finalize()

	if got := s.find("x", noneMarker, "mixedcase"); got == nil {
		t.Fatal("case-insensitive lookup failed to find entry")
	}
}
