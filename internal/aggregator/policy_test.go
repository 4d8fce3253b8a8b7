package aggregator

import "testing"

func catalogWithCounts(counts map[string]int, order ...string) *Catalog {
	agg := New(ModeFrequency)
	for _, id := range order {
		for i := 0; i < counts[id]; i++ {
			_ = agg.Ingest("R", []Entry{entry(id, "1")})
		}
	}
	cat, _ := agg.Finalize()
	return cat
}

func TestAC110_Policy_ThresholdAndPercentage(t *testing.T) {
	cat := catalogWithCounts(map[string]int{"A": 2, "B": 1}, "A", "B")

	got := Policy{Mode: ModeFrequency, MinRegions: 2}.Apply(cat, 10)
	equalIDs(t, got, "A")
	if got[0].Score() != 20.0 {
		t.Errorf("2 of 10 regions should score 20.0, got %v", got[0].Score())
	}
}

func TestAC110_Policy_DefaultMinRegions(t *testing.T) {
	cat := catalogWithCounts(map[string]int{"A": 2, "B": 1}, "A", "B")

	got := Policy{Mode: ModeFrequency}.Apply(cat, 4)
	equalIDs(t, got, "A")
}

func TestAC111_Policy_ZeroRegionsYieldsEmpty(t *testing.T) {
	cat := catalogWithCounts(map[string]int{"A": 3}, "A")

	got := Policy{Mode: ModeFrequency}.Apply(cat, 0)
	if got == nil || len(got) != 0 {
		t.Errorf("no surveyed regions should yield an empty, non-nil result, got %v", got)
	}
}

func TestAC112_Policy_ScoreCappedAt100(t *testing.T) {
	cat := catalogWithCounts(map[string]int{"A": 3}, "A")

	got := Policy{Mode: ModeFrequency}.Apply(cat, 2)
	if got[0].Score() != 100 {
		t.Errorf("score should never exceed 100, got %v", got[0].Score())
	}
}

func TestAC113_Policy_StableSortByViews(t *testing.T) {
	agg := New(ModeSet)
	_ = agg.Ingest("US", []Entry{entry("low", "5"), entry("tie1", "50"), entry("high", "900"), entry("tie2", "50")})
	cat, _ := agg.Finalize()

	got := Policy{Mode: ModeSet}.Apply(cat, 1)
	equalIDs(t, got, "high", "tie1", "tie2", "low")
}

func TestAC114_Policy_DoesNotMutateCatalog(t *testing.T) {
	cat := catalogWithCounts(map[string]int{"A": 2}, "A")

	_ = Policy{Mode: ModeFrequency}.Apply(cat, 10)
	r, _ := cat.Get("A")
	if r.Score() != 2 {
		t.Errorf("catalog count should stay 2 after Apply, got %v", r.Score())
	}
}

func TestAC115_Policy_Limit(t *testing.T) {
	agg := New(ModeSet)
	_ = agg.Ingest("US", []Entry{entry("a", "3"), entry("b", "2"), entry("c", "1")})
	cat, _ := agg.Finalize()

	got := Policy{Mode: ModeSet, Limit: 2}.Apply(cat, 1)
	equalIDs(t, got, "a", "b")
}
