package aggregator

import "testing"

func TestAC120_ComputeNew_ReturnsUnseenVideos(t *testing.T) {
	previous := CatalogFrom([]VideoRecord{{ID: "A"}, {ID: "B"}})
	current := []VideoRecord{{ID: "B"}, {ID: "C"}}

	got := ComputeNew(previous, current)
	equalIDs(t, got, "C")
}

func TestAC120_ComputeNew_EmptyPreviousReturnsAll(t *testing.T) {
	current := []VideoRecord{{ID: "A", ViewCount: 1}, {ID: "B", ViewCount: 2}}

	got := ComputeNew(NewCatalog(), current)
	equalIDs(t, got, "B", "A")
}

func TestAC121_ComputeNew_KeysOnIDOnly(t *testing.T) {
	previous := CatalogFrom([]VideoRecord{{ID: "A", Title: "old", ViewCount: 1}})
	current := []VideoRecord{{ID: "A", Title: "renamed", ViewCount: 1000}}

	if got := ComputeNew(previous, current); len(got) != 0 {
		t.Errorf("changed attributes do not make a video new, got %v", ids(got))
	}
}

func TestAC122_ComputeNew_DoesNotMutateInput(t *testing.T) {
	current := []VideoRecord{{ID: "low", ViewCount: 1}, {ID: "high", ViewCount: 9}}

	got := ComputeNew(NewCatalog(), current)
	equalIDs(t, got, "high", "low")
	equalIDs(t, current, "low", "high")
}

func TestAC123_CatalogFrom_FirstDuplicateWins(t *testing.T) {
	cat := CatalogFrom([]VideoRecord{{ID: "A", Title: "one"}, {ID: "A", Title: "two"}})

	if cat.Len() != 1 {
		t.Fatalf("duplicate ids should collapse, got %d", cat.Len())
	}
	r, _ := cat.Get("A")
	if r.Title != "one" {
		t.Errorf("first record should win, got %q", r.Title)
	}
}
