package aggregator

import "errors"

// ErrFinalized is returned when regions are added after Finalize.
var ErrFinalized = errors.New("aggregator already finalized")

// Stats counts what the aggregator saw during a run.
type Stats struct {
	RegionsIngested int `json:"regions_ingested"`
	RegionsSkipped  int `json:"regions_skipped"`
	Entries         int `json:"entries"`
	Duplicates      int `json:"duplicates"`
	Malformed       int `json:"malformed"`
}

// Aggregator merges region trending lists in the order they are ingested.
// It is not safe for concurrent use; callers reduce fetched regions on one
// goroutine.
type Aggregator struct {
	mode      Mode
	catalog   *Catalog
	stats     Stats
	skipped   map[string]error
	finalized bool
}

// New creates an Aggregator for the given mode. An unknown mode falls back
// to frequency.
func New(mode Mode) *Aggregator {
	if mode != ModeSet {
		mode = ModeFrequency
	}
	return &Aggregator{
		mode:    mode,
		catalog: NewCatalog(),
		skipped: make(map[string]error),
	}
}

// Mode returns the duplicate handling mode.
func (a *Aggregator) Mode() Mode {
	return a.mode
}

// Ingest merges one region's entries. In frequency mode a video already in
// the catalog has its appearance count incremented; in set mode the first
// record seen is kept unchanged. An id repeated inside one list counts once.
// Entries without an id are dropped.
func (a *Aggregator) Ingest(region string, entries []Entry) error {
	if a.finalized {
		return ErrFinalized
	}
	a.stats.RegionsIngested++

	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if e.ID == "" {
			a.stats.Malformed++
			continue
		}
		a.stats.Entries++
		if _, dup := seen[e.ID]; dup {
			a.stats.Duplicates++
			continue
		}
		seen[e.ID] = struct{}{}

		if a.catalog.Has(e.ID) {
			a.stats.Duplicates++
			if a.mode == ModeFrequency {
				a.catalog.bump(e.ID)
			}
			continue
		}

		rec := NewRecord(e)
		if a.mode == ModeFrequency {
			rec.TrendScore = scorePtr(1)
		}
		a.catalog.add(rec)
	}
	return nil
}

// Skip records a region that contributed nothing, such as one the API
// rejected. Skipped regions still count as surveyed.
func (a *Aggregator) Skip(region string, reason error) error {
	if a.finalized {
		return ErrFinalized
	}
	a.stats.RegionsSkipped++
	a.skipped[region] = reason
	return nil
}

// Skipped returns the skipped regions and why.
func (a *Aggregator) Skipped() map[string]error {
	out := make(map[string]error, len(a.skipped))
	for k, v := range a.skipped {
		out[k] = v
	}
	return out
}

// Surveyed returns how many regions were ingested or skipped.
func (a *Aggregator) Surveyed() int {
	return a.stats.RegionsIngested + a.stats.RegionsSkipped
}

// Finalize closes the aggregator and returns the catalog. Further calls to
// Ingest, Skip or Finalize fail with ErrFinalized until Reset.
func (a *Aggregator) Finalize() (*Catalog, error) {
	if a.finalized {
		return nil, ErrFinalized
	}
	a.finalized = true
	return CatalogFrom(a.catalog.Records()), nil
}

// Reset clears all state so the aggregator can run again.
func (a *Aggregator) Reset() {
	a.catalog = NewCatalog()
	a.stats = Stats{}
	a.skipped = make(map[string]error)
	a.finalized = false
}

// Stats returns the counters collected so far.
func (a *Aggregator) Stats() Stats {
	return a.stats
}
